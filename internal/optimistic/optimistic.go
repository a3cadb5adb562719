// Package optimistic applies a local mutation immediately, attempts the
// matching remote call, and rolls the local change back if the remote
// side refuses. The UI sees the optimistic value until then.
package optimistic

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Mutation pairs a local state change with its remote counterpart.
type Mutation struct {
	Op       string                          // operation name for logs
	Apply    func()                          // local change, runs immediately
	Attempt  func(ctx context.Context) error // remote call
	Rollback func()                          // inverse of Apply, runs on remote failure
}

// Do applies the mutation locally, then attempts the remote call on a
// separate goroutine. On failure the rollback runs and the error is
// logged; nothing propagates to the caller. The returned channel closes
// once the remote attempt settled, and may be ignored.
func Do(m Mutation) <-chan struct{} {
	if m.Apply != nil {
		m.Apply()
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		if m.Attempt == nil {
			return
		}
		if err := m.Attempt(context.Background()); err != nil {
			log.WithField("op", m.Op).WithError(err).Warn("remote mutation failed, rolling back")
			if m.Rollback != nil {
				m.Rollback()
			}
		}
	}()
	return done
}
