// Package task runs fire-and-forget work whose failures must never
// propagate. The no-throw contract is the point: callers get no result
// channel, errors are logged and dropped.
package task

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// Go runs fn on its own goroutine. A non-nil error is logged against op
// and otherwise ignored. There is no cancellation; fn owns its own
// deadline if it needs one. The returned channel closes when fn settled,
// and may be ignored.
func Go(op string, fn func(ctx context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := fn(context.Background()); err != nil {
			log.WithField("op", op).WithError(err).Warn("best-effort task failed")
		}
	}()
	return done
}
