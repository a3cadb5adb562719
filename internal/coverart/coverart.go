// Package coverart memoizes cover-art URL lookups. Entries are immutable
// once resolved and cached for the process lifetime; the key space is
// small and the URLs are stable.
package coverart

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Provider performs the external lookup for a cover-art URL.
type Provider interface {
	CoverArtURL(ctx context.Context, id string, size int) (string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, id string, size int) (string, error)

func (f ProviderFunc) CoverArtURL(ctx context.Context, id string, size int) (string, error) {
	return f(ctx, id, size)
}

// Resolver caches (id, size) -> URL lookups. Concurrent requests for the
// same uncached key share a single in-flight lookup.
type Resolver struct {
	provider Provider

	mu    sync.RWMutex
	cache map[string]string
	group singleflight.Group
}

// New creates a resolver backed by the given provider.
func New(provider Provider) *Resolver {
	return &Resolver{
		provider: provider,
		cache:    make(map[string]string),
	}
}

// Resolve returns the URL for the given cover-art id at the given size.
// An empty id resolves to an empty URL without touching the provider.
func (r *Resolver) Resolve(ctx context.Context, id string, size int) (string, error) {
	if id == "" {
		return "", nil
	}
	key := fmt.Sprintf("%s@%d", id, size)

	r.mu.RLock()
	url, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return url, nil
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		// Re-check under the group: a previous flight may have filled it.
		r.mu.RLock()
		url, ok := r.cache[key]
		r.mu.RUnlock()
		if ok {
			return url, nil
		}

		url, err := r.provider.CoverArtURL(ctx, id, size)
		if err != nil {
			return "", err
		}
		r.mu.Lock()
		r.cache[key] = url
		r.mu.Unlock()
		return url, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Len returns the number of cached entries.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
