package repose

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Prefetch loads collections concurrently, at most limit at a time. Zero limit means no limit.
// Collections already loaded are not fetched again.
// A failure to load one collection does not interrupt loading of the others; the first error is returned.
func Prefetch(ctx context.Context, limit int, collections ...*Collection) error {
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for _, c := range collections {
		if c == nil {
			continue
		}
		g.Go(func() error {
			return c.Load(ctx)
		})
	}

	return g.Wait()
}
