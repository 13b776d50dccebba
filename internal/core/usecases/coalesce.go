package usecases

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// sharedFetchTimeout bounds a backend lookup shared by coalesced callers.
const sharedFetchTimeout = time.Minute

// joinShared runs fn once for every concurrent caller with the same key. The shared call
// is detached from any one caller's cancellation and bounded by sharedFetchTimeout; each
// caller stops waiting when its own ctx ends.
func joinShared[T any](ctx context.Context, g *singleflight.Group, key string, fn func(context.Context) (T, error)) (T, bool, error) {
	ch := g.DoChan(key, func() (interface{}, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedFetchTimeout)
		defer cancel()
		return fn(sctx)
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Shared, res.Err
		}
		return res.Val.(T), res.Shared, nil
	}
}
