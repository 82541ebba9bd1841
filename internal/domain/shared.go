package domain

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// doShared runs fn once per key across concurrent callers. fn gets a context
// detached from any single caller and bounded by timeout, so one caller
// going away neither fails the others nor interrupts half-finished work.
// Each caller still returns as soon as its own ctx is done.
func doShared(ctx context.Context, group *singleflight.Group, key string, timeout time.Duration, fn func(context.Context) (interface{}, error)) (interface{}, error, bool) {
	ch := group.DoChan(key, func() (interface{}, error) {
		work := context.WithoutCancel(ctx)
		if timeout > 0 {
			var cancel context.CancelFunc
			work, cancel = context.WithTimeout(work, timeout)
			defer cancel()
		}
		return fn(work)
	})

	select {
	case res := <-ch:
		return res.Val, res.Err, res.Shared
	case <-ctx.Done():
		return nil, ctx.Err(), false
	}
}
