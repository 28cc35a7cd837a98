// pool.go - Bounded pool for CPU-heavy image work shared by concurrent scans
package workpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Pool limits how many CPU-bound tasks run at once across the whole process.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// New creates a pool with size slots. size <= 0 means runtime.NumCPU().
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.size
}

// Do runs fn in a slot, waiting for one to free up. It returns ctx.Err() if
// the context ends before a slot is acquired.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn(ctx)
}

// Map runs fn for every index in [0, n) through the pool and returns the
// results in index order. The first error cancels the remaining work.
func Map[T any](ctx context.Context, p *Pool, n int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	out := make([]T, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			return p.Do(gctx, func(ctx context.Context) error {
				v, err := fn(ctx, i)
				if err != nil {
					return err
				}
				out[i] = v
				return nil
			})
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
