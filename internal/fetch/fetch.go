// Package fetch runs per-entity remote lookups with bounded concurrency,
// paced starts and retries.
package fetch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/timmy/legisync/internal/logger"
	"github.com/timmy/legisync/internal/retry"
)

// Result is the outcome of one entity lookup.
type Result[T any] struct {
	ID    string
	Value T
	Err   error
}

// Options tunes Each. The zero value fetches sequentially without pauses
// and a single attempt per entity.
type Options struct {
	Concurrency int
	// Interval is the minimum gap between consecutive starts. Ignored when Limiter is set.
	Interval time.Duration
	Limiter  *rate.Limiter
	Executor *retry.Executor
	Policy   retry.Policy
	Label    string
	// OnProgress is called after every completed entity with a strictly
	// increasing done count.
	OnProgress func(done, total int)
}

func (o Options) limiter() *rate.Limiter {
	if o.Limiter != nil {
		return o.Limiter
	}
	if o.Interval <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Every(o.Interval), 1)
}

// Each calls fn once per id and returns results in the order of ids. A failing
// entity never stops the loop; its error lands in Result.Err. Once ctx is done
// no new calls start and the remaining results carry ctx.Err().
func Each[T any](ctx context.Context, ids []string, fn func(ctx context.Context, id string) (T, error), opts Options) []Result[T] {
	results := make([]Result[T], len(ids))
	if len(ids) == 0 {
		return results
	}

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	label := opts.Label
	if label == "" {
		label = "fetch"
	}
	policy := opts.Policy
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	limiter := opts.limiter()
	log := logger.FromContext(ctx)

	var (
		mu   sync.Mutex
		done int
	)
	complete := func() {
		mu.Lock()
		defer mu.Unlock()
		done++
		if opts.OnProgress != nil {
			opts.OnProgress(done, len(ids))
		}
	}

	var group errgroup.Group
	group.SetLimit(concurrency)

	for i, id := range ids {
		results[i].ID = id

		if err := ctx.Err(); err != nil {
			markRemaining(results, i, err)
			break
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					err = ctxErr
				}
				markRemaining(results, i, err)
				break
			}
		}

		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				complete()
				return nil
			}
			entityCtx := logger.WithField(ctx, logger.FieldEntityID, id)
			value, err := retry.Do(entityCtx, opts.Executor, policy, label+" "+id, func(ctx context.Context) (T, error) {
				return fn(ctx, id)
			})
			results[i].Value = value
			results[i].Err = err
			if err != nil {
				log.WithField(logger.FieldEntityID, id).WithError(err).Warn("Entity fetch failed")
			}
			complete()
			return nil
		})
	}

	_ = group.Wait()
	return results
}

func markRemaining[T any](results []Result[T], from int, err error) {
	for j := from; j < len(results); j++ {
		results[j].Err = err
	}
}

// Pair runs two independent lookups together and returns both values. If
// either fails the other's context is cancelled and the first error returned.
func Pair[A, B any](ctx context.Context, a func(ctx context.Context) (A, error), b func(ctx context.Context) (B, error)) (A, B, error) {
	var (
		va A
		vb B
	)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		v, err := a(gctx)
		va = v
		return err
	})
	group.Go(func() error {
		v, err := b(gctx)
		vb = v
		return err
	})
	err := group.Wait()
	return va, vb, err
}
