package fanout

import "context"

// Result is the outcome of one Map call, at the index of its input.
type Result[R any] struct {
	Value R
	Err   error
}

// Map applies fn to every element of in using at most workers goroutines.
// Results are returned in input order regardless of completion order. A
// failing call does not stop the others; inputs never run because ctx ended
// carry ctx.Err().
func Map[T, R any](ctx context.Context, workers int, in []T, fn func(ctx context.Context, v T) (R, error)) []Result[R] {
	out := make([]Result[R], len(in))
	if len(in) == 0 {
		return out
	}
	if workers <= 0 || workers > len(in) {
		workers = len(in)
	}

	ran := make([]bool, len(in))
	pool := NewWorkerPool(workers, workers*2)
	pool.Start(ctx)

	for i, v := range in {
		err := pool.Submit(ctx, func(ctx context.Context) error {
			r, err := fn(ctx, v)
			// Each index is written by exactly one job.
			out[i] = Result[R]{Value: r, Err: err}
			ran[i] = true
			return err
		})
		if err != nil {
			break
		}
	}
	pool.Close()

	for i := range out {
		if ran[i] {
			continue
		}
		if err := ctx.Err(); err != nil {
			out[i].Err = err
		} else {
			out[i].Err = ErrPoolClosed
		}
	}
	return out
}
