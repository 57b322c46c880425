package flock

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// InitializeMany initialises a flat group of instruments as a single
// unordered level, without flock bookkeeping. Hooks and the failure policy
// match Flock.Initialize.
func InitializeMany(ctx context.Context, insts []Instrument, opts ...Option) error {
	return runMany(ctx, insts, buildRunOptions(opts), Instrument.Initialize)
}

// FinalizeMany finalises a flat group of instruments as a single unordered
// level, without flock bookkeeping. Hooks and the failure policy match
// Flock.Finalize.
func FinalizeMany(ctx context.Context, insts []Instrument, opts ...Option) error {
	return runMany(ctx, insts, buildRunOptions(opts), Instrument.Finalize)
}

func runMany(ctx context.Context, insts []Instrument, o runOptions, step func(Instrument, context.Context) error) error {
	fails := newFailureLog(o.hooks)

	var g errgroup.Group
	if o.concurrency > 1 {
		g.SetLimit(o.concurrency)
	} else {
		g.SetLimit(1)
	}

	for _, inst := range insts {
		inst := inst
		if err := ctx.Err(); err != nil {
			fails.record(err)
			break
		}
		if fails.stop() {
			break
		}

		g.Go(func() error {
			name := inst.Name()
			o.hooks.starting(name)

			if err := step(inst, ctx); err != nil {
				err = fmt.Errorf("%s: %w", name, err)
				o.hooks.failed(name, err)
				fails.record(err)
				return nil
			}

			o.hooks.ready(name)
			return nil
		})
	}

	_ = g.Wait()
	return fails.join()
}
