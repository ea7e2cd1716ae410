package worker

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Supervisor owns worker lifecycles and a shared cancellation signal
// (spec.md §5: "A top-level supervisor owns worker lifecycles and a
// cancellation signal").
type Supervisor struct {
	workers           []*PerSymbolWorker
	flattenOnShutdown bool
}

// NewSupervisor builds a supervisor over the given per-symbol workers.
func NewSupervisor(workers []*PerSymbolWorker, flattenOnShutdown bool) *Supervisor {
	return &Supervisor{workers: workers, flattenOnShutdown: flattenOnShutdown}
}

// Run fans out one goroutine per worker and blocks until ctx is cancelled
// and every worker has exited. Workers share no mutable state with each
// other (spec.md §5); errgroup only provides cancellation propagation.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range s.workers {
		w := w
		g.Go(func() error {
			w.Run(gctx, s.flattenOnShutdown)
			return nil
		})
	}
	return g.Wait()
}
