package identity

import (
	"context"

	"github.com/ignite/courier/internal/pkg/logger"
)

// Provisioning touches an external API with no transactions: each step
// that succeeds leaves provider-side state behind. A saga pairs every
// action with a compensation so a failure partway can unwind everything
// already done, in reverse order.

type sagaStep struct {
	name       string
	run        func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

type saga struct {
	steps []sagaStep
}

func (s *saga) add(name string, run, compensate func(ctx context.Context) error) {
	s.steps = append(s.steps, sagaStep{name: name, run: run, compensate: compensate})
}

// execute runs the steps in order. On failure it runs the compensations
// of all completed steps in reverse and returns the original error.
// Compensations run even if the caller's context was canceled: half-built
// provider state is worse than a slow unwind.
func (s *saga) execute(ctx context.Context) error {
	for i, step := range s.steps {
		if err := step.run(ctx); err != nil {
			compCtx := context.WithoutCancel(ctx)
			for j := i - 1; j >= 0; j-- {
				comp := s.steps[j]
				if comp.compensate == nil {
					continue
				}
				if cerr := comp.compensate(compCtx); cerr != nil {
					logger.Error("saga compensation failed",
						"step", comp.name, "error", cerr)
				}
			}
			logger.Warn("saga aborted", "failed_step", step.name, "error", err)
			return err
		}
	}
	return nil
}
