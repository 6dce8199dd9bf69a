package workflow

import (
	"context"
	"log/slog"
)

// Step is one named unit of a multi-step business operation. Compensate is
// optional; most steps in this system register none, so rollback is often a
// logged intent rather than a true compensating transaction.
type Step struct {
	Name       string
	Run        func(ctx context.Context) (any, error)
	Compensate func(ctx context.Context) error
}

type StepResult struct {
	Name string
	OK   bool
	Err  error
	Data any
}

// Result records every step's outcome. OK is true only when all steps
// succeeded. When a step fails, steps before it remain committed unless
// their compensation ran; callers must treat a partial result as requiring
// manual reconciliation.
type Result struct {
	OK                bool
	Steps             []StepResult
	RollbackAttempted bool
}

// FailedStep returns the first failing step, or nil when everything passed.
func (r Result) FailedStep() *StepResult {
	for i := range r.Steps {
		if !r.Steps[i].OK {
			return &r.Steps[i]
		}
	}
	return nil
}

type Coordinator struct {
	logger *slog.Logger
}

func NewCoordinator(logger *slog.Logger) *Coordinator {
	return &Coordinator{logger: logger}
}

// Execute runs steps strictly in order and stops at the first failure. It
// then attempts each completed step's compensation in reverse order. This is
// ordered execution with failure visibility, not distributed atomicity.
func (c *Coordinator) Execute(ctx context.Context, steps []Step) Result {
	result := Result{OK: true}

	for i, step := range steps {
		data, err := step.Run(ctx)
		if err != nil {
			result.OK = false
			result.Steps = append(result.Steps, StepResult{Name: step.Name, Err: err})
			c.logger.Warn("workflow step failed",
				"step", step.Name, "position", i, "err", err)
			c.rollback(ctx, steps[:i], &result)
			return result
		}
		result.Steps = append(result.Steps, StepResult{Name: step.Name, OK: true, Data: data})
	}
	return result
}

func (c *Coordinator) rollback(ctx context.Context, completed []Step, result *Result) {
	result.RollbackAttempted = true
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			c.logger.Warn("no compensation registered; step remains committed",
				"step", step.Name)
			continue
		}
		if err := step.Compensate(ctx); err != nil {
			c.logger.Error("compensation failed; manual reconciliation required",
				"step", step.Name, "err", err)
		}
	}
}
