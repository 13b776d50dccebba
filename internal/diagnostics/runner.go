// Package diagnostics checks that the storefront backend answers the routes the
// location service depends on.
package diagnostics

import (
	"context"
	"log/slog"
	"time"
)

// StepResult is the outcome of one diagnostic step.
type StepResult struct {
	Name     string        `json:"name"`
	OK       bool          `json:"ok"`
	Skipped  bool          `json:"skipped,omitempty"`
	Detail   string        `json:"detail,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Step is one independently invokable check.
type Step struct {
	Name string
	Run  func(ctx context.Context) (detail string, err error)
}

// Report is the outcome of a full run.
type Report struct {
	Results []StepResult `json:"results"`
	Passed  bool         `json:"passed"`
}

// Runner executes steps in order. With StopOnFailure the steps after the first
// failure are reported as skipped.
type Runner struct {
	Steps         []Step
	StopOnFailure bool
	StepTimeout   time.Duration
}

// Run executes every step.
func (r *Runner) Run(ctx context.Context) Report {
	rep := Report{Passed: true, Results: make([]StepResult, 0, len(r.Steps))}
	failed := false
	for _, s := range r.Steps {
		if failed && r.StopOnFailure {
			rep.Results = append(rep.Results, StepResult{Name: s.Name, Skipped: true})
			continue
		}
		res := r.runStep(ctx, s)
		if !res.OK {
			failed = true
			rep.Passed = false
		}
		rep.Results = append(rep.Results, res)
	}
	return rep
}

func (r *Runner) runStep(ctx context.Context, s Step) StepResult {
	if r.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.StepTimeout)
		defer cancel()
	}

	start := time.Now()
	detail, err := s.Run(ctx)
	res := StepResult{Name: s.Name, OK: err == nil, Detail: detail, Duration: time.Since(start)}
	if err != nil {
		res.Error = err.Error()
		slog.Warn("diagnostic step failed", "step", s.Name, "error", err)
	}
	return res
}
