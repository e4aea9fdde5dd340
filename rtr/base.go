// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtr

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// Status reports why the optimizer stopped.
type Status int

const (
	iterLoop Status = iota
	// GradientNorm the Riemannian gradient norm fell below tolerance.
	GradientNorm
	// PreconditionedGradientNorm the preconditioned gradient norm fell below tolerance.
	PreconditionedGradientNorm
	// RelativeDecrease an accepted step decreased f by less than the relative tolerance.
	RelativeDecrease
	// Stepsize the proposed step was shorter than tolerance.
	Stepsize
	// IterationLimit more than max iterations.
	IterationLimit
	// TimeLimit the elapsed time exceeded the limit.
	TimeLimit
	// EvalPanic a callback panicked.
	EvalPanic
)

func (s Status) converged() bool {
	switch s {
	case GradientNorm, PreconditionedGradientNorm, RelativeDecrease, Stepsize:
		return true
	}
	return false
}

func (s Status) String() string {
	switch s {
	case iterLoop:
		return "RUNNING"
	case GradientNorm:
		return "GRADIENT_NORM"
	case PreconditionedGradientNorm:
		return "PRECONDITIONED_GRADIENT_NORM"
	case RelativeDecrease:
		return "RELATIVE_DECREASE"
	case Stepsize:
		return "STEPSIZE"
	case IterationLimit:
		return "ITERATION_LIMIT"
	case TimeLimit:
		return "ELAPSED_TIME"
	case EvalPanic:
		return "EVALUATION_PANIC"
	}
	return "UNKNOWN"
}

// tcgStatus reports why truncated CG stopped.
type tcgStatus int

const (
	tcgNegativeCurvature tcgStatus = iota
	tcgExceededRegion
	tcgLinearConvergence
	tcgSuperlinearConvergence
	tcgMaxIterations
)

func (s tcgStatus) String() string {
	switch s {
	case tcgNegativeCurvature:
		return "negative curvature"
	case tcgExceededRegion:
		return "exceeded trust region"
	case tcgLinearConvergence:
		return "reached target residual-kappa (linear)"
	case tcgSuperlinearConvergence:
		return "reached target residual-theta (superlinear)"
	case tcgMaxIterations:
		return "maximum inner iterations"
	}
	return "unknown"
}

// boundary reports whether the step ended on the trust-region boundary.
func (s tcgStatus) boundary() bool {
	return s == tcgNegativeCurvature || s == tcgExceededRegion
}

type iterSpec struct {
	Problem
	stop   Termination
	region TrustRegion
	logger Logger
}

// iterLoc is the current point with its first order information.
type iterLoc struct {
	x     *mat.Dense
	f     float64
	g     *mat.Dense
	hess  LinearOperator
	gNorm float64
}

type iterCtx struct {
	iter       int
	numHessVec int
	delta      float64

	fs []float64
	gs []float64
	ts []time.Duration

	global Stopwatch
}

func (c *iterCtx) elapsed() time.Duration {
	return c.global.Elapsed()
}

func (c *iterCtx) record(loc *iterLoc) {
	c.fs = append(c.fs, loc.f)
	c.gs = append(c.gs, loc.gNorm)
	c.ts = append(c.ts, c.elapsed())
}

// Stopwatch measures wall-clock time since its last Reset.
type Stopwatch struct {
	start time.Time
}

func (s *Stopwatch) Reset() {
	s.start = time.Now()
}

func (s *Stopwatch) Elapsed() time.Duration {
	return time.Since(s.start)
}
