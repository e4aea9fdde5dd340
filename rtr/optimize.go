// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rtr minimizes smooth functions over Riemannian manifolds with a
// truncated-Newton trust-region method. Each iteration approximately solves
// the trust-region subproblem on the tangent space with the Steihaug-Toint
// preconditioned conjugate gradient method, retracts the step and adapts the
// radius from the ratio of actual to predicted decrease.
//
// The manifold is described entirely by callbacks: points and tangent
// vectors are dense matrices, and the metric, retraction and second order
// model are supplied by the caller.
//
// # Reference:
//
//   - P.-A. Absil, C.G. Baker, K.A. Gallivan. Trust-region methods on Riemannian manifolds.
//   - P.-A. Absil, R. Mahony, R. Sepulchre. Optimization Algorithms on Matrix Manifolds. (Algorithm 11)
package rtr

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"gonum.org/v1/gonum/mat"
)

// LogLevel controls the frequency and type of logger output
type LogLevel int

const (
	// LogNoop no output is generated (level < 0)
	LogNoop LogLevel = -1
	// LogLast print only the exit summary
	LogLast LogLevel = 0
	// LogIter print also f, ‖grad f‖ and the trust-region radius at every iteration
	LogIter LogLevel = 1
	// LogTrace print also the truncated CG outcome and the step acceptance test
	LogTrace LogLevel = 99
)

// Logger handles logging output for the optimizer.
// Note the writer must be thread-safe.
type Logger struct {
	Level LogLevel
	Msg   io.Writer // Writer to output log messages.
}

func (l *Logger) enable(level LogLevel) bool {
	return l.Level >= level
}

func (l *Logger) log(format string, a ...any) {
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Msg, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Msg, format)
	}
}

// Objective evaluates the function at x.
type Objective func(x *mat.Dense) float64

// LinearOperator is a self-adjoint map on the tangent space at a fixed point.
type LinearOperator func(v *mat.Dense) *mat.Dense

// QuadraticModel returns the Riemannian gradient of the objective at x and
// the Riemannian Hessian at x as a linear operator.
type QuadraticModel func(x *mat.Dense) (grad *mat.Dense, hess LinearOperator)

// Metric returns the Riemannian inner product of tangent vectors u and v at x.
type Metric func(x, u, v *mat.Dense) float64

// Retraction maps the tangent vector v at x back onto the manifold.
type Retraction func(x, v *mat.Dense) *mat.Dense

// Preconditioner applies a positive definite approximation of the inverse
// Hessian to the tangent vector v at x. The result must be tangent at x.
type Preconditioner func(x, v *mat.Dense) *mat.Dense

// Iterate describes the state at the end of one iteration.
type Iterate struct {
	Iter     int           // Iteration number, 0 for the starting point.
	X        *mat.Dense    // Current point; must not be modified.
	F        float64       // Objective value at X.
	GradNorm float64       // Riemannian gradient norm at X.
	Delta    float64       // Trust-region radius for the next iteration.
	Accepted bool          // Whether the proposed step was taken.
	Elapsed  time.Duration // Time since Fit started.
}

// Observer is notified once per iteration.
type Observer func(it Iterate)

// Termination specifies the stopping criteria for the optimization algorithm.
type Termination struct {
	// The iteration stop when the number of iteration exceeds limit.
	MaxIterations int
	// The inner truncated CG stop when the number of iteration exceeds limit.
	MaxTPCGIterations int
	// The iteration stop when the elapsed wall-clock time exceeds limit (zero means unlimited).
	MaxComputations time.Duration
	// The iteration stop when the Riemannian gradient norm satisfied:
	//   ‖ grad f(xₖ) ‖ ≤ 𝚐𝚝𝚘𝚕
	GradientTolerance float64
	// The iteration stop when the preconditioned gradient norm satisfied:
	//   √⟨ grad f(xₖ), P grad f(xₖ) ⟩ ≤ 𝚙𝚐𝚝𝚘𝚕
	PreconditionedGradientTolerance float64
	// The iteration stop when an accepted step satisfied:
	//   (fₖ - fₖ₊₁)/𝚖𝚊𝚡(|fₖ|, ε) ≤ 𝚛𝚝𝚘𝚕
	RelativeDecreaseTolerance float64
	// The iteration stop when the norm of the proposed step satisfied:
	//   ‖ ηₖ ‖ ≤ 𝚜𝚝𝚘𝚕
	StepsizeTolerance float64
}

// TrustRegion holds the radius update rule.
type TrustRegion struct {
	// Initial trust-region radius.
	Delta0 float64
	// Steps with ρ > Alpha1 are accepted; ρ < Alpha1 shrinks the radius.
	Alpha1 float64
	// Steps with ρ > Alpha2 that reach the boundary expand the radius.
	Alpha2 float64
	// Shrink factor.
	Beta1 float64
	// Expand factor.
	Beta2 float64
	// Truncated CG stops when ‖rⱼ‖ ≤ ‖r₀‖ 𝚖𝚒𝚗(κ, ‖r₀‖^θ).
	Kappa, Theta float64
}

// DefaultTrustRegion returns the radius rule used when Problem.Region is nil.
func DefaultTrustRegion() TrustRegion {
	return TrustRegion{
		Delta0: 1,
		Alpha1: .05,
		Alpha2: .9,
		Beta1:  .25,
		Beta2:  2.5,
		Kappa:  .1,
		Theta:  .5,
	}
}

// Problem specifies the problem for the trust-region optimizer.
type Problem struct {
	Object  Objective      // Objective function
	Model   QuadraticModel // Riemannian gradient and Hessian
	Metric  Metric         // Riemannian metric
	Retr    Retraction     // Retraction
	Precon  Preconditioner // Optional preconditioner (identity when nil)
	Observe Observer       // Optional per-iteration observer
	Stop    Termination    // Stop condition
	Region  *TrustRegion   // Optional radius rule
}

// New creates a new trust-region optimizer for given problem.
func (p *Problem) New(logger *Logger) (optimizer *Optimizer, err error) {

	if logger == nil {
		logger = new(Logger)
		logger.Level = LogNoop
	}
	if logger.Msg == nil {
		logger.Msg = os.Stdout
	}

	stop := p.Stop
	region := DefaultTrustRegion()
	if p.Region != nil {
		region = *p.Region
	}

	if stop.MaxComputations <= 0 {
		stop.MaxComputations = math.MaxInt64
	}

	switch {
	case p.Object == nil:
		err = errors.New("objective function is required")
	case p.Model == nil:
		err = errors.New("quadratic model is required")
	case p.Metric == nil:
		err = errors.New("riemannian metric is required")
	case p.Retr == nil:
		err = errors.New("retraction is required")
	case stop.MaxIterations <= 0:
		err = errors.New("max iteration must greater than 0")
	case stop.MaxTPCGIterations <= 0:
		err = errors.New("max truncated CG iteration must greater than 0")
	case stop.GradientTolerance < 0 || stop.PreconditionedGradientTolerance < 0:
		err = errors.New("gradient tolerance must not less than 0")
	case stop.RelativeDecreaseTolerance < 0 || stop.StepsizeTolerance < 0:
		err = errors.New("decrease and stepsize tolerance must not less than 0")
	case !(region.Delta0 > 0):
		err = errors.New("initial trust-region radius must greater than 0")
	case !(0 < region.Alpha1 && region.Alpha1 < region.Alpha2 && region.Alpha2 < 1):
		err = errors.New("acceptance thresholds must satisfy 0 < alpha1 < alpha2 < 1")
	case !(0 < region.Beta1 && region.Beta1 < 1 && region.Beta2 > 1):
		err = errors.New("radius factors must satisfy 0 < beta1 < 1 < beta2")
	case !(region.Kappa > 0 && region.Kappa < 1 && region.Theta > 0):
		err = errors.New("truncated CG forcing must satisfy 0 < kappa < 1 and theta > 0")
	}

	if err != nil {
		return
	}

	optimizer = &Optimizer{
		iterSpec{
			Problem: *p,
			stop:    stop,
			region:  region,
			logger:  *logger,
		},
	}
	return
}

// Optimizer implemented using the Riemannian trust-region algorithm.
// An Optimizer holds no per-run state and may be shared between goroutines
// when the problem callbacks allow it.
type Optimizer struct {
	iterSpec
}

// Result contains the final result of the optimization process.
type Result struct {
	OK       bool       // Whether a convergence criterion was met.
	F        float64    // Final function value.
	GradNorm float64    // Final Riemannian gradient norm.
	X, G     *mat.Dense // Final solution and Riemannian gradient.
	Summary             // Optimization summary.
}

// Summary contains a summary of the optimization process.
type Summary struct {
	Status     Status          // Final status after optimization.
	NumIter    int             // Number of outer iterations performed.
	NumHessVec int             // Number of Hessian-vector products.
	Elapsed    time.Duration   // Wall-clock time of the run.
	Objectives []float64       // Objective value after each iteration, starting with x₀.
	GradNorms  []float64       // Gradient norm after each iteration, starting with x₀.
	Times      []time.Duration // Elapsed time after each iteration, starting with x₀.
}

// Fit runs the optimization process from the initial point x.
// x is not modified.
func (o *Optimizer) Fit(x *mat.Dense) *Result {

	if x == nil {
		panic("initial point is required")
	}

	loc := iterLoc{x: mat.DenseCopyOf(x)}
	driver := iterDriver{
		optimizer: o,
		location:  &loc,
	}

	status := driver.mainLoop()
	ctx := &driver.ctx
	return &Result{
		OK:       status.converged(),
		X:        loc.x,
		F:        loc.f,
		G:        loc.g,
		GradNorm: loc.gNorm,
		Summary: Summary{
			Status:     status,
			NumIter:    ctx.iter,
			NumHessVec: ctx.numHessVec,
			Elapsed:    ctx.elapsed(),
			Objectives: ctx.fs,
			GradNorms:  ctx.gs,
			Times:      ctx.ts,
		},
	}
}
