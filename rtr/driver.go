// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtr

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

var epsilon = math.Nextafter(1, 2) - 1

// iterDriver is the main driver for iterations in an optimization process,
// responsible for managing the flow of the optimization.
type iterDriver struct {
	optimizer *Optimizer
	location  *iterLoc
	ctx       iterCtx

	pgNorm float64
	last   iterRecord
}

// iterRecord keeps the details of the latest trial step for narration.
type iterRecord struct {
	tcg      tcgStep
	etaNorm  float64
	fProp    float64
	rho      float64
	accepted bool
}

// guard runs fn and converts a panic into EvalPanic.
func guard(fn func()) (status Status) {
	defer func() {
		if r := recover(); r != nil {
			status = EvalPanic
		}
	}()
	fn()
	return iterLoop
}

// evalModel computes the gradient, Hessian operator and gradient norms at
// the current location.
func (d *iterDriver) evalModel() Status {
	o, loc := d.optimizer, d.location
	return guard(func() {
		loc.g, loc.hess = o.Model(loc.x)
		loc.gNorm = math.Sqrt(o.Metric(loc.x, loc.g, loc.g))
		if o.Precon != nil {
			d.pgNorm = math.Sqrt(math.Max(0, o.Metric(loc.x, loc.g, o.Precon(loc.x, loc.g))))
		} else {
			d.pgNorm = loc.gNorm
		}
	})
}

// checkConvergence checks the first order and budget stopping criteria at
// the current location.
func (d *iterDriver) checkConvergence() Status {
	o, loc, ctx := d.optimizer, d.location, &d.ctx
	switch {
	case loc.gNorm <= o.stop.GradientTolerance:
		return GradientNorm
	case d.pgNorm <= o.stop.PreconditionedGradientTolerance:
		return PreconditionedGradientNorm
	case ctx.elapsed() >= o.stop.MaxComputations:
		return TimeLimit
	case ctx.iter >= o.stop.MaxIterations:
		return IterationLimit
	}
	return iterLoop
}

// mainLoop is the main execution loop of the iteration process. Every
// iteration solves the trust-region subproblem, evaluates the proposed point
// and either accepts it or shrinks the region.
func (d *iterDriver) mainLoop() (status Status) {

	o, loc, ctx := d.optimizer, d.location, &d.ctx

	ctx.global.Reset()
	ctx.delta = o.region.Delta0

	d.printInit()

	// Calculate f₀ and grad f₀
	status = guard(func() { loc.f = o.Object(loc.x) })
	if status == iterLoop {
		status = d.evalModel()
	}
	if status == iterLoop {
		ctx.record(loc)
		d.observe(true)
		if log := o.logger; log.enable(LogIter) {
			log.log("Iter %5d    f= %14.7e    |grad|= %12.5e    Delta= %10.3e\n", ctx.iter, loc.f, loc.gNorm, ctx.delta)
		}
	}

	for status == iterLoop {
		if status = d.checkConvergence(); status != iterLoop {
			break
		}
		ctx.iter++
		status = d.iterate()
		d.printIter()
	}

	d.printExit(status)
	return
}

// iterate computes and tests one trust-region step.
func (d *iterDriver) iterate() (status Status) {

	o, loc, ctx := d.optimizer, d.location, &d.ctx
	rec := &d.last
	*rec = iterRecord{}

	var xProp *mat.Dense
	status = guard(func() {
		rec.tcg = d.truncatedCG()
		xProp = o.Retr(loc.x, rec.tcg.eta)
		rec.fProp = o.Object(xProp)
	})
	if status != iterLoop {
		return
	}

	eta, hEta := rec.tcg.eta, rec.tcg.hEta
	rec.etaNorm = math.Sqrt(o.Metric(loc.x, eta, eta))
	modelDec := -(o.Metric(loc.x, loc.g, eta) + 0.5*o.Metric(loc.x, eta, hEta))

	// Regularized ratio; keeps ρ meaningful when both decreases are at
	// the level of round-off.
	reg := math.Max(1, math.Abs(loc.f)) * epsilon * 1e3
	rec.rho = (loc.f - rec.fProp + reg) / (modelDec + reg)

	if !(rec.rho >= o.region.Alpha1) {
		ctx.delta *= o.region.Beta1
	} else if rec.rho > o.region.Alpha2 && rec.tcg.status.boundary() {
		ctx.delta *= o.region.Beta2
	}

	// The iterates are monotone: a step that the regularization would
	// accept despite increasing f is still rejected.
	rec.accepted = rec.rho > o.region.Alpha1 && rec.fProp <= loc.f
	if rec.accepted {
		fOld := loc.f
		loc.x, loc.f = xProp, rec.fProp
		if status = d.evalModel(); status != iterLoop {
			return
		}
		if (fOld-loc.f)/math.Max(math.Abs(fOld), epsilon) <= o.stop.RelativeDecreaseTolerance {
			status = RelativeDecrease
		}
	}
	if status == iterLoop && rec.etaNorm <= o.stop.StepsizeTolerance {
		status = Stepsize
	}

	ctx.record(loc)
	d.observe(rec.accepted)
	return
}

func (d *iterDriver) observe(accepted bool) {
	o, loc, ctx := d.optimizer, d.location, &d.ctx
	if o.Observe == nil {
		return
	}
	o.Observe(Iterate{
		Iter:     ctx.iter,
		X:        loc.x,
		F:        loc.f,
		GradNorm: loc.gNorm,
		Delta:    ctx.delta,
		Accepted: accepted,
		Elapsed:  ctx.elapsed(),
	})
}

// printInit logs the initialization details of the optimization process.
func (d *iterDriver) printInit() {

	o, loc := d.optimizer, d.location
	log := o.logger

	if log.enable(LogLast) {
		r, c := loc.x.Dims()
		log.log("RUNNING THE RIEMANNIAN TRUST-REGION CODE\n")
		log.log("           * * *\n")
		log.log("Machine precision = %10.3e\n", epsilon)
		log.log("X = %d×%d    Delta0 = %10.3e    Preconditioned = %v\n", r, c, o.region.Delta0, o.Precon != nil)
		if log.enable(LogIter) {
			log.log("\n")
		}
	}
}

// printIter logs the current iteration details, including the function value,
// gradient norm and trust-region radius.
func (d *iterDriver) printIter() {

	o, loc, ctx := d.optimizer, d.location, &d.ctx
	log := o.logger
	rec := &d.last

	if log.enable(LogTrace) {
		log.log("\nITERATION %5d\n", ctx.iter)
		log.log("tCG: %d iterations, %s; |eta|= %12.5e\n", rec.tcg.iters, rec.tcg.status, rec.etaNorm)
		verdict := "rejected"
		if rec.accepted {
			verdict = "accepted"
		}
		log.log("f(x+eta)= %14.7e    rho= %10.3e    step %s\n", rec.fProp, rec.rho, verdict)
	}
	if log.enable(LogIter) {
		log.log("Iter %5d    f= %14.7e    |grad|= %12.5e    Delta= %10.3e\n", ctx.iter, loc.f, loc.gNorm, ctx.delta)
	}
}

// printExit logs the final statistics and exit conditions of the optimization process.
func (d *iterDriver) printExit(status Status) {

	o, loc, ctx := d.optimizer, d.location, &d.ctx
	log := o.logger
	if !log.enable(LogLast) {
		return
	}

	log.log("\n           * * *\n")
	log.log("Tit   = total number of iterations\n")
	log.log("Thv   = total number of Hessian-vector products\n")
	log.log("Grad  = norm of the final Riemannian gradient\n")
	log.log("F     = final function value\n")
	log.log("\n           * * *\n")
	log.log("\n     Tit      Thv      Grad         F\n")
	log.log("%8d %8d %9.2e %14.7e\n", ctx.iter, ctx.numHessVec, loc.gNorm, loc.f)

	var msg string
	switch status {
	case GradientNorm:
		msg = "CONVERGENCE: NORM_OF_GRADIENT_<=_GRADTOL"
	case PreconditionedGradientNorm:
		msg = "CONVERGENCE: NORM_OF_PRECONDITIONED_GRADIENT_<=_PGRADTOL"
	case RelativeDecrease:
		msg = "CONVERGENCE: REL_REDUCTION_OF_F_<=_RELTOL"
	case Stepsize:
		msg = "CONVERGENCE: NORM_OF_STEP_<=_STEPTOL"
	case IterationLimit:
		msg = "STOP: TOTAL NO. of ITERATIONS REACHED LIMIT"
	case TimeLimit:
		msg = "STOP: ELAPSED TIME EXCEEDING THE TIME LIMIT"
	case EvalPanic:
		msg = "STOP: CALLBACK PANICKED"
	default:
		msg = "UNKNOWN STATUS"
	}
	log.log("\n%s\n", msg)
	log.log("\n Total User time: %s\n", FormatDuration(ctx.elapsed()))
}

// FormatDuration renders d with two decimals in the largest unit of s, ms,
// µs or ns it reaches.
func FormatDuration(d time.Duration) string {
	nanoseconds := d.Nanoseconds()
	switch {
	case nanoseconds >= 1e9: // Convert to seconds
		return fmt.Sprintf("%.2f s", float64(nanoseconds)/1e9)
	case nanoseconds >= 1e6: // Convert to milliseconds
		return fmt.Sprintf("%.2f ms", float64(nanoseconds)/1e6)
	case nanoseconds >= 1e3: // Convert to microseconds
		return fmt.Sprintf("%.2f µs", float64(nanoseconds)/1e3)
	default: // Keep in nanoseconds
		return fmt.Sprintf("%.2f ns", float64(nanoseconds))
	}
}
