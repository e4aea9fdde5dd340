// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtr

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// tcgStep is an approximate minimizer η of the model
//
//	m(η) = f + ⟨g, η⟩ + ½⟨η, H η⟩   subject to ‖η‖_P ≤ Δ
//
// together with Hη, which the driver needs for the predicted decrease.
type tcgStep struct {
	eta, hEta *mat.Dense
	status    tcgStatus
	iters     int
}

// truncatedCG runs the Steihaug-Toint preconditioned conjugate gradient
// method on the trust-region subproblem at the current point. Norms of the
// iterates are measured in the preconditioner norm ‖η‖²_P = ⟨η, P⁻¹η⟩, which
// the recurrences
//
//	⟨ηⱼ₊₁,ηⱼ₊₁⟩_P = ⟨ηⱼ,ηⱼ⟩_P + 2αⱼ⟨ηⱼ,δⱼ⟩_P + αⱼ²⟨δⱼ,δⱼ⟩_P
//	⟨ηⱼ₊₁,δⱼ₊₁⟩_P = βⱼ₊₁(⟨ηⱼ,δⱼ⟩_P + αⱼ⟨δⱼ,δⱼ⟩_P)
//	⟨δⱼ₊₁,δⱼ₊₁⟩_P = ⟨rⱼ₊₁,zⱼ₊₁⟩ + βⱼ₊₁²⟨δⱼ,δⱼ⟩_P
//
// track without applying P⁻¹.
func (d *iterDriver) truncatedCG() tcgStep {
	o, loc, ctx := d.optimizer, d.location, &d.ctx
	x := loc.x
	inner := func(u, v *mat.Dense) float64 { return o.Metric(x, u, v) }

	rows, cols := loc.g.Dims()
	step := tcgStep{
		eta:  mat.NewDense(rows, cols, nil),
		hEta: mat.NewDense(rows, cols, nil),
	}

	res := mat.DenseCopyOf(loc.g)
	z := d.precondition(x, res)
	zr := inner(res, z)

	delta := mat.NewDense(rows, cols, nil)
	delta.Scale(-1, z)

	ePe, ePd, dPd := 0.0, 0.0, zr
	if !(dPd > 0) {
		step.status = tcgLinearConvergence
		return step
	}

	r0 := math.Sqrt(inner(res, res))
	target := r0 * math.Min(math.Pow(r0, o.region.Theta), o.region.Kappa)
	radius2 := ctx.delta * ctx.delta

	for j := 0; j < o.stop.MaxTPCGIterations; j++ {
		step.iters = j + 1

		hd := loc.hess(delta)
		ctx.numHessVec++
		curv := inner(delta, hd)
		alpha := zr / curv
		ePeNew := ePe + 2*alpha*ePd + alpha*alpha*dPd

		if !(curv > 0) || ePeNew >= radius2 {
			tau := (-ePd + math.Sqrt(ePd*ePd+dPd*(radius2-ePe))) / dPd
			addScaled(step.eta, tau, delta)
			addScaled(step.hEta, tau, hd)
			if !(curv > 0) {
				step.status = tcgNegativeCurvature
			} else {
				step.status = tcgExceededRegion
			}
			return step
		}

		ePe = ePeNew
		addScaled(step.eta, alpha, delta)
		addScaled(step.hEta, alpha, hd)
		addScaled(res, alpha, hd)

		if rNorm := math.Sqrt(inner(res, res)); rNorm <= target {
			if o.region.Kappa < math.Pow(r0, o.region.Theta) {
				step.status = tcgLinearConvergence
			} else {
				step.status = tcgSuperlinearConvergence
			}
			return step
		}

		z = d.precondition(x, res)
		zrOld := zr
		zr = inner(res, z)
		beta := zr / zrOld

		delta.Scale(beta, delta)
		delta.Sub(delta, z)

		ePd = beta * (ePd + alpha*dPd)
		dPd = zr + beta*beta*dPd
	}

	step.status = tcgMaxIterations
	return step
}

// precondition applies the preconditioner, or copies v when there is none.
func (d *iterDriver) precondition(x, v *mat.Dense) *mat.Dense {
	if p := d.optimizer.Precon; p != nil {
		return p(x, v)
	}
	return mat.DenseCopyOf(v)
}

// addScaled computes dst += alpha·v.
func addScaled(dst *mat.Dense, alpha float64, v *mat.Dense) {
	var s mat.Dense
	s.Scale(alpha, v)
	dst.Add(dst, &s)
}
