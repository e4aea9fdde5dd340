// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesync

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	// escapeScale sets the initial step α₀ = escapeScale·gradTol/|λ|.
	escapeScale = 200
	// minEscapeStep is the smallest step tried before giving up.
	minEscapeStep = 1e-6
)

// SaddleProblem is the part of a problem at rank r+1 that EscapeSaddle needs.
type SaddleProblem interface {
	Objective(y mat.Matrix) float64
	Retract(y, v *mat.Dense) *mat.Dense
	RiemannianGradientAt(y *mat.Dense) *mat.Dense
}

// EscapeFunc computes a point at rank r+1 that leaves the saddle y.
type EscapeFunc func(p SaddleProblem, y *mat.Dense, lambdaMin float64, vMin []float64, gradTol float64) (*mat.Dense, bool)

// EscapeSaddle moves from the rank-r critical point y, whose certificate has
// the negative eigenvalue lambdaMin with eigenvector vMin, to a point of the
// rank r+1 problem p with lower objective. y is lifted by a zero row and
// followed along the direction Ẏ whose only nonzero row is the last one,
// vMinᵀ; Ẏ is a second order descent direction there.
//
// The step starts at α₀ = 200·gradTol/|lambdaMin| and is halved before every
// trial. A trial is accepted when it decreases F and its gradient norm is
// above gradTol, so the next trust-region run does not stop immediately.
// The search gives up once α ≤ 1e-6.
func EscapeSaddle(p SaddleProblem, y *mat.Dense, lambdaMin float64, vMin []float64, gradTol float64) (*mat.Dense, bool) {
	r, cols := y.Dims()
	if !(lambdaMin < 0) || len(vMin) != cols {
		return nil, false
	}

	fy := p.Objective(y)

	yAug := mat.NewDense(r+1, cols, nil)
	yAug.Slice(0, r, 0, cols).(*mat.Dense).Copy(y)

	yDot := mat.NewDense(r+1, cols, nil)
	yDot.SetRow(r, vMin)

	var step mat.Dense
	alpha := escapeScale * gradTol / math.Abs(lambdaMin)
	for {
		alpha /= 2
		step.Scale(alpha, yDot)
		yTest := p.Retract(yAug, &step)
		if p.Objective(yTest) < fy && mat.Norm(p.RiemannianGradientAt(yTest), 2) > gradTol {
			return yTest, true
		}
		if !(alpha > minEscapeStep) {
			return nil, false
		}
	}
}
