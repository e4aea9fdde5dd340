// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesync

import (
	"time"

	"gonum.org/v1/gonum/mat"
)

// Result is the outcome of a Riemannian Staircase run. Per-level slices
// have one entry for every rank at which the trust-region solver ran.
type Result struct {
	// Yopt is the last critical point found, of shape r×N.
	Yopt *mat.Dense `json:"-"`
	// SDPVal is F(Yopt).
	SDPVal float64 `json:"sdp_val"`
	// GradNorm is the norm of the Riemannian gradient at Yopt.
	GradNorm float64 `json:"grad_norm"`

	// LambdaMin and VMin are the minimum eigenpair of S - Λ(Yopt), when it
	// was computed to the requested precision.
	LambdaMin float64   `json:"lambda_min"`
	VMin      []float64 `json:"-"`

	// One entry per successful eigenvalue computation.
	MinimumEigenvalues     []float64       `json:"minimum_eigenvalues"`
	MinimumEigenvalueTimes []time.Duration `json:"minimum_eigenvalue_times"`

	// One entry per level, each holding the per-iteration trace.
	FunctionValues           [][]float64       `json:"function_values"`
	GradientNorms            [][]float64       `json:"gradient_norms"`
	ElapsedOptimizationTimes [][]time.Duration `json:"elapsed_optimization_times"`
	Ranks                    []int             `json:"ranks"`
	// Iterates holds the accepted iterates of each level when LogIterates is set.
	Iterates [][]*mat.Dense `json:"-"`

	// Xhat is the rounded estimate [t | R] of shape d×(n+dn).
	Xhat  *mat.Dense `json:"-"`
	Fxhat float64    `json:"fxhat"`

	InitializationTime time.Duration `json:"initialization_time"`
	TotalTime          time.Duration `json:"total_time"`
	Status             Status        `json:"status"`
}

// Suboptimality returns F(x̂) - F(Y), an upper bound on the gap between the
// rounded estimate and the global optimum when Status is GlobalOpt.
func (r *Result) Suboptimality() float64 {
	return r.Fxhat - r.SDPVal
}
