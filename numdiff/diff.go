// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package numdiff approximates derivatives of functions of a matrix argument
// by finite differences. It is used to check analytic gradients and Hessian
// actions of matrix-valued objectives.
package numdiff

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use the second order accuracy central difference.
	Central
)

var (
	errMethod = errors.New("numdiff: unknown method")
	errShape  = errors.New("numdiff: direction and point differ in shape")
)

// ApproxSpec represents a numerical differentiation scheme for functions of a
// matrix argument.
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
//
// # License
//
//   - https://github.com/scipy/scipy/blob/main/LICENSE.txt
type ApproxSpec struct {
	// Finite difference method to use.
	Method Method
	// Relative step size used to compute absolute step size.
	// The default absolute step size is computed as h = eps * sign(x0) * max(1, abs(x0)) with eps being selected by Method.
	// Otherwise, absolute step size is computed as h = RelStep * sign(x0) * abs(x0) when RelStep is provided.
	RelStep float64
	// Absolute step size to use. The RelStep is used when AbsStep is not provide.
	// For Central method the sign of AbsStep is ignored.
	AbsStep float64
}

func (as *ApproxSpec) eps() float64 {
	switch as.Method {
	case Forward:
		return sqrtEps
	case Central:
		return cubeEps
	}
	panic(errMethod)
}

// step returns the absolute step for a coordinate with value v.
func (as *ApproxSpec) step(v float64) float64 {
	eps := as.eps()
	s := as.AbsStep
	if s == 0 && as.RelStep == 0 {
		s = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
	} else {
		if s == 0 {
			s = math.Copysign(as.RelStep, v) * math.Abs(v)
		}
		if (v+s)-v == 0 {
			s = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
		}
	}
	if as.Method == Central {
		s = math.Abs(s)
	}
	return s
}

// Gradient approximates the Euclidean gradient of f at x0, one entry at a
// time. x0 is perturbed in place and restored before returning.
func (as *ApproxSpec) Gradient(f func(x *mat.Dense) float64, x0 *mat.Dense) (*mat.Dense, error) {
	if as.Method != Forward && as.Method != Central {
		return nil, errMethod
	}
	r, c := x0.Dims()
	g := mat.NewDense(r, c, nil)

	var f0 float64
	if as.Method == Forward {
		f0 = f(x0)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			x := x0.At(i, j)
			h := as.step(x)
			if as.Method == Central {
				x0.Set(i, j, x-h)
				f1 := f(x0)
				x0.Set(i, j, x+h)
				f2 := f(x0)
				g.Set(i, j, (f2-f1)/(2*h))
			} else {
				x0.Set(i, j, x+h)
				g.Set(i, j, (f(x0)-f0)/h)
			}
			x0.Set(i, j, x)
		}
	}
	return g, nil
}

// Derivative approximates the directional derivative D g(x0)[v] of a
// matrix-valued map along v.
func (as *ApproxSpec) Derivative(g func(x *mat.Dense) *mat.Dense, x0, v *mat.Dense) (*mat.Dense, error) {
	if as.Method != Forward && as.Method != Central {
		return nil, errMethod
	}
	r, c := x0.Dims()
	if vr, vc := v.Dims(); vr != r || vc != c {
		return nil, errShape
	}

	h := as.step(0)
	if nv := mat.Norm(v, 2); nv > 0 {
		h *= math.Max(1, mat.Norm(x0, 2)) / nv
	}

	var xp, d mat.Dense
	xp.Add(x0, scaled(h, v))
	if as.Method == Central {
		var xm mat.Dense
		xm.Sub(x0, scaled(h, v))
		d.Sub(g(&xp), g(&xm))
		d.Scale(1/(2*h), &d)
	} else {
		d.Sub(g(&xp), g(x0))
		d.Scale(1/h, &d)
	}
	return &d, nil
}

func scaled(h float64, v *mat.Dense) *mat.Dense {
	var s mat.Dense
	s.Scale(h, v)
	return &s
}
