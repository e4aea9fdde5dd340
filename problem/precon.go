// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// preconditioner approximates the action of S⁻¹ from the right: v ↦ v P⁻¹.
type preconditioner interface {
	apply(v *mat.Dense) *mat.Dense
}

func newPreconditioner(kind Preconditioner, s *mat.SymDense) preconditioner {
	switch kind {
	case Jacobi:
		return newJacobi(s)
	case IncompleteCholesky:
		return newIncompleteCholesky(s)
	}
	return nil
}

type jacobi struct {
	inv []float64
}

func newJacobi(s *mat.SymDense) *jacobi {
	n := s.SymmetricDim()
	j := &jacobi{inv: make([]float64, n)}
	for i := range j.inv {
		if v := s.At(i, i); v > 0 {
			j.inv[i] = 1 / v
		} else {
			j.inv[i] = 1
		}
	}
	return j
}

func (j *jacobi) apply(v *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(v)
	rows, cols := out.Dims()
	for c := 0; c < cols; c++ {
		w := j.inv[c]
		for r := 0; r < rows; r++ {
			out.Set(r, c, w*out.At(r, c))
		}
	}
	return out
}

const (
	icShiftInit  = 1e-3
	icShiftGrow  = 2
	icMaxRetries = 40
)

// incompleteCholesky holds a zero fill-in factor U with UᵀU ≈ S + δI. The
// data matrices are singular, so δ starts at 1e-3 of the mean diagonal and
// doubles until every pivot is positive.
type incompleteCholesky struct {
	chol mat.Cholesky
}

func newIncompleteCholesky(s *mat.SymDense) *incompleteCholesky {
	n := s.SymmetricDim()
	mean := 0.0
	for i := 0; i < n; i++ {
		mean += s.At(i, i)
	}
	mean /= float64(n)
	if !(mean > 0) {
		mean = 1
	}

	shift := icShiftInit * mean
	for k := 0; k < icMaxRetries; k++ {
		if u, ok := icZero(s, shift); ok {
			ic := new(incompleteCholesky)
			ic.chol.SetFromU(u)
			return ic
		}
		shift *= icShiftGrow
	}
	panic("problem: incomplete Cholesky factorization failed")
}

// icZero computes the IC(0) factor of s + shift·I restricted to the
// sparsity pattern of s.
func icZero(s *mat.SymDense, shift float64) (*mat.TriDense, bool) {
	n := s.SymmetricDim()
	u := mat.NewTriDense(n, mat.Upper, nil)
	nz := make([][]bool, n)
	for i := 0; i < n; i++ {
		nz[i] = make([]bool, n)
		for j := i; j < n; j++ {
			v := s.At(i, j)
			if i == j {
				v += shift
			}
			if v != 0 || i == j {
				nz[i][j] = true
				u.SetTri(i, j, v)
			}
		}
	}

	for k := 0; k < n; k++ {
		piv := u.At(k, k)
		if !(piv > 0) || math.IsInf(piv, 0) {
			return nil, false
		}
		piv = math.Sqrt(piv)
		u.SetTri(k, k, piv)
		for j := k + 1; j < n; j++ {
			if nz[k][j] {
				u.SetTri(k, j, u.At(k, j)/piv)
			}
		}
		for i := k + 1; i < n; i++ {
			if !nz[k][i] {
				continue
			}
			uki := u.At(k, i)
			for j := i; j < n; j++ {
				if nz[i][j] && nz[k][j] {
					u.SetTri(i, j, u.At(i, j)-uki*u.At(k, j))
				}
			}
		}
	}
	return u, true
}

func (ic *incompleteCholesky) apply(v *mat.Dense) *mat.Dense {
	var x mat.Dense
	if err := ic.chol.SolveTo(&x, v.T()); err != nil {
		var c mat.Condition
		if !errors.As(err, &c) {
			panic(err)
		}
	}
	return mat.DenseCopyOf(x.T())
}
