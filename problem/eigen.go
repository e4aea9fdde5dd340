// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// breakdownTol is the relative size of a Lanczos residual below which the
// Krylov subspace is treated as invariant.
const breakdownTol = 1e-12

// MinEig computes the algebraically smallest eigenvalue of the certificate
// matrix S - Λ(Y) and a unit eigenvector for it. It reports whether the
// Ritz pair met the absolute residual test
//
//	‖(S - Λ)v - λv‖ ≤ tol
//
// within maxIters matrix-vector products, so a converged λ lies within tol
// of an eigenvalue of the certificate whatever its norm. numLanczos bounds
// the Krylov basis size between restarts. The start vector is drawn from
// the problem seed, so repeated calls on the same y agree.
func (p *Problem) MinEig(y *mat.Dense, tol float64, maxIters, numLanczos int) (lambda float64, v []float64, converged bool) {
	a := p.Certificate(y)
	n := a.SymmetricDim()

	rng := rand.New(rand.NewPCG(p.seed, seedStream+1))
	v0 := make([]float64, n)
	for i := range v0 {
		v0[i] = rng.NormFloat64()
	}
	return lanczosMinEig(a, v0, tol, maxIters, numLanczos)
}

// lanczosMinEig runs a thick-restarted Lanczos iteration with full
// reorthogonalization. Each cycle keeps the lowest half of the Ritz vectors
// and continues the Krylov expansion from the residual of the smallest one.
func lanczosMinEig(a mat.Symmetric, v0 []float64, tol float64, maxIters, numLanczos int) (theta float64, x []float64, ok bool) {
	n := a.SymmetricDim()
	m := min(max(numLanczos, 2), n)
	keep := max(m/2, 1)

	q := append([]float64(nil), v0...)
	if nrm := floats.Norm(q, 2); nrm > 0 {
		floats.Scale(1/nrm, q)
	} else {
		q[0] = 1
	}

	// basis is orthonormal and images[j] = A·basis[j].
	basis := make([][]float64, 0, m)
	images := make([][]float64, 0, m)
	scale := 0.0
	iters := 0
	theta = math.NaN()
	x = q

	for iters < maxIters {
		for q != nil && len(basis) < m && iters < maxIters {
			aq := make([]float64, n)
			mat.NewVecDense(n, aq).MulVec(a, mat.NewVecDense(n, q))
			iters++
			scale = max(scale, floats.Norm(aq, 2))
			basis = append(basis, q)
			images = append(images, aq)

			w := append([]float64(nil), aq...)
			orthogonalize(w, basis)
			bk := floats.Norm(w, 2)
			if bk <= breakdownTol*max(scale, 1) {
				q = nil
				break
			}
			floats.Scale(1/bk, w)
			q = w
		}

		k := len(basis)
		t := mat.NewSymDense(k, nil)
		for i := 0; i < k; i++ {
			for j := i; j < k; j++ {
				t.SetSym(i, j, 0.5*(floats.Dot(basis[i], images[j])+floats.Dot(basis[j], images[i])))
			}
		}
		var es mat.EigenSym
		if !es.Factorize(t, true) {
			return math.NaN(), x, false
		}
		vals := es.Values(nil)
		var vecs mat.Dense
		es.VectorsTo(&vecs)

		kept := min(keep, k)
		ritz := make([][]float64, kept)
		ritzImages := make([][]float64, kept)
		for i := 0; i < kept; i++ {
			ritz[i] = make([]float64, n)
			ritzImages[i] = make([]float64, n)
			for j := 0; j < k; j++ {
				floats.AddScaled(ritz[i], vecs.At(j, i), basis[j])
				floats.AddScaled(ritzImages[i], vecs.At(j, i), images[j])
			}
		}

		theta, x = vals[0], ritz[0]
		r := append([]float64(nil), ritzImages[0]...)
		floats.AddScaled(r, -theta, x)
		res := floats.Norm(r, 2)
		if res <= tol {
			return theta, x, true
		}
		if iters >= maxIters {
			break
		}

		// The residual is orthogonal to the current subspace; restarting
		// from it keeps the kept Ritz vectors and the expansion a Krylov space.
		basis = append(basis[:0], ritz...)
		images = append(images[:0], ritzImages...)
		orthogonalize(r, basis)
		floats.Scale(1/floats.Norm(r, 2), r)
		q = r
	}
	return theta, x, false
}

// orthogonalize removes from w its components along the orthonormal basis,
// with a second pass to recover the orthogonality lost to rounding.
func orthogonalize(w []float64, basis [][]float64) {
	for pass := 0; pass < 2; pass++ {
		for _, b := range basis {
			floats.AddScaled(w, -floats.Dot(w, b), b)
		}
	}
}
