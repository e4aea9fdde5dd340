// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import (
	"errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ChordalInitialization returns an r×N iterate built from the chordal
// relaxation of rotation synchronization: minimize tr(R L(G̃ρ) Rᵀ) with the
// first rotation fixed to the identity, project every block onto SO(d),
// recover translations for the Explicit formulation and zero pad to rank r.
func (p *Problem) ChordalInitialization() *mat.Dense {
	d, n := p.d, p.n
	k := d * (n - 1)
	lrho := p.data.lrho

	lrest := mat.NewSymDense(k, nil)
	rhs := mat.NewDense(k, d, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			lrest.SetSym(i, j, lrho.At(d+i, d+j))
		}
		for j := 0; j < d; j++ {
			rhs.Set(i, j, -lrho.At(d+i, j))
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(lrest); !ok {
		panic("problem: rotation Laplacian is not positive definite")
	}
	var x mat.Dense
	if err := chol.SolveTo(&x, rhs); err != nil {
		var c mat.Condition
		if !errors.As(err, &c) {
			panic(err)
		}
	}

	r := mat.NewDense(d, d*n, nil)
	for a := 0; a < d; a++ {
		r.Set(a, a, 1)
	}
	for i := 1; i < n; i++ {
		ri := r.Slice(0, d, i*d, (i+1)*d).(*mat.Dense)
		ri.Copy(x.Slice((i-1)*d, i*d, 0, d).T())
		projectSO(ri)
	}

	if p.form == Explicit {
		return p.lift(p.withTranslations(r))
	}
	return p.lift(r)
}

// RandomSample draws a point on the rank-r domain: Gaussian rotation blocks
// projected onto St(d,r) and, for the Explicit formulation, Gaussian
// translations.
func (p *Problem) RandomSample() *mat.Dense {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: p.src}
	y := mat.NewDense(p.r, p.Cols(), nil)
	rows, cols := y.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			y.Set(i, j, normal.Rand())
		}
	}
	p.parallel(p.n, func(i int) {
		projectStiefel(p.block(y, i))
	})
	return y
}

// withTranslations prepends the optimal translations for the d×dn rotations r.
func (p *Problem) withTranslations(r *mat.Dense) *mat.Dense {
	t := p.data.translations(r)
	x := mat.NewDense(p.d, p.n+p.d*p.n, nil)
	x.Slice(0, p.d, 0, p.n).(*mat.Dense).Copy(t)
	x.Slice(0, p.d, p.n, p.n+p.d*p.n).(*mat.Dense).Copy(r)
	return x
}
