// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import (
	"gonum.org/v1/gonum/mat"
)

// Inner returns the Frobenius inner product tr(A Bᵀ). It is the Riemannian
// metric of the product of Stiefel manifolds embedded in R^{r×N}.
func Inner(a, b mat.Matrix) float64 {
	r, c := a.Dims()
	if br, bc := b.Dims(); br != r || bc != c {
		panic(mat.ErrShape)
	}
	s := 0.0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			s += a.At(i, j) * b.At(i, j)
		}
	}
	return s
}

// symmetrize replaces the square matrix a by ½(a + aᵀ).
func symmetrize(a *mat.Dense) {
	n, _ := a.Dims()
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := 0.5 * (a.At(i, j) + a.At(j, i))
			a.Set(i, j, v)
			a.Set(j, i, v)
		}
	}
}

// projectStiefel overwrites the r×d matrix a (r ≥ d) with its closest point
// on St(d,r), the polar factor U Vᵀ of a = U Σ Vᵀ.
func projectStiefel(a *mat.Dense) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	a.Mul(&u, v.T())
}

// projectSO overwrites the d×d matrix a with its closest rotation.
func projectSO(a *mat.Dense) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	if mat.Det(&u)*mat.Det(&v) < 0 {
		d, _ := u.Dims()
		for i := 0; i < d; i++ {
			u.Set(i, d-1, -u.At(i, d-1))
		}
	}
	a.Mul(&u, v.T())
}

// block returns the view of the i-th d-column rotation block of y.
func (p *Problem) block(y *mat.Dense, i int) *mat.Dense {
	rows, _ := y.Dims()
	off := p.rotOffset() + i*p.d
	return y.Slice(0, rows, off, off+p.d).(*mat.Dense)
}

func (p *Problem) rotOffset() int {
	if p.form == Explicit {
		return p.n
	}
	return 0
}

// TangentProjection projects v onto the tangent space at y. Rotation blocks
// become vᵢ - yᵢ sym(yᵢᵀ vᵢ); translation columns are left unchanged.
func (p *Problem) TangentProjection(y, v *mat.Dense) *mat.Dense {
	out := mat.DenseCopyOf(v)
	p.parallel(p.n, func(i int) {
		yi := p.block(y, i)
		var s, c mat.Dense
		s.Mul(yi.T(), p.block(v, i))
		symmetrize(&s)
		c.Mul(yi, &s)
		oi := p.block(out, i)
		oi.Sub(oi, &c)
	})
	return out
}

// symBlockDiagProduct returns the matrix whose i-th rotation block is
// aᵢ sym(bᵢᵀ cᵢ) and whose translation columns are zero.
func (p *Problem) symBlockDiagProduct(a, b, c *mat.Dense) *mat.Dense {
	rows, cols := a.Dims()
	out := mat.NewDense(rows, cols, nil)
	p.parallel(p.n, func(i int) {
		var s mat.Dense
		s.Mul(p.block(b, i).T(), p.block(c, i))
		symmetrize(&s)
		p.block(out, i).Mul(p.block(a, i), &s)
	})
	return out
}
