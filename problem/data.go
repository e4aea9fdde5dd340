// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// dataMatrices holds the quantities assembled once from the measurements.
//
// With m measurements over n poses in dimension d:
//   - lrho  dn×dn        rotation connection Laplacian L(G̃ρ)
//   - tw    m×dn         Ω^½ T where row e of T holds -t̃ₑᵀ in the block of its tail pose
//   - aw    (n-1)×m      A Ω^½ where A is the incidence matrix with the last pose removed
//   - b     (n-1)×dn     A Ω T, used to recover translations
//   - lred  Cholesky factor of the reduced translation Laplacian A Ω Aᵀ
type dataMatrices struct {
	n, d, m int

	lrho *mat.SymDense
	tw   *mat.Dense
	aw   *mat.Dense
	b    *mat.Dense
	lred mat.Cholesky
}

func assemble(ms []Measurement, n, d int, fact Factorization) (*dataMatrices, error) {
	dm := &dataMatrices{n: n, d: d, m: len(ms)}
	dm.lrho = rotationLaplacian(ms, n, d)

	dm.tw = mat.NewDense(dm.m, d*n, nil)
	dm.aw = mat.NewDense(n-1, dm.m, nil)
	for e, meas := range ms {
		s := math.Sqrt(meas.Tau)
		for a := 0; a < d; a++ {
			dm.tw.Set(e, meas.I*d+a, -s*meas.T[a])
		}
		if meas.I < n-1 {
			dm.aw.Set(meas.I, e, -s)
		}
		if meas.J < n-1 {
			dm.aw.Set(meas.J, e, s)
		}
	}

	if err := dm.factorReduced(fact); err != nil {
		return nil, err
	}
	dm.b = mat.NewDense(n-1, d*n, nil)
	dm.b.Mul(dm.aw, dm.tw)
	return dm, nil
}

func rotationLaplacian(ms []Measurement, n, d int) *mat.SymDense {
	l := mat.NewSymDense(d*n, nil)
	for _, e := range ms {
		i, j := e.I*d, e.J*d
		for a := 0; a < d; a++ {
			l.SetSym(i+a, i+a, l.At(i+a, i+a)+e.Kappa)
			l.SetSym(j+a, j+a, l.At(j+a, j+a)+e.Kappa)
			for b := 0; b < d; b++ {
				l.SetSym(i+a, j+b, l.At(i+a, j+b)-e.Kappa*e.R.At(a, b))
			}
		}
	}
	return l
}

// factorReduced factors A Ω Aᵀ. The QR route factors (AΩ^½)ᵀ = QR and uses R,
// with its rows signed to a positive diagonal, as the Cholesky factor; it
// never forms the normal matrix.
func (dm *dataMatrices) factorReduced(fact Factorization) error {
	k := dm.n - 1
	switch fact {
	case QR:
		var qr mat.QR
		qr.Factorize(dm.aw.T())
		var rf mat.Dense
		qr.RTo(&rf)
		u := mat.NewTriDense(k, mat.Upper, nil)
		for i := 0; i < k; i++ {
			sign := 1.0
			if rf.At(i, i) < 0 {
				sign = -1
			}
			if rf.At(i, i) == 0 {
				return ErrDisconnected
			}
			for j := i; j < k; j++ {
				u.SetTri(i, j, sign*rf.At(i, j))
			}
		}
		dm.lred.SetFromU(u)
	default:
		lap := mat.NewSymDense(k, nil)
		lap.SymOuterK(1, dm.aw)
		if ok := dm.lred.Factorize(lap); !ok {
			return ErrDisconnected
		}
	}
	return nil
}

// simplifiedQ returns Q = L(G̃ρ) + TᵀΩ^½ Π Ω^½T where Π projects onto the
// orthogonal complement of the row space of AΩ^½.
func (dm *dataMatrices) simplifiedQ() *mat.SymDense {
	dn := dm.d * dm.n
	var x, c mat.Dense
	dm.solveReduced(&x, dm.b)
	c.Mul(dm.aw.T(), &x)
	pw := mat.DenseCopyOf(dm.tw)
	pw.Sub(pw, &c)
	var w mat.Dense
	w.Mul(dm.tw.T(), pw)

	q := mat.NewSymDense(dn, nil)
	for i := 0; i < dn; i++ {
		for j := i; j < dn; j++ {
			q.SetSym(i, j, dm.lrho.At(i, j)+0.5*(w.At(i, j)+w.At(j, i)))
		}
	}
	return q
}

// explicitM returns the (n+dn)×(n+dn) matrix M with F(t,R) = tr([t R] M [t R]ᵀ).
// Each measurement contributes τ bbᵀ + κ blocks of L(G̃ρ), where
// [t R] b = tⱼ - tᵢ - Rᵢ t̃ᵢⱼ.
func explicitM(ms []Measurement, dm *dataMatrices) *mat.SymDense {
	n, d := dm.n, dm.d
	m := mat.NewSymDense(n+d*n, nil)
	for i := 0; i < d*n; i++ {
		for j := i; j < d*n; j++ {
			m.SetSym(n+i, n+j, dm.lrho.At(i, j))
		}
	}
	b := make([]float64, 0, d+2)
	idx := make([]int, 0, d+2)
	for _, e := range ms {
		b, idx = b[:0], idx[:0]
		b, idx = append(b, -1, 1), append(idx, e.I, e.J)
		for a := 0; a < d; a++ {
			b, idx = append(b, -e.T[a]), append(idx, n+e.I*d+a)
		}
		for p := range b {
			for q := p; q < len(b); q++ {
				i, j := idx[p], idx[q]
				m.SetSym(i, j, m.At(i, j)+e.Tau*b[p]*b[q])
			}
		}
	}
	return m
}

// translations returns the d×n translations minimizing the translational
// error for fixed rotations r (d×dn), with the last pose at the origin.
func (dm *dataMatrices) translations(r mat.Matrix) *mat.Dense {
	t := mat.NewDense(dm.d, dm.n, nil)
	var rhs, x mat.Dense
	rhs.Mul(dm.b, r.T())
	dm.solveReduced(&x, &rhs)
	for i := 0; i < dm.n-1; i++ {
		for a := 0; a < dm.d; a++ {
			t.Set(a, i, -x.At(i, a))
		}
	}
	return t
}

// solveReduced applies (AΩAᵀ)⁻¹ to b. An ill-conditioned factor is reported
// by gonum as a mat.Condition error alongside a usable solution.
func (dm *dataMatrices) solveReduced(dst *mat.Dense, b mat.Matrix) {
	if err := dm.lred.SolveTo(dst, b); err != nil {
		var c mat.Condition
		if !errors.As(err, &c) {
			panic(err)
		}
	}
}
