// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import (
	"gonum.org/v1/gonum/mat"
)

// RoundSolution maps a rank-r iterate to a feasible estimate x̂ = [t | R] of
// shape d×(n+dn):
//
//  1. keep the rank-d truncated SVD of y, R = Σ_d V_dᵀ;
//  2. if fewer than half of the rotation blocks have positive determinant,
//     reflect R by negating its last row;
//  3. project every block onto SO(d);
//  4. for the Simplified formulation, recover the optimal translations.
//
// The result is unique up to a global rotation.
func (p *Problem) RoundSolution(y *mat.Dense) *mat.Dense {
	d, n := p.d, p.n

	var svd mat.SVD
	if ok := svd.Factorize(y, mat.SVDThin); !ok {
		panic("problem: SVD of iterate failed")
	}
	var v mat.Dense
	svd.VTo(&v)
	sigma := svd.Values(nil)

	_, cols := y.Dims()
	x := mat.NewDense(d, cols, nil)
	x.Copy(v.Slice(0, cols, 0, d).T())
	for a := 0; a < d; a++ {
		row := x.Slice(a, a+1, 0, cols).(*mat.Dense)
		row.Scale(sigma[a], row)
	}

	positive := 0
	for i := 0; i < n; i++ {
		if mat.Det(p.block(x, i)) > 0 {
			positive++
		}
	}
	if positive < n/2 {
		row := x.Slice(d-1, d, 0, cols).(*mat.Dense)
		row.Scale(-1, row)
	}

	p.parallel(n, func(i int) {
		projectSO(p.block(x, i))
	})

	if p.form == Explicit {
		return x
	}
	return p.withTranslations(x)
}
