// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// rotation returns exp([ω]×) in 3-D or the planar rotation by ω[0] in 2-D.
func rotation(omega []float64) *mat.Dense {
	if len(omega) == 1 {
		c, s := math.Cos(omega[0]), math.Sin(omega[0])
		return mat.NewDense(2, 2, []float64{c, -s, s, c})
	}
	theta := math.Sqrt(omega[0]*omega[0] + omega[1]*omega[1] + omega[2]*omega[2])
	r := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	if theta == 0 {
		return r
	}
	x, y, z := omega[0]/theta, omega[1]/theta, omega[2]/theta
	k := mat.NewDense(3, 3, []float64{
		0, -z, y,
		z, 0, -x,
		-y, x, 0,
	})
	var k2 mat.Dense
	k2.Mul(k, k)
	k.Scale(math.Sin(theta), k)
	k2.Scale(1-math.Cos(theta), &k2)
	r.Add(r, k)
	r.Add(r, &k2)
	return r
}

// graph is a noise-free pose graph with known ground truth.
type graph struct {
	n, d int
	ms   []Measurement
	rot  *mat.Dense // d×dn
	tr   *mat.Dense // d×n
}

// ringGraph builds n poses along a ring with odometry edges i→i+1, the
// closing edge n-1→0 and chords i→i+2.
func ringGraph(t testing.TB, n, d int, seed uint64) *graph {
	t.Helper()
	require.GreaterOrEqual(t, n, 3)
	rng := rand.New(rand.NewPCG(seed, 1))

	g := &graph{n: n, d: d, rot: mat.NewDense(d, d*n, nil), tr: mat.NewDense(d, n, nil)}
	for i := 0; i < n; i++ {
		omega := make([]float64, 1)
		if d == 3 {
			omega = make([]float64, 3)
		}
		for k := range omega {
			omega[k] = rng.Float64()*2 - 1
		}
		g.rot.Slice(0, d, i*d, (i+1)*d).(*mat.Dense).Copy(rotation(omega))
		for a := 0; a < d; a++ {
			g.tr.Set(a, i, 3*rng.Float64())
		}
	}

	edge := func(i, j int, kappa, tau float64) {
		ri := g.rot.Slice(0, d, i*d, (i+1)*d)
		rj := g.rot.Slice(0, d, j*d, (j+1)*d)
		var rij mat.Dense
		rij.Mul(ri.T(), rj)
		dt := mat.NewVecDense(d, nil)
		dt.SubVec(g.tr.ColView(j), g.tr.ColView(i))
		var tij mat.VecDense
		tij.MulVec(ri.T(), dt)
		g.ms = append(g.ms, Measurement{
			I: i, J: j, R: &rij,
			T:     append([]float64(nil), tij.RawVector().Data...),
			Kappa: kappa, Tau: tau,
		})
	}
	for i := 0; i < n; i++ {
		edge(i, (i+1)%n, 10, 5)
	}
	for i := 0; i+2 < n; i++ {
		edge(i, i+2, 4, 2)
	}
	return g
}

// iterate returns the ground truth as an iterate of p at its current rank.
func (g *graph) iterate(p *Problem) *mat.Dense {
	if p.Formulation() == Explicit {
		x := mat.NewDense(g.d, g.n+g.d*g.n, nil)
		x.Slice(0, g.d, 0, g.n).(*mat.Dense).Copy(g.tr)
		x.Slice(0, g.d, g.n, g.n+g.d*g.n).(*mat.Dense).Copy(g.rot)
		return p.lift(x)
	}
	return p.lift(g.rot)
}

func newProblem(t testing.TB, ms []Measurement, cfg Config) *Problem {
	t.Helper()
	p, err := New(ms, cfg)
	require.NoError(t, err)
	return p
}

// requireOnManifold checks that every rotation block of y has orthonormal columns.
func requireOnManifold(t testing.TB, p *Problem, y *mat.Dense, tol float64) {
	t.Helper()
	eye := mat.NewDiagDense(p.Dimension(), nil)
	for a := 0; a < p.Dimension(); a++ {
		eye.SetDiag(a, 1)
	}
	for i := 0; i < p.NumPoses(); i++ {
		var yty mat.Dense
		yty.Mul(p.block(y, i).T(), p.block(y, i))
		require.True(t, mat.EqualApprox(&yty, eye, tol), "block %d:\n%v", i, mat.Formatted(&yty))
	}
}

// randomTangent returns a unit-norm tangent vector at y.
func randomTangent(p *Problem, y *mat.Dense, seed uint64) *mat.Dense {
	rng := rand.New(rand.NewPCG(seed, 2))
	r, c := y.Dims()
	v := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v.Set(i, j, rng.NormFloat64())
		}
	}
	v = p.TangentProjection(y, v)
	v.Scale(1/math.Sqrt(Inner(v, v)), v)
	return v
}
