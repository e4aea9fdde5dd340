// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesync

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/sesync/problem"
	"github.com/curioloop/sesync/synth"
)

// testOptions tightens the trust-region tolerances so every level ends
// close to a critical point.
func testOptions() Options {
	opts := DefaultOptions()
	opts.GradNormTol = 1e-7
	opts.RelFuncDecreaseTol = 0
	opts.StepsizeTol = 1e-12
	opts.Preconditioner = problem.NoPreconditioner
	return opts
}

func planar(theta float64) *mat.Dense {
	c, s := math.Cos(theta), math.Sin(theta)
	return mat.NewDense(2, 2, []float64{c, -s, s, c})
}

// triangle is a noise-free planar loop of three poses at the origin with
// unit precisions.
type triangle struct {
	rot []*mat.Dense
	ms  []problem.Measurement
}

func newTriangle() *triangle {
	tri := &triangle{rot: []*mat.Dense{planar(0.3), planar(1.1), planar(-0.7)}}
	for _, e := range [][2]int{{0, 1}, {1, 2}, {2, 0}} {
		var rij mat.Dense
		rij.Mul(tri.rot[e[0]].T(), tri.rot[e[1]])
		tri.ms = append(tri.ms, problem.Measurement{
			I: e[0], J: e[1],
			R:     &rij,
			T:     []float64{0, 0},
			Kappa: 1,
			Tau:   1,
		})
	}
	return tri
}

// reflected returns the rank-2 iterate [R₁ R₂ R₃·diag(1,-1)]. It is a
// critical point with F = 8 whose third block is a reflection, so it is
// not optimal for the relaxation.
func (tri *triangle) reflected() *mat.Dense {
	y := mat.NewDense(2, 6, nil)
	for i, r := range tri.rot {
		y.Slice(0, 2, 2*i, 2*i+2).(*mat.Dense).Copy(r)
	}
	flip := mat.NewDiagDense(2, []float64{1, -1})
	var r3 mat.Dense
	r3.Mul(tri.rot[2], flip)
	y.Slice(0, 2, 4, 6).(*mat.Dense).Copy(&r3)
	return y
}

func (tri *triangle) problem(t testing.TB) *problem.Problem {
	t.Helper()
	p, err := problem.New(tri.ms, problem.Config{NumThreads: 1})
	require.NoError(t, err)
	return p
}

// noiseFree generates a noise-free 3-D ring.
func noiseFree(t testing.TB) *synth.Graph {
	t.Helper()
	cfg := synth.DefaultConfig()
	cfg.Poses, cfg.LoopClosures = 12, 6
	cfg.Radius, cfg.Wobble = 2, 0.4
	cfg.RotationNoise, cfg.TranslationNoise = 0, 0
	cfg.Kappa, cfg.Tau = 10, 1
	g, err := synth.Generate(cfg)
	require.NoError(t, err)
	return g
}

// requireGaugeEqual checks that the rotations of the d×(n+dn) estimates x
// and want agree up to a global rotation, by comparing relative rotations.
func requireGaugeEqual(t *testing.T, want, x *mat.Dense, n int, tol float64) {
	t.Helper()
	d, _ := want.Dims()
	block := func(m *mat.Dense, i int) mat.Matrix {
		return m.Slice(0, d, n+i*d, n+(i+1)*d)
	}
	for i := 1; i < n; i++ {
		var a, b mat.Dense
		a.Mul(block(want, 0).T(), block(want, i))
		b.Mul(block(x, 0).T(), block(x, i))
		require.True(t, mat.EqualApprox(&a, &b, tol), "pose %d:\n%v\n%v", i, mat.Formatted(&a), mat.Formatted(&b))
	}
}

// requireTraces checks the per-level bookkeeping shared by every run.
func requireTraces(t *testing.T, res *Result, opts Options) {
	t.Helper()
	levels := len(res.Ranks)
	require.Positive(t, levels)
	require.Len(t, res.FunctionValues, levels)
	require.Len(t, res.GradientNorms, levels)
	require.Len(t, res.ElapsedOptimizationTimes, levels)
	require.Len(t, res.MinimumEigenvalueTimes, len(res.MinimumEigenvalues))
	require.LessOrEqual(t, len(res.MinimumEigenvalues), levels)

	for k, r := range res.Ranks {
		assert.GreaterOrEqual(t, r, opts.R0)
		assert.LessOrEqual(t, r, opts.RMax)
		if k > 0 {
			assert.Equal(t, res.Ranks[k-1]+1, r)
		}
		fs := res.FunctionValues[k]
		require.NotEmpty(t, fs)
		for j := 1; j < len(fs); j++ {
			assert.LessOrEqual(t, fs[j], fs[j-1], "level %d iteration %d", k, j)
		}
		if k > 0 {
			prev := res.FunctionValues[k-1]
			assert.LessOrEqual(t, fs[len(fs)-1], prev[len(prev)-1], "level %d", k)
		}
	}

	rows, _ := res.Yopt.Dims()
	assert.Equal(t, res.Ranks[levels-1], rows)
	assert.GreaterOrEqual(t, res.TotalTime, res.InitializationTime)
	require.NotNil(t, res.Xhat)

	if res.Status == GlobalOpt {
		assert.Greater(t, res.LambdaMin, -opts.MinEigNumTol)
		assert.Equal(t, res.LambdaMin, res.MinimumEigenvalues[len(res.MinimumEigenvalues)-1])
	}
}
