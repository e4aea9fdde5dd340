// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rtr

import (
	"bytes"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func frobenius(_, u, v *mat.Dense) float64 {
	return mat.Sum(mulElem(u, v))
}

func mulElem(a, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.MulElem(a, b)
	return &out
}

// sphereRayleigh minimizes x A xᵀ over unit row vectors x; the minimum is the
// smallest eigenvalue of A.
func sphereRayleigh(a *mat.SymDense) Problem {
	rayleigh := func(x *mat.Dense) float64 {
		var xa mat.Dense
		xa.Mul(x, a)
		return mat.Dot(xa.RowView(0), x.RowView(0))
	}
	project := func(x, v *mat.Dense) *mat.Dense {
		c := mat.Dot(x.RowView(0), v.RowView(0))
		out := mat.DenseCopyOf(v)
		addScaled(out, -c, x)
		return out
	}
	return Problem{
		Object: rayleigh,
		Model: func(x *mat.Dense) (*mat.Dense, LinearOperator) {
			f := rayleigh(x)
			var egrad mat.Dense
			egrad.Mul(x, a)
			egrad.Scale(2, &egrad)
			grad := project(x, &egrad)
			return grad, func(v *mat.Dense) *mat.Dense {
				var h mat.Dense
				h.Mul(v, a)
				h.Scale(2, &h)
				addScaled(&h, -2*f, v)
				return project(x, &h)
			}
		},
		Metric: frobenius,
		Retr: func(x, v *mat.Dense) *mat.Dense {
			var y mat.Dense
			y.Add(x, v)
			y.Scale(1/mat.Norm(&y, 2), &y)
			return &y
		},
	}
}

func testMatrix(n int) *mat.SymDense {
	a := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		a.SetSym(i, i, float64(i+1))
		if i+1 < n {
			a.SetSym(i, i+1, 0.5)
		}
	}
	return a
}

func TestSphereRayleigh(t *testing.T) {
	const n = 12
	a := testMatrix(n)
	var es mat.EigenSym
	require.True(t, es.Factorize(a, false))
	lmin := es.Values(nil)[0]

	var observed []Iterate
	p := sphereRayleigh(a)
	p.Observe = func(it Iterate) { observed = append(observed, it) }
	p.Stop = Termination{
		MaxIterations:     100,
		MaxTPCGIterations: 100,
		GradientTolerance: 1e-9,
		StepsizeTolerance: 1e-13,
	}

	f, _ := os.Open(os.DevNull)
	defer f.Close()
	s, err := p.New(&Logger{Level: LogTrace, Msg: f})
	require.NoError(t, err)

	x0 := mat.NewDense(1, n, nil)
	for j := 0; j < n; j++ {
		x0.Set(0, j, 1/math.Sqrt(n))
	}
	r := s.Fit(x0)

	require.True(t, r.OK, r.Status.String())
	assert.Contains(t, []Status{GradientNorm, Stepsize}, r.Status)
	assert.InDelta(t, lmin, r.F, 1e-10)
	assert.LessOrEqual(t, r.GradNorm, 1e-6)
	assert.InDelta(t, 1, mat.Norm(r.X, 2), 1e-12)
	assert.Equal(t, 1/math.Sqrt(n), x0.At(0, 0), "x0 is left untouched")

	// traces start at x₀ and have one entry per iteration
	require.Len(t, r.Objectives, r.NumIter+1)
	require.Len(t, r.GradNorms, r.NumIter+1)
	require.Len(t, r.Times, r.NumIter+1)
	for k := 1; k < len(r.Objectives); k++ {
		assert.LessOrEqual(t, r.Objectives[k], r.Objectives[k-1])
		assert.GreaterOrEqual(t, r.Times[k], r.Times[k-1])
	}
	require.Len(t, observed, r.NumIter+1)
	assert.Equal(t, 0, observed[0].Iter)
	assert.True(t, observed[0].Accepted)
	assert.Equal(t, r.NumIter, observed[len(observed)-1].Iter)
	assert.Positive(t, r.NumHessVec)
}

// quadratic minimizes ½ x A xᵀ - x bᵀ over row vectors.
func quadratic(a *mat.SymDense, b *mat.Dense) Problem {
	return Problem{
		Object: func(x *mat.Dense) float64 {
			var xa mat.Dense
			xa.Mul(x, a)
			return 0.5*mat.Dot(xa.RowView(0), x.RowView(0)) - mat.Dot(b.RowView(0), x.RowView(0))
		},
		Model: func(x *mat.Dense) (*mat.Dense, LinearOperator) {
			var g mat.Dense
			g.Mul(x, a)
			g.Sub(&g, b)
			return &g, func(v *mat.Dense) *mat.Dense {
				var h mat.Dense
				h.Mul(v, a)
				return &h
			}
		},
		Metric: frobenius,
		Retr: func(x, v *mat.Dense) *mat.Dense {
			var y mat.Dense
			y.Add(x, v)
			return &y
		},
	}
}

func TestPreconditionedQuadratic(t *testing.T) {
	const n = 20
	a := mat.NewSymDense(n, nil)
	b := mat.NewDense(1, n, nil)
	for i := 0; i < n; i++ {
		a.SetSym(i, i, math.Pow(10, float64(i%5)))
		if i+1 < n {
			a.SetSym(i, i+1, 0.1)
		}
		b.Set(0, i, float64(i%3)-1)
	}

	jacobi := func(_, v *mat.Dense) *mat.Dense {
		out := mat.DenseCopyOf(v)
		for j := 0; j < n; j++ {
			out.Set(0, j, out.At(0, j)/a.At(j, j))
		}
		return out
	}

	for _, tc := range []struct {
		name   string
		precon Preconditioner
		status Status
	}{
		{"identity", nil, GradientNorm},
		{"jacobi", jacobi, PreconditionedGradientNorm},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := quadratic(a, b)
			p.Precon = tc.precon
			p.Region = &TrustRegion{Delta0: 10, Alpha1: .05, Alpha2: .9, Beta1: .25, Beta2: 2.5, Kappa: .1, Theta: 1}
			p.Stop = Termination{
				MaxIterations:     200,
				MaxTPCGIterations: 200,
			}
			if tc.precon != nil {
				p.Stop.PreconditionedGradientTolerance = 1e-7
			} else {
				p.Stop.GradientTolerance = 1e-6
			}
			s, err := p.New(nil)
			require.NoError(t, err)
			r := s.Fit(mat.NewDense(1, n, nil))
			require.Equal(t, tc.status, r.Status)

			var ax mat.Dense
			ax.Mul(r.X, a)
			assert.True(t, mat.EqualApprox(&ax, b, 1e-5), "A x = b")
		})
	}
}

func TestRosenbrock(t *testing.T) {
	rosen := func(x *mat.Dense) float64 {
		u, v := x.At(0, 0), x.At(0, 1)
		return (1-u)*(1-u) + 100*(v-u*u)*(v-u*u)
	}
	p := Problem{
		Object: rosen,
		Model: func(x *mat.Dense) (*mat.Dense, LinearOperator) {
			u, v := x.At(0, 0), x.At(0, 1)
			g := mat.NewDense(1, 2, []float64{
				-2*(1-u) - 400*u*(v-u*u),
				200 * (v - u*u),
			})
			h := mat.NewDense(2, 2, []float64{
				2 - 400*(v-u*u) + 800*u*u, -400 * u,
				-400 * u, 200,
			})
			return g, func(d *mat.Dense) *mat.Dense {
				var hd mat.Dense
				hd.Mul(d, h)
				return &hd
			}
		},
		Metric: frobenius,
		Retr: func(x, v *mat.Dense) *mat.Dense {
			var y mat.Dense
			y.Add(x, v)
			return &y
		},
		Stop: Termination{
			MaxIterations:     500,
			MaxTPCGIterations: 10,
			GradientTolerance: 1e-6,
		},
	}

	var buf bytes.Buffer
	s, err := p.New(&Logger{Level: LogIter, Msg: &buf})
	require.NoError(t, err)
	r := s.Fit(mat.NewDense(1, 2, []float64{-1.2, 1}))

	require.Equal(t, GradientNorm, r.Status)
	assert.InDelta(t, 1, r.X.At(0, 0), 1e-5)
	assert.InDelta(t, 1, r.X.At(0, 1), 1e-5)
	assert.Contains(t, buf.String(), "CONVERGENCE: NORM_OF_GRADIENT_<=_GRADTOL")
	assert.Contains(t, buf.String(), "Iter     0")
}

func TestStoppingRules(t *testing.T) {
	a := testMatrix(8)
	x0 := func() *mat.Dense {
		x := mat.NewDense(1, 8, nil)
		x.Set(0, 7, 0.6)
		x.Set(0, 6, 0.8)
		return x
	}

	t.Run("iteration limit", func(t *testing.T) {
		p := sphereRayleigh(a)
		p.Stop = Termination{MaxIterations: 1, MaxTPCGIterations: 1}
		s, err := p.New(nil)
		require.NoError(t, err)
		r := s.Fit(x0())
		assert.Equal(t, IterationLimit, r.Status)
		assert.False(t, r.OK)
		assert.Equal(t, 1, r.NumIter)
	})

	t.Run("relative decrease", func(t *testing.T) {
		p := sphereRayleigh(a)
		p.Stop = Termination{MaxIterations: 100, MaxTPCGIterations: 100, RelativeDecreaseTolerance: 0.5}
		s, err := p.New(nil)
		require.NoError(t, err)
		r := s.Fit(x0())
		assert.Equal(t, RelativeDecrease, r.Status)
		assert.True(t, r.OK)
	})

	t.Run("stepsize", func(t *testing.T) {
		p := sphereRayleigh(a)
		p.Stop = Termination{MaxIterations: 100, MaxTPCGIterations: 100, StepsizeTolerance: 10}
		s, err := p.New(nil)
		require.NoError(t, err)
		r := s.Fit(x0())
		assert.Equal(t, Stepsize, r.Status)
		assert.Equal(t, 1, r.NumIter)
	})

	t.Run("evaluation panic", func(t *testing.T) {
		p := sphereRayleigh(a)
		calls := 0
		object := p.Object
		p.Object = func(x *mat.Dense) float64 {
			if calls++; calls > 2 {
				panic("boom")
			}
			return object(x)
		}
		p.Stop = Termination{MaxIterations: 100, MaxTPCGIterations: 100}
		s, err := p.New(nil)
		require.NoError(t, err)
		r := s.Fit(x0())
		assert.Equal(t, EvalPanic, r.Status)
		assert.False(t, r.OK)
	})
}

func TestNewErrors(t *testing.T) {
	valid := func() Problem {
		p := sphereRayleigh(testMatrix(3))
		p.Stop = Termination{MaxIterations: 10, MaxTPCGIterations: 10}
		return p
	}
	for name, mutate := range map[string]func(p *Problem){
		"no objective":  func(p *Problem) { p.Object = nil },
		"no model":      func(p *Problem) { p.Model = nil },
		"no metric":     func(p *Problem) { p.Metric = nil },
		"no retraction": func(p *Problem) { p.Retr = nil },
		"no iterations": func(p *Problem) { p.Stop.MaxIterations = 0 },
		"no tcg":        func(p *Problem) { p.Stop.MaxTPCGIterations = 0 },
		"negative tol":  func(p *Problem) { p.Stop.GradientTolerance = -1 },
		"bad radius":    func(p *Problem) { p.Region = &TrustRegion{Delta0: 0, Alpha1: .05, Alpha2: .9, Beta1: .25, Beta2: 2.5, Kappa: .1, Theta: .5} },
		"bad alpha":     func(p *Problem) { p.Region = &TrustRegion{Delta0: 1, Alpha1: .9, Alpha2: .05, Beta1: .25, Beta2: 2.5, Kappa: .1, Theta: .5} },
		"bad beta":      func(p *Problem) { p.Region = &TrustRegion{Delta0: 1, Alpha1: .05, Alpha2: .9, Beta1: 2, Beta2: 2.5, Kappa: .1, Theta: .5} },
	} {
		t.Run(name, func(t *testing.T) {
			p := valid()
			mutate(&p)
			_, err := p.New(nil)
			assert.Error(t, err)
		})
	}
	p := valid()
	_, err := p.New(nil)
	assert.NoError(t, err)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "GRADIENT_NORM", GradientNorm.String())
	assert.Equal(t, "ITERATION_LIMIT", IterationLimit.String())
	assert.Equal(t, "UNKNOWN", Status(42).String())
	assert.Equal(t, "negative curvature", tcgNegativeCurvature.String())
}

func TestFormatDuration(t *testing.T) {
	for d, want := range map[time.Duration]string{
		0:                       "0.00 ns",
		750 * time.Nanosecond:   "750.00 ns",
		1500 * time.Nanosecond:  "1.50 µs",
		2500 * time.Microsecond: "2.50 ms",
		3 * time.Second:         "3.00 s",
	} {
		assert.Equal(t, want, FormatDuration(d))
	}

	var sw Stopwatch
	sw.Reset()
	assert.GreaterOrEqual(t, sw.Elapsed(), time.Duration(0))
}
