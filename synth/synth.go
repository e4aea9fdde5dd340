// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package synth generates synthetic SE(d) pose graphs with known ground
// truth. Poses travel once around a circle in the first coordinate plane;
// consecutive poses are joined by odometry edges and random pairs by loop
// closures. Measurements are corrupted by isotropic angle-axis rotation
// noise and Gaussian translation noise.
package synth

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/curioloop/sesync/problem"
)

// ErrInvalidConfig is returned by Generate for an unusable Config.
var ErrInvalidConfig = errors.New("synth: invalid config")

// Config describes a synthetic ring.
type Config struct {
	Poses        int     `yaml:"poses" json:"poses"`
	Dim          int     `yaml:"dim" json:"dim"`
	LoopClosures int     `yaml:"loop_closures" json:"loop_closures"`
	Radius       float64 `yaml:"radius" json:"radius"`
	// Wobble is the standard deviation in radians of a random attitude
	// perturbation applied to every ground truth pose.
	Wobble float64 `yaml:"wobble" json:"wobble"`
	// Standard deviations of the measurement noise.
	RotationNoise    float64 `yaml:"rotation_noise" json:"rotation_noise"`
	TranslationNoise float64 `yaml:"translation_noise" json:"translation_noise"`
	// Precisions reported with every measurement.
	Kappa float64 `yaml:"kappa" json:"kappa"`
	Tau   float64 `yaml:"tau" json:"tau"`
	Seed  uint64  `yaml:"seed" json:"seed"`
}

// DefaultConfig returns a small noisy 3-D ring.
func DefaultConfig() Config {
	return Config{
		Poses:            50,
		Dim:              3,
		LoopClosures:     25,
		Radius:           10,
		Wobble:           0.1,
		RotationNoise:    0.01,
		TranslationNoise: 0.05,
		Kappa:            1e3,
		Tau:              1e2,
		Seed:             1,
	}
}

func (c Config) validate() error {
	switch {
	case c.Poses < 3:
		return fmt.Errorf("%w: need at least 3 poses, got %d", ErrInvalidConfig, c.Poses)
	case c.Dim < 2:
		return fmt.Errorf("%w: dimension %d", ErrInvalidConfig, c.Dim)
	case c.LoopClosures < 0:
		return fmt.Errorf("%w: negative loop closure count", ErrInvalidConfig)
	case !(c.Radius > 0):
		return fmt.Errorf("%w: radius must be > 0", ErrInvalidConfig)
	case c.Wobble < 0 || c.RotationNoise < 0 || c.TranslationNoise < 0:
		return fmt.Errorf("%w: noise levels must be >= 0", ErrInvalidConfig)
	case !(c.Kappa > 0) || !(c.Tau > 0):
		return fmt.Errorf("%w: precisions must be > 0", ErrInvalidConfig)
	}
	return nil
}

// Graph is a generated pose graph together with its ground truth.
type Graph struct {
	Rotations    []*mat.Dense // d×d
	Translations [][]float64  // d
	Measurements []problem.Measurement
}

// Truth returns the ground truth as the d×(n+dn) matrix [t | R].
func (g *Graph) Truth() *mat.Dense {
	n := len(g.Rotations)
	d, _ := g.Rotations[0].Dims()
	x := mat.NewDense(d, n+d*n, nil)
	for i := 0; i < n; i++ {
		x.SetCol(i, g.Translations[i])
		x.Slice(0, d, n+i*d, n+(i+1)*d).(*mat.Dense).Copy(g.Rotations[i])
	}
	return x
}

// Generate builds the graph described by cfg. The same cfg always yields
// the same graph.
func Generate(cfg Config) (*Graph, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	n, d := cfg.Poses, cfg.Dim
	src := rand.NewPCG(cfg.Seed, 0x5717)
	rng := rand.New(src)
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	g := &Graph{
		Rotations:    make([]*mat.Dense, n),
		Translations: make([][]float64, n),
	}
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		var r mat.Dense
		r.Mul(planar(d, theta), noise(d, cfg.Wobble, normal))
		g.Rotations[i] = &r

		t := make([]float64, d)
		t[0], t[1] = cfg.Radius*math.Cos(theta), cfg.Radius*math.Sin(theta)
		g.Translations[i] = t
	}

	for i := 0; i < n; i++ {
		g.measure(i, (i+1)%n, cfg, normal)
	}

	seen := make(map[[2]int]bool, cfg.LoopClosures)
	for k := 0; k < cfg.LoopClosures; k++ {
		// Retry a bounded number of times; small rings have few free pairs.
		for attempt := 0; attempt < 16; attempt++ {
			i, j := rng.IntN(n), rng.IntN(n)
			if gap := (j - i + n) % n; gap <= 1 || gap == n-1 || seen[[2]int{i, j}] {
				continue
			}
			seen[[2]int{i, j}] = true
			g.measure(i, j, cfg, normal)
			break
		}
	}
	return g, nil
}

// measure appends a noisy observation of pose j from pose i.
func (g *Graph) measure(i, j int, cfg Config, normal distuv.Normal) {
	d := cfg.Dim
	ri, rj := g.Rotations[i], g.Rotations[j]

	var rel mat.Dense
	rel.Mul(ri.T(), rj)
	rij := mat.NewDense(d, d, nil)
	rij.Mul(&rel, noise(d, cfg.RotationNoise, normal))

	dt := mat.NewVecDense(d, nil)
	dt.SubVec(mat.NewVecDense(d, g.Translations[j]), mat.NewVecDense(d, g.Translations[i]))
	tij := mat.NewVecDense(d, nil)
	tij.MulVec(ri.T(), dt)
	t := make([]float64, d)
	for a := range t {
		t[a] = tij.AtVec(a) + cfg.TranslationNoise*normal.Rand()
	}

	g.Measurements = append(g.Measurements, problem.Measurement{
		I: i, J: j,
		R:     rij,
		T:     t,
		Kappa: cfg.Kappa,
		Tau:   cfg.Tau,
	})
}

// planar returns the rotation by theta in the plane of the first two axes.
func planar(d int, theta float64) *mat.Dense {
	r := mat.NewDense(d, d, nil)
	for a := 0; a < d; a++ {
		r.Set(a, a, 1)
	}
	c, s := math.Cos(theta), math.Sin(theta)
	r.Set(0, 0, c)
	r.Set(0, 1, -s)
	r.Set(1, 0, s)
	r.Set(1, 1, c)
	return r
}

// noise returns exp(Ω) for a skew-symmetric Ω whose independent entries are
// N(0, sigma²), an isotropic perturbation of the identity.
func noise(d int, sigma float64, normal distuv.Normal) *mat.Dense {
	omega := mat.NewDense(d, d, nil)
	if sigma > 0 {
		for a := 0; a < d; a++ {
			for b := a + 1; b < d; b++ {
				w := sigma * normal.Rand()
				omega.Set(a, b, -w)
				omega.Set(b, a, w)
			}
		}
	}
	var r mat.Dense
	r.Exp(omega)
	return &r
}
