// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Measurement is a noisy relative pose observation of pose J taken from pose I:
//
//	R̃ᵢⱼ ≈ Rᵢᵀ Rⱼ,   t̃ᵢⱼ ≈ Rᵢᵀ (tⱼ - tᵢ)
//
// Kappa and Tau are the concentration of the rotational noise and the
// precision of the translational noise respectively.
type Measurement struct {
	I, J  int        // 0-based pose indices
	R     *mat.Dense // d×d relative rotation
	T     []float64  // d-vector relative translation
	Kappa float64
	Tau   float64
}

func (m *Measurement) validate(k, d int) error {
	if m.I < 0 || m.J < 0 || m.I == m.J {
		return fmt.Errorf("%w: measurement %d joins poses %d and %d", ErrBadMeasurement, k, m.I, m.J)
	}
	if !(m.Kappa > 0) || !(m.Tau > 0) || math.IsInf(m.Kappa, 0) || math.IsInf(m.Tau, 0) {
		return fmt.Errorf("%w: measurement %d has precisions κ=%g τ=%g", ErrBadMeasurement, k, m.Kappa, m.Tau)
	}
	if m.R == nil {
		return fmt.Errorf("%w: measurement %d has no rotation", ErrBadMeasurement, k)
	}
	if r, c := m.R.Dims(); r != d || c != d || len(m.T) != d {
		return fmt.Errorf("%w: measurement %d has R %d×%d and t of length %d, want d=%d", ErrDimensionMismatch, k, r, c, len(m.T), d)
	}
	for a := 0; a < d; a++ {
		if math.IsNaN(m.T[a]) || math.IsInf(m.T[a], 0) {
			return fmt.Errorf("%w: measurement %d has non-finite translation", ErrBadMeasurement, k)
		}
		for b := 0; b < d; b++ {
			if v := m.R.At(a, b); math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: measurement %d has non-finite rotation", ErrBadMeasurement, k)
			}
		}
	}
	return nil
}

// Dims validates the measurements and returns the number of poses n
// (one more than the largest index) and the pose dimension d.
func Dims(ms []Measurement) (n, d int, err error) {
	if len(ms) == 0 {
		return 0, 0, ErrNoMeasurements
	}
	if ms[0].R == nil {
		return 0, 0, fmt.Errorf("%w: measurement 0 has no rotation", ErrBadMeasurement)
	}
	if d, _ = ms[0].R.Dims(); d < 2 {
		return 0, 0, fmt.Errorf("%w: pose dimension %d", ErrDimensionMismatch, d)
	}
	for k := range ms {
		if err = ms[k].validate(k, d); err != nil {
			return 0, 0, err
		}
		n = max(n, ms[k].I+1, ms[k].J+1)
	}
	if !connected(ms, n) {
		return 0, 0, ErrDisconnected
	}
	return n, d, nil
}

// connected reports whether the undirected measurement graph spans all n poses.
func connected(ms []Measurement, n int) bool {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	find := func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	comps := n
	for _, m := range ms {
		if a, b := find(m.I), find(m.J); a != b {
			parent[a] = b
			comps--
		}
	}
	return comps == 1
}
