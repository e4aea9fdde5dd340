// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/curioloop/sesync/problem"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	require.NoError(t, opts.Validate())
	assert.Equal(t, 5, opts.R0)
	assert.Equal(t, 10, opts.RMax)
	assert.Equal(t, problem.Simplified, opts.Formulation)
	assert.Equal(t, problem.Cholesky, opts.Factorization)
	assert.Equal(t, Chordal, opts.Initialization)
	assert.Equal(t, problem.IncompleteCholesky, opts.Preconditioner)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Options)
	}{
		{"r0", func(o *Options) { o.R0 = 0 }},
		{"rmax", func(o *Options) { o.RMax = o.R0 - 1 }},
		{"lanczos vectors", func(o *Options) { o.NumLanczosVectors = 1 }},
		{"eig iterations", func(o *Options) { o.MaxEigIterations = 0 }},
		{"eig tolerance", func(o *Options) { o.MinEigNumTol = 0 }},
		{"gradient tolerance", func(o *Options) { o.GradNormTol = -1 }},
		{"decrease tolerance", func(o *Options) { o.RelFuncDecreaseTol = -1 }},
		{"iterations", func(o *Options) { o.MaxIterations = 0 }},
		{"tcg iterations", func(o *Options) { o.MaxTCGIterations = 0 }},
		{"formulation", func(o *Options) { o.Formulation = 7 }},
		{"factorization", func(o *Options) { o.Factorization = -1 }},
		{"initialization", func(o *Options) { o.Initialization = 2 }},
		{"preconditioner", func(o *Options) { o.Preconditioner = 3 }},
		{"threads", func(o *Options) { o.NumThreads = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)
			assert.ErrorIs(t, opts.Validate(), ErrInvalidOptions)
		})
	}
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadOptions(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		opts, err := LoadOptions(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultOptions(), opts)
	})

	t.Run("file", func(t *testing.T) {
		path := writeFile(t, `
r0: 3
rmax: 6
grad_norm_tol: 1.0e-4
formulation: explicit
factorization: qr
initialization: random
preconditioner: jacobi
num_threads: 4
log_iterates: true
`)
		opts, err := LoadOptions(path)
		require.NoError(t, err)
		assert.Equal(t, 3, opts.R0)
		assert.Equal(t, 6, opts.RMax)
		assert.Equal(t, 1e-4, opts.GradNormTol)
		assert.Equal(t, problem.Explicit, opts.Formulation)
		assert.Equal(t, problem.QR, opts.Factorization)
		assert.Equal(t, Random, opts.Initialization)
		assert.Equal(t, problem.Jacobi, opts.Preconditioner)
		assert.Equal(t, 4, opts.NumThreads)
		assert.True(t, opts.LogIterates)
		// Unset keys keep their defaults.
		assert.Equal(t, DefaultOptions().MaxEigIterations, opts.MaxEigIterations)
	})

	t.Run("env overrides file", func(t *testing.T) {
		path := writeFile(t, "r0: 3\nrmax: 6\nformulation: explicit\n")
		t.Setenv("SESYNC_RMAX", "8")
		t.Setenv("SESYNC_STEPSIZE_TOL", "1e-9")
		t.Setenv("SESYNC_FORMULATION", "simplified")
		t.Setenv("SESYNC_SEED", "42")
		t.Setenv("SESYNC_VERBOSE", "1")

		opts, err := LoadOptions(path)
		require.NoError(t, err)
		assert.Equal(t, 3, opts.R0)
		assert.Equal(t, 8, opts.RMax)
		assert.Equal(t, 1e-9, opts.StepsizeTol)
		assert.Equal(t, problem.Simplified, opts.Formulation)
		assert.Equal(t, uint64(42), opts.Seed)
		assert.True(t, opts.Verbose)
	})

	t.Run("bad env", func(t *testing.T) {
		t.Setenv("SESYNC_R0", "five")
		_, err := LoadOptions("")
		assert.ErrorIs(t, err, ErrInvalidOptions)
	})

	t.Run("bad enum", func(t *testing.T) {
		path := writeFile(t, "initialization: spectral\n")
		_, err := LoadOptions(path)
		assert.ErrorIs(t, err, ErrInvalidOptions)
	})

	t.Run("invalid result", func(t *testing.T) {
		path := writeFile(t, "r0: 6\nrmax: 4\n")
		_, err := LoadOptions(path)
		assert.ErrorIs(t, err, ErrInvalidOptions)
	})
}

func TestOptionsYAMLRoundTrip(t *testing.T) {
	out, err := yaml.Marshal(DefaultOptions())
	require.NoError(t, err)
	assert.Contains(t, string(out), "preconditioner: incomplete_cholesky")
	assert.Contains(t, string(out), "initialization: chordal")

	var back Options
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, DefaultOptions(), back)
}
