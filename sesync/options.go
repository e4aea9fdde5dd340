// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesync

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/curioloop/sesync/problem"
)

// Initialization selects how the first iterate is produced when none is given.
type Initialization int

const (
	// Chordal solves the chordal relaxation of rotation synchronization.
	Chordal Initialization = iota
	// Random samples a point of the rank-r0 domain.
	Random
)

var initializationNames = []string{"chordal", "random"}

func (i Initialization) String() string {
	if i < 0 || int(i) >= len(initializationNames) {
		return fmt.Sprintf("unknown(%d)", int(i))
	}
	return initializationNames[i]
}

func (i Initialization) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *Initialization) UnmarshalText(text []byte) error {
	for k, name := range initializationNames {
		if name == string(text) {
			*i = Initialization(k)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown initialization %q", ErrInvalidOptions, text)
}

// Options configures the Riemannian Staircase.
type Options struct {
	// Staircase
	R0   int `yaml:"r0" json:"r0"`
	RMax int `yaml:"rmax" json:"rmax"`

	// Minimum eigenvalue certificate
	NumLanczosVectors int     `yaml:"num_lanczos_vectors" json:"num_lanczos_vectors"`
	MaxEigIterations  int     `yaml:"max_eig_iterations" json:"max_eig_iterations"`
	MinEigNumTol      float64 `yaml:"min_eig_num_tol" json:"min_eig_num_tol"`

	// Riemannian trust-region
	GradNormTol        float64 `yaml:"grad_norm_tol" json:"grad_norm_tol"`
	RelFuncDecreaseTol float64 `yaml:"rel_func_decrease_tol" json:"rel_func_decrease_tol"`
	StepsizeTol        float64 `yaml:"stepsize_tol" json:"stepsize_tol"`
	MaxIterations      int     `yaml:"max_iterations" json:"max_iterations"`
	MaxTCGIterations   int     `yaml:"max_tcg_iterations" json:"max_tcg_iterations"`

	// Problem representation
	Formulation    problem.Formulation    `yaml:"formulation" json:"formulation"`
	Factorization  problem.Factorization  `yaml:"factorization" json:"factorization"`
	Initialization Initialization         `yaml:"initialization" json:"initialization"`
	Preconditioner problem.Preconditioner `yaml:"preconditioner" json:"preconditioner"`
	NumThreads     int                    `yaml:"num_threads" json:"num_threads"`
	Seed           uint64                 `yaml:"seed" json:"seed"`

	// Output
	LogIterates bool `yaml:"log_iterates" json:"log_iterates"`
	Verbose     bool `yaml:"verbose" json:"verbose"`
}

// DefaultOptions returns the default settings.
func DefaultOptions() Options {
	return Options{
		R0:                 5,
		RMax:               10,
		NumLanczosVectors:  20,
		MaxEigIterations:   10000,
		MinEigNumTol:       1e-5,
		GradNormTol:        1e-2,
		RelFuncDecreaseTol: 1e-5,
		StepsizeTol:        1e-3,
		MaxIterations:      1000,
		MaxTCGIterations:   10000,
		Formulation:        problem.Simplified,
		Factorization:      problem.Cholesky,
		Initialization:     Chordal,
		Preconditioner:     problem.IncompleteCholesky,
		NumThreads:         1,
	}
}

// Validate checks the options independently of any measurements. The
// relation between R0 and the pose dimension is checked by Run.
func (o Options) Validate() error {
	switch {
	case o.R0 < 1:
		return fmt.Errorf("%w: r0 must be >= 1, got %d", ErrInvalidOptions, o.R0)
	case o.RMax < o.R0:
		return fmt.Errorf("%w: rmax (%d) must be >= r0 (%d)", ErrInvalidOptions, o.RMax, o.R0)
	case o.NumLanczosVectors < 2:
		return fmt.Errorf("%w: num_lanczos_vectors must be >= 2", ErrInvalidOptions)
	case o.MaxEigIterations < 1:
		return fmt.Errorf("%w: max_eig_iterations must be >= 1", ErrInvalidOptions)
	case !(o.MinEigNumTol > 0):
		return fmt.Errorf("%w: min_eig_num_tol must be > 0", ErrInvalidOptions)
	case !(o.GradNormTol > 0):
		return fmt.Errorf("%w: grad_norm_tol must be > 0", ErrInvalidOptions)
	case o.RelFuncDecreaseTol < 0 || o.StepsizeTol < 0:
		return fmt.Errorf("%w: rel_func_decrease_tol and stepsize_tol must be >= 0", ErrInvalidOptions)
	case o.MaxIterations < 1 || o.MaxTCGIterations < 1:
		return fmt.Errorf("%w: max_iterations and max_tcg_iterations must be >= 1", ErrInvalidOptions)
	case o.Formulation != problem.Simplified && o.Formulation != problem.Explicit:
		return fmt.Errorf("%w: unknown formulation %v", ErrInvalidOptions, o.Formulation)
	case o.Factorization != problem.Cholesky && o.Factorization != problem.QR:
		return fmt.Errorf("%w: unknown factorization %v", ErrInvalidOptions, o.Factorization)
	case o.Initialization != Chordal && o.Initialization != Random:
		return fmt.Errorf("%w: unknown initialization %v", ErrInvalidOptions, o.Initialization)
	case o.Preconditioner < problem.NoPreconditioner || o.Preconditioner > problem.IncompleteCholesky:
		return fmt.Errorf("%w: unknown preconditioner %v", ErrInvalidOptions, o.Preconditioner)
	case o.NumThreads < 1:
		return fmt.Errorf("%w: num_threads must be >= 1", ErrInvalidOptions)
	}
	return nil
}

// LoadOptions loads options with priority: env > file > defaults.
// An empty path or a missing file leaves the defaults in place.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()

	if path != "" {
		if err := loadOptionsFile(path, &opts); err != nil {
			return opts, fmt.Errorf("load options file: %w", err)
		}
	}

	if err := loadOptionsFromEnv(&opts); err != nil {
		return opts, err
	}

	if err := opts.Validate(); err != nil {
		return opts, err
	}
	return opts, nil
}

func loadOptionsFile(path string, opts *Options) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := yaml.Unmarshal(data, opts); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return nil
}

// envPrefix prefixes every environment override, e.g. SESYNC_RMAX.
const envPrefix = "SESYNC_"

func loadOptionsFromEnv(opts *Options) error {
	ints := map[string]*int{
		"R0":                  &opts.R0,
		"RMAX":                &opts.RMax,
		"NUM_LANCZOS_VECTORS": &opts.NumLanczosVectors,
		"MAX_EIG_ITERATIONS":  &opts.MaxEigIterations,
		"MAX_ITERATIONS":      &opts.MaxIterations,
		"MAX_TCG_ITERATIONS":  &opts.MaxTCGIterations,
		"NUM_THREADS":         &opts.NumThreads,
	}
	for key, dst := range ints {
		if v := os.Getenv(envPrefix + key); v != "" {
			i, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q", ErrInvalidOptions, envPrefix, key, v)
			}
			*dst = i
		}
	}

	floats := map[string]*float64{
		"MIN_EIG_NUM_TOL":       &opts.MinEigNumTol,
		"GRAD_NORM_TOL":         &opts.GradNormTol,
		"REL_FUNC_DECREASE_TOL": &opts.RelFuncDecreaseTol,
		"STEPSIZE_TOL":          &opts.StepsizeTol,
	}
	for key, dst := range floats {
		if v := os.Getenv(envPrefix + key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q", ErrInvalidOptions, envPrefix, key, v)
			}
			*dst = f
		}
	}

	if v := os.Getenv(envPrefix + "SEED"); v != "" {
		s, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %sSEED=%q", ErrInvalidOptions, envPrefix, v)
		}
		opts.Seed = s
	}

	texts := map[string]interface{ UnmarshalText([]byte) error }{
		"FORMULATION":    &opts.Formulation,
		"FACTORIZATION":  &opts.Factorization,
		"INITIALIZATION": &opts.Initialization,
		"PRECONDITIONER": &opts.Preconditioner,
	}
	for key, dst := range texts {
		if v := os.Getenv(envPrefix + key); v != "" {
			if err := dst.UnmarshalText([]byte(v)); err != nil {
				return fmt.Errorf("%w: %s%s: %v", ErrInvalidOptions, envPrefix, key, err)
			}
		}
	}

	if v := os.Getenv(envPrefix + "LOG_ITERATES"); v != "" {
		opts.LogIterates = v == "true" || v == "1"
	}
	if v := os.Getenv(envPrefix + "VERBOSE"); v != "" {
		opts.Verbose = v == "true" || v == "1"
	}
	return nil
}
