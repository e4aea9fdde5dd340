// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import "fmt"

// Formulation selects how translations enter the relaxation.
type Formulation int

const (
	// Simplified eliminates the translations analytically; Y ∈ St(d,r)ⁿ.
	Simplified Formulation = iota
	// Explicit keeps the translations as Euclidean variables; Y = [t | R].
	Explicit
)

// Factorization selects how the orthogonal projection Π of the Simplified
// formulation and the translation recovery are computed.
type Factorization int

const (
	// Cholesky factors the reduced translation Laplacian directly.
	Cholesky Factorization = iota
	// QR takes the triangular factor from a thin QR of the weighted incidence matrix.
	QR
)

// Preconditioner selects the preconditioner used inside truncated CG.
type Preconditioner int

const (
	NoPreconditioner Preconditioner = iota
	Jacobi
	IncompleteCholesky
)

// Config controls the construction of a Problem.
type Config struct {
	Formulation    Formulation
	Factorization  Factorization
	Preconditioner Preconditioner
	// NumThreads bounds the goroutines used by blockwise manifold operations.
	NumThreads int
	// Seed makes RandomSample and the Lanczos start vector reproducible.
	Seed uint64
}

var (
	formulationNames    = []string{"simplified", "explicit"}
	factorizationNames  = []string{"cholesky", "qr"}
	preconditionerNames = []string{"none", "jacobi", "incomplete_cholesky"}
)

func enumString(names []string, v int) string {
	if v < 0 || v >= len(names) {
		return fmt.Sprintf("unknown(%d)", v)
	}
	return names[v]
}

func enumParse(names []string, kind string, text []byte) (int, error) {
	for i, name := range names {
		if name == string(text) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("problem: unknown %s %q", kind, text)
}

func (f Formulation) String() string { return enumString(formulationNames, int(f)) }

func (f Formulation) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Formulation) UnmarshalText(text []byte) error {
	v, err := enumParse(formulationNames, "formulation", text)
	if err == nil {
		*f = Formulation(v)
	}
	return err
}

func (f Factorization) String() string { return enumString(factorizationNames, int(f)) }

func (f Factorization) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *Factorization) UnmarshalText(text []byte) error {
	v, err := enumParse(factorizationNames, "factorization", text)
	if err == nil {
		*f = Factorization(v)
	}
	return err
}

func (p Preconditioner) String() string { return enumString(preconditionerNames, int(p)) }

func (p Preconditioner) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Preconditioner) UnmarshalText(text []byte) error {
	v, err := enumParse(preconditionerNames, "preconditioner", text)
	if err == nil {
		*p = Preconditioner(v)
	}
	return err
}
