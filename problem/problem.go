// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package problem implements the rank-restricted semidefinite relaxation of
// SE(d) pose-graph synchronization over a product of Stiefel manifolds:
//
//	minimize   F(Y) = tr(Y S Yᵀ)
//	subject to Yᵢᵀ Yᵢ = I_d  for every rotation block Yᵢ ∈ R^{r×d}
//
// where S is the data matrix Q (Simplified) or M (Explicit). A Problem
// evaluates the objective, its Euclidean and Riemannian derivatives,
// retracts onto the manifold, certifies critical points through the minimum
// eigenvalue of S - Λ(Y) and rounds relaxed solutions back to poses.
//
// # Reference:
//
//   - D.M. Rosen, L. Carlone, A.S. Bandeira, J.J. Leonard.
//     SE-Sync: A certifiably correct algorithm for synchronization over the special Euclidean group.
package problem

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// seedStream is the second PCG word; it only has to differ from typical seeds.
const seedStream = 0x5e5c

// Problem is an SE-Sync problem instance at a given relaxation rank.
// A Problem is not safe for concurrent use: SetRelaxationRank and
// RandomSample mutate it.
type Problem struct {
	n, d, r int
	form    Formulation
	data    *dataMatrices
	s       *mat.SymDense
	precon  preconditioner
	threads int
	seed    uint64
	src     *rand.PCG
}

// New assembles the data matrices for the measurements. The relaxation rank
// starts at d.
func New(ms []Measurement, cfg Config) (*Problem, error) {
	switch {
	case cfg.Formulation != Simplified && cfg.Formulation != Explicit:
		return nil, fmt.Errorf("problem: unknown formulation %d", cfg.Formulation)
	case cfg.Factorization != Cholesky && cfg.Factorization != QR:
		return nil, fmt.Errorf("problem: unknown factorization %d", cfg.Factorization)
	case cfg.Preconditioner < NoPreconditioner || cfg.Preconditioner > IncompleteCholesky:
		return nil, fmt.Errorf("problem: unknown preconditioner %d", cfg.Preconditioner)
	}

	n, d, err := Dims(ms)
	if err != nil {
		return nil, err
	}
	dm, err := assemble(ms, n, d, cfg.Factorization)
	if err != nil {
		return nil, err
	}

	p := &Problem{
		n: n, d: d, r: d,
		form:    cfg.Formulation,
		data:    dm,
		threads: max(cfg.NumThreads, 1),
		seed:    cfg.Seed,
		src:     rand.NewPCG(cfg.Seed, seedStream),
	}
	if p.form == Explicit {
		p.s = explicitM(ms, dm)
	} else {
		p.s = dm.simplifiedQ()
	}
	p.precon = newPreconditioner(cfg.Preconditioner, p.s)
	return p, nil
}

// NumPoses returns n.
func (p *Problem) NumPoses() int { return p.n }

// Dimension returns d.
func (p *Problem) Dimension() int { return p.d }

// Formulation returns the formulation the data matrix was built for.
func (p *Problem) Formulation() Formulation { return p.form }

// Cols returns the number of columns N of an iterate: dn, or n+dn for Explicit.
func (p *Problem) Cols() int { return p.rotOffset() + p.d*p.n }

// DataMatrix returns S, the N×N matrix of the quadratic objective.
func (p *Problem) DataMatrix() mat.Symmetric { return p.s }

// RelaxationRank returns the current rank r.
func (p *Problem) RelaxationRank() int { return p.r }

// SetRelaxationRank changes the working rank. It panics if r < d, since
// St(d,r) is empty there.
func (p *Problem) SetRelaxationRank(r int) {
	if r < p.d {
		panic(fmt.Sprintf("problem: relaxation rank %d is less than dimension %d", r, p.d))
	}
	p.r = r
}

// CheckIterate reports whether y has the r×N shape of the current rank.
func (p *Problem) CheckIterate(y mat.Matrix) error {
	if y == nil {
		return fmt.Errorf("%w: nil", ErrBadIterate)
	}
	if r, c := y.Dims(); r != p.r || c != p.Cols() {
		return fmt.Errorf("%w: got %d×%d, want %d×%d", ErrBadIterate, r, c, p.r, p.Cols())
	}
	return nil
}

// Objective returns F(Y) = tr(Y S Yᵀ). Y may have any number of rows, which
// lets the same call evaluate rounded d-row estimates.
func (p *Problem) Objective(y mat.Matrix) float64 {
	var ys mat.Dense
	ys.Mul(y, p.s)
	return Inner(&ys, y)
}

// EuclideanGradient returns ∇F(Y) = 2 Y S.
func (p *Problem) EuclideanGradient(y mat.Matrix) *mat.Dense {
	var g mat.Dense
	g.Mul(y, p.s)
	g.Scale(2, &g)
	return &g
}

// RiemannianGradient projects the Euclidean gradient nablaF onto the tangent
// space at y.
func (p *Problem) RiemannianGradient(y, nablaF *mat.Dense) *mat.Dense {
	return p.TangentProjection(y, nablaF)
}

// RiemannianGradientAt evaluates the Riemannian gradient at y from scratch.
func (p *Problem) RiemannianGradientAt(y *mat.Dense) *mat.Dense {
	return p.TangentProjection(y, p.EuclideanGradient(y))
}

// HessianVectorProduct returns the Riemannian Hessian of F at y applied to
// the tangent vector ydot:
//
//	Hess F(Y)[Ẏ] = Proj_Y(2 Ẏ S - Ẏ symblockdiag(Yᵀ ∇F(Y)))
func (p *Problem) HessianVectorProduct(y, nablaF, ydot *mat.Dense) *mat.Dense {
	var h mat.Dense
	h.Mul(ydot, p.s)
	h.Scale(2, &h)
	h.Sub(&h, p.symBlockDiagProduct(ydot, y, nablaF))
	return p.TangentProjection(y, &h)
}

// Retract maps the tangent vector v at y back onto the manifold: rotation
// blocks of y+v are replaced by their polar factors and translations move
// additively.
func (p *Problem) Retract(y, v *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Add(y, v)
	p.parallel(p.n, func(i int) {
		projectStiefel(p.block(&out, i))
	})
	return &out
}

// Precondition applies the inverse preconditioner to v and projects the
// result back onto the tangent space at y. With no preconditioner
// configured it only projects.
func (p *Problem) Precondition(y, v *mat.Dense) *mat.Dense {
	if p.precon == nil {
		return p.TangentProjection(y, v)
	}
	return p.TangentProjection(y, p.precon.apply(v))
}

// HasPreconditioner reports whether a preconditioner was configured.
func (p *Problem) HasPreconditioner() bool { return p.precon != nil }

// Lambda returns the d×d blocks Λᵢ = sym(Yᵢᵀ (Y S)ᵢ) of the Lagrange
// multiplier estimate at y.
func (p *Problem) Lambda(y *mat.Dense) []*mat.Dense {
	var ys mat.Dense
	ys.Mul(y, p.s)
	blocks := make([]*mat.Dense, p.n)
	p.parallel(p.n, func(i int) {
		var l mat.Dense
		l.Mul(p.block(y, i).T(), p.block(&ys, i))
		symmetrize(&l)
		blocks[i] = &l
	})
	return blocks
}

// Certificate returns the N×N matrix S - Λ(Y), where Λ(Y) is block diagonal
// over the rotation blocks and zero on translations.
func (p *Problem) Certificate(y *mat.Dense) *mat.SymDense {
	c := mat.NewSymDense(p.Cols(), nil)
	c.CopySym(p.s)
	off := p.rotOffset()
	for i, l := range p.Lambda(y) {
		o := off + i*p.d
		for a := 0; a < p.d; a++ {
			for b := a; b < p.d; b++ {
				c.SetSym(o+a, o+b, c.At(o+a, o+b)-l.At(a, b))
			}
		}
	}
	return c
}

// lift embeds the d-row matrix x into an r×N iterate by zero padding.
func (p *Problem) lift(x mat.Matrix) *mat.Dense {
	rows, cols := x.Dims()
	y := mat.NewDense(p.r, cols, nil)
	y.Slice(0, rows, 0, cols).(*mat.Dense).Copy(x)
	return y
}
