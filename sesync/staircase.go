// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sesync certifiably solves SE(d) pose-graph synchronization with
// the Riemannian Staircase. The semidefinite relaxation of the maximum
// likelihood problem is solved through a sequence of rank-restricted
// problems of increasing rank r; every critical point found by the
// trust-region solver is certified by the minimum eigenvalue of S - Λ(Y).
// When the certificate fails the iterate is a saddle, which is escaped by
// a second order descent step into rank r+1.
//
// # Reference:
//
//   - D.M. Rosen, L. Carlone, A.S. Bandeira, J.J. Leonard.
//     SE-Sync: A certifiably correct algorithm for synchronization over the special Euclidean group.
//   - N. Boumal. A Riemannian low-rank method for optimization over semidefinite matrices with block-diagonal constraints.
package sesync

import (
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/sesync/problem"
	"github.com/curioloop/sesync/rtr"
)

// Problem is the rank-restricted relaxation the staircase climbs.
// *problem.Problem implements it.
type Problem interface {
	SaddleProblem

	NumPoses() int
	Dimension() int
	Cols() int
	Formulation() problem.Formulation

	RelaxationRank() int
	SetRelaxationRank(r int)
	CheckIterate(y mat.Matrix) error

	EuclideanGradient(y mat.Matrix) *mat.Dense
	RiemannianGradient(y, nablaF *mat.Dense) *mat.Dense
	HessianVectorProduct(y, nablaF, ydot *mat.Dense) *mat.Dense
	Precondition(y, v *mat.Dense) *mat.Dense
	HasPreconditioner() bool

	MinEig(y *mat.Dense, tol float64, maxIters, numLanczos int) (float64, []float64, bool)
	ChordalInitialization() *mat.Dense
	RandomSample() *mat.Dense
	RoundSolution(y *mat.Dense) *mat.Dense
}

// Run builds the problem for the measurements and runs the staircase from
// y0, or from the initialization selected in opts when y0 is nil.
func Run(ms []problem.Measurement, opts Options, y0 *mat.Dense) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	p, err := problem.New(ms, problem.Config{
		Formulation:    opts.Formulation,
		Factorization:  opts.Factorization,
		Preconditioner: opts.Preconditioner,
		NumThreads:     opts.NumThreads,
		Seed:           opts.Seed,
	})
	if err != nil {
		return nil, err
	}
	s, err := NewSolver(p, opts)
	if err != nil {
		return nil, err
	}
	return s.Run(y0)
}

// Solver runs the Riemannian Staircase on a single problem. A Solver is not
// safe for concurrent use since it changes the rank of its problem.
type Solver struct {
	p      Problem
	opts   Options
	escape EscapeFunc
	out    io.Writer
}

// NewSolver validates opts against p and sets p to rank R0.
func NewSolver(p Problem, opts Options) (*Solver, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if d := p.Dimension(); opts.R0 < d {
		return nil, fmt.Errorf("%w: r0=%d, d=%d", problem.ErrBadRank, opts.R0, d)
	}
	p.SetRelaxationRank(opts.R0)
	return &Solver{
		p:      p,
		opts:   opts,
		escape: EscapeSaddle,
		out:    os.Stdout,
	}, nil
}

// SetEscape replaces the saddle escape procedure.
func (s *Solver) SetEscape(fn EscapeFunc) {
	if fn == nil {
		fn = EscapeSaddle
	}
	s.escape = fn
}

// SetOutput sets the writer used when Options.Verbose is set.
func (s *Solver) SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	s.out = w
}

// phase is a state of the staircase.
type phase int

const (
	optimizing phase = iota
	certifying
	escaping
	done
)

// stairState holds what one phase hands to the next.
type stairState struct {
	y      *mat.Dense // starting point of the next optimization
	lambda float64
	v      []float64
}

// Run climbs the staircase from y0, which must be r0×N. A nil y0 is
// replaced by the configured initialization. Errors are only returned for
// a malformed y0 or a failed evaluation; every solver outcome is reported
// through Result.Status.
func (s *Solver) Run(y0 *mat.Dense) (*Result, error) {
	p, opts := s.p, s.opts
	log := s.logger()

	var total rtr.Stopwatch
	total.Reset()
	p.SetRelaxationRank(opts.R0)

	res := &Result{Status: RSIterLimit}
	s.printSettings(log)

	var initWatch rtr.Stopwatch
	initWatch.Reset()
	given := y0 != nil
	if !given {
		if opts.Initialization == Random {
			y0 = p.RandomSample()
		} else {
			y0 = p.ChordalInitialization()
		}
	} else if err := p.CheckIterate(y0); err != nil {
		return nil, fmt.Errorf("initial iterate: %w", err)
	}
	res.InitializationTime = initWatch.Elapsed()
	s.printInit(log, given, y0, res.InitializationTime)

	st := stairState{y: y0}
	for ph := optimizing; ph != done; {
		switch ph {
		case optimizing:
			if err := s.optimize(log, &st, res); err != nil {
				return nil, err
			}
			ph = certifying

		case certifying:
			ph = s.certify(log, &st, res)

		case escaping:
			ph = s.escapeSaddle(log, &st, res)
		}
	}

	s.printStatus(log, res.Status)

	log.log("\nRounding solution ... ")
	var round rtr.Stopwatch
	round.Reset()
	res.Xhat = p.RoundSolution(res.Yopt)
	log.log("elapsed computation time: %s\n", rtr.FormatDuration(round.Elapsed()))
	res.Fxhat = s.roundedObjective(res.Xhat)

	res.TotalTime = total.Elapsed()
	s.printExit(log, res)
	return res, nil
}

// optimize runs the trust-region solver at the current rank and appends the
// level traces.
func (s *Solver) optimize(log *logger, st *stairState, res *Result) error {
	p, opts := s.p, s.opts
	r := p.RelaxationRank()

	log.log("\n====== RIEMANNIAN STAIRCASE (level r = %d) ======\n\n", r)

	var iterates []*mat.Dense
	prob := rtr.Problem{
		Object: func(y *mat.Dense) float64 { return p.Objective(y) },
		Model: func(y *mat.Dense) (*mat.Dense, rtr.LinearOperator) {
			nablaF := p.EuclideanGradient(y)
			return p.RiemannianGradient(y, nablaF), func(v *mat.Dense) *mat.Dense {
				return p.HessianVectorProduct(y, nablaF, v)
			}
		},
		Metric: func(_, u, v *mat.Dense) float64 { return problem.Inner(u, v) },
		Retr:   p.Retract,
		Stop: rtr.Termination{
			MaxIterations:     opts.MaxIterations,
			MaxTPCGIterations: opts.MaxTCGIterations,
			GradientTolerance: opts.GradNormTol,
			// Only the plain gradient norm is a stopping rule.
			PreconditionedGradientTolerance: 0,
			RelativeDecreaseTolerance:       opts.RelFuncDecreaseTol,
			StepsizeTolerance:               opts.StepsizeTol,
		},
	}
	if p.HasPreconditioner() {
		prob.Precon = p.Precondition
	}
	if opts.LogIterates {
		prob.Observe = func(it rtr.Iterate) {
			if it.Accepted {
				iterates = append(iterates, mat.DenseCopyOf(it.X))
			}
		}
	}

	rtrLog := &rtr.Logger{Level: rtr.LogNoop, Msg: log.w}
	if opts.Verbose {
		rtrLog.Level = rtr.LogIter
	}
	optimizer, err := prob.New(rtrLog)
	if err != nil {
		// The callbacks are always set and the tolerances were validated.
		panic(err)
	}
	out := optimizer.Fit(st.y)
	if out.Status == rtr.EvalPanic {
		return fmt.Errorf("%w: rank %d optimization stopped with %s", ErrEvaluation, r, out.Status)
	}

	res.Yopt = out.X
	res.SDPVal = out.F
	g := p.RiemannianGradientAt(out.X)
	res.GradNorm = math.Sqrt(problem.Inner(g, g))
	res.Ranks = append(res.Ranks, r)
	res.FunctionValues = append(res.FunctionValues, out.Objectives)
	res.GradientNorms = append(res.GradientNorms, out.GradNorms)
	res.ElapsedOptimizationTimes = append(res.ElapsedOptimizationTimes, out.Times)
	if opts.LogIterates {
		res.Iterates = append(res.Iterates, iterates)
	}

	log.log("\nFound first-order critical point with value F(Y) = %.12g!  Elapsed computation time: %s (%s)\n",
		res.SDPVal, rtr.FormatDuration(out.Elapsed), out.Status)
	return nil
}

// certify computes the minimum eigenvalue of the certificate at Yopt.
func (s *Solver) certify(log *logger, st *stairState, res *Result) phase {
	p, opts := s.p, s.opts

	log.log("\nChecking second order optimality ...\n")
	var eig rtr.Stopwatch
	eig.Reset()
	lambda, v, ok := p.MinEig(res.Yopt, opts.MinEigNumTol, opts.MaxEigIterations, opts.NumLanczosVectors)
	elapsed := eig.Elapsed()
	if !ok {
		log.log("WARNING!  EIGENVALUE COMPUTATION DID NOT CONVERGE TO DESIRED PRECISION!\n")
		res.Status = EigImprecision
		return done
	}

	res.LambdaMin, res.VMin = lambda, v
	res.MinimumEigenvalues = append(res.MinimumEigenvalues, lambda)
	res.MinimumEigenvalueTimes = append(res.MinimumEigenvalueTimes, elapsed)

	if lambda > -opts.MinEigNumTol {
		log.log("Found second-order critical point! (minimum eigenvalue = %g). Elapsed computation time %s\n", lambda, rtr.FormatDuration(elapsed))
		res.Status = GlobalOpt
		return done
	}
	log.log("Saddle point detected (minimum eigenvalue = %g). Elapsed computation time %s\n", lambda, rtr.FormatDuration(elapsed))
	st.lambda, st.v = lambda, v
	return escaping
}

// escapeSaddle moves from the saddle at Yopt into the next rank. Beyond
// RMax the problem is returned to RMax, where Yopt lives.
func (s *Solver) escapeSaddle(log *logger, st *stairState, res *Result) phase {
	p, opts := s.p, s.opts
	r := p.RelaxationRank()

	log.log("Computing escape direction ...\n")
	p.SetRelaxationRank(r + 1)
	yPlus, ok := s.escape(p, res.Yopt, st.lambda, st.v, opts.GradNormTol)
	switch {
	case !ok:
		log.log("WARNING!  BACKTRACKING LINE SEARCH FAILED TO ESCAPE FROM SADDLE POINT!\n")
		p.SetRelaxationRank(r)
		res.Status = SaddlePoint
		return done
	case r+1 > opts.RMax:
		p.SetRelaxationRank(r)
		res.Status = RSIterLimit
		return done
	}
	st.y = yPlus
	return optimizing
}

// roundedObjective evaluates F at the rotation part of x̂ for the Simplified
// formulation and at all of x̂ for the Explicit one.
func (s *Solver) roundedObjective(xhat *mat.Dense) float64 {
	if s.p.Formulation() == problem.Explicit {
		return s.p.Objective(xhat)
	}
	n := s.p.NumPoses()
	rows, cols := xhat.Dims()
	return s.p.Objective(xhat.Slice(0, rows, n, cols))
}
