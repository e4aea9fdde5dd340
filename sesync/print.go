// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesync

import (
	"fmt"
	"io"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/sesync/rtr"
)

// logger writes the staircase narration when enabled.
type logger struct {
	enabled bool
	w       io.Writer
}

func (s *Solver) logger() *logger {
	return &logger{enabled: s.opts.Verbose, w: s.out}
}

func (l *logger) log(format string, a ...any) {
	if !l.enabled {
		return
	}
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.w, format, a...)
	} else {
		_, _ = fmt.Fprint(l.w, format)
	}
}

// printSettings logs the algorithm settings.
func (s *Solver) printSettings(log *logger) {
	if !log.enabled {
		return
	}
	o := s.opts
	log.log("========= SE-Sync ==========\n\n")
	log.log("ALGORITHM SETTINGS:\n\n")
	log.log("SE-Sync settings:\n")
	log.log(" SE-Sync problem formulation: %s\n", s.p.Formulation())
	log.log(" Initial level of Riemannian staircase: %d\n", o.R0)
	log.log(" Maximum level of Riemannian staircase: %d\n", o.RMax)
	log.log(" Number of Lanczos vectors to use in minimum eigenvalue computation: %d\n", o.NumLanczosVectors)
	log.log(" Maximum number of iterations for eigenvalue computation: %d\n", o.MaxEigIterations)
	log.log(" Tolerance for accepting an eigenvalue as numerically nonnegative in optimality verification: %g\n", o.MinEigNumTol)
	log.log(" Using %s factorization\n", o.Factorization)
	log.log(" Initialization method: %s\n", o.Initialization)
	if o.LogIterates {
		log.log(" Logging entire sequence of Riemannian Staircase iterates\n")
	}
	log.log(" Running SE-Sync with %d threads\n\n", o.NumThreads)

	log.log("Riemannian trust-region settings:\n")
	log.log(" Stopping tolerance for norm of Riemannian gradient: %g\n", o.GradNormTol)
	log.log(" Stopping tolerance for relative function decrease: %g\n", o.RelFuncDecreaseTol)
	log.log(" Stopping tolerance for the norm of an accepted update step: %g\n", o.StepsizeTol)
	log.log(" Maximum number of trust-region iterations: %d\n", o.MaxIterations)
	log.log(" Maximum number of truncated conjugate gradient iterations per outer iteration: %d\n", o.MaxTCGIterations)
	log.log(" Preconditioning the truncated conjugate gradient method using the %s preconditioner\n\n", o.Preconditioner)
}

// printInit logs how the first iterate was produced.
func (s *Solver) printInit(log *logger, given bool, y0 *mat.Dense, elapsed time.Duration) {
	if !log.enabled {
		return
	}
	log.log("INITIALIZATION:\n")
	switch {
	case given:
		log.log(" Using user-supplied initial iterate Y0\n")
	case s.opts.Initialization == Random:
		log.log(" Sampling a random initialization\n")
	default:
		log.log(" Computing chordal initialization\n")
	}
	log.log(" SE-Sync initialization finished; elapsed time: %s\n\n", rtr.FormatDuration(elapsed))
	log.log("Initial objective value: %.12g\n", s.p.Objective(y0))
}

// printStatus logs the closing banner of the staircase and its outcome.
func (s *Solver) printStatus(log *logger, status Status) {
	log.log("\n\n===== END RIEMANNIAN STAIRCASE =====\n\n")
	switch status {
	case GlobalOpt:
		log.log("Found global optimum!\n")
	case EigImprecision:
		log.log("WARNING: Minimum eigenvalue computation did not achieve sufficient accuracy; solution may not be globally optimal!\n")
	case SaddlePoint:
		log.log("WARNING: Line-search was unable to escape saddle point!\n")
	case RSIterLimit:
		log.log("WARNING:  Riemannian Staircase reached the maximum level before finding global optimum!\n")
	}
}

// printExit logs the final report.
func (s *Solver) printExit(log *logger, res *Result) {
	if !log.enabled {
		return
	}
	log.log("Value of SDP solution F(Y): %.12g\n", res.SDPVal)
	log.log("Norm of Riemannian gradient grad F(Y): %g\n", res.GradNorm)
	log.log("Minimum eigenvalue of certificate matrix S - Lambda(Y): %g\n", res.LambdaMin)
	log.log("Value of rounded pose estimates F(x): %.12g\n", res.Fxhat)
	log.log("Suboptimality bound of recovered pose estimate: %g\n", res.Suboptimality())
	log.log("Total elapsed computation time: %s\n\n", rtr.FormatDuration(res.TotalTime))
	log.log("===== END SE-SYNC =====\n\n")
}
