// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesync

import "fmt"

// Status reports how the Riemannian Staircase ended. The zero value is
// RSIterLimit, so a Result is never successful until certified.
type Status int

const (
	// RSIterLimit the maximum relaxation rank was reached without a certificate.
	RSIterLimit Status = iota
	// GlobalOpt the certificate S - Λ(Y) was positive semidefinite to
	// within tolerance, so the relaxation was solved exactly.
	GlobalOpt
	// EigImprecision the minimum eigenvalue computation did not converge.
	EigImprecision
	// SaddlePoint the backtracking line search failed to leave a saddle.
	SaddlePoint
)

var statusNames = []string{"RS_ITER_LIMIT", "GLOBAL_OPT", "EIG_IMPRECISION", "SADDLE_POINT"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "UNKNOWN"
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(text []byte) error {
	for i, name := range statusNames {
		if name == string(text) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("sesync: unknown status %q", text)
}
