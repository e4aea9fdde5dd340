// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import "errors"

// Sentinel errors returned by New and the iterate checks. Callers match them
// with errors.Is; the returned errors carry the offending index or shape.
var (
	// ErrNoMeasurements is returned when the measurement set is empty.
	ErrNoMeasurements = errors.New("problem: no measurements")

	// ErrBadMeasurement is returned for a measurement with a self loop, a
	// negative pose index, a non-positive precision or non-finite entries.
	ErrBadMeasurement = errors.New("problem: malformed measurement")

	// ErrDimensionMismatch is returned when measurements disagree on d, or a
	// rotation or translation does not have the shape implied by d.
	ErrDimensionMismatch = errors.New("problem: dimension mismatch")

	// ErrDisconnected is returned when the measurement graph has more than
	// one connected component.
	ErrDisconnected = errors.New("problem: measurement graph is not connected")

	// ErrBadRank is returned for a relaxation rank smaller than d.
	ErrBadRank = errors.New("problem: relaxation rank is less than the pose dimension")

	// ErrBadIterate is returned when an iterate does not have r×N shape.
	ErrBadIterate = errors.New("problem: iterate has wrong shape")
)
