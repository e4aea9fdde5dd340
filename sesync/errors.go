// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sesync

import "errors"

// ErrInvalidOptions is returned for options that fail validation or cannot
// be parsed. Measurement and rank errors come from package problem and are
// returned wrapped; match them with errors.Is.
var ErrInvalidOptions = errors.New("sesync: invalid options")

// ErrEvaluation is returned when a problem callback panics inside the
// trust-region solver; the iterate it left behind is not a critical point.
var ErrEvaluation = errors.New("sesync: problem evaluation failed")
