// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package change

import "errors"

var (
	// ErrAlreadyApplied indicates an attempt to apply a change set twice.
	// Apply panics with it: a second apply is a programming error.
	ErrAlreadyApplied = errors.New("change set already applied")

	// ErrDiscarded indicates use of a discarded change set.
	ErrDiscarded = errors.New("change set discarded")

	// ErrConflict indicates that the file system no longer matches what the
	// change set was computed against.
	ErrConflict = errors.New("apply conflict")

	// ErrInvalidData indicates change data that cannot be decoded.
	ErrInvalidData = errors.New("invalid change data")
)
