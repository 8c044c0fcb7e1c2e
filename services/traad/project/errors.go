// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package project

import "errors"

var (
	// ErrNotFound indicates a resource or project that does not exist, or a
	// path that lies outside its project.
	ErrNotFound = errors.New("not found")

	// ErrNotDirectory indicates a project root that is not an existing
	// directory, or a file listed as a folder.
	ErrNotDirectory = errors.New("not a directory")

	// ErrExists indicates a create or move onto an existing resource.
	ErrExists = errors.New("resource already exists")

	// ErrClosed indicates use of a project after Close.
	ErrClosed = errors.New("project closed")
)
