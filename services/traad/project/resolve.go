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

import (
	"path"
	"path/filepath"
	"strings"
)

// Resolve turns a client-supplied path into a path relative to p's root.
//
// Description:
//
//	Relative input is returned slash-normalized. Absolute input is made
//	relative to the root after resolving symlinks in the longest existing
//	prefix of the path, so a path that does not exist yet still resolves.
//	Paths outside the root come back as "../..." and fail later on fetch.
//
//	Resolve has no side effects and Resolve(Resolve(x)) == Resolve(x).
func (p *Project) Resolve(input string) string {
	if input == "" {
		return ""
	}
	if !filepath.IsAbs(input) {
		clean := path.Clean(filepath.ToSlash(input))
		if clean == "." {
			return ""
		}
		return clean
	}

	rel, err := filepath.Rel(p.root, realPath(filepath.Clean(input)))
	if err != nil {
		return filepath.ToSlash(input)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." {
		return ""
	}
	return rel
}

// Contains reports whether an absolute path lies inside p's root.
func (p *Project) Contains(abs string) bool {
	rel := p.Resolve(abs)
	return rel != ".." && !strings.HasPrefix(rel, "../") && !filepath.IsAbs(rel)
}

// realPath resolves symlinks in the longest existing prefix of abs.
func realPath(abs string) string {
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real
	} else if !isNotExist(err) {
		return abs
	}
	dir, base := filepath.Split(abs)
	dir = filepath.Clean(dir)
	if dir == abs {
		return abs
	}
	return filepath.Join(realPath(dir), base)
}
