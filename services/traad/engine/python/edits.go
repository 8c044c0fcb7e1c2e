// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package python

import (
	"fmt"
	"sort"
	"strings"

	"github.com/AleutianAI/traad/services/traad/ast"
)

// textEdit replaces src[start:end] with text. Offsets are bytes.
type textEdit struct {
	start int
	end   int
	text  string
}

// applyEdits applies non-overlapping edits to src.
//
// Edits at the same offset apply in the order given, so an insertion listed
// before a replacement starting at the same offset lands in front of it.
func applyEdits(src []byte, edits []textEdit) (string, error) {
	sorted := make([]textEdit, len(edits))
	copy(sorted, edits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].start < sorted[j].start
	})

	out := make([]byte, 0, len(src))
	pos := 0
	for _, e := range sorted {
		if e.start < pos || e.end < e.start || e.end > len(src) {
			return "", fmt.Errorf("overlapping edit at byte %d", e.start)
		}
		out = append(out, src[pos:e.start]...)
		out = append(out, e.text...)
		pos = e.end
	}
	out = append(out, src[pos:]...)
	return string(out), nil
}

// statementLines returns the byte range of the whole lines spanned by
// [start, end) when nothing but whitespace shares those lines, and the
// range itself otherwise.
func statementLines(src []byte, start, end int) (int, int) {
	ls := ast.LineStart(src, start)
	for i := ls; i < start; i++ {
		if src[i] != ' ' && src[i] != '\t' {
			return start, end
		}
	}
	le := end
	for le < len(src) && (src[le] == ' ' || src[le] == '\t' || src[le] == '\r') {
		le++
	}
	if le < len(src) && src[le] != '\n' {
		return start, end
	}
	return ls, ast.LineEnd(src, le)
}

// reindent strips margin from every line of text and prefixes indent.
// Blank lines stay empty.
func reindent(text, margin, indent string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) == "" {
			lines[i] = ""
			continue
		}
		lines[i] = indent + strings.TrimPrefix(l, margin)
	}
	return strings.Join(lines, "\n")
}
