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

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/sourcegraph/go-diff/diff"
)

// diffContext is the number of unchanged lines shown around each change.
const diffContext = 3

type diffLine struct {
	op   diffmatchpatch.Operation
	text string
}

// UnifiedDiff renders the change from oldContents to newContents as a
// unified diff of path. Identical inputs give "".
func UnifiedDiff(path, oldContents, newContents string) string {
	if oldContents == newContents {
		return ""
	}

	lines := diffLines(oldContents, newContents)
	fd := &diff.FileDiff{
		OrigName: "a/" + path,
		NewName:  "b/" + path,
		Hunks:    buildHunks(lines),
	}
	out, err := diff.PrintFileDiff(fd)
	if err != nil {
		return ""
	}
	return string(out)
}

// diffLines computes a line-level diff.
func diffLines(oldContents, newContents string) []diffLine {
	dmp := diffmatchpatch.New()
	a, b, index := dmp.DiffLinesToChars(oldContents, newContents)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), index)

	var out []diffLine
	for _, d := range diffs {
		for _, text := range strings.SplitAfter(d.Text, "\n") {
			if text != "" {
				out = append(out, diffLine{op: d.Type, text: text})
			}
		}
	}
	return out
}

// buildHunks groups changed lines with their context; changes separated by
// at most twice the context share a hunk.
func buildHunks(lines []diffLine) []*diff.Hunk {
	var hunks []*diff.Hunk
	i := 0
	for i < len(lines) {
		for i < len(lines) && lines[i].op == diffmatchpatch.DiffEqual {
			i++
		}
		if i == len(lines) {
			break
		}

		start := max(0, i-diffContext)
		end := i
		for j := i; j < len(lines); j++ {
			if lines[j].op != diffmatchpatch.DiffEqual {
				end = j + 1
				continue
			}
			if j-end+1 > 2*diffContext {
				break
			}
		}
		stop := min(len(lines), end+diffContext)

		hunks = append(hunks, makeHunk(lines, start, stop))
		i = stop
	}
	return hunks
}

func makeHunk(lines []diffLine, start, stop int) *diff.Hunk {
	var origBefore, newBefore int32
	for _, l := range lines[:start] {
		if l.op != diffmatchpatch.DiffInsert {
			origBefore++
		}
		if l.op != diffmatchpatch.DiffDelete {
			newBefore++
		}
	}

	h := &diff.Hunk{}
	var body strings.Builder
	for _, l := range lines[start:stop] {
		switch l.op {
		case diffmatchpatch.DiffEqual:
			body.WriteByte(' ')
			h.OrigLines++
			h.NewLines++
		case diffmatchpatch.DiffDelete:
			body.WriteByte('-')
			h.OrigLines++
		case diffmatchpatch.DiffInsert:
			body.WriteByte('+')
			h.NewLines++
		}
		body.WriteString(l.text)
		if !strings.HasSuffix(l.text, "\n") {
			body.WriteByte('\n')
		}
	}

	h.OrigStartLine = origBefore
	if h.OrigLines > 0 {
		h.OrigStartLine++
	}
	h.NewStartLine = newBefore
	if h.NewLines > 0 {
		h.NewStartLine++
	}
	h.Body = []byte(body.String())
	return h
}
