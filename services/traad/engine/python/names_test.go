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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleName(t *testing.T) {
	tests := []struct {
		rel  string
		want string
	}{
		{"m.py", "m"},
		{"pkg/mod.py", "pkg.mod"},
		{"pkg/__init__.py", "pkg"},
		{"__init__.py", ""},
		{"stubs/x.pyi", "stubs.x"},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			assert.Equal(t, tt.want, moduleName(tt.rel))
		})
	}
}

func TestResolveRelative(t *testing.T) {
	tests := []struct {
		name   string
		rel    string
		level  int
		module string
		want   string
		ok     bool
	}{
		{"absolute", "a/b.py", 0, "x.y", "x.y", true},
		{"sibling", "a/b.py", 1, "c", "a.c", true},
		{"package itself", "a/b.py", 1, "", "a", true},
		{"from package init", "a/__init__.py", 1, "c", "a.c", true},
		{"parent", "a/b/c.py", 2, "d", "a.d", true},
		{"top level module", "m.py", 1, "n", "n", true},
		{"too many levels", "m.py", 3, "n", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := resolveRelative(tt.rel, tt.level, tt.module)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestIsIdentifier(t *testing.T) {
	for _, ok := range []string{"x", "_private", "name2", "ñame", "__init__"} {
		assert.True(t, isIdentifier(ok), ok)
	}
	for _, bad := range []string{"", "2x", "a-b", "a b", "a.b"} {
		assert.False(t, isIdentifier(bad), bad)
	}
}

func TestApplyEdits(t *testing.T) {
	src := []byte("abcdef")

	out, err := applyEdits(src, []textEdit{
		{start: 4, end: 6, text: "XY"},
		{start: 0, end: 0, text: ">"},
		{start: 0, end: 1, text: "A"},
	})
	require.NoError(t, err)
	assert.Equal(t, ">AbcdXY", out)

	_, err = applyEdits(src, []textEdit{{start: 0, end: 3}, {start: 2, end: 4}})
	assert.Error(t, err)
}

func TestStatementLines(t *testing.T) {
	src := []byte("a = 1\n    b = 2  \nc = 3; d = 4\n")

	start, end := statementLines(src, 10, 15)
	assert.Equal(t, "    b = 2  \n", string(src[start:end]))

	start, end = statementLines(src, 18, 23)
	assert.Equal(t, "c = 3", string(src[start:end]))
}

func TestReindent(t *testing.T) {
	got := reindent("    a = 1\n\n    if a:\n        b()", "    ", "  ")
	assert.Equal(t, "  a = 1\n\n  if a:\n      b()", got)
}
