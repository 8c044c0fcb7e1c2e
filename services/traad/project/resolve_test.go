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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject_Resolve(t *testing.T) {
	p := openTestProject(t, map[string]string{"pkg/m.py": ""}, WithoutWatcher())
	root := p.Root()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", ""},
		{"relative unchanged", "pkg/m.py", "pkg/m.py"},
		{"relative cleaned", "pkg/./m.py", "pkg/m.py"},
		{"absolute", filepath.Join(root, "pkg", "m.py"), "pkg/m.py"},
		{"absolute root", root, ""},
		{"absolute missing", filepath.Join(root, "pkg", "new", "x.py"), "pkg/new/x.py"},
		{"outside", filepath.Join(filepath.Dir(root), "elsewhere.py"), "../elsewhere.py"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.Resolve(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, p.Resolve(got), "resolve is idempotent")
		})
	}
}

func TestProject_ResolveFollowsSymlinks(t *testing.T) {
	p := openTestProject(t, map[string]string{"pkg/m.py": ""}, WithoutWatcher())

	link := filepath.Join(t.TempDir(), "link")
	require.NoError(t, os.Symlink(filepath.Join(p.Root(), "pkg"), link))

	assert.Equal(t, "pkg/m.py", p.Resolve(filepath.Join(link, "m.py")))
	assert.Equal(t, "pkg/later.py", p.Resolve(filepath.Join(link, "later.py")))
}

func TestProject_Contains(t *testing.T) {
	p := openTestProject(t, nil, WithoutWatcher())

	assert.True(t, p.Contains(filepath.Join(p.Root(), "a.py")))
	assert.True(t, p.Contains(p.Root()))
	assert.False(t, p.Contains(filepath.Dir(p.Root())))
}
