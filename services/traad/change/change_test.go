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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEdit_Invert(t *testing.T) {
	p := newProject(t, nil)

	tests := []struct {
		name string
		edit Edit
		want Edit
	}{
		{"contents", ChangeContents(p, "a.py", "old", "new"), ChangeContents(p, "a.py", "new", "old")},
		{"create file", CreateFile(p, "a.py", "x"), RemoveResource(p, "a.py", "x", false)},
		{"create folder", CreateFolder(p, "pkg"), RemoveResource(p, "pkg", "", true)},
		{"move", MoveResource(p, "a.py", "b.py"), MoveResource(p, "b.py", "a.py")},
		{"remove file", RemoveResource(p, "a.py", "x", false), CreateFile(p, "a.py", "x")},
		{"remove folder", RemoveResource(p, "pkg", "", true), CreateFolder(p, "pkg")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.edit.Invert()
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.edit, got.Invert())
		})
	}
}

func TestChangeSet_Lifecycle(t *testing.T) {
	p := newProject(t, map[string]string{"a.py": "a\n"})
	cs := New(p, "edit", ChangeContents(p, "a.py", "a\n", "b\n"))

	assert.NotEmpty(t, cs.ID)
	assert.Equal(t, StateComputed, cs.State())
	assert.Equal(t, "computed", cs.State().String())
	assert.Equal(t, 1, cs.Len())

	require.NoError(t, Apply(cs))
	assert.Equal(t, "applied", cs.State().String())
	assert.True(t, errors.Is(cs.Discard(), ErrAlreadyApplied))
}

func TestChangeSet_InverseReversesOrder(t *testing.T) {
	p := newProject(t, nil)
	cs := New(p, "Renaming <a> to <b>",
		ChangeContents(p, "one.py", "a", "b"),
		ChangeContents(p, "two.py", "a", "b"),
	)

	inv := cs.Inverse()
	edits := inv.Edits()
	require.Len(t, edits, 2)
	assert.Equal(t, "two.py", edits[0].Path)
	assert.Equal(t, "one.py", edits[1].Path)
	assert.Equal(t, "b", edits[0].OldContents)
	assert.Equal(t, "Undo: Renaming <a> to <b>", inv.Description)
	assert.NotEqual(t, cs.ID, inv.ID)
}

func TestChangeSet_CloneIsFresh(t *testing.T) {
	p := newProject(t, map[string]string{"a.py": "a\n"})
	cs := New(p, "edit", ChangeContents(p, "a.py", "a\n", "b\n"))
	require.NoError(t, Apply(cs))

	clone := cs.Clone()
	assert.Equal(t, StateComputed, clone.State())
	assert.Equal(t, cs.Edits(), clone.Edits())
	assert.NotEqual(t, cs.ID, clone.ID)
}

func TestChangeSet_Projects(t *testing.T) {
	a := newProject(t, nil)
	b := newProject(t, nil)
	cs := New(a, "multi",
		ChangeContents(a, "x.py", "", "1"),
		ChangeContents(b, "y.py", "", "1"),
		ChangeContents(a, "z.py", "", "1"),
	)
	assert.Equal(t, []string{a.Root(), b.Root()}, []string{cs.Projects()[0].Root(), cs.Projects()[1].Root()})
	assert.Len(t, cs.Projects(), 2)
}
