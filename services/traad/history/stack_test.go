// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package history

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/traad/services/traad/change"
	"github.com/AleutianAI/traad/services/traad/project"
)

func newProject(t *testing.T, contents string) *project.Project {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "m.py"), []byte(contents), 0o644))
	p, err := project.Open(dir, project.WithoutWatcher())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func contents(t *testing.T, p *project.Project) string {
	t.Helper()
	data, err := p.ReadFile("m.py")
	require.NoError(t, err)
	return string(data)
}

// applyAndRecord applies a content change to m.py and records it.
func applyAndRecord(t *testing.T, s *Stack, p *project.Project, next string) {
	t.Helper()
	cs := change.New(p, "set "+next, change.ChangeContents(p, "m.py", contents(t, p), next))
	require.NoError(t, change.Apply(cs))
	s.Record(cs, cs.Inverse())
}

func TestStack_UndoRedoRoundTrip(t *testing.T) {
	p := newProject(t, "v0\n")
	s := New(0)

	const n = 5
	for i := 1; i <= n; i++ {
		applyAndRecord(t, s, p, fmt.Sprintf("v%d\n", i))
	}
	require.Equal(t, n, s.Cursor())

	for i := n - 1; i >= 0; i-- {
		cs, status := s.Undo()
		require.Equal(t, StatusPerformed, status)
		require.NoError(t, change.Apply(cs))
		assert.Equal(t, fmt.Sprintf("v%d\n", i), contents(t, p))
	}
	assert.Equal(t, 0, s.Cursor())

	for i := 1; i <= n; i++ {
		cs, status := s.Redo()
		require.Equal(t, StatusPerformed, status)
		require.NoError(t, change.Apply(cs))
	}
	assert.Equal(t, fmt.Sprintf("v%d\n", n), contents(t, p))
	assert.Equal(t, n, s.Cursor())
}

func TestStack_NothingToUndoOrRedo(t *testing.T) {
	s := New(0)

	cs, status := s.Undo()
	assert.Equal(t, StatusNothingToUndo, status)
	assert.Equal(t, 0, cs.Len())
	assert.Equal(t, 0, s.Cursor())

	cs, status = s.Redo()
	assert.Equal(t, StatusNothingToRedo, status)
	assert.Equal(t, 0, cs.Len())
}

func TestStack_RecordDiscardsUndoneBranch(t *testing.T) {
	p := newProject(t, "a\n")
	s := New(0)

	applyAndRecord(t, s, p, "b\n")
	applyAndRecord(t, s, p, "c\n")

	cs, status := s.Undo()
	require.Equal(t, StatusPerformed, status)
	require.NoError(t, change.Apply(cs))

	applyAndRecord(t, s, p, "d\n")
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, s.Cursor())

	_, status = s.Redo()
	assert.Equal(t, StatusNothingToRedo, status, "redo after a new record is a no-op")

	entries := s.Entries()
	assert.Equal(t, "set b\n", entries[0].Applied.Description)
	assert.Equal(t, "set d\n", entries[1].Applied.Description)
	assert.Less(t, entries[0].Seq, entries[1].Seq)
}

func TestStack_CancelRestoresCursor(t *testing.T) {
	p := newProject(t, "a\n")
	s := New(0)
	applyAndRecord(t, s, p, "b\n")

	_, status := s.Undo()
	require.Equal(t, StatusPerformed, status)
	s.CancelUndo()
	assert.Equal(t, 1, s.Cursor())

	entry, ok := s.PeekUndo()
	require.True(t, ok)
	assert.Equal(t, 1, entry.Seq)
	_, ok = s.PeekRedo()
	assert.False(t, ok)

	_, _ = s.Undo()
	_, status = s.Redo()
	require.Equal(t, StatusPerformed, status)
	s.CancelRedo()
	assert.Equal(t, 0, s.Cursor())

	_, ok = s.PeekRedo()
	assert.True(t, ok)
}

func TestStack_MaxEntries(t *testing.T) {
	p := newProject(t, "0\n")
	s := New(2)

	for i := 1; i <= 4; i++ {
		applyAndRecord(t, s, p, fmt.Sprintf("%d\n", i))
	}
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, s.Cursor())

	entries := s.Entries()
	assert.Equal(t, 3, entries[0].Seq)
	assert.Equal(t, 4, entries[1].Seq)
}

func TestStack_UndoReturnsFreshChangeSets(t *testing.T) {
	p := newProject(t, "a\n")
	s := New(0)
	applyAndRecord(t, s, p, "b\n")

	first, _ := s.Undo()
	s.CancelUndo()
	second, _ := s.Undo()

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, change.StateComputed, second.State())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "performed", StatusPerformed.String())
	assert.Equal(t, "nothing_to_undo", StatusNothingToUndo.String())
	assert.Equal(t, "nothing_to_redo", StatusNothingToRedo.String())
}
