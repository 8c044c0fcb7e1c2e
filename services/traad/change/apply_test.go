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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/traad/services/traad/project"
)

// failingFS fails the failOn-th WriteFile call (1-based).
type failingFS struct {
	project.OSFileSystem
	writes int
	failOn int
}

func (f *failingFS) WriteFile(name string, data []byte) error {
	f.writes++
	if f.writes == f.failOn {
		return errors.New("disk full")
	}
	return f.OSFileSystem.WriteFile(name, data)
}

func newProject(t *testing.T, files map[string]string, opts ...project.Option) *project.Project {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		abs := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
		require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	}
	p, err := project.Open(dir, append([]project.Option{project.WithoutWatcher()}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func readFile(t *testing.T, p *project.Project, rel string) string {
	t.Helper()
	data, err := p.ReadFile(rel)
	require.NoError(t, err)
	return string(data)
}

func TestApply_ChangesContents(t *testing.T) {
	p := newProject(t, map[string]string{"a.py": "a = 1\n", "b.py": "b = 1\n"})
	cs := New(p, "bump",
		ChangeContents(p, "a.py", "a = 1\n", "a = 2\n"),
		ChangeContents(p, "b.py", "b = 1\n", "b = 2\n"),
	)

	require.NoError(t, Apply(cs))
	assert.Equal(t, StateApplied, cs.State())
	assert.Equal(t, "a = 2\n", readFile(t, p, "a.py"))
	assert.Equal(t, "b = 2\n", readFile(t, p, "b.py"))
}

func TestApply_IsAtomicWhenAnEditFails(t *testing.T) {
	fsys := &failingFS{failOn: 2}
	p := newProject(t, map[string]string{
		"a.py": "a\n",
		"b.py": "b\n",
		"c.py": "c\n",
	}, project.WithFileSystem(fsys))

	cs := New(p, "three edits",
		ChangeContents(p, "a.py", "a\n", "A\n"),
		ChangeContents(p, "b.py", "b\n", "B\n"),
		ChangeContents(p, "c.py", "c\n", "C\n"),
	)

	err := Apply(cs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, StateComputed, cs.State())

	assert.Equal(t, "a\n", readFile(t, p, "a.py"), "first edit rolled back")
	assert.Equal(t, "b\n", readFile(t, p, "b.py"))
	assert.Equal(t, "c\n", readFile(t, p, "c.py"))
}

func TestApply_ConflictWhenFileChanged(t *testing.T) {
	p := newProject(t, map[string]string{"a.py": "a\n", "b.py": "b\n"})
	cs := New(p, "edit",
		ChangeContents(p, "a.py", "a\n", "A\n"),
		ChangeContents(p, "b.py", "b\n", "B\n"),
	)
	require.NoError(t, p.WriteFile("b.py", []byte("edited elsewhere\n")))

	err := Apply(cs)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Equal(t, "a\n", readFile(t, p, "a.py"), "nothing performed on conflict")
}

func TestApply_StructuralEditsSeeEarlierEdits(t *testing.T) {
	p := newProject(t, map[string]string{"old.py": "x\n"})
	cs := New(p, "restructure",
		CreateFolder(p, "pkg"),
		CreateFile(p, "pkg/__init__.py", ""),
		MoveResource(p, "old.py", "pkg/new.py"),
		ChangeContents(p, "pkg/new.py", "x\n", "y\n"),
	)

	require.NoError(t, Apply(cs))
	assert.Equal(t, "y\n", readFile(t, p, "pkg/new.py"))
	assert.False(t, p.Exists("old.py"))

	inverse := cs.Inverse()
	require.NoError(t, Apply(inverse))
	assert.Equal(t, "x\n", readFile(t, p, "old.py"))
	assert.False(t, p.Exists("pkg"))
}

func TestApply_RejectsCreateOverExisting(t *testing.T) {
	p := newProject(t, map[string]string{"a.py": ""})

	err := Apply(New(p, "create", CreateFile(p, "a.py", "x")))
	assert.True(t, errors.Is(err, ErrConflict))

	err = Apply(New(p, "create", CreateFile(p, "missing/a.py", "x")))
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestApply_TwiceIsADefect(t *testing.T) {
	p := newProject(t, map[string]string{"a.py": "a\n"})
	cs := New(p, "edit", ChangeContents(p, "a.py", "a\n", "b\n"))
	require.NoError(t, Apply(cs))

	defer func() {
		r := recover()
		require.NotNil(t, r)
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, errors.Is(err, ErrAlreadyApplied))
	}()
	_ = Apply(cs)
	t.Fatal("second apply did not panic")
}

func TestApply_Discarded(t *testing.T) {
	p := newProject(t, map[string]string{"a.py": "a\n"})
	cs := New(p, "edit", ChangeContents(p, "a.py", "a\n", "b\n"))

	require.NoError(t, cs.Discard())
	assert.Equal(t, StateDiscarded, cs.State())
	assert.True(t, errors.Is(Apply(cs), ErrDiscarded))
	assert.Equal(t, "a\n", readFile(t, p, "a.py"))
}

func TestApply_ClosedProjectConflicts(t *testing.T) {
	p := newProject(t, map[string]string{"a.py": "a\n"})
	cs := New(p, "edit", ChangeContents(p, "a.py", "a\n", "b\n"))
	require.NoError(t, p.Close())

	assert.True(t, errors.Is(Apply(cs), ErrConflict))
}
