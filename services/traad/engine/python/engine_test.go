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
	"context"
	"errors"
	"path"
	"sort"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/traad/services/traad/ast"
	"github.com/AleutianAI/traad/services/traad/engine"
	"github.com/AleutianAI/traad/services/traad/storage/badger"
)

// =============================================================================
// Test Fixtures
// =============================================================================

// memProject is an in-memory engine.Project.
type memProject struct {
	root  string
	files map[string]string
	gen   uint64
}

func newMemProject(root string, files map[string]string) *memProject {
	return &memProject{root: root, files: files}
}

func (p *memProject) Root() string       { return p.root }
func (p *memProject) Generation() uint64 { return p.gen }

func (p *memProject) Files(exts ...string) ([]string, error) {
	var out []string
	for rel := range p.files {
		for _, ext := range exts {
			if path.Ext(rel) == ext {
				out = append(out, rel)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (p *memProject) ReadFile(rel string) ([]byte, error) {
	src, ok := p.files[rel]
	if !ok {
		return nil, errors.New("no such file: " + rel)
	}
	return []byte(src), nil
}

// set replaces a file and bumps the generation.
func (p *memProject) set(rel, src string) {
	p.files[rel] = src
	p.gen++
}

// at returns the character offset of the first occurrence of marker in
// src, failing the test when it is missing.
func at(t *testing.T, src, marker string) int {
	t.Helper()
	i := strings.Index(src, marker)
	require.GreaterOrEqual(t, i, 0, "marker %q not found", marker)
	return utf8.RuneCountInString(src[:i])
}

func target(p *memProject, rel string, offset int, others ...*memProject) engine.Target {
	projects := []engine.Project{p}
	for _, o := range others {
		projects = append(projects, o)
	}
	return engine.Target{Projects: projects, Project: p, Path: rel, Offset: offset}
}

// contents maps each changed path to its new contents.
func contents(res *engine.Result) map[string]string {
	out := make(map[string]string)
	for _, op := range res.Ops {
		out[op.Path] = op.NewContents
	}
	return out
}

func paths(res *engine.Result) []string {
	var out []string
	for _, op := range res.Ops {
		out = append(out, op.Path)
	}
	return out
}

// =============================================================================
// Index Tests
// =============================================================================

func TestIndex_ModulesAndNames(t *testing.T) {
	p := newMemProject("/work", map[string]string{
		"m.py":            "def foo():\n    pass\n",
		"pkg/__init__.py": "",
		"pkg/util.py":     "X = 1\n",
		"notes.txt":       "not python",
	})
	e := New()

	ix, err := e.index(context.Background(), []engine.Project{p})
	require.NoError(t, err)

	require.Len(t, ix.modules, 3)
	assert.NotNil(t, ix.byName["m"])
	assert.NotNil(t, ix.byName["pkg"])
	assert.NotNil(t, ix.byName["pkg.util"])
	assert.Equal(t, "pkg/util.py", ix.find(p, "pkg/util.py").path)
	assert.Nil(t, ix.find(p, "notes.txt"))
}

func TestIndex_ReusedUntilGenerationChanges(t *testing.T) {
	p := newMemProject("/work", map[string]string{"m.py": "x = 1\n"})
	e := New()
	ctx := context.Background()

	first, err := e.index(ctx, []engine.Project{p})
	require.NoError(t, err)
	second, err := e.index(ctx, []engine.Project{p})
	require.NoError(t, err)
	assert.Same(t, first.modules[0], second.modules[0])

	p.set("m.py", "x = 2\n")
	third, err := e.index(ctx, []engine.Project{p})
	require.NoError(t, err)
	assert.NotSame(t, first.modules[0], third.modules[0])
	assert.Equal(t, "x = 2\n", string(third.modules[0].source))
}

func TestIndex_CrossProjectNamesPreferRoot(t *testing.T) {
	root := newMemProject("/root", map[string]string{"m.py": "A = 1\n"})
	cross := newMemProject("/cross", map[string]string{"m.py": "B = 1\n", "lib.py": ""})
	e := New()

	ix, err := e.index(context.Background(), []engine.Project{root, cross})
	require.NoError(t, err)

	assert.Equal(t, engine.Project(root), ix.byName["m"].project)
	assert.Equal(t, engine.Project(cross), ix.byName["lib"].project)
	assert.NotNil(t, ix.find(cross, "m.py"))
}

func TestBadgerCache_StoresSummaries(t *testing.T) {
	db, err := badger.Open(badger.InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	cache := NewBadgerCache(db, nil)
	src := "def foo():\n    \"\"\"Doc.\"\"\"\n"
	p := newMemProject("/work", map[string]string{"m.py": src})
	ctx := context.Background()

	_, err = New(WithCache(cache)).index(ctx, []engine.Project{p})
	require.NoError(t, err)

	sum, ok := cache.Get(ctx, summaryKey("m.py", []byte(src)))
	require.True(t, ok)
	sym, found := sum.Lookup("foo")
	require.True(t, found)
	assert.Equal(t, "Doc.", sym.DocComment)

	// A fresh engine reads the cached summary.
	ix, err := New(WithCache(cache), WithWorkers(1)).index(ctx, []engine.Project{p})
	require.NoError(t, err)
	_, found = ix.byName["m"].summary.Lookup("foo")
	assert.True(t, found)
}

func TestBadgerCache_Miss(t *testing.T) {
	db, err := badger.Open(badger.InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	_, ok := NewBadgerCache(db, nil).Get(context.Background(), "summary/"+summaryVersion+"/absent")
	assert.False(t, ok)
}

func TestTarget_UnsupportedLanguage(t *testing.T) {
	p := newMemProject("/work", map[string]string{"m.py": "x = 1\n", "notes.txt": "x = 1\n"})
	_, err := New().Rename(context.Background(), target(p, "notes.txt", 0), "y")
	assert.ErrorIs(t, err, engine.ErrUnsupported)
	assert.ErrorIs(t, err, ast.ErrUnsupportedLanguage)
}

func TestCheckSyntax_ReportsPosition(t *testing.T) {
	p := newMemProject("/work", map[string]string{"m.py": "x = 1\ndef f(:\n"})
	_, err := New().Rename(context.Background(), target(p, "m.py", 0), "y")
	require.ErrorIs(t, err, engine.ErrSyntax)

	var perr *ast.ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "m.py", perr.FilePath)
	assert.Positive(t, perr.Line)
}

func TestWithParser_RegistersByExtension(t *testing.T) {
	e := New(WithParser(ast.NewPythonParser(ast.WithPythonMaxFileSize(4))))
	p := newMemProject("/work", map[string]string{"m.py": "x = 12345\n"})

	_, err := e.Rename(context.Background(), target(p, "m.py", 0), "y")
	assert.ErrorIs(t, err, engine.ErrNoTarget, "files over the size limit are not indexed")
}

func TestTarget_NotAModule(t *testing.T) {
	p := newMemProject("/work", map[string]string{"m.py": "x = 1\n"})
	_, err := New().Rename(context.Background(), target(p, "missing.py", 0), "y")
	assert.ErrorIs(t, err, engine.ErrNoTarget)
}
