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
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/traad/services/traad/engine"
)

const assistModule = "def foo():\n    \"\"\"Foo doc.\"\"\"\n\n\ndef _hidden():\n    pass\n\n\nclass Box:\n    \"\"\"A box.\"\"\"\n\n    def __init__(self, w, h=1):\n        self.w = w\n\n    def area(self):\n        return self.w\n"

func assistProject() *memProject {
	return newMemProject("/work", map[string]string{"m.py": assistModule})
}

func query(p *memProject, src string, offset int) engine.Query {
	return engine.Query{
		Projects: []engine.Project{p},
		Project:  p,
		Path:     "q.py",
		Source:   src,
		Offset:   offset,
	}
}

func end(src string) int {
	return utf8.RuneCountInString(src)
}

func TestCodeAssist_Scopes(t *testing.T) {
	src := "import m\n\ndef f(alpha):\n    al"

	got, err := New().CodeAssist(context.Background(), query(assistProject(), src, end(src)))
	require.NoError(t, err)

	assert.Equal(t, []engine.Proposal{
		{Name: "alpha", Scope: "local", Kind: "instance"},
		{Name: "all", Scope: "builtin", Kind: "function"},
	}, got)
}

func TestCodeAssist_Globals(t *testing.T) {
	src := "import m\n\nmy_value = 1\nm"

	got, err := New().CodeAssist(context.Background(), query(assistProject(), src, end(src)))
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(got), 3)
	assert.Equal(t, engine.Proposal{Name: "m", Scope: "global", Kind: "module"}, got[0])
	assert.Equal(t, engine.Proposal{Name: "my_value", Scope: "global", Kind: "instance"}, got[1])
	assert.Equal(t, "builtin", got[2].Scope)
}

func TestCodeAssist_ModuleAttributes(t *testing.T) {
	src := "import m\nm.f"

	got, err := New().CodeAssist(context.Background(), query(assistProject(), src, end(src)))
	require.NoError(t, err)

	assert.Equal(t, []engine.Proposal{
		{Name: "foo", Doc: "Foo doc.", Scope: "attribute", Kind: "function"},
	}, got)
}

func TestCodeAssist_PrivateNeedsUnderscore(t *testing.T) {
	p := assistProject()
	e := New()
	ctx := context.Background()

	src := "import m\nm."
	got, err := e.CodeAssist(ctx, query(p, src, end(src)))
	require.NoError(t, err)
	var names []string
	for _, prop := range got {
		names = append(names, prop.Name)
	}
	assert.Equal(t, []string{"Box", "foo"}, names)

	src = "import m\nm._"
	got, err = e.CodeAssist(ctx, query(p, src, end(src)))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "_hidden", got[0].Name)
}

func TestCodeAssist_SelfMembers(t *testing.T) {
	src := "class C:\n    def __init__(self):\n        self.size = 0\n\n    def grow(self):\n        self.s"

	got, err := New().CodeAssist(context.Background(), query(assistProject(), src, end(src)))
	require.NoError(t, err)

	assert.Equal(t, []engine.Proposal{{Name: "size", Scope: "attribute", Kind: "instance"}}, got)
}

func TestCalltip(t *testing.T) {
	e := New()
	ctx := context.Background()

	src := "import m\n\nm.foo("
	tip, found, err := e.Calltip(ctx, query(assistProject(), src, end(src)))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "m.foo()", tip)

	src = "from m import Box\nBox(1, )"
	tip, found, err = e.Calltip(ctx, query(assistProject(), src, end(src)-1))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "m.Box(w, h=1)", tip)

	src = "def g(a, b=2):\n    pass\n\ng(1, )"
	tip, found, err = e.Calltip(ctx, query(assistProject(), src, end(src)-1))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "g(a, b=2)", tip)

	src = "x = 1\n"
	_, found, err = e.Calltip(ctx, query(assistProject(), src, end(src)))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDoc(t *testing.T) {
	e := New()
	ctx := context.Background()

	src := "import m\nm.foo()\n"
	doc, found, err := e.Doc(ctx, query(assistProject(), src, at(t, src, "foo")))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "foo()\n\nFoo doc.", doc)

	src = "from m import Box\nBox\n"
	doc, found, err = e.Doc(ctx, query(assistProject(), src, end(src)-1))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Box(w, h=1)\n\nA box.", doc)

	src = "x = 1\n"
	_, found, err = e.Doc(ctx, query(assistProject(), src, 0))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDefinition(t *testing.T) {
	p := assistProject()
	e := New()
	ctx := context.Background()

	src := "import m\nm.foo()\n"
	loc, err := e.Definition(ctx, query(p, src, at(t, src, "foo")))
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, engine.Location{Project: p, Path: "m.py", Line: 1}, *loc)

	src = "from m import Box\nBox.area\n"
	loc, err = e.Definition(ctx, query(p, src, at(t, src, "area")))
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, 15, loc.Line)

	src = "print(1)\n"
	loc, err = e.Definition(ctx, query(p, src, 0))
	require.NoError(t, err)
	assert.Nil(t, loc)
}

func TestDefinition_LocalVariable(t *testing.T) {
	p := assistProject()
	src := "def f():\n    total = 0\n    return total\n"

	loc, err := New().Definition(context.Background(), query(p, src, at(t, src, "total\n")))
	require.NoError(t, err)
	require.NotNil(t, loc)
	assert.Equal(t, "q.py", loc.Path)
	assert.Equal(t, 2, loc.Line)
}
