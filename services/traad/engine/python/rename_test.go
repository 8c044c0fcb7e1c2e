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

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/traad/services/traad/engine"
)

func TestRename_AcrossModules(t *testing.T) {
	p := newMemProject("/work", map[string]string{
		"m.py": "x = 1\ndef foo():\n    return 42\n",
		"n.py": "import m\n\nm.foo()\n",
	})

	res, err := New().Rename(context.Background(), target(p, "m.py", 10), "bar")
	require.NoError(t, err)

	assert.Equal(t, "Renaming <foo> to <bar>", res.Description)
	assert.Equal(t, []string{"m.py", "n.py"}, paths(res))
	got := contents(res)
	assert.Equal(t, "x = 1\ndef bar():\n    return 42\n", got["m.py"])
	assert.Equal(t, "import m\n\nm.bar()\n", got["n.py"])
	for _, op := range res.Ops {
		assert.Equal(t, engine.OpChange, op.Kind)
		assert.Equal(t, p.files[op.Path], op.OldContents)
	}
}

func TestRename_ThroughFromImport(t *testing.T) {
	a := "def helper(x):\n    return x * 2\n"
	b := "from a import helper\n\nprint(helper(3))\n"
	p := newMemProject("/work", map[string]string{"a.py": a, "b.py": b})

	res, err := New().Rename(context.Background(), target(p, "b.py", at(t, b, "helper(3)")), "assist")
	require.NoError(t, err)

	assert.Equal(t, []string{"b.py", "a.py"}, paths(res))
	got := contents(res)
	assert.Equal(t, "from a import assist\n\nprint(assist(3))\n", got["b.py"])
	assert.Equal(t, "def assist(x):\n    return x * 2\n", got["a.py"])
}

func TestRename_LocalVariable(t *testing.T) {
	src := "def f(a):\n    b = a + 1\n    return b\n\nb = 5\n"
	p := newMemProject("/work", map[string]string{"m.py": src})

	res, err := New().Rename(context.Background(), target(p, "m.py", at(t, src, "b = a")), "c")
	require.NoError(t, err)

	require.Len(t, res.Ops, 1)
	assert.Equal(t, "def f(a):\n    c = a + 1\n    return c\n\nb = 5\n", res.Ops[0].NewContents)
}

func TestRename_Method(t *testing.T) {
	src := "class A:\n    def run(self):\n        return 1\n\n\na = A()\na.run()\n"
	p := newMemProject("/work", map[string]string{"m.py": src})

	res, err := New().Rename(context.Background(), target(p, "m.py", at(t, src, "run(self)")), "execute")
	require.NoError(t, err)

	require.Len(t, res.Ops, 1)
	assert.Equal(t,
		"class A:\n    def execute(self):\n        return 1\n\n\na = A()\na.execute()\n",
		res.Ops[0].NewContents)
}

func TestRename_MemberStaysInItsClass(t *testing.T) {
	m := "class A:\n    def run(self):\n        return 1\n\n\nclass B:\n    def run(self):\n        return 2\n\n\nA().run()\n"
	n := "import subprocess\nsubprocess.run(['ls'])\n"
	p := newMemProject("/work", map[string]string{"m.py": m, "n.py": n})

	res, err := New().Rename(context.Background(), target(p, "m.py", at(t, m, "run(self)")), "go")
	require.NoError(t, err)

	assert.Equal(t, []string{"m.py"}, paths(res))
	assert.Equal(t,
		"class A:\n    def go(self):\n        return 1\n\n\nclass B:\n    def run(self):\n        return 2\n\n\nA().go()\n",
		res.Ops[0].NewContents)
}

func TestRename_MemberFollowsHierarchy(t *testing.T) {
	src := "class Base:\n    def run(self):\n        pass\n\n" +
		"class Child(Base):\n    def run(self):\n        return super().run()\n\n" +
		"class Other:\n    def run(self):\n        pass\n\n" +
		"Child().run()\nOther().run()\n"
	p := newMemProject("/work", map[string]string{"m.py": src})

	res, err := New().Rename(context.Background(), target(p, "m.py", at(t, src, "run(self):\n        return")), "go")
	require.NoError(t, err)

	require.Len(t, res.Ops, 1)
	assert.Equal(t,
		"class Base:\n    def go(self):\n        pass\n\n"+
			"class Child(Base):\n    def go(self):\n        return super().go()\n\n"+
			"class Other:\n    def run(self):\n        pass\n\n"+
			"Child().go()\nOther().run()\n",
		res.Ops[0].NewContents)
}

func TestRename_Module(t *testing.T) {
	p := newMemProject("/work", map[string]string{
		"m.py": "x = 1\ndef foo():\n    return 42\n",
		"n.py": "import m\n\nm.foo()\n",
		"o.py": "from m import foo\nfoo()\n",
		"p.py": "import m as mm\nmm.foo()\n",
	})

	res, err := New().Rename(context.Background(), target(p, "m.py", engine.NoOffset), "q")
	require.NoError(t, err)

	assert.Equal(t, "Renaming module <m> to <q>", res.Description)
	require.Len(t, res.Ops, 4)
	got := contents(res)
	assert.Equal(t, "import q\n\nq.foo()\n", got["n.py"])
	assert.Equal(t, "from q import foo\nfoo()\n", got["o.py"])
	assert.Equal(t, "import q as mm\nmm.foo()\n", got["p.py"])

	move := res.Ops[len(res.Ops)-1]
	assert.Equal(t, engine.OpMove, move.Kind)
	assert.Equal(t, "m.py", move.Path)
	assert.Equal(t, "q.py", move.NewPath)
	assert.False(t, move.IsFolder)
}

func TestRename_ModuleInPackage(t *testing.T) {
	files := map[string]string{
		"pkg/__init__.py": "",
		"pkg/mod.py":      "def f():\n    pass\n",
		"pkg/other.py":    "from . import mod\nfrom .mod import f\n",
		"use.py":          "from pkg import mod\nfrom pkg.mod import f\nimport pkg.mod\n\nmod.f()\npkg.mod.f()\n",
	}

	tests := []struct {
		name   string
		path   string
		rename string
		want   map[string]string
		move   engine.Op
	}{
		{
			name:   "module",
			path:   "pkg/mod.py",
			rename: "util",
			want: map[string]string{
				"pkg/other.py": "from . import util\nfrom .util import f\n",
				"use.py":       "from pkg import util\nfrom pkg.util import f\nimport pkg.util\n\nutil.f()\npkg.util.f()\n",
			},
			move: engine.Op{Kind: engine.OpMove, Path: "pkg/mod.py", NewPath: "pkg/util.py"},
		},
		{
			name:   "package",
			path:   "pkg/__init__.py",
			rename: "lib",
			want: map[string]string{
				"use.py": "from lib import mod\nfrom lib.mod import f\nimport lib.mod\n\nmod.f()\nlib.mod.f()\n",
			},
			move: engine.Op{Kind: engine.OpMove, Path: "pkg", NewPath: "lib", IsFolder: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			copied := make(map[string]string, len(files))
			for k, v := range files {
				copied[k] = v
			}
			p := newMemProject("/work", copied)

			res, err := New().Rename(context.Background(), target(p, tt.path, engine.NoOffset), tt.rename)
			require.NoError(t, err)

			require.Len(t, res.Ops, len(tt.want)+1)
			for _, op := range res.Ops[:len(res.Ops)-1] {
				assert.Equal(t, engine.OpChange, op.Kind)
				assert.Equal(t, tt.want[op.Path], op.NewContents, op.Path)
			}
			move := res.Ops[len(res.Ops)-1]
			move.Project = nil
			assert.Equal(t, tt.move, move)
		})
	}
}

func TestRename_ModuleErrors(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		path  string
		want  error
	}{
		{"target exists", map[string]string{"m.py": "", "q.py": ""}, "m.py", engine.ErrInvalidArgument},
		{"root package", map[string]string{"__init__.py": ""}, "__init__.py", engine.ErrUnsupported},
		{"syntax error in importer", map[string]string{"m.py": "", "n.py": "import m\ndef f(:\n"}, "m.py", engine.ErrSyntax},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newMemProject("/work", tt.files)
			_, err := New().Rename(context.Background(), target(p, tt.path, engine.NoOffset), "q")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRename_CrossProject(t *testing.T) {
	root := newMemProject("/root", map[string]string{"m.py": "def foo():\n    pass\n"})
	cross := newMemProject("/cross", map[string]string{"use.py": "from m import foo\nfoo()\n"})

	res, err := New().Rename(context.Background(), target(root, "m.py", 4, cross), "bar")
	require.NoError(t, err)

	require.Len(t, res.Ops, 2)
	assert.Equal(t, engine.Project(root), res.Ops[0].Project)
	assert.Equal(t, engine.Project(cross), res.Ops[1].Project)
	assert.Equal(t, "from m import bar\nbar()\n", res.Ops[1].NewContents)
}

func TestRename_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		offset  int
		newName string
		want    error
	}{
		{"builtin", "print(1)\n", 0, "show", engine.ErrUnsupported},
		{"module same name", "x = 1\n", engine.NoOffset, "m", engine.ErrInvalidArgument},
		{"imported receiver", "import subprocess\nsubprocess.run(1)\n", 29, "go", engine.ErrUnsupported},
		{"ambiguous member", "class A:\n    def run(self):\n        pass\n\nclass B:\n    def run(self):\n        pass\n\ndef f(x):\n    x.run()\n", 100, "go", engine.ErrUnsupported},
		{"member of no class", "def f(x):\n    return x.size\n", 23, "length", engine.ErrUnsupported},
		{"bad identifier", "x = 1\n", 0, "1abc", engine.ErrInvalidArgument},
		{"keyword", "x = 1\n", 0, "class", engine.ErrInvalidArgument},
		{"same name", "x = 1\n", 0, "x", engine.ErrInvalidArgument},
		{"no name", "x = 1\n", 2, "y", engine.ErrNoTarget},
		{"offset out of range", "x = 1\n", 100, "y", engine.ErrInvalidArgument},
		{"syntax error", "def f(:\n", 4, "g", engine.ErrSyntax},
		{"imported module", "import os\nos.getcwd()\n", 7, "sys", engine.ErrUnsupported},
		{"outside project", "from os import path\npath\n", 20, "p", engine.ErrUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newMemProject("/work", map[string]string{"m.py": tt.src})
			_, err := New().Rename(context.Background(), target(p, "m.py", tt.offset), tt.newName)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRename_SeesEditedFiles(t *testing.T) {
	p := newMemProject("/work", map[string]string{"m.py": "def foo():\n    pass\n"})
	e := New()
	ctx := context.Background()

	_, err := e.Rename(ctx, target(p, "m.py", 4), "bar")
	require.NoError(t, err)

	p.set("n.py", "from m import foo\n")
	res, err := e.Rename(ctx, target(p, "m.py", 4), "bar")
	require.NoError(t, err)
	assert.Equal(t, []string{"m.py", "n.py"}, paths(res))
}
