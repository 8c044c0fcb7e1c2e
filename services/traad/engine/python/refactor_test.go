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

	"github.com/AleutianAI/traad/services/traad/ast"
	"github.com/AleutianAI/traad/services/traad/engine"
)

// =============================================================================
// Inline Tests
// =============================================================================

func TestInline_LocalVariable(t *testing.T) {
	src := "def f():\n    x = 1 + 2\n    return x * x\n"
	p := newMemProject("/work", map[string]string{"m.py": src})

	res, err := New().Inline(context.Background(), target(p, "m.py", at(t, src, "x =")))
	require.NoError(t, err)

	assert.Equal(t, "Inline variable <x>", res.Description)
	require.Len(t, res.Ops, 1)
	assert.Equal(t, "def f():\n    return (1 + 2) * (1 + 2)\n", res.Ops[0].NewContents)
}

func TestInline_ModuleVariable(t *testing.T) {
	src := "X = 1\nprint(X)\n"
	p := newMemProject("/work", map[string]string{"m.py": src})

	res, err := New().Inline(context.Background(), target(p, "m.py", at(t, src, "X)")))
	require.NoError(t, err)

	require.Len(t, res.Ops, 1)
	assert.Equal(t, "print(1)\n", res.Ops[0].NewContents)
}

func TestInline_Errors(t *testing.T) {
	t.Run("assigned twice", func(t *testing.T) {
		src := "def f():\n    x = 1\n    x = 2\n    return x\n"
		p := newMemProject("/work", map[string]string{"m.py": src})
		_, err := New().Inline(context.Background(), target(p, "m.py", at(t, src, "x = 1")))
		assert.ErrorIs(t, err, engine.ErrUnsupported)
	})

	t.Run("parameter", func(t *testing.T) {
		src := "def f(x):\n    return x\n"
		p := newMemProject("/work", map[string]string{"m.py": src})
		_, err := New().Inline(context.Background(), target(p, "m.py", at(t, src, "x\n")))
		assert.ErrorIs(t, err, engine.ErrUnsupported)
	})

	t.Run("imported elsewhere", func(t *testing.T) {
		p := newMemProject("/work", map[string]string{
			"m.py": "X = 1\nprint(X)\n",
			"n.py": "from m import X\n",
		})
		_, err := New().Inline(context.Background(), target(p, "m.py", 0))
		assert.ErrorIs(t, err, engine.ErrUnsupported)
	})
}

// =============================================================================
// Extract Tests
// =============================================================================

func TestExtractVariable(t *testing.T) {
	src := "def f(a, b):\n    return a * b + 1\n"
	p := newMemProject("/work", map[string]string{"m.py": src})
	start := at(t, src, "a * b")

	res, err := New().ExtractVariable(context.Background(), target(p, "m.py", start), start+len("a * b"), "prod")
	require.NoError(t, err)

	assert.Equal(t, "Extract variable <prod>", res.Description)
	require.Len(t, res.Ops, 1)
	assert.Equal(t, "def f(a, b):\n    prod = a * b\n    return prod + 1\n", res.Ops[0].NewContents)
}

func TestExtractVariable_Errors(t *testing.T) {
	src := "def f(a, b):\n    return a * b + 1\n"
	p := newMemProject("/work", map[string]string{"m.py": src})
	e := New()
	ctx := context.Background()
	start := at(t, src, "a * b")

	_, err := e.ExtractVariable(ctx, target(p, "m.py", start), start+3, "part")
	assert.ErrorIs(t, err, engine.ErrInvalidArgument, "partial expression")

	_, err = e.ExtractVariable(ctx, target(p, "m.py", start), start, "prod")
	assert.ErrorIs(t, err, engine.ErrInvalidArgument, "empty region")

	_, err = e.ExtractVariable(ctx, target(p, "m.py", start), start+5, "not valid")
	assert.ErrorIs(t, err, engine.ErrInvalidArgument, "bad name")
}

func TestExtractMethod_Statements(t *testing.T) {
	src := "def f(a):\n    b = a + 1\n    c = b * 2\n    return c\n"
	p := newMemProject("/work", map[string]string{"m.py": src})
	start := at(t, src, "b = a")
	end := at(t, src, "\n    return")

	res, err := New().ExtractMethod(context.Background(), target(p, "m.py", start), end, "g")
	require.NoError(t, err)

	assert.Equal(t, "Extract method <g>", res.Description)
	require.Len(t, res.Ops, 1)
	assert.Equal(t,
		"def g(a):\n    b = a + 1\n    c = b * 2\n    return c\n\n\ndef f(a):\n    c = g(a)\n    return c\n",
		res.Ops[0].NewContents)
}

func TestExtractMethod_Expression(t *testing.T) {
	src := "def f(a, b):\n    return a * b + 1\n"
	p := newMemProject("/work", map[string]string{"m.py": src})
	start := at(t, src, "a * b")

	res, err := New().ExtractMethod(context.Background(), target(p, "m.py", start), start+len("a * b"), "mul")
	require.NoError(t, err)

	require.Len(t, res.Ops, 1)
	assert.Equal(t,
		"def mul(a, b):\n    return a * b\n\n\ndef f(a, b):\n    return mul(a, b) + 1\n",
		res.Ops[0].NewContents)
}

func TestExtractMethod_Errors(t *testing.T) {
	src := "def f(a):\n    if a:\n        return 1\n    return 2\n"
	p := newMemProject("/work", map[string]string{"m.py": src})
	e := New()
	ctx := context.Background()

	start := at(t, src, "if a")
	end := at(t, src, "\n    return 2")
	_, err := e.ExtractMethod(ctx, target(p, "m.py", start), end, "g")
	assert.ErrorIs(t, err, engine.ErrUnsupported, "region returns")

	_, err = e.ExtractMethod(ctx, target(p, "m.py", start), end, "f")
	assert.ErrorIs(t, err, engine.ErrInvalidArgument, "name taken")
}

// =============================================================================
// Change Signature Tests
// =============================================================================

func TestChangeSignature(t *testing.T) {
	src := "def f(a, b, c=3):\n    return a + b + c\n\n\nf(1, 2)\nf(1, b=2, c=4)\n"
	p := newMemProject("/work", map[string]string{"m.py": src})
	change := engine.SignatureChange{
		Order:  []int{1, 0},
		Remove: []string{"c"},
		Add:    []engine.NewParam{{Name: "d", Default: "None"}},
	}

	res, err := New().ChangeSignature(context.Background(), target(p, "m.py", 4), change)
	require.NoError(t, err)

	assert.Equal(t, "Change signature of <f>", res.Description)
	require.Len(t, res.Ops, 1)
	assert.Equal(t,
		"def f(b, a, d=None):\n    return a + b + c\n\n\nf(2, 1)\nf(b=2, a=1)\n",
		res.Ops[0].NewContents)
}

func TestChangeSignature_MethodAcrossModules(t *testing.T) {
	p := newMemProject("/work", map[string]string{
		"shapes.py": "class Box:\n    def resize(self, w, h):\n        pass\n",
		"main.py":   "from shapes import Box\n\nBox().resize(1, 2)\n",
	})
	src := p.files["shapes.py"]

	res, err := New().ChangeSignature(context.Background(),
		target(p, "shapes.py", at(t, src, "resize")),
		engine.SignatureChange{Order: []int{1, 0}})
	require.NoError(t, err)

	got := contents(res)
	assert.Equal(t, "class Box:\n    def resize(self, h, w):\n        pass\n", got["shapes.py"])
	assert.Equal(t, "from shapes import Box\n\nBox().resize(2, 1)\n", got["main.py"])
}

func TestPlanSignature_Errors(t *testing.T) {
	tests := []struct {
		name   string
		change engine.SignatureChange
		want   error
	}{
		{"unknown removal", engine.SignatureChange{Remove: []string{"z"}}, engine.ErrInvalidArgument},
		{"short order", engine.SignatureChange{Order: []int{0}}, engine.ErrInvalidArgument},
		{"repeated order", engine.SignatureChange{Order: []int{0, 0}}, engine.ErrInvalidArgument},
		{"no default", engine.SignatureChange{Add: []engine.NewParam{{Name: "z"}}}, engine.ErrInvalidArgument},
		{"duplicate", engine.SignatureChange{Add: []engine.NewParam{{Name: "a", Default: "1"}}}, engine.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "def f(a, b):\n    pass\n"
			p := newMemProject("/work", map[string]string{"m.py": src})
			_, err := New().ChangeSignature(context.Background(), target(p, "m.py", 4), tt.change)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestChangeSignature_VariadicUnsupported(t *testing.T) {
	src := "def f(a, *rest):\n    pass\n"
	p := newMemProject("/work", map[string]string{"m.py": src})

	_, err := New().ChangeSignature(context.Background(), target(p, "m.py", 4), engine.SignatureChange{})
	assert.ErrorIs(t, err, engine.ErrUnsupported)
}

// =============================================================================
// Organize Imports Tests
// =============================================================================

func TestOrganizeImports(t *testing.T) {
	src := "import sys\nimport os\nfrom b import y, x\nfrom a import z\n\nprint(os.name, x, z)\n"
	p := newMemProject("/work", map[string]string{"m.py": src})
	e := New()
	ctx := context.Background()

	res, err := e.OrganizeImports(ctx, target(p, "m.py", engine.NoOffset))
	require.NoError(t, err)

	assert.Equal(t, "Organize imports", res.Description)
	require.Len(t, res.Ops, 1)
	organized := res.Ops[0].NewContents
	assert.Equal(t, "import os\nfrom a import z\nfrom b import x\n\nprint(os.name, x, z)\n", organized)

	p.set("m.py", organized)
	res, err = e.OrganizeImports(ctx, target(p, "m.py", engine.NoOffset))
	require.NoError(t, err)
	assert.Empty(t, res.Ops)
}

func TestOrganizeImports_KeepsDocstringAndAll(t *testing.T) {
	src := "\"\"\"Module.\"\"\"\nfrom .sibling import helper\nimport json\n\n__all__ = [\"helper\"]\n"
	p := newMemProject("/work", map[string]string{"pkg/m.py": src})

	res, err := New().OrganizeImports(context.Background(), target(p, "pkg/m.py", engine.NoOffset))
	require.NoError(t, err)

	require.Len(t, res.Ops, 1)
	assert.Equal(t, "\"\"\"Module.\"\"\"\nfrom .sibling import helper\n\n__all__ = [\"helper\"]\n", res.Ops[0].NewContents)
}

func TestRenderImports_Order(t *testing.T) {
	out := renderImports([]importEntry{
		{from: true, level: 1, module: "local", name: ast.ImportedName{Name: "b"}},
		{from: true, module: "pkg", wildcard: true},
		{from: true, module: "pkg", name: ast.ImportedName{Name: "a"}},
		{name: ast.ImportedName{Name: "zlib"}},
		{name: ast.ImportedName{Name: "abc"}},
		{name: ast.ImportedName{Name: "abc"}},
	})
	assert.Equal(t, "import abc\nimport zlib\nfrom pkg import *\nfrom pkg import a\nfrom .local import b\n", out)
}
