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
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/traad/services/traad/ast"
	"github.com/AleutianAI/traad/services/traad/engine"
)

// importEntry is one imported binding of the leading import block.
type importEntry struct {
	from     bool
	level    int
	module   string
	name     ast.ImportedName
	wildcard bool
}

func (e importEntry) source() string {
	return strings.Repeat(".", e.level) + e.module
}

// OrganizeImports removes unused imports from the module's leading import
// block and rewrites it sorted.
//
// Description:
//
//	The block is the run of import statements at the top of the module,
//	after the docstring, ending at the first other statement or comment.
//	__future__ imports, wildcard imports and names listed in __all__ are
//	always kept. The result is __future__ imports, then plain imports one
//	per line, then from-imports merged per module, each group sorted. A
//	module that is already organized yields an empty result.
func (e *Engine) OrganizeImports(ctx context.Context, t engine.Target) (res *engine.Result, err error) {
	ctx, done := observe(ctx, "organize_imports", t.Path)
	defer func() { done(err) }()

	_, m, err := e.target(ctx, t)
	if err != nil {
		return nil, err
	}
	f, err := e.open(ctx, m)
	if err != nil {
		return nil, err
	}
	defer f.close()

	if err := f.checkSyntax(); err != nil {
		return nil, err
	}

	res = &engine.Result{Description: "Organize imports"}
	block := importBlock(f.tree.Root())
	if len(block) == 0 {
		return res, nil
	}

	used := f.usedNames(block)
	var entries []importEntry
	for _, stmt := range block {
		imp := ast.ParseImport(f.tree, stmt)
		if imp.Wildcard {
			entries = append(entries, importEntry{from: true, level: imp.Level, module: imp.Module, wildcard: true})
		}
		for _, n := range imp.Names {
			entry := importEntry{from: imp.IsFrom, level: imp.Level, module: imp.Module, name: n}
			if imp.Module == "__future__" || used[n.Bound()] {
				entries = append(entries, entry)
			}
		}
	}

	src := m.source
	start := ast.LineStart(src, int(block[0].StartByte()))
	end := ast.LineEnd(src, int(block[len(block)-1].EndByte()))
	rendered := renderImports(entries)
	if rendered != "" && !strings.HasSuffix(string(src[start:end]), "\n") {
		rendered = strings.TrimSuffix(rendered, "\n")
	}
	out, err := applyEdits(src, []textEdit{{start: start, end: end, text: rendered}})
	if err != nil {
		return nil, err
	}
	res.Ops = appendChange(res.Ops, m, out)
	return res, nil
}

// importBlock returns the leading import statements of root.
func importBlock(root *sitter.Node) []*sitter.Node {
	var block []*sitter.Node
scan:
	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)
		switch n.Type() {
		case ast.NodeImportStatement, ast.NodeImportFromStatement, ast.NodeFutureImportStatement:
			block = append(block, n)
			continue
		case ast.NodeExpressionStatement:
			if i == 0 && n.NamedChildCount() == 1 && n.NamedChild(0).Type() == ast.NodeString {
				continue
			}
		case ast.NodeComment:
			if len(block) == 0 {
				continue
			}
		}
		break scan
	}
	return block
}

// usedNames collects the names read outside the import block, plus the
// strings of a module-level __all__.
func (f *file) usedNames(block []*sitter.Node) map[string]bool {
	used := make(map[string]bool)
	ast.Walk(f.tree.Root(), func(n *sitter.Node) bool {
		for _, stmt := range block {
			if ast.SameNode(n, stmt) {
				return false
			}
		}
		if n.Type() == ast.NodeIdentifier {
			if roleOf(n) == roleName {
				used[f.tree.Text(n)] = true
			}
			return false
		}
		return true
	})

	root := f.tree.Root()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt.Type() != ast.NodeExpressionStatement || stmt.NamedChildCount() == 0 {
			continue
		}
		assign := stmt.NamedChild(0)
		if assign.Type() != ast.NodeAssignment || f.tree.Text(assign.ChildByFieldName("left")) != "__all__" {
			continue
		}
		ast.Walk(assign.ChildByFieldName("right"), func(n *sitter.Node) bool {
			if n.Type() == ast.NodeString {
				used[ast.CleanDocstring(f.tree.Text(n))] = true
				return false
			}
			return true
		})
	}
	return used
}

// renderImports formats entries as sorted import lines.
func renderImports(entries []importEntry) string {
	var future, plain []string
	fromNames := make(map[string][]string)
	var fromOrder []string
	seen := make(map[string]bool)

	for _, e := range entries {
		var line string
		switch {
		case !e.from:
			line = "import " + e.name.Name
			if e.name.Alias != "" {
				line += " as " + e.name.Alias
			}
			if !seen[line] {
				plain = append(plain, line)
			}
		case e.module == "__future__" && e.level == 0:
			line = "__future__:" + e.name.Name
			if !seen[line] {
				future = append(future, e.name.Name)
			}
		default:
			src := e.source()
			name := "*"
			if !e.wildcard {
				name = e.name.Name
				if e.name.Alias != "" {
					name += " as " + e.name.Alias
				}
			}
			line = src + ":" + name
			if !seen[line] {
				if _, ok := fromNames[src]; !ok {
					fromOrder = append(fromOrder, src)
				}
				fromNames[src] = append(fromNames[src], name)
			}
		}
		seen[line] = true
	}

	var b strings.Builder
	if len(future) > 0 {
		sort.Strings(future)
		b.WriteString("from __future__ import " + strings.Join(future, ", ") + "\n")
	}
	sort.Strings(plain)
	for _, line := range plain {
		b.WriteString(line + "\n")
	}
	sort.Slice(fromOrder, func(i, j int) bool {
		return importSortKey(fromOrder[i]) < importSortKey(fromOrder[j])
	})
	for _, src := range fromOrder {
		names := fromNames[src]
		var star bool
		var rest []string
		for _, n := range names {
			if n == "*" {
				star = true
				continue
			}
			rest = append(rest, n)
		}
		if star {
			b.WriteString("from " + src + " import *\n")
		}
		if len(rest) > 0 {
			sort.Strings(rest)
			b.WriteString("from " + src + " import " + strings.Join(rest, ", ") + "\n")
		}
	}
	return b.String()
}

// importSortKey orders absolute modules before relative ones.
func importSortKey(src string) string {
	if strings.HasPrefix(src, ".") {
		return "\xff" + src
	}
	return src
}
