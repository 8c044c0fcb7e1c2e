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
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/traad/services/traad/ast"
	"github.com/AleutianAI/traad/services/traad/engine"
)

// renameModule renames m within its package and rewrites every import of
// it. Content changes come first and the move comes last, so each change
// applies to a file before it moves. A package is renamed by moving its
// directory.
func (e *Engine) renameModule(ctx context.Context, ix *index, m *module, newName string) (*engine.Result, error) {
	if m.name == "" {
		return nil, engine.Errorf(engine.ErrUnsupported, "%s is not an importable module", m.path)
	}
	mv := moduleMove{
		old:     m.name,
		index:   strings.Count(m.name, "."),
		last:    m.name[strings.LastIndexByte(m.name, '.')+1:],
		newName: newName,
	}
	if mv.last == newName {
		return nil, engine.Errorf(engine.ErrInvalidArgument, "%s is already named %s", m.name, newName)
	}
	newFull := newName
	if parent := parentModule(m.name); parent != "" {
		newFull = parent + "." + newName
	}
	if ix.byName[newFull] != nil {
		return nil, engine.Errorf(engine.ErrInvalidArgument, "module %s already exists", newFull)
	}

	res := &engine.Result{Description: fmt.Sprintf("Renaming module <%s> to <%s>", m.name, newFull)}
	needle := []byte(mv.last)
	for _, other := range ix.modules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !bytes.Contains(other.source, needle) {
			continue
		}
		f, err := e.open(ctx, other)
		if err != nil {
			return nil, err
		}
		out, err := mv.rewrite(f)
		f.close()
		if err != nil {
			return nil, err
		}
		res.Ops = appendChange(res.Ops, other, out)
	}

	op := engine.Op{
		Kind:    engine.OpMove,
		Project: m.project,
		Path:    m.path,
		NewPath: path.Join(path.Dir(m.path), newName+path.Ext(m.path)),
	}
	if isPackageFile(m.path) {
		dir := path.Dir(m.path)
		op.Path, op.NewPath, op.IsFolder = dir, path.Join(path.Dir(dir), newName), true
	}
	res.Ops = append(res.Ops, op)
	return res, nil
}

// moduleMove renames the last segment of the dotted module old.
type moduleMove struct {
	old     string
	index   int
	last    string
	newName string
}

// covers reports whether the absolute module full is old or inside it.
func (mv moduleMove) covers(full string) bool {
	return full == mv.old || strings.HasPrefix(full, mv.old+".")
}

// segment returns the edit of the renamed segment in the dotted_name d,
// which spells the tail of the absolute module full.
func (mv moduleMove) segment(d *sitter.Node, full string) (textEdit, bool) {
	if d == nil || d.Type() != ast.NodeDottedName || !mv.covers(full) {
		return textEdit{}, false
	}
	parts := int(d.NamedChildCount())
	i := mv.index - (strings.Count(full, ".") + 1 - parts)
	if i < 0 || i >= parts {
		return textEdit{}, false
	}
	id := d.NamedChild(i)
	return textEdit{start: int(id.StartByte()), end: int(id.EndByte()), text: mv.newName}, true
}

// rewrite returns the source of f with its imports of the module renamed.
// Uses of the names an unaliased import binds are renamed with them.
func (mv moduleMove) rewrite(f *file) (string, error) {
	var (
		edits []textEdit
		bare  bool
		chain bool
	)
	ast.Walk(f.tree.Root(), func(n *sitter.Node) bool {
		switch n.Type() {
		case ast.NodeImportStatement:
			for i := 0; i < int(n.NamedChildCount()); i++ {
				d, aliased := importedName(n.NamedChild(i))
				full := dottedText(f, d)
				if e, ok := mv.segment(d, full); ok {
					edits = append(edits, e)
					if !aliased {
						bare = bare || mv.index == 0
						chain = chain || mv.index > 0
					}
				}
			}
			return false
		case ast.NodeImportFromStatement:
			imp := ast.ParseImport(f.tree, n)
			base, ok := resolveRelative(f.mod.path, imp.Level, imp.Module)
			if !ok {
				return false
			}
			mn := n.ChildByFieldName("module_name")
			if e, ok := mv.segment(moduleDotted(mn), base); ok {
				edits = append(edits, e)
			}
			for i := 0; i < int(n.NamedChildCount()); i++ {
				c := n.NamedChild(i)
				if ast.SameNode(c, mn) {
					continue
				}
				d, aliased := importedName(c)
				full := base + "." + dottedText(f, d)
				if e, ok := mv.segment(d, full); ok {
					edits = append(edits, e)
					bare = bare || (!aliased && full == mv.old)
				}
			}
			return false
		}
		return true
	})
	if len(edits) == 0 {
		return string(f.mod.source), nil
	}
	if err := f.checkSyntax(); err != nil {
		return "", err
	}

	root := f.tree.Root()
	if bare {
		for _, id := range f.refs(root, mv.last, true) {
			edits = append(edits, textEdit{start: int(id.StartByte()), end: int(id.EndByte()), text: mv.newName})
		}
	}
	if chain {
		ast.Walk(root, func(n *sitter.Node) bool {
			if n.Type() == ast.NodeAttribute && f.exprPath(n) == mv.old {
				attr := n.ChildByFieldName("attribute")
				edits = append(edits, textEdit{start: int(attr.StartByte()), end: int(attr.EndByte()), text: mv.newName})
				return false
			}
			return true
		})
	}
	return applyEdits(f.mod.source, edits)
}

// importedName returns the dotted_name an import clause names and whether
// the clause binds an alias instead.
func importedName(c *sitter.Node) (*sitter.Node, bool) {
	if c.Type() == ast.NodeAliasedImport {
		return c.ChildByFieldName("name"), true
	}
	return c, false
}

// moduleDotted returns the dotted_name of a from-import's module_name.
func moduleDotted(mn *sitter.Node) *sitter.Node {
	if mn == nil || mn.Type() != ast.NodeRelativeImport {
		return mn
	}
	for i := 0; i < int(mn.NamedChildCount()); i++ {
		if c := mn.NamedChild(i); c.Type() == ast.NodeDottedName {
			return c
		}
	}
	return nil
}

// dottedText joins the identifiers of the dotted_name d.
func dottedText(f *file, d *sitter.Node) string {
	if d == nil || d.Type() != ast.NodeDottedName {
		return ""
	}
	parts := make([]string, 0, d.NamedChildCount())
	for i := 0; i < int(d.NamedChildCount()); i++ {
		parts = append(parts, f.tree.Text(d.NamedChild(i)))
	}
	return strings.Join(parts, ".")
}

// exprPath spells a chain of names and attributes such as a.b.c, or ""
// for any other expression.
func (f *file) exprPath(n *sitter.Node) string {
	switch n.Type() {
	case ast.NodeIdentifier:
		return f.tree.Text(n)
	case ast.NodeAttribute:
		obj := n.ChildByFieldName("object")
		attr := n.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return ""
		}
		if head := f.exprPath(obj); head != "" {
			return head + "." + f.tree.Text(attr)
		}
	}
	return ""
}
