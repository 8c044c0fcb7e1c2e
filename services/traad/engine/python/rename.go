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
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/traad/services/traad/ast"
	"github.com/AleutianAI/traad/services/traad/engine"
)

// Rename renames the symbol at the target offset in every module that
// refers to it. The target module's edits come first. Without an offset it
// renames the target module itself.
//
// Description:
//
//	Local variables and parameters are renamed within their function.
//	Module-level names are renamed in the defining module and in every
//	module that imports them, following re-exports. Attributes of imported
//	modules resolve to that module's globals; other attributes are renamed
//	as class members within the hierarchy of the member's class. A
//	receiver of unknown type is renamed only when no other class defines
//	the member.
//
//	A module rename moves the file, or the directory of a package, and
//	rewrites the imports that name it.
//
// Errors:
//
//	engine.ErrUnsupported     - builtins, names defined outside the
//	                            workspace, ambiguous members
//	engine.ErrInvalidArgument - bad identifier or offset, existing module
//	engine.ErrNoTarget        - no identifier at the offset
//	engine.ErrSyntax          - an affected file does not parse
func (e *Engine) Rename(ctx context.Context, t engine.Target, newName string) (res *engine.Result, err error) {
	ctx, done := observe(ctx, "rename", t.Path)
	defer func() { done(err) }()

	if !isIdentifier(newName) || keywordSet[newName] {
		return nil, engine.Errorf(engine.ErrInvalidArgument, "%q is not a valid identifier", newName)
	}

	ix, m, err := e.target(ctx, t)
	if err != nil {
		return nil, err
	}
	if t.Offset == engine.NoOffset {
		return e.renameModule(ctx, ix, m, newName)
	}
	f, err := e.open(ctx, m)
	if err != nil {
		return nil, err
	}
	defer f.close()

	if err := f.checkSyntax(); err != nil {
		return nil, err
	}
	id, err := f.identifierAt(t.Offset)
	if err != nil {
		return nil, err
	}
	ref, err := ix.resolve(f, id)
	if err != nil {
		return nil, err
	}
	if ref.name == newName {
		return nil, engine.Errorf(engine.ErrInvalidArgument, "%s is already named %s", ref.name, newName)
	}

	res = &engine.Result{Description: fmt.Sprintf("Renaming <%s> to <%s>", ref.name, newName)}
	err = e.occurrences(ctx, ix, f, ref, func(rf *file, nodes []*sitter.Node) error {
		if err := rf.checkSyntax(); err != nil {
			return err
		}
		edits := make([]textEdit, len(nodes))
		for i, n := range nodes {
			edits[i] = textEdit{start: int(n.StartByte()), end: int(n.EndByte()), text: newName}
		}
		out, err := applyEdits(rf.mod.source, edits)
		if err != nil {
			return err
		}
		res.Ops = appendChange(res.Ops, rf.mod, out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// identifierAt returns the identifier at a character offset.
func (f *file) identifierAt(offset int) (*sitter.Node, error) {
	b, err := byteOffset(f.mod.source, offset)
	if err != nil {
		return nil, err
	}
	id := f.tree.IdentifierAt(b)
	if id == nil {
		return nil, engine.Errorf(engine.ErrNoTarget, "no name at offset %d of %s", offset, f.mod.path)
	}
	return id, nil
}

// appendChange appends a content change for m unless out equals its source.
func appendChange(ops []engine.Op, m *module, out string) []engine.Op {
	if out == string(m.source) {
		return ops
	}
	return append(ops, engine.Op{
		Kind:        engine.OpChange,
		Project:     m.project,
		Path:        m.path,
		OldContents: string(m.source),
		NewContents: out,
	})
}

// =============================================================================
// Occurrences
// =============================================================================

// occurrences calls fn once per module that refers to ref, origin first and
// then in index order, with the referring identifiers in source order.
// Trees other than origin's are closed after fn returns.
func (e *Engine) occurrences(ctx context.Context, ix *index, origin *file, ref symbolRef, fn func(*file, []*sitter.Node) error) error {
	if ref.kind == refLocal {
		return fn(origin, origin.refs(ref.scope, ref.name, false))
	}

	order := []*module{origin.mod}
	for _, m := range ix.modules {
		if m != origin.mod {
			order = append(order, m)
		}
	}

	needle := []byte(ref.name)
	for _, m := range order {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !bytes.Contains(m.source, needle) {
			continue
		}

		f := origin
		if m != origin.mod {
			var err error
			if f, err = e.open(ctx, m); err != nil {
				return err
			}
		}

		var nodes []*sitter.Node
		if ref.kind == refMember {
			nodes = f.memberRefs(ref.family)
		} else {
			nodes = ix.globalRefs(f, ref)
		}

		var err error
		if len(nodes) > 0 {
			err = fn(f, sortNodes(nodes))
		}
		if f != origin {
			f.close()
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// globalRefs finds the references in f to the module-level name ref.
func (ix *index) globalRefs(f *file, ref symbolRef) []*sitter.Node {
	m := f.mod
	root := f.tree.Root()

	var out []*sitter.Node
	if m == ref.module {
		out = append(out, f.refs(root, ref.name, true)...)
	}

	bare := false
	var aliases []string
	for _, imp := range m.summary.Imports {
		if !imp.IsFrom {
			for _, n := range imp.Names {
				switch {
				case n.Name != ref.module.name:
				case n.Alias != "":
					aliases = append(aliases, n.Alias)
				default:
					aliases = append(aliases, n.Name)
				}
			}
			continue
		}
		base, ok := resolveRelative(m.path, imp.Level, imp.Module)
		if !ok {
			continue
		}
		src := ix.byName[base]
		for _, n := range imp.Names {
			if m != ref.module && src != nil && n.Name == ref.name && n.Alias == "" &&
				ix.definition(src, ref.name) == ref.module {
				bare = true
			}
			if ix.byName[base+"."+n.Name] == ref.module {
				aliases = append(aliases, n.Bound())
			}
		}
	}
	if bare {
		out = append(out, f.refs(root, ref.name, true)...)
	}

	ast.Walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case ast.NodeIdentifier:
			if f.tree.Text(n) == ref.name && roleOf(n) == roleImportName {
				stmt := ast.Ancestor(n, ast.NodeImportFromStatement)
				if src := ix.fromModule(m, ast.ParseImport(f.tree, stmt)); src != nil &&
					ix.definition(src, ref.name) == ref.module {
					out = append(out, n)
				}
			}
			return false
		case ast.NodeAttribute:
			attr := n.ChildByFieldName("attribute")
			if attr == nil || f.tree.Text(attr) != ref.name {
				return true
			}
			obj := f.tree.Text(n.ChildByFieldName("object"))
			for _, a := range aliases {
				if obj == a {
					out = append(out, attr)
					break
				}
			}
		}
		return true
	})
	return out
}

// sortNodes orders nodes by position and drops duplicates.
func sortNodes(nodes []*sitter.Node) []*sitter.Node {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].StartByte() < nodes[j].StartByte()
	})
	out := nodes[:0]
	for _, n := range nodes {
		if len(out) > 0 && n.StartByte() == out[len(out)-1].StartByte() {
			continue
		}
		out = append(out, n)
	}
	return out
}
