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
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/traad/services/traad/ast"
	"github.com/AleutianAI/traad/services/traad/engine"
)

// atomicTypes are expressions that need no parentheses when substituted.
var atomicTypes = map[string]bool{
	ast.NodeIdentifier:              true,
	ast.NodeString:                  true,
	ast.NodeCall:                    true,
	ast.NodeAttribute:               true,
	ast.NodeParenthesizedExpression: true,
	"integer":                       true,
	"float":                         true,
	"true":                          true,
	"false":                         true,
	"none":                          true,
	"ellipsis":                      true,
	"concatenated_string":           true,
	"subscript":                     true,
	"list":                          true,
	"dictionary":                    true,
	"set":                           true,
	"tuple":                         true,
	"list_comprehension":            true,
	"dictionary_comprehension":      true,
	"set_comprehension":             true,
	"generator_expression":          true,
}

// Inline replaces every use of the variable at the target offset with its
// value and removes the assignment.
//
// Description:
//
//	The variable must be assigned exactly once with a plain "name = value"
//	statement in its scope. Non-atomic values are parenthesized at each use.
//	A module-level variable imported by another module is not inlined.
func (e *Engine) Inline(ctx context.Context, t engine.Target) (res *engine.Result, err error) {
	ctx, done := observe(ctx, "inline", t.Path)
	defer func() { done(err) }()

	ix, m, err := e.target(ctx, t)
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
	id, err := f.identifierAt(t.Offset)
	if err != nil {
		return nil, err
	}
	ref, err := ix.resolve(f, id)
	if err != nil {
		return nil, err
	}

	var scope *sitter.Node
	switch {
	case ref.kind == refLocal:
		scope = ref.scope
	case ref.kind == refGlobal && ref.module == m:
		scope = f.tree.Root()
	default:
		return nil, engine.Errorf(engine.ErrUnsupported, "only variables of %s can be inlined here", m.path)
	}

	refs := f.refs(scope, ref.name, ref.kind == refGlobal)
	var assign *sitter.Node
	var uses []*sitter.Node
	for _, n := range refs {
		switch bindingOf(n) {
		case bindNone:
			uses = append(uses, n)
		case bindAssign:
			if assign != nil {
				return nil, engine.Errorf(engine.ErrUnsupported, "%s is assigned more than once", ref.name)
			}
			assign = n.Parent()
		default:
			return nil, engine.Errorf(engine.ErrUnsupported, "%s is not a variable assigned once", ref.name)
		}
	}
	if assign == nil {
		return nil, engine.Errorf(engine.ErrUnsupported, "no assignment of %s to inline", ref.name)
	}

	if ref.kind == refGlobal {
		for _, other := range ix.modules {
			if other != m && importsName(ix, other, m, ref.name) {
				return nil, engine.Errorf(engine.ErrUnsupported, "%s is imported by %s", ref.name, other.path)
			}
		}
	}

	value := assign.ChildByFieldName("right")
	for _, u := range uses {
		if ast.Contains(value, u) {
			return nil, engine.Errorf(engine.ErrUnsupported, "%s is used in its own definition", ref.name)
		}
	}
	text := f.tree.Text(value)
	if !atomicTypes[value.Type()] {
		text = "(" + text + ")"
	}

	stmt := assign.Parent()
	start, end := statementLines(m.source, int(stmt.StartByte()), int(stmt.EndByte()))
	edits := []textEdit{{start: start, end: end}}
	for _, u := range uses {
		edits = append(edits, textEdit{start: int(u.StartByte()), end: int(u.EndByte()), text: text})
	}
	out, err := applyEdits(m.source, edits)
	if err != nil {
		return nil, err
	}

	res = &engine.Result{Description: fmt.Sprintf("Inline variable <%s>", ref.name)}
	res.Ops = appendChange(res.Ops, m, out)
	return res, nil
}

// importsName reports whether importer has a from-import of name resolving
// to def.
func importsName(ix *index, importer, def *module, name string) bool {
	for _, imp := range importer.summary.Imports {
		if !imp.IsFrom {
			continue
		}
		src := ix.fromModule(importer, imp)
		if src == nil {
			continue
		}
		for _, n := range imp.Names {
			if n.Name == name && ix.definition(src, name) == def {
				return true
			}
		}
	}
	return false
}
