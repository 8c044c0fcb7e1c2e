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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/traad/services/traad/ast"
	"github.com/AleutianAI/traad/services/traad/engine"
)

// signaturePlan is a validated signature change.
type signaturePlan struct {
	// self is the implicit first parameter of a method, if any.
	self *ast.Param

	// old are the explicit parameters before the change.
	old []ast.Param

	// updated are the explicit parameters after the change.
	updated []ast.Param
}

// planSignature validates change against params.
func planSignature(params []ast.Param, method bool, change engine.SignatureChange) (*signaturePlan, error) {
	plan := &signaturePlan{}
	if method && len(params) > 0 && params[0].Star == "" &&
		(params[0].Name == "self" || params[0].Name == "cls") {
		self := params[0]
		plan.self = &self
		params = params[1:]
	}
	for _, p := range params {
		if p.Star != "" {
			return nil, engine.Errorf(engine.ErrUnsupported,
				"functions with *args, **kwargs or keyword-only markers are not supported")
		}
	}
	plan.old = params

	removed := make(map[string]bool, len(change.Remove))
	for _, name := range change.Remove {
		found := false
		for _, p := range params {
			if p.Name == name {
				found = true
				break
			}
		}
		if !found {
			return nil, engine.Errorf(engine.ErrInvalidArgument, "no parameter named %s", name)
		}
		removed[name] = true
	}

	var kept []ast.Param
	for _, p := range params {
		if !removed[p.Name] {
			kept = append(kept, p)
		}
	}

	if len(change.Order) > 0 {
		if len(change.Order) != len(kept) {
			return nil, engine.Errorf(engine.ErrInvalidArgument,
				"order has %d positions for %d parameters", len(change.Order), len(kept))
		}
		reordered := make([]ast.Param, len(kept))
		filled := make([]bool, len(kept))
		for i, pos := range change.Order {
			if pos < 0 || pos >= len(kept) || filled[pos] {
				return nil, engine.Errorf(engine.ErrInvalidArgument, "order %v is not a permutation", change.Order)
			}
			filled[pos] = true
			reordered[pos] = kept[i]
		}
		kept = reordered
	}

	names := make(map[string]bool)
	for _, p := range kept {
		names[p.Name] = true
	}
	if plan.self != nil {
		names[plan.self.Name] = true
	}
	for _, a := range change.Add {
		if !isIdentifier(a.Name) || keywordSet[a.Name] {
			return nil, engine.Errorf(engine.ErrInvalidArgument, "%q is not a valid identifier", a.Name)
		}
		if names[a.Name] {
			return nil, engine.Errorf(engine.ErrInvalidArgument, "parameter %s already exists", a.Name)
		}
		if strings.TrimSpace(a.Default) == "" {
			return nil, engine.Errorf(engine.ErrInvalidArgument, "added parameter %s needs a default value", a.Name)
		}
		names[a.Name] = true
		kept = append(kept, ast.Param{Name: a.Name, Default: a.Default})
	}

	seenDefault := false
	for _, p := range kept {
		if p.Default != "" {
			seenDefault = true
		} else if seenDefault {
			return nil, engine.Errorf(engine.ErrInvalidArgument,
				"parameter %s without a default follows one with a default", p.Name)
		}
	}
	plan.updated = kept
	return plan, nil
}

// parameters renders the new parameter list.
func (p *signaturePlan) parameters() string {
	var parts []string
	if p.self != nil {
		parts = append(parts, p.self.String())
	}
	for _, param := range p.updated {
		parts = append(parts, param.String())
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// arguments rewrites one call's argument list. bound marks calls through an
// instance or class, where self is implicit.
func (p *signaturePlan) arguments(t *ast.Tree, args *sitter.Node, bound bool) (string, error) {
	params := p.old
	if p.self != nil && !bound {
		params = append([]ast.Param{*p.self}, params...)
	}
	where := fmt.Sprintf("%s:%d", t.Path, args.StartPoint().Row+1)

	type value struct {
		text       string
		positional bool
	}
	provided := make(map[string]value)
	var extra []string
	pos := 0
	for i := 0; i < int(args.NamedChildCount()); i++ {
		c := args.NamedChild(i)
		switch c.Type() {
		case ast.NodeComment:
		case ast.NodeListSplat, ast.NodeDictionarySplat:
			return "", engine.Errorf(engine.ErrUnsupported, "the call at %s passes *args or **kwargs", where)
		case ast.NodeKeywordArgument:
			name := t.Text(c.ChildByFieldName("name"))
			text := t.Text(c.ChildByFieldName("value"))
			if known(params, name) {
				provided[name] = value{text: text}
			} else {
				extra = append(extra, name+"="+text)
			}
		default:
			if pos >= len(params) {
				return "", engine.Errorf(engine.ErrInvalidArgument, "the call at %s passes too many arguments", where)
			}
			provided[params[pos].Name] = value{text: t.Text(c), positional: true}
			pos++
		}
	}

	order := p.updated
	var parts []string
	if p.self != nil && !bound {
		order = append([]ast.Param{*p.self}, order...)
	}
	keywordsOnly := false
	for _, param := range order {
		v, ok := provided[param.Name]
		if !ok {
			keywordsOnly = true
			continue
		}
		if v.positional && !keywordsOnly {
			parts = append(parts, v.text)
			continue
		}
		keywordsOnly = true
		parts = append(parts, param.Name+"="+v.text)
	}
	parts = append(parts, extra...)
	return "(" + strings.Join(parts, ", ") + ")", nil
}

func known(params []ast.Param, name string) bool {
	for _, p := range params {
		if p.Name == name {
			return true
		}
	}
	return false
}

// ChangeSignature reorders, removes, or adds parameters of the function at
// the target offset and rewrites every call site found for it.
//
// Description:
//
//	The offset may be on the definition or on any use. For a class, the
//	class's __init__ is changed and calls of the class are rewritten.
//	Calls through an attribute of an object pass self implicitly.
//
// Errors:
//
//	engine.ErrUnsupported     - variadic parameters, splatted call
//	                            arguments, ambiguous methods
//	engine.ErrInvalidArgument - invalid order, names, or defaults
func (e *Engine) ChangeSignature(ctx context.Context, t engine.Target, change engine.SignatureChange) (res *engine.Result, err error) {
	ctx, done := observe(ctx, "change_signature", t.Path)
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

	def, err := e.findDefinition(ctx, ix, f, ref)
	if err != nil {
		return nil, err
	}
	plan, err := planSignature(def.params, def.method, change)
	if err != nil {
		return nil, err
	}

	res = &engine.Result{Description: fmt.Sprintf("Change signature of <%s>", ref.name)}
	defSeen := false
	err = e.occurrences(ctx, ix, f, ref, func(rf *file, nodes []*sitter.Node) error {
		if err := rf.checkSyntax(); err != nil {
			return err
		}
		var edits []textEdit
		if rf.mod == def.module {
			defSeen = true
			edits = append(edits, textEdit{start: def.start, end: def.end, text: plan.parameters()})
		}
		for _, n := range nodes {
			call, bound := callOf(n)
			if call == nil {
				continue
			}
			if def.class != "" && ref.kind == refGlobal {
				bound = true
			}
			args := call.ChildByFieldName("arguments")
			if args == nil || args.Type() != ast.NodeArgumentList {
				continue
			}
			text, err := plan.arguments(rf.tree, args, bound)
			if err != nil {
				return err
			}
			edits = append(edits, textEdit{start: int(args.StartByte()), end: int(args.EndByte()), text: text})
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
	if !defSeen {
		return nil, engine.Errorf(engine.ErrNoTarget, "definition of %s not found", ref.name)
	}
	return res, nil
}

// callOf returns the call whose callee is the identifier n, directly or as
// the attribute of obj.n. bound is true for the attribute form.
func callOf(n *sitter.Node) (call *sitter.Node, bound bool) {
	callee := n
	if p := n.Parent(); p != nil && p.Type() == ast.NodeAttribute && roleOf(n) == roleAttribute {
		callee, bound = p, true
	}
	p := callee.Parent()
	if p == nil || p.Type() != ast.NodeCall || !ast.SameNode(p.ChildByFieldName("function"), callee) {
		return nil, false
	}
	return p, bound
}

// funcDef locates a function definition's parameter list.
type funcDef struct {
	module *module
	params []ast.Param
	method bool

	// class is set when the definition is a class's __init__ reached
	// through the class name.
	class string

	// start and end delimit the parameters node in module's source.
	start, end int
}

// findDefinition returns the function that ref names.
func (e *Engine) findDefinition(ctx context.Context, ix *index, origin *file, ref symbolRef) (*funcDef, error) {
	switch ref.kind {
	case refLocal:
		for _, n := range origin.refs(ref.scope, ref.name, false) {
			if def := n.Parent(); def.Type() == ast.NodeFunctionDefinition && ast.SameNode(def.ChildByFieldName("name"), n) {
				return newFuncDef(origin, def, "")
			}
		}
	case refGlobal:
		f := origin
		if ref.module != origin.mod {
			var err error
			if f, err = e.open(ctx, ref.module); err != nil {
				return nil, err
			}
			defer f.close()
		}
		root := f.tree.Root()
		for i := 0; i < int(root.NamedChildCount()); i++ {
			def := unwrapDecorated(root.NamedChild(i))
			name := def.ChildByFieldName("name")
			if name == nil || f.tree.Text(name) != ref.name {
				continue
			}
			switch def.Type() {
			case ast.NodeFunctionDefinition:
				return newFuncDef(f, def, "")
			case ast.NodeClassDefinition:
				if init := methodOf(f, def, "__init__"); init != nil {
					return newFuncDef(f, init, ref.name)
				}
				return nil, engine.Errorf(engine.ErrNoTarget, "class %s has no __init__", ref.name)
			}
		}
	case refMember:
		var found *funcDef
		for _, m := range ix.modules {
			if !strings.Contains(string(m.source), ref.name) {
				continue
			}
			f := origin
			if m != origin.mod {
				var err error
				if f, err = e.open(ctx, m); err != nil {
					return nil, err
				}
			}
			for _, n := range f.memberRefs(ref.family) {
				def := n.Parent()
				if def.Type() != ast.NodeFunctionDefinition || !ast.SameNode(def.ChildByFieldName("name"), n) {
					continue
				}
				if found != nil {
					if f != origin {
						f.close()
					}
					return nil, engine.Errorf(engine.ErrUnsupported, "more than one method is named %s", ref.name)
				}
				var err error
				if found, err = newFuncDef(f, def, ""); err != nil {
					return nil, err
				}
			}
			if f != origin {
				f.close()
			}
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, engine.Errorf(engine.ErrNoTarget, "%s is not a function defined in the project", ref.name)
}

func newFuncDef(f *file, def *sitter.Node, class string) (*funcDef, error) {
	params := def.ChildByFieldName("parameters")
	if params == nil {
		return nil, engine.Errorf(engine.ErrSyntax, "function without parameters in %s", f.mod.path)
	}
	return &funcDef{
		module: f.mod,
		params: ast.Params(f.tree, params),
		method: isMethod(def),
		class:  class,
		start:  int(params.StartByte()),
		end:    int(params.EndByte()),
	}, nil
}

// isMethod reports a function defined directly in a class body.
func isMethod(def *sitter.Node) bool {
	p := def.Parent()
	if p != nil && p.Type() == ast.NodeDecoratedDefinition {
		p = p.Parent()
	}
	if p == nil || p.Type() != ast.NodeBlock {
		return false
	}
	c := p.Parent()
	return c != nil && c.Type() == ast.NodeClassDefinition
}

func unwrapDecorated(n *sitter.Node) *sitter.Node {
	if n.Type() == ast.NodeDecoratedDefinition {
		if def := n.ChildByFieldName("definition"); def != nil {
			return def
		}
	}
	return n
}

// methodOf returns the method name of class.
func methodOf(f *file, class *sitter.Node, name string) *sitter.Node {
	body := class.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		def := unwrapDecorated(body.NamedChild(i))
		if def.Type() == ast.NodeFunctionDefinition && f.tree.Text(def.ChildByFieldName("name")) == name {
			return def
		}
	}
	return nil
}
