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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/traad/services/traad/ast"
	"github.com/AleutianAI/traad/services/traad/engine"
)

// =============================================================================
// Identifier Roles
// =============================================================================

// role classifies how an identifier is used.
type role int

const (
	// roleName is a plain name: a read or a binding.
	roleName role = iota

	// roleAttribute is the attribute of obj.attr.
	roleAttribute

	// roleKeyword is the name of a keyword argument.
	roleKeyword

	// roleImportModule is part of a module path in an import.
	roleImportModule

	// roleImportName is a name imported by a from-import.
	roleImportName
)

func roleOf(id *sitter.Node) role {
	p := id.Parent()
	if p == nil {
		return roleName
	}
	switch p.Type() {
	case ast.NodeAttribute:
		if ast.SameNode(p.ChildByFieldName("attribute"), id) {
			return roleAttribute
		}
	case ast.NodeKeywordArgument:
		if ast.SameNode(p.ChildByFieldName("name"), id) {
			return roleKeyword
		}
	case ast.NodeDottedName:
		return dottedRole(p)
	}
	return roleName
}

// dottedRole classifies an identifier inside the dotted_name d.
func dottedRole(d *sitter.Node) role {
	g := d.Parent()
	if g == nil {
		return roleName
	}
	switch g.Type() {
	case ast.NodeImportStatement, ast.NodeRelativeImport, ast.NodeFutureImportStatement:
		return roleImportModule
	case ast.NodeImportFromStatement:
		if ast.SameNode(g.ChildByFieldName("module_name"), d) {
			return roleImportModule
		}
		return roleImportName
	case ast.NodeAliasedImport:
		if gg := g.Parent(); gg != nil && gg.Type() == ast.NodeImportFromStatement {
			return roleImportName
		}
		return roleImportModule
	}
	return roleName
}

// patternTypes hold assignment targets.
var patternTypes = map[string]bool{
	ast.NodePatternList:             true,
	ast.NodeTuplePattern:            true,
	ast.NodeListPattern:             true,
	ast.NodeAsPatternTarget:         true,
	ast.NodeParenthesizedExpression: true,
	ast.NodeListSplatPattern:        true,
	"tuple":                         true,
	"list":                          true,
	"list_splat":                    true,
	"expression_list":               true,
}

// bindingKind describes how an identifier binds its name.
type bindingKind int

const (
	bindNone bindingKind = iota
	bindAssign
	bindOther
)

// bindingOf reports whether id is in a binding position. bindAssign marks
// the only target of a simple "name = value" statement.
func bindingOf(id *sitter.Node) bindingKind {
	if roleOf(id) != roleName {
		return bindNone
	}
	n := id
	p := n.Parent()
	for p != nil && patternTypes[p.Type()] {
		n, p = p, p.Parent()
	}
	if p == nil {
		return bindNone
	}
	nested := !ast.SameNode(n, id)

	switch p.Type() {
	case ast.NodeAssignment:
		if !ast.SameNode(p.ChildByFieldName("left"), n) {
			return bindNone
		}
		stmt := p.Parent()
		right := p.ChildByFieldName("right")
		if !nested && right != nil && right.Type() != ast.NodeAssignment &&
			stmt != nil && stmt.Type() == ast.NodeExpressionStatement {
			return bindAssign
		}
		return bindOther
	case ast.NodeAugmentedAssignment, ast.NodeForStatement, ast.NodeForInClause:
		if ast.SameNode(p.ChildByFieldName("left"), n) {
			return bindOther
		}
	case ast.NodeFunctionDefinition, ast.NodeClassDefinition, "named_expression",
		ast.NodeDefaultParameter, ast.NodeTypedDefaultParameter:
		if ast.SameNode(p.ChildByFieldName("name"), n) {
			return bindOther
		}
	case ast.NodeAliasedImport:
		if ast.SameNode(p.ChildByFieldName("alias"), n) {
			return bindOther
		}
	case ast.NodeAsPattern:
		if ast.SameNode(p.ChildByFieldName("alias"), n) {
			return bindOther
		}
	case ast.NodeParameters, ast.NodeLambdaParameters, ast.NodeTypedParameter,
		ast.NodeDictionarySplatPattern, ast.NodeGlobalStatement, ast.NodeNonlocalStatement:
		return bindOther
	case ast.NodeExceptClause:
		if prev := n.PrevSibling(); prev != nil && prev.Type() == "as" {
			return bindOther
		}
	}
	if nested && n.Type() == ast.NodeAsPatternTarget {
		return bindOther
	}
	return bindNone
}

// =============================================================================
// Scopes
// =============================================================================

// bindings are the names a function, lambda, or module binds.
type bindings struct {
	params    map[string]bool
	local     map[string]bool
	globals   map[string]bool
	nonlocals map[string]bool

	// defs are the functions and classes defined directly in the scope.
	defs map[string]*sitter.Node

	// modules are the names bound by plain imports.
	modules map[string]bool

	// imported are the names bound by any import.
	imported map[string]bool
}

// isScope reports nodes that open a name scope.
func isScope(n *sitter.Node) bool {
	switch n.Type() {
	case ast.NodeFunctionDefinition, ast.NodeLambda, ast.NodeModule:
		return true
	}
	return false
}

// scopeOf returns the function, lambda, or module whose scope holds the
// name at id.
func scopeOf(id *sitter.Node) *sitter.Node {
	start := id
	if p := id.Parent(); p != nil && ast.SameNode(p.ChildByFieldName("name"), id) {
		switch p.Type() {
		case ast.NodeFunctionDefinition, ast.NodeClassDefinition:
			start = p
		}
	}
	for s := start.Parent(); s != nil; s = s.Parent() {
		if isScope(s) {
			return s
		}
	}
	return nil
}

// bindings returns the names bound directly in scope.
func (f *file) bindings(scope *sitter.Node) *bindings {
	key := [2]uint32{scope.StartByte(), scope.EndByte()}
	if b, ok := f.scopes[key]; ok {
		return b
	}
	b := &bindings{
		params:    make(map[string]bool),
		local:     make(map[string]bool),
		globals:   make(map[string]bool),
		nonlocals: make(map[string]bool),
		defs:      make(map[string]*sitter.Node),
		modules:   make(map[string]bool),
		imported:  make(map[string]bool),
	}

	var body *sitter.Node
	switch scope.Type() {
	case ast.NodeModule:
		body = scope
	case ast.NodeFunctionDefinition, ast.NodeLambda:
		for _, p := range ast.Params(f.tree, scope.ChildByFieldName("parameters")) {
			if p.Name != "" {
				b.params[p.Name] = true
				b.local[p.Name] = true
			}
		}
		body = scope.ChildByFieldName("body")
	}

	ast.Walk(body, func(n *sitter.Node) bool {
		switch n.Type() {
		case ast.NodeFunctionDefinition, ast.NodeClassDefinition:
			if name := n.ChildByFieldName("name"); name != nil {
				b.local[f.tree.Text(name)] = true
				b.defs[f.tree.Text(name)] = n
			}
			return false
		case ast.NodeLambda:
			return false
		case ast.NodeGlobalStatement, ast.NodeNonlocalStatement:
			target := b.globals
			if n.Type() == ast.NodeNonlocalStatement {
				target = b.nonlocals
			}
			for i := 0; i < int(n.NamedChildCount()); i++ {
				target[f.tree.Text(n.NamedChild(i))] = true
			}
			return false
		case ast.NodeImportStatement, ast.NodeImportFromStatement:
			imp := ast.ParseImport(f.tree, n)
			for _, name := range imp.Names {
				b.local[name.Bound()] = true
				b.imported[name.Bound()] = true
				if !imp.IsFrom {
					b.modules[name.Bound()] = true
				}
			}
			return false
		case ast.NodeIdentifier:
			if bindingOf(n) != bindNone {
				b.local[f.tree.Text(n)] = true
			}
			return false
		}
		return true
	})

	for name := range b.globals {
		delete(b.local, name)
	}
	for name := range b.nonlocals {
		delete(b.local, name)
	}
	f.scopes[key] = b
	return b
}

// refs returns the plain-name identifiers in scope that refer to the
// binding of name in that scope, in source order. Nested functions that
// rebind name are skipped. global selects module semantics, where a nested
// "global name" still refers to the binding.
func (f *file) refs(scope *sitter.Node, name string, global bool) []*sitter.Node {
	var out []*sitter.Node
	ast.Walk(scope, func(n *sitter.Node) bool {
		switch n.Type() {
		case ast.NodeIdentifier:
			if f.tree.Text(n) == name && roleOf(n) == roleName {
				out = append(out, n)
			}
			return false
		case ast.NodeFunctionDefinition, ast.NodeLambda:
			if ast.SameNode(n, scope) {
				return true
			}
			b := f.bindings(n)
			if b.local[name] || (!global && b.globals[name]) {
				if id := n.ChildByFieldName("name"); id != nil && f.tree.Text(id) == name {
					out = append(out, id)
				}
				return false
			}
		}
		return true
	})
	return out
}

// isClassLevel reports whether id is bound directly in a class body, which
// makes it a member rather than a variable.
func isClassLevel(id *sitter.Node) bool {
	if bindingOf(id) == bindNone {
		return false
	}
	n := id
	for p := n.Parent(); p != nil; n, p = p, p.Parent() {
		switch p.Type() {
		case ast.NodeBlock:
			g := p.Parent()
			return g != nil && g.Type() == ast.NodeClassDefinition
		case ast.NodeModule, ast.NodeLambda:
			return false
		case ast.NodeFunctionDefinition:
			if !ast.SameNode(p.ChildByFieldName("name"), n) {
				return false
			}
		}
	}
	return false
}

// enclosingClass returns the class whose method contains n.
func enclosingClass(n *sitter.Node) *sitter.Node {
	fn := ast.Ancestor(n, ast.NodeFunctionDefinition)
	for fn != nil {
		p := fn.Parent()
		if p != nil && p.Type() == ast.NodeDecoratedDefinition {
			p = p.Parent()
		}
		if p != nil && p.Type() == ast.NodeBlock {
			if c := p.Parent(); c != nil && c.Type() == ast.NodeClassDefinition {
				return c
			}
		}
		fn = ast.Ancestor(fn, ast.NodeFunctionDefinition)
	}
	return nil
}

// =============================================================================
// Symbol Resolution
// =============================================================================

// refKind is the kind of binding a name resolves to.
type refKind int

const (
	refLocal refKind = iota
	refGlobal
	refMember
)

// symbolRef is a resolved name.
type symbolRef struct {
	kind refKind
	name string

	// scope is the binding function for refLocal, in the origin file.
	scope *sitter.Node

	// module defines a refGlobal.
	module *module

	// family scopes a refMember.
	family *memberFamily
}

// resolve determines what the identifier id in f refers to.
func (ix *index) resolve(f *file, id *sitter.Node) (symbolRef, error) {
	name := f.tree.Text(id)

	switch roleOf(id) {
	case roleKeyword:
		return symbolRef{}, engine.Errorf(engine.ErrUnsupported,
			"%s is a keyword argument; use the parameter instead", name)
	case roleImportModule:
		return symbolRef{}, engine.Errorf(engine.ErrUnsupported, "%s names a module; rename the module without an offset", name)
	case roleAttribute:
		obj := id.Parent().ChildByFieldName("object")
		if m := ix.moduleFor(f, f.tree.Text(obj), id); m != nil {
			def := ix.definition(m, name)
			if def == nil {
				return symbolRef{}, engine.Errorf(engine.ErrUnsupported, "%s is defined outside the project", name)
			}
			return symbolRef{kind: refGlobal, name: name, module: def}, nil
		}
		return ix.memberRef(f, id, obj)
	case roleImportName:
		stmt := ast.Ancestor(id, ast.NodeImportFromStatement)
		src := ix.fromModule(f.mod, ast.ParseImport(f.tree, stmt))
		if src == nil {
			return symbolRef{}, engine.Errorf(engine.ErrUnsupported, "%s is defined outside the project", name)
		}
		if _, ok := ix.byName[src.name+"."+name]; ok {
			return symbolRef{}, engine.Errorf(engine.ErrUnsupported, "%s names a module; rename the module without an offset", name)
		}
		def := ix.definition(src, name)
		if def == nil {
			return symbolRef{}, engine.Errorf(engine.ErrUnsupported, "%s is defined outside the project", name)
		}
		return symbolRef{kind: refGlobal, name: name, module: def}, nil
	}

	if isClassLevel(id) {
		return ix.memberRef(f, id, nil)
	}

	for s := scopeOf(id); s != nil && s.Type() != ast.NodeModule; s = scopeOf(s) {
		b := f.bindings(s)
		if b.globals[name] {
			break
		}
		if b.local[name] {
			return symbolRef{kind: refLocal, name: name, scope: s}, nil
		}
	}

	if imp, n, ok := importOf(f.mod.summary, name); ok {
		if !imp.IsFrom {
			return symbolRef{}, engine.Errorf(engine.ErrUnsupported, "%s names a module; rename the module without an offset", name)
		}
		if n.Alias != "" {
			return symbolRef{kind: refGlobal, name: name, module: f.mod}, nil
		}
		src := ix.fromModule(f.mod, imp)
		if src == nil {
			return symbolRef{}, engine.Errorf(engine.ErrUnsupported, "%s is defined outside the project", name)
		}
		if _, ok := ix.byName[src.name+"."+name]; ok {
			return symbolRef{}, engine.Errorf(engine.ErrUnsupported, "%s names a module; rename the module without an offset", name)
		}
		if def := ix.definition(src, name); def != nil {
			return symbolRef{kind: refGlobal, name: name, module: def}, nil
		}
		return symbolRef{}, engine.Errorf(engine.ErrUnsupported, "%s is defined outside the project", name)
	}

	if !f.bindings(f.tree.Root()).local[name] && builtinSet[name] {
		return symbolRef{}, engine.Errorf(engine.ErrUnsupported, "%s is a builtin", name)
	}
	return symbolRef{kind: refGlobal, name: name, module: f.mod}, nil
}

// moduleFor returns the project module that the expression text obj names
// in f, through "import a.b", "import a.b as x", or "from a import b".
// at locates the expression for scope checks.
func (ix *index) moduleFor(f *file, obj string, at *sitter.Node) *module {
	if obj == "" {
		return nil
	}
	head, _, _ := strings.Cut(obj, ".")
	for s := scopeOf(at); s != nil && s.Type() != ast.NodeModule; s = scopeOf(s) {
		if f.bindings(s).local[head] {
			return nil
		}
	}
	for _, imp := range f.mod.summary.Imports {
		for _, n := range imp.Names {
			if imp.IsFrom {
				if n.Bound() != obj {
					continue
				}
				base, ok := resolveRelative(f.mod.path, imp.Level, imp.Module)
				if !ok {
					continue
				}
				if m := ix.byName[base+"."+n.Name]; m != nil {
					return m
				}
				continue
			}
			if n.Alias != "" {
				if n.Alias == obj {
					return ix.byName[n.Name]
				}
				continue
			}
			if n.Name == obj || n.Bound() == obj {
				return ix.byName[obj]
			}
		}
	}
	return nil
}
