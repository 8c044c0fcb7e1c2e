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
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/traad/services/traad/ast"
	"github.com/AleutianAI/traad/services/traad/engine"
)

// Proposal scopes, in the order groups are returned.
const (
	scopeLocal     = "local"
	scopeGlobal    = "global"
	scopeAttribute = "attribute"
	scopeBuiltin   = "builtin"
	scopeKeyword   = "keyword"
)

// query parses q.Source as the module at q.Path. The caller closes the
// returned file.
func (e *Engine) query(ctx context.Context, q engine.Query) (*index, *file, int, error) {
	ix, err := e.index(ctx, q.Projects)
	if err != nil {
		return nil, nil, 0, err
	}
	src := []byte(q.Source)
	off, err := byteOffset(src, q.Offset)
	if err != nil {
		return nil, nil, 0, err
	}
	sum, err := e.parser.Parse(ctx, src, q.Path)
	if err != nil {
		return nil, nil, 0, engine.Errorf(engine.ErrSyntax, "cannot analyze %s: %v", q.Path, err)
	}
	m := &module{
		project: q.Project,
		path:    q.Path,
		name:    moduleName(q.Path),
		source:  src,
		summary: sum,
	}
	f, err := e.open(ctx, m)
	if err != nil {
		return nil, nil, 0, err
	}
	return ix, f, off, nil
}

// nodeBefore returns the smallest node covering the character before off.
func (f *file) nodeBefore(off int) *sitter.Node {
	if off > 0 {
		off--
	}
	return f.tree.NodeAt(off)
}

// =============================================================================
// Code Assist
// =============================================================================

// CodeAssist proposes completions for the word ending at the query offset.
//
// Description:
//
//	After "expr." the proposals are the attributes of expr when it names
//	a project module, self, or a known class. Otherwise they are grouped
//	as locals, globals, builtins and keywords, each group sorted by name.
//	A name appears once, in its innermost group.
func (e *Engine) CodeAssist(ctx context.Context, q engine.Query) (out []engine.Proposal, err error) {
	ctx, done := observe(ctx, "code_assist", q.Path)
	defer func() { done(err) }()

	ix, f, off, err := e.query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer f.close()

	src := f.mod.source
	start := wordStart(src, off)
	prefix := string(src[start:off])
	c := &collector{prefix: prefix, seen: make(map[string]bool)}

	if start > 0 && src[start-1] == '.' {
		objEnd := start - 1
		objStart := objEnd
		for objStart > 0 {
			r, size := utf8.DecodeLastRune(src[:objStart])
			if !isIdentRune(r) && r != '.' {
				break
			}
			objStart -= size
		}
		ix.attributeProposals(c, f, string(src[objStart:objEnd]), f.nodeBefore(objEnd))
		return c.out, nil
	}

	at := f.nodeBefore(off)
	for s := scopeOf(at); s != nil && s.Type() != ast.NodeModule; s = scopeOf(s) {
		c.add(scopeLocal, f.scopeProposals(s))
	}
	c.add(scopeGlobal, ix.globalProposals(f))

	var builtins []engine.Proposal
	for _, name := range builtinFunctions {
		builtins = append(builtins, engine.Proposal{Name: name, Kind: "function"})
	}
	for _, name := range builtinClasses {
		builtins = append(builtins, engine.Proposal{Name: name, Kind: "class"})
	}
	c.add(scopeBuiltin, builtins)

	var kws []engine.Proposal
	for _, kw := range keywords {
		kws = append(kws, engine.Proposal{Name: kw, Kind: "keyword"})
	}
	c.add(scopeKeyword, kws)
	return c.out, nil
}

// wordStart returns the start of the identifier ending at off.
func wordStart(src []byte, off int) int {
	for off > 0 {
		r, size := utf8.DecodeLastRune(src[:off])
		if !isIdentRune(r) {
			break
		}
		off -= size
	}
	return off
}

// collector accumulates proposals matching a prefix.
type collector struct {
	prefix string
	seen   map[string]bool
	out    []engine.Proposal
}

// add appends one sorted group, skipping names already proposed.
func (c *collector) add(scope string, group []engine.Proposal) {
	var keep []engine.Proposal
	for _, p := range group {
		if c.seen[p.Name] || !strings.HasPrefix(p.Name, c.prefix) {
			continue
		}
		if isPrivate(p.Name) && !strings.HasPrefix(c.prefix, "_") && scope == scopeAttribute {
			continue
		}
		c.seen[p.Name] = true
		p.Scope = scope
		keep = append(keep, p)
	}
	sort.SliceStable(keep, func(i, j int) bool {
		return keep[i].Name < keep[j].Name
	})
	c.out = append(c.out, keep...)
}

// scopeProposals lists the names bound in a function scope.
func (f *file) scopeProposals(s *sitter.Node) []engine.Proposal {
	b := f.bindings(s)
	var out []engine.Proposal
	for name := range b.local {
		p := engine.Proposal{Name: name, Kind: "instance"}
		switch {
		case b.modules[name]:
			p.Kind = "module"
		case b.defs[name] != nil:
			def := b.defs[name]
			p.Kind = "function"
			if def.Type() == ast.NodeClassDefinition {
				p.Kind = "class"
			}
			p.Doc, _ = f.tree.Docstring(def)
		}
		out = append(out, p)
	}
	return out
}

// globalProposals lists the module-level names of f.
func (ix *index) globalProposals(f *file) []engine.Proposal {
	sum := f.mod.summary
	var out []engine.Proposal
	listed := make(map[string]bool)
	for _, s := range sum.Symbols {
		if s.Parent != "" || s.Kind == ast.SymbolKindModule || listed[s.Name] {
			continue
		}
		listed[s.Name] = true
		out = append(out, engine.Proposal{Name: s.Name, Doc: s.DocComment, Kind: kindOf(s)})
	}
	for _, imp := range sum.Imports {
		for _, n := range imp.Names {
			name := n.Bound()
			if listed[name] {
				continue
			}
			listed[name] = true
			p := engine.Proposal{Name: name, Kind: "module"}
			if imp.IsFrom {
				if info := ix.importedSymbol(f.mod, imp, n); info != nil {
					p.Kind, p.Doc = info.kind, info.doc
				}
			} else if m := ix.byName[n.Name]; m != nil {
				p.Doc = m.summary.ModuleDoc()
			}
			out = append(out, p)
		}
	}
	for name := range f.bindings(f.tree.Root()).local {
		if !listed[name] {
			listed[name] = true
			out = append(out, engine.Proposal{Name: name, Kind: "instance"})
		}
	}
	return out
}

// attributeProposals lists the attributes of the expression obj.
func (ix *index) attributeProposals(c *collector, f *file, obj string, at *sitter.Node) {
	if obj == "self" || obj == "cls" {
		if class := enclosingClass(at); class != nil {
			c.add(scopeAttribute, f.classMembers(class))
		}
		return
	}
	if m := ix.moduleFor(f, obj, at); m != nil {
		var out []engine.Proposal
		for _, s := range m.summary.Symbols {
			if s.Parent == "" && s.Kind != ast.SymbolKindModule {
				out = append(out, engine.Proposal{Name: s.Name, Doc: s.DocComment, Kind: kindOf(s)})
			}
		}
		prefix := m.name + "."
		for name, sub := range ix.byName {
			if rest, ok := strings.CutPrefix(name, prefix); ok && !strings.Contains(rest, ".") {
				out = append(out, engine.Proposal{Name: rest, Doc: sub.summary.ModuleDoc(), Kind: "module"})
			}
		}
		c.add(scopeAttribute, out)
		return
	}
	if !strings.Contains(obj, ".") {
		if info := ix.lookupName(f, obj, at); info != nil && info.kind == "class" {
			var out []engine.Proposal
			for _, s := range info.module.summary.Members(info.name) {
				out = append(out, engine.Proposal{Name: s.Name, Doc: s.DocComment, Kind: kindOf(s)})
			}
			c.add(scopeAttribute, out)
		}
	}
}

// classMembers lists methods and fields of a class node, including
// attributes assigned through self in its methods.
func (f *file) classMembers(class *sitter.Node) []engine.Proposal {
	var out []engine.Proposal
	seen := make(map[string]bool)
	add := func(p engine.Proposal) {
		if !seen[p.Name] {
			seen[p.Name] = true
			out = append(out, p)
		}
	}
	body := class.ChildByFieldName("body")
	if body == nil {
		return nil
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := unwrapDecorated(body.NamedChild(i))
		switch stmt.Type() {
		case ast.NodeFunctionDefinition:
			doc, _ := f.tree.Docstring(stmt)
			add(engine.Proposal{Name: f.tree.Text(stmt.ChildByFieldName("name")), Doc: doc, Kind: "function"})
		case ast.NodeExpressionStatement:
			if stmt.NamedChildCount() > 0 && stmt.NamedChild(0).Type() == ast.NodeAssignment {
				if left := stmt.NamedChild(0).ChildByFieldName("left"); left.Type() == ast.NodeIdentifier {
					add(engine.Proposal{Name: f.tree.Text(left), Kind: "instance"})
				}
			}
		}
	}
	ast.Walk(body, func(n *sitter.Node) bool {
		if n.Type() != ast.NodeAssignment {
			return true
		}
		left := n.ChildByFieldName("left")
		if left != nil && left.Type() == ast.NodeAttribute && f.tree.Text(left.ChildByFieldName("object")) == "self" {
			add(engine.Proposal{Name: f.tree.Text(left.ChildByFieldName("attribute")), Kind: "instance"})
		}
		return true
	})
	return out
}

func kindOf(s *ast.Symbol) string {
	switch s.Kind {
	case ast.SymbolKindFunction, ast.SymbolKindMethod:
		return "function"
	case ast.SymbolKindClass:
		return "class"
	case ast.SymbolKindModule:
		return "module"
	default:
		return "instance"
	}
}

// =============================================================================
// Symbol Lookup
// =============================================================================

// symbolInfo describes a definition found for a name.
type symbolInfo struct {
	module *module
	name   string
	kind   string
	line   int
	doc    string

	// signature is set for callables.
	signature string

	// qualifier prefixes the signature in calltips.
	qualifier string
}

func infoFromSymbol(m *module, s *ast.Symbol) *symbolInfo {
	info := &symbolInfo{
		module: m,
		name:   s.Name,
		kind:   kindOf(s),
		line:   s.StartLine,
		doc:    s.DocComment,
	}
	switch s.Kind {
	case ast.SymbolKindFunction, ast.SymbolKindClass, ast.SymbolKindMethod:
		info.signature = s.Signature()
	}
	var parts []string
	if m.name != "" {
		parts = append(parts, m.name)
	}
	if s.Parent != "" {
		parts = append(parts, s.Parent)
	}
	info.qualifier = strings.Join(parts, ".")
	return info
}

func moduleInfo(m *module) *symbolInfo {
	return &symbolInfo{module: m, name: m.name, kind: "module", line: 1, doc: m.summary.ModuleDoc()}
}

// importedSymbol resolves a from-imported name.
func (ix *index) importedSymbol(m *module, imp ast.Import, n ast.ImportedName) *symbolInfo {
	base, ok := resolveRelative(m.path, imp.Level, imp.Module)
	if !ok {
		return nil
	}
	if sub := ix.byName[base+"."+n.Name]; sub != nil {
		return moduleInfo(sub)
	}
	src := ix.byName[base]
	if src == nil {
		return nil
	}
	def := ix.definition(src, n.Name)
	if def == nil {
		return nil
	}
	if s, ok := def.summary.Lookup(n.Name); ok {
		return infoFromSymbol(def, s)
	}
	return nil
}

// lookupName resolves a plain name visible at node at.
func (ix *index) lookupName(f *file, name string, at *sitter.Node) *symbolInfo {
	for s := scopeOf(at); s != nil && s.Type() != ast.NodeModule; s = scopeOf(s) {
		b := f.bindings(s)
		if b.globals[name] {
			break
		}
		if !b.local[name] {
			continue
		}
		if def := b.defs[name]; def != nil {
			return f.infoFromNode(def)
		}
		if b.modules[name] {
			return nil
		}
		for _, id := range f.refs(s, name, false) {
			if bindingOf(id) != bindNone {
				return &symbolInfo{module: f.mod, name: name, kind: "instance", line: int(id.StartPoint().Row) + 1}
			}
		}
		return nil
	}

	if s, ok := f.mod.summary.Lookup(name); ok {
		return infoFromSymbol(f.mod, s)
	}
	if imp, n, ok := importOf(f.mod.summary, name); ok {
		if !imp.IsFrom {
			if m := ix.byName[n.Name]; m != nil && (n.Alias != "" || n.Name == name) {
				return moduleInfo(m)
			}
			return nil
		}
		return ix.importedSymbol(f.mod, imp, n)
	}
	for _, id := range f.refs(f.tree.Root(), name, true) {
		if bindingOf(id) != bindNone {
			return &symbolInfo{module: f.mod, name: name, kind: "instance", line: int(id.StartPoint().Row) + 1}
		}
	}
	return nil
}

// infoFromNode describes a function or class node of f.
func (f *file) infoFromNode(def *sitter.Node) *symbolInfo {
	name := f.tree.Text(def.ChildByFieldName("name"))
	s := &ast.Symbol{
		Name:      name,
		Kind:      ast.SymbolKindFunction,
		StartLine: int(def.StartPoint().Row) + 1,
	}
	s.DocComment, _ = f.tree.Docstring(def)
	if def.Type() == ast.NodeClassDefinition {
		s.Kind = ast.SymbolKindClass
		if init := methodOf(f, def, "__init__"); init != nil {
			s.Params = ast.Params(f.tree, init.ChildByFieldName("parameters"))
		}
	} else {
		s.Params = ast.Params(f.tree, def.ChildByFieldName("parameters"))
		if isMethod(def) {
			s.Kind = ast.SymbolKindMethod
		}
	}
	info := infoFromSymbol(f.mod, s)
	info.qualifier = ""
	return info
}

// lookupDotted resolves a dotted expression such as "m.f", "self.g" or
// "C.h" visible at node at.
func (ix *index) lookupDotted(f *file, parts []string, at *sitter.Node) *symbolInfo {
	if len(parts) == 1 {
		return ix.lookupName(f, parts[0], at)
	}
	last := parts[len(parts)-1]

	if parts[0] == "self" || parts[0] == "cls" {
		class := enclosingClass(at)
		if class == nil || len(parts) != 2 {
			return nil
		}
		if def := methodOf(f, class, last); def != nil {
			return f.infoFromNode(def)
		}
		return nil
	}

	if m := ix.moduleFor(f, strings.Join(parts[:len(parts)-1], "."), at); m != nil {
		if sub := ix.byName[m.name+"."+last]; sub != nil {
			return moduleInfo(sub)
		}
		if def := ix.definition(m, last); def != nil {
			if s, ok := def.summary.Lookup(last); ok {
				return infoFromSymbol(def, s)
			}
		}
		return nil
	}

	owner := ix.lookupDotted(f, parts[:len(parts)-1], at)
	if owner == nil || owner.kind != "class" {
		return nil
	}
	for _, s := range owner.module.summary.Members(owner.name) {
		if s.Name == last {
			return infoFromSymbol(owner.module, s)
		}
	}
	return nil
}

// symbolAt resolves the identifier at off.
func (ix *index) symbolAt(f *file, off int) *symbolInfo {
	id := f.tree.IdentifierAt(off)
	if id == nil {
		return nil
	}
	parts := []string{f.tree.Text(id)}
	if roleOf(id) == roleAttribute {
		obj := f.tree.Text(id.Parent().ChildByFieldName("object"))
		parts = append(strings.Split(obj, "."), parts...)
	}
	return ix.lookupDotted(f, parts, id)
}

// =============================================================================
// Doc, Calltip, Definition
// =============================================================================

// Doc returns the documentation of the symbol at the query offset.
// Callables are documented as their signature followed by the docstring.
func (e *Engine) Doc(ctx context.Context, q engine.Query) (doc string, found bool, err error) {
	ctx, done := observe(ctx, "doc", q.Path)
	defer func() { done(err) }()

	ix, f, off, err := e.query(ctx, q)
	if err != nil {
		return "", false, err
	}
	defer f.close()

	info := ix.symbolAt(f, off)
	if info == nil {
		return "", false, nil
	}
	switch {
	case info.signature != "" && info.doc != "":
		return info.signature + "\n\n" + info.doc, true, nil
	case info.signature != "":
		return info.signature, true, nil
	case info.doc != "":
		return info.doc, true, nil
	}
	return "", false, nil
}

// Calltip returns the qualified signature of the innermost call whose
// argument list contains the query offset.
func (e *Engine) Calltip(ctx context.Context, q engine.Query) (tip string, found bool, err error) {
	ctx, done := observe(ctx, "calltip", q.Path)
	defer func() { done(err) }()

	ix, f, off, err := e.query(ctx, q)
	if err != nil {
		return "", false, err
	}
	defer f.close()

	src := f.mod.source
	open := openParen(src, off)
	if open < 0 {
		return "", false, nil
	}
	end := open
	for end > 0 && (src[end-1] == ' ' || src[end-1] == '\t') {
		end--
	}
	start := end
	for start > 0 {
		r, size := utf8.DecodeLastRune(src[:start])
		if !isIdentRune(r) && r != '.' {
			break
		}
		start -= size
	}
	callee := strings.Trim(string(src[start:end]), ".")
	if callee == "" {
		return "", false, nil
	}

	info := ix.lookupDotted(f, strings.Split(callee, "."), f.nodeBefore(end))
	if info == nil || info.signature == "" {
		return "", false, nil
	}
	if info.qualifier != "" && info.module != f.mod {
		return info.qualifier + "." + info.signature, true, nil
	}
	return info.signature, true, nil
}

// openParen returns the position of the unmatched "(" before off, or -1.
// Brackets inside string literals on the scanned lines are not skipped.
func openParen(src []byte, off int) int {
	depth := 0
	for i := off - 1; i >= 0; i-- {
		switch src[i] {
		case ')', ']', '}':
			depth++
		case '[', '{':
			if depth == 0 {
				return -1
			}
			depth--
		case '(':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

// Definition returns where the symbol at the query offset is defined.
// Returns nil when it is not defined in the workspace or the query source.
func (e *Engine) Definition(ctx context.Context, q engine.Query) (loc *engine.Location, err error) {
	ctx, done := observe(ctx, "definition", q.Path)
	defer func() { done(err) }()

	ix, f, off, err := e.query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer f.close()

	info := ix.symbolAt(f, off)
	if info == nil || info.module.project == nil {
		return nil, nil
	}
	return &engine.Location{
		Project: info.module.project,
		Path:    info.module.path,
		Line:    info.line,
	}, nil
}
