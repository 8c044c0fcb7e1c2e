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
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/AleutianAI/traad/services/traad/ast"
	"github.com/AleutianAI/traad/services/traad/engine"
)

// =============================================================================
// Class Families
// =============================================================================

// memberFamily is the set of classes one member rename touches: the target
// class and its subclasses, plus any base whose definition they override.
type memberFamily struct {
	name    string
	classes map[string]bool

	// known holds every class defined in the index.
	known map[string]bool

	// only is set when no class outside classes defines name, so receivers
	// of unknown type can be taken to be in the family.
	only bool
}

// classGraph is the class hierarchy of an index, keyed by class name.
type classGraph struct {
	bases    map[string][]string
	known    map[string]bool
	definers map[string]bool
}

// classGraph collects the classes of ix and which of them define name.
func (ix *index) classGraph(name string) *classGraph {
	g := &classGraph{
		bases:    make(map[string][]string),
		known:    make(map[string]bool),
		definers: make(map[string]bool),
	}
	for _, m := range ix.modules {
		for _, s := range m.summary.Symbols {
			switch {
			case s.Kind == ast.SymbolKindClass:
				g.known[s.Name] = true
				g.bases[s.Name] = append(g.bases[s.Name], s.Bases...)
			case s.Parent != "" && s.Name == name:
				g.definers[s.Parent] = true
			}
		}
	}
	return g
}

// family grows class into its member family for name.
func (g *classGraph) family(name, class string) *memberFamily {
	fam := &memberFamily{
		name:    name,
		classes: make(map[string]bool),
		known:   g.known,
	}
	if class != "" {
		fam.classes[class] = true
	}
	for grown := true; grown; {
		grown = false
		for c, bases := range g.bases {
			for _, b := range bases {
				if fam.classes[b] && !fam.classes[c] {
					fam.classes[c] = true
					grown = true
				}
				if fam.classes[c] && g.definers[b] && !fam.classes[b] {
					fam.classes[b] = true
					grown = true
				}
			}
		}
	}
	fam.only = true
	for c := range g.definers {
		if !fam.classes[c] {
			fam.only = false
		}
	}
	return fam
}

// memberRef resolves the member at id to its class family. obj is the
// receiver of an attribute, nil for a name bound in a class body.
func (ix *index) memberRef(f *file, id, obj *sitter.Node) (symbolRef, error) {
	name := f.tree.Text(id)
	g := ix.classGraph(name)

	var class string
	if obj == nil {
		class = f.className(ast.Ancestor(id, ast.NodeClassDefinition))
	} else if class = f.receiverClass(obj, g.known); class == "" {
		if f.importBound(obj) {
			return symbolRef{}, engine.Errorf(engine.ErrUnsupported, "%s is defined outside the project", name)
		}
		switch len(g.definers) {
		case 0:
			return symbolRef{}, engine.Errorf(engine.ErrUnsupported,
				"no project class defines %s; rename it through self or its class", name)
		case 1:
			for c := range g.definers {
				class = c
			}
		default:
			return symbolRef{}, engine.Errorf(engine.ErrUnsupported,
				"%s is defined by more than one class; rename it at its definition", name)
		}
	}
	return symbolRef{kind: refMember, name: name, family: g.family(name, class)}, nil
}

// className returns the name of the class_definition c.
func (f *file) className(c *sitter.Node) string {
	if c == nil {
		return ""
	}
	return f.tree.Text(c.ChildByFieldName("name"))
}

// receiverClass returns the project class an attribute receiver is known
// to be: self or cls inside a method, super(), a class name, or a call of
// one. Returns "" when the type is unknown.
func (f *file) receiverClass(obj *sitter.Node, known map[string]bool) string {
	if obj == nil {
		return ""
	}
	switch obj.Type() {
	case ast.NodeIdentifier:
		name := f.tree.Text(obj)
		if name == "self" || name == "cls" {
			return f.className(enclosingClass(obj))
		}
		if known[name] {
			return name
		}
	case ast.NodeCall:
		fn := obj.ChildByFieldName("function")
		if fn == nil {
			return ""
		}
		if fn.Type() == ast.NodeAttribute {
			fn = fn.ChildByFieldName("attribute")
		}
		if fn == nil || fn.Type() != ast.NodeIdentifier {
			return ""
		}
		name := f.tree.Text(fn)
		if name == "super" {
			return f.className(enclosingClass(obj))
		}
		if known[name] {
			return name
		}
	}
	return ""
}

// importBound reports whether the leftmost name of the receiver obj is bound
// by an import where obj appears.
func (f *file) importBound(obj *sitter.Node) bool {
	head := obj
	for head != nil && head.Type() == ast.NodeAttribute {
		head = head.ChildByFieldName("object")
	}
	if head == nil || head.Type() != ast.NodeIdentifier {
		return false
	}
	name := f.tree.Text(head)
	for s := scopeOf(head); s != nil && s.Type() != ast.NodeModule; s = scopeOf(s) {
		b := f.bindings(s)
		if b.globals[name] {
			break
		}
		if b.local[name] {
			return b.imported[name]
		}
	}
	return f.bindings(f.tree.Root()).imported[name]
}

// memberRefs finds the uses and class-body bindings of the family's member
// in f. Attributes on receivers of unknown type are included only when no
// class outside the family defines the member, and never when the receiver
// is an imported name.
func (f *file) memberRefs(fam *memberFamily) []*sitter.Node {
	var out []*sitter.Node
	ast.Walk(f.tree.Root(), func(n *sitter.Node) bool {
		if n.Type() != ast.NodeIdentifier {
			return true
		}
		if f.tree.Text(n) != fam.name {
			return false
		}
		switch {
		case isClassLevel(n):
			if fam.classes[f.className(ast.Ancestor(n, ast.NodeClassDefinition))] {
				out = append(out, n)
			}
		case roleOf(n) == roleAttribute:
			obj := n.Parent().ChildByFieldName("object")
			if class := f.receiverClass(obj, fam.known); class != "" {
				if fam.classes[class] {
					out = append(out, n)
				}
			} else if fam.only && !f.importBound(obj) {
				out = append(out, n)
			}
		}
		return false
	})
	return out
}
