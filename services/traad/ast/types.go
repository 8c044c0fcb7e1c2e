// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"strings"
)

// SymbolKind classifies a top-level or class-level symbol.
type SymbolKind int

const (
	SymbolKindUnknown SymbolKind = iota
	SymbolKindModule
	SymbolKindFunction
	SymbolKindMethod
	SymbolKindClass
	SymbolKindVariable
	SymbolKindConstant
	SymbolKindField
)

// String returns the lowercase kind name.
func (k SymbolKind) String() string {
	switch k {
	case SymbolKindModule:
		return "module"
	case SymbolKindFunction:
		return "function"
	case SymbolKindMethod:
		return "method"
	case SymbolKindClass:
		return "class"
	case SymbolKindVariable:
		return "variable"
	case SymbolKindConstant:
		return "constant"
	case SymbolKindField:
		return "field"
	default:
		return "unknown"
	}
}

// ModuleSymbolName is the name of the synthetic symbol carrying a module's
// docstring.
const ModuleSymbolName = "__module__"

// Param is one parameter of a function signature.
type Param struct {
	// Name without any leading "*" or "**".
	Name string `cbor:"name" json:"name"`

	// Default is the default value source text, empty when there is none.
	Default string `cbor:"default,omitempty" json:"default,omitempty"`

	// Annotation is the type annotation source text, if any.
	Annotation string `cbor:"annotation,omitempty" json:"annotation,omitempty"`

	// Star is "", "*" or "**".
	Star string `cbor:"star,omitempty" json:"star,omitempty"`
}

// String renders the parameter as it would appear in a def.
func (p Param) String() string {
	var b strings.Builder
	b.WriteString(p.Star)
	b.WriteString(p.Name)
	if p.Annotation != "" {
		b.WriteString(": ")
		b.WriteString(p.Annotation)
	}
	if p.Default != "" {
		if p.Annotation != "" {
			b.WriteString(" = ")
		} else {
			b.WriteString("=")
		}
		b.WriteString(p.Default)
	}
	return b.String()
}

// Symbol is a named definition found in a file.
//
// Offsets are byte offsets into the parsed content.
type Symbol struct {
	Name string     `cbor:"name" json:"name"`
	Kind SymbolKind `cbor:"kind" json:"kind"`

	// Parent is the enclosing class name for methods and fields.
	Parent string `cbor:"parent,omitempty" json:"parent,omitempty"`

	// StartLine is 1-indexed.
	StartLine int `cbor:"line" json:"line"`

	StartByte int `cbor:"start" json:"start"`
	EndByte   int `cbor:"end" json:"end"`
	NameStart int `cbor:"name_start" json:"name_start"`

	// DocComment is the cleaned docstring.
	DocComment string `cbor:"doc,omitempty" json:"doc,omitempty"`

	// Params is set for functions, methods, and for classes (their __init__
	// parameters).
	Params []Param `cbor:"params,omitempty" json:"params,omitempty"`

	// Bases holds the last name of each positional base of a class.
	Bases []string `cbor:"bases,omitempty" json:"bases,omitempty"`

	// Exported follows Python naming conventions: no leading underscore, or
	// a dunder name.
	Exported bool `cbor:"exported" json:"exported"`
}

// Signature renders "name(params)", dropping a leading self or cls for
// methods and classes.
func (s *Symbol) Signature() string {
	params := s.Params
	if (s.Kind == SymbolKindMethod || s.Kind == SymbolKindClass) && len(params) > 0 &&
		(params[0].Name == "self" || params[0].Name == "cls") && params[0].Star == "" {
		params = params[1:]
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = p.String()
	}
	return s.Name + "(" + strings.Join(parts, ", ") + ")"
}

// ImportedName is one name of a from-import, or one module of a plain
// import.
type ImportedName struct {
	Name  string `cbor:"name" json:"name"`
	Alias string `cbor:"alias,omitempty" json:"alias,omitempty"`
}

// Bound returns the name the import binds in the importing module.
//
// For "import a.b" this is "a".
func (n ImportedName) Bound() string {
	if n.Alias != "" {
		return n.Alias
	}
	if i := strings.IndexByte(n.Name, '.'); i >= 0 {
		return n.Name[:i]
	}
	return n.Name
}

// Import is one import statement.
type Import struct {
	// Module is the dotted module of a from-import, without leading dots.
	// Empty for plain imports.
	Module string `cbor:"module,omitempty" json:"module,omitempty"`

	// Level is the number of leading dots of a relative from-import.
	Level int `cbor:"level,omitempty" json:"level,omitempty"`

	// IsFrom distinguishes "from m import x" from "import m".
	IsFrom bool `cbor:"from" json:"from"`

	// Wildcard marks "from m import *".
	Wildcard bool `cbor:"wildcard,omitempty" json:"wildcard,omitempty"`

	Names []ImportedName `cbor:"names,omitempty" json:"names,omitempty"`

	StartByte int `cbor:"start" json:"start"`
	EndByte   int `cbor:"end" json:"end"`
	StartLine int `cbor:"line" json:"line"`
}

// ParseResult is the symbol and import summary of a file.
//
// It holds no native resources and is safe to cache and share read-only.
type ParseResult struct {
	FilePath string    `cbor:"path" json:"path"`
	Language string    `cbor:"language" json:"language"`
	Symbols  []*Symbol `cbor:"symbols" json:"symbols"`
	Imports  []Import  `cbor:"imports" json:"imports"`

	// HasErrors reports syntax errors anywhere in the file.
	HasErrors bool `cbor:"has_errors" json:"has_errors"`
}

// Lookup returns the top-level symbol named name (not methods or fields).
func (r *ParseResult) Lookup(name string) (*Symbol, bool) {
	for _, s := range r.Symbols {
		if s.Name == name && s.Parent == "" && s.Kind != SymbolKindModule {
			return s, true
		}
	}
	return nil, false
}

// Members returns the methods and fields of class className in source order.
func (r *ParseResult) Members(className string) []*Symbol {
	var out []*Symbol
	for _, s := range r.Symbols {
		if s.Parent == className {
			out = append(out, s)
		}
	}
	return out
}

// ModuleDoc returns the module docstring, if any.
func (r *ParseResult) ModuleDoc() string {
	for _, s := range r.Symbols {
		if s.Kind == SymbolKindModule {
			return s.DocComment
		}
	}
	return ""
}

// isExported applies Python's naming convention for public names.
func isExported(name string) bool {
	if strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__") && len(name) > 4 {
		return true
	}
	return !strings.HasPrefix(name, "_")
}
