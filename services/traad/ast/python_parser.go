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
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// DefaultMaxFileSize is the default parse size limit (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// PythonParser parses Python source with tree-sitter.
//
// Thread Safety: safe for concurrent use; every call creates its own
// native parser.
type PythonParser struct {
	maxFileSize int
}

// PythonParserOption configures a PythonParser.
type PythonParserOption func(*PythonParser)

// WithPythonMaxFileSize sets the maximum accepted content size in bytes.
func WithPythonMaxFileSize(bytes int) PythonParserOption {
	return func(p *PythonParser) {
		p.maxFileSize = bytes
	}
}

// NewPythonParser creates a PythonParser.
func NewPythonParser(opts ...PythonParserOption) *PythonParser {
	p := &PythonParser{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Language returns "python".
func (p *PythonParser) Language() string {
	return "python"
}

// Extensions returns the Python source extensions.
func (p *PythonParser) Extensions() []string {
	return []string{".py", ".pyi"}
}

// ParseTree parses content into a syntax tree.
//
// Description:
//
//	Validates the content, then runs the tree-sitter Python grammar over
//	it. Syntax errors produce a tree with HasErrors() true, not an error.
//
// Errors:
//
//	ErrInvalidContent  - nil content or invalid UTF-8
//	ErrFileTooLarge    - content above the configured limit
//	ErrContextCanceled - ctx was done before or during parsing
//	ErrParseFailed     - tree-sitter produced no tree
func (p *PythonParser) ParseTree(ctx context.Context, content []byte, filePath string) (*Tree, error) {
	if content == nil {
		return nil, fmt.Errorf("%s: %w: nil content", filePath, ErrInvalidContent)
	}
	if !utf8.Valid(content) {
		return nil, fmt.Errorf("%s: %w: not valid UTF-8", filePath, ErrInvalidContent)
	}
	if len(content) > p.maxFileSize {
		return nil, fmt.Errorf("%s: %w: %d bytes exceeds %d", filePath, ErrFileTooLarge, len(content), p.maxFileSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", filePath, ErrContextCanceled, err)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w: %v", filePath, ErrContextCanceled, ctx.Err())
		}
		return nil, WrapParseError(fmt.Errorf("%w: %v", ErrParseFailed, err), filePath)
	}
	if tree == nil {
		return nil, WrapParseError(fmt.Errorf("%w: no tree produced", ErrParseFailed), filePath)
	}

	return &Tree{tree: tree, Source: content, Path: filePath}, nil
}

// Parse extracts the top-level symbols and imports of a Python file.
//
// Description:
//
//	Produces a "__module__" symbol for the module docstring, one symbol per
//	top-level function, class, and assignment, and one per method and
//	class-level assignment (with Parent set). Nested functions are not
//	summarized; positional analysis of function bodies uses ParseTree.
//
// Outputs:
//
//	*ParseResult - never nil on success
//	error        - the ParseTree errors
func (p *PythonParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	start := time.Now()
	ctx, span := startParseSpan(ctx, p.Language(), filePath, len(content))
	defer span.End()

	tree, err := p.ParseTree(ctx, content, filePath)
	if err != nil {
		span.RecordError(err)
		recordParseMetrics(ctx, p.Language(), time.Since(start), 0, false)
		return nil, err
	}
	defer tree.Close()

	result := &ParseResult{
		FilePath:  filePath,
		Language:  p.Language(),
		HasErrors: tree.HasErrors(),
	}

	root := tree.Root()
	if doc, ok := tree.Docstring(root); ok {
		result.Symbols = append(result.Symbols, &Symbol{
			Name:       ModuleSymbolName,
			Kind:       SymbolKindModule,
			StartLine:  1,
			EndByte:    len(content),
			DocComment: doc,
			Exported:   true,
		})
	}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		p.extractStatement(tree, root.NamedChild(i), "", result)
	}

	setParseSpanResult(span, len(result.Symbols), result.HasErrors)
	recordParseMetrics(ctx, p.Language(), time.Since(start), len(result.Symbols), true)
	return result, nil
}

// extractStatement summarizes one module-level or class-level statement.
func (p *PythonParser) extractStatement(t *Tree, n *sitter.Node, className string, r *ParseResult) {
	switch n.Type() {
	case NodeDecoratedDefinition:
		if def := n.ChildByFieldName("definition"); def != nil {
			p.extractStatement(t, def, className, r)
		}

	case NodeFunctionDefinition:
		if sym := functionSymbol(t, n, className); sym != nil {
			r.Symbols = append(r.Symbols, sym)
		}

	case NodeClassDefinition:
		if className != "" {
			return
		}
		name := n.ChildByFieldName("name")
		if name == nil {
			return
		}
		cls := &Symbol{
			Name:      t.Text(name),
			Kind:      SymbolKindClass,
			StartLine: int(n.StartPoint().Row) + 1,
			StartByte: int(n.StartByte()),
			EndByte:   int(n.EndByte()),
			NameStart: int(name.StartByte()),
			Exported:  isExported(t.Text(name)),
		}
		cls.DocComment, _ = t.Docstring(n)
		cls.Bases = superclassNames(t, n)
		r.Symbols = append(r.Symbols, cls)

		body := n.ChildByFieldName("body")
		if body == nil {
			return
		}
		for i := 0; i < int(body.NamedChildCount()); i++ {
			p.extractStatement(t, body.NamedChild(i), cls.Name, r)
		}
		for _, m := range r.Members(cls.Name) {
			if m.Name == "__init__" && m.Kind == SymbolKindMethod {
				cls.Params = m.Params
			}
		}

	case NodeExpressionStatement:
		if n.NamedChildCount() == 0 {
			return
		}
		assign := n.NamedChild(0)
		if assign.Type() != NodeAssignment {
			return
		}
		left := assign.ChildByFieldName("left")
		if left == nil || left.Type() != NodeIdentifier {
			return
		}
		name := t.Text(left)
		kind := SymbolKindVariable
		switch {
		case className != "":
			kind = SymbolKindField
		case isConstantName(name):
			kind = SymbolKindConstant
		}
		r.Symbols = append(r.Symbols, &Symbol{
			Name:      name,
			Kind:      kind,
			Parent:    className,
			StartLine: int(n.StartPoint().Row) + 1,
			StartByte: int(n.StartByte()),
			EndByte:   int(n.EndByte()),
			NameStart: int(left.StartByte()),
			Exported:  isExported(name),
		})

	case NodeImportStatement, NodeImportFromStatement, NodeFutureImportStatement:
		if className == "" {
			r.Imports = append(r.Imports, ParseImport(t, n))
		}
	}
}

// superclassNames returns the last name of each positional base of class.
// Keyword arguments such as metaclass= are skipped.
func superclassNames(t *Tree, class *sitter.Node) []string {
	args := class.ChildByFieldName("superclasses")
	if args == nil {
		return nil
	}
	var out []string
	for i := 0; i < int(args.NamedChildCount()); i++ {
		switch a := args.NamedChild(i); a.Type() {
		case NodeIdentifier:
			out = append(out, t.Text(a))
		case NodeAttribute:
			if attr := a.ChildByFieldName("attribute"); attr != nil {
				out = append(out, t.Text(attr))
			}
		}
	}
	return out
}

// functionSymbol summarizes a function_definition node.
func functionSymbol(t *Tree, n *sitter.Node, className string) *Symbol {
	name := n.ChildByFieldName("name")
	if name == nil {
		return nil
	}
	kind := SymbolKindFunction
	if className != "" {
		kind = SymbolKindMethod
	}
	sym := &Symbol{
		Name:      t.Text(name),
		Kind:      kind,
		Parent:    className,
		StartLine: int(n.StartPoint().Row) + 1,
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
		NameStart: int(name.StartByte()),
		Params:    Params(t, n.ChildByFieldName("parameters")),
		Exported:  isExported(t.Text(name)),
	}
	sym.DocComment, _ = t.Docstring(n)
	return sym
}

// Params extracts the parameters of a parameters or lambda_parameters node.
//
// A bare "*" separator is returned as a Param with Star "*" and no name; a
// "/" separator as a Param with Star "/".
func Params(t *Tree, n *sitter.Node) []Param {
	if n == nil {
		return nil
	}
	var out []Param
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case NodeIdentifier:
			out = append(out, Param{Name: t.Text(c)})
		case NodeListSplatPattern, NodeDictionarySplatPattern:
			out = append(out, splatParam(t, c))
		case NodeTypedParameter:
			p := Param{}
			if inner := c.NamedChild(0); inner != nil {
				if inner.Type() == NodeIdentifier {
					p.Name = t.Text(inner)
				} else {
					p = splatParam(t, inner)
				}
			}
			p.Annotation = t.Text(c.ChildByFieldName("type"))
			out = append(out, p)
		case NodeDefaultParameter, NodeTypedDefaultParameter:
			out = append(out, Param{
				Name:       t.Text(c.ChildByFieldName("name")),
				Annotation: t.Text(c.ChildByFieldName("type")),
				Default:    t.Text(c.ChildByFieldName("value")),
			})
		case NodeKeywordSeparator:
			out = append(out, Param{Star: "*"})
		case NodePositionalSeparator:
			out = append(out, Param{Star: "/"})
		}
	}
	return out
}

func splatParam(t *Tree, n *sitter.Node) Param {
	star := "*"
	if n.Type() == NodeDictionarySplatPattern {
		star = "**"
	}
	name := strings.TrimLeft(t.Text(n), "*")
	if n.NamedChildCount() > 0 {
		name = t.Text(n.NamedChild(0))
	}
	return Param{Name: name, Star: star}
}

// ParseImport summarizes an import, from-import, or __future__ import node.
func ParseImport(t *Tree, n *sitter.Node) Import {
	imp := Import{
		StartByte: int(n.StartByte()),
		EndByte:   int(n.EndByte()),
		StartLine: int(n.StartPoint().Row) + 1,
	}

	var moduleNode *sitter.Node
	switch n.Type() {
	case NodeImportFromStatement:
		imp.IsFrom = true
		moduleNode = n.ChildByFieldName("module_name")
		if moduleNode != nil {
			if moduleNode.Type() == NodeRelativeImport {
				for i := 0; i < int(moduleNode.NamedChildCount()); i++ {
					c := moduleNode.NamedChild(i)
					switch c.Type() {
					case NodeImportPrefix:
						imp.Level = strings.Count(t.Text(c), ".")
					case NodeDottedName:
						imp.Module = t.Text(c)
					}
				}
			} else {
				imp.Module = t.Text(moduleNode)
			}
		}
	case NodeFutureImportStatement:
		imp.IsFrom = true
		imp.Module = "__future__"
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if moduleNode != nil && SameNode(c, moduleNode) {
			continue
		}
		switch c.Type() {
		case NodeDottedName:
			imp.Names = append(imp.Names, ImportedName{Name: t.Text(c)})
		case NodeAliasedImport:
			imp.Names = append(imp.Names, ImportedName{
				Name:  t.Text(c.ChildByFieldName("name")),
				Alias: t.Text(c.ChildByFieldName("alias")),
			})
		case NodeWildcardImport:
			imp.Wildcard = true
		}
	}
	return imp
}

// isConstantName reports an UPPER_CASE module-level name.
func isConstantName(name string) bool {
	hasLetter := false
	for _, r := range name {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasLetter = true
		}
	}
	return hasLetter
}
