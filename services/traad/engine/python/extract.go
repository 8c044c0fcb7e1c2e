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

// nonExpressionTypes are named nodes that cannot be extracted as a value.
var nonExpressionTypes = map[string]bool{
	ast.NodeModule:              true,
	ast.NodeBlock:               true,
	ast.NodeComment:             true,
	ast.NodeKeywordArgument:     true,
	ast.NodeArgumentList:        true,
	ast.NodeParameters:          true,
	ast.NodeLambdaParameters:    true,
	ast.NodeDottedName:          true,
	ast.NodeAliasedImport:       true,
	ast.NodeRelativeImport:      true,
	ast.NodeImportPrefix:        true,
	ast.NodeAsPatternTarget:     true,
	ast.NodePatternList:         true,
	ast.NodeTuplePattern:        true,
	ast.NodeListPattern:         true,
	ast.NodeAssignment:          true,
	ast.NodeAugmentedAssignment: true,
	"decorator":                 true,
	"pair":                      true,
	"slice":                     true,
	"type":                      true,
}

func isExpression(n *sitter.Node) bool {
	if !n.IsNamed() || n.IsError() || nonExpressionTypes[n.Type()] {
		return false
	}
	typ := n.Type()
	if strings.HasSuffix(typ, "_statement") || strings.HasSuffix(typ, "_definition") ||
		strings.HasSuffix(typ, "_clause") {
		return false
	}
	if typ == ast.NodeIdentifier && (roleOf(n) != roleName || bindingOf(n) != bindNone) {
		return false
	}
	return true
}

// isStatementContainer reports nodes whose named children are statements.
func isStatementContainer(n *sitter.Node) bool {
	return n != nil && (n.Type() == ast.NodeBlock || n.Type() == ast.NodeModule)
}

// region is a trimmed byte range selected by the client.
type region struct {
	start, end int
}

// regionOf converts character offsets [start, end) into a byte region with
// surrounding whitespace removed.
func regionOf(src []byte, start, end int) (region, error) {
	s, err := byteOffset(src, start)
	if err != nil {
		return region{}, err
	}
	e, err := byteOffset(src, end)
	if err != nil {
		return region{}, err
	}
	for s < e && isSpace(src[s]) {
		s++
	}
	for e > s && isSpace(src[e-1]) {
		e--
	}
	if s >= e {
		return region{}, engine.Errorf(engine.ErrInvalidArgument, "empty region")
	}
	return region{start: s, end: e}, nil
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// expressionAt returns the outermost expression spanning exactly r.
func (f *file) expressionAt(r region) *sitter.Node {
	var best *sitter.Node
	for n := f.tree.NodeAt(r.start); n != nil; n = n.Parent() {
		if int(n.StartByte()) != r.start || int(n.EndByte()) > r.end {
			break
		}
		if int(n.EndByte()) == r.end && isExpression(n) {
			best = n
		}
	}
	return best
}

// statementsAt returns the consecutive sibling statements spanning exactly r.
func (f *file) statementsAt(r region) []*sitter.Node {
	n := f.tree.NodeAt(r.start)
	for n != nil && !(int(n.StartByte()) == r.start && isStatementContainer(n.Parent())) {
		n = n.Parent()
		if n == nil || int(n.StartByte()) < r.start {
			return nil
		}
	}
	if n == nil || n.Type() == ast.NodeComment {
		return nil
	}
	stmts := []*sitter.Node{n}
	for sib := n.NextNamedSibling(); sib != nil && int(sib.EndByte()) <= r.end; sib = sib.NextNamedSibling() {
		stmts = append(stmts, sib)
	}
	if int(stmts[len(stmts)-1].EndByte()) != r.end {
		return nil
	}
	return stmts
}

// statementOf returns the statement containing n.
func statementOf(n *sitter.Node) *sitter.Node {
	for n != nil && !isStatementContainer(n.Parent()) {
		n = n.Parent()
	}
	return n
}

// topLevel returns the module-level statement containing n.
func topLevel(n *sitter.Node) *sitter.Node {
	for n.Parent() != nil && n.Parent().Type() != ast.NodeModule {
		n = n.Parent()
	}
	return n
}

// =============================================================================
// Extract Variable
// =============================================================================

// ExtractVariable assigns the expression [t.Offset, end) to a new variable
// just before the statement containing it and uses the variable in its
// place.
func (e *Engine) ExtractVariable(ctx context.Context, t engine.Target, end int, name string) (res *engine.Result, err error) {
	ctx, done := observe(ctx, "extract_variable", t.Path)
	defer func() { done(err) }()

	f, r, err := e.extractTarget(ctx, t, end, name)
	if err != nil {
		return nil, err
	}
	defer f.close()

	expr := f.expressionAt(r)
	if expr == nil {
		return nil, engine.Errorf(engine.ErrInvalidArgument, "the region must be a complete expression")
	}
	stmt := statementOf(expr)
	if stmt.Type() == "while_statement" && ast.Contains(stmt.ChildByFieldName("condition"), expr) {
		return nil, engine.Errorf(engine.ErrUnsupported, "cannot extract from a loop condition")
	}

	src := f.mod.source
	at := ast.LineStart(src, int(stmt.StartByte()))
	assign := ast.Indent(src, int(stmt.StartByte())) + name + " = " + f.tree.Text(expr) + "\n"
	out, err := applyEdits(src, []textEdit{
		{start: at, end: at, text: assign},
		{start: r.start, end: r.end, text: name},
	})
	if err != nil {
		return nil, err
	}

	res = &engine.Result{Description: fmt.Sprintf("Extract variable <%s>", name)}
	res.Ops = appendChange(res.Ops, f.mod, out)
	return res, nil
}

// extractTarget validates name and opens the target module. The caller
// closes the returned file.
func (e *Engine) extractTarget(ctx context.Context, t engine.Target, end int, name string) (*file, region, error) {
	if !isIdentifier(name) || keywordSet[name] {
		return nil, region{}, engine.Errorf(engine.ErrInvalidArgument, "%q is not a valid identifier", name)
	}
	_, m, err := e.target(ctx, t)
	if err != nil {
		return nil, region{}, err
	}
	if end <= t.Offset {
		return nil, region{}, engine.Errorf(engine.ErrInvalidArgument, "region end %d is not after start %d", end, t.Offset)
	}
	r, err := regionOf(m.source, t.Offset, end)
	if err != nil {
		return nil, region{}, err
	}
	f, err := e.open(ctx, m)
	if err != nil {
		return nil, region{}, err
	}
	if err := f.checkSyntax(); err != nil {
		f.close()
		return nil, region{}, err
	}
	return f, r, nil
}

// =============================================================================
// Extract Method
// =============================================================================

// ExtractMethod moves the statements or expression [t.Offset, end) into a
// new module-level function and calls it in their place.
//
// Description:
//
//	Parameters are the enclosing function's names read in the region and
//	bound outside it, in order of first use. Names bound in the region and
//	read after it are returned. The new function is placed before the
//	module-level statement containing the region.
//
// Errors:
//
//	engine.ErrInvalidArgument - name or region invalid
//	engine.ErrUnsupported     - region returns, yields, or jumps out
func (e *Engine) ExtractMethod(ctx context.Context, t engine.Target, end int, name string) (res *engine.Result, err error) {
	ctx, done := observe(ctx, "extract_method", t.Path)
	defer func() { done(err) }()

	f, r, err := e.extractTarget(ctx, t, end, name)
	if err != nil {
		return nil, err
	}
	defer f.close()

	if f.bindings(f.tree.Root()).local[name] {
		return nil, engine.Errorf(engine.ErrInvalidArgument, "%s is already defined in %s", name, f.mod.path)
	}

	stmts := f.statementsAt(r)
	var expr *sitter.Node
	if stmts == nil {
		if expr = f.expressionAt(r); expr == nil {
			return nil, engine.Errorf(engine.ErrInvalidArgument,
				"the region must be whole statements or a complete expression")
		}
		stmts = []*sitter.Node{expr}
	} else if err := checkExtractable(stmts, r); err != nil {
		return nil, err
	}

	fn := scopeOf(stmts[0])
	if fn != nil && fn.Type() == ast.NodeModule {
		fn = nil
	}
	params, returns := f.dataflow(fn, stmts, r)
	if expr != nil {
		returns = nil
	}

	src := f.mod.source
	args := strings.Join(params, ", ")
	call := name + "(" + args + ")"

	var def strings.Builder
	def.WriteString("def " + call + ":\n")
	var edits []textEdit
	top := topLevel(stmts[0])
	at := ast.LineStart(src, int(top.StartByte()))

	if expr != nil {
		def.WriteString("    return " + f.tree.Text(expr) + "\n\n\n")
		edits = append(edits,
			textEdit{start: at, end: at, text: def.String()},
			textEdit{start: r.start, end: r.end, text: call},
		)
	} else {
		lineStart := ast.LineStart(src, r.start)
		margin := ast.Indent(src, r.start)
		def.WriteString(reindent(string(src[lineStart:r.end]), margin, "    ") + "\n")
		if len(returns) > 0 {
			def.WriteString("    return " + strings.Join(returns, ", ") + "\n")
		}
		def.WriteString("\n\n")
		if len(returns) > 0 {
			call = strings.Join(returns, ", ") + " = " + call
		}
		edits = append(edits,
			textEdit{start: at, end: at, text: def.String()},
			textEdit{start: lineStart, end: r.end, text: margin + call},
		)
	}

	out, err := applyEdits(src, edits)
	if err != nil {
		return nil, err
	}
	res = &engine.Result{Description: fmt.Sprintf("Extract method <%s>", name)}
	res.Ops = appendChange(res.Ops, f.mod, out)
	return res, nil
}

// checkExtractable rejects statements whose control flow leaves the region.
func checkExtractable(stmts []*sitter.Node, r region) error {
	var bad error
	for _, s := range stmts {
		ast.Walk(s, func(n *sitter.Node) bool {
			if bad != nil {
				return false
			}
			switch n.Type() {
			case ast.NodeFunctionDefinition, ast.NodeLambda, ast.NodeClassDefinition:
				return false
			case "return_statement", "yield", "await":
				bad = engine.Errorf(engine.ErrUnsupported, "the region contains %s", strings.TrimSuffix(n.Type(), "_statement"))
			case ast.NodeGlobalStatement, ast.NodeNonlocalStatement:
				bad = engine.Errorf(engine.ErrUnsupported, "the region declares %s names", strings.TrimSuffix(n.Type(), "_statement"))
			case "break_statement", "continue_statement":
				loop := ast.Ancestor(n, ast.NodeForStatement, "while_statement")
				if loop == nil || int(loop.StartByte()) < r.start {
					bad = engine.Errorf(engine.ErrUnsupported, "the region contains %s outside its loop", strings.TrimSuffix(n.Type(), "_statement"))
				}
			}
			return true
		})
	}
	return bad
}

// dataflow computes the parameters and return values of code extracted
// from function fn. At module level there are none.
func (f *file) dataflow(fn *sitter.Node, nodes []*sitter.Node, r region) (params, returns []string) {
	if fn == nil {
		return nil, nil
	}
	locals := f.bindings(fn).local

	var inside []*sitter.Node
	for _, n := range nodes {
		ast.Walk(n, func(c *sitter.Node) bool {
			if c.Type() == ast.NodeIdentifier {
				if roleOf(c) == roleName && locals[f.tree.Text(c)] {
					inside = append(inside, c)
				}
				return false
			}
			return true
		})
	}

	boundOutside := make(map[string]bool)
	readAfter := make(map[string]bool)
	for _, c := range f.refsOfLocals(fn, locals) {
		pos := int(c.StartByte())
		if pos >= r.start && pos < r.end {
			continue
		}
		name := f.tree.Text(c)
		if bindingOf(c) != bindNone || f.bindings(fn).params[name] {
			boundOutside[name] = true
		}
		if pos >= r.end && bindingOf(c) == bindNone {
			readAfter[name] = true
		}
	}

	boundInside := make(map[string]bool)
	seenParam := make(map[string]bool)
	seenReturn := make(map[string]bool)
	for _, c := range inside {
		name := f.tree.Text(c)
		if bindingOf(c) != bindNone {
			boundInside[name] = true
			if readAfter[name] && !seenReturn[name] {
				seenReturn[name] = true
				returns = append(returns, name)
			}
			continue
		}
		if !boundInside[name] && boundOutside[name] && !seenParam[name] {
			seenParam[name] = true
			params = append(params, name)
		}
	}
	return params, returns
}

// refsOfLocals returns every plain-name identifier in fn naming one of
// its locals.
func (f *file) refsOfLocals(fn *sitter.Node, locals map[string]bool) []*sitter.Node {
	var out []*sitter.Node
	ast.Walk(fn, func(n *sitter.Node) bool {
		if n.Type() == ast.NodeIdentifier {
			if locals[f.tree.Text(n)] && roleOf(n) == roleName {
				out = append(out, n)
			}
			return false
		}
		return true
	})
	return out
}
