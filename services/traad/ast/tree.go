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
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// Tree is a parsed syntax tree together with the source it was parsed from.
//
// Tree owns native tree-sitter memory; call Close when done. Nodes obtained
// from a Tree are invalid after Close.
type Tree struct {
	tree *sitter.Tree

	// Source is the parsed content. Node byte offsets index into it.
	Source []byte

	// Path is the project-relative file path.
	Path string
}

// Close releases the native tree.
func (t *Tree) Close() {
	if t.tree != nil {
		t.tree.Close()
		t.tree = nil
	}
}

// Root returns the module node.
func (t *Tree) Root() *sitter.Node {
	return t.tree.RootNode()
}

// Text returns the source text covered by n.
func (t *Tree) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(t.Source)
}

// HasErrors reports whether the tree contains ERROR or MISSING nodes.
func (t *Tree) HasErrors() bool {
	return t.FirstError() != nil
}

// FirstError returns the first ERROR or MISSING node in source order.
func (t *Tree) FirstError() *sitter.Node {
	return findFirstError(t.Root())
}

// NodeAt returns the smallest node whose byte range contains offset.
func (t *Tree) NodeAt(offset int) *sitter.Node {
	n := t.Root()
	off := uint32(offset)
	for {
		var next *sitter.Node
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c.StartByte() <= off && off < c.EndByte() {
				next = c
				break
			}
		}
		if next == nil {
			return n
		}
		n = next
	}
}

// IdentifierAt returns the identifier under offset.
//
// An offset just past the end of an identifier (a cursor at the end of a
// word) also selects it. Returns nil when no identifier is there.
func (t *Tree) IdentifierAt(offset int) *sitter.Node {
	if offset < 0 || offset > len(t.Source) {
		return nil
	}
	if offset < len(t.Source) {
		if n := t.NodeAt(offset); n.Type() == NodeIdentifier {
			return n
		}
	}
	if offset > 0 {
		if n := t.NodeAt(offset - 1); n.Type() == NodeIdentifier {
			return n
		}
	}
	return nil
}

// Docstring returns the cleaned docstring of a module, function, or class
// node.
func (t *Tree) Docstring(n *sitter.Node) (string, bool) {
	body := n
	if n.Type() != NodeModule {
		body = n.ChildByFieldName("body")
		if body == nil {
			return "", false
		}
	}
	first := firstStatement(body)
	if first == nil || first.Type() != NodeExpressionStatement || first.NamedChildCount() != 1 {
		return "", false
	}
	str := first.NamedChild(0)
	if str.Type() != NodeString {
		return "", false
	}
	return CleanDocstring(t.Text(str)), true
}

// firstStatement returns the first named child that is not a comment.
func firstStatement(block *sitter.Node) *sitter.Node {
	for i := 0; i < int(block.NamedChildCount()); i++ {
		c := block.NamedChild(i)
		if c.Type() != NodeComment {
			return c
		}
	}
	return nil
}

// =============================================================================
// Node Helpers
// =============================================================================

// Walk visits n and its descendants in source order. Returning false from
// fn skips the node's children.
func Walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		Walk(n.Child(i), fn)
	}
}

// Ancestor returns the nearest strict ancestor of n with one of the given
// types, or nil.
func Ancestor(n *sitter.Node, types ...string) *sitter.Node {
	for p := n.Parent(); p != nil; p = p.Parent() {
		for _, typ := range types {
			if p.Type() == typ {
				return p
			}
		}
	}
	return nil
}

// SameNode reports whether a and b denote the same syntax node.
func SameNode(a, b *sitter.Node) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte() && a.Type() == b.Type()
}

// Contains reports whether outer's byte range contains inner's.
func Contains(outer, inner *sitter.Node) bool {
	return outer.StartByte() <= inner.StartByte() && inner.EndByte() <= outer.EndByte()
}

func findFirstError(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsError() || node.IsMissing() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if err := findFirstError(node.Child(i)); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// Offset Helpers
// =============================================================================

// RuneToByte converts a character offset into a byte offset of src.
//
// Returns false when offset is negative or past the end of src.
func RuneToByte(src []byte, offset int) (int, bool) {
	if offset < 0 {
		return 0, false
	}
	pos := 0
	for i := 0; i < offset; i++ {
		if pos >= len(src) {
			return 0, false
		}
		_, size := utf8.DecodeRune(src[pos:])
		pos += size
	}
	return pos, true
}

// ByteToRune converts a byte offset of src into a character offset.
func ByteToRune(src []byte, offset int) int {
	if offset > len(src) {
		offset = len(src)
	}
	return utf8.RuneCount(src[:offset])
}

// LineStart returns the byte offset of the start of the line containing
// offset.
func LineStart(src []byte, offset int) int {
	for offset > 0 && src[offset-1] != '\n' {
		offset--
	}
	return offset
}

// LineEnd returns the byte offset just past the newline ending the line
// containing offset, or len(src).
func LineEnd(src []byte, offset int) int {
	for offset < len(src) {
		if src[offset] == '\n' {
			return offset + 1
		}
		offset++
	}
	return offset
}

// Indent returns the leading whitespace of the line containing offset.
func Indent(src []byte, offset int) string {
	start := LineStart(src, offset)
	end := start
	for end < len(src) && (src[end] == ' ' || src[end] == '\t') {
		end++
	}
	return string(src[start:end])
}

// =============================================================================
// Docstrings
// =============================================================================

// CleanDocstring strips the quotes of a string literal and removes the
// common indentation of its continuation lines.
func CleanDocstring(literal string) string {
	s := strings.TrimLeft(literal, "rRuUbBfF")
	switch {
	case len(s) >= 6 && (strings.HasPrefix(s, `"""`) || strings.HasPrefix(s, `'''`)):
		s = s[3 : len(s)-3]
	case len(s) >= 2:
		s = s[1 : len(s)-1]
	}

	lines := strings.Split(strings.ReplaceAll(s, "\t", "    "), "\n")
	margin := -1
	for _, line := range lines[1:] {
		stripped := strings.TrimLeft(line, " ")
		if stripped == "" {
			continue
		}
		if ind := len(line) - len(stripped); margin < 0 || ind < margin {
			margin = ind
		}
	}
	lines[0] = strings.TrimSpace(lines[0])
	for i := 1; i < len(lines); i++ {
		if margin > 0 && len(lines[i]) >= margin {
			lines[i] = lines[i][margin:]
		}
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}
