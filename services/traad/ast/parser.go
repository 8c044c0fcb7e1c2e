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
	"sort"
	"sync"
)

// Parser defines the contract for language-specific parsing.
//
// Description:
//
//	Parser implementations turn source bytes into two shapes: a syntax Tree
//	for positional work (finding the node under an offset, walking scopes)
//	and a ParseResult summary of the file's top-level symbols and imports.
//	The summary is plain data and may be cached across requests; the Tree
//	owns native memory and must be closed.
//
// Inputs:
//
//	ctx      - Context for cancellation.
//	content  - Raw source bytes. Must be valid UTF-8.
//	filePath - Project-relative, slash-separated path, used for errors.
//
// Thread Safety:
//
//	Implementations must be safe for concurrent use. Each call uses its own
//	native parser instance.
type Parser interface {
	// Parse extracts the symbol and import summary of a file.
	//
	// Syntax errors do not fail the parse; they are reported through
	// ParseResult.HasErrors.
	Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error)

	// ParseTree returns the full syntax tree. The caller must Close it.
	ParseTree(ctx context.Context, content []byte, filePath string) (*Tree, error)

	// Language returns the lowercase language name, e.g. "python".
	Language() string

	// Extensions returns the handled file extensions including the dot.
	Extensions() []string
}

// ParserRegistry manages parser instances by language and file extension.
//
// Thread Safety:
//
//	ParserRegistry is safe for concurrent use. Registration takes the write
//	lock, lookups the read lock.
type ParserRegistry struct {
	mu sync.RWMutex

	byLanguage  map[string]Parser
	byExtension map[string]Parser
}

// NewParserRegistry creates a new empty ParserRegistry.
func NewParserRegistry() *ParserRegistry {
	return &ParserRegistry{
		byLanguage:  make(map[string]Parser),
		byExtension: make(map[string]Parser),
	}
}

// DefaultRegistry returns a registry with every built-in parser registered.
func DefaultRegistry() *ParserRegistry {
	r := NewParserRegistry()
	r.Register(NewPythonParser())
	return r
}

// Register adds a parser under its Language() and all its Extensions().
//
// Existing registrations for the same language or extension are replaced.
// A nil parser is ignored.
func (r *ParserRegistry) Register(parser Parser) {
	if parser == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.byLanguage[parser.Language()] = parser
	for _, ext := range parser.Extensions() {
		r.byExtension[ext] = parser
	}
}

// GetByLanguage returns the parser for the given language name.
func (r *ParserRegistry) GetByLanguage(language string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parser, ok := r.byLanguage[language]
	return parser, ok
}

// GetByExtension returns the parser for the given file extension (".py").
func (r *ParserRegistry) GetByExtension(ext string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	parser, ok := r.byExtension[ext]
	return parser, ok
}

// Extensions returns all registered file extensions, sorted.
func (r *ParserRegistry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	extensions := make([]string, 0, len(r.byExtension))
	for ext := range r.byExtension {
		extensions = append(extensions, ext)
	}
	sort.Strings(extensions)
	return extensions
}
