// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine defines the contract between the traad workspace and a
// source analysis engine.
//
// The workspace never inspects source code itself. Every refactoring and
// every editor query goes through one of the provider interfaces below. An
// engine reports results as plain file operations (Result) that the
// workspace turns into change sets.
//
// The Python engine in the python subpackage implements every provider.
package engine

import (
	"context"
	"errors"
	"fmt"
)

// NoOffset marks an absent offset.
const NoOffset = -1

// Project is the read-only view of a code tree an engine analyzes.
type Project interface {
	// Root returns the canonical root directory.
	Root() string

	// Files lists project-relative paths of files with the given extensions.
	Files(exts ...string) ([]string, error)

	// ReadFile returns the contents of a project-relative file.
	ReadFile(rel string) ([]byte, error)

	// Generation changes whenever the project's files change.
	Generation() uint64
}

// Target identifies where a refactoring is invoked.
type Target struct {
	// Projects is every project in the workspace, root first.
	Projects []Project

	// Project holds Path.
	Project Project

	// Path is project-relative.
	Path string

	// Offset is a character offset into the file, or NoOffset.
	Offset int
}

// NewParam is a parameter added by a signature change.
type NewParam struct {
	Name    string `json:"name"`
	Default string `json:"default"`
}

// SignatureChange describes a change_signature request.
type SignatureChange struct {
	// Order gives, for each kept parameter in current order, its position
	// in the new signature. Empty keeps the current order.
	Order []int

	// Remove names parameters to drop.
	Remove []string

	// Add appends parameters, each with a default value.
	Add []NewParam
}

// OpKind is the type of a file operation in a Result.
type OpKind int

const (
	OpChange OpKind = iota
	OpCreate
	OpMove
	OpRemove
)

// String returns the lowercase operation name.
func (k OpKind) String() string {
	switch k {
	case OpChange:
		return "change"
	case OpCreate:
		return "create"
	case OpMove:
		return "move"
	case OpRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// Op is one file operation produced by a refactoring.
type Op struct {
	Kind    OpKind
	Project Project
	Path    string

	// NewPath is the destination of a move.
	NewPath string

	// OldContents is what the engine analyzed, for changes and removals.
	OldContents string

	// NewContents is the replacement or created contents.
	NewContents string

	// IsFolder marks folder creations and removals.
	IsFolder bool
}

// Result is the outcome of a refactoring: a description plus operations in
// the order they must be applied. A Result with no Ops is a valid no-op.
type Result struct {
	Description string
	Ops         []Op
}

// Query is an editor request against possibly unsaved source.
type Query struct {
	Projects []Project
	Project  Project

	// Path is the project-relative path of the edited file; may be empty.
	Path string

	// Source is the editor's current text of the file.
	Source string

	// Offset is a character offset into Source.
	Offset int
}

// Proposal is one code completion.
type Proposal struct {
	Name  string `json:"name"`
	Doc   string `json:"doc"`
	Scope string `json:"scope"`
	Kind  string `json:"type"`
}

// Location is where a symbol is defined.
type Location struct {
	Project Project
	Path    string

	// Line is 1-indexed.
	Line int
}

// =============================================================================
// Providers
// =============================================================================

// Renamer renames the symbol at an offset everywhere it is referenced.
// With NoOffset it renames the target module and the imports of it.
type Renamer interface {
	Rename(ctx context.Context, target Target, newName string) (*Result, error)
}

// Inliner replaces a variable with its value.
type Inliner interface {
	Inline(ctx context.Context, target Target) (*Result, error)
}

// Extractor extracts the region [target.Offset, end) into a new function
// or variable.
type Extractor interface {
	ExtractMethod(ctx context.Context, target Target, end int, name string) (*Result, error)
	ExtractVariable(ctx context.Context, target Target, end int, name string) (*Result, error)
}

// SignatureChanger rewrites a function's parameters and its call sites.
type SignatureChanger interface {
	ChangeSignature(ctx context.Context, target Target, change SignatureChange) (*Result, error)
}

// ImportOrganizer removes unused imports and sorts the rest.
type ImportOrganizer interface {
	OrganizeImports(ctx context.Context, target Target) (*Result, error)
}

// CodeAssistant answers editor queries.
type CodeAssistant interface {
	// CodeAssist returns completions in engine-defined order.
	CodeAssist(ctx context.Context, q Query) ([]Proposal, error)

	// Doc returns the documentation of the symbol at the offset.
	Doc(ctx context.Context, q Query) (string, bool, error)

	// Calltip returns the signature of the call enclosing the offset.
	Calltip(ctx context.Context, q Query) (string, bool, error)

	// Definition returns where the symbol at the offset is defined, or nil.
	Definition(ctx context.Context, q Query) (*Location, error)
}

// Engine implements every provider.
type Engine interface {
	Renamer
	Inliner
	Extractor
	SignatureChanger
	ImportOrganizer
	CodeAssistant
}

// =============================================================================
// Errors
// =============================================================================

// Sentinel error kinds carried by *Error.
var (
	// ErrNoTarget indicates nothing refactorable at the offset.
	ErrNoTarget = errors.New("no target at offset")

	// ErrInvalidArgument indicates a bad name, region, or signature change.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSyntax indicates a file the engine cannot analyze.
	ErrSyntax = errors.New("syntax error")

	// ErrUnsupported indicates a refactoring the engine does not perform
	// on this target.
	ErrUnsupported = errors.New("unsupported refactoring")
)

// Error is an engine failure with a human-readable message.
type Error struct {
	Kind    error
	Message string

	// Cause is the underlying error, may be nil.
	Cause error
}

// Error returns the message.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the kind and the cause, when there is one.
func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Errorf builds an *Error of the given kind.
func Errorf(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
