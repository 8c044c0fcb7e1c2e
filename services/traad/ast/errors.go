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
	"errors"
	"fmt"
)

// Sentinel errors for parse failure conditions.
//
// Check with errors.Is() to classify a failure without inspecting messages.
var (
	// ErrUnsupportedLanguage indicates that no parser is registered for the
	// requested language or file extension.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrParseFailed indicates that parsing failed completely and no tree
	// could be produced.
	//
	// This is different from syntax errors, which still yield a tree with
	// Tree.HasErrors() reporting true.
	ErrParseFailed = errors.New("parse failed")

	// ErrInvalidContent indicates content that cannot be parsed at all
	// (nil slice or invalid UTF-8).
	ErrInvalidContent = errors.New("invalid content")

	// ErrFileTooLarge indicates content above the parser's size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrContextCanceled indicates that parsing was canceled via context.
	ErrContextCanceled = errors.New("parse canceled")
)

// ParseError provides detailed information about a parse failure.
//
// ParseError wraps an underlying error with the location in the source file
// where the failure was detected. Unwrap exposes the cause.
//
// Example:
//
//	tree, err := parser.ParseTree(ctx, content, "pkg/mod.py")
//	var parseErr *ParseError
//	if errors.As(err, &parseErr) {
//	    fmt.Printf("%s:%d\n", parseErr.FilePath, parseErr.Line)
//	}
type ParseError struct {
	// FilePath is the path of the file where the error occurred.
	FilePath string

	// Line is the 1-indexed line number, 0 if unknown.
	Line int

	// Column is the 1-indexed column, 0 if unknown.
	Column int

	// Message describes the error.
	Message string

	// Cause is the underlying error, may be nil.
	Cause error
}

// Error returns "file:line:col: message", dropping unknown location parts.
func (e *ParseError) Error() string {
	if e.Line > 0 && e.Column > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.FilePath, e.Line, e.Column, e.Message)
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.FilePath, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// NewParseError creates a ParseError without a cause.
func NewParseError(filePath string, line, column int, message string) *ParseError {
	return &ParseError{
		FilePath: filePath,
		Line:     line,
		Column:   column,
		Message:  message,
	}
}

// WrapParseError wraps an error with file context.
//
// ParseErrors are returned unchanged; nil stays nil.
func WrapParseError(err error, filePath string) error {
	if err == nil {
		return nil
	}

	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return err
	}

	return &ParseError{
		FilePath: filePath,
		Message:  err.Error(),
		Cause:    err,
	}
}
