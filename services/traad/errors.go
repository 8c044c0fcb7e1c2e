// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package traad

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/AleutianAI/traad/services/traad/change"
	"github.com/AleutianAI/traad/services/traad/project"
)

// Error kinds reported by the workspace. Every error a Workspace method
// returns is a *WorkspaceError whose Kind is one of these.
var (
	// ErrNotFound indicates a missing resource or an unregistered project.
	ErrNotFound = errors.New("not found")

	// ErrRefactoringFailed indicates the engine could not compute a change.
	ErrRefactoringFailed = errors.New("refactoring failed")

	// ErrInvalidChangeData indicates change data that references unknown
	// projects or paths, or is malformed.
	ErrInvalidChangeData = errors.New("invalid change data")

	// ErrApplyConflict indicates that files changed between compute and
	// apply. Nothing was written.
	ErrApplyConflict = errors.New("apply conflict")

	// ErrWorkspaceClosed indicates use of a workspace after Close.
	ErrWorkspaceClosed = errors.New("workspace closed")

	// ErrInvalidRequest indicates malformed operation arguments.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInternal indicates a defect, such as applying a change set twice.
	ErrInternal = errors.New("internal error")
)

// WorkspaceError is a classified workspace failure.
type WorkspaceError struct {
	// Kind is one of the Err* sentinels above.
	Kind error

	// Op is the workspace operation that failed.
	Op string

	// Message is safe to show to the client.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error returns "op: message".
func (e *WorkspaceError) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return e.Op + ": " + e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *WorkspaceError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op, format string, args ...any) *WorkspaceError {
	return &WorkspaceError{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// classify wraps err in a *WorkspaceError, choosing the kind from the
// package sentinels it carries. Errors already classified pass through.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var we *WorkspaceError
	if errors.As(err, &we) {
		return we
	}

	kind := ErrInternal
	switch {
	case errors.Is(err, change.ErrAlreadyApplied):
		kind = ErrInternal
	case errors.Is(err, change.ErrInvalidData):
		kind = ErrInvalidChangeData
	case errors.Is(err, change.ErrConflict),
		errors.Is(err, change.ErrDiscarded),
		errors.Is(err, project.ErrExists):
		kind = ErrApplyConflict
	case errors.Is(err, project.ErrNotFound),
		errors.Is(err, project.ErrNotDirectory):
		kind = ErrNotFound
	case errors.Is(err, project.ErrClosed):
		kind = ErrWorkspaceClosed
	}
	return &WorkspaceError{Kind: kind, Op: op, Message: err.Error(), Err: err}
}

// =============================================================================
// HTTP Mapping
// =============================================================================

// statusFor returns the HTTP status and error code for err.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, ErrRefactoringFailed):
		return http.StatusUnprocessableEntity, "REFACTORING_FAILED"
	case errors.Is(err, ErrInvalidChangeData):
		return http.StatusBadRequest, "INVALID_CHANGE_DATA"
	case errors.Is(err, ErrApplyConflict):
		return http.StatusConflict, "APPLY_CONFLICT"
	case errors.Is(err, ErrWorkspaceClosed):
		return http.StatusServiceUnavailable, "WORKSPACE_CLOSED"
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
