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
	"time"

	"github.com/AleutianAI/traad/services/traad/change"
	"github.com/AleutianAI/traad/services/traad/engine"
)

// ServiceVersion is the traad server version.
const ServiceVersion = "0.3.0"

// =============================================================================
// Workspace Results
// =============================================================================

// ResourceInfo is a listed resource.
type ResourceInfo struct {
	// Path is relative to the resource's project; "" is the project root.
	Path string `json:"path"`

	IsFolder bool `json:"is_folder"`
}

// Location is where a symbol is defined.
type Location struct {
	// Project is the canonical root of the defining project.
	Project string `json:"project"`

	// Path is relative to Project.
	Path string `json:"path"`

	// Line is 1-indexed.
	Line int `json:"line"`
}

// HistoryItem summarizes one history entry.
type HistoryItem struct {
	Seq         int       `json:"seq"`
	Time        time.Time `json:"time"`
	Description string    `json:"description"`
	Edits       int       `json:"edits"`

	// Undone is true for entries after the cursor, which Redo can reapply.
	Undone bool `json:"undone"`
}

// HistoryView is the undo history, oldest entry first.
type HistoryView struct {
	// Cursor is the number of applied entries.
	Cursor  int           `json:"cursor"`
	Entries []HistoryItem `json:"entries"`
}

// =============================================================================
// HTTP Requests
// =============================================================================

// RenameRequest is the body of POST /v1/traad/rename.
type RenameRequest struct {
	NewName string `json:"new_name" binding:"required"`
	Path    string `json:"path" binding:"required"`

	// Offset is a character offset; absent renames the module itself.
	Offset *int `json:"offset" binding:"omitempty,gte=0"`
}

// RefactorRequest is the body of POST /v1/traad/refactor/:kind.
type RefactorRequest struct {
	Path   string `json:"path" binding:"required"`
	Offset *int   `json:"offset" binding:"omitempty,gte=0"`
	Args   Args   `json:"args"`

	// Preview computes the change without applying it. The change can be
	// applied later by ID.
	Preview bool `json:"preview"`
}

// QueryRequest is the body of the code assist endpoints.
type QueryRequest struct {
	Code   string `json:"code"`
	Offset int    `json:"offset" binding:"gte=0"`
	Path   string `json:"path"`
}

// CrossProjectRequest is the body of POST and DELETE
// /v1/traad/cross_projects.
type CrossProjectRequest struct {
	Directory string `json:"directory" binding:"required"`
}

// =============================================================================
// HTTP Responses
// =============================================================================

// ResourcesResponse lists resources.
type ResourcesResponse struct {
	Resources []ResourceInfo `json:"resources"`
}

// ChangeResponse carries a change set as change data.
type ChangeResponse struct {
	ID      string      `json:"id"`
	Applied bool        `json:"applied"`
	Changes change.Data `json:"changes"`
}

func (r ChangeResponse) data() change.Data {
	return change.Data{"id": r.ID, "applied": r.Applied, "changes": r.Changes}
}

// HistoryStepResponse is the result of an undo or redo.
type HistoryStepResponse struct {
	// Status is "performed", "nothing_to_undo" or "nothing_to_redo".
	Status  string      `json:"status"`
	Changes change.Data `json:"changes"`
}

func (r HistoryStepResponse) data() change.Data {
	return change.Data{"status": r.Status, "changes": r.Changes}
}

// CodeAssistResponse lists completions in engine order.
type CodeAssistResponse struct {
	Proposals []engine.Proposal `json:"proposals"`
}

// TextResponse carries an optional doc string or calltip.
type TextResponse struct {
	Found bool   `json:"found"`
	Text  string `json:"text,omitempty"`
}

// DefinitionResponse carries an optional definition location.
type DefinitionResponse struct {
	Found    bool      `json:"found"`
	Location *Location `json:"location,omitempty"`
}

// ProjectsResponse lists project roots, root project first.
type ProjectsResponse struct {
	Root  string   `json:"root"`
	Cross []string `json:"cross"`
}

// CrossProjectResponse is the result of adding a cross project.
type CrossProjectResponse struct {
	// Root is the canonical root directory of the added project.
	Root string `json:"root"`
}

// HealthResponse is the health check result.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the readiness check result.
type ReadyResponse struct {
	Ready bool `json:"ready"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code.
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}
