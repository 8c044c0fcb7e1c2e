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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/traad/services/traad/change"
	"github.com/AleutianAI/traad/services/traad/engine"
	"github.com/AleutianAI/traad/services/traad/history"
	"github.com/AleutianAI/traad/services/traad/telemetry"
)

// MaxChangeDataBytes bounds the body of POST /v1/traad/changes/apply.
const MaxChangeDataBytes = 32 << 20

const mimeCBOR = "application/cbor"

// Handlers contains the HTTP handlers for a workspace.
type Handlers struct {
	ws     *Workspace
	logger *slog.Logger
}

// NewHandlers creates handlers serving ws.
func NewHandlers(ws *Workspace, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{ws: ws, logger: logger.With(slog.String("component", "http"))}
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	logger := telemetry.LoggerWithTrace(c.Request.Context(), h.logger)
	return logger.With(
		slog.String("request_id", getOrCreateRequestID(c)),
		slog.String("handler", handler),
	)
}

// writeError reports err with the status and code of its kind. Internal
// errors are logged as defects.
func writeError(c *gin.Context, logger *slog.Logger, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed with internal error", slog.String("error", err.Error()))
	} else {
		logger.Info("Request failed", slog.String("code", code), slog.String("error", err.Error()))
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func writeBindError(c *gin.Context, logger *slog.Logger, err error) {
	logger.Warn("Invalid request body", slog.String("error", err.Error()))
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request body",
		Code:    "INVALID_REQUEST",
		Details: err.Error(),
	})
}

func wantsCBOR(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), mimeCBOR)
}

// writeChange sends a change response as JSON, or as CBOR when the client
// accepts it.
func writeChange(c *gin.Context, logger *slog.Logger, body any, data change.Data) {
	if !wantsCBOR(c) {
		c.JSON(http.StatusOK, body)
		return
	}
	b, err := change.MarshalCBOR(data)
	if err != nil {
		writeError(c, logger, &WorkspaceError{Kind: ErrInternal, Op: "encode", Message: err.Error(), Err: err})
		return
	}
	c.Data(http.StatusOK, mimeCBOR, b)
}

func changeResponse(cs *change.ChangeSet, applied bool) ChangeResponse {
	return ChangeResponse{ID: cs.ID, Applied: applied, Changes: change.Encode(cs)}
}

// =============================================================================
// Resources
// =============================================================================

// HandleAllResources handles GET /v1/traad/all_resources.
//
// Query Parameters:
//
//	project: root directory of the project to list (optional, default root)
//
// Response:
//
//	200 OK: ResourcesResponse in level order
//	404 Not Found: project is not registered
func (h *Handlers) HandleAllResources(c *gin.Context) {
	logger := h.requestLogger(c, "HandleAllResources")

	resources, err := h.ws.ListResources(c.Request.Context(), c.Query("project"))
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, ResourcesResponse{Resources: resources})
}

// HandleChildren handles GET /v1/traad/children.
//
// Query Parameters:
//
//	path: folder path, absolute or relative to the root project (optional)
func (h *Handlers) HandleChildren(c *gin.Context) {
	logger := h.requestLogger(c, "HandleChildren")

	children, err := h.ws.ListChildren(c.Request.Context(), c.Query("path"))
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, ResourcesResponse{Resources: children})
}

// =============================================================================
// Refactorings
// =============================================================================

// HandleRename handles POST /v1/traad/rename.
//
// Description:
//
//	Renames the symbol at offset and applies the change immediately.
//	Without an offset the module at path is renamed: the file moves and
//	its imports are rewritten.
//
// Request Body:
//
//	RenameRequest
//
// Response:
//
//	200 OK: ChangeResponse (CBOR change data with Accept: application/cbor)
//	400 Bad Request: invalid body
//	404 Not Found: path does not exist
//	409 Conflict: files changed during the rename
//	422 Unprocessable Entity: the engine rejected the rename
func (h *Handlers) HandleRename(c *gin.Context) {
	logger := h.requestLogger(c, "HandleRename")

	var req RenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, logger, err)
		return
	}
	offset := engine.NoOffset
	if req.Offset != nil {
		offset = *req.Offset
	}

	logger.Info("Renaming", slog.String("path", req.Path), slog.Int("offset", offset), slog.String("new_name", req.NewName))
	cs, err := h.ws.Perform(c.Request.Context(), RefactorRename, req.Path, offset, Args{NewName: req.NewName})
	if err != nil {
		writeError(c, logger, err)
		return
	}
	resp := changeResponse(cs, true)
	writeChange(c, logger, resp, resp.data())
}

// HandleRefactor handles POST /v1/traad/refactor/:kind.
//
// Description:
//
//	Runs the refactoring named by kind. With preview set the change is
//	only computed and can be applied later through
//	POST /v1/traad/changes/:id/apply.
//
// Request Body:
//
//	RefactorRequest
//
// Response:
//
//	200 OK: ChangeResponse
//	400 Bad Request: unknown kind or invalid body
//	404 Not Found: path does not exist
//	409 Conflict: files changed during the refactoring
//	422 Unprocessable Entity: the engine rejected the refactoring
func (h *Handlers) HandleRefactor(c *gin.Context) {
	logger := h.requestLogger(c, "HandleRefactor")

	kind := Refactoring(c.Param("kind"))
	if !kind.Valid() {
		writeError(c, logger, newError(ErrInvalidRequest, "refactor", "unknown refactoring %q", kind))
		return
	}
	var req RefactorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, logger, err)
		return
	}
	offset := engine.NoOffset
	if req.Offset != nil {
		offset = *req.Offset
	}

	ctx := c.Request.Context()
	var (
		cs  *change.ChangeSet
		err error
	)
	if req.Preview {
		cs, err = h.ws.ComputeChanges(ctx, kind, req.Path, offset, req.Args)
	} else {
		cs, err = h.ws.Perform(ctx, kind, req.Path, offset, req.Args)
	}
	if err != nil {
		writeError(c, logger, err)
		return
	}
	logger.Info("Refactoring done",
		slog.String("kind", string(kind)),
		slog.String("change_id", cs.ID),
		slog.Bool("applied", !req.Preview),
	)
	resp := changeResponse(cs, !req.Preview)
	writeChange(c, logger, resp, resp.data())
}

// =============================================================================
// Change Lifecycle
// =============================================================================

// HandleApplyChange handles POST /v1/traad/changes/:id/apply.
//
// Response:
//
//	200 OK: ChangeResponse
//	404 Not Found: no pending change with this ID
//	409 Conflict: files changed since the change was computed
func (h *Handlers) HandleApplyChange(c *gin.Context) {
	logger := h.requestLogger(c, "HandleApplyChange")

	cs, err := h.ws.ApplyByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, logger, err)
		return
	}
	resp := changeResponse(cs, true)
	writeChange(c, logger, resp, resp.data())
}

// HandleDiscardChange handles DELETE /v1/traad/changes/:id.
//
// Response:
//
//	204 No Content
//	404 Not Found: no pending change with this ID
func (h *Handlers) HandleDiscardChange(c *gin.Context) {
	logger := h.requestLogger(c, "HandleDiscardChange")

	if err := h.ws.Discard(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleApplyData handles POST /v1/traad/changes/apply.
//
// Description:
//
//	Applies change data produced by an earlier response. The body is
//	JSON, or CBOR with Content-Type: application/cbor.
//
// Response:
//
//	200 OK: ChangeResponse
//	400 Bad Request: malformed or unresolvable change data
//	409 Conflict: files changed since the change was computed
func (h *Handlers) HandleApplyData(c *gin.Context) {
	logger := h.requestLogger(c, "HandleApplyData")

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxChangeDataBytes)
	body, err := c.GetRawData()
	if err != nil {
		writeBindError(c, logger, err)
		return
	}

	var data change.Data
	if strings.HasPrefix(c.ContentType(), mimeCBOR) {
		data, err = change.UnmarshalCBOR(body)
	} else if err = json.Unmarshal(body, &data); err != nil {
		err = errors.Join(change.ErrInvalidData, err)
	}
	if err != nil {
		writeError(c, logger, classify("apply_data", err))
		return
	}

	cs, err := h.ws.ApplyData(c.Request.Context(), data)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	resp := changeResponse(cs, true)
	writeChange(c, logger, resp, resp.data())
}

// =============================================================================
// History
// =============================================================================

// HandleUndo handles POST /v1/traad/history/undo.
//
// Response:
//
//	200 OK: HistoryStepResponse; status "nothing_to_undo" with empty
//	        changes when the history is at its start
//	409 Conflict: files changed since the change was applied
func (h *Handlers) HandleUndo(c *gin.Context) {
	logger := h.requestLogger(c, "HandleUndo")

	cs, status, err := h.ws.Undo(c.Request.Context())
	h.writeStep(c, logger, cs, status, err)
}

// HandleRedo handles POST /v1/traad/history/redo.
func (h *Handlers) HandleRedo(c *gin.Context) {
	logger := h.requestLogger(c, "HandleRedo")

	cs, status, err := h.ws.Redo(c.Request.Context())
	h.writeStep(c, logger, cs, status, err)
}

func (h *Handlers) writeStep(c *gin.Context, logger *slog.Logger, cs *change.ChangeSet, status history.Status, err error) {
	if err != nil {
		writeError(c, logger, err)
		return
	}
	resp := HistoryStepResponse{Status: status.String(), Changes: change.Encode(cs)}
	writeChange(c, logger, resp, resp.data())
}

// HandleHistory handles GET /v1/traad/history.
func (h *Handlers) HandleHistory(c *gin.Context) {
	logger := h.requestLogger(c, "HandleHistory")

	view, err := h.ws.History(c.Request.Context())
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// =============================================================================
// Code Assist
// =============================================================================

func (h *Handlers) bindQuery(c *gin.Context, logger *slog.Logger) (QueryRequest, bool) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, logger, err)
		return req, false
	}
	return req, true
}

// HandleCodeAssist handles POST /v1/traad/code_assist.
//
// Request Body:
//
//	QueryRequest; code is the editor's current buffer
//
// Response:
//
//	200 OK: CodeAssistResponse in engine order
//	422 Unprocessable Entity: the engine could not analyze the buffer
func (h *Handlers) HandleCodeAssist(c *gin.Context) {
	logger := h.requestLogger(c, "HandleCodeAssist")
	req, ok := h.bindQuery(c, logger)
	if !ok {
		return
	}

	proposals, err := h.ws.CodeAssist(c.Request.Context(), req.Code, req.Offset, req.Path)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, CodeAssistResponse{Proposals: proposals})
}

// HandleDoc handles POST /v1/traad/doc.
func (h *Handlers) HandleDoc(c *gin.Context) {
	logger := h.requestLogger(c, "HandleDoc")
	req, ok := h.bindQuery(c, logger)
	if !ok {
		return
	}

	doc, found, err := h.ws.GetDoc(c.Request.Context(), req.Code, req.Offset, req.Path)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, TextResponse{Found: found, Text: doc})
}

// HandleCalltip handles POST /v1/traad/calltip.
func (h *Handlers) HandleCalltip(c *gin.Context) {
	logger := h.requestLogger(c, "HandleCalltip")
	req, ok := h.bindQuery(c, logger)
	if !ok {
		return
	}

	tip, found, err := h.ws.GetCalltip(c.Request.Context(), req.Code, req.Offset, req.Path)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, TextResponse{Found: found, Text: tip})
}

// HandleDefinition handles POST /v1/traad/definition.
func (h *Handlers) HandleDefinition(c *gin.Context) {
	logger := h.requestLogger(c, "HandleDefinition")
	req, ok := h.bindQuery(c, logger)
	if !ok {
		return
	}

	loc, err := h.ws.GetDefinitionLocation(c.Request.Context(), req.Code, req.Offset, req.Path)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, DefinitionResponse{Found: loc != nil, Location: loc})
}

// =============================================================================
// Projects
// =============================================================================

// HandleProjects handles GET /v1/traad/projects.
func (h *Handlers) HandleProjects(c *gin.Context) {
	logger := h.requestLogger(c, "HandleProjects")

	roots, err := h.ws.Projects(c.Request.Context())
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, ProjectsResponse{Root: roots[0], Cross: roots[1:]})
}

// HandleAddCrossProject handles POST /v1/traad/cross_projects.
//
// Response:
//
//	200 OK: CrossProjectResponse
//	404 Not Found: directory does not exist
func (h *Handlers) HandleAddCrossProject(c *gin.Context) {
	logger := h.requestLogger(c, "HandleAddCrossProject")

	var req CrossProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, logger, err)
		return
	}
	root, err := h.ws.AddCrossProject(c.Request.Context(), req.Directory)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	logger.Info("Cross project added", slog.String("root", root))
	c.JSON(http.StatusOK, CrossProjectResponse{Root: root})
}

// HandleRemoveCrossProject handles DELETE /v1/traad/cross_projects.
//
// Response:
//
//	204 No Content
//	404 Not Found: directory is not a cross project
func (h *Handlers) HandleRemoveCrossProject(c *gin.Context) {
	logger := h.requestLogger(c, "HandleRemoveCrossProject")

	var req CrossProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, logger, err)
		return
	}
	if err := h.ws.RemoveCrossProject(c.Request.Context(), req.Directory); err != nil {
		writeError(c, logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// =============================================================================
// Health
// =============================================================================

// HandleHealth handles GET /v1/traad/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: ServiceVersion})
}

// HandleReady handles GET /v1/traad/ready. It fails once the workspace is
// closed.
func (h *Handlers) HandleReady(c *gin.Context) {
	if h.ws.Closed() {
		c.JSON(http.StatusServiceUnavailable, ReadyResponse{Ready: false})
		return
	}
	c.JSON(http.StatusOK, ReadyResponse{Ready: true})
}
