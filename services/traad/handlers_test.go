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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/traad/services/traad/change"
)

func init() {
	// Set Gin to test mode to reduce noise
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(ws *Workspace) *gin.Engine {
	router := gin.New()
	v1 := router.Group("/v1")
	RegisterRoutes(v1, NewHandlers(ws, nil))
	return router
}

func serve(t *testing.T, router http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func renameRouter(t *testing.T) (*gin.Engine, *Workspace, string) {
	t.Helper()
	ws, dir := newTestWorkspace(t, map[string]string{"m.py": moduleM, "n.py": moduleN})
	return setupTestRouter(ws), ws, dir
}

func TestHandlers_HealthAndReady(t *testing.T) {
	router, ws, _ := renameRouter(t)

	w := serve(t, router, http.MethodGet, "/v1/traad/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, HealthResponse{Status: "healthy", Version: ServiceVersion}, decode[HealthResponse](t, w))

	w = serve(t, router, http.MethodGet, "/v1/traad/ready", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[ReadyResponse](t, w).Ready)

	require.NoError(t, ws.Close())
	w = serve(t, router, http.MethodGet, "/v1/traad/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = serve(t, router, http.MethodGet, "/v1/traad/all_resources", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "WORKSPACE_CLOSED", decode[ErrorResponse](t, w).Code)
}

func TestHandlers_Resources(t *testing.T) {
	router, _, _ := renameRouter(t)

	w := serve(t, router, http.MethodGet, "/v1/traad/all_resources", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []ResourceInfo{
		{Path: "", IsFolder: true},
		{Path: "m.py"},
		{Path: "n.py"},
	}, decode[ResourcesResponse](t, w).Resources)

	w = serve(t, router, http.MethodGet, "/v1/traad/children?path=m.py", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[ErrorResponse](t, w).Code)

	w = serve(t, router, http.MethodGet, "/v1/traad/children?path=nowhere", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[ErrorResponse](t, w).Code)

	w = serve(t, router, http.MethodGet, "/v1/traad/all_resources?project=/not/registered", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlers_Rename(t *testing.T) {
	router, _, dir := renameRouter(t)

	w := serve(t, router, http.MethodPost, "/v1/traad/rename",
		map[string]any{"new_name": "bar", "path": "m.py", "offset": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	resp := decode[ChangeResponse](t, w)
	assert.True(t, resp.Applied)
	assert.Equal(t, "ChangeSet", resp.Changes["type"])
	assert.Equal(t, resp.ID, resp.Changes["id"])
	changes, ok := resp.Changes["changes"].([]any)
	require.True(t, ok)
	assert.Len(t, changes, 2)
	assert.Equal(t, "import m\n\nm.bar()\n", readTree(t, dir, "n.py"))
}

func TestHandlers_RenameModule(t *testing.T) {
	router, _, dir := renameRouter(t)

	w := serve(t, router, http.MethodPost, "/v1/traad/rename",
		map[string]any{"new_name": "q", "path": "m.py"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[ChangeResponse](t, w)
	assert.True(t, resp.Applied)
	changes, ok := resp.Changes["changes"].([]any)
	require.True(t, ok)
	assert.Len(t, changes, 2)
	assert.Equal(t, moduleM, readTree(t, dir, "q.py"))
	assert.NoFileExists(t, filepath.Join(dir, "m.py"))
	assert.Equal(t, "import q\n\nq.foo()\n", readTree(t, dir, "n.py"))
}

func TestHandlers_RenameErrors(t *testing.T) {
	router, _, _ := renameRouter(t)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"missing new_name", map[string]any{"path": "m.py", "offset": 10}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"negative offset", map[string]any{"new_name": "b", "path": "m.py", "offset": -3}, http.StatusBadRequest, "INVALID_REQUEST"},
		{"not json", "{", http.StatusBadRequest, "INVALID_REQUEST"},
		{"missing file", map[string]any{"new_name": "b", "path": "x.py", "offset": 0}, http.StatusNotFound, "NOT_FOUND"},
		{"engine rejects", map[string]any{"new_name": "class", "path": "m.py", "offset": 10}, http.StatusUnprocessableEntity, "REFACTORING_FAILED"},
		{"module onto itself", map[string]any{"new_name": "m", "path": "m.py"}, http.StatusUnprocessableEntity, "REFACTORING_FAILED"},
		{"module onto existing", map[string]any{"new_name": "n", "path": "m.py"}, http.StatusUnprocessableEntity, "REFACTORING_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(t, router, http.MethodPost, "/v1/traad/rename", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestHandlers_PreviewApplyDiscard(t *testing.T) {
	router, _, dir := renameRouter(t)
	preview := map[string]any{
		"path":    "m.py",
		"offset":  10,
		"args":    map[string]any{"new_name": "bar"},
		"preview": true,
	}

	w := serve(t, router, http.MethodPost, "/v1/traad/refactor/rename", preview)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[ChangeResponse](t, w)
	assert.False(t, first.Applied)
	assert.Equal(t, moduleN, readTree(t, dir, "n.py"))

	w = serve(t, router, http.MethodDelete, "/v1/traad/changes/"+first.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = serve(t, router, http.MethodDelete, "/v1/traad/changes/"+first.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, router, http.MethodPost, "/v1/traad/refactor/rename", preview)
	require.Equal(t, http.StatusOK, w.Code)
	second := decode[ChangeResponse](t, w)

	w = serve(t, router, http.MethodPost, "/v1/traad/changes/"+second.ID+"/apply", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decode[ChangeResponse](t, w).Applied)
	assert.Equal(t, "import m\n\nm.bar()\n", readTree(t, dir, "n.py"))

	w = serve(t, router, http.MethodPost, "/v1/traad/refactor/move_module", preview)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_ApplyDataJSON(t *testing.T) {
	router, _, dir := renameRouter(t)

	w := serve(t, router, http.MethodPost, "/v1/traad/refactor/rename", map[string]any{
		"path": "m.py", "offset": 10, "args": map[string]any{"new_name": "bar"}, "preview": true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	preview := decode[ChangeResponse](t, w)
	require.Equal(t, http.StatusNoContent, serve(t, router, http.MethodDelete, "/v1/traad/changes/"+preview.ID, nil).Code)

	w = serve(t, router, http.MethodPost, "/v1/traad/changes/apply", preview.Changes)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "x = 1\ndef bar():\n    return 42\n", readTree(t, dir, "m.py"))

	w = serve(t, router, http.MethodPost, "/v1/traad/changes/apply", preview.Changes)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "APPLY_CONFLICT", decode[ErrorResponse](t, w).Code)

	w = serve(t, router, http.MethodPost, "/v1/traad/changes/apply", `{"type": "Nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_CHANGE_DATA", decode[ErrorResponse](t, w).Code)

	w = serve(t, router, http.MethodPost, "/v1/traad/changes/apply", `[1, 2`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_CHANGE_DATA", decode[ErrorResponse](t, w).Code)
}

func TestHandlers_CBOR(t *testing.T) {
	router, _, dir := renameRouter(t)

	w := serve(t, router, http.MethodPost, "/v1/traad/refactor/rename", map[string]any{
		"path": "m.py", "offset": 10, "args": map[string]any{"new_name": "bar"}, "preview": true,
	}, "Accept", mimeCBOR)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, mimeCBOR, w.Header().Get("Content-Type"))

	body, err := change.UnmarshalCBOR(w.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, false, body["applied"])
	changes, ok := body["changes"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ChangeSet", changes["type"])

	id, _ := body["id"].(string)
	require.Equal(t, http.StatusNoContent, serve(t, router, http.MethodDelete, "/v1/traad/changes/"+id, nil).Code)

	payload, err := change.MarshalCBOR(changes)
	require.NoError(t, err)
	w = serve(t, router, http.MethodPost, "/v1/traad/changes/apply", payload, "Content-Type", mimeCBOR)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "import m\n\nm.bar()\n", readTree(t, dir, "n.py"))

	w = serve(t, router, http.MethodPost, "/v1/traad/changes/apply", []byte{0xff, 0x00}, "Content-Type", mimeCBOR)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_History(t *testing.T) {
	router, _, dir := renameRouter(t)

	w := serve(t, router, http.MethodPost, "/v1/traad/rename",
		map[string]any{"new_name": "bar", "path": "m.py", "offset": 10})
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(t, router, http.MethodPost, "/v1/traad/history/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	step := decode[HistoryStepResponse](t, w)
	assert.Equal(t, "performed", step.Status)
	assert.Equal(t, moduleN, readTree(t, dir, "n.py"))

	w = serve(t, router, http.MethodPost, "/v1/traad/history/undo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	step = decode[HistoryStepResponse](t, w)
	assert.Equal(t, "nothing_to_undo", step.Status)
	assert.Empty(t, step.Changes["changes"])

	w = serve(t, router, http.MethodGet, "/v1/traad/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[HistoryView](t, w)
	assert.Equal(t, 0, view.Cursor)
	require.Len(t, view.Entries, 1)
	assert.True(t, view.Entries[0].Undone)

	w = serve(t, router, http.MethodPost, "/v1/traad/history/redo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "performed", decode[HistoryStepResponse](t, w).Status)
	assert.Equal(t, "import m\n\nm.bar()\n", readTree(t, dir, "n.py"))
}

func TestHandlers_CodeAssist(t *testing.T) {
	ws, _ := newTestWorkspace(t, map[string]string{"m.py": docModule})
	router := setupTestRouter(ws)

	src := "import m\nm.f"
	w := serve(t, router, http.MethodPost, "/v1/traad/code_assist",
		QueryRequest{Code: src, Offset: len(src), Path: "q.py"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	proposals := decode[CodeAssistResponse](t, w).Proposals
	require.Len(t, proposals, 1)
	assert.Equal(t, "foo", proposals[0].Name)
	assert.Equal(t, "function", proposals[0].Kind)

	src = "import m\nm.foo()\n"
	offset := len("import m\nm.")
	w = serve(t, router, http.MethodPost, "/v1/traad/doc", QueryRequest{Code: src, Offset: offset, Path: "q.py"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, TextResponse{Found: true, Text: "foo()\n\nFoo doc."}, decode[TextResponse](t, w))

	call := "import m\n\nm.foo("
	w = serve(t, router, http.MethodPost, "/v1/traad/calltip", QueryRequest{Code: call, Offset: len(call)})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, TextResponse{Found: true, Text: "m.foo()"}, decode[TextResponse](t, w))

	w = serve(t, router, http.MethodPost, "/v1/traad/definition", QueryRequest{Code: src, Offset: offset, Path: "q.py"})
	require.Equal(t, http.StatusOK, w.Code)
	def := decode[DefinitionResponse](t, w)
	require.True(t, def.Found)
	assert.Equal(t, "m.py", def.Location.Path)
	assert.Equal(t, 1, def.Location.Line)

	w = serve(t, router, http.MethodPost, "/v1/traad/doc", map[string]any{"code": "x", "offset": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_CrossProjects(t *testing.T) {
	router, _, dir := renameRouter(t)
	cross := t.TempDir()

	w := serve(t, router, http.MethodPost, "/v1/traad/cross_projects", CrossProjectRequest{Directory: cross})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	added := decode[CrossProjectResponse](t, w)
	assert.Equal(t, canonical(t, cross), added.Root)

	w = serve(t, router, http.MethodGet, "/v1/traad/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ProjectsResponse{Root: canonical(t, dir), Cross: []string{added.Root}}, decode[ProjectsResponse](t, w))

	w = serve(t, router, http.MethodDelete, "/v1/traad/cross_projects", CrossProjectRequest{Directory: cross})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(t, router, http.MethodGet, "/v1/traad/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[ProjectsResponse](t, w).Cross)

	w = serve(t, router, http.MethodDelete, "/v1/traad/cross_projects", CrossProjectRequest{Directory: cross})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, router, http.MethodPost, "/v1/traad/cross_projects", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
