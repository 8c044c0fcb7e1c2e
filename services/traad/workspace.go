// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package traad implements the traad refactoring workspace and its HTTP
// interface.
//
// A Workspace joins a root project and any number of cross projects into
// one logical code base. Refactorings are computed by an analysis engine
// (see package engine), returned as change sets, and applied atomically;
// applied change sets are recorded for undo and redo.
//
// # Concurrency
//
// A Workspace is an actor. Every operation is sent to a single goroutine
// and executed in the order received, so the engine and the file system
// are never touched by two operations at once. A caller's context bounds
// only the wait for its turn and for the reply; an operation that has
// started always runs to completion.
package traad

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/AleutianAI/traad/services/traad/change"
	"github.com/AleutianAI/traad/services/traad/engine"
	"github.com/AleutianAI/traad/services/traad/history"
	"github.com/AleutianAI/traad/services/traad/project"
)

// DefaultPendingLimit is the number of computed change sets kept for a
// later apply.
const DefaultPendingLimit = 32

// Option configures a Workspace.
type Option func(*options)

type options struct {
	logger       *slog.Logger
	historyLimit int
	pendingLimit int
	projectOpts  []project.Option
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHistoryLimit bounds the undo history; 0 keeps every entry.
func WithHistoryLimit(n int) Option {
	return func(o *options) { o.historyLimit = n }
}

// WithPendingLimit bounds the computed change sets kept by ID.
func WithPendingLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.pendingLimit = n
		}
	}
}

// WithProjectOptions applies opts to every project the workspace opens.
func WithProjectOptions(opts ...project.Option) Option {
	return func(o *options) { o.projectOpts = append(o.projectOpts, opts...) }
}

// Workspace is the refactoring façade over a set of projects.
//
// Thread Safety: safe for concurrent use; operations are serialized.
type Workspace struct {
	registry  *project.Registry
	gateway   *Gateway
	assistant engine.CodeAssistant
	history   *history.Stack
	pending   *pendingSet
	logger    *slog.Logger

	requests chan request
	done     chan struct{}

	// closing is set by the close operation and read only by the actor.
	closing bool
}

type request struct {
	op    string
	fn    func() (any, error)
	reply chan reply
}

type reply struct {
	value any
	err   error
}

// New opens the root project at rootDir and starts the workspace actor.
//
// Errors:
//
//	ErrNotFound       - rootDir is not an existing directory
//	ErrInvalidRequest - eng is nil
func New(rootDir string, eng engine.Engine, opts ...Option) (*Workspace, error) {
	if eng == nil {
		return nil, newError(ErrInvalidRequest, "open", "no analysis engine")
	}
	o := options{logger: slog.Default(), pendingLimit: DefaultPendingLimit}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With(slog.String("component", "workspace"))

	registry, err := project.NewRegistry(rootDir, o.logger, o.projectOpts...)
	if err != nil {
		return nil, classify("open", err)
	}

	w := &Workspace{
		registry:  registry,
		gateway:   NewGateway(registry, eng, o.logger),
		assistant: eng,
		history:   history.New(o.historyLimit),
		pending:   newPendingSet(o.pendingLimit, logger),
		logger:    logger,
		requests:  make(chan request),
		done:      make(chan struct{}),
	}
	go w.run()

	logger.Info("workspace opened", slog.String("root", registry.Root().Root()))
	return w, nil
}

// =============================================================================
// Actor
// =============================================================================

func (w *Workspace) run() {
	defer close(w.done)
	for !w.closing {
		w.serve(<-w.requests)
	}
}

func (w *Workspace) serve(req request) {
	defer func() {
		if r := recover(); r != nil {
			err := defect(req.op, r)
			w.logger.Error("defect in workspace operation",
				slog.String("op", req.op),
				slog.String("error", err.Error()),
				slog.String("stack", string(debug.Stack())),
			)
			req.reply <- reply{err: err}
		}
	}()
	v, err := req.fn()
	req.reply <- reply{value: v, err: err}
}

func defect(op string, r any) *WorkspaceError {
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", r)
	}
	return &WorkspaceError{Kind: ErrInternal, Op: op, Message: err.Error(), Err: err}
}

// call runs fn on the actor and waits for its result. fn receives a
// context that carries ctx's values but not its cancellation.
func call[T any](ctx context.Context, w *Workspace, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	ctx, finish := observe(ctx, op)

	if err := ctx.Err(); err != nil {
		finish(err)
		return zero, err
	}

	inner := context.WithoutCancel(ctx)
	req := request{
		op:    op,
		fn:    func() (any, error) { return fn(inner) },
		reply: make(chan reply, 1),
	}

	select {
	case w.requests <- req:
	case <-w.done:
		err := newError(ErrWorkspaceClosed, op, "workspace is closed")
		finish(err)
		return zero, err
	case <-ctx.Done():
		finish(ctx.Err())
		return zero, ctx.Err()
	}

	select {
	case r := <-req.reply:
		finish(r.err)
		if r.err != nil {
			return zero, r.err
		}
		v, _ := r.value.(T)
		return v, nil
	case <-ctx.Done():
		finish(ctx.Err())
		return zero, ctx.Err()
	}
}

// Closed reports whether Close has completed.
func (w *Workspace) Closed() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Close discards pending change sets, closes every project and stops the
// actor. Later operations fail with ErrWorkspaceClosed. Closing twice is a
// no-op.
func (w *Workspace) Close() error {
	_, err := call(context.Background(), w, "close", func(context.Context) (struct{}, error) {
		w.closing = true
		w.pending.clear()
		if err := w.registry.Close(); err != nil {
			return struct{}{}, classify("close", err)
		}
		w.logger.Info("workspace closed")
		return struct{}{}, nil
	})
	if errors.Is(err, ErrWorkspaceClosed) {
		return nil
	}
	return err
}

// =============================================================================
// Resources
// =============================================================================

// ListResources lists every resource of a project in level order: the
// root, then its children, then their children. dir selects the project
// by root directory; "" is the root project.
//
// Errors:
//
//	ErrNotFound - dir is not a registered project
func (w *Workspace) ListResources(ctx context.Context, dir string) ([]ResourceInfo, error) {
	const op = "list_resources"
	return call(ctx, w, op, func(context.Context) ([]ResourceInfo, error) {
		p, err := w.projectByDir(op, dir)
		if err != nil {
			return nil, err
		}

		out := []ResourceInfo{{Path: "", IsFolder: true}}
		queue := []string{""}
		for len(queue) > 0 {
			folder := queue[0]
			queue = queue[1:]

			children, err := p.Children(folder)
			if err != nil {
				return nil, classify(op, err)
			}
			for _, c := range children {
				out = append(out, ResourceInfo{Path: c.Path, IsFolder: c.IsFolder})
				if c.IsFolder {
					queue = append(queue, c.Path)
				}
			}
		}
		return out, nil
	})
}

// ListChildren lists the direct children of the folder at path.
//
// Errors:
//
//	ErrNotFound - no folder exists at path
func (w *Workspace) ListChildren(ctx context.Context, path string) ([]ResourceInfo, error) {
	const op = "list_children"
	return call(ctx, w, op, func(context.Context) ([]ResourceInfo, error) {
		p, rel := w.registry.ProjectFor(path)
		children, err := p.Children(rel)
		if err != nil {
			return nil, classify(op, err)
		}
		out := make([]ResourceInfo, len(children))
		for i, c := range children {
			out[i] = ResourceInfo{Path: c.Path, IsFolder: c.IsFolder}
		}
		return out, nil
	})
}

func (w *Workspace) projectByDir(op, dir string) (*project.Project, error) {
	if dir == "" {
		return w.registry.Root(), nil
	}
	if p, ok := w.registry.Lookup(dir); ok {
		return p, nil
	}
	return nil, newError(ErrNotFound, op, "project %s is not registered", dir)
}

// =============================================================================
// Change Lifecycle
// =============================================================================

// ComputeChanges computes a refactoring without applying it. The change
// set is kept by ID for ApplyByID and Discard until it is applied,
// discarded, or evicted by newer change sets.
//
// Errors:
//
//	ErrInvalidRequest, ErrNotFound, ErrRefactoringFailed - see Gateway.Invoke
func (w *Workspace) ComputeChanges(ctx context.Context, kind Refactoring, path string, offset int, args Args) (*change.ChangeSet, error) {
	return call(ctx, w, "compute_changes", func(ctx context.Context) (*change.ChangeSet, error) {
		cs, err := w.gateway.Invoke(ctx, kind, path, offset, args)
		if err != nil {
			return nil, err
		}
		w.pending.add(cs)
		return cs, nil
	})
}

// Perform computes a refactoring and applies it in one step; no other
// operation runs in between.
//
// Errors:
//
//	see ComputeChanges and Apply
func (w *Workspace) Perform(ctx context.Context, kind Refactoring, path string, offset int, args Args) (*change.ChangeSet, error) {
	const op = "perform"
	return call(ctx, w, op, func(ctx context.Context) (*change.ChangeSet, error) {
		cs, err := w.gateway.Invoke(ctx, kind, path, offset, args)
		if err != nil {
			return nil, err
		}
		if err := w.apply(op, cs); err != nil {
			return nil, err
		}
		return cs, nil
	})
}

// Apply applies a computed change set and records it in the history.
//
// Description:
//
//	All edits are checked against the current files before any is
//	written; if a write still fails, the edits already made are reverted.
//	Either every edit takes effect or none does. Empty change sets are
//	applied but not recorded.
//
// Errors:
//
//	ErrApplyConflict - a file changed since the change set was computed,
//	                   or the change set was discarded
//	ErrInternal      - the change set was already applied (a caller bug)
func (w *Workspace) Apply(ctx context.Context, cs *change.ChangeSet) error {
	const op = "apply"
	_, err := call(ctx, w, op, func(context.Context) (struct{}, error) {
		return struct{}{}, w.apply(op, cs)
	})
	return err
}

// ApplyByID applies a change set returned earlier by ComputeChanges.
//
// Errors:
//
//	ErrNotFound - no pending change set has this ID
//	see Apply
func (w *Workspace) ApplyByID(ctx context.Context, id string) (*change.ChangeSet, error) {
	const op = "apply"
	return call(ctx, w, op, func(context.Context) (*change.ChangeSet, error) {
		cs, ok := w.pending.get(id)
		if !ok {
			return nil, newError(ErrNotFound, op, "no pending change set %s", id)
		}
		if err := w.apply(op, cs); err != nil {
			return nil, err
		}
		return cs, nil
	})
}

// ApplyData decodes change data against the registered projects and
// applies the result.
//
// Errors:
//
//	ErrInvalidChangeData - the data names an unknown project or a bad path,
//	                       or is malformed
//	see Apply
func (w *Workspace) ApplyData(ctx context.Context, data change.Data) (*change.ChangeSet, error) {
	const op = "apply_data"
	return call(ctx, w, op, func(context.Context) (*change.ChangeSet, error) {
		cs, err := change.Decode(w.registry, data)
		if err != nil {
			return nil, classify(op, err)
		}
		if err := w.apply(op, cs); err != nil {
			return nil, err
		}
		return cs, nil
	})
}

// Discard drops a pending change set.
//
// Errors:
//
//	ErrNotFound - no pending change set has this ID
func (w *Workspace) Discard(ctx context.Context, id string) error {
	const op = "discard"
	_, err := call(ctx, w, op, func(context.Context) (struct{}, error) {
		if !w.pending.discard(id) {
			return struct{}{}, newError(ErrNotFound, op, "no pending change set %s", id)
		}
		return struct{}{}, nil
	})
	return err
}

func (w *Workspace) apply(op string, cs *change.ChangeSet) error {
	if cs == nil {
		return newError(ErrInvalidRequest, op, "no change set")
	}
	if err := change.Apply(cs); err != nil {
		return classify(op, err)
	}
	w.pending.remove(cs)

	if cs.Len() == 0 {
		return nil
	}
	entry := w.history.Record(cs, cs.Inverse())
	recordApplied(op, cs.Len())
	w.logger.Info("change set applied",
		slog.String("change_id", cs.ID),
		slog.String("description", cs.Description),
		slog.Int("edits", cs.Len()),
		slog.Int("seq", entry.Seq),
	)
	return nil
}

// =============================================================================
// History
// =============================================================================

type step struct {
	cs     *change.ChangeSet
	status history.Status
}

// Undo reverts the most recent applied change set.
//
// Description:
//
//	With nothing to undo it returns an empty change set and
//	history.StatusNothingToUndo. If the reversal cannot be applied, the
//	history is left as it was.
//
// Errors:
//
//	ErrApplyConflict - files changed since the change set was applied
func (w *Workspace) Undo(ctx context.Context) (*change.ChangeSet, history.Status, error) {
	s, err := call(ctx, w, "undo", func(context.Context) (step, error) {
		cs, status := w.history.Undo()
		if status != history.StatusPerformed {
			return step{cs, status}, nil
		}
		if err := change.Apply(cs); err != nil {
			w.history.CancelUndo()
			return step{}, classify("undo", err)
		}
		w.logger.Info("undone", slog.String("description", cs.Description))
		return step{cs, status}, nil
	})
	return s.cs, s.status, err
}

// Redo reapplies the most recently undone change set.
//
// Description:
//
//	With nothing to redo it returns an empty change set and
//	history.StatusNothingToRedo. If the change set cannot be reapplied,
//	the history is left as it was.
//
// Errors:
//
//	ErrApplyConflict - files changed since the change set was undone
func (w *Workspace) Redo(ctx context.Context) (*change.ChangeSet, history.Status, error) {
	s, err := call(ctx, w, "redo", func(context.Context) (step, error) {
		cs, status := w.history.Redo()
		if status != history.StatusPerformed {
			return step{cs, status}, nil
		}
		if err := change.Apply(cs); err != nil {
			w.history.CancelRedo()
			return step{}, classify("redo", err)
		}
		w.logger.Info("redone", slog.String("description", cs.Description))
		return step{cs, status}, nil
	})
	return s.cs, s.status, err
}

// History returns the undo history.
func (w *Workspace) History(ctx context.Context) (HistoryView, error) {
	return call(ctx, w, "history", func(context.Context) (HistoryView, error) {
		cursor := w.history.Cursor()
		entries := w.history.Entries()
		view := HistoryView{Cursor: cursor, Entries: make([]HistoryItem, len(entries))}
		for i, e := range entries {
			view.Entries[i] = HistoryItem{
				Seq:         e.Seq,
				Time:        e.Time,
				Description: e.Applied.Description,
				Edits:       e.Applied.Len(),
				Undone:      i >= cursor,
			}
		}
		return view, nil
	})
}

// =============================================================================
// Code Assist
// =============================================================================

// query builds an engine query for source edited as the file at path.
// An empty or outside path analyzes source as a detached root module.
func (w *Workspace) query(source string, offset int, path string) engine.Query {
	q := engine.Query{
		Projects: engineProjects(w.registry.All()),
		Project:  w.registry.Root(),
		Source:   source,
		Offset:   offset,
	}
	if path == "" {
		return q
	}
	p, rel := w.registry.ProjectFor(path)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return q
	}
	q.Project, q.Path = p, rel
	return q
}

// CodeAssist returns completions at offset in source, in the engine's
// order.
//
// Errors:
//
//	ErrRefactoringFailed - the engine could not analyze source
func (w *Workspace) CodeAssist(ctx context.Context, source string, offset int, path string) ([]engine.Proposal, error) {
	const op = "code_assist"
	return call(ctx, w, op, func(ctx context.Context) ([]engine.Proposal, error) {
		proposals, err := w.assistant.CodeAssist(ctx, w.query(source, offset, path))
		if err != nil {
			return nil, engineFailure(op, err)
		}
		if proposals == nil {
			proposals = []engine.Proposal{}
		}
		return proposals, nil
	})
}

type text struct {
	value string
	found bool
}

// GetDoc returns the documentation of the symbol at offset. found is false
// when there is none.
func (w *Workspace) GetDoc(ctx context.Context, source string, offset int, path string) (doc string, found bool, err error) {
	const op = "get_doc"
	t, err := call(ctx, w, op, func(ctx context.Context) (text, error) {
		doc, ok, err := w.assistant.Doc(ctx, w.query(source, offset, path))
		if err != nil {
			return text{}, engineFailure(op, err)
		}
		return text{doc, ok}, nil
	})
	return t.value, t.found, err
}

// GetCalltip returns the signature of the call enclosing offset. found is
// false outside a call or when the callee is unknown.
func (w *Workspace) GetCalltip(ctx context.Context, source string, offset int, path string) (tip string, found bool, err error) {
	const op = "get_calltip"
	t, err := call(ctx, w, op, func(ctx context.Context) (text, error) {
		tip, ok, err := w.assistant.Calltip(ctx, w.query(source, offset, path))
		if err != nil {
			return text{}, engineFailure(op, err)
		}
		return text{tip, ok}, nil
	})
	return t.value, t.found, err
}

// GetDefinitionLocation returns where the symbol at offset is defined, or
// nil when it is not defined in the workspace.
func (w *Workspace) GetDefinitionLocation(ctx context.Context, source string, offset int, path string) (*Location, error) {
	const op = "get_definition_location"
	return call(ctx, w, op, func(ctx context.Context) (*Location, error) {
		loc, err := w.assistant.Definition(ctx, w.query(source, offset, path))
		if err != nil {
			return nil, engineFailure(op, err)
		}
		if loc == nil || loc.Project == nil {
			return nil, nil
		}
		return &Location{Project: loc.Project.Root(), Path: loc.Path, Line: loc.Line}, nil
	})
}

// =============================================================================
// Projects
// =============================================================================

// AddCrossProject registers dir as a cross project and returns its
// canonical root. Re-adding a directory replaces its project handle.
//
// Errors:
//
//	ErrNotFound - dir is not an existing directory
func (w *Workspace) AddCrossProject(ctx context.Context, dir string) (string, error) {
	const op = "add_cross_project"
	return call(ctx, w, op, func(context.Context) (string, error) {
		p, err := w.registry.AddCross(dir)
		if err != nil {
			return "", classify(op, err)
		}
		return p.Root(), nil
	})
}

// RemoveCrossProject unregisters and closes a cross project.
//
// Errors:
//
//	ErrNotFound - dir is not a registered cross project
func (w *Workspace) RemoveCrossProject(ctx context.Context, dir string) error {
	const op = "remove_cross_project"
	_, err := call(ctx, w, op, func(context.Context) (struct{}, error) {
		if err := w.registry.RemoveCross(dir); err != nil {
			if errors.Is(err, project.ErrNotFound) {
				return struct{}{}, newError(ErrNotFound, op, "%s is not a cross project", dir)
			}
			w.logger.Warn("closing removed cross project", slog.String("dir", dir), slog.String("error", err.Error()))
		}
		return struct{}{}, nil
	})
	return err
}

// Root returns the canonical root of the root project. It never changes,
// so it does not go through the actor.
func (w *Workspace) Root() string {
	return w.registry.Root().Root()
}

// Projects returns the canonical roots of every project, root first.
func (w *Workspace) Projects(ctx context.Context) ([]string, error) {
	return call(ctx, w, "projects", func(context.Context) ([]string, error) {
		all := w.registry.All()
		roots := make([]string, len(all))
		for i, p := range all {
			roots[i] = p.Root()
		}
		return roots, nil
	})
}
