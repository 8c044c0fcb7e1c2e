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
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/traad/services/traad/change"
	"github.com/AleutianAI/traad/services/traad/engine"
	"github.com/AleutianAI/traad/services/traad/project"
)

var _ engine.Project = (*project.Project)(nil)

// Refactoring names a refactoring the gateway can invoke.
type Refactoring string

const (
	RefactorRename          Refactoring = "rename"
	RefactorInline          Refactoring = "inline"
	RefactorExtractMethod   Refactoring = "extract_method"
	RefactorExtractVariable Refactoring = "extract_variable"
	RefactorChangeSignature Refactoring = "change_signature"
	RefactorOrganizeImports Refactoring = "organize_imports"
)

// Refactorings lists every supported refactoring.
var Refactorings = []Refactoring{
	RefactorRename,
	RefactorInline,
	RefactorExtractMethod,
	RefactorExtractVariable,
	RefactorChangeSignature,
	RefactorOrganizeImports,
}

// Valid reports whether r is a supported refactoring.
func (r Refactoring) Valid() bool {
	for _, k := range Refactorings {
		if r == k {
			return true
		}
	}
	return false
}

// Args carries the refactoring-specific arguments. Each refactoring reads
// only its own fields.
type Args struct {
	// NewName is the rename target.
	NewName string `json:"new_name,omitempty"`

	// End is the exclusive end offset of an extracted region.
	End int `json:"end,omitempty"`

	// Name is the extracted function or variable name.
	Name string `json:"name,omitempty"`

	// Order, Remove and Add describe a signature change.
	Order  []int             `json:"order,omitempty"`
	Remove []string          `json:"remove,omitempty"`
	Add    []engine.NewParam `json:"add,omitempty"`
}

// Gateway passes refactoring requests to the engine and turns its results
// into change sets.
//
// Thread Safety: not safe for concurrent use; the workspace actor is its
// only caller.
type Gateway struct {
	registry   *project.Registry
	renamer    engine.Renamer
	inliner    engine.Inliner
	extractor  engine.Extractor
	signatures engine.SignatureChanger
	imports    engine.ImportOrganizer
	logger     *slog.Logger
}

// NewGateway creates a gateway over the registry's projects. eng provides
// every refactoring.
func NewGateway(registry *project.Registry, eng engine.Engine, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		registry:   registry,
		renamer:    eng,
		inliner:    eng,
		extractor:  eng,
		signatures: eng,
		imports:    eng,
		logger:     logger.With(slog.String("component", "gateway")),
	}
}

// Invoke computes a refactoring.
//
// Description:
//
//	Resolves path to a project resource, runs the refactoring with every
//	registered project visible to the engine, and converts the engine's
//	operations into edits in the order the engine produced them. The
//	returned change set is computed, not applied.
//
// Inputs:
//
//	kind   - The refactoring to run
//	path   - Absolute, or relative to the root project
//	offset - Character offset into the file, or engine.NoOffset
//	args   - Arguments for kind
//
// Errors:
//
//	ErrInvalidRequest    - unknown kind
//	ErrNotFound          - path does not exist in any project
//	ErrRefactoringFailed - the engine rejected the request; carries the
//	                       engine's message
func (g *Gateway) Invoke(ctx context.Context, kind Refactoring, path string, offset int, args Args) (*change.ChangeSet, error) {
	op := string(kind)
	if !kind.Valid() {
		return nil, newError(ErrInvalidRequest, op, "unknown refactoring %q", kind)
	}

	p, rel := g.registry.ProjectFor(path)
	res, err := p.Resource(rel)
	if err != nil {
		return nil, newError(ErrNotFound, op, "resource %s does not exist", path)
	}

	target := engine.Target{
		Projects: engineProjects(g.registry.All()),
		Project:  p,
		Path:     res.Path,
		Offset:   offset,
	}

	var result *engine.Result
	switch kind {
	case RefactorRename:
		result, err = g.renamer.Rename(ctx, target, args.NewName)
	case RefactorInline:
		result, err = g.inliner.Inline(ctx, target)
	case RefactorExtractMethod:
		result, err = g.extractor.ExtractMethod(ctx, target, args.End, args.Name)
	case RefactorExtractVariable:
		result, err = g.extractor.ExtractVariable(ctx, target, args.End, args.Name)
	case RefactorChangeSignature:
		result, err = g.signatures.ChangeSignature(ctx, target, engine.SignatureChange{
			Order:  args.Order,
			Remove: args.Remove,
			Add:    args.Add,
		})
	case RefactorOrganizeImports:
		result, err = g.imports.OrganizeImports(ctx, target)
	}
	if err != nil {
		g.logger.Debug("engine rejected refactoring",
			slog.String("kind", op),
			slog.String("path", res.Path),
			slog.String("error", err.Error()),
		)
		return nil, engineFailure(op, err)
	}

	cs, err := toChangeSet(p, result)
	if err != nil {
		return nil, &WorkspaceError{Kind: ErrInternal, Op: op, Message: err.Error(), Err: err}
	}
	g.logger.Debug("refactoring computed",
		slog.String("kind", op),
		slog.String("change_id", cs.ID),
		slog.Int("edits", cs.Len()),
	)
	return cs, nil
}

// engineFailure reports an engine error by message only, so engine error
// types stay behind the gateway.
func engineFailure(op string, err error) *WorkspaceError {
	msg := err.Error()
	var ee *engine.Error
	if errors.As(err, &ee) {
		msg = ee.Message
	}
	return &WorkspaceError{Kind: ErrRefactoringFailed, Op: op, Message: msg}
}

// toChangeSet converts an engine result into a computed change set whose
// primary project is p.
func toChangeSet(p *project.Project, result *engine.Result) (*change.ChangeSet, error) {
	if result == nil {
		return change.Empty(p, ""), nil
	}
	edits := make([]change.Edit, 0, len(result.Ops))
	for i, op := range result.Ops {
		owner, ok := op.Project.(*project.Project)
		if !ok {
			return nil, fmt.Errorf("operation %d targets unknown project %T", i, op.Project)
		}
		switch op.Kind {
		case engine.OpChange:
			edits = append(edits, change.ChangeContents(owner, op.Path, op.OldContents, op.NewContents))
		case engine.OpCreate:
			if op.IsFolder {
				edits = append(edits, change.CreateFolder(owner, op.Path))
			} else {
				edits = append(edits, change.CreateFile(owner, op.Path, op.NewContents))
			}
		case engine.OpMove:
			edits = append(edits, change.MoveResource(owner, op.Path, op.NewPath))
		case engine.OpRemove:
			edits = append(edits, change.RemoveResource(owner, op.Path, op.OldContents, op.IsFolder))
		default:
			return nil, fmt.Errorf("operation %d has unknown kind %s", i, op.Kind)
		}
	}
	return change.New(p, result.Description, edits...), nil
}

func engineProjects(projects []*project.Project) []engine.Project {
	out := make([]engine.Project, len(projects))
	for i, p := range projects {
		out[i] = p
	}
	return out
}
