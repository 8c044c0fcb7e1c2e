// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package change implements change sets: ordered, atomically applied file
// edits spanning one or more projects.
//
// A ChangeSet moves through a small lifecycle:
//
//	Computed --Apply--> Applied
//	Computed --Discard--> Discarded
//
// Both Applied and Discarded are terminal. Apply performs all edits or, on
// any failure, rolls back the ones already performed.
//
// # Thread Safety
//
// ChangeSet is not safe for concurrent mutation. The workspace confines
// every change set to its actor goroutine.
package change

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/AleutianAI/traad/services/traad/project"
)

// =============================================================================
// Edits
// =============================================================================

// EditKind names the type of an edit. The values double as wire type tags.
type EditKind string

const (
	KindChangeContents EditKind = "ChangeContents"
	KindCreateFile     EditKind = "CreateFile"
	KindCreateFolder   EditKind = "CreateFolder"
	KindMoveResource   EditKind = "MoveResource"
	KindRemoveResource EditKind = "RemoveResource"
)

// Edit is a single file-system change inside one project.
//
// Which fields are meaningful depends on Kind:
//
//	ChangeContents  Path, OldContents, NewContents
//	CreateFile      Path, NewContents
//	CreateFolder    Path
//	MoveResource    Path, NewPath
//	RemoveResource  Path, IsFolder, OldContents (files)
type Edit struct {
	Kind    EditKind
	Project *project.Project
	Path    string

	NewPath     string
	OldContents string
	NewContents string
	IsFolder    bool

	// Description is a human-readable summary; a unified diff for content
	// changes.
	Description string
}

// ChangeContents replaces the contents of an existing file.
func ChangeContents(p *project.Project, path, oldContents, newContents string) Edit {
	return Edit{
		Kind:        KindChangeContents,
		Project:     p,
		Path:        path,
		OldContents: oldContents,
		NewContents: newContents,
		Description: UnifiedDiff(path, oldContents, newContents),
	}
}

// CreateFile creates a new file.
func CreateFile(p *project.Project, path, contents string) Edit {
	return Edit{
		Kind:        KindCreateFile,
		Project:     p,
		Path:        path,
		NewContents: contents,
		Description: "Create file " + path,
	}
}

// CreateFolder creates a new folder.
func CreateFolder(p *project.Project, path string) Edit {
	return Edit{
		Kind:        KindCreateFolder,
		Project:     p,
		Path:        path,
		Description: "Create folder " + path,
	}
}

// MoveResource renames a file or folder.
func MoveResource(p *project.Project, path, newPath string) Edit {
	return Edit{
		Kind:        KindMoveResource,
		Project:     p,
		Path:        path,
		NewPath:     newPath,
		Description: "Move " + path + " to " + newPath,
	}
}

// RemoveResource deletes a file (whose current contents must be given so the
// removal can be undone) or an empty folder.
func RemoveResource(p *project.Project, path, oldContents string, isFolder bool) Edit {
	return Edit{
		Kind:        KindRemoveResource,
		Project:     p,
		Path:        path,
		OldContents: oldContents,
		IsFolder:    isFolder,
		Description: "Remove " + path,
	}
}

// Invert returns the edit that undoes e.
func (e Edit) Invert() Edit {
	switch e.Kind {
	case KindChangeContents:
		return ChangeContents(e.Project, e.Path, e.NewContents, e.OldContents)
	case KindCreateFile:
		return RemoveResource(e.Project, e.Path, e.NewContents, false)
	case KindCreateFolder:
		return RemoveResource(e.Project, e.Path, "", true)
	case KindMoveResource:
		return MoveResource(e.Project, e.NewPath, e.Path)
	case KindRemoveResource:
		if e.IsFolder {
			return CreateFolder(e.Project, e.Path)
		}
		return CreateFile(e.Project, e.Path, e.OldContents)
	default:
		return e
	}
}

// String returns "Kind project:path".
func (e Edit) String() string {
	root := "<nil>"
	if e.Project != nil {
		root = e.Project.Root()
	}
	return fmt.Sprintf("%s %s:%s", e.Kind, root, e.Path)
}

// =============================================================================
// Change Sets
// =============================================================================

// State is the lifecycle state of a ChangeSet.
type State int

const (
	StateComputed State = iota
	StateApplied
	StateDiscarded
)

// String returns "computed", "applied", or "discarded".
func (s State) String() string {
	switch s {
	case StateComputed:
		return "computed"
	case StateApplied:
		return "applied"
	case StateDiscarded:
		return "discarded"
	default:
		return "unknown"
	}
}

// ChangeSet is an ordered list of edits applied as one unit.
//
// The edit list is fixed at construction.
type ChangeSet struct {
	// ID uniquely identifies this change set instance.
	ID string

	// Description summarizes the whole change, e.g. "Renaming <foo> to <bar>".
	Description string

	// Project is the primary project the change was computed for.
	Project *project.Project

	edits []Edit
	state State
}

// New creates a computed change set with a fresh ID.
func New(p *project.Project, description string, edits ...Edit) *ChangeSet {
	return &ChangeSet{
		ID:          uuid.NewString(),
		Description: description,
		Project:     p,
		edits:       append([]Edit(nil), edits...),
	}
}

// Empty returns a change set with no edits, used as the "nothing happened"
// result.
func Empty(p *project.Project, description string) *ChangeSet {
	return New(p, description)
}

// Edits returns a copy of the edits in application order.
func (cs *ChangeSet) Edits() []Edit {
	return append([]Edit(nil), cs.edits...)
}

// Len returns the number of edits.
func (cs *ChangeSet) Len() int {
	return len(cs.edits)
}

// State returns the lifecycle state.
func (cs *ChangeSet) State() State {
	return cs.state
}

// Discard moves a computed change set to Discarded.
//
// Errors:
//
//	ErrAlreadyApplied - the change set was applied
func (cs *ChangeSet) Discard() error {
	switch cs.state {
	case StateApplied:
		return fmt.Errorf("discard %s: %w", cs.ID, ErrAlreadyApplied)
	case StateDiscarded:
		return nil
	}
	cs.state = StateDiscarded
	return nil
}

// Inverse returns a computed change set undoing cs: every edit inverted, in
// reverse order.
func (cs *ChangeSet) Inverse() *ChangeSet {
	inv := make([]Edit, len(cs.edits))
	for i, e := range cs.edits {
		inv[len(cs.edits)-1-i] = e.Invert()
	}
	return New(cs.Project, "Undo: "+cs.Description, inv...)
}

// Clone returns a computed copy of cs with a fresh ID.
func (cs *ChangeSet) Clone() *ChangeSet {
	return New(cs.Project, cs.Description, cs.edits...)
}

// Projects returns the distinct projects touched, in first-touch order.
func (cs *ChangeSet) Projects() []*project.Project {
	var out []*project.Project
	seen := make(map[*project.Project]bool)
	for _, e := range cs.edits {
		if !seen[e.Project] {
			seen[e.Project] = true
			out = append(out, e.Project)
		}
	}
	return out
}
