// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package change

import (
	"errors"
	"fmt"
	"path"
)

// Apply performs every edit of cs in order, or none of them.
//
// Description:
//
//	First every edit is checked against the current file system, with the
//	effects of earlier edits in the set taken into account. Only when all
//	checks pass are edits performed. If performing an edit fails, the edits
//	already performed are undone in reverse order and the set stays
//	Computed.
//
// Errors:
//
//	ErrConflict  - a check failed: a file changed since the set was
//	               computed, a target already exists, or a project closed
//	ErrDiscarded - cs was discarded
//	other        - an I/O failure while performing edits (after rollback)
//
// Panics:
//
//	ErrAlreadyApplied - cs was already applied
func Apply(cs *ChangeSet) error {
	switch cs.state {
	case StateApplied:
		panic(fmt.Errorf("apply %s: %w", cs.ID, ErrAlreadyApplied))
	case StateDiscarded:
		return fmt.Errorf("apply %s: %w", cs.ID, ErrDiscarded)
	}

	if err := check(cs.edits); err != nil {
		return fmt.Errorf("apply %s: %w", cs.ID, err)
	}

	for i, e := range cs.edits {
		if err := perform(e); err != nil {
			failure := fmt.Errorf("apply %s: edit %d (%s): %w", cs.ID, i+1, e, err)
			if rbErr := rollback(cs.edits[:i]); rbErr != nil {
				return errors.Join(failure, fmt.Errorf("rollback incomplete: %w", rbErr))
			}
			return failure
		}
	}

	cs.state = StateApplied
	return nil
}

func perform(e Edit) error {
	p := e.Project
	switch e.Kind {
	case KindChangeContents:
		return p.WriteFile(e.Path, []byte(e.NewContents))
	case KindCreateFile:
		return p.WriteFile(e.Path, []byte(e.NewContents))
	case KindCreateFolder:
		return p.CreateFolder(e.Path)
	case KindMoveResource:
		return p.Move(e.Path, e.NewPath)
	case KindRemoveResource:
		return p.Remove(e.Path)
	default:
		return fmt.Errorf("unknown edit kind %q", e.Kind)
	}
}

// rollback undoes performed edits, newest first.
func rollback(done []Edit) error {
	var errs []error
	for i := len(done) - 1; i >= 0; i-- {
		if err := perform(done[i].Invert()); err != nil {
			errs = append(errs, fmt.Errorf("undo %s: %w", done[i], err))
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// Precondition Checks
// =============================================================================

type viewKey struct {
	root string
	path string
}

type viewEntry struct {
	exists   bool
	folder   bool
	contents string
}

// view overlays the effects of already-checked edits on the file system.
type view struct {
	overlay map[viewKey]viewEntry
}

func (v *view) get(e Edit, rel string) (viewEntry, error) {
	key := viewKey{root: e.Project.Root(), path: rel}
	if entry, ok := v.overlay[key]; ok {
		return entry, nil
	}
	res, err := e.Project.Resource(rel)
	if err != nil {
		return viewEntry{}, nil
	}
	entry := viewEntry{exists: true, folder: res.IsFolder}
	if !res.IsFolder {
		data, err := e.Project.ReadFile(rel)
		if err != nil {
			return viewEntry{}, fmt.Errorf("read %s: %w", rel, err)
		}
		entry.contents = string(data)
	}
	return entry, nil
}

func (v *view) set(e Edit, rel string, entry viewEntry) {
	v.overlay[viewKey{root: e.Project.Root(), path: rel}] = entry
}

func (v *view) parentIsFolder(e Edit, rel string) (bool, error) {
	dir := path.Dir(rel)
	if dir == "." {
		return true, nil
	}
	parent, err := v.get(e, dir)
	return parent.exists && parent.folder, err
}

// folderEmpty reports whether no child of rel exists in the view.
func (v *view) folderEmpty(e Edit, rel string) (bool, error) {
	children, err := e.Project.Children(rel)
	if err != nil {
		return false, err
	}
	for _, c := range children {
		entry, err := v.get(e, c.Path)
		if err != nil {
			return false, err
		}
		if entry.exists {
			return false, nil
		}
	}
	root := e.Project.Root()
	for key, entry := range v.overlay {
		if key.root == root && entry.exists && path.Dir(key.path) == rel {
			return false, nil
		}
	}
	return true, nil
}

// check validates all edits in order against the overlaid view.
func check(edits []Edit) error {
	v := &view{overlay: make(map[viewKey]viewEntry)}
	for i, e := range edits {
		if err := checkEdit(v, e); err != nil {
			return fmt.Errorf("edit %d (%s): %w", i+1, e, err)
		}
	}
	return nil
}

func checkEdit(v *view, e Edit) error {
	if e.Project == nil {
		return fmt.Errorf("%w: edit has no project", ErrConflict)
	}
	if e.Project.Closed() {
		return fmt.Errorf("%w: project %s is closed", ErrConflict, e.Project.Root())
	}

	cur, err := v.get(e, e.Path)
	if err != nil {
		return err
	}

	switch e.Kind {
	case KindChangeContents:
		if !cur.exists || cur.folder {
			return fmt.Errorf("%w: %s no longer exists", ErrConflict, e.Path)
		}
		if cur.contents != e.OldContents {
			return fmt.Errorf("%w: %s changed since the change was computed", ErrConflict, e.Path)
		}
		v.set(e, e.Path, viewEntry{exists: true, contents: e.NewContents})

	case KindCreateFile, KindCreateFolder:
		if cur.exists {
			return fmt.Errorf("%w: %s already exists", ErrConflict, e.Path)
		}
		ok, err := v.parentIsFolder(e, e.Path)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: parent folder of %s does not exist", ErrConflict, e.Path)
		}
		v.set(e, e.Path, viewEntry{exists: true, folder: e.Kind == KindCreateFolder, contents: e.NewContents})

	case KindMoveResource:
		if !cur.exists {
			return fmt.Errorf("%w: %s no longer exists", ErrConflict, e.Path)
		}
		dest, err := v.get(e, e.NewPath)
		if err != nil {
			return err
		}
		if dest.exists {
			return fmt.Errorf("%w: %s already exists", ErrConflict, e.NewPath)
		}
		ok, err := v.parentIsFolder(e, e.NewPath)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: parent folder of %s does not exist", ErrConflict, e.NewPath)
		}
		v.set(e, e.NewPath, cur)
		v.set(e, e.Path, viewEntry{})

	case KindRemoveResource:
		if !cur.exists || cur.folder != e.IsFolder {
			return fmt.Errorf("%w: %s no longer exists", ErrConflict, e.Path)
		}
		if cur.folder {
			empty, err := v.folderEmpty(e, e.Path)
			if err != nil {
				return err
			}
			if !empty {
				return fmt.Errorf("%w: folder %s is not empty", ErrConflict, e.Path)
			}
		} else if cur.contents != e.OldContents {
			return fmt.Errorf("%w: %s changed since the change was computed", ErrConflict, e.Path)
		}
		v.set(e, e.Path, viewEntry{})

	default:
		return fmt.Errorf("unknown edit kind %q", e.Kind)
	}
	return nil
}
