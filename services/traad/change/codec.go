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
	"fmt"
	"path"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/AleutianAI/traad/services/traad/project"
)

// Data is the transmittable form of a change set: nested maps and slices
// of strings and booleans.
//
// Layout:
//
//	{"type": "ChangeSet", "id": ..., "description": ..., "project": <root>,
//	 "changes": [
//	   {"type": "ChangeContents", "project": <root>, "path": ...,
//	    "old_contents": ..., "new_contents": ..., "description": ...},
//	   ...]}
type Data = map[string]any

// Binder maps a project root named in change data back to an open project.
type Binder interface {
	Lookup(root string) (*project.Project, bool)
}

// Wire field names.
const (
	fieldType        = "type"
	fieldID          = "id"
	fieldDescription = "description"
	fieldProject     = "project"
	fieldChanges     = "changes"
	fieldPath        = "path"
	fieldNewPath     = "new_path"
	fieldOldContents = "old_contents"
	fieldNewContents = "new_contents"
	fieldContents    = "contents"
	fieldIsFolder    = "is_folder"

	typeChangeSet = "ChangeSet"
)

// Encode converts a change set into Data. Edit order is preserved.
func Encode(cs *ChangeSet) Data {
	changes := make([]any, 0, len(cs.edits))
	for _, e := range cs.edits {
		changes = append(changes, encodeEdit(e))
	}
	return Data{
		fieldType:        typeChangeSet,
		fieldID:          cs.ID,
		fieldDescription: cs.Description,
		fieldProject:     rootOf(cs.Project),
		fieldChanges:     changes,
	}
}

func encodeEdit(e Edit) map[string]any {
	m := map[string]any{
		fieldType:        string(e.Kind),
		fieldProject:     rootOf(e.Project),
		fieldPath:        e.Path,
		fieldDescription: e.Description,
	}
	switch e.Kind {
	case KindChangeContents:
		m[fieldOldContents] = e.OldContents
		m[fieldNewContents] = e.NewContents
	case KindCreateFile:
		m[fieldContents] = e.NewContents
	case KindMoveResource:
		m[fieldNewPath] = e.NewPath
	case KindRemoveResource:
		m[fieldOldContents] = e.OldContents
		m[fieldIsFolder] = e.IsFolder
	}
	return m
}

func rootOf(p *project.Project) string {
	if p == nil {
		return ""
	}
	return p.Root()
}

// Decode rebuilds a computed change set from Data.
//
// Description:
//
//	Every project root must be known to binder and every path must be
//	project-relative without escaping its root. Descriptions are kept as
//	sent. A valid UUID "id" is kept; otherwise a fresh ID is assigned.
//
// Errors:
//
//	ErrInvalidData - unknown project, bad path, unknown edit type, or a
//	                 missing or mistyped field
func Decode(binder Binder, data Data) (*ChangeSet, error) {
	if data == nil {
		return nil, fmt.Errorf("%w: no data", ErrInvalidData)
	}
	d := decoder{binder: binder}

	if typ, err := d.str(data, fieldType, true); err != nil {
		return nil, err
	} else if typ != typeChangeSet {
		return nil, fmt.Errorf("%w: type %q is not %s", ErrInvalidData, typ, typeChangeSet)
	}

	primary, err := d.project(data)
	if err != nil {
		return nil, err
	}
	description, err := d.str(data, fieldDescription, false)
	if err != nil {
		return nil, err
	}

	raw, ok := data[fieldChanges]
	if !ok {
		return nil, fmt.Errorf("%w: missing %q", ErrInvalidData, fieldChanges)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q is %T, not a list", ErrInvalidData, fieldChanges, raw)
	}

	edits := make([]Edit, 0, len(list))
	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: change %d is %T, not a map", ErrInvalidData, i, item)
		}
		e, err := d.edit(m)
		if err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}
		edits = append(edits, e)
	}

	cs := New(primary, description, edits...)
	if id, _ := data[fieldID].(string); id != "" {
		if _, err := uuid.Parse(id); err == nil {
			cs.ID = id
		}
	}
	return cs, nil
}

type decoder struct {
	binder Binder
}

func (d decoder) edit(m map[string]any) (Edit, error) {
	typ, err := d.str(m, fieldType, true)
	if err != nil {
		return Edit{}, err
	}
	p, err := d.project(m)
	if err != nil {
		return Edit{}, err
	}
	rel, err := d.path(m, fieldPath)
	if err != nil {
		return Edit{}, err
	}
	description, err := d.str(m, fieldDescription, false)
	if err != nil {
		return Edit{}, err
	}

	var e Edit
	switch EditKind(typ) {
	case KindChangeContents:
		oldContents, err := d.str(m, fieldOldContents, true)
		if err != nil {
			return Edit{}, err
		}
		newContents, err := d.str(m, fieldNewContents, true)
		if err != nil {
			return Edit{}, err
		}
		e = ChangeContents(p, rel, oldContents, newContents)
	case KindCreateFile:
		contents, err := d.str(m, fieldContents, false)
		if err != nil {
			return Edit{}, err
		}
		e = CreateFile(p, rel, contents)
	case KindCreateFolder:
		e = CreateFolder(p, rel)
	case KindMoveResource:
		newPath, err := d.path(m, fieldNewPath)
		if err != nil {
			return Edit{}, err
		}
		e = MoveResource(p, rel, newPath)
	case KindRemoveResource:
		oldContents, err := d.str(m, fieldOldContents, false)
		if err != nil {
			return Edit{}, err
		}
		isFolder, _ := m[fieldIsFolder].(bool)
		e = RemoveResource(p, rel, oldContents, isFolder)
	default:
		return Edit{}, fmt.Errorf("%w: unknown change type %q", ErrInvalidData, typ)
	}

	if _, ok := m[fieldDescription]; ok {
		e.Description = description
	}
	return e, nil
}

func (d decoder) project(m map[string]any) (*project.Project, error) {
	root, err := d.str(m, fieldProject, true)
	if err != nil {
		return nil, err
	}
	if d.binder == nil {
		return nil, fmt.Errorf("%w: unknown project %q", ErrInvalidData, root)
	}
	p, ok := d.binder.Lookup(root)
	if !ok {
		return nil, fmt.Errorf("%w: unknown project %q", ErrInvalidData, root)
	}
	return p, nil
}

// path reads a project-relative path, rejecting absolute and escaping ones.
func (d decoder) path(m map[string]any, key string) (string, error) {
	raw, err := d.str(m, key, true)
	if err != nil {
		return "", err
	}
	if raw == "" || strings.HasPrefix(raw, "/") || strings.Contains(raw, `\`) {
		return "", fmt.Errorf("%w: %s %q is not a relative path", ErrInvalidData, key, raw)
	}
	clean := path.Clean(raw)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %s %q escapes the project", ErrInvalidData, key, raw)
	}
	return clean, nil
}

func (d decoder) str(m map[string]any, key string, required bool) (string, error) {
	raw, ok := m[key]
	if !ok || raw == nil {
		if required {
			return "", fmt.Errorf("%w: missing %q", ErrInvalidData, key)
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q is %T, not a string", ErrInvalidData, key, raw)
	}
	return s, nil
}

// =============================================================================
// CBOR
// =============================================================================

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("change: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		// Decode maps under any-typed values as map[string]any, the shape
		// Decode expects.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("change: CBOR decoder initialization failed: " + err.Error())
	}
}

// MarshalCBOR encodes Data as deterministic CBOR.
func MarshalCBOR(data Data) ([]byte, error) {
	return cborEnc.Marshal(data)
}

// UnmarshalCBOR decodes CBOR produced by MarshalCBOR.
func UnmarshalCBOR(b []byte) (Data, error) {
	var data Data
	if err := cborDec.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return data, nil
}
