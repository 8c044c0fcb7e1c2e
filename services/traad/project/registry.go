// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package project

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
)

// Registry holds a workspace's root project and its cross projects.
//
// Cross projects are keyed by canonical root and kept in registration
// order. The registry owns every project it opened and closes each exactly
// once.
//
// Thread Safety: not safe for concurrent use; the owning workspace
// serializes access.
type Registry struct {
	root   *Project
	cross  []*Project
	opts   []Option
	logger *slog.Logger
}

// NewRegistry opens the root project at rootDir. The options are reused
// for every cross project.
//
// Errors:
//
//	ErrNotDirectory - rootDir is not an existing directory
func NewRegistry(rootDir string, logger *slog.Logger, opts ...Option) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = append([]Option{WithLogger(logger)}, opts...)
	root, err := Open(rootDir, opts...)
	if err != nil {
		return nil, err
	}
	return &Registry{
		root:   root,
		opts:   opts,
		logger: logger.With("component", "registry"),
	}, nil
}

// Root returns the root project.
func (r *Registry) Root() *Project {
	return r.root
}

// Cross returns the cross projects in registration order.
func (r *Registry) Cross() []*Project {
	out := make([]*Project, len(r.cross))
	copy(out, r.cross)
	return out
}

// All returns the root project followed by the cross projects.
func (r *Registry) All() []*Project {
	return append([]*Project{r.root}, r.cross...)
}

// AddCross registers a cross project.
//
// Description:
//
//	Adding the root directory is a no-op returning the root project.
//	Re-adding a registered directory opens a fresh handle, closes the old
//	one, and puts the new handle in the old one's position.
//
// Errors:
//
//	ErrNotDirectory - dir is not an existing directory
func (r *Registry) AddCross(dir string) (*Project, error) {
	canon, err := Canonical(dir)
	if err != nil {
		return nil, fmt.Errorf("add cross project %s: %w", dir, ErrNotDirectory)
	}
	if canon == r.root.Root() {
		r.logger.Debug("ignoring root directory as cross project", "dir", canon)
		return r.root, nil
	}

	p, err := Open(canon, r.opts...)
	if err != nil {
		return nil, err
	}

	if i := r.indexOf(canon); i >= 0 {
		if err := r.cross[i].Close(); err != nil {
			r.logger.Warn("closing displaced cross project", "dir", canon, "error", err)
		}
		r.cross[i] = p
		r.logger.Info("cross project replaced", "dir", canon)
		return p, nil
	}

	r.cross = append(r.cross, p)
	r.logger.Info("cross project added", "dir", canon)
	return p, nil
}

// RemoveCross unregisters and closes a cross project.
//
// Errors:
//
//	ErrNotFound - dir is not a registered cross project
func (r *Registry) RemoveCross(dir string) error {
	canon, err := Canonical(dir)
	if err != nil {
		// A deleted directory can still be unregistered by its old path.
		canon, _ = filepath.Abs(dir)
	}
	i := r.indexOf(canon)
	if i < 0 {
		return fmt.Errorf("remove cross project %s: %w", dir, ErrNotFound)
	}

	p := r.cross[i]
	r.cross = append(r.cross[:i], r.cross[i+1:]...)
	r.logger.Info("cross project removed", "dir", canon)
	return p.Close()
}

// Lookup returns the registered project with the given canonical root.
func (r *Registry) Lookup(root string) (*Project, bool) {
	for _, p := range r.All() {
		if p.Root() == root {
			return p, true
		}
	}
	if canon, err := Canonical(root); err == nil && canon != root {
		return r.Lookup(canon)
	}
	return nil, false
}

// Resolve resolves a path against the root project.
func (r *Registry) Resolve(input string) string {
	return r.root.Resolve(input)
}

// ProjectFor picks the project containing path: relative paths belong to
// the root project; absolute paths go to the first project (root, then
// cross projects in order) whose tree contains them. The returned path is
// relative to that project.
func (r *Registry) ProjectFor(input string) (*Project, string) {
	if !filepath.IsAbs(input) {
		return r.root, r.root.Resolve(input)
	}
	for _, p := range r.All() {
		if p.Contains(input) {
			return p, p.Resolve(input)
		}
	}
	return r.root, r.root.Resolve(input)
}

// Close closes every project. Errors are joined.
func (r *Registry) Close() error {
	var errs []error
	for _, p := range r.All() {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", p.Root(), err))
		}
	}
	r.cross = nil
	return errors.Join(errs...)
}

func (r *Registry) indexOf(root string) int {
	for i, p := range r.cross {
		if p.Root() == root {
			return i
		}
	}
	return -1
}
