// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package project models the code trees a traad workspace operates on.
//
// A Project is a root directory plus a live view of the files under it.
// Resources are never cached: every lookup goes to the file system, so the
// view is always current. Each Project owns an fsnotify watcher whose only
// job is to bump the project's generation counter when files change, which
// lets analysis caches notice external edits.
//
// # Thread Safety
//
// Project and Registry methods are safe for concurrent use, although the
// workspace serializes all access through its actor goroutine.
package project

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// DefaultIgnorePatterns are the names hidden from listings and scans.
var DefaultIgnorePatterns = []string{
	"*.pyc", "*~", ".ropeproject", ".hg", ".svn", "_svn", ".git",
	".tox", ".venv", "venv", "__pycache__",
}

// Resource is a file or folder inside a project.
type Resource struct {
	// Project owning the resource.
	Project *Project

	// Path is project-relative and slash-separated; "" is the root folder.
	Path string

	IsFolder bool
}

// Name returns the last path element, or "" for the root.
func (r Resource) Name() string {
	if r.Path == "" {
		return ""
	}
	return path.Base(r.Path)
}

// AbsPath returns the resource's absolute OS path.
func (r Resource) AbsPath() string {
	return r.Project.Abs(r.Path)
}

// Option configures Open.
type Option func(*options)

type options struct {
	fs      FileSystem
	ignore  []string
	logger  *slog.Logger
	noWatch bool
}

// WithFileSystem replaces the OS file system.
func WithFileSystem(fsys FileSystem) Option {
	return func(o *options) { o.fs = fsys }
}

// WithIgnorePatterns replaces DefaultIgnorePatterns. Patterns use path.Match
// syntax and are matched against each path element.
func WithIgnorePatterns(patterns []string) Option {
	return func(o *options) { o.ignore = patterns }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithoutWatcher disables the fsnotify watcher.
func WithoutWatcher() Option {
	return func(o *options) { o.noWatch = true }
}

// Project is an open code tree.
type Project struct {
	root   string
	fs     FileSystem
	ignore []string
	logger *slog.Logger

	generation atomic.Uint64

	watcher   *fsnotify.Watcher
	watchDone chan struct{}
	closeOnce sync.Once
	closeErr  error
	closed    atomic.Bool
}

// Open opens the project rooted at dir.
//
// Description:
//
//	Canonicalizes dir (absolute, symlinks resolved), checks that it is an
//	existing directory, and starts the watcher unless disabled. A watcher
//	that cannot be started is logged and skipped.
//
// Errors:
//
//	ErrNotDirectory - dir does not exist or is not a directory
func Open(dir string, opts ...Option) (*Project, error) {
	o := options{fs: OSFileSystem{}, ignore: DefaultIgnorePatterns}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	root, err := Canonical(dir)
	if err != nil {
		return nil, fmt.Errorf("open project %s: %w", dir, ErrNotDirectory)
	}
	info, err := o.fs.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("open project %s: %w", dir, ErrNotDirectory)
	}

	p := &Project{
		root:   root,
		fs:     o.fs,
		ignore: o.ignore,
		logger: o.logger.With("component", "project", "root", root),
	}

	if !o.noWatch {
		if err := p.startWatcher(); err != nil {
			p.logger.Warn("file watcher unavailable", "error", err)
		}
	}
	return p, nil
}

// Root returns the canonical root directory.
func (p *Project) Root() string {
	return p.root
}

// Abs returns the absolute OS path of a project-relative path.
func (p *Project) Abs(rel string) string {
	if rel == "" {
		return p.root
	}
	return filepath.Join(p.root, filepath.FromSlash(rel))
}

// Generation returns a counter that increases whenever the project's files
// change, through this Project or externally.
func (p *Project) Generation() uint64 {
	return p.generation.Load()
}

// Close stops the watcher. Safe to call more than once.
func (p *Project) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		if p.watcher != nil {
			p.closeErr = p.watcher.Close()
			<-p.watchDone
		}
		p.logger.Debug("project closed")
	})
	return p.closeErr
}

// Closed reports whether Close has been called.
func (p *Project) Closed() bool {
	return p.closed.Load()
}

// =============================================================================
// Lookups
// =============================================================================

// Resource returns the resource at a project-relative path.
//
// Errors:
//
//	ErrNotFound - the path escapes the project or nothing exists there
func (p *Project) Resource(rel string) (Resource, error) {
	clean, ok := cleanRel(rel)
	if !ok {
		return Resource{}, fmt.Errorf("resource %q: outside %s: %w", rel, p.root, ErrNotFound)
	}
	info, err := p.fs.Stat(p.Abs(clean))
	if err != nil {
		return Resource{}, fmt.Errorf("resource %q in %s: %w", rel, p.root, ErrNotFound)
	}
	return Resource{Project: p, Path: clean, IsFolder: info.IsDir()}, nil
}

// Exists reports whether something exists at rel.
func (p *Project) Exists(rel string) bool {
	_, err := p.Resource(rel)
	return err == nil
}

// Children returns the direct children of a folder, sorted by name and
// without ignored entries.
//
// Errors:
//
//	ErrNotFound     - nothing exists at rel
//	ErrNotDirectory - rel is a file
func (p *Project) Children(rel string) ([]Resource, error) {
	res, err := p.Resource(rel)
	if err != nil {
		return nil, err
	}
	if !res.IsFolder {
		return nil, fmt.Errorf("list %q: %w", res.Path, ErrNotDirectory)
	}

	entries, err := p.fs.ReadDir(p.Abs(res.Path))
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", res.Path, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	children := make([]Resource, 0, len(entries))
	for _, e := range entries {
		if p.ignored(e.Name()) {
			continue
		}
		children = append(children, Resource{
			Project:  p,
			Path:     joinRel(res.Path, e.Name()),
			IsFolder: e.IsDir(),
		})
	}
	return children, nil
}

// Files returns every non-ignored file whose extension is one of exts, in
// depth-first sorted order.
func (p *Project) Files(exts ...string) ([]string, error) {
	var files []string
	var walk func(dir string) error
	walk = func(dir string) error {
		children, err := p.Children(dir)
		if err != nil {
			return err
		}
		for _, c := range children {
			if c.IsFolder {
				if err := walk(c.Path); err != nil {
					return err
				}
				continue
			}
			for _, ext := range exts {
				if path.Ext(c.Path) == ext {
					files = append(files, c.Path)
					break
				}
			}
		}
		return nil
	}
	if err := walk(""); err != nil {
		return nil, err
	}
	return files, nil
}

// ReadFile returns the contents of a file.
func (p *Project) ReadFile(rel string) ([]byte, error) {
	res, err := p.Resource(rel)
	if err != nil {
		return nil, err
	}
	if res.IsFolder {
		return nil, fmt.Errorf("read %q: is a folder", rel)
	}
	return p.fs.ReadFile(p.Abs(res.Path))
}

// =============================================================================
// Mutations
// =============================================================================

// WriteFile replaces the contents of an existing file or creates a new one
// in an existing folder.
func (p *Project) WriteFile(rel string, data []byte) error {
	clean, err := p.writable(rel)
	if err != nil {
		return err
	}
	defer p.touch()
	return p.fs.WriteFile(p.Abs(clean), data)
}

// CreateFolder creates a folder whose parent exists.
func (p *Project) CreateFolder(rel string) error {
	clean, err := p.writable(rel)
	if err != nil {
		return err
	}
	if p.Exists(clean) {
		return fmt.Errorf("create folder %q: %w", rel, ErrExists)
	}
	defer p.touch()
	return p.fs.Mkdir(p.Abs(clean))
}

// Remove deletes a file or an empty folder.
func (p *Project) Remove(rel string) error {
	res, err := p.Resource(rel)
	if err != nil {
		return err
	}
	if res.Path == "" {
		return fmt.Errorf("remove project root: %w", fs.ErrPermission)
	}
	defer p.touch()
	return p.fs.Remove(p.Abs(res.Path))
}

// Move renames a resource. The destination must not exist.
func (p *Project) Move(rel, newRel string) error {
	res, err := p.Resource(rel)
	if err != nil {
		return err
	}
	dest, err := p.writable(newRel)
	if err != nil {
		return err
	}
	if p.Exists(dest) {
		return fmt.Errorf("move %q to %q: %w", rel, newRel, ErrExists)
	}
	defer p.touch()
	return p.fs.Rename(p.Abs(res.Path), p.Abs(dest))
}

// writable validates a path whose parent folder must exist.
func (p *Project) writable(rel string) (string, error) {
	if p.Closed() {
		return "", ErrClosed
	}
	clean, ok := cleanRel(rel)
	if !ok || clean == "" {
		return "", fmt.Errorf("write %q: outside %s: %w", rel, p.root, ErrNotFound)
	}
	parent, err := p.Resource(parentRel(clean))
	if err != nil {
		return "", err
	}
	if !parent.IsFolder {
		return "", fmt.Errorf("write %q: parent is not a folder: %w", rel, ErrNotFound)
	}
	return clean, nil
}

func (p *Project) touch() {
	p.generation.Add(1)
}

// ignored reports whether a single path element matches an ignore pattern.
func (p *Project) ignored(name string) bool {
	for _, pattern := range p.ignore {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// =============================================================================
// Path Helpers
// =============================================================================

// cleanRel normalizes a project-relative path. It reports false for
// absolute paths and paths that escape the root.
func cleanRel(rel string) (string, bool) {
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(rel, "/") {
		return "", false
	}
	clean := path.Clean(rel)
	if clean == "." {
		return "", true
	}
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", false
	}
	return clean, true
}

func joinRel(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

func parentRel(rel string) string {
	dir := path.Dir(rel)
	if dir == "." {
		return ""
	}
	return dir
}

// Canonical returns the absolute, symlink-resolved form of dir.
func Canonical(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", err
	}
	return real, nil
}

// isNotExist reports fs.ErrNotExist through wrapping.
func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
