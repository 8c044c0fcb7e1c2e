// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package python implements the traad analysis engine for Python sources.
//
// The engine works on tree-sitter syntax trees. It keeps a per-project index
// of module summaries (symbols and imports) that is rebuilt when a project's
// generation changes, and resolves names across modules through their
// import statements. Refactorings are computed as whole-file rewrites.
//
// # Name Resolution
//
// Resolution is syntactic. A name resolves to the innermost function scope
// that binds it, then to the module, then through from-imports to the
// defining module of another project file. Attribute names resolve through
// module imports; any other attribute is treated as a class member and
// matched within the class hierarchy its receiver or definition names.
//
// # Thread Safety
//
// Engine is safe for concurrent use.
package python

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/traad/services/traad/ast"
	"github.com/AleutianAI/traad/services/traad/engine"
)

// pythonLanguage is the registry name of the parser the engine analyzes with.
const pythonLanguage = "python"

// Engine is the Python implementation of every engine provider.
type Engine struct {
	parsers *ast.ParserRegistry
	parser  ast.Parser
	cache   SummaryCache
	logger  *slog.Logger
	workers int

	mu       sync.Mutex
	projects map[string]*projectIndex
}

var _ engine.Engine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithCache stores file summaries in c.
func WithCache(c SummaryCache) Option {
	return func(e *Engine) {
		e.cache = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithWorkers bounds parallel parsing. Default: GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithParser registers p for its language and extensions. A parser for
// "python" replaces the built-in one.
func WithParser(p ast.Parser) Option {
	return func(e *Engine) {
		e.parsers.Register(p)
	}
}

// New creates a Python engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		parsers:  ast.DefaultRegistry(),
		logger:   slog.Default(),
		workers:  runtime.GOMAXPROCS(0),
		projects: make(map[string]*projectIndex),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.parser, _ = e.parsers.GetByLanguage(pythonLanguage)
	e.logger = e.logger.With(slog.String("component", "engine.python"))
	return e
}

// =============================================================================
// Module Index
// =============================================================================

// module is one Python file of a project.
type module struct {
	project engine.Project
	path    string
	name    string
	source  []byte
	summary *ast.ParseResult
}

// projectIndex is the cached scan of one project.
type projectIndex struct {
	owner      engine.Project
	generation uint64
	modules    []*module
}

// index is the set of modules visible to one operation.
type index struct {
	modules []*module
	byName  map[string]*module
	byPath  map[string]*module
}

func pathKey(p engine.Project, rel string) string {
	return p.Root() + "\x00" + rel
}

// find returns the module at rel in p.
func (ix *index) find(p engine.Project, rel string) *module {
	if p == nil {
		return nil
	}
	return ix.byPath[pathKey(p, rel)]
}

// fromModule resolves the module a from-import in m reads from.
func (ix *index) fromModule(m *module, imp ast.Import) *module {
	name, ok := resolveRelative(m.path, imp.Level, imp.Module)
	if !ok {
		return nil
	}
	return ix.byName[name]
}

// definition follows unaliased from-import chains from m to the module that
// defines name. Returns m itself when m binds name some other way, and nil
// when the chain leaves the workspace.
func (ix *index) definition(m *module, name string) *module {
	for depth := 0; depth < 16; depth++ {
		if _, ok := m.summary.Lookup(name); ok {
			return m
		}
		imp, n, ok := importOf(m.summary, name)
		if !ok || !imp.IsFrom || n.Alias != "" {
			return m
		}
		src := ix.fromModule(m, imp)
		if src == nil {
			return nil
		}
		m = src
	}
	return m
}

// importOf returns the last module-level import that binds name.
func importOf(sum *ast.ParseResult, name string) (ast.Import, ast.ImportedName, bool) {
	var (
		found ast.Import
		which ast.ImportedName
		ok    bool
	)
	for _, imp := range sum.Imports {
		for _, n := range imp.Names {
			if n.Bound() == name {
				found, which, ok = imp, n, true
			}
		}
	}
	return found, which, ok
}

// index returns the modules of projects, rescanning any project whose
// generation changed since the last call.
func (e *Engine) index(ctx context.Context, projects []engine.Project) (*index, error) {
	ix := &index{
		byName: make(map[string]*module),
		byPath: make(map[string]*module),
	}
	for _, p := range projects {
		modules, err := e.projectModules(ctx, p)
		if err != nil {
			return nil, err
		}
		for _, m := range modules {
			ix.modules = append(ix.modules, m)
			ix.byPath[pathKey(p, m.path)] = m
			if _, taken := ix.byName[m.name]; !taken && m.name != "" {
				ix.byName[m.name] = m
			}
		}
	}
	return ix, nil
}

func (e *Engine) projectModules(ctx context.Context, p engine.Project) ([]*module, error) {
	gen := p.Generation()

	e.mu.Lock()
	cached, ok := e.projects[p.Root()]
	e.mu.Unlock()
	if ok && cached.owner == p && cached.generation == gen {
		return cached.modules, nil
	}

	modules, err := e.scan(ctx, p)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.projects[p.Root()] = &projectIndex{owner: p, generation: gen, modules: modules}
	e.mu.Unlock()
	return modules, nil
}

// scan reads and summarizes every Python file of p in parallel.
func (e *Engine) scan(ctx context.Context, p engine.Project) ([]*module, error) {
	ctx, span := startIndexSpan(ctx, p.Root())
	defer span.End()

	files, err := p.Files(e.parsers.Extensions()...)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p.Root(), err)
	}

	slots := make([]*module, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i, rel := range files {
		g.Go(func() error {
			src, err := p.ReadFile(rel)
			if err != nil {
				return fmt.Errorf("read %s: %w", rel, err)
			}
			sum, err := e.summarize(gctx, rel, src)
			if err != nil {
				if errors.Is(err, ast.ErrContextCanceled) {
					return err
				}
				e.logger.Debug("skipping unparsable file",
					slog.String("path", rel),
					slog.String("error", err.Error()),
				)
				return nil
			}
			slots[i] = &module{
				project: p,
				path:    rel,
				name:    moduleName(rel),
				source:  src,
				summary: sum,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	modules := slots[:0]
	for _, m := range slots {
		if m != nil {
			modules = append(modules, m)
		}
	}
	recordIndexMetrics(ctx, len(modules))
	e.logger.Debug("indexed project",
		slog.String("root", p.Root()),
		slog.Int("modules", len(modules)),
	)
	return modules, nil
}

// summarize returns the summary of src, from the cache when possible.
func (e *Engine) summarize(ctx context.Context, rel string, src []byte) (*ast.ParseResult, error) {
	var key string
	if e.cache != nil {
		key = summaryKey(rel, src)
		if sum, ok := e.cache.Get(ctx, key); ok {
			recordCacheLookup(ctx, true)
			return sum, nil
		}
		recordCacheLookup(ctx, false)
	}
	sum, err := e.parser.Parse(ctx, src, rel)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Put(ctx, key, sum)
	}
	return sum, nil
}

// =============================================================================
// Parsed Files
// =============================================================================

// file is a module with its syntax tree open.
type file struct {
	mod    *module
	tree   *ast.Tree
	scopes map[[2]uint32]*bindings
}

// open parses m. The caller must close the returned file.
func (e *Engine) open(ctx context.Context, m *module) (*file, error) {
	tree, err := e.parser.ParseTree(ctx, m.source, m.path)
	if err != nil {
		return nil, err
	}
	return &file{mod: m, tree: tree, scopes: make(map[[2]uint32]*bindings)}, nil
}

func (f *file) close() {
	f.tree.Close()
}

// checkSyntax fails with ErrSyntax when the file does not parse cleanly.
func (f *file) checkSyntax() error {
	if bad := f.tree.FirstError(); bad != nil {
		pos := bad.StartPoint()
		cause := ast.NewParseError(f.mod.path, int(pos.Row)+1, int(pos.Column)+1, "syntax error")
		return &engine.Error{Kind: engine.ErrSyntax, Message: cause.Error(), Cause: cause}
	}
	return nil
}

// parserFor returns the parser registered for the extension of rel, failing
// with ast.ErrUnsupportedLanguage unless it is the Python parser.
func (e *Engine) parserFor(rel string) (ast.Parser, error) {
	p, ok := e.parsers.GetByExtension(path.Ext(rel))
	if !ok || p.Language() != pythonLanguage {
		return nil, fmt.Errorf("%s: %w", rel, ast.ErrUnsupportedLanguage)
	}
	return p, nil
}

// target loads the module and offset named by t.
func (e *Engine) target(ctx context.Context, t engine.Target) (*index, *module, error) {
	if _, err := e.parserFor(t.Path); err != nil {
		return nil, nil, &engine.Error{Kind: engine.ErrUnsupported, Message: err.Error(), Cause: err}
	}
	ix, err := e.index(ctx, t.Projects)
	if err != nil {
		return nil, nil, err
	}
	m := ix.find(t.Project, t.Path)
	if m == nil {
		return nil, nil, engine.Errorf(engine.ErrNoTarget, "%s is not a Python module", t.Path)
	}
	return ix, m, nil
}

// byteOffset converts a character offset into m's source.
func byteOffset(src []byte, offset int) (int, error) {
	b, ok := ast.RuneToByte(src, offset)
	if !ok {
		return 0, engine.Errorf(engine.ErrInvalidArgument, "offset %d is out of range", offset)
	}
	return b, nil
}
