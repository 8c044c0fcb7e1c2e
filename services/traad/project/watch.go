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
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// startWatcher watches the root and every non-ignored folder under it.
func (p *Project) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	p.watcher = watcher
	p.watchDone = make(chan struct{})

	if err := p.watchTree(""); err != nil {
		_ = watcher.Close()
		p.watcher = nil
		return err
	}

	go p.watchLoop()
	return nil
}

// watchTree adds a watch for rel and all folders below it.
func (p *Project) watchTree(rel string) error {
	if err := p.watcher.Add(p.Abs(rel)); err != nil {
		return fmt.Errorf("watching %q: %w", rel, err)
	}
	children, err := p.Children(rel)
	if err != nil {
		return err
	}
	for _, c := range children {
		if c.IsFolder {
			if err := p.watchTree(c.Path); err != nil {
				return err
			}
		}
	}
	return nil
}

// watchLoop handles fsnotify events until the watcher is closed.
func (p *Project) watchLoop() {
	defer close(p.watchDone)
	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			p.handleWatchEvent(event)

		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("file watcher error", "error", err)
		}
	}
}

// handleWatchEvent bumps the generation for content and structure changes
// and extends the watch to newly created folders.
func (p *Project) handleWatchEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if p.ignored(filepath.Base(event.Name)) {
		return
	}

	p.touch()

	if !event.Has(fsnotify.Create) {
		return
	}
	rel, err := filepath.Rel(p.root, event.Name)
	if err != nil {
		return
	}
	res, err := p.Resource(filepath.ToSlash(rel))
	if err != nil || !res.IsFolder {
		return
	}
	if err := p.watchTree(res.Path); err != nil {
		p.logger.Debug("could not watch new folder", "path", res.Path, "error", err)
	}
}
