// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history records applied change sets for undo and redo.
//
// The stack is a list of entries with a cursor: entries before the cursor
// are applied and can be undone, entries at or after it were undone and
// can be redone. Recording a new entry discards everything after the
// cursor.
package history

import (
	"sync"
	"time"

	"github.com/AleutianAI/traad/services/traad/change"
)

// Status reports whether an undo or redo step was taken.
type Status int

const (
	// StatusPerformed means the cursor moved and a change set was returned.
	StatusPerformed Status = iota

	// StatusNothingToUndo means the cursor was already at the start.
	StatusNothingToUndo

	// StatusNothingToRedo means the cursor was already at the end.
	StatusNothingToRedo
)

// String returns "performed", "nothing_to_undo", or "nothing_to_redo".
func (s Status) String() string {
	switch s {
	case StatusPerformed:
		return "performed"
	case StatusNothingToUndo:
		return "nothing_to_undo"
	case StatusNothingToRedo:
		return "nothing_to_redo"
	default:
		return "unknown"
	}
}

// Entry is one applied change set and the change set that reverses it.
type Entry struct {
	Seq     int
	Time    time.Time
	Applied *change.ChangeSet
	Inverse *change.ChangeSet
}

// Stack is the undo/redo history of a workspace.
//
// Thread Safety: safe for concurrent use.
type Stack struct {
	mu sync.Mutex

	entries    []*Entry
	cursor     int
	nextSeq    int
	maxEntries int
	now        func() time.Time
}

// New creates a stack keeping at most maxEntries entries; 0 means no
// limit.
func New(maxEntries int) *Stack {
	if maxEntries < 0 {
		maxEntries = 0
	}
	return &Stack{
		maxEntries: maxEntries,
		nextSeq:    1,
		now:        time.Now,
	}
}

// Record appends an applied change set and its inverse, discarding any
// entries after the cursor. The oldest entries are dropped beyond the
// size limit.
func (s *Stack) Record(applied, inverse *change.ChangeSet) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &Entry{
		Seq:     s.nextSeq,
		Time:    s.now(),
		Applied: applied,
		Inverse: inverse,
	}
	s.nextSeq++

	s.entries = append(s.entries[:s.cursor], entry)
	if s.maxEntries > 0 && len(s.entries) > s.maxEntries {
		excess := len(s.entries) - s.maxEntries
		s.entries = append([]*Entry(nil), s.entries[excess:]...)
	}
	s.cursor = len(s.entries)
	return entry
}

// Undo moves the cursor back one entry and returns a fresh, computed copy
// of that entry's inverse for the caller to apply.
//
// At the start of the history it returns an empty change set and
// StatusNothingToUndo.
func (s *Stack) Undo() (*change.ChangeSet, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor == 0 {
		return change.Empty(nil, "Nothing to undo"), StatusNothingToUndo
	}
	s.cursor--
	return s.entries[s.cursor].Inverse.Clone(), StatusPerformed
}

// Redo moves the cursor forward one entry and returns a fresh, computed
// copy of that entry's change set.
//
// At the end of the history it returns an empty change set and
// StatusNothingToRedo.
func (s *Stack) Redo() (*change.ChangeSet, Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor == len(s.entries) {
		return change.Empty(nil, "Nothing to redo"), StatusNothingToRedo
	}
	entry := s.entries[s.cursor]
	s.cursor++
	return entry.Applied.Clone(), StatusPerformed
}

// CancelUndo reverts the cursor move of a performed Undo whose change set
// could not be applied.
func (s *Stack) CancelUndo() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor < len(s.entries) {
		s.cursor++
	}
}

// CancelRedo reverts the cursor move of a performed Redo whose change set
// could not be applied.
func (s *Stack) CancelRedo() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor > 0 {
		s.cursor--
	}
}

// Cursor returns the number of entries currently applied.
func (s *Stack) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Len returns the number of entries.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Entries returns a copy of all entries, oldest first.
func (s *Stack) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = *e
	}
	return out
}

// PeekUndo returns the entry the next Undo would reverse.
func (s *Stack) PeekUndo() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor == 0 {
		return Entry{}, false
	}
	return *s.entries[s.cursor-1], true
}

// PeekRedo returns the entry the next Redo would reapply.
func (s *Stack) PeekRedo() (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor == len(s.entries) {
		return Entry{}, false
	}
	return *s.entries[s.cursor], true
}
