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
	"log/slog"

	"github.com/AleutianAI/traad/services/traad/change"
)

// pendingSet holds computed change sets by ID, oldest first. Adding beyond
// the limit evicts and discards the oldest.
//
// Thread Safety: owned by the workspace actor.
type pendingSet struct {
	limit  int
	order  []string
	byID   map[string]*change.ChangeSet
	logger *slog.Logger
}

func newPendingSet(limit int, logger *slog.Logger) *pendingSet {
	return &pendingSet{
		limit:  limit,
		byID:   make(map[string]*change.ChangeSet),
		logger: logger,
	}
}

func (s *pendingSet) add(cs *change.ChangeSet) {
	if _, ok := s.byID[cs.ID]; !ok {
		s.order = append(s.order, cs.ID)
	}
	s.byID[cs.ID] = cs

	for len(s.order) > s.limit {
		oldest := s.byID[s.order[0]]
		s.order = s.order[1:]
		delete(s.byID, oldest.ID)
		_ = oldest.Discard()
		s.logger.Debug("evicted pending change set", slog.String("change_id", oldest.ID))
	}
}

func (s *pendingSet) get(id string) (*change.ChangeSet, bool) {
	cs, ok := s.byID[id]
	return cs, ok
}

// remove forgets cs if it is the pending change set with its ID.
func (s *pendingSet) remove(cs *change.ChangeSet) {
	if s.byID[cs.ID] != cs {
		return
	}
	s.drop(cs.ID)
}

// discard discards and forgets the change set with id.
func (s *pendingSet) discard(id string) bool {
	cs, ok := s.byID[id]
	if !ok {
		return false
	}
	s.drop(id)
	_ = cs.Discard()
	return true
}

func (s *pendingSet) clear() {
	for _, cs := range s.byID {
		_ = cs.Discard()
	}
	s.order = nil
	s.byID = make(map[string]*change.ChangeSet)
}

func (s *pendingSet) len() int {
	return len(s.order)
}

func (s *pendingSet) drop(id string) {
	delete(s.byID, id)
	for i, o := range s.order {
		if o == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
