// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package python

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/AleutianAI/traad/services/traad/ast"
	"github.com/AleutianAI/traad/services/traad/storage/badger"
)

// summaryVersion is bumped whenever the summary layout changes.
const summaryVersion = "v2"

// SummaryCache stores file summaries by content key.
//
// Implementations must be safe for concurrent use. Failures are not
// reported; a miss just means the file is parsed again.
type SummaryCache interface {
	Get(ctx context.Context, key string) (*ast.ParseResult, bool)
	Put(ctx context.Context, key string, sum *ast.ParseResult)
}

// summaryKey identifies a file by path and content.
func summaryKey(rel string, src []byte) string {
	h := sha256.New()
	h.Write([]byte(rel))
	h.Write([]byte{0})
	h.Write(src)
	return "summary/" + summaryVersion + "/" + hex.EncodeToString(h.Sum(nil))
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("python: cbor encoder: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("python: cbor decoder: " + err.Error())
	}
}

// BadgerCache is a SummaryCache persisted in BadgerDB as CBOR.
type BadgerCache struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBadgerCache wraps an open database. The caller keeps ownership of db.
func NewBadgerCache(db *badger.DB, logger *slog.Logger) *BadgerCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerCache{db: db, logger: logger.With(slog.String("component", "engine.cache"))}
}

// Get returns the cached summary for key.
func (c *BadgerCache) Get(ctx context.Context, key string) (*ast.ParseResult, bool) {
	data, err := c.db.Get(ctx, []byte(key))
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn("summary cache read failed", slog.String("error", err.Error()))
		}
		return nil, false
	}
	var sum ast.ParseResult
	if err := cborDec.Unmarshal(data, &sum); err != nil {
		c.logger.Warn("discarding corrupt summary", slog.String("key", key), slog.String("error", err.Error()))
		_ = c.db.Delete(ctx, []byte(key))
		return nil, false
	}
	return &sum, true
}

// Put stores sum under key.
func (c *BadgerCache) Put(ctx context.Context, key string, sum *ast.ParseResult) {
	data, err := cborEnc.Marshal(sum)
	if err != nil {
		c.logger.Warn("summary encode failed", slog.String("error", err.Error()))
		return
	}
	if err := c.db.Set(ctx, []byte(key), data); err != nil {
		c.logger.Warn("summary cache write failed", slog.String("error", err.Error()))
	}
}
