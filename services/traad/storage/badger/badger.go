// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger opens and manages the BadgerDB instance behind traad's
// persistent analysis cache.
//
// The cache maps content hashes to encoded file summaries so a restarted
// server does not reparse unchanged files. Entries carry a TTL and the value
// log is garbage collected in the background.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrKeyNotFound is returned by Get for a missing or expired key.
var ErrKeyNotFound = errors.New("key not found")

// Config holds configuration for a BadgerDB instance.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory.
	Path string

	// InMemory disables disk persistence.
	InMemory bool

	// SyncWrites trades write latency for durability. The cache can always
	// be rebuilt, so the default is false.
	SyncWrites bool

	// Logger receives BadgerDB's internal logging. Nil disables it.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// 0 disables GC.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable fraction before GC rewrites
	// a value log file.
	GCDiscardRatio float64

	// TTL expires entries written by Set. 0 keeps them forever.
	TTL time.Duration
}

// DefaultConfig returns the configuration used for an on-disk cache at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
		TTL:            7 * 24 * time.Hour,
	}
}

// InMemoryConfig returns configuration for a database that lives only as
// long as the process.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// DB
// =============================================================================

// DB wraps a BadgerDB instance with lifecycle management and a small
// key/value API.
//
// Thread Safety: Safe for concurrent use.
type DB struct {
	db        *badger.DB
	cfg       Config
	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Open opens the database described by cfg.
//
// Description:
//
//	Creates the directory if needed, opens BadgerDB, and starts the GC
//	loop when GCInterval is set on a persistent database.
//
// Inputs:
//
//	cfg - Database configuration. Path is required unless InMemory.
//
// Outputs:
//
//	*DB   - The opened database. Caller must call Close.
//	error - Non-nil if the path is invalid or the database cannot open.
func Open(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	bdb, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	d := &DB{db: bdb, cfg: cfg}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		if cfg.GCDiscardRatio <= 0 || cfg.GCDiscardRatio >= 1 {
			bdb.Close()
			return nil, errors.New("gc discard ratio must be between 0 and 1")
		}
		d.stopCh = make(chan struct{})
		d.doneCh = make(chan struct{})
		go d.gcLoop()
	}
	return d, nil
}

// Path returns the database directory, or "" when in memory.
func (d *DB) Path() string {
	if d.cfg.InMemory {
		return ""
	}
	return d.cfg.Path
}

// Get returns the value stored under key.
//
// Errors:
//
//	ErrKeyNotFound - missing or expired key
func (d *DB) Get(ctx context.Context, key []byte) ([]byte, error) {
	var out []byte
	err := d.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	return out, err
}

// Set stores value under key with the configured TTL.
func (d *DB) Set(ctx context.Context, key, value []byte) error {
	return d.WithTxn(ctx, func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, value)
		if d.cfg.TTL > 0 {
			entry = entry.WithTTL(d.cfg.TTL)
		}
		return txn.SetEntry(entry)
	})
}

// Delete removes key. Deleting a missing key is not an error.
func (d *DB) Delete(ctx context.Context, key []byte) error {
	return d.WithTxn(ctx, func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// WithTxn runs fn in a read-write transaction and commits if it returns nil.
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	return txn.Commit()
}

// WithReadTxn runs fn in a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.db.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}

// Close stops garbage collection and closes the database. Safe to call
// more than once.
func (d *DB) Close() error {
	d.closeOnce.Do(func() {
		if d.stopCh != nil {
			close(d.stopCh)
			<-d.doneCh
		}
		d.closeErr = d.db.Close()
	})
	return d.closeErr
}

func (d *DB) gcLoop() {
	defer close(d.doneCh)

	ticker := time.NewTicker(d.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopCh:
			return
		case <-ticker.C:
			d.runGC()
		}
	}
}

func (d *DB) runGC() {
	// ErrNoRewrite means nothing was worth collecting.
	err := d.db.RunValueLogGC(d.cfg.GCDiscardRatio)
	if err != nil && !errors.Is(err, badger.ErrNoRewrite) && d.cfg.Logger != nil {
		d.cfg.Logger.Warn("badger value log GC error", slog.String("error", err.Error()))
	}
}
