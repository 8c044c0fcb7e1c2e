// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the traad server configuration.
//
// Values are layered: Default, then an optional YAML file, then TRAAD_*
// environment variables. Command-line flags are applied last by the
// caller, followed by Validate.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/traad/services/traad/telemetry"
)

// MaxFileSize bounds the configuration file read by Load.
const MaxFileSize = 1 << 20

// DefaultPort is the port traad listens on unless configured otherwise.
const DefaultPort = 6942

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete server configuration.
type Config struct {
	// Host is the interface to listen on.
	Host string `yaml:"host" validate:"required"`

	// Port is the HTTP port.
	Port int `yaml:"port" validate:"min=1,max=65535"`

	// Verbose enables debug logging.
	Verbose bool `yaml:"verbose"`

	// LogDir, when set, receives a JSON log file per day.
	LogDir string `yaml:"log_dir"`

	// CacheDir holds the engine's symbol cache on disk. Empty keeps the
	// cache in memory for the life of the process.
	CacheDir string `yaml:"cache_dir"`

	// CrossProjects are opened next to the root project at startup.
	CrossProjects []string `yaml:"cross_projects"`

	// Ignore replaces the default ignore patterns when non-empty.
	Ignore []string `yaml:"ignore"`

	// RateLimit is the sustained requests per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit" validate:"gte=0"`

	// RateBurst is the burst allowed above RateLimit.
	RateBurst int `yaml:"rate_burst" validate:"gte=0"`

	// PendingLimit bounds the computed change sets kept for a later apply.
	PendingLimit int `yaml:"pending_limit" validate:"min=1"`

	// HistoryLimit bounds the undo history; 0 keeps everything.
	HistoryLimit int `yaml:"history_limit" validate:"gte=0"`

	// Workers bounds parallel parsing; 0 uses GOMAXPROCS.
	Workers int `yaml:"workers" validate:"gte=0"`

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`

	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Host:            "127.0.0.1",
		Port:            DefaultPort,
		RateBurst:       20,
		PendingLimit:    32,
		ShutdownTimeout: 5 * time.Second,
		Telemetry:       telemetry.DefaultConfig(),
	}
}

// Load returns Default overlaid with the YAML file at path (when path is
// not empty) and the environment. The result is not validated.
//
// Errors:
//
//	the file cannot be read, is larger than MaxFileSize, or does not
//	parse; unknown keys are rejected
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxFileSize+1))
	if err != nil {
		return err
	}
	if len(data) > MaxFileSize {
		return fmt.Errorf("file exceeds %d bytes", MaxFileSize)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// applyEnv overlays TRAAD_PORT, TRAAD_HOST, TRAAD_VERBOSE, TRAAD_LOG_DIR,
// TRAAD_CACHE_DIR and TRAAD_RATE_LIMIT.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("TRAAD_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("TRAAD_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: TRAAD_PORT=%q is not a number", ErrInvalidConfig, v)
		}
		cfg.Port = port
	}
	if v := os.Getenv("TRAAD_VERBOSE"); v != "" {
		verbose, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: TRAAD_VERBOSE=%q is not a boolean", ErrInvalidConfig, v)
		}
		cfg.Verbose = verbose
	}
	if v := os.Getenv("TRAAD_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("TRAAD_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("TRAAD_RATE_LIMIT"); v != "" {
		limit, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: TRAAD_RATE_LIMIT=%q is not a number", ErrInvalidConfig, v)
		}
		cfg.RateLimit = limit
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field constraint and reports all failures at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	msgs := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		msgs[i] = fmt.Sprintf("%s fails %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
