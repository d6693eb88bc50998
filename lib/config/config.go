// Copyright 2026 The Yatfs Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "YATFS_CONFIG"

// Backend selects where piece data comes from.
type Backend string

const (
	// BackendLocal reads pieces from payload files already present in
	// the data directory.
	BackendLocal Backend = "local"

	// BackendClient downloads pieces from peers with a BitTorrent
	// client storing into the data directory.
	BackendClient Backend = "client"
)

// Config is the mount configuration.
type Config struct {
	Routine RoutineConfig `yaml:"routine"`
	Torrent TorrentConfig `yaml:"torrent"`

	// MetricsAddr is a host:port serving Prometheus metrics at
	// /metrics. Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`
}

// RoutineConfig configures the background fetch routine.
type RoutineConfig struct {
	Backend Backend `yaml:"backend"`

	// DataDir holds torrent payloads laid out as <name>/<path...>.
	DataDir string `yaml:"data_dir"`

	// Workers bounds concurrent piece fetches.
	Workers int `yaml:"workers"`

	// Readahead is how many pieces past a read are fetched ahead of
	// demand.
	Readahead int `yaml:"readahead"`

	// PieceCacheBytes bounds the in-memory cache of verified pieces.
	// Zero disables caching.
	PieceCacheBytes int64 `yaml:"piece_cache_bytes"`

	// ReadTimeout bounds how long a read waits for its pieces before
	// failing with EIO.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// StopTimeout bounds how long unmount waits for in-flight fetches
	// to wind down.
	StopTimeout time.Duration `yaml:"stop_timeout"`

	// StatusInterval is how often the routine logs a status line. Zero
	// disables it.
	StatusInterval time.Duration `yaml:"status_interval"`

	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig is the exponential backoff applied to failed fetches.
type RetryConfig struct {
	Initial time.Duration `yaml:"initial"`
	Max     time.Duration `yaml:"max"`

	// MaxElapsed gives up on a piece after this long. Zero retries
	// until the routine stops.
	MaxElapsed time.Duration `yaml:"max_elapsed"`
}

// TorrentConfig holds BitTorrent client parameters for BackendClient.
type TorrentConfig struct {
	// ListenPort is the peer port. Zero picks a free port.
	ListenPort int  `yaml:"listen_port"`
	NoUpload   bool `yaml:"no_upload"`
	Seed       bool `yaml:"seed"`
	DisableDHT bool `yaml:"disable_dht"`
}

// Default returns the configuration used for every field the file
// does not set.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Routine: RoutineConfig{
			Backend:         BackendLocal,
			DataDir:         filepath.Join(homeDir, ".cache", "yatfs", "data"),
			Workers:         4,
			Readahead:       2,
			PieceCacheBytes: 64 << 20,
			ReadTimeout:     60 * time.Second,
			StopTimeout:     10 * time.Second,
			Retry: RetryConfig{
				Initial:    250 * time.Millisecond,
				Max:        10 * time.Second,
				MaxElapsed: 0,
			},
		},
	}
}

// Load loads the file named by YATFS_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your yatfs.yaml config file, or use --config", EnvironmentVariable)
	}
	return LoadFile(path)
}

// LoadFile loads and expands the config file at path. It does not
// validate; call Validate.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over Default and expands path variables.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Routine.DataDir = expandVars(c.Routine.DataDir, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks every field and returns all problems joined.
func (c *Config) Validate() error {
	var errs []error

	backends := []Backend{BackendLocal, BackendClient}
	if !slices.Contains(backends, c.Routine.Backend) {
		errs = append(errs, fmt.Errorf("routine.backend must be one of %v, got %q", backends, c.Routine.Backend))
	}
	if c.Routine.DataDir == "" {
		errs = append(errs, fmt.Errorf("routine.data_dir is required"))
	}
	if c.Routine.Workers < 1 {
		errs = append(errs, fmt.Errorf("routine.workers must be at least 1, got %d", c.Routine.Workers))
	}
	if c.Routine.Readahead < 0 {
		errs = append(errs, fmt.Errorf("routine.readahead must not be negative"))
	}
	if c.Routine.PieceCacheBytes < 0 {
		errs = append(errs, fmt.Errorf("routine.piece_cache_bytes must not be negative"))
	}
	if c.Routine.ReadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("routine.read_timeout must be positive"))
	}
	if c.Routine.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("routine.stop_timeout must be positive"))
	}
	if c.Routine.StatusInterval < 0 {
		errs = append(errs, fmt.Errorf("routine.status_interval must not be negative"))
	}
	if c.Routine.Retry.Initial <= 0 {
		errs = append(errs, fmt.Errorf("routine.retry.initial must be positive"))
	}
	if c.Routine.Retry.Max < c.Routine.Retry.Initial {
		errs = append(errs, fmt.Errorf("routine.retry.max (%v) must not be below routine.retry.initial (%v)",
			c.Routine.Retry.Max, c.Routine.Retry.Initial))
	}
	if c.Routine.Retry.MaxElapsed < 0 {
		errs = append(errs, fmt.Errorf("routine.retry.max_elapsed must not be negative"))
	}
	if c.Torrent.ListenPort < 0 || c.Torrent.ListenPort > 65535 {
		errs = append(errs, fmt.Errorf("torrent.listen_port %d out of range", c.Torrent.ListenPort))
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			errs = append(errs, fmt.Errorf("metrics_addr: %w", err))
		}
	}

	return errors.Join(errs...)
}
