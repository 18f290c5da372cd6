package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openmined/syftmirror/internal/utils"
	"gopkg.in/yaml.v3"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigPath  = filepath.Join(home, ".syftmirror", "config.json")
	DefaultLogFilePath = filepath.Join(home, ".syftmirror", "logs", "syftmirror.log")
	DefaultIntervalMs  = 60_000
)

var (
	ErrInvalidInterval  = errors.New("sync interval must be a positive number of milliseconds")
	ErrMissingSource    = errors.New("source directory is required")
	ErrMissingReplica   = errors.New("replica directory is required")
	ErrOverlappingRoots = errors.New("source and replica directories must not contain each other")
	ErrLogInsideRoots   = errors.New("log file must live outside the source and replica directories")
)

// Config is the user-facing configuration as read from flags, env and the
// config file. The file is JSON unless its extension is .yaml or .yml.
type Config struct {
	IntervalMs int      `json:"interval_ms" yaml:"interval_ms"`
	LogFile    string   `json:"log_file" yaml:"log_file"`
	Source     string   `json:"source" yaml:"source"`
	Replica    string   `json:"replica" yaml:"replica"`
	Ignore     []string `json:"ignore,omitempty" yaml:"ignore,omitempty"`
	Watch      bool     `json:"watch,omitempty" yaml:"watch,omitempty"`
	Path       string   `json:"-" yaml:"-"`
}

// Validate normalises paths in place and checks the configuration is usable.
// It does not check that the source exists; that is decided on every cycle.
func (c *Config) Validate() error {
	if c.IntervalMs <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, c.IntervalMs)
	}
	if c.Source == "" {
		return ErrMissingSource
	}
	if c.Replica == "" {
		return ErrMissingReplica
	}
	if c.LogFile == "" {
		c.LogFile = DefaultLogFilePath
	}

	var err error
	if c.Source, err = utils.ResolvePath(c.Source); err != nil {
		return fmt.Errorf("source path: %w", err)
	}
	if c.Replica, err = utils.ResolvePath(c.Replica); err != nil {
		return fmt.Errorf("replica path: %w", err)
	}
	if c.LogFile, err = utils.ResolvePath(c.LogFile); err != nil {
		return fmt.Errorf("log file path: %w", err)
	}
	if c.Path != "" {
		if c.Path, err = utils.ResolvePath(c.Path); err != nil {
			return fmt.Errorf("config path: %w", err)
		}
	}

	if utils.IsWithin(c.Source, c.Replica) || utils.IsWithin(c.Replica, c.Source) {
		return fmt.Errorf("%w: source=%q replica=%q", ErrOverlappingRoots, c.Source, c.Replica)
	}
	if utils.IsWithin(c.Source, c.LogFile) || utils.IsWithin(c.Replica, c.LogFile) {
		return fmt.Errorf("%w: log_file=%q", ErrLogInsideRoots, c.LogFile)
	}

	return nil
}

// SyncConfig returns the immutable sync settings. Call Validate first.
func (c *Config) SyncConfig() (SyncConfig, error) {
	return NewSyncConfig(c.Source, c.Replica, c.IntervalMs)
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	var data []byte
	var err error
	if IsYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if IsYAML(path) {
		err = yaml.Unmarshal(data, &cfg)
	} else {
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Path = path

	return &cfg, nil
}

// IsYAML reports whether path names a YAML config file.
func IsYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// SyncConfig holds the values the mirror loop needs. It is created once at
// startup and cannot be changed afterwards.
type SyncConfig struct {
	sourceRoot  string
	replicaRoot string
	interval    time.Duration
}

func NewSyncConfig(sourceRoot, replicaRoot string, intervalMs int) (SyncConfig, error) {
	if intervalMs <= 0 {
		return SyncConfig{}, fmt.Errorf("%w: got %d", ErrInvalidInterval, intervalMs)
	}
	if sourceRoot == "" {
		return SyncConfig{}, ErrMissingSource
	}
	if replicaRoot == "" {
		return SyncConfig{}, ErrMissingReplica
	}
	return SyncConfig{
		sourceRoot:  filepath.Clean(sourceRoot),
		replicaRoot: filepath.Clean(replicaRoot),
		interval:    time.Duration(intervalMs) * time.Millisecond,
	}, nil
}

func (s SyncConfig) SourceRoot() string      { return s.sourceRoot }
func (s SyncConfig) ReplicaRoot() string     { return s.replicaRoot }
func (s SyncConfig) Interval() time.Duration { return s.interval }
