// Package config loads and validates ruby-fast-lsp configuration. A
// workspace-level .ruby-fast-lsp.yaml overrides the user-level
// ~/.config/ruby-fast-lsp/config.yaml; both are optional, and every
// option has a default that works without any file present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"

	"gopkg.in/yaml.v3"

	lsperrors "github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/errors"
)

// WorkspaceFileName is the per-project config file.
const WorkspaceFileName = ".ruby-fast-lsp.yaml"

// Config is the complete recognized option set.
type Config struct {
	// RubyVersion is "auto" or a pinned "X.Y", fixing which stdlib
	// stubs load.
	RubyVersion string `yaml:"rubyVersion" json:"rubyVersion"`

	// EnableCoreStubs includes the bundled built-in-class stub sources.
	EnableCoreStubs bool `yaml:"enableCoreStubs" json:"enableCoreStubs"`

	// VersionDetection toggles each Ruby-installation detector.
	VersionDetection VersionDetectionConfig `yaml:"versionDetection" json:"versionDetection"`

	// Paths configures workspace scanning.
	Paths PathsConfig `yaml:"paths" json:"paths"`

	// Indexing tunes the coordinator.
	Indexing IndexingConfig `yaml:"indexing" json:"indexing"`

	// Diagnostics configures publication behavior.
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" json:"diagnostics"`
}

// VersionDetectionConfig mirrors the versionDetection.* options.
type VersionDetectionConfig struct {
	EnableRbenv      bool `yaml:"enableRbenv" json:"enableRbenv"`
	EnableRvm        bool `yaml:"enableRvm" json:"enableRvm"`
	EnableChruby     bool `yaml:"enableChruby" json:"enableChruby"`
	EnableSystemRuby bool `yaml:"enableSystemRuby" json:"enableSystemRuby"`
}

// PathsConfig configures which paths the scanner visits beyond the
// standard Ruby layout (lib/, app/, spec/, test/, Gemfile).
type PathsConfig struct {
	// Exclude lists extra directory names to skip, in addition to the
	// fixed vendor/node_modules/.git/tmp/log set.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// IndexingConfig tunes the three-phase workspace build.
type IndexingConfig struct {
	// Workers is the parallel batch worker count; 0 means the hardware
	// parallelism.
	Workers int `yaml:"workers" json:"workers"`

	// BatchSize is how many files each worker batch processes.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// DiagnosticsConfig configures diagnostic publication.
type DiagnosticsConfig struct {
	// Enabled turns unresolved-reference warnings on or off.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// SarifPath, when set, additionally writes a SARIF report after the
	// initial build (used by the index CLI command).
	SarifPath string `yaml:"sarif_path" json:"sarif_path"`
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		RubyVersion:     "auto",
		EnableCoreStubs: true,
		VersionDetection: VersionDetectionConfig{
			EnableRbenv:      true,
			EnableRvm:        true,
			EnableChruby:     true,
			EnableSystemRuby: true,
		},
		Indexing: IndexingConfig{
			Workers:   runtime.NumCPU(),
			BatchSize: 10,
		},
		Diagnostics: DiagnosticsConfig{Enabled: true},
	}
}

var versionPattern = regexp.MustCompile(`^\d+\.\d+$`)

// Validate checks option values, returning a typed config error on the
// first problem.
func (c *Config) Validate() error {
	if c.RubyVersion != "auto" && !versionPattern.MatchString(c.RubyVersion) {
		return lsperrors.New(lsperrors.ErrCodeConfigInvalid,
			fmt.Sprintf("rubyVersion must be \"auto\" or \"X.Y\", got %q", c.RubyVersion), nil)
	}
	if c.Indexing.Workers < 0 {
		return lsperrors.New(lsperrors.ErrCodeConfigInvalid, "indexing.workers must be >= 0", nil)
	}
	if c.Indexing.BatchSize < 0 {
		return lsperrors.New(lsperrors.ErrCodeConfigInvalid, "indexing.batch_size must be >= 0", nil)
	}
	return nil
}

// normalize fills zero values left by a sparse YAML file.
func (c *Config) normalize() {
	if c.RubyVersion == "" {
		c.RubyVersion = "auto"
	}
	if c.Indexing.Workers == 0 {
		c.Indexing.Workers = runtime.NumCPU()
	}
	if c.Indexing.BatchSize == 0 {
		c.Indexing.BatchSize = 10
	}
}

// Load resolves the effective config for a workspace: defaults, then
// the user file, then the workspace file, each layer overriding the
// last. Missing files are not errors.
func Load(workspaceRoot string) (*Config, error) {
	cfg := NewConfig()

	if userPath, err := userConfigPath(); err == nil {
		if err := mergeFile(cfg, userPath); err != nil {
			return nil, err
		}
	}
	if workspaceRoot != "" {
		if err := mergeFile(cfg, filepath.Join(workspaceRoot, WorkspaceFileName)); err != nil {
			return nil, err
		}
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads exactly one config file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, lsperrors.New(lsperrors.ErrCodeConfigNotFound, path, err)
		}
		return nil, lsperrors.New(lsperrors.ErrCodeConfigPermission, path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, lsperrors.New(lsperrors.ErrCodeConfigInvalid, fmt.Sprintf("parse %s", path), err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile overlays path's contents onto cfg when the file exists.
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return lsperrors.New(lsperrors.ErrCodeConfigPermission, path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return lsperrors.New(lsperrors.ErrCodeConfigInvalid, fmt.Sprintf("parse %s", path), err)
	}
	return nil
}

// userConfigPath is ~/.config/ruby-fast-lsp/config.yaml.
func userConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "ruby-fast-lsp", "config.yaml"), nil
}

// Save writes cfg to path atomically: write a temp sibling, then
// rename over the target, keeping one .bak of the previous contents.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return lsperrors.New(lsperrors.ErrCodeConfigPermission, path, err)
	}

	if prev, err := os.ReadFile(path); err == nil {
		if err := os.WriteFile(path+".bak", prev, 0o644); err != nil {
			return lsperrors.New(lsperrors.ErrCodeConfigPermission, path+".bak", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return lsperrors.New(lsperrors.ErrCodeConfigPermission, tmp, err)
	}
	return os.Rename(tmp, path)
}
