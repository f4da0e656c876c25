package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lsperrors "github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/errors"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "auto", cfg.RubyVersion)
	assert.True(t, cfg.EnableCoreStubs)
	assert.True(t, cfg.VersionDetection.EnableRbenv)
	assert.True(t, cfg.VersionDetection.EnableRvm)
	assert.True(t, cfg.VersionDetection.EnableChruby)
	assert.True(t, cfg.VersionDetection.EnableSystemRuby)
	assert.Equal(t, 10, cfg.Indexing.BatchSize)
	assert.True(t, cfg.Diagnostics.Enabled)
	require.NoError(t, cfg.Validate())
}

func TestLoadWorkspaceOverrides(t *testing.T) {
	root := t.TempDir()
	body := `
rubyVersion: "3.3"
enableCoreStubs: false
versionDetection:
  enableRvm: false
  enableRbenv: true
indexing:
  workers: 4
  batch_size: 25
`
	require.NoError(t, os.WriteFile(filepath.Join(root, WorkspaceFileName), []byte(body), 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "3.3", cfg.RubyVersion)
	assert.False(t, cfg.EnableCoreStubs)
	assert.False(t, cfg.VersionDetection.EnableRvm)
	assert.True(t, cfg.VersionDetection.EnableRbenv)
	assert.Equal(t, 4, cfg.Indexing.Workers)
	assert.Equal(t, 25, cfg.Indexing.BatchSize)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "auto", cfg.RubyVersion)
}

func TestValidateRejectsBadVersion(t *testing.T) {
	cfg := NewConfig()
	cfg.RubyVersion = "three point four"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, lsperrors.ErrCodeConfigInvalid, lsperrors.Code(err))
}

func TestLoadFileRejectsMalformedYAML(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, WorkspaceFileName)
	require.NoError(t, os.WriteFile(path, []byte("rubyVersion: [unclosed"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Equal(t, lsperrors.ErrCodeConfigInvalid, lsperrors.Code(err))
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Equal(t, lsperrors.ErrCodeConfigNotFound, lsperrors.Code(err))
}

func TestSaveRoundTripsAndBacksUp(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, WorkspaceFileName)

	cfg := NewConfig()
	cfg.RubyVersion = "3.2"
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "3.2", loaded.RubyVersion)

	// A second save keeps a backup of the first.
	cfg.RubyVersion = "3.4"
	require.NoError(t, cfg.Save(path))
	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Contains(t, string(backup), "3.2")
}
