package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func relPaths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func TestScanDiscoversRubySources(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "lib/foo.rb", "class Foo; end\n")
	writeFile(t, root, "app/models/user.rb", "class User; end\n")
	writeFile(t, root, "spec/foo_spec.rb", "describe Foo do; end\n")
	writeFile(t, root, "README.md", "docs\n")
	writeFile(t, root, "Rakefile", "task :default\n")

	s, err := New()
	require.NoError(t, err)

	res, err := s.Scan(context.Background(), root, Options{})
	require.NoError(t, err)

	got := relPaths(res.Files)
	assert.Contains(t, got, "lib/foo.rb")
	assert.Contains(t, got, "app/models/user.rb")
	assert.Contains(t, got, "spec/foo_spec.rb")
	assert.Contains(t, got, "Rakefile")
	assert.NotContains(t, got, "README.md")
}

func TestScanSkipsDefaultExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "lib/keep.rb", "")
	writeFile(t, root, "vendor/bundle/gem.rb", "")
	writeFile(t, root, "node_modules/pkg/x.rb", "")
	writeFile(t, root, "tmp/scratch.rb", "")
	writeFile(t, root, "log/old.rb", "")
	writeFile(t, root, ".git/hooks/x.rb", "")

	s, err := New()
	require.NoError(t, err)

	res, err := s.Scan(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/keep.rb"}, relPaths(res.Files))
}

func TestScanHonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated/\n*.autogen.rb\n")
	writeFile(t, root, "lib/real.rb", "")
	writeFile(t, root, "generated/schema.rb", "")
	writeFile(t, root, "lib/types.autogen.rb", "")

	s, err := New()
	require.NoError(t, err)

	res, err := s.Scan(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"lib/real.rb"}, relPaths(res.Files))
}

func TestScanSkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.rb", "x = 1\n")
	writeFile(t, root, "big.rb", strings.Repeat("# pad\n", 200))

	s, err := New()
	require.NoError(t, err)

	res, err := s.Scan(context.Background(), root, Options{MaxFileSize: 100})
	require.NoError(t, err)
	assert.Equal(t, []string{"small.rb"}, relPaths(res.Files))
}

func TestScanCollectsRequires(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "lib/a.rb", "require 'json'\nrequire \"set\"\nrequire_relative 'b'\n\nclass A; end\n")
	writeFile(t, root, "lib/b.rb", "require('logger')\nclass B; end\n")

	s, err := New()
	require.NoError(t, err)

	res, err := s.Scan(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"json", "logger", "set"}, res.Requires)
}

func TestScanReadsGemfile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Gemfile", "source 'https://rubygems.org'\n\ngem 'rails', '~> 7.0'\ngem \"rspec\"\ngem('puma')\n")
	writeFile(t, root, "lib/x.rb", "")

	s, err := New()
	require.NoError(t, err)

	res, err := s.Scan(context.Background(), root, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"puma", "rails", "rspec"}, res.Gems)
}

func TestScanCancellation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.rb", "")

	s, err := New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Scan(ctx, root, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParseRequireLine(t *testing.T) {
	tests := []struct {
		line string
		want string
		ok   bool
	}{
		{"require 'json'", "json", true},
		{`require "net/http"`, "net/http", true},
		{"require('csv')", "csv", true},
		{"  require 'yaml'  # comment", "yaml", true},
		{"require_relative 'local'", "", false},
		{"requires 'x'", "", false},
		{"# require 'commented'", "", false},
		{"require dynamic_name", "", false},
	}
	for _, tc := range tests {
		got, ok := parseRequireLine(tc.line)
		assert.Equal(t, tc.ok, ok, tc.line)
		assert.Equal(t, tc.want, got, tc.line)
	}
}
