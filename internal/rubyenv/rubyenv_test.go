package rubyenv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lsperrors "github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/errors"
)

// fakeRunner scripts probe responses per command name.
func fakeRunner(responses map[string]string) commandRunner {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		if out, ok := responses[name]; ok {
			return []byte(out), nil
		}
		return nil, errors.New("command not found: " + name)
	}
}

func newTestDetector(responses map[string]string) *Detector {
	return &Detector{
		breaker: lsperrors.NewCircuitBreaker("ruby-probe-test"),
		runner:  fakeRunner(responses),
	}
}

func TestDetectPinnedVersion(t *testing.T) {
	d := newTestDetector(map[string]string{"ruby": "/usr/lib/ruby/3.4\n"})

	env, err := d.Detect(context.Background(), Options{Version: "3.4"})
	require.NoError(t, err)
	assert.Equal(t, "3.4", env.Version)
	assert.Equal(t, "config", env.Source)
}

func TestDetectRejectsMalformedVersion(t *testing.T) {
	d := newTestDetector(nil)

	_, err := d.Detect(context.Background(), Options{Version: "latest"})
	require.Error(t, err)
	assert.Equal(t, lsperrors.ErrCodeConfigInvalid, lsperrors.Code(err))
}

func TestDetectSystemRuby(t *testing.T) {
	d := newTestDetector(map[string]string{"ruby": "3.3.6\n"})

	env, err := d.Detect(context.Background(), Options{
		Version:          "auto",
		EnableSystemRuby: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "3.3", env.Version)
	assert.Equal(t, "system", env.Source)
}

func TestDetectChrubyVersionFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".ruby-version"), []byte("3.2.4\n"), 0o644))

	d := newTestDetector(nil)
	env, err := d.Detect(context.Background(), Options{
		Version:       "auto",
		EnableChruby:  true,
		WorkspaceRoot: root,
	})
	require.NoError(t, err)
	assert.Equal(t, "3.2", env.Version)
	assert.Equal(t, "chruby", env.Source)
}

func TestDetectProbingOrder(t *testing.T) {
	// rvm answers, system would too; rvm is probed first.
	d := newTestDetector(map[string]string{
		"rvm":  "ruby-3.1.2\n",
		"ruby": "3.3.0\n",
	})
	env, err := d.Detect(context.Background(), Options{
		Version:          "auto",
		EnableRvm:        true,
		EnableSystemRuby: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "3.1", env.Version)
	assert.Equal(t, "rvm", env.Source)
}

func TestDetectNothingFound(t *testing.T) {
	d := newTestDetector(nil)
	_, err := d.Detect(context.Background(), Options{
		Version:          "auto",
		EnableRbenv:      true,
		EnableRvm:        true,
		EnableChruby:     true,
		EnableSystemRuby: true,
	})
	require.Error(t, err)
	assert.Equal(t, lsperrors.ErrCodeRubyNotFound, lsperrors.Code(err))
}

func TestLoadPathProbe(t *testing.T) {
	d := newTestDetector(map[string]string{
		"ruby": "/usr/lib/ruby/site_ruby/3.4.0\n/usr/lib/ruby/3.4.0\n",
	})
	paths := d.probeLoadPaths(context.Background())
	assert.Equal(t, []string{"/usr/lib/ruby/site_ruby/3.4.0", "/usr/lib/ruby/3.4.0"}, paths)
}

func TestStubsDirExactAndFallback(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "rubystubs33"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "rubystubs34"), 0o755))

	assert.Equal(t, filepath.Join(root, "rubystubs34"), stubsDirFor(root, "3.4"))
	// No 3.5 stubs: fall back to the newest at or below.
	assert.Equal(t, filepath.Join(root, "rubystubs34"), stubsDirFor(root, "3.5"))
	assert.Equal(t, filepath.Join(root, "rubystubs33"), stubsDirFor(root, "3.3"))
	assert.Equal(t, "", stubsDirFor(root, "2.0"))
}

func TestStubFiles(t *testing.T) {
	root := t.TempDir()
	stubs := filepath.Join(root, "rubystubs34")
	require.NoError(t, os.MkdirAll(stubs, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(stubs, "string.rb"), []byte("class String; end\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(stubs, "array.rb"), []byte("class Array; end\n"), 0o644))

	env := &Environment{StubsDir: stubs}
	assert.Len(t, env.StubFiles(), 2)
}
