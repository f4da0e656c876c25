// Package rubyenv locates the Ruby installation a workspace targets:
// which version manager provides it (rbenv, rvm, chruby, or the system
// ruby, probed in that order), which version it is, where its load path
// points, and which bundled stub set matches it. The ruby-executable
// probe is guarded by a circuit breaker so a missing or hanging ruby
// binary degrades indexing instead of blocking it.
package rubyenv

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	lsperrors "github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/errors"
)

// probeTimeout bounds each ruby-executable invocation.
const probeTimeout = 5 * time.Second

// Options selects which detectors run and pins the version when the
// user configured one explicitly.
type Options struct {
	// Version is "auto" (or empty) to detect, or "X.Y" to pin.
	Version string

	EnableRbenv      bool
	EnableRvm        bool
	EnableChruby     bool
	EnableSystemRuby bool

	// WorkspaceRoot is where per-project version files (.ruby-version,
	// Gemfile) are looked up.
	WorkspaceRoot string

	// StubsRoot is the directory holding bundled stdlib stubs,
	// <extension-root>/stubs, with one rubystubs<XY> subdirectory per
	// supported minor version.
	StubsRoot string
}

// DefaultOptions enables every detector.
func DefaultOptions(workspaceRoot, stubsRoot string) Options {
	return Options{
		Version:          "auto",
		EnableRbenv:      true,
		EnableRvm:        true,
		EnableChruby:     true,
		EnableSystemRuby: true,
		WorkspaceRoot:    workspaceRoot,
		StubsRoot:        stubsRoot,
	}
}

// Environment is the detected Ruby installation.
type Environment struct {
	// Version is the minor version, "X.Y".
	Version string

	// Source names the detector that produced Version: "config",
	// "rbenv", "rvm", "chruby", or "system".
	Source string

	// LoadPaths is ruby's $LOAD_PATH, when the probe succeeded.
	LoadPaths []string

	// StubsDir is the matching bundled stub directory, when one exists.
	StubsDir string
}

// Detector probes Ruby installations. The breaker trips after repeated
// probe failures so later detections skip the exec entirely.
type Detector struct {
	breaker *lsperrors.CircuitBreaker
	runner  commandRunner
}

// commandRunner abstracts exec for tests.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return exec.CommandContext(ctx, name, args...).Output()
}

// NewDetector builds a Detector with the default exec runner.
func NewDetector() *Detector {
	return &Detector{
		breaker: lsperrors.NewCircuitBreaker("ruby-probe"),
		runner:  execRunner,
	}
}

var versionRe = regexp.MustCompile(`(\d+)\.(\d+)(?:\.\d+)?`)

// Detect resolves the workspace's Ruby environment per opts.
func (d *Detector) Detect(ctx context.Context, opts Options) (*Environment, error) {
	env := &Environment{}

	if opts.Version != "" && opts.Version != "auto" {
		if !versionRe.MatchString(opts.Version) {
			return nil, lsperrors.New(lsperrors.ErrCodeConfigInvalid,
				fmt.Sprintf("rubyVersion %q is not of the form X.Y", opts.Version), nil)
		}
		env.Version = minorOf(opts.Version)
		env.Source = "config"
	} else {
		version, source := d.detectVersion(ctx, opts)
		if version == "" {
			return nil, lsperrors.New(lsperrors.ErrCodeRubyNotFound,
				"no Ruby installation detected by any enabled detector", nil)
		}
		env.Version = version
		env.Source = source
	}

	env.LoadPaths = d.probeLoadPaths(ctx)
	env.StubsDir = stubsDirFor(opts.StubsRoot, env.Version)
	return env, nil
}

// detectVersion runs the enabled detectors in the documented probing
// order and returns the first hit.
func (d *Detector) detectVersion(ctx context.Context, opts Options) (version, source string) {
	if opts.EnableRbenv {
		if v := d.rbenvVersion(ctx, opts.WorkspaceRoot); v != "" {
			return v, "rbenv"
		}
	}
	if opts.EnableRvm {
		if v := d.rvmVersion(ctx); v != "" {
			return v, "rvm"
		}
	}
	if opts.EnableChruby {
		if v := chrubyVersion(opts.WorkspaceRoot); v != "" {
			return v, "chruby"
		}
	}
	if opts.EnableSystemRuby {
		if v := d.systemVersion(ctx); v != "" {
			return v, "system"
		}
	}
	return "", ""
}

// rbenvVersion consults the workspace .ruby-version file first (the
// cheap path), then `rbenv version`.
func (d *Detector) rbenvVersion(ctx context.Context, root string) string {
	if v := versionFileContents(root); v != "" {
		if _, err := exec.LookPath("rbenv"); err == nil {
			return v
		}
	}
	out, err := d.guardedRun(ctx, "rbenv", "version")
	if err != nil {
		return ""
	}
	return minorOf(string(out))
}

// rvmVersion asks `rvm current`.
func (d *Detector) rvmVersion(ctx context.Context) string {
	out, err := d.guardedRun(ctx, "rvm", "current")
	if err != nil {
		return ""
	}
	return minorOf(string(out))
}

// chrubyVersion reads .ruby-version without requiring the chruby shell
// function (chruby has no queryable CLI binary).
func chrubyVersion(root string) string {
	return versionFileContents(root)
}

// systemVersion asks the ruby on PATH.
func (d *Detector) systemVersion(ctx context.Context) string {
	out, err := d.guardedRun(ctx, "ruby", "-e", "puts RUBY_VERSION")
	if err != nil {
		return ""
	}
	return minorOf(string(out))
}

// probeLoadPaths runs `ruby -e 'puts $LOAD_PATH'`, returning nil when
// the probe fails or the breaker is open.
func (d *Detector) probeLoadPaths(ctx context.Context) []string {
	out, err := d.guardedRun(ctx, "ruby", "-e", "puts $LOAD_PATH")
	if err != nil {
		return nil
	}
	var paths []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths
}

// guardedRun executes a probe through the circuit breaker.
func (d *Detector) guardedRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return lsperrors.CircuitExecuteWithResult(d.breaker,
		func() ([]byte, error) {
			return d.runner(ctx, name, args...)
		},
		func() ([]byte, error) {
			return nil, lsperrors.New(lsperrors.ErrCodeRubyNotFound, name+" probe circuit open", nil)
		})
}

// versionFileContents reads root/.ruby-version.
func versionFileContents(root string) string {
	if root == "" {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(root, ".ruby-version"))
	if err != nil {
		return ""
	}
	return minorOf(string(data))
}

// minorOf extracts "X.Y" from any version-bearing string.
func minorOf(s string) string {
	m := versionRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return m[1] + "." + m[2]
}

// stubsDirFor maps a minor version to its bundled stub directory,
// stubs/rubystubs<XY>, falling back to the newest available stub set
// at or below the requested version.
func stubsDirFor(stubsRoot, version string) string {
	if stubsRoot == "" || version == "" {
		return ""
	}
	exact := filepath.Join(stubsRoot, "rubystubs"+strings.ReplaceAll(version, ".", ""))
	if dirExists(exact) {
		return exact
	}

	entries, err := os.ReadDir(stubsRoot)
	if err != nil {
		return ""
	}
	want := stubsKey(version)
	best := ""
	bestKey := -1
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "rubystubs") {
			continue
		}
		key := stubsKeyFromName(e.Name())
		if key < 0 || key > want {
			continue
		}
		if key > bestKey {
			bestKey = key
			best = filepath.Join(stubsRoot, e.Name())
		}
	}
	return best
}

func stubsKey(version string) int {
	parts := strings.SplitN(version, ".", 2)
	if len(parts) != 2 {
		return -1
	}
	major, minor := atoi(parts[0]), atoi(parts[1])
	if major < 0 || minor < 0 {
		return -1
	}
	return major*100 + minor
}

func stubsKeyFromName(name string) int {
	digits := strings.TrimPrefix(name, "rubystubs")
	if len(digits) < 2 {
		return -1
	}
	major := atoi(digits[:1])
	minor := atoi(digits[1:])
	if major < 0 || minor < 0 {
		return -1
	}
	return major*100 + minor
}

func atoi(s string) int {
	n := 0
	if s == "" {
		return -1
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// StubFiles lists the .rb stub sources in env's stub directory.
func (e *Environment) StubFiles() []string {
	if e.StubsDir == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(e.StubsDir, "*.rb"))
	if err != nil {
		return nil
	}
	return matches
}
