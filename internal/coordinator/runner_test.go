package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/config"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/diagnostics"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/fileproc"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/scanner"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/watcher"
)

// recordingPublisher captures published diagnostics per URI.
type recordingPublisher struct {
	mu    sync.Mutex
	byURI map[string][]diagnostics.Diagnostic
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{byURI: make(map[string][]diagnostics.Diagnostic)}
}

func (p *recordingPublisher) PublishDiagnostics(uri string, diags []diagnostics.Diagnostic) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byURI[uri] = diags
}

func (p *recordingPublisher) get(uri string) []diagnostics.Diagnostic {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.byURI[uri]
}

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func buildDeps(t *testing.T, root string, pub diagnostics.Publisher) (Deps, *rubyindex.RubyIndex, *fileproc.Processor) {
	t.Helper()
	idx := rubyindex.NewIndex()
	proc := fileproc.New(idx)
	t.Cleanup(proc.Close)
	sc, err := scanner.New()
	require.NoError(t, err)

	cfg := config.NewConfig()
	cfg.Indexing.Workers = 2
	cfg.Indexing.BatchSize = 2

	return Deps{
		WorkspaceRoot: root,
		Index:         idx,
		Processor:     proc,
		Scanner:       sc,
		Config:        cfg,
		Publisher:     pub,
	}, idx, proc
}

func TestInitialBuildIndexesWorkspace(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "lib/foo.rb", "class Foo\n  def go\n  end\nend\n")
	writeFile(t, root, "lib/bar.rb", "class Bar\n  def run\n    Foo.new\n  end\nend\n")
	writeFile(t, root, "lib/baz.rb", "module Baz\nend\n")

	deps, idx, _ := buildDeps(t, root, nil)
	runner, err := NewInitialBuildRunner(deps)
	require.NoError(t, err)

	res, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Files)
	assert.True(t, runner.IndexingComplete())
	assert.Len(t, idx.FindDefinitions(rubyfqn.Namespace("Foo")), 1)
	assert.Len(t, idx.FindDefinitions(rubyfqn.Namespace("Bar")), 1)
	assert.Len(t, idx.FindDefinitions(rubyfqn.InstanceMethod([]rubyfqn.RubyConstant{"Bar"}, "run")), 1)

	// Bar#run's Foo reference resolved in Phase 2.
	refs := idx.References(rubyfqn.Namespace("Foo"))
	assert.NotEmpty(t, refs)
}

func TestInitialBuildPublishesUnresolvedDiagnostics(t *testing.T) {
	root := t.TempDir()
	path := writeFile(t, root, "lib/a.rb", "x = Missing.new\n")

	pub := newRecordingPublisher()
	deps, _, _ := buildDeps(t, root, pub)
	runner, err := NewInitialBuildRunner(deps)
	require.NoError(t, err)

	res, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Greater(t, res.Unresolved, 0)

	diags := pub.get("file://" + filepath.ToSlash(path))
	require.NotEmpty(t, diags)
	assert.Contains(t, diags[0].Message, "Missing")
}

func TestInitialBuildMixinsResolvedBeforeReferences(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "lib/m.rb", "module Helper\n  def assist\n  end\nend\n")
	writeFile(t, root, "lib/c.rb", "class Client\n  include Helper\nend\n")

	deps, idx, _ := buildDeps(t, root, nil)
	runner, err := NewInitialBuildRunner(deps)
	require.NoError(t, err)

	_, err = runner.Run(context.Background())
	require.NoError(t, err)

	virtual := idx.FindDefinitions(rubyfqn.InstanceMethod([]rubyfqn.RubyConstant{"Client"}, "assist"))
	require.Len(t, virtual, 1)
	assert.Equal(t, rubyindex.OriginIncluded, virtual[0].Origin)
}

func TestInitialBuildCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 20; i++ {
		writeFile(t, root, filepath.Join("lib", string(rune('a'+i))+".rb"), "class X\nend\n")
	}

	deps, _, _ := buildDeps(t, root, nil)
	runner, err := NewInitialBuildRunner(deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = runner.Run(ctx)
	assert.Error(t, err)
}

func TestCoordinatorHandlesDeleteAndCreate(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "lib/a.rb", "x = Bar.new\n")
	barPath := writeFile(t, root, "lib/b.rb", "class Bar\nend\n")

	pub := newRecordingPublisher()
	deps, idx, proc := buildDeps(t, root, pub)
	runner, err := NewInitialBuildRunner(deps)
	require.NoError(t, err)
	_, err = runner.Run(context.Background())
	require.NoError(t, err)

	aURI := "file://" + filepath.ToSlash(filepath.Join(root, "lib/a.rb"))
	assert.Empty(t, pub.get(aURI))

	// Delete b.rb: a.rb's Bar reference becomes unresolved (S5).
	require.NoError(t, os.Remove(barPath))
	coord := NewCoordinator(root, idx, proc, pub)
	coord.HandleEvents(context.Background(), []watcher.FileEvent{
		{Path: "lib/b.rb", Operation: watcher.OpDelete},
	})

	diags := pub.get(aURI)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "Bar")

	// Restore it: the warning clears on the create event.
	writeFile(t, root, "lib/b.rb", "class Bar\nend\n")
	coord.HandleEvents(context.Background(), []watcher.FileEvent{
		{Path: "lib/b.rb", Operation: watcher.OpCreate},
	})
	assert.Empty(t, pub.get(aURI))
}
