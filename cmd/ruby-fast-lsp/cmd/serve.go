package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/config"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/coordinator"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/daemon"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/docstate"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/fileproc"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/logging"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/lspserver"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/position"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/query"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/query/fuzzysearch"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rettype"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyenv"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyparse"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/scanner"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/store"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/watcher"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/pkg/version"
)

func newServeCmd() *cobra.Command {
	var workspace string
	var stubsRoot string
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the LSP server over stdio",
		Long: `Runs the language server on stdin/stdout for an editor client.
stdout is reserved exclusively for JSON-RPC framing; logs go to
~/.ruby-fast-lsp/logs/server.log.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := runServe(cmd.Context(), workspace, stubsRoot, noWatch)
			exitCode = code
			return err
		},
	}

	cmd.Flags().StringVar(&workspace, "workspace", "", "Workspace root (default: current working directory; initialize's workspace folders are not used)")
	cmd.Flags().StringVar(&stubsRoot, "stubs", "", "Stub directory root (default: <executable-dir>/stubs)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Disable the filesystem watcher")
	return cmd
}

func runServe(ctx context.Context, workspace, stubsRoot string, noWatch bool) (int, error) {
	// stdio mode: stdout carries JSON-RPC only, logging goes to file.
	level := "info"
	if debugMode {
		level = "debug"
	}
	cleanup, err := logging.SetupStdioModeWithLevel(level)
	if err != nil {
		return 1, err
	}
	defer cleanup()

	if workspace == "" {
		workspace, _ = os.Getwd()
	}
	if stubsRoot == "" {
		if exe, exeErr := os.Executable(); exeErr == nil {
			stubsRoot = filepath.Join(filepath.Dir(exe), "stubs")
		}
	}

	cfg, err := config.Load(workspace)
	if err != nil {
		return 1, err
	}

	lock := daemon.NewInstanceLock(daemon.DataDir(workspace))
	if err := lock.TryAcquire(); err != nil {
		return 1, err
	}
	defer func() { _ = lock.Release() }()

	idx := rubyindex.NewIndex()
	docs := docstate.NewStore()
	proc := fileproc.New(idx)
	defer proc.Close()

	fuzzy, err := fuzzysearch.New()
	if err != nil {
		return 1, err
	}
	defer fuzzy.Close()

	inferrer := rettype.New(idx, &diskBodies{docs: docs})
	engine := query.New(idx, docs, inferrer, query.WithFuzzyFallback(fuzzy))
	defer engine.Close()

	sc, err := scanner.New()
	if err != nil {
		return 1, err
	}

	env := detectRubyEnv(ctx, cfg, workspace, stubsRoot)

	lspserver.Version = version.Version
	server, err := lspserver.NewServer(lspserver.Deps{
		Index:     idx,
		Docs:      docs,
		Processor: proc,
		Engine:    engine,
	})
	if err != nil {
		return 1, err
	}

	runner, err := coordinator.NewInitialBuildRunner(coordinator.Deps{
		WorkspaceRoot: workspace,
		Index:         idx,
		Processor:     proc,
		Scanner:       sc,
		Config:        cfg,
		RubyEnv:       env,
		Publisher:     server.Publisher(),
		Progress:      server.Progress(),
		ProgressToken: server.ProgressToken(),
	})
	if err != nil {
		return 1, err
	}
	server.SetRunner(runner)

	conn := lspserver.NewStdioConn(server, os.Stdin, os.Stdout)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	// The initial build runs in the background; queries answer from the
	// partial index until Phase 2 completes.
	go func() {
		if _, buildErr := runner.Run(ctx); buildErr != nil && ctx.Err() == nil {
			slog.Error("initial build failed", slog.String("error", buildErr.Error()))
		}
		seedFuzzy(idx, fuzzy)
		persistDefinitions(ctx, workspace, env, idx)
	}()

	if !noWatch {
		startWatcher(ctx, workspace, idx, proc, server)
	}

	code := conn.Run(ctx)
	return code, nil
}

// detectRubyEnv runs version detection per the config toggles; failure
// degrades to project-only indexing.
func detectRubyEnv(ctx context.Context, cfg *config.Config, workspace, stubsRoot string) *rubyenv.Environment {
	detector := rubyenv.NewDetector()
	env, err := detector.Detect(ctx, rubyenv.Options{
		Version:          cfg.RubyVersion,
		EnableRbenv:      cfg.VersionDetection.EnableRbenv,
		EnableRvm:        cfg.VersionDetection.EnableRvm,
		EnableChruby:     cfg.VersionDetection.EnableChruby,
		EnableSystemRuby: cfg.VersionDetection.EnableSystemRuby,
		WorkspaceRoot:    workspace,
		StubsRoot:        stubsRoot,
	})
	if err != nil {
		slog.Warn("ruby detection failed; indexing project files only",
			slog.String("error", err.Error()))
		return nil
	}
	slog.Info("detected ruby",
		slog.String("version", env.Version),
		slog.String("source", env.Source),
		slog.String("stubs", env.StubsDir))
	return env
}

// seedFuzzy loads the built index's symbols into the bleve engine.
func seedFuzzy(idx *rubyindex.RubyIndex, fuzzy *fuzzysearch.Engine) {
	for _, entry := range idx.EntriesWithNamePrefix("") {
		if entry.IsVirtual() {
			continue
		}
		_ = fuzzy.Index(entry.FQN.String(), entry.Kind.String())
	}
}

// persistDefinitions caches stdlib stub definitions for the next
// startup.
func persistDefinitions(ctx context.Context, workspace string, env *rubyenv.Environment, idx *rubyindex.RubyIndex) {
	if env == nil || env.StubsDir == "" {
		return
	}
	st, err := store.Open(filepath.Join(daemon.DataDir(workspace), "defs.db"))
	if err != nil {
		slog.Warn("definitions cache unavailable", slog.String("error", err.Error()))
		return
	}
	defer st.Close()

	for _, stub := range env.StubFiles() {
		uri := "file://" + filepath.ToSlash(stub)
		entries := idx.EntriesForURI(uri)
		if len(entries) == 0 {
			continue
		}
		recs := make([]store.DefRecord, 0, len(entries))
		for _, e := range entries {
			recs = append(recs, store.DefRecord{
				FQN:        e.FQN.String(),
				FQNKind:    int(e.FQN.Kind),
				EntryKind:  int(e.Kind),
				URI:        e.Location.URI,
				StartLine:  e.Location.Range.Start.Line,
				StartCol:   e.Location.Range.Start.Column,
				EndLine:    e.Location.Range.End.Line,
				EndCol:     e.Location.Range.End.Column,
				Owner:      e.Owner.String(),
				MethodKind: int(e.MethodKind),
				Visibility: int(e.Visibility),
			})
		}
		key := "stdlib:" + env.Version + ":" + filepath.Base(stub)
		if err := st.SaveDefinitions(ctx, key, recs); err != nil {
			slog.Warn("definitions cache write failed",
				slog.String("set", key), slog.String("error", err.Error()))
			return
		}
	}
}

// startWatcher feeds filesystem events into the incremental
// coordinator.
func startWatcher(ctx context.Context, workspace string, idx *rubyindex.RubyIndex, proc *fileproc.Processor, server *lspserver.Server) {
	w := watcher.NewFSWatcher(watcher.Options{})
	if err := w.Start(ctx, workspace); err != nil {
		slog.Warn("watcher unavailable", slog.String("error", err.Error()))
		return
	}

	coord := coordinator.NewCoordinator(workspace, idx, proc, server.Publisher())
	go func() {
		defer func() { _ = w.Stop() }()
		for {
			select {
			case <-ctx.Done():
				return
			case batch, ok := <-w.Events():
				if !ok {
					return
				}
				coord.HandleEvents(ctx, batch)
			case err, ok := <-w.Errors():
				if !ok {
					return
				}
				slog.Warn("watcher error", slog.String("error", err.Error()))
			}
		}
	}()
}

// diskBodies resolves method bodies for return-type inference: an open
// document's buffer wins, falling back to the file on disk for closed
// files (gem and stdlib sources are rarely open in the editor).
type diskBodies struct {
	docs *docstate.Store
}

func (b *diskBodies) MethodBody(entry rubyindex.Entry) (*rubyparse.Node, []byte, bool) {
	var content string
	if doc, open := b.docs.Get(entry.Location.URI); open {
		content, _ = doc.Content()
	} else {
		path := strings.TrimPrefix(entry.Location.URI, "file://")
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, false
		}
		content = string(data)
	}

	parser := rubyparse.NewParser()
	defer parser.Close()
	tree, err := parser.Parse(context.Background(), []byte(content))
	if err != nil {
		return nil, nil, false
	}

	// Locate the def whose name node starts where the entry says it
	// does.
	mapper := position.NewMapper(content)
	wantStart := uint32(mapper.PositionToOffset(entry.Location.Range.Start))

	var found *rubyparse.Node
	tree.Root.Walk(func(n *rubyparse.Node) bool {
		if found != nil {
			return false
		}
		if n.Type != "method" && n.Type != "singleton_method" {
			return true
		}
		for _, c := range n.Children {
			switch c.Type {
			case "identifier", "operator", "setter":
				if c.StartByte == wantStart {
					found = n
					return false
				}
			}
		}
		return true
	})
	if found == nil {
		return nil, nil, false
	}
	return found.FindChildByType("body_statement"), tree.Source, true
}
