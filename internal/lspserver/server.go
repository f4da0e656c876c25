// Package lspserver translates between LSP wire shapes and the query
// engine: a dispatch table keyed by method name, the per-file lifecycle
// handlers, and a Content-Length framed stdio loop. Every request runs
// behind a panic recovery that converts failures to structured LSP
// errors, so one bad AST never kills the server.
package lspserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/coordinator"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/diagnostics"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/docstate"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/fileproc"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/query"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
)

// Version is stamped by the build; the default marks dev builds.
var Version = "dev"

// HandlerFunc handles one LSP method.
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// Notifier sends server-initiated notifications (publishDiagnostics,
// $/progress) to the client. The stdio loop implements it; tests
// substitute a recorder.
type Notifier interface {
	Notify(method string, params any)
}

// Server dispatches LSP traffic.
type Server struct {
	idx    *rubyindex.RubyIndex
	docs   *docstate.Store
	proc   *fileproc.Processor
	engine *query.Engine
	runner *coordinator.InitialBuildRunner

	notifier Notifier
	handlers map[string]HandlerFunc

	mu            sync.Mutex
	initialized   bool
	shuttingDown  bool
	rootPath      string
	progressToken string

	// pendingChanges implements didChange back-pressure: only the
	// latest pending change per URI survives a storm.
	pendingMu      sync.Mutex
	pendingChanges map[string]DidChangeParams
	changeInFlight map[string]bool
}

// Deps wires the server's collaborators.
type Deps struct {
	Index     *rubyindex.RubyIndex
	Docs      *docstate.Store
	Processor *fileproc.Processor
	Engine    *query.Engine
	Runner    *coordinator.InitialBuildRunner
	Notifier  Notifier
}

// NewServer builds a Server and registers its dispatch table.
func NewServer(deps Deps) (*Server, error) {
	if deps.Index == nil || deps.Docs == nil || deps.Processor == nil || deps.Engine == nil {
		return nil, fmt.Errorf("index, docs, processor, and engine are required")
	}

	s := &Server{
		idx:            deps.Index,
		docs:           deps.Docs,
		proc:           deps.Processor,
		engine:         deps.Engine,
		runner:         deps.Runner,
		notifier:       deps.Notifier,
		progressToken:  uuid.NewString(),
		pendingChanges: make(map[string]DidChangeParams),
		changeInFlight: make(map[string]bool),
	}

	s.handlers = map[string]HandlerFunc{
		"initialize":                  s.handleInitialize,
		"initialized":                 s.handleInitialized,
		"shutdown":                    s.handleShutdown,
		"textDocument/didOpen":        s.handleDidOpen,
		"textDocument/didChange":      s.handleDidChange,
		"textDocument/didSave":        s.handleDidSave,
		"textDocument/didClose":       s.handleDidClose,
		"textDocument/definition":     s.handleDefinition,
		"textDocument/references":     s.handleReferences,
		"textDocument/hover":          s.handleHover,
		"textDocument/completion":     s.handleCompletion,
		"textDocument/documentSymbol": s.handleDocumentSymbol,
		"textDocument/inlayHint":      s.handleInlayHint,
		"$/listCommands":              s.handleListCommands,
		"ruby-fast-lsp/debug/stats":   s.handleDebugStats,
	}
	return s, nil
}

// ProgressToken identifies the initial build in $/progress traffic.
func (s *Server) ProgressToken() string {
	return s.progressToken
}

// SetRunner wires the initial-build runner after construction; the
// runner needs the server's publisher and progress reporter, so the two
// are built in sequence.
func (s *Server) SetRunner(r *coordinator.InitialBuildRunner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner = r
}

// Dispatch routes one incoming message, returning the result or error
// for requests (nil, nil for notifications). Panics are recovered and
// reported as internal errors without affecting other requests.
func (s *Server) Dispatch(ctx context.Context, method string, params json.RawMessage) (result any, rpcErr *ResponseError) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("handler panic",
				slog.String("method", method),
				slog.Any("panic", r))
			result = nil
			rpcErr = &ResponseError{Code: CodeInternalError, Message: fmt.Sprintf("internal error in %s", method)}
		}
	}()

	handler, ok := s.handlers[method]
	if !ok {
		// Unknown notifications are ignored per LSP; unknown requests
		// error. The stdio loop distinguishes by presence of an id.
		return nil, &ResponseError{Code: CodeMethodNotFound, Message: method}
	}

	res, err := handler(ctx, params)
	if err != nil {
		return nil, &ResponseError{Code: CodeRequestFailed, Message: err.Error()}
	}
	return res, nil
}

// Methods lists the registered method names, for $/listCommands.
func (s *Server) Methods() []string {
	out := make([]string, 0, len(s.handlers))
	for m := range s.handlers {
		out = append(out, m)
	}
	return out
}

func (s *Server) handleInitialize(ctx context.Context, raw json.RawMessage) (any, error) {
	var params InitializeParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.initialized = true
	if len(params.WorkspaceFolders) > 0 {
		s.rootPath = trimFileScheme(params.WorkspaceFolders[0].URI)
	} else if params.RootURI != "" {
		s.rootPath = trimFileScheme(params.RootURI)
	}
	s.mu.Unlock()

	return InitializeResult{
		Capabilities: ServerCapabilities{
			TextDocumentSync: TextDocumentSyncOptions{
				OpenClose: true,
				Change:    1, // full-document sync
				Save:      true,
			},
			DefinitionProvider: true,
			ReferencesProvider: true,
			HoverProvider:      true,
			CompletionProvider: &CompletionOptions{TriggerCharacters: []string{":", "."}},
			DocumentSymbol:     true,
			InlayHintProvider:  true,
		},
		ServerInfo: ServerInfo{Name: "ruby-fast-lsp", Version: Version},
	}, nil
}

func (s *Server) handleInitialized(ctx context.Context, _ json.RawMessage) (any, error) {
	return nil, nil
}

func (s *Server) handleShutdown(ctx context.Context, _ json.RawMessage) (any, error) {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()
	return nil, nil
}

// ShuttingDown reports whether shutdown was requested; exit after a
// shutdown request is the clean-exit path.
func (s *Server) ShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

// RootPath returns the workspace root from initialize.
func (s *Server) RootPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rootPath
}

func (s *Server) handleListCommands(ctx context.Context, _ json.RawMessage) (any, error) {
	return map[string]any{"commands": s.Methods()}, nil
}

func (s *Server) handleDebugStats(ctx context.Context, _ json.RawMessage) (any, error) {
	stats := s.idx.CollectStats()
	s.mu.Lock()
	runner := s.runner
	s.mu.Unlock()
	complete := true
	if runner != nil {
		complete = runner.IndexingComplete()
	}
	return StatsResult{
		IndexingComplete: complete,
		Definitions:      stats.Definitions,
		References:       stats.References,
		Unresolved:       stats.Unresolved,
		OpenDocuments:    s.docs.Len(),
	}, nil
}

// publishDiagnostics sends one URI's diagnostic set.
func (s *Server) publishDiagnostics(uri string, diags []diagnostics.Diagnostic) {
	if s.notifier == nil {
		return
	}
	wire := make([]Diagnostic, 0, len(diags))
	for _, d := range diags {
		wire = append(wire, toWireDiagnostic(d))
	}
	s.notifier.Notify("textDocument/publishDiagnostics", PublishDiagnosticsParams{
		URI:         uri,
		Diagnostics: wire,
	})
}

// Publisher adapts the server to diagnostics.Publisher for the
// coordinator.
func (s *Server) Publisher() diagnostics.Publisher {
	return diagnostics.PublisherFunc(s.publishDiagnostics)
}

// Progress adapts the server to coordinator.ProgressReporter.
func (s *Server) Progress() coordinator.ProgressReporter {
	return &progressReporter{server: s}
}

type progressReporter struct {
	server *Server
}

func (p *progressReporter) Begin(token, title string) {
	p.server.notifyProgress(token, ProgressValue{Kind: "begin", Title: title})
}

func (p *progressReporter) Report(token, message string, percentage int) {
	p.server.notifyProgress(token, ProgressValue{Kind: "report", Message: message, Percentage: &percentage})
}

func (p *progressReporter) End(token, message string) {
	p.server.notifyProgress(token, ProgressValue{Kind: "end", Message: message})
}

func (s *Server) notifyProgress(token string, value ProgressValue) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify("$/progress", ProgressParams{Token: token, Value: value})
}

func trimFileScheme(uri string) string {
	if len(uri) > 7 && uri[:7] == "file://" {
		return uri[7:]
	}
	return uri
}
