package lspserver

import (
	"encoding/json"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/diagnostics"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
)

// JSON-RPC 2.0 envelope. The wire framing itself lives in stdio.go;
// everything here is the payload shapes the handlers exchange.
type Message struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  any              `json:"result,omitempty"`
	Error   *ResponseError   `json:"error,omitempty"`
}

// ResponseError is the JSON-RPC error member.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JSON-RPC / LSP error codes used by this server.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
	CodeRequestFailed  = -32803
)

// Position is the LSP wire position: 0-based line and UTF-16 character.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range is an LSP range.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location is an LSP location.
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// TextDocumentIdentifier names a document.
type TextDocumentIdentifier struct {
	URI string `json:"uri"`
}

// VersionedTextDocumentIdentifier adds the version.
type VersionedTextDocumentIdentifier struct {
	URI     string `json:"uri"`
	Version int64  `json:"version"`
}

// TextDocumentItem is the didOpen payload's document.
type TextDocumentItem struct {
	URI        string `json:"uri"`
	LanguageID string `json:"languageId"`
	Version    int64  `json:"version"`
	Text       string `json:"text"`
}

// TextDocumentPositionParams is the shared (document, position) input.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// DidOpenParams is textDocument/didOpen.
type DidOpenParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// DidChangeParams is textDocument/didChange; this server negotiates
// full-document sync, so each change carries the whole text.
type DidChangeParams struct {
	TextDocument   VersionedTextDocumentIdentifier  `json:"textDocument"`
	ContentChanges []TextDocumentContentChangeEvent `json:"contentChanges"`
}

// TextDocumentContentChangeEvent carries one change; with full sync the
// Range is absent and Text is the entire document.
type TextDocumentContentChangeEvent struct {
	Range *Range `json:"range,omitempty"`
	Text  string `json:"text"`
}

// DidSaveParams is textDocument/didSave.
type DidSaveParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Text         *string                `json:"text,omitempty"`
}

// DidCloseParams is textDocument/didClose.
type DidCloseParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// ReferenceParams adds the includeDeclaration flag.
type ReferenceParams struct {
	TextDocumentPositionParams
	Context ReferenceContext `json:"context"`
}

// ReferenceContext is the references request context.
type ReferenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

// CompletionParams is textDocument/completion's input.
type CompletionParams struct {
	TextDocumentPositionParams
}

// CompletionItem is one completion result on the wire.
type CompletionItem struct {
	Label  string `json:"label"`
	Kind   int    `json:"kind,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// LSP CompletionItemKind values this server emits.
const (
	CompletionKindMethod   = 2
	CompletionKindClass    = 7
	CompletionKindModule   = 9
	CompletionKindConstant = 21
	CompletionKindVariable = 6
)

// Hover is the hover response.
type Hover struct {
	Contents MarkupContent `json:"contents"`
}

// MarkupContent is LSP markup.
type MarkupContent struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// DocumentSymbolParams is textDocument/documentSymbol's input.
type DocumentSymbolParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// DocumentSymbol is the hierarchical symbol response.
type DocumentSymbol struct {
	Name           string           `json:"name"`
	Detail         string           `json:"detail,omitempty"`
	Kind           int              `json:"kind"`
	Range          Range            `json:"range"`
	SelectionRange Range            `json:"selectionRange"`
	Children       []DocumentSymbol `json:"children,omitempty"`
}

// LSP SymbolKind values this server emits.
const (
	SymbolKindModule   = 2
	SymbolKindClass    = 5
	SymbolKindMethod   = 6
	SymbolKindConstant = 14
	SymbolKindVariable = 13
)

// InlayHintParams is textDocument/inlayHint's input.
type InlayHintParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Range        Range                  `json:"range"`
}

// InlayHint is one hint on the wire.
type InlayHint struct {
	Position    Position `json:"position"`
	Label       string   `json:"label"`
	Kind        int      `json:"kind,omitempty"`
	PaddingLeft bool     `json:"paddingLeft,omitempty"`
}

// Diagnostic is the published diagnostic shape.
type Diagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity,omitempty"`
	Code     string `json:"code,omitempty"`
	Source   string `json:"source,omitempty"`
	Message  string `json:"message"`
}

// PublishDiagnosticsParams is the publishDiagnostics notification body.
type PublishDiagnosticsParams struct {
	URI         string       `json:"uri"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// InitializeParams is the subset of initialize this server reads.
type InitializeParams struct {
	ProcessID        *int              `json:"processId"`
	RootURI          string            `json:"rootUri,omitempty"`
	WorkspaceFolders []WorkspaceFolder `json:"workspaceFolders,omitempty"`
	Capabilities     json.RawMessage   `json:"capabilities,omitempty"`
}

// WorkspaceFolder is one workspace root.
type WorkspaceFolder struct {
	URI  string `json:"uri"`
	Name string `json:"name"`
}

// InitializeResult advertises server capabilities.
type InitializeResult struct {
	Capabilities ServerCapabilities `json:"capabilities"`
	ServerInfo   ServerInfo         `json:"serverInfo"`
}

// ServerInfo names the server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities is the advertised capability set.
type ServerCapabilities struct {
	TextDocumentSync   TextDocumentSyncOptions `json:"textDocumentSync"`
	DefinitionProvider bool                    `json:"definitionProvider"`
	ReferencesProvider bool                    `json:"referencesProvider"`
	HoverProvider      bool                    `json:"hoverProvider"`
	CompletionProvider *CompletionOptions      `json:"completionProvider,omitempty"`
	DocumentSymbol     bool                    `json:"documentSymbolProvider"`
	InlayHintProvider  bool                    `json:"inlayHintProvider"`
}

// TextDocumentSyncOptions: this server uses full sync.
type TextDocumentSyncOptions struct {
	OpenClose bool `json:"openClose"`
	Change    int  `json:"change"` // 1 = full
	Save      bool `json:"save"`
}

// CompletionOptions configures completion triggering.
type CompletionOptions struct {
	TriggerCharacters []string `json:"triggerCharacters,omitempty"`
}

// ProgressParams is the $/progress notification body.
type ProgressParams struct {
	Token string        `json:"token"`
	Value ProgressValue `json:"value"`
}

// ProgressValue is the begin/report/end value union.
type ProgressValue struct {
	Kind       string `json:"kind"` // "begin", "report", "end"
	Title      string `json:"title,omitempty"`
	Message    string `json:"message,omitempty"`
	Percentage *int   `json:"percentage,omitempty"`
}

// StatsResult is the ruby-fast-lsp/debug/stats response.
type StatsResult struct {
	IndexingComplete bool `json:"indexing_complete"`
	Definitions      int  `json:"definitions"`
	References       int  `json:"references"`
	Unresolved       int  `json:"unresolved"`
	OpenDocuments    int  `json:"open_documents"`
}

// fromWirePosition converts an LSP position to the internal form.
func fromWirePosition(p Position) rubyindex.Position {
	return rubyindex.Position{Line: p.Line, Column: p.Character}
}

// toWirePosition converts an internal position to the LSP form.
func toWirePosition(p rubyindex.Position) Position {
	return Position{Line: p.Line, Character: p.Column}
}

func toWireRange(r rubyindex.Range) Range {
	return Range{Start: toWirePosition(r.Start), End: toWirePosition(r.End)}
}

func fromWireRange(r Range) rubyindex.Range {
	return rubyindex.Range{Start: fromWirePosition(r.Start), End: fromWirePosition(r.End)}
}

func toWireLocation(l rubyindex.Location) Location {
	return Location{URI: l.URI, Range: toWireRange(l.Range)}
}

func toWireDiagnostic(d diagnostics.Diagnostic) Diagnostic {
	return Diagnostic{
		Range:    toWireRange(d.Range),
		Severity: int(d.Severity),
		Code:     d.Code,
		Source:   d.Source,
		Message:  d.Message,
	}
}
