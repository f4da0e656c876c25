package lspserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/docstate"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/fileproc"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/query"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rettype"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
)

// recordingNotifier captures notifications.
type recordingNotifier struct {
	mu            sync.Mutex
	notifications []struct {
		Method string
		Params any
	}
}

func (n *recordingNotifier) Notify(method string, params any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, struct {
		Method string
		Params any
	}{method, params})
}

func (n *recordingNotifier) diagnosticsFor(uri string) ([]Diagnostic, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.notifications) - 1; i >= 0; i-- {
		if n.notifications[i].Method != "textDocument/publishDiagnostics" {
			continue
		}
		p := n.notifications[i].Params.(PublishDiagnosticsParams)
		if p.URI == uri {
			return p.Diagnostics, true
		}
	}
	return nil, false
}

func newTestServer(t *testing.T) (*Server, *recordingNotifier) {
	t.Helper()
	idx := rubyindex.NewIndex()
	docs := docstate.NewStore()
	proc := fileproc.New(idx)
	t.Cleanup(proc.Close)

	engine := query.New(idx, docs, rettype.New(idx, nil))
	t.Cleanup(engine.Close)

	notifier := &recordingNotifier{}
	server, err := NewServer(Deps{
		Index:     idx,
		Docs:      docs,
		Processor: proc,
		Engine:    engine,
		Notifier:  notifier,
	})
	require.NoError(t, err)
	return server, notifier
}

func dispatch(t *testing.T, s *Server, method string, params any) any {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	result, rpcErr := s.Dispatch(context.Background(), method, raw)
	require.Nil(t, rpcErr, "unexpected rpc error: %+v", rpcErr)
	return result
}

func TestInitializeAdvertisesCapabilities(t *testing.T) {
	s, _ := newTestServer(t)

	result := dispatch(t, s, "initialize", InitializeParams{RootURI: "file:///ws"})
	init, ok := result.(InitializeResult)
	require.True(t, ok)

	assert.True(t, init.Capabilities.DefinitionProvider)
	assert.True(t, init.Capabilities.ReferencesProvider)
	assert.True(t, init.Capabilities.HoverProvider)
	assert.True(t, init.Capabilities.InlayHintProvider)
	assert.Equal(t, 1, init.Capabilities.TextDocumentSync.Change)
	assert.Equal(t, "/ws", s.RootPath())
}

func TestDidOpenPublishesDiagnostics(t *testing.T) {
	s, n := newTestServer(t)

	dispatch(t, s, "textDocument/didOpen", DidOpenParams{TextDocument: TextDocumentItem{
		URI: "file:///a.rb", LanguageID: "ruby", Version: 1,
		Text: "x = Missing.new\n",
	}})

	diags, ok := n.diagnosticsFor("file:///a.rb")
	require.True(t, ok)
	require.Len(t, diags, 1)
	assert.Contains(t, diags[0].Message, "Missing")
	assert.Equal(t, int(2), diags[0].Severity) // warning
}

func TestCrossFileDiagnosticClears(t *testing.T) {
	s, n := newTestServer(t)

	dispatch(t, s, "textDocument/didOpen", DidOpenParams{TextDocument: TextDocumentItem{
		URI: "file:///a.rb", LanguageID: "ruby", Version: 1, Text: "x = Bar.new\n",
	}})
	diags, _ := n.diagnosticsFor("file:///a.rb")
	require.Len(t, diags, 1)

	// Opening the defining file clears a.rb's warning.
	dispatch(t, s, "textDocument/didOpen", DidOpenParams{TextDocument: TextDocumentItem{
		URI: "file:///b.rb", LanguageID: "ruby", Version: 1, Text: "class Bar\nend\n",
	}})
	diags, ok := n.diagnosticsFor("file:///a.rb")
	require.True(t, ok)
	assert.Empty(t, diags)
}

func TestDidChangeDropsStaleChanges(t *testing.T) {
	s, _ := newTestServer(t)

	dispatch(t, s, "textDocument/didOpen", DidOpenParams{TextDocument: TextDocumentItem{
		URI: "file:///c.rb", LanguageID: "ruby", Version: 1, Text: "class A\nend\n",
	}})

	// Storm of changes; only the latest must land.
	for v := int64(2); v <= 20; v++ {
		dispatch(t, s, "textDocument/didChange", DidChangeParams{
			TextDocument: VersionedTextDocumentIdentifier{URI: "file:///c.rb", Version: v},
			ContentChanges: []TextDocumentContentChangeEvent{
				{Text: fmt.Sprintf("class A%d\nend\n", v)},
			},
		})
	}

	require.Eventually(t, func() bool {
		doc, ok := s.docs.Get("file:///c.rb")
		if !ok {
			return false
		}
		content, version := doc.Content()
		return version == 20 && strings.Contains(content, "A20")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDefinitionRequest(t *testing.T) {
	s, _ := newTestServer(t)

	dispatch(t, s, "textDocument/didOpen", DidOpenParams{TextDocument: TextDocumentItem{
		URI: "file:///bar.rb", LanguageID: "ruby", Version: 1, Text: "class Bar\nend\n",
	}})
	dispatch(t, s, "textDocument/didOpen", DidOpenParams{TextDocument: TextDocumentItem{
		URI: "file:///use.rb", LanguageID: "ruby", Version: 1, Text: "x = Bar.new\n",
	}})

	result := dispatch(t, s, "textDocument/definition", TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: "file:///use.rb"},
		Position:     Position{Line: 0, Character: 5},
	})
	locs, ok := result.([]Location)
	require.True(t, ok)
	require.Len(t, locs, 1)
	assert.Equal(t, "file:///bar.rb", locs[0].URI)
}

func TestShutdownAndStats(t *testing.T) {
	s, _ := newTestServer(t)

	dispatch(t, s, "textDocument/didOpen", DidOpenParams{TextDocument: TextDocumentItem{
		URI: "file:///a.rb", LanguageID: "ruby", Version: 1, Text: "class A\nend\n",
	}})

	result := dispatch(t, s, "ruby-fast-lsp/debug/stats", struct{}{})
	stats, ok := result.(StatsResult)
	require.True(t, ok)
	assert.True(t, stats.IndexingComplete) // no runner wired: trivially complete
	assert.Equal(t, 1, stats.OpenDocuments)
	assert.Greater(t, stats.Definitions, 0)

	assert.False(t, s.ShuttingDown())
	dispatch(t, s, "shutdown", struct{}{})
	assert.True(t, s.ShuttingDown())
}

func TestListCommands(t *testing.T) {
	s, _ := newTestServer(t)
	result := dispatch(t, s, "$/listCommands", struct{}{})
	m, ok := result.(map[string]any)
	require.True(t, ok)
	cmds, ok := m["commands"].([]string)
	require.True(t, ok)
	assert.Contains(t, cmds, "textDocument/definition")
	assert.Contains(t, cmds, "ruby-fast-lsp/debug/stats")
}

func TestUnknownMethod(t *testing.T) {
	s, _ := newTestServer(t)
	_, rpcErr := s.Dispatch(context.Background(), "textDocument/unknown", nil)
	require.NotNil(t, rpcErr)
	assert.Equal(t, CodeMethodNotFound, rpcErr.Code)
}

func TestStdioFraming(t *testing.T) {
	s, _ := newTestServer(t)

	var input bytes.Buffer
	writeFramed := func(body string) {
		fmt.Fprintf(&input, "Content-Length: %d\r\n\r\n%s", len(body), body)
	}
	writeFramed(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	writeFramed(`{"jsonrpc":"2.0","method":"shutdown","id":2}`)
	writeFramed(`{"jsonrpc":"2.0","method":"exit"}`)

	var output bytes.Buffer
	conn := NewStdioConn(s, &input, &output)
	code := conn.Run(context.Background())
	assert.Equal(t, ExitClean, code)

	// Both requests got framed replies.
	replies := readAllFramed(t, &output)
	assert.GreaterOrEqual(t, len(replies), 2)
}

func TestStdioExitWithoutShutdownIsError(t *testing.T) {
	s, _ := newTestServer(t)

	var input bytes.Buffer
	body := `{"jsonrpc":"2.0","method":"exit"}`
	fmt.Fprintf(&input, "Content-Length: %d\r\n\r\n%s", len(body), body)

	conn := NewStdioConn(s, &input, io.Discard)
	assert.Equal(t, ExitError, conn.Run(context.Background()))
}

func readAllFramed(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	data := buf.String()
	for {
		i := strings.Index(data, "\r\n\r\n")
		if i < 0 {
			break
		}
		header := data[:i]
		var length int
		for _, line := range strings.Split(header, "\r\n") {
			if n, ok := strings.CutPrefix(line, "Content-Length: "); ok {
				fmt.Sscanf(n, "%d", &length)
			}
		}
		body := data[i+4 : i+4+length]
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &m))
		out = append(out, m)
		data = data[i+4+length:]
	}
	return out
}
