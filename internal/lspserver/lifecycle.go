package lspserver

import (
	"context"
	"encoding/json"
	"os"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/diagnostics"
	lsperrors "github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/errors"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/fileproc"
)

// handleDidOpen creates or refreshes the document, runs the full
// processing pass (mixins included), and publishes diagnostics for the
// file and everything it affected.
func (s *Server) handleDidOpen(ctx context.Context, raw json.RawMessage) (any, error) {
	var params DidOpenParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	td := params.TextDocument

	s.docs.Open(td.URI, td.Text, td.Version, td.LanguageID)
	s.processAndPublish(ctx, td.URI, td.Text, fileproc.Options{
		IndexDefinitions: true,
		IndexReferences:  true,
		ResolveMixins:    true,
		IncludeLocalVars: true,
	})
	return nil, nil
}

// handleDidChange replaces the document content with the last change's
// text (full sync) and schedules a fast re-process that skips mixin
// resolution. Storms collapse: only the latest pending change per URI
// is processed.
func (s *Server) handleDidChange(ctx context.Context, raw json.RawMessage) (any, error) {
	var params DidChangeParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	if len(params.ContentChanges) == 0 {
		return nil, nil
	}

	uri := params.TextDocument.URI

	s.pendingMu.Lock()
	s.pendingChanges[uri] = params
	alreadyRunning := s.changeInFlight[uri]
	if !alreadyRunning {
		s.changeInFlight[uri] = true
	}
	s.pendingMu.Unlock()

	if !alreadyRunning {
		go s.drainChanges(context.WithoutCancel(ctx), uri)
	}
	return nil, nil
}

// drainChanges processes the latest pending change for uri, looping
// while newer changes keep arriving.
func (s *Server) drainChanges(ctx context.Context, uri string) {
	for {
		s.pendingMu.Lock()
		params, ok := s.pendingChanges[uri]
		if !ok {
			s.changeInFlight[uri] = false
			s.pendingMu.Unlock()
			return
		}
		delete(s.pendingChanges, uri)
		s.pendingMu.Unlock()

		// Full-document sync: the last change wins wholesale.
		text := params.ContentChanges[len(params.ContentChanges)-1].Text

		if doc, open := s.docs.Get(uri); open {
			doc.Replace(text, params.TextDocument.Version)
		} else {
			s.docs.Open(uri, text, params.TextDocument.Version, "ruby")
		}

		// Fast path: no mixin resolution on every keystroke.
		s.processAndPublish(ctx, uri, text, fileproc.Options{
			IndexDefinitions: true,
			IndexReferences:  true,
			IncludeLocalVars: true,
		})
	}
}

// handleDidSave re-processes with mixin resolution restored.
func (s *Server) handleDidSave(ctx context.Context, raw json.RawMessage) (any, error) {
	var params DidSaveParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	uri := params.TextDocument.URI

	var text string
	if params.Text != nil {
		text = *params.Text
		if doc, open := s.docs.Get(uri); open {
			content, version := doc.Content()
			if content != text {
				doc.Replace(text, version)
			}
		}
	} else if doc, open := s.docs.Get(uri); open {
		text, _ = doc.Content()
	} else {
		return nil, nil
	}

	s.processAndPublish(ctx, uri, text, fileproc.Options{
		IndexDefinitions: true,
		IndexReferences:  true,
		ResolveMixins:    true,
		IncludeLocalVars: true,
	})
	return nil, nil
}

// handleDidClose drops the document but keeps its index entries, so
// cross-file diagnostics stay valid; its own unresolved diagnostics
// remain visible for the same reason.
func (s *Server) handleDidClose(ctx context.Context, raw json.RawMessage) (any, error) {
	var params DidCloseParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	uri := params.TextDocument.URI

	s.pendingMu.Lock()
	delete(s.pendingChanges, uri)
	s.pendingMu.Unlock()

	s.docs.Close(uri)
	s.publishDiagnostics(uri, diagnostics.ForURI(s.idx, uri))
	return nil, nil
}

// processAndPublish runs the file processor and publishes the file's
// own diagnostics plus those of every affected URI.
func (s *Server) processAndPublish(ctx context.Context, uri, text string, opts fileproc.Options) {
	res, err := s.proc.Process(ctx, uri, text, opts)
	if err != nil {
		// Typed errors become a single bad-request diagnostic; prior
		// index state for the file is preserved by the processor.
		if lsperrors.Code(err) == lsperrors.ErrCodeOversizedInput {
			s.publishDiagnostics(uri, []diagnostics.Diagnostic{diagnostics.Oversized(err.Error())})
		}
		return
	}

	if doc, open := s.docs.Get(uri); open {
		if res.Tree != nil {
			doc.SetCachedTree(res.Tree)
		}
		for _, lv := range res.LocalVars {
			doc.SetLocalVariables(lv.Scope, append(doc.LocalVariables(lv.Scope), lv))
		}
	}

	s.publishDiagnostics(uri, res.Diagnostics)
	s.reprocessAffected(ctx, res.AffectedURIs)
}

// reprocessAffected re-runs the references pass for files whose
// diagnostics this change may have flipped (a warning clears when its
// constant gained a definition, or appears when one was lost), then
// publishes their fresh sets. Open documents supply their buffer
// contents; closed files are read from disk.
func (s *Server) reprocessAffected(ctx context.Context, uris []string) {
	for _, affected := range uris {
		var text string
		if doc, open := s.docs.Get(affected); open {
			text, _ = doc.Content()
		} else if data, err := os.ReadFile(trimFileScheme(affected)); err == nil {
			text = string(data)
		} else {
			continue
		}

		res, err := s.proc.Process(ctx, affected, text, fileproc.Options{IndexReferences: true})
		if err != nil {
			continue
		}
		s.publishDiagnostics(affected, res.Diagnostics)
	}
}
