package lspserver

import (
	"context"
	"encoding/json"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/query"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
)

func (s *Server) handleDefinition(ctx context.Context, raw json.RawMessage) (any, error) {
	var params TextDocumentPositionParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}

	locs, err := s.engine.Definition(ctx, params.TextDocument.URI, fromWirePosition(params.Position))
	if err != nil {
		return nil, err
	}
	return toWireLocations(locs), nil
}

func (s *Server) handleReferences(ctx context.Context, raw json.RawMessage) (any, error) {
	var params ReferenceParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}

	locs, err := s.engine.References(ctx, params.TextDocument.URI,
		fromWirePosition(params.Position), params.Context.IncludeDeclaration)
	if err != nil {
		return nil, err
	}
	return toWireLocations(locs), nil
}

func (s *Server) handleHover(ctx context.Context, raw json.RawMessage) (any, error) {
	var params TextDocumentPositionParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}

	res, err := s.engine.Hover(ctx, params.TextDocument.URI, fromWirePosition(params.Position))
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return Hover{Contents: MarkupContent{Kind: "markdown", Value: res.Markdown}}, nil
}

func (s *Server) handleCompletion(ctx context.Context, raw json.RawMessage) (any, error) {
	var params CompletionParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}

	items, err := s.engine.Complete(ctx, params.TextDocument.URI, fromWirePosition(params.Position))
	if err != nil {
		return nil, err
	}

	out := make([]CompletionItem, 0, len(items))
	for _, it := range items {
		out = append(out, CompletionItem{
			Label:  it.Label,
			Detail: it.Detail,
			Kind:   completionKindFor(it.Kind),
		})
	}
	return out, nil
}

func (s *Server) handleDocumentSymbol(ctx context.Context, raw json.RawMessage) (any, error) {
	var params DocumentSymbolParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}
	return toWireSymbols(s.engine.DocumentSymbols(params.TextDocument.URI)), nil
}

func (s *Server) handleInlayHint(ctx context.Context, raw json.RawMessage) (any, error) {
	var params InlayHintParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, err
	}

	hints, err := s.engine.InlayHints(ctx, params.TextDocument.URI, fromWireRange(params.Range))
	if err != nil {
		return nil, err
	}

	out := make([]InlayHint, 0, len(hints))
	for _, h := range hints {
		out = append(out, InlayHint{
			Position:    toWirePosition(h.Position),
			Label:       h.Label,
			Kind:        int(h.Kind),
			PaddingLeft: h.PaddingLeft,
		})
	}
	return out, nil
}

func toWireLocations(locs []rubyindex.Location) []Location {
	out := make([]Location, 0, len(locs))
	for _, l := range locs {
		out = append(out, toWireLocation(l))
	}
	return out
}

func toWireSymbols(syms []query.Symbol) []DocumentSymbol {
	out := make([]DocumentSymbol, 0, len(syms))
	for _, sym := range syms {
		out = append(out, DocumentSymbol{
			Name:           sym.Name,
			Detail:         sym.Detail,
			Kind:           symbolKindFor(sym.Kind),
			Range:          toWireRange(sym.Range),
			SelectionRange: toWireRange(sym.Range),
			Children:       toWireSymbols(sym.Children),
		})
	}
	return out
}

func completionKindFor(kind rubyindex.EntryKind) int {
	switch kind {
	case rubyindex.KindClass:
		return CompletionKindClass
	case rubyindex.KindModule:
		return CompletionKindModule
	case rubyindex.KindConstant:
		return CompletionKindConstant
	case rubyindex.KindMethod:
		return CompletionKindMethod
	default:
		return CompletionKindVariable
	}
}

func symbolKindFor(kind rubyindex.EntryKind) int {
	switch kind {
	case rubyindex.KindClass:
		return SymbolKindClass
	case rubyindex.KindModule:
		return SymbolKindModule
	case rubyindex.KindMethod:
		return SymbolKindMethod
	case rubyindex.KindConstant:
		return SymbolKindConstant
	default:
		return SymbolKindVariable
	}
}
