package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyparse"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubytype"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/typetrack"
)

// HoverResult is a rendered Markdown string plus the narrowed type when
// one is known.
type HoverResult struct {
	Markdown string
	Type     *rubytype.Type
}

// Hover renders hover content for the identifier at (uri, pos).
func (e *Engine) Hover(ctx context.Context, uri string, pos rubyindex.Position) (*HoverResult, error) {
	dc, err := e.contextAt(ctx, uri, pos)
	if err != nil {
		return nil, err
	}

	target := dc.target()
	if target == nil {
		return nil, nil
	}

	switch target.Type {
	case "constant", "scope_resolution":
		return e.hoverConstant(dc, target), nil
	case "identifier":
		return e.hoverIdentifier(dc, target), nil
	case "instance_variable", "class_variable", "global_variable":
		return e.hoverVariableEntry(dc, target), nil
	default:
		return nil, nil
	}
}

func (e *Engine) hoverConstant(dc *docContext, target *rubyparse.Node) *HoverResult {
	node := target
	if parent := dc.ancestor(1); parent != nil && parent.Type == "scope_resolution" {
		node = parent
	}
	name := strings.TrimSpace(node.Content(dc.source))
	defs := e.idx.Resolve(name, dc.enclosingScopes())
	if len(defs) == 0 {
		return nil
	}

	entry := defs[0]
	var b strings.Builder
	switch entry.Kind {
	case rubyindex.KindClass:
		fmt.Fprintf(&b, "```ruby\nclass %s\n```", entry.FQN.String())
		if len(defs) > 1 {
			fmt.Fprintf(&b, "\n\n_%d definitions (re-opened)_", len(defs))
		}
	case rubyindex.KindModule:
		fmt.Fprintf(&b, "```ruby\nmodule %s\n```", entry.FQN.String())
	case rubyindex.KindConstant:
		fmt.Fprintf(&b, "```ruby\n%s", entry.FQN.String())
		if entry.Value != nil && *entry.Value != "" {
			fmt.Fprintf(&b, " = %s", *entry.Value)
		}
		b.WriteString("\n```")
	default:
		fmt.Fprintf(&b, "`%s`", entry.FQN.String())
	}

	t := rubytype.NewClassReference(entry.FQN)
	return &HoverResult{Markdown: b.String(), Type: &t}
}

func (e *Engine) hoverIdentifier(dc *docContext, target *rubyparse.Node) *HoverResult {
	name := target.Content(dc.source)

	// Variable hover first: a local's narrowed type at this offset.
	if dc.callAncestorWithMethod(target) == nil {
		if method := dc.enclosingMethod(); method != nil {
			snaps := e.snapshotsFor(dc, method)
			if t, ok := typetrack.GetTypeAtOffset(snaps, target.StartByte, name); ok {
				md := fmt.Sprintf("```ruby\n%s : %s\n```", name, t.String())
				return &HoverResult{Markdown: md, Type: &t}
			}
		}
	}

	// Method hover: signature plus YARD doc.
	locs := e.methodDefinition(dc, dc.callAncestorWithMethod(target), name)
	if len(locs) == 0 {
		return nil
	}
	entry, ok := e.entryAt(locs[0])
	if !ok || entry.Kind != rubyindex.KindMethod {
		return nil
	}
	return e.renderMethodHover(entry)
}

// renderMethodHover builds the Markdown block for a method entry.
func (e *Engine) renderMethodHover(entry rubyindex.Entry) *HoverResult {
	var b strings.Builder
	fmt.Fprintf(&b, "```ruby\ndef %s(%s)\n```", entry.FQN.String(), formatParams(entry.Parameters))

	var hoverType *rubytype.Type
	if rt, ok := e.inferrer.ReturnTypeOf(entry); ok {
		fmt.Fprintf(&b, "\n\nReturns `%s`", rt.String())
		hoverType = &rt
	}

	if doc := entry.YardDoc; doc != nil {
		if doc.Summary != "" {
			b.WriteString("\n\n")
			b.WriteString(doc.Summary)
		}
		for _, p := range doc.Params {
			fmt.Fprintf(&b, "\n- `%s` [%s] %s", p.Name, p.Type, p.Desc)
		}
		if doc.Returns != nil && doc.Returns.Type != "" {
			fmt.Fprintf(&b, "\n- returns [%s] %s", doc.Returns.Type, doc.Returns.Desc)
		}
	}

	if entry.Origin != rubyindex.OriginDirect {
		fmt.Fprintf(&b, "\n\n_%s from mixin_", entry.Origin.String())
	}

	return &HoverResult{Markdown: b.String(), Type: hoverType}
}

func (e *Engine) hoverVariableEntry(dc *docContext, target *rubyparse.Node) *HoverResult {
	locs := e.variableEntryDefinition(dc, target)
	if len(locs) == 0 {
		return nil
	}
	entry, ok := e.entryAt(locs[0])
	if !ok {
		return nil
	}
	md := fmt.Sprintf("```ruby\n%s : %s\n```", entry.Name, entry.VarType.String())
	t := entry.VarType
	return &HoverResult{Markdown: md, Type: &t}
}

// entryAt reverse-maps a location to its entry.
func (e *Engine) entryAt(loc rubyindex.Location) (rubyindex.Entry, bool) {
	for _, entry := range e.idx.EntriesWithNamePrefix("") {
		if entry.Location == loc {
			return entry, true
		}
	}
	return rubyindex.Entry{}, false
}

// formatParams renders a parameter list the way it reads in source.
func formatParams(params []rubyindex.Param) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		switch p.Kind {
		case rubyindex.ParamOptional:
			parts = append(parts, p.Name+" = "+p.Default)
		case rubyindex.ParamRest:
			parts = append(parts, "*"+p.Name)
		case rubyindex.ParamKeyword:
			parts = append(parts, p.Name+":")
		case rubyindex.ParamKeywordOptional:
			parts = append(parts, p.Name+": "+p.Default)
		case rubyindex.ParamKeywordRest:
			parts = append(parts, "**"+p.Name)
		case rubyindex.ParamBlock:
			parts = append(parts, "&"+p.Name)
		default:
			parts = append(parts, p.Name)
		}
	}
	return strings.Join(parts, ", ")
}
