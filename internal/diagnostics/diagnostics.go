// Package diagnostics defines the diagnostic record published to the
// editor for a URI, the computation of unresolved-reference warnings
// from the symbol index, and an optional SARIF export for CI
// consumption outside the editor.
package diagnostics

import (
	"fmt"
	"sort"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
)

// Severity mirrors the LSP DiagnosticSeverity numbering.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInformation
	SeverityHint
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInformation:
		return "information"
	case SeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}

// Diagnostic is one finding for a URI: a range, a severity, a stable
// code, and a human-readable message.
type Diagnostic struct {
	Range    rubyindex.Range
	Severity Severity
	Code     string
	Source   string
	Message  string
}

// Diagnostic codes published by this server.
const (
	CodeSyntaxError        = "syntax-error"
	CodeUnresolvedConstant = "unresolved-constant"
	CodeUnresolvedMethod   = "unresolved-method"
	CodeOversizedInput     = "oversized-input"
	CodeInternalError      = "internal-error"
)

// sourceName is the Diagnostic.Source value for everything this server
// publishes.
const sourceName = "ruby-fast-lsp"

// SyntaxError builds a syntax diagnostic at r.
func SyntaxError(r rubyindex.Range, detail string) Diagnostic {
	msg := "syntax error"
	if detail != "" {
		msg = fmt.Sprintf("syntax error: %s", detail)
	}
	return Diagnostic{
		Range:    r,
		Severity: SeverityError,
		Code:     CodeSyntaxError,
		Source:   sourceName,
		Message:  msg,
	}
}

// Unresolved builds the warning diagnostic for an unresolved reference.
func Unresolved(ref rubyindex.UnresolvedRef) Diagnostic {
	return Diagnostic{
		Range:    ref.Location.Range,
		Severity: SeverityWarning,
		Code:     CodeUnresolvedConstant,
		Source:   sourceName,
		Message:  fmt.Sprintf("cannot resolve %s", ref.Name),
	}
}

// Oversized builds the bad-request diagnostic for a rejected file.
func Oversized(detail string) Diagnostic {
	return Diagnostic{
		Severity: SeverityWarning,
		Code:     CodeOversizedInput,
		Source:   sourceName,
		Message:  detail,
	}
}

// ForURI computes the current diagnostic set for uri from the index's
// unresolved-reference records. It is idempotent: publishing the result
// twice has the same effect as publishing it once, which the concurrency
// model requires of cross-URI diagnostics arriving in any order.
func ForURI(idx *rubyindex.RubyIndex, uri string) []Diagnostic {
	refs := idx.Unresolved(uri)
	out := make([]Diagnostic, 0, len(refs))
	for _, r := range refs {
		out = append(out, Unresolved(r))
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Range.Start, out[j].Range.Start
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})
	return out
}

// Publisher delivers a URI's full diagnostic set to the client. The LSP
// transport implements this; tests substitute a recorder.
type Publisher interface {
	PublishDiagnostics(uri string, diags []Diagnostic)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(uri string, diags []Diagnostic)

// PublishDiagnostics implements Publisher.
func (f PublisherFunc) PublishDiagnostics(uri string, diags []Diagnostic) {
	f(uri, diags)
}
