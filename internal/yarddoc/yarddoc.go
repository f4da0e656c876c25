// Package yarddoc implements a thin lexer over YARD documentation
// comments: contiguous "#" lines preceding a declaration. It recognises
// @param, @return, @yield, and @example tags plus leading free text, and
// produces a structured Doc attached to the owning method entry.
package yarddoc

import (
	"strings"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubytype"
)

// Param is one @param tag: a name, its verbatim type string, and its
// description.
type Param struct {
	Name string
	Type string
	Desc string
}

// Return is the @return tag: a verbatim type string and description.
type Return struct {
	Type string
	Desc string
}

// Doc is the structured result of parsing one YARD comment block. Type
// strings are kept verbatim for hover display, since YARD's own type
// syntax (unions with "|", duck types with "#to_s", collections with
// "Array<Foo>") is far richer than the narrowed RubyType lattice. Where a
// type string is a single syntactically-plain constant path, ParamType
// and ReturnType additionally expose it converted to Class(FQN) for the
// best-effort parameter/return typing heuristics.
type Doc struct {
	Summary  string
	Params   []Param
	Returns  *Return
	Yields   []string
	Examples []string
}

// ParamType returns the narrowed RubyType for the named parameter, if its
// YARD type string was a single plain constant path. Ok is false
// otherwise (union types, duck types, generics, or no matching @param).
func (d *Doc) ParamType(name string) (rubytype.Type, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return singleConstantType(p.Type)
		}
	}
	return rubytype.Type{}, false
}

// ReturnType returns the narrowed RubyType for the @return tag, under the
// same single-plain-constant-path condition as ParamType.
func (d *Doc) ReturnType() (rubytype.Type, bool) {
	if d.Returns == nil {
		return rubytype.Type{}, false
	}
	return singleConstantType(d.Returns.Type)
}

// singleConstantType converts a verbatim YARD type string to Class(FQN)
// when it is exactly one constant path (e.g. "String", "Foo::Bar"), with
// no union ("|"), array/hash generic ("<...>"), duck-type ("#..."), or
// nilable ("?") markers.
func singleConstantType(raw string) (rubytype.Type, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return rubytype.Type{}, false
	}
	if strings.ContainsAny(s, "|<>#?, ") {
		return rubytype.Type{}, false
	}
	parts := strings.Split(s, "::")
	for _, p := range parts {
		if p == "" {
			return rubytype.Type{}, false
		}
	}
	fqnParts := make([]rubyfqn.RubyConstant, len(parts))
	for i, p := range parts {
		fqnParts[i] = rubyfqn.RubyConstant(p)
	}
	return rubytype.NewClass(rubyfqn.Namespace(fqnParts...)), true
}

// Line is one line of a comment block handed to Parse, already stripped
// of its leading "#".
type Line struct {
	Text string
}

var tagPrefixes = []string{"@param", "@return", "@yield", "@example"}

// Parse lexes a contiguous block of comment lines (in source order,
// leading "#" and exactly one following space already stripped by the
// caller) into a Doc. Unrecognised tags and blank separator lines are
// ignored; free text before the first tag becomes Summary.
func Parse(lines []string) *Doc {
	doc := &Doc{}
	var summary []string
	var curExample []string
	inExample := false
	sawTag := false

	flushExample := func() {
		if inExample && len(curExample) > 0 {
			doc.Examples = append(doc.Examples, strings.Join(curExample, "\n"))
		}
		curExample = nil
		inExample = false
	}

	for _, raw := range lines {
		line := strings.TrimRight(raw, " \t")
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "@") {
			sawTag = true
		}

		switch {
		case strings.HasPrefix(trimmed, "@param"):
			flushExample()
			doc.Params = append(doc.Params, parseParamTag(trimmed))
		case strings.HasPrefix(trimmed, "@return"):
			flushExample()
			r := parseReturnTag(trimmed)
			doc.Returns = &r
		case strings.HasPrefix(trimmed, "@yield"):
			flushExample()
			doc.Yields = append(doc.Yields, strings.TrimSpace(strings.TrimPrefix(trimmed, "@yield")))
		case strings.HasPrefix(trimmed, "@example"):
			flushExample()
			inExample = true
		default:
			if inExample {
				curExample = append(curExample, line)
			} else if !sawTag && !isAnyTag(trimmed) {
				summary = append(summary, line)
			}
		}
	}
	flushExample()

	doc.Summary = strings.TrimSpace(strings.Join(summary, "\n"))
	return doc
}

func isAnyTag(s string) bool {
	for _, p := range tagPrefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// parseParamTag parses "@param name [Type] desc".
func parseParamTag(s string) Param {
	rest := strings.TrimSpace(strings.TrimPrefix(s, "@param"))
	name, rest := takeWord(rest)
	typ, desc := takeBracketed(rest)
	return Param{Name: name, Type: typ, Desc: strings.TrimSpace(desc)}
}

// parseReturnTag parses "@return [Type] desc".
func parseReturnTag(s string) Return {
	rest := strings.TrimSpace(strings.TrimPrefix(s, "@return"))
	typ, desc := takeBracketed(rest)
	return Return{Type: typ, Desc: strings.TrimSpace(desc)}
}

func takeWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexAny(s, " \t")
	if idx < 0 {
		return s, ""
	}
	return s[:idx], s[idx+1:]
}

func takeBracketed(s string) (inside, rest string) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "[") {
		return "", s
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return "", s
	}
	return s[1:end], s[end+1:]
}
