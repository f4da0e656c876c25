// Package rbs is the integration seam for RBS signature data. The RBS
// lexer/parser itself is an external collaborator; this package only
// defines the structural signature shape it feeds in, and the
// application of a signature onto the symbol index as supplementary
// return-type data.
package rbs

import (
	"fmt"
	"strings"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubytype"
)

// ParamSig is one parameter's declared type.
type ParamSig struct {
	Name string
	Type string
}

// Signature is one method's RBS declaration.
type Signature struct {
	// Owner is the declaring class/module path, e.g. "Foo::Bar".
	Owner string

	// Method is the method name.
	Method string

	// Singleton marks a `def self.` signature.
	Singleton bool

	Params []ParamSig

	// ReturnType is the declared return type, verbatim RBS text.
	ReturnType string
}

// Apply attaches sig's return type to the matching method entries in
// idx. Only return types that map onto the narrowed type lattice are
// applied; anything richer is skipped, not approximated. Entries whose
// return type was already inferred keep the inferred value; RBS data
// is supplementary, not authoritative.
func Apply(idx *rubyindex.RubyIndex, sig Signature) error {
	owner := splitPath(sig.Owner)
	if sig.Method == "" {
		return fmt.Errorf("rbs signature missing method name")
	}

	var fqn rubyfqn.FQN
	if sig.Singleton {
		fqn = rubyfqn.ModuleMethod(owner, rubyfqn.MethodName(sig.Method))
	} else {
		fqn = rubyfqn.InstanceMethod(owner, rubyfqn.MethodName(sig.Method))
	}

	entries := idx.FindDefinitions(fqn)
	if len(entries) == 0 {
		return fmt.Errorf("no definition for %s", fqn.String())
	}

	rt, ok := narrowType(sig.ReturnType)
	if !ok {
		return nil
	}

	for _, entry := range entries {
		if entry.ReturnType != nil {
			continue
		}
		idx.UpdateReturnType(entry.ID, entry.FQN, rt)
	}
	return nil
}

// narrowType maps an RBS type string onto the narrowed lattice where a
// direct correspondence exists.
func narrowType(raw string) (rubytype.Type, bool) {
	raw = strings.TrimSpace(raw)
	switch raw {
	case "":
		return rubytype.Type{}, false
	case "nil", "NilClass":
		return rubytype.New(rubytype.NilClass), true
	case "bool":
		return rubytype.Union(rubytype.New(rubytype.TrueClass), rubytype.New(rubytype.FalseClass)), true
	case "Integer":
		return rubytype.New(rubytype.Integer), true
	case "Float":
		return rubytype.New(rubytype.Float), true
	case "String":
		return rubytype.New(rubytype.String), true
	case "Symbol":
		return rubytype.New(rubytype.Symbol), true
	case "untyped", "void", "top", "bot":
		return rubytype.Type{}, false
	}

	// A plain constant path becomes an instance type; unions, generics,
	// optionals, and proc types stay unmapped.
	if strings.ContainsAny(raw, "|?()[]{}<> ") {
		return rubytype.Type{}, false
	}
	parts := splitPath(raw)
	if len(parts) == 0 {
		return rubytype.Type{}, false
	}
	for _, p := range parts {
		if len(p) == 0 || p[0] < 'A' || p[0] > 'Z' {
			return rubytype.Type{}, false
		}
	}
	return rubytype.NewClass(rubyfqn.Namespace(parts...)), true
}

func splitPath(path string) []rubyfqn.RubyConstant {
	path = strings.TrimPrefix(strings.TrimSpace(path), "::")
	if path == "" {
		return nil
	}
	raw := strings.Split(path, "::")
	out := make([]rubyfqn.RubyConstant, 0, len(raw))
	for _, r := range raw {
		if r != "" {
			out = append(out, rubyfqn.RubyConstant(r))
		}
	}
	return out
}
