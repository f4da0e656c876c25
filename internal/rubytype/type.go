// Package rubytype implements the narrowed Ruby type lattice used by the
// type tracker and return-type inferrer: RubyType values, and the Union
// constructor that flattens, dedupes, and singleton-reduces.
package rubytype

import (
	"sort"
	"strings"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
)

// Kind discriminates the RubyType variants.
type Kind int

const (
	Unknown Kind = iota
	NilClass
	TrueClass
	FalseClass
	Integer
	Float
	String
	Symbol
	Array
	Hash
	Class          // instance of a class, e.g. Class(Foo) == an instance of Foo
	ClassReference // the class object itself, e.g. Foo the constant
	Union_
)

func (k Kind) String() string {
	switch k {
	case Unknown:
		return "Unknown"
	case NilClass:
		return "NilClass"
	case TrueClass:
		return "TrueClass"
	case FalseClass:
		return "FalseClass"
	case Integer:
		return "Integer"
	case Float:
		return "Float"
	case String:
		return "String"
	case Symbol:
		return "Symbol"
	case Array:
		return "Array"
	case Hash:
		return "Hash"
	case Class:
		return "Class"
	case ClassReference:
		return "ClassReference"
	case Union_:
		return "Union"
	default:
		return "Unknown"
	}
}

// Type is an immutable value in the RubyType lattice.
type Type struct {
	Kind Kind

	// FQN is set for Class and ClassReference.
	FQN rubyfqn.FQN

	// Elem holds Array's element type(s) as a (possibly singleton) Union.
	Elem *Type

	// Key/Value hold Hash's key/value types.
	Key   *Type
	Value *Type

	// Members holds the flattened, deduped member types for Union_.
	Members []Type
}

// New constructs a simple (non-parameterized) type.
func New(k Kind) Type { return Type{Kind: k} }

// NewClass constructs a Class(fqn) instance type.
func NewClass(fqn rubyfqn.FQN) Type { return Type{Kind: Class, FQN: fqn} }

// NewClassReference constructs a ClassReference(fqn) type.
func NewClassReference(fqn rubyfqn.FQN) Type { return Type{Kind: ClassReference, FQN: fqn} }

// NewArray constructs an Array(elem) type.
func NewArray(elem Type) Type { return Type{Kind: Array, Elem: &elem} }

// NewHash constructs a Hash(k, v) type.
func NewHash(k, v Type) Type { return Type{Kind: Hash, Key: &k, Value: &v} }

// IsNilable reports whether t statically includes NilClass (directly or
// as a Union member).
func (t Type) IsNilable() bool {
	if t.Kind == NilClass {
		return true
	}
	if t.Kind == Union_ {
		for _, m := range t.Members {
			if m.Kind == NilClass {
				return true
			}
		}
	}
	return false
}

// IsStaticallyFalsy reports whether every possibility of t is falsy (nil
// or false), used by the truthiness rules for ||, &&, ||=, &&=.
func (t Type) IsStaticallyFalsy() bool {
	switch t.Kind {
	case NilClass, FalseClass:
		return true
	case Union_:
		for _, m := range t.Members {
			if !m.IsStaticallyFalsy() {
				return false
			}
		}
		return len(t.Members) > 0
	default:
		return false
	}
}

// IsStaticallyTruthy reports whether every possibility of t is truthy
// (non-nil, non-false).
func (t Type) IsStaticallyTruthy() bool {
	switch t.Kind {
	case Unknown, NilClass, FalseClass:
		return false
	case Union_:
		for _, m := range t.Members {
			if !m.IsStaticallyTruthy() {
				return false
			}
		}
		return len(t.Members) > 0
	default:
		return true
	}
}

// WithoutFalsy returns t with NilClass and FalseClass members removed; used
// by the `a || b` truthiness rule when a's type is neither statically
// truthy nor statically falsy.
func WithoutFalsy(t Type) Type {
	if t.Kind != Union_ {
		if t.Kind == NilClass || t.Kind == FalseClass {
			return Type{Kind: Unknown}
		}
		return t
	}
	kept := make([]Type, 0, len(t.Members))
	for _, m := range t.Members {
		if m.Kind != NilClass && m.Kind != FalseClass {
			kept = append(kept, m)
		}
	}
	return Union(kept...)
}

// key returns a canonical string for deduplication purposes; it is not
// meant for display.
func (t Type) key() string {
	var b strings.Builder
	t.writeKey(&b)
	return b.String()
}

func (t Type) writeKey(b *strings.Builder) {
	b.WriteString(t.Kind.String())
	switch t.Kind {
	case Class, ClassReference:
		b.WriteByte('(')
		b.WriteString(t.FQN.String())
		b.WriteByte(')')
	case Array:
		b.WriteByte('(')
		if t.Elem != nil {
			t.Elem.writeKey(b)
		}
		b.WriteByte(')')
	case Hash:
		b.WriteByte('(')
		if t.Key != nil {
			t.Key.writeKey(b)
		}
		b.WriteByte(',')
		if t.Value != nil {
			t.Value.writeKey(b)
		}
		b.WriteByte(')')
	}
}

// Union builds the union of the given types, normalising: it flattens
// nested unions, dedupes structurally-equal members, and reduces a
// singleton union to its single member. An empty argument list yields
// Unknown.
func Union(types ...Type) Type {
	seen := make(map[string]Type)
	order := make([]string, 0, len(types))

	var add func(t Type)
	add = func(t Type) {
		if t.Kind == Union_ {
			for _, m := range t.Members {
				add(m)
			}
			return
		}
		k := t.key()
		if _, ok := seen[k]; !ok {
			seen[k] = t
			order = append(order, k)
		}
	}
	for _, t := range types {
		add(t)
	}

	if len(order) == 0 {
		return Type{Kind: Unknown}
	}
	if len(order) == 1 {
		return seen[order[0]]
	}

	// Deterministic ordering independent of argument order, so that
	// Union(a, b) and Union(b, a) produce structurally identical results
	// (commutativity as a comparable value, not just as a set).
	sort.Strings(order)
	members := make([]Type, len(order))
	for i, k := range order {
		members[i] = seen[k]
	}
	return Type{Kind: Union_, Members: members}
}

// Equal reports whether two types are structurally identical, including
// Union member order after normalisation (Union already canonicalises
// order, so this is a deep structural comparison).
func Equal(a, b Type) bool {
	return a.key() == b.key()
}

// String renders a human-readable type name, e.g. for hover text.
func (t Type) String() string {
	switch t.Kind {
	case Class:
		return t.FQN.String()
	case ClassReference:
		return "Class(" + t.FQN.String() + ")"
	case Array:
		if t.Elem != nil {
			return "Array(" + t.Elem.String() + ")"
		}
		return "Array"
	case Hash:
		if t.Key != nil && t.Value != nil {
			return "Hash(" + t.Key.String() + ", " + t.Value.String() + ")"
		}
		return "Hash"
	case Union_:
		parts := make([]string, len(t.Members))
		for i, m := range t.Members {
			parts[i] = m.String()
		}
		return strings.Join(parts, " | ")
	default:
		return t.Kind.String()
	}
}
