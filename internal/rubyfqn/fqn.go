// Package rubyfqn provides the canonical representation of Ruby names:
// constants, namespaces, and method identities, plus the fully-qualified
// name (FQN) sum type used throughout the index and query engine.
package rubyfqn

import "strings"

// RubyConstant is a single constant/namespace path segment, e.g. "Foo" in
// "Foo::Bar".
type RubyConstant string

// MethodName is a bare method name, e.g. "each" or "each!" or "name=".
type MethodName string

// Kind distinguishes the FQN variants.
type Kind int

const (
	// KindNamespace identifies a module/class path.
	KindNamespace Kind = iota
	// KindConstant identifies a constant reference; Parts' last element is
	// the constant name.
	KindConstant
	// KindInstanceMethod identifies an instance method on Owner.
	KindInstanceMethod
	// KindModuleMethod identifies a singleton/class-level method on Owner.
	KindModuleMethod
)

func (k Kind) String() string {
	switch k {
	case KindNamespace:
		return "Namespace"
	case KindConstant:
		return "Constant"
	case KindInstanceMethod:
		return "InstanceMethod"
	case KindModuleMethod:
		return "ModuleMethod"
	default:
		return "Unknown"
	}
}

// FQN is the canonical, comparable representation of any Ruby name the
// index can hold a definition or reference for. It is a plain struct with
// a kind discriminator rather than a Go interface hierarchy: equality is
// structural and FQN values are used as map keys after interning.
type FQN struct {
	Kind Kind

	// Parts is the namespace/constant path. Non-empty for Namespace and
	// Constant; for method kinds it is the owning namespace path (may be
	// empty for top-level methods defined on Object).
	Parts []RubyConstant

	// Method is set for KindInstanceMethod and KindModuleMethod.
	Method MethodName
}

// Namespace builds a Namespace FQN from the given path.
func Namespace(parts ...RubyConstant) FQN {
	return FQN{Kind: KindNamespace, Parts: append([]RubyConstant(nil), parts...)}
}

// Constant builds a Constant FQN from the given path; the last element is
// the constant's own name.
func Constant(parts ...RubyConstant) FQN {
	return FQN{Kind: KindConstant, Parts: append([]RubyConstant(nil), parts...)}
}

// InstanceMethod builds an InstanceMethod FQN for name on owner.
func InstanceMethod(owner []RubyConstant, name MethodName) FQN {
	return FQN{Kind: KindInstanceMethod, Parts: append([]RubyConstant(nil), owner...), Method: name}
}

// ModuleMethod builds a ModuleMethod (singleton) FQN for name on owner.
func ModuleMethod(owner []RubyConstant, name MethodName) FQN {
	return FQN{Kind: KindModuleMethod, Parts: append([]RubyConstant(nil), owner...), Method: name}
}

// Equal reports structural equality.
func (f FQN) Equal(other FQN) bool {
	if f.Kind != other.Kind || f.Method != other.Method || len(f.Parts) != len(other.Parts) {
		return false
	}
	for i := range f.Parts {
		if f.Parts[i] != other.Parts[i] {
			return false
		}
	}
	return true
}

// Owner returns the namespace FQN that owns a method FQN. For non-method
// kinds it returns the FQN unchanged (there is no separate "owner" notion).
func (f FQN) Owner() FQN {
	if f.Kind != KindInstanceMethod && f.Kind != KindModuleMethod {
		return f
	}
	return Namespace(f.Parts...)
}

// Parent returns the enclosing namespace of f, or false if f is the root
// namespace (empty Parts); a single-part path's parent is the root.
func (f FQN) Parent() (FQN, bool) {
	if len(f.Parts) == 0 {
		return FQN{}, false
	}
	return Namespace(f.Parts[:len(f.Parts)-1]...), true
}

// Name returns the final path component's plain name (the constant/class
// name for Namespace/Constant, the method name for the method kinds).
func (f FQN) Name() string {
	switch f.Kind {
	case KindInstanceMethod, KindModuleMethod:
		return string(f.Method)
	default:
		if len(f.Parts) == 0 {
			return ""
		}
		return string(f.Parts[len(f.Parts)-1])
	}
}

// String renders the FQN using Ruby's own notation ("::" namespace
// separator, "#" for instance methods, "." for module/singleton methods),
// the inverse of Parse.
func (f FQN) String() string {
	ns := joinParts(f.Parts)
	switch f.Kind {
	case KindInstanceMethod:
		if ns == "" {
			return "#" + string(f.Method)
		}
		return ns + "#" + string(f.Method)
	case KindModuleMethod:
		if ns == "" {
			return "." + string(f.Method)
		}
		return ns + "." + string(f.Method)
	default:
		return ns
	}
}

func joinParts(parts []RubyConstant) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = string(p)
	}
	return strings.Join(strs, "::")
}

// Parse parses the String() notation back into an FQN. It is the inverse
// of String for all well-formed FQNs produced by this package.
func Parse(s string) (FQN, bool) {
	if s == "" {
		return FQN{}, false
	}

	if idx := strings.IndexByte(s, '#'); idx >= 0 {
		owner := s[:idx]
		method := s[idx+1:]
		if method == "" {
			return FQN{}, false
		}
		return InstanceMethod(splitParts(owner), MethodName(method)), true
	}

	if idx := strings.LastIndexByte(s, '.'); idx >= 0 {
		owner := s[:idx]
		method := s[idx+1:]
		if method == "" {
			return FQN{}, false
		}
		return ModuleMethod(splitParts(owner), MethodName(method)), true
	}

	return Namespace(splitParts(s)...), true
}

func splitParts(s string) []RubyConstant {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, "::")
	parts := make([]RubyConstant, len(raw))
	for i, r := range raw {
		parts[i] = RubyConstant(r)
	}
	return parts
}
