package rubyindex

import (
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubytype"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/yarddoc"
)

// EntryID uniquely identifies an Entry within a RubyIndex for the lifetime
// of the process. It is never reused after removal.
type EntryID uint64

// EntryKind discriminates the declaration/definition variants an Entry can
// hold.
type EntryKind int

const (
	KindClass EntryKind = iota
	KindModule
	KindMethod
	KindConstant
	KindLocalVariable
	KindInstanceVariable
	KindClassVariable
	KindGlobalVariable
	KindMixinRef
)

func (k EntryKind) String() string {
	switch k {
	case KindClass:
		return "Class"
	case KindModule:
		return "Module"
	case KindMethod:
		return "Method"
	case KindConstant:
		return "Constant"
	case KindLocalVariable:
		return "LocalVariable"
	case KindInstanceVariable:
		return "InstanceVariable"
	case KindClassVariable:
		return "ClassVariable"
	case KindGlobalVariable:
		return "GlobalVariable"
	case KindMixinRef:
		return "MixinRef"
	default:
		return "Unknown"
	}
}

// Visibility is a method or constant's Ruby visibility.
type Visibility int

const (
	Public Visibility = iota
	Private
	Protected
)

func (v Visibility) String() string {
	switch v {
	case Private:
		return "private"
	case Protected:
		return "protected"
	default:
		return "public"
	}
}

// MethodKind distinguishes instance methods from singleton/class methods
// and `module_function` declarations.
type MethodKind int

const (
	MethodInstance MethodKind = iota
	MethodSingleton
	MethodModuleFunc
)

// Origin records how a Method entry came to exist on its owner: written
// directly in source, or synthesised by mixin resolution.
type Origin int

const (
	OriginDirect Origin = iota
	OriginIncluded
	OriginExtended
	OriginPrepended
	OriginInherited
)

func (o Origin) String() string {
	switch o {
	case OriginIncluded:
		return "included"
	case OriginExtended:
		return "extended"
	case OriginPrepended:
		return "prepended"
	case OriginInherited:
		return "inherited"
	default:
		return "direct"
	}
}

// MixinKind is the three ways a module can be mixed into a class: include,
// extend, and prepend.
type MixinKind int

const (
	MixinInclude MixinKind = iota
	MixinExtend
	MixinPrepend
)

func (k MixinKind) String() string {
	switch k {
	case MixinExtend:
		return "extend"
	case MixinPrepend:
		return "prepend"
	default:
		return "include"
	}
}

// MixinRef is a single include/extend/prepend target, either still
// unresolved (Target is zero) or resolved against the index.
type MixinRef struct {
	Kind     MixinKind
	Path     []rubyfqn.RubyConstant
	Resolved bool
	Target   rubyfqn.FQN
}

// ParamKind distinguishes the shapes a method parameter can take.
type ParamKind int

const (
	ParamRequired ParamKind = iota
	ParamOptional
	ParamRest
	ParamKeyword
	ParamKeywordOptional
	ParamKeywordRest
	ParamBlock
)

// Param is a single formal parameter of a method definition.
type Param struct {
	Name    string
	Kind    ParamKind
	Default string
}

// Assignment records one write to a local/instance/class/global variable,
// at a specific range, with the type narrowed at that point.
type Assignment struct {
	Range Range
	Type  rubytype.Type
}

// Entry is one definition or declaration recorded in a RubyIndex. Only the
// fields relevant to Kind are meaningful; this mirrors a tagged union
// rather than a Go interface hierarchy so that Entry values stay cheap to
// copy and store in slices.
type Entry struct {
	ID         EntryID
	FqnID      FqnID
	FQN        rubyfqn.FQN
	Kind       EntryKind
	Location   Location
	Origin     Origin
	Visibility Visibility

	// Class fields.
	Superclass  *MixinRef
	IsSingleton bool

	// Method fields.
	MethodKind MethodKind
	Parameters []Param
	Owner      rubyfqn.FQN
	ReturnType *rubytype.Type
	YardDoc    *yarddoc.Doc

	// Constant fields.
	Value *string

	// Local/instance/class/global variable fields.
	Name        string
	VarType     rubytype.Type
	Assignments []Assignment

	// MixinRef-kind entries (unresolved mixin declarations awaiting the
	// resolver, before they're folded into the owner's mixin graph).
	Mixin *MixinRef
}

// IsVirtual reports whether e was synthesised by mixin resolution rather
// than written directly in source.
func (e Entry) IsVirtual() bool {
	return e.Origin != OriginDirect
}
