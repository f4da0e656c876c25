package rettype

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyparse"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubytype"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/yarddoc"
)

// fakeBodies backs BodyProvider with a single fixed source string,
// re-parsed on every call, enough to exercise terminal-expression
// inference without needing a real fileproc indexing pass.
type fakeBodies struct {
	source []byte
	body   *rubyparse.Node
}

func newFakeBodies(t *testing.T, source string) *fakeBodies {
	t.Helper()
	p := rubyparse.NewParser()
	defer p.Close()
	tree, err := p.Parse(context.Background(), []byte(source))
	require.NoError(t, err)
	def := tree.Root.FindChildByType("method")
	require.NotNil(t, def)
	body := def.FindChildByType("body_statement")
	require.NotNil(t, body)
	return &fakeBodies{source: []byte(source), body: body}
}

func (f *fakeBodies) MethodBody(entry rubyindex.Entry) (*rubyparse.Node, []byte, bool) {
	return f.body, f.source, true
}

func TestReturnTypeOfLiteralTerminal(t *testing.T) {
	bodies := newFakeBodies(t, "def greet\n  \"hi\"\nend\n")
	idx := rubyindex.NewIndex()
	inf := New(idx, bodies)

	fqn := rubyfqn.InstanceMethod(nil, "greet")
	entry := rubyindex.Entry{FQN: fqn, Kind: rubyindex.KindMethod, Owner: rubyfqn.Namespace()}
	entry.ID = idx.AddEntry(entry)

	defs := idx.FindDefinitions(fqn)
	require.Len(t, defs, 1)

	rt, ok := inf.ReturnTypeOf(defs[0])
	require.True(t, ok)
	assert.Equal(t, rubytype.String, rt.Kind)

	// Second call must hit the cache on the index rather than recompute.
	defs = idx.FindDefinitions(fqn)
	require.NotNil(t, defs[0].ReturnType)
	assert.Equal(t, rubytype.String, defs[0].ReturnType.Kind)
}

func TestReturnTypeOfJoinedVariableTerminal(t *testing.T) {
	// The terminal is a bare variable assigned in both branches of an
	// if/else; its return type is the join-point union, not Unknown.
	bodies := newFakeBodies(t, "def f\n  if cond\n    x = 1\n  else\n    x = \"s\"\n  end\n  x\nend\n")
	idx := rubyindex.NewIndex()
	inf := New(idx, bodies)

	fqn := rubyfqn.InstanceMethod(nil, "f")
	entry := rubyindex.Entry{FQN: fqn, Kind: rubyindex.KindMethod, Owner: rubyfqn.Namespace()}
	entry.ID = idx.AddEntry(entry)

	defs := idx.FindDefinitions(fqn)
	require.Len(t, defs, 1)

	rt, ok := inf.ReturnTypeOf(defs[0])
	require.True(t, ok)
	require.Equal(t, rubytype.Union_, rt.Kind)

	kinds := map[rubytype.Kind]bool{}
	for _, m := range rt.Members {
		kinds[m.Kind] = true
	}
	assert.True(t, kinds[rubytype.Integer])
	assert.True(t, kinds[rubytype.String])
}

func TestReturnTypeOfExplicitReturnVariable(t *testing.T) {
	bodies := newFakeBodies(t, "def g\n  y = 2\n  return y\nend\n")
	idx := rubyindex.NewIndex()
	inf := New(idx, bodies)

	fqn := rubyfqn.InstanceMethod(nil, "g")
	entry := rubyindex.Entry{FQN: fqn, Kind: rubyindex.KindMethod, Owner: rubyfqn.Namespace()}
	entry.ID = idx.AddEntry(entry)

	defs := idx.FindDefinitions(fqn)
	rt, ok := inf.ReturnTypeOf(defs[0])
	require.True(t, ok)
	assert.Equal(t, rubytype.Integer, rt.Kind)
}

func TestReturnTypeOfPrefersYardDoc(t *testing.T) {
	idx := rubyindex.NewIndex()
	inf := New(idx, nil)

	fqn := rubyfqn.InstanceMethod(nil, "count")
	doc := &yarddoc.Doc{Returns: &yarddoc.Return{Type: "Integer"}}
	entry := rubyindex.Entry{FQN: fqn, Kind: rubyindex.KindMethod, YardDoc: doc}
	entry.ID = idx.AddEntry(entry)

	defs := idx.FindDefinitions(fqn)
	rt, ok := inf.ReturnTypeOf(defs[0])
	require.True(t, ok)
	assert.Equal(t, rubytype.Class, rt.Kind)
	assert.Equal(t, "Integer", rt.FQN.String())
}
