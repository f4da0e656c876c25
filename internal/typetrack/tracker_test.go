package typetrack

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/docstate"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyparse"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubytype"
)

// stubResolver maps (receiver kind, method) pairs to return types.
type stubResolver struct {
	methods map[string]rubytype.Type
}

func (r *stubResolver) ResolveMethodReturnType(receiver rubytype.Type, methodName string) (rubytype.Type, bool) {
	key := receiver.String() + "#" + methodName
	t, ok := r.methods[key]
	return t, ok
}

// parseMethodBody parses source and returns the first def's body.
func parseMethodBody(t *testing.T, source string) (*rubyparse.Node, []byte) {
	t.Helper()
	p := rubyparse.NewParser()
	t.Cleanup(p.Close)

	tree, err := p.Parse(context.Background(), []byte(source))
	require.NoError(t, err)

	defs := tree.Root.FindAllByType("method")
	require.NotEmpty(t, defs, "no method node in: %s", source)
	body := defs[0].FindChildByType("body_statement")
	require.NotNil(t, body)
	return body, tree.Source
}

// typeAt looks a variable up at the byte offset of marker in source.
func typeAt(t *testing.T, snaps []docstate.TypeSnapshot, source, marker, name string) rubytype.Type {
	t.Helper()
	idx := strings.Index(source, marker)
	require.GreaterOrEqual(t, idx, 0, "marker %q not found", marker)
	typ, ok := GetTypeAtOffset(snaps, uint32(idx), name)
	require.True(t, ok, "no type for %s at %q", name, marker)
	return typ
}

func TestAssignmentChain(t *testing.T) {
	src := "def f\n  x = \"hello\"\n  y = x\n  z = y.length\n  z\nend\n"
	body, source := parseMethodBody(t, src)

	resolver := &stubResolver{methods: map[string]rubytype.Type{
		"String#length": rubytype.New(rubytype.Integer),
	}}
	snaps := New(resolver).Track(source, body, nil)
	require.NotEmpty(t, snaps)

	assert.Equal(t, rubytype.String, typeAt(t, snaps, src, "y = x", "x").Kind)
	assert.Equal(t, rubytype.String, typeAt(t, snaps, src, "z = y", "y").Kind)
	assert.Equal(t, rubytype.Integer, typeAt(t, snaps, src, "\n  z\n", "z").Kind)
}

func TestLiteralTypes(t *testing.T) {
	src := "def f\n  a = 42\n  b = 1.5\n  c = :sym\n  d = true\n  e = nil\n  g = [1, \"a\"]\n  g\nend\n"
	body, source := parseMethodBody(t, src)

	snaps := New(nil).Track(source, body, nil)

	assert.Equal(t, rubytype.Integer, typeAt(t, snaps, src, "b = 1.5", "a").Kind)
	assert.Equal(t, rubytype.Float, typeAt(t, snaps, src, "c = :sym", "b").Kind)
	assert.Equal(t, rubytype.Symbol, typeAt(t, snaps, src, "d = true", "c").Kind)
	assert.Equal(t, rubytype.TrueClass, typeAt(t, snaps, src, "e = nil", "d").Kind)
	assert.Equal(t, rubytype.NilClass, typeAt(t, snaps, src, "g = [", "e").Kind)

	arr := typeAt(t, snaps, src, "\n  g\nend", "g")
	require.Equal(t, rubytype.Array, arr.Kind)
	require.NotNil(t, arr.Elem)
	assert.Equal(t, rubytype.Union_, arr.Elem.Kind)
}

func TestIfElseJoinUnion(t *testing.T) {
	src := "def f\n  if cond\n    x = 1\n  else\n    x = \"s\"\n  end\n  x\nend\n"
	body, source := parseMethodBody(t, src)

	snaps := New(nil).Track(source, body, nil)
	got := typeAt(t, snaps, src, "\n  x\nend", "x")

	require.Equal(t, rubytype.Union_, got.Kind)
	kinds := map[rubytype.Kind]bool{}
	for _, m := range got.Members {
		kinds[m.Kind] = true
	}
	assert.True(t, kinds[rubytype.Integer])
	assert.True(t, kinds[rubytype.String])
	assert.False(t, kinds[rubytype.NilClass], "both branches assign; no nil possibility")
}

func TestIfWithoutElseAddsNil(t *testing.T) {
	src := "def f\n  if cond\n    x = 1\n  end\n  x\nend\n"
	body, source := parseMethodBody(t, src)

	snaps := New(nil).Track(source, body, nil)
	got := typeAt(t, snaps, src, "\n  x\nend", "x")

	require.Equal(t, rubytype.Union_, got.Kind)
	assert.True(t, got.IsNilable(), "missing else must record possible un-assignment")
}

func TestCaseWhenJoin(t *testing.T) {
	src := "def f\n  case v\n  when 1\n    x = 1\n  when 2\n    x = 1.0\n  else\n    x = nil\n  end\n  x\nend\n"
	body, source := parseMethodBody(t, src)

	snaps := New(nil).Track(source, body, nil)
	got := typeAt(t, snaps, src, "\n  x\nend", "x")

	require.Equal(t, rubytype.Union_, got.Kind)
	kinds := map[rubytype.Kind]bool{}
	for _, m := range got.Members {
		kinds[m.Kind] = true
	}
	assert.True(t, kinds[rubytype.Integer])
	assert.True(t, kinds[rubytype.Float])
	assert.True(t, kinds[rubytype.NilClass])
}

func TestWhileMergesWithPreLoopState(t *testing.T) {
	src := "def f\n  x = nil\n  while cond\n    x = 1\n  end\n  x\nend\n"
	body, source := parseMethodBody(t, src)

	snaps := New(nil).Track(source, body, nil)
	got := typeAt(t, snaps, src, "\n  x\nend", "x")

	// The loop might not run: nil stays a possibility.
	require.Equal(t, rubytype.Union_, got.Kind)
	assert.True(t, got.IsNilable())
}

func TestOrOperatorTruthiness(t *testing.T) {
	src := "def f\n  a = maybe\n  b = a || \"fallback\"\n  c = 1 || \"never\"\n  c\nend\n"
	body, source := parseMethodBody(t, src)

	snaps := New(nil).Track(source, body, nil)

	// Unknown lhs: union of non-falsy lhs and rhs.
	b := typeAt(t, snaps, src, "c = 1", "b")
	assert.Contains(t, b.String(), "String")

	// Statically truthy lhs short-circuits to its own type.
	c := typeAt(t, snaps, src, "\n  c\nend", "c")
	assert.Equal(t, rubytype.Integer, c.Kind)
}

func TestOrAssignNilReceiver(t *testing.T) {
	src := "def f\n  x = nil\n  x ||= 5\n  x\nend\n"
	body, source := parseMethodBody(t, src)

	snaps := New(nil).Track(source, body, nil)
	got := typeAt(t, snaps, src, "\n  x\nend", "x")
	assert.Equal(t, rubytype.Integer, got.Kind)
}

func TestClassNewYieldsInstanceType(t *testing.T) {
	src := "def f\n  c = Foo.new\n  c\nend\n"
	body, source := parseMethodBody(t, src)

	snaps := New(nil).Track(source, body, nil)
	got := typeAt(t, snaps, src, "\n  c\nend", "c")

	require.Equal(t, rubytype.Class, got.Kind)
	assert.Equal(t, "Foo", got.FQN.String())
}

func TestConstantReadIsClassReference(t *testing.T) {
	src := "def f\n  k = Foo::Bar\n  k\nend\n"
	body, source := parseMethodBody(t, src)

	snaps := New(nil).Track(source, body, nil)
	got := typeAt(t, snaps, src, "\n  k\nend", "k")

	require.Equal(t, rubytype.ClassReference, got.Kind)
	assert.Equal(t, "Foo::Bar", got.FQN.String())
}

func TestSnapshotsNonOverlappingAndOrdered(t *testing.T) {
	src := "def f\n  a = 1\n  b = \"x\"\n  if a\n    c = :s\n  end\n  b\nend\n"
	body, source := parseMethodBody(t, src)

	snaps := New(nil).Track(source, body, nil)
	require.NotEmpty(t, snaps)

	for i := 1; i < len(snaps); i++ {
		assert.LessOrEqual(t, snaps[i-1].EndOffset, snaps[i].StartOffset,
			"snapshot %d overlaps %d", i-1, i)
	}
}

func TestGetTypeAtOffsetPastEndFallsBack(t *testing.T) {
	src := "def f\n  x = 1\nend\n"
	body, source := parseMethodBody(t, src)

	snaps := New(nil).Track(source, body, nil)
	require.NotEmpty(t, snaps)

	typ, ok := GetTypeAtOffset(snaps, uint32(len(src)+100), "x")
	require.True(t, ok)
	assert.Equal(t, rubytype.Integer, typ.Kind)
}

func TestTerminalExpressions(t *testing.T) {
	src := "def f\n  return 1 if early\n  \"done\"\nend\n"
	body, _ := parseMethodBody(t, src)

	terms := TerminalExpressions(body)
	require.Len(t, terms, 2)
}

func TestReturnTypeUnionOfTerminals(t *testing.T) {
	src := "def f\n  if cond\n    x = 1\n  else\n    x = \"s\"\n  end\n  x\nend\n"
	body, source := parseMethodBody(t, src)

	tracker := New(nil)
	snaps := tracker.Track(source, body, nil)
	require.NotEmpty(t, snaps)

	terms := TerminalExpressions(body)
	require.NotEmpty(t, terms)

	// Rebuild the final environment and type the terminal expression.
	env := Env{}
	for _, snap := range snaps {
		for name, typ := range snap.Vars {
			env[name] = typ
		}
	}
	got := tracker.EvalExpr(source, terms[len(terms)-1], env)
	assert.Equal(t, rubytype.Union_, got.Kind)
}

func TestYardParamsSeedEnvironment(t *testing.T) {
	src := "def f(s)\n  t = s\n  t\nend\n"
	body, source := parseMethodBody(t, src)

	snaps := New(nil).Track(source, body, map[string]rubytype.Type{
		"s": rubytype.New(rubytype.String),
	})
	got := typeAt(t, snaps, src, "\n  t\nend", "t")
	assert.Equal(t, rubytype.String, got.Kind)
}
