package rubytype

import (
	"testing"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
)

func TestUnionIdempotent(t *testing.T) {
	ty := New(Integer)
	if !Equal(Union(ty, ty), ty) {
		t.Errorf("Union(T, T) should equal T, got %s", Union(ty, ty))
	}
}

func TestUnionCommutative(t *testing.T) {
	a, b := New(Integer), New(String)
	if !Equal(Union(a, b), Union(b, a)) {
		t.Errorf("Union not commutative: %s vs %s", Union(a, b), Union(b, a))
	}
}

func TestUnionAssociative(t *testing.T) {
	a, b, c := New(Integer), New(String), New(Symbol)
	left := Union(Union(a, b), c)
	right := Union(a, Union(b, c))
	if !Equal(left, right) {
		t.Errorf("Union not associative: %s vs %s", left, right)
	}
}

func TestUnionFlattensAndDedupes(t *testing.T) {
	u := Union(New(Integer), Union(New(String), New(Integer)))
	if u.Kind != Union_ {
		t.Fatalf("expected Union kind, got %s", u.Kind)
	}
	if len(u.Members) != 2 {
		t.Fatalf("expected 2 members after dedupe, got %d: %s", len(u.Members), u)
	}
}

func TestUnionSingletonReduces(t *testing.T) {
	u := Union(New(Integer), New(Integer))
	if u.Kind != Integer {
		t.Errorf("expected singleton reduction to Integer, got %s", u.Kind)
	}
}

func TestUnionEmpty(t *testing.T) {
	u := Union()
	if u.Kind != Unknown {
		t.Errorf("Union() should be Unknown, got %s", u.Kind)
	}
}

func TestTruthiness(t *testing.T) {
	if !New(NilClass).IsStaticallyFalsy() {
		t.Error("NilClass should be falsy")
	}
	if !New(FalseClass).IsStaticallyFalsy() {
		t.Error("FalseClass should be falsy")
	}
	if !New(Integer).IsStaticallyTruthy() {
		t.Error("Integer should be truthy")
	}
	mixed := Union(New(Integer), New(NilClass))
	if mixed.IsStaticallyTruthy() || mixed.IsStaticallyFalsy() {
		t.Error("Union(Integer, NilClass) should be neither statically truthy nor falsy")
	}
}

func TestWithoutFalsy(t *testing.T) {
	u := Union(New(Integer), New(NilClass), New(String))
	trimmed := WithoutFalsy(u)
	if trimmed.IsNilable() {
		t.Errorf("expected nil removed, got %s", trimmed)
	}
}

func TestClassTypeKey(t *testing.T) {
	foo := rubyfqn.Namespace("Foo")
	a := NewClass(foo)
	b := NewClass(foo)
	if !Equal(a, b) {
		t.Error("expected equal Class types for the same FQN")
	}
	bar := NewClass(rubyfqn.Namespace("Bar"))
	if Equal(a, bar) {
		t.Error("expected different Class types for different FQNs")
	}
}
