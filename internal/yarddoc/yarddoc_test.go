package yarddoc

import "testing"

func TestParseParamAndReturn(t *testing.T) {
	doc := Parse([]string{
		"Computes the total price.",
		"",
		"@param items [Array<Item>] the items to total",
		"@param tax_rate [Float] the tax rate to apply",
		"@return [Float] the total price including tax",
	})

	if doc.Summary != "Computes the total price." {
		t.Errorf("unexpected summary: %q", doc.Summary)
	}
	if len(doc.Params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(doc.Params))
	}
	if doc.Params[0].Name != "items" || doc.Params[0].Type != "Array<Item>" {
		t.Errorf("unexpected param[0]: %+v", doc.Params[0])
	}
	if doc.Params[1].Name != "tax_rate" || doc.Params[1].Type != "Float" {
		t.Errorf("unexpected param[1]: %+v", doc.Params[1])
	}
	if doc.Returns == nil || doc.Returns.Type != "Float" {
		t.Fatalf("unexpected returns: %+v", doc.Returns)
	}
}

func TestParamTypeSingleConstant(t *testing.T) {
	doc := Parse([]string{"@param name [String] the name"})
	ty, ok := doc.ParamType("name")
	if !ok {
		t.Fatal("expected single-constant type conversion to succeed")
	}
	if ty.String() != "String" {
		t.Errorf("unexpected type: %s", ty)
	}
}

func TestParamTypeUnionNotConverted(t *testing.T) {
	doc := Parse([]string{"@param name [String, nil] the name"})
	if _, ok := doc.ParamType("name"); ok {
		t.Error("expected union type to not convert to a single Class type")
	}
}

func TestExampleBlock(t *testing.T) {
	doc := Parse([]string{
		"@example",
		"  foo.bar(1)",
		"  foo.baz(2)",
	})
	if len(doc.Examples) != 1 {
		t.Fatalf("expected 1 example block, got %d", len(doc.Examples))
	}
}
