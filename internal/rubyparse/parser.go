// Package rubyparse wraps tree-sitter Ruby parsing behind a small Node
// tree, the shape the file processor and type tracker walk. The parser
// is single-language; this server never parses anything but Ruby
// source.
package rubyparse

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/ruby"
)

// Parser wraps a tree-sitter parser configured for Ruby.
type Parser struct {
	parser *sitter.Parser
}

// NewParser constructs a Ruby parser.
func NewParser() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(ruby.GetLanguage())
	return &Parser{parser: p}
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

// Parse parses source and returns its AST. A tree-sitter parse never
// fails outright; malformed input produces nodes with HasError set,
// so the only error path here is parser/runtime failure, not syntax
// errors; callers inspect Tree.Root.HasError (recursively, via
// FindAllByType("ERROR")) for syntax diagnostics.
func (p *Parser) Parse(ctx context.Context, source []byte) (*Tree, error) {
	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse ruby source: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("parse ruby source: nil tree")
	}

	return &Tree{
		Root:   convertNode(tsTree.RootNode(), source),
		Source: source,
	}, nil
}

// Tree is a parsed Ruby AST.
type Tree struct {
	Root   *Node
	Source []byte
}

// Point is a 0-indexed line/column position, in bytes.
type Point struct {
	Row    uint32
	Column uint32
}

// Node is one AST node. Type is the tree-sitter grammar's node-type
// string (e.g. "class", "def", "call", "identifier", "const"); callers
// match against these literal strings rather than a Go enum, the same
// way the Ruby grammar itself names its productions.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	HasError   bool
	Children   []*Node
}

func convertNode(tsNode *sitter.Node, source []byte) *Node {
	if tsNode == nil {
		return nil
	}

	node := &Node{
		Type:      tsNode.Type(),
		StartByte: tsNode.StartByte(),
		EndByte:   tsNode.EndByte(),
		StartPoint: Point{
			Row:    tsNode.StartPoint().Row,
			Column: tsNode.StartPoint().Column,
		},
		EndPoint: Point{
			Row:    tsNode.EndPoint().Row,
			Column: tsNode.EndPoint().Column,
		},
		HasError: tsNode.HasError(),
		Children: make([]*Node, 0, int(tsNode.ChildCount())),
	}

	for i := uint32(0); i < tsNode.ChildCount(); i++ {
		child := tsNode.Child(int(i))
		if child == nil {
			continue
		}
		node.Children = append(node.Children, convertNode(child, source))
	}

	return node
}

// Content returns n's source text.
func (n *Node) Content(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChildByType returns the first direct child of the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, c := range n.Children {
		if c.Type == nodeType {
			return c
		}
	}
	return nil
}

// FindChildrenByType returns every direct child of the given type.
func (n *Node) FindChildrenByType(nodeType string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Type == nodeType {
			out = append(out, c)
		}
	}
	return out
}

// FindAllByType recursively collects every node of the given type,
// including n itself. A childless token that repeats its parent's type
// (the `class` keyword of a class node, the `return` keyword of a return
// node) is not collected.
func (n *Node) FindAllByType(nodeType string) []*Node {
	var out []*Node
	if n.Type == nodeType {
		out = append(out, n)
	}
	for _, c := range n.Children {
		if c.Type == n.Type && len(c.Children) == 0 {
			continue
		}
		out = append(out, c.FindAllByType(nodeType)...)
	}
	return out
}

// Walk traverses the tree depth-first, pre-order, calling fn for every
// node. fn returns false to skip descending into that node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}
