// Package typetrack implements the single-pass forward dataflow over a
// method's AST: a mutable variable-type
// environment walked statement by statement, producing byte-range-indexed
// TypeSnapshot values plus the control-flow merge rules for if/unless/
// case/while.
package typetrack

import (
	"sort"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/docstate"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyparse"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubytype"
)

// maxLoopIterations bounds while/until simulation; enough passes for
// variable types to stabilise without chasing pathological loops.
const maxLoopIterations = 10

// MethodResolver resolves a method call's return type given the
// receiver's narrowed type, driving the "method call on receiver"
// assignment rule. Implemented by internal/rettype against the symbol
// index; declared here as an interface so the tracker has no dependency
// on the index package itself.
type MethodResolver interface {
	ResolveMethodReturnType(receiver rubytype.Type, methodName string) (rubytype.Type, bool)
}

// Env is the mutable variable-type environment threaded through the
// forward pass.
type Env map[string]rubytype.Type

func (e Env) clone() Env {
	out := make(Env, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Tracker runs the forward dataflow pass over a single method body.
type Tracker struct {
	resolver  MethodResolver
	source    []byte
	snapshots []docstate.TypeSnapshot
}

// New constructs a Tracker. resolver may be nil, in which case every
// method-call-on-receiver assignment resolves to Unknown.
func New(resolver MethodResolver) *Tracker {
	return &Tracker{resolver: resolver}
}

// Track walks body (a method's body_statement node) and returns its
// ordered, non-overlapping TypeSnapshot list. params seeds the initial
// environment with any YARD-declared parameter types available at method
// entry (best-effort: only parameters whose doc comment names a single
// plain constant path; pass nil when none apply).
func (t *Tracker) Track(source []byte, body *rubyparse.Node, params map[string]rubytype.Type) []docstate.TypeSnapshot {
	t.source = source
	t.snapshots = nil

	env := Env{}
	for name, typ := range params {
		env[name] = typ
	}

	if body == nil {
		return nil
	}
	t.walkStatements(bodyChildren(body), env, body.EndByte, true)
	return t.snapshots
}

// GetTypeAtOffset binary-searches snapshots for the one containing
// offset; on an exact miss (a query past the last snapshot, e.g. late in
// a method) it falls back to the last snapshot whose start is at or
// before offset, so hints late in a method see the final narrowed state.
func GetTypeAtOffset(snapshots []docstate.TypeSnapshot, offset uint32, name string) (rubytype.Type, bool) {
	if len(snapshots) == 0 {
		return rubytype.Type{}, false
	}
	i := sort.Search(len(snapshots), func(i int) bool { return snapshots[i].EndOffset > offset })
	if i < len(snapshots) && snapshots[i].StartOffset <= offset {
		v, ok := snapshots[i].Vars[name]
		return v, ok
	}
	j := sort.Search(len(snapshots), func(i int) bool { return snapshots[i].StartOffset > offset }) - 1
	if j < 0 {
		j = 0
	}
	v, ok := snapshots[j].Vars[name]
	return v, ok
}

// TerminalExpressions returns body's implicit final expression plus every
// explicit `return` node, the set the return-type inferrer unions over.
func TerminalExpressions(body *rubyparse.Node) []*rubyparse.Node {
	if body == nil {
		return nil
	}
	var terms []*rubyparse.Node
	for _, n := range body.FindAllByType("return") {
		terms = append(terms, n)
	}
	stmts := bodyChildren(body)
	if len(stmts) > 0 {
		terms = append(terms, stmts[len(stmts)-1])
	}
	return terms
}

// EvalExpr exposes the expression-typing rules for callers (notably the
// return-type inferrer) that need to type a single expression node
// against a caller-supplied environment without running the full pass.
func (t *Tracker) EvalExpr(source []byte, n *rubyparse.Node, env Env) rubytype.Type {
	t.source = source
	return t.evalExpr(n, env)
}

// --- statement-level walk ---

func (t *Tracker) walkStatements(stmts []*rubyparse.Node, env Env, blockEnd uint32, emit bool) Env {
	for i, stmt := range stmts {
		env = t.execStatement(stmt, env, emit)
		if emit {
			var next uint32
			if i+1 < len(stmts) {
				next = stmts[i+1].StartByte
			} else {
				next = blockEnd
			}
			t.emit(stmt.EndByte, next, env)
		}
	}
	return env
}

func (t *Tracker) emit(start, end uint32, env Env) {
	if end < start {
		end = start
	}
	t.snapshots = append(t.snapshots, docstate.TypeSnapshot{StartOffset: start, EndOffset: end, Vars: env.clone()})
}

func (t *Tracker) execStatement(n *rubyparse.Node, env Env, emit bool) Env {
	switch n.Type {
	case "assignment":
		return t.execAssignment(n, env)
	case "operator_assignment":
		return t.execOperatorAssignment(n, env)
	case "if", "unless":
		return t.execIfChain(n, env, emit)
	case "case":
		return t.execCase(n, env, emit)
	case "while", "until":
		return t.execWhile(n, env, emit)
	case "begin":
		return t.walkStatements(bodyChildren(n), env, n.EndByte, emit)
	default:
		t.evalExpr(n, env)
		return env
	}
}

// --- if/unless ---

func (t *Tracker) execIfChain(n *rubyparse.Node, env Env, emit bool) Env {
	cond, stmts, next := splitIfLike(n)
	if cond != nil {
		t.evalExpr(cond, env)
	}
	thenEnd := n.EndByte
	if next != nil {
		thenEnd = next.StartByte
	}
	thenEnv := t.walkStatements(stmts, env.clone(), thenEnd, emit)

	var branches []Env
	hasElse := false
	switch {
	case next != nil && next.Type == "elsif":
		branches = append(branches, t.execIfChain(next, env.clone(), emit))
		hasElse = true
	case next != nil && next.Type == "else":
		elseStmts := bodyChildren(next)
		branches = append(branches, t.walkStatements(elseStmts, env.clone(), next.EndByte, emit))
		hasElse = true
	}
	branches = append([]Env{thenEnv}, branches...)

	return mergeBranches(env, branches, hasElse)
}

// splitIfLike splits an if/unless/elsif node into its condition, its own
// body statements, and the following elsif/else clause (nil if none).
func splitIfLike(n *rubyparse.Node) (cond *rubyparse.Node, stmts []*rubyparse.Node, next *rubyparse.Node) {
	children := n.Children
	idx := 0
	for idx < len(children) && isLeafKeyword(children[idx].Type) {
		idx++
	}
	if idx < len(children) {
		cond = children[idx]
		idx++
	}
	if idx < len(children) && children[idx].Type == "then" {
		stmts = bodyChildren(children[idx])
		idx++
	}
	for idx < len(children) {
		c := children[idx]
		if c.Type == "elsif" || c.Type == "else" {
			next = c
			break
		}
		if c.Type == "end" {
			break
		}
		stmts = append(stmts, c)
		idx++
	}
	return
}

// --- case/when ---

func (t *Tracker) execCase(n *rubyparse.Node, env Env, emit bool) Env {
	children := n.Children
	idx := 0
	if idx < len(children) && children[idx].Type == "case" {
		idx++
	}
	for idx < len(children) && children[idx].Type != "when" && children[idx].Type != "in" &&
		children[idx].Type != "else" && children[idx].Type != "end" {
		t.evalExpr(children[idx], env)
		idx++
	}

	var branches []Env
	hasElse := false
	for ; idx < len(children); idx++ {
		c := children[idx]
		switch c.Type {
		case "when", "in":
			stmts := bodyChildren(c)
			if body := c.FindChildByType("then"); body != nil {
				stmts = bodyChildren(body)
			}
			branches = append(branches, t.walkStatements(stmts, env.clone(), c.EndByte, emit))
		case "else":
			hasElse = true
			stmts := bodyChildren(c)
			branches = append(branches, t.walkStatements(stmts, env.clone(), c.EndByte, emit))
		}
	}
	if len(branches) == 0 {
		return env
	}
	return mergeBranches(env, branches, hasElse)
}

// --- while/until ---

func (t *Tracker) execWhile(n *rubyparse.Node, env Env, emit bool) Env {
	_, stmts := splitWhileLike(n)

	loopEnv := env.clone()
	for i := 0; i < maxLoopIterations; i++ {
		loopEnv = t.walkStatements(stmts, loopEnv, n.EndByte, false)
	}

	finalEnv := mergeBranches(env, []Env{loopEnv}, false)
	if emit {
		t.walkStatements(stmts, finalEnv.clone(), n.EndByte, true)
	}
	return finalEnv
}

func splitWhileLike(n *rubyparse.Node) (cond *rubyparse.Node, stmts []*rubyparse.Node) {
	children := n.Children
	idx := 0
	for idx < len(children) && isLeafKeyword(children[idx].Type) {
		idx++
	}
	if idx < len(children) {
		cond = children[idx]
		idx++
	}
	if idx < len(children) && children[idx].Type == "do" {
		stmts = bodyChildren(children[idx])
		idx++
	}
	for idx < len(children) {
		c := children[idx]
		if c.Type == "end" {
			break
		}
		stmts = append(stmts, c)
		idx++
	}
	return
}

// --- branch merging ---

// mergeBranches computes the join-point environment: Union across every
// branch's binding for a name, falling back to
// pre's binding (or NilClass if pre has none either) for any branch that
// didn't touch it, plus an extra NilClass possibility whenever hasElse is
// false (the branch might not run at all).
func mergeBranches(pre Env, branches []Env, hasElse bool) Env {
	out := pre.clone()
	names := map[string]struct{}{}
	for _, b := range branches {
		for k := range b {
			names[k] = struct{}{}
		}
	}
	for name := range names {
		var types []rubytype.Type
		for _, b := range branches {
			if v, ok := b[name]; ok {
				types = append(types, v)
			} else if v, ok := pre[name]; ok {
				types = append(types, v)
			} else {
				types = append(types, rubytype.New(rubytype.NilClass))
			}
		}
		if !hasElse {
			if v, ok := pre[name]; ok {
				types = append(types, v)
			} else {
				types = append(types, rubytype.New(rubytype.NilClass))
			}
		}
		out[name] = rubytype.Union(types...)
	}
	return out
}

// --- assignment ---

func (t *Tracker) execAssignment(n *rubyparse.Node, env Env) Env {
	lhs, rhs := assignmentParts(n)
	if lhs == nil || rhs == nil {
		return env
	}
	val := t.evalExpr(rhs, env)
	return t.bindLHS(lhs, val, env)
}

func assignmentParts(n *rubyparse.Node) (lhs, rhs *rubyparse.Node) {
	eqIdx := -1
	for i, c := range n.Children {
		if c.Type == "=" {
			eqIdx = i
			break
		}
	}
	if eqIdx <= 0 || eqIdx+1 >= len(n.Children) {
		return nil, nil
	}
	return n.Children[eqIdx-1], n.Children[eqIdx+1]
}

func (t *Tracker) bindLHS(lhs *rubyparse.Node, val rubytype.Type, env Env) Env {
	switch lhs.Type {
	case "identifier", "instance_variable", "class_variable", "global_variable":
		out := env.clone()
		out[lhs.Content(t.source)] = val
		return out
	default:
		return env
	}
}

func (t *Tracker) execOperatorAssignment(n *rubyparse.Node, env Env) Env {
	var lhs, rhs *rubyparse.Node
	op := ""
	for i, c := range n.Children {
		switch {
		case i == 0:
			lhs = c
		case c.Type == "||=" || c.Type == "&&=":
			op = c.Type
		case i == len(n.Children)-1:
			rhs = c
		}
	}
	if lhs == nil || rhs == nil {
		return env
	}

	name := varName(lhs, t.source)
	cur := env[name]

	var result rubytype.Type
	switch op {
	case "||=":
		switch {
		case cur.IsStaticallyTruthy():
			result = cur
		case cur.IsStaticallyFalsy():
			result = t.evalExpr(rhs, env)
		default:
			result = rubytype.Union(rubytype.WithoutFalsy(cur), t.evalExpr(rhs, env))
		}
	case "&&=":
		switch {
		case cur.IsStaticallyFalsy():
			result = cur
		case cur.IsStaticallyTruthy():
			result = t.evalExpr(rhs, env)
		default:
			result = rubytype.Union(falsyPart(cur), t.evalExpr(rhs, env))
		}
	default:
		// Compound arithmetic assignments (+=, -=, ...) are outside the
		// spec's truthiness rules; leave the variable's type unchanged.
		result = cur
	}

	out := env.clone()
	out[name] = result
	return out
}

func varName(n *rubyparse.Node, source []byte) string {
	return n.Content(source)
}

// --- expression evaluation ---

func (t *Tracker) evalExpr(n *rubyparse.Node, env Env) rubytype.Type {
	if n == nil {
		return rubytype.New(rubytype.Unknown)
	}
	switch n.Type {
	case "integer":
		return rubytype.New(rubytype.Integer)
	case "float":
		return rubytype.New(rubytype.Float)
	case "string", "string_content", "bare_string", "heredoc_body":
		return rubytype.New(rubytype.String)
	case "simple_symbol", "symbol", "hash_key_symbol", "bare_symbol":
		return rubytype.New(rubytype.Symbol)
	case "true":
		return rubytype.New(rubytype.TrueClass)
	case "false":
		return rubytype.New(rubytype.FalseClass)
	case "nil":
		return rubytype.New(rubytype.NilClass)
	case "identifier", "instance_variable", "class_variable", "global_variable":
		name := n.Content(t.source)
		if v, ok := env[name]; ok {
			return v
		}
		return rubytype.New(rubytype.Unknown)
	case "constant", "scope_resolution":
		if parts, ok := t.constPath(n); ok {
			return rubytype.NewClassReference(fqnFromParts(parts))
		}
		return rubytype.New(rubytype.Unknown)
	case "array":
		var elems []rubytype.Type
		for _, c := range n.Children {
			if isPunct(c.Type) {
				continue
			}
			elems = append(elems, t.evalExpr(c, env))
		}
		return rubytype.NewArray(rubytype.Union(elems...))
	case "hash":
		var keys, vals []rubytype.Type
		for _, c := range n.Children {
			if c.Type != "pair" || len(c.Children) < 2 {
				continue
			}
			keys = append(keys, t.evalExpr(c.Children[0], env))
			vals = append(vals, t.evalExpr(c.Children[len(c.Children)-1], env))
		}
		return rubytype.NewHash(rubytype.Union(keys...), rubytype.Union(vals...))
	case "call", "method_call":
		return t.evalCall(n, env)
	case "binary":
		return t.evalBinary(n, env)
	case "assignment":
		lhs, rhs := assignmentParts(n)
		if lhs == nil || rhs == nil {
			return rubytype.New(rubytype.Unknown)
		}
		return t.evalExpr(rhs, env)
	case "then", "else", "body_statement", "parenthesized_statements", "begin":
		return t.evalLast(n, env)
	case "return":
		for _, c := range n.Children {
			if !isLeafKeyword(c.Type) {
				return t.evalExpr(c, env)
			}
		}
		return rubytype.New(rubytype.NilClass)
	default:
		return rubytype.New(rubytype.Unknown)
	}
}

// evalLast types a block-like node by its last meaningful (non-keyword)
// child, the value Ruby gives any statement sequence used as an expression.
func (t *Tracker) evalLast(n *rubyparse.Node, env Env) rubytype.Type {
	stmts := bodyChildren(n)
	if len(stmts) == 0 {
		return rubytype.New(rubytype.NilClass)
	}
	return t.evalExpr(stmts[len(stmts)-1], env)
}

func (t *Tracker) evalCall(n *rubyparse.Node, env Env) rubytype.Type {
	receiver, method, hasReceiver := t.callParts(n)
	if !hasReceiver {
		return rubytype.New(rubytype.Unknown)
	}
	recvType := t.evalExpr(receiver, env)
	if method == "new" && recvType.Kind == rubytype.ClassReference {
		return rubytype.NewClass(recvType.FQN)
	}
	if t.resolver != nil {
		if rt, ok := t.resolver.ResolveMethodReturnType(recvType, method); ok {
			return rt
		}
	}
	return rubytype.New(rubytype.Unknown)
}

// callParts splits a call node into its receiver (nil if there is none)
// and bare method name.
func (t *Tracker) callParts(n *rubyparse.Node) (receiver *rubyparse.Node, method string, hasReceiver bool) {
	dotIdx := -1
	for i, c := range n.Children {
		if c.Type == "." || c.Type == "&." {
			dotIdx = i
			break
		}
	}
	if dotIdx < 0 {
		for _, c := range n.Children {
			if c.Type == "identifier" {
				return nil, c.Content(t.source), false
			}
		}
		return nil, "", false
	}
	if dotIdx > 0 {
		receiver = n.Children[dotIdx-1]
	}
	for i := dotIdx + 1; i < len(n.Children); i++ {
		c := n.Children[i]
		if c.Type == "identifier" || c.Type == "constant" {
			method = c.Content(t.source)
			break
		}
	}
	return receiver, method, receiver != nil
}

func (t *Tracker) evalBinary(n *rubyparse.Node, env Env) rubytype.Type {
	op, left, right := binaryParts(n)
	if left == nil || right == nil {
		return rubytype.New(rubytype.Unknown)
	}
	lt := t.evalExpr(left, env)
	switch op {
	case "||", "or":
		switch {
		case lt.IsStaticallyTruthy():
			return lt
		case lt.IsStaticallyFalsy():
			return t.evalExpr(right, env)
		default:
			return rubytype.Union(rubytype.WithoutFalsy(lt), t.evalExpr(right, env))
		}
	case "&&", "and":
		switch {
		case lt.IsStaticallyFalsy():
			return lt
		case lt.IsStaticallyTruthy():
			return t.evalExpr(right, env)
		default:
			return rubytype.Union(falsyPart(lt), t.evalExpr(right, env))
		}
	default:
		return rubytype.New(rubytype.Unknown)
	}
}

func binaryParts(n *rubyparse.Node) (op string, left, right *rubyparse.Node) {
	for i, c := range n.Children {
		switch c.Type {
		case "||", "or", "&&", "and":
			op = c.Type
			if i > 0 {
				left = n.Children[i-1]
			}
			if i+1 < len(n.Children) {
				right = n.Children[i+1]
			}
			return
		}
	}
	return "", nil, nil
}

// falsyPart returns the subset of t's possibilities that are statically
// falsy (nil/false), the dual of rubytype.WithoutFalsy used by the `&&`
// truthiness rule.
func falsyPart(t rubytype.Type) rubytype.Type {
	switch t.Kind {
	case rubytype.NilClass, rubytype.FalseClass:
		return t
	case rubytype.Union_:
		var kept []rubytype.Type
		for _, m := range t.Members {
			if m.Kind == rubytype.NilClass || m.Kind == rubytype.FalseClass {
				kept = append(kept, m)
			}
		}
		return rubytype.Union(kept...)
	default:
		return rubytype.New(rubytype.Unknown)
	}
}

// --- constant path resolution ---

func (t *Tracker) constPath(n *rubyparse.Node) ([]string, bool) {
	switch n.Type {
	case "constant":
		return []string{n.Content(t.source)}, true
	case "scope_resolution":
		var parts []string
		for _, c := range n.Children {
			switch c.Type {
			case "::":
				continue
			case "constant":
				parts = append(parts, c.Content(t.source))
			case "scope_resolution":
				inner, ok := t.constPath(c)
				if !ok {
					return nil, false
				}
				parts = append(parts, inner...)
			}
		}
		if len(parts) == 0 {
			return nil, false
		}
		return parts, true
	default:
		return nil, false
	}
}

func fqnFromParts(parts []string) rubyfqn.FQN {
	rc := make([]rubyfqn.RubyConstant, len(parts))
	for i, p := range parts {
		rc[i] = rubyfqn.RubyConstant(p)
	}
	return rubyfqn.Namespace(rc...)
}

// --- shared node-shape helpers ---

var leafKeywords = map[string]bool{
	"if": true, "unless": true, "then": true, "end": true,
	"while": true, "until": true, "do": true, "case": true,
	"begin": true,
}

func isLeafKeyword(t string) bool {
	return leafKeywords[t]
}

func isPunct(t string) bool {
	return t == "," || t == "[" || t == "]" || t == "(" || t == ")"
}

// bodyChildren returns n's children with leaf keyword tokens and
// punctuation filtered out: the statement list for a body_statement,
// then/else/when/begin clause, or similar block-shaped node. Pattern
// expressions preceding a when/in clause's body are harmlessly included;
// evaluating them as statements has no effect on the environment.
func bodyChildren(n *rubyparse.Node) []*rubyparse.Node {
	var out []*rubyparse.Node
	for _, c := range n.Children {
		t := c.Type
		if isLeafKeyword(t) || isPunct(t) || t == "when" || t == "in" || t == "else" || t == "elsif" {
			continue
		}
		out = append(out, c)
	}
	return out
}
