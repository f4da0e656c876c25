package fileproc

import (
	"strings"

	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/docstate"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/position"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyfqn"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyindex"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubyparse"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/rubytype"
	"github.com/ruby-fast-lsp/ruby-fast-lsp-go/internal/yarddoc"
)

// walker visits one file's AST maintaining the namespace stack, the
// visibility stack, and the current-method marker, emitting entries and
// references per the enabled options.
type walker struct {
	proc   *Processor
	uri    string
	source []byte
	mapper *position.Mapper
	opts   Options

	nsStack     []rubyfqn.RubyConstant
	visStack    []visFrame
	inSingleton int
	nextScope   docstate.ScopeID

	mixins          map[string][]rubyindex.MixinRef
	ownerFQNs       map[string]rubyfqn.FQN
	mixinOwnerOrder []string

	localVars []docstate.LocalVariableEntry
}

// visFrame is one class/module body's visibility state.
type visFrame struct {
	current    rubyindex.Visibility
	moduleFunc bool
}

// walkBody processes a namespace-level statement list (program, class
// body, module body), threading the pending YARD comment run so a
// comment block immediately preceding a def attaches to it.
func (w *walker) walkBody(stmts []*rubyparse.Node, pending []*rubyparse.Node) {
	for _, stmt := range stmts {
		switch stmt.Type {
		case "comment":
			pending = appendComment(pending, stmt)
			continue

		case "class":
			w.enterNamespace(stmt, rubyindex.KindClass)
		case "module":
			w.enterNamespace(stmt, rubyindex.KindModule)

		case "singleton_class":
			// `class << self`: defs inside are singleton methods.
			w.inSingleton++
			w.walkBody(bodyStatements(stmt), nil)
			w.inSingleton--

		case "method":
			w.emitMethod(stmt, yardRun(pending, stmt), false)
		case "singleton_method":
			w.emitMethod(stmt, yardRun(pending, stmt), true)

		case "assignment":
			w.handleNamespaceAssignment(stmt)

		case "call":
			w.handleCall(stmt)

		case "identifier":
			if !w.handleVisibilityKeyword(stmt.Content(w.source)) {
				// A bare identifier at statement level is a receiverless
				// call; treat it as a method reference.
				w.collectRefs(stmt, docstate.ScopeID(-1))
			}

		default:
			w.collectRefs(stmt, docstate.ScopeID(-1))
		}
		pending = nil
	}
}

// appendComment extends the pending run only while comments stay
// contiguous; a blank line between comments breaks the block.
func appendComment(pending []*rubyparse.Node, c *rubyparse.Node) []*rubyparse.Node {
	if len(pending) > 0 {
		last := pending[len(pending)-1]
		if c.StartPoint.Row != last.EndPoint.Row+1 {
			return []*rubyparse.Node{c}
		}
	}
	return append(pending, c)
}

// yardRun returns the pending comment run, provided it ends on the line
// directly above the definition; otherwise the comments belong to
// something else and are dropped.
func yardRun(pending []*rubyparse.Node, def *rubyparse.Node) []*rubyparse.Node {
	if len(pending) == 0 {
		return nil
	}
	if pending[len(pending)-1].EndPoint.Row+1 != def.StartPoint.Row {
		return nil
	}
	return pending
}

// parseYard lexes a comment run into a YARD doc, stripping the leading
// "#" and one space from each line as yarddoc.Parse expects.
func (w *walker) parseYard(run []*rubyparse.Node) *yarddoc.Doc {
	if len(run) == 0 {
		return nil
	}
	lines := make([]string, len(run))
	for i, c := range run {
		line := c.Content(w.source)
		line = strings.TrimPrefix(line, "#")
		line = strings.TrimPrefix(line, " ")
		lines[i] = line
	}
	return yarddoc.Parse(lines)
}

// enterNamespace handles a class or module node: emit its entry, push
// its name parts and a fresh visibility frame, walk the body, pop.
func (w *walker) enterNamespace(node *rubyparse.Node, kind rubyindex.EntryKind) {
	nameNode := namespaceNameNode(node)
	if nameNode == nil {
		return
	}
	parts := constantPathParts(nameNode, w.source)
	if len(parts) == 0 {
		return
	}

	w.nsStack = append(w.nsStack, parts...)
	fqn := rubyfqn.Namespace(w.nsStack...)

	if w.opts.IndexDefinitions {
		entry := rubyindex.Entry{
			FQN:      fqn,
			Kind:     kind,
			Location: w.loc(nameNode),
		}
		if kind == rubyindex.KindClass {
			if sup := node.FindChildByType("superclass"); sup != nil {
				if supName := firstConstantish(sup); supName != nil {
					ref := rubyindex.MixinRef{Path: toRubyConstants(constantPathParts(supName, w.source))}
					entry.Superclass = &ref
				}
			}
		}
		w.proc.idx.AddEntry(entry)
		w.rememberOwner(fqn)
	}

	if w.opts.IndexReferences {
		if sup := node.FindChildByType("superclass"); sup != nil {
			if supName := firstConstantish(sup); supName != nil {
				w.referenceConstant(supName)
			}
		}
	}

	w.visStack = append(w.visStack, visFrame{current: rubyindex.Public})
	w.walkBody(bodyStatements(node), nil)
	w.visStack = w.visStack[:len(w.visStack)-1]
	w.nsStack = w.nsStack[:len(w.nsStack)-len(parts)]
}

// rememberOwner records owner in the mixin bookkeeping maps so its
// (possibly empty) ref list is written back at the end of the walk,
// resetting stale refs from a prior version of the file.
func (w *walker) rememberOwner(fqn rubyfqn.FQN) {
	key := fqn.String()
	if w.ownerFQNs == nil {
		w.ownerFQNs = make(map[string]rubyfqn.FQN)
	}
	if _, ok := w.ownerFQNs[key]; !ok {
		w.ownerFQNs[key] = fqn
		w.mixinOwnerOrder = append(w.mixinOwnerOrder, key)
		if _, ok := w.mixins[key]; !ok {
			w.mixins[key] = nil
		}
	}
}

// emitMethod handles a method or singleton_method node.
func (w *walker) emitMethod(node *rubyparse.Node, yard []*rubyparse.Node, singleton bool) {
	nameNode := methodNameNode(node)
	if nameNode == nil {
		return
	}
	name := rubyfqn.MethodName(nameNode.Content(w.source))

	singleton = singleton || w.inSingleton > 0
	frame := w.currentVis()

	var fqn rubyfqn.FQN
	kind := rubyindex.MethodInstance
	if singleton {
		fqn = rubyfqn.ModuleMethod(w.nsStack, name)
		kind = rubyindex.MethodSingleton
	} else if frame.moduleFunc {
		fqn = rubyfqn.ModuleMethod(w.nsStack, name)
		kind = rubyindex.MethodModuleFunc
	} else {
		fqn = rubyfqn.InstanceMethod(w.nsStack, name)
	}

	if w.opts.IndexDefinitions {
		entry := rubyindex.Entry{
			FQN:        fqn,
			Kind:       rubyindex.KindMethod,
			MethodKind: kind,
			Location:   w.loc(nameNode),
			Owner:      rubyfqn.Namespace(w.nsStack...),
			Visibility: frame.current,
			Parameters: methodParams(node, w.source),
			YardDoc:    w.parseYard(yard),
		}
		w.proc.idx.AddEntry(entry)
	}

	body := node.FindChildByType("body_statement")
	if body == nil {
		return
	}

	scope := docstate.ScopeID(-1)
	if w.opts.IncludeLocalVars {
		scope = w.nextScope
		w.nextScope++
	}
	for _, stmt := range body.Children {
		w.collectRefs(stmt, scope)
	}
}

func (w *walker) currentVis() visFrame {
	if len(w.visStack) == 0 {
		return visFrame{current: rubyindex.Public}
	}
	return w.visStack[len(w.visStack)-1]
}

// handleNamespaceAssignment emits Constant / instance- / class- /
// global-variable entries for assignments at namespace level.
func (w *walker) handleNamespaceAssignment(node *rubyparse.Node) {
	lhs, rhs := assignmentSides(node)
	if lhs == nil {
		return
	}

	if w.opts.IndexDefinitions {
		switch lhs.Type {
		case "constant":
			name := lhs.Content(w.source)
			value := ""
			if rhs != nil {
				value = truncate(strings.TrimSpace(rhs.Content(w.source)), 120)
			}
			parts := append(append([]rubyfqn.RubyConstant(nil), w.nsStack...), rubyfqn.RubyConstant(name))
			w.proc.idx.AddEntry(rubyindex.Entry{
				FQN:      rubyfqn.Constant(parts...),
				Kind:     rubyindex.KindConstant,
				Location: w.loc(lhs),
				Value:    &value,
			})
		case "instance_variable", "class_variable", "global_variable":
			w.emitVariableEntry(lhs)
		}
	}

	if rhs != nil {
		w.collectRefs(rhs, docstate.ScopeID(-1))
	}
}

// emitVariableEntry records an instance/class/global variable write as an
// index entry keyed under its owner's namespace path.
func (w *walker) emitVariableEntry(lhs *rubyparse.Node) {
	name := lhs.Content(w.source)
	var kind rubyindex.EntryKind
	var parts []rubyfqn.RubyConstant
	switch lhs.Type {
	case "instance_variable":
		kind = rubyindex.KindInstanceVariable
		parts = append(append([]rubyfqn.RubyConstant(nil), w.nsStack...), rubyfqn.RubyConstant(name))
	case "class_variable":
		kind = rubyindex.KindClassVariable
		parts = append(append([]rubyfqn.RubyConstant(nil), w.nsStack...), rubyfqn.RubyConstant(name))
	case "global_variable":
		kind = rubyindex.KindGlobalVariable
		parts = []rubyfqn.RubyConstant{rubyfqn.RubyConstant(name)}
	default:
		return
	}
	w.proc.idx.AddEntry(rubyindex.Entry{
		FQN:      rubyfqn.Constant(parts...),
		Kind:     kind,
		Location: w.loc(lhs),
		Name:     name,
		VarType:  rubytype.New(rubytype.Unknown),
	})
}

// handleCall dispatches namespace-level call statements: mixin
// declarations, visibility modifiers, and ordinary calls (which become
// references).
func (w *walker) handleCall(node *rubyparse.Node) {
	receiver, methodNode := callParts(node)
	method := ""
	if methodNode != nil {
		method = methodNode.Content(w.source)
	}

	if receiver == nil {
		switch method {
		case "include", "extend", "prepend":
			w.handleMixinCall(node, method)
			return
		case "attr_reader", "attr_writer", "attr_accessor":
			w.handleAttrCall(node, method)
			return
		case "private", "public", "protected":
			args := node.FindChildByType("argument_list")
			if args == nil || len(args.Children) == 0 {
				w.handleVisibilityKeyword(method)
				return
			}
			// `private def foo; end`: the argument is the definition
			// itself, carrying the modifier's visibility.
			if def := args.FindChildByType("method"); def != nil {
				w.withVisibility(visibilityFromName(method), func() {
					w.emitMethod(def, nil, false)
				})
				return
			}
			// `private :foo` style post-hoc markers are accepted but not
			// re-applied to already-emitted entries.
			return
		case "module_function":
			if args := node.FindChildByType("argument_list"); args == nil || len(args.Children) == 0 {
				if len(w.visStack) > 0 {
					w.visStack[len(w.visStack)-1].moduleFunc = true
				}
				return
			}
		}
	}

	w.collectRefs(node, docstate.ScopeID(-1))
}

func (w *walker) withVisibility(v rubyindex.Visibility, fn func()) {
	if len(w.visStack) == 0 {
		w.visStack = append(w.visStack, visFrame{current: v})
		fn()
		w.visStack = w.visStack[:0]
		return
	}
	top := len(w.visStack) - 1
	prev := w.visStack[top].current
	w.visStack[top].current = v
	fn()
	w.visStack[top].current = prev
}

// handleMixinCall records include/extend/prepend declarations on the
// current owner, and emits constant references for their targets.
func (w *walker) handleMixinCall(node *rubyparse.Node, method string) {
	args := node.FindChildByType("argument_list")
	if args == nil {
		return
	}

	var kind rubyindex.MixinKind
	switch method {
	case "extend":
		kind = rubyindex.MixinExtend
	case "prepend":
		kind = rubyindex.MixinPrepend
	default:
		kind = rubyindex.MixinInclude
	}

	owner := rubyfqn.Namespace(w.nsStack...)
	for _, arg := range args.Children {
		if arg.Type != "constant" && arg.Type != "scope_resolution" {
			continue
		}
		if w.opts.IndexDefinitions && len(w.nsStack) > 0 {
			key := owner.String()
			w.rememberOwner(owner)
			w.mixins[key] = append(w.mixins[key], rubyindex.MixinRef{
				Kind: kind,
				Path: toRubyConstants(constantPathParts(arg, w.source)),
			})
		}
		if w.opts.IndexReferences {
			w.referenceConstant(arg)
		}
	}
}

// handleAttrCall synthesises reader/writer method entries for
// attr_reader/attr_writer/attr_accessor declarations, located at the
// symbol argument naming them.
func (w *walker) handleAttrCall(node *rubyparse.Node, method string) {
	if !w.opts.IndexDefinitions {
		return
	}
	args := node.FindChildByType("argument_list")
	if args == nil {
		return
	}

	frame := w.currentVis()
	for _, arg := range args.Children {
		if arg.Type != "simple_symbol" {
			continue
		}
		name := strings.TrimPrefix(arg.Content(w.source), ":")
		if name == "" {
			continue
		}

		if method == "attr_reader" || method == "attr_accessor" {
			w.proc.idx.AddEntry(rubyindex.Entry{
				FQN:        rubyfqn.InstanceMethod(w.nsStack, rubyfqn.MethodName(name)),
				Kind:       rubyindex.KindMethod,
				MethodKind: rubyindex.MethodInstance,
				Location:   w.loc(arg),
				Owner:      rubyfqn.Namespace(w.nsStack...),
				Visibility: frame.current,
			})
		}
		if method == "attr_writer" || method == "attr_accessor" {
			w.proc.idx.AddEntry(rubyindex.Entry{
				FQN:        rubyfqn.InstanceMethod(w.nsStack, rubyfqn.MethodName(name+"=")),
				Kind:       rubyindex.KindMethod,
				MethodKind: rubyindex.MethodInstance,
				Location:   w.loc(arg),
				Owner:      rubyfqn.Namespace(w.nsStack...),
				Visibility: frame.current,
				Parameters: []rubyindex.Param{{Name: "value", Kind: rubyindex.ParamRequired}},
			})
		}
	}
}

// handleVisibilityKeyword reacts to a bare private/public/protected
// statement, flipping the current frame's default visibility.
func (w *walker) handleVisibilityKeyword(name string) bool {
	switch name {
	case "private", "public", "protected":
	default:
		return false
	}
	if len(w.visStack) == 0 {
		return true
	}
	w.visStack[len(w.visStack)-1].current = visibilityFromName(name)
	return true
}

func visibilityFromName(name string) rubyindex.Visibility {
	switch name {
	case "private":
		return rubyindex.Private
	case "protected":
		return rubyindex.Protected
	default:
		return rubyindex.Public
	}
}

// loc converts a node's byte span into a Location with UTF-16 columns.
func (w *walker) loc(n *rubyparse.Node) rubyindex.Location {
	return rubyindex.Location{
		URI:   w.uri,
		Range: w.mapper.RangeFromOffsets(int(n.StartByte), int(n.EndByte)),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
