// Package macro provides the macro table: macro definitions are hoisted out
// of the parsed template, checked for duplicates, unresolved names and
// recursion, and every call site is expanded by AST substitution before code
// generation.
package macro

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dhbaird/rtemplate/internal/dag"
	"github.com/dhbaird/rtemplate/pkg/template"
)

// ResolutionError reports a macro resolution failure: an unresolved or
// duplicate name, an arity mismatch, or a recursion cycle.
type ResolutionError struct {
	Macro   string
	Cycle   []string
	Message string
}

func (e *ResolutionError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("resolution error: recursive macro: %s", strings.Join(e.Cycle, " -> "))
	}
	return fmt.Sprintf("resolution error: macro %q: %s", e.Macro, e.Message)
}

// Registry maps macro names to their hoisted definitions. Built in one pass
// over the body AST; immutable afterwards. After resolution it also holds
// the macro call graph.
type Registry struct {
	macros map[string]*template.MacroDef
	graph  *dag.Graph
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{macros: make(map[string]*template.MacroDef)}
}

// Get returns the definition for a macro name.
func (r *Registry) Get(name string) (*template.MacroDef, bool) {
	def, ok := r.macros[name]
	return def, ok
}

// Names returns all registered macro names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.macros))
	for name := range r.macros {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// register inserts a definition; a duplicate name is an error.
func (r *Registry) register(def *template.MacroDef) error {
	if _, exists := r.macros[def.Name]; exists {
		return &ResolutionError{Macro: def.Name, Message: "macro redefined"}
	}
	r.macros[def.Name] = def
	return nil
}

// Resolve hoists macro definitions out of body, validates the macro table
// (duplicates, unresolved names, arity, recursion) and returns a new body
// with every macro call inlined. The input AST is not mutated.
func Resolve(body *template.Sequence) (*template.Sequence, *Registry, error) {
	reg := NewRegistry()

	// Pass 1: hoist definitions, keep everything else.
	stripped := &template.Sequence{Pos: body.Pos}
	for _, child := range body.Children {
		if def, ok := child.(*template.MacroDef); ok {
			if err := reg.register(def); err != nil {
				return nil, nil, err
			}
			continue
		}
		stripped.Children = append(stripped.Children, child)
	}

	// Pass 2: static checks over every call site.
	if err := reg.validateCalls(stripped); err != nil {
		return nil, nil, err
	}
	for _, name := range reg.Names() {
		if err := reg.validateCalls(reg.macros[name].Body); err != nil {
			return nil, nil, err
		}
	}

	// Pass 3: cycle detection over the macro call graph.
	if err := reg.checkCycles(); err != nil {
		return nil, nil, err
	}

	// Pass 4: inline expansion.
	inlined, err := reg.inlineSequence(stripped, nil)
	if err != nil {
		return nil, nil, err
	}
	return inlined, reg, nil
}

// validateCalls checks that every MacroCall under node resolves to a known
// macro with matching arity.
func (r *Registry) validateCalls(node template.Node) error {
	switch n := node.(type) {
	case *template.Sequence:
		for _, child := range n.Children {
			if err := r.validateCalls(child); err != nil {
				return err
			}
		}
	case *template.Loop:
		return r.validateCalls(n.Body)
	case *template.Insert:
		return r.validateCalls(n.Body)
	case *template.MacroCall:
		def, ok := r.macros[n.Name]
		if !ok {
			return &ResolutionError{Macro: n.Name, Message: "unresolved macro name"}
		}
		if len(n.Args) != len(def.Params) {
			return &ResolutionError{Macro: n.Name,
				Message: fmt.Sprintf("wants %d argument(s), got %d", len(def.Params), len(n.Args))}
		}
	}
	return nil
}

// checkCycles builds the macro call graph and rejects direct or indirect
// self-reference. The graph is kept for Calls and ExpansionOrder.
func (r *Registry) checkCycles() error {
	g := dag.NewGraph()
	for name := range r.macros {
		g.AddNode(name)
	}
	for name, def := range r.macros {
		for _, callee := range collectCalls(def.Body) {
			if name == callee {
				return &ResolutionError{Macro: name, Cycle: []string{name, name}}
			}
			if err := g.AddEdge(name, callee); err != nil {
				return &ResolutionError{Macro: name, Message: err.Error()}
			}
		}
	}
	if hasCycle, path := g.HasCycle(); hasCycle {
		return &ResolutionError{Macro: path[0], Cycle: path}
	}
	r.graph = g
	return nil
}

// Calls returns the macros a macro's body directly calls.
func (r *Registry) Calls(name string) []string {
	if r.graph == nil || !r.graph.HasNode(name) {
		return nil
	}
	return r.graph.Callees(name)
}

// ExpansionOrder returns macro names with callees before their callers,
// the order in which macro bodies become fully expanded.
func (r *Registry) ExpansionOrder() []string {
	if r.graph == nil {
		return r.Names()
	}
	order, err := r.graph.TopologicalSort()
	if err != nil {
		return r.Names()
	}
	return order
}

// collectCalls returns the names of macros called anywhere under node.
func collectCalls(node template.Node) []string {
	var names []string
	switch n := node.(type) {
	case *template.Sequence:
		for _, child := range n.Children {
			names = append(names, collectCalls(child)...)
		}
	case *template.Loop:
		names = append(names, collectCalls(n.Body)...)
	case *template.Insert:
		names = append(names, collectCalls(n.Body)...)
	case *template.MacroCall:
		names = append(names, n.Name)
	}
	return names
}

// paramRef matches a @param occurrence in an expression.
var paramRef = regexp.MustCompile(`@[a-z][A-Za-z0-9_]*`)

// substitute replaces @param occurrences in an expression with their bound
// argument expressions. Unbound parameters are an error.
func substitute(expr string, binds map[string]string) (string, error) {
	var substErr error
	out := paramRef.ReplaceAllStringFunc(expr, func(name string) string {
		if arg, ok := binds[name]; ok {
			return arg
		}
		if substErr == nil {
			substErr = &ResolutionError{Macro: name,
				Message: "macro parameter used outside a macro body"}
		}
		return name
	})
	if substErr != nil {
		return "", substErr
	}
	return out, nil
}

// inlineSequence clones seq with binds applied and every macro call replaced
// by its expanded body. Expanded bodies are spliced into the parent so the
// result contains no nested Sequence nodes.
func (r *Registry) inlineSequence(seq *template.Sequence, binds map[string]string) (*template.Sequence, error) {
	out := &template.Sequence{Pos: seq.Pos}
	for _, child := range seq.Children {
		node, err := r.inlineNode(child, binds)
		if err != nil {
			return nil, err
		}
		if sub, ok := node.(*template.Sequence); ok {
			out.Children = append(out.Children, sub.Children...)
			continue
		}
		out.Children = append(out.Children, node)
	}
	return out, nil
}

func (r *Registry) inlineNode(node template.Node, binds map[string]string) (template.Node, error) {
	switch n := node.(type) {
	case *template.Text:
		return n, nil
	case *template.FieldRef:
		expr, err := substitute(n.Expr, binds)
		if err != nil {
			return nil, err
		}
		return &template.FieldRef{Expr: expr, Pos: n.Pos}, nil
	case *template.Loop:
		table, err := substitute(n.Table, binds)
		if err != nil {
			return nil, err
		}
		where, err := substitute(n.Where, binds)
		if err != nil {
			return nil, err
		}
		orderBy, err := substitute(n.OrderBy, binds)
		if err != nil {
			return nil, err
		}
		body, err := r.inlineSequence(n.Body, binds)
		if err != nil {
			return nil, err
		}
		return &template.Loop{
			Table:   table,
			Alias:   n.Alias,
			Where:   where,
			OrderBy: orderBy,
			Desc:    n.Desc,
			Sep:     n.Sep,
			Body:    body,
			Pos:     n.Pos,
		}, nil
	case *template.Insert:
		values := make([]string, len(n.Values))
		for i, v := range n.Values {
			subst, err := substitute(v, binds)
			if err != nil {
				return nil, err
			}
			values[i] = subst
		}
		from, err := substitute(n.From, binds)
		if err != nil {
			return nil, err
		}
		body, err := r.inlineSequence(n.Body, binds)
		if err != nil {
			return nil, err
		}
		return &template.Insert{
			Table:   n.Table,
			Columns: n.Columns,
			Values:  values,
			From:    from,
			Body:    body,
			Pos:     n.Pos,
		}, nil
	case *template.MacroCall:
		def := r.macros[n.Name] // validated earlier
		callBinds := make(map[string]string, len(def.Params))
		for i, param := range def.Params {
			arg, err := substitute(n.Args[i], binds)
			if err != nil {
				return nil, err
			}
			callBinds[param] = arg
		}
		return r.inlineSequence(def.Body, callBinds)
	case *template.MacroDef:
		// Parser only allows definitions at the top level; hoisting removed
		// them before inlining.
		return nil, &ResolutionError{Macro: n.Name, Message: "unexpected macro definition during inlining"}
	case *template.Sequence:
		return r.inlineSequence(n, binds)
	}
	return nil, fmt.Errorf("unknown AST node %T", node)
}
