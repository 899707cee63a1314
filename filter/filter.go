// Package filter builds predicate trees that the SQL generator compiles
// into a WHERE clause (§4.C). A Builder accumulates a flat sequence of
// nodes — groups, joins, predicates — in call order; adjacent predicates
// with no explicit join default to an implicit And.
package filter

import "github.com/docxology/tychostore/selector"

// Kind enumerates predicate comparison operators (§4.C).
type Kind int

const (
	Eq Kind = iota
	NotEq
	StartsWith
	EndsWith
	Contains
	Gt
	Ge
	Lt
	Le
)

// Join is the boolean connective between two predicates/groups.
type Join int

const (
	And Join = iota
	Or
)

type nodeKind int

const (
	nodePredicate nodeKind = iota
	nodeJoin
	nodeGroupStart
	nodeGroupEnd
)

// Predicate is one leaf comparison. For a list-any predicate, ListPath is
// the path up to the array and InnerPath addresses a field of each element;
// for a plain predicate only Path is set.
type Predicate struct {
	Kind      Kind
	Path      selector.Path
	ListPath  string
	InnerPath string
	IsListAny bool
	Value     any
}

type node struct {
	kind nodeKind
	join Join
	pred Predicate
}

// Builder accumulates filter nodes in the order callers add them. The zero
// value is usable (nil *Builder also safely means "no filter").
type Builder struct {
	nodes       []node
	pendingJoin *Join
	needsJoin   bool
}

// New starts an empty filter.
func New() *Builder { return &Builder{} }

func (b *Builder) appendJoinIfNeeded() {
	if !b.needsJoin {
		return
	}
	j := And
	if b.pendingJoin != nil {
		j = *b.pendingJoin
	}
	b.nodes = append(b.nodes, node{kind: nodeJoin, join: j})
	b.pendingJoin = nil
	b.needsJoin = false
}

// Filter appends a plain scalar predicate at path.
func (b *Builder) Filter(kind Kind, path selector.Path, value any) *Builder {
	b.appendJoinIfNeeded()
	b.nodes = append(b.nodes, node{kind: nodePredicate, pred: Predicate{
		Kind: kind, Path: path, Value: value,
	}})
	b.needsJoin = true
	return b
}

// FilterAny appends a list-any predicate: holds when some element of the
// JSON array at listPath satisfies kind(value) against innerPath of that
// element (§4.C, "a single variant that targets a list field"). innerPath's
// type hint (AsNumeric/AsBool/AsDateTime) drives the same coercion rules a
// plain Filter predicate gets.
func (b *Builder) FilterAny(kind Kind, listPath selector.Path, innerPath selector.Path, value any) *Builder {
	b.appendJoinIfNeeded()
	b.nodes = append(b.nodes, node{kind: nodePredicate, pred: Predicate{
		Kind: kind, Path: innerPath, ListPath: listPath.Dotted(), InnerPath: innerPath.Dotted(),
		IsListAny: true, Value: value,
	}})
	b.needsJoin = true
	return b
}

// And forces the next predicate to join with And (otherwise the default).
func (b *Builder) And() *Builder {
	j := And
	b.pendingJoin = &j
	return b
}

// Or forces the next predicate to join with Or.
func (b *Builder) Or() *Builder {
	j := Or
	b.pendingJoin = &j
	return b
}

// Group opens a parenthesized subgroup; call GroupEnd to close it.
func (b *Builder) Group() *Builder {
	b.appendJoinIfNeeded()
	b.nodes = append(b.nodes, node{kind: nodeGroupStart})
	b.needsJoin = false
	return b
}

// GroupEnd closes the most recently opened Group.
func (b *Builder) GroupEnd() *Builder {
	b.nodes = append(b.nodes, node{kind: nodeGroupEnd})
	b.needsJoin = true
	return b
}

// Node is one element of the neutral sequence Render produces for the SQL
// generator: a predicate, a join, or a group open/end marker.
type Node struct {
	IsPredicate bool
	IsGroupOpen bool
	IsGroupEnd  bool
	Join        Join
	HasJoin     bool
	Pred        Predicate
}

// Render linearises the builder into the neutral Node sequence the SQL
// generator walks. A nil Builder renders to an empty (always-true) filter.
func Render(b *Builder) []Node {
	if b == nil {
		return nil
	}
	out := make([]Node, 0, len(b.nodes))
	for _, n := range b.nodes {
		switch n.kind {
		case nodePredicate:
			out = append(out, Node{IsPredicate: true, Pred: n.pred})
		case nodeJoin:
			out = append(out, Node{HasJoin: true, Join: n.join})
		case nodeGroupStart:
			out = append(out, Node{IsGroupOpen: true})
		case nodeGroupEnd:
			out = append(out, Node{IsGroupEnd: true})
		}
	}
	return out
}
