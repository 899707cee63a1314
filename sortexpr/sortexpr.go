// Package sortexpr builds the ordered (path, direction, type-hint) list the
// SQL generator renders as ORDER BY (§4.D).
package sortexpr

import "github.com/docxology/tychostore/selector"

// Direction is ascending or descending.
type Direction int

const (
	Asc Direction = iota
	Desc
)

// Term is one ORDER BY entry.
type Term struct {
	Path      selector.Path
	Direction Direction
}

// Builder accumulates an ordered sequence of sort terms.
type Builder struct {
	terms []Term
}

// New starts an empty sort list.
func New() *Builder { return &Builder{} }

// By appends an ascending term for path.
func (b *Builder) By(path selector.Path) *Builder {
	b.terms = append(b.terms, Term{Path: path, Direction: Asc})
	return b
}

// ByDesc appends a descending term for path.
func (b *Builder) ByDesc(path selector.Path) *Builder {
	b.terms = append(b.terms, Term{Path: path, Direction: Desc})
	return b
}

// Terms exposes the accumulated sequence. A nil Builder yields no terms.
func Terms(b *Builder) []Term {
	if b == nil {
		return nil
	}
	return append([]Term{}, b.terms...)
}
