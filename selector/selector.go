// Package selector is the neutral property-path model every query-building
// component (filter, sortexpr, the SQL generator) consumes. A Path is a
// sequence of segments reduced from a host-language property accessor; see
// Design Notes in SPEC_FULL.md for why Go uses a combinator API rather than
// the original's expression-tree reflection.
package selector

import "strings"

// SegmentKind distinguishes a plain field hop from a list-expansion marker.
type SegmentKind int

const (
	Field SegmentKind = iota
	ListAny
)

// Segment is one hop in a Path: a field name, or a request to expand a
// JSON array and continue matching against each element's "value".
type Segment struct {
	Kind SegmentKind
	Name string
}

// TypeHint records the terminal member's scalar type, driving SQL-level
// coercion in the generator (§4.E.2).
type TypeHint int

const (
	TypeText TypeHint = iota
	TypeNumeric
	TypeBool
	TypeDateTime
)

// Path is the compiled neutral selector: a sequence of segments plus the
// terminal member's type flags.
type Path struct {
	Segments []Segment
	Hint     TypeHint
}

// New starts a Path rooted at the given top-level field.
func New(field string) Path {
	return Path{Segments: []Segment{{Kind: Field, Name: field}}}
}

// Of parses a dotted string path ("Value.ValueC.IntProperty") into the same
// neutral form New/Field produce — Design Notes option (a).
func Of(dotted string) Path {
	var p Path
	for _, part := range strings.Split(dotted, ".") {
		if part == "" {
			continue
		}
		p.Segments = append(p.Segments, Segment{Kind: Field, Name: part})
	}
	return p
}

// Field appends a plain member hop.
func (p Path) Field(name string) Path {
	p.Segments = append(append([]Segment{}, p.Segments...), Segment{Kind: Field, Name: name})
	return p
}

// Any marks name as a list field to be expanded via json_each; the path
// continuing after Any addresses a property of each element ("value").
func (p Path) Any(name string) Path {
	p.Segments = append(append([]Segment{}, p.Segments...), Segment{Kind: ListAny, Name: name})
	return p
}

func (p Path) AsNumeric() Path  { p.Hint = TypeNumeric; return p }
func (p Path) AsBool() Path     { p.Hint = TypeBool; return p }
func (p Path) AsDateTime() Path { p.Hint = TypeDateTime; return p }

func (p Path) IsNumeric() bool  { return p.Hint == TypeNumeric }
func (p Path) IsBool() bool     { return p.Hint == TypeBool }
func (p Path) IsDateTime() bool { return p.Hint == TypeDateTime }

// ListSplit returns (listPath, innerPath, ok): if the path contains exactly
// one ListAny segment, listPath is the dotted JSON path up to and including
// it, innerPath is the dotted path of the remaining segments (addressed
// against each array element), and ok is true. Paths with zero or more
// than one ListAny segment return ok=false — list-any predicates target a
// single level of array expansion (§4.C).
func (p Path) ListSplit() (listPath string, innerPath string, ok bool) {
	idx := -1
	for i, seg := range p.Segments {
		if seg.Kind == ListAny {
			if idx != -1 {
				return "", "", false
			}
			idx = i
		}
	}
	if idx == -1 {
		return "", "", false
	}
	listSegs := p.Segments[:idx+1]
	innerSegs := p.Segments[idx+1:]
	return joinDotted(listSegs), joinDotted(innerSegs), true
}

// Dotted renders the full path as a dotted JSON-pointer-like string,
// ignoring list-any semantics (used when the caller has already verified
// this is not a list-any path).
func (p Path) Dotted() string { return joinDotted(p.Segments) }

func joinDotted(segs []Segment) string {
	names := make([]string, len(segs))
	for i, s := range segs {
		names[i] = s.Name
	}
	return strings.Join(names, ".")
}

// JSONPath renders segs as a SQLite json_extract path: "$.a.b.c".
func JSONPath(dotted string) string {
	if dotted == "" {
		return "$"
	}
	return "$." + dotted
}
