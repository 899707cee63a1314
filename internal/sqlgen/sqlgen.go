// Package sqlgen is the SQL generator (§4.E): it renders a filter tree and
// sort list into a parameterised SELECT statement against the documents
// table (callers choose the selected columns: data, a projection, COUNT, or
// the ids DeleteObjects then deletes one by one), substituting indexed generated columns where available
// and applying the predicate's declared type coercion (never runtime
// inspection of the bound value).
//
// Placeholders are positional "?" — the idiom every sqlite-backed example
// in the reference corpus uses (teamcontext, sqliteindexer,
// trifle_stats_go) with database/sql, rather than spec.md's illustrative
// ":name" syntax, which belongs to the original's own driver.
package sqlgen

import (
	"fmt"
	"strings"
	"time"

	"github.com/docxology/tychostore/filter"
	"github.com/docxology/tychostore/internal/index"
	"github.com/docxology/tychostore/selector"
	"github.com/docxology/tychostore/sortexpr"
	"github.com/docxology/tychostore/terr"
)

// Query carries everything the generator needs to compile one statement.
type Query struct {
	FullTypeName   string
	Partition      string
	Filter         *filter.Builder
	Sort           *sortexpr.Builder
	Limit          *int
	Indexes        []index.Meta
	DatetimeLayout string
}

// Result is the compiled statement.
type Result struct {
	From  string // always "documents": list-any predicates are self-contained
	// EXISTS subqueries (§4.E.1), not FROM-level json_each joins, so a
	// document with several qualifying array elements still contributes
	// exactly one row.
	Where string // everything after WHERE (not including the word itself)
	Order string // everything after ORDER BY, or ""
	Limit string // "LIMIT ?" or ""
	Args  []any  // positional args in emission order: WHERE args in
	// predicate order, LIMIT arg (if any) last.
}

// SQL assembles a full SELECT statement selecting cols from Result.
func (r Result) SQL(cols string) string {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(cols)
	b.WriteString(" FROM ")
	b.WriteString(r.From)
	b.WriteString(" WHERE ")
	b.WriteString(r.Where)
	if r.Order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(r.Order)
	}
	if r.Limit != "" {
		b.WriteString(" ")
		b.WriteString(r.Limit)
	}
	return b.String()
}

// Build compiles q into a Result.
func Build(q Query) (Result, error) {
	var args []any
	var where strings.Builder

	where.WriteString("partition = ? AND full_type_name = ?")
	args = append(args, q.Partition, q.FullTypeName)

	nodes := filter.Render(q.Filter)
	if len(nodes) > 0 {
		// The filter tree is parenthesized as a unit: AND binds tighter
		// than OR in SQL, so a bare "base AND a OR b" would scope the
		// base predicate onto only the first disjunct instead of the
		// whole expression. Wrapping keeps partition/type scoping correct
		// regardless of what join the caller's top-level predicates use.
		where.WriteString(" AND (")
	}
	for i, n := range nodes {
		switch {
		case n.IsGroupOpen:
			where.WriteString("(")
		case n.IsGroupEnd:
			where.WriteString(")")
		case n.HasJoin:
			if n.Join == filter.Or {
				where.WriteString(" OR")
			} else {
				where.WriteString(" AND")
			}
			where.WriteString(" ")
		case n.IsPredicate:
			if i > 0 && needsImplicitAnd(nodes, i) {
				where.WriteString(" AND ")
			}
			frag, fargs, err := renderPredicate(n.Pred, q.Indexes, q.DatetimeLayout)
			if err != nil {
				return Result{}, err
			}
			where.WriteString(frag)
			args = append(args, fargs...)
		}
	}
	if len(nodes) > 0 {
		where.WriteString(")")
	}

	var order string
	for i, t := range sortexpr.Terms(q.Sort) {
		if i > 0 {
			order += ", "
		}
		col := resolveColumn(t.Path, q.Indexes)
		col = coerceForCompare(col, t.Path)
		dir := "ASC"
		if t.Direction == sortexpr.Desc {
			dir = "DESC"
		}
		order += col + " " + dir
	}

	limitClause := ""
	if q.Limit != nil {
		limitClause = "LIMIT ?"
		args = append(args, *q.Limit)
	}

	return Result{From: "documents", Where: where.String(), Order: order, Limit: limitClause, Args: args}, nil
}

// needsImplicitAnd reports whether the predicate at position i must be
// preceded by an implicit And because the builder recorded no explicit
// Join/Group token immediately before it (§4.C: "adjacent predicates
// without an explicit join default to implicit And").
func needsImplicitAnd(nodes []filter.Node, i int) bool {
	prev := nodes[i-1]
	if prev.HasJoin || prev.IsGroupOpen {
		return false
	}
	return true
}

// renderPredicate compiles one predicate node to a boolean SQL fragment.
// List-any predicates (§4.C, §4.E.1) compile to a self-contained
// "EXISTS (SELECT 1 FROM json_each(...) AS je WHERE ...)" rather than a
// FROM-level json_each join: a join fans a document out into one row per
// matching array element, which would multiply a single qualifying
// document into several rows on the document-returning read path and
// break at-most-one semantics on ReadObject. EXISTS collapses back to one
// boolean per document regardless of how many of its array elements
// satisfy the inner predicate.
func renderPredicate(p filter.Predicate, indexes []index.Meta, layout string) (string, []any, error) {
	if p.IsListAny {
		innerCol := fmt.Sprintf("json_extract(je.value, '%s')", escapeLiteral(selector.JSONPath(p.InnerPath)))
		cond, args, err := renderComparison(p.Kind, innerCol, p.Path.Hint, p.Value, layout)
		if err != nil {
			return "", nil, err
		}
		listPath := escapeLiteral(selector.JSONPath(p.ListPath))
		frag := fmt.Sprintf(
			"EXISTS (SELECT 1 FROM json_each(json_extract(data, '%s')) AS je WHERE %s)",
			listPath, cond)
		return frag, args, nil
	}
	col := resolveColumn(p.Path, indexes)
	return renderComparison(p.Kind, col, p.Path.Hint, p.Value, layout)
}

// renderComparison emits the operator fragment for col against value,
// shared by plain and list-any (EXISTS-subquery) predicates alike.
func renderComparison(kind filter.Kind, col string, hint selector.TypeHint, value any, layout string) (string, []any, error) {
	switch kind {
	case filter.Eq, filter.NotEq, filter.Gt, filter.Ge, filter.Lt, filter.Le:
		op := map[filter.Kind]string{
			filter.Eq: "=", filter.NotEq: "<>",
			filter.Gt: ">", filter.Ge: ">=", filter.Lt: "<", filter.Le: "<=",
		}[kind]
		lhs := coerceColumn(col, hint)
		rhs, arg := coerceValue(value, hint, layout)
		return fmt.Sprintf("%s %s %s", lhs, op, rhs), []any{arg}, nil
	case filter.StartsWith:
		return fmt.Sprintf("%s LIKE ? || '%%' ESCAPE '\\'", col), []any{escapeLike(fmt.Sprint(value))}, nil
	case filter.EndsWith:
		return fmt.Sprintf("%s LIKE '%%' || ? ESCAPE '\\'", col), []any{escapeLike(fmt.Sprint(value))}, nil
	case filter.Contains:
		return fmt.Sprintf("%s LIKE '%%' || ? || '%%' ESCAPE '\\'", col), []any{escapeLike(fmt.Sprint(value))}, nil
	default:
		return "", nil, terr.New(terr.InvalidOperation, fmt.Sprintf("sqlgen: unknown predicate kind %v", kind))
	}
}

// resolveColumn substitutes the generated index column for path when one
// is registered for it (§4.E.5); otherwise it falls back to json_extract
// against the data column directly.
func resolveColumn(path selector.Path, indexes []index.Meta) string {
	jsonPath := selector.JSONPath(path.Dotted())
	for _, m := range indexes {
		if m.JSONPath == jsonPath {
			return m.ColumnNameResolved
		}
	}
	return fmt.Sprintf("json_extract(data, '%s')", escapeLiteral(jsonPath))
}

func coerceColumn(col string, hint selector.TypeHint) string {
	switch hint {
	case selector.TypeNumeric:
		return fmt.Sprintf("CAST(%s AS REAL)", col)
	default:
		return col
	}
}

func coerceForCompare(col string, path selector.Path) string {
	return coerceColumn(col, path.Hint)
}

// coerceValue renders the RHS placeholder text and the bound argument,
// coerced per hint (§4.E.2): numeric comparisons wrap the placeholder in
// CAST(... AS REAL); booleans bind as 0/1; datetimes are formatted per the
// serializer's layout and compared as text; strings compare as text.
func coerceValue(v any, hint selector.TypeHint, layout string) (string, any) {
	switch hint {
	case selector.TypeNumeric:
		return "CAST(? AS REAL)", v
	case selector.TypeBool:
		b, _ := v.(bool)
		if b {
			return "?", 1
		}
		return "?", 0
	case selector.TypeDateTime:
		if t, ok := v.(time.Time); ok {
			return "?", t.Format(layout)
		}
		return "?", v
	default:
		return "?", v
	}
}

// ProjectionExpr renders a SELECT expression for ReadObjectsInto's
// projection (§4.E "projection emission"): objects/arrays come back from
// json_extract already as JSON text, but scalars come back as native
// SQLite values, so a TEXT member would round-trip through
// encoding/json.Unmarshal unquoted and fail to parse. json_quote re-wraps
// the scalar case only, giving a uniformly JSON-decodable TEXT column
// either way.
func ProjectionExpr(path selector.Path) string {
	p := escapeLiteral(selector.JSONPath(path.Dotted()))
	return fmt.Sprintf(
		"CASE WHEN json_type(data, '%s') IN ('object', 'array') THEN json_extract(data, '%s') ELSE json_quote(json_extract(data, '%s')) END",
		p, p, p)
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// escapeLike escapes LIKE metacharacters (% _ and the escape character
// itself) so Contains/StartsWith/EndsWith match only literal occurrences
// (§8 "LIKE escaping" invariant).
func escapeLike(s string) string {
	var b strings.Builder
	for _, ch := range s {
		switch ch {
		case '\\', '%', '_':
			b.WriteByte('\\')
		}
		b.WriteRune(ch)
	}
	return b.String()
}
