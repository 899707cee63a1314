package sqlgen

import (
	"strings"
	"testing"

	"github.com/docxology/tychostore/filter"
	"github.com/docxology/tychostore/internal/index"
	"github.com/docxology/tychostore/selector"
	"github.com/docxology/tychostore/sortexpr"
)

func TestBuildBasePredicateAlwaysPresent(t *testing.T) {
	r, err := Build(Query{FullTypeName: "widgetA", Partition: "p1"})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(r.Where, "partition = ? AND full_type_name = ?") {
		t.Fatalf("missing base predicate: %q", r.Where)
	}
	if r.Args[0] != "p1" || r.Args[1] != "widgetA" {
		t.Fatalf("unexpected base args: %+v", r.Args)
	}
	if r.From != "documents" {
		t.Fatalf("expected no joins with no filter, got From=%q", r.From)
	}
}

func TestBuildImplicitAnd(t *testing.T) {
	f := filter.New().
		Filter(filter.Eq, selector.New("StringProperty"), "Test String").
		Filter(filter.Eq, selector.New("IntProperty").AsNumeric(), 1984)
	r, err := Build(Query{FullTypeName: "widgetA", Filter: f})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(r.Where, ") AND (") && !strings.Contains(r.Where, " AND ") {
		t.Fatalf("expected an implicit AND between the two predicates: %q", r.Where)
	}
	if strings.Count(r.Where, "json_extract(data") != 2 {
		t.Fatalf("expected two json_extract fragments: %q", r.Where)
	}
	if !strings.Contains(r.Where, "CAST(json_extract(data, '$.IntProperty') AS REAL) = CAST(? AS REAL)") {
		t.Fatalf("expected numeric coercion on both sides: %q", r.Where)
	}
}

func TestBuildExplicitOrAndGroup(t *testing.T) {
	f := filter.New().
		Filter(filter.Eq, selector.New("A"), 1).
		Or().
		Group().
		Filter(filter.Eq, selector.New("B"), 2).
		Filter(filter.Eq, selector.New("C"), 3).
		GroupEnd()
	r, err := Build(Query{FullTypeName: "widgetA", Filter: f})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(r.Where, " OR (") {
		t.Fatalf("expected OR before the opened group: %q", r.Where)
	}
	if !strings.Contains(r.Where, ")") {
		t.Fatalf("expected the group to be closed: %q", r.Where)
	}
}

func TestLikeOperatorsEscapeMetacharacters(t *testing.T) {
	cases := []struct {
		kind filter.Kind
		want string
	}{
		{filter.StartsWith, "LIKE ? || '%' ESCAPE '\\'"},
		{filter.EndsWith, "LIKE '%' || ? ESCAPE '\\'"},
		{filter.Contains, "LIKE '%' || ? || '%' ESCAPE '\\'"},
	}
	for _, c := range cases {
		f := filter.New().Filter(c.kind, selector.New("StringProperty"), "h%_\\i")
		r, err := Build(Query{FullTypeName: "widgetA", Filter: f})
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if !strings.Contains(r.Where, c.want) {
			t.Fatalf("kind %v: expected fragment %q in %q", c.kind, c.want, r.Where)
		}
		arg := r.Args[len(r.Args)-1]
		if arg != `h\%\_\\i` {
			t.Fatalf("kind %v: expected escaped arg, got %q", c.kind, arg)
		}
	}
}

func TestListAnyPredicateCompilesToExistsSubquery(t *testing.T) {
	f := filter.New().FilterAny(filter.Gt, selector.New("Values"), selector.New("FloatProperty").AsNumeric(), 250.0)
	r, err := Build(Query{FullTypeName: "widgetE", Filter: f})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if r.From != "documents" {
		t.Fatalf("expected no FROM-level join for a list-any predicate: %q", r.From)
	}
	if !strings.Contains(r.Where, "EXISTS (SELECT 1 FROM json_each(json_extract(data, '$.Values')) AS je WHERE") {
		t.Fatalf("expected an EXISTS subquery over json_each: %q", r.Where)
	}
	if !strings.Contains(r.Where, "json_extract(je.value, '$.FloatProperty')") {
		t.Fatalf("expected the inner path to reference the subquery alias: %q", r.Where)
	}
}

func TestListAnyPredicateDoesNotFanOutRows(t *testing.T) {
	// A document with several qualifying array elements must still
	// contribute exactly one EXISTS evaluation, not one row per element
	// (the bug an earlier FROM-level json_each join produced).
	f := filter.New().
		FilterAny(filter.Gt, selector.New("Values"), selector.New("FloatProperty").AsNumeric(), 250.0).
		FilterAny(filter.Lt, selector.New("Values"), selector.New("FloatProperty").AsNumeric(), 1000.0)
	r, err := Build(Query{FullTypeName: "widgetE", Filter: f})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if strings.Count(r.Where, "EXISTS (SELECT 1 FROM json_each") != 2 {
		t.Fatalf("expected one EXISTS subquery per list-any predicate: %q", r.Where)
	}
	if r.From != "documents" {
		t.Fatalf("expected the FROM clause to stay row-for-row with documents: %q", r.From)
	}
}

func TestDistinctListPathsGetDistinctSubqueries(t *testing.T) {
	f := filter.New().
		FilterAny(filter.Gt, selector.New("Values"), selector.New("FloatProperty").AsNumeric(), 250.0).
		FilterAny(filter.Gt, selector.New("Others"), selector.New("IntProperty").AsNumeric(), 1.0)
	r, err := Build(Query{FullTypeName: "widgetE", Filter: f})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(r.Where, "json_extract(data, '$.Values')") || !strings.Contains(r.Where, "json_extract(data, '$.Others')") {
		t.Fatalf("expected both list paths to appear in distinct EXISTS subqueries: %q", r.Where)
	}
}

func TestIndexedPathSubstitution(t *testing.T) {
	f := filter.New().Filter(filter.Ge, selector.New("Value").Field("ValueC").Field("IntProperty").AsNumeric(), 250)
	idxs := []index.Meta{{FullTypeName: "widgetA", IndexName: "ValueCInt", JSONPath: "$.Value.ValueC.IntProperty", ColumnNameResolved: "idx_widgeta_valuecint"}}
	r, err := Build(Query{FullTypeName: "widgetA", Filter: f, Indexes: idxs})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if strings.Contains(r.Where, "json_extract(data") {
		t.Fatalf("expected the indexed column to replace json_extract entirely: %q", r.Where)
	}
	if !strings.Contains(r.Where, "CAST(idx_widgeta_valuecint AS REAL) >=") {
		t.Fatalf("expected the generated column name with coercion: %q", r.Where)
	}
}

func TestOrderBySubstitutesIndexAndCoerces(t *testing.T) {
	s := sortexpr.New().ByDesc(selector.New("IntProperty").AsNumeric())
	idxs := []index.Meta{{FullTypeName: "widgetA", IndexName: "IntIdx", JSONPath: "$.IntProperty", ColumnNameResolved: "idx_widgeta_intidx"}}
	r, err := Build(Query{FullTypeName: "widgetA", Sort: s, Indexes: idxs})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if r.Order != "CAST(idx_widgeta_intidx AS REAL) DESC" {
		t.Fatalf("unexpected ORDER BY: %q", r.Order)
	}
}

func TestLimitAppendsArgLast(t *testing.T) {
	n := 10
	r, err := Build(Query{FullTypeName: "widgetA", Limit: &n})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if r.Limit != "LIMIT ?" {
		t.Fatalf("expected a LIMIT ? clause, got %q", r.Limit)
	}
	if r.Args[len(r.Args)-1] != 10 {
		t.Fatalf("expected the limit value to be the last bound arg: %+v", r.Args)
	}
}

func TestSQLAssemblesFullStatement(t *testing.T) {
	n := 5
	r, err := Build(Query{FullTypeName: "widgetA", Limit: &n})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	stmt := r.SQL("data")
	if !strings.HasPrefix(stmt, "SELECT data FROM documents WHERE ") {
		t.Fatalf("unexpected statement shape: %q", stmt)
	}
	if !strings.HasSuffix(stmt, "LIMIT ?") {
		t.Fatalf("expected LIMIT at the end: %q", stmt)
	}
}

func TestProjectionExprHandlesScalarAndObject(t *testing.T) {
	expr := ProjectionExpr(selector.New("ValueB"))
	if !strings.Contains(expr, "json_type(data, '$.ValueB')") {
		t.Fatalf("expected a json_type branch: %q", expr)
	}
	if !strings.Contains(expr, "json_quote(json_extract(data, '$.ValueB'))") {
		t.Fatalf("expected the scalar branch to re-wrap with json_quote: %q", expr)
	}
}
