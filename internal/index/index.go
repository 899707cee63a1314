// Package index implements the index manager (§4.F): promoting a JSON path
// into a generated, indexed column on the documents table. Idempotent
// create/drop, grounded on the teacher's internal/db.Manager.CreateTable /
// EnsureDatabase idiom — "create if absent, else verify compatibility and
// error on mismatch" — applied here to index DDL instead of RethinkDB
// tables.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/docxology/tychostore/internal/registry"
	"github.com/docxology/tychostore/internal/schema"
	"github.com/docxology/tychostore/terr"
)

// Meta describes one registered index as stored in indexes_meta. JSONPath is
// stored in SQLite json_extract form ("$.a.b"), matching the column column
// expression it generated. ColumnNameResolved is derived, not persisted: the
// generated-column name is reconstructible from FullTypeName+IndexName, so
// indexes_meta need not carry a redundant column.
type Meta struct {
	FullTypeName       string
	IndexName          string
	JSONPath           string
	ColumnNameResolved string
}

func withColumn(m Meta) Meta {
	m.ColumnNameResolved = ColumnName(registry.SafeTypeName(m.FullTypeName), m.IndexName)
	return m
}

// ColumnName derives the physical generated-column name for an index. It
// is namespaced by the sanitized type name (not just the index name): the
// documents table is shared by every registered type (§3), so two types
// independently choosing the same index Name must not collide on one
// physical column.
func ColumnName(safeTypeName, name string) string {
	return fmt.Sprintf("idx_%s_%s", safeTypeName, sanitizeIdent(name))
}

func sanitizeIdent(s string) string {
	var b strings.Builder
	for _, ch := range strings.ToLower(s) {
		if (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') || ch == '_' {
			b.WriteRune(ch)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		return "x"
	}
	return out
}

// IndexName returns the secondary btree index name covering
// (partition, full_type_name, column).
func IndexName(column string) string { return "ix_documents_" + column }

// Create adds the generated column and its covering index, recording the
// metadata row. jsonPath is in SQLite json_extract form ("$.a.b"), e.g.
// selector.JSONPath(path.Dotted()). Idempotent: if full_type_name/name is
// already registered with the same json_path, this is a no-op success; a
// different json_path is InvalidOperation.
func Create(ctx context.Context, db *sql.DB, fullTypeName, safeTypeName, name, jsonPath string) error {
	existing, err := lookup(ctx, db, fullTypeName, name)
	if err != nil {
		return terr.Wrap(terr.EngineError, "look up index metadata", err)
	}
	column := ColumnName(safeTypeName, name)
	if existing != nil {
		if existing.JSONPath != jsonPath {
			return terr.New(terr.InvalidOperation, fmt.Sprintf(
				"index %q on %s already registered for path %q, cannot redefine as %q",
				name, fullTypeName, existing.JSONPath, jsonPath))
		}
		return nil
	}

	alter := fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s AS (json_extract(data, '%s')) VIRTUAL`,
		schema.DocumentsTable, column, escapePathLiteral(jsonPath))
	if _, err := db.ExecContext(ctx, alter); err != nil {
		if !isDuplicateColumn(err) {
			return terr.Wrap(terr.EngineError, "add generated index column", err)
		}
		// Column already exists physically (e.g. a prior Create raced or
		// a rebuild replayed metadata) but no metadata row was found
		// above: trust the existing column rather than fail.
	}

	ix := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s (partition, full_type_name, %s)`,
		IndexName(column), schema.DocumentsTable, column)
	if _, err := db.ExecContext(ctx, ix); err != nil {
		return terr.Wrap(terr.EngineError, "create covering index", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO `+schema.IndexesTable+` (full_type_name, index_name, json_path) VALUES (?, ?, ?)`,
		fullTypeName, name, jsonPath); err != nil {
		return terr.Wrap(terr.EngineError, "record index metadata", err)
	}
	return nil
}

// Drop reverses Create in the inverse order: metadata row, then covering
// index, then the generated column (SQLite supports DROP COLUMN on
// generated columns as of the versions modernc.org/sqlite implements).
func Drop(ctx context.Context, db *sql.DB, fullTypeName, safeTypeName, name string) error {
	existing, err := lookup(ctx, db, fullTypeName, name)
	if err != nil {
		return terr.Wrap(terr.EngineError, "look up index metadata", err)
	}
	if existing == nil {
		return nil
	}
	column := ColumnName(safeTypeName, name)

	if _, err := db.ExecContext(ctx,
		`DELETE FROM `+schema.IndexesTable+` WHERE full_type_name = ? AND index_name = ?`,
		fullTypeName, name); err != nil {
		return terr.Wrap(terr.EngineError, "delete index metadata", err)
	}
	if _, err := db.ExecContext(ctx,
		fmt.Sprintf("DROP INDEX IF EXISTS %s", IndexName(column))); err != nil {
		return terr.Wrap(terr.EngineError, "drop covering index", err)
	}
	if _, err := db.ExecContext(ctx,
		fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", schema.DocumentsTable, column)); err != nil {
		return terr.Wrap(terr.EngineError, "drop generated column", err)
	}
	return nil
}

// ListForType returns all registered indexes for fullTypeName, used by the
// SQL generator's indexed-path substitution (§4.E.5).
func ListForType(ctx context.Context, db *sql.DB, fullTypeName string) ([]Meta, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT full_type_name, index_name, json_path FROM `+schema.IndexesTable+` WHERE full_type_name = ?`,
		fullTypeName)
	if err != nil {
		return nil, terr.Wrap(terr.EngineError, "list indexes", err)
	}
	defer rows.Close()
	var out []Meta
	for rows.Next() {
		var m Meta
		if err := rows.Scan(&m.FullTypeName, &m.IndexName, &m.JSONPath); err != nil {
			return nil, terr.Wrap(terr.EngineError, "scan index metadata", err)
		}
		out = append(out, withColumn(m))
	}
	if err := rows.Err(); err != nil {
		return nil, terr.Wrap(terr.EngineError, "iterate index metadata", err)
	}
	return out, nil
}

func lookup(ctx context.Context, db *sql.DB, fullTypeName, name string) (*Meta, error) {
	row := db.QueryRowContext(ctx,
		`SELECT full_type_name, index_name, json_path FROM `+schema.IndexesTable+` WHERE full_type_name = ? AND index_name = ?`,
		fullTypeName, name)
	var m Meta
	if err := row.Scan(&m.FullTypeName, &m.IndexName, &m.JSONPath); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	m = withColumn(m)
	return &m, nil
}

func escapePathLiteral(p string) string {
	return strings.ReplaceAll(p, "'", "''")
}

func isDuplicateColumn(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate column") || strings.Contains(msg, "already exists")
}
