// Package schema owns the physical table layout: documents, blobs, and
// index metadata (§3, §4.G). tycho.Open creates all three tables up front
// (EnsureAll or Rebuild); no table is deferred to the first write. Pragma
// setup and rebuild-on-open follow the teacher's internal/localdb.Open.
package schema

import (
	"database/sql"
	"fmt"
)

const (
	DocumentsTable = "documents"
	BlobsTable     = "blobs"
	IndexesTable   = "indexes_meta"
)

// Pragmas mirrors the pragma set the teacher's localdb.Open and the pack's
// sqlite drivers (trifle_stats_go, teamcontext) both apply on open: WAL so
// readers aren't blocked by an in-flight writer's transaction (§5), a busy
// timeout so lock contention blocks briefly instead of failing immediately,
// and foreign_keys for referential sanity (unused today but cheap).
var Pragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA busy_timeout=5000;",
	"PRAGMA foreign_keys=ON;",
}

// EncryptionPragmas returns the SQLCipher-style pragma the store issues
// immediately after open when a password is configured (§6.2, §6.3). The
// actual cipher implementation is an external collaborator (§1 Out of
// scope); this only emits the pragma text a cipher-enabled build of the
// driver would honor.
func EncryptionPragmas(password string) []string {
	if password == "" {
		return nil
	}
	return []string{fmt.Sprintf("PRAGMA key = '%s';", escapeSingleQuotes(password))}
}

func escapeSingleQuotes(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			out = append(out, '\'', '\'')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

// Apply runs the pragma statements against db.
func Apply(db *sql.DB, stmts []string) error {
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("apply pragma %q: %w", s, err)
		}
	}
	return nil
}

// EnsureDocuments creates the documents table if absent.
func EnsureDocuments(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + DocumentsTable + ` (
		partition TEXT NOT NULL,
		full_type_name TEXT NOT NULL,
		id TEXT NOT NULL,
		data TEXT NOT NULL,
		PRIMARY KEY (partition, full_type_name, id)
	)`)
	if err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

// EnsureBlobs creates the blobs table if absent.
func EnsureBlobs(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + BlobsTable + ` (
		partition TEXT NOT NULL,
		key TEXT NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (partition, key)
	)`)
	if err != nil {
		return fmt.Errorf("create blobs table: %w", err)
	}
	return nil
}

// EnsureIndexesMeta creates the index-metadata table if absent.
func EnsureIndexesMeta(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + IndexesTable + ` (
		full_type_name TEXT NOT NULL,
		index_name TEXT NOT NULL,
		json_path TEXT NOT NULL,
		PRIMARY KEY (full_type_name, index_name)
	)`)
	if err != nil {
		return fmt.Errorf("create indexes_meta table: %w", err)
	}
	return nil
}

// EnsureAll creates all three tables if absent.
func EnsureAll(db *sql.DB) error {
	if err := EnsureDocuments(db); err != nil {
		return err
	}
	if err := EnsureBlobs(db); err != nil {
		return err
	}
	return EnsureIndexesMeta(db)
}

// Rebuild drops and recreates the documents and blobs tables (rebuild_cache
// option, §6.2). Per SPEC_FULL.md's Open Question resolution, it also
// drops indexes_meta: the generated idx_* columns live on the documents
// table being dropped, so their metadata would otherwise reference columns
// that no longer exist.
func Rebuild(db *sql.DB) error {
	for _, tbl := range []string{DocumentsTable, BlobsTable, IndexesTable} {
		if _, err := db.Exec("DROP TABLE IF EXISTS " + tbl); err != nil {
			return fmt.Errorf("drop %s: %w", tbl, err)
		}
	}
	return EnsureAll(db)
}
