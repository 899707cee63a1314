package tycho

import (
	"context"
	"database/sql"
)

// execer is satisfied by both *sql.DB and *sql.Tx, so the document/blob
// helpers below run unchanged whether WriteObjects runs inside its default
// transaction or was called with NonTransactional().
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsertDocument(ctx context.Context, ex execer, partition, fullTypeName, id string, data []byte) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO documents (partition, full_type_name, id, data) VALUES (?, ?, ?, ?)
		ON CONFLICT (partition, full_type_name, id) DO UPDATE SET data = excluded.data`,
		partition, fullTypeName, id, string(data))
	return err
}
