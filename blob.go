package tycho

import (
	"bytes"
	"context"
	"database/sql"
	"io"

	"github.com/google/uuid"

	"github.com/docxology/tychostore/terr"
)

// NewBlobKey returns a fresh random key suitable for WriteBlob, for
// callers storing opaque content with no natural key of its own (upload
// staging, generated reports). Grounded on the teacher's audit.go/
// jobs/runner.go convention of uuid.NewString() for housekeeping ids.
func NewBlobKey() string { return uuid.NewString() }

// WriteBlob stores (or overwrites) the opaque bytes read from r under key
// (§6.1 "blob operations"). Blobs carry no JSON structure and are never
// indexed or filtered on content.
func (s *Store) WriteBlob(ctx context.Context, r io.Reader, key string, opts ...WriteOption) error {
	wo := newWriteOpts(opts)
	data, err := io.ReadAll(r)
	if err != nil {
		return terr.Wrap(terr.InvalidOperation, "read blob source", err)
	}
	_, err = s.disp.Dispatch(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		_, err := db.ExecContext(ctx, `
			INSERT INTO blobs (partition, key, data) VALUES (?, ?, ?)
			ON CONFLICT (partition, key) DO UPDATE SET data = excluded.data`,
			wo.partition, key, data)
		if err != nil {
			return nil, terr.Wrap(terr.EngineError, "write blob", err)
		}
		return nil, nil
	})
	return err
}

// ReadBlob returns a reader over the bytes stored under key, or NotFound
// if no blob is stored there.
func (s *Store) ReadBlob(ctx context.Context, key string, opts ...ReadOption) (io.ReadCloser, error) {
	ro := newReadOpts(opts)
	v, err := s.disp.Read(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		var data []byte
		row := db.QueryRowContext(ctx, `SELECT data FROM blobs WHERE partition = ? AND key = ?`, ro.partition, key)
		if err := row.Scan(&data); err != nil {
			if err == sql.ErrNoRows {
				return nil, terr.New(terr.NotFound, "blob not found")
			}
			return nil, terr.Wrap(terr.EngineError, "read blob", err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(v.([]byte))), nil
}

// DeleteBlob removes the blob stored under key, reporting whether one
// existed.
func (s *Store) DeleteBlob(ctx context.Context, key string, opts ...WriteOption) (bool, error) {
	wo := newWriteOpts(opts)
	v, err := s.disp.Dispatch(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		res, err := db.ExecContext(ctx, `DELETE FROM blobs WHERE partition = ? AND key = ?`, wo.partition, key)
		if err != nil {
			return nil, terr.Wrap(terr.EngineError, "delete blob", err)
		}
		n, _ := res.RowsAffected()
		return n > 0, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// DeleteBlobs removes every blob in the targeted partition, honoring
// Limit as a cap on how many are removed. Where/OrderBy have no effect:
// blobs carry no JSON content for a filter or sort to address.
func (s *Store) DeleteBlobs(ctx context.Context, opts ...QueryOption) (ok bool, count int, err error) {
	qo := newQueryOpts(opts)
	v, err := s.disp.Dispatch(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		query := `SELECT key FROM blobs WHERE partition = ?`
		args := []any{qo.partition}
		if qo.limit != nil {
			query += ` LIMIT ?`
			args = append(args, *qo.limit)
		}
		rows, err := db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, terr.Wrap(terr.EngineError, "select blobs to delete", err)
		}
		var keys []string
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				rows.Close()
				return nil, terr.Wrap(terr.EngineError, "scan blob key", err)
			}
			keys = append(keys, k)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, terr.Wrap(terr.EngineError, "iterate blob keys", err)
		}
		rows.Close()

		deleted := 0
		for _, k := range keys {
			res, err := db.ExecContext(ctx, `DELETE FROM blobs WHERE partition = ? AND key = ?`, qo.partition, k)
			if err != nil {
				return nil, terr.Wrap(terr.EngineError, "delete blob", err)
			}
			n, _ := res.RowsAffected()
			deleted += int(n)
		}
		return deleted, nil
	})
	if err != nil {
		return false, 0, err
	}
	n := v.(int)
	return n > 0, n, nil
}
