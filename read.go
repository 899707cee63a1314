package tycho

import (
	"bytes"
	"context"
	"database/sql"

	"github.com/docxology/tychostore/filter"
	"github.com/docxology/tychostore/internal/index"
	"github.com/docxology/tychostore/internal/registry"
	"github.com/docxology/tychostore/internal/sqlgen"
	"github.com/docxology/tychostore/selector"
	"github.com/docxology/tychostore/sortexpr"
	"github.com/docxology/tychostore/terr"
)

// ReadObjectByID fetches the row with the given id, reporting false (no
// error) if it does not exist.
func ReadObjectByID[T any](ctx context.Context, s *Store, id any, opts ...ReadOption) (T, bool, error) {
	var zero T
	ro := newReadOpts(opts)
	info := registry.Lookup[T](s.reg)
	idText, err := idToText(id)
	if err != nil {
		return zero, false, err
	}
	v, err := s.disp.Read(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		var data []byte
		row := db.QueryRowContext(ctx,
			`SELECT data FROM documents WHERE partition = ? AND full_type_name = ? AND id = ?`,
			ro.partition, info.FullTypeName, idText)
		if err := row.Scan(&data); err != nil {
			if err == sql.ErrNoRows {
				return nil, nil
			}
			return nil, terr.Wrap(terr.EngineError, "read object by id", err)
		}
		return data, nil
	})
	if err != nil {
		return zero, false, err
	}
	if v == nil {
		return zero, false, nil
	}
	if err := s.ser.Deserialize(ctx, bytes.NewReader(v.([]byte)), &zero); err != nil {
		return zero, false, terr.Wrap(terr.SerializationFailed, "deserialize object", err)
	}
	return zero, true, nil
}

// ReadObject fetches the single row of T matching f. Zero matches is
// NotFound; more than one is TooMany (§1 "at most one").
func ReadObject[T any](ctx context.Context, s *Store, f *filter.Builder, opts ...ReadOption) (T, error) {
	var zero T
	ro := newReadOpts(opts)
	info := registry.Lookup[T](s.reg)

	rowsData, err := s.fetchRows(ctx, info, ro.partition, f, nil, intPtr(2))
	if err != nil {
		return zero, err
	}
	switch len(rowsData) {
	case 0:
		return zero, terr.New(terr.NotFound, "no object matched the filter")
	case 1:
		if err := s.ser.Deserialize(ctx, bytes.NewReader(rowsData[0]), &zero); err != nil {
			return zero, terr.Wrap(terr.SerializationFailed, "deserialize object", err)
		}
		return zero, nil
	default:
		return zero, terr.New(terr.TooMany, "more than one object matched the filter")
	}
}

// ReadFirstObject fetches the first row of T matching f in sortBy order,
// reporting false (no error) if nothing matched.
func ReadFirstObject[T any](ctx context.Context, s *Store, f *filter.Builder, sortBy *sortexpr.Builder, opts ...ReadOption) (T, bool, error) {
	var zero T
	ro := newReadOpts(opts)
	info := registry.Lookup[T](s.reg)

	rowsData, err := s.fetchRows(ctx, info, ro.partition, f, sortBy, intPtr(1))
	if err != nil {
		return zero, false, err
	}
	if len(rowsData) == 0 {
		return zero, false, nil
	}
	if err := s.ser.Deserialize(ctx, bytes.NewReader(rowsData[0]), &zero); err != nil {
		return zero, false, terr.Wrap(terr.SerializationFailed, "deserialize object", err)
	}
	return zero, true, nil
}

// ReadObjects fetches every row of T matching the QueryOptions.
func ReadObjects[T any](ctx context.Context, s *Store, opts ...QueryOption) ([]T, error) {
	qo := newQueryOpts(opts)
	info := registry.Lookup[T](s.reg)

	rowsData, err := s.fetchRows(ctx, info, qo.partition, qo.filter, qo.sort, qo.limit)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(rowsData))
	for i, data := range rowsData {
		if err := s.ser.Deserialize(ctx, bytes.NewReader(data), &out[i]); err != nil {
			return nil, terr.Wrap(terr.SerializationFailed, "deserialize object", err)
		}
	}
	return out, nil
}

// ReadObjectsInto fetches proj from every row of T matching the
// QueryOptions, decoding each projected value as U instead of the whole
// document (§6.1 "projection reads").
func ReadObjectsInto[T, U any](ctx context.Context, s *Store, proj selector.Path, opts ...QueryOption) ([]U, error) {
	qo := newQueryOpts(opts)
	info := registry.Lookup[T](s.reg)

	v, err := s.disp.Read(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		idxs, err := index.ListForType(ctx, db, info.FullTypeName)
		if err != nil {
			return nil, err
		}
		built, err := sqlgen.Build(sqlgen.Query{
			FullTypeName:   info.FullTypeName,
			Partition:      qo.partition,
			Filter:         qo.filter,
			Sort:           qo.sort,
			Limit:          qo.limit,
			Indexes:        idxs,
			DatetimeLayout: s.ser.DatetimeFormat(),
		})
		if err != nil {
			return nil, err
		}
		rows, err := db.QueryContext(ctx, built.SQL(sqlgen.ProjectionExpr(proj)), built.Args...)
		if err != nil {
			return nil, terr.Wrap(terr.EngineError, "query projection", err)
		}
		defer rows.Close()
		var out [][]byte
		for rows.Next() {
			var raw []byte
			if err := rows.Scan(&raw); err != nil {
				return nil, terr.Wrap(terr.EngineError, "scan projection", err)
			}
			out = append(out, raw)
		}
		if err := rows.Err(); err != nil {
			return nil, terr.Wrap(terr.EngineError, "iterate projection", err)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	raws := v.([][]byte)
	out := make([]U, len(raws))
	for i, raw := range raws {
		if err := s.ser.Deserialize(ctx, bytes.NewReader(raw), &out[i]); err != nil {
			return nil, terr.Wrap(terr.SerializationFailed, "deserialize projected value", err)
		}
	}
	return out, nil
}

// CountObjects counts rows of T matching the QueryOptions' filter and
// partition (Limit and OrderBy are ignored: a count has no order and
// capping it would make the result meaningless).
func CountObjects[T any](ctx context.Context, s *Store, opts ...QueryOption) (int, error) {
	qo := newQueryOpts(opts)
	info := registry.Lookup[T](s.reg)

	v, err := s.disp.Read(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		idxs, err := index.ListForType(ctx, db, info.FullTypeName)
		if err != nil {
			return nil, err
		}
		built, err := sqlgen.Build(sqlgen.Query{
			FullTypeName:   info.FullTypeName,
			Partition:      qo.partition,
			Filter:         qo.filter,
			Indexes:        idxs,
			DatetimeLayout: s.ser.DatetimeFormat(),
		})
		if err != nil {
			return nil, err
		}
		var n int
		row := db.QueryRowContext(ctx, built.SQL("COUNT(DISTINCT id)"), built.Args...)
		if err := row.Scan(&n); err != nil {
			return nil, terr.Wrap(terr.EngineError, "count objects", err)
		}
		return n, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// fetchRows runs the shared filter/sort/limit query and returns each
// matched row's raw "data" bytes, undecoded.
func (s *Store) fetchRows(ctx context.Context, info registry.Info, partition string, f *filter.Builder, sortBy *sortexpr.Builder, limit *int) ([][]byte, error) {
	v, err := s.disp.Read(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		idxs, err := index.ListForType(ctx, db, info.FullTypeName)
		if err != nil {
			return nil, err
		}
		built, err := sqlgen.Build(sqlgen.Query{
			FullTypeName:   info.FullTypeName,
			Partition:      partition,
			Filter:         f,
			Sort:           sortBy,
			Limit:          limit,
			Indexes:        idxs,
			DatetimeLayout: s.ser.DatetimeFormat(),
		})
		if err != nil {
			return nil, err
		}
		rows, err := db.QueryContext(ctx, built.SQL("data"), built.Args...)
		if err != nil {
			return nil, terr.Wrap(terr.EngineError, "query objects", err)
		}
		defer rows.Close()
		var out [][]byte
		for rows.Next() {
			var data []byte
			if err := rows.Scan(&data); err != nil {
				return nil, terr.Wrap(terr.EngineError, "scan object", err)
			}
			out = append(out, data)
		}
		if err := rows.Err(); err != nil {
			return nil, terr.Wrap(terr.EngineError, "iterate objects", err)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([][]byte), nil
}

func intPtr(n int) *int { return &n }
