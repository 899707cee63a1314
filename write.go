package tycho

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"github.com/docxology/tychostore/filter"
	"github.com/docxology/tychostore/internal/dispatch"
	"github.com/docxology/tychostore/internal/index"
	"github.com/docxology/tychostore/internal/registry"
	"github.com/docxology/tychostore/internal/sqlgen"
	"github.com/docxology/tychostore/terr"
)

// WriteObject inserts obj, or updates it in place if a row with the same
// derived id already exists (§6.1). obj's concrete type must match the
// type parameter Register[T] was called with; pointers are not
// automatically dereferenced to match a value registration.
func (s *Store) WriteObject(ctx context.Context, obj any, opts ...WriteOption) error {
	wo := newWriteOpts(opts)
	info, id, data, err := s.prepareWrite(obj, wo)
	if err != nil {
		return err
	}
	_, err = s.disp.Dispatch(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		if err := upsertDocument(ctx, db, wo.partition, info.FullTypeName, id, data); err != nil {
			return nil, terr.Wrap(terr.EngineError, "write object", err)
		}
		return nil, nil
	})
	return err
}

// WriteObjects writes every element of objs the same way WriteObject
// would, as one dispatched unit of work. By default the whole batch
// commits or rolls back together (§4.H "with_transaction" default true);
// pass NonTransactional() to have each write happen in program order
// without a later failure undoing earlier successes.
func (s *Store) WriteObjects(ctx context.Context, objs []any, opts ...WriteOption) error {
	wo := newWriteOpts(opts)
	if wo.hasID && len(objs) > 1 {
		return terr.New(terr.InvalidOperation, "WithID cannot be used with more than one object")
	}

	type prepared struct {
		fullTypeName string
		id           string
		data         []byte
	}
	preps := make([]prepared, len(objs))
	for i, obj := range objs {
		info, id, data, err := s.prepareWrite(obj, wo)
		if err != nil {
			return err
		}
		preps[i] = prepared{info.FullTypeName, id, data}
	}

	_, err := s.disp.Dispatch(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		write := func(ex execer) error {
			for _, p := range preps {
				if err := upsertDocument(ctx, ex, wo.partition, p.fullTypeName, p.id, p.data); err != nil {
					return terr.Wrap(terr.EngineError, "write object", err)
				}
			}
			return nil
		}
		if wo.transactional {
			return nil, dispatch.WithTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
				return write(tx)
			})
		}
		return nil, write(db)
	})
	return err
}

func (s *Store) prepareWrite(obj any, wo writeOpts) (registry.Info, string, []byte, error) {
	ty := reflect.TypeOf(obj)
	if ty == nil {
		return registry.Info{}, "", nil, terr.New(terr.InvalidOperation, "cannot write a nil object")
	}
	info := registry.LookupType(s.reg, ty)
	if info.RequiresIDMapping && !wo.hasID && s.requireRegistration {
		return registry.Info{}, "", nil, terr.New(terr.RegistrationRequired, fmt.Sprintf(
			"type %s is not registered; call Register or pass WithID", info.FullTypeName))
	}
	data, err := s.ser.Serialize(obj)
	if err != nil {
		return registry.Info{}, "", nil, terr.Wrap(terr.SerializationFailed, "serialize object", err)
	}
	id, err := deriveID(info, obj, data, wo.id, wo.hasID)
	if err != nil {
		return registry.Info{}, "", nil, err
	}
	return info, id, data, nil
}

// DeleteObjectByID deletes the row for id, if any, returning whether a row
// was actually removed.
func DeleteObjectByID[T any](ctx context.Context, s *Store, id any, opts ...WriteOption) (bool, error) {
	wo := newWriteOpts(opts)
	info := registry.Lookup[T](s.reg)
	idText, err := idToText(id)
	if err != nil {
		return false, err
	}
	v, err := s.disp.Dispatch(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		res, err := db.ExecContext(ctx,
			`DELETE FROM documents WHERE partition = ? AND full_type_name = ? AND id = ?`,
			wo.partition, info.FullTypeName, idText)
		if err != nil {
			return nil, terr.Wrap(terr.EngineError, "delete object by id", err)
		}
		n, _ := res.RowsAffected()
		return n > 0, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// DeleteObjects deletes every row of T matching f, honoring QueryPartition
// and Limit. It returns whether anything was deleted and how many rows
// were removed.
func DeleteObjects[T any](ctx context.Context, s *Store, f *filter.Builder, opts ...QueryOption) (ok bool, count int, err error) {
	qo := newQueryOpts(opts)
	qo.filter = f
	info := registry.Lookup[T](s.reg)

	v, err := s.disp.Dispatch(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		idxs, err := index.ListForType(ctx, db, info.FullTypeName)
		if err != nil {
			return nil, err
		}
		built, err := sqlgen.Build(sqlgen.Query{
			FullTypeName:   info.FullTypeName,
			Partition:      qo.partition,
			Filter:         qo.filter,
			Limit:          qo.limit,
			Indexes:        idxs,
			DatetimeLayout: s.ser.DatetimeFormat(),
		})
		if err != nil {
			return nil, err
		}
		rows, err := db.QueryContext(ctx, built.SQL("DISTINCT id"), built.Args...)
		if err != nil {
			return nil, terr.Wrap(terr.EngineError, "select objects to delete", err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, terr.Wrap(terr.EngineError, "scan id to delete", err)
			}
			ids = append(ids, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, terr.Wrap(terr.EngineError, "iterate ids to delete", err)
		}
		rows.Close()

		deleted := 0
		for _, id := range ids {
			res, err := db.ExecContext(ctx,
				`DELETE FROM documents WHERE partition = ? AND full_type_name = ? AND id = ?`,
				qo.partition, info.FullTypeName, id)
			if err != nil {
				return nil, terr.Wrap(terr.EngineError, "delete object", err)
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
