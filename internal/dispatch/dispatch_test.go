package dispatch

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/docxology/tychostore/terr"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE t (v INTEGER)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDispatchFIFOOrder(t *testing.T) {
	db := openTestDB(t)
	d := New(db, 0, 0)
	defer d.Close()

	var order []int
	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		i := i
		go func() {
			d.Dispatch(context.Background(), func(ctx context.Context, db *sql.DB) (any, error) {
				order = append(order, i)
				if len(order) == 5 {
					close(done)
				}
				return nil, nil
			})
		}()
		// Serialize submission so the queue observes a deterministic order;
		// the writer goroutine itself is still what guarantees no interleaving.
		time.Sleep(time.Millisecond)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for all jobs to run")
	}
	if len(order) != 5 {
		t.Fatalf("expected 5 jobs to run, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("jobs ran out of submission order: %v", order)
		}
	}
}

func TestDispatchCancelledBeforeDispatchNeverRuns(t *testing.T) {
	db := openTestDB(t)
	d := New(db, 0, 0)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	_, err := d.Dispatch(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		ran = true
		return nil, nil
	})
	if !terr.Is(err, terr.Cancelled) {
		t.Fatalf("expected Cancelled, got %v", err)
	}
	if ran {
		t.Fatalf("fn must not run once cancellation is observed before dispatch")
	}
}

func TestDispatchResult(t *testing.T) {
	db := openTestDB(t)
	d := New(db, 0, 0)
	defer d.Close()

	v, err := d.Dispatch(context.Background(), func(ctx context.Context, db *sql.DB) (any, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if v != 42 {
		t.Fatalf("got %v, want 42", v)
	}
}

func TestReadRateLimiterGatesReads(t *testing.T) {
	db := openTestDB(t)
	d := New(db, 2, 1) // 2/sec, burst 1: second call within the same tick must wait
	defer d.Close()

	ctx := context.Background()
	if _, err := d.Read(ctx, func(ctx context.Context, db *sql.DB) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("first read: %v", err)
	}
	start := time.Now()
	if _, err := d.Read(ctx, func(ctx context.Context, db *sql.DB) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("second read: %v", err)
	}
	if time.Since(start) < 100*time.Millisecond {
		t.Fatalf("expected the limiter to delay the second read past its burst, took %v", time.Since(start))
	}
}

func TestReadUnlimitedWhenNoRateConfigured(t *testing.T) {
	db := openTestDB(t)
	d := New(db, 0, 0)
	defer d.Close()

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 20; i++ {
		if _, err := d.Read(ctx, func(ctx context.Context, db *sql.DB) (any, error) { return nil, nil }); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
	}
	if time.Since(start) > 200*time.Millisecond {
		t.Fatalf("expected unlimited reads to run quickly, took %v", time.Since(start))
	}
}

func TestWithTransactionCommitsOnSuccess(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	err := WithTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO t (v) VALUES (1)")
		return err
	})
	if err != nil {
		t.Fatalf("WithTransaction: %v", err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM t").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected the committed row to be visible, count=%d", n)
	}
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	sentinel := errors.New("boom")
	err := WithTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO t (v) VALUES (1)"); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected the original error back, got %v", err)
	}
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM t").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected the insert to be rolled back, count=%d", n)
	}
}

func TestWithTransactionRollsBackOnPanic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected the panic to propagate")
		}
		var n int
		if err := db.QueryRow("SELECT COUNT(*) FROM t").Scan(&n); err != nil {
			t.Fatalf("count: %v", err)
		}
		if n != 0 {
			t.Fatalf("expected the panicking insert to be rolled back, count=%d", n)
		}
	}()
	_ = WithTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO t (v) VALUES (1)"); err != nil {
			return err
		}
		panic("boom")
	})
}

func TestNestedTransactionIsRejected(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	err := WithTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
		return WithTransaction(ctx, db, func(ctx context.Context, tx *sql.Tx) error {
			return nil
		})
	})
	if !terr.Is(err, terr.InvalidOperation) {
		t.Fatalf("expected InvalidOperation for a nested transaction, got %v", err)
	}
}

func TestCloseDrainsQueueThenClosesDB(t *testing.T) {
	db := openTestDB(t)
	d := New(db, 0, 0)
	if _, err := d.Dispatch(context.Background(), func(ctx context.Context, db *sql.DB) (any, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := db.Ping(); err == nil {
		t.Fatalf("expected the underlying db to be closed")
	}
}
