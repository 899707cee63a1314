// Package dispatch is the command serializer (§4.H): a single writer
// goroutine drains a FIFO queue so writes never interleave at the SQL
// level, while reads bypass that queue and call into the same *sql.DB
// directly, behind a token-bucket rate limiter. How far reads overlap a
// write depends on the *sql.DB pool: tycho.Open caps it at one connection,
// so a read waits for the connection while a write holds it.
//
// The single-connection, single-writer shape is grounded on the
// teamcontext example's NewSQLiteIndex, which calls
// db.SetMaxOpenConns(1) to "keep it simple and avoid locks"; the
// transaction wrapper's panic-safe rollback is grounded on that same
// file's WithTransaction. The rate limiter is golang.org/x/time/rate,
// already present transitively in the teacher's own dependency graph.
package dispatch

import (
	"context"
	"database/sql"

	"golang.org/x/time/rate"

	"github.com/docxology/tychostore/terr"
)

type ctxKey int

const inTxKey ctxKey = 0

// Fn is a unit of work handed to the dispatcher. It receives the shared
// *sql.DB; work that needs a transaction calls WithTransaction itself.
type Fn func(ctx context.Context, db *sql.DB) (any, error)

type job struct {
	ctx    context.Context
	fn     Fn
	result chan outcome
}

type outcome struct {
	val any
	err error
}

// Dispatcher owns the single *sql.DB connection, the write queue, and the
// read-side rate limiter.
type Dispatcher struct {
	db      *sql.DB
	writeCh chan job
	done    chan struct{}
	limiter *rate.Limiter
}

// New starts the writer goroutine. readRatePerSec/readBurst configure the
// token bucket gating Read (§6.2 read_rate_limit/read_rate_burst); a
// non-positive rate disables limiting.
func New(db *sql.DB, readRatePerSec float64, readBurst int) *Dispatcher {
	d := &Dispatcher{
		db:      db,
		writeCh: make(chan job),
		done:    make(chan struct{}),
	}
	if readRatePerSec > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(readRatePerSec), readBurst)
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.done)
	for j := range d.writeCh {
		if j.ctx.Err() != nil {
			j.result <- outcome{err: terr.Wrap(terr.Cancelled, "cancelled before dispatch", j.ctx.Err())}
			continue
		}
		v, err := j.fn(j.ctx, d.db)
		j.result <- outcome{val: v, err: err}
	}
}

// Close stops accepting new writes and waits for the queue to drain.
func (d *Dispatcher) Close() error {
	close(d.writeCh)
	<-d.done
	return d.db.Close()
}

// Dispatch enqueues fn on the single writer goroutine and waits for its
// result, preserving FIFO order among all callers (§4.H, §5 "Concurrency
// model"). Cancellation observed before the job reaches the front of the
// queue aborts it without running; cancellation observed only after fn has
// already been picked up lets fn run to completion (it may already have
// committed) but the caller receives Cancelled instead of fn's outcome —
// "discard result after dispatch" in the design notes.
func (d *Dispatcher) Dispatch(ctx context.Context, fn Fn) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, terr.Wrap(terr.Cancelled, "cancelled before dispatch", err)
	}
	resultCh := make(chan outcome, 1)
	select {
	case d.writeCh <- job{ctx: ctx, fn: fn, result: resultCh}:
	case <-ctx.Done():
		return nil, terr.Wrap(terr.Cancelled, "cancelled before dispatch", ctx.Err())
	}
	select {
	case o := <-resultCh:
		return o.val, o.err
	case <-ctx.Done():
		return nil, terr.Wrap(terr.Cancelled, "cancelled during dispatch", ctx.Err())
	}
}

// Read runs fn directly against the shared connection after acquiring a
// token from the read-side rate limiter (unlimited if none was configured).
// Reads never go through the single-writer queue; whether one runs while a
// write is in flight depends on the *sql.DB pool having a free connection.
func (d *Dispatcher) Read(ctx context.Context, fn Fn) (any, error) {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, terr.Wrap(terr.Cancelled, "read rate limiter wait cancelled", err)
		}
	}
	return fn(ctx, d.db)
}

// WithTransaction runs fn inside a *sql.Tx, committing on success and
// rolling back on error or panic. Nested transactions (detected via a
// context marker left by an enclosing WithTransaction call) are rejected:
// the store has no savepoint semantics (§4.H "with_transaction" notes).
// Callers invoke this from inside a Dispatch/Read Fn, so it always runs on
// the connection already selected by the caller.
func WithTransaction(ctx context.Context, db *sql.DB, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	if v, _ := ctx.Value(inTxKey).(bool); v {
		return terr.New(terr.InvalidOperation, "nested transactions are not supported")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return terr.Wrap(terr.EngineError, "begin transaction", err)
	}
	txCtx := context.WithValue(ctx, inTxKey, true)

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(txCtx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return terr.Wrap(terr.EngineError, "commit transaction", err)
	}
	return nil
}
