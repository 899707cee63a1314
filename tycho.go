// Package tycho is an embedded JSON document store layered over SQLite's
// JSON1 extension: typed Go values are serialized and kept as JSON blobs
// keyed by (partition, type, id), with filtered/sorted/projected reads and
// user-defined indexes over JSON paths.
//
// Package-level logging follows the teacher's convention of a swappable
// *log.Logger defaulting to log.Default() rather than a logging framework:
// none of the reference corpus's sqlite-backed examples pull in a
// structured logger for this kind of small embedded component, and the
// teacher itself logs through the standard library only.
package tycho

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/docxology/tychostore/internal/dispatch"
	"github.com/docxology/tychostore/internal/index"
	"github.com/docxology/tychostore/internal/registry"
	"github.com/docxology/tychostore/internal/schema"
	"github.com/docxology/tychostore/selector"
	"github.com/docxology/tychostore/serializer"
	"github.com/docxology/tychostore/terr"
)

// Logger receives diagnostic messages: Open logs a line when RebuildCache
// drops and recreates the tables. Callers may replace it before calling Open.
var Logger = log.Default()

// Store is the embedded document store handle.
type Store struct {
	disp                *dispatch.Dispatcher
	reg                 *registry.Registry
	ser                 serializer.Serializer
	requireRegistration bool
}

type options struct {
	dir                     string
	filename                string
	password                string
	rebuildCache            bool
	requireTypeRegistration bool
	readRateLimit           float64
	readRateBurst           int
	serializer              serializer.Serializer
}

func defaultOptions() options {
	return options{
		dir:           os.TempDir(),
		filename:      "tycho_cache.db",
		readRateLimit: 100,
		readRateBurst: 100,
		serializer:    serializer.JSON{},
	}
}

// Option configures Open (§6.2 configuration options).
type Option func(*options)

// Directory sets the directory the database file is opened/created in
// (default os.TempDir()). An empty dir opens relative to the process's
// working directory.
func Directory(dir string) Option { return func(o *options) { o.dir = dir } }

// Filename overrides the database file name (default "tycho_cache.db"). Passing
// ":memory:" opens a private in-memory database instead of a file.
func Filename(name string) Option { return func(o *options) { o.filename = name } }

// Password enables the SQLCipher-style key pragma on open (§6.2, §6.3).
// Encryption itself is provided by a cipher-enabled sqlite build; this
// store only issues the pragma.
func Password(password string) Option { return func(o *options) { o.password = password } }

// RebuildCache drops and recreates the documents/blobs/index tables on
// open, discarding all previously stored data and index metadata.
func RebuildCache(b bool) Option { return func(o *options) { o.rebuildCache = b } }

// RequireTypeRegistration makes a write fail with RegistrationRequired,
// before the object is serialized, when its type has no registered id
// strategy (never registered, or registered with a nil selector). A write
// that supplies its id through WithID is not checked against the registry
// and succeeds whether or not its type is registered. Without this option,
// such a write without WithID also fails with RegistrationRequired, later,
// when its id cannot be derived.
func RequireTypeRegistration(b bool) Option {
	return func(o *options) { o.requireTypeRegistration = b }
}

// ReadRateLimit sets the token-bucket fill rate, in reads per second, for
// the read path (§4.H). Non-positive disables limiting.
func ReadRateLimit(perSecond float64) Option {
	return func(o *options) { o.readRateLimit = perSecond }
}

// ReadRateBurst sets the token-bucket burst size for the read path.
func ReadRateBurst(n int) Option { return func(o *options) { o.readRateBurst = n } }

// WithSerializer overrides the default JSON serializer (§6.4).
func WithSerializer(s serializer.Serializer) Option {
	return func(o *options) { o.serializer = s }
}

// Open opens (creating if absent) the database described by opts and
// returns a ready Store.
func Open(ctx context.Context, opts ...Option) (*Store, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	dsn := o.filename
	if dsn != ":memory:" && o.dir != "" {
		dsn = filepath.Join(o.dir, o.filename)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, terr.Wrap(terr.EngineError, "open database", err)
	}
	// Grounded on the teamcontext example's NewSQLiteIndex: a single
	// connection avoids SQLITE_BUSY storms under our own write queue: the
	// dispatcher is already the sole writer, and capping the pool keeps
	// reads from racing a writer across two OS-level connections.
	db.SetMaxOpenConns(1)

	if err := schema.Apply(db, schema.EncryptionPragmas(o.password)); err != nil {
		db.Close()
		return nil, terr.Wrap(terr.EngineError, "apply encryption pragma", err)
	}
	if err := schema.Apply(db, schema.Pragmas); err != nil {
		db.Close()
		return nil, terr.Wrap(terr.EngineError, "apply pragmas", err)
	}

	if o.rebuildCache {
		if err := schema.Rebuild(db); err != nil {
			db.Close()
			return nil, terr.Wrap(terr.EngineError, "rebuild schema", err)
		}
		Logger.Printf("tycho: rebuilt tables of %s, previously stored data discarded", dsn)
	} else if err := schema.EnsureAll(db); err != nil {
		db.Close()
		return nil, terr.Wrap(terr.EngineError, "ensure schema", err)
	}

	return &Store{
		disp:                dispatch.New(db, o.readRateLimit, o.readRateBurst),
		reg:                 registry.New(),
		ser:                 o.serializer,
		requireRegistration: o.requireTypeRegistration,
	}, nil
}

// Close stops the writer goroutine, draining any already-queued work, and
// closes the underlying connection.
func (s *Store) Close() error { return s.disp.Close() }

// Register associates T with a Go function that derives its storage id.
// Passing a nil idSelector marks T as requiring id mapping at call sites
// (WriteOption id overrides) instead.
func Register[T any](s *Store, idSelector func(T) any) error {
	if registry.Register(s.reg, idSelector) {
		var zero T
		return terr.New(terr.InvalidOperation, fmt.Sprintf(
			"type %T already registered with an incompatible id strategy", zero))
	}
	return nil
}

// RegisterWithPath associates T with a dotted JSON property path used to
// derive its storage id directly from serialized data, for types with no
// convenient Go-level id accessor.
func RegisterWithPath[T any](s *Store, path selector.Path) error {
	if registry.RegisterWithPath[T](s.reg, path) {
		var zero T
		return terr.New(terr.InvalidOperation, fmt.Sprintf(
			"type %T already registered with a different id path", zero))
	}
	return nil
}

// CreateIndex promotes sel into a generated, indexed column backing T's
// rows, so subsequent filters/sorts over sel run against a real SQLite
// index instead of evaluating json_extract per row (§4.F).
func CreateIndex[T any](ctx context.Context, s *Store, sel selector.Path, name string) error {
	info := registry.Lookup[T](s.reg)
	jsonPath := selector.JSONPath(sel.Dotted())
	_, err := s.disp.Dispatch(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		return nil, index.Create(ctx, db, info.FullTypeName, info.SafeTypeName, name, jsonPath)
	})
	return err
}

// DropIndex removes a previously created index (§4.F).
func DropIndex[T any](ctx context.Context, s *Store, name string) error {
	info := registry.Lookup[T](s.reg)
	_, err := s.disp.Dispatch(ctx, func(ctx context.Context, db *sql.DB) (any, error) {
		return nil, index.Drop(ctx, db, info.FullTypeName, info.SafeTypeName, name)
	})
	return err
}
