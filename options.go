package tycho

import (
	"github.com/docxology/tychostore/filter"
	"github.com/docxology/tychostore/sortexpr"
)

const defaultPartition = ""

type writeOpts struct {
	partition     string
	id            any
	hasID         bool
	transactional bool
}

func newWriteOpts(opts []WriteOption) writeOpts {
	o := writeOpts{partition: defaultPartition, transactional: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WriteOption configures WriteObject, WriteObjects, WriteBlob,
// DeleteObjectByID, and DeleteBlob (§6.1). DeleteObjects and DeleteBlobs
// take QueryOptions instead.
type WriteOption func(*writeOpts)

// WritePartition targets a partition other than the default empty one.
func WritePartition(p string) WriteOption { return func(o *writeOpts) { o.partition = p } }

// WithID supplies an explicit id, bypassing the type's registered
// id_selector/id_property_path strategy entirely.
func WithID(id any) WriteOption {
	return func(o *writeOpts) { o.id = id; o.hasID = true }
}

// Transactional is the default for a multi-object WriteObjects call
// (§4.H "with_transaction" defaults to true): the whole batch succeeds or
// fails atomically. Passing it explicitly is redundant but harmless; it
// exists for callers who want the intent visible at the call site. It has
// no effect on single-object calls, which are already atomic at the
// statement level, or on DeleteObjects, which has no with_transaction
// flag in §6.1.
func Transactional() WriteOption { return func(o *writeOpts) { o.transactional = true } }

// NonTransactional opts a multi-object WriteObjects call out of its
// default wrapping transaction: each row is still written in program
// order, but a later failure does not roll back earlier successes
// (§4.H "with_transaction=false ... unsafe for bulk").
func NonTransactional() WriteOption { return func(o *writeOpts) { o.transactional = false } }

type readOpts struct {
	partition string
}

func newReadOpts(opts []ReadOption) readOpts {
	o := readOpts{partition: defaultPartition}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ReadOption configures ReadObjectByID, ReadObject, ReadFirstObject, and
// ReadBlob.
type ReadOption func(*readOpts)

// ReadPartition targets a partition other than the default empty one.
func ReadPartition(p string) ReadOption { return func(o *readOpts) { o.partition = p } }

type queryOpts struct {
	partition string
	filter    *filter.Builder
	sort      *sortexpr.Builder
	limit     *int
}

func newQueryOpts(opts []QueryOption) queryOpts {
	o := queryOpts{partition: defaultPartition}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// QueryOption configures the multi-row operations: ReadObjects,
// ReadObjectsInto, CountObjects, DeleteObjects, DeleteBlobs.
type QueryOption func(*queryOpts)

// QueryPartition targets a partition other than the default empty one.
func QueryPartition(p string) QueryOption { return func(o *queryOpts) { o.partition = p } }

// Where applies a filter predicate tree.
func Where(f *filter.Builder) QueryOption { return func(o *queryOpts) { o.filter = f } }

// OrderBy applies a sort term list.
func OrderBy(s *sortexpr.Builder) QueryOption { return func(o *queryOpts) { o.sort = s } }

// Limit caps the number of rows returned/affected.
func Limit(n int) QueryOption { return func(o *queryOpts) { o.limit = &n } }
