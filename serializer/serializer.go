// Package serializer defines the pluggable encode/decode capability the
// store delegates to (§6.4). Encode/decode itself is out of core scope —
// the store only needs the interface and a default implementation.
package serializer

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// Serializer converts typed values to/from the UTF-8 bytes stored in the
// "data" column. Implementations must treat documents as acyclic: cyclic
// input must fail rather than hang or overflow the encoder.
type Serializer interface {
	Serialize(obj any) ([]byte, error)
	Deserialize(ctx context.Context, r io.Reader, out any) error
	// DatetimeFormat is the layout (time.Time Format/Parse string) this
	// serializer uses to render datetimes to JSON text. The SQL generator
	// uses the same layout when comparing datetime-hinted paths, so text
	// comparison orders the same way the serializer's encoding does.
	DatetimeFormat() string
}

// JSON is the default Serializer, backed by encoding/json — the library
// every sqlite-backed example in the reference corpus reaches for to do
// exactly this (sqliteindexer, teamcontext, trifle_stats_go all marshal
// with encoding/json directly); there is no encode/decode concern here
// that a third-party library would serve better, since serialization
// itself is explicitly out of this store's core scope.
type JSON struct{}

func (JSON) Serialize(obj any) ([]byte, error) {
	return json.Marshal(obj)
}

func (JSON) Deserialize(_ context.Context, r io.Reader, out any) error {
	dec := json.NewDecoder(r)
	return dec.Decode(out)
}

func (JSON) DatetimeFormat() string { return time.RFC3339Nano }
