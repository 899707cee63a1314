// Package registry tracks, per Go type, the table shape and id-derivation
// policy the rest of the store needs (§4.B). The map+RWMutex shape is
// grounded on the teacher's internal/store.Store (UpsertServer/GetServer
// over a mutex-guarded map) — the same "small concurrent registry" idiom,
// generalized here to index by reflect.Type instead of a string id.
package registry

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/docxology/tychostore/selector"
)

// Info is everything the store needs to know about a registered type.
type Info struct {
	FullTypeName      string
	SafeTypeName      string
	IDSelector        func(any) any
	IDPropertyPath    selector.Path
	HasIDPath         bool
	IDIsNumeric       bool
	IDIsBool          bool
	RequiresIDMapping bool
}

// Registry is a concurrency-safe type -> Info map, keyed by reflect.Type.
// Reflection is used only here, to resolve a Go type to its stable string
// identifier and table shape — the narrow, justified use SPEC_FULL.md calls
// out (there is no other way in Go to recover a type's identity at a write
// call site without the caller naming it explicitly).
type Registry struct {
	mu   sync.RWMutex
	byTy map[reflect.Type]Info
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{byTy: map[reflect.Type]Info{}}
}

// Register records idSelector for T, keyed by T's reflect.Type. A repeat
// registration is compared by selector presence only, since Go functions
// cannot be compared: nil over non-nil (or the reverse) is reported as a
// conflict, which Store translates to InvalidOperation; a second non-nil
// selector is accepted without a conflict and the first one is kept.
func Register[T any](r *Registry, idSelector func(T) any) (conflict bool) {
	ty := reflect.TypeOf((*T)(nil)).Elem()
	var wrapped func(any) any
	if idSelector != nil {
		wrapped = func(v any) any { return idSelector(v.(T)) }
	}
	return RegisterType(r, ty, wrapped)
}

// RegisterType is Register's non-generic core: the public WriteObject/
// WriteObjects API takes obj any (no type parameter at the call site), so
// it must resolve registry state from a runtime reflect.Type instead.
func RegisterType(r *Registry, ty reflect.Type, wrapped func(any) any) (conflict bool) {
	full := FullTypeName(ty)
	info := Info{
		FullTypeName: full,
		SafeTypeName: SafeTypeName(full),
		IDSelector:   wrapped,
	}
	if wrapped == nil {
		info.RequiresIDMapping = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byTy[ty]
	if ok {
		existingHasSelector := existing.IDSelector != nil
		newHasSelector := wrapped != nil
		if existingHasSelector != newHasSelector {
			return true
		}
		// Both present or both absent: idempotent, keep the existing entry.
		return false
	}
	r.byTy[ty] = info
	return false
}

// RegisterWithPath records an id derived from a dotted JSON property path
// rather than a Go selector function (registerWithExpression in spec.md).
func RegisterWithPath[T any](r *Registry, path selector.Path) (conflict bool) {
	ty := reflect.TypeOf((*T)(nil)).Elem()
	full := FullTypeName(ty)
	info := Info{
		FullTypeName:   full,
		SafeTypeName:   SafeTypeName(full),
		IDPropertyPath: path,
		HasIDPath:      true,
		IDIsNumeric:    path.IsNumeric(),
		IDIsBool:       path.IsBool(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.byTy[ty]
	if ok {
		if !existing.HasIDPath || existing.IDPropertyPath.Dotted() != path.Dotted() {
			return true
		}
		return false
	}
	r.byTy[ty] = info
	return false
}

// Lookup returns the registered Info for T, or a default entry with
// RequiresIDMapping=true if T has never been registered.
func Lookup[T any](r *Registry) Info {
	ty := reflect.TypeOf((*T)(nil)).Elem()
	return LookupType(r, ty)
}

// LookupType is Lookup's non-generic core, used wherever only a runtime
// reflect.Type is available (the public any-typed write/blob paths).
func LookupType(r *Registry, ty reflect.Type) Info {
	full := FullTypeName(ty)
	r.mu.RLock()
	info, ok := r.byTy[ty]
	r.mu.RUnlock()
	if ok {
		return info
	}
	return Info{
		FullTypeName:      full,
		SafeTypeName:      SafeTypeName(full),
		RequiresIDMapping: true,
	}
}

// IsRegistered reports whether T has an explicit registry entry (as
// opposed to the synthesized default Lookup returns).
func IsRegistered[T any](r *Registry) bool {
	ty := reflect.TypeOf((*T)(nil)).Elem()
	r.mu.RLock()
	_, ok := r.byTy[ty]
	r.mu.RUnlock()
	return ok
}

// FullTypeName is the stable row discriminator for ty: package path plus
// type name, so two different packages' "Widget" types never collide.
func FullTypeName(ty reflect.Type) string {
	if ty.PkgPath() == "" {
		return ty.Name()
	}
	return ty.PkgPath() + "." + ty.Name()
}

// SafeTypeName sanitizes full into a form valid as a SQL identifier
// fragment: lower-case, [a-z0-9_] only, invalid runs collapsed to a single
// underscore. Grounded on internal/db.go's dbName/sanitize closure in the
// teacher, which solves the identical "make this arbitrary string safe for
// use as a database identifier" problem for RethinkDB database names.
func SafeTypeName(full string) string {
	full = strings.ToLower(strings.TrimSpace(full))
	var b strings.Builder
	b.Grow(len(full))
	lastUnderscore := false
	for _, ch := range full {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			b.WriteRune(ch)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" {
		return "t"
	}
	return out
}

// ResolveSelectorID applies info's Go-selector id-derivation policy to obj.
// Callers must have already checked info.IDSelector != nil. Path-based id
// derivation (info.HasIDPath) instead works against the serialized "data"
// bytes, so that the stored id always matches what json_extract(data, ...)
// would read back even under a custom Serializer; see the root package's
// extractJSONPath.
func ResolveSelectorID(info Info, obj any) (any, error) {
	if info.IDSelector == nil {
		return nil, fmt.Errorf("type %s has no id selector registered", info.FullTypeName)
	}
	return info.IDSelector(obj), nil
}
