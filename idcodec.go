package tycho

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/docxology/tychostore/internal/registry"
	"github.com/docxology/tychostore/selector"
	"github.com/docxology/tychostore/terr"
)

// deriveID computes the TEXT primary-key value for obj, whose serialized
// form is data. override/hasOverride come from WithID, which always wins;
// otherwise the type's registered strategy applies (id_selector against
// obj, or id_property_path against the already-serialized data — never a
// second marshal of obj, so a custom Serializer's field naming can't drift
// the stored id away from what json_extract(data, ...) would read back).
func deriveID(info registry.Info, obj any, data []byte, override any, hasOverride bool) (string, error) {
	if hasOverride {
		return idToText(override)
	}
	if info.IDSelector != nil {
		v, err := registry.ResolveSelectorID(info, obj)
		if err != nil {
			return "", terr.Wrap(terr.InvalidOperation, "resolve id selector", err)
		}
		return idToText(v)
	}
	if info.HasIDPath {
		v, err := extractJSONPath(data, info.IDPropertyPath)
		if err != nil {
			return "", err
		}
		return idToText(v)
	}
	return "", terr.New(terr.RegistrationRequired, fmt.Sprintf(
		"type %s has no id strategy registered; pass WithID or call Register", info.FullTypeName))
}

// idToText canonicalizes an id value into the TEXT form stored in the
// documents table's primary key, independent of which concrete numeric
// type it arrived as.
func idToText(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", terr.New(terr.InvalidOperation, "id value is nil")
	case string:
		if t == "" {
			return "", terr.New(terr.InvalidOperation, "id value is empty")
		}
		return t, nil
	case bool:
		if t {
			return "1", nil
		}
		return "0", nil
	case int:
		return strconv.Itoa(t), nil
	case int32:
		return strconv.FormatInt(int64(t), 10), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(t), 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	case float32:
		return floatToText(float64(t)), nil
	case float64:
		return floatToText(t), nil
	case fmt.Stringer:
		return t.String(), nil
	default:
		return fmt.Sprint(t), nil
	}
}

func floatToText(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// extractJSONPath walks decoded into path's segments, treating ListAny
// segments as a plain field hop: deriving an id from inside an array is a
// caller error, not something this store resolves implicitly.
func extractJSONPath(data []byte, path selector.Path) (any, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, terr.Wrap(terr.SerializationFailed, "decode document for id path resolution", err)
	}
	cur := doc
	for _, seg := range path.Segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, terr.New(terr.InvalidOperation, fmt.Sprintf(
				"id path %q does not match document shape at %q", path.Dotted(), seg.Name))
		}
		v, ok := m[seg.Name]
		if !ok {
			return nil, terr.New(terr.InvalidOperation, fmt.Sprintf(
				"id path %q not present in document", path.Dotted()))
		}
		cur = v
	}
	return cur, nil
}
