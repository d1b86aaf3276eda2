package ingest

import "strconv"

// The closed set of payload shapes telemetry arrives in. Classification is
// a single explicit step so the handling precedence is visible in one
// place:
//
//  1. object wrapping a named collection ({"tanks": [...]})
//  2. array of objects without id fields (positional, index i -> tank i+1)
//  3. array of objects with id fields
//  4. single object with an id field
type (
	wrappedCollection struct {
		key   string
		inner any
	}
	positionalArray struct{ elements []any }
	idArray         struct{ elements []any }
	singleObject    struct{ fields map[string]any }
	unknownShape    struct{}
)

// collectionKeys are the wrapper keys we unwrap, in lookup order.
var collectionKeys = []string{"tanks", "adjustments"}

func classify(data any) any {
	switch v := data.(type) {
	case map[string]any:
		for _, key := range collectionKeys {
			if inner, ok := v[key]; ok {
				return wrappedCollection{key: key, inner: inner}
			}
		}
		return singleObject{fields: v}
	case []any:
		// An array is positional when its first object element has no
		// id; the sender is trusted to list tanks in id order.
		if first, ok := firstObject(v); ok {
			if _, hasID := first["id"]; !hasID {
				return positionalArray{elements: v}
			}
		}
		return idArray{elements: v}
	default:
		return unknownShape{}
	}
}

func firstObject(elements []any) (map[string]any, bool) {
	if len(elements) == 0 {
		return nil, false
	}
	obj, ok := elements[0].(map[string]any)
	return obj, ok
}

// coerceFloat converts a JSON value to float64. Numbers pass through;
// numeric strings are parsed, everything else fails.
func coerceFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// coerceInt converts a JSON value to an integer id.
func coerceInt(v any) (int, bool) {
	f, ok := coerceFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}
