package render

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Undefined is the text rendered for a lookup whose path does not exist.
const Undefined = "undefined"

// Reserved keys of an iteration context.
const (
	IndexKey = "index"
	ItemKey  = "item"
)

// DefaultValues returns the defaults merged under every render's data.
func DefaultValues() map[string]any {
	return map[string]any{
		"meta": map[string]any{
			"title":       "",
			"description": "",
			"author":      "",
			"keywords":    []any{},
		},
	}
}

// mergeData returns a new map with the top-level keys of each layer, later
// layers winning. Nested maps are not merged.
func mergeData(layers ...map[string]any) map[string]any {
	size := 0
	for _, layer := range layers {
		size += len(layer)
	}

	merged := make(map[string]any, size)
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}

// elementData builds the data seen by one forEach element: the parent data,
// the element's fields and its index. parent is not modified.
func elementData(parent map[string]any, element any, index int) map[string]any {
	fields, ok := asMap(element)
	if !ok {
		fields = map[string]any{ItemKey: element}
	}

	data := mergeData(parent, fields)
	data[IndexKey] = index
	return data
}

// lookupPath walks path through nested maps and slices.
func lookupPath(data map[string]any, path []string) (any, bool) {
	var current any = data
	for _, segment := range path {
		next, ok := child(current, segment)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func child(value any, key string) (any, bool) {
	switch v := value.(type) {
	case map[string]any:
		c, ok := v[key]
		return c, ok
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(v) {
			return nil, false
		}
		return v[i], true
	case nil:
		return nil, false
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		c := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !c.IsValid() {
			return nil, false
		}
		return c.Interface(), true
	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= rv.Len() {
			return nil, false
		}
		return rv.Index(i).Interface(), true
	}
	return nil, false
}

// asMap returns the fields of a string-keyed map.
func asMap(value any) (map[string]any, bool) {
	if m, ok := value.(map[string]any); ok {
		return m, true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}

	m := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m[iter.Key().String()] = iter.Value().Interface()
	}
	return m, true
}

// asSequence returns the elements of a slice or array.
func asSequence(value any) ([]any, bool) {
	if s, ok := value.([]any); ok {
		return s, true
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}

	s := make([]any, rv.Len())
	for i := range s {
		s[i] = rv.Index(i).Interface()
	}
	return s, true
}

// formatValue renders a looked-up value the way browsers print values:
// missing is "undefined", nil is "null", sequences are comma joined and maps
// print as "[object Object]".
func formatValue(value any, found bool) string {
	if !found {
		return Undefined
	}

	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return formatNumber(v)
	case float32:
		return formatNumber(float64(v))
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	}

	if s, ok := asSequence(value); ok {
		parts := make([]string, len(s))
		for i, e := range s {
			if e != nil {
				parts[i] = formatValue(e, true)
			}
		}
		return strings.Join(parts, ",")
	}
	if _, ok := asMap(value); ok {
		return "[object Object]"
	}

	return fmt.Sprint(value)
}

func formatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.Abs(f) >= 1e21 || (f != 0 && math.Abs(f) < 1e-6):
		return strconv.FormatFloat(f, 'g', -1, 64)
	default:
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
}
