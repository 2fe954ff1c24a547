// Package query builds parameterized WHERE predicates from field filters.
package query

import (
	"reflect"
	"slices"
	"strconv"
	"strings"
)

// Field is one column/value pair of a filter. Filters are ordered so that bound
// arguments follow insertion order.
type Field struct {
	Column string
	Value  any
}

// Fields is an ordered filter.
type Fields []Field

// Where renders "c1=$n AND c2=$n+1 ..." for every field whose value is truthy and whose
// column is not listed in without. Placeholders start at $first. An empty predicate
// means no field survived; callers decide whether that is allowed.
func Where(fields Fields, first int, without ...string) (string, []any) {
	var (
		parts []string
		args  []any
	)
	for _, f := range fields {
		if slices.Contains(without, f.Column) || IsZero(f.Value) {
			continue
		}
		args = append(args, f.Value)
		parts = append(parts, f.Column+"=$"+strconv.Itoa(first+len(args)-1))
	}
	return strings.Join(parts, " AND "), args
}

// Has reports whether the field with the given column survives filtering.
func (fs Fields) Has(column string) bool {
	for _, f := range fs {
		if f.Column == column && !IsZero(f.Value) {
			return true
		}
	}
	return false
}

// IsZero reports whether v is falsy: nil, empty string, numeric zero, false,
// or an empty slice/map.
func IsZero(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case int:
		return t == 0
	case int64:
		return t == 0
	case float64:
		return t == 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil() || IsZero(rv.Elem().Interface())
	default:
		return rv.IsZero()
	}
}
