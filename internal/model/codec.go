package model

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// EncodeValue coerces a time-series payload into its stored text form.
// Values whose string form contains a dot and parses as a float are stored as a
// float literal, values parsing as integers as an integer literal, and anything
// else as a JSON document.
func EncodeValue(v any) (string, error) {
	if s, ok := scalarForm(v); ok {
		s = strings.TrimSpace(s)
		if strings.Contains(s, ".") {
			if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
				return formatFloat(f), nil
			}
		} else if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return strconv.FormatInt(i, 10), nil
		}
	}
	return EncodeJSON(v)
}

// DecodeValue parses a stored time-series payload: integers come back as int64,
// everything else is JSON-decoded.
func DecodeValue(s string) (any, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	return DecodeJSON(s)
}

// EncodeJSON serializes a structured payload for a text column.
func EncodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}

// DecodeJSON parses a text column written by EncodeJSON.
func DecodeJSON(s string) (any, error) {
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return out, nil
}

// SameJSON reports whether a structured value and an encoded payload describe the
// same JSON document. The value goes through an encode/decode round trip so that
// Go numeric and container types compare like their decoded counterparts.
func SameJSON(v any, encoded string) (bool, error) {
	stored, err := DecodeJSON(encoded)
	if err != nil {
		return false, err
	}
	enc, err := EncodeJSON(v)
	if err != nil {
		return false, err
	}
	incoming, err := DecodeJSON(enc)
	if err != nil {
		return false, err
	}
	return reflect.DeepEqual(stored, incoming), nil
}

// scalarForm returns the string form of strings and numbers; other kinds have none.
func scalarForm(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case int:
		return strconv.Itoa(t), true
	case int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(t).Int(), 10), true
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflect.ValueOf(t).Uint(), 10), true
	case float32:
		return formatFloat(float64(t)), true
	case float64:
		return formatFloat(t), true
	default:
		return "", false
	}
}

// formatFloat keeps a trailing ".0" on integral floats so they stay floats on read.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
