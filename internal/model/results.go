package model

import (
	"encoding/json"
	"strconv"
)

// ResultKind tags the variant held by a TokenResult.
type ResultKind int

const (
	// Empty means nothing matched.
	Empty ResultKind = iota
	// Found holds a single authorization.
	Found
	// FoundMany holds the authorizations of a UUID-list lookup.
	FoundMany
)

// TokenResult is the outcome of an authorization lookup.
type TokenResult struct {
	kind ResultKind
	one  *Authorization
	many []Authorization
}

// NoToken returns the empty result.
func NoToken() TokenResult { return TokenResult{kind: Empty} }

// OneToken wraps a single authorization.
func OneToken(a Authorization) TokenResult { return TokenResult{kind: Found, one: &a} }

// ManyTokens wraps a list lookup. The result is FoundMany even when the list is empty,
// so callers can still tell list lookups apart; Len is zero in that case.
func ManyTokens(as []Authorization) TokenResult {
	if as == nil {
		as = []Authorization{}
	}
	return TokenResult{kind: FoundMany, many: as}
}

// Kind returns the held variant.
func (r TokenResult) Kind() ResultKind { return r.kind }

// One returns the single authorization, if any.
func (r TokenResult) One() (Authorization, bool) {
	if r.one == nil {
		return Authorization{}, false
	}
	return *r.one, true
}

// Many returns the authorizations of a list lookup.
func (r TokenResult) Many() []Authorization { return r.many }

// Len is zero for the empty sentinel, one for a single record and the list size otherwise.
func (r TokenResult) Len() int {
	switch r.kind {
	case Found:
		return 1
	case FoundMany:
		return len(r.many)
	default:
		return 0
	}
}

// SetTokenResult is the authorization written by a token upsert and whether it was created.
type SetTokenResult struct {
	Authorization Authorization
	Created       bool
}

// LatestValue is the most recent sample of a method. ExpiredOn is set when the
// authorization expired after that sample was taken.
type LatestValue struct {
	Value     any
	ExpiredOn *int64
}

// MarshalJSON renders [value] or [value, expired_on].
func (v LatestValue) MarshalJSON() ([]byte, error) {
	out := []any{v.Value}
	if v.ExpiredOn != nil {
		out = append(out, *v.ExpiredOn)
	}
	return json.Marshal(out)
}

// RangePoint is one element of a range response.
type RangePoint struct {
	Timestamp int64
	Value     any
	ExpiredOn *int64
}

// TimestampString renders the timestamp the way range responses expose it.
func (p RangePoint) TimestampString() string { return strconv.FormatInt(p.Timestamp, 10) }

// MarshalJSON renders ["ts", value] or ["ts", value, expired_on].
func (p RangePoint) MarshalJSON() ([]byte, error) {
	out := []any{p.TimestampString(), p.Value}
	if p.ExpiredOn != nil {
		out = append(out, *p.ExpiredOn)
	}
	return json.Marshal(out)
}
