// Package model defines domain entities used by services and repositories.
package model

// Authorization is a persisted OAuth credential binding (client, service, user) to tokens.
// Nullable columns are normalized on read: empty strings for text, nil for timestamps.
type Authorization struct {
	UUID         string // canonical 36-char identifier, FK target for dependents
	ClientName   string
	ServiceName  string
	UserID       string
	Token        string
	RefreshToken string
	Secret       string
	RedirectURI  string
	ExpiredOn    *int64 // nil while the credential is active
	CreatedOn    *int64 // account_created_timestamp
}

// Expired reports whether an expiry has been stamped on the authorization.
func (a Authorization) Expired() bool { return a.ExpiredOn != nil }

// AuthzFilter selects authorizations either by UUID(s) or by the
// (client_name, service_name[, user_id]) triple.
type AuthzFilter struct {
	UUID         string
	UUIDs        []string // list lookup; takes precedence over UUID when non-empty
	ClientName   string
	ServiceName  string
	ServiceNames []string // membership filter applied to list lookups
	UserID       string
}

// SetTokenArgs carries the inputs of a token upsert. The triple is required.
type SetTokenArgs struct {
	ClientName   string
	ServiceName  string
	UserID       string
	Token        string
	RefreshToken string
	Secret       string
	RedirectURI  string
	ExpiredOn    *int64
	// State is accepted for parity with the inflight handshake; it has no column.
	State string
}

// CredentialUpdate lists the credential columns to overwrite; nil fields stay untouched.
type CredentialUpdate struct {
	Token  *string
	Secret *string
}

// Empty reports whether the update changes nothing.
func (u CredentialUpdate) Empty() bool { return u.Token == nil && u.Secret == nil }

// InflightAuthorization is scratch state for the request-token leg of OAuth v1.
type InflightAuthorization struct {
	ServiceName  string
	RequestToken string
	Secret       string
	State        string
}

// InflightFilter selects inflight rows; zero fields are ignored.
type InflightFilter struct {
	ServiceName  string
	RequestToken string
	State        string
}

// Sample is one time-series row of the user_data table with its payload still encoded.
type Sample struct {
	UUID      string
	Method    string
	Timestamp int64
	Data      string
}

// GranularDatum is a single interaction event used for top-actor aggregation.
type GranularDatum struct {
	UUID      string
	Method    string
	ItemID    string
	ActorID   string
	Timestamp int64
}

// GranularItem is an incoming event candidate identified by its external ID.
type GranularItem struct {
	ID        string
	ActorID   string
	Timestamp int64
	Data      map[string]any
}

// TopActor is the result of a windowed GROUP BY actor_id aggregation.
type TopActor struct {
	ActorID string `json:"actor_id"`
	Num     int64  `json:"num"`
	Latest  int64  `json:"latest"`
}

// StreamItem is an element of an incoming feed snapshot; Data is not yet encoded.
type StreamItem struct {
	ItemID    string
	Timestamp int64
	Data      any
}

// StreamRecord is a cached stream_cache row with its payload still encoded.
type StreamRecord struct {
	ItemID    string
	Timestamp int64
	Data      string
}

// StreamQuery bounds a stream cache read. Zero Start/End leave that side open.
type StreamQuery struct {
	Start      int64
	End        int64
	Limit      int
	OrderBy    string
	StreamType string // plural noun, e.g. "posts"; restricts item_id to "post:" prefix
}

// ReconcileStats counts the statements issued by a stream reconcile.
type ReconcileStats struct {
	Added   int
	Updated int
	Removed int
}

// ViewEntry is one (service, method) pair of a view definition.
type ViewEntry struct {
	Service string `json:"service"`
	Method  string `json:"method"`
}

// Limit is the per-UUID call timestamp used by client-side rate limiting.
type Limit struct {
	UUID         string
	LastCalledOn int64
}
