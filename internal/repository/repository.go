// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/socialkeeper/internal/model"
	"github.com/and161185/socialkeeper/internal/query"
)

// AuthorizationRepository provides access to OAuth credentials.
type AuthorizationRepository interface {
	// FindOne returns the first authorization matching the filter.
	FindOne(ctx context.Context, where query.Fields) (*model.Authorization, error)
	// GetByUUID loads an authorization by UUID.
	GetByUUID(ctx context.Context, uuid string) (*model.Authorization, error)
	// Create inserts a new authorization and returns the stored row.
	Create(ctx context.Context, a *model.Authorization) (*model.Authorization, error)
	// UpdateCredentials overwrites the non-nil credential columns.
	UpdateCredentials(ctx context.Context, uuid string, upd model.CredentialUpdate) error
	// Expire stamps expired_on_timestamp.
	Expire(ctx context.Context, uuid string, ts int64) error
	// Delete removes every authorization matching the filter; dependents cascade.
	Delete(ctx context.Context, where query.Fields) error
}

// InflightRepository stores OAuth v1 request-token state.
type InflightRepository interface {
	// Store inserts one handshake row.
	Store(ctx context.Context, in model.InflightAuthorization) error
	// Take returns the first matching row and deletes every matching row.
	Take(ctx context.Context, where query.Fields) (*model.InflightAuthorization, error)
}

// SampleRepository provides time-series rows of the user_data table.
type SampleRepository interface {
	// Latest returns the most recent sample for (uuid, method).
	Latest(ctx context.Context, uuid, method string) (model.Sample, error)
	// Between returns samples with start <= timestamp <= end ordered by timestamp.
	Between(ctx context.Context, uuid, method string, start, end int64, desc bool) ([]model.Sample, error)
	// Before returns the most recent sample strictly older than ts.
	Before(ctx context.Context, uuid, method string, ts int64) (model.Sample, error)
	// Insert writes one sample.
	Insert(ctx context.Context, s model.Sample) error
	// DeleteByUUID removes every sample of the UUID.
	DeleteByUUID(ctx context.Context, uuid string) error
}

// GranularRepository provides per-event rows used for top-actor aggregation.
type GranularRepository interface {
	// LastTimestamp returns the newest event timestamp for (uuid, method).
	LastTimestamp(ctx context.Context, uuid, method string) (int64, error)
	// Insert writes one event.
	Insert(ctx context.Context, d model.GranularDatum) error
	// Exists reports whether an event for the item was already written.
	Exists(ctx context.Context, uuid, method, itemID string) (bool, error)
	// TopActor aggregates events in [start, end] by actor, excluding one actor.
	TopActor(ctx context.Context, uuid, method string, start, end int64, exclude string) (model.TopActor, error)
	// DeleteByUUID removes every event of the UUID.
	DeleteByUUID(ctx context.Context, uuid string) error
}

// StreamRepository provides the cached stream snapshot of each UUID.
type StreamRepository interface {
	// List returns every cached record of the UUID.
	List(ctx context.Context, uuid string) ([]model.StreamRecord, error)
	// Insert adds a record.
	Insert(ctx context.Context, uuid string, rec model.StreamRecord) error
	// UpdateData overwrites the payload of a cached item.
	UpdateData(ctx context.Context, uuid, itemID, data string) error
	// Delete removes a cached item.
	Delete(ctx context.Context, uuid, itemID string) error
	// Query returns encoded payloads bounded by q.
	Query(ctx context.Context, uuid string, q model.StreamQuery) ([]string, error)
	// DeleteByUUID removes every cached record of the UUID.
	DeleteByUUID(ctx context.Context, uuid string) error
}

// ViewRepository stores named view definitions.
type ViewRepository interface {
	// Names lists every view name.
	Names(ctx context.Context) ([]string, error)
	// Exists reports whether a view with the name exists.
	Exists(ctx context.Context, name string) (bool, error)
	// Get returns the encoded definition of a view.
	Get(ctx context.Context, name string) (string, error)
	// Upsert writes the definition, replacing any existing one.
	Upsert(ctx context.Context, name, definition string) error
	// Delete removes the view; deleting a missing view succeeds.
	Delete(ctx context.Context, name string) error
}
