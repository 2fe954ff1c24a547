// Package service implements the Datastore facade: OAuth credential storage,
// time-series samples, stream cache reconciliation, granular events and views.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/socialkeeper/internal/crypto"
	"github.com/and161185/socialkeeper/internal/errs"
	"github.com/and161185/socialkeeper/internal/limiter"
	"github.com/and161185/socialkeeper/internal/metrics"
	"github.com/and161185/socialkeeper/internal/repository"
	"github.com/and161185/socialkeeper/internal/repository/postgres"
)

const defaultFanout = 8

// StatusProber runs the backend liveness probe.
type StatusProber interface {
	Status(ctx context.Context) string
}

// Deps are the collaborators of a Datastore. Repositories are required; the rest
// default to no-op or wall-clock implementations.
type Deps struct {
	Authz    repository.AuthorizationRepository
	Inflight repository.InflightRepository
	Samples  repository.SampleRepository
	Granular repository.GranularRepository
	Streams  repository.StreamRepository
	Views    repository.ViewRepository
	Limits   limiter.Limiter
	Prober   StatusProber

	Logger   *zap.Logger
	Recorder metrics.Recorder
	Clock    func() time.Time
	NewUUID  func() (string, error)
	// Fanout caps concurrent sub-queries of a single operation.
	Fanout int
}

// Datastore is the facade over the four sub-stores and the view catalog.
type Datastore struct {
	authz    repository.AuthorizationRepository
	inflight repository.InflightRepository
	samples  repository.SampleRepository
	granular repository.GranularRepository
	streams  repository.StreamRepository
	views    repository.ViewRepository
	limits   limiter.Limiter
	prober   StatusProber
	closer   func()

	log     *zap.Logger
	rec     metrics.Recorder
	now     func() time.Time
	newUUID func() (string, error)
	fanout  int
}

// NewDatastore wires a Datastore from its dependencies.
func NewDatastore(d Deps) *Datastore {
	ds := &Datastore{
		authz:    d.Authz,
		inflight: d.Inflight,
		samples:  d.Samples,
		granular: d.Granular,
		streams:  d.Streams,
		views:    d.Views,
		limits:   d.Limits,
		prober:   d.Prober,
		log:      d.Logger,
		rec:      d.Recorder,
		now:      d.Clock,
		newUUID:  d.NewUUID,
		fanout:   d.Fanout,
	}
	if ds.log == nil {
		ds.log = zap.NewNop()
	}
	if ds.rec == nil {
		ds.rec = metrics.NewNoopMetrics()
	}
	if ds.now == nil {
		ds.now = time.Now
	}
	if ds.newUUID == nil {
		ds.newUUID = newV4
	}
	if ds.fanout <= 0 {
		ds.fanout = defaultFanout
	}
	return ds
}

// Options tune a Datastore opened with Connect.
type Options struct {
	Logger   *zap.Logger
	Recorder metrics.Recorder
	Fanout   int
	// CallGap is the minimum spacing enforced between calls for one UUID.
	CallGap time.Duration
	// CredentialKey enables sealing of stored credentials when non-empty.
	CredentialKey []byte
}

// Connect opens a connection pool for dsn and returns a Datastore over it.
func Connect(ctx context.Context, dsn string, opts Options) (*Datastore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty connection string", errs.ErrPrecondition)
	}
	var sealer *crypto.Sealer
	if len(opts.CredentialKey) > 0 {
		s, err := crypto.NewSealer(opts.CredentialKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errs.ErrPrecondition, err)
		}
		sealer = s
	}
	db, err := postgres.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w: %w", errs.ErrBackend, err)
	}
	var authz repository.AuthorizationRepository = postgres.NewAuthzRepo(db)
	if sealer != nil {
		authz = SealCredentials(authz, sealer)
	}
	ds := NewDatastore(Deps{
		Authz:    authz,
		Inflight: postgres.NewInflightRepo(db),
		Samples:  postgres.NewSampleRepo(db),
		Granular: postgres.NewGranularRepo(db),
		Streams:  postgres.NewStreamRepo(db),
		Views:    postgres.NewViewRepo(db),
		Limits:   limiter.NewPG(db.Pool, opts.CallGap),
		Prober:   db,
		Logger:   opts.Logger,
		Recorder: opts.Recorder,
		Fanout:   opts.Fanout,
	})
	ds.closer = db.Close
	return ds, nil
}

// Disconnect releases the connection pool. It is safe to call more than once.
func (d *Datastore) Disconnect() {
	if d.closer != nil {
		d.closer()
		d.closer = nil
	}
}

// Status returns "ok" when the backend answers SELECT 1 with 1 and "error" otherwise.
func (d *Datastore) Status(ctx context.Context) string {
	status := postgres.StatusError
	if d.prober != nil {
		status = d.prober.Status(ctx)
	}
	d.rec.RecordStatus(status)
	return status
}

// fail classifies err for callers: precondition failures and cancellations pass
// through, everything else becomes ErrBackend.
func (d *Datastore) fail(op string, err error) error {
	switch {
	case errors.Is(err, errs.ErrPrecondition),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	default:
		d.rec.RecordBackendError(op)
		return fmt.Errorf("%s: %w: %w", op, errs.ErrBackend, err)
	}
}

// observe records the duration of op when the returned func runs.
func (d *Datastore) observe(op string) func() {
	start := time.Now()
	return func() { d.rec.RecordOperation(op, time.Since(start)) }
}

func precondition(op, format string, args ...any) error {
	return fmt.Errorf("%s: %w: %s", op, errs.ErrPrecondition, fmt.Sprintf(format, args...))
}

func newV4() (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
