package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/socialkeeper/internal/errs"
	"github.com/and161185/socialkeeper/internal/model"
)

// RangeOptions bound a GetValueRange read. Zero Start means 1 and zero End means now.
type RangeOptions struct {
	Start   int64
	End     int64
	Num     int // 0 keeps every row
	Reverse bool
}

// IsDuplicateValue reports whether data encodes to the same text as the latest
// stored sample for (uuid, method).
func (d *Datastore) IsDuplicateValue(ctx context.Context, uuid, method string, data any) (bool, error) {
	const op = "is duplicate value"
	defer d.observe(op)()

	encoded, err := model.EncodeValue(data)
	if err != nil {
		return false, precondition(op, "%v", err)
	}
	dup, err := d.isDuplicate(ctx, uuid, method, encoded)
	if err != nil {
		return false, d.fail(op, err)
	}
	return dup, nil
}

func (d *Datastore) isDuplicate(ctx context.Context, uuid, method, encoded string) (bool, error) {
	latest, err := d.samples.Latest(ctx, uuid, method)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return latest.Data == encoded, nil
}

// WriteValue appends a sample unless it repeats the latest stored value.
// A suppressed duplicate is still a success.
func (d *Datastore) WriteValue(ctx context.Context, uuid, method string, ts int64, data any) error {
	const op = "write value"
	defer d.observe(op)()

	if uuid == "" || method == "" || ts == 0 || data == nil {
		return precondition(op, "uuid, method, timestamp and data are required")
	}
	encoded, err := model.EncodeValue(data)
	if err != nil {
		return precondition(op, "%v", err)
	}
	dup, err := d.isDuplicate(ctx, uuid, method, encoded)
	if err != nil {
		return d.fail(op, err)
	}
	if dup {
		d.rec.RecordValueWrite("duplicate")
		d.log.Debug("duplicate value skipped", zap.String("uuid", uuid), zap.String("method", method))
		return nil
	}
	err = d.samples.Insert(ctx, model.Sample{UUID: uuid, Method: method, Timestamp: ts, Data: encoded})
	if err != nil {
		return d.fail(op, err)
	}
	d.rec.RecordValueWrite("inserted")
	return nil
}

// GetValue returns the latest sample of the method. The expiry of an expired
// authorization is attached when the sample does not postdate it. It returns nil
// when no sample exists.
func (d *Datastore) GetValue(ctx context.Context, a model.Authorization, method string) (*model.LatestValue, error) {
	const op = "get value"
	defer d.observe(op)()

	latest, err := d.samples.Latest(ctx, a.UUID, method)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, d.fail(op, err)
	}
	v, err := model.DecodeValue(latest.Data)
	if err != nil {
		return nil, d.fail(op, err)
	}
	out := &model.LatestValue{Value: v}
	if a.ExpiredOn != nil && latest.Timestamp <= *a.ExpiredOn {
		exp := *a.ExpiredOn
		out.ExpiredOn = &exp
	}
	return out, nil
}

// GetValueRange returns samples in [start, end]. When no sample sits exactly at
// start, the closest older sample is pulled in and reported at start so a plot
// has a left boundary. At most one point carries the authorization's expiry:
// the latest one not newer than it.
func (d *Datastore) GetValueRange(
	ctx context.Context, a model.Authorization, method string, opts RangeOptions,
) ([]model.RangePoint, error) {
	const op = "get value range"
	defer d.observe(op)()

	start, end := opts.Start, opts.End
	if start <= 0 {
		start = 1
	}
	if end <= 0 {
		end = d.now().Unix()
	}

	rows, err := d.samples.Between(ctx, a.UUID, method, start, end, opts.Reverse)
	if err != nil {
		return nil, d.fail(op, err)
	}

	extStart := start
	if start > 1 && !hasTimestamp(rows, start) {
		prior, err := d.samples.Before(ctx, a.UUID, method, start)
		switch {
		case errors.Is(err, errs.ErrNotFound):
		case err != nil:
			return nil, d.fail(op, err)
		default:
			extStart = prior.Timestamp
			if opts.Reverse {
				rows = append(rows, prior)
			} else {
				rows = append([]model.Sample{prior}, rows...)
			}
		}
	}

	if opts.Num > 0 && len(rows) > opts.Num {
		rows = rows[:opts.Num]
	}

	points := make([]model.RangePoint, len(rows))
	for i, r := range rows {
		v, err := model.DecodeValue(r.Data)
		if err != nil {
			return nil, d.fail(op, err)
		}
		points[i] = model.RangePoint{Timestamp: r.Timestamp, Value: v}
	}

	if a.ExpiredOn != nil && extStart <= *a.ExpiredOn && *a.ExpiredOn <= end {
		if i := expiryIndex(points, *a.ExpiredOn); i >= 0 {
			exp := *a.ExpiredOn
			points[i].ExpiredOn = &exp
		}
	}

	for i := range points {
		if points[i].Timestamp < start {
			points[i].Timestamp = start
		}
	}
	return points, nil
}

// expiryIndex scans from the tail and returns the first point whose
// timestamp does not exceed exp.
func expiryIndex(points []model.RangePoint, exp int64) int {
	for i := len(points) - 1; i >= 0; i-- {
		if points[i].Timestamp <= exp {
			return i
		}
	}
	return -1
}

func hasTimestamp(rows []model.Sample, ts int64) bool {
	for _, r := range rows {
		if r.Timestamp == ts {
			return true
		}
	}
	return false
}

// DeleteUserData removes the samples, stream cache and granular events of one
// UUID. Without a UUID the triple is resolved first; false means it matched
// no authorization.
func (d *Datastore) DeleteUserData(ctx context.Context, f model.AuthzFilter) (bool, error) {
	const op = "delete user data"
	defer d.observe(op)()

	uuid := f.UUID
	if uuid == "" {
		if f.ClientName == "" || f.ServiceName == "" {
			return false, precondition(op, "uuid or client_name and service_name are required")
		}
		a, err := d.authz.FindOne(ctx, tripleFields(f.ClientName, f.ServiceName, f.UserID))
		switch {
		case errors.Is(err, errs.ErrNotFound):
			return false, nil
		case err != nil:
			return false, d.fail(op, err)
		}
		uuid = a.UUID
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.samples.DeleteByUUID(gctx, uuid) })
	g.Go(func() error { return d.streams.DeleteByUUID(gctx, uuid) })
	g.Go(func() error { return d.granular.DeleteByUUID(gctx, uuid) })
	if err := g.Wait(); err != nil {
		return false, d.fail(op, err)
	}
	d.log.Info("user data deleted", zap.String("uuid", uuid))
	return true, nil
}
