package service

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/and161185/socialkeeper/internal/errs"
	"github.com/and161185/socialkeeper/internal/model"
)

// GetLastGranularTimestamp returns the newest event timestamp, or nil when the
// method has no events.
func (d *Datastore) GetLastGranularTimestamp(ctx context.Context, a model.Authorization, method string) (*int64, error) {
	const op = "get last granular timestamp"
	defer d.observe(op)()

	ts, err := d.granular.LastTimestamp(ctx, a.UUID, method)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, d.fail(op, err)
	}
	return &ts, nil
}

// WriteGranularDatum inserts one event unconditionally.
func (d *Datastore) WriteGranularDatum(
	ctx context.Context, a model.Authorization, method, itemID, actorID string, ts int64,
) error {
	const op = "write granular datum"
	defer d.observe(op)()

	if a.UUID == "" || method == "" || itemID == "" {
		return precondition(op, "uuid, method and item_id are required")
	}
	err := d.granular.Insert(ctx, model.GranularDatum{
		UUID:      a.UUID,
		Method:    method,
		ItemID:    itemID,
		ActorID:   actorID,
		Timestamp: ts,
	})
	if err != nil {
		return d.fail(op, err)
	}
	return nil
}

// FindUnwrittenGranularData filters batch down to the items with no stored
// event. Lookups run concurrently; the result keeps the batch order.
func (d *Datastore) FindUnwrittenGranularData(
	ctx context.Context, batch []model.GranularItem, a model.Authorization, method string,
) ([]model.GranularItem, error) {
	const op = "find unwritten granular data"
	defer d.observe(op)()

	written := make([]bool, len(batch))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.fanout)
	for i, it := range batch {
		g.Go(func() error {
			ok, err := d.granular.Exists(gctx, a.UUID, method, it.ID)
			written[i] = ok
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, d.fail(op, err)
	}

	out := make([]model.GranularItem, 0, len(batch))
	for i, it := range batch {
		if !written[i] {
			out = append(out, it)
		}
	}
	return out, nil
}

// RetrieveGranularData returns the most frequent actor in [start, end] other
// than userID, or nil when there is none.
func (d *Datastore) RetrieveGranularData(
	ctx context.Context, uuid, method string, start, end int64, userID string,
) (*model.TopActor, error) {
	const op = "retrieve granular data"
	defer d.observe(op)()

	top, err := d.granular.TopActor(ctx, uuid, method, start, end, userID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, d.fail(op, err)
	}
	return &top, nil
}
