package service

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/socialkeeper/internal/model"
)

type pendingWrite struct {
	item model.StreamItem
	data string
}

// UpdateStreamCache reconciles the cached stream of an authorization with a fresh
// snapshot. Items are categorized first; then additions, updates and removals run
// as three consecutive phases, each one fanned out concurrently.
func (d *Datastore) UpdateStreamCache(
	ctx context.Context, a model.Authorization, snapshot []model.StreamItem,
) (model.ReconcileStats, error) {
	const op = "update stream cache"
	defer d.observe(op)()

	if a.UUID == "" {
		return model.ReconcileStats{}, precondition(op, "uuid is required")
	}
	cached, err := d.streams.List(ctx, a.UUID)
	if err != nil {
		return model.ReconcileStats{}, d.fail(op, err)
	}

	adds, updates, removes, err := categorize(cached, snapshot)
	if err != nil {
		return model.ReconcileStats{}, precondition(op, "%v", err)
	}

	err = d.phase(ctx, len(adds), func(ctx context.Context, i int) error {
		w := adds[i]
		return d.streams.Insert(ctx, a.UUID, model.StreamRecord{
			ItemID:    w.item.ItemID,
			Timestamp: w.item.Timestamp,
			Data:      w.data,
		})
	})
	if err != nil {
		return model.ReconcileStats{}, d.fail(op, err)
	}
	err = d.phase(ctx, len(updates), func(ctx context.Context, i int) error {
		return d.streams.UpdateData(ctx, a.UUID, updates[i].item.ItemID, updates[i].data)
	})
	if err != nil {
		return model.ReconcileStats{}, d.fail(op, err)
	}
	err = d.phase(ctx, len(removes), func(ctx context.Context, i int) error {
		return d.streams.Delete(ctx, a.UUID, removes[i])
	})
	if err != nil {
		return model.ReconcileStats{}, d.fail(op, err)
	}

	stats := model.ReconcileStats{Added: len(adds), Updated: len(updates), Removed: len(removes)}
	d.rec.RecordReconcile(stats)
	d.log.Debug("stream cache reconciled",
		zap.String("uuid", a.UUID),
		zap.Int("added", stats.Added),
		zap.Int("updated", stats.Updated),
		zap.Int("removed", stats.Removed))
	return stats, nil
}

// categorize diffs the cache against the snapshot. Payloads are encoded here so
// that a bad item fails the reconcile before anything is written. The first
// occurrence of a repeated snapshot item_id wins.
func categorize(cached []model.StreamRecord, snapshot []model.StreamItem) (adds, updates []pendingWrite, removes []string, err error) {
	inCache := make(map[string]string, len(cached))
	for _, r := range cached {
		inCache[r.ItemID] = r.Data
	}
	seen := make(map[string]struct{}, len(snapshot))
	for _, it := range snapshot {
		if _, dup := seen[it.ItemID]; dup {
			continue
		}
		seen[it.ItemID] = struct{}{}

		stored, ok := inCache[it.ItemID]
		if ok {
			// undecodable cached payloads are overwritten
			if same, serr := model.SameJSON(it.Data, stored); serr == nil && same {
				continue
			}
		}
		data, err := model.EncodeJSON(it.Data)
		if err != nil {
			return nil, nil, nil, err
		}
		if ok {
			updates = append(updates, pendingWrite{item: it, data: data})
		} else {
			adds = append(adds, pendingWrite{item: it, data: data})
		}
	}
	for _, r := range cached {
		if _, ok := seen[r.ItemID]; !ok {
			removes = append(removes, r.ItemID)
		}
	}
	return adds, updates, removes, nil
}

// phase runs fn for every index in [0, n) with bounded concurrency.
func (d *Datastore) phase(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.fanout)
	for i := range n {
		g.Go(func() error { return fn(gctx, i) })
	}
	return g.Wait()
}

// RetrieveStreamCache returns decoded cached payloads of the UUID bounded by q.
// The result is never nil.
func (d *Datastore) RetrieveStreamCache(ctx context.Context, uuid string, q model.StreamQuery) ([]any, error) {
	const op = "retrieve stream cache"
	defer d.observe(op)()

	if uuid == "" {
		return nil, precondition(op, "uuid is required")
	}
	if q.Limit <= 0 {
		return nil, precondition(op, "limit is required")
	}
	rows, err := d.streams.Query(ctx, uuid, q)
	if err != nil {
		return nil, d.fail(op, err)
	}
	out := make([]any, 0, len(rows))
	for _, r := range rows {
		v, err := model.DecodeJSON(r)
		if err != nil {
			return nil, d.fail(op, err)
		}
		out = append(out, v)
	}
	return out, nil
}
