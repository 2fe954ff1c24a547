package service

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/and161185/socialkeeper/internal/errs"
	"github.com/and161185/socialkeeper/internal/model"
)

// GetViews lists view names. Backend failures are logged and yield an empty list.
func (d *Datastore) GetViews(ctx context.Context) []string {
	const op = "get views"
	defer d.observe(op)()

	names, err := d.views.Names(ctx)
	if err != nil {
		d.log.Error("list views", zap.Error(d.fail(op, err)))
		return []string{}
	}
	return names
}

// ViewExists reports whether a view is defined.
func (d *Datastore) ViewExists(ctx context.Context, name string) (bool, error) {
	const op = "view exists"
	defer d.observe(op)()

	ok, err := d.views.Exists(ctx, name)
	if err != nil {
		return false, d.fail(op, err)
	}
	return ok, nil
}

// GetView returns the view definition, or an empty list when it is not defined.
func (d *Datastore) GetView(ctx context.Context, name string) ([]model.ViewEntry, error) {
	const op = "get view"
	defer d.observe(op)()

	def, err := d.views.Get(ctx, name)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return []model.ViewEntry{}, nil
	case err != nil:
		return nil, d.fail(op, err)
	}
	entries := []model.ViewEntry{}
	if err := json.Unmarshal([]byte(def), &entries); err != nil {
		return nil, d.fail(op, err)
	}
	return entries, nil
}

// SetView writes a view definition, replacing an existing one wholesale.
func (d *Datastore) SetView(ctx context.Context, name string, values []model.ViewEntry) error {
	const op = "set view"
	defer d.observe(op)()

	if name == "" {
		return precondition(op, "name is required")
	}
	if values == nil {
		values = []model.ViewEntry{}
	}
	def, err := model.EncodeJSON(values)
	if err != nil {
		return precondition(op, "%v", err)
	}
	if err := d.views.Upsert(ctx, name, def); err != nil {
		return d.fail(op, err)
	}
	return nil
}

// DeleteView removes a view. Deleting a missing view succeeds.
func (d *Datastore) DeleteView(ctx context.Context, name string) (bool, error) {
	const op = "delete view"
	defer d.observe(op)()

	if err := d.views.Delete(ctx, name); err != nil {
		return false, d.fail(op, err)
	}
	return true, nil
}
