package service

import (
	"context"
	"time"
)

// CallAllowed reports whether an outbound provider call for uuid may run now and,
// if not, how long to wait. Without a limiter every call is allowed.
func (d *Datastore) CallAllowed(ctx context.Context, uuid string) (bool, time.Duration, error) {
	const op = "call allowed"
	if d.limits == nil {
		return true, 0, nil
	}
	if uuid == "" {
		return false, 0, precondition(op, "uuid is required")
	}
	ok, wait, err := d.limits.Allow(ctx, uuid, d.now())
	if err != nil {
		return false, 0, d.fail(op, err)
	}
	return ok, wait, nil
}

// RecordCall stamps the current time as the last provider call for uuid.
func (d *Datastore) RecordCall(ctx context.Context, uuid string) error {
	const op = "record call"
	if d.limits == nil {
		return nil
	}
	if uuid == "" {
		return precondition(op, "uuid is required")
	}
	if err := d.limits.Touch(ctx, uuid, d.now()); err != nil {
		return d.fail(op, err)
	}
	return nil
}
