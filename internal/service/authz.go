package service

import (
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/socialkeeper/internal/errs"
	"github.com/and161185/socialkeeper/internal/model"
	"github.com/and161185/socialkeeper/internal/query"
)

// GetOAuthToken resolves authorizations by UUID list, single UUID or the
// (client_name, service_name, user_id) triple, in that order of precedence.
func (d *Datastore) GetOAuthToken(ctx context.Context, f model.AuthzFilter) (model.TokenResult, error) {
	if len(f.UUIDs) > 0 {
		return d.GetMany(ctx, f)
	}
	return d.GetOne(ctx, f)
}

// GetOne resolves a single authorization. Without a UUID both client and service
// names are required. A UUID hit whose names disagree with the filter yields an
// empty result.
func (d *Datastore) GetOne(ctx context.Context, f model.AuthzFilter) (model.TokenResult, error) {
	const op = "get oauth token"
	defer d.observe(op)()

	var (
		a   *model.Authorization
		err error
	)
	if f.UUID != "" {
		a, err = d.authz.GetByUUID(ctx, f.UUID)
	} else {
		if f.ClientName == "" || f.ServiceName == "" {
			return model.NoToken(), precondition(op, "client_name and service_name are required without uuid")
		}
		a, err = d.authz.FindOne(ctx, tripleFields(f.ClientName, f.ServiceName, f.UserID))
	}
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return model.NoToken(), nil
	case err != nil:
		return model.NoToken(), d.fail(op, err)
	}
	if !matches(*a, f) {
		return model.NoToken(), nil
	}
	return model.OneToken(*a), nil
}

// GetMany looks every UUID of f.UUIDs up concurrently. Missing UUIDs are dropped
// and the survivors keep the input order.
func (d *Datastore) GetMany(ctx context.Context, f model.AuthzFilter) (model.TokenResult, error) {
	const op = "get oauth tokens"
	defer d.observe(op)()

	found := make([]*model.Authorization, len(f.UUIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.fanout)
	for i, id := range f.UUIDs {
		g.Go(func() error {
			a, err := d.authz.GetByUUID(gctx, id)
			if errors.Is(err, errs.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			found[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return model.NoToken(), d.fail(op, err)
	}

	out := make([]model.Authorization, 0, len(found))
	for _, a := range found {
		if a != nil && matches(*a, f) {
			out = append(out, *a)
		}
	}
	return model.ManyTokens(out), nil
}

// SetOAuthToken creates the authorization for the triple or refreshes the token
// and secret of the existing one. Only non-empty credentials that differ from
// the stored ones are written.
func (d *Datastore) SetOAuthToken(ctx context.Context, args model.SetTokenArgs) (model.SetTokenResult, error) {
	const op = "set oauth token"
	defer d.observe(op)()

	if args.ClientName == "" || args.ServiceName == "" || args.UserID == "" {
		return model.SetTokenResult{}, precondition(op, "client_name, service_name and user_id are required")
	}
	triple := tripleFields(args.ClientName, args.ServiceName, args.UserID)

	existing, err := d.authz.FindOne(ctx, triple)
	if errors.Is(err, errs.ErrNotFound) {
		created, cerr := d.createAuthz(ctx, args)
		if cerr == nil {
			d.log.Info("authorization created",
				zap.String("uuid", created.UUID),
				zap.String("service", created.ServiceName))
			return model.SetTokenResult{Authorization: *created, Created: true}, nil
		}
		if !errors.Is(cerr, errs.ErrAlreadyExists) {
			return model.SetTokenResult{}, d.fail(op, cerr)
		}
		// a concurrent writer won the insert
		existing, err = d.authz.FindOne(ctx, triple)
	}
	if err != nil {
		return model.SetTokenResult{}, d.fail(op, err)
	}

	var upd model.CredentialUpdate
	if args.Token != "" && args.Token != existing.Token {
		upd.Token = &args.Token
	}
	if args.Secret != "" && args.Secret != existing.Secret {
		upd.Secret = &args.Secret
	}
	if upd.Empty() {
		return model.SetTokenResult{Authorization: *existing}, nil
	}
	if err := d.authz.UpdateCredentials(ctx, existing.UUID, upd); err != nil {
		return model.SetTokenResult{}, d.fail(op, err)
	}
	if upd.Token != nil {
		existing.Token = *upd.Token
	}
	if upd.Secret != nil {
		existing.Secret = *upd.Secret
	}
	return model.SetTokenResult{Authorization: *existing}, nil
}

func (d *Datastore) createAuthz(ctx context.Context, args model.SetTokenArgs) (*model.Authorization, error) {
	id, err := d.newUUID()
	if err != nil {
		return nil, err
	}
	createdOn := d.now().Unix()
	return d.authz.Create(ctx, &model.Authorization{
		UUID:         id,
		ClientName:   args.ClientName,
		ServiceName:  args.ServiceName,
		UserID:       args.UserID,
		Token:        args.Token,
		RefreshToken: args.RefreshToken,
		Secret:       args.Secret,
		RedirectURI:  args.RedirectURI,
		ExpiredOn:    args.ExpiredOn,
		CreatedOn:    &createdOn,
	})
}

// ExpireOAuthToken stamps the expiry timestamp on an authorization.
func (d *Datastore) ExpireOAuthToken(ctx context.Context, uuid string, ts int64) error {
	const op = "expire oauth token"
	defer d.observe(op)()

	if uuid == "" {
		return precondition(op, "uuid is required")
	}
	err := d.authz.Expire(ctx, uuid, ts)
	if errors.Is(err, errs.ErrNotFound) {
		return precondition(op, "authorization %s does not exist", uuid)
	}
	if err != nil {
		return d.fail(op, err)
	}
	d.log.Info("authorization expired", zap.String("uuid", uuid), zap.Int64("ts", ts))
	return nil
}

// DeleteOAuthToken removes authorizations by UUID or by the full triple.
// Dependent rows go with them.
func (d *Datastore) DeleteOAuthToken(ctx context.Context, f model.AuthzFilter) (bool, error) {
	const op = "delete oauth token"
	defer d.observe(op)()

	var where query.Fields
	switch {
	case f.UUID != "":
		where = query.Fields{{Column: "uuid", Value: f.UUID}}
	case f.ClientName != "" && f.ServiceName != "" && f.UserID != "":
		where = tripleFields(f.ClientName, f.ServiceName, f.UserID)
	default:
		return false, precondition(op, "uuid or client_name, service_name and user_id are required")
	}
	if err := d.authz.Delete(ctx, where); err != nil {
		return false, d.fail(op, err)
	}
	return true, nil
}

// StoreInflightAuthz saves request-token state of an OAuth v1 handshake.
func (d *Datastore) StoreInflightAuthz(ctx context.Context, in model.InflightAuthorization) error {
	const op = "store inflight authorization"
	defer d.observe(op)()

	if in.ServiceName == "" {
		return precondition(op, "service_name is required")
	}
	if err := d.inflight.Store(ctx, in); err != nil {
		return d.fail(op, err)
	}
	return nil
}

// RetrieveInflightAuthz returns the first matching handshake row and consumes
// every row matching the filter. It returns nil when nothing matched.
func (d *Datastore) RetrieveInflightAuthz(ctx context.Context, f model.InflightFilter) (*model.InflightAuthorization, error) {
	const op = "retrieve inflight authorization"
	defer d.observe(op)()

	where := query.Fields{
		{Column: "service_name", Value: f.ServiceName},
		{Column: "request_token", Value: f.RequestToken},
		{Column: "state", Value: f.State},
	}
	in, err := d.inflight.Take(ctx, where)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return nil, nil
	case err != nil:
		return nil, d.fail(op, err)
	}
	return in, nil
}

func tripleFields(client, service, user string) query.Fields {
	return query.Fields{
		{Column: "client_name", Value: client},
		{Column: "service_name", Value: service},
		{Column: "user_id", Value: user},
	}
}

func matches(a model.Authorization, f model.AuthzFilter) bool {
	if f.ClientName != "" && a.ClientName != f.ClientName {
		return false
	}
	if f.ServiceName != "" && a.ServiceName != f.ServiceName {
		return false
	}
	if len(f.ServiceNames) > 0 && !slices.Contains(f.ServiceNames, a.ServiceName) {
		return false
	}
	return true
}
