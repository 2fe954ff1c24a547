package service

import (
	"context"

	"github.com/and161185/socialkeeper/internal/model"
	"github.com/and161185/socialkeeper/internal/query"
	"github.com/and161185/socialkeeper/internal/repository"
)

// CredentialSealer encrypts credential columns of one authorization.
type CredentialSealer interface {
	Seal(uuid, column, plaintext string) (string, error)
	Open(uuid, column, value string) (string, error)
}

// sealedAuthz encrypts token, refresh_token and secret on the way into an
// AuthorizationRepository and decrypts them on the way out.
type sealedAuthz struct {
	repository.AuthorizationRepository
	s CredentialSealer
}

// SealCredentials wraps repo so that credentials are stored encrypted.
func SealCredentials(repo repository.AuthorizationRepository, s CredentialSealer) repository.AuthorizationRepository {
	return sealedAuthz{AuthorizationRepository: repo, s: s}
}

func (r sealedAuthz) open(a *model.Authorization, err error) (*model.Authorization, error) {
	if err != nil {
		return nil, err
	}
	out := *a
	for _, c := range []struct {
		column string
		v      *string
	}{
		{"token", &out.Token},
		{"refresh_token", &out.RefreshToken},
		{"secret", &out.Secret},
	} {
		if *c.v, err = r.s.Open(out.UUID, c.column, *c.v); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

func (r sealedAuthz) FindOne(ctx context.Context, where query.Fields) (*model.Authorization, error) {
	return r.open(r.AuthorizationRepository.FindOne(ctx, where))
}

func (r sealedAuthz) GetByUUID(ctx context.Context, uuid string) (*model.Authorization, error) {
	return r.open(r.AuthorizationRepository.GetByUUID(ctx, uuid))
}

func (r sealedAuthz) Create(ctx context.Context, a *model.Authorization) (*model.Authorization, error) {
	sealed := *a
	var err error
	if sealed.Token, err = r.s.Seal(a.UUID, "token", a.Token); err != nil {
		return nil, err
	}
	if sealed.RefreshToken, err = r.s.Seal(a.UUID, "refresh_token", a.RefreshToken); err != nil {
		return nil, err
	}
	if sealed.Secret, err = r.s.Seal(a.UUID, "secret", a.Secret); err != nil {
		return nil, err
	}
	return r.open(r.AuthorizationRepository.Create(ctx, &sealed))
}

func (r sealedAuthz) UpdateCredentials(ctx context.Context, uuid string, upd model.CredentialUpdate) error {
	var sealed model.CredentialUpdate
	if upd.Token != nil {
		v, err := r.s.Seal(uuid, "token", *upd.Token)
		if err != nil {
			return err
		}
		sealed.Token = &v
	}
	if upd.Secret != nil {
		v, err := r.s.Seal(uuid, "secret", *upd.Secret)
		if err != nil {
			return err
		}
		sealed.Secret = &v
	}
	return r.AuthorizationRepository.UpdateCredentials(ctx, uuid, sealed)
}
