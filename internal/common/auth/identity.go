// internal/common/auth/identity.go
package auth

import (
	"context"
	"strings"

	"applicant-portal/internal/common/errors"
)

// Identity is the authenticated caller. OwnerID is the only value the
// application layer trusts.
type Identity struct {
	OwnerID string
	Email   string
}

// IdentityProvider turns a bearer credential into an Identity.
type IdentityProvider interface {
	Resolve(ctx context.Context, credential string) (*Identity, error)
}

// KeycloakIdentity resolves tokens through introspection when a client
// secret is configured, and through userinfo otherwise.
type KeycloakIdentity struct {
	client     *KeycloakClient
	introspect bool
}

func NewKeycloakIdentity(client *KeycloakClient) *KeycloakIdentity {
	return &KeycloakIdentity{client: client, introspect: client.clientSecret != ""}
}

func (k *KeycloakIdentity) Resolve(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.NewUnauthenticatedError("missing bearer token")
	}

	var sub, email string
	if k.introspect {
		info, err := k.client.ValidateToken(ctx, token)
		if err != nil {
			return nil, err
		}
		sub, email = info.Sub, info.Email
	} else {
		info, err := k.client.UserInfo(ctx, token)
		if err != nil {
			return nil, err
		}
		sub, email = info.Sub, info.Email
	}

	if sub == "" {
		return nil, errors.NewUnauthenticatedError("token carries no subject")
	}
	return &Identity{OwnerID: sub, Email: email}, nil
}

// HeaderIdentity accepts the credential itself as the owner id. It exists
// for local development and tests only.
type HeaderIdentity struct{}

func (HeaderIdentity) Resolve(_ context.Context, credential string) (*Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, errors.NewUnauthenticatedError("missing owner header")
	}
	return &Identity{OwnerID: credential}, nil
}

type identityKey struct{}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// FromContext returns the identity set by the auth middleware.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(*Identity)
	return id, ok && id != nil
}
