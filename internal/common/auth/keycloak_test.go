package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"applicant-portal/internal/common/errors"
)

func newKeycloakServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/realms/hackathon/protocol/openid-connect/userinfo", func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			_ = json.NewEncoder(w).Encode(map[string]string{"sub": "user-123", "email": "ada@example.com"})
		case "Bearer nosub":
			_ = json.NewEncoder(w).Encode(map[string]string{"email": "x@example.com"})
		case "Bearer flaky":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	})
	mux.HandleFunc("/realms/hackathon/protocol/openid-connect/token/introspect", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("client_secret") != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.PostForm.Get("token") == "good" {
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"active": true, "sub": "user-456"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"active": false})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestKeycloakIdentity_UserInfo(t *testing.T) {
	srv := newKeycloakServer(t)
	idp := NewKeycloakIdentity(NewKeycloakClient(srv.URL+"/", "hackathon", "portal", ""))

	id, err := idp.Resolve(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "user-123", id.OwnerID)
	assert.Equal(t, "ada@example.com", id.Email)

	_, err = idp.Resolve(context.Background(), "bad")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthenticated))

	_, err = idp.Resolve(context.Background(), "nosub")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthenticated))

	_, err = idp.Resolve(context.Background(), "  ")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthenticated))

	_, err = idp.Resolve(context.Background(), "flaky")
	stdErr, ok := errors.As(err)
	require.True(t, ok)
	assert.True(t, stdErr.Retryable)
}

func TestKeycloakIdentity_Introspection(t *testing.T) {
	srv := newKeycloakServer(t)
	idp := NewKeycloakIdentity(NewKeycloakClient(srv.URL, "hackathon", "portal", "s3cret"))

	id, err := idp.Resolve(context.Background(), "good")
	require.NoError(t, err)
	assert.Equal(t, "user-456", id.OwnerID)

	_, err = idp.Resolve(context.Background(), "expired")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthenticated))
}

func TestHeaderIdentity(t *testing.T) {
	id, err := HeaderIdentity{}.Resolve(context.Background(), " owner-1 ")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", id.OwnerID)

	_, err = HeaderIdentity{}.Resolve(context.Background(), "")
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthenticated))
}

func TestIdentityContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), &Identity{OwnerID: "o"})
	id, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "o", id.OwnerID)
}
