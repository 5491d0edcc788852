package portalclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"applicant-portal/internal/application/gate"
	"applicant-portal/internal/application/service"
	"applicant-portal/internal/application/store"
	"applicant-portal/internal/common/auth"
	"applicant-portal/internal/common/config"
	"applicant-portal/internal/common/database"
	"applicant-portal/internal/common/errors"
	"applicant-portal/internal/common/logger"
	"applicant-portal/internal/draft"
	"applicant-portal/internal/models"
	"applicant-portal/internal/transport/httpapi"
	"applicant-portal/pkg/catalog"
)

const ownerHeader = "X-Portal-Owner"

var _ draft.Backend = (*Client)(nil)

type portal struct {
	srv  *httptest.Server
	svc  *service.Service
	gate *gate.Gate
}

func newPortal(t *testing.T) *portal {
	t.Helper()
	db, err := database.NewSQLite(config.SQLiteConfig{
		Path:        filepath.Join(t.TempDir(), "portal.db"),
		BusyTimeout: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logger.NewNoOpLogger()
	st := store.New(db, store.SQLite, log)
	require.NoError(t, st.Migrate(context.Background()))
	g, err := gate.New(catalog.Default())
	require.NoError(t, err)
	svc := service.New(st, g, log)

	srv := httptest.NewServer(httpapi.NewRouter(svc, httpapi.Config{
		Identity:         auth.HeaderIdentity{},
		CredentialHeader: ownerHeader,
	}, log))
	t.Cleanup(srv.Close)
	return &portal{srv: srv, svc: svc, gate: g}
}

func (p *portal) client(owner string) *Client {
	if owner == "" {
		return New(p.srv.URL, "", 5*time.Second)
	}
	return New(p.srv.URL, "", 5*time.Second, WithHeader(ownerHeader, owner))
}

func TestClient_DraftEngineEndToEnd(t *testing.T) {
	p := newPortal(t)
	ctx := context.Background()
	e := draft.NewEngine(p.client("owner-1"), p.gate, draft.Options{Logger: logger.NewTestLogger(t)})

	s, err := e.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusNotStarted, s.Status)

	require.NoError(t, e.Edit("full_name", "Ada Lovelace"))
	require.NoError(t, e.Flush(ctx))

	stored, err := p.svc.GetApplication(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)
	assert.Equal(t, "Ada Lovelace", stored.Fields["full_name"])

	for name, value := range map[string]any{
		"cwid":                 "20451234",
		"discord":              "ada#0001",
		"skill_level":          "advanced",
		"hackathon_experience": "1-2",
		"hear_about_us":        "friend",
		"why_attend":           "To build something with friends",
		"project_experience":   "An analytical engine emulator",
		"future_plans":         "Keep building compilers",
		"fun_fact":             "I knit sweaters",
		"self_description":     "technical",
		"agree_to_terms":       true,
	} {
		require.NoError(t, e.Edit(name, value))
	}
	app, err := e.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, app.Status)
	assert.True(t, app.ConsentGiven)
	assert.False(t, e.Snapshot().Dirty)

	_, err = p.svc.RecordDecision(ctx, "owner-1", "accepted")
	require.NoError(t, err)

	app, err = e.Confirm(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, app.Status)

	app, err = e.Confirm(ctx)
	require.NoError(t, err, "repeat confirm is idempotent")
	assert.Equal(t, models.StatusConfirmed, app.Status)
}

func TestClient_DecodesErrorEnvelope(t *testing.T) {
	p := newPortal(t)
	ctx := context.Background()
	c := p.client("owner-2")

	_, err := c.SubmitApplication(ctx, models.Fields{"full_name": "Ada"}, false)
	require.Error(t, err)
	stdErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeValidationFailed, stdErr.Code)
	assert.Contains(t, stdErr.Message, "consent required")
	assert.Equal(t, true, stdErr.Metadata["consentMissing"])
	assert.NotEmpty(t, stdErr.Metadata["requestId"])

	_, err = c.ConfirmAttendance(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrCodeNotFound))

	_, err = p.client("").GetApplication(ctx)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUnauthenticated))
}

func TestClient_Catalog(t *testing.T) {
	p := newPortal(t)

	c, err := p.client("").Catalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, catalog.Default().Names(), c.Names())
	assert.Equal(t, "agree_to_terms", c.ConsentField)
}

func TestClient_SendsBearerToken(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		assert.Equal(t, "/api/v1/application", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"app-1","ownerId":"sub-1","status":"not_started"}`))
	}))
	defer srv.Close()

	app, err := New(srv.URL+"/", "tok-123", time.Second).GetApplication(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", got)
	assert.Equal(t, models.StatusNotStarted, app.Status)
	assert.NotNil(t, app.Fields)
}

func TestClient_NonEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		code      errors.ErrorCode
		retryable bool
	}{
		{"bad gateway", http.StatusBadGateway, errors.ErrCodeInternal, true},
		{"forbidden", http.StatusForbidden, errors.ErrCodeUnauthenticated, false},
		{"conflict", http.StatusConflict, errors.ErrCodeConflict, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream sad", tt.status)
			}))
			defer srv.Close()

			_, err := New(srv.URL, "", time.Second).GetApplication(context.Background())
			stdErr, ok := errors.As(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, stdErr.Code)
			assert.Equal(t, tt.retryable, stdErr.Retryable)
			assert.Contains(t, stdErr.Details, "upstream sad")
		})
	}
}

func TestClient_TransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url, "", time.Second).GetApplication(context.Background())
	stdErr, ok := errors.As(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrorCode("EXTERNAL_SERVICE_ERROR"), stdErr.Code)
	assert.True(t, stdErr.Retryable)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer slow.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = New(slow.URL, "", 5*time.Second).GetApplication(ctx)
	assert.True(t, errors.IsCode(err, "TIMEOUT_ERROR"))
}

func TestClient_BadJSONResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "", time.Second).GetApplication(context.Background())
	assert.True(t, errors.IsCode(err, "DESERIALIZATION_ERROR"))
}
