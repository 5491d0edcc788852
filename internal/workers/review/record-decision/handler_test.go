// internal/workers/review/record-decision/handler_test.go
package recorddecision

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"applicant-portal/internal/application/gate"
	"applicant-portal/internal/application/service"
	"applicant-portal/internal/application/store"
	"applicant-portal/internal/common/config"
	apperrors "applicant-portal/internal/common/errors"
	"applicant-portal/internal/common/logger"
	"applicant-portal/pkg/catalog"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var decidedAt = time.Date(2026, 10, 5, 9, 30, 0, 0, time.UTC)

type testLogger struct {
	t *testing.T
}

func (tl *testLogger) Debug(msg string, fields map[string]interface{}) {
	tl.t.Logf("DEBUG: %s %v", msg, fields)
}

func (tl *testLogger) Info(msg string, fields map[string]interface{}) {
	tl.t.Logf("INFO: %s %v", msg, fields)
}

func (tl *testLogger) Warn(msg string, fields map[string]interface{}) {
	tl.t.Logf("WARN: %s %v", msg, fields)
}

func (tl *testLogger) Error(msg string, fields map[string]interface{}) {
	tl.t.Logf("ERROR: %s %v", msg, fields)
}

func (tl *testLogger) WithFields(fields map[string]interface{}) logger.Logger {
	return tl
}

func (tl *testLogger) WithError(err error) logger.Logger {
	return tl.WithFields(map[string]interface{}{"error": err})
}

func (tl *testLogger) With(fields map[string]interface{}) logger.Logger {
	return tl
}

func newTestLogger(t *testing.T) logger.Logger {
	return &testLogger{t: t}
}

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := newTestLogger(t)
	st := store.New(db, store.Postgres, log, store.WithClock(func() time.Time { return decidedAt }))
	g, err := gate.New(catalog.Default())
	require.NoError(t, err)

	return NewHandler(&Config{Timeout: 5 * time.Second}, service.New(st, g, log), log), mock
}

func rowWithStatus(status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "owner_id", "fields", "status", "consent_given", "created_at", "updated_at"}).
		AddRow("app-42", "owner-1", []byte(`{"full_name":"Ada"}`), status, true, decidedAt.Add(-time.Hour), decidedAt)
}

var (
	transitionRe = regexp.QuoteMeta("UPDATE applications SET status = $1")
	selectRe     = regexp.QuoteMeta("FROM applications WHERE owner_id = $1")
)

// ==========================
// Core Functionality Tests
// ==========================

func TestHandler_Execute_Accepted(t *testing.T) {
	handler, mock := newTestHandler(t)

	mock.ExpectQuery(transitionRe).
		WithArgs("accepted", decidedAt, "owner-1", "submitted").
		WillReturnRows(rowWithStatus("accepted"))

	output, err := handler.Execute(context.Background(), &Input{OwnerID: "owner-1", Decision: "accepted"})
	require.NoError(t, err)
	assert.Equal(t, "app-42", output.ApplicationID)
	assert.Equal(t, "accepted", output.ApplicationStatus)
	assert.Equal(t, "2026-10-05T09:30:00Z", output.DecidedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandler_Execute_Waitlisted(t *testing.T) {
	handler, mock := newTestHandler(t)

	mock.ExpectQuery(transitionRe).
		WithArgs("waitlisted", decidedAt, "owner-1", "submitted").
		WillReturnRows(rowWithStatus("waitlisted"))

	output, err := handler.Execute(context.Background(), &Input{OwnerID: "owner-1", Decision: "waitlisted"})
	require.NoError(t, err)
	assert.Equal(t, "waitlisted", output.ApplicationStatus)
}

func TestHandler_Execute_ReplayIsIdempotent(t *testing.T) {
	handler, mock := newTestHandler(t)

	mock.ExpectQuery(transitionRe).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(selectRe).WithArgs("owner-1").WillReturnRows(rowWithStatus("accepted"))

	output, err := handler.Execute(context.Background(), &Input{OwnerID: "owner-1", Decision: "accepted"})
	require.NoError(t, err)
	assert.Equal(t, "accepted", output.ApplicationStatus)
}

// ==========================
// Error Handling Tests
// ==========================

func TestHandler_Execute_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input *Input
	}{
		{"missing owner", &Input{Decision: "accepted"}},
		{"unknown decision", &Input{OwnerID: "owner-1", Decision: "confirmed"}},
		{"empty decision", &Input{OwnerID: "owner-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, mock := newTestHandler(t)

			_, err := handler.Execute(context.Background(), tt.input)
			assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput), "got %v", err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestHandler_Execute_NotYetSubmitted(t *testing.T) {
	handler, mock := newTestHandler(t)

	mock.ExpectQuery(transitionRe).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(selectRe).WillReturnRows(rowWithStatus("in_progress"))

	_, err := handler.Execute(context.Background(), &Input{OwnerID: "owner-1", Decision: "accepted"})
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidTransition))

	bpmn := apperrors.ConvertToBPMNError(apperrors.Normalize(err))
	assert.Equal(t, "INVALID_TRANSITION", bpmn.Code)
	assert.Zero(t, bpmn.Retries)
}

func TestHandler_Execute_UnknownApplicant(t *testing.T) {
	handler, mock := newTestHandler(t)

	mock.ExpectQuery(transitionRe).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(selectRe).WillReturnError(sql.ErrNoRows)

	_, err := handler.Execute(context.Background(), &Input{OwnerID: "ghost", Decision: "waitlisted"})
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
	assert.Equal(t, "APPLICATION_NOT_FOUND", apperrors.ConvertToBPMNError(apperrors.Normalize(err)).Code)
}

func TestHandler_Execute_DatabaseError(t *testing.T) {
	handler, mock := newTestHandler(t)

	mock.ExpectQuery(transitionRe).WillReturnError(errors.New("connection reset by peer"))

	_, err := handler.Execute(context.Background(), &Input{OwnerID: "owner-1", Decision: "accepted"})
	require.True(t, apperrors.IsCode(err, apperrors.ErrCodeStorageFailure))

	bpmn := apperrors.ConvertToBPMNError(apperrors.Normalize(err))
	assert.True(t, bpmn.Retryable)
	assert.Equal(t, 3, bpmn.Retries)
}

func TestLoadConfig(t *testing.T) {
	assert.Equal(t, 30*time.Second, LoadConfig(config.WorkerConfig{}).Timeout)
	assert.Equal(t, 2*time.Second, LoadConfig(config.WorkerConfig{Timeout: 2000}).Timeout)
}
