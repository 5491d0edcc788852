// Package store is the only writer of the applications table. Every
// operation is a single statement, so the owner_id unique key and the
// driver's upsert are the whole concurrency story.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"applicant-portal/internal/application/lifecycle"
	"applicant-portal/internal/common/database"
	"applicant-portal/internal/common/errors"
	"applicant-portal/internal/common/logger"
	"applicant-portal/internal/models"

	"github.com/google/uuid"
)

// SaveInput is one applicant write. Nil field values and a nil ConsentGiven
// leave the stored values untouched.
type SaveInput struct {
	Fields       models.Fields
	ConsentGiven *bool
	Intent       models.Status
}

type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  logger.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*Store)

// WithClock replaces the clock that stamps created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

func New(db *sql.DB, dialect Dialect, log logger.Logger, opts ...Option) *Store {
	s := &Store{
		db:      db,
		dialect: dialect,
		logger:  log.WithFields(map[string]interface{}{"component": "store", "dialect": dialect.Name}),
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate applies the embedded schema. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.Schema); err != nil {
		return errors.NewStorageFailureError("migrate", err)
	}
	s.logger.Info("schema applied", nil)
	return nil
}

// Ping is used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return database.Ping(ctx, s.db)
}

var lockedList = func() string {
	quoted := make([]string, 0, len(lifecycle.LockedStatuses))
	for _, st := range lifecycle.LockedStatuses {
		quoted = append(quoted, "'"+string(st)+"'")
	}
	return strings.Join(quoted, ", ")
}()

func (s *Store) selectQuery() string {
	return s.dialect.Rebind("SELECT " + columns + " FROM applications WHERE owner_id = $1")
}

func (s *Store) insertEmptyQuery() string {
	return s.dialect.Rebind(`INSERT INTO applications (` + columns + `)
VALUES ($1, $2, ` + s.dialect.jsonParam(3) + `, $4, FALSE, $5, $5)
ON CONFLICT (owner_id) DO NOTHING
RETURNING ` + columns)
}

func (s *Store) upsertQuery() string {
	return s.dialect.Rebind(`INSERT INTO applications (` + columns + `)
VALUES ($1, $2, ` + s.dialect.jsonParam(3) + `, $4, COALESCE($5, FALSE), $6, $6)
ON CONFLICT (owner_id) DO UPDATE SET
    fields = CASE WHEN applications.status IN (` + lockedList + `)
        THEN applications.fields ELSE ` + s.dialect.mergeJSON("applications.fields", "excluded.fields") + ` END,
    consent_given = CASE WHEN applications.status IN (` + lockedList + `)
        THEN applications.consent_given ELSE COALESCE($5, applications.consent_given) END,
    status = CASE WHEN applications.status IN (` + lockedList + `)
        THEN applications.status ELSE excluded.status END,
    updated_at = excluded.updated_at
RETURNING ` + columns)
}

func (s *Store) transitionQuery() string {
	return s.dialect.Rebind(`UPDATE applications SET status = $1, updated_at = $2
WHERE owner_id = $3 AND status = $4
RETURNING ` + columns)
}

// Get returns the stored record or NOT_FOUND.
func (s *Store) Get(ctx context.Context, owner string) (*models.Application, error) {
	app, err := scanApplication(s.db.QueryRowContext(ctx, s.selectQuery(), owner))
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NewNotFoundError(fmt.Sprintf("no application for owner %s", owner))
		}
		return nil, s.storageError("get", err)
	}
	return app, nil
}

// GetOrCreate returns the owner's record, inserting a not_started one when
// none exists. A lost insert race falls through to a second read.
func (s *Store) GetOrCreate(ctx context.Context, owner string) (*models.Application, error) {
	app, err := s.Get(ctx, owner)
	if err == nil {
		return app, nil
	}
	if !errors.IsCode(err, errors.ErrCodeNotFound) {
		return nil, err
	}

	now := s.dialect.timeArg(s.now())
	app, err = scanApplication(s.db.QueryRowContext(ctx, s.insertEmptyQuery(),
		s.newID(), owner, "{}", string(models.StatusNotStarted), now))
	switch {
	case err == nil:
		s.logger.Info("application created", map[string]interface{}{"ownerId": owner, "applicationId": app.ID})
		return app, nil
	case stderrors.Is(err, sql.ErrNoRows):
		// another writer inserted first
	default:
		return nil, s.storageError("create", err)
	}

	app, err = s.Get(ctx, owner)
	if errors.IsCode(err, errors.ErrCodeNotFound) {
		return nil, errors.NewConflictError("application row vanished during creation; retry")
	}
	return app, err
}

// Save merges an applicant write into the owner's record in one upsert.
// Once the stored status is locked only updated_at moves.
func (s *Store) Save(ctx context.Context, owner string, in SaveInput) (*models.Application, error) {
	if _, err := lifecycle.ParseIntent(string(in.Intent)); err != nil {
		return nil, errors.NewInvalidTransitionError(err.Error())
	}

	payload, err := json.Marshal(in.Fields.WithoutNulls())
	if err != nil {
		return nil, errors.NewInvalidInputError(fmt.Sprintf("encode fields: %v", err))
	}

	var consent any
	if in.ConsentGiven != nil {
		consent = *in.ConsentGiven
	}

	now := s.dialect.timeArg(s.now())
	app, err := scanApplication(s.db.QueryRowContext(ctx, s.upsertQuery(),
		s.newID(), owner, string(payload), string(in.Intent), consent, now))
	if err != nil {
		return nil, s.storageError("save", err)
	}
	return app, nil
}

// ApplyTransition moves the record along one edge of the state machine.
// Repeating a transition that provably already happened returns the record
// unchanged with applied set to false. A waitlisted record does not prove a
// decline, so decline stays strict; the authority may replay its decision.
func (s *Store) ApplyTransition(ctx context.Context, owner string, event lifecycle.Event) (app *models.Application, applied bool, err error) {
	from, ok := lifecycle.Source(event)
	if !ok {
		return nil, false, errors.NewInvalidTransitionError(fmt.Sprintf("unknown event %q", event))
	}
	to, _ := lifecycle.Target(event)

	app, err = scanApplication(s.db.QueryRowContext(ctx, s.transitionQuery(),
		string(to), s.dialect.timeArg(s.now()), owner, string(from)))
	if err == nil {
		s.logger.Info("status transition applied", map[string]interface{}{
			"ownerId": owner,
			"event":   string(event),
			"from":    string(from),
			"to":      string(to),
		})
		return app, true, nil
	}
	if !stderrors.Is(err, sql.ErrNoRows) {
		return nil, false, s.storageError("transition", err)
	}

	current, err := s.Get(ctx, owner)
	if err != nil {
		return nil, false, err
	}
	if current.Status == to && (lifecycle.SoleEntry(event) || lifecycle.IsAuthorityEvent(event)) {
		return current, false, nil
	}
	return nil, false, errors.NewInvalidTransitionError(
		fmt.Sprintf("%s requires status %s, found %s", event, from, current.Status)).
		WithMetadata("currentStatus", string(current.Status))
}

func (s *Store) storageError(op string, err error) error {
	if database.IsUniqueViolation(err) {
		return errors.NewConflictError(err.Error())
	}
	if stdErr, ok := errors.As(err); ok {
		return stdErr
	}
	s.logger.Error("storage operation failed", map[string]interface{}{"operation": op, "error": err})
	return errors.NewStorageFailureError(op, err)
}
