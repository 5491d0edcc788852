// Package service implements the applicant-facing operations on top of the
// store, the submission gate and the best-effort side channels.
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"applicant-portal/internal/application/gate"
	"applicant-portal/internal/application/lifecycle"
	"applicant-portal/internal/application/notify"
	"applicant-portal/internal/application/store"
	"applicant-portal/internal/common/errors"
	"applicant-portal/internal/common/logger"
	"applicant-portal/internal/common/metrics"
	"applicant-portal/internal/common/observability"
	"applicant-portal/internal/models"
	"applicant-portal/pkg/catalog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	OpGet            = "get_application"
	OpSave           = "save_application"
	OpSubmit         = "submit_application"
	OpConfirm        = "confirm_attendance"
	OpDecline        = "decline_attendance"
	OpRecordDecision = "record_decision"
)

// Repository is the store surface the service needs.
type Repository interface {
	Get(ctx context.Context, owner string) (*models.Application, error)
	GetOrCreate(ctx context.Context, owner string) (*models.Application, error)
	Save(ctx context.Context, owner string, in store.SaveInput) (*models.Application, error)
	ApplyTransition(ctx context.Context, owner string, event lifecycle.Event) (*models.Application, bool, error)
}

// RecordCache is satisfied by cache.Cache; nil disables caching.
type RecordCache interface {
	Get(ctx context.Context, owner string) (*models.Application, bool)
	Put(ctx context.Context, app *models.Application)
	Invalidate(ctx context.Context, owner string)
}

type Service struct {
	repo     Repository
	gate     *gate.Gate
	cache    RecordCache
	notifier notify.Notifier
	obs      *observability.Observability
	logger   logger.Logger
}

type Option func(*Service)

func WithCache(c RecordCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithObservability(o *observability.Observability) Option {
	return func(s *Service) { s.obs = o }
}

func New(repo Repository, g *gate.Gate, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		gate:   g,
		logger: log.WithFields(map[string]interface{}{"component": "service"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the field descriptors the gate enforces.
func (s *Service) Catalog() *catalog.Catalog {
	return s.gate.Catalog()
}

// GetApplication returns the owner's record, creating a not_started one on
// first access.
func (s *Service) GetApplication(ctx context.Context, owner string) (*models.Application, error) {
	return s.run(ctx, OpGet, owner, func(ctx context.Context) (*models.Application, error) {
		if s.cache != nil {
			if app, ok := s.cache.Get(ctx, owner); ok {
				return app, nil
			}
		}
		app, err := s.repo.GetOrCreate(ctx, owner)
		if err != nil {
			return nil, err
		}
		s.refresh(ctx, app)
		return app, nil
	})
}

// SaveApplication merges a partial draft with an in_progress intent.
func (s *Service) SaveApplication(ctx context.Context, owner string, fields models.Fields) (*models.Application, error) {
	return s.run(ctx, OpSave, owner, func(ctx context.Context) (*models.Application, error) {
		normalized, err := normalize(fields)
		if err != nil {
			return nil, err
		}
		return s.write(ctx, owner, store.SaveInput{
			Fields:       normalized,
			ConsentGiven: s.consentFromFields(normalized),
			Intent:       models.StatusInProgress,
		})
	})
}

// SubmitApplication re-runs the gate on the full field set, then writes
// with a submitted intent. A failed gate writes nothing.
func (s *Service) SubmitApplication(ctx context.Context, owner string, fields models.Fields, consentGiven bool) (*models.Application, error) {
	return s.run(ctx, OpSubmit, owner, func(ctx context.Context) (*models.Application, error) {
		normalized, err := normalize(fields)
		if err != nil {
			return nil, err
		}

		result := s.gate.Check(normalized, consentGiven)
		if !result.Valid {
			s.logger.Info("submission refused", map[string]interface{}{
				"ownerId": owner,
				"reason":  result.Reason(),
			})
			return nil, errors.NewValidationFailedError(result.Reason(), result.Details())
		}

		previous := s.currentStatus(ctx, owner)
		consent := true
		app, err := s.write(ctx, owner, store.SaveInput{
			Fields:       normalized,
			ConsentGiven: &consent,
			Intent:       models.StatusSubmitted,
		})
		if err != nil {
			return nil, err
		}

		if app.Status == models.StatusSubmitted && !lifecycle.IsLocked(previous) {
			metrics.StatusTransitions.WithLabelValues(string(previous), string(app.Status)).Inc()
			s.notify(ctx, app, previous)
		}
		return app, nil
	})
}

func (s *Service) ConfirmAttendance(ctx context.Context, owner string) (*models.Application, error) {
	return s.run(ctx, OpConfirm, owner, func(ctx context.Context) (*models.Application, error) {
		return s.transition(ctx, owner, lifecycle.EventConfirmAttendance)
	})
}

func (s *Service) DeclineAttendance(ctx context.Context, owner string) (*models.Application, error) {
	return s.run(ctx, OpDecline, owner, func(ctx context.Context) (*models.Application, error) {
		return s.transition(ctx, owner, lifecycle.EventDeclineAttendance)
	})
}

// RecordDecision applies the reviewing authority's outcome. It is reachable
// only from the review worker, never from the applicant API.
func (s *Service) RecordDecision(ctx context.Context, owner, decision string) (*models.Application, error) {
	return s.run(ctx, OpRecordDecision, owner, func(ctx context.Context) (*models.Application, error) {
		var event lifecycle.Event
		switch models.Status(strings.ToLower(strings.TrimSpace(decision))) {
		case models.StatusAccepted:
			event = lifecycle.EventAccept
		case models.StatusWaitlisted:
			event = lifecycle.EventWaitlist
		default:
			return nil, errors.NewInvalidInputError(fmt.Sprintf("decision must be %q or %q, got %q",
				models.StatusAccepted, models.StatusWaitlisted, decision))
		}
		return s.transition(ctx, owner, event)
	})
}

func (s *Service) transition(ctx context.Context, owner string, event lifecycle.Event) (*models.Application, error) {
	app, applied, err := s.repo.ApplyTransition(ctx, owner, event)
	if err != nil {
		return nil, err
	}
	s.refresh(ctx, app)

	if applied {
		from, _ := lifecycle.Source(event)
		metrics.StatusTransitions.WithLabelValues(string(from), string(app.Status)).Inc()
		s.notify(ctx, app, from)
	}
	return app, nil
}

func (s *Service) write(ctx context.Context, owner string, in store.SaveInput) (*models.Application, error) {
	app, err := s.repo.Save(ctx, owner, in)
	if err != nil {
		return nil, err
	}
	if app.Status != in.Intent {
		metrics.RatchetOverrides.Inc()
		s.logger.Info("status intent overridden by stored status", map[string]interface{}{
			"ownerId": owner,
			"intent":  string(in.Intent),
			"stored":  string(app.Status),
		})
	}
	s.refresh(ctx, app)
	return app, nil
}

// currentStatus reads the status before a submit, for notifications only.
func (s *Service) currentStatus(ctx context.Context, owner string) models.Status {
	app, err := s.repo.Get(ctx, owner)
	if err != nil {
		return models.StatusNotStarted
	}
	return app.Status
}

func (s *Service) consentFromFields(fields models.Fields) *bool {
	v, ok := fields[s.gate.Catalog().ConsentField].(bool)
	if !ok {
		return nil
	}
	return &v
}

func (s *Service) refresh(ctx context.Context, app *models.Application) {
	if s.cache != nil {
		s.cache.Put(ctx, app)
	}
}

func (s *Service) notify(ctx context.Context, app *models.Application, previous models.Status) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, notify.Event{Application: app, PreviousStatus: previous})
}

func normalize(fields models.Fields) (models.Fields, error) {
	normalized, err := models.NormalizeFields(fields)
	if err != nil {
		return nil, errors.NewInvalidInputError(err.Error())
	}
	return normalized, nil
}

// run wraps one boundary operation with the identity check, a span, metrics
// and a log line. Every error leaving it is a *errors.StandardError.
func (s *Service) run(ctx context.Context, op, owner string, fn func(context.Context) (*models.Application, error)) (*models.Application, error) {
	started := time.Now()
	ctx, span := s.obs.StartSpan(ctx, "application."+op, attribute.String("owner.id", owner))
	defer span.End()

	var (
		app *models.Application
		err error
	)
	if strings.TrimSpace(owner) == "" {
		err = errors.NewUnauthenticatedError("owner identity missing")
	} else {
		app, err = fn(ctx)
	}

	outcome := "ok"
	fields := map[string]interface{}{
		"operation":  op,
		"ownerId":    owner,
		"durationMs": time.Since(started).Milliseconds(),
	}
	if err != nil {
		stdErr := errors.Normalize(err)
		err = stdErr
		outcome = string(stdErr.Code)
		fields["errorCode"] = outcome
		span.SetStatus(codes.Error, stdErr.Message)
		if stdErr.Retryable || stdErr.Code == errors.ErrCodeInternal {
			s.logger.Error("operation failed", fields)
		} else {
			s.logger.Warn("operation rejected", fields)
		}
	} else {
		fields["status"] = string(app.Status)
		span.SetAttributes(attribute.String("application.status", string(app.Status)))
		s.logger.Debug("operation completed", fields)
	}

	metrics.ObserveOperation(op, outcome, started)
	s.obs.RecordOperation(ctx, op, outcome, time.Since(started))
	return app, err
}
