// Package notify fans status changes out to email, SNS and Zeebe. Delivery
// is best-effort: failures are logged and counted, never returned to the
// applicant.
package notify

import (
	"context"
	"time"

	"applicant-portal/internal/common/errors"
	"applicant-portal/internal/common/logger"
	"applicant-portal/internal/common/metrics"
	"applicant-portal/internal/models"
)

// Event describes one applied status change.
type Event struct {
	Application    *models.Application
	PreviousStatus models.Status
	// Recipient overrides the email read from the application fields.
	Recipient  string
	OccurredAt time.Time
}

// Channel is one delivery target.
type Channel interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Notifier is what the service depends on.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

type Dispatcher struct {
	channels []Channel
	timeout  time.Duration
	logger   logger.Logger
}

func NewDispatcher(log logger.Logger, timeout time.Duration, channels ...Channel) *Dispatcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		channels: channels,
		timeout:  timeout,
		logger:   log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

// Notify delivers ev to every channel in turn.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) {
	if d == nil || ev.Application == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = ev.Application.UpdatedAt
	}

	// the request may already be finishing; delivery gets its own deadline
	base := context.WithoutCancel(ctx)
	for _, ch := range d.channels {
		sendCtx, cancel := context.WithTimeout(base, d.timeout)
		err := ch.Send(sendCtx, ev)
		cancel()

		switch {
		case err == nil:
			metrics.NotificationsSent.WithLabelValues(ch.Name(), "sent").Inc()
		case errors.IsCode(err, errSkipped):
			metrics.NotificationsSent.WithLabelValues(ch.Name(), "skipped").Inc()
		default:
			metrics.NotificationsSent.WithLabelValues(ch.Name(), "failed").Inc()
			stdErr := errors.NewNotificationSendFailedError(ch.Name(), err)
			d.logger.Warn("notification failed", map[string]interface{}{
				"channel": ch.Name(),
				"ownerId": ev.Application.OwnerID,
				"status":  string(ev.Application.Status),
				"error":   stdErr.Details,
			})
		}
	}
}

// Channels reports the configured channel names.
func (d *Dispatcher) Channels() []string {
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name())
	}
	return names
}

const errSkipped errors.ErrorCode = "NOTIFICATION_SKIPPED"

func skipped(reason string) error {
	return &errors.StandardError{Code: errSkipped, Message: reason, Timestamp: time.Now().UTC()}
}
