package notify

import (
	"context"
	"time"

	"applicant-portal/internal/models"
)

// SubmittedMessage starts the review process for a submitted application.
const SubmittedMessage = "application-submitted"

// MessagePublisher is satisfied by camunda.Client.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, name, correlationKey string, ttl time.Duration, variables interface{}) error
}

type ZeebePublisher struct {
	publisher MessagePublisher
	ttl       time.Duration
}

func NewZeebePublisher(publisher MessagePublisher, ttl time.Duration) *ZeebePublisher {
	return &ZeebePublisher{publisher: publisher, ttl: ttl}
}

func (z *ZeebePublisher) Name() string { return "zeebe" }

func (z *ZeebePublisher) Send(ctx context.Context, ev Event) error {
	app := ev.Application
	if app.Status != models.StatusSubmitted || ev.PreviousStatus == models.StatusSubmitted {
		return skipped("only first submission starts a review")
	}
	return z.publisher.PublishMessage(ctx, SubmittedMessage, app.OwnerID, z.ttl, map[string]interface{}{
		"ownerId":       app.OwnerID,
		"applicationId": app.ID,
		"submittedAt":   app.UpdatedAt.Format(time.RFC3339),
	})
}
