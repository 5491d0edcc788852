package notify

import (
	"context"
	"time"
)

// Publisher is satisfied by aws.SNSClient.
type Publisher interface {
	PublishJSON(ctx context.Context, topicARN string, payload interface{}, attrs map[string]string) (string, error)
}

type SNSPublisher struct {
	publisher Publisher
	topicARN  string
}

func NewSNSPublisher(publisher Publisher, topicARN string) *SNSPublisher {
	return &SNSPublisher{publisher: publisher, topicARN: topicARN}
}

func (p *SNSPublisher) Name() string { return "sns" }

type statusChanged struct {
	Type          string    `json:"type"`
	ApplicationID string    `json:"applicationId"`
	OwnerID       string    `json:"ownerId"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func (p *SNSPublisher) Send(ctx context.Context, ev Event) error {
	app := ev.Application
	payload := statusChanged{
		Type:          "status_changed",
		ApplicationID: app.ID,
		OwnerID:       app.OwnerID,
		From:          string(ev.PreviousStatus),
		To:            string(app.Status),
		OccurredAt:    ev.OccurredAt,
	}
	_, err := p.publisher.PublishJSON(ctx, p.topicARN, payload, map[string]string{
		"event":  "status_changed",
		"status": string(app.Status),
	})
	return err
}
