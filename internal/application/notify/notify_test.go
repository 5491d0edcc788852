package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"applicant-portal/internal/common/aws"
	"applicant-portal/internal/common/logger"
	"applicant-portal/internal/common/metrics"
	"applicant-portal/internal/models"
)

type fakeSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{MessageId: awssdk.String("msg-1")}, nil
}

type fakeSNS struct {
	inputs []*sns.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	return &sns.PublishOutput{MessageId: awssdk.String("sns-1")}, nil
}

type publishedMessage struct {
	name, key string
	ttl       time.Duration
	vars      interface{}
}

type fakeZeebe struct {
	messages []publishedMessage
}

func (f *fakeZeebe) PublishMessage(_ context.Context, name, key string, ttl time.Duration, vars interface{}) error {
	f.messages = append(f.messages, publishedMessage{name, key, ttl, vars})
	return nil
}

func submittedApp() *models.Application {
	return &models.Application{
		ID:      "app-1",
		OwnerID: "owner-1",
		Status:  models.StatusSubmitted,
		Fields: models.Fields{
			"full_name": "Ada",
			"email":     "ada@example.com",
		},
		UpdatedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDispatcher_AllChannels(t *testing.T) {
	sesAPI := &fakeSES{}
	snsAPI := &fakeSNS{}
	zb := &fakeZeebe{}

	d := NewDispatcher(logger.NewTestLogger(t), time.Second,
		NewSESMailer(aws.NewSESClientWithAPI(sesAPI), "portal@example.com", "email"),
		NewSNSPublisher(aws.NewSNSClientWithAPI(snsAPI), "arn:aws:sns:us-east-1:123:status"),
		NewZeebePublisher(zb, time.Minute),
	)
	assert.Equal(t, []string{"ses", "sns", "zeebe"}, d.Channels())

	d.Notify(context.Background(), Event{Application: submittedApp(), PreviousStatus: models.StatusInProgress})

	require.Len(t, sesAPI.inputs, 1)
	assert.Equal(t, []string{"ada@example.com"}, sesAPI.inputs[0].Destination.ToAddresses)
	assert.Equal(t, "Application received", *sesAPI.inputs[0].Message.Subject.Data)
	assert.Contains(t, *sesAPI.inputs[0].Message.Body.Text.Data, "Hi Ada")

	require.Len(t, snsAPI.inputs, 1)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(*snsAPI.inputs[0].Message), &payload))
	assert.Equal(t, "status_changed", payload["type"])
	assert.Equal(t, "in_progress", payload["from"])
	assert.Equal(t, "submitted", payload["to"])
	assert.Equal(t, "submitted", *snsAPI.inputs[0].MessageAttributes["status"].StringValue)

	require.Len(t, zb.messages, 1)
	assert.Equal(t, SubmittedMessage, zb.messages[0].name)
	assert.Equal(t, "owner-1", zb.messages[0].key)
	assert.Equal(t, time.Minute, zb.messages[0].ttl)
}

func TestDispatcher_FailureIsSwallowed(t *testing.T) {
	sesAPI := &fakeSES{err: errors.New("throttled")}
	snsAPI := &fakeSNS{}
	before := testutil.ToFloat64(metrics.NotificationsSent.WithLabelValues("ses", "failed"))

	d := NewDispatcher(logger.NewNoOpLogger(), time.Second,
		NewSESMailer(aws.NewSESClientWithAPI(sesAPI), "portal@example.com", "email"),
		NewSNSPublisher(aws.NewSNSClientWithAPI(snsAPI), "arn"),
	)
	d.Notify(context.Background(), Event{Application: submittedApp()})

	assert.Len(t, snsAPI.inputs, 1, "later channels still run")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.NotificationsSent.WithLabelValues("ses", "failed")))
}

func TestSESMailer_SkipsWithoutAddress(t *testing.T) {
	sesAPI := &fakeSES{}
	m := NewSESMailer(aws.NewSESClientWithAPI(sesAPI), "portal@example.com", "email")

	app := submittedApp()
	delete(app.Fields, "email")
	err := m.Send(context.Background(), Event{Application: app})
	assert.Error(t, err)
	assert.Empty(t, sesAPI.inputs)

	app.Fields["email"] = "not-an-address"
	assert.Error(t, m.Send(context.Background(), Event{Application: app}))
	assert.Empty(t, sesAPI.inputs)

	err = m.Send(context.Background(), Event{Application: app, Recipient: "sub@example.com"})
	require.NoError(t, err)
	assert.Equal(t, []string{"sub@example.com"}, sesAPI.inputs[0].Destination.ToAddresses)
}

func TestSESMailer_NoMessageForDraftStatuses(t *testing.T) {
	sesAPI := &fakeSES{}
	m := NewSESMailer(aws.NewSESClientWithAPI(sesAPI), "portal@example.com", "email")

	app := submittedApp()
	app.Status = models.StatusInProgress
	assert.Error(t, m.Send(context.Background(), Event{Application: app}))
	assert.Empty(t, sesAPI.inputs)
}

func TestZeebePublisher_OnlyFirstSubmission(t *testing.T) {
	zb := &fakeZeebe{}
	p := NewZeebePublisher(zb, time.Minute)

	assert.Error(t, p.Send(context.Background(), Event{Application: submittedApp(), PreviousStatus: models.StatusSubmitted}))

	confirmed := submittedApp()
	confirmed.Status = models.StatusConfirmed
	assert.Error(t, p.Send(context.Background(), Event{Application: confirmed, PreviousStatus: models.StatusAccepted}))
	assert.Empty(t, zb.messages)
}

func TestDispatcher_NilSafe(t *testing.T) {
	var d *Dispatcher
	d.Notify(context.Background(), Event{Application: submittedApp()})

	NewDispatcher(logger.NewNoOpLogger(), 0).Notify(context.Background(), Event{})
}
