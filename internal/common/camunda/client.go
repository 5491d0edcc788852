// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"applicant-portal/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Client wraps the Zeebe gRPC client used for the review worker and the
// submission message.
type Client struct {
	client zbc.Client
	config *ClientConfig
}

type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	RequestTimeout         time.Duration
	RetryConfig            *RetryConfig
}

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig is used when a ClientConfig carries none.
var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 3,
	BaseDelay:  1 * time.Second,
	MaxDelay:   10 * time.Second,
}

// NewClientWithConfig dials the gateway and verifies it with a topology call.
func NewClientWithConfig(config *ClientConfig) (*Client, error) {
	if config.RetryConfig == nil {
		config.RetryConfig = DefaultRetryConfig
	}

	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         config.GatewayAddress,
		UsePlaintextConnection: config.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectionTimeout)
	defer cancel()

	if _, err := zeebeClient.NewTopologyCommand().Send(ctx); err != nil {
		zeebeClient.Close()
		return nil, fmt.Errorf("failed to connect to Zeebe broker at %s: %w", config.GatewayAddress, err)
	}

	return &Client{
		client: zeebeClient,
		config: config,
	}, nil
}

// GetClient returns the raw Zeebe client for job workers.
func (c *Client) GetClient() zbc.Client {
	return c.client
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.client.Close()
}

type failureKind int

const (
	failureUnknown failureKind = iota
	failureUnreachable
	failureTimeout
	failurePermanent
	failureDenied
)

var failurePhrases = []struct {
	kind    failureKind
	phrases []string
}{
	{failureUnreachable, []string{"connection refused", "connection reset", "unavailable", "unreachable", "broken pipe"}},
	{failureTimeout, []string{"timeout", "deadline exceeded"}},
	{failurePermanent, []string{"not found", "already exists"}},
	{failureDenied, []string{"permission denied", "unauthorized"}},
}

func classify(err error) failureKind {
	msg := strings.ToLower(err.Error())
	for _, group := range failurePhrases {
		for _, phrase := range group.phrases {
			if strings.Contains(msg, phrase) {
				return group.kind
			}
		}
	}
	return failureUnknown
}

// ExecuteWithRetry runs commandFunc with exponential backoff. Only
// unreachable-gateway and timeout failures are retried.
func (c *Client) ExecuteWithRetry(
	ctx context.Context,
	commandFunc func(context.Context) (interface{}, error),
	operationName string,
) (interface{}, error) {
	retry := c.config.RetryConfig
	delay := retry.BaseDelay

	for attempt := 0; ; attempt++ {
		result, err := commandFunc(ctx)
		if err == nil {
			return result, nil
		}

		kind := classify(err)
		transient := kind == failureUnreachable || kind == failureTimeout
		if !transient || attempt == retry.MaxRetries {
			return nil, toStandardError(err, kind, operationName, attempt)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("operation %s cancelled after %d attempts: %w", operationName, attempt+1, ctx.Err())
		}
		if delay *= 2; delay > retry.MaxDelay {
			delay = retry.MaxDelay
		}
	}
}

func toStandardError(err error, kind failureKind, operation string, attempt int) error {
	prefix := fmt.Sprintf("zeebe %s", operation)
	if attempt > 0 {
		prefix += fmt.Sprintf(" (%d retries)", attempt)
	}
	wrapped := fmt.Errorf("%s: %w", prefix, err)

	switch kind {
	case failureTimeout:
		return errors.NewTimeoutError("zeebe", wrapped)
	case failureDenied:
		return errors.NewAuthenticationError(wrapped.Error())
	case failurePermanent:
		stdErr := errors.NewExternalServiceError("zeebe", wrapped)
		stdErr.Retryable = false
		return stdErr
	default:
		return errors.NewExternalServiceError("zeebe", wrapped)
	}
}

// PublishMessage publishes a correlated message, retrying transient
// gateway failures.
func (c *Client) PublishMessage(ctx context.Context, name, correlationKey string, ttl time.Duration, variables interface{}) error {
	_, err := c.ExecuteWithRetry(ctx, func(ctx context.Context) (interface{}, error) {
		cmd, err := c.client.NewPublishMessageCommand().
			MessageName(name).
			CorrelationKey(correlationKey).
			TimeToLive(ttl).
			VariablesFromObject(variables)
		if err != nil {
			return nil, err
		}
		return cmd.Send(ctx)
	}, "publish-message:"+name)
	return err
}

// HealthCheck performs a basic health check against the Zeebe broker.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	_, err := c.client.NewTopologyCommand().Send(ctx)
	if err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}
