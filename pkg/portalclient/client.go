// Package portalclient talks to the applicant portal API. It satisfies the
// draft engine's Backend.
package portalclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"applicant-portal/internal/common/errors"
	commonhttp "applicant-portal/internal/common/http"
	"applicant-portal/internal/models"
	"applicant-portal/pkg/catalog"
)

const apiPrefix = "/api/v1"

type Client struct {
	baseURL string
	http    *commonhttp.Client
}

type Option func(*Client)

// WithHeader adds a header to every request, e.g. the owner header of a
// server running in header auth mode.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.http = c.http.WithHeader(key, value)
	}
}

func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.http = c.http.WithTransport(rt)
	}
}

// New builds a client. An empty token sends no Authorization header.
func New(baseURL, token string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    commonhttp.NewClient(timeout),
	}
	if token != "" {
		c.http = c.http.WithHeader("Authorization", "Bearer "+token)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type saveRequest struct {
	Fields models.Fields `json:"fields"`
}

type submitRequest struct {
	Fields       models.Fields `json:"fields"`
	ConsentGiven bool          `json:"consentGiven"`
}

type errorEnvelope struct {
	Error struct {
		Code      string                 `json:"code"`
		Message   string                 `json:"message"`
		Details   string                 `json:"details"`
		Retryable bool                   `json:"retryable"`
		Metadata  map[string]interface{} `json:"metadata"`
		RequestID string                 `json:"requestId"`
	} `json:"error"`
}

func (c *Client) GetApplication(ctx context.Context) (*models.Application, error) {
	return c.application(ctx, http.MethodGet, "/application", nil)
}

func (c *Client) SaveApplication(ctx context.Context, fields models.Fields) (*models.Application, error) {
	return c.application(ctx, http.MethodPut, "/application", saveRequest{Fields: fields})
}

func (c *Client) SubmitApplication(ctx context.Context, fields models.Fields, consentGiven bool) (*models.Application, error) {
	return c.application(ctx, http.MethodPost, "/application/submit", submitRequest{Fields: fields, ConsentGiven: consentGiven})
}

func (c *Client) ConfirmAttendance(ctx context.Context) (*models.Application, error) {
	return c.application(ctx, http.MethodPost, "/application/confirm", nil)
}

func (c *Client) DeclineAttendance(ctx context.Context) (*models.Application, error) {
	return c.application(ctx, http.MethodPost, "/application/decline", nil)
}

// Catalog fetches the field descriptors the server validates against.
func (c *Client) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	var out catalog.Catalog
	if err := c.call(ctx, http.MethodGet, "/catalog", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) application(ctx context.Context, method, path string, in any) (*models.Application, error) {
	var app models.Application
	if err := c.call(ctx, method, path, in, &app); err != nil {
		return nil, err
	}
	if app.Fields == nil {
		app.Fields = models.Fields{}
	}
	return &app, nil
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	resp, err := c.http.DoJSON(ctx, method, c.baseURL+apiPrefix+path, in)
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return errors.NewTimeoutError("portal", err)
		}
		return errors.NewExternalServiceError("portal", err)
	}
	if !resp.OK() {
		return decodeError(resp)
	}
	if err := resp.Decode(out); err != nil {
		return &errors.StandardError{
			Code:      "DESERIALIZATION_ERROR",
			Message:   "Failed to decode portal response",
			Details:   err.Error(),
			Retryable: false,
			Timestamp: time.Now().UTC(),
		}
	}
	return nil
}

// decodeError turns the API error envelope back into a StandardError. A body
// that is not an envelope falls back to a code derived from the status.
func decodeError(resp *commonhttp.Response) *errors.StandardError {
	var env errorEnvelope
	if err := resp.Decode(&env); err == nil && env.Error.Code != "" {
		stdErr := &errors.StandardError{
			Code:      errors.ErrorCode(env.Error.Code),
			Message:   env.Error.Message,
			Details:   env.Error.Details,
			Retryable: env.Error.Retryable,
			Metadata:  env.Error.Metadata,
			Timestamp: time.Now().UTC(),
		}
		if env.Error.RequestID != "" {
			stdErr.WithMetadata("requestId", env.Error.RequestID)
		}
		return stdErr
	}

	code := errors.ErrCodeInternal
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		code = errors.ErrCodeUnauthenticated
	case http.StatusBadRequest:
		code = errors.ErrCodeInvalidInput
	case http.StatusNotFound:
		code = errors.ErrCodeNotFound
	case http.StatusConflict:
		code = errors.ErrCodeConflict
	}
	return &errors.StandardError{
		Code:      code,
		Message:   fmt.Sprintf("portal returned %d", resp.StatusCode),
		Details:   truncate(string(resp.Body), 256),
		Retryable: resp.StatusCode >= 500,
		Timestamp: time.Now().UTC(),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
