// Package cleantalk is a thin client for the CleanTalk moderation API.
package cleantalk

import (
	"context"
	stderrors "errors"
	"net"
	"strings"
	"time"

	"cleantalk-antispam/internal/common/errors"
	commonhttp "cleantalk-antispam/internal/common/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	serviceName    = "cleantalk"
	defaultTimeout = 10 * time.Second
	userAgent      = "cleantalk-antispam-go"
)

type Option func(*Client)

// WithHTTPClient replaces the transport used for API calls.
func WithHTTPClient(hc *commonhttp.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.http = commonhttp.NewClient(timeout).WithUserAgent(userAgent)
		}
	}
}

// Client talks to one moderation server.
type Client struct {
	serverURL string
	http      *commonhttp.Client
	tracer    trace.Tracer
}

func NewClient(serverURL string, opts ...Option) *Client {
	c := &Client{
		serverURL: strings.TrimRight(serverURL, "/"),
		http:      commonhttp.NewClient(defaultTimeout).WithUserAgent(userAgent),
		tracer:    otel.Tracer("cleantalk-antispam/cleantalk"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ServerURL() string {
	return c.serverURL
}

// IsAllowUser checks a new user registration.
func (c *Client) IsAllowUser(ctx context.Context, req *Request) (*Response, error) {
	return c.call(ctx, MethodCheckNewUser, req)
}

// IsAllowMessage checks a posted message.
func (c *Client) IsAllowMessage(ctx context.Context, req *Request) (*Response, error) {
	return c.call(ctx, MethodCheckMessage, req)
}

func (c *Client) call(ctx context.Context, method string, req *Request) (*Response, error) {
	if req == nil {
		return nil, errors.NewInvalidArgumentError("request is nil")
	}

	ctx, span := c.tracer.Start(ctx, "cleantalk."+method, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("cleantalk.server_url", c.serverURL),
		attribute.String("cleantalk.agent", req.Agent),
	)

	payload := *req
	payload.MethodName = method

	var resp Response
	if err := c.http.PostJSON(ctx, c.serverURL, &payload, &resp); err != nil {
		mapped := mapTransportError(err)
		span.RecordError(mapped)
		span.SetStatus(codes.Error, mapped.Error())
		return nil, mapped
	}

	if resp.Errno != 0 {
		apiErr := errors.NewCleantalkAPIError(resp.Errno, resp.Errstr)
		span.RecordError(apiErr)
		span.SetStatus(codes.Error, resp.Errstr)
		return nil, apiErr
	}

	span.SetAttributes(
		attribute.Int("cleantalk.allow", resp.Allow),
		attribute.Int("cleantalk.inactive", resp.Inactive),
	)
	return &resp, nil
}

func mapTransportError(err error) *errors.StandardError {
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeoutError(serviceName, err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.NewTimeoutError(serviceName, err)
	}
	return errors.NewExternalServiceError(serviceName, err)
}
