// Package api is the HTTP client for the OTP backend's send-otp and verify-otp endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chat-login/internal/telemetry"
)

const (
	sendOTPPath   = "/user/send-otp"
	verifyOTPPath = "/user/verify-otp"

	// maxBodyBytes bounds how much of a response body is read.
	maxBodyBytes = 1 << 20
)

var (
	// ErrLoginFailed is returned when send-otp answers with a non-2xx status.
	ErrLoginFailed = errors.New("login failed")
	// ErrVerificationFailed is returned when verify-otp answers with a non-2xx status.
	ErrVerificationFailed = errors.New("verification failed")
)

// StatusError carries the HTTP status of a rejected call. It unwraps to ErrLoginFailed or ErrVerificationFailed.
type StatusError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: %s: %v (status %d)", e.Op, e.Err, e.StatusCode)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Client calls the OTP backend. Each call is a single attempt: no retry, no backoff.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout bounds every call. Zero or negative means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			hc := *c.httpClient
			hc.Timeout = d
			c.httpClient = &hc
		}
	}
}

// WithTracerProvider sets the provider used for call spans. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer("chat-login/api")
		}
	}
}

// NewClient returns a Client for the backend at baseURL (e.g. http://localhost:8081).
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{},
		tracer:     otel.Tracer("chat-login/api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the normalized backend base URL.
func (c *Client) BaseURL() string { return c.baseURL }

type sendOTPRequest struct {
	PhoneNumber string `json:"phoneNumber"`
}

type verifyOTPRequest struct {
	PhoneNumber string `json:"phoneNumber"`
	Code        string `json:"code"`
}

// RequestOTP asks the backend to send a code to phoneNumber (country code + raw digits, unnormalized).
// A non-2xx status yields an error wrapping ErrLoginFailed; a 2xx body is decoded as is.
func (c *Client) RequestOTP(ctx context.Context, phoneNumber string) (*OTPRequestResult, error) {
	ctx, span := c.tracer.Start(ctx, "api.RequestOTP",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("phone", telemetry.MaskPhone(phoneNumber))),
	)
	defer span.End()

	body, err := c.post(ctx, span, "send-otp", sendOTPPath, sendOTPRequest{PhoneNumber: phoneNumber}, ErrLoginFailed)
	if err != nil {
		return nil, err
	}
	var res OTPRequestResult
	if err := json.Unmarshal(body, &res); err != nil {
		err = fmt.Errorf("api: send-otp: decode response: %w", err)
		recordError(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("otp.rate_limited", res.RateLimited()))
	return &res, nil
}

// VerifyOTP submits code for phoneNumber. A non-2xx status yields an error wrapping ErrVerificationFailed.
func (c *Client) VerifyOTP(ctx context.Context, phoneNumber, code string) (*VerifyResult, error) {
	ctx, span := c.tracer.Start(ctx, "api.VerifyOTP",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("phone", telemetry.MaskPhone(phoneNumber))),
	)
	defer span.End()

	body, err := c.post(ctx, span, "verify-otp", verifyOTPPath, verifyOTPRequest{PhoneNumber: phoneNumber, Code: code}, ErrVerificationFailed)
	if err != nil {
		return nil, err
	}
	res := &VerifyResult{Raw: json.RawMessage(body)}
	if err := json.Unmarshal(body, &res.Payload); err != nil {
		// Any valid JSON is accepted; only objects populate Payload.
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			err = fmt.Errorf("api: verify-otp: decode response: %w", err)
			recordError(span, err)
			return nil, err
		}
		res.Payload = nil
	}
	return res, nil
}

// post sends payload as JSON and returns the 2xx body, "{}" when empty.
func (c *Client) post(ctx context.Context, span trace.Span, op, path string, payload any, statusErr error) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("api: %s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		err = fmt.Errorf("api: %s: %w", op, err)
		recordError(span, err)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("api: %s: %w", op, err)
		recordError(span, err)
		return nil, err
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		err := &StatusError{Op: op, StatusCode: resp.StatusCode, Err: statusErr}
		recordError(span, err)
		return nil, err
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		err = fmt.Errorf("api: %s: read response: %w", op, err)
		recordError(span, err)
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		body = []byte("{}")
	}
	return body, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
