package devserver

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope of the dev backend metrics.
const MeterName = "chat-login.devserver"

// Metrics counts OTP sends and verifications.
type Metrics struct {
	sends    metric.Int64Counter
	verifies metric.Int64Counter
}

// NewMetrics creates the counters on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	sends, err := meter.Int64Counter("otp.sends",
		metric.WithDescription("OTP send requests by outcome"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	verifies, err := meter.Int64Counter("otp.verifications",
		metric.WithDescription("OTP verification requests by outcome"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	return &Metrics{sends: sends, verifies: verifies}, nil
}

// Outcome labels.
const (
	outcomeSent        = "sent"
	outcomeRateLimited = "rate_limited"
	outcomeFailed      = "failed"
	outcomeVerified    = "verified"
	outcomeInvalid     = "invalid"
	outcomeExhausted   = "exhausted"
)

func (m *Metrics) send(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.sends.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) verify(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.verifies.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
