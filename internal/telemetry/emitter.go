// Package telemetry defines login flow events and the emitters that ship them (OTel logs, Loki).
package telemetry

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Event types emitted by the login flow and the dev OTP backend.
const (
	EventOTPRequested     = "otp_requested"
	EventOTPRateLimited   = "otp_rate_limited"
	EventOTPRequestFailed = "otp_request_failed"
	EventOTPResent        = "otp_resent"
	EventOTPVerified      = "otp_verified"
	EventOTPVerifyFailed  = "otp_verify_failed"
)

// Event is a single login flow occurrence. Phone must already be masked (see MaskPhone).
type Event struct {
	Type      string            `json:"eventType"`
	Source    string            `json:"source,omitempty"`
	Phone     string            `json:"phone,omitempty"`
	Step      string            `json:"step,omitempty"`
	SessionID string            `json:"sessionId,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NewEvent returns an event of the given type stamped with the current UTC time.
func NewEvent(eventType, source string) *Event {
	return &Event{Type: eventType, Source: source, CreatedAt: time.Now().UTC()}
}

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// Multi fans an event out to every emitter. All emitters are called; errors are joined.
type Multi []EventEmitter

// Emit implements EventEmitter.
func (m Multi) Emit(ctx context.Context, event *Event) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MaskPhone keeps a leading "+" and the last four characters, replacing the rest with '*'.
// Values of four characters or fewer are fully masked.
func MaskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}
	prefix := ""
	if strings.HasPrefix(phone, "+") {
		prefix = "+"
		phone = phone[1:]
	}
	if len(phone) <= 4 {
		return prefix + strings.Repeat("*", len(phone))
	}
	return prefix + strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
