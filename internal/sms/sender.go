// Package sms delivers one-time codes to phone numbers.
package sms

import (
	"context"

	"go.uber.org/zap"
)

// Sender delivers a one-time code to a phone number.
type Sender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// LogSender writes codes to the log instead of sending an SMS. Development only.
type LogSender struct {
	Logger *zap.Logger
}

// SendOTP implements Sender.
func (s LogSender) SendOTP(_ context.Context, phone, code string) error {
	l := s.Logger
	if l == nil {
		l = zap.L()
	}
	l.Info("dev otp issued", zap.String("phone", phone), zap.String("code", code))
	return nil
}
