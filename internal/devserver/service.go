// Package devserver is a development stand-in for the OTP backend: it issues codes for phone
// numbers and exchanges a correct code for a signed session token.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"chat-login/internal/devotp"
	"chat-login/internal/otpcode"
	"chat-login/internal/security"
	"chat-login/internal/sms"
	"chat-login/internal/telemetry"
)

// Sentinel errors; the HTTP handler maps them to status codes.
var (
	ErrCodeNotFound    = errors.New("no active code for this phone number")
	ErrInvalidCode     = errors.New("invalid code")
	ErrTooManyAttempts = errors.New("too many attempts")
	ErrDelivery        = errors.New("failed to deliver code")
)

const eventSource = "devserver"

// ServiceConfig tunes code issuance.
type ServiceConfig struct {
	// OTPTTL is how long a code is accepted.
	OTPTTL time.Duration
	// SendCooldown is the minimum time between two codes for one phone number.
	SendCooldown time.Duration
	// MaxAttempts is how many wrong codes discard the current one.
	MaxAttempts int
	// KeepPlainCode stores the plain code for GET /dev/otp.
	KeepPlainCode bool
}

// SendResult is the outcome of SendOTP.
type SendResult struct {
	// WaitSeconds is non-zero when the send was refused because of the cooldown.
	WaitSeconds int
}

// Service issues and verifies one-time codes.
type Service struct {
	store   devotp.Store
	sender  sms.Sender
	hasher  *security.Hasher
	tokens  *security.TokenProvider
	cfg     ServiceConfig
	log     *zap.Logger
	metrics *Metrics
	emitter telemetry.EventEmitter
	now     func() time.Time
}

// NewService returns a Service. metrics and emitter may be nil.
func NewService(store devotp.Store, sender sms.Sender, hasher *security.Hasher, tokens *security.TokenProvider, cfg ServiceConfig, log *zap.Logger, metrics *Metrics, emitter telemetry.EventEmitter) *Service {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = 5 * time.Minute
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:   store,
		sender:  sender,
		hasher:  hasher,
		tokens:  tokens,
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		emitter: emitter,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SendOTP issues a new code for phone unless one was sent less than SendCooldown ago,
// in which case the remaining wait is returned and nothing is sent.
func (s *Service) SendOTP(ctx context.Context, phone string) (SendResult, error) {
	now := s.now()
	rec, err := s.store.Get(ctx, phone)
	switch {
	case err == nil:
		if wait := rec.SentAt.Add(s.cfg.SendCooldown).Sub(now); wait > 0 {
			secs := int(math.Ceil(wait.Seconds()))
			s.metrics.send(ctx, outcomeRateLimited)
			s.emit(ctx, telemetry.EventOTPRateLimited, phone, map[string]string{"waitTime": fmt.Sprint(secs)})
			return SendResult{WaitSeconds: secs}, nil
		}
	case !errors.Is(err, devotp.ErrNotFound):
		return SendResult{}, fmt.Errorf("load code: %w", err)
	}

	code, err := otpcode.Generate()
	if err != nil {
		return SendResult{}, fmt.Errorf("generate code: %w", err)
	}
	hash, err := s.hasher.Hash(code)
	if err != nil {
		return SendResult{}, fmt.Errorf("hash code: %w", err)
	}
	rec = devotp.Record{
		CodeHash:  hash,
		SentAt:    now,
		ExpiresAt: now.Add(s.cfg.OTPTTL),
	}
	if s.cfg.KeepPlainCode {
		rec.PlainCode = code
	}
	ttl := max(s.cfg.OTPTTL, s.cfg.SendCooldown)
	if err := s.store.Put(ctx, phone, rec, ttl); err != nil {
		return SendResult{}, fmt.Errorf("store code: %w", err)
	}

	if err := s.sender.SendOTP(ctx, phone, code); err != nil {
		if delErr := s.store.Delete(ctx, phone); delErr != nil {
			s.log.Warn("discard undelivered code", zap.Error(delErr))
		}
		s.metrics.send(ctx, outcomeFailed)
		s.emit(ctx, telemetry.EventOTPRequestFailed, phone, nil)
		return SendResult{}, fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	s.metrics.send(ctx, outcomeSent)
	s.emit(ctx, telemetry.EventOTPRequested, phone, nil)
	return SendResult{}, nil
}

// VerifyOTP checks code against the active code for phone. A match consumes the code and
// returns a new session. Each mismatch counts as an attempt; reaching MaxAttempts discards the code.
func (s *Service) VerifyOTP(ctx context.Context, phone, code string) (*security.Session, error) {
	rec, err := s.store.Get(ctx, phone)
	if errors.Is(err, devotp.ErrNotFound) {
		s.metrics.verify(ctx, outcomeInvalid)
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load code: %w", err)
	}
	if !s.now().Before(rec.ExpiresAt) {
		s.metrics.verify(ctx, outcomeInvalid)
		return nil, ErrCodeNotFound
	}
	if rec.Attempts >= s.cfg.MaxAttempts {
		return nil, s.exhausted(ctx, phone)
	}

	if !otpcode.Valid(code) || !s.hasher.Matches(rec.CodeHash, code) {
		n, err := s.store.IncrementAttempts(ctx, phone)
		if errors.Is(err, devotp.ErrNotFound) {
			s.metrics.verify(ctx, outcomeInvalid)
			return nil, ErrCodeNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("count attempt: %w", err)
		}
		if n >= s.cfg.MaxAttempts {
			return nil, s.exhausted(ctx, phone)
		}
		s.metrics.verify(ctx, outcomeInvalid)
		s.emit(ctx, telemetry.EventOTPVerifyFailed, phone, map[string]string{"attempts": fmt.Sprint(n)})
		return nil, ErrInvalidCode
	}

	if err := s.store.Delete(ctx, phone); err != nil {
		return nil, fmt.Errorf("consume code: %w", err)
	}
	sess, err := s.tokens.IssueSession(phone)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	s.metrics.verify(ctx, outcomeVerified)
	s.emit(ctx, telemetry.EventOTPVerified, phone, map[string]string{"sessionId": sess.ID})
	return sess, nil
}

func (s *Service) exhausted(ctx context.Context, phone string) error {
	if err := s.store.Delete(ctx, phone); err != nil {
		s.log.Warn("discard exhausted code", zap.Error(err))
	}
	s.metrics.verify(ctx, outcomeExhausted)
	s.emit(ctx, telemetry.EventOTPVerifyFailed, phone, map[string]string{"reason": "attempts_exhausted"})
	return ErrTooManyAttempts
}

// DevOTP returns the plain active code for phone. Only available with KeepPlainCode.
func (s *Service) DevOTP(ctx context.Context, phone string) (string, error) {
	rec, err := s.store.Get(ctx, phone)
	if err != nil {
		return "", err
	}
	if rec.PlainCode == "" || !s.now().Before(rec.ExpiresAt) {
		return "", devotp.ErrNotFound
	}
	return rec.PlainCode, nil
}

// Ping checks the store when it supports it.
func (s *Service) Ping(ctx context.Context) error {
	if p, ok := s.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *Service) emit(ctx context.Context, eventType, phone string, meta map[string]string) {
	if s.emitter == nil {
		return
	}
	ev := telemetry.NewEvent(eventType, eventSource)
	ev.Phone = telemetry.MaskPhone(phone)
	ev.Metadata = meta
	telemetry.EmitAsync(s.emitter, ctx, ev)
}
