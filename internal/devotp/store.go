// Package devotp stores issued one-time codes per phone number for the dev OTP backend.
package devotp

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when no record exists for a phone number (never sent, consumed or expired).
var ErrNotFound = errors.New("devotp: record not found")

// Record is the state of the last code sent to a phone number.
type Record struct {
	// CodeHash is the bcrypt hash of the code.
	CodeHash string `json:"codeHash"`
	// PlainCode is kept only when dev retrieval (GET /dev/otp) is enabled.
	PlainCode string `json:"plainCode,omitempty"`
	// SentAt is when the code was issued; the send cooldown is measured from it.
	SentAt time.Time `json:"sentAt"`
	// ExpiresAt is when the code stops being accepted.
	ExpiresAt time.Time `json:"expiresAt"`
	// Attempts counts wrong codes submitted so far.
	Attempts int `json:"attempts"`
}

// Store holds one Record per phone number.
type Store interface {
	// Put replaces the record for phone and keeps it for ttl. Attempts are reset.
	Put(ctx context.Context, phone string, rec Record, ttl time.Duration) error
	// Get returns the record for phone or ErrNotFound.
	Get(ctx context.Context, phone string) (Record, error)
	// IncrementAttempts records one wrong code and returns the new count, or ErrNotFound.
	IncrementAttempts(ctx context.Context, phone string) (int, error)
	// Delete removes the record for phone. Missing records are not an error.
	Delete(ctx context.Context, phone string) error
}

type entry struct {
	rec      Record
	deadline time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev OTP store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Put stores rec for phone until ttl elapses.
func (s *MemoryStore) Put(ctx context.Context, phone string, rec Record, ttl time.Duration) error {
	rec.Attempts = 0
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[phone] = entry{rec: rec, deadline: s.nowF().Add(ttl)}
	return nil
}

// Get returns the record for phone if present and not past its ttl.
func (s *MemoryStore) Get(ctx context.Context, phone string) (Record, error) {
	s.mu.RLock()
	e, ok := s.m[phone]
	s.mu.RUnlock()
	if !ok {
		return Record{}, ErrNotFound
	}
	if !e.deadline.After(s.nowF()) {
		s.mu.Lock()
		if cur, ok := s.m[phone]; ok && cur.deadline.Equal(e.deadline) {
			delete(s.m, phone)
		}
		s.mu.Unlock()
		return Record{}, ErrNotFound
	}
	return e.rec, nil
}

// IncrementAttempts bumps the wrong-code counter for phone.
func (s *MemoryStore) IncrementAttempts(ctx context.Context, phone string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[phone]
	if !ok || !e.deadline.After(s.nowF()) {
		delete(s.m, phone)
		return 0, ErrNotFound
	}
	e.rec.Attempts++
	s.m[phone] = e
	return e.rec.Attempts, nil
}

// Delete removes the record for phone.
func (s *MemoryStore) Delete(ctx context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, phone)
	return nil
}
