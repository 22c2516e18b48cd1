package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chat-login/internal/telemetry"
)

func TestEmitter_Emit(t *testing.T) {
	var got PushRequest
	var gotPath, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotContentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	em := NewEmitter(srv.URL+"/", nil)
	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	event := &telemetry.Event{
		Type:      telemetry.EventOTPRateLimited,
		Source:    "chat login",
		Phone:     "+******0001",
		CreatedAt: createdAt,
	}
	if err := em.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if gotPath != "/loki/api/v1/push" {
		t.Errorf("path = %q, want /loki/api/v1/push", gotPath)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if len(got.Streams) != 1 {
		t.Fatalf("streams = %d, want 1", len(got.Streams))
	}
	s := got.Streams[0]
	if s.Stream["job"] != defaultJob {
		t.Errorf("job = %q, want %q", s.Stream["job"], defaultJob)
	}
	if s.Stream["event_type"] != telemetry.EventOTPRateLimited {
		t.Errorf("event_type = %q", s.Stream["event_type"])
	}
	if s.Stream["source"] != "chat_login" {
		t.Errorf("source = %q, want sanitized %q", s.Stream["source"], "chat_login")
	}
	if len(s.Values) != 1 || s.Values[0][0] != "1767323045000000000" {
		t.Errorf("values = %v", s.Values)
	}
	if !strings.Contains(s.Values[0][1], `"phone":"+******0001"`) {
		t.Errorf("line = %q, want masked phone", s.Values[0][1])
	}
}

func TestEmitter_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	em := NewEmitter(srv.URL, srv.Client())
	if err := em.Emit(context.Background(), telemetry.NewEvent(telemetry.EventOTPRequested, "test")); err == nil {
		t.Fatal("Emit should return error on non-2xx")
	}
}

func TestEmitter_EmptyBaseURL(t *testing.T) {
	em := NewEmitter("", nil)
	if err := em.Emit(context.Background(), telemetry.NewEvent(telemetry.EventOTPRequested, "test")); err == nil {
		t.Fatal("Emit should return error for empty base URL")
	}
}

func TestEmitter_NilEvent(t *testing.T) {
	em := NewEmitter("http://localhost:3100", nil)
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(nil): %v", err)
	}
}
