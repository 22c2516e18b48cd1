// Package loki pushes login events to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"chat-login/internal/telemetry"
)

// defaultJob is the job label attached to every stream.
const defaultJob = "chat-login"

// PushRequest is the Loki push API request body (v1).
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is a single stream with labels and log entries.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"` // each entry is [timestamp_ns, log_line]
}

// labelSanitize replaces characters that are invalid in Loki label values.
var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// Emitter is a telemetry.EventEmitter that pushes each event as one JSON log line.
// Labels are job, event_type and source; the masked phone stays in the line to keep label cardinality low.
type Emitter struct {
	baseURL    string
	job        string
	httpClient *http.Client
}

// NewEmitter returns an Emitter for the Loki instance at baseURL (e.g. http://localhost:3100).
// httpClient may be nil to use a client with a 5s timeout.
func NewEmitter(baseURL string, httpClient *http.Client) *Emitter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Emitter{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		job:        defaultJob,
		httpClient: httpClient,
	}
}

// Emit implements telemetry.EventEmitter.
func (e *Emitter) Emit(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return nil
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("loki: marshal event: %w", err)
	}
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	labels := map[string]string{
		"event_type": event.Type,
		"source":     event.Source,
	}
	return e.Push(ctx, ts, string(line), labels)
}

// Push sends a single log line to Loki. Empty or fully invalid label values are dropped.
// Returns an error if the HTTP request fails or Loki returns non-2xx.
func (e *Emitter) Push(ctx context.Context, timestamp time.Time, line string, labels map[string]string) error {
	if e.baseURL == "" {
		return fmt.Errorf("loki: base URL is empty")
	}
	streamLabels := make(map[string]string, len(labels)+1)
	streamLabels["job"] = e.job
	for k, v := range labels {
		sanitized := labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_")
		if sanitized != "" {
			streamLabels[k] = sanitized
		}
	}
	body := PushRequest{
		Streams: []Stream{{
			Stream: streamLabels,
			Values: [][]string{{strconv.FormatInt(timestamp.UnixNano(), 10), line}},
		}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/loki/api/v1/push", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("loki: push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}
