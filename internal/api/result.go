package api

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// OTPRequestResult is the decoded send-otp response. The backend owns its shape; only the
// rate-limit pair waitTime/msg is interpreted, and it is not validated.
type OTPRequestResult struct {
	// WaitTime is the raw waitTime value, nil when absent.
	WaitTime json.RawMessage
	// Message is msg when it is a string.
	Message string
	// Payload is the full body when it is a JSON object.
	Payload map[string]any
}

// UnmarshalJSON accepts any JSON value. Non-object bodies carry no rate-limit fields.
func (r *OTPRequestResult) UnmarshalJSON(b []byte) error {
	*r = OTPRequestResult{}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(b, &fields); err != nil {
		// Valid JSON that is not an object (array, string, number) is accepted as is.
		var v any
		if err2 := json.Unmarshal(b, &v); err2 != nil {
			return err2
		}
		return nil
	}
	if fields == nil {
		return nil
	}
	if err := json.Unmarshal(b, &r.Payload); err != nil {
		return err
	}
	if wt, ok := fields["waitTime"]; ok {
		r.WaitTime = wt
	}
	if raw, ok := fields["msg"]; ok {
		var msg string
		if json.Unmarshal(raw, &msg) == nil {
			r.Message = msg
		}
	}
	return nil
}

// RateLimited reports whether waitTime is present and truthy: a non-zero number, a non-empty
// string, true, or any object or array. null, 0, "" and false are not rate limits.
func (r *OTPRequestResult) RateLimited() bool {
	if r == nil {
		return false
	}
	return truthy(r.WaitTime)
}

// WaitSeconds returns waitTime as whole seconds when it is a positive number or numeric string.
func (r *OTPRequestResult) WaitSeconds() (int, bool) {
	if r == nil || len(r.WaitTime) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(r.WaitTime, &f); err != nil {
		var s string
		if json.Unmarshal(r.WaitTime, &s) != nil {
			return 0, false
		}
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, false
		}
	}
	if math.IsNaN(f) || f <= 0 {
		return 0, false
	}
	return int(math.Ceil(f)), true
}

func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

// VerifyResult is the decoded verify-otp response, handed to the navigator untouched.
type VerifyResult struct {
	// Payload is the body when it is a JSON object.
	Payload map[string]any
	// Raw is the body as received ("{}" when empty).
	Raw json.RawMessage
}

// String returns a field of the payload when it is a string, e.g. "token" or "sessionId".
func (r *VerifyResult) String(key string) string {
	if r == nil {
		return ""
	}
	s, _ := r.Payload[key].(string)
	return s
}
