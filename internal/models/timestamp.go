package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// Timestamp is a server-assigned instant that may not be known yet.
// A freshly written record carries a pending timestamp until the store
// round-trips the authoritative value.
type Timestamp struct {
	at       time.Time
	resolved bool
}

// PendingTimestamp returns a timestamp whose value the server has not reported yet.
func PendingTimestamp() Timestamp {
	return Timestamp{}
}

// ResolvedAt returns a timestamp resolved to t.
func ResolvedAt(t time.Time) Timestamp {
	return Timestamp{at: t, resolved: true}
}

// IsPending reports whether the timestamp is still awaiting the server value.
func (ts Timestamp) IsPending() bool {
	return !ts.resolved
}

// Time returns the resolved instant and true, or the zero time and false while pending.
func (ts Timestamp) Time() (time.Time, bool) {
	return ts.at, ts.resolved
}

// OrNow returns the resolved instant, or now while pending.
func (ts Timestamp) OrNow(now time.Time) time.Time {
	if ts.resolved {
		return ts.at
	}
	return now
}

// MarshalJSON encodes a pending timestamp as null.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if !ts.resolved {
		return []byte("null"), nil
	}
	return json.Marshal(ts.at)
}

// UnmarshalJSON decodes null as pending.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*ts = PendingTimestamp()
		return nil
	}
	var t time.Time
	if err := json.Unmarshal(data, &t); err != nil {
		return err
	}
	*ts = ResolvedAt(t)
	return nil
}
