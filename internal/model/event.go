package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrAbsent is returned when a serialized event or state is empty or null.
	ErrAbsent = errors.New("absent")
	// ErrMalformed is returned when a serialized event or state cannot be decoded.
	ErrMalformed = errors.New("malformed")
)

// Event is a single activity event (an OS notification on the kiosk) as
// delivered by the platform listener. Events are values: two events with the
// same SourceID and Key are the same logical notification observed at
// different times.
//
// Optional fields are pointers so that "absent" survives a round trip; they
// encode as an explicit JSON null, never omitted.
type Event struct {
	SourceID   string  `json:"sourceId"`
	Key        string  `json:"key"`
	ID         int64   `json:"id"`
	ChannelID  *string `json:"channelId"`
	PostedAtMs int64   `json:"postedAtMs"`
	WhenMs     int64   `json:"whenMs"`
	Category   *string `json:"category"`
	Title      *string `json:"title"`
	Text       *string `json:"text"`
	SubText    *string `json:"subText"`
	BigText    *string `json:"bigText"`
	InfoText   *string `json:"infoText"`
}

// String returns a pointer to s, for populating optional event fields.
func String(s string) *string {
	return &s
}

// Fields returns the canonical field mapping of the event. Absent optional
// fields map to nil so consumers can tell "absent" from "missing key".
func (e Event) Fields() map[string]any {
	return map[string]any{
		"sourceId":   e.SourceID,
		"key":        e.Key,
		"id":         e.ID,
		"channelId":  optional(e.ChannelID),
		"postedAtMs": e.PostedAtMs,
		"whenMs":     e.WhenMs,
		"category":   optional(e.Category),
		"title":      optional(e.Title),
		"text":       optional(e.Text),
		"subText":    optional(e.SubText),
		"bigText":    optional(e.BigText),
		"infoText":   optional(e.InfoText),
	}
}

func optional(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// Value returns the string s points to, or "" when s is nil.
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Equal reports whether two events carry identical field values.
func (e Event) Equal(o Event) bool {
	return e.SourceID == o.SourceID &&
		e.Key == o.Key &&
		e.ID == o.ID &&
		e.PostedAtMs == o.PostedAtMs &&
		e.WhenMs == o.WhenMs &&
		equalOptional(e.ChannelID, o.ChannelID) &&
		equalOptional(e.Category, o.Category) &&
		equalOptional(e.Title, o.Title) &&
		equalOptional(e.Text, o.Text) &&
		equalOptional(e.SubText, o.SubText) &&
		equalOptional(e.BigText, o.BigText) &&
		equalOptional(e.InfoText, o.InfoText)
}

func equalOptional(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// SameNotification reports whether o is the same logical notification as e.
func (e Event) SameNotification(o Event) bool {
	return e.SourceID == o.SourceID && e.Key == o.Key
}

// Validate checks the fields required to ingest an event.
func (e Event) Validate() error {
	var ve ValidationError
	if e.SourceID == "" {
		ve.Add("sourceId", "is required")
	}
	if e.Key == "" {
		ve.Add("key", "is required")
	}
	if e.PostedAtMs < 0 {
		ve.Add("postedAtMs", "must not be negative")
	}
	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ParseEvent decodes a serialized event. An empty or null payload yields
// ErrAbsent; anything that is not a JSON object yields an error wrapping
// ErrMalformed.
func ParseEvent(data []byte) (Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Event{}, ErrAbsent
	}
	var e Event
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return Event{}, fmt.Errorf("%w: event: %v", ErrMalformed, err)
	}
	return e, nil
}

// ParseEvents decodes a serialized list of events. An empty or null payload
// yields an empty, non-nil slice.
func ParseEvents(data []byte) ([]Event, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []Event{}, nil
	}
	var events []Event
	if err := json.Unmarshal(trimmed, &events); err != nil {
		return []Event{}, fmt.Errorf("%w: event list: %v", ErrMalformed, err)
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}
