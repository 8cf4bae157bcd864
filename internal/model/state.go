package model

// DerivedState is the recomputed view of one watched source. It is replaced
// as a whole on every recomputation and never patched in place.
type DerivedState struct {
	SourceID            string  `json:"sourceId"`
	HasActive           bool    `json:"hasActive"`
	LatestEvent         *Event  `json:"latestEvent"`
	LatestMatchingEvent *Event  `json:"latestMatchingEvent"`
	ActiveSnapshot      []Event `json:"activeSnapshot"` // newest first, never nil
	UpdatedAtMs         int64   `json:"updatedAtMs"`
}

// EmptyState returns the zero state for a source: nothing active, no events,
// an empty snapshot and a zero timestamp.
func EmptyState(sourceID string) *DerivedState {
	return &DerivedState{
		SourceID:       sourceID,
		ActiveSnapshot: []Event{},
	}
}

// Normalize fills defaults so callers never see a half-constructed record.
func (s *DerivedState) Normalize() *DerivedState {
	if s.ActiveSnapshot == nil {
		s.ActiveSnapshot = []Event{}
	}
	return s
}

// EqualIgnoringTime reports whether two states are identical apart from
// UpdatedAtMs.
func (s *DerivedState) EqualIgnoringTime(o *DerivedState) bool {
	if s == nil || o == nil {
		return s == nil && o == nil
	}
	if s.SourceID != o.SourceID || s.HasActive != o.HasActive {
		return false
	}
	if !equalEventPtr(s.LatestEvent, o.LatestEvent) || !equalEventPtr(s.LatestMatchingEvent, o.LatestMatchingEvent) {
		return false
	}
	if len(s.ActiveSnapshot) != len(o.ActiveSnapshot) {
		return false
	}
	for i := range s.ActiveSnapshot {
		if !s.ActiveSnapshot[i].Equal(o.ActiveSnapshot[i]) {
			return false
		}
	}
	return true
}

// Equal reports whether two states are identical, including UpdatedAtMs.
func (s *DerivedState) Equal(o *DerivedState) bool {
	if !s.EqualIgnoringTime(o) {
		return false
	}
	return s == nil || s.UpdatedAtMs == o.UpdatedAtMs
}

func equalEventPtr(a, b *Event) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// StatePayload is the body of a "state" notification.
type StatePayload struct {
	SourceID            string `json:"sourceId"`
	HasActive           bool   `json:"hasActive"`
	UpdatedAtMs         int64  `json:"updatedAtMs"`
	LatestEvent         *Event `json:"latestEvent"`
	LatestMatchingEvent *Event `json:"latestMatchingEvent"`
}

// Payload projects the state onto the "state" notification body.
func (s *DerivedState) Payload() StatePayload {
	return StatePayload{
		SourceID:            s.SourceID,
		HasActive:           s.HasActive,
		UpdatedAtMs:         s.UpdatedAtMs,
		LatestEvent:         s.LatestEvent,
		LatestMatchingEvent: s.LatestMatchingEvent,
	}
}

// PostedPayload is the body of a "posted" notification.
type PostedPayload struct {
	SourceID string `json:"sourceId"`
	Event    Event  `json:"event"`
}
