package broadcast

import (
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/paywatch/internal/model"
)

// Kind names a notification type. It is the "type" field of the envelope.
type Kind string

const (
	KindState  Kind = "state"
	KindPosted Kind = "posted"
)

// Notification is one push to the subscriber. Exactly one of State and
// Posted is set, matching Kind.
type Notification struct {
	Kind   Kind
	State  *model.StatePayload
	Posted *model.PostedPayload
}

// StateEnvelope is the wire form of a "state" notification.
type StateEnvelope struct {
	Type Kind `json:"type"`
	model.StatePayload
}

// PostedEnvelope is the wire form of a "posted" notification.
type PostedEnvelope struct {
	Type Kind `json:"type"`
	model.PostedPayload
}

// SourceID returns the source the notification is about.
func (n Notification) SourceID() string {
	switch {
	case n.State != nil:
		return n.State.SourceID
	case n.Posted != nil:
		return n.Posted.SourceID
	}
	return ""
}

// Envelope returns the wire form of n.
func (n Notification) Envelope() any {
	switch n.Kind {
	case KindPosted:
		var p model.PostedPayload
		if n.Posted != nil {
			p = *n.Posted
		}
		return PostedEnvelope{Type: KindPosted, PostedPayload: p}
	default:
		var s model.StatePayload
		if n.State != nil {
			s = *n.State
		}
		return StateEnvelope{Type: KindState, StatePayload: s}
	}
}

// MarshalJSON encodes n as its envelope.
func (n Notification) MarshalJSON() ([]byte, error) {
	return json.Marshal(n.Envelope())
}

// Decode parses an envelope produced by MarshalJSON.
func Decode(data []byte) (Notification, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Notification{}, fmt.Errorf("%w: notification: %v", model.ErrMalformed, err)
	}
	switch head.Type {
	case KindState:
		var env StateEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return Notification{}, fmt.Errorf("%w: state notification: %v", model.ErrMalformed, err)
		}
		return Notification{Kind: KindState, State: &env.StatePayload}, nil
	case KindPosted:
		var env PostedEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			return Notification{}, fmt.Errorf("%w: posted notification: %v", model.ErrMalformed, err)
		}
		return Notification{Kind: KindPosted, Posted: &env.PostedPayload}, nil
	default:
		return Notification{}, fmt.Errorf("%w: unknown notification type %q", model.ErrMalformed, head.Type)
	}
}
