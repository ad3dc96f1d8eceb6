// Package event defines the unit exchanged between producers and consumers:
// a JSON envelope with a stable field set that round-trips without loss,
// including fields this library does not know about.
package event

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Wire field names. event_id and timestamp are mandatory.
const (
	fieldID        = "event_id"
	fieldType      = "event_type"
	fieldUserID    = "user_id"
	fieldTimestamp = "timestamp"
	fieldPayload   = "data"
	fieldMetadata  = "metadata"
)

type Metadata struct {
	Source      string `json:"source"`
	Version     string `json:"version"`
	Environment string `json:"environment"`
}

func (m Metadata) isZero() bool {
	return m == Metadata{}
}

// Event is the immutable record published to and consumed from the log.
// Construct with New (or a struct literal for full control), then treat as
// read-only once submitted to a producer.
type Event struct {
	ID        string
	Type      string
	UserID    string
	Timestamp time.Time
	Payload   map[string]any
	Metadata  Metadata

	// extra holds unknown top-level wire fields so that
	// Marshal(Unmarshal(b)) does not lose data produced by newer clients.
	extra map[string]json.RawMessage
}

// New returns an Event with a generated id and the current UTC time.
func New(eventType string) Event {
	return Event{
		ID:        "evt_" + uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// ExtraFields returns a copy of the unknown wire fields carried by this event.
func (e Event) ExtraFields() map[string]json.RawMessage {
	if len(e.extra) == 0 {
		return nil
	}
	out := make(map[string]json.RawMessage, len(e.extra))
	for k, v := range e.extra {
		out[k] = v
	}
	return out
}

// Validate reports whether the event can be submitted to a producer.
func (e Event) Validate() error {
	if e.ID == "" {
		return &ValidationError{Field: fieldID, Reason: "must not be empty"}
	}
	if e.Timestamp.IsZero() {
		return &ValidationError{Field: fieldTimestamp, Reason: "must be set"}
	}
	if e.Payload != nil {
		if _, err := json.Marshal(e.Payload); err != nil {
			return &ValidationError{Field: fieldPayload, Reason: "not serializable: " + err.Error()}
		}
	}
	return nil
}

// Marshal encodes the event into its wire form. Unknown fields captured by a
// previous Unmarshal are re-emitted.
func (e Event) Marshal() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}

	obj := make(map[string]json.RawMessage, 6+len(e.extra))
	for k, v := range e.extra {
		obj[k] = v
	}

	set := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		obj[key] = raw
		return nil
	}

	if err := set(fieldID, e.ID); err != nil {
		return nil, err
	}
	if err := set(fieldTimestamp, e.Timestamp.UTC().Format(time.RFC3339Nano)); err != nil {
		return nil, err
	}
	if e.Type != "" {
		if err := set(fieldType, e.Type); err != nil {
			return nil, err
		}
	}
	if e.UserID != "" {
		if err := set(fieldUserID, e.UserID); err != nil {
			return nil, err
		}
	}
	if e.Payload != nil {
		if err := set(fieldPayload, e.Payload); err != nil {
			return nil, err
		}
	}
	if !e.Metadata.isZero() {
		if err := set(fieldMetadata, e.Metadata); err != nil {
			return nil, err
		}
	}

	return json.Marshal(obj)
}

// Unmarshal decodes an event from its wire form. Malformed bytes yield a
// *FormatError; structurally valid JSON missing mandatory fields yields a
// *ValidationError.
func Unmarshal(data []byte) (Event, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return Event{}, &FormatError{Err: err}
	}

	var e Event

	take := func(key string, v any) error {
		raw, ok := obj[key]
		if !ok {
			return nil
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return &FormatError{Field: key, Err: err}
		}
		delete(obj, key)
		return nil
	}

	if err := take(fieldID, &e.ID); err != nil {
		return Event{}, err
	}
	if err := take(fieldType, &e.Type); err != nil {
		return Event{}, err
	}
	if err := take(fieldUserID, &e.UserID); err != nil {
		return Event{}, err
	}
	if err := take(fieldPayload, &e.Payload); err != nil {
		return Event{}, err
	}
	if err := take(fieldMetadata, &e.Metadata); err != nil {
		return Event{}, err
	}

	if raw, ok := obj[fieldTimestamp]; ok {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Event{}, &FormatError{Field: fieldTimestamp, Err: err}
		}
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return Event{}, &FormatError{Field: fieldTimestamp, Err: err}
		}
		e.Timestamp = ts.UTC()
		delete(obj, fieldTimestamp)
	}

	if len(obj) > 0 {
		e.extra = obj
	}

	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Equal reports semantic equality, ignoring time.Time internals that differ
// between a constructed event and its decoded round trip.
func (e Event) Equal(other Event) bool {
	if e.ID != other.ID || e.Type != other.Type || e.UserID != other.UserID {
		return false
	}
	if !e.Timestamp.Equal(other.Timestamp) {
		return false
	}
	if e.Metadata != other.Metadata {
		return false
	}
	if !payloadEqual(e.Payload, other.Payload) {
		return false
	}
	if len(e.extra) != len(other.extra) {
		return false
	}
	for k, v := range e.extra {
		if !bytes.Equal(v, other.extra[k]) {
			return false
		}
	}
	return true
}

// payloadEqual compares payloads through their JSON encoding so that an
// int written by the caller and the float64 read back compare equal.
func payloadEqual(a, b map[string]any) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	aj, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bj, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return normalizeJSON(aj) == normalizeJSON(bj)
}

func normalizeJSON(b []byte) string {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return string(b)
	}
	out, err := json.Marshal(v)
	if err != nil {
		return string(b)
	}
	return string(out)
}
