//go:build unit

package event_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/datateam2/eventstream/event"
)

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	e := event.Event{
		ID:        "evt_1",
		Type:      "purchase",
		UserID:    "user_42",
		Timestamp: time.Date(2025, 6, 1, 12, 30, 0, 123456789, time.UTC),
		Payload: map[string]any{
			"value":      99.95,
			"session_id": "sess_7",
		},
		Metadata: event.Metadata{
			Source:      "checkout-service",
			Version:     "1.2.0",
			Environment: "production",
		},
	}

	data, err := e.Marshal()
	require.NoError(t, err)

	got, err := event.Unmarshal(data)
	require.NoError(t, err)
	require.True(t, e.Equal(got), "expected %+v, got %+v", e, got)
}

func TestRoundTrip_MinimalEvent(t *testing.T) {
	t.Parallel()

	e := event.Event{
		ID:        "evt_min",
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := e.Marshal()
	require.NoError(t, err)

	got, err := event.Unmarshal(data)
	require.NoError(t, err)
	require.True(t, e.Equal(got))
	require.Empty(t, got.Type)
	require.Empty(t, got.UserID)
	require.Nil(t, got.Payload)
}

func TestRoundTrip_UnknownFieldsPreserved(t *testing.T) {
	t.Parallel()

	wire := []byte(`{
		"event_id": "evt_9",
		"event_type": "page_view",
		"timestamp": "2025-06-01T12:30:00Z",
		"trace_id": "abc-123",
		"priority": 7
	}`)

	e, err := event.Unmarshal(wire)
	require.NoError(t, err)

	extra := e.ExtraFields()
	require.Len(t, extra, 2)
	require.JSONEq(t, `"abc-123"`, string(extra["trace_id"]))
	require.JSONEq(t, `7`, string(extra["priority"]))

	out, err := e.Marshal()
	require.NoError(t, err)

	var obj map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &obj))
	require.Contains(t, obj, "trace_id")
	require.Contains(t, obj, "priority")
}

func TestMarshal_WireFieldNames(t *testing.T) {
	t.Parallel()

	e := event.Event{
		ID:        "evt_wire",
		Type:      "user_login",
		UserID:    "user_1",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Payload:   map[string]any{"ip_address": "10.0.0.1"},
		Metadata:  event.Metadata{Source: "auth", Version: "1.0.0", Environment: "staging"},
	}

	data, err := e.Marshal()
	require.NoError(t, err)

	expected := `{
		"event_id": "evt_wire",
		"event_type": "user_login",
		"user_id": "user_1",
		"timestamp": "2025-06-01T12:00:00Z",
		"data": {"ip_address": "10.0.0.1"},
		"metadata": {"source": "auth", "version": "1.0.0", "environment": "staging"}
	}`
	require.JSONEq(t, expected, string(data))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := event.New("user_login")
	require.NoError(t, valid.Validate())

	var verr *event.ValidationError

	noID := valid
	noID.ID = ""
	require.ErrorAs(t, noID.Validate(), &verr)
	require.Equal(t, "event_id", verr.Field)

	noTS := valid
	noTS.Timestamp = time.Time{}
	require.ErrorAs(t, noTS.Validate(), &verr)
	require.Equal(t, "timestamp", verr.Field)

	badPayload := valid
	badPayload.Payload = map[string]any{"ch": make(chan int)}
	require.ErrorAs(t, badPayload.Validate(), &verr)
	require.Equal(t, "data", verr.Field)
}

func TestUnmarshal_Malformed(t *testing.T) {
	t.Parallel()

	var ferr *event.FormatError

	_, err := event.Unmarshal([]byte(`not json`))
	require.ErrorAs(t, err, &ferr)

	_, err = event.Unmarshal([]byte(`{"event_id": "evt_1", "timestamp": "yesterday"}`))
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, "timestamp", ferr.Field)

	_, err = event.Unmarshal([]byte(`{"event_id": 12, "timestamp": "2025-06-01T12:00:00Z"}`))
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, "event_id", ferr.Field)
}

func TestUnmarshal_MissingMandatoryFields(t *testing.T) {
	t.Parallel()

	var verr *event.ValidationError

	_, err := event.Unmarshal([]byte(`{"timestamp": "2025-06-01T12:00:00Z"}`))
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "event_id", verr.Field)

	_, err = event.Unmarshal([]byte(`{"event_id": "evt_1"}`))
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "timestamp", verr.Field)
}

func TestNew_GeneratesUniqueIDs(t *testing.T) {
	t.Parallel()

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		e := event.New("api_call")
		require.NotEmpty(t, e.ID)
		require.False(t, e.Timestamp.IsZero())
		_, dup := seen[e.ID]
		require.False(t, dup, "duplicate id %s", e.ID)
		seen[e.ID] = struct{}{}
	}
}

func TestSample_IsValid(t *testing.T) {
	t.Parallel()

	for i := 0; i < 50; i++ {
		e := event.Sample()
		require.NoError(t, e.Validate())

		data, err := e.Marshal()
		require.NoError(t, err)

		got, err := event.Unmarshal(data)
		require.NoError(t, err)
		require.True(t, e.Equal(got))
	}
}
