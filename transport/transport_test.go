//go:build unit

package transport_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datateam2/eventstream/transport"
)

func TestEncodeDecodeBatch(t *testing.T) {
	t.Parallel()

	records := [][]byte{
		[]byte(`{"event_id":"evt_1","timestamp":"2025-06-01T12:00:00Z"}`),
		[]byte(`{"event_id":"evt_2","timestamp":"2025-06-01T12:00:01Z"}`),
	}

	batch, err := transport.EncodeBatch(records)
	require.NoError(t, err)
	require.Len(t, batch, transport.EncodedBatchSize([]int{len(records[0]), len(records[1])}))

	got, err := transport.DecodeBatch(batch)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.JSONEq(t, string(records[0]), string(got[0]))
	require.JSONEq(t, string(records[1]), string(got[1]))
}

func TestDecodeBatch_Malformed(t *testing.T) {
	t.Parallel()

	_, err := transport.DecodeBatch([]byte(`{"not": "an array"}`))
	require.Error(t, err)
}

func TestEncodedBatchSize(t *testing.T) {
	t.Parallel()

	require.Equal(t, 2, transport.EncodedBatchSize(nil))
	require.Equal(t, 12, transport.EncodedBatchSize([]int{10}))
	require.Equal(t, 23, transport.EncodedBatchSize([]int{10, 10}))
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	transient := transport.Transient(errors.New("throttled"))
	permanent := transport.Permanent(errors.New("too large"))
	auth := &transport.AuthError{Err: errors.New("bad key")}

	require.True(t, transport.IsTransient(transient))
	require.False(t, transport.IsPermanent(transient))

	require.True(t, transport.IsPermanent(permanent))
	require.False(t, transport.IsTransient(permanent))

	require.True(t, transport.IsPermanent(auth))

	// Unclassified errors are retried; the budget decides when to give up.
	require.True(t, transport.IsTransient(errors.New("mystery")))

	require.False(t, transport.IsTransient(nil))
	require.False(t, transport.IsPermanent(nil))
	require.NoError(t, transport.Transient(nil))
	require.NoError(t, transport.Permanent(nil))
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, transport.Config{
		Mode:             transport.ModeConnectionString,
		ConnectionString: "Endpoint=sb://ns.example.net/;SharedAccessKeyName=send;SharedAccessKey=secret",
	}.Validate())

	require.NoError(t, transport.Config{
		Mode:       transport.ModeIdentity,
		Brokers:    []string{"broker-1:9092"},
		EntityPath: "events",
	}.Validate())

	require.Error(t, transport.Config{Mode: transport.ModeConnectionString}.Validate())
	require.Error(t, transport.Config{Mode: transport.ModeIdentity, EntityPath: "events"}.Validate())
	require.Error(t, transport.Config{Mode: transport.ModeIdentity, Brokers: []string{"b:9092"}}.Validate())
	require.Error(t, transport.Config{Mode: "oauth"}.Validate())
}

func TestParseConnectionString(t *testing.T) {
	t.Parallel()

	cs, err := transport.ParseConnectionString(
		"Endpoint=sb://ns.example.net/;SharedAccessKeyName=send;SharedAccessKey=c2VjcmV0;EntityPath=events",
	)
	require.NoError(t, err)
	require.Equal(t, "sb://ns.example.net/", cs.Endpoint)
	require.Equal(t, "ns.example.net", cs.Host)
	require.Equal(t, "send", cs.KeyName)
	require.Equal(t, "c2VjcmV0", cs.Key)
	require.Equal(t, "events", cs.EntityPath)
}

func TestParseConnectionString_Invalid(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"missing endpoint":    "SharedAccessKeyName=send;SharedAccessKey=secret",
		"missing key":         "Endpoint=sb://ns.example.net/;SharedAccessKeyName=send",
		"missing key name":    "Endpoint=sb://ns.example.net/;SharedAccessKey=secret",
		"malformed segment":   "Endpoint=sb://ns.example.net/;garbage",
		"endpoint has no host": "Endpoint=;SharedAccessKeyName=send;SharedAccessKey=secret",
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := transport.ParseConnectionString(input)
			require.Error(t, err)
		})
	}
}
