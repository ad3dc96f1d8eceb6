//go:build unit

package eventstream_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datateam2/eventstream"
	"github.com/datateam2/eventstream/checkpoint"
	"github.com/datateam2/eventstream/event"
	"github.com/datateam2/eventstream/transport"
)

func TestKindOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want eventstream.Kind
	}{
		{"nil", nil, eventstream.KindUnknown},
		{"plain", errors.New("boom"), eventstream.KindUnknown},
		{
			"validation",
			&event.ValidationError{Field: "event_id", Reason: "must not be empty"},
			eventstream.KindValidation,
		},
		{
			"format",
			&event.FormatError{Err: errors.New("bad json")},
			eventstream.KindFormat,
		},
		{
			"transient transport",
			transport.Transient(errors.New("throttled")),
			eventstream.KindTransientTransport,
		},
		{
			"permanent transport",
			transport.Permanent(errors.New("too large")),
			eventstream.KindPermanentTransport,
		},
		{
			"auth",
			&transport.AuthError{Err: errors.New("bad key")},
			eventstream.KindPermanentTransport,
		},
		{
			"stale offset",
			fmt.Errorf("commit offset 4: %w", checkpoint.ErrStaleOffset),
			eventstream.KindStaleOffset,
		},
		{
			"fenced",
			fmt.Errorf("commit offset 4: %w", checkpoint.ErrFenced),
			eventstream.KindOwnershipFenced,
		},
		{
			"wrapped validation",
			fmt.Errorf("submit: %w", &event.ValidationError{Field: "timestamp", Reason: "must be set"}),
			eventstream.KindValidation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, eventstream.KindOf(tc.err))
		})
	}
}

func TestKindString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Unknown", eventstream.KindUnknown.String())
	require.Equal(t, "Validation", eventstream.KindValidation.String())
	require.Equal(t, "Format", eventstream.KindFormat.String())
	require.Equal(t, "TransientTransport", eventstream.KindTransientTransport.String())
	require.Equal(t, "PermanentTransport", eventstream.KindPermanentTransport.String())
	require.Equal(t, "StaleOffset", eventstream.KindStaleOffset.String())
	require.Equal(t, "OwnershipFenced", eventstream.KindOwnershipFenced.String())
}
