package devlog

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() Event {
	return Event{
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		BootRunID: "boot-1",
		Role:      "PRIMARY",
		Direction: DirectionOut,
		Category:  CategorySync,
		Sync: &SyncSampleEvent{
			NetworkLatencyUs: 1200,
			ExecutionTimeUs:  300,
			TotalLatencyUs:   1500,
			Compliant:        true,
		},
	}
}

func TestEncodeDecodeEventRoundTrip(t *testing.T) {
	ev := sampleEvent()
	data, err := EncodeEvent(ev)
	require.NoError(t, err)

	decoded, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.Equal(t, ev.BootRunID, decoded.BootRunID)
	assert.Equal(t, ev.Role, decoded.Role)
	assert.Equal(t, ev.Category, decoded.Category)
	require.NotNil(t, decoded.Sync)
	assert.Equal(t, ev.Sync.TotalLatencyUs, decoded.Sync.TotalLatencyUs)
}

func TestEncoderDecoderStreamMultipleEvents(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	events := []Event{sampleEvent(), sampleEvent()}
	for _, ev := range events {
		require.NoError(t, enc.Encode(ev))
	}

	dec := NewDecoder(&buf)
	for range events {
		var got Event
		require.NoError(t, dec.Decode(&got))
		assert.Equal(t, "boot-1", got.BootRunID)
	}
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	_, err := DecodeEvent([]byte{0xff, 0xff, 0xff})
	assert.Error(t, err)
}
