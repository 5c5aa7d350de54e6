package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameSplitterSingleMessage(t *testing.T) {
	s := NewFrameSplitter()
	require.NoError(t, s.Feed([]byte("SYNC:HEARTBEAT:ts|100\x04")))

	frame, ok := s.ReceiveOne()
	require.True(t, ok)
	assert.Equal(t, "SYNC:HEARTBEAT:ts|100", string(frame))

	_, ok = s.ReceiveOne()
	assert.False(t, ok)
}

func TestFrameSplitterMultipleConcatenatedMessages(t *testing.T) {
	s := NewFrameSplitter()
	packet := "SYNC:HEARTBEAT:ts|100\x04SYNC:EXECUTE_BUZZ:left_finger|0|right_finger|0|amplitude|50|seq|0|timestamp|200\x04"
	require.NoError(t, s.Feed([]byte(packet)))

	assert.Equal(t, 2, s.Pending())

	f1, ok := s.ReceiveOne()
	require.True(t, ok)
	assert.Equal(t, "SYNC:HEARTBEAT:ts|100", string(f1))

	f2, ok := s.ReceiveOne()
	require.True(t, ok)
	assert.Equal(t, "SYNC:EXECUTE_BUZZ:left_finger|0|right_finger|0|amplitude|50|seq|0|timestamp|200", string(f2))
}

func TestFrameSplitterHandlesSplitAcrossReads(t *testing.T) {
	s := NewFrameSplitter()
	require.NoError(t, s.Feed([]byte("SYNC:HEART")))
	_, ok := s.ReceiveOne()
	assert.False(t, ok, "no complete frame yet")

	require.NoError(t, s.Feed([]byte("BEAT:ts|1\x04")))
	frame, ok := s.ReceiveOne()
	require.True(t, ok)
	assert.Equal(t, "SYNC:HEARTBEAT:ts|1", string(frame))
}

func TestFrameSplitterOverflowResetsAccumulator(t *testing.T) {
	s := NewFrameSplitterWithMaxSize(8)
	err := s.Feed([]byte("SYNC:HEARTBEAT:ts|100\x04"))
	assert.ErrorIs(t, err, ErrFramingOverflow)

	// Accumulator reset; a subsequent well-formed short frame still works.
	require.NoError(t, s.Feed([]byte("a\x04")))
	frame, ok := s.ReceiveOne()
	require.True(t, ok)
	assert.Equal(t, "a", string(frame))
}

func TestNConcatenatedMessagesYieldNFramesInOrder(t *testing.T) {
	s := NewFrameSplitter()
	var packet []byte
	for i := 0; i < 10; i++ {
		packet = append(packet, Encode("HEARTBEAT", []Field{F("ts", i)})...)
	}
	require.NoError(t, s.Feed(packet))
	require.Equal(t, 10, s.Pending())

	for i := 0; i < 10; i++ {
		frame, ok := s.ReceiveOne()
		require.True(t, ok)
		cmd, data, err := Decode(frame)
		require.NoError(t, err)
		assert.Equal(t, "HEARTBEAT", cmd)
		assert.Equal(t, int64(i), data["ts"])
	}
}
