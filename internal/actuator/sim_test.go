package actuator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimPortActivateDeactivate(t *testing.T) {
	p := NewSimPort(5)
	require.NoError(t, p.Activate(2, 75))

	amp, on := p.IsActive(2)
	assert.True(t, on)
	assert.Equal(t, 75, amp)

	require.NoError(t, p.Deactivate(2))
	_, on = p.IsActive(2)
	assert.False(t, on)
}

func TestSimPortInvalidFinger(t *testing.T) {
	p := NewSimPort(5)
	err := p.Activate(9, 50)
	assert.Error(t, err)
	var invalid *ErrInvalidFinger
	assert.ErrorAs(t, err, &invalid)
}

func TestSimPortEmergencyStopClearsAll(t *testing.T) {
	p := NewSimPort(5)
	require.NoError(t, p.Activate(0, 50))
	require.NoError(t, p.Activate(1, 50))
	assert.Equal(t, 2, p.ActiveCount())

	p.EmergencyStop()
	assert.Equal(t, 0, p.ActiveCount())
}
