package cu

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/slotcar.sim/internal/timeutil"
)

func newTestClock() *timeutil.MockClock {
	return timeutil.NewMockClock(time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC))
}

func TestNewStatePowerOnValues(t *testing.T) {
	s := NewState("", newTestClock())

	for i := 0; i < Controllers; i++ {
		assert.Equal(t, 15, s.Fuel(i))
		assert.Equal(t, 8, s.Speed(i))
		assert.Equal(t, 8, s.Brake(i))
		assert.Equal(t, 0, s.Position(i))
		assert.False(t, s.Pit(i))
	}
	assert.Equal(t, PhaseOff, s.Phase())
	assert.Equal(t, 0, s.Mode())
	assert.Equal(t, 8, s.Display())
	assert.Equal(t, DefaultVersion, s.Version())
	assert.False(t, s.Paused())
}

func TestNewStateCustomVersion(t *testing.T) {
	s := NewState("1234", newTestClock())
	assert.Equal(t, "1234", s.Version())
}

func TestTimerEventQueueFIFO(t *testing.T) {
	s := NewState("", newTestClock())

	assert.False(t, s.HasTimerEvent())
	_, ok := s.DequeueTimerEvent()
	assert.False(t, ok)

	s.EnqueueTimerEvent(TimerEvent{Address: 1, Timestamp: 1000, Sector: 1})
	s.EnqueueTimerEvent(TimerEvent{Address: 3, Timestamp: 2000, Sector: 1})
	require.True(t, s.HasTimerEvent())

	ev, ok := s.DequeueTimerEvent()
	require.True(t, ok)
	assert.Equal(t, TimerEvent{Address: 1, Timestamp: 1000, Sector: 1}, ev)

	ev, ok = s.DequeueTimerEvent()
	require.True(t, ok)
	assert.Equal(t, TimerEvent{Address: 3, Timestamp: 2000, Sector: 1}, ev)

	assert.False(t, s.HasTimerEvent())
}

func TestTimestampBeforeClockStart(t *testing.T) {
	clock := newTestClock()
	s := NewState("", clock)

	// The race clock does not run until it is started.
	assert.Equal(t, uint32(0), s.Timestamp())
	clock.Advance(5 * time.Second)
	assert.Equal(t, uint32(0), s.Timestamp())
}

func TestTimestampAdvancesWithClock(t *testing.T) {
	clock := newTestClock()
	s := NewState("", clock)

	s.ResetTimer()
	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, uint32(1500), s.Timestamp())

	s.ResetTimer()
	assert.Equal(t, uint32(0), s.Timestamp())
}

func TestTimestampWrapsAt32Bits(t *testing.T) {
	clock := newTestClock()
	s := NewState("", clock)

	s.SetTimestamp(0xFFFFFF00)
	clock.Advance(1000 * time.Millisecond)

	// 0xFFFFFF00 + 1000 wraps past 2^32 to 744.
	assert.Equal(t, uint32(744), s.Timestamp())

	s.ResetTimer()
	assert.Equal(t, uint32(0), s.Timestamp())
}

func TestBurnFuelFloorsAtZero(t *testing.T) {
	s := NewState("", newTestClock())

	s.SetFuel(2, 1)
	s.BurnFuel(2)
	assert.Equal(t, 0, s.Fuel(2))
	s.BurnFuel(2)
	assert.Equal(t, 0, s.Fuel(2))
}

func TestClearPositions(t *testing.T) {
	s := NewState("", newTestClock())

	for i := 0; i < Controllers; i++ {
		s.SetPosition(i, i+1)
	}
	s.ClearPositions()
	for i := 0; i < Controllers; i++ {
		assert.Equal(t, 0, s.Position(i))
	}
}

func TestSnapshot(t *testing.T) {
	s := NewState("", newTestClock())

	s.SetFuel(0, 3)
	s.SetPhase(PhaseRace)
	s.SetMode(ModeFuel)
	s.SetPit(0, true)
	s.SetPit(7, true)
	s.SetDisplay(6)

	st := s.Snapshot()
	assert.Equal(t, 3, st.Fuel[0])
	assert.Equal(t, 15, st.Fuel[1])
	assert.Equal(t, PhaseRace, st.Phase)
	assert.Equal(t, ModeFuel, st.Mode)
	assert.Equal(t, 0x81, st.PitMask)
	assert.Equal(t, 6, st.Display)
}
