// Package cu simulates the state and behaviour of a slot-car Control Unit:
// the per-controller registers, the start-light countdown, the race clock and
// the lap simulator that feeds timer events to polling clients.
package cu

import (
	"sync"
	"time"

	"github.com/banshee-data/slotcar.sim/internal/timeutil"
)

// Controllers is the number of controller addresses on a Control Unit:
// six drivers, one autonomous car and one pace car.
const Controllers = 8

// Start-light phases as reported in the status poll.
const (
	PhaseOff    = 0 // all lights off, idle or paused
	PhaseRed1   = 1 // red lights counting up
	PhaseAllRed = 6 // all five red lights on
	PhaseGreen  = 7 // green light, race clock starts here
	PhaseRace   = 9 // race in progress, lights off
)

// ModeFuel is the mode bitmask flag enabling fuel consumption.
const ModeFuel = 0x01

// DefaultVersion is the firmware version reported by the emulator.
const DefaultVersion = "5337"

// TimerEvent is one finish-line crossing waiting to be delivered to a poller.
type TimerEvent struct {
	// Address is the controller address, 0-based.
	Address int

	// Timestamp is the race-clock time of the crossing in milliseconds.
	Timestamp uint32

	// Sector is the timing checkpoint; sector 1 is the finish line.
	Sector int
}

// State is the full simulated device state. It is the single resource shared
// between the dispatcher, the start-light sequencer, the race simulator and
// every client session; one coarse mutex covers all fields.
type State struct {
	clock timeutil.Clock

	mu       sync.Mutex
	fuel     [Controllers]int
	speed    [Controllers]int
	brake    [Controllers]int
	position [Controllers]int
	pit      [Controllers]bool

	phase   int
	mode    int
	display int
	paused  bool

	version string

	// The race clock is timerBase plus the wall time elapsed since epoch,
	// truncated to 32 bits. A zero epoch means the clock has not started.
	timerBase uint32
	epoch     time.Time

	// Pending timer events in production order. Unbounded by design: real
	// clients poll continuously, so the queue never grows without a reader.
	events []TimerEvent
}

// NewState creates a device state with the power-on register values of a real
// Control Unit. An empty version falls back to DefaultVersion.
func NewState(version string, clock timeutil.Clock) *State {
	if version == "" {
		version = DefaultVersion
	}
	s := &State{
		clock:   clock,
		display: 8,
		version: version,
	}
	for i := 0; i < Controllers; i++ {
		s.fuel[i] = 15
		s.speed[i] = 8
		s.brake[i] = 8
	}
	return s
}

// Version returns the firmware version string.
func (s *State) Version() string {
	return s.version
}

// Timestamp returns the current race-clock value: a wrapping unsigned 32-bit
// millisecond counter.
func (s *State) Timestamp() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timestampLocked()
}

func (s *State) timestampLocked() uint32 {
	if s.epoch.IsZero() {
		return s.timerBase
	}
	return s.timerBase + uint32(s.clock.Since(s.epoch).Milliseconds())
}

// ResetTimer zeroes the race clock and restarts its epoch at the current
// instant. No other field is touched.
func (s *State) ResetTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timerBase = 0
	s.epoch = s.clock.Now()
}

// SetTimestamp forces the race clock to the given value, counting onward from
// now. Used to exercise wraparound behaviour.
func (s *State) SetTimestamp(v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timerBase = v
	s.epoch = s.clock.Now()
}

// EnqueueTimerEvent appends a timer event to the pending queue.
func (s *State) EnqueueTimerEvent(ev TimerEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// DequeueTimerEvent removes and returns the oldest pending timer event.
// It never blocks; ok is false when the queue is empty.
func (s *State) DequeueTimerEvent() (ev TimerEvent, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return TimerEvent{}, false
	}
	ev = s.events[0]
	s.events = s.events[1:]
	return ev, true
}

// HasTimerEvent reports whether a timer event is waiting to be polled.
func (s *State) HasTimerEvent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events) > 0
}

// Phase returns the current start-light phase.
func (s *State) Phase() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// SetPhase sets the start-light phase.
func (s *State) SetPhase(phase int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
}

// Mode returns the device mode bitmask.
func (s *State) Mode() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode sets the device mode bitmask.
func (s *State) SetMode(mode int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// Paused reports whether the race is paused rather than never started.
func (s *State) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// SetPaused marks the race as paused or not.
func (s *State) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Speed returns the speed register for the given controller.
func (s *State) Speed(addr int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed[addr]
}

// SetSpeed sets the speed register for the given controller.
func (s *State) SetSpeed(addr, v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed[addr] = v
}

// Brake returns the brake register for the given controller.
func (s *State) Brake(addr int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.brake[addr]
}

// SetBrake sets the brake register for the given controller.
func (s *State) SetBrake(addr, v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brake[addr] = v
}

// Fuel returns the fuel register for the given controller.
func (s *State) Fuel(addr int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fuel[addr]
}

// SetFuel sets the fuel register for the given controller.
func (s *State) SetFuel(addr, v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fuel[addr] = v
}

// BurnFuel decrements the fuel register for the given controller, floored at
// zero.
func (s *State) BurnFuel(addr int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fuel[addr] > 0 {
		s.fuel[addr]--
	}
}

// Position returns the position-tower value for the given controller.
func (s *State) Position(addr int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position[addr]
}

// SetPosition sets the position-tower value for the given controller.
func (s *State) SetPosition(addr, v int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position[addr] = v
}

// ClearPositions resets every position-tower slot to unset.
func (s *State) ClearPositions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = [Controllers]int{}
}

// Pit returns the pit-lane flag for the given controller.
func (s *State) Pit(addr int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pit[addr]
}

// SetPit sets the pit-lane flag for the given controller.
func (s *State) SetPit(addr int, in bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pit[addr] = in
}

// Display returns the number of controllers the position tower reports.
func (s *State) Display() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.display
}

// SetDisplay sets the number of controllers the position tower reports.
func (s *State) SetDisplay(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.display = n
}

// Status is a consistent snapshot of the poll-status fields.
type Status struct {
	Fuel    [Controllers]int
	Phase   int
	Mode    int
	PitMask int
	Display int
}

// Snapshot returns the status fields as one consistent read.
func (s *State) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Fuel:    s.fuel,
		Phase:   s.phase,
		Mode:    s.mode,
		Display: s.display,
	}
	for i, in := range s.pit {
		if in {
			st.PitMask |= 1 << i
		}
	}
	return st
}
