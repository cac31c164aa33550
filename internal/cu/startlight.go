package cu

import (
	"sync"
	"time"

	"github.com/banshee-data/slotcar.sim/internal/timeutil"
)

// Default start-light timings, matching a real Control Unit closely enough
// for client development.
const (
	DefaultRedInterval   = 1 * time.Second
	DefaultGreenDuration = 500 * time.Millisecond
)

// StartLights drives the start-light phase of a State through the countdown:
// off, red lights 1..5 counting up, all red, green (race clock reset), race.
// Each run lives on its own goroutine; Stop cancels a run at any step and
// joins it before returning.
type StartLights struct {
	state         *State
	clock         timeutil.Clock
	redInterval   time.Duration
	greenDuration time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewStartLights creates a sequencer for the given state. Non-positive
// durations fall back to the defaults.
func NewStartLights(state *State, clock timeutil.Clock, redInterval, greenDuration time.Duration) *StartLights {
	if redInterval <= 0 {
		redInterval = DefaultRedInterval
	}
	if greenDuration <= 0 {
		greenDuration = DefaultGreenDuration
	}
	return &StartLights{
		state:         state,
		clock:         clock,
		redInterval:   redInterval,
		greenDuration: greenDuration,
	}
}

// Start begins a countdown run. It is a no-op while a run is in progress.
// onRaceStart, if non-nil, is invoked synchronously from the sequencer
// goroutine when the green light comes on.
func (l *StartLights) Start(onRaceStart func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return
	}
	l.running = true
	l.stop = make(chan struct{})
	l.done = make(chan struct{})
	l.state.SetPhase(PhaseOff)
	go l.run(l.stop, l.done, onRaceStart)
}

// Stop cancels the countdown and waits for the sequencer goroutine to exit,
// so callers may mutate shared state immediately after. Safe to call
// repeatedly and from any goroutine; the start-light phase is left wherever
// the countdown was.
func (l *StartLights) Stop() {
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.stop = nil
	l.running = false
	l.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if done != nil {
		<-done
	}
}

// Running reports whether a countdown is in progress.
func (l *StartLights) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *StartLights) run(stop, done chan struct{}, onRaceStart func()) {
	defer close(done)

	// Brief pause at off before the first red light.
	if !l.wait(stop, l.redInterval) {
		return
	}

	for phase := PhaseRed1; phase <= PhaseAllRed; phase++ {
		if stopped(stop) {
			return
		}
		l.state.SetPhase(phase)
		if !l.wait(stop, l.redInterval) {
			return
		}
	}

	if stopped(stop) {
		return
	}

	// Green light: the race clock starts here.
	l.state.SetPhase(PhaseGreen)
	l.state.ResetTimer()
	if onRaceStart != nil {
		onRaceStart()
	}

	if !l.wait(stop, l.greenDuration) {
		return
	}

	if stopped(stop) {
		return
	}
	l.state.SetPhase(PhaseRace)

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

// wait sleeps for d but returns early, reporting false, when the run is
// stopped.
func (l *StartLights) wait(stop chan struct{}, d time.Duration) bool {
	timer := l.clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C():
		return true
	case <-stop:
		return false
	}
}

func stopped(stop chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}
