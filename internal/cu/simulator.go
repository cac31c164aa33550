package cu

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/banshee-data/slotcar.sim/internal/timeutil"
)

// Simulator defaults.
const (
	DefaultBaseLapTime = 5.0 // seconds
	DefaultVariation   = 0.5 // fraction of lap time
	DefaultResolution  = 10 * time.Millisecond
)

// SimulatorOptions tunes the race simulator. The zero value selects the
// defaults.
type SimulatorOptions struct {
	// BaseLapTime is the nominal lap time in seconds before the speed factor
	// and random variation are applied.
	BaseLapTime float64

	// Variation is the uniform random lap-time variation as a fraction of the
	// lap time, in [0, 1]. Zero makes laps deterministic.
	Variation float64

	// Resolution is the polling interval of the simulation loop.
	Resolution time.Duration

	// Seed seeds the lap-time random source. Zero seeds from the clock.
	Seed int64
}

func (o SimulatorOptions) normalize(clock timeutil.Clock) SimulatorOptions {
	if o.BaseLapTime <= 0 {
		o.BaseLapTime = DefaultBaseLapTime
	}
	if o.Variation < 0 {
		o.Variation = 0
	}
	if o.Resolution <= 0 {
		o.Resolution = DefaultResolution
	}
	if o.Seed == 0 {
		o.Seed = clock.Now().UnixNano()
	}
	return o
}

// Simulator synthesizes lap-completion timer events for a set of cars based
// on their speed registers. It runs as a single background goroutine polling
// the race clock; Stop halts and joins the loop without touching the
// start-light phase, so a stopped race can later be resumed.
type Simulator struct {
	state *State
	clock timeutil.Clock
	opts  SimulatorOptions

	mu      sync.Mutex
	rnd     *rand.Rand
	running bool
	stop    chan struct{}
	done    chan struct{}
	active  map[int]bool

	// nextLap holds each car's scheduled next crossing in race-clock seconds.
	// Entries survive Stop so a resumed race keeps its in-flight laps.
	nextLap map[int]float64
}

// NewSimulator creates a race simulator bound to the given state.
func NewSimulator(state *State, clock timeutil.Clock, opts SimulatorOptions) *Simulator {
	opts = opts.normalize(clock)
	return &Simulator{
		state:   state,
		clock:   clock,
		opts:    opts,
		rnd:     rand.New(rand.NewSource(opts.Seed)),
		active:  make(map[int]bool),
		nextLap: make(map[int]float64),
	}
}

// Start begins simulating the given cars and sets the start-light phase to
// racing. A nil or empty car list defaults to cars 0 and 1. With resume false
// the race clock is reset and every car gets a fresh schedule; with resume
// true a car keeps its pending schedule unless it has none or it already
// elapsed, in which case it is rescheduled from the current race-clock time.
// Start is a no-op while the loop is already running.
func (s *Simulator) Start(cars []int, resume bool) {
	if len(cars) == 0 {
		cars = []int{0, 1}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	s.active = make(map[int]bool, len(cars))
	for _, car := range cars {
		s.active[car] = true
	}
	s.state.SetPhase(PhaseRace)

	if !resume {
		s.state.ResetTimer()
		for _, car := range cars {
			s.nextLap[car] = s.lapTime(car)
		}
	} else {
		now := float64(s.state.Timestamp()) / 1000.0
		for _, car := range cars {
			if next, ok := s.nextLap[car]; !ok || next < now {
				s.nextLap[car] = now + s.lapTime(car)
			}
		}
	}

	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	ticker := s.clock.NewTicker(s.opts.Resolution)
	go s.run(ticker, s.stop, s.done)
}

// Stop halts the simulation loop and waits for it to exit. The start-light
// phase and all pending timer events are left as they are.
func (s *Simulator) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop = nil
	s.running = false
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if done != nil {
		<-done
	}
}

// Running reports whether the simulation loop is active.
func (s *Simulator) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Simulator) run(ticker timeutil.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			s.tick()
		}
	}
}

// tick emits a timer event for every active car whose scheduled crossing has
// arrived, then schedules its next lap.
func (s *Simulator) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := float64(s.state.Timestamp()) / 1000.0
	for car := range s.active {
		next, ok := s.nextLap[car]
		if !ok || now < next {
			continue
		}
		s.state.EnqueueTimerEvent(TimerEvent{
			Address:   car,
			Timestamp: raceMillis(next),
			Sector:    1,
		})
		s.nextLap[car] = next + s.lapTime(car)

		if s.state.Mode()&ModeFuel != 0 {
			s.state.BurnFuel(car)
		}
	}
}

// raceMillis converts race-clock seconds to the wrapping 32-bit millisecond
// counter the wire protocol carries. The conversion goes through uint64 so a
// crossing scheduled past 2^32 ms wraps like the race clock instead of hitting
// undefined float-to-uint32 behaviour.
func raceMillis(seconds float64) uint32 {
	return uint32(uint64(seconds * 1000))
}

// lapTime computes one lap duration in seconds for the given car. Faster cars
// lap quicker; a car with speed 0 never completes a lap. Callers must hold
// s.mu for the random source.
func (s *Simulator) lapTime(car int) float64 {
	speed := s.state.Speed(car)
	if speed == 0 {
		return math.Inf(1)
	}
	speedFactor := 1.0 - (float64(speed)/15.0)*0.5
	variation := s.rnd.Float64()*2*s.opts.Variation - s.opts.Variation
	return s.opts.BaseLapTime * speedFactor * (1 + variation)
}
