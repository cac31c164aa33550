package cu

import (
	"time"

	"github.com/banshee-data/slotcar.sim/internal/cuproto"
	"github.com/banshee-data/slotcar.sim/internal/monitoring"
	"github.com/banshee-data/slotcar.sim/internal/timeutil"
)

// Command identifies one protocol operation, decoded from the first payload
// byte of a frame.
type Command int

const (
	CmdUnknown Command = iota
	CmdPoll
	CmdVersion
	CmdSetWord
	CmdPress
	CmdReset
	CmdIgnore
	CmdFirmwareStart
	CmdFirmwareWrite
)

func commandFor(tag byte) Command {
	switch tag {
	case '?':
		return CmdPoll
	case '0':
		return CmdVersion
	case 'J':
		return CmdSetWord
	case 'T':
		return CmdPress
	case '=':
		return CmdReset
	case ':':
		return CmdIgnore
	case 'G':
		return CmdFirmwareStart
	case 'E':
		return CmdFirmwareWrite
	default:
		return CmdUnknown
	}
}

// Setword register ids carried in the low five bits of the word/address byte.
const (
	wordSpeed    = 0
	wordBrake    = 1
	wordFuel     = 2
	wordPosition = 6
	wordLapHigh  = 17
	wordLapLow   = 18
)

// Position value that clears all eight position-tower slots.
const positionClearAll = 9

// Button ids of the Control Unit front panel.
const (
	ButtonPaceCarEsc = 1
	ButtonStartEnter = 2
)

// Dispatcher interprets decoded command frames against a shared State. Each
// client session owns one dispatcher with its own start-light sequencer, all
// bound to the one shared device state.
type Dispatcher struct {
	state  *State
	lights *StartLights

	// OnRaceStart, if set, is invoked when a countdown started through the
	// start button reaches green.
	OnRaceStart func()
}

// NewDispatcher creates a dispatcher for the shared state with its own
// start-light sequencer using the given timings.
func NewDispatcher(state *State, clock timeutil.Clock, redInterval, greenDuration time.Duration) *Dispatcher {
	return &Dispatcher{
		state:  state,
		lights: NewStartLights(state, clock, redInterval, greenDuration),
	}
}

// Lights returns the dispatcher's start-light sequencer.
func (d *Dispatcher) Lights() *StartLights {
	return d.lights
}

// Close cancels any countdown this dispatcher started.
func (d *Dispatcher) Close() {
	d.lights.Stop()
}

// Dispatch interprets one frame payload (framing markers already stripped)
// and returns the reply payload, or nil when no reply is to be sent. A
// malformed payload never fails the session: the state mutation is skipped
// and the frame is echoed back as a real Control Unit would.
func (d *Dispatcher) Dispatch(payload []byte) []byte {
	if len(payload) == 0 {
		return nil
	}

	switch commandFor(payload[0]) {
	case CmdPoll:
		return d.poll()
	case CmdVersion:
		return d.version()
	case CmdSetWord:
		d.setWord(payload)
		return payload
	case CmdPress:
		d.press(payload)
		return payload
	case CmdReset:
		d.state.ResetTimer()
		return payload
	case CmdIgnore, CmdFirmwareStart, CmdFirmwareWrite:
		// Accepted but inert in the emulator.
		return payload
	default:
		return payload
	}
}

// poll answers the '?' command. Pending timer events take priority over the
// status snapshot: a poller drains the queue before it sees status again.
func (d *Dispatcher) poll() []byte {
	if ev, ok := d.state.DequeueTimerEvent(); ok {
		// Controller addresses are 1-based on the wire.
		reply, err := cuproto.Pack("cYIYC", byte('?'), ev.Address+1, ev.Timestamp, ev.Sector)
		if err != nil {
			monitoring.Logf("failed to encode timer reply: %v", err)
			return nil
		}
		return reply
	}

	st := d.state.Snapshot()
	reply, err := cuproto.Pack("cc8YYYBYC", byte('?'), byte(':'),
		st.Fuel[0], st.Fuel[1], st.Fuel[2], st.Fuel[3],
		st.Fuel[4], st.Fuel[5], st.Fuel[6], st.Fuel[7],
		st.Phase, st.Mode, st.PitMask, st.Display)
	if err != nil {
		monitoring.Logf("failed to encode status reply: %v", err)
		return nil
	}
	return reply
}

func (d *Dispatcher) version() []byte {
	reply, err := cuproto.Pack("c4sC", byte('0'), []byte(d.state.Version()))
	if err != nil {
		monitoring.Logf("failed to encode version reply: %v", err)
		return nil
	}
	return reply
}

// setWord applies a 'J' register write. The word id lives in the low five
// bits of the word/address byte, the controller address in the next three.
func (d *Dispatcher) setWord(payload []byte) {
	values, err := cuproto.Unpack("cBYY", payload[:len(payload)-1])
	if err != nil {
		monitoring.Debugf("ignoring malformed setword frame: %v", err)
		return
	}

	wordAddr := values[1].(int)
	value := values[2].(int)
	word := wordAddr & 0x1f
	addr := (wordAddr >> 5) & 0x07

	switch word {
	case wordSpeed:
		d.state.SetSpeed(addr, value)
	case wordBrake:
		d.state.SetBrake(addr, value)
	case wordFuel:
		d.state.SetFuel(addr, value)
	case wordPosition:
		if value == positionClearAll {
			d.state.ClearPositions()
		} else {
			d.state.SetPosition(addr, value)
		}
	case wordLapHigh, wordLapLow:
		// Lap counter display nibbles; nothing to track in the emulator.
	}
}

// press applies a 'T' front-panel button press.
func (d *Dispatcher) press(payload []byte) {
	values, err := cuproto.Unpack("cY", payload[:len(payload)-1])
	if err != nil {
		monitoring.Debugf("ignoring malformed press frame: %v", err)
		return
	}

	switch values[1].(int) {
	case ButtonStartEnter:
		switch d.state.Phase() {
		case PhaseOff:
			if d.state.Paused() {
				// Resume instantly, no countdown.
				d.state.SetPhase(PhaseRace)
				d.state.SetPaused(false)
			} else {
				d.lights.Start(d.OnRaceStart)
			}
		case PhaseRace:
			d.lights.Stop()
			d.state.SetPhase(PhaseOff)
			d.state.SetPaused(true)
		}
	case ButtonPaceCarEsc:
		if d.lights.Running() {
			d.lights.Stop()
			d.state.SetPhase(PhaseOff)
			d.state.SetPaused(false)
		}
	}
}
