package sequence

import (
	"time"

	"snapproof/internal/hw/camera"
	"snapproof/internal/logic/frame"
)

// Phase identifies where the two-shot protocol currently stands.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingManualCapture
	PhaseCapturing
	PhaseProcessing
	PhaseAutoSwitching
	PhaseCountdown
	PhaseAwaitingAutoCapture
	PhaseComplete
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingManualCapture:
		return "awaiting_manual_capture"
	case PhaseCapturing:
		return "capturing"
	case PhaseProcessing:
		return "processing"
	case PhaseAutoSwitching:
		return "auto_switching"
	case PhaseCountdown:
		return "countdown"
	case PhaseAwaitingAutoCapture:
		return "awaiting_auto_capture"
	case PhaseComplete:
		return "complete"
	case PhaseCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the protocol accepts further transitions.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseCancelled
}

// State is the authoritative state of the two-shot protocol. It is owned
// exclusively by the Sequencer's event loop; everyone else sees read-only
// snapshots.
type State struct {
	Phase     Phase
	Position  camera.Position  // position the current phase refers to
	Start     camera.Position  // starting position of the protocol
	Flash     camera.FlashMode
	Countdown int              // remaining ticks while Phase == PhaseCountdown
	Armed     bool             // capture device configured and running

	// Cancellation detail. HardwareFailure distinguishes hardware faults
	// (retry affordance) from user-initiated cancellation (none).
	Reason          string
	Err             error
	HardwareFailure bool

	// At most one processed image per position per session.
	Selfie  *frame.Image
	Subject *frame.Image
}

// image returns the stored processed image for pos.
func (s State) image(pos camera.Position) *frame.Image {
	if pos == camera.Selfie {
		return s.Selfie
	}
	return s.Subject
}

func (s *State) setImage(img frame.Image) {
	if img.Position == camera.Selfie {
		s.Selfie = &img
	} else {
		s.Subject = &img
	}
}

// Events consumed by the state machine. All external stimuli (user
// intents, hardware completions, processing completions, timer ticks)
// arrive as events and are serialized by the Sequencer's event loop.
type event interface{ isEvent() }

type startEvent struct{ pos camera.Position }
type triggerEvent struct{}
type cancelEvent struct {
	reason string
	err    error
}
type configuredEvent struct{}
type configureFailedEvent struct{ err error }
type capturedEvent struct {
	raw []byte
	at  time.Time
}
type captureFailedEvent struct{ err error }
type processedEvent struct{ img frame.Image }
type tickEvent struct{}
type retakeEvent struct{}
type flashEvent struct{ mode camera.FlashMode }

func (startEvent) isEvent()           {}
func (triggerEvent) isEvent()         {}
func (cancelEvent) isEvent()          {}
func (configuredEvent) isEvent()      {}
func (configureFailedEvent) isEvent() {}
func (capturedEvent) isEvent()        {}
func (captureFailedEvent) isEvent()   {}
func (processedEvent) isEvent()       {}
func (tickEvent) isEvent()            {}
func (retakeEvent) isEvent()          {}
func (flashEvent) isEvent()           {}

// Commands the machine asks the driver to execute. The machine itself
// never touches hardware, so it is unit-testable without any.
type command interface{ isCommand() }

type configureCmd struct {
	pos   camera.Position
	flash camera.FlashMode
}
type captureCmd struct{ flash camera.FlashMode }
type processCmd struct{ shot frame.Shot }
type scheduleTickCmd struct{}
type autoTriggerCmd struct{}
type teardownCmd struct{}

func (configureCmd) isCommand()    {}
func (captureCmd) isCommand()      {}
func (processCmd) isCommand()      {}
func (scheduleTickCmd) isCommand() {}
func (autoTriggerCmd) isCommand()  {}
func (teardownCmd) isCommand()     {}

// transition is the pure protocol core: given the current state and one
// event, it returns the next state and the commands the driver must run.
// countdownTicks is the number of stabilization ticks after a device
// switch (exposure/focus settling, not a user-facing safety delay).
func transition(s State, ev event, countdownTicks int) (State, []command) {
	// Terminal states accept nothing further.
	if s.Phase.Terminal() {
		if _, ok := ev.(retakeEvent); ok && s.Phase == PhaseComplete {
			return retake(s)
		}
		return s, nil
	}

	switch ev := ev.(type) {
	case cancelEvent:
		s.Phase = PhaseCancelled
		s.Reason = ev.reason
		s.Err = ev.err
		s.HardwareFailure = ev.err != nil
		s.Countdown = 0
		return s, []command{teardownCmd{}}

	case flashEvent:
		s.Flash = ev.mode
		return s, nil

	case startEvent:
		if s.Phase != PhaseIdle {
			return s, nil
		}
		s.Phase = PhaseAwaitingManualCapture
		s.Position = ev.pos
		s.Start = ev.pos
		s.Armed = false
		return s, []command{configureCmd{pos: ev.pos, flash: s.Flash}}

	case triggerEvent:
		// Only the first shot is user-triggered; the auto-trigger after
		// the countdown arrives through the same event.
		if s.Phase != PhaseAwaitingManualCapture && s.Phase != PhaseAwaitingAutoCapture {
			return s, nil
		}
		s.Phase = PhaseCapturing
		return s, []command{captureCmd{flash: s.Flash}}

	case configuredEvent:
		s.Armed = true
		if s.Phase != PhaseAutoSwitching {
			// Initial or retake configuration finished; stay put.
			return s, nil
		}
		s.Phase = PhaseCountdown
		s.Countdown = countdownTicks
		return s, []command{scheduleTickCmd{}}

	case configureFailedEvent:
		return hardwareCancel(s, ev.err)

	case capturedEvent:
		if s.Phase != PhaseCapturing {
			return s, nil
		}
		s.Phase = PhaseProcessing
		shot := frame.Shot{Position: s.Position, Raw: ev.raw, At: ev.at}
		return s, []command{processCmd{shot: shot}}

	case captureFailedEvent:
		return hardwareCancel(s, ev.err)

	case processedEvent:
		if s.Phase != PhaseProcessing {
			return s, nil
		}
		s.setImage(ev.img)
		if s.Selfie != nil && s.Subject != nil {
			// Second shot: both images ready. The resource is released
			// once the caller collects the result.
			s.Phase = PhaseComplete
			return s, nil
		}
		// First shot: switch devices for the second one.
		next := s.Position.Other()
		s.Phase = PhaseAutoSwitching
		s.Position = next
		return s, []command{configureCmd{pos: next, flash: s.Flash}}

	case tickEvent:
		if s.Phase != PhaseCountdown {
			return s, nil
		}
		if s.Countdown > 1 {
			s.Countdown--
			return s, []command{scheduleTickCmd{}}
		}
		s.Countdown = 0
		s.Phase = PhaseAwaitingAutoCapture
		return s, []command{autoTriggerCmd{}}

	case retakeEvent:
		// Only meaningful from PhaseComplete, handled above.
		return s, nil
	}

	return s, nil
}

// hardwareCancel drives the session to Cancelled with the error attached.
// Hardware errors are terminal for the session; the caller may start a
// fresh one.
func hardwareCancel(s State, err error) (State, []command) {
	s.Phase = PhaseCancelled
	s.Reason = "hardware failure: " + err.Error()
	s.Err = err
	s.HardwareFailure = true
	s.Countdown = 0
	return s, []command{teardownCmd{}}
}

// retake restarts the full protocol from the starting position. Both
// stored images are discarded and the starting device is reconfigured,
// so no stale hardware configuration survives.
func retake(s State) (State, []command) {
	s.Phase = PhaseAwaitingManualCapture
	s.Position = s.Start
	s.Countdown = 0
	s.Armed = false
	s.Selfie = nil
	s.Subject = nil
	s.Reason = ""
	s.Err = nil
	s.HardwareFailure = false
	return s, []command{configureCmd{pos: s.Start, flash: s.Flash}}
}
