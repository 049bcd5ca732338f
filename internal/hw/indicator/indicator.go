// Package indicator drives the rig's status lamps from sequencer
// snapshots. Presentation only: the lamps mirror protocol state, they
// never define it.
package indicator

import (
	"snapproof/internal/debug"
	"snapproof/internal/hw/gpio"
	"snapproof/internal/logic/sequence"
)

// Config holds the lamp wiring.
type Config struct {
	ReadyPin int // lit while the rig waits for the manual shot
	BusyPin  int // lit while the protocol is in flight
}

// Indicator is a two-lamp GPIO status display.
type Indicator struct {
	gpio gpio.Driver
	cfg  Config
}

// New configures the lamp pins as outputs, both dark.
func New(g gpio.Driver, cfg Config) *Indicator {
	_ = g.SetupPin(cfg.ReadyPin, gpio.Output)
	_ = g.SetupPin(cfg.BusyPin, gpio.Output)
	_ = g.WritePin(cfg.ReadyPin, gpio.Low)
	_ = g.WritePin(cfg.BusyPin, gpio.Low)

	return &Indicator{gpio: g, cfg: cfg}
}

// Apply updates the lamps for the given protocol phase.
// Ready: awaiting the manual shot. Busy: capture, processing, device
// switch, countdown, auto shot. Terminal phases turn both lamps off.
func (i *Indicator) Apply(phase sequence.Phase) error {
	ready, busy := gpio.Low, gpio.Low
	switch phase {
	case sequence.PhaseAwaitingManualCapture:
		ready = gpio.High
	case sequence.PhaseCapturing,
		sequence.PhaseProcessing,
		sequence.PhaseAutoSwitching,
		sequence.PhaseCountdown,
		sequence.PhaseAwaitingAutoCapture:
		busy = gpio.High
	}

	debug.Trace("indicator: phase=%s ready=%v busy=%v", phase, ready, busy)

	if err := i.gpio.WritePin(i.cfg.ReadyPin, ready); err != nil {
		return err
	}
	return i.gpio.WritePin(i.cfg.BusyPin, busy)
}

// Off turns both lamps off.
func (i *Indicator) Off() error {
	if err := i.gpio.WritePin(i.cfg.ReadyPin, gpio.Low); err != nil {
		return err
	}
	return i.gpio.WritePin(i.cfg.BusyPin, gpio.Low)
}

// Follow consumes sequencer snapshots until the channel closes, keeping
// the lamps in sync. Run it in its own goroutine.
func (i *Indicator) Follow(updates <-chan sequence.State) {
	for st := range updates {
		if err := i.Apply(st.Phase); err != nil {
			debug.Error(err)
		}
	}
	_ = i.Off()
}
