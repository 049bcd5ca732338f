package camera

import (
	"context"
	"errors"
	"fmt"
)

// Position is the logical role a camera plays in the two-shot protocol,
// independent of which physical device serves it.
type Position int

const (
	// Selfie is the user-facing position (front camera on a phone,
	// the operator-facing device on a rig).
	Selfie Position = iota
	// Subject is the scene-facing position (back camera, the device
	// pointed at the habit being verified).
	Subject
)

// Other returns the opposite logical position.
func (p Position) Other() Position {
	if p == Selfie {
		return Subject
	}
	return Selfie
}

func (p Position) String() string {
	switch p {
	case Selfie:
		return "selfie"
	case Subject:
		return "subject"
	default:
		return fmt.Sprintf("position(%d)", int(p))
	}
}

// ParsePosition converts a config/API string into a Position.
func ParsePosition(s string) (Position, error) {
	switch s {
	case "selfie":
		return Selfie, nil
	case "subject":
		return Subject, nil
	default:
		return Selfie, fmt.Errorf("unknown position %q (want selfie or subject)", s)
	}
}

// FlashMode selects flash behavior for a capture. Backends without a
// controllable flash treat it as a hint.
type FlashMode int

const (
	FlashOff FlashMode = iota
	FlashOn
	FlashAuto
)

func (f FlashMode) String() string {
	switch f {
	case FlashOff:
		return "off"
	case FlashOn:
		return "on"
	case FlashAuto:
		return "auto"
	default:
		return fmt.Sprintf("flash(%d)", int(f))
	}
}

// ParseFlashMode converts a config/API string into a FlashMode.
func ParseFlashMode(s string) (FlashMode, error) {
	switch s {
	case "off", "":
		return FlashOff, nil
	case "on":
		return FlashOn, nil
	case "auto":
		return FlashAuto, nil
	default:
		return FlashOff, fmt.Errorf("unknown flash mode %q (want off, on or auto)", s)
	}
}

// Cycle returns the next flash mode (off -> on -> auto -> off), used by
// the presentation layer's flash toggle.
func (f FlashMode) Cycle() FlashMode {
	switch f {
	case FlashOff:
		return FlashOn
	case FlashOn:
		return FlashAuto
	default:
		return FlashOff
	}
}

// ErrNoDevice is returned by a Backend when no physical device is mapped
// to the requested logical position.
var ErrNoDevice = errors.New("no camera device for position")

// Device is a single physical camera input. A Device must be started
// before it can capture, and stopped before another Device is attached
// to the same capture resource.
type Device interface {
	// Start makes the device ready for capture.
	Start() error

	// Stop releases the device. Safe to call on a stopped device.
	Stop() error

	// Capture triggers a single photograph and returns the raw encoded
	// bytes once hardware processing completes.
	Capture(ctx context.Context, flash FlashMode) ([]byte, error)
}

// Backend maps logical positions to physical camera devices.
type Backend interface {
	// Lookup returns the Device serving the given position, or
	// ErrNoDevice when the position has no mapped hardware.
	Lookup(pos Position) (Device, error)
}
