// Package gpio abstracts the rig's pin control behind a small driver
// interface. The status lamps in hw/indicator are its only consumer:
// two output pins, one per lamp. ReadPin exists for rigs that add a
// physical shutter button later.
package gpio

import (
	"snapproof/internal/debug"
)

// Level represents the logical state of a GPIO pin.
type Level bool

const (
	Low  Level = false
	High Level = true
)

// PinMode indicates whether a GPIO is input or output.
type PinMode int

const (
	Input PinMode = iota
	Output
)

// Driver is implemented by the real Raspberry Pi driver and by a mock
// for development machines without lamp hardware.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// MockDriver logs pin actions and drives nothing. The lamps simply stay
// dark when the rig runs with mock hardware.
type MockDriver struct{}

// NewDriver selects the GPIO driver. mock follows the mock_hardware
// config flag; false requires a Raspberry Pi with the lamps wired.
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return &MockDriver{}, nil
	}
	return NewRPiRealDriver()
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	debug.GPIO("ReadPin", pin, nil)
	return Low, nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
