package gpio

import (
	"github.com/cjeanneret/SnapGo/internal/debug"
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
	InputPullUp // input with the internal pull-up, for active-LOW buttons
)

// Driver defines the abstract interface for controlling GPIOs.
// This allows plugging in a real Raspberry Pi implementation
// or a mock for development on PC.
type Driver interface {
	SetupPin(pin int, mode PinMode) error
	WritePin(pin int, level Level) error
	ReadPin(pin int) (Level, error)
	Close() error
}

// MockDriver is an in-memory implementation that logs actions and keeps pin levels.
// Used for development on PC or testing. Pull-up inputs start HIGH (button released).
type MockDriver struct {
	levels map[int]Level
}

// NewMockDriver creates an empty MockDriver.
func NewMockDriver() *MockDriver {
	return &MockDriver{levels: make(map[int]Level)}
}

// NewDriver creates a GPIO driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
// If mock is false, returns a real RPiDriver (for Raspberry Pi).
func NewDriver(mock bool) (Driver, error) {
	if mock {
		debug.Info("Using MOCK GPIO driver (development mode)")
		return NewMockDriver(), nil
	}
	return NewRPiRealDriver()
}

func (m *MockDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)
	if m.levels == nil {
		m.levels = make(map[int]Level)
	}
	if mode == InputPullUp {
		m.levels[pin] = High
	}
	return nil
}

func (m *MockDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)
	if m.levels == nil {
		m.levels = make(map[int]Level)
	}
	m.levels[pin] = level
	return nil
}

func (m *MockDriver) ReadPin(pin int) (Level, error) {
	level := m.levels[pin]
	debug.GPIO("ReadPin", pin, level)
	return level, nil
}

func (m *MockDriver) Close() error {
	debug.Trace("GPIO Close (mock)")
	return nil
}
