package gpio

import "github.com/cjeanneret/SnapGo/internal/debug"

// Button is an active-LOW push button wired between the pin and ground.
type Button struct {
	gpio Driver
	pin  int
	last Level
}

// NewButton configures pin as a pull-up input.
func NewButton(g Driver, pin int) (*Button, error) {
	if err := g.SetupPin(pin, InputPullUp); err != nil {
		return nil, err
	}
	return &Button{gpio: g, pin: pin, last: High}, nil
}

// Pressed reports true once per press, on the HIGH -> LOW edge.
// A read error counts as "not pressed".
func (b *Button) Pressed() bool {
	level, err := b.gpio.ReadPin(b.pin)
	if err != nil {
		debug.Error(err)
		return false
	}
	edge := b.last == High && level == Low
	b.last = level
	if edge {
		debug.Live("Shutter button pressed (pin %d)", b.pin)
	}
	return edge
}

// LED is a status LED driven HIGH when on.
type LED struct {
	gpio Driver
	pin  int
}

// NewLED configures pin as an output, initially off.
func NewLED(g Driver, pin int) (*LED, error) {
	if err := g.SetupPin(pin, Output); err != nil {
		return nil, err
	}
	if err := g.WritePin(pin, Low); err != nil {
		return nil, err
	}
	return &LED{gpio: g, pin: pin}, nil
}

func (l *LED) On() error {
	return l.gpio.WritePin(l.pin, High)
}

func (l *LED) Off() error {
	return l.gpio.WritePin(l.pin, Low)
}
