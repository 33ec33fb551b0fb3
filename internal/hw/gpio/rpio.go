package gpio

import (
	"github.com/pkg/errors"
	"github.com/stianeikeland/go-rpio/v4"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
type RPiDriver struct {
	pins map[int]rpio.Pin
}

// NewRPiRealDriver memory-maps the GPIO registers.
// Requires /dev/gpiomem access or root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, errors.Wrap(err, "failed to open GPIO (are you running on a Raspberry Pi?)")
	}

	debug.Verbose("GPIO memory mapped successfully")

	return &RPiDriver{
		pins: make(map[int]rpio.Pin),
	}, nil
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p := rpio.Pin(pin)

	switch mode {
	case Input:
		p.Input()
	case InputPullUp:
		p.Input()
		p.PullUp()
	case Output:
		p.Output()
	default:
		return errors.Errorf("unknown pin mode: %d", mode)
	}

	r.pins[pin] = p
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, ok := r.pins[pin]
	if !ok {
		if err := r.SetupPin(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}
	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	p, ok := r.pins[pin]
	if !ok {
		if err := r.SetupPin(pin, Input); err != nil {
			return Low, err
		}
		p = r.pins[pin]
	}

	level := p.Read() == rpio.High
	debug.GPIO("ReadPin", pin, level)
	return Level(level), nil
}

func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	// Leave every pin we touched as a floating input
	for pin, p := range r.pins {
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
		p.PullOff()
	}

	return rpio.Close()
}
