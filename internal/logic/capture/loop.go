package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/hw/telemetry"
	"github.com/cjeanneret/SnapGo/internal/logic/geometry"
	"github.com/cjeanneret/SnapGo/internal/output"
)

// Keyboard bindings.
const (
	KeyQuit = 'q'
	KeySave = ' '
)

// State of the capture loop.
type State int

const (
	Initializing State = iota
	Streaming
	Terminated
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Streaming:
		return "streaming"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Display shows frames and polls the keyboard.
type Display interface {
	Show(f camera.Frame) error
	// WaitKey waits at most wait and returns the key code, or -1.
	WaitKey(wait time.Duration) int
	Close() error
}

// Trigger is a hardware shutter (e.g. a GPIO push button).
type Trigger interface {
	Pressed() bool
}

// Indicator signals a save in progress (e.g. a status LED).
type Indicator interface {
	On() error
	Off() error
}

// Params defines the capture loop behaviour.
type Params struct {
	Folder      string        // output folder, must exist
	Name        string        // file name prefix
	Crosshair   bool          // draw the alignment overlay
	JPEGQuality int           // 1-100
	KeyWait     time.Duration // bounded wait of the key poll
}

// Option customizes a Loop.
type Option func(*Loop)

// WithTrigger adds a hardware shutter acting like the save key.
func WithTrigger(t Trigger) Option {
	return func(l *Loop) { l.trigger = t }
}

// WithIndicator adds an indicator switched on while a snapshot is written.
func WithIndicator(i Indicator) Option {
	return func(l *Loop) { l.indicator = i }
}

// Loop reads frames, displays them and saves snapshots on demand.
// It owns the camera and the display: both are released when Run returns.
type Loop struct {
	cam       camera.Camera
	display   Display
	pose      telemetry.Source
	trigger   Trigger
	indicator Indicator
	p         Params

	state  State
	saved  int
	width  int
	height int
	cross  []geometry.Segment
}

type action int

const (
	actionNone action = iota
	actionSave
	actionQuit
)

// NewLoop creates a capture loop. A nil pose source means no telemetry.
func NewLoop(cam camera.Camera, display Display, pose telemetry.Source, p Params, opts ...Option) *Loop {
	if pose == nil {
		pose = telemetry.Nop{}
	}
	if p.KeyWait <= 0 {
		p.KeyWait = time.Millisecond
	}
	l := &Loop{
		cam:     cam,
		display: display,
		pose:    pose,
		p:       p,
		state:   Initializing,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// State returns the current state.
func (l *Loop) State() State {
	return l.state
}

// Saved returns the number of snapshots written so far.
func (l *Loop) Saved() int {
	return l.saved
}

// Run streams until the quit key, ctx cancellation, or an error.
// Read, display and write failures end the run with an error.
func (l *Loop) Run(ctx context.Context) error {
	if l.state != Initializing {
		return errors.Errorf("capture loop is %s", l.state)
	}
	defer l.release()

	l.width, l.height = l.cam.Size()
	debug.Value("Frame size", fmt.Sprintf("%dx%d", l.width, l.height))
	if l.p.Crosshair {
		l.cross = geometry.Crosshair(l.width, l.height)
		debug.Verbose("Crosshair small dimension: %d", geometry.SmallDimension(l.width, l.height))
	}

	l.state = Streaming
	debug.Info("Streaming: press SPACE to save a snapshot, q to quit")

	for {
		select {
		case <-ctx.Done():
			debug.Info("Capture interrupted: %v", ctx.Err())
			return nil
		default:
		}

		frame, err := l.cam.Read()
		if errors.Is(err, camera.ErrEmptyFrame) {
			debug.Verbose("Empty frame, skipping")
			if l.poll() == actionQuit {
				return nil
			}
			continue
		}
		if err != nil {
			return errors.Wrap(err, "read frame")
		}

		sample, posed := l.pose.Sample()
		if posed {
			debug.Trace("Pose: %+v", sample)
		}

		for _, s := range l.cross {
			frame.DrawLine(s.From, s.To, s.Color, s.Thickness)
		}

		if err := l.display.Show(frame); err != nil {
			return errors.Wrap(err, "show frame")
		}

		switch l.poll() {
		case actionQuit:
			return nil
		case actionSave:
			if err := l.save(frame, sample, posed); err != nil {
				return err
			}
		}
	}
}

func (l *Loop) poll() action {
	key := l.display.WaitKey(l.p.KeyWait)
	switch key {
	case KeyQuit:
		debug.Key(key, "quit")
		return actionQuit
	case KeySave:
		debug.Key(key, "save")
		return actionSave
	}
	if key >= 0 {
		debug.Key(key, "ignored")
	}
	if l.trigger != nil && l.trigger.Pressed() {
		return actionSave
	}
	return actionNone
}

func (l *Loop) save(frame camera.Frame, sample telemetry.Sample, posed bool) error {
	var pose *output.Pose
	if posed {
		pose = &output.Pose{
			Roll:     sample.Roll,
			Pitch:    sample.Pitch,
			Yaw:      sample.Yaw,
			Altitude: sample.Altitude,
		}
	}
	path := output.SnapshotName(l.p.Folder, l.p.Name, l.width, l.height, pose, l.saved)
	debug.Snapshot(l.saved, path)

	if l.indicator != nil {
		if err := l.indicator.On(); err != nil {
			debug.Error(errors.Wrap(err, "indicator on"))
		}
		defer func() {
			if err := l.indicator.Off(); err != nil {
				debug.Error(errors.Wrap(err, "indicator off"))
			}
		}()
	}

	if err := frame.Save(path, l.p.JPEGQuality); err != nil {
		return errors.Wrapf(err, "save snapshot %d", l.saved)
	}
	l.saved++
	return nil
}

// release closes the camera and the display exactly once.
func (l *Loop) release() {
	if l.state == Terminated {
		return
	}
	l.state = Terminated

	if err := l.cam.Close(); err != nil {
		debug.Error(errors.Wrap(err, "release camera"))
	}
	if err := l.display.Close(); err != nil {
		debug.Error(errors.Wrap(err, "close display"))
	}
	debug.Info("Capture terminated, %d snapshot(s) saved", l.saved)
}
