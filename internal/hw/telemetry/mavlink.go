package telemetry

import (
	"context"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/pkg/errors"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

const (
	// MAV_AUTOPILOT_INVALID: heartbeats from ground stations, not from a flight controller.
	autopilotInvalid = 8

	// MAV_DATA_STREAM_ALL
	streamAll = 0

	// Bound on the events handled per Sample call.
	maxDrain = 256

	// Our own system ID on the link, as used by ground stations.
	gcsSystemID = 255
)

// Config describes the serial MAVLink link.
type Config struct {
	Device       string
	Baud         int
	ReadyTimeout time.Duration
	StreamRateHz int
}

// state keeps the latest values seen on the link.
type state struct {
	sample       Sample
	haveAttitude bool
	havePosition bool
}

func (s *state) apply(msg message.Message) {
	switch m := msg.(type) {
	case *ardupilotmega.MessageAttitude:
		s.sample.Roll = float64(m.Roll)
		s.sample.Pitch = float64(m.Pitch)
		s.sample.Yaw = float64(m.Yaw)
		s.haveAttitude = true
	case *ardupilotmega.MessageGlobalPositionInt:
		s.sample.Altitude = float64(m.RelativeAlt) / 1000 // mm -> m
		s.havePosition = true
	}
}

func (s *state) ready() bool {
	return s.haveAttitude && s.havePosition
}

// MAVLink is a Source reading a flight controller over a serial port.
type MAVLink struct {
	node      *gomavlib.Node
	events    <-chan gomavlib.Event
	rate      int
	requested bool
	st        state
}

// Check that MAVLink implements Source.
var _ Source = (*MAVLink)(nil)

// Connect opens the link and blocks until both attitude and position have
// been received, ctx is cancelled, or cfg.ReadyTimeout expires.
func Connect(ctx context.Context, cfg Config) (*MAVLink, error) {
	debug.Info("Connecting to vehicle on: %s (%d baud)", cfg.Device, cfg.Baud)

	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints: []gomavlib.EndpointConf{
			gomavlib.EndpointSerial{
				Device: cfg.Device,
				Baud:   cfg.Baud,
			},
		},
		Dialect:     ardupilotmega.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: gcsSystemID,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open MAVLink link on %s", cfg.Device)
	}

	m := &MAVLink{
		node:   node,
		events: node.Events(),
		rate:   cfg.StreamRateHz,
	}

	waitCtx := ctx
	if cfg.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, cfg.ReadyTimeout)
		defer cancel()
	}

	for !m.st.ready() {
		select {
		case <-waitCtx.Done():
			node.Close()
			return nil, errors.Wrapf(waitCtx.Err(), "waiting for attitude and position on %s", cfg.Device)
		case evt, ok := <-m.events:
			if !ok {
				node.Close()
				return nil, errors.Errorf("MAVLink link on %s closed", cfg.Device)
			}
			m.handle(evt)
		}
	}

	debug.Info("Connected to vehicle on: %s", cfg.Device)
	debug.PrintStruct("First telemetry sample", m.st.sample)
	return m, nil
}

func (m *MAVLink) handle(evt gomavlib.Event) {
	frm, ok := evt.(*gomavlib.EventFrame)
	if !ok {
		debug.Trace("MAVLink event %T", evt)
		return
	}

	msg := frm.Message()
	if debug.IsEnabled(debug.LevelTrace) {
		debug.Trace("MAVLink message %T from system %d: %+v", msg, frm.SystemID(), msg)
	}

	if hb, ok := msg.(*ardupilotmega.MessageHeartbeat); ok && !m.requested {
		if uint64(hb.Autopilot) != autopilotInvalid {
			m.requestStreams(frm.SystemID(), frm.ComponentID())
		}
	}
	m.st.apply(msg)
}

// requestStreams asks the autopilot to stream everything at the configured rate.
// ArduPilot stays silent on USB until asked.
func (m *MAVLink) requestStreams(system, component byte) {
	debug.Verbose("Requesting data streams at %d Hz from system %d", m.rate, system)
	m.node.WriteMessageAll(&ardupilotmega.MessageRequestDataStream{
		TargetSystem:    system,
		TargetComponent: component,
		ReqStreamId:     streamAll,
		ReqMessageRate:  uint16(m.rate),
		StartStop:       1,
	})
	m.requested = true
}

// Sample handles the events already queued, without blocking, and returns
// the latest values.
func (m *MAVLink) Sample() (Sample, bool) {
	for i := 0; i < maxDrain; i++ {
		select {
		case evt, ok := <-m.events:
			if !ok {
				return m.st.sample, m.st.ready()
			}
			m.handle(evt)
		default:
			return m.st.sample, m.st.ready()
		}
	}
	return m.st.sample, m.st.ready()
}

func (m *MAVLink) Close() error {
	debug.Trace("MAVLink Close")
	if m.node != nil {
		m.node.Close()
	}
	return nil
}
