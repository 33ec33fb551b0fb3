package telemetry

// Sample is the vehicle attitude and altitude at one instant.
type Sample struct {
	Roll     float64 // radians
	Pitch    float64 // radians
	Yaw      float64 // radians
	Altitude float64 // metres, relative to home
}

// Source provides attitude and altitude.
// This allows plugging in a flight controller link, or nothing at all.
type Source interface {
	// Sample returns the latest values. ok is false when the source
	// carries no telemetry, in which case file names get no pose.
	Sample() (s Sample, ok bool)
	Close() error
}

// Nop is the Source used when pose annotation is disabled.
type Nop struct{}

func (Nop) Sample() (Sample, bool) { return Sample{}, false }

func (Nop) Close() error { return nil }
