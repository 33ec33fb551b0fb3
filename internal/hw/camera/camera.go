package camera

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
)

// ErrEmptyFrame is returned by Read when the device delivered no pixels.
// The caller may skip the iteration and read again.
var ErrEmptyFrame = errors.New("empty frame")

// Camera is the high-level interface used by the rest of the application.
// It represents an abstract video source, regardless of how it's driven
// (OpenCV device, synthetic pattern, etc.).
type Camera interface {
	// SetResolution asks the device for w x h. Devices may silently keep
	// another size; use Size to learn the actual one.
	SetResolution(w, h int) error

	// Size returns the frame size currently reported by the device.
	Size() (w, h int)

	// Read grabs the next frame. The returned Frame is only valid until the next Read.
	Read() (Frame, error)

	// Close releases the device.
	Close() error
}

// Frame is a single captured image.
type Frame interface {
	Size() (w, h int)

	// DrawLine draws a straight line from -> to, in place.
	DrawLine(from, to image.Point, c color.RGBA, thickness int)

	// Save writes the frame as an image file, format chosen by extension.
	// quality is the JPEG quality (1-100).
	Save(path string, quality int) error
}
