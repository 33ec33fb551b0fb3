package cv

import (
	"image"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
)

// WindowName is the title of the preview window.
const WindowName = "camera"

// Display shows frames in a HighGUI window and polls the keyboard.
type Display struct {
	window *gocv.Window
}

// NewDisplay opens the preview window.
func NewDisplay(name string) *Display {
	debug.Verbose("Opening display window %q", name)
	return &Display{window: gocv.NewWindow(name)}
}

// Show displays a frame. Frames not backed by a Mat are converted first.
func (d *Display) Show(f camera.Frame) error {
	switch fr := f.(type) {
	case *MatFrame:
		d.window.IMShow(fr.Mat())
		return nil
	case interface{ Image() image.Image }:
		rgba, err := gocv.ImageToMatRGBA(fr.Image())
		if err != nil {
			return errors.Wrap(err, "convert frame for display")
		}
		defer rgba.Close()

		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(rgba, &bgr, gocv.ColorRGBAToBGR)
		d.window.IMShow(bgr)
		return nil
	default:
		return errors.Errorf("cannot display frame of type %T", f)
	}
}

// WaitKey waits up to wait for a key press and returns its code, or -1.
func (d *Display) WaitKey(wait time.Duration) int {
	return keyCode(d.window.WaitKey(waitMillis(wait)))
}

// waitMillis never returns 0, which would block until a key is pressed.
func waitMillis(wait time.Duration) int {
	ms := int(wait / time.Millisecond)
	if ms < 1 {
		return 1
	}
	return ms
}

// keyCode keeps the low byte of a HighGUI key code.
func keyCode(raw int) int {
	if raw < 0 {
		return -1
	}
	return raw & 0xFF
}

func (d *Display) Close() error {
	debug.Trace("Display: destroy window")
	return d.window.Close()
}
