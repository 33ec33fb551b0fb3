// Package cv drives the camera and the preview window through OpenCV (gocv).
package cv

import (
	"image"
	"image/color"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
)

// Capture is a camera.Camera backed by gocv.VideoCapture.
type Capture struct {
	index int
	vc    *gocv.VideoCapture
	mat   gocv.Mat
	frame MatFrame
}

// Check that Capture implements camera.Camera.
var _ camera.Camera = (*Capture)(nil)

// OpenCamera opens the video device with the given index.
func OpenCamera(index int) (*Capture, error) {
	debug.Info("Opening video capture device %d (OpenCV)", index)

	vc, err := gocv.VideoCaptureDevice(index)
	if err != nil {
		return nil, errors.Wrapf(err, "open video capture device %d", index)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.Errorf("video capture device %d is not available", index)
	}

	c := &Capture{
		index: index,
		vc:    vc,
		mat:   gocv.NewMat(),
	}
	c.frame.mat = &c.mat
	return c, nil
}

// SetResolution requests w x h. OpenCV silently keeps the closest mode it supports.
func (c *Capture) SetResolution(w, h int) error {
	debug.Verbose("Camera %d: requesting %dx%d", c.index, w, h)
	c.vc.Set(gocv.VideoCaptureFrameWidth, float64(w))
	c.vc.Set(gocv.VideoCaptureFrameHeight, float64(h))
	return nil
}

func (c *Capture) Size() (int, int) {
	w := c.vc.Get(gocv.VideoCaptureFrameWidth)
	h := c.vc.Get(gocv.VideoCaptureFrameHeight)
	return int(w), int(h)
}

// Read grabs into a single reused Mat.
func (c *Capture) Read() (camera.Frame, error) {
	if ok := c.vc.Read(&c.mat); !ok {
		return nil, errors.Errorf("cannot read device %d", c.index)
	}
	if c.mat.Empty() {
		return nil, camera.ErrEmptyFrame
	}
	return &c.frame, nil
}

func (c *Capture) Close() error {
	debug.Trace("Camera %d: release", c.index)
	if err := c.mat.Close(); err != nil {
		debug.Error(errors.Wrap(err, "close frame buffer"))
	}
	return c.vc.Close()
}

// MatFrame is a camera.Frame backed by a gocv.Mat.
type MatFrame struct {
	mat *gocv.Mat
}

// Mat exposes the underlying matrix for display.
func (f *MatFrame) Mat() gocv.Mat {
	return *f.mat
}

func (f *MatFrame) Size() (int, int) {
	return f.mat.Cols(), f.mat.Rows()
}

func (f *MatFrame) DrawLine(from, to image.Point, c color.RGBA, thickness int) {
	gocv.Line(f.mat, from, to, c, thickness)
}

func (f *MatFrame) Save(path string, quality int) error {
	params := []int{int(gocv.IMWriteJpegQuality), quality}
	if ok := gocv.IMWriteWithParams(path, *f.mat, params); !ok {
		return errors.Errorf("failed to write image %q", path)
	}
	return nil
}
