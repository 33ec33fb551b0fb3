package camera

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// Default size of the pattern camera when no resolution is requested.
const (
	PatternWidth  = 640
	PatternHeight = 480
)

var barColors = []color.NRGBA{
	{R: 192, G: 192, B: 192, A: 255}, // gray
	{R: 192, G: 192, B: 0, A: 255},   // yellow
	{R: 0, G: 192, B: 192, A: 255},   // cyan
	{R: 0, G: 192, B: 0, A: 255},     // green
	{R: 192, G: 0, B: 192, A: 255},   // magenta
	{R: 192, G: 0, B: 0, A: 255},     // red
	{R: 0, G: 0, B: 192, A: 255},     // blue
}

// Pattern is a Camera producing color bars.
// Used for development on a PC without a capture device, and for tests.
type Pattern struct {
	width  int
	height int
	base   *image.NRGBA
	reads  int
	closed bool
}

// NewPattern creates a pattern camera of PatternWidth x PatternHeight.
func NewPattern() *Pattern {
	debug.Info("Using PATTERN camera (development mode)")
	p := &Pattern{}
	p.resize(PatternWidth, PatternHeight)
	return p
}

func (p *Pattern) resize(w, h int) {
	p.width = w
	p.height = h

	base := imaging.New(w, h, color.NRGBA{A: 255})
	barWidth := w / len(barColors)
	if barWidth < 1 {
		barWidth = 1
	}
	for i, c := range barColors {
		x := i * barWidth
		if x >= w {
			break
		}
		bw := barWidth
		if i == len(barColors)-1 {
			bw = w - x // last bar absorbs the remainder
		}
		base = imaging.Paste(base, imaging.New(bw, h, c), image.Pt(x, 0))
	}
	p.base = base
}

// SetResolution always honours the request.
func (p *Pattern) SetResolution(w, h int) error {
	if w <= 0 || h <= 0 {
		return errors.Errorf("invalid resolution %dx%d", w, h)
	}
	debug.Verbose("Pattern camera: resolution %dx%d", w, h)
	p.resize(w, h)
	return nil
}

func (p *Pattern) Size() (int, int) {
	return p.width, p.height
}

func (p *Pattern) Read() (Frame, error) {
	if p.closed {
		return nil, errors.New("pattern camera is closed")
	}
	p.reads++
	debug.Trace("Pattern camera: frame %d", p.reads)
	return &ImageFrame{img: imaging.Clone(p.base)}, nil
}

func (p *Pattern) Close() error {
	debug.Trace("Pattern camera Close")
	p.closed = true
	return nil
}

// ImageFrame is a Frame backed by an in-memory image.
type ImageFrame struct {
	img *image.NRGBA
}

// NewImageFrame copies img into a new frame.
func NewImageFrame(img image.Image) *ImageFrame {
	return &ImageFrame{img: imaging.Clone(img)}
}

// Image exposes the pixels, e.g. for display.
func (f *ImageFrame) Image() image.Image {
	return f.img
}

func (f *ImageFrame) Size() (int, int) {
	b := f.img.Bounds()
	return b.Dx(), b.Dy()
}

// DrawLine rasterizes the line with Bresenham's algorithm and a square brush
// of side thickness. Pixels outside the frame are clipped.
func (f *ImageFrame) DrawLine(from, to image.Point, c color.RGBA, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	ink := color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}

	dx := abs(to.X - from.X)
	dy := -abs(to.Y - from.Y)
	sx, sy := 1, 1
	if from.X > to.X {
		sx = -1
	}
	if from.Y > to.Y {
		sy = -1
	}
	e := dx + dy
	x, y := from.X, from.Y
	for {
		f.brush(x, y, thickness, ink)
		if x == to.X && y == to.Y {
			return
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			x += sx
		}
		if e2 <= dx {
			e += dx
			y += sy
		}
	}
}

func (f *ImageFrame) brush(x, y, thickness int, c color.NRGBA) {
	off := thickness / 2
	b := f.img.Bounds()
	for by := y - off; by < y-off+thickness; by++ {
		for bx := x - off; bx < x-off+thickness; bx++ {
			if image.Pt(bx, by).In(b) {
				f.img.SetNRGBA(bx, by, c)
			}
		}
	}
}

// Save encodes the frame with imaging; the extension selects the format.
func (f *ImageFrame) Save(path string, quality int) error {
	if err := imaging.Save(f.img, path, imaging.JPEGQuality(quality)); err != nil {
		return errors.Wrapf(err, "write image %q", path)
	}
	return nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
