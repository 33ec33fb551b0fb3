package geometry

import (
	"image"
	"image/color"
)

// Overlay colors. color.RGBA is converted to BGR by OpenCV bindings,
// so these are the colors actually seen on screen.
var (
	CenterColor   = color.RGBA{R: 0, G: 0, B: 255, A: 0} // short centered cross
	DiagonalColor = color.RGBA{R: 0, G: 255, B: 0, A: 0} // full diagonals
)

// Segment is a straight line to draw on a frame.
type Segment struct {
	From      image.Point
	To        image.Point
	Color     color.RGBA
	Thickness int
}

// SmallDimension returns the shorter side of a w x h frame.
// It is the side of the square spanned by the diagonals.
func SmallDimension(w, h int) int {
	if h < w {
		return h
	}
	return w
}

// Crosshair computes the alignment overlay for a w x h frame:
//   - a horizontal segment from 45% to 55% of the width, at half height
//   - a vertical segment from 45% to 55% of the height, at half width
//   - both diagonals of the square of side SmallDimension(w, h) centered on the frame
//
// Coordinates are truncated toward zero.
func Crosshair(w, h int) []Segment {
	fw := float64(w)
	fh := float64(h)
	half := float64(SmallDimension(w, h)) / 2
	cx := fw / 2
	cy := fh / 2

	return []Segment{
		{
			From:      image.Pt(int(fw*0.45), int(cy)),
			To:        image.Pt(int(fw*0.55), int(cy)),
			Color:     CenterColor,
			Thickness: 1,
		},
		{
			From:      image.Pt(int(cx), int(fh*0.45)),
			To:        image.Pt(int(cx), int(fh*0.55)),
			Color:     CenterColor,
			Thickness: 1,
		},
		{
			From:      image.Pt(int(cx-half), int(cy-half)),
			To:        image.Pt(int(cx+half), int(cy+half)),
			Color:     DiagonalColor,
			Thickness: 1,
		},
		{
			From:      image.Pt(int(cx-half), int(cy+half)),
			To:        image.Pt(int(cx+half), int(cy-half)),
			Color:     DiagonalColor,
			Thickness: 1,
		},
	}
}
