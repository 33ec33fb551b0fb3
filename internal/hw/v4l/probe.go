package v4l

import (
	"fmt"
	"sort"

	"github.com/blackjack/webcam"
	"github.com/pkg/errors"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// Mode is one pixel format of a V4L2 device with its frame sizes.
type Mode struct {
	Format      webcam.PixelFormat
	Description string
	Sizes       []webcam.FrameSize
}

func (m Mode) String() string {
	return fmt.Sprintf("%s (0x%08x)", m.Description, uint32(m.Format))
}

// Probe lists the formats and frame sizes reported by the device node.
func Probe(device string) ([]Mode, error) {
	debug.Verbose("Probing V4L2 device %s", device)

	cam, err := webcam.Open(device)
	if err != nil {
		return nil, errors.Wrapf(err, "can not open device %s", device)
	}
	defer cam.Close()

	var modes []Mode
	for format, desc := range cam.GetSupportedFormats() {
		modes = append(modes, Mode{
			Format:      format,
			Description: desc,
			Sizes:       cam.GetSupportedFrameSizes(format),
		})
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i].Format < modes[j].Format })
	return modes, nil
}

// Supports reports whether any of the sizes contains w x h.
// Discrete sizes have zero steps; stepwise ranges are checked against their step.
func Supports(sizes []webcam.FrameSize, w, h int) bool {
	for _, s := range sizes {
		if fits(uint32(w), s.MinWidth, s.MaxWidth, s.StepWidth) &&
			fits(uint32(h), s.MinHeight, s.MaxHeight, s.StepHeight) {
			return true
		}
	}
	return false
}

// SupportedByAny reports whether any mode supports w x h.
func SupportedByAny(modes []Mode, w, h int) bool {
	for _, m := range modes {
		if Supports(m.Sizes, w, h) {
			return true
		}
	}
	return false
}

func fits(v, min, max, step uint32) bool {
	if v < min || v > max {
		return false
	}
	if step == 0 {
		return v == min
	}
	return (v-min)%step == 0
}
