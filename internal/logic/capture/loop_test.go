package capture

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/hw/telemetry"
	"github.com/cjeanneret/SnapGo/internal/logic/geometry"
)

// ---------- fakes ----------

type line struct {
	from, to image.Point
	color    color.RGBA
}

// fakeFrame records drawn lines and saved paths.
type fakeFrame struct {
	w, h    int
	lines   []line
	saves   *[]string
	saveErr error
}

func (f *fakeFrame) Size() (int, int) { return f.w, f.h }

func (f *fakeFrame) DrawLine(from, to image.Point, c color.RGBA, thickness int) {
	f.lines = append(f.lines, line{from, to, c})
}

func (f *fakeFrame) Save(path string, quality int) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	*f.saves = append(*f.saves, path)
	return nil
}

// fakeCamera honours any requested resolution and counts Close calls.
type fakeCamera struct {
	w, h       int
	reads      int
	frames     []*fakeFrame
	saves      []string
	saveErr    error
	readErrAt  int // 1-based read returning readErr, 0 = never
	readErr    error
	emptyReads int // leading reads returning ErrEmptyFrame
	closes     int
}

func (c *fakeCamera) SetResolution(w, h int) error {
	c.w, c.h = w, h
	return nil
}

func (c *fakeCamera) Size() (int, int) { return c.w, c.h }

func (c *fakeCamera) Read() (camera.Frame, error) {
	c.reads++
	if c.readErrAt > 0 && c.reads == c.readErrAt {
		return nil, c.readErr
	}
	if c.reads <= c.emptyReads {
		return nil, camera.ErrEmptyFrame
	}
	f := &fakeFrame{w: c.w, h: c.h, saves: &c.saves, saveErr: c.saveErr}
	c.frames = append(c.frames, f)
	return f, nil
}

func (c *fakeCamera) Close() error {
	c.closes++
	return nil
}

// fakeDisplay replays scripted keys; once exhausted it presses quit.
type fakeDisplay struct {
	keys   []int
	shown  int
	polls  int
	closes int
}

func (d *fakeDisplay) Show(f camera.Frame) error {
	d.shown++
	return nil
}

func (d *fakeDisplay) WaitKey(wait time.Duration) int {
	d.polls++
	if len(d.keys) == 0 {
		return KeyQuit
	}
	k := d.keys[0]
	d.keys = d.keys[1:]
	return k
}

func (d *fakeDisplay) Close() error {
	d.closes++
	return nil
}

// fixedPose always returns the same sample.
type fixedPose struct {
	s telemetry.Sample
}

func (p fixedPose) Sample() (telemetry.Sample, bool) { return p.s, true }
func (p fixedPose) Close() error                     { return nil }

// scriptedTrigger returns presses in order.
type scriptedTrigger struct {
	presses []bool
}

func (t *scriptedTrigger) Pressed() bool {
	if len(t.presses) == 0 {
		return false
	}
	p := t.presses[0]
	t.presses = t.presses[1:]
	return p
}

type countingIndicator struct {
	on, off int
}

func (i *countingIndicator) On() error  { i.on++; return nil }
func (i *countingIndicator) Off() error { i.off++; return nil }

func newParams(folder string) Params {
	return Params{
		Folder:      folder,
		Name:        "snapshot",
		JPEGQuality: 95,
		KeyWait:     time.Millisecond,
	}
}

func assertReleasedOnce(t *testing.T, cam *fakeCamera, disp *fakeDisplay, loop *Loop) {
	t.Helper()
	if cam.closes != 1 {
		t.Errorf("camera closed %d times, want 1", cam.closes)
	}
	if disp.closes != 1 {
		t.Errorf("display closed %d times, want 1", disp.closes)
	}
	if loop.State() != Terminated {
		t.Errorf("state = %v, want terminated", loop.State())
	}
}

// ---------- tests ----------

func TestLoop_QuitWritesNothing(t *testing.T) {
	cam := &fakeCamera{w: 640, h: 480}
	disp := &fakeDisplay{keys: []int{KeyQuit}}
	loop := NewLoop(cam, disp, nil, newParams("snaps"))

	if loop.State() != Initializing {
		t.Errorf("initial state = %v, want initializing", loop.State())
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(cam.saves) != 0 {
		t.Errorf("saves = %v, want none", cam.saves)
	}
	if loop.Saved() != 0 {
		t.Errorf("Saved() = %d, want 0", loop.Saved())
	}
	if disp.shown != 1 {
		t.Errorf("shown = %d, want 1", disp.shown)
	}
	assertReleasedOnce(t, cam, disp, loop)
}

func TestLoop_SaveCounterIncreases(t *testing.T) {
	cam := &fakeCamera{w: 640, h: 480}
	disp := &fakeDisplay{keys: []int{KeySave, -1, KeySave, 'x', KeySave, KeyQuit}}
	loop := NewLoop(cam, disp, nil, newParams("snaps"))

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		filepath.Join("snaps", "snapshot_640_480_0.jpg"),
		filepath.Join("snaps", "snapshot_640_480_1.jpg"),
		filepath.Join("snaps", "snapshot_640_480_2.jpg"),
	}
	if len(cam.saves) != len(want) {
		t.Fatalf("saves = %v, want %v", cam.saves, want)
	}
	for i := range want {
		if cam.saves[i] != want[i] {
			t.Errorf("save %d = %q, want %q", i, cam.saves[i], want[i])
		}
	}
	if loop.Saved() != 3 {
		t.Errorf("Saved() = %d, want 3", loop.Saved())
	}
	assertReleasedOnce(t, cam, disp, loop)
}

func TestLoop_OtherKeysIgnored(t *testing.T) {
	cam := &fakeCamera{w: 320, h: 240}
	disp := &fakeDisplay{keys: []int{'a', 'Q', 27, -1, KeyQuit}}
	loop := NewLoop(cam, disp, nil, newParams("."))

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(cam.saves) != 0 {
		t.Errorf("saves = %v, want none", cam.saves)
	}
	if cam.reads != 5 {
		t.Errorf("reads = %d, want 5 (one per key poll)", cam.reads)
	}
}

func TestLoop_PoseInFileName(t *testing.T) {
	cam := &fakeCamera{w: 640, h: 480}
	disp := &fakeDisplay{keys: []int{KeySave, KeyQuit}}
	pose := fixedPose{s: telemetry.Sample{Pitch: 0.025, Roll: 0.003, Yaw: -1.864, Altitude: 6.570}}
	params := newParams("at_home2")
	params.Name = "pose_test"
	loop := NewLoop(cam, disp, pose, params)

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(cam.saves) != 1 {
		t.Fatalf("saves = %v, want 1", cam.saves)
	}
	if !strings.HasSuffix(cam.saves[0], "_p0.025_r0.003_y-1.864_a6.570_0.jpg") {
		t.Errorf("file name = %q, want pose suffix", cam.saves[0])
	}
	want := filepath.Join("at_home2", "pose_test_640_480_p0.025_r0.003_y-1.864_a6.570_0.jpg")
	if cam.saves[0] != want {
		t.Errorf("file name = %q, want %q", cam.saves[0], want)
	}
}

func TestLoop_NoPoseWithNopSource(t *testing.T) {
	cam := &fakeCamera{w: 640, h: 480}
	disp := &fakeDisplay{keys: []int{KeySave, KeyQuit}}
	loop := NewLoop(cam, disp, telemetry.Nop{}, newParams("snaps"))

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(cam.saves) != 1 || strings.Contains(cam.saves[0], "_p") {
		t.Errorf("saves = %v, want one name without pose", cam.saves)
	}
}

func TestLoop_CrosshairDrawnEveryFrame(t *testing.T) {
	cam := &fakeCamera{w: 640, h: 480}
	disp := &fakeDisplay{keys: []int{-1, -1, KeyQuit}}
	params := newParams(".")
	params.Crosshair = true
	loop := NewLoop(cam, disp, nil, params)

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := geometry.Crosshair(640, 480)
	if len(cam.frames) != 3 {
		t.Fatalf("frames = %d, want 3", len(cam.frames))
	}
	for fi, f := range cam.frames {
		if len(f.lines) != len(want) {
			t.Fatalf("frame %d: %d lines, want %d", fi, len(f.lines), len(want))
		}
		for i, s := range want {
			if f.lines[i].from != s.From || f.lines[i].to != s.To || f.lines[i].color != s.Color {
				t.Errorf("frame %d line %d = %+v, want %+v", fi, i, f.lines[i], s)
			}
		}
	}
	// Horizontal segment (0.45w, 0.5h)-(0.55w, 0.5h)
	first := cam.frames[0].lines[0]
	if first.from != image.Pt(288, 240) || first.to != image.Pt(352, 240) {
		t.Errorf("horizontal = %v-%v, want (288,240)-(352,240)", first.from, first.to)
	}
}

func TestLoop_NoCrosshairByDefault(t *testing.T) {
	cam := &fakeCamera{w: 640, h: 480}
	disp := &fakeDisplay{keys: []int{KeyQuit}}
	loop := NewLoop(cam, disp, nil, newParams("."))

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(cam.frames[0].lines) != 0 {
		t.Errorf("lines = %d, want 0", len(cam.frames[0].lines))
	}
}

func TestLoop_ResolutionHonouredInNames(t *testing.T) {
	cam := &fakeCamera{w: 1920, h: 1080}
	if err := cam.SetResolution(640, 480); err != nil {
		t.Fatal(err)
	}
	disp := &fakeDisplay{keys: []int{KeySave, KeyQuit}}
	loop := NewLoop(cam, disp, nil, newParams("snaps"))

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if w, h := cam.Size(); w != 640 || h != 480 {
		t.Errorf("device size = %dx%d, want 640x480", w, h)
	}
	if len(cam.saves) != 1 || filepath.Base(cam.saves[0]) != "snapshot_640_480_0.jpg" {
		t.Errorf("saves = %v", cam.saves)
	}
}

func TestLoop_TriggerSaves(t *testing.T) {
	cam := &fakeCamera{w: 640, h: 480}
	disp := &fakeDisplay{keys: []int{-1, -1, KeyQuit}}
	trig := &scriptedTrigger{presses: []bool{false, true}}
	ind := &countingIndicator{}
	loop := NewLoop(cam, disp, nil, newParams("snaps"), WithTrigger(trig), WithIndicator(ind))

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(cam.saves) != 1 {
		t.Fatalf("saves = %v, want 1 from the trigger", cam.saves)
	}
	if ind.on != 1 || ind.off != 1 {
		t.Errorf("indicator on=%d off=%d, want 1/1", ind.on, ind.off)
	}
}

func TestLoop_ContextCancelled(t *testing.T) {
	cam := &fakeCamera{w: 640, h: 480}
	disp := &fakeDisplay{keys: []int{-1, -1, -1}}
	loop := NewLoop(cam, disp, nil, newParams("."))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := loop.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cam.reads != 0 {
		t.Errorf("reads = %d, want 0 after cancellation", cam.reads)
	}
	assertReleasedOnce(t, cam, disp, loop)
}

func TestLoop_ReadErrorReleases(t *testing.T) {
	cam := &fakeCamera{w: 640, h: 480, readErrAt: 2, readErr: errors.New("device unplugged")}
	disp := &fakeDisplay{keys: []int{-1, -1, -1}}
	loop := NewLoop(cam, disp, nil, newParams("."))

	err := loop.Run(context.Background())
	if err == nil {
		t.Fatal("expected read error, got nil")
	}
	if !strings.Contains(err.Error(), "device unplugged") {
		t.Errorf("error = %q, want the device error", err)
	}
	assertReleasedOnce(t, cam, disp, loop)
}

func TestLoop_EmptyFramesSkipped(t *testing.T) {
	cam := &fakeCamera{w: 640, h: 480, emptyReads: 2}
	disp := &fakeDisplay{keys: []int{-1, -1, KeySave, KeyQuit}}
	loop := NewLoop(cam, disp, nil, newParams("snaps"))

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if disp.shown != 2 {
		t.Errorf("shown = %d, want 2 (empty frames are not displayed)", disp.shown)
	}
	if len(cam.saves) != 1 {
		t.Errorf("saves = %v, want 1", cam.saves)
	}
}

func TestLoop_QuitDuringEmptyFrames(t *testing.T) {
	cam := &fakeCamera{w: 640, h: 480, emptyReads: 100}
	disp := &fakeDisplay{keys: []int{-1, KeyQuit}}
	loop := NewLoop(cam, disp, nil, newParams("."))

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if cam.reads != 2 {
		t.Errorf("reads = %d, want 2", cam.reads)
	}
	assertReleasedOnce(t, cam, disp, loop)
}

func TestLoop_WriteErrorPropagates(t *testing.T) {
	cam := &fakeCamera{w: 640, h: 480, saveErr: errors.New("disk full")}
	disp := &fakeDisplay{keys: []int{KeySave, KeyQuit}}
	ind := &countingIndicator{}
	loop := NewLoop(cam, disp, nil, newParams("snaps"), WithIndicator(ind))

	err := loop.Run(context.Background())
	if err == nil {
		t.Fatal("expected write error, got nil")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("error = %q, want disk full", err)
	}
	if loop.Saved() != 0 {
		t.Errorf("Saved() = %d, want 0 after failed write", loop.Saved())
	}
	if ind.off != ind.on {
		t.Errorf("indicator left on: on=%d off=%d", ind.on, ind.off)
	}
	assertReleasedOnce(t, cam, disp, loop)
}

func TestLoop_RunTwice(t *testing.T) {
	cam := &fakeCamera{w: 640, h: 480}
	disp := &fakeDisplay{keys: []int{KeyQuit}}
	loop := NewLoop(cam, disp, nil, newParams("."))

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := loop.Run(context.Background()); err == nil {
		t.Error("second Run should fail on a terminated loop")
	}
	assertReleasedOnce(t, cam, disp, loop)
}

func TestLoop_PatternCameraWritesFiles(t *testing.T) {
	dir := t.TempDir()
	cam := camera.NewPattern()
	if err := cam.SetResolution(320, 240); err != nil {
		t.Fatal(err)
	}
	disp := &imageDisplay{fakeDisplay: fakeDisplay{keys: []int{KeySave, KeySave, KeyQuit}}}
	params := newParams(dir)
	params.Crosshair = true
	loop := NewLoop(cam, disp, nil, params)

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, name := range []string{"snapshot_320_240_0.jpg", "snapshot_320_240_1.jpg"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("files = %d, want 2", len(entries))
	}
}

// imageDisplay checks that frames carry pixels, like a real window would need.
type imageDisplay struct {
	fakeDisplay
}

func (d *imageDisplay) Show(f camera.Frame) error {
	if _, ok := f.(interface{ Image() image.Image }); !ok {
		return errors.New("frame has no pixels")
	}
	return d.fakeDisplay.Show(f)
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		Initializing: "initializing",
		Streaming:    "streaming",
		Terminated:   "terminated",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(s), s.String(), want)
		}
	}
	if !strings.Contains(State(9).String(), "9") {
		t.Errorf("unknown state should print its value")
	}
}

// failingIndicator fails every call, like an LED on a broken GPIO line.
type failingIndicator struct {
	calls int
}

func (i *failingIndicator) On() error  { i.calls++; return errors.New("gpio write failed") }
func (i *failingIndicator) Off() error { i.calls++; return errors.New("gpio write failed") }

func TestLoop_IndicatorErrorDoesNotStopSave(t *testing.T) {
	cam := &fakeCamera{w: 640, h: 480}
	disp := &fakeDisplay{keys: []int{KeySave, KeyQuit}}
	ind := &failingIndicator{}
	loop := NewLoop(cam, disp, nil, newParams("snaps"), WithIndicator(ind))

	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(cam.saves) != 1 || loop.Saved() != 1 {
		t.Errorf("saves = %v, Saved() = %d, want one snapshot", cam.saves, loop.Saved())
	}
	if ind.calls != 2 {
		t.Errorf("indicator calls = %d, want on and off", ind.calls)
	}
}
