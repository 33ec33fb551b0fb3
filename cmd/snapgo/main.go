package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"

	"github.com/cjeanneret/SnapGo/internal/config"
	"github.com/cjeanneret/SnapGo/internal/debug"
	"github.com/cjeanneret/SnapGo/internal/hw/camera"
	"github.com/cjeanneret/SnapGo/internal/hw/cv"
	"github.com/cjeanneret/SnapGo/internal/hw/driver"
	"github.com/cjeanneret/SnapGo/internal/hw/gpio"
	"github.com/cjeanneret/SnapGo/internal/hw/telemetry"
	"github.com/cjeanneret/SnapGo/internal/hw/v4l"
	"github.com/cjeanneret/SnapGo/internal/logic/capture"
	"github.com/cjeanneret/SnapGo/internal/output"
)

// options holds the raw command line values.
type options struct {
	folder     string
	name       string
	dwidth     int
	dheight    int
	raspi      bool
	cross      bool
	addPose    bool
	configPath string
	cameraType string
	quality    int
	debugLevel int
	probe      bool
}

func newFlagSet(o *options, errOut io.Writer) *flag.FlagSet {
	def := config.Default()
	fs := flag.NewFlagSet("snapgo", flag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.StringVar(&o.folder, "folder", def.Output.Folder, "output folder for snapshots (created if missing)")
	fs.StringVar(&o.name, "name", def.Output.Name, "file name prefix of the snapshots")
	fs.IntVar(&o.dwidth, "dwidth", 0, "requested frame width in px (0 = device default)")
	fs.IntVar(&o.dheight, "dheight", 0, "requested frame height in px (0 = device default)")
	fs.BoolVar(&o.raspi, "raspi", false, "run on the Raspberry Pi (load camera driver, GPIO, telemetry)")
	fs.BoolVar(&o.cross, "cross", false, "draw the alignment crosshair")
	fs.BoolVar(&o.addPose, "addpose", false, "add attitude and altitude to file names (requires -raspi)")
	fs.StringVar(&o.configPath, "config", "", "optional YAML config file; explicit flags override it")
	fs.StringVar(&o.cameraType, "camera", def.Camera.Type, "camera backend: opencv or pattern")
	fs.IntVar(&o.quality, "quality", def.Output.JPEGQuality, "JPEG quality (1-100)")
	fs.IntVar(&o.debugLevel, "debug", def.Defaults.DebugLevel, "debug level 0-4")
	fs.BoolVar(&o.probe, "probe", false, "list the V4L2 formats and frame sizes of the camera device and exit")
	return fs
}

// parseArgs parses the command line. A bool flag may be followed by a separate
// True/False word ("-cross True"); any other leftover argument is an error.
func parseArgs(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(joinBoolValues(fs, args)); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		err := errors.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
		fmt.Fprintln(fs.Output(), err)
		fs.Usage()
		return err
	}
	return nil
}

// joinBoolValues rewrites "-flag True" into "-flag=True" for bool flags.
func joinBoolValues(fs *flag.FlagSet, args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		out = append(out, arg)
		if arg == "--" {
			out = append(out, args[i+1:]...)
			break
		}
		name := strings.TrimLeft(arg, "-")
		if name == arg || name == "" || strings.Contains(name, "=") {
			continue
		}
		f := fs.Lookup(name)
		if f == nil || i+1 >= len(args) {
			continue
		}
		if !isBoolFlag(f) {
			// The next word is this flag's value.
			out = append(out, args[i+1])
			i++
			continue
		}
		if _, err := strconv.ParseBool(args[i+1]); err == nil {
			out[len(out)-1] = arg + "=" + args[i+1]
			i++
		}
	}
	return out
}

func isBoolFlag(f *flag.Flag) bool {
	b, ok := f.Value.(interface{ IsBoolFlag() bool })
	return ok && b.IsBoolFlag()
}

// resolveConfig loads the optional config file, then applies the flags set on the command line.
func resolveConfig(fs *flag.FlagSet, o options) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Read(o.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "folder":
			cfg.Output.Folder = o.folder
		case "name":
			cfg.Output.Name = o.name
		case "dwidth":
			cfg.Camera.Width = o.dwidth
		case "dheight":
			cfg.Camera.Height = o.dheight
		case "raspi":
			cfg.Hardware.Raspi = o.raspi
		case "cross":
			cfg.Capture.Crosshair = o.cross
		case "addpose":
			cfg.Capture.AddPose = o.addPose
		case "camera":
			cfg.Camera.Type = o.cameraType
		case "quality":
			cfg.Output.JPEGQuality = o.quality
		case "debug":
			cfg.Defaults.DebugLevel = o.debugLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func main() {
	var o options
	fs := newFlagSet(&o, os.Stderr)
	if err := parseArgs(fs, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	cfg, err := resolveConfig(fs, o)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	debug.Init(cfg.Defaults.DebugLevel)

	if o.probe {
		if err := printModes(os.Stdout, cfg.Camera.Device); err != nil {
			log.Fatalf("probe failed: %v", err)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatalf("capture failed: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	debug.Section("Initialization")
	debug.Value("Mode", modeLabel(cfg))
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.PrintStruct("Configuration", cfg)

	var opts []capture.Option

	if cfg.Hardware.Raspi {
		debug.Step(1, "Loading camera driver")
		if err := driver.NewLoader(nil).Load(ctx, cfg.Hardware.DriverModule); err != nil {
			// The module may be built in or already loaded.
			debug.Warn("%v", err)
		}

		if cfg.Hardware.ShutterPin > 0 || cfg.Hardware.LEDPin > 0 {
			debug.Step(2, "Initializing GPIO driver")
			gpioDriver, err := gpio.NewDriver(cfg.Hardware.MockGPIO)
			if err != nil {
				return errors.Wrap(err, "init GPIO")
			}
			defer func() {
				if err := gpioDriver.Close(); err != nil {
					log.Printf("closing GPIO driver failed: %v", err)
				}
			}()
			hwOpts, err := gpioOptions(gpioDriver, cfg.Hardware)
			if err != nil {
				return err
			}
			opts = append(opts, hwOpts...)
		}
	}

	var pose telemetry.Source = telemetry.Nop{}
	if cfg.PoseEnabled() {
		debug.Step(3, "Connecting to the flight controller")
		debug.Value("Telemetry device", cfg.Telemetry.Device)
		link, err := telemetry.Connect(ctx, telemetry.Config{
			Device:       cfg.Telemetry.Device,
			Baud:         cfg.Telemetry.Baud,
			ReadyTimeout: cfg.ReadyTimeout(),
			StreamRateHz: cfg.Telemetry.StreamRateHz,
		})
		if err != nil {
			return errors.Wrap(err, "connect telemetry")
		}
		defer func() {
			if err := link.Close(); err != nil {
				log.Printf("closing telemetry failed: %v", err)
			}
		}()
		pose = link
	}

	debug.Step(4, "Preparing output folder")
	res, err := output.EnsureDir(cfg.Output.Folder)
	if err != nil {
		return err
	}
	debug.Info("Output folder %s: %s", cfg.Output.Folder, res)

	debug.Step(5, "Opening camera")
	cam, err := newCameraFromConfig(cfg)
	if err != nil {
		return err
	}
	if err := applyResolution(cam, cfg); err != nil {
		cam.Close()
		return err
	}

	loop := capture.NewLoop(cam, cv.NewDisplay(cv.WindowName), pose, capture.Params{
		Folder:      cfg.Output.Folder,
		Name:        cfg.Output.Name,
		Crosshair:   cfg.Capture.Crosshair,
		JPEGQuality: cfg.Output.JPEGQuality,
		KeyWait:     cfg.KeyWait(),
	}, opts...)

	debug.Section("Capture")
	err = loop.Run(ctx)
	debug.Summary("Session Summary")
	debug.Info("Files saved: %d", loop.Saved())
	return err
}

// newCameraFromConfig selects a camera implementation based on configuration.
func newCameraFromConfig(cfg config.Config) (camera.Camera, error) {
	debug.Value("Camera type", cfg.Camera.Type)
	switch cfg.Camera.Type {
	case config.CameraPattern:
		return camera.NewPattern(), nil
	case config.CameraOpenCV:
		c, err := cv.OpenCamera(cfg.Camera.Index)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, errors.Errorf("unsupported camera type: %s", cfg.Camera.Type)
	}
}

// applyResolution requests the configured size when both sides are set.
// For a real device the V4L2 modes are checked first and a mismatch only warns.
func applyResolution(cam camera.Camera, cfg config.Config) error {
	if !cfg.CustomResolution() {
		w, h := cam.Size()
		debug.Value("Resolution", fmt.Sprintf("%dx%d (device default)", w, h))
		return nil
	}

	w, h := cfg.Camera.Width, cfg.Camera.Height
	if cfg.Camera.Type == config.CameraOpenCV {
		modes, err := v4l.Probe(cfg.Camera.Device)
		switch {
		case err != nil:
			debug.Verbose("V4L2 probe skipped: %v", err)
		case !v4l.SupportedByAny(modes, w, h):
			debug.Warn("%dx%d is not listed by %s, the driver will pick the closest mode", w, h, cfg.Camera.Device)
		}
	}

	if err := cam.SetResolution(w, h); err != nil {
		return errors.Wrapf(err, "set resolution %dx%d", w, h)
	}
	gw, gh := cam.Size()
	debug.Value("Resolution", fmt.Sprintf("%dx%d", gw, gh))
	return nil
}

// gpioOptions builds the optional shutter button and status LED.
func gpioOptions(g gpio.Driver, hw config.HardwareConfig) ([]capture.Option, error) {
	var opts []capture.Option
	if hw.ShutterPin > 0 {
		btn, err := gpio.NewButton(g, hw.ShutterPin)
		if err != nil {
			return nil, errors.Wrap(err, "setup shutter button")
		}
		debug.Value("Shutter pin", hw.ShutterPin)
		opts = append(opts, capture.WithTrigger(btn))
	}
	if hw.LEDPin > 0 {
		led, err := gpio.NewLED(g, hw.LEDPin)
		if err != nil {
			return nil, errors.Wrap(err, "setup status LED")
		}
		debug.Value("LED pin", hw.LEDPin)
		opts = append(opts, capture.WithIndicator(led))
	}
	return opts, nil
}

// printModes writes the formats and frame sizes the V4L2 device reports.
func printModes(w io.Writer, device string) error {
	modes, err := v4l.Probe(device)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", device)
	for _, m := range modes {
		fmt.Fprintf(w, "  %s\n", m)
		for _, s := range m.Sizes {
			if s.StepWidth == 0 && s.StepHeight == 0 {
				fmt.Fprintf(w, "    %dx%d\n", s.MaxWidth, s.MaxHeight)
				continue
			}
			fmt.Fprintf(w, "    %dx%d - %dx%d (step %dx%d)\n",
				s.MinWidth, s.MinHeight, s.MaxWidth, s.MaxHeight, s.StepWidth, s.StepHeight)
		}
	}
	return nil
}

func modeLabel(cfg config.Config) string {
	if cfg.Hardware.Raspi {
		return "raspi"
	}
	return "desktop"
}
