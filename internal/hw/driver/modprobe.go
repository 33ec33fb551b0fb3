package driver

import (
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/cjeanneret/SnapGo/internal/debug"
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Loader binds kernel modules, e.g. the Raspberry Pi camera V4L2 driver.
type Loader struct {
	run Runner
}

// NewLoader creates a Loader; a nil runner means ExecRunner.
func NewLoader(run Runner) *Loader {
	if run == nil {
		run = ExecRunner
	}
	return &Loader{run: run}
}

// Load runs "sudo modprobe <module>".
func (l *Loader) Load(ctx context.Context, module string) error {
	if module == "" {
		return errors.New("no kernel module given")
	}
	debug.Info("Loading kernel module %s", module)

	out, err := l.run(ctx, "sudo", "modprobe", module)
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if msg != "" {
			return errors.Wrapf(err, "modprobe %s: %s", module, msg)
		}
		return errors.Wrapf(err, "modprobe %s", module)
	}
	debug.Verbose("Kernel module %s loaded", module)
	return nil
}
