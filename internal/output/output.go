// Package output owns the snapshot folder and the file naming convention.
package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// DirResult tells whether EnsureDir had to create the folder.
type DirResult int

const (
	DirExisted DirResult = iota
	DirCreated
)

func (r DirResult) String() string {
	switch r {
	case DirCreated:
		return "created"
	case DirExisted:
		return "existed"
	default:
		return fmt.Sprintf("DirResult(%d)", int(r))
	}
}

// EnsureDir creates path and its parents if needed.
// An existing directory is not an error; an existing non-directory is.
func EnsureDir(path string) (DirResult, error) {
	info, err := os.Stat(path)
	switch {
	case err == nil:
		if !info.IsDir() {
			return DirExisted, errors.Errorf("output path %q exists and is not a directory", path)
		}
		return DirExisted, nil
	case !os.IsNotExist(err):
		return DirExisted, errors.Wrapf(err, "stat output folder %q", path)
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return DirExisted, errors.Wrapf(err, "create output folder %q", path)
	}
	return DirCreated, nil
}

// Pose is the attitude (radians) and relative altitude (metres) embedded in a file name.
type Pose struct {
	Roll     float64
	Pitch    float64
	Yaw      float64
	Altitude float64
}

// SnapshotName builds <folder>/<name>_<w>_<h>_[p<pitch>_r<roll>_y<yaw>_a<alt>_]<n>.jpg.
// pose may be nil when no telemetry is attached.
func SnapshotName(folder, name string, w, h int, pose *Pose, n int) string {
	base := fmt.Sprintf("%s_%d_%d_", name, w, h)
	if pose != nil {
		base += fmt.Sprintf("p%.3f_r%.3f_y%.3f_a%.3f_", pose.Pitch, pose.Roll, pose.Yaw, pose.Altitude)
	}
	base += fmt.Sprintf("%d.jpg", n)
	return filepath.Join(folder, base)
}
