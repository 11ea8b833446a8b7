// Package run locates the storage of a run and the files that belong to it.
package run

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Artifact names used by the capture subsystem.
const (
	OutputName      = "output"
	OutputIndexName = "output.index"
)

// ErrNoCurrentRun is returned when no run directory is configured.
var ErrNoCurrentRun = errors.New("no current run")

// Run is the unit of work whose output is captured. Dir is the storage root
// for every artifact of the run.
type Run struct {
	ID  string
	Dir string
}

// New returns a Run rooted at dir.
func New(id, dir string) *Run {
	return &Run{ID: id, Dir: dir}
}

// PathFor returns the path of the named artifact inside the run directory.
func (r *Run) PathFor(name string) string {
	return filepath.Join(r.Dir, name)
}

// Init creates the run directory if it does not exist yet.
func (r *Run) Init() error {
	if err := os.MkdirAll(r.Dir, 0700); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	return nil
}

// Current returns the run described by cfg. It fails with ErrNoCurrentRun
// when cfg has no run directory.
func Current(cfg Config) (*Run, error) {
	if cfg.RunDir == "" {
		return nil, ErrNoCurrentRun
	}
	return New(cfg.RunID, cfg.RunDir), nil
}

// CurrentFromEnv is Current with the configuration read from the environment.
func CurrentFromEnv() (*Run, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return Current(cfg)
}
