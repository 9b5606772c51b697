package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/BadgerOps/siteport/internal/format"
	"github.com/BadgerOps/siteport/internal/importerr"
	"github.com/dustin/go-humanize"
)

// FreeSpaceFunc reports available bytes on the filesystem holding path.
type FreeSpaceFunc func(path string) (uint64, error)

// LookPathFunc resolves an executable name, like exec.LookPath.
type LookPathFunc func(file string) (string, error)

// DefaultSpaceFactor is the multiple of the archive size that must be free
// in the work directory before extraction.
const DefaultSpaceFactor = 3

// RequiredSpace returns factor × size in bytes.
func RequiredSpace(size int64, factor float64) uint64 {
	if factor < 1 {
		factor = DefaultSpaceFactor
	}
	if size <= 0 {
		return 0
	}
	return uint64(float64(size) * factor)
}

// preflight runs every check that must pass before the sandbox is created:
// adapter tools on PATH, free space in the work dir, and a reachable site.
func (e *Engine) preflight(ctx context.Context, run *Run, adapter format.Adapter) error {
	run.Tracker.SetPhase(PhasePreflight, "checking dependencies")

	for _, dep := range adapter.Dependencies() {
		bin := dep
		if mapped, ok := e.opts.Binaries[dep]; ok && mapped != "" {
			bin = mapped
		}
		p, err := e.lookPath(bin)
		if err != nil {
			return importerr.Newf(importerr.Executor, "preflight",
				"%s requires %q: %v", adapter.Name(), bin, err).
				WithRemediation("install the tool or point site.wp_binary at it")
		}
		e.logger.Debug("dependency resolved", "dependency", dep, "path", p)
	}

	if err := os.MkdirAll(e.opts.WorkDir, 0o755); err != nil {
		return importerr.New(importerr.Resource, "preflight", fmt.Errorf("creating work dir: %w", err))
	}

	required := RequiredSpace(run.Archive.Size(), e.factor())
	free, err := e.freeSpace(e.opts.WorkDir)
	if err != nil {
		run.warn("preflight", fmt.Sprintf("free space unknown for %s: %v", e.opts.WorkDir, err))
	} else if free < required {
		return importerr.Newf(importerr.Resource, "preflight",
			"%s free in %s, %s required (%.0f× archive size %s)",
			humanize.Bytes(free), e.opts.WorkDir, humanize.Bytes(required),
			e.factor(), humanize.Bytes(uint64(run.Archive.Size()))).
			WithRemediation("free disk space or set import.work_dir to a larger filesystem")
	} else {
		e.logger.Info("free space ok", "free", humanize.Bytes(free), "required", humanize.Bytes(required))
	}

	installed, err := e.exec.IsInstalled(ctx)
	if err != nil {
		return importerr.New(importerr.Executor, "preflight", fmt.Errorf("checking site: %w", err))
	}
	if !installed {
		return importerr.Newf(importerr.Executor, "preflight",
			"no WordPress installation found at %s", e.opts.SitePath).
			WithRemediation("install WordPress at the destination first, or pass --site")
	}
	return nil
}

func (e *Engine) factor() float64 {
	if e.opts.SpaceFactor < 1 {
		return DefaultSpaceFactor
	}
	return e.opts.SpaceFactor
}

func (e *Engine) lookPath(file string) (string, error) {
	if e.opts.LookPath != nil {
		return e.opts.LookPath(file)
	}
	return exec.LookPath(file)
}

func (e *Engine) freeSpace(path string) (uint64, error) {
	if e.opts.FreeSpace != nil {
		return e.opts.FreeSpace(path)
	}
	return DiskFree(path)
}
