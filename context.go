// Copyright the forge authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package forge is the top-level orchestration layer: it wires the
// manifest reader, source registry, resolver, lockfile codec, unit
// graph builder, job scheduler, cache tracker and cross-process lock
// manager into the handful of operations a driver (cmd/forge) actually
// invokes -- resolve, build, gc. None of the core's invariants live
// here; this package only sequences calls into internal/*.
package forge

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/forgelang/forge/internal/cache"
	"github.com/forgelang/forge/internal/diag"
	"github.com/forgelang/forge/internal/filelock"
	"github.com/forgelang/forge/internal/manifest"
)

// ManifestName and LockName are the project's conventional on-disk file
// names, mirroring manifest.FileName/lockfile's own convention.
const (
	ManifestName = manifest.FileName
	LockName     = "Forge.lock"
)

// Ctx carries the process-wide resources every operation shares: where
// the global cache lives, its tracker and lock manager, and a
// diagnostics sink operations append to rather than returning ad hoc
// errors for anything short of a hard failure.
type Ctx struct {
	CacheDir string

	cacheTracker *cache.Tracker
	lockManager  *filelock.Manager

	Diagnostics *diag.Sink
}

// NewContext opens the global cache at cacheDir (creating it if
// necessary) and returns a Ctx ready to load projects.
func NewContext(cacheDir string) (*Ctx, error) {
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, errors.Wrap(err, "determining default cache directory")
		}
		cacheDir = filepath.Join(home, ".forge")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating cache directory %q", cacheDir)
	}

	tracker, err := cache.Open(cacheDir)
	if err != nil {
		return nil, errors.Wrap(err, "opening global cache tracker")
	}
	lockMgr, err := filelock.NewManager(cacheDir)
	if err != nil {
		tracker.Close()
		return nil, errors.Wrap(err, "setting up cache lock manager")
	}

	return &Ctx{
		CacheDir:     cacheDir,
		cacheTracker: tracker,
		lockManager:  lockMgr,
		Diagnostics:  diag.NewSink(),
	}, nil
}

// Close releases the resources NewContext opened.
func (c *Ctx) Close() error {
	return c.cacheTracker.Close()
}

// AcquireCacheLock takes a cross-process lock against the global cache
// in the given mode (spec.md §4.I, component I), reporting progress to
// the Diagnostics sink if another process is already holding it.
func (c *Ctx) AcquireCacheLock(mode filelock.Mode) (*filelock.Guard, error) {
	return c.lockManager.Acquire(mode, func(mode filelock.Mode, waited bool) {
		if !waited {
			return
		}
		c.Diagnostics.Emit(diag.Diagnostic{
			Kind:    diag.KindNote,
			Message: "waiting on another forge process to release the cache " + mode.String() + " lock",
		})
	})
}

// LoadProject locates and parses the manifest at (or above) path,
// searching upward the way findProjectRoot does, and reads an adjacent
// lockfile if one exists.
func (c *Ctx) LoadProject(path string) (*Project, error) {
	root, err := findProjectRoot(path)
	if err != nil {
		return nil, err
	}

	m, err := manifest.ReadFile(filepath.Join(root, ManifestName))
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", ManifestName)
	}

	p := &Project{
		Ctx:      c,
		AbsRoot:  root,
		Manifest: m,
	}

	lockPath := filepath.Join(root, LockName)
	if _, err := os.Stat(lockPath); err == nil {
		lr, err := readLockFile(lockPath, root)
		if err != nil {
			return nil, errors.Wrapf(err, "loading %s", LockName)
		}
		p.Lock = lr
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "checking for %s", LockName)
	}

	return p, nil
}

// findProjectRoot searches upward from path (or the working directory,
// if path is empty) for a directory containing ManifestName.
func findProjectRoot(path string) (string, error) {
	dir := path
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", errors.Wrap(err, "getting working directory")
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", errors.Wrapf(err, "resolving %q", dir)
	}

	for {
		if _, err := os.Stat(filepath.Join(abs, ManifestName)); err == nil {
			return abs, nil
		}
		parent := filepath.Dir(abs)
		if parent == abs {
			return "", errors.Errorf("no %s found in %q or any parent directory", ManifestName, dir)
		}
		abs = parent
	}
}
