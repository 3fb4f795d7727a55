package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"github.com/blackwell-systems/pkgup/internal/repo"
)

// installStrategy is one mechanism for getting a package version onto disk.
// The pipeline walks an ordered chain of strategies per location until one
// verifies; which strategy succeeded is recorded in the logs for diagnostics.
type installStrategy interface {
	Name() string
	Install(ctx context.Context, t *task, location string) error
	Verify(t *task, location string) bool
}

// strategiesFor builds the fallback chain for a task: direct placement into
// the outdated location, then a scope-wide install to the default root, then
// the legacy external manager.
func (p *Pipeline) strategiesFor(t *task) []installStrategy {
	var chain []installStrategy
	if t.repository != nil {
		chain = append(chain, &directStrategy{rp: t.repository})
		if p.DefaultInstallRoot != "" {
			chain = append(chain, &scopeStrategy{rp: t.repository, root: p.DefaultInstallRoot})
		}
	}
	if p.Legacy.Available() {
		chain = append(chain, &legacyStrategy{m: p.Legacy, root: p.DefaultInstallRoot})
	}
	return chain
}

func versionDirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// directStrategy installs straight into the outdated location, preserving the
// exact on-disk layout.
type directStrategy struct {
	rp repo.Repository
}

func (s *directStrategy) Name() string { return "direct" }

func (s *directStrategy) Install(ctx context.Context, t *task, location string) error {
	return s.rp.Install(ctx, t.name, t.target, location)
}

func (s *directStrategy) Verify(t *task, location string) bool {
	return versionDirExists(filepath.Join(location, t.targetStr))
}

// scopeStrategy installs to the default scope-wide root when the original
// location cannot be written.
type scopeStrategy struct {
	rp   repo.Repository
	root string
}

func (s *scopeStrategy) Name() string { return "scope" }

func (s *scopeStrategy) Install(ctx context.Context, t *task, location string) error {
	return s.rp.Install(ctx, t.name, t.target, filepath.Join(s.root, t.name))
}

func (s *scopeStrategy) Verify(t *task, location string) bool {
	return versionDirExists(filepath.Join(s.root, t.name, t.targetStr))
}

// legacyStrategy hands the install to the external package manager, which
// picks its own destination.
type legacyStrategy struct {
	m    *repo.LegacyManager
	root string
}

func (s *legacyStrategy) Name() string { return "legacy" }

func (s *legacyStrategy) Install(ctx context.Context, t *task, location string) error {
	return s.m.Install(ctx, t.name, t.target)
}

func (s *legacyStrategy) Verify(t *task, location string) bool {
	if versionDirExists(filepath.Join(location, t.targetStr)) {
		return true
	}
	if s.root != "" && versionDirExists(filepath.Join(s.root, t.name, t.targetStr)) {
		return true
	}
	return false
}
