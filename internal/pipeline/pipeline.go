// Package pipeline executes update decisions.
//
// A run moves through three phases: sequential pre-processing (target
// recomputation, location validation, the confirmation gate), a bounded
// parallel install phase, and a sequential cleanup phase that removes
// superseded version directories. Directory creation and deletion are
// confined to exactly one phase each so no two workers ever mutate the same
// on-disk version tree concurrently.
package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackwell-systems/pkgup/internal/logging"
	"github.com/blackwell-systems/pkgup/internal/repo"
	"github.com/blackwell-systems/pkgup/internal/resolver"
	"github.com/blackwell-systems/pkgup/internal/version"
)

// ErrNoBackend aborts a run that has no way to install anything.
var ErrNoBackend = errors.New("no usable package backend: no repositories and no legacy manager")

// Outcome is the terminal per-package record of one pipeline run.
type Outcome struct {
	Name           string
	Target         string
	UpdatedPaths   []string
	FailedPaths    []string
	CleanedPaths   []string
	Skipped        bool
	SkipReason     string
	OverallSuccess bool
}

// Pipeline executes approved update decisions.
type Pipeline struct {
	// Repos maps repository name to its implementation.
	Repos map[string]repo.Repository

	// Legacy is the external package-manager fallback; may be nil.
	Legacy *repo.LegacyManager

	// DefaultInstallRoot is the scope-wide destination for fallback installs.
	DefaultInstallRoot string

	// DoNotClean lists package names whose old versions are never removed.
	DoNotClean []string

	// Clean enables the cleanup phase for successfully updated packages.
	Clean bool

	// Confirm is the per-package confirmation gate, resolved entirely during
	// pre-processing. Nil approves everything.
	Confirm func(resolver.Decision) bool

	// OnProgress, when set, is invoked after each completed install with the
	// completed count, the total and an ETA from the rolling average install
	// duration.
	OnProgress func(completed, total int, eta time.Duration)

	log zerolog.Logger
}

// New creates a Pipeline.
func New() *Pipeline {
	return &Pipeline{log: logging.GetLogger("pipeline")}
}

// task is one approved unit of install work. It carries everything the
// install workers need so no decisions happen inside the pool.
type task struct {
	name       string
	target     version.Version
	targetStr  string
	repository repo.Repository
	locations  []string
	strategies []installStrategy
}

// Run executes the full pipeline and returns one Outcome per input decision.
func (p *Pipeline) Run(ctx context.Context, decisions []resolver.Decision) ([]Outcome, error) {
	p.log = logging.GetLogger("pipeline")
	if len(p.Repos) == 0 && !p.Legacy.Available() {
		return nil, ErrNoBackend
	}

	outcomes := make([]Outcome, len(decisions))
	tasks := p.preProcess(decisions, outcomes)
	p.install(ctx, tasks, outcomes)
	if p.Clean {
		p.clean(ctx, outcomes)
	}
	return outcomes, nil
}

// preProcess is the sequential first phase. Confirmation prompts cannot run
// inside the parallel install phase, so every approve/reject decision is
// resolved here, before any worker starts.
func (p *Pipeline) preProcess(decisions []resolver.Decision, outcomes []Outcome) map[int]*task {
	tasks := make(map[int]*task)

	for i, d := range decisions {
		// The definitive target string combines base and pre-release label.
		targetStr := d.Target.String()
		outcomes[i] = Outcome{Name: d.Name, Target: targetStr}

		// Locations may have disappeared between scan and now.
		var locations []string
		for _, loc := range d.OutdatedLocations {
			if info, err := os.Stat(loc); err == nil && info.IsDir() {
				locations = append(locations, loc)
			} else {
				p.log.Warn().Str("package", d.Name).Str("path", loc).
					Msg("outdated location no longer exists, dropping")
			}
		}
		if len(locations) == 0 {
			outcomes[i].Skipped = true
			outcomes[i].SkipReason = "no outdated locations remain on disk"
			continue
		}

		if p.Confirm != nil && !p.Confirm(d) {
			outcomes[i].Skipped = true
			outcomes[i].SkipReason = "declined"
			continue
		}

		t := &task{
			name:      d.Name,
			target:    d.Target,
			targetStr: targetStr,
			locations: locations,
		}
		if rp, found := p.Repos[d.Repository]; found {
			t.repository = rp
		}
		t.strategies = p.strategiesFor(t)
		if len(t.strategies) == 0 {
			outcomes[i].Skipped = true
			outcomes[i].SkipReason = "no install mechanism available"
			continue
		}
		tasks[i] = t
	}

	return tasks
}

// install is the parallel second phase: a bounded worker pool, one task (one
// package) per worker at a time.
func (p *Pipeline) install(ctx context.Context, tasks map[int]*task, outcomes []Outcome) {
	if len(tasks) == 0 {
		return
	}

	workers := 2 * runtime.GOMAXPROCS(0)
	if workers < 4 {
		workers = 4
	}
	if workers > len(tasks) {
		workers = len(tasks)
	}

	tracker := newProgressTracker(len(tasks), p.OnProgress)

	type unit struct {
		index int
		t     *task
	}
	work := make(chan unit)
	done := make(chan struct{})

	for i := 0; i < workers; i++ {
		go func() {
			for u := range work {
				start := time.Now()
				updated, failed := p.installOne(ctx, u.t)
				// Each worker writes only its own outcome slot.
				outcomes[u.index].UpdatedPaths = updated
				outcomes[u.index].FailedPaths = failed
				outcomes[u.index].OverallSuccess = len(failed) == 0 && len(updated) > 0
				tracker.observe(time.Since(start))
				done <- struct{}{}
			}
		}()
	}

	go func() {
		for i, t := range tasks {
			work <- unit{index: i, t: t}
		}
		close(work)
	}()

	for range tasks {
		<-done
	}
}

// installOne updates every outdated location of one package, walking the
// strategy chain per location until one verifies.
func (p *Pipeline) installOne(ctx context.Context, t *task) (updated, failed []string) {
	for _, loc := range t.locations {
		ok := false
		for _, strat := range t.strategies {
			if err := strat.Install(ctx, t, loc); err != nil {
				p.log.Debug().Err(err).Str("package", t.name).Str("strategy", strat.Name()).
					Str("location", loc).Msg("install mechanism failed")
			}
			// Success is presence of the target version, regardless of what
			// the mechanism reported.
			if strat.Verify(t, loc) {
				p.log.Info().Str("package", t.name).Str("version", t.targetStr).
					Str("strategy", strat.Name()).Str("location", loc).Msg("installed")
				ok = true
				break
			}
		}
		if ok {
			updated = append(updated, loc)
		} else {
			p.log.Error().Str("package", t.name).Str("location", loc).
				Msg("all install mechanisms exhausted")
			failed = append(failed, loc)
		}
	}
	return updated, failed
}

// clean is the sequential third phase: remove superseded version directories
// for every package whose install succeeded. Sequential on purpose: two
// workers must never race to delete and write the same directory tree.
func (p *Pipeline) clean(ctx context.Context, outcomes []Outcome) {
	protected := make(map[string]struct{}, len(p.DoNotClean))
	for _, name := range p.DoNotClean {
		protected[strings.ToLower(name)] = struct{}{}
	}

	for i := range outcomes {
		o := &outcomes[i]
		if o.Skipped || len(o.UpdatedPaths) == 0 {
			continue
		}
		if _, keep := protected[strings.ToLower(o.Name)]; keep {
			p.log.Debug().Str("package", o.Name).Msg("on do-not-clean list, keeping old versions")
			continue
		}

		for _, base := range o.UpdatedPaths {
			cleaned := p.cleanLocation(ctx, o.Name, base, o.Target)
			o.CleanedPaths = append(o.CleanedPaths, cleaned...)
		}
	}
}

// cleanLocation removes every version directory under base except the one
// just installed. Managed uninstall is tried first; when the directory is
// still present afterwards a forced recursive delete follows.
func (p *Pipeline) cleanLocation(ctx context.Context, name, base, keep string) []string {
	entries, err := os.ReadDir(base)
	if err != nil {
		p.log.Warn().Err(err).Str("path", base).Msg("cannot enumerate version directories")
		return nil
	}

	var cleaned []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		v, ok := version.Parse(entry.Name())
		if !ok {
			continue
		}
		if entry.Name() == keep || v.String() == keep {
			continue
		}

		dir := filepath.Join(base, entry.Name())

		if p.Legacy.Available() {
			if err := p.Legacy.Uninstall(ctx, name, v); err != nil {
				p.log.Debug().Err(err).Str("package", name).Str("version", entry.Name()).
					Msg("managed uninstall failed")
			}
		}

		// The managed call may have reported success without removing the
		// directory; force-delete whatever is left.
		if _, err := os.Stat(dir); err == nil {
			if err := os.RemoveAll(dir); err != nil {
				p.log.Warn().Err(err).Str("path", dir).Msg("failed to remove superseded version")
				continue
			}
		}
		cleaned = append(cleaned, dir)
	}
	return cleaned
}
