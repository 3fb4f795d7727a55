package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/blackwell-systems/pkgup/internal/repo"
	"github.com/blackwell-systems/pkgup/internal/resolver"
	"github.com/blackwell-systems/pkgup/internal/version"
)

// fakeRepo installs by creating dest/<version>/ on disk. Destinations listed
// in refuse fail instead.
type fakeRepo struct {
	name   string
	refuse map[string]bool
}

func (f *fakeRepo) Name() string { return f.name }

func (f *fakeRepo) FindLatest(ctx context.Context, name string) (version.Version, error) {
	return version.Version{}, repo.ErrNotFound
}

func (f *fakeRepo) FindLatestPreRelease(ctx context.Context, name string) (version.Version, error) {
	return version.Version{}, repo.ErrNotFound
}

func (f *fakeRepo) Install(ctx context.Context, name string, ver version.Version, dest string) error {
	if f.refuse[dest] {
		return errors.New("destination refused")
	}
	return os.MkdirAll(filepath.Join(dest, ver.String()), 0755)
}

func (f *fakeRepo) Uninstall(ctx context.Context, name string, ver version.Version) error {
	return repo.ErrUnsupported
}

func mustVersion(t *testing.T, raw string) version.Version {
	t.Helper()
	v, ok := version.Parse(raw)
	if !ok {
		t.Fatalf("bad test version %q", raw)
	}
	return v
}

// installedBase creates a base path holding the given versions.
func installedBase(t *testing.T, root, name string, versions ...string) string {
	t.Helper()
	base := filepath.Join(root, name)
	for _, v := range versions {
		if err := os.MkdirAll(filepath.Join(base, v), 0755); err != nil {
			t.Fatal(err)
		}
	}
	return base
}

func decisionFor(name, target string, locations ...string) resolver.Decision {
	v, _ := version.Parse(target)
	return resolver.Decision{
		Name:              name,
		Target:            v,
		Repository:        "main",
		OutdatedLocations: locations,
	}
}

func newTestPipeline(rp repo.Repository) *Pipeline {
	p := New()
	p.Repos = map[string]repo.Repository{"main": rp}
	return p
}

func TestRunInstallsAtEveryOutdatedLocation(t *testing.T) {
	root := t.TempDir()
	a := installedBase(t, root, "a/Foo", "1.0.0")
	b := installedBase(t, root, "b/Foo", "1.0.0")

	p := newTestPipeline(&fakeRepo{name: "main"})
	outcomes, err := p.Run(context.Background(), []resolver.Decision{
		decisionFor("Foo", "1.1.0", a, b),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	o := outcomes[0]
	if !o.OverallSuccess {
		t.Errorf("expected success, got %+v", o)
	}
	if len(o.UpdatedPaths) != 2 || len(o.FailedPaths) != 0 {
		t.Errorf("updated=%v failed=%v, want both updated", o.UpdatedPaths, o.FailedPaths)
	}
	for _, base := range []string{a, b} {
		if _, err := os.Stat(filepath.Join(base, "1.1.0")); err != nil {
			t.Errorf("target version missing at %s", base)
		}
	}
}

func TestRunPartialFailure(t *testing.T) {
	root := t.TempDir()
	x := installedBase(t, root, "x/Foo", "1.0.0")
	y := installedBase(t, root, "y/Foo", "1.0.0")

	// y refuses the direct install and no fallback mechanism is configured.
	p := newTestPipeline(&fakeRepo{name: "main", refuse: map[string]bool{y: true}})
	outcomes, err := p.Run(context.Background(), []resolver.Decision{
		decisionFor("Foo", "1.1.0", x, y),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	o := outcomes[0]
	if o.OverallSuccess {
		t.Error("partial failure must not count as overall success")
	}
	if len(o.UpdatedPaths) != 1 || o.UpdatedPaths[0] != x {
		t.Errorf("UpdatedPaths = %v, want [%s]", o.UpdatedPaths, x)
	}
	if len(o.FailedPaths) != 1 || o.FailedPaths[0] != y {
		t.Errorf("FailedPaths = %v, want [%s]", o.FailedPaths, y)
	}
}

func TestRunScopeFallback(t *testing.T) {
	root := t.TempDir()
	blocked := installedBase(t, root, "blocked/Foo", "1.0.0")
	defaultRoot := filepath.Join(root, "default")

	p := newTestPipeline(&fakeRepo{name: "main", refuse: map[string]bool{blocked: true}})
	p.DefaultInstallRoot = defaultRoot

	outcomes, err := p.Run(context.Background(), []resolver.Decision{
		decisionFor("Foo", "1.1.0", blocked),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	o := outcomes[0]
	if !o.OverallSuccess {
		t.Fatalf("expected scope fallback to succeed, got %+v", o)
	}
	if _, err := os.Stat(filepath.Join(defaultRoot, "Foo", "1.1.0")); err != nil {
		t.Errorf("scope-wide install missing: %v", err)
	}
}

func TestRunConfirmationGate(t *testing.T) {
	root := t.TempDir()
	a := installedBase(t, root, "a/Foo", "1.0.0")
	b := installedBase(t, root, "b/Bar", "1.0.0")

	var asked []string
	p := newTestPipeline(&fakeRepo{name: "main"})
	p.Confirm = func(d resolver.Decision) bool {
		asked = append(asked, d.Name)
		return d.Name != "Bar"
	}

	outcomes, err := p.Run(context.Background(), []resolver.Decision{
		decisionFor("Foo", "1.1.0", a),
		decisionFor("Bar", "2.0.0", b),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(asked) != 2 {
		t.Errorf("confirmation asked %d times, want 2", len(asked))
	}
	if outcomes[0].Skipped || !outcomes[0].OverallSuccess {
		t.Errorf("approved package not installed: %+v", outcomes[0])
	}
	if !outcomes[1].Skipped {
		t.Errorf("declined package was not skipped: %+v", outcomes[1])
	}
	if _, err := os.Stat(filepath.Join(b, "2.0.0")); err == nil {
		t.Error("declined package was installed anyway")
	}
}

func TestRunValidatesLocations(t *testing.T) {
	p := newTestPipeline(&fakeRepo{name: "main"})
	outcomes, err := p.Run(context.Background(), []resolver.Decision{
		decisionFor("Ghost", "1.1.0", filepath.Join(t.TempDir(), "vanished")),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !outcomes[0].Skipped {
		t.Errorf("expected skip for vanished location, got %+v", outcomes[0])
	}
}

func TestRunCleanRemovesSupersededVersions(t *testing.T) {
	root := t.TempDir()
	base := installedBase(t, root, "mods/Foo", "0.9.0", "1.0.0")

	p := newTestPipeline(&fakeRepo{name: "main"})
	p.Clean = true

	outcomes, err := p.Run(context.Background(), []resolver.Decision{
		decisionFor("Foo", "1.1.0", base),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	o := outcomes[0]
	if !o.OverallSuccess {
		t.Fatalf("install failed: %+v", o)
	}
	if len(o.CleanedPaths) != 2 {
		t.Errorf("CleanedPaths = %v, want the two superseded versions", o.CleanedPaths)
	}
	for _, cleaned := range o.CleanedPaths {
		if filepath.Base(cleaned) == "1.1.0" {
			t.Errorf("cleanup removed the just-installed version: %v", o.CleanedPaths)
		}
	}
	if _, err := os.Stat(filepath.Join(base, "1.1.0")); err != nil {
		t.Error("target version directory missing after clean")
	}
	if _, err := os.Stat(filepath.Join(base, "0.9.0")); !os.IsNotExist(err) {
		t.Error("superseded version 0.9.0 still present")
	}
	// Non-version directories survive cleanup untouched.
	if _, err := os.Stat(base); err != nil {
		t.Error("base path removed by cleanup")
	}
}

func TestRunCleanHonorsDoNotCleanList(t *testing.T) {
	root := t.TempDir()
	base := installedBase(t, root, "mods/pkgup", "1.0.0")

	p := newTestPipeline(&fakeRepo{name: "main"})
	p.Clean = true
	p.DoNotClean = []string{"pkgup"}

	outcomes, err := p.Run(context.Background(), []resolver.Decision{
		decisionFor("pkgup", "1.1.0", base),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(outcomes[0].CleanedPaths) != 0 {
		t.Errorf("protected package was cleaned: %v", outcomes[0].CleanedPaths)
	}
	if _, err := os.Stat(filepath.Join(base, "1.0.0")); err != nil {
		t.Error("protected old version was removed")
	}
}

func TestRunNoBackend(t *testing.T) {
	p := New()
	if _, err := p.Run(context.Background(), nil); !errors.Is(err, ErrNoBackend) {
		t.Errorf("err = %v, want ErrNoBackend", err)
	}
}

func TestRunReportsProgress(t *testing.T) {
	root := t.TempDir()
	a := installedBase(t, root, "a/Foo", "1.0.0")
	b := installedBase(t, root, "b/Bar", "1.0.0")

	var mu sync.Mutex
	var calls int
	var lastCompleted, lastTotal int
	p := newTestPipeline(&fakeRepo{name: "main"})
	p.OnProgress = func(completed, total int, eta time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if completed > lastCompleted {
			lastCompleted = completed
		}
		lastTotal = total
	}

	if _, err := p.Run(context.Background(), []resolver.Decision{
		decisionFor("Foo", "1.1.0", a),
		decisionFor("Bar", "2.0.0", b),
	}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("progress callback fired %d times, want 2", calls)
	}
	if lastCompleted != 2 || lastTotal != 2 {
		t.Errorf("final progress = %d/%d, want 2/2", lastCompleted, lastTotal)
	}
}
