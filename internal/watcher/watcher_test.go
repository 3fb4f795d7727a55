package watcher

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/blackwell-systems/pkgup/internal/store"
)

func newTestWatcher(t *testing.T) (*Watcher, *store.Store) {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.CreateSchema(); err != nil {
		t.Fatal(err)
	}

	w, err := New(st)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	w.Debounce = 50 * time.Millisecond
	return w, st
}

func waitForChange(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not report a change in time")
	}
}

func TestWatcherMarksStaleOnManifestWrite(t *testing.T) {
	w, st := newTestWatcher(t)
	root := t.TempDir()

	changed := make(chan struct{}, 1)
	w.OnChange = func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	if err := w.Start([]string{root}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(root, "tracer.pkg.toml")
	if err := os.WriteFile(path, []byte("name = \"tracer\"\nversion = \"1.0.0\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	waitForChange(t, changed)

	stale, err := st.IsStale()
	if err != nil {
		t.Fatal(err)
	}
	if !stale {
		t.Error("manifest write did not mark the cache stale")
	}
}

func TestWatcherIgnoresUnrelatedFiles(t *testing.T) {
	w, _ := newTestWatcher(t)
	root := t.TempDir()

	changed := make(chan struct{}, 1)
	w.OnChange = func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	if err := w.Start([]string{root}); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hi"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-changed:
		t.Error("unrelated file write triggered a staleness mark")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherFollowsNewDirectories(t *testing.T) {
	w, _ := newTestWatcher(t)
	root := t.TempDir()

	changed := make(chan struct{}, 1)
	w.OnChange = func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	if err := w.Start([]string{root}); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	pkgDir := filepath.Join(root, "Tracer")
	if err := os.Mkdir(pkgDir, 0755); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directory.
	time.Sleep(200 * time.Millisecond)

	if err := os.WriteFile(filepath.Join(pkgDir, "Tracer.pkg.toml"), []byte("name = \"Tracer\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	waitForChange(t, changed)
}

func TestWatcherSkipsMissingRoot(t *testing.T) {
	w, _ := newTestWatcher(t)

	if err := w.Start([]string{filepath.Join(t.TempDir(), "absent")}); err != nil {
		t.Fatalf("missing root should be skipped, got: %v", err)
	}
	w.Stop()
}

func TestIsDaemonRunning(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing pid file", func(t *testing.T) {
		running, err := IsDaemonRunning(filepath.Join(dir, "absent.pid"))
		if err != nil || running {
			t.Errorf("running = %v, err = %v", running, err)
		}
	})

	t.Run("invalid pid file", func(t *testing.T) {
		path := filepath.Join(dir, "bad.pid")
		os.WriteFile(path, []byte("not a pid"), 0644)
		running, err := IsDaemonRunning(path)
		if err != nil || running {
			t.Errorf("running = %v, err = %v", running, err)
		}
	})

	t.Run("stale pid file is removed", func(t *testing.T) {
		path := filepath.Join(dir, "stale.pid")
		// PID well beyond the usual max; the process cannot exist.
		os.WriteFile(path, []byte("4194999"), 0644)
		running, err := IsDaemonRunning(path)
		if err != nil || running {
			t.Errorf("running = %v, err = %v", running, err)
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("stale PID file was not removed")
		}
	})

	t.Run("live process", func(t *testing.T) {
		path := filepath.Join(dir, "live.pid")
		os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0644)
		running, err := IsDaemonRunning(path)
		if err != nil {
			t.Fatal(err)
		}
		if !running {
			t.Error("current process reported as not running")
		}
	})
}

func TestStopDaemonMissingPIDFile(t *testing.T) {
	if err := StopDaemon(filepath.Join(t.TempDir(), "absent.pid")); err == nil {
		t.Error("expected error for missing PID file")
	}
}
