package store

import (
	"reflect"
	"testing"
	"time"

	"github.com/blackwell-systems/pkgup/internal/pipeline"
	"github.com/blackwell-systems/pkgup/internal/scanner"
	"github.com/blackwell-systems/pkgup/internal/version"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.CreateSchema(); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return s
}

func testInventory(t *testing.T) *scanner.Inventory {
	t.Helper()
	loc := func(base, raw string) scanner.Location {
		l := scanner.Location{BasePath: base, RawVersion: raw}
		if v, ok := version.Parse(raw); ok {
			l.Version = &v
		}
		return l
	}
	return &scanner.Inventory{
		Packages: []scanner.Package{
			{Name: "Alpha", Locations: []scanner.Location{
				loc("/opt/pkgs/Alpha", "1.2.0"),
				loc("/usr/local/pkgs/Alpha", "1.3.0"),
			}},
			{Name: "Beta", Locations: []scanner.Location{
				loc("/opt/pkgs/Beta", "0.9.1-beta2"),
			}},
		},
	}
}

func TestSaveLoadInventoryRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	inv := testInventory(t)

	if err := s.SaveInventory(inv); err != nil {
		t.Fatalf("SaveInventory failed: %v", err)
	}

	got, err := s.LoadInventory()
	if err != nil {
		t.Fatalf("LoadInventory failed: %v", err)
	}
	if !reflect.DeepEqual(got, inv) {
		t.Errorf("loaded inventory differs:\n got %+v\nwant %+v", got, inv)
	}
}

func TestSaveInventoryReplacesPrevious(t *testing.T) {
	s := setupTestStore(t)

	if err := s.SaveInventory(testInventory(t)); err != nil {
		t.Fatal(err)
	}
	smaller := &scanner.Inventory{
		Packages: []scanner.Package{
			{Name: "Beta", Locations: []scanner.Location{
				{BasePath: "/opt/pkgs/Beta", RawVersion: "1.0.0"},
			}},
		},
	}
	if err := s.SaveInventory(smaller); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadInventory()
	if err != nil {
		t.Fatal(err)
	}
	if got.Len() != 1 {
		t.Errorf("packages after replace = %d, want 1", got.Len())
	}
	if _, ok := got.Get("Alpha"); ok {
		t.Error("stale package survived SaveInventory")
	}
}

func TestStaleness(t *testing.T) {
	s := setupTestStore(t)

	// An empty cache is always stale.
	stale, err := s.IsStale()
	if err != nil {
		t.Fatal(err)
	}
	if !stale {
		t.Error("empty cache reported fresh")
	}

	if err := s.SaveInventory(testInventory(t)); err != nil {
		t.Fatal(err)
	}
	if stale, _ = s.IsStale(); stale {
		t.Error("cache stale right after save")
	}

	if err := s.MarkStale(); err != nil {
		t.Fatal(err)
	}
	if stale, _ = s.IsStale(); !stale {
		t.Error("MarkStale had no effect")
	}

	if err := s.SaveInventory(testInventory(t)); err != nil {
		t.Fatal(err)
	}
	if stale, _ = s.IsStale(); stale {
		t.Error("save did not clear the staleness flag")
	}
}

func TestRunHistory(t *testing.T) {
	s := setupTestStore(t)

	started := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	runID, err := s.BeginRun(started)
	if err != nil {
		t.Fatalf("BeginRun failed: %v", err)
	}

	outcomes := []pipeline.Outcome{
		{
			Name:           "Alpha",
			Target:         "1.4.0",
			UpdatedPaths:   []string{"/opt/pkgs/Alpha"},
			CleanedPaths:   []string{"/opt/pkgs/Alpha/1.2.0"},
			OverallSuccess: true,
		},
		{
			Name:         "Beta",
			Target:       "2.0.0",
			UpdatedPaths: []string{"/opt/pkgs/Beta"},
			FailedPaths:  []string{"/usr/local/pkgs/Beta"},
		},
		{
			Name:       "Gamma",
			Target:     "3.0.0",
			Skipped:    true,
			SkipReason: "declined",
		},
	}
	finished := started.Add(42 * time.Second)
	if err := s.FinishRun(runID, finished, outcomes); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	runs, err := s.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	r := runs[0]
	if r.ID != runID || r.Processed != 3 || r.Updated != 1 || r.Failed != 1 || r.Skipped != 1 {
		t.Errorf("run summary = %+v", r)
	}
	if !r.StartedAt.Equal(started) || !r.FinishedAt.Equal(finished) {
		t.Errorf("run times = %v..%v, want %v..%v", r.StartedAt, r.FinishedAt, started, finished)
	}

	got, err := s.RunOutcomes(runID)
	if err != nil {
		t.Fatalf("RunOutcomes failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(got))
	}
	if got[0].Name != "Alpha" || !got[0].OverallSuccess {
		t.Errorf("outcome[0] = %+v", got[0])
	}
	if !reflect.DeepEqual(got[0].CleanedPaths, []string{"/opt/pkgs/Alpha/1.2.0"}) {
		t.Errorf("cleaned paths = %v", got[0].CleanedPaths)
	}
	if got[1].OverallSuccess {
		t.Error("partial failure reported as success")
	}
	if !got[2].Skipped || got[2].SkipReason != "declined" {
		t.Errorf("outcome[2] = %+v", got[2])
	}
}

func TestListRunsOrder(t *testing.T) {
	s := setupTestStore(t)

	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		id, err := s.BeginRun(base.Add(time.Duration(i) * time.Hour))
		if err != nil {
			t.Fatal(err)
		}
		if err := s.FinishRun(id, base.Add(time.Duration(i)*time.Hour+time.Minute), nil); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.ListRuns(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2 (limit)", len(runs))
	}
	if runs[0].ID < runs[1].ID {
		t.Error("runs not in most-recent-first order")
	}
}
