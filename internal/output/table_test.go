package output

import (
	"strings"
	"testing"
	"time"

	"github.com/blackwell-systems/pkgup/internal/pipeline"
	"github.com/blackwell-systems/pkgup/internal/resolver"
	"github.com/blackwell-systems/pkgup/internal/scanner"
	"github.com/blackwell-systems/pkgup/internal/store"
	"github.com/blackwell-systems/pkgup/internal/version"
)

func mustVersion(t *testing.T, raw string) version.Version {
	t.Helper()
	v, ok := version.Parse(raw)
	if !ok {
		t.Fatalf("bad test version %q", raw)
	}
	return v
}

func TestRenderInventoryTable(t *testing.T) {
	v1 := mustVersion(t, "1.2.0")
	v2 := mustVersion(t, "1.3.0")
	inv := &scanner.Inventory{
		Packages: []scanner.Package{
			{Name: "Alpha", Locations: []scanner.Location{
				{BasePath: "/opt/pkgs/Alpha", Version: &v1, RawVersion: "1.2.0"},
				{BasePath: "/usr/local/pkgs/Alpha", Version: &v2, RawVersion: "1.3.0"},
			}},
		},
	}

	out := RenderInventoryTable(inv)
	if !strings.Contains(out, "Alpha") {
		t.Errorf("missing package name: %q", out)
	}
	if !strings.Contains(out, "1.3.0") {
		t.Errorf("missing highest version: %q", out)
	}
	if !strings.Contains(out, "1.2.0, 1.3.0") {
		t.Errorf("missing version list: %q", out)
	}
}

func TestRenderInventoryTableEmpty(t *testing.T) {
	if out := RenderInventoryTable(&scanner.Inventory{}); !strings.Contains(out, "No packages") {
		t.Errorf("empty inventory output = %q", out)
	}
}

func TestRenderDecisionTable(t *testing.T) {
	decisions := []resolver.Decision{
		{
			Name:              "Alpha",
			Target:            mustVersion(t, "2.0.0"),
			Repository:        "main",
			OutdatedLocations: []string{"/opt/pkgs/Alpha"},
		},
	}

	out := RenderDecisionTable(decisions)
	for _, want := range []string{"Alpha", "2.0.0", "main", "/opt/pkgs/Alpha"} {
		if !strings.Contains(out, want) {
			t.Errorf("decision table missing %q:\n%s", want, out)
		}
	}

	if out := RenderDecisionTable(nil); !strings.Contains(out, "up to date") {
		t.Errorf("empty decision output = %q", out)
	}
}

func TestRenderOutcomeTableStatus(t *testing.T) {
	outcomes := []pipeline.Outcome{
		{Name: "Good", Target: "2.0.0", UpdatedPaths: []string{"/a"}, OverallSuccess: true},
		{Name: "Half", Target: "2.0.0", UpdatedPaths: []string{"/a"}, FailedPaths: []string{"/b"}},
		{Name: "Bad", Target: "2.0.0", FailedPaths: []string{"/a"}},
		{Name: "Meh", Target: "2.0.0", Skipped: true, SkipReason: "declined"},
	}

	out := RenderOutcomeTable(outcomes)
	for _, want := range []string{"✓ ok", "~ partial", "✗ failed", "skipped: declined"} {
		if !strings.Contains(out, want) {
			t.Errorf("outcome table missing status %q:\n%s", want, out)
		}
	}
}

func TestRenderSummary(t *testing.T) {
	outcomes := []pipeline.Outcome{
		{Name: "A", OverallSuccess: true},
		{Name: "B", OverallSuccess: true},
		{Name: "C", FailedPaths: []string{"/x"}},
		{Name: "D", Skipped: true},
	}

	out := RenderSummary(outcomes)
	for _, want := range []string{"Updated: 2", "Failed: 1", "Skipped: 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q: %q", want, out)
		}
	}
}

func TestRenderRunTable(t *testing.T) {
	runs := []store.Run{
		{ID: 2, StartedAt: time.Now().Add(-time.Hour), Processed: 3, Updated: 2, Failed: 1},
	}

	out := RenderRunTable(runs)
	if !strings.Contains(out, "1 hour ago") {
		t.Errorf("run table missing relative time: %q", out)
	}

	if out := RenderRunTable(nil); !strings.Contains(out, "No recorded runs") {
		t.Errorf("empty run table output = %q", out)
	}
}

func TestFormatRelativeTime(t *testing.T) {
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{30 * time.Second, "just now"},
		{5 * time.Minute, "5 minutes ago"},
		{3 * time.Hour, "3 hours ago"},
		{48 * time.Hour, "2 days ago"},
		{14 * 24 * time.Hour, "2 weeks ago"},
	}
	for _, tt := range tests {
		if got := formatRelativeTime(time.Now().Add(-tt.ago)); got != tt.want {
			t.Errorf("formatRelativeTime(-%v) = %q, want %q", tt.ago, got, tt.want)
		}
	}
	if got := formatRelativeTime(time.Time{}); got != "never" {
		t.Errorf("zero time = %q, want never", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly-ten", 11, "exactly-ten"},
		{"much-too-long-for-this", 10, "much-to..."},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}
