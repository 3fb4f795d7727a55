package app

import (
	"strings"
	"testing"
)

func TestRootCommand(t *testing.T) {
	if RootCmd.Use != "pkgup" {
		t.Errorf("expected Use to be 'pkgup', got '%s'", RootCmd.Use)
	}

	if RootCmd.Short == "" {
		t.Error("expected Short description to be set")
	}

	if RootCmd.Long == "" {
		t.Error("expected Long description to be set")
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	expectedCommands := []string{"scan", "list", "outdated", "update", "status", "watch"}
	foundCommands := make(map[string]bool)

	for _, cmd := range RootCmd.Commands() {
		foundCommands[strings.Fields(cmd.Use)[0]] = true
	}

	for _, expected := range expectedCommands {
		if !foundCommands[expected] {
			t.Errorf("expected command '%s' to be registered", expected)
		}
	}
}

func TestRootCommandHasPersistentFlags(t *testing.T) {
	for _, name := range []string{"db", "config", "verbose"} {
		flag := RootCmd.PersistentFlags().Lookup(name)
		if flag == nil {
			t.Errorf("expected --%s flag to be registered", name)
			continue
		}
		if flag.Usage == "" {
			t.Errorf("expected --%s flag to have usage text", name)
		}
	}
}

func TestGetDBPathFlagOverride(t *testing.T) {
	oldDBPath := dbPath
	dbPath = "/tmp/test.db"
	defer func() { dbPath = oldDBPath }()

	path, err := getDBPath()
	if err != nil {
		t.Fatalf("getDBPath failed: %v", err)
	}
	if path != "/tmp/test.db" {
		t.Errorf("path = %q, want flag value", path)
	}
}

func TestGetDBPathDefault(t *testing.T) {
	oldDBPath := dbPath
	dbPath = ""
	defer func() { dbPath = oldDBPath }()

	path, err := getDBPath()
	if err != nil {
		t.Fatalf("getDBPath failed: %v", err)
	}
	if !strings.HasSuffix(path, "pkgup.db") {
		t.Errorf("default path = %q, want pkgup.db", path)
	}
}
