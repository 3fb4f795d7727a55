package repo

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/blackwell-systems/pkgup/internal/version"
)

// LegacyManager drives an external package-manager CLI. It is the last
// install mechanism in the pipeline's fallback chain and the managed
// uninstall used during cleanup.
type LegacyManager struct {
	// Binary is the package-manager executable name, looked up on PATH.
	Binary string
}

// NewLegacyManager returns a manager for the given executable.
func NewLegacyManager(binary string) *LegacyManager {
	return &LegacyManager{Binary: binary}
}

// Available reports whether the external tool is on PATH.
func (m *LegacyManager) Available() bool {
	if m == nil || m.Binary == "" {
		return false
	}
	_, err := exec.LookPath(m.Binary)
	return err == nil
}

// Install installs a package version through the external tool into its own
// default scope. The tool decides the destination; the caller verifies
// presence afterwards.
func (m *LegacyManager) Install(ctx context.Context, name string, ver version.Version) error {
	args := []string{"install", name, "--version", ver.String()}
	if ver.IsPreRelease() {
		args = append(args, "--prerelease")
	}
	cmd := exec.CommandContext(ctx, m.Binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s install %s failed: %w (output: %s)", m.Binary, name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// Uninstall removes a specific package version through the external tool.
// Callers must check afterwards that the version directory is actually gone:
// some backends report success without removing anything.
func (m *LegacyManager) Uninstall(ctx context.Context, name string, ver version.Version) error {
	cmd := exec.CommandContext(ctx, m.Binary, "uninstall", name, "--version", ver.String())
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s uninstall %s failed: %w (output: %s)", m.Binary, name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
