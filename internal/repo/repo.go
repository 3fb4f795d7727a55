// Package repo defines the repository boundary: an external named source
// capable of reporting and supplying package versions.
package repo

import (
	"context"
	"errors"

	"github.com/blackwell-systems/pkgup/internal/version"
)

// ErrNotFound is returned when a repository has no version of the requested
// package (or no pre-release, for pre-release queries).
var ErrNotFound = errors.New("package not found in repository")

// ErrUnsupported is returned by repository implementations that cannot
// perform a given operation; callers fall through to the next mechanism.
var ErrUnsupported = errors.New("operation not supported by this repository")

// Repository is an external package source. Implementations must honor
// context cancellation on every operation: queries carry per-call timeouts
// and a blocked call would otherwise stall a whole worker slot.
type Repository interface {
	// Name returns the configured repository name.
	Name() string

	// FindLatest returns the latest stable version of the named package.
	FindLatest(ctx context.Context, name string) (version.Version, error)

	// FindLatestPreRelease returns the latest pre-release version of the
	// named package.
	FindLatestPreRelease(ctx context.Context, name string) (version.Version, error)

	// Install places the given package version under dest so that
	// dest/<version>/ exists afterwards.
	Install(ctx context.Context, name string, ver version.Version, dest string) error

	// Uninstall removes an installed package version through the
	// repository's managed mechanism.
	Uninstall(ctx context.Context, name string, ver version.Version) error
}
