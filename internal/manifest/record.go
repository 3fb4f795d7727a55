package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/blackwell-systems/pkgup/internal/version"
)

// Record is the installer-written metadata record stored as .pkginfo.json
// inside a version directory.
type Record struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Author      string    `json:"author,omitempty"`
	Repository  string    `json:"repository,omitempty"`
	InstalledAt time.Time `json:"installedAt,omitempty"`
}

// ParseRecord reads and interprets a metadata record file. The record's own
// version field is authoritative; the base path is derived from the record's
// location (the record sits inside the version directory, so the package root
// is two levels up).
func ParseRecord(path string) (Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to read metadata record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Info{}, fmt.Errorf("failed to parse metadata record %s: %w", path, err)
	}
	if rec.Name == "" {
		return Info{}, fmt.Errorf("metadata record %s has no package name", path)
	}

	info := Info{
		Name:       rec.Name,
		RawVersion: rec.Version,
		Author:     rec.Author,
		Repository: rec.Repository,
	}
	if v, ok := version.Parse(rec.Version); ok {
		info.Version = &v
	}

	// Layout is <root>/<name>/<version>/.pkginfo.json. When the containing
	// directory is not version-named the record sits directly in the package
	// root (flat install).
	dir := filepath.Dir(path)
	if _, ok := version.Parse(filepath.Base(dir)); ok {
		info.BasePath = filepath.Dir(dir)
	} else {
		info.BasePath = dir
	}

	return info, nil
}

// WriteRecord persists a metadata record into dir. The pipeline writes one
// after every successful install so subsequent scans see an authoritative
// version without re-parsing manifests.
func WriteRecord(dir string, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata record: %w", err)
	}
	path := filepath.Join(dir, RecordName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata record: %w", err)
	}
	return nil
}
