package repo

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blackwell-systems/pkgup/internal/manifest"
	"github.com/blackwell-systems/pkgup/internal/version"
)

// HTTPRepository talks to a repository server over its versioned query
// protocol:
//
//	GET {base}/v1/packages/{name}/latest               -> {"version": "..."}
//	GET {base}/v1/packages/{name}/latest?prerelease=1  -> {"version": "..."}
//	GET {base}/v1/packages/{name}/{version}/archive    -> tar.gz stream
//
// A 404 on a latest query means the repository does not carry the package.
type HTTPRepository struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewHTTP creates an HTTPRepository. The client's timeout is a transport
// safety net; per-query deadlines come from the caller's context.
func NewHTTP(name, baseURL string) *HTTPRepository {
	return &HTTPRepository{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// Name returns the configured repository name.
func (r *HTTPRepository) Name() string { return r.name }

type latestResponse struct {
	Version string `json:"version"`
	Author  string `json:"author,omitempty"`
}

// FindLatest returns the latest stable version of name.
func (r *HTTPRepository) FindLatest(ctx context.Context, name string) (version.Version, error) {
	return r.findLatest(ctx, name, false)
}

// FindLatestPreRelease returns the latest pre-release version of name.
func (r *HTTPRepository) FindLatestPreRelease(ctx context.Context, name string) (version.Version, error) {
	return r.findLatest(ctx, name, true)
}

func (r *HTTPRepository) findLatest(ctx context.Context, name string, prerelease bool) (version.Version, error) {
	u := fmt.Sprintf("%s/v1/packages/%s/latest", r.baseURL, url.PathEscape(name))
	if prerelease {
		u += "?prerelease=1"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return version.Version{}, fmt.Errorf("failed to build query for %s: %w", name, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return version.Version{}, fmt.Errorf("repository %s query failed: %w", r.name, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return version.Version{}, ErrNotFound
	default:
		return version.Version{}, fmt.Errorf("repository %s returned status %d for %s", r.name, resp.StatusCode, name)
	}

	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return version.Version{}, fmt.Errorf("repository %s returned malformed response for %s: %w", r.name, name, err)
	}

	v, ok := version.Parse(body.Version)
	if !ok {
		return version.Version{}, fmt.Errorf("repository %s returned unparsable version %q for %s", r.name, body.Version, name)
	}
	return v, nil
}

// AuthorOf queries the repository for the publishing author of a package.
// Used by the author-match policy; an empty author with nil error means the
// repository does not record one.
func (r *HTTPRepository) AuthorOf(ctx context.Context, name string) (string, error) {
	u := fmt.Sprintf("%s/v1/packages/%s/latest", r.baseURL, url.PathEscape(name))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("repository %s query failed: %w", r.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", ErrNotFound
	}
	var body latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.Author, nil
}

// Install downloads the version archive and unpacks it into dest/<version>/,
// then writes a metadata record so the next scan sees an authoritative
// version.
func (r *HTTPRepository) Install(ctx context.Context, name string, ver version.Version, dest string) error {
	u := fmt.Sprintf("%s/v1/packages/%s/%s/archive", r.baseURL, url.PathEscape(name), url.PathEscape(ver.String()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build archive request for %s: %w", name, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("repository %s archive download failed: %w", r.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("repository %s returned status %d for %s@%s archive", r.name, resp.StatusCode, name, ver.String())
	}

	versionDir := filepath.Join(dest, ver.String())
	if err := extractTarGz(resp.Body, versionDir); err != nil {
		// A half-extracted version directory must not pass the later
		// presence check.
		os.RemoveAll(versionDir)
		return fmt.Errorf("failed to unpack %s@%s: %w", name, ver.String(), err)
	}

	rec := manifest.Record{
		Name:        name,
		Version:     ver.String(),
		Repository:  r.name,
		InstalledAt: time.Now().UTC(),
	}
	if err := manifest.WriteRecord(versionDir, rec); err != nil {
		return err
	}
	return nil
}

// Uninstall is not part of the HTTP protocol; managed uninstalls go through
// the legacy manager.
func (r *HTTPRepository) Uninstall(ctx context.Context, name string, ver version.Version) error {
	return ErrUnsupported
}

// extractTarGz unpacks a tar.gz stream into dir, rejecting entries that would
// escape it.
func extractTarGz(src io.Reader, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create version directory: %w", err)
	}

	gz, err := gzip.NewReader(src)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read archive: %w", err)
		}

		target := filepath.Join(dir, filepath.Clean(hdr.Name))
		rel, err := filepath.Rel(dir, target)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("archive entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create directory for %s: %w", target, err)
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode)&0777)
			if err != nil {
				return fmt.Errorf("failed to create file %s: %w", target, err)
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return fmt.Errorf("failed to write file %s: %w", target, err)
			}
			f.Close()
		default:
			// Symlinks and special files are not expected in package
			// archives; skip them rather than fail the whole install.
		}
	}
}
