package steam

import (
	"context"
	"errors"
	"strings"
)

// ErrMetadata indicates that the app/depot/manifest metadata returned by
// Steam is missing a required key. Always fatal for the run.
var ErrMetadata = errors.New("incomplete product metadata")

// ManifestFile is one remote file entry in a depot manifest.
type ManifestFile interface {
	// Path is the logical path within the depot, forward-slash separated.
	Path() string
	// Size is the file size in bytes as reported by the manifest.
	Size() uint64
	// Read fetches the full file content.
	Read(ctx context.Context) ([]byte, error)
}

// Downloader is implemented by manifest entries that can stream themselves
// straight to a local file, which is preferable for large archive parts.
type Downloader interface {
	Download(ctx context.Context, dest string) error
}

// NormalizePath converts backslash-separated manifest paths to the
// forward-slash form used everywhere else.
func NormalizePath(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

// FindExact returns the first manifest entry whose normalized path equals
// path, or nil. A linear scan is fine here: manifests hold a few thousand
// entries and the lookup runs a handful of times per run.
func FindExact(files []ManifestFile, path string) ManifestFile {
	for _, f := range files {
		if NormalizePath(f.Path()) == path {
			return f
		}
	}
	return nil
}

// FindBySuffix returns the first manifest entry whose normalized path ends
// with suffix, or nil. Used to locate the directory part and the numbered
// archive parts, which sit under a game directory prefix in the manifest.
func FindBySuffix(files []ManifestFile, suffix string) ManifestFile {
	for _, f := range files {
		if strings.HasSuffix(NormalizePath(f.Path()), suffix) {
			return f
		}
	}
	return nil
}
