package utils

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TrimBOM strips a leading UTF-8 byte order mark if present. Idempotent.
func TrimBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, utf8BOM)
}

// SaveFile writes data to path atomically: the full buffer goes to a temp
// file in the destination directory which is then renamed into place, so a
// failed write never leaves a truncated file behind. When removeBOM is set a
// leading UTF-8 BOM is stripped first; binary intermediates (VPK dir and
// parts) are saved verbatim.
func SaveFile(path string, data []byte, removeBOM bool) (int, error) {
	if removeBOM {
		data = TrimBOM(data)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, fmt.Errorf("failed to rename %s: %w", tmpName, err)
	}
	return len(data), nil
}

// FileSizes reports the on-disk size of each filename in dir, 0 if absent.
func FileSizes(dir string, filenames []string) map[string]int64 {
	sizes := make(map[string]int64, len(filenames))
	for _, name := range filenames {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			sizes[name] = 0
			continue
		}
		sizes[name] = info.Size()
	}
	return sizes
}

// FormatSize renders a byte count in human-readable units.
func FormatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}
