package fetch

import (
	"os"
	"strings"

	"github.com/vantigo/csfiles/internal/utils"
)

// ReadManifestID returns the last-applied manifest id from the marker file,
// or "" when no marker exists yet (first run).
func ReadManifestID(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SaveManifestID atomically overwrites the marker file.
func SaveManifestID(path, manifestID string) error {
	_, err := utils.SaveFile(path, []byte(manifestID), false)
	return err
}
