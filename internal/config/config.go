package config

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	instance   *Config
	once       sync.Once
	configPath string
)

// Config holds every tunable of the downloader. All values that used to be
// hard-coded constants (app id, depot id, target paths, filename patterns)
// live here so they can be overridden from config.json.
type Config struct {
	// Steam application constants
	AppID   uint32 `json:"app_id,omitempty"`
	DepotID uint32 `json:"depot_id,omitempty"`

	// Logical paths to pull out of the depot content
	TargetPaths []string `json:"target_paths,omitempty"`

	// Archive naming convention inside the depot
	DirFilename        string `json:"dir_filename,omitempty"`         // pak01_dir.vpk
	ArchiveNamePattern string `json:"archive_name_pattern,omitempty"` // pak01_%03d.vpk

	// Local layout
	StaticDir      string `json:"static_dir,omitempty"`
	TempDir        string `json:"temp_dir,omitempty"`
	ManifestIDFile string `json:"manifest_id_file,omitempty"`

	// Network / auth behaviour
	LoginTimeoutSeconds int    `json:"login_timeout_seconds,omitempty"`
	MaxPartDownloads    int    `json:"max_part_downloads,omitempty"`
	RequestsPerSecond   int    `json:"requests_per_second,omitempty"`
	AppInfoURL          string `json:"app_info_url,omitempty"`

	LogLevel string `json:"log_level,omitempty"`

	Path string `json:"-"` // directory holding config.json
}

func (c *Config) JsonFile() string {
	return filepath.Join(c.Path, "config.json")
}

// ManifestIDPath is the marker file holding the last applied manifest id.
func (c *Config) ManifestIDPath() string {
	return filepath.Join(c.StaticDir, c.ManifestIDFile)
}

// TargetFilenames returns the basenames the targets are saved under.
func (c *Config) TargetFilenames() []string {
	names := make([]string, 0, len(c.TargetPaths))
	for _, p := range c.TargetPaths {
		names = append(names, filepath.Base(p))
	}
	return names
}

func (c *Config) setDefaults() {
	c.AppID = cmp.Or(c.AppID, 730)
	c.DepotID = cmp.Or(c.DepotID, 2347770)
	if len(c.TargetPaths) == 0 {
		c.TargetPaths = []string{
			"resource/csgo_english.txt",
			"resource/csgo_schinese.txt",
			"scripts/items/items_game.txt",
		}
	}
	c.DirFilename = cmp.Or(c.DirFilename, "pak01_dir.vpk")
	c.ArchiveNamePattern = cmp.Or(c.ArchiveNamePattern, "pak01_%03d.vpk")
	c.StaticDir = cmp.Or(c.StaticDir, "./static")
	c.TempDir = cmp.Or(c.TempDir, "./temp")
	c.ManifestIDFile = cmp.Or(c.ManifestIDFile, "manifestId.txt")
	c.LoginTimeoutSeconds = cmp.Or(c.LoginTimeoutSeconds, 30)
	c.MaxPartDownloads = cmp.Or(c.MaxPartDownloads, 2)
	c.RequestsPerSecond = cmp.Or(c.RequestsPerSecond, 4)
	c.AppInfoURL = cmp.Or(c.AppInfoURL, "https://api.steamcmd.net/v1/info")
	c.LogLevel = cmp.Or(c.LogLevel, "info")
}

func (c *Config) loadConfig() error {
	if configPath != "" {
		c.Path = configPath
		file, err := os.ReadFile(c.JsonFile())
		if err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("error reading config file: %w", err)
			}
			// Missing config file is fine, defaults cover everything.
		} else if err := json.Unmarshal(file, c); err != nil {
			return fmt.Errorf("error unmarshaling config: %w", err)
		}
	}
	c.setDefaults()
	return ValidateConfig(c)
}

func (c *Config) Save() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.JsonFile(), data, 0644)
}

// EnsureDirectories creates the static and temp directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.StaticDir, c.TempDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func ValidateConfig(c *Config) error {
	if c.AppID == 0 {
		return errors.New("app id is required")
	}
	if c.DepotID == 0 {
		return errors.New("depot id is required")
	}
	if len(c.TargetPaths) == 0 {
		return errors.New("at least one target path is required")
	}
	for _, p := range c.TargetPaths {
		if strings.TrimSpace(p) == "" {
			return errors.New("target paths must not be empty")
		}
	}
	if c.DirFilename == "" {
		return errors.New("dir filename is required")
	}
	if !strings.Contains(c.ArchiveNamePattern, "%03d") {
		return fmt.Errorf("archive name pattern %q must contain %%03d", c.ArchiveNamePattern)
	}
	return nil
}

func SetConfigPath(path string) {
	configPath = path
}

func Get() *Config {
	once.Do(func() {
		instance = &Config{}
		if err := instance.loadConfig(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
			os.Exit(1)
		}
	})
	return instance
}
