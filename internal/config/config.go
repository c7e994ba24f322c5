package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir  string `toml:"work_dir"`
	LogDir   string `toml:"log_dir"`
	StateDir string `toml:"state_dir"`
}

// Tools contains the external binaries squish drives.
type Tools struct {
	FFmpeg  string `toml:"ffmpeg"`
	FFprobe string `toml:"ffprobe"`
}

// Defaults contains the encode settings applied when a request leaves them unset.
type Defaults struct {
	Codec            string `toml:"codec"`
	Container        string `toml:"container"`
	Quality          int    `toml:"quality"`
	Preset           string `toml:"preset"`
	AudioBitrateKbps int    `toml:"audio_bitrate_kbps"`
}

// Preview contains sample-window tuning for preview generation and size estimation.
type Preview struct {
	WindowSeconds float64 `toml:"window_seconds"`
	SampleCount   int     `toml:"sample_count"`
	SampleSeconds float64 `toml:"sample_seconds"`
}

// History contains configuration for the finished-job history store.
type History struct {
	Enabled bool `toml:"enabled"`
	Keep    int  `toml:"keep"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for squish.
//
// Configuration sections by subsystem:
//   - Paths: work (temp outputs), log, and state directories
//   - Tools: ffmpeg/ffprobe binary locations
//   - Defaults: encode settings used when requests omit them
//   - Preview: sample window length and estimation sampling
//   - History: finished-job record retention
//   - Logging: log format, level, and retention
type Config struct {
	Paths    Paths    `toml:"paths"`
	Tools    Tools    `toml:"tools"`
	Defaults Defaults `toml:"defaults"`
	Preview  Preview  `toml:"preview"`
	History  History  `toml:"history"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/squish/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("squish.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories squish needs at runtime.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.LogDir, c.Paths.StateDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable to invoke.
func (c *Config) FFmpegBinary() string {
	if v := strings.TrimSpace(c.Tools.FFmpeg); v != "" {
		return v
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable used for media inspection.
func (c *Config) FFprobeBinary() string {
	if v := strings.TrimSpace(c.Tools.FFprobe); v != "" {
		return v
	}
	return "ffprobe"
}

// HistoryDBPath returns the sqlite file backing the job history store.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.Paths.StateDir, "history.db")
}

// LockPath returns the single-instance lock file used by serve.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "squish.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
