package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTools()
	c.normalizeDefaults()
	c.normalizePreview()
	c.normalizeHistory()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = defaultFFmpegBinary
	}
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	if c.Tools.FFprobe == "" {
		c.Tools.FFprobe = defaultFFprobeBinary
	}
}

func (c *Config) normalizeDefaults() {
	c.Defaults.Codec = strings.ToLower(strings.TrimSpace(c.Defaults.Codec))
	if c.Defaults.Codec == "" {
		c.Defaults.Codec = defaultCodec
	}
	c.Defaults.Container = strings.ToLower(strings.TrimSpace(c.Defaults.Container))
	if c.Defaults.Container == "" {
		c.Defaults.Container = defaultContainer
	}
	if c.Defaults.Quality < 0 {
		c.Defaults.Quality = 0
	}
	if c.Defaults.Quality > 100 {
		c.Defaults.Quality = 100
	}
	c.Defaults.Preset = strings.ToLower(strings.TrimSpace(c.Defaults.Preset))
	if c.Defaults.Preset == "" {
		c.Defaults.Preset = defaultPreset
	}
	if c.Defaults.AudioBitrateKbps <= 0 {
		c.Defaults.AudioBitrateKbps = defaultAudioBitrateKbps
	}
}

func (c *Config) normalizePreview() {
	if c.Preview.WindowSeconds <= 0 {
		c.Preview.WindowSeconds = defaultWindowSeconds
	}
	if c.Preview.SampleCount <= 0 {
		c.Preview.SampleCount = defaultSampleCount
	}
	if c.Preview.SampleSeconds <= 0 {
		c.Preview.SampleSeconds = defaultSampleSeconds
	}
}

func (c *Config) normalizeHistory() {
	if c.History.Keep <= 0 {
		c.History.Keep = defaultHistoryKeep
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
