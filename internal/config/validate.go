package config

import (
	"errors"
	"fmt"
)

const (
	maxSampleCount   = 10
	maxSampleSeconds = 60
	maxAudioBitrate  = 1024
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDefaults(); err != nil {
		return err
	}
	if err := c.validatePreview(); err != nil {
		return err
	}
	if err := c.validateHistory(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDefaults() error {
	if c.Defaults.Quality < 0 || c.Defaults.Quality > 100 {
		return errors.New("defaults.quality must be between 0 and 100")
	}
	if c.Defaults.AudioBitrateKbps > maxAudioBitrate {
		return fmt.Errorf("defaults.audio_bitrate_kbps must be at most %d", maxAudioBitrate)
	}
	return nil
}

func (c *Config) validatePreview() error {
	if c.Preview.SampleCount > maxSampleCount {
		return fmt.Errorf("preview.sample_count must be at most %d", maxSampleCount)
	}
	if c.Preview.SampleSeconds > maxSampleSeconds {
		return fmt.Errorf("preview.sample_seconds must be at most %d", maxSampleSeconds)
	}
	if c.Preview.WindowSeconds > maxSampleSeconds {
		return fmt.Errorf("preview.window_seconds must be at most %d", maxSampleSeconds)
	}
	return nil
}

func (c *Config) validateHistory() error {
	if c.History.Enabled && c.History.Keep < 1 {
		return errors.New("history.keep must be >= 1 when history.enabled is true")
	}
	return nil
}
