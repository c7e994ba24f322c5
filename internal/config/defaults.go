package config

const (
	defaultWorkDir          = "~/.cache/squish/work"
	defaultLogDir           = "~/.local/share/squish/logs"
	defaultStateDir         = "~/.local/share/squish"
	defaultFFmpegBinary     = "ffmpeg"
	defaultFFprobeBinary    = "ffprobe"
	defaultCodec            = "libx264"
	defaultContainer        = "mp4"
	defaultQuality          = 75
	defaultPreset           = "medium"
	defaultAudioBitrateKbps = 128
	defaultWindowSeconds    = 3.0
	defaultSampleCount      = 3
	defaultSampleSeconds    = 3.0
	defaultHistoryKeep      = 200
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  defaultWorkDir,
			LogDir:   defaultLogDir,
			StateDir: defaultStateDir,
		},
		Tools: Tools{
			FFmpeg:  defaultFFmpegBinary,
			FFprobe: defaultFFprobeBinary,
		},
		Defaults: Defaults{
			Codec:            defaultCodec,
			Container:        defaultContainer,
			Quality:          defaultQuality,
			Preset:           defaultPreset,
			AudioBitrateKbps: defaultAudioBitrateKbps,
		},
		Preview: Preview{
			WindowSeconds: defaultWindowSeconds,
			SampleCount:   defaultSampleCount,
			SampleSeconds: defaultSampleSeconds,
		},
		History: History{
			Enabled: true,
			Keep:    defaultHistoryKeep,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
