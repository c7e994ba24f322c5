package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"squish/internal/config"
	"squish/internal/logging"
)

type commandContext struct {
	configFlag   *string
	logLevelFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, logLevelFlag *string) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configPath() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

// logLevel resolves the effective level: the --log-level flag wins over
// the configured one.
func (c *commandContext) logLevel(cfg *config.Config) string {
	if c.logLevelFlag != nil {
		if level := strings.TrimSpace(*c.logLevelFlag); level != "" {
			return level
		}
	}
	if cfg != nil {
		return cfg.Logging.Level
	}
	return ""
}

// newLogger builds a stderr-only logger for one-shot commands. The serve
// command builds its own logger with file outputs and retention.
func (c *commandContext) newLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{
		Level:            c.logLevel(cfg),
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
