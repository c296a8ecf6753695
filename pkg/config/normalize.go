package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeOutput()
	c.normalizeLogging()
	c.Tier4.Thinning = strings.ToLower(strings.TrimSpace(c.Tier4.Thinning))
	if c.Tier4.Thinning == "" {
		c.Tier4.Thinning = defaultTier4Thinning
	}
	return nil
}

// Normalize re-applies normalization after flag overrides.
func (c *Config) Normalize() error {
	return c.normalize()
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Input.Path, err = expandPath(strings.TrimSpace(c.Input.Path)); err != nil {
		return fmt.Errorf("input.path: %w", err)
	}
	if strings.TrimSpace(c.Output.Dir) == "" {
		c.Output.Dir = defaultOutputDir
	}
	if c.Output.Dir, err = expandPath(c.Output.Dir); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	if c.Logging.File != "" {
		if c.Logging.File, err = expandPath(c.Logging.File); err != nil {
			return fmt.Errorf("logging.file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeOutput() {
	c.Output.Sink = strings.ToLower(strings.TrimSpace(c.Output.Sink))
	if c.Output.Sink == "" {
		c.Output.Sink = defaultSink
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
