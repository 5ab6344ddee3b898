package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDecoder(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDecoder() error {
	for _, name := range c.Decoder.Hardware {
		if !slices.Contains(HardwareNames, name) {
			return fmt.Errorf("decoder.hardware: unknown family %q (known: %v)", name, HardwareNames)
		}
	}
	for name, l := range c.Decoder.Limits {
		if !slices.Contains(HardwareNames, name) {
			return fmt.Errorf("decoder.limits: unknown family %q", name)
		}
		if l.MaxWidth < 0 || l.MaxHeight < 0 {
			return fmt.Errorf("decoder.limits.%s: sizes must not be negative", name)
		}
	}
	if c.Decoder.ReorderDepth > maxReorderDepth {
		return fmt.Errorf("decoder.reorder_depth must be at most %d", maxReorderDepth)
	}
	return nil
}

func (c *Config) validateLogging() error {
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "auto", "text", "json":
	default:
		return errors.New("logging.format must be one of auto, text, json")
	}
	return nil
}

// ParseLevel maps a logging.level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("logging.level: unknown level %q", s)
}
