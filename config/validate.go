package config

import (
	"fmt"
	"strings"
)

var validLevels = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "error": {}}

// Validate checks the settings that are not covered by the exchange's own
// parameter validation.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if _, ok := validLevels[strings.ToLower(c.Log.Level)]; !ok {
		return fmt.Errorf("config: log level %q not one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("config: log format %q must be json or text", c.Log.Format)
	}
	if c.Log.MaxSizeMB < 0 || c.Log.MaxBackups < 0 || c.Log.MaxAgeDays < 0 {
		return fmt.Errorf("config: log rotation limits must not be negative")
	}
	if c.Telemetry.Enabled() && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("config: telemetry enabled without an endpoint")
	}
	if c.Journal.Enabled() {
		switch strings.ToLower(c.Journal.Driver) {
		case "sqlite", "postgres":
		default:
			return fmt.Errorf("config: journal driver %q must be sqlite or postgres", c.Journal.Driver)
		}
	}
	if _, err := c.DexParams(); err != nil {
		return fmt.Errorf("config: dex: %w", err)
	}
	return nil
}
