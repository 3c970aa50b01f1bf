package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	TriggerChanged bool
	NewTrigger     TriggerConfig

	SessionLimitsChanged bool
	NewSession           SessionConfig
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	// Log level
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	// Trigger policy
	if old.Trigger != new.Trigger {
		d.TriggerChanged = true
		d.NewTrigger = new.Trigger
	}

	// Session limits
	if old.Session != new.Session {
		d.SessionLimitsChanged = true
		d.NewSession = new.Session
	}

	return d
}
