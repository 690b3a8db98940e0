package config

import "reflect"

// ConfigDiff describes what changed between two configs. Only the log level
// is applied on reload; every other change is listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired names the changed settings that only take effect after
	// a restart (e.g., "translation", "server.listen_addr").
	RestartRequired []string
}

// Changed reports whether any setting differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Translation != new.Translation {
		d.RestartRequired = append(d.RestartRequired, "translation")
	}
	if !reflect.DeepEqual(old.Transcript, new.Transcript) {
		d.RestartRequired = append(d.RestartRequired, "transcript")
	}
	if old.Session != new.Session {
		d.RestartRequired = append(d.RestartRequired, "session")
	}
	if !reflect.DeepEqual(old.Events, new.Events) {
		d.RestartRequired = append(d.RestartRequired, "events")
	}
	return d
}
