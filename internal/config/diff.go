package config

import "maps"

// Change describes what differs between two configs. Only the log level is
// applied live; every other key is reported in Restart.
type Change struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// Restart lists the dotted keys that changed but only take effect after
	// restarting callbridge.
	Restart []string
}

// Empty reports whether nothing changed.
func (c Change) Empty() bool {
	return !c.LogLevelChanged && len(c.Restart) == 0
}

// Diff compares two configs.
func Diff(old, new *Config) Change {
	var c Change
	if old.Server.LogLevel != new.Server.LogLevel {
		c.LogLevelChanged = true
		c.NewLogLevel = new.Server.LogLevel
	}

	add := func(key string, changed bool) {
		if changed {
			c.Restart = append(c.Restart, key)
		}
	}
	add("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	add("bridge.api_base", old.Bridge.APIBase != new.Bridge.APIBase)
	add("bridge.connect_timeout", old.Bridge.ConnectTimeout != new.Bridge.ConnectTimeout)
	add("bridge.headers", !maps.Equal(old.Bridge.Headers, new.Bridge.Headers))
	add("bridge.read_limit", old.Bridge.ReadLimit != new.Bridge.ReadLimit)
	add("bridge.breaker", old.Bridge.Breaker != new.Bridge.Breaker)
	add("audio", old.Audio != new.Audio)
	add("activity", old.Activity != new.Activity)
	return c
}
