package config

// ConfigDiff describes what changed between two configs.
//
// LogLevel and Click changes are applied live. Every other difference is
// reported through RestartRequired so the operator can be told.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	ClickChanged bool
	NewClick     ClickConfig

	// RestartRequired lists the dotted paths of changed settings that only
	// take effect on the next start.
	RestartRequired []string
}

// Changed reports whether d carries any difference at all.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.ClickChanged || len(d.RestartRequired) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Metronome.Click != new.Metronome.Click {
		d.ClickChanged = true
		d.NewClick = new.Metronome.Click
	}

	restart := func(path string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, path)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("audio", old.Audio != new.Audio)
	restart("metronome.default_bpm", old.Metronome.DefaultBPM != new.Metronome.DefaultBPM)
	restart("metronome.lookahead", old.Metronome.Lookahead != new.Metronome.Lookahead)
	restart("metronome.schedule_interval", old.Metronome.ScheduleInterval != new.Metronome.ScheduleInterval)
	restart("metronome.start_latency", old.Metronome.StartLatency != new.Metronome.StartLatency)
	restart("tuner", old.Tuner != new.Tuner)
	restart("shell.refresh_rate", old.Shell.RefreshRate != new.Shell.RefreshRate)

	return d
}
