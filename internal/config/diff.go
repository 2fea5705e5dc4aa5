package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields the rehearsal server can apply without a restart are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// LimitsChanged is true when max_questions or history_messages changed.
	LimitsChanged bool

	// SubjectChanges lists added, removed or edited subjects, sorted by id.
	SubjectChanges []SubjectDiff

	// RestartRequired lists settings that changed but only take effect on
	// restart (listen address, providers).
	RestartRequired []string
}

// SubjectDiff describes what changed for a single subject id.
type SubjectDiff struct {
	ID      string
	Added   bool
	Removed bool
	Edited  bool
}

// Changed reports whether any hot-reloadable setting differs.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.LimitsChanged || len(d.SubjectChanges) > 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.LogLevel
	}
	if old.Server.MaxQuestions != new.Server.MaxQuestions || old.Server.HistoryMessages != new.Server.HistoryMessages {
		d.LimitsChanged = true
	}

	for id, o := range old.Subjects {
		n, ok := new.Subjects[id]
		switch {
		case !ok:
			d.SubjectChanges = append(d.SubjectChanges, SubjectDiff{ID: id, Removed: true})
		case o != n:
			d.SubjectChanges = append(d.SubjectChanges, SubjectDiff{ID: id, Edited: true})
		}
	}
	for id := range new.Subjects {
		if _, ok := old.Subjects[id]; !ok {
			d.SubjectChanges = append(d.SubjectChanges, SubjectDiff{ID: id, Added: true})
		}
	}
	slices.SortFunc(d.SubjectChanges, func(a, b SubjectDiff) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !providerEqual(old.Providers.LLM, new.Providers.LLM) {
		d.RestartRequired = append(d.RestartRequired, "providers.llm")
	}
	if !providerEqual(old.Providers.TTS, new.Providers.TTS) {
		d.RestartRequired = append(d.RestartRequired, "providers.tts")
	}
	if !slices.EqualFunc(old.Providers.Fallbacks.LLM, new.Providers.Fallbacks.LLM, providerEqual) {
		d.RestartRequired = append(d.RestartRequired, "providers.fallbacks.llm")
	}
	if !slices.EqualFunc(old.Providers.Fallbacks.TTS, new.Providers.Fallbacks.TTS, providerEqual) {
		d.RestartRequired = append(d.RestartRequired, "providers.fallbacks.tts")
	}
	return d
}

// providerEqual compares the scalar fields of two entries. Options are not
// compared.
func providerEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL &&
		a.Model == b.Model && a.Voice == b.Voice
}
