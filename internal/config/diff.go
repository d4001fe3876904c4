package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TriggerWordsChanged reports a change to the agent's names.
	TriggerWordsChanged bool

	// InterruptPhrasesChanged reports a change to the stop phrases.
	InterruptPhrasesChanged bool

	// ThresholdsChanged reports a change to the voice-activity tuning
	// (energy threshold, silence window, tick or segment bounds).
	ThresholdsChanged bool

	// SystemPromptChanged reports a change to the LLM system prompt.
	SystemPromptChanged bool
}

// Any reports whether the diff carries at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.TriggerWordsChanged ||
		d.InterruptPhrasesChanged || d.ThresholdsChanged ||
		d.SystemPromptChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; provider and
// transport changes require a full restart and are ignored here.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	op, np := old.Pipeline, new.Pipeline
	if !slices.Equal(op.TriggerWords, np.TriggerWords) {
		d.TriggerWordsChanged = true
	}
	if !slices.Equal(op.InterruptPhrases, np.InterruptPhrases) {
		d.InterruptPhrasesChanged = true
	}
	if op.EnergyThreshold != np.EnergyThreshold ||
		op.SilenceMs != np.SilenceMs ||
		op.MaxSpeechMs != np.MaxSpeechMs ||
		op.TickMs != np.TickMs ||
		op.MinSegmentMs != np.MinSegmentMs {
		d.ThresholdsChanged = true
	}
	if op.SystemPrompt != np.SystemPrompt {
		d.SystemPromptChanged = true
	}

	return d
}
