package playback

import (
	"log/slog"
	"sync/atomic"
)

// BargeInController turns speech-onset notifications into playback
// interruption. It stops agent speech the moment a user starts talking,
// and nothing else: music and sound effects play through.
//
// Wire its [BargeInController.OnSpeechStart] into the listening monitor's
// speech-start hook.
type BargeInController struct {
	arbiter *Arbiter
	log     *slog.Logger
	count   atomic.Int64
	onStop  func()
}

// NewBargeInController creates a controller over arbiter. onStop, if
// non-nil, is invoked after a voice line was actually cut (not on onsets
// that found nothing to stop); the speaking pipeline uses it to abandon
// queued sentences. logger may be nil.
func NewBargeInController(arbiter *Arbiter, onStop func(), logger *slog.Logger) *BargeInController {
	if logger == nil {
		logger = slog.Default()
	}
	return &BargeInController{arbiter: arbiter, log: logger, onStop: onStop}
}

// OnSpeechStart handles a detected speech onset. Safe to call from the
// monitor's tick goroutine; it never blocks on playback.
func (b *BargeInController) OnSpeechStart() {
	tag, playing := b.arbiter.Current()
	if !playing || tag != TagTTS {
		return
	}
	b.arbiter.StopIf(TagTTS)
	b.count.Add(1)
	b.log.Debug("barge-in stopped agent speech")
	if b.onStop != nil {
		b.onStop()
	}
}

// Count returns how many voice lines this controller has cut short.
func (b *BargeInController) Count() int64 {
	return b.count.Load()
}
