// Package playback arbitrates access to a voice channel's single audio
// output. Every clip is tagged with what it is (speech, music, sound
// effect), and interruption is expressed against tags rather than against
// whatever happens to be playing. This is what lets barge-in cut off the
// agent's own voice without ever touching music playback.
package playback

import (
	"errors"
	"log/slog"
	"sync"
)

// Tag classifies a clip submitted to the [Arbiter].
type Tag int

const (
	// TagTTS is synthesized speech from the agent. It is the only tag that
	// may be preempted.
	TagTTS Tag = iota

	// TagMusic is long-form background playback. It is never preempted.
	TagMusic

	// TagSoundEffect is a short one-shot clip. It is never preempted.
	TagSoundEffect
)

// String returns the tag name used in logs and metrics attributes.
func (t Tag) String() string {
	switch t {
	case TagTTS:
		return "tts"
	case TagMusic:
		return "music"
	case TagSoundEffect:
		return "sound_effect"
	default:
		return "unknown"
	}
}

// ErrBusy is returned by [Arbiter.Play] when the output is occupied by a
// clip that the new clip is not allowed to preempt.
var ErrBusy = errors.New("playback: output busy")

// Device is the audio output an [Arbiter] drives. A voice transport
// adapter implements it over its send path.
//
// Implementations must be safe for concurrent use. onFinished must be
// called exactly once when the clip ends, whether it ran to completion or
// was cut short by Stop.
type Device interface {
	Play(pcm []byte, onFinished func()) error
	Stop()
	IsPlaying() bool
}

// Arbiter serializes clips onto a single [Device] and answers "stop"
// requests by tag. Only [TagTTS] playback may be replaced or stopped;
// anything else holds the output until it finishes on its own.
type Arbiter struct {
	device Device
	log    *slog.Logger

	mu      sync.Mutex
	current Tag
	playing bool
	done    chan struct{}
}

// NewArbiter creates an Arbiter over device. logger may be nil.
func NewArbiter(device Device, logger *slog.Logger) *Arbiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Arbiter{device: device, log: logger}
}

// Play submits pcm for playback under tag. It returns a channel that is
// closed when the clip finishes or is stopped.
//
// If the output is idle, playback starts immediately. If the current clip
// is [TagTTS] it is stopped and replaced. If the current clip is anything
// else, Play returns [ErrBusy] and the caller decides whether to drop or
// retry; nothing ever preempts music or a sound effect.
func (a *Arbiter) Play(pcm []byte, tag Tag) (<-chan struct{}, error) {
	a.mu.Lock()
	for a.playing {
		if a.current != TagTTS {
			cur := a.current
			a.mu.Unlock()
			a.log.Debug("playback rejected, output busy",
				slog.String("requested", tag.String()),
				slog.String("current", cur.String()))
			return nil, ErrBusy
		}
		// Replacing an in-flight voice line. The device tears down
		// asynchronously after Stop, so wait for the old clip's finish
		// callback before handing it the replacement, then re-check in
		// case something else grabbed the output meanwhile.
		prev := a.done
		a.mu.Unlock()
		a.device.Stop()
		<-prev
		a.mu.Lock()
	}

	done := make(chan struct{})
	a.current = tag
	a.playing = true
	a.done = done
	a.mu.Unlock()

	finish := func() {
		a.mu.Lock()
		if a.done == done {
			a.playing = false
			a.done = nil
		}
		a.mu.Unlock()
		close(done)
	}
	if err := a.device.Play(pcm, finish); err != nil {
		a.mu.Lock()
		if a.done == done {
			a.playing = false
			a.done = nil
		}
		a.mu.Unlock()
		return nil, err
	}
	return done, nil
}

// StopIf stops the current clip only when its tag matches. A mismatch or
// an idle output is a no-op, so callers can fire it unconditionally; the
// barge-in path calls StopIf(TagTTS) on every detected speech onset.
func (a *Arbiter) StopIf(tag Tag) {
	a.mu.Lock()
	match := a.playing && a.current == tag
	a.mu.Unlock()
	if match {
		a.device.Stop()
	}
}

// Stop unconditionally stops whatever is playing. Reserved for session
// teardown; in-session interruption goes through [Arbiter.StopIf].
func (a *Arbiter) Stop() {
	a.mu.Lock()
	playing := a.playing
	a.mu.Unlock()
	if playing {
		a.device.Stop()
	}
}

// Current returns the tag of the active clip and whether one is playing.
func (a *Arbiter) Current() (Tag, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current, a.playing
}

// IsPlaying reports whether a clip is active.
func (a *Arbiter) IsPlaying() bool {
	_, playing := a.Current()
	return playing
}
