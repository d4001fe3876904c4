package dispatch_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nvoss/parley/internal/dispatch"
	"github.com/nvoss/parley/internal/listen"
	"github.com/nvoss/parley/internal/playback"
	"github.com/nvoss/parley/internal/trigger"
	"github.com/nvoss/parley/internal/workerpool"
	"github.com/nvoss/parley/pkg/audio"
	"github.com/nvoss/parley/pkg/provider/stt"
	sttmock "github.com/nvoss/parley/pkg/provider/stt/mock"
)

// stickyDevice plays until told to stop.
type stickyDevice struct {
	mu       sync.Mutex
	playing  bool
	finished func()
}

func (d *stickyDevice) Play(pcm []byte, onFinished func()) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = true
	d.finished = onFinished
	return nil
}

func (d *stickyDevice) Stop() {
	d.mu.Lock()
	fin := d.finished
	d.playing = false
	d.finished = nil
	d.mu.Unlock()
	if fin != nil {
		fin()
	}
}

func (d *stickyDevice) IsPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

func segment(d time.Duration, format audio.Format) listen.Segment {
	bytesPerSec := format.SampleRate * format.Channels * 2
	return listen.Segment{
		PCM:      make([]byte, int(d.Seconds()*float64(bytesPerSec))),
		Format:   format,
		Speakers: []string{"u1"},
		Start:    time.Now(),
		Duration: d,
	}
}

func newDispatcher(provider stt.Provider, arbiter *playback.Arbiter, opts ...dispatch.Option) *dispatch.Dispatcher {
	cfg := dispatch.Config{InterruptPhrases: []string{"stop", "be quiet"}}
	cls := trigger.New(trigger.Config{TriggerWords: []string{"bot"}})
	return dispatch.New(cfg, provider, cls, arbiter, nil, opts...)
}

func TestHandle_ShortSegmentDiscardedWithoutTranscription(t *testing.T) {
	provider := &sttmock.Provider{}
	d := newDispatcher(provider, nil)

	out, err := d.Handle(context.Background(), segment(200*time.Millisecond, audio.Format{SampleRate: 16000, Channels: 1}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !out.Discarded || out.DiscardReason != "too_short" {
		t.Errorf("outcome = %+v, want too_short discard", out)
	}
	if provider.CallCount() != 0 {
		t.Errorf("transcriber called %d times, want 0", provider.CallCount())
	}
}

func TestHandle_InterruptStopsSpeechAndSkipsClassifier(t *testing.T) {
	// "Stop!" would also classify silent, so use a phrase the classifier
	// would answer: if classification ran, Respond would be true.
	provider := &sttmock.Provider{Result: stt.Result{Text: "Be quiet?"}}
	dev := &stickyDevice{}
	arbiter := playback.NewArbiter(dev, nil)
	if _, err := arbiter.Play(make([]byte, 4), playback.TagTTS); err != nil {
		t.Fatalf("Play: %v", err)
	}

	d := newDispatcher(provider, arbiter)
	out, err := d.Handle(context.Background(), segment(time.Second, audio.Format{SampleRate: 16000, Channels: 1}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !out.Interrupt {
		t.Fatal("expected interrupt outcome")
	}
	if out.Respond {
		t.Error("interrupt must not also request a response")
	}
	if dev.IsPlaying() {
		t.Error("agent speech still playing after interrupt")
	}
}

func TestHandle_InterruptPhraseDuringMusicIsNotAnInterrupt(t *testing.T) {
	// "stop" only silences the agent. With music on the output it is an
	// ordinary remark: classified, not short-circuited, music untouched.
	provider := &sttmock.Provider{Result: stt.Result{Text: "stop"}}
	dev := &stickyDevice{}
	arbiter := playback.NewArbiter(dev, nil)
	if _, err := arbiter.Play(make([]byte, 4), playback.TagMusic); err != nil {
		t.Fatalf("Play: %v", err)
	}

	d := newDispatcher(provider, arbiter)
	out, err := d.Handle(context.Background(), segment(time.Second, audio.Format{SampleRate: 16000, Channels: 1}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Interrupt {
		t.Fatal("interrupt fired with no agent speech playing")
	}
	if !dev.IsPlaying() {
		t.Error("music stopped")
	}
}

func TestHandle_InterruptPhraseWhileIdleFallsThroughToClassifier(t *testing.T) {
	// An interrupt phrase with nothing playing is classified like any
	// other utterance; "Be quiet?" reads as a question and gets a reply.
	provider := &sttmock.Provider{Result: stt.Result{Text: "Be quiet?"}}
	arbiter := playback.NewArbiter(&stickyDevice{}, nil)

	d := newDispatcher(provider, arbiter)
	out, err := d.Handle(context.Background(), segment(time.Second, audio.Format{SampleRate: 16000, Channels: 1}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Interrupt {
		t.Fatal("interrupt fired while idle")
	}
	if !out.Respond || out.Rule != "question" {
		t.Errorf("outcome = %+v, want question response", out)
	}
}

func TestHandle_QuestionTriggersResponse(t *testing.T) {
	provider := &sttmock.Provider{Result: stt.Result{Text: "Are you there?", Language: "en"}}
	d := newDispatcher(provider, nil)

	out, err := d.Handle(context.Background(), segment(time.Second, audio.Format{SampleRate: 16000, Channels: 1}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !out.Respond || out.Rule != "question" {
		t.Errorf("outcome = %+v, want question response", out)
	}
	if out.Transcript.Text != "Are you there?" {
		t.Errorf("transcript = %q", out.Transcript.Text)
	}
}

func TestHandle_ShortRemarkNoResponse(t *testing.T) {
	provider := &sttmock.Provider{Result: stt.Result{Text: "cool"}}
	d := newDispatcher(provider, nil)

	out, err := d.Handle(context.Background(), segment(time.Second, audio.Format{SampleRate: 16000, Channels: 1}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if out.Respond || out.Interrupt || out.Discarded {
		t.Errorf("outcome = %+v, want silent", out)
	}
}

func TestHandle_EmptyTranscriptDiscarded(t *testing.T) {
	provider := &sttmock.Provider{Result: stt.Result{Text: "   "}}
	d := newDispatcher(provider, nil)

	out, err := d.Handle(context.Background(), segment(time.Second, audio.Format{SampleRate: 16000, Channels: 1}))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !out.Discarded || out.DiscardReason != "empty_transcript" {
		t.Errorf("outcome = %+v, want empty_transcript discard", out)
	}
}

func TestHandle_TranscriptionErrorPropagates(t *testing.T) {
	provider := &sttmock.Provider{Err: errors.New("server unreachable")}
	d := newDispatcher(provider, nil)

	if _, err := d.Handle(context.Background(), segment(time.Second, audio.Format{SampleRate: 16000, Channels: 1})); err == nil {
		t.Fatal("expected transcription error")
	}
}

func TestHandle_ConvertsStereo48kForTranscription(t *testing.T) {
	provider := &sttmock.Provider{Result: stt.Result{Text: "hello over there friend today"}}
	pool := workerpool.New(2)
	d := newDispatcher(provider, nil, dispatch.WithPool(pool))

	// 1 s of 48 kHz stereo. Downmixed and resampled to 16 kHz mono that is
	// 16 000 samples, plus the 44-byte WAV header.
	if _, err := d.Handle(context.Background(), segment(time.Second, audio.Format{SampleRate: 48000, Channels: 2})); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if provider.CallCount() != 1 {
		t.Fatalf("transcriber called %d times, want 1", provider.CallCount())
	}
	got := len(provider.Calls[0].WAV)
	want := 44 + 16000*2
	if got != want {
		t.Errorf("wav size = %d, want %d", got, want)
	}
}
