package speak_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nvoss/parley/internal/playback"
	"github.com/nvoss/parley/internal/speak"
	"github.com/nvoss/parley/pkg/audio"
	"github.com/nvoss/parley/pkg/provider/tts"
	ttsmock "github.com/nvoss/parley/pkg/provider/tts/mock"
	convmock "github.com/nvoss/parley/pkg/provider/voiceconv/mock"
)

// autoDevice finishes every clip shortly after it starts, recording the
// first byte of each clip played.
type autoDevice struct {
	mu      sync.Mutex
	playing bool
	order   []byte
	stopped func()
}

func (d *autoDevice) Play(pcm []byte, onFinished func()) error {
	d.mu.Lock()
	d.playing = true
	d.stopped = onFinished
	if len(pcm) > 0 {
		d.order = append(d.order, pcm[0])
	}
	d.mu.Unlock()
	go func() {
		time.Sleep(5 * time.Millisecond)
		d.mu.Lock()
		fin := d.stopped
		d.stopped = nil
		d.playing = false
		d.mu.Unlock()
		if fin != nil {
			fin()
		}
	}()
	return nil
}

func (d *autoDevice) Stop() {
	d.mu.Lock()
	fin := d.stopped
	d.stopped = nil
	d.playing = false
	d.mu.Unlock()
	if fin != nil {
		fin()
	}
}

func (d *autoDevice) IsPlaying() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

func (d *autoDevice) playedOrder() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, len(d.order))
	copy(out, d.order)
	return out
}

func fragmentChan(text string) <-chan string {
	ch := make(chan string, 1)
	ch <- text
	close(ch)
	return ch
}

func testOutput() audio.Format { return audio.Format{SampleRate: 16000, Channels: 1} }

// clipFor builds a clip whose PCM starts with the marker byte so playback
// order is observable at the device.
func clipFor(marker byte) tts.Clip {
	pcm := make([]byte, 320)
	pcm[0] = marker
	return tts.Clip{PCM: pcm, Format: testOutput()}
}

func TestSpeak_StrictOrderDespiteUnevenSynthesis(t *testing.T) {
	// Sentence 0 is slowest, sentence 2 is mid, sentence 1 fastest. With
	// parallel synthesis, 1 and 2 finish first; playback must still run
	// 0, 1, 2.
	delays := map[string]time.Duration{
		"Zero zero.": 120 * time.Millisecond,
		"One one.":   10 * time.Millisecond,
		"Two two.":   60 * time.Millisecond,
	}
	markers := map[string]byte{"Zero zero.": 0, "One one.": 1, "Two two.": 2}

	provider := &ttsmock.Provider{
		Fn: func(ctx context.Context, text string) (tts.Clip, error) {
			select {
			case <-time.After(delays[text]):
			case <-ctx.Done():
				return tts.Clip{}, ctx.Err()
			}
			return clipFor(markers[text]), nil
		},
	}
	dev := &autoDevice{}
	sp := speak.New(provider, playback.NewArbiter(dev, nil), testOutput(), nil,
		speak.WithParallelism(3))

	err := sp.Speak(context.Background(), fragmentChan("Zero zero. One one. Two two."))
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}

	got := dev.playedOrder()
	want := []byte{0, 1, 2}
	if len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("playback order = %v, want %v", got, want)
	}
}

func TestSpeak_FailedSentenceIsSkipped(t *testing.T) {
	provider := &ttsmock.Provider{
		Fn: func(ctx context.Context, text string) (tts.Clip, error) {
			if text == "Bad one." {
				return tts.Clip{}, errors.New("backend exploded")
			}
			return clipFor(7), nil
		},
	}
	dev := &autoDevice{}
	sp := speak.New(provider, playback.NewArbiter(dev, nil), testOutput(), nil)

	err := sp.Speak(context.Background(), fragmentChan("Good start. Bad one. Good end."))
	if err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := len(dev.playedOrder()); got != 2 {
		t.Errorf("played %d clips, want 2", got)
	}
}

func TestSpeak_CancelAbandonsRemainder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	provider := &ttsmock.Provider{
		Fn: func(ctx context.Context, text string) (tts.Clip, error) {
			if text == "Second part." {
				cancel()
				return tts.Clip{}, ctx.Err()
			}
			return clipFor(1), nil
		},
	}
	dev := &autoDevice{}
	sp := speak.New(provider, playback.NewArbiter(dev, nil), testOutput(), nil,
		speak.WithParallelism(1))

	err := sp.Speak(ctx, fragmentChan("First part. Second part. Third part."))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Speak err = %v, want context.Canceled", err)
	}
	if got := len(dev.playedOrder()); got > 1 {
		t.Errorf("played %d clips after cancel, want at most 1", got)
	}
}

func TestSpeak_ConversionFailureFallsBackToOriginal(t *testing.T) {
	provider := &ttsmock.Provider{
		Fn: func(ctx context.Context, text string) (tts.Clip, error) {
			return clipFor(9), nil
		},
	}
	conv := &convmock.Converter{Err: errors.New("rvc server down")}
	dev := &autoDevice{}
	sp := speak.New(provider, playback.NewArbiter(dev, nil), testOutput(), nil,
		speak.WithVoiceConversion(conv), speak.WithTempDir(t.TempDir()))

	if err := sp.Speak(context.Background(), fragmentChan("Hello there.")); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if conv.CallCount() != 1 {
		t.Errorf("converter called %d times, want 1", conv.CallCount())
	}
	got := dev.playedOrder()
	if len(got) != 1 || got[0] != 9 {
		t.Errorf("played %v, want the original clip", got)
	}
}

func TestSpeak_ResamplesToOutputFormat(t *testing.T) {
	// Provider emits 8 kHz mono; output is 16 kHz stereo. The played clip
	// must be 4x the byte count.
	provider := &ttsmock.Provider{
		Clip: tts.Clip{
			PCM:    make([]byte, 160),
			Format: audio.Format{SampleRate: 8000, Channels: 1},
		},
	}
	dev := &autoDevice{}
	var playedLen int
	wrapped := &lenDevice{inner: dev, lenOut: &playedLen}
	sp := speak.New(provider, playback.NewArbiter(wrapped, nil),
		audio.Format{SampleRate: 16000, Channels: 2}, nil)

	if err := sp.Speak(context.Background(), fragmentChan("Hi there.")); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if playedLen != 640 {
		t.Errorf("played %d bytes, want 640", playedLen)
	}
}

// lenDevice records the byte length of the last clip before delegating.
type lenDevice struct {
	inner  *autoDevice
	lenOut *int
}

func (d *lenDevice) Play(pcm []byte, onFinished func()) error {
	*d.lenOut = len(pcm)
	return d.inner.Play(pcm, onFinished)
}
func (d *lenDevice) Stop()           { d.inner.Stop() }
func (d *lenDevice) IsPlaying() bool { return d.inner.IsPlaying() }
