// Package dispatch turns finalized speech segments into decisions.
//
// For each segment the dispatcher gates on minimum duration, converts the
// audio to the transcriber's format, transcribes it, and then decides what
// the utterance means for the session: an interrupt command takes a fast
// path that silences the agent immediately and never consults the response
// classifier; everything else goes through the classifier to decide
// whether a reply is warranted.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nvoss/parley/internal/listen"
	"github.com/nvoss/parley/internal/observe"
	"github.com/nvoss/parley/internal/playback"
	"github.com/nvoss/parley/internal/trigger"
	"github.com/nvoss/parley/internal/workerpool"
	"github.com/nvoss/parley/pkg/audio"
	"github.com/nvoss/parley/pkg/provider/stt"
)

const (
	defaultMinSegment        = 500 * time.Millisecond
	defaultTranscribeTimeout = 15 * time.Second
)

// sttFormat is what batch transcription backends want: 16 kHz mono PCM.
var sttFormat = audio.Format{SampleRate: 16000, Channels: 1}

// Outcome is the dispatcher's verdict for one segment.
type Outcome struct {
	// Transcript is the recognized text. Empty when the segment was
	// discarded before transcription or nothing was recognized.
	Transcript stt.Result

	// Speakers are the speaker IDs captured in the segment.
	Speakers []string

	// Interrupt reports that the utterance was an interrupt command. When
	// set, agent speech has already been stopped and Respond is false.
	Interrupt bool

	// Respond reports that the utterance warrants a spoken reply.
	Respond bool

	// Rule names the classifier rule behind Respond, for logging.
	Rule string

	// Discarded reports that the segment never reached transcription.
	Discarded bool

	// DiscardReason explains a discard ("too_short", "empty_transcript").
	DiscardReason string
}

// Config holds the dispatcher's tunables. The zero value selects defaults.
type Config struct {
	// MinSegmentDuration gates out coughs and key clicks. Segments shorter
	// than this are discarded without a transcription call. Default 500 ms.
	MinSegmentDuration time.Duration

	// TranscribeTimeout bounds one transcription call. Default 15 s.
	TranscribeTimeout time.Duration

	// InterruptPhrases are utterances that silence the agent ("stop",
	// "be quiet"). Matching is exact on normalized text.
	InterruptPhrases []string
}

func (c Config) withDefaults() Config {
	if c.MinSegmentDuration <= 0 {
		c.MinSegmentDuration = defaultMinSegment
	}
	if c.TranscribeTimeout <= 0 {
		c.TranscribeTimeout = defaultTranscribeTimeout
	}
	return c
}

// Dispatcher processes segments for one session. Safe for concurrent use;
// segments may be handled in parallel.
type Dispatcher struct {
	cfg        Config
	transcribe stt.Provider
	classifier *trigger.Classifier
	arbiter    *playback.Arbiter
	pool       *workerpool.Pool
	interrupts map[string]struct{}
	metrics    *observe.Metrics
	log        *slog.Logger
}

// Option is a functional option for configuring a Dispatcher.
type Option func(*Dispatcher)

// WithPool offloads CPU-bound audio conversion to pool. Without it the
// conversion runs on the calling goroutine.
func WithPool(pool *workerpool.Pool) Option {
	return func(d *Dispatcher) { d.pool = pool }
}

// WithMetrics sets the metrics sink. Defaults to observe.Default().
func WithMetrics(m *observe.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New creates a Dispatcher. provider and classifier are required; arbiter
// may be nil when there is no playback to interrupt. logger may be nil.
func New(cfg Config, provider stt.Provider, classifier *trigger.Classifier, arbiter *playback.Arbiter, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		cfg:        cfg.withDefaults(),
		transcribe: provider,
		classifier: classifier,
		arbiter:    arbiter,
		interrupts: make(map[string]struct{}, len(cfg.InterruptPhrases)),
		metrics:    observe.Default(),
		log:        logger,
	}
	for _, p := range cfg.InterruptPhrases {
		if n := normalize(p); n != "" {
			d.interrupts[n] = struct{}{}
		}
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Handle processes one finalized segment end to end and returns the
// outcome. An error means transcription itself failed; gating discards
// are not errors.
func (d *Dispatcher) Handle(ctx context.Context, seg listen.Segment) (Outcome, error) {
	d.metrics.SegmentDuration.Record(ctx, seg.Duration.Seconds())

	if seg.Duration < d.cfg.MinSegmentDuration {
		d.metrics.SegmentsDiscarded.Add(ctx, 1)
		d.log.Debug("segment below minimum duration",
			slog.Duration("duration", seg.Duration),
			slog.Duration("minimum", d.cfg.MinSegmentDuration))
		return Outcome{Speakers: seg.Speakers, Discarded: true, DiscardReason: "too_short"}, nil
	}

	wav, err := d.prepare(ctx, seg)
	if err != nil {
		return Outcome{Speakers: seg.Speakers}, err
	}

	tctx, cancel := context.WithTimeout(ctx, d.cfg.TranscribeTimeout)
	defer cancel()
	start := time.Now()
	result, err := d.transcribe.Transcribe(tctx, wav)
	observe.RecordStage(ctx, d.metrics.TranscriptionDuration, start, err)
	if err != nil {
		return Outcome{Speakers: seg.Speakers}, fmt.Errorf("transcribe segment: %w", err)
	}
	if strings.TrimSpace(result.Text) == "" {
		d.metrics.SegmentsDiscarded.Add(ctx, 1)
		return Outcome{Speakers: seg.Speakers, Discarded: true, DiscardReason: "empty_transcript"}, nil
	}

	out := Outcome{Transcript: result, Speakers: seg.Speakers}

	// Interrupt commands bypass classification entirely, but only mean
	// "be quiet" while the agent is actually speaking. Silencing it must
	// not wait on anything slower than a map lookup.
	if _, ok := d.interrupts[normalize(result.Text)]; ok && d.agentSpeaking() {
		out.Interrupt = true
		d.arbiter.StopIf(playback.TagTTS)
		d.metrics.Interrupts.Add(ctx, 1)
		d.log.Info("interrupt command", slog.String("text", result.Text))
		return out, nil
	}

	decision := d.classifier.Decide(result.Text)
	out.Respond = decision.Respond
	out.Rule = decision.Rule
	if decision.Respond {
		d.metrics.Responses.Add(ctx, 1)
	}
	d.log.Debug("segment classified",
		slog.String("text", result.Text),
		slog.Bool("respond", decision.Respond),
		slog.String("rule", decision.Rule))
	return out, nil
}

// agentSpeaking reports whether the output is currently on an agent
// voice line.
func (d *Dispatcher) agentSpeaking() bool {
	if d.arbiter == nil {
		return false
	}
	tag, playing := d.arbiter.Current()
	return playing && tag == playback.TagTTS
}

// prepare converts the segment to the transcriber's format and wraps it
// as WAV, on the worker pool when one is configured.
func (d *Dispatcher) prepare(ctx context.Context, seg listen.Segment) ([]byte, error) {
	var wav []byte
	job := func() {
		pcm := seg.PCM
		if seg.Format.Channels == 2 {
			pcm = audio.DownmixStereo(pcm)
		}
		if seg.Format.SampleRate != sttFormat.SampleRate {
			pcm = audio.ResampleMono16(pcm, seg.Format.SampleRate, sttFormat.SampleRate)
		}
		wav = audio.EncodeWAV(pcm, sttFormat.SampleRate, sttFormat.Channels)
	}
	if d.pool != nil {
		if err := d.pool.Do(ctx, job); err != nil {
			return nil, fmt.Errorf("convert segment: %w", err)
		}
	} else {
		job()
	}
	return wav, nil
}

// normalize lowercases text and strips punctuation so "Stop!" and "stop"
// compare equal.
func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '.', ',', '!', '?', ';', ':', '\'', '"':
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
