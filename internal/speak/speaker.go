// Package speak renders a streamed text reply as ordered speech.
//
// The pipeline splits the reply into sentences, synthesizes several
// sentences in parallel, and plays the results strictly in generation
// order: sentence N+1 may finish rendering before sentence N, but it never
// plays first. Ordering is carried by a channel of per-sentence result
// channels, so playback simply drains them in the order they were created.
//
// A failed sentence is skipped, not fatal: the remaining sentences still
// play. Cancelling the context abandons everything not yet played, which
// is how barge-in cuts a reply short.
package speak

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nvoss/parley/internal/observe"
	"github.com/nvoss/parley/internal/playback"
	"github.com/nvoss/parley/pkg/audio"
	"github.com/nvoss/parley/pkg/provider/tts"
	"github.com/nvoss/parley/pkg/provider/voiceconv"
)

// defaultParallelism bounds concurrent synthesis per reply. Two in flight
// keeps the next sentence ready without hammering the TTS backend.
const defaultParallelism = 2

// Speaker renders replies through a TTS provider onto a playback arbiter.
type Speaker struct {
	tts      tts.Provider
	conv     voiceconv.Converter
	arbiter  *playback.Arbiter
	output   audio.Format
	parallel int
	tmpDir   string
	metrics  *observe.Metrics
	log      *slog.Logger
}

// Option is a functional option for configuring a Speaker.
type Option func(*Speaker)

// WithVoiceConversion routes every synthesized clip through conv before
// playback. Conversion failures fall back to the unconverted clip.
func WithVoiceConversion(conv voiceconv.Converter) Option {
	return func(s *Speaker) { s.conv = conv }
}

// WithParallelism bounds how many sentences may synthesize concurrently.
func WithParallelism(n int) Option {
	return func(s *Speaker) {
		if n > 0 {
			s.parallel = n
		}
	}
}

// WithTempDir sets the directory for intermediate clip files. Defaults to
// the system temp directory.
func WithTempDir(dir string) Option {
	return func(s *Speaker) { s.tmpDir = dir }
}

// WithMetrics sets the metrics sink. Defaults to observe.Default().
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Speaker) { s.metrics = m }
}

// New creates a Speaker that plays through arbiter in the given output
// format. logger may be nil.
func New(provider tts.Provider, arbiter *playback.Arbiter, output audio.Format, logger *slog.Logger, opts ...Option) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Speaker{
		tts:      provider,
		arbiter:  arbiter,
		output:   output,
		parallel: defaultParallelism,
		tmpDir:   os.TempDir(),
		metrics:  observe.Default(),
		log:      logger,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// clipResult is the rendered form of one sentence.
type clipResult struct {
	pcm []byte
	err error
}

// Speak consumes fragments until they close and plays the reply sentence
// by sentence. It returns when every sentence has played, been skipped, or
// ctx was cancelled. A cancelled ctx returns ctx.Err(); per-sentence
// failures do not surface as errors.
func (s *Speaker) Speak(ctx context.Context, fragments <-chan string) error {
	sentences := Sentences(fragments)

	// Generation order is fixed by the order result channels are enqueued;
	// synthesis itself runs out of order behind them.
	results := make(chan chan clipResult, s.parallel)

	go func() {
		defer close(results)
		workers, wctx := errgroup.WithContext(ctx)
		workers.SetLimit(s.parallel)
		for sentence := range sentences {
			if wctx.Err() != nil {
				// Drain remaining sentences so the splitter goroutine exits.
				continue
			}
			resCh := make(chan clipResult, 1)
			select {
			case results <- resCh:
			case <-wctx.Done():
				continue
			}
			workers.Go(func() error {
				resCh <- s.render(wctx, sentence)
				return nil
			})
		}
		workers.Wait()
	}()

	for resCh := range results {
		var res clipResult
		select {
		case res = <-resCh:
		case <-ctx.Done():
			go drainResults(results)
			return ctx.Err()
		}
		if res.err != nil {
			s.metrics.SentencesSkipped.Add(ctx, 1)
			s.log.Warn("skipping sentence", slog.String("error", res.err.Error()))
			continue
		}
		if err := s.play(ctx, res.pcm); err != nil {
			if ctx.Err() != nil {
				go drainResults(results)
				return ctx.Err()
			}
			s.metrics.SentencesSkipped.Add(ctx, 1)
			s.log.Warn("skipping sentence playback", slog.String("error", err.Error()))
		}
	}
	return ctx.Err()
}

// play submits pcm as agent speech and waits for it to finish or be cut.
func (s *Speaker) play(ctx context.Context, pcm []byte) error {
	done, err := s.arbiter.Play(pcm, playback.TagTTS)
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.arbiter.StopIf(playback.TagTTS)
		<-done
		return ctx.Err()
	}
}

// render synthesizes one sentence, optionally converts the voice, and
// resamples to the output format.
func (s *Speaker) render(ctx context.Context, sentence string) clipResult {
	start := time.Now()
	clip, err := s.tts.Synthesize(ctx, sentence)
	observe.RecordStage(ctx, s.metrics.SynthesisDuration, start, err)
	if err != nil {
		return clipResult{err: fmt.Errorf("synthesize: %w", err)}
	}

	if s.conv != nil {
		clip = s.convertVoice(ctx, clip)
	}

	pcm, err := fitFormat(clip.PCM, clip.Format, s.output)
	if err != nil {
		return clipResult{err: fmt.Errorf("fit output format: %w", err)}
	}
	return clipResult{pcm: pcm}
}

// convertVoice runs clip through the voice converter. Any failure returns
// the original clip; conversion is best-effort. Intermediate files are
// removed on every path.
func (s *Speaker) convertVoice(ctx context.Context, clip tts.Clip) tts.Clip {
	start := time.Now()

	in, err := os.CreateTemp(s.tmpDir, "clip-*.wav")
	if err != nil {
		s.log.Warn("voice conversion skipped", slog.String("error", err.Error()))
		return clip
	}
	inPath := in.Name()
	defer os.Remove(inPath)

	wav := audio.EncodeWAV(clip.PCM, clip.Format.SampleRate, clip.Format.Channels)
	if _, err := in.Write(wav); err != nil {
		in.Close()
		s.log.Warn("voice conversion skipped", slog.String("error", err.Error()))
		return clip
	}
	if err := in.Close(); err != nil {
		s.log.Warn("voice conversion skipped", slog.String("error", err.Error()))
		return clip
	}

	outPath, err := s.conv.Convert(ctx, inPath)
	observe.RecordStage(ctx, s.metrics.ConversionDuration, start, err)
	if err != nil {
		s.log.Warn("voice conversion failed, playing original",
			slog.String("error", err.Error()))
		return clip
	}
	if outPath != inPath {
		defer os.Remove(outPath)
	}

	converted, err := os.ReadFile(outPath)
	if err != nil {
		s.log.Warn("voice conversion unreadable, playing original",
			slog.String("clip", filepath.Base(outPath)),
			slog.String("error", err.Error()))
		return clip
	}
	pcm, format, err := audio.DecodeWAV(converted)
	if err != nil {
		s.log.Warn("voice conversion undecodable, playing original",
			slog.String("error", err.Error()))
		return clip
	}
	return tts.Clip{PCM: pcm, Format: format}
}

// fitFormat resamples and remixes pcm from one format into another.
func fitFormat(pcm []byte, from, to audio.Format) ([]byte, error) {
	if from.SampleRate <= 0 || from.Channels <= 0 {
		return nil, fmt.Errorf("invalid source format %d Hz %d ch", from.SampleRate, from.Channels)
	}
	if from == to {
		return pcm, nil
	}
	if from.Channels == 2 {
		pcm = audio.DownmixStereo(pcm)
	}
	if from.SampleRate != to.SampleRate {
		pcm = audio.ResampleMono16(pcm, from.SampleRate, to.SampleRate)
	}
	if to.Channels == 2 {
		pcm = audio.MonoToStereo(pcm)
	}
	return pcm, nil
}

// drainResults discards pending per-sentence results after an abandon so
// synthesis workers never block on their buffered channels.
func drainResults(results <-chan chan clipResult) {
	for resCh := range results {
		select {
		case <-resCh:
		default:
		}
	}
}
