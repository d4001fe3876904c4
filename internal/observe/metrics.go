// Package observe provides the application's observability primitives:
// OpenTelemetry metric instruments for every pipeline stage and a Prometheus
// exporter bridge so they can be scraped from a /metrics endpoint.
//
// A package-level default [Metrics] instance ([Default]) is provided for
// convenience; tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope for all parley metrics.
const meterName = "github.com/nvoss/parley"

// Metrics holds the OpenTelemetry instruments for the voice pipeline.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscriptionDuration tracks segment transcription latency.
	TranscriptionDuration metric.Float64Histogram

	// SynthesisDuration tracks per-sentence speech synthesis latency.
	SynthesisDuration metric.Float64Histogram

	// ConversionDuration tracks per-sentence voice conversion latency.
	ConversionDuration metric.Float64Histogram

	// SegmentDuration tracks the audio length of finalized speech segments.
	SegmentDuration metric.Float64Histogram

	// --- Counters ---

	// FramesDropped counts capture frames evicted by the overflow policy.
	FramesDropped metric.Int64Counter

	// SegmentsDiscarded counts segments dropped before transcription.
	// Use with attribute.String("reason", "too_short"|"transcription_failed").
	SegmentsDiscarded metric.Int64Counter

	// SentencesSkipped counts sentences dropped from a synthesis stream.
	// Use with attribute.String("reason", "synthesis_failed"|"playback_failed"|"session_ended").
	SentencesSkipped metric.Int64Counter

	// BargeIns counts synthesized replies cut short by user speech.
	BargeIns metric.Int64Counter

	// Interrupts counts interrupt-phrase fast-path hits.
	Interrupts metric.Int64Counter

	// Responses counts transcripts that triggered a spoken reply.
	// Use with attribute.String("rule", ...) naming the classifier rule.
	Responses metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live listening sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] using the given meter
// provider. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	if met.TranscriptionDuration, err = m.Float64Histogram("parley.transcription.duration",
		metric.WithDescription("Latency of segment transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SynthesisDuration, err = m.Float64Histogram("parley.synthesis.duration",
		metric.WithDescription("Latency of per-sentence speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ConversionDuration, err = m.Float64Histogram("parley.conversion.duration",
		metric.WithDescription("Latency of per-sentence voice conversion."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SegmentDuration, err = m.Float64Histogram("parley.segment.duration",
		metric.WithDescription("Audio length of finalized speech segments."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if met.FramesDropped, err = m.Int64Counter("parley.capture.frames_dropped",
		metric.WithDescription("Capture frames evicted by the overflow policy."),
	); err != nil {
		return nil, err
	}
	if met.SegmentsDiscarded, err = m.Int64Counter("parley.segments.discarded",
		metric.WithDescription("Segments dropped before reaching the classifier."),
	); err != nil {
		return nil, err
	}
	if met.SentencesSkipped, err = m.Int64Counter("parley.sentences.skipped",
		metric.WithDescription("Sentences dropped from a synthesis stream."),
	); err != nil {
		return nil, err
	}
	if met.BargeIns, err = m.Int64Counter("parley.bargeins",
		metric.WithDescription("Synthesized replies cut short by user speech."),
	); err != nil {
		return nil, err
	}
	if met.Interrupts, err = m.Int64Counter("parley.interrupts",
		metric.WithDescription("Interrupt-phrase fast-path hits."),
	); err != nil {
		return nil, err
	}
	if met.Responses, err = m.Int64Counter("parley.responses",
		metric.WithDescription("Transcripts that triggered a spoken reply."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("parley.sessions.active",
		metric.WithDescription("Live listening sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordStage is a convenience for recording a stage latency histogram with a
// status attribute derived from err.
func RecordStage(ctx context.Context, h metric.Float64Histogram, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	h.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("status", status)))
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the process-wide Metrics instance backed by the global
// meter provider. Instruments are created lazily on first use; creation
// errors fall back to a no-op meter provider so callers never receive nil.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			m, _ = NewMetrics(noop.NewMeterProvider())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}
