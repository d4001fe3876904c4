// Package capture buffers raw PCM frames pushed from the voice transport.
//
// The transport is push-only with no backpressure signal, so the sink
// self-protects: each speaker gets a bounded buffer that drops its oldest
// frames on overflow. Writes never block and never fail; the receive path
// must stay clear no matter what the rest of the pipeline is doing.
package capture

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nvoss/parley/pkg/audio"
)

// DefaultCapacity is how much audio per speaker the sink retains before the
// drop-oldest policy kicks in.
const DefaultCapacity = 30 * time.Second

// Sink accumulates per-speaker audio between segment boundaries.
// All methods are safe for concurrent use: the transport writes, the
// activity monitor and dispatcher read, and Clear runs at segment
// boundaries.
type Sink struct {
	format   audio.Format
	maxBytes int

	mu       sync.Mutex
	speakers map[string]*speakerBuffer

	dropped atomic.Int64
}

// speakerBuffer holds one participant's frames in arrival order.
type speakerBuffer struct {
	frames []audio.Frame
	bytes  int
	warned bool
}

// New creates a Sink for streams in the given format, retaining up to
// capacity of audio per speaker. capacity <= 0 selects DefaultCapacity.
func New(format audio.Format, capacity time.Duration) *Sink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	bytesPerSecond := format.SampleRate * format.Channels * 2
	return &Sink{
		format:   format,
		maxBytes: int(capacity.Seconds() * float64(bytesPerSecond)),
		speakers: make(map[string]*speakerBuffer),
	}
}

// Write appends frame to its speaker's buffer. Malformed frames (empty or
// odd-length payloads) are dropped silently. On overflow the oldest frames
// are evicted until the buffer fits; eviction logs a warning once per
// speaker per segment and is counted, but never blocks or errors.
func (s *Sink) Write(frame audio.Frame) {
	if len(frame.Data) < 2 || len(frame.Data)%2 != 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.speakers[frame.SpeakerID]
	if buf == nil {
		buf = &speakerBuffer{}
		s.speakers[frame.SpeakerID] = buf
	}

	buf.frames = append(buf.frames, frame)
	buf.bytes += len(frame.Data)

	evicted := 0
	for buf.bytes > s.maxBytes && len(buf.frames) > 1 {
		buf.bytes -= len(buf.frames[0].Data)
		buf.frames[0].Data = nil
		buf.frames = buf.frames[1:]
		evicted++
	}
	if evicted > 0 {
		s.dropped.Add(int64(evicted))
		if !buf.warned {
			buf.warned = true
			slog.Warn("capture: buffer overflow, dropping oldest frames",
				"speaker", frame.SpeakerID,
				"evicted", evicted,
				"cap_bytes", s.maxBytes,
			)
		}
	}
}

// Speaker returns a copy of the accumulated PCM for one speaker, oldest
// first. Returns nil for an unknown speaker.
func (s *Sink) Speaker(id string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.speakers[id]
	if buf == nil {
		return nil
	}
	out := make([]byte, 0, buf.bytes)
	for _, f := range buf.frames {
		out = append(out, f.Data...)
	}
	return out
}

// Combined returns all speakers' audio mixed into a single stream. Streams
// are aligned at their buffer starts and summed with int16 clamping; the
// result is as long as the longest speaker buffer.
func (s *Sink) Combined() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	var streams [][]byte
	maxLen := 0
	for _, buf := range s.speakers {
		pcm := make([]byte, 0, buf.bytes)
		for _, f := range buf.frames {
			pcm = append(pcm, f.Data...)
		}
		if len(pcm) == 0 {
			continue
		}
		streams = append(streams, pcm)
		if len(pcm) > maxLen {
			maxLen = len(pcm)
		}
	}

	switch len(streams) {
	case 0:
		return nil
	case 1:
		return streams[0]
	}

	out := make([]byte, maxLen)
	for i := 0; i+1 < maxLen; i += 2 {
		var sum int32
		for _, st := range streams {
			if i+1 < len(st) {
				sum += int32(int16(st[i]) | int16(st[i+1])<<8)
			}
		}
		if sum > 32767 {
			sum = 32767
		} else if sum < -32768 {
			sum = -32768
		}
		out[i] = byte(sum)
		out[i+1] = byte(sum >> 8)
	}
	return out
}

// SpeakerIDs returns the ids of all speakers with buffered audio.
func (s *Sink) SpeakerIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.speakers))
	for id, buf := range s.speakers {
		if buf.bytes > 0 {
			ids = append(ids, id)
		}
	}
	return ids
}

// Duration returns the play time of the longest speaker buffer.
func (s *Sink) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	bytesPerSecond := s.format.SampleRate * s.format.Channels * 2
	if bytesPerSecond <= 0 {
		return 0
	}
	max := 0
	for _, buf := range s.speakers {
		if buf.bytes > max {
			max = buf.bytes
		}
	}
	return time.Duration(float64(max) / float64(bytesPerSecond) * float64(time.Second))
}

// Clear discards all buffered audio. Called at segment boundaries.
func (s *Sink) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speakers = make(map[string]*speakerBuffer)
}

// Dropped returns the total number of frames evicted by the overflow policy
// since the sink was created.
func (s *Sink) Dropped() int64 { return s.dropped.Load() }

// Format returns the PCM format the sink was created for.
func (s *Sink) Format() audio.Format { return s.format }
