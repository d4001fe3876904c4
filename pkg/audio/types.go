package audio

import "time"

// Frame is a single chunk of raw PCM audio moving through the pipeline.
// Frames are ephemeral: they are owned by the capture sink from the moment
// they are written until the segment they belong to is consumed, and are
// never persisted.
type Frame struct {
	// Data is interleaved little-endian int16 PCM.
	Data []byte

	// SampleRate in Hz (48000 for the voice gateway, 16000 for STT input).
	SampleRate int

	// Channels: 2 for gateway capture, 1 for STT input.
	Channels int

	// SpeakerID identifies the participant this frame was captured from.
	SpeakerID string

	// ReceivedAt is the arrival time of the frame at the capture boundary.
	ReceivedAt time.Time
}

// Duration returns the play time of the frame's PCM payload.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	samples := len(f.Data) / (2 * f.Channels)
	return time.Duration(samples) * time.Second / time.Duration(f.SampleRate)
}

// Format describes the sample rate and channel count of a PCM stream.
type Format struct {
	SampleRate int
	Channels   int
}
