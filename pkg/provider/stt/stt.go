// Package stt defines the Provider interface for Speech-to-Text backends.
//
// Providers are batch transcribers: segmentation already happened upstream
// (the listening monitor cuts utterances out of the capture stream), so a
// provider receives one complete WAV clip and returns one transcript.
// Implementations must be safe for concurrent use; the dispatcher may run
// several transcriptions at once.
package stt

import "context"

// Result is the transcript of one audio segment.
type Result struct {
	// Text is the transcribed text, whitespace-trimmed. Empty means the
	// provider heard nothing intelligible.
	Text string

	// Language is the detected or configured BCP-47 language code, when the
	// backend reports one.
	Language string
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe converts a complete WAV clip (PCM16) into text. It blocks
	// until the backend answers or ctx is done.
	Transcribe(ctx context.Context, wav []byte) (Result, error)
}
