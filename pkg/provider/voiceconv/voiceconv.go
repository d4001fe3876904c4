// Package voiceconv defines the Converter interface for voice conversion
// backends, which transform synthesized speech into a target character
// voice. Conversion works on WAV files on disk: clips in this pipeline are
// short-lived temp files, and conversion backends are external processes
// that want file input anyway.
//
// Conversion is strictly optional: on any error the caller plays the
// unconverted clip instead.
package voiceconv

import "context"

// Converter transforms a WAV clip into the target voice.
//
// Implementations must be safe for concurrent use.
type Converter interface {
	// Convert reads the WAV at inPath and writes the converted clip to a new
	// file, returning its path. The caller owns both files and removes them
	// when playback is done.
	Convert(ctx context.Context, inPath string) (string, error)
}
