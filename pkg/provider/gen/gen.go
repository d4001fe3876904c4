// Package gen defines the Generator interface for the response backend
// that turns a transcript into the agent's reply.
//
// Replies stream: the speaking pipeline consumes text incrementally and
// starts synthesizing the first sentence while the rest is still being
// generated, so Generator hands back a channel rather than a string.
package gen

import "context"

// Request is one turn handed to the generator.
type Request struct {
	// Text is the user's transcribed utterance.
	Text string

	// SpeakerID identifies who spoke, when known.
	SpeakerID string

	// ChannelID identifies the voice channel the session runs in.
	ChannelID string
}

// Generator produces the agent's spoken reply as a token stream.
//
// Implementations must be safe for concurrent use.
type Generator interface {
	// Generate starts producing a reply. The returned channel emits text
	// fragments in order and is closed when the reply is complete or ctx is
	// done; a reply that fails mid-stream simply ends early.
	Generate(ctx context.Context, req Request) (<-chan string, error)
}
