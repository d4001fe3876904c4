package voice

import "time"

// EventKind identifies what happened in a session.
type EventKind int

const (
	// EventTranscript is a recognized user utterance, whether or not it
	// triggered a reply.
	EventTranscript EventKind = iota

	// EventInterrupt is a recognized interrupt command. Agent speech has
	// already been stopped when this event is emitted.
	EventInterrupt

	// EventResponseStarted marks the beginning of a spoken reply.
	EventResponseStarted

	// EventResponseFinished marks the end of a spoken reply, including
	// replies cut short by barge-in or interrupt.
	EventResponseFinished

	// EventBargeIn marks a speech onset that cut off agent playback.
	EventBargeIn
)

// String returns the event kind name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventTranscript:
		return "transcript"
	case EventInterrupt:
		return "interrupt"
	case EventResponseStarted:
		return "response_started"
	case EventResponseFinished:
		return "response_finished"
	case EventBargeIn:
		return "barge_in"
	default:
		return "unknown"
	}
}

// Event is one observable session occurrence. Consumers that fall behind
// lose events rather than stalling the pipeline.
type Event struct {
	Kind      EventKind
	SessionID string
	ChannelID string

	// Text carries the transcript or reply text, when the kind has one.
	Text string

	// Rule names the classifier rule behind a reply.
	Rule string

	// Speakers are the speaker IDs involved, when known.
	Speakers []string

	At time.Time
}
