// Package trigger decides whether a transcript warrants a spoken reply.
//
// The classifier is a pure, priority-ordered rule chain: precise high-signal
// rules (addressed by name, direct question) are checked before the
// low-precision length heuristic, and the first match wins. It holds no
// state and performs no I/O, so a decision is cheap enough to run inline on
// the dispatch path.
package trigger

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

// Decision is the classifier's verdict for one transcript.
type Decision struct {
	// Respond reports whether a spoken reply is warranted.
	Respond bool

	// Rule names the rule that matched, for logging and metrics.
	// Empty when no rule matched.
	Rule string
}

// Config holds the tunable parts of the rule chain.
type Config struct {
	// TriggerWords are names the agent answers to (e.g. its display name and
	// nicknames). Matching is case-insensitive on word boundaries.
	TriggerWords []string

	// PhoneticSimilarity is the Jaro-Winkler score at or above which a word
	// counts as a mis-heard trigger word. Zero selects the default of 0.88.
	PhoneticSimilarity float64
}

// Classifier implements the ordered rule chain. It is immutable after New
// and safe for concurrent use.
type Classifier struct {
	triggers    []string
	phonSim     float64
	greetPrefix *regexp.Regexp
}

// greetingPattern matches an address-like opener ("hey bot", "okay parley,")
// and captures the addressed name. Transcription renders @-mentions and
// spoken names this way.
var greetingPattern = regexp.MustCompile(`(?i)^(?:hey|hi|yo|ok|okay|hello)[ ,]+([a-z']+)`)

// imperativePhrases are request openers that warrant a reply even without a
// question mark.
var imperativePhrases = []string{
	"tell me", "tell us", "explain", "describe",
	"can you", "could you", "would you", "will you",
	"what do you", "what's your", "show me", "give me", "help me",
	"do you know", "remind me",
}

// firstPersonOpeners mark conversational statements directed at the room.
var firstPersonOpeners = []string{
	"i'm ", "im ", "i am ", "i think ", "i feel ", "i was ", "i have ",
	"i've ", "i just ", "i wonder ",
}

// New creates a Classifier. Trigger words are lowercased once here.
func New(cfg Config) *Classifier {
	triggers := make([]string, 0, len(cfg.TriggerWords))
	for _, w := range cfg.TriggerWords {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			triggers = append(triggers, w)
		}
	}
	sim := cfg.PhoneticSimilarity
	if sim <= 0 {
		sim = 0.88
	}
	return &Classifier{
		triggers:    triggers,
		phonSim:     sim,
		greetPrefix: greetingPattern,
	}
}

// Decide runs the rule chain over text. Rules are checked in priority order;
// the first match wins.
func (c *Classifier) Decide(text string) Decision {
	norm := strings.ToLower(strings.TrimSpace(text))
	if norm == "" {
		return Decision{}
	}
	words := strings.Fields(norm)

	// 1. Contains a trigger word.
	for _, w := range words {
		if containsString(c.triggers, trimPunct(w)) {
			return Decision{Respond: true, Rule: "trigger_word"}
		}
	}

	// 2. Address-like opener whose name is phonetically close to a trigger
	// word, covering transcription mis-hearings of the agent's name.
	if m := c.greetPrefix.FindStringSubmatch(norm); m != nil {
		if c.soundsLikeTrigger(m[1]) {
			return Decision{Respond: true, Rule: "misheard_mention"}
		}
	}

	// 3. Direct question.
	if strings.HasSuffix(strings.TrimRight(norm, " "), "?") {
		return Decision{Respond: true, Rule: "question"}
	}

	// 4. Imperative request.
	for _, p := range imperativePhrases {
		if strings.Contains(norm, p) {
			return Decision{Respond: true, Rule: "imperative"}
		}
	}

	// 5. First-person conversational opener of some substance.
	if len(words) >= 3 {
		for _, p := range firstPersonOpeners {
			if strings.HasPrefix(norm, p) {
				return Decision{Respond: true, Rule: "first_person"}
			}
		}
	}

	// 6. Substantial utterance heuristic.
	if len(words) >= 5 {
		return Decision{Respond: true, Rule: "long_utterance"}
	}

	return Decision{}
}

// soundsLikeTrigger reports whether word is phonetically close to any
// trigger word, by metaphone equality or Jaro-Winkler similarity.
func (c *Classifier) soundsLikeTrigger(word string) bool {
	word = trimPunct(word)
	if word == "" {
		return false
	}
	wp, ws := matchr.DoubleMetaphone(word)
	for _, t := range c.triggers {
		tp, ts := matchr.DoubleMetaphone(t)
		if wp != "" && (wp == tp || wp == ts) || ws != "" && (ws == tp || ws == ts) {
			return true
		}
		if matchr.JaroWinkler(word, t, false) >= c.phonSim {
			return true
		}
	}
	return false
}

// trimPunct strips leading and trailing punctuation from a token.
func trimPunct(s string) string {
	return strings.Trim(s, ".,!?;:'\"()")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
