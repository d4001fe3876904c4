package trigger_test

import (
	"testing"

	"github.com/nvoss/parley/internal/trigger"
)

func newTestClassifier() *trigger.Classifier {
	return trigger.New(trigger.Config{TriggerWords: []string{"bot", "parley"}})
}

func TestDecide_TriggerWord(t *testing.T) {
	c := newTestClassifier()
	d := c.Decide("hey bot, what's up")
	if !d.Respond {
		t.Fatal("expected respond for trigger word")
	}
	if d.Rule != "trigger_word" {
		t.Errorf("rule = %q, want trigger_word", d.Rule)
	}
}

func TestDecide_TriggerWordCaseAndPunctuation(t *testing.T) {
	c := newTestClassifier()
	for _, text := range []string{"BOT!", "ok Parley.", "was that the bot?"} {
		if d := c.Decide(text); !d.Respond || d.Rule != "trigger_word" {
			t.Errorf("Decide(%q) = %+v, want trigger_word match", text, d)
		}
	}
}

func TestDecide_Question(t *testing.T) {
	c := newTestClassifier()
	d := c.Decide("Are you there?")
	if !d.Respond {
		t.Fatal("expected respond for question")
	}
	if d.Rule != "question" {
		t.Errorf("rule = %q, want question", d.Rule)
	}
}

func TestDecide_ShortRemarkStaysSilent(t *testing.T) {
	c := newTestClassifier()
	for _, text := range []string{"cool", "haha nice", "yeah", "oh wow okay"} {
		if d := c.Decide(text); d.Respond {
			t.Errorf("Decide(%q) = %+v, want silent", text, d)
		}
	}
}

func TestDecide_MisheardMention(t *testing.T) {
	c := trigger.New(trigger.Config{TriggerWords: []string{"parley"}})
	// "parly" is a plausible transcription of the name.
	d := c.Decide("hey parly can we continue")
	if !d.Respond {
		t.Fatal("expected respond for misheard mention")
	}
	if d.Rule != "misheard_mention" {
		t.Errorf("rule = %q, want misheard_mention", d.Rule)
	}
}

func TestDecide_Imperative(t *testing.T) {
	c := newTestClassifier()
	d := c.Decide("tell me about the last session")
	if !d.Respond {
		t.Fatal("expected respond for imperative")
	}
	if d.Rule != "imperative" {
		t.Errorf("rule = %q, want imperative", d.Rule)
	}
}

func TestDecide_FirstPersonOpener(t *testing.T) {
	c := newTestClassifier()
	d := c.Decide("I think we should rest")
	if !d.Respond {
		t.Fatal("expected respond for first person opener")
	}
	if d.Rule != "first_person" {
		t.Errorf("rule = %q, want first_person", d.Rule)
	}
}

func TestDecide_LongUtterance(t *testing.T) {
	c := newTestClassifier()
	d := c.Decide("the party walked into the dark cave slowly")
	if !d.Respond {
		t.Fatal("expected respond for long utterance")
	}
	if d.Rule != "long_utterance" {
		t.Errorf("rule = %q, want long_utterance", d.Rule)
	}
}

func TestDecide_Empty(t *testing.T) {
	c := newTestClassifier()
	if d := c.Decide("   "); d.Respond || d.Rule != "" {
		t.Errorf("Decide(blank) = %+v, want zero decision", d)
	}
}

func TestDecide_RulePriority(t *testing.T) {
	c := newTestClassifier()
	// Contains both a trigger word and a question mark; the trigger word
	// rule runs first.
	d := c.Decide("bot, are we done yet?")
	if d.Rule != "trigger_word" {
		t.Errorf("rule = %q, want trigger_word to win over question", d.Rule)
	}
}
