package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nvoss/parley/internal/resilience"
	"github.com/nvoss/parley/pkg/provider/stt"
	sttmock "github.com/nvoss/parley/pkg/provider/stt/mock"
)

func TestChain_PrimarySuccess(t *testing.T) {
	t.Parallel()
	c := resilience.NewChain("primary", 1, resilience.BreakerConfig{})
	c.Add("alternate", 2)

	var used []int
	err := c.Try(func(v int) error {
		used = append(used, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Try: %v", err)
	}
	if len(used) != 1 || used[0] != 1 {
		t.Errorf("used = %v, want primary only", used)
	}
}

func TestChain_FailoverToAlternate(t *testing.T) {
	t.Parallel()
	c := resilience.NewChain("primary", 1, resilience.BreakerConfig{})
	c.Add("alternate", 2)

	got, err := resilience.TryResult(c, func(v int) (int, error) {
		if v == 1 {
			return 0, errBackend
		}
		return v * 10, nil
	})
	if err != nil {
		t.Fatalf("TryResult: %v", err)
	}
	if got != 20 {
		t.Errorf("got %d, want 20 from alternate", got)
	}
}

func TestChain_AllFailed(t *testing.T) {
	t.Parallel()
	c := resilience.NewChain("only", 1, resilience.BreakerConfig{})

	err := c.Try(func(int) error { return errBackend })
	if !errors.Is(err, resilience.ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
}

func TestChain_OpenBreakerSkipsEntry(t *testing.T) {
	t.Parallel()
	c := resilience.NewChain("primary", 1, resilience.BreakerConfig{Trip: 1, Cooldown: time.Hour})
	c.Add("alternate", 2)

	// Trip the primary's breaker.
	_ = c.Try(func(v int) error {
		if v == 1 {
			return errBackend
		}
		return nil
	})

	var used []int
	err := c.Try(func(v int) error {
		used = append(used, v)
		return nil
	})
	if err != nil {
		t.Fatalf("Try: %v", err)
	}
	if len(used) != 1 || used[0] != 2 {
		t.Errorf("used = %v, want alternate only while primary is open", used)
	}
}

func TestSTT_FailoverTranscribe(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{Err: errBackend}
	alternate := &sttmock.Provider{Result: stt.Result{Text: "hello"}}

	f := resilience.NewSTT("primary", primary, resilience.BreakerConfig{})
	f.Add("alternate", alternate)

	res, err := f.Transcribe(context.Background(), []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Text != "hello" {
		t.Errorf("text = %q", res.Text)
	}
	if primary.CallCount() != 1 || alternate.CallCount() != 1 {
		t.Errorf("calls primary=%d alternate=%d, want 1 each", primary.CallCount(), alternate.CallCount())
	}
}
