package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nvoss/parley/internal/config"
)

func writeConfigFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.yaml")
	writeConfigFile(t, path, validYAML)

	var mu sync.Mutex
	var gotOld, gotNew *config.Config
	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		mu.Lock()
		gotOld, gotNew = old, new
		mu.Unlock()
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	if w.Current().Server.LogLevel != config.LogInfo {
		t.Fatalf("initial log level = %q", w.Current().Server.LogLevel)
	}

	// mtime granularity can be coarse; make sure it moves.
	time.Sleep(20 * time.Millisecond)
	writeConfigFile(t, path, strings.Replace(validYAML, "log_level: info", "log_level: debug", 1))
	future := time.Now().Add(time.Second)
	os.Chtimes(path, future, future)

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		old, new := gotOld, gotNew
		mu.Unlock()
		if new != nil {
			if old.Server.LogLevel != config.LogInfo || new.Server.LogLevel != config.LogDebug {
				t.Errorf("onChange old=%q new=%q", old.Server.LogLevel, new.Server.LogLevel)
			}
			if w.Current().Server.LogLevel != config.LogDebug {
				t.Errorf("Current not updated: %q", w.Current().Server.LogLevel)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher never reported the change")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWatcher_KeepsOldConfigOnInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.yaml")
	writeConfigFile(t, path, validYAML)

	called := make(chan struct{}, 1)
	w, err := config.NewWatcher(path, func(_, _ *config.Config) {
		select {
		case called <- struct{}{}:
		default:
		}
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	writeConfigFile(t, path, "discord: [not a mapping\n")
	future := time.Now().Add(time.Second)
	os.Chtimes(path, future, future)

	select {
	case <-called:
		t.Fatal("onChange fired for an invalid config")
	case <-time.After(200 * time.Millisecond):
	}
	if w.Current().Discord.Token != "bot-token" {
		t.Errorf("Current lost the last valid config")
	}
}

func TestWatcher_InitialLoadFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}
