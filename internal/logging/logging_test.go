package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skybot.log")
	log := New(Config{Level: "debug", ToFile: true, FilePath: path})

	log.Infow("hello", "plugin", "seen")
	log.Sync() //nolint:errcheck

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello") {
		t.Errorf("log file missing message: %q", data)
	}
}

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skybot.log")
	log := New(Config{Level: "warn", ToFile: true, FilePath: path})

	log.Infow("quiet")
	log.Warnw("loud")
	log.Sync() //nolint:errcheck

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "quiet") {
		t.Error("info line logged at warn level")
	}
	if !strings.Contains(string(data), "loud") {
		t.Error("warn line missing")
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skybot.log")
	log := New(Config{Level: "shouty", ToFile: true, FilePath: path})

	log.Debugw("hidden")
	log.Infow("shown")
	log.Sync() //nolint:errcheck

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if strings.Contains(string(data), "hidden") {
		t.Error("debug line logged after invalid level")
	}
	if !strings.Contains(string(data), "shown") {
		t.Error("info line missing")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" || !cfg.ToStdout {
		t.Errorf("defaults = %+v", cfg)
	}
}
