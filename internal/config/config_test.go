package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/teslashibe/go-narrator/internal/config"
)

func TestDefaultConfig_MatchesNarratorDefaults(t *testing.T) {
	cfg := config.DefaultConfig()

	if cfg.Camera.FrameWidth != 640 {
		t.Errorf("Expected FrameWidth=640, got %d", cfg.Camera.FrameWidth)
	}
	if cfg.Presence.AbsenceReset != 1500*time.Millisecond {
		t.Errorf("Expected AbsenceReset=1.5s, got %v", cfg.Presence.AbsenceReset)
	}
	if cfg.Presence.GraceMargin != 500*time.Millisecond {
		t.Errorf("Expected GraceMargin=0.5s, got %v", cfg.Presence.GraceMargin)
	}
	if cfg.Announce.Cadence != 2*time.Second {
		t.Errorf("Expected Cadence=2s, got %v", cfg.Announce.Cadence)
	}
	if cfg.Announce.MaxQueueDepth != 3 {
		t.Errorf("Expected MaxQueueDepth=3, got %d", cfg.Announce.MaxQueueDepth)
	}
	if cfg.Detector.Confidence != 0.5 {
		t.Errorf("Expected Confidence=0.5, got %v", cfg.Detector.Confidence)
	}
	if cfg.TTS.Rate != 170 {
		t.Errorf("Expected Rate=170, got %d", cfg.TTS.Rate)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestLoadFromReader_Overrides(t *testing.T) {
	yaml := `
presence:
  absence_reset: 3s
  grace_margin: 250ms
announce:
  cadence: 4s
  max_queue_depth: 1
tts:
  provider: mock
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Presence.AbsenceReset != 3*time.Second {
		t.Errorf("absence_reset = %v, want 3s", cfg.Presence.AbsenceReset)
	}
	if cfg.Presence.GraceMargin != 250*time.Millisecond {
		t.Errorf("grace_margin = %v, want 250ms", cfg.Presence.GraceMargin)
	}
	if cfg.Announce.Cadence != 4*time.Second {
		t.Errorf("cadence = %v, want 4s", cfg.Announce.Cadence)
	}
	if cfg.Announce.MaxQueueDepth != 1 {
		t.Errorf("max_queue_depth = %d, want 1", cfg.Announce.MaxQueueDepth)
	}
	if cfg.TTS.Provider != config.TTSMock {
		t.Errorf("provider = %q, want mock", cfg.TTS.Provider)
	}
	// Untouched sections keep their defaults.
	if cfg.Camera.FrameWidth != 640 {
		t.Errorf("frame_width = %d, want default 640", cfg.Camera.FrameWidth)
	}
}

func TestLoadFromReader_EmptyDocument(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Announce.Cadence != 2*time.Second {
		t.Errorf("cadence = %v, want default", cfg.Announce.Cadence)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	_, err := config.LoadFromReader(strings.NewReader("announce:\n  cadense: 2s\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"zero frame width", func(c *config.Config) { c.Camera.FrameWidth = 0 }, "camera.frame_width"},
		{"negative frame width", func(c *config.Config) { c.Camera.FrameWidth = -1 }, "camera.frame_width"},
		{"zero cadence", func(c *config.Config) { c.Announce.Cadence = 0 }, "announce.cadence"},
		{"negative cadence", func(c *config.Config) { c.Announce.Cadence = -time.Second }, "announce.cadence"},
		{"zero queue depth", func(c *config.Config) { c.Announce.MaxQueueDepth = 0 }, "announce.max_queue_depth"},
		{"negative absence", func(c *config.Config) { c.Presence.AbsenceReset = -time.Second }, "presence.absence_reset"},
		{"negative grace", func(c *config.Config) { c.Presence.GraceMargin = -time.Second }, "presence.grace_margin"},
		{"confidence above one", func(c *config.Config) { c.Detector.Confidence = 1.5 }, "detector.confidence"},
		{"zero poll interval", func(c *config.Config) { c.Speech.PollInterval = 0 }, "speech.poll_interval"},
		{"unknown tts", func(c *config.Config) { c.TTS.Provider = "pyttsx3" }, "tts.provider"},
		{"openai without key", func(c *config.Config) { c.TTS.Provider = config.TTSOpenAI }, "OPENAI_API_KEY"},
		{"empty player", func(c *config.Config) { c.Speech.Player = nil }, "speech.player"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error should mention %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestValidate_JoinsAllFailures(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Camera.FrameWidth = 0
	cfg.Announce.Cadence = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"camera.frame_width", "announce.cadence"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEY":          "sk-test",
		"NARRATOR_TTS":            "openai",
		"NARRATOR_LOG_LEVEL":      "debug",
		"NARRATOR_CAMERA_DEVICE":  "2",
		"NARRATOR_DASHBOARD_PORT": "9090",
		"NARRATOR_MODEL_PATH":     "/opt/models/custom.onnx",
	}
	cfg := config.DefaultConfig()
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.TTS.OpenAIKey != "sk-test" {
		t.Errorf("OpenAIKey = %q", cfg.TTS.OpenAIKey)
	}
	if cfg.TTS.Provider != config.TTSOpenAI {
		t.Errorf("Provider = %q", cfg.TTS.Provider)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Level = %q", cfg.Log.Level)
	}
	if cfg.Camera.Device != 2 {
		t.Errorf("Device = %d", cfg.Camera.Device)
	}
	if cfg.Dashboard.Port != "9090" {
		t.Errorf("Port = %q", cfg.Dashboard.Port)
	}
	if cfg.Detector.ModelPath != "/opt/models/custom.onnx" {
		t.Errorf("ModelPath = %q", cfg.Detector.ModelPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config with key should validate: %v", err)
	}
}

func TestApplyEnv_IgnoresBadDevice(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ApplyEnv(func(k string) string {
		if k == "NARRATOR_CAMERA_DEVICE" {
			return "front"
		}
		return ""
	})
	if cfg.Camera.Device != 0 {
		t.Errorf("Device = %d, want unchanged 0", cfg.Camera.Device)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "narrator.yaml")
	if err := os.WriteFile(path, []byte("camera:\n  frame_width: 320\ntts:\n  provider: mock\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Camera.FrameWidth != 320 {
		t.Errorf("frame_width = %d, want 320", cfg.Camera.FrameWidth)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
