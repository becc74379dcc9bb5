// Package config provides configuration for the narrator command.
//
// Values come from, in increasing precedence: DefaultConfig, an optional
// YAML file, environment variables, and command-line flags (applied by the
// caller after Load).
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full narrator configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Camera    CameraConfig    `yaml:"camera"`
	Detector  DetectorConfig  `yaml:"detector"`
	Presence  PresenceConfig  `yaml:"presence"`
	Announce  AnnounceConfig  `yaml:"announce"`
	Speech    SpeechConfig    `yaml:"speech"`
	TTS       TTSConfig       `yaml:"tts"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Window    WindowConfig    `yaml:"window"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// CameraConfig controls the frame source.
type CameraConfig struct {
	Device     int           `yaml:"device"`
	FrameWidth int           `yaml:"frame_width"`
	WarmUp     time.Duration `yaml:"warm_up"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// DetectorConfig controls the object detector.
type DetectorConfig struct {
	ModelPath         string  `yaml:"model_path"`
	FallbackModelPath string  `yaml:"fallback_model_path"`
	Confidence        float64 `yaml:"confidence"`
	NMS               float64 `yaml:"nms"`
	InputSize         int     `yaml:"input_size"`
}

// PresenceConfig controls the presence tracker.
type PresenceConfig struct {
	AbsenceReset time.Duration `yaml:"absence_reset"`
	GraceMargin  time.Duration `yaml:"grace_margin"`
}

// AnnounceConfig controls the announcement scheduler.
type AnnounceConfig struct {
	Cadence       time.Duration `yaml:"cadence"`
	MaxQueueDepth int           `yaml:"max_queue_depth"`
}

// SpeechConfig controls the speech worker and audio player.
type SpeechConfig struct {
	QueueCapacity int           `yaml:"queue_capacity"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Timeout       time.Duration `yaml:"timeout"`
	Player        []string      `yaml:"player"`
}

// TTSConfig selects and configures the text-to-speech provider.
type TTSConfig struct {
	// Provider is one of "espeak", "openai", "chain" or "mock".
	Provider string `yaml:"provider"`
	Voice    string `yaml:"voice"`
	Rate     int    `yaml:"rate"`

	// OpenAIKey is read from OPENAI_API_KEY only, never from the file.
	OpenAIKey string `yaml:"-"`
}

// DashboardConfig controls the web dashboard.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

// WindowConfig controls the local preview window.
type WindowConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Title      string `yaml:"title"`
	Fullscreen bool   `yaml:"fullscreen"`
}

// Valid TTS provider names.
const (
	TTSEspeak = "espeak"
	TTSOpenAI = "openai"
	TTSChain  = "chain"
	TTSMock   = "mock"
)

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{Level: "info"},
		Camera: CameraConfig{
			Device:     0,
			FrameWidth: 640,
			WarmUp:     1500 * time.Millisecond,
			RetryDelay: 50 * time.Millisecond,
		},
		Detector: DetectorConfig{
			ModelPath:         "models/yolo11n.onnx",
			FallbackModelPath: "models/yolov8n.onnx",
			Confidence:        0.5,
			NMS:               0.45,
			InputSize:         640,
		},
		Presence: PresenceConfig{
			AbsenceReset: 1500 * time.Millisecond,
			GraceMargin:  500 * time.Millisecond,
		},
		Announce: AnnounceConfig{
			Cadence:       2 * time.Second,
			MaxQueueDepth: 3,
		},
		Speech: SpeechConfig{
			QueueCapacity: 8,
			PollInterval:  time.Second,
			Timeout:       30 * time.Second,
			Player:        []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "-"},
		},
		TTS: TTSConfig{
			Provider: TTSEspeak,
			Rate:     170,
		},
		Dashboard: DashboardConfig{
			Enabled: true,
			Port:    "8181",
		},
		Window: WindowConfig{
			Enabled:    true,
			Title:      "Object Narrator",
			Fullscreen: true,
		},
	}
}

// Load reads the YAML file at path on top of DefaultConfig, then applies
// environment overrides and validates. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decode(f, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r on top of DefaultConfig and validates
// the result. Environment variables are not consulted.
func LoadFromReader(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	if err := decode(r, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables looked up with
// getenv. Unparseable numeric values are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("OPENAI_API_KEY"); v != "" {
		c.TTS.OpenAIKey = v
	}
	if v := getenv("NARRATOR_TTS"); v != "" {
		c.TTS.Provider = v
	}
	if v := getenv("NARRATOR_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("NARRATOR_MODEL_PATH"); v != "" {
		c.Detector.ModelPath = v
	}
	if v := getenv("NARRATOR_DASHBOARD_PORT"); v != "" {
		c.Dashboard.Port = v
	}
	if v := getenv("NARRATOR_CAMERA_DEVICE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Camera.Device = n
		}
	}
}

// Validate checks that c contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func (c *Config) Validate() error {
	var errs []error

	if c.Camera.FrameWidth <= 0 {
		errs = append(errs, fmt.Errorf("camera.frame_width must be positive, got %d", c.Camera.FrameWidth))
	}
	if c.Camera.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("camera.retry_delay must not be negative, got %v", c.Camera.RetryDelay))
	}
	if c.Detector.ModelPath == "" {
		errs = append(errs, errors.New("detector.model_path is required"))
	}
	if c.Detector.Confidence < 0 || c.Detector.Confidence > 1 {
		errs = append(errs, fmt.Errorf("detector.confidence %.2f is out of range [0, 1]", c.Detector.Confidence))
	}
	if c.Detector.NMS <= 0 || c.Detector.NMS > 1 {
		errs = append(errs, fmt.Errorf("detector.nms %.2f is out of range (0, 1]", c.Detector.NMS))
	}
	if c.Detector.InputSize <= 0 {
		errs = append(errs, fmt.Errorf("detector.input_size must be positive, got %d", c.Detector.InputSize))
	}
	if c.Presence.AbsenceReset < 0 {
		errs = append(errs, fmt.Errorf("presence.absence_reset must not be negative, got %v", c.Presence.AbsenceReset))
	}
	if c.Presence.GraceMargin < 0 {
		errs = append(errs, fmt.Errorf("presence.grace_margin must not be negative, got %v", c.Presence.GraceMargin))
	}
	if c.Announce.Cadence <= 0 {
		errs = append(errs, fmt.Errorf("announce.cadence must be positive, got %v", c.Announce.Cadence))
	}
	if c.Announce.MaxQueueDepth < 1 {
		errs = append(errs, fmt.Errorf("announce.max_queue_depth must be at least 1, got %d", c.Announce.MaxQueueDepth))
	}
	if c.Speech.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("speech.queue_capacity must be at least 1, got %d", c.Speech.QueueCapacity))
	}
	if c.Speech.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("speech.poll_interval must be positive, got %v", c.Speech.PollInterval))
	}
	if len(c.Speech.Player) == 0 {
		errs = append(errs, errors.New("speech.player command is required"))
	}

	switch c.TTS.Provider {
	case TTSEspeak, TTSMock:
	case TTSOpenAI, TTSChain:
		if c.TTS.OpenAIKey == "" && c.TTS.Provider == TTSOpenAI {
			errs = append(errs, fmt.Errorf("tts.provider %q requires OPENAI_API_KEY", c.TTS.Provider))
		}
	default:
		errs = append(errs, fmt.Errorf("tts.provider %q is invalid; valid values: espeak, openai, chain, mock", c.TTS.Provider))
	}
	if c.TTS.Rate < 0 {
		errs = append(errs, fmt.Errorf("tts.rate must not be negative, got %d", c.TTS.Rate))
	}

	if c.Dashboard.Enabled && c.Dashboard.Port == "" {
		errs = append(errs, errors.New("dashboard.port is required when the dashboard is enabled"))
	}

	return errors.Join(errs...)
}
