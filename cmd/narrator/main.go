// Narrator watches a camera, detects objects and announces what newly came
// into view through text-to-speech.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-narrator/internal/config"
	nlog "github.com/teslashibe/go-narrator/internal/log"
	"github.com/teslashibe/go-narrator/pkg/audio"
	"github.com/teslashibe/go-narrator/pkg/capture"
	"github.com/teslashibe/go-narrator/pkg/detection"
	"github.com/teslashibe/go-narrator/pkg/detection/yolo"
	"github.com/teslashibe/go-narrator/pkg/narrator"
	"github.com/teslashibe/go-narrator/pkg/observe"
	"github.com/teslashibe/go-narrator/pkg/overlay"
	"github.com/teslashibe/go-narrator/pkg/speech"
	"github.com/teslashibe/go-narrator/pkg/tts"
	"github.com/teslashibe/go-narrator/pkg/web"
)

var version = "dev"

// The preview window has to be driven from the main thread on macOS.
func init() {
	runtime.LockOSThread()
}

type options struct {
	configPath string
	logLevel   string
	ttsName    string
	device     int
	noWindow   bool
	noWeb      bool
	demo       bool
	maxFrames  int64
}

func main() {
	opts := parseFlags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}
	applyFlags(&cfg, opts)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("❌ Configuration error: %v", err)
	}

	logger := nlog.Init(cfg.Log.Level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cancel, cfg, opts, logger); err != nil {
		log.Fatalf("❌ Runtime error: %v", err)
	}
	fmt.Println("👋 Goodbye")
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", "", "Path to a YAML config file")
	flag.StringVar(&o.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&o.ttsName, "tts", "", "TTS provider: espeak, openai, chain, mock")
	flag.IntVar(&o.device, "device", -1, "Camera device index")
	flag.BoolVar(&o.noWindow, "no-window", false, "Disable the preview window")
	flag.BoolVar(&o.noWeb, "no-web", false, "Disable the web dashboard")
	flag.BoolVar(&o.demo, "demo", false, "Run on a scripted scene without camera or model")
	flag.Int64Var(&o.maxFrames, "frames", 0, "Stop after this many frames (0 = run until interrupted)")
	flag.Parse()
	return o
}

func applyFlags(cfg *config.Config, o options) {
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.ttsName != "" {
		cfg.TTS.Provider = o.ttsName
	}
	if o.device >= 0 {
		cfg.Camera.Device = o.device
	}
	if o.noWindow || o.demo {
		cfg.Window.Enabled = false
	}
	if o.noWeb {
		cfg.Dashboard.Enabled = false
	}
}

func run(ctx context.Context, cancel context.CancelFunc, cfg config.Config, opts options, logger *slog.Logger) error {
	fmt.Printf("🔭 Narrator %s\n", version)

	metrics, shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer scancel()
		_ = shutdownMetrics(sctx)
	}()

	var dashboard *web.Server
	if cfg.Dashboard.Enabled {
		dashboard = web.NewServer(web.Config{Port: cfg.Dashboard.Port, Logger: logger, Metrics: true})
	}

	provider, err := tts.New(cfg.TTS.Provider,
		tts.WithAPIKey(cfg.TTS.OpenAIKey),
		tts.WithVoice(cfg.TTS.Voice),
		tts.WithRate(cfg.TTS.Rate),
		tts.WithTimeout(cfg.Speech.Timeout),
		tts.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("tts: %w", err)
	}
	defer provider.Close()
	if err := provider.Health(ctx); err != nil {
		logger.Warn("tts provider unhealthy, announcements may fail", "provider", cfg.TTS.Provider, "error", err)
	}
	fmt.Printf("🗣️  TTS: %s\n", tts.Name(provider))

	player, err := newPlayer(cfg, logger, dashboard)
	if err != nil {
		return err
	}

	wcfg := speech.Config{
		Capacity:     cfg.Speech.QueueCapacity,
		PollInterval: cfg.Speech.PollInterval,
		Timeout:      cfg.Speech.Timeout,
		Logger:       logger,
		Metrics:      metrics,
	}
	if dashboard != nil {
		wcfg.OnSpoken = dashboard.MarkSpoken
	}
	worker, err := speech.NewWorker(wcfg, provider, player)
	if err != nil {
		return fmt.Errorf("speech: %w", err)
	}
	if err := metrics.ObserveQueueDepth(worker.Depth); err != nil {
		logger.Warn("queue depth gauge unavailable", "error", err)
	}

	source, det, err := openInputs(cfg, opts, logger)
	if err != nil {
		return err
	}

	lcfg := narrator.DefaultConfig()
	lcfg.Presence.AbsenceReset = cfg.Presence.AbsenceReset
	lcfg.Presence.GraceMargin = cfg.Presence.GraceMargin
	lcfg.Announce.Cadence = cfg.Announce.Cadence
	lcfg.Announce.MaxQueueDepth = cfg.Announce.MaxQueueDepth
	lcfg.RetryDelay = cfg.Camera.RetryDelay
	lcfg.MaxFrames = opts.maxFrames
	lcfg.Logger = logger
	lcfg.Metrics = metrics

	if cfg.Window.Enabled {
		win := overlay.NewWindow(cfg.Window.Title, cfg.Window.Fullscreen, logger)
		defer win.Close()
		lcfg.Renderers = append(lcfg.Renderers, win)
		fmt.Println("🖼️  Preview window open, press q to quit")
	}
	if dashboard != nil {
		if !opts.demo {
			enc, err := overlay.NewEncoder(70, 2, dashboard.SendCameraFrame)
			if err != nil {
				return err
			}
			lcfg.Renderers = append(lcfg.Renderers, enc)
		}
		lcfg.OnFrame = func(s narrator.Snapshot) { dashboard.PublishSnapshot(s, worker.Depth()) }
		lcfg.OnAnnouncement = dashboard.AddAnnouncement
		lcfg.Announce.OnDefer = func(pending int) {
			dashboard.AddLog("defer", fmt.Sprintf("speech busy, holding %d pending", pending))
		}
	}

	loop, err := narrator.New(lcfg, source, det, worker)
	if err != nil {
		source.Close()
		det.Close()
		return err
	}
	defer loop.Close()

	// The worker outlives the loop so that Stop can let it finish the
	// message in flight.
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := worker.Run(workerCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if dashboard != nil {
		g.Go(func() error { return dashboard.Run(gctx) })
	}

	fmt.Printf("🎥 Narrating (session %s)\n", loop.Session())
	loopErr := loop.Run(gctx)
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Speech.Timeout)
	defer stopCancel()
	if err := worker.Stop(stopCtx); err != nil {
		logger.Warn("speech worker did not stop in time", "error", err)
		cancelWorker()
	}

	spoken, failures, discarded := worker.Stats()
	frames, skipped := loop.Stats()
	logger.Info("narrator finished",
		"frames", frames,
		"skipped", skipped,
		"spoken", spoken,
		"speech_failures", failures,
		"discarded", discarded,
	)

	return errors.Join(loopErr, g.Wait())
}

func newPlayer(cfg config.Config, logger *slog.Logger, dashboard *web.Server) (audio.Player, error) {
	if cfg.TTS.Provider == config.TTSMock {
		return audio.Discard{}, nil
	}
	player, err := audio.NewCommandPlayer(cfg.Speech.Player, logger)
	if err != nil {
		return nil, fmt.Errorf("audio: %w", err)
	}
	if dashboard != nil {
		player.OnPlaybackStart = func(string) { dashboard.SetSpeaking(true) }
		player.OnPlaybackEnd = func(string, error) { dashboard.SetSpeaking(false) }
	}
	return player, nil
}

func openInputs(cfg config.Config, opts options, logger *slog.Logger) (detection.Source, detection.Detector, error) {
	if opts.demo {
		fmt.Println("🎬 Demo mode: scripted scene, no camera or model")
		src := &pacedSource{Source: detection.NewBlankSource(cfg.Camera.FrameWidth, cfg.Camera.FrameWidth*3/4), every: 100 * time.Millisecond}
		return src, detection.NewStatic(demoScene(cfg.Camera.FrameWidth)...), nil
	}

	cam, err := capture.OpenCamera(capture.Config{
		Device:     cfg.Camera.Device,
		FrameWidth: cfg.Camera.FrameWidth,
		WarmUp:     cfg.Camera.WarmUp,
	}, logger)
	if err != nil {
		return nil, nil, err
	}
	fmt.Printf("📷 Camera %d open\n", cfg.Camera.Device)

	det, err := yolo.New(yolo.Config{
		ModelPath:         cfg.Detector.ModelPath,
		FallbackModelPath: cfg.Detector.FallbackModelPath,
		ConfidenceThresh:  float32(cfg.Detector.Confidence),
		NMSThresh:         float32(cfg.Detector.NMS),
		InputWidth:        cfg.Detector.InputSize,
		InputHeight:       cfg.Detector.InputSize,
		Logger:            logger,
	})
	if err != nil {
		cam.Close()
		return nil, nil, fmt.Errorf("detector: %w", err)
	}
	return cam, det, nil
}

// demoScene scripts a person who stays, a cup that joins and a dog that
// comes and goes, at ten frames per second.
func demoScene(width int) [][]detection.Detection {
	box := func(label string, cx int) detection.Detection {
		return detection.Detection{X1: cx - 40, Y1: 60, X2: cx + 40, Y2: 300, Label: label, Confidence: 0.9}
	}
	person := box("person", width/2)
	cup := box("cup", width*5/6)
	dog := box("dog", width/6)

	var scene [][]detection.Detection
	add := func(n int, dets ...detection.Detection) {
		for i := 0; i < n; i++ {
			scene = append(scene, dets)
		}
	}
	add(30, person)
	add(30, person, cup)
	add(20, person, cup, dog)
	add(30, person, cup)
	add(1, person, cup, dog)
	return scene
}

// pacedSource limits a synthetic source to one frame per interval.
type pacedSource struct {
	detection.Source
	every time.Duration
	last  time.Time
}

func (p *pacedSource) Read() (detection.Frame, error) {
	if wait := p.every - time.Since(p.last); wait > 0 {
		time.Sleep(wait)
	}
	p.last = time.Now()
	return p.Source.Read()
}
