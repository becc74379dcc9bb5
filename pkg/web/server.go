// Package web serves the narrator dashboard: live annotated camera frames,
// presence state, announcement history and Prometheus metrics.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-narrator/pkg/announce"
	"github.com/teslashibe/go-narrator/pkg/hub"
	"github.com/teslashibe/go-narrator/pkg/narrator"
	"github.com/teslashibe/go-narrator/pkg/presence"
	"github.com/teslashibe/go-narrator/pkg/speech"
)

//go:embed static
var staticFiles embed.FS

const (
	maxLogs          = 500
	maxAnnouncements = 100
)

// Status is the dashboard's view of the narrator.
type Status struct {
	Session      string                 `json:"session"`
	Started      time.Time              `json:"started"`
	Frame        int64                  `json:"frame"`
	Observations []presence.Observation `json:"observations"`
	Tracked      []presence.Key         `json:"tracked"`
	Pending      []presence.Key         `json:"pending"`
	Emitted      int                    `json:"emitted"`
	Deferrals    int                    `json:"deferrals"`
	QueueDepth   int                    `json:"queue_depth"`
	Speaking     bool                   `json:"speaking"`
	Provider     string                 `json:"provider"`
	LastSpoken   string                 `json:"last_spoken"`
}

// Announcement is one entry of the announcement history.
type Announcement struct {
	ID     string         `json:"id"`
	Time   time.Time      `json:"time"`
	Text   string         `json:"text"`
	Keys   []presence.Key `json:"keys"`
	Spoken bool           `json:"spoken"`
	Error  string         `json:"error,omitempty"`
}

// LogEntry is a line in the dashboard log.
type LogEntry struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, speech, defer, error
	Message string `json:"message"`
}

// Config configures the dashboard server.
type Config struct {
	Port   string
	Logger *slog.Logger

	// Metrics serves /metrics from the default Prometheus registry when
	// set.
	Metrics bool
}

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	state   Status
	stateMu sync.RWMutex

	logs   []LogEntry
	logsMu sync.RWMutex

	announcements   []Announcement
	announcementsMu sync.RWMutex

	statusHub       *hub.Hub
	announcementHub *hub.Hub
	logHub          *hub.Hub
	cameraHub       *hub.Hub
}

// NewServer creates the dashboard server.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		port:            cfg.Port,
		logger:          logger.With("component", "web"),
		logs:            make([]LogEntry, 0, maxLogs),
		announcements:   make([]Announcement, 0, maxAnnouncements),
		statusHub:       hub.New("status", hub.WithLogger(logger), hub.WithReplay()),
		announcementHub: hub.New("announcements", hub.WithLogger(logger)),
		logHub:          hub.New("logs", hub.WithLogger(logger)),
		cameraHub:       hub.New("camera", hub.WithLogger(logger), hub.WithReplay()),
	}
	s.state.Started = time.Now()

	app := fiber.New(fiber.Config{
		AppName:               "Narrator Dashboard",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/announcements", s.handleGetAnnouncements)
	api.Get("/logs", s.handleGetLogs)
	app.Get("/healthz", s.handleHealth)

	if cfg.Metrics {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.statusHub.Serve))
	app.Get("/ws/announcements", websocket.New(s.announcementHub.Serve))
	app.Get("/ws/logs", websocket.New(s.logHub.Serve))
	app.Get("/ws/camera", websocket.New(s.cameraHub.Serve))

	static, _ := fs.Sub(staticFiles, "static")
	app.Use("/", filesystem.New(filesystem.Config{
		Root:  http.FS(static),
		Index: "index.html",
	}))

	s.app = app
	return s
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run serves on the configured port until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return fmt.Errorf("web: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var wg sync.WaitGroup
	for _, h := range []*hub.Hub{s.statusHub, s.announcementHub, s.logHub, s.cameraHub} {
		h := h
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Run(ctx)
		}()
	}
	defer wg.Wait()

	errc := make(chan error, 1)
	go func() { errc <- s.app.Listener(ln) }()
	fmt.Printf("🌐 Web dashboard: http://localhost%s\n", trimHost(ln.Addr().String()))

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("web: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Warn("dashboard shutdown", "error", err)
		}
		<-errc
		return nil
	}
}

func trimHost(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return ":" + port
}

// UpdateStatus mutates the status and broadcasts it.
func (s *Server) UpdateStatus(update func(*Status)) {
	s.stateMu.Lock()
	update(&s.state)
	state := s.state
	s.stateMu.Unlock()

	s.statusHub.BroadcastJSON(state)
}

// PublishSnapshot records the state after a processed frame.
func (s *Server) PublishSnapshot(snap narrator.Snapshot, queueDepth int) {
	s.UpdateStatus(func(st *Status) {
		st.Session = snap.Session.String()
		st.Frame = snap.Frame
		st.Observations = snap.Observations
		st.Tracked = snap.Tracked
		st.Pending = snap.Pending
		st.Emitted = snap.Emitted
		st.Deferrals = snap.Deferrals
		st.QueueDepth = queueDepth
	})
}

// AddAnnouncement appends an accepted message to the history.
func (s *Server) AddAnnouncement(msg announce.Message) {
	entry := Announcement{
		ID:   msg.ID.String(),
		Time: msg.At,
		Text: msg.Text,
		Keys: msg.Keys,
	}

	s.announcementsMu.Lock()
	s.announcements = append(s.announcements, entry)
	if len(s.announcements) > maxAnnouncements {
		s.announcements = s.announcements[1:]
	}
	s.announcementsMu.Unlock()

	s.announcementHub.BroadcastJSON(entry)
	s.AddLog("speech", msg.Text)
}

// MarkSpoken records the outcome of speaking text.
func (s *Server) MarkSpoken(res speech.Result) {
	s.announcementsMu.Lock()
	for i := len(s.announcements) - 1; i >= 0; i-- {
		a := &s.announcements[i]
		if a.Text == res.Text && !a.Spoken && a.Error == "" {
			if res.Err != nil {
				a.Error = res.Err.Error()
			} else {
				a.Spoken = true
			}
			break
		}
	}
	s.announcementsMu.Unlock()

	if res.Err != nil {
		s.AddLog("error", "speech failed: "+res.Err.Error())
	}
	s.UpdateStatus(func(st *Status) {
		if res.Err == nil {
			st.LastSpoken = res.Text
		}
		if res.Provider != "" {
			st.Provider = res.Provider
		}
	})
}

// SetSpeaking updates the speaking flag.
func (s *Server) SetSpeaking(speaking bool) {
	s.UpdateStatus(func(st *Status) { st.Speaking = speaking })
}

// AddLog appends a log entry and broadcasts it.
func (s *Server) AddLog(logType, message string) {
	entry := LogEntry{
		Time:    time.Now().Format("15:04:05"),
		Type:    logType,
		Message: message,
	}

	s.logsMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[1:]
	}
	s.logsMu.Unlock()

	s.logHub.BroadcastJSON(entry)
}

// SendCameraFrame broadcasts a JPEG frame to camera clients.
func (s *Server) SendCameraFrame(jpeg []byte) {
	s.cameraHub.BroadcastBinary(jpeg)
}

// CameraClients returns the number of connected camera viewers.
func (s *Server) CameraClients() int {
	return s.cameraHub.ClientCount()
}
