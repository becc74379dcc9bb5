package overlay

import (
	"fmt"
	"log/slog"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-narrator/pkg/capture"
	"github.com/teslashibe/go-narrator/pkg/detection"
	"github.com/teslashibe/go-narrator/pkg/narrator"
	"github.com/teslashibe/go-narrator/pkg/presence"
)

// quitKey exits the narrator when pressed in the window.
const quitKey = 'q'

// Window shows annotated frames in a desktop window. It must be used from
// the goroutine that created it.
type Window struct {
	win    *gocv.Window
	logger *slog.Logger
}

// NewWindow opens a window titled title, full screen if requested.
func NewWindow(title string, fullscreen bool, logger *slog.Logger) *Window {
	if logger == nil {
		logger = slog.Default()
	}
	win := gocv.NewWindow(title)
	if fullscreen {
		win.SetWindowProperty(gocv.WindowPropertyFullscreen, gocv.WindowFullscreen)
	}
	logger.Info("overlay window opened", "component", "overlay", "title", title, "fullscreen", fullscreen)
	return &Window{win: win, logger: logger.With("component", "overlay")}
}

// Render draws obs on a copy of frame and shows it. It returns
// narrator.ErrQuit once the quit key was pressed.
func (w *Window) Render(frame detection.Frame, obs []presence.Observation) error {
	mf, ok := frame.(capture.MatFrame)
	if !ok {
		return fmt.Errorf("overlay: %w: %T", detection.ErrUnsupportedFrame, frame)
	}

	img := mf.Mat().Clone()
	defer img.Close()
	Draw(&img, obs)

	w.win.IMShow(img)
	if w.win.WaitKey(1)&0xff == quitKey {
		return narrator.ErrQuit
	}
	return nil
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.win.Close()
}

var _ narrator.Renderer = (*Window)(nil)
