package stream

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jfehre/countdart/panel/internal/logger"
	"github.com/jfehre/countdart/panel/internal/notify"
)

// ViewMode selects which backend processing stage a camera socket streams.
type ViewMode string

const (
	ViewRaw    ViewMode = "raw"
	ViewWarped ViewMode = "HomographyWarper"
	ViewMotion ViewMode = "MotionDetector"
	ViewDebug  ViewMode = "ResultVisualizer"
)

// ViewModes lists the modes in display order.
var ViewModes = []ViewMode{ViewRaw, ViewWarped, ViewMotion, ViewDebug}

var viewAliases = map[string]ViewMode{
	"raw":              ViewRaw,
	"homographywarper": ViewWarped,
	"warped":           ViewWarped,
	"motiondetector":   ViewMotion,
	"motion":           ViewMotion,
	"resultvisualizer": ViewDebug,
	"debug":            ViewDebug,
}

// ParseViewMode accepts a mode name or one of its short aliases, ignoring
// case.
func ParseViewMode(s string) (ViewMode, error) {
	if m, ok := viewAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return m, nil
	}
	return "", notify.ValidationError("stream.view", "unknown view mode %q", s)
}

// FPSSource reports a camera's current frame rate.
type FPSSource interface {
	CamFPS(ctx context.Context, camID string) (float64, error)
}

// CameraHandlers receive what a camera socket delivers. All are optional.
// OnFrame, OnPlaceholder and OnResult run on the session goroutine; OnFPS
// and OnError may also run on the FPS request goroutine.
type CameraHandlers struct {
	OnFrame       func(jpeg []byte)
	OnPlaceholder func()
	OnResult      func(ResultMessage)
	OnFPS         func(fps float64)
	OnError       func(err error)
	OnReconnect   func()
}

// Display is the presentation state of a camera view.
type Display struct {
	View        ViewMode `json:"view"`
	Placeholder bool     `json:"placeholder"`
	Fullscreen  bool     `json:"fullscreen"`
	FPS         float64  `json:"fps"`
	Frames      uint64   `json:"frames"`
	State       string   `json:"state"`
}

// CameraStream is the live socket of one camera view. It tracks the active
// view mode, whether the camera is showing the placeholder, and the last
// FPS reading, which is requested again on every frame.
type CameraStream struct {
	camID    string
	session  *Session
	fps      FPSSource
	timeout  time.Duration
	handlers CameraHandlers
	log      *logger.ModuleLogger

	mu          sync.Mutex
	view        ViewMode
	placeholder bool
	fullscreen  bool
	lastFPS     float64
	frames      uint64

	fpsBusy    atomic.Bool
	fpsSkipped atomic.Uint64
	fpsCtx     context.Context
	fpsCancel  context.CancelFunc
}

// NewCameraStream creates the stream for camID at url. fps may be nil.
func NewCameraStream(camID, url string, fps FPSSource, fpsTimeout time.Duration, h CameraHandlers, opts Options) *CameraStream {
	c := &CameraStream{
		camID:    camID,
		fps:      fps,
		timeout:  fpsTimeout,
		handlers: h,
		view:     ViewRaw,
		log:      logger.For("CameraStream"),
	}
	userOpen := opts.OnOpen
	opts.OnOpen = func(reconnect bool) {
		if reconnect {
			c.resendView()
			if h.OnReconnect != nil {
				h.OnReconnect()
			}
		}
		if userOpen != nil {
			userOpen(reconnect)
		}
	}
	userDrop := opts.OnDrop
	opts.OnDrop = func(err error) {
		c.report(err)
		if userDrop != nil {
			userDrop(err)
		}
	}
	c.session = NewSession(url, c.handle, opts)
	return c
}

// Open dials the camera socket.
func (c *CameraStream) Open(ctx context.Context) error {
	c.fpsCtx, c.fpsCancel = context.WithCancel(ctx)
	if err := c.session.Start(ctx); err != nil {
		c.fpsCancel()
		return err
	}
	return nil
}

// Close closes the socket and abandons any in-flight FPS request.
func (c *CameraStream) Close() error {
	if c.fpsCancel != nil {
		c.fpsCancel()
	}
	return c.session.Close()
}

// State returns the socket state.
func (c *CameraStream) State() State {
	return c.session.State()
}

// ChangeView switches the streamed stage. The local mode changes right away;
// the backend is told with a single text frame and no acknowledgement is
// expected.
func (c *CameraStream) ChangeView(mode ViewMode) error {
	c.mu.Lock()
	c.view = mode
	c.mu.Unlock()

	if err := c.session.Send(string(mode)); err != nil {
		return err
	}
	c.log.Info("cam %s view -> %s", c.camID, mode)
	return nil
}

// View returns the active view mode.
func (c *CameraStream) View() ViewMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// SetFullscreen records the document's fullscreen state. It never touches
// the socket.
func (c *CameraStream) SetFullscreen(on bool) {
	c.mu.Lock()
	c.fullscreen = on
	c.mu.Unlock()
}

// Display returns the presentation state.
func (c *CameraStream) Display() Display {
	state := c.session.State()
	c.mu.Lock()
	defer c.mu.Unlock()
	return Display{
		View:        c.view,
		Placeholder: c.placeholder,
		Fullscreen:  c.fullscreen,
		FPS:         c.lastFPS,
		Frames:      c.frames,
		State:       state.String(),
	}
}

// FPSSkipped returns how many frames did not trigger an FPS request because
// one was already in flight.
func (c *CameraStream) FPSSkipped() uint64 {
	return c.fpsSkipped.Load()
}

// resendView restores a non-default mode on a fresh connection.
func (c *CameraStream) resendView() {
	view := c.View()
	if view == ViewRaw {
		return
	}
	if err := c.session.Send(string(view)); err != nil {
		c.report(err)
	}
}

func (c *CameraStream) handle(raw []byte) {
	msg, err := Parse(raw)
	if err != nil {
		c.report(err)
		return
	}

	switch m := msg.(type) {
	case ImageMessage:
		c.mu.Lock()
		c.placeholder = false
		c.frames++
		c.mu.Unlock()
		c.pollFPS()
		if c.handlers.OnFrame != nil {
			c.handlers.OnFrame(m.Data)
		}
	case PlaceholderMessage:
		c.mu.Lock()
		c.placeholder = true
		c.mu.Unlock()
		if c.handlers.OnPlaceholder != nil {
			c.handlers.OnPlaceholder()
		}
	case ResultMessage:
		if c.handlers.OnResult != nil {
			c.handlers.OnResult(m)
		}
	case ErrorMessage:
		c.report(notify.ServerError("cam "+c.camID, m.Text))
	}
}

// pollFPS requests the frame rate unless a request is already running.
func (c *CameraStream) pollFPS() {
	if c.fps == nil || c.fpsCtx == nil {
		return
	}
	if !c.fpsBusy.CompareAndSwap(false, true) {
		c.fpsSkipped.Add(1)
		return
	}

	go func() {
		defer c.fpsBusy.Store(false)

		ctx := c.fpsCtx
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		fps, err := c.fps.CamFPS(ctx, c.camID)
		if c.fpsCtx.Err() != nil {
			return
		}
		if err != nil {
			c.report(err)
			return
		}

		c.mu.Lock()
		c.lastFPS = fps
		c.mu.Unlock()
		if c.handlers.OnFPS != nil {
			c.handlers.OnFPS(fps)
		}
	}()
}

func (c *CameraStream) report(err error) {
	if c.handlers.OnError != nil {
		c.handlers.OnError(err)
		return
	}
	c.log.Warn("cam %s: %v", c.camID, err)
}
