package panel

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/jfehre/countdart/panel/internal/backend"
	"github.com/jfehre/countdart/panel/internal/calibration"
	"github.com/jfehre/countdart/panel/internal/config"
	"github.com/jfehre/countdart/panel/internal/geometry"
	"github.com/jfehre/countdart/panel/internal/interaction"
	"github.com/jfehre/countdart/panel/internal/logger"
	"github.com/jfehre/countdart/panel/internal/metrics"
	"github.com/jfehre/countdart/panel/internal/notify"
	"github.com/jfehre/countdart/panel/internal/recorder"
	"github.com/jfehre/countdart/panel/internal/render"
	"github.com/jfehre/countdart/panel/internal/stream"
	"github.com/jfehre/countdart/panel/pkg/types"
)

// Backend is the part of the countdart API the panel uses.
type Backend interface {
	Cams(ctx context.Context) ([]backend.Cam, error)
	Cam(ctx context.Context, id string) (*backend.Cam, error)
	StartCam(ctx context.Context, id string) (*backend.Cam, error)
	StopCam(ctx context.Context, id string) (*backend.Cam, error)
	PatchCalibration(ctx context.Context, id string, points []calibration.Point) (*backend.Cam, error)
	CamFPS(ctx context.Context, id string) (float64, error)
	Dartboards(ctx context.Context) ([]backend.Dartboard, error)
	Dartboard(ctx context.Context, id string) (*backend.Dartboard, error)
	CamLiveURL(id string) string
	GameURL() string
}

type viewDeps struct {
	cfg      config.Config
	style    render.Style
	backend  Backend
	metrics  *metrics.Metrics
	center   *notify.Center
	onResult func(stream.ResultMessage)
}

// CameraView is one mounted calibration view. Everything it starts (the
// socket, the render loop, the listeners) is owned by the view and released
// by Close.
type CameraView struct {
	camID string
	cam   *backend.Cam
	deps  viewDeps
	log   *logger.ModuleLogger

	stream     *stream.CameraStream
	editor     *interaction.Editor
	dispatcher *interaction.Dispatcher
	magnifier  *render.Magnifier
	canvas     *render.Canvas
	loop       *render.Loop
	frames     *FrameBroadcaster
	recorder   *recorder.Recorder

	mu           sync.Mutex
	frame        image.Image
	imageSize    geometry.Size
	wrapperWidth float64
	lastCanvas   *image.RGBA
	frameNum     uint64
	openedAt     time.Time

	mounted   bool
	removers  []func()
	cancel    context.CancelFunc
	loopDone  chan struct{}
	closeOnce sync.Once
}

// openView mounts the view for camID: fetch the camera, build the editor
// from its saved points, attach the listeners, start the render loop and
// dial the live socket. lifetime bounds the view; fetch bounds the camera
// lookup only.
func openView(lifetime, fetch context.Context, camID string, deps viewDeps) (*CameraView, error) {
	cam, err := deps.backend.Cam(fetch, camID)
	if err != nil {
		return nil, err
	}

	v := &CameraView{
		camID:        camID,
		cam:          cam,
		deps:         deps,
		log:          logger.For("View"),
		dispatcher:   interaction.NewDispatcher(),
		magnifier:    render.NewMagnifier(),
		canvas:       render.NewCanvas(deps.style),
		frames:       NewFrameBroadcaster("cam " + camID),
		recorder:     recorder.NewRecorder(deps.cfg.RecordingOutputPath, "cam"+camID, deps.metrics),
		wrapperWidth: deps.cfg.WrapperWidth,
		loopDone:     make(chan struct{}),
		openedAt:     time.Now(),
	}
	v.loop = render.NewLoop(v.renderCanvas, v.publish)
	v.editor = interaction.NewEditor(calibration.NewModel(cam.CalibrationPoints), v.loop.Request)

	v.removers = append(v.removers,
		v.editor.Attach(v.dispatcher),
		v.dispatcher.On(interaction.PointerMove, v.onMagnifierMove),
		v.dispatcher.On(interaction.PointerLeave, v.onMagnifierLeave),
		v.dispatcher.On(interaction.Resize, v.onResize),
		v.dispatcher.On(interaction.Scroll, v.onScroll),
		v.dispatcher.On(interaction.FullscreenChange, v.onFullscreen),
	)

	opts := stream.DefaultOptions()
	opts.MinBackoff = deps.cfg.MinBackoff
	opts.MaxBackoff = deps.cfg.MaxBackoff
	v.stream = stream.NewCameraStream(camID, deps.backend.CamLiveURL(camID), deps.backend, deps.cfg.FPSTimeout,
		stream.CameraHandlers{
			OnFrame:       v.onFrame,
			OnPlaceholder: v.onPlaceholder,
			OnResult:      deps.onResult,
			OnFPS:         v.onFPS,
			OnError:       v.onError,
			OnReconnect:   v.onReconnect,
		}, opts)

	var loopCtx context.Context
	loopCtx, v.cancel = context.WithCancel(lifetime)
	go func() {
		defer close(v.loopDone)
		v.loop.Run(loopCtx)
	}()

	if err := v.stream.Open(loopCtx); err != nil {
		v.Close()
		return nil, err
	}
	v.mounted = true
	if deps.metrics != nil {
		deps.metrics.ActiveViews.Add(1)
		deps.metrics.ActiveSessions.Add(1)
	}
	v.log.Info("cam %s (%s) mounted", camID, cam.DisplayName())
	return v, nil
}

// Close unmounts the view: the socket is closed, every listener removed and
// the render loop stopped. A drag in progress is abandoned. Safe to call more
// than once.
func (v *CameraView) Close() {
	v.closeOnce.Do(func() {
		if err := v.stream.Close(); err != nil {
			v.log.Debug("cam %s close: %v", v.camID, err)
		}
		for _, remove := range v.removers {
			remove()
		}
		v.removers = nil
		v.cancel()
		<-v.loopDone
		if err := v.recorder.Close(); err != nil {
			v.log.Warn("cam %s recorder: %v", v.camID, err)
		}
		v.frames.Close()
		if m := v.deps.metrics; m != nil {
			m.ForgetCamera(v.camID)
			m.FPSRequestsSkipped.Add(v.stream.FPSSkipped())
			if v.mounted {
				m.ActiveViews.Add(-1)
				m.ActiveSessions.Add(-1)
			}
		}
		v.log.Info("cam %s unmounted", v.camID)
	})
}

// Dispatch delivers one browser event to the view's listeners.
func (v *CameraView) Dispatch(ev *interaction.Event) {
	v.dispatcher.Dispatch(ev)
}

// Listeners returns the number of registered listeners.
func (v *CameraView) Listeners() int {
	return v.dispatcher.Listeners()
}

func (v *CameraView) onFrame(data []byte) {
	img, err := render.DecodeFrame(data)
	if err != nil {
		v.onError(notify.ProtocolError("cam "+v.camID, "decode frame: %v", err))
		return
	}

	v.mu.Lock()
	v.frameNum++
	num := v.frameNum
	v.frame = img
	b := img.Bounds()
	resized := v.setImageSizeLocked(b)
	v.mu.Unlock()

	if v.deps.metrics != nil {
		v.deps.metrics.FramesReceived.Add(1)
	}
	v.recorder.SendFrame(&types.Frame{
		CamID:     v.camID,
		Data:      data,
		Timestamp: time.Now(),
		FrameNum:  num,
		Width:     b.Dx(),
		Height:    b.Dy(),
	})
	if resized {
		v.relayout()
	}
	v.loop.Request()
}

func (v *CameraView) onPlaceholder() {
	img := render.Placeholder()
	b := img.Bounds()

	v.mu.Lock()
	v.frame = img
	resized := v.setImageSizeLocked(b)
	v.mu.Unlock()

	if v.deps.metrics != nil {
		v.deps.metrics.PlaceholderFrames.Add(1)
	}
	if resized {
		v.relayout()
	}
	v.loop.Request()
}

func (v *CameraView) onFPS(fps float64) {
	if v.deps.metrics != nil {
		v.deps.metrics.FPSRequests.Add(1)
		v.deps.metrics.SetCameraFPS(v.camID, fps)
	}
}

func (v *CameraView) onReconnect() {
	if v.deps.metrics != nil {
		v.deps.metrics.StreamReconnects.Add(1)
	}
}

func (v *CameraView) onError(err error) {
	countError(v.deps.metrics, err)
	if v.deps.center != nil {
		v.deps.center.Report(err)
	}
}

// setImageSizeLocked records the natural image size and reports whether it
// changed.
func (v *CameraView) setImageSizeLocked(b image.Rectangle) bool {
	size := geometry.Size{W: float64(b.Dx()), H: float64(b.Dy())}
	if size == v.imageSize {
		return false
	}
	v.imageSize = size
	return true
}

// relayout fits the canvas to the wrapper width and the image's aspect
// ratio.
func (v *CameraView) relayout() {
	v.mu.Lock()
	size, width := v.imageSize, v.wrapperWidth
	v.mu.Unlock()

	v.editor.SetLayout(geometry.Layout{
		Canvas: geometry.FitCanvas(width, size),
		Image:  size,
	})
	v.loop.Request()
}

func (v *CameraView) onResize(ev *interaction.Event) {
	if ev.Width > 0 {
		v.mu.Lock()
		v.wrapperWidth = ev.Width
		v.mu.Unlock()
	}
	v.relayout()
}

func (v *CameraView) onScroll(*interaction.Event) {
	v.relayout()
}

func (v *CameraView) onFullscreen(ev *interaction.Event) {
	v.stream.SetFullscreen(ev.Fullscreen)
	v.relayout()
}

func (v *CameraView) onMagnifierMove(ev *interaction.Event) {
	v.magnifier.Track(ev.Pos(), v.editor.Layout())
}

func (v *CameraView) onMagnifierLeave(*interaction.Event) {
	v.magnifier.Hide()
}

func (v *CameraView) renderCanvas() ([]byte, error) {
	layout := v.editor.Layout()
	v.mu.Lock()
	frame := v.frame
	v.mu.Unlock()

	points := v.editor.Points()
	img, ok := v.canvas.Draw(render.Scene{
		Layout: layout,
		Frame:  frame,
		Shapes: v.editor.Shapes(),
		Guide:  calibration.Guide(points, layout),
	})
	if !ok {
		return nil, nil
	}

	v.mu.Lock()
	v.lastCanvas = img
	v.mu.Unlock()

	data, err := render.EncodeJPEG(img, v.deps.cfg.JPEGQuality)
	if err != nil {
		return nil, fmt.Errorf("encode canvas: %w", err)
	}
	if v.deps.metrics != nil {
		v.deps.metrics.FramesRendered.Add(1)
	}
	return data, nil
}

func (v *CameraView) publish(data []byte) {
	v.frames.Broadcast(data)
}

// Magnifier renders the current lens image. ok is false while the lens is
// hidden or nothing has been drawn yet.
func (v *CameraView) Magnifier() (image.Image, render.Placement, bool) {
	v.mu.Lock()
	canvas := v.lastCanvas
	v.mu.Unlock()

	placement := v.magnifier.Placement()
	if canvas == nil {
		return nil, placement, false
	}
	lens, ok := v.magnifier.Render(canvas)
	if !ok {
		return nil, placement, false
	}
	return lens, placement, true
}

// SaveCalibration stores pts (or the current points when pts is nil) on
// the backend. Incoming points only move the current ones; a label that is
// set must match the label already at that index. The editor takes the new
// positions once the backend has accepted them.
func (v *CameraView) SaveCalibration(ctx context.Context, pts []calibration.Point) ([]calibration.Point, error) {
	current := v.editor.Points()
	if pts != nil {
		if len(pts) != calibration.NumPoints {
			return nil, notify.ValidationError("calibration.save", "expected %d points, got %d", calibration.NumPoints, len(pts))
		}
		for i, p := range pts {
			if p.Label != "" && p.Label != current[i].Label {
				return nil, notify.ValidationError("calibration.save", "point %d label %q does not match %q", i, p.Label, current[i].Label)
			}
			current[i].X, current[i].Y = p.X, p.Y
		}
	}
	if _, err := v.deps.backend.PatchCalibration(ctx, v.camID, current); err != nil {
		return nil, err
	}
	if pts != nil {
		if err := v.editor.Load(current); err != nil {
			return nil, err
		}
	}
	return current, nil
}

// ResetCalibration puts the points back to their defaults and marks the
// camera as uncalibrated on the backend.
func (v *CameraView) ResetCalibration(ctx context.Context) ([]calibration.Point, error) {
	v.editor.Reset()
	if _, err := v.deps.backend.PatchCalibration(ctx, v.camID, nil); err != nil {
		return nil, err
	}
	return v.editor.Points(), nil
}

// ViewStatus is the JSON status of a mounted view.
type ViewStatus struct {
	CamID       string                   `json:"cam_id"`
	Name        string                   `json:"name"`
	Display     stream.Display           `json:"display"`
	Layout      geometry.Layout          `json:"layout"`
	Drag        string                   `json:"drag"`
	Active      int                      `json:"active_point"`
	Points      []calibration.Point      `json:"points"`
	Magnifier   render.Placement         `json:"magnifier"`
	Renders     uint64                   `json:"renders"`
	Listeners   int                      `json:"listeners"`
	Subscribers int                      `json:"canvas_clients"`
	Recording   recorder.RecordingStatus `json:"recording"`
	OpenedAt    time.Time                `json:"opened_at"`
}

// Status returns the view's current state.
func (v *CameraView) Status() ViewStatus {
	state, active := v.editor.State()
	return ViewStatus{
		CamID:       v.camID,
		Name:        v.cam.DisplayName(),
		Display:     v.stream.Display(),
		Layout:      v.editor.Layout(),
		Drag:        state.String(),
		Active:      active,
		Points:      v.editor.Points(),
		Magnifier:   v.magnifier.Placement(),
		Renders:     v.loop.Renders(),
		Listeners:   v.dispatcher.Listeners(),
		Subscribers: v.frames.Clients(),
		Recording:   v.recorder.Status(),
		OpenedAt:    v.openedAt,
	}
}

// countError bumps the error counter matching err's kind.
func countError(m *metrics.Metrics, err error) {
	if m == nil {
		return
	}
	switch notify.KindOf(err) {
	case notify.KindProtocol:
		m.ProtocolErrors.Add(1)
	case notify.KindConnection:
		m.ConnectionErrors.Add(1)
	case notify.KindServer:
		m.ServerErrors.Add(1)
	}
}
