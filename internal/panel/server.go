// Package panel serves the countdart control panel: mounted camera views,
// the shared result stream and the notification feed.
package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/jfehre/countdart/panel/internal/calibration"
	"github.com/jfehre/countdart/panel/internal/config"
	"github.com/jfehre/countdart/panel/internal/interaction"
	"github.com/jfehre/countdart/panel/internal/logger"
	"github.com/jfehre/countdart/panel/internal/metrics"
	"github.com/jfehre/countdart/panel/internal/notify"
	"github.com/jfehre/countdart/panel/internal/recorder"
	"github.com/jfehre/countdart/panel/internal/relay"
	"github.com/jfehre/countdart/panel/internal/render"
	"github.com/jfehre/countdart/panel/internal/settings"
	"github.com/jfehre/countdart/panel/internal/stream"
)

// Server serves the panel endpoints.
type Server struct {
	cfg     config.Config
	style   render.Style
	backend Backend
	metrics *metrics.Metrics
	center  *notify.Center
	relay   *relay.Server
	game    *GameView
	notices *EventBroadcaster
	log     *logger.ModuleLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	views map[string]*CameraView
}

// NewServer returns a configured panel server. Nothing is dialed until
// Start.
func NewServer(cfg config.Config, b Backend, m *metrics.Metrics) *Server {
	def := config.DefaultConfig()
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = def.StatusInterval
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = def.JPEGQuality
	}
	if cfg.WrapperWidth <= 0 {
		cfg.WrapperWidth = def.WrapperWidth
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = def.MetricsPath
	}
	if m == nil {
		m = metrics.New()
	}

	center := notify.NewCenter()
	rs := relay.NewServer(cfg.STUNServers, cfg.RelayMaxClients, m)
	opts := stream.DefaultOptions()
	opts.MinBackoff = cfg.MinBackoff
	opts.MaxBackoff = cfg.MaxBackoff
	style := cfg.Style()

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:     cfg,
		style:   style,
		backend: b,
		metrics: m,
		center:  center,
		relay:   rs,
		game:    NewGameView(b.GameURL(), opts, style, rs, m, center),
		notices: NewEventBroadcaster("notifications"),
		log:     logger.For("Panel"),
		ctx:     ctx,
		cancel:  cancel,
		views:   make(map[string]*CameraView),
	}
}

// Start connects the result socket and starts the notification fanout. The
// server runs until ctx is done or Close is called.
func (s *Server) Start(ctx context.Context) {
	context.AfterFunc(ctx, s.cancel)
	runCtx := s.ctx

	go s.game.Run(runCtx)

	id, ch := s.center.Subscribe()
	go func() {
		<-runCtx.Done()
		s.center.Unsubscribe(id)
	}()
	go func() {
		for n := range ch {
			event, err := Serialize(n)
			if err != nil {
				s.log.Error("serialize notification: %v", err)
				continue
			}
			s.notices.Broadcast(event)
		}
	}()
}

// Close unmounts every view and closes the result socket and the relay.
func (s *Server) Close() error {
	s.mu.Lock()
	views := make([]*CameraView, 0, len(s.views))
	for id, v := range s.views {
		views = append(views, v)
		delete(s.views, id)
	}
	s.mu.Unlock()
	s.cancel()

	for _, v := range views {
		v.Close()
	}
	s.notices.Close()
	return errors.Join(s.game.Close(), s.relay.Close())
}

// Center returns the notification center.
func (s *Server) Center() *notify.Center {
	return s.center
}

// Handler exposes the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.Handle("GET "+s.cfg.MetricsPath, s.metrics.Handler())
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/status/stream", s.handleStatusStream)

	mux.HandleFunc("GET /api/cams", s.handleCams)
	mux.HandleFunc("POST /api/cams/{id}/start", s.handleCamStart)
	mux.HandleFunc("POST /api/cams/{id}/stop", s.handleCamStop)
	mux.HandleFunc("POST /api/cams/{id}/open", s.handleOpen)
	mux.HandleFunc("POST /api/cams/{id}/close", s.handleClose)
	mux.HandleFunc("GET /api/cams/{id}/canvas", s.handleCanvas)
	mux.HandleFunc("GET /api/cams/{id}/magnifier", s.handleMagnifier)
	mux.HandleFunc("POST /api/cams/{id}/events", s.handleEvent)
	mux.HandleFunc("POST /api/cams/{id}/view", s.handleView)
	mux.HandleFunc("GET /api/cams/{id}/status", s.handleViewStatus)
	mux.HandleFunc("GET /api/cams/{id}/calibration", s.handleCalibration)
	mux.HandleFunc("POST /api/cams/{id}/calibration", s.handleCalibrationSave)
	mux.HandleFunc("POST /api/cams/{id}/calibration/reset", s.handleCalibrationReset)
	mux.HandleFunc("POST /api/cams/{id}/recording/start", s.handleRecordingStart)
	mux.HandleFunc("POST /api/cams/{id}/recording/stop", s.handleRecordingStop)

	mux.HandleFunc("GET /api/game/stream", s.handleGameStream)
	mux.HandleFunc("GET /api/game/status", s.handleGameStatus)
	mux.HandleFunc("GET /api/game/sketch", s.handleGameSketch)

	mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	mux.HandleFunc("GET /api/notifications/stream", s.handleNotificationStream)
	mux.HandleFunc("GET /api/dartboards", s.handleDartboards)
	mux.HandleFunc("GET /api/dartboards/{id}/settings", s.handleSettings)
	mux.HandleFunc("POST /api/relay/offer", s.handleRelayOffer)

	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

// view returns the mounted view for the request's camera id.
func (s *Server) view(w http.ResponseWriter, r *http.Request) (*CameraView, bool) {
	id := r.PathValue("id")
	s.mu.Lock()
	v, ok := s.views[id]
	s.mu.Unlock()
	if !ok {
		s.writeError(w, notify.StaleStateError("panel.view", "camera %s is not open", id))
		return nil, false
	}
	return v, true
}

// OpenView mounts the view for camID, or returns the one already mounted.
func (s *Server) OpenView(ctx context.Context, camID string) (*CameraView, error) {
	s.mu.Lock()
	if v, ok := s.views[camID]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	v, err := openView(s.ctx, fetchCtx, camID, viewDeps{
		cfg:      s.cfg,
		style:    s.style,
		backend:  s.backend,
		metrics:  s.metrics,
		center:   s.center,
		onResult: s.game.Apply,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.views[camID]; ok {
		// Lost a race with a concurrent open
		go v.Close()
		return existing, nil
	}
	s.views[camID] = v
	return v, nil
}

// CloseView unmounts the view for camID. It reports whether one was open.
func (s *Server) CloseView(camID string) bool {
	s.mu.Lock()
	v, ok := s.views[camID]
	delete(s.views, camID)
	s.mu.Unlock()
	if ok {
		v.Close()
	}
	return ok
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	v, err := s.OpenView(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, v.Status())
}

func (s *Server) handleCams(w http.ResponseWriter, r *http.Request) {
	cams, err := s.backend.Cams(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"cams": cams})
}

// handleCamStart and handleCamStop toggle the backend capture task and
// return the camera as the backend reports it afterwards.
func (s *Server) handleCamStart(w http.ResponseWriter, r *http.Request) {
	cam, err := s.backend.StartCam(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.center.Info("Camera started", cam.DisplayName()+" is capturing")
	writeJSON(w, cam)
}

func (s *Server) handleCamStop(w http.ResponseWriter, r *http.Request) {
	cam, err := s.backend.StopCam(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.center.Info("Camera stopped", cam.DisplayName()+" stopped capturing")
	writeJSON(w, cam)
}

func (s *Server) handleDartboards(w http.ResponseWriter, r *http.Request) {
	boards, err := s.backend.Dartboards(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, map[string]any{"dartboards": boards})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	writeJSON(w, map[string]any{"cam_id": id, "closed": s.CloseView(id)})
}

func (s *Server) handleCanvas(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	id, frameCh := v.frames.Subscribe()
	defer v.frames.Unsubscribe(id)
	streamMJPEGFromChannel(w, r, frameCh)
}

func (s *Server) handleMagnifier(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	lens, _, ok := v.Magnifier()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, lens, imaging.PNG); err != nil {
		http.Error(w, "Failed to encode lens", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}

type eventRequest struct {
	Type       string  `json:"type"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Fullscreen bool    `json:"fullscreen"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, notify.ValidationError("panel.event", "invalid event: %v", err))
		return
	}
	kind, ok := interaction.ParseKind(req.Type)
	if !ok {
		s.writeError(w, notify.ValidationError("panel.event", "unknown event type %q", req.Type))
		return
	}

	ev := &interaction.Event{Kind: kind, X: req.X, Y: req.Y, Width: req.Width, Fullscreen: req.Fullscreen}
	v.Dispatch(ev)

	state, active := v.editor.State()
	writeJSON(w, map[string]any{
		"prevented":    ev.DefaultPrevented(),
		"stopped":      ev.PropagationStopped(),
		"drag":         state.String(),
		"active_point": active,
		"magnifier":    v.magnifier.Placement(),
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, notify.ValidationError("panel.view", "invalid request: %v", err))
		return
	}
	mode, err := stream.ParseViewMode(req.Mode)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := v.stream.ChangeView(mode); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, v.stream.Display())
}

func (s *Server) handleViewStatus(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, v.Status())
}

func (s *Server) handleCalibration(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, map[string]any{"points": v.editor.Points(), "shapes": v.editor.Shapes()})
}

func (s *Server) handleCalibrationSave(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	var req struct {
		Points []calibration.Point `json:"points"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			s.writeError(w, notify.ValidationError("panel.calibration", "invalid request: %v", err))
			return
		}
	}
	points, err := v.SaveCalibration(r.Context(), req.Points)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.center.Info("Calibration saved", "Calibration of "+v.cam.DisplayName()+" stored")
	writeJSON(w, map[string]any{"points": points})
}

func (s *Server) handleCalibrationReset(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	points, err := v.ResetCalibration(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.center.Info("Calibration reset", v.cam.DisplayName()+" is uncalibrated")
	writeJSON(w, map[string]any{"points": points})
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	filename, err := v.recorder.Start()
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{
		"status":     "recording",
		"file":       filename,
		"started_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	filename, err := v.recorder.Stop()
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, recorder.ErrNotRecording) {
			status = http.StatusBadRequest
		}
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, status)
		return
	}
	writeJSON(w, map[string]any{
		"status":     "stopped",
		"file":       filename,
		"stats":      v.recorder.Status(),
		"stopped_at": float64(time.Now().Unix()),
	})
}

func (s *Server) handleGameStream(w http.ResponseWriter, r *http.Request) {
	events := s.game.Events()
	id, eventCh := events.Subscribe()
	defer events.Unsubscribe(id)
	streamEventsFromChannel(w, r, eventCh, s.game.Last())
}

func (s *Server) handleGameStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"state":         s.game.State().String(),
		"game":          s.game.Snapshot(),
		"relay_clients": s.relay.ClientCount(),
		"sse_clients":   s.game.Events().Clients(),
	})
}

func (s *Server) handleGameSketch(w http.ResponseWriter, r *http.Request) {
	data, err := s.game.Sketch().PNG()
	if err != nil {
		http.Error(w, "Failed to render sketch", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"notifications": s.center.Recent(),
		"total":         s.center.Count(),
	})
}

func (s *Server) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	id, eventCh := s.notices.Subscribe()
	defer s.notices.Unsubscribe(id)
	streamEventsFromChannel(w, r, eventCh, nil)
}

// settingView is one operator setting as the settings page shows it.
type settingView struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Kind        string `json:"type"`
	Widget      string `json:"widget"`
	Value       any    `json:"value"`
	Error       string `json:"error,omitempty"`
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	board, err := s.backend.Dartboard(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	ops := make([]string, 0, len(board.OpConfigs))
	for op := range board.OpConfigs {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	out := make(map[string][]settingView, len(ops))
	for _, op := range ops {
		views := make([]settingView, 0, len(board.OpConfigs[op]))
		for _, st := range board.OpConfigs[op] {
			sv := settingView{
				Name:        st.Info().Name,
				Description: st.Info().Description,
				Kind:        string(st.Kind()),
				Widget:      settings.Widget(st),
				Value:       settings.CurrentValue(st),
			}
			if err := st.Validate(); err != nil {
				sv.Error = err.Error()
			}
			views = append(views, sv)
		}
		out[op] = views
	}
	writeJSON(w, map[string]any{
		"dartboard": board.ID,
		"name":      board.Name,
		"cams":      board.CamIDs(),
		"settings":  out,
	})
}

func (s *Server) handleRelayOffer(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeJSONWithStatus(w, map[string]any{"error": "Invalid offer data"}, http.StatusBadRequest)
		return
	}
	answer, err := s.relay.HandleOffer(body)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, relay.ErrMaxClients) {
			status = http.StatusServiceUnavailable
		}
		writeJSONWithStatus(w, map[string]any{"error": err.Error()}, status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(answer)
}

func (s *Server) status() map[string]any {
	s.mu.Lock()
	ids := make([]string, 0, len(s.views))
	for id := range s.views {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	return map[string]any{
		"views":         ids,
		"game":          s.game.State().String(),
		"results":       s.game.Snapshot(),
		"relay_clients": s.relay.ClientCount(),
		"notifications": s.center.Count(),
		"timestamp":     float64(time.Now().Unix()),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.status())
}

func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		if err := writeSSE(w, s.status()); err != nil {
			return
		}
		flusher.Flush()
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// writeError maps an error's kind to a status code.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch notify.KindOf(err) {
	case notify.KindValidation:
		status = http.StatusBadRequest
	case notify.KindStaleState:
		status = http.StatusConflict
	case notify.KindConnection, notify.KindProtocol, notify.KindServer:
		status = http.StatusBadGateway
	}
	if status == http.StatusBadGateway {
		countError(s.metrics, err)
		s.center.Report(err)
	}
	writeJSONWithStatus(w, map[string]any{
		"error": err.Error(),
		"kind":  notify.KindOf(err).String(),
	}, status)
}
