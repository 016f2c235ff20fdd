package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jfehre/countdart/panel/internal/backend"
	"github.com/jfehre/countdart/panel/internal/calibration"
	"github.com/jfehre/countdart/panel/internal/config"
	"github.com/jfehre/countdart/panel/internal/geometry"
	"github.com/jfehre/countdart/panel/internal/interaction"
	"github.com/jfehre/countdart/panel/internal/metrics"
	"github.com/jfehre/countdart/panel/internal/notify"
	"github.com/jfehre/countdart/panel/internal/settings"
	"github.com/jfehre/countdart/panel/internal/stream"
)

const waitTimeout = 3 * time.Second

var savedPoints = []calibration.Point{
	{X: 0.25, Y: 0.25, Label: "20|1"},
	{X: 0.75, Y: 0.25, Label: "6|10"},
	{X: 0.75, Y: 0.75, Label: "3|19"},
	{X: 0.25, Y: 0.75, Label: "11|14"},
}

// fakeBackend serves cameras from memory and live sockets from an httptest
// server that sends a placeholder and then drains client messages.
type fakeBackend struct {
	ws       *httptest.Server
	camErr   error
	patchErr error

	mu      sync.Mutex
	patches [][]calibration.Point
	actions []string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	upgrader := websocket.Upgrader{}
	fb := &fakeBackend{}
	fb.ws = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if strings.HasSuffix(r.URL.Path, "/live") {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(stream.PlaceholderSentinel))
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(fb.ws.Close)
	return fb
}

func (fb *fakeBackend) Cam(ctx context.Context, id string) (*backend.Cam, error) {
	if fb.camErr != nil {
		return nil, fb.camErr
	}
	pts := make([]calibration.Point, len(savedPoints))
	copy(pts, savedPoints)
	return &backend.Cam{ID: backend.ID(id), Name: "cam " + id, Active: true, CalibrationPoints: pts}, nil
}

func (fb *fakeBackend) Cams(ctx context.Context) ([]backend.Cam, error) {
	if fb.camErr != nil {
		return nil, fb.camErr
	}
	return []backend.Cam{
		{ID: "4", Name: "cam 4", Active: true},
		{ID: "5", Name: "cam 5"},
	}, nil
}

func (fb *fakeBackend) StartCam(ctx context.Context, id string) (*backend.Cam, error) {
	return fb.camAction(id, "start", true)
}

func (fb *fakeBackend) StopCam(ctx context.Context, id string) (*backend.Cam, error) {
	return fb.camAction(id, "stop", false)
}

func (fb *fakeBackend) camAction(id, action string, active bool) (*backend.Cam, error) {
	if fb.camErr != nil {
		return nil, fb.camErr
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.actions = append(fb.actions, action+" "+id)
	return &backend.Cam{ID: backend.ID(id), Name: "cam " + id, Active: active}, nil
}

func (fb *fakeBackend) PatchCalibration(ctx context.Context, id string, points []calibration.Point) (*backend.Cam, error) {
	if fb.patchErr != nil {
		return nil, fb.patchErr
	}
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.patches = append(fb.patches, points)
	return &backend.Cam{ID: backend.ID(id), CalibrationPoints: points}, nil
}

func (fb *fakeBackend) CamFPS(ctx context.Context, id string) (float64, error) {
	return 30, nil
}

func (fb *fakeBackend) Dartboard(ctx context.Context, id string) (*backend.Dartboard, error) {
	if id != "1" {
		return nil, notify.ValidationError("backend.dartboard", "GET /dartboards/%s not found", id)
	}
	return &backend.Dartboard{
		ID:   "1",
		Name: "garage",
		Cams: []backend.ID{"4"},
		OpConfigs: map[string]settings.List{
			"motion": {
				settings.IntSetting{Meta: settings.Meta{Name: "threshold"}, Default: 30, Value: 30, Min: 0, Max: 255},
				settings.BoolSetting{Meta: settings.Meta{Name: "enabled"}, Value: true},
			},
			"camera": {
				settings.FloatSetting{Meta: settings.Meta{Name: "gain"}, Value: 2, Min: 0, Max: 1},
			},
		},
	}, nil
}

func (fb *fakeBackend) Dartboards(ctx context.Context) ([]backend.Dartboard, error) {
	board, err := fb.Dartboard(ctx, "1")
	if err != nil {
		return nil, err
	}
	return []backend.Dartboard{*board}, nil
}

func (fb *fakeBackend) CamLiveURL(id string) string {
	return "ws" + strings.TrimPrefix(fb.ws.URL, "http") + "/cams/ws/" + id + "/live"
}

func (fb *fakeBackend) GameURL() string {
	return "ws" + strings.TrimPrefix(fb.ws.URL, "http") + "/game/ws"
}

func (fb *fakeBackend) recordedActions() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.actions...)
}

func (fb *fakeBackend) lastPatch() ([]calibration.Point, int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if len(fb.patches) == 0 {
		return nil, 0
	}
	return fb.patches[len(fb.patches)-1], len(fb.patches)
}

func newTestServer(t *testing.T, fb *fakeBackend) (*Server, *metrics.Metrics) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RecordingOutputPath = t.TempDir()
	cfg.MinBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 40 * time.Millisecond
	cfg.STUNServers = nil
	m := metrics.New()
	s := NewServer(cfg, fb, m)
	t.Cleanup(func() { _ = s.Close() })
	return s, m
}

// waitLayout blocks until the placeholder frame has sized the canvas.
func waitLayout(t *testing.T, v *CameraView) geometry.Layout {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for time.Now().Before(deadline) {
		if l := v.editor.Layout(); l.Ready() {
			return l
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("layout never became ready")
	return geometry.Layout{}
}

func pointOnCanvas(t *testing.T, l geometry.Layout, p calibration.Point) geometry.Point {
	t.Helper()
	c, ok := l.ToCanvas(p.Pos())
	if !ok {
		t.Fatalf("ToCanvas(%v) not ok", p)
	}
	return c
}

func TestCloseViewDuringDrag(t *testing.T) {
	fb := newFakeBackend(t)
	s, m := newTestServer(t, fb)

	v, err := s.OpenView(context.Background(), "4")
	if err != nil {
		t.Fatalf("OpenView: %v", err)
	}
	if again, _ := s.OpenView(context.Background(), "4"); again != v {
		t.Fatalf("second OpenView returned a different view")
	}
	if got := m.ActiveViews.Load(); got != 1 {
		t.Fatalf("ActiveViews = %d, want 1", got)
	}

	layout := waitLayout(t, v)
	c := pointOnCanvas(t, layout, savedPoints[0])
	down := &interaction.Event{Kind: interaction.PointerDown, X: c.X, Y: c.Y}
	v.Dispatch(down)
	if !down.DefaultPrevented() {
		t.Fatalf("pointerdown on a point was not prevented")
	}
	if state, active := v.editor.State(); state != interaction.Dragging || active != 0 {
		t.Fatalf("state = %v/%d, want dragging/0", state, active)
	}
	if v.Listeners() == 0 {
		t.Fatalf("no listeners while mounted")
	}

	if !s.CloseView("4") {
		t.Fatalf("CloseView reported no open view")
	}
	if got := v.Listeners(); got != 0 {
		t.Errorf("Listeners after close = %d, want 0", got)
	}
	if got := v.stream.State(); got != stream.Closed {
		t.Errorf("stream state = %v, want closed", got)
	}
	if got := m.ActiveViews.Load(); got != 0 {
		t.Errorf("ActiveViews = %d, want 0", got)
	}

	before := v.editor.Points()
	move := &interaction.Event{Kind: interaction.PointerMove, X: c.X + 40, Y: c.Y + 40}
	v.Dispatch(move)
	if move.DefaultPrevented() {
		t.Errorf("pointermove after close was handled")
	}
	if after := v.editor.Points(); after[0] != before[0] {
		t.Errorf("point moved after close: %v -> %v", before[0], after[0])
	}
	if s.CloseView("4") {
		t.Errorf("second CloseView reported an open view")
	}
}

func TestDragMovesPoint(t *testing.T) {
	fb := newFakeBackend(t)
	s, _ := newTestServer(t, fb)

	v, err := s.OpenView(context.Background(), "4")
	if err != nil {
		t.Fatalf("OpenView: %v", err)
	}
	layout := waitLayout(t, v)
	c := pointOnCanvas(t, layout, savedPoints[2])

	v.Dispatch(&interaction.Event{Kind: interaction.PointerDown, X: c.X, Y: c.Y})
	dx := layout.Canvas.W / 10
	v.Dispatch(&interaction.Event{Kind: interaction.PointerMove, X: c.X + dx, Y: c.Y})
	v.Dispatch(&interaction.Event{Kind: interaction.PointerUp, X: c.X + dx, Y: c.Y})

	got := v.editor.Points()[2]
	if diff := got.X - (savedPoints[2].X + 0.1); diff > 1e-9 || diff < -1e-9 {
		t.Errorf("point 2 x = %v, want %v", got.X, savedPoints[2].X+0.1)
	}
	if got.Y != savedPoints[2].Y {
		t.Errorf("point 2 y = %v, want %v", got.Y, savedPoints[2].Y)
	}
	if state, _ := v.editor.State(); state != interaction.Idle {
		t.Errorf("state after pointerup = %v, want idle", state)
	}
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestRoutesRequireOpenView(t *testing.T) {
	s, _ := newTestServer(t, newFakeBackend(t))
	h := s.Handler()

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/cams/9/events"},
		{http.MethodPost, "/api/cams/9/view"},
		{http.MethodGet, "/api/cams/9/calibration"},
		{http.MethodPost, "/api/cams/9/calibration/reset"},
		{http.MethodGet, "/api/cams/9/magnifier"},
	} {
		rec := do(t, h, tc.method, tc.path, `{}`)
		if rec.Code != http.StatusConflict {
			t.Errorf("%s %s = %d, want 409", tc.method, tc.path, rec.Code)
			continue
		}
		if kind := decodeBody(t, rec)["kind"]; kind != "stale_state" {
			t.Errorf("%s %s kind = %v", tc.method, tc.path, kind)
		}
	}
}

func TestEventRoute(t *testing.T) {
	s, _ := newTestServer(t, newFakeBackend(t))
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/api/cams/4/open", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("open = %d: %s", rec.Code, rec.Body.String())
	}
	if id := decodeBody(t, rec)["cam_id"]; id != "4" {
		t.Fatalf("cam_id = %v", id)
	}

	s.mu.Lock()
	v := s.views["4"]
	s.mu.Unlock()
	c := pointOnCanvas(t, waitLayout(t, v), savedPoints[1])

	body, _ := json.Marshal(map[string]any{"type": "pointerdown", "x": c.X, "y": c.Y})
	rec = do(t, h, http.MethodPost, "/api/cams/4/events", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("pointerdown = %d: %s", rec.Code, rec.Body.String())
	}
	out := decodeBody(t, rec)
	if out["prevented"] != true || out["stopped"] != true {
		t.Errorf("pointerdown not consumed: %v", out)
	}
	if out["drag"] != "dragging" || out["active_point"] != float64(1) {
		t.Errorf("drag = %v active = %v", out["drag"], out["active_point"])
	}

	rec = do(t, h, http.MethodPost, "/api/cams/4/events", `{"type":"pointerup"}`)
	if out := decodeBody(t, rec); out["drag"] != "idle" {
		t.Errorf("after pointerup drag = %v", out["drag"])
	}

	rec = do(t, h, http.MethodPost, "/api/cams/4/events", `{"type":"wheel"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown event = %d, want 400", rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/cams/4/events", `{"type":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("garbled event = %d, want 400", rec.Code)
	}
}

func TestViewModeRoute(t *testing.T) {
	s, _ := newTestServer(t, newFakeBackend(t))
	h := s.Handler()
	if rec := do(t, h, http.MethodPost, "/api/cams/4/open", ""); rec.Code != http.StatusOK {
		t.Fatalf("open = %d", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/api/cams/4/view", `{"mode":"motion"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("view = %d: %s", rec.Code, rec.Body.String())
	}
	if view := decodeBody(t, rec)["view"]; view != string(stream.ViewMotion) {
		t.Errorf("view = %v, want %s", view, stream.ViewMotion)
	}

	rec = do(t, h, http.MethodPost, "/api/cams/4/view", `{"mode":"thermal"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("unknown mode = %d, want 400", rec.Code)
	}
}

func TestCalibrationRoutes(t *testing.T) {
	fb := newFakeBackend(t)
	s, _ := newTestServer(t, fb)
	h := s.Handler()
	if rec := do(t, h, http.MethodPost, "/api/cams/4/open", ""); rec.Code != http.StatusOK {
		t.Fatalf("open = %d", rec.Code)
	}

	rec := do(t, h, http.MethodPost, "/api/cams/4/calibration", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("save = %d: %s", rec.Code, rec.Body.String())
	}
	patch, n := fb.lastPatch()
	if n != 1 || len(patch) != calibration.NumPoints || patch[0] != savedPoints[0] {
		t.Fatalf("patch #%d = %v", n, patch)
	}

	rec = do(t, h, http.MethodPost, "/api/cams/4/calibration", `{"points":[{"x":0.1,"y":0.1}]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("short point list = %d, want 400", rec.Code)
	}
	if _, n := fb.lastPatch(); n != 1 {
		t.Errorf("rejected points were sent to the backend")
	}

	rec = do(t, h, http.MethodPost, "/api/cams/4/calibration/reset", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reset = %d: %s", rec.Code, rec.Body.String())
	}
	patch, n = fb.lastPatch()
	if n != 2 || len(patch) != 0 {
		t.Errorf("reset patch #%d = %v, want empty", n, patch)
	}
	points, _ := decodeBody(t, rec)["points"].([]any)
	if len(points) != calibration.NumPoints {
		t.Errorf("reset returned %d points", len(points))
	}
	if s.Center().Count() < 2 {
		t.Errorf("save and reset were not announced")
	}
}

func TestCalibrationSaveKeepsLabels(t *testing.T) {
	fb := newFakeBackend(t)
	s, _ := newTestServer(t, fb)
	h := s.Handler()
	if rec := do(t, h, http.MethodPost, "/api/cams/4/open", ""); rec.Code != http.StatusOK {
		t.Fatalf("open = %d", rec.Code)
	}
	s.mu.Lock()
	v := s.views["4"]
	s.mu.Unlock()

	bogus := `{"points":[
		{"x":0.1,"y":0.1,"label":"bogus"},
		{"x":0.9,"y":0.1,"label":"x"},
		{"x":0.9,"y":0.9,"label":"y"},
		{"x":0.1,"y":0.9,"label":"z"}]}`
	rec := do(t, h, http.MethodPost, "/api/cams/4/calibration", bogus)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("mismatched labels = %d, want 400", rec.Code)
	}
	if _, n := fb.lastPatch(); n != 0 {
		t.Errorf("mismatched labels were sent to the backend")
	}
	for i, p := range v.editor.Points() {
		if p != savedPoints[i] {
			t.Errorf("point %d = %v after rejected save, want %v", i, p, savedPoints[i])
		}
	}

	moved := `{"points":[
		{"x":0.1,"y":0.1},
		{"x":0.9,"y":0.1,"label":"6|10"},
		{"x":0.9,"y":0.9},
		{"x":0.1,"y":0.9}]}`
	rec = do(t, h, http.MethodPost, "/api/cams/4/calibration", moved)
	if rec.Code != http.StatusOK {
		t.Fatalf("save = %d: %s", rec.Code, rec.Body.String())
	}
	patch, n := fb.lastPatch()
	if n != 1 || len(patch) != calibration.NumPoints {
		t.Fatalf("patch #%d = %v", n, patch)
	}
	want := []calibration.Point{
		{X: 0.1, Y: 0.1, Label: "20|1"},
		{X: 0.9, Y: 0.1, Label: "6|10"},
		{X: 0.9, Y: 0.9, Label: "3|19"},
		{X: 0.1, Y: 0.9, Label: "11|14"},
	}
	for i := range want {
		if patch[i] != want[i] {
			t.Errorf("patched point %d = %v, want %v", i, patch[i], want[i])
		}
		if got := v.editor.Points()[i]; got != want[i] {
			t.Errorf("editor point %d = %v, want %v", i, got, want[i])
		}
	}
}

func TestCalibrationSaveFailureKeepsPoints(t *testing.T) {
	fb := newFakeBackend(t)
	s, m := newTestServer(t, fb)
	h := s.Handler()
	if rec := do(t, h, http.MethodPost, "/api/cams/4/open", ""); rec.Code != http.StatusOK {
		t.Fatalf("open = %d", rec.Code)
	}
	s.mu.Lock()
	v := s.views["4"]
	s.mu.Unlock()

	fb.patchErr = notify.ConnectionError("backend.patch", context.DeadlineExceeded)
	body := `{"points":[{"x":0.1,"y":0.1},{"x":0.9,"y":0.1},{"x":0.9,"y":0.9},{"x":0.1,"y":0.9}]}`
	rec := do(t, h, http.MethodPost, "/api/cams/4/calibration", body)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("save = %d, want 502", rec.Code)
	}
	for i, p := range v.editor.Points() {
		if p != savedPoints[i] {
			t.Errorf("point %d = %v after failed save, want %v", i, p, savedPoints[i])
		}
	}
	if got := m.ConnectionErrors.Load(); got != 1 {
		t.Errorf("ConnectionErrors = %d, want 1", got)
	}
}

func TestCamAndBoardRoutes(t *testing.T) {
	fb := newFakeBackend(t)
	s, _ := newTestServer(t, fb)
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/cams", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cams = %d: %s", rec.Code, rec.Body.String())
	}
	var cams struct {
		Cams []backend.Cam `json:"cams"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &cams); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(cams.Cams) != 2 || cams.Cams[0].ID != "4" || !cams.Cams[0].Active {
		t.Errorf("cams = %+v", cams.Cams)
	}

	rec = do(t, h, http.MethodPost, "/api/cams/5/start", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("start = %d: %s", rec.Code, rec.Body.String())
	}
	if out := decodeBody(t, rec); out["id"] != "5" || out["active"] != true {
		t.Errorf("start = %v", out)
	}
	rec = do(t, h, http.MethodPost, "/api/cams/5/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("stop = %d: %s", rec.Code, rec.Body.String())
	}
	if out := decodeBody(t, rec); out["active"] != false {
		t.Errorf("stop = %v", out)
	}
	if got := fb.recordedActions(); len(got) != 2 || got[0] != "start 5" || got[1] != "stop 5" {
		t.Errorf("backend actions = %v", got)
	}
	if s.Center().Count() < 2 {
		t.Errorf("start and stop were not announced")
	}

	rec = do(t, h, http.MethodGet, "/api/dartboards", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("dartboards = %d: %s", rec.Code, rec.Body.String())
	}
	boards, _ := decodeBody(t, rec)["dartboards"].([]any)
	if len(boards) != 1 || boards[0].(map[string]any)["name"] != "garage" {
		t.Errorf("dartboards = %v", boards)
	}

	fb.camErr = notify.ConnectionError("backend.cams", context.DeadlineExceeded)
	if rec := do(t, h, http.MethodPost, "/api/cams/5/start", ""); rec.Code != http.StatusBadGateway {
		t.Errorf("start with backend down = %d, want 502", rec.Code)
	}
}

func TestOpenMapsBackendErrors(t *testing.T) {
	fb := newFakeBackend(t)
	fb.camErr = notify.ConnectionError("backend.cam", context.DeadlineExceeded)
	s, m := newTestServer(t, fb)

	rec := do(t, s.Handler(), http.MethodPost, "/api/cams/4/open", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("open = %d, want 502", rec.Code)
	}
	if kind := decodeBody(t, rec)["kind"]; kind != "connection" {
		t.Errorf("kind = %v", kind)
	}
	if got := m.ConnectionErrors.Load(); got != 1 {
		t.Errorf("ConnectionErrors = %d, want 1", got)
	}
	recent := s.Center().Recent()
	if len(recent) != 1 || recent[0].Kind != "connection" {
		t.Errorf("notifications = %+v", recent)
	}
}

func TestSettingsRoute(t *testing.T) {
	s, _ := newTestServer(t, newFakeBackend(t))
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/api/dartboards/1/settings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("settings = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Dartboard string                   `json:"dartboard"`
		Cams      []string                 `json:"cams"`
		Settings  map[string][]settingView `json:"settings"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Dartboard != "1" || len(out.Cams) != 1 || out.Cams[0] != "4" {
		t.Errorf("board = %+v", out)
	}
	motion := out.Settings["motion"]
	if len(motion) != 2 {
		t.Fatalf("motion settings = %+v", motion)
	}
	if motion[0].Widget != "number" || motion[0].Kind != "int" || motion[0].Value != float64(30) {
		t.Errorf("threshold = %+v", motion[0])
	}
	if motion[1].Widget != "switch" || motion[1].Value != true {
		t.Errorf("enabled = %+v", motion[1])
	}
	gain := out.Settings["camera"]
	if len(gain) != 1 || gain[0].Error == "" {
		t.Errorf("out of range gain not flagged: %+v", gain)
	}

	if rec := do(t, h, http.MethodGet, "/api/dartboards/2/settings", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing board = %d, want 400", rec.Code)
	}
}

func TestStatusAndIndex(t *testing.T) {
	s, _ := newTestServer(t, newFakeBackend(t))
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/api/cams/") {
		t.Errorf("index = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("index content type = %q", ct)
	}

	rec = do(t, h, http.MethodGet, "/api/status", "")
	out := decodeBody(t, rec)
	if out["game"] != stream.Connecting.String() {
		t.Errorf("game state before Start = %v", out["game"])
	}
	if views, _ := out["views"].([]any); len(views) != 0 {
		t.Errorf("views = %v", views)
	}

	rec = do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "dartpanel_") {
		t.Errorf("metrics = %d", rec.Code)
	}
}

func TestNotificationFanout(t *testing.T) {
	s, _ := newTestServer(t, newFakeBackend(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	id, ch := s.notices.Subscribe()
	defer s.notices.Unsubscribe(id)
	s.Start(ctx)

	s.Center().Info("Calibration saved", "cam 4")
	var event *SerializedEvent
	select {
	case event = <-ch:
	case <-time.After(waitTimeout):
		t.Fatalf("notification never fanned out")
	}
	var n notify.Notification
	if err := json.Unmarshal(event.JSONData, &n); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n.Kind != "info" || n.Title != "Calibration saved" {
		t.Errorf("notification = %+v", n)
	}
}
