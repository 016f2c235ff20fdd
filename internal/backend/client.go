// Package backend is the REST client for the countdart backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jfehre/countdart/panel/internal/calibration"
	"github.com/jfehre/countdart/panel/internal/notify"
)

const (
	defaultBaseURL   = "http://127.0.0.1:7878/api/v1"
	defaultUserAgent = "dartpanel/0.1"
	requestTimeout   = 5 * time.Second
)

// Client talks to the countdart HTTP API.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

// NewClient builds a Client for baseURL, e.g. "http://127.0.0.1:7878/api/v1".
// A zero timeout uses the default.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	base, err := parseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = requestTimeout
	}
	return &Client{
		baseURL:   base,
		http:      &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}, nil
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Cams lists all cameras.
func (c *Client) Cams(ctx context.Context) ([]Cam, error) {
	var cams []Cam
	if err := c.do(ctx, "backend.cams", http.MethodGet, "/cams", nil, &cams); err != nil {
		return nil, err
	}
	return cams, nil
}

// Cam fetches one camera.
func (c *Client) Cam(ctx context.Context, id string) (*Cam, error) {
	if err := requireID("backend.cam", id); err != nil {
		return nil, err
	}
	var cam Cam
	if err := c.do(ctx, "backend.cam", http.MethodGet, "/cams/"+id, nil, &cam); err != nil {
		return nil, err
	}
	return &cam, nil
}

// PatchCalibration stores the calibration points of a camera. An empty set
// marks the camera as uncalibrated.
func (c *Client) PatchCalibration(ctx context.Context, id string, points []calibration.Point) (*Cam, error) {
	if err := requireID("backend.calibration", id); err != nil {
		return nil, err
	}
	if points == nil {
		points = []calibration.Point{}
	}
	var cam Cam
	body := calibrationPatch{CalibrationPoints: points}
	if err := c.do(ctx, "backend.calibration", http.MethodPatch, "/cams/"+id, body, &cam); err != nil {
		return nil, err
	}
	return &cam, nil
}

// CamFPS returns the frame rate a camera currently achieves.
func (c *Client) CamFPS(ctx context.Context, id string) (float64, error) {
	if err := requireID("backend.fps", id); err != nil {
		return 0, err
	}
	var fps float64
	if err := c.do(ctx, "backend.fps", http.MethodGet, "/cams/"+id+"/fps", nil, &fps); err != nil {
		return 0, err
	}
	return fps, nil
}

// StartCam starts the camera's worker task.
func (c *Client) StartCam(ctx context.Context, id string) (*Cam, error) {
	return c.camAction(ctx, "backend.start", id, "start")
}

// StopCam stops the camera's worker task.
func (c *Client) StopCam(ctx context.Context, id string) (*Cam, error) {
	return c.camAction(ctx, "backend.stop", id, "stop")
}

func (c *Client) camAction(ctx context.Context, op, id, action string) (*Cam, error) {
	if err := requireID(op, id); err != nil {
		return nil, err
	}
	var cam Cam
	if err := c.do(ctx, op, http.MethodGet, "/cams/"+id+"/"+action, nil, &cam); err != nil {
		return nil, err
	}
	return &cam, nil
}

// Dartboards lists all dartboards.
func (c *Client) Dartboards(ctx context.Context) ([]Dartboard, error) {
	var boards []Dartboard
	if err := c.do(ctx, "backend.dartboards", http.MethodGet, "/dartboards", nil, &boards); err != nil {
		return nil, err
	}
	return boards, nil
}

// Dartboard fetches one dartboard.
func (c *Client) Dartboard(ctx context.Context, id string) (*Dartboard, error) {
	if err := requireID("backend.dartboard", id); err != nil {
		return nil, err
	}
	var board Dartboard
	if err := c.do(ctx, "backend.dartboard", http.MethodGet, "/dartboards/"+id, nil, &board); err != nil {
		return nil, err
	}
	return &board, nil
}

// CamLiveURL returns the websocket URL of a camera's live stream.
func (c *Client) CamLiveURL(id string) string {
	return c.wsURL("/cams/ws/" + id + "/live")
}

// GameURL returns the websocket URL of the result stream.
func (c *Client) GameURL() string {
	return c.wsURL("/game/ws")
}

func (c *Client) wsURL(path string) string {
	u := *c.baseURL
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawPath = ""
	return u.String()
}

func requireID(op, id string) error {
	if strings.TrimSpace(id) == "" {
		return notify.StaleStateError(op, "resource id is not loaded yet")
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, dest any) error {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawPath = ""

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return notify.ConnectionError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return notify.ValidationError(op, "%s %s not found", method, path)
	}
	if resp.StatusCode >= 400 {
		return notify.ServerError(op, fmt.Sprintf("%s %s returned status %d%s", method, path, resp.StatusCode, errorDetail(resp.Body)))
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return notify.ProtocolError(op, "decode response: %v", err)
	}
	return nil
}

// errorDetail extracts FastAPI's {"detail": ...} field, if any.
func errorDetail(r io.Reader) string {
	var e errorResponse
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&e); err != nil || e.Detail == nil {
		return ""
	}
	return fmt.Sprintf(": %v", e.Detail)
}

func parseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse backend url %q: %w", raw, err)
	}
	u.Path = strings.TrimSuffix(u.Path, "/")
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
