// Package backendcompat holds contract tests against a running countdart
// backend. They are skipped unless COUNTDART_BASE_URL points at one.
package backendcompat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jfehre/countdart/panel/internal/backend"
)

const defaultRequestTimeout = 3 * time.Second

type compatClient struct {
	baseURL string
	http    *http.Client
	api     *backend.Client
}

func newCompatClient(t *testing.T) *compatClient {
	t.Helper()
	baseURL := strings.TrimSuffix(os.Getenv("COUNTDART_BASE_URL"), "/")
	if baseURL == "" {
		t.Skip("COUNTDART_BASE_URL not set")
	}
	client := &http.Client{Timeout: defaultRequestTimeout}
	if !isReachable(client, baseURL+"/cams") {
		t.Skipf("backend not reachable at %s", baseURL)
	}
	api, err := backend.NewClient(baseURL, defaultRequestTimeout)
	if err != nil {
		t.Fatalf("backend client: %v", err)
	}
	return &compatClient{baseURL: baseURL, http: client, api: api}
}

func isReachable(client *http.Client, url string) bool {
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 500
}

func (c *compatClient) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, body
}

func (c *compatClient) ctx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), defaultRequestTimeout)
	t.Cleanup(cancel)
	return ctx
}

// firstCam returns the first camera the backend knows, skipping the test
// when there is none.
func (c *compatClient) firstCam(t *testing.T) backend.Cam {
	t.Helper()
	cams, err := c.api.Cams(c.ctx(t))
	if err != nil {
		t.Fatalf("Cams: %v", err)
	}
	if len(cams) == 0 {
		t.Skip("backend has no cameras")
	}
	return cams[0]
}

func decodeJSONSlice(t *testing.T, body []byte) []map[string]any {
	t.Helper()
	var payload []map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode json: %v\nbody=%s", err, string(body))
	}
	return payload
}

func requireID(t *testing.T, value any, field string) {
	t.Helper()
	switch value.(type) {
	case string, float64:
	default:
		t.Fatalf("expected %s to be string or number, got %T", field, value)
	}
}

func requireBool(t *testing.T, value any, field string) {
	t.Helper()
	if _, ok := value.(bool); !ok {
		t.Fatalf("expected %s to be bool, got %T", field, value)
	}
}

func requireSlice(t *testing.T, value any, field string) []any {
	t.Helper()
	s, ok := value.([]any)
	if !ok {
		t.Fatalf("expected %s to be array, got %T", field, value)
	}
	return s
}

func requireMap(t *testing.T, value any, field string) map[string]any {
	t.Helper()
	m, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("expected %s to be object, got %T", field, value)
	}
	return m
}

func assertPoint(t *testing.T, value any, field string) {
	t.Helper()
	p := requireMap(t, value, field)
	for _, axis := range []string{"x", "y"} {
		if _, ok := p[axis].(float64); !ok {
			t.Fatalf("expected %s.%s to be number, got %T", field, axis, p[axis])
		}
	}
}

func assertCamPayload(t *testing.T, cam map[string]any, field string) {
	t.Helper()
	requireID(t, cam["id"], field+".id")
	requireBool(t, cam["active"], field+".active")
	if cam["calibration_points"] == nil {
		return
	}
	points := requireSlice(t, cam["calibration_points"], field+".calibration_points")
	for i, raw := range points {
		assertPoint(t, raw, fmt.Sprintf("%s.calibration_points[%d]", field, i))
	}
}
