package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all panel metrics
type Metrics struct {
	// Stream counters
	FramesReceived     atomic.Uint64
	PlaceholderFrames  atomic.Uint64
	FramesRendered     atomic.Uint64
	ResultsReceived    atomic.Uint64
	StreamReconnects   atomic.Uint64
	FPSRequests        atomic.Uint64
	FPSRequestsSkipped atomic.Uint64

	// Error counters
	ProtocolErrors   atomic.Uint64
	ConnectionErrors atomic.Uint64
	ServerErrors     atomic.Uint64

	// Session tracking
	ActiveViews    atomic.Int64
	ActiveSessions atomic.Int64

	// Relay tracking
	RelayActiveClients atomic.Uint64
	RelayTotalClients  atomic.Uint64
	RelayMessagesSent  atomic.Uint64

	// Recording state
	RecordingActive atomic.Uint64 // 0 = inactive, 1 = active
	RecordingBytes  atomic.Uint64
	RecordingFrames atomic.Uint64

	resultsByClass *prometheus.CounterVec
	cameraFPS      *prometheus.GaugeVec

	fpsMu sync.Mutex
	fps   map[string]float64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fps:      make(map[string]float64),
	}

	m.registerPrometheusMetrics()

	return m
}

func (m *Metrics) gauge(name, help string, value func() float64) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Name: name, Help: help},
		value,
	))
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	// Stream metrics
	m.gauge("dartpanel_frames_received_total", "Total image frames received from camera sockets",
		func() float64 { return float64(m.FramesReceived.Load()) })
	m.gauge("dartpanel_placeholder_frames_total", "Total placeholder frames received",
		func() float64 { return float64(m.PlaceholderFrames.Load()) })
	m.gauge("dartpanel_frames_rendered_total", "Total calibration canvases rendered",
		func() float64 { return float64(m.FramesRendered.Load()) })
	m.gauge("dartpanel_results_received_total", "Total detection results received",
		func() float64 { return float64(m.ResultsReceived.Load()) })
	m.gauge("dartpanel_stream_reconnects_total", "Total socket reconnect attempts",
		func() float64 { return float64(m.StreamReconnects.Load()) })
	m.gauge("dartpanel_fps_requests_total", "Total FPS requests sent to the backend",
		func() float64 { return float64(m.FPSRequests.Load()) })
	m.gauge("dartpanel_fps_requests_skipped_total", "FPS requests skipped because one was in flight",
		func() float64 { return float64(m.FPSRequestsSkipped.Load()) })

	// Error metrics
	m.gauge("dartpanel_protocol_errors_total", "Total unparseable or unknown stream messages",
		func() float64 { return float64(m.ProtocolErrors.Load()) })
	m.gauge("dartpanel_connection_errors_total", "Total socket or REST connection failures",
		func() float64 { return float64(m.ConnectionErrors.Load()) })
	m.gauge("dartpanel_server_errors_total", "Total error messages pushed by the backend",
		func() float64 { return float64(m.ServerErrors.Load()) })

	// Session metrics
	m.gauge("dartpanel_active_views", "Number of mounted camera views",
		func() float64 { return float64(m.ActiveViews.Load()) })
	m.gauge("dartpanel_active_sessions", "Number of open stream sessions",
		func() float64 { return float64(m.ActiveSessions.Load()) })

	// Relay metrics
	m.gauge("dartpanel_relay_active_clients", "Number of connected relay peers",
		func() float64 { return float64(m.RelayActiveClients.Load()) })
	m.gauge("dartpanel_relay_total_clients", "Total relay peers connected",
		func() float64 { return float64(m.RelayTotalClients.Load()) })
	m.gauge("dartpanel_relay_messages_sent_total", "Total result messages sent over data channels",
		func() float64 { return float64(m.RelayMessagesSent.Load()) })

	// Recording metrics
	m.gauge("dartpanel_recording_active", "Recording active (0=inactive, 1=active)",
		func() float64 { return float64(m.RecordingActive.Load()) })
	m.gauge("dartpanel_recording_bytes", "Total bytes written to recording",
		func() float64 { return float64(m.RecordingBytes.Load()) })
	m.gauge("dartpanel_recording_frames", "Total frames written to recording",
		func() float64 { return float64(m.RecordingFrames.Load()) })

	m.resultsByClass = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dartpanel_results_by_class_total",
			Help: "Detection results received, by classification",
		},
		[]string{"class"},
	)
	m.registry.MustRegister(m.resultsByClass)

	m.cameraFPS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dartpanel_camera_fps",
			Help: "Last FPS reported by the backend per camera",
		},
		[]string{"cam"},
	)
	m.registry.MustRegister(m.cameraFPS)
}

// RecordResult counts a detection result of the given class.
func (m *Metrics) RecordResult(class string) {
	m.ResultsReceived.Add(1)
	m.resultsByClass.WithLabelValues(class).Inc()
}

// SetCameraFPS stores the last FPS reported for a camera.
func (m *Metrics) SetCameraFPS(cam string, fps float64) {
	m.fpsMu.Lock()
	m.fps[cam] = fps
	m.fpsMu.Unlock()
	m.cameraFPS.WithLabelValues(cam).Set(fps)
}

// CameraFPS returns the last FPS reported for a camera.
func (m *Metrics) CameraFPS(cam string) (float64, bool) {
	m.fpsMu.Lock()
	defer m.fpsMu.Unlock()
	fps, ok := m.fps[cam]
	return fps, ok
}

// ForgetCamera drops per-camera series once the view is closed.
func (m *Metrics) ForgetCamera(cam string) {
	m.fpsMu.Lock()
	delete(m.fps, cam)
	m.fpsMu.Unlock()
	m.cameraFPS.DeleteLabelValues(cam)
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
