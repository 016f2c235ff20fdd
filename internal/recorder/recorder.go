// Package recorder writes a camera's received JPEG frames to an .mjpeg file.
package recorder

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jfehre/countdart/panel/internal/logger"
	"github.com/jfehre/countdart/panel/internal/metrics"
	"github.com/jfehre/countdart/panel/pkg/types"
)

var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrNotRecording     = errors.New("not recording")
)

// Recorder records JPEG frames back to back into one file
type Recorder struct {
	mu           sync.RWMutex
	file         *os.File
	w            *bufio.Writer
	filename     string
	basePath     string
	prefix       string
	recording    bool
	frameCount   uint64
	bytesWritten uint64
	dropped      uint64
	startTime    time.Time
	frameChan    chan *types.Frame
	stopChan     chan struct{}
	wg           sync.WaitGroup
	metrics      *metrics.Metrics
	log          *logger.ModuleLogger
}

// NewRecorder creates a recorder writing into basePath. Files are named
// <prefix>_<timestamp>.mjpeg. m may be nil.
func NewRecorder(basePath, prefix string, m *metrics.Metrics) *Recorder {
	if prefix == "" {
		prefix = "recording"
	}
	return &Recorder{
		basePath: basePath,
		prefix:   prefix,
		metrics:  m,
		log:      logger.For("Recorder"),
	}
}

// Start starts recording to a new file and returns its path
func (r *Recorder) Start() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return "", ErrAlreadyRecording
	}

	if err := os.MkdirAll(r.basePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	timestamp := time.Now().Format("20060102_150405.000")
	name := fmt.Sprintf("%s_%s.mjpeg", r.prefix, timestamp)
	path := filepath.Join(r.basePath, name)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	r.file = file
	r.w = bufio.NewWriterSize(file, 256<<10)
	r.filename = path
	r.recording = true
	r.frameCount = 0
	r.bytesWritten = 0
	r.dropped = 0
	r.startTime = time.Now()
	// Buffer 2 seconds at 30 fps
	r.frameChan = make(chan *types.Frame, 60)
	r.stopChan = make(chan struct{})

	r.wg.Add(1)
	go r.writeFrames(r.frameChan, r.stopChan)

	if r.metrics != nil {
		r.metrics.RecordingActive.Store(1)
	}
	r.log.Info("Recording started: %s", path)
	return path, nil
}

// Stop stops recording and returns the finished file's path
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return "", ErrNotRecording
	}
	r.recording = false
	close(r.stopChan)
	r.mu.Unlock()

	// Wait for write goroutine to drain
	r.wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.RecordingActive.Store(0)
	}
	if r.file == nil {
		return r.filename, nil
	}
	defer func() { r.file = nil; r.w = nil }()
	if err := r.w.Flush(); err != nil {
		_ = r.file.Close()
		return r.filename, fmt.Errorf("failed to flush file: %w", err)
	}
	if err := r.file.Sync(); err != nil {
		_ = r.file.Close()
		return r.filename, fmt.Errorf("failed to sync file: %w", err)
	}
	if err := r.file.Close(); err != nil {
		return r.filename, fmt.Errorf("failed to close file: %w", err)
	}
	r.log.Info("Recording stopped: %s (%d frames, %d bytes)", r.filename, r.frameCount, r.bytesWritten)
	return r.filename, nil
}

// SendFrame queues a frame for writing (non-blocking). Placeholder and
// empty frames are ignored.
func (r *Recorder) SendFrame(frame *types.Frame) bool {
	if frame.Empty() || frame.Placeholder {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return false
	}

	select {
	case r.frameChan <- frame:
		return true
	default:
		r.dropped++
		return false
	}
}

func (r *Recorder) writeFrames(frames <-chan *types.Frame, stop <-chan struct{}) {
	defer r.wg.Done()

	for {
		select {
		case frame := <-frames:
			r.writeFrame(frame)
		case <-stop:
			// Drain remaining frames
			for {
				select {
				case frame := <-frames:
					r.writeFrame(frame)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeFrame(frame *types.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.w == nil {
		return
	}
	n, err := r.w.Write(frame.Data)
	if err != nil {
		r.log.Warn("Write failed for %s: %v", r.filename, err)
		return
	}

	r.bytesWritten += uint64(n)
	r.frameCount++
	if r.metrics != nil {
		r.metrics.RecordingBytes.Add(uint64(n))
		r.metrics.RecordingFrames.Add(1)
	}
}

// IsRecording returns true if currently recording
func (r *Recorder) IsRecording() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recording
}

// Status returns the current recording status
func (r *Recorder) Status() RecordingStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var duration time.Duration
	if r.recording {
		duration = time.Since(r.startTime)
	}

	return RecordingStatus{
		Recording:     r.recording,
		Filename:      r.filename,
		FrameCount:    r.frameCount,
		BytesWritten:  r.bytesWritten,
		DroppedFrames: r.dropped,
		DurationMS:    duration.Milliseconds(),
		StartTime:     r.startTime,
	}
}

// Close stops a running recording.
func (r *Recorder) Close() error {
	if r.IsRecording() {
		_, err := r.Stop()
		return err
	}
	return nil
}

// RecordingStatus holds the current recording status
type RecordingStatus struct {
	Recording     bool      `json:"recording"`
	Filename      string    `json:"filename"`
	FrameCount    uint64    `json:"frame_count"`
	BytesWritten  uint64    `json:"bytes_written"`
	DroppedFrames uint64    `json:"dropped_frames"`
	DurationMS    int64     `json:"duration_ms"`
	StartTime     time.Time `json:"start_time"`
}
