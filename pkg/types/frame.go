package types

import "time"

// Frame is one JPEG frame received from a camera stream.
type Frame struct {
	CamID       string    // Camera the frame came from
	Data        []byte    // JPEG bytes as received
	Timestamp   time.Time // Receive time
	FrameNum    uint64    // Sequential frame number per camera
	Width       int       // Decoded width, 0 if not decoded
	Height      int       // Decoded height, 0 if not decoded
	Placeholder bool      // True when the server had no image yet
}

// Empty reports whether the frame carries no image bytes.
func (f *Frame) Empty() bool {
	return f == nil || len(f.Data) == 0
}
