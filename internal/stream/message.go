package stream

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/jfehre/countdart/panel/internal/geometry"
	"github.com/jfehre/countdart/panel/internal/notify"
)

// PlaceholderSentinel is sent by the backend when a camera has no frame.
const PlaceholderSentinel = "undefined"

// Class is the detector's classification of the current scene.
type Class string

const (
	ClassOff  Class = "off"
	ClassNone Class = "none"
	ClassDart Class = "dart"
	ClassHand Class = "hand"
)

// Valid reports whether c is a known classification.
func (c Class) Valid() bool {
	switch c {
	case ClassOff, ClassNone, ClassDart, ClassHand:
		return true
	}
	return false
}

// Throw is a scored dart. Point is in board space (millimetres from the
// bull, Y up) and may be missing.
type Throw struct {
	Score      string    `json:"score"`
	Confidence float64   `json:"confidence"`
	Point      []float64 `json:"point,omitempty"`
}

// Pos returns the throw's board point, if present.
func (t *Throw) Pos() (geometry.Point, bool) {
	if t == nil || len(t.Point) != 2 {
		return geometry.Point{}, false
	}
	return geometry.Point{X: t.Point[0], Y: t.Point[1]}, true
}

// Message is one inbound socket frame. The concrete type is one of
// ImageMessage, PlaceholderMessage, ResultMessage or ErrorMessage.
type Message interface {
	isMessage()
}

// ImageMessage carries a decoded JPEG frame.
type ImageMessage struct {
	Data []byte
}

// PlaceholderMessage means the camera currently has no image.
type PlaceholderMessage struct{}

// ResultMessage is a detection result. Throw is nil unless Class is dart.
type ResultMessage struct {
	Class Class  `json:"cls"`
	Throw *Throw `json:"content"`
}

// ErrorMessage is an error pushed by the backend.
type ErrorMessage struct {
	Text string
}

func (ImageMessage) isMessage()       {}
func (PlaceholderMessage) isMessage() {}
func (ResultMessage) isMessage()      {}
func (ErrorMessage) isMessage()       {}

// MarshalJSON encodes the result in the socket's own shape.
func (r ResultMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type    string `json:"type"`
		Class   Class  `json:"cls"`
		Content *Throw `json:"content"`
	}{"result", r.Class, r.Throw})
}

type wireMessage struct {
	Type    string          `json:"type"`
	Class   string          `json:"cls"`
	Content json.RawMessage `json:"content"`

	// Envelope used by the game socket of older backends
	MessageType string          `json:"message_type"`
	Payload     json.RawMessage `json:"payload"`
}

// Parse classifies one inbound frame. Plain text is a base64 image, the
// sentinel "undefined" is a placeholder, and JSON objects are routed by their
// type. Anything else is a protocol error.
func Parse(raw []byte) (Message, error) {
	text := bytes.TrimSpace(raw)
	if string(text) == PlaceholderSentinel {
		return PlaceholderMessage{}, nil
	}
	if len(text) == 0 {
		return nil, notify.ProtocolError("stream.parse", "empty message")
	}
	if text[0] != '{' {
		data, err := decodeImage(string(text))
		if err != nil {
			return nil, err
		}
		return ImageMessage{Data: data}, nil
	}

	var w wireMessage
	if err := json.Unmarshal(text, &w); err != nil {
		return nil, notify.ProtocolError("stream.parse", "invalid json: %v", err)
	}
	if w.Type == "" && w.MessageType != "" {
		return parseEnvelope(w)
	}

	switch w.Type {
	case "image":
		var content string
		if err := json.Unmarshal(w.Content, &content); err != nil {
			return nil, notify.ProtocolError("stream.parse", "image content: %v", err)
		}
		if content == PlaceholderSentinel {
			return PlaceholderMessage{}, nil
		}
		data, err := decodeImage(content)
		if err != nil {
			return nil, err
		}
		return ImageMessage{Data: data}, nil
	case "result":
		return parseResult(Class(w.Class), w.Content)
	case "error":
		var content string
		if err := json.Unmarshal(w.Content, &content); err != nil {
			return nil, notify.ProtocolError("stream.parse", "error content: %v", err)
		}
		return ErrorMessage{Text: content}, nil
	case "":
		return nil, notify.ProtocolError("stream.parse", "message without type")
	default:
		return nil, notify.ProtocolError("stream.parse", "unknown message type %q", w.Type)
	}
}

func parseResult(class Class, content json.RawMessage) (Message, error) {
	if !class.Valid() {
		return nil, notify.ProtocolError("stream.parse", "unknown result class %q", class)
	}
	msg := ResultMessage{Class: class}
	if len(content) == 0 || string(content) == "null" {
		return msg, nil
	}
	var throw Throw
	if err := json.Unmarshal(content, &throw); err != nil {
		return nil, notify.ProtocolError("stream.parse", "result content: %v", err)
	}
	msg.Throw = &throw
	return msg, nil
}

// parseEnvelope handles {"message_type": ..., "payload": ...}. A result
// payload is the result object itself, often JSON-encoded into a string.
func parseEnvelope(w wireMessage) (Message, error) {
	payload := w.Payload
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		if w.MessageType == "error" {
			return ErrorMessage{Text: s}, nil
		}
		payload = json.RawMessage(s)
	}

	switch w.MessageType {
	case "result":
		var inner wireMessage
		if err := json.Unmarshal(payload, &inner); err != nil {
			return nil, notify.ProtocolError("stream.parse", "result payload: %v", err)
		}
		return parseResult(Class(inner.Class), inner.Content)
	case "error":
		return ErrorMessage{Text: string(payload)}, nil
	default:
		return nil, notify.ProtocolError("stream.parse", "unknown message type %q", w.MessageType)
	}
}

func decodeImage(s string) ([]byte, error) {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		s = s[i+len(";base64,"):]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, notify.ProtocolError("stream.parse", "image is not base64: %v", err)
	}
	if len(data) == 0 {
		return nil, notify.ProtocolError("stream.parse", "empty image")
	}
	return data, nil
}
