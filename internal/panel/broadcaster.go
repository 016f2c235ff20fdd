package panel

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jfehre/countdart/panel/internal/logger"
)

// FrameBroadcaster manages fanout of JPEG frames to multiple clients.
type FrameBroadcaster struct {
	name    string
	mu      sync.Mutex
	clients map[int]chan []byte
	nextID  int
	latest  []byte
	closed  bool
}

// NewFrameBroadcaster creates a broadcaster; name tags its log lines.
func NewFrameBroadcaster(name string) *FrameBroadcaster {
	return &FrameBroadcaster{
		name:    name,
		clients: make(map[int]chan []byte),
	}
}

// Subscribe adds a new client and returns a channel for receiving frames.
// The latest frame, if any, is delivered first. A closed broadcaster
// returns an already closed channel.
func (fb *FrameBroadcaster) Subscribe() (int, <-chan []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	id := fb.nextID
	fb.nextID++
	ch := make(chan []byte, 2) // Buffer 2 frames to avoid blocking
	if fb.closed {
		close(ch)
		return id, ch
	}
	if fb.latest != nil {
		ch <- fb.latest
	}
	fb.clients[id] = ch

	logger.Debug("FrameBroadcaster", "%s: client #%d subscribed (total clients: %d)", fb.name, id, len(fb.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (fb *FrameBroadcaster) Unsubscribe(id int) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if ch, ok := fb.clients[id]; ok {
		close(ch)
		delete(fb.clients, id)
		logger.Debug("FrameBroadcaster", "%s: client #%d unsubscribed (remaining clients: %d)", fb.name, id, len(fb.clients))
	}
}

// Broadcast sends data to every client without blocking; slow clients skip
// the frame.
func (fb *FrameBroadcaster) Broadcast(data []byte) {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.closed {
		return
	}
	fb.latest = data
	for _, ch := range fb.clients {
		select {
		case ch <- data:
		default:
		}
	}
}

// Latest returns the last broadcast frame.
func (fb *FrameBroadcaster) Latest() []byte {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.latest
}

// Clients returns the number of subscribed clients.
func (fb *FrameBroadcaster) Clients() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return len(fb.clients)
}

// Close disconnects every client.
func (fb *FrameBroadcaster) Close() {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	fb.closed = true
	for id, ch := range fb.clients {
		close(ch)
		delete(fb.clients, id)
	}
}

// SerializedEvent holds pre-serialized event data for both formats.
type SerializedEvent struct {
	JSONData     []byte // Pre-serialized JSON
	ProtobufData []byte // Pre-serialized google.protobuf.Struct (base64 encoded for SSE)
}

// Serialize encodes payload once as JSON and as a base64 protobuf Struct.
// payload must encode to a JSON object.
func Serialize(payload any) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}

	var fields map[string]any
	if err := json.Unmarshal(jsonData, &fields); err != nil {
		return nil, fmt.Errorf("event is not an object: %w", err)
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("protobuf struct: %w", err)
	}
	pbData, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("protobuf marshal: %w", err)
	}

	return &SerializedEvent{
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}

// EventBroadcaster manages fanout of serialized events.
type EventBroadcaster struct {
	name    string
	mu      sync.Mutex
	clients map[int]chan *SerializedEvent
	nextID  int
}

// NewEventBroadcaster creates an event broadcaster; name tags its log lines.
func NewEventBroadcaster(name string) *EventBroadcaster {
	return &EventBroadcaster{
		name:    name,
		clients: make(map[int]chan *SerializedEvent),
	}
}

// Subscribe adds a new client and returns a channel for receiving events.
func (eb *EventBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	id := eb.nextID
	eb.nextID++
	ch := make(chan *SerializedEvent, 8)
	eb.clients[id] = ch

	logger.Debug("EventBroadcaster", "%s: client #%d subscribed (total clients: %d)", eb.name, id, len(eb.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (eb *EventBroadcaster) Unsubscribe(id int) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if ch, ok := eb.clients[id]; ok {
		close(ch)
		delete(eb.clients, id)
		logger.Debug("EventBroadcaster", "%s: client #%d unsubscribed (remaining clients: %d)", eb.name, id, len(eb.clients))
	}
}

// Broadcast sends event to every client without blocking.
func (eb *EventBroadcaster) Broadcast(event *SerializedEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for _, ch := range eb.clients {
		select {
		case ch <- event:
		default:
		}
	}
}

// Clients returns the number of subscribed clients.
func (eb *EventBroadcaster) Clients() int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.clients)
}

// Close disconnects every client.
func (eb *EventBroadcaster) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for id, ch := range eb.clients {
		close(ch)
		delete(eb.clients, id)
	}
}
