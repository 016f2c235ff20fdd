package panel

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestFrameBroadcasterDeliversLatestFirst(t *testing.T) {
	fb := NewFrameBroadcaster("test")
	fb.Broadcast([]byte("one"))
	fb.Broadcast([]byte("two"))

	id, ch := fb.Subscribe()
	if got := string(<-ch); got != "two" {
		t.Fatalf("first frame = %q, want latest", got)
	}
	fb.Broadcast([]byte("three"))
	if got := string(<-ch); got != "three" {
		t.Fatalf("frame = %q", got)
	}
	if fb.Clients() != 1 {
		t.Fatalf("Clients = %d", fb.Clients())
	}

	fb.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatalf("channel open after Unsubscribe")
	}
	fb.Unsubscribe(id)
}

func TestFrameBroadcasterSkipsSlowClients(t *testing.T) {
	fb := NewFrameBroadcaster("test")
	_, ch := fb.Subscribe()
	for i := 0; i < 10; i++ {
		fb.Broadcast([]byte{byte(i)})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered = %d, want %d", len(ch), cap(ch))
	}
	if !bytes.Equal(fb.Latest(), []byte{9}) {
		t.Fatalf("Latest = %v", fb.Latest())
	}
}

func TestFrameBroadcasterClose(t *testing.T) {
	fb := NewFrameBroadcaster("test")
	_, before := fb.Subscribe()
	fb.Close()

	if _, ok := <-before; ok {
		t.Fatalf("subscriber channel open after Close")
	}
	_, after := fb.Subscribe()
	if _, ok := <-after; ok {
		t.Fatalf("subscribe after Close returned an open channel")
	}
	fb.Broadcast([]byte("late"))
	if fb.Clients() != 0 {
		t.Fatalf("Clients = %d after Close", fb.Clients())
	}
}

func TestSerializeCarriesBothFormats(t *testing.T) {
	event, err := Serialize(map[string]any{
		"type":   "result",
		"cls":    "dart",
		"window": []any{map[string]any{"score": "T20", "confidence": 0.5}},
		"total":  3,
	})
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	var fromJSON map[string]any
	if err := json.Unmarshal(event.JSONData, &fromJSON); err != nil {
		t.Fatalf("json: %v", err)
	}

	raw, err := base64.StdEncoding.DecodeString(string(event.ProtobufData))
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	var st structpb.Struct
	if err := proto.Unmarshal(raw, &st); err != nil {
		t.Fatalf("proto: %v", err)
	}
	fromProto := st.AsMap()

	if fromProto["cls"] != "dart" || fromProto["total"] != float64(3) {
		t.Errorf("proto fields = %v", fromProto)
	}
	window, _ := fromProto["window"].([]any)
	if len(window) != 1 {
		t.Fatalf("proto window = %v", fromProto["window"])
	}
	if score := window[0].(map[string]any)["score"]; score != "T20" {
		t.Errorf("proto score = %v", score)
	}
	if fromJSON["cls"] != fromProto["cls"] {
		t.Errorf("formats disagree: %v vs %v", fromJSON, fromProto)
	}
}

func TestSerializeRejectsNonObjects(t *testing.T) {
	if _, err := Serialize([]int{1, 2}); err == nil {
		t.Fatalf("array payload accepted")
	}
	if _, err := Serialize(func() {}); err == nil {
		t.Fatalf("func payload accepted")
	}
}

func TestEventBroadcasterFanout(t *testing.T) {
	eb := NewEventBroadcaster("test")
	_, a := eb.Subscribe()
	idB, b := eb.Subscribe()

	event, _ := Serialize(map[string]any{"n": 1})
	eb.Broadcast(event)
	if <-a != event || <-b != event {
		t.Fatalf("event not delivered to both clients")
	}

	eb.Unsubscribe(idB)
	if eb.Clients() != 1 {
		t.Fatalf("Clients = %d, want 1", eb.Clients())
	}
	eb.Close()
	if _, ok := <-a; ok {
		t.Fatalf("channel open after Close")
	}
}

func TestStreamEventsNegotiatesFormat(t *testing.T) {
	event, _ := Serialize(map[string]any{"cls": "hand"})

	for _, tc := range []struct {
		accept string
		format string
		body   string
	}{
		{"", "application/json", string(event.JSONData)},
		{"application/protobuf", "application/protobuf", string(event.ProtobufData)},
	} {
		ch := make(chan *SerializedEvent)
		close(ch)
		req := httptest.NewRequest(http.MethodGet, "/api/game/stream", nil)
		if tc.accept != "" {
			req.Header.Set("Accept", tc.accept)
		}
		rec := httptest.NewRecorder()
		streamEventsFromChannel(rec, req, ch, event)

		if got := rec.Header().Get("X-Content-Format"); got != tc.format {
			t.Errorf("accept %q: format = %q, want %q", tc.accept, got, tc.format)
		}
		if !strings.Contains(rec.Body.String(), "data: "+tc.body+"\n\n") {
			t.Errorf("accept %q: body = %q", tc.accept, rec.Body.String())
		}
	}
}
