package panel

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jfehre/countdart/panel/internal/metrics"
	"github.com/jfehre/countdart/panel/internal/render"
	"github.com/jfehre/countdart/panel/internal/stream"
)

type fakeRelay struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (r *fakeRelay) Broadcast(msg []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *fakeRelay) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

func dart(score string, x, y float64) stream.ResultMessage {
	return stream.ResultMessage{
		Class: stream.ClassDart,
		Throw: &stream.Throw{Score: score, Confidence: 0.9, Point: []float64{x, y}},
	}
}

func nextEvent(t *testing.T, ch <-chan *SerializedEvent) ResultEvent {
	t.Helper()
	select {
	case e := <-ch:
		var out ResultEvent
		if err := json.Unmarshal(e.JSONData, &out); err != nil {
			t.Fatalf("decode %s: %v", e.JSONData, err)
		}
		return out
	case <-time.After(waitTimeout):
		t.Fatalf("no result event")
		return ResultEvent{}
	}
}

func TestGameViewPublishesWindow(t *testing.T) {
	rl := &fakeRelay{}
	m := metrics.New()
	g := NewGameView("ws://127.0.0.1:1/game/ws", stream.DefaultOptions(), render.DefaultStyle(), rl, m, nil)
	defer g.Close()

	id, ch := g.Events().Subscribe()
	defer g.Events().Unsubscribe(id)

	for i, score := range []string{"T20", "S5", "D1", "S20"} {
		g.Apply(dart(score, float64(i), 0))
	}
	var last ResultEvent
	for range 4 {
		last = nextEvent(t, ch)
	}
	if len(last.Window) != 3 || last.Window[0].Score != "S5" || last.Window[2].Score != "S20" {
		t.Errorf("window = %+v", last.Window)
	}
	if last.Total != 4 || last.Class != stream.ClassDart || last.Throw == nil {
		t.Errorf("event = %+v", last)
	}
	if got := len(g.Sketch().Points()); got != 4 {
		t.Errorf("sketch points = %d, want 4", got)
	}

	g.Apply(stream.ResultMessage{Class: stream.ClassHand})
	cleared := nextEvent(t, ch)
	if len(cleared.Window) != 0 || cleared.Class != stream.ClassHand {
		t.Errorf("after hand: %+v", cleared)
	}
	if got := len(g.Sketch().Points()); got != 0 {
		t.Errorf("sketch not cleared: %d points", got)
	}

	if got := rl.count(); got != 5 {
		t.Errorf("relay got %d messages, want 5", got)
	}
	if got := m.ResultsReceived.Load(); got != 5 {
		t.Errorf("ResultsReceived = %d, want 5", got)
	}
	if g.Last() == nil {
		t.Errorf("Last is nil after results")
	}
}

func TestGameViewCloseDetaches(t *testing.T) {
	g := NewGameView("ws://127.0.0.1:1/game/ws", stream.DefaultOptions(), render.DefaultStyle(), nil, nil, nil)
	_, ch := g.Events().Subscribe()

	if err := g.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Errorf("subscriber channel still open after Close")
	}
	g.Apply(dart("T20", 0, 0))
	if g.Last() != nil {
		t.Errorf("result published after Close")
	}
	if len(g.Sketch().Points()) != 0 {
		t.Errorf("sketch plotted after Close")
	}
	if got := g.State(); got != stream.Connecting {
		t.Errorf("state = %v, want connecting", got)
	}
}

func TestGameViewCloseDuringDial(t *testing.T) {
	dialed := make(chan struct{})
	release := make(chan struct{})
	conns := make(chan *websocket.Conn, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(dialed)
		<-release
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	defer srv.Close()

	m := metrics.New()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/game/ws"
	g := NewGameView(url, stream.DefaultOptions(), render.DefaultStyle(), nil, m, nil)

	done := make(chan struct{})
	go func() {
		g.Run(context.Background())
		close(done)
	}()

	select {
	case <-dialed:
	case <-time.After(waitTimeout):
		t.Fatalf("game socket never dialed")
	}
	if err := g.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	close(release)

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatalf("Run did not return")
	}
	if got := g.State(); got == stream.Open {
		t.Errorf("state = %v after Close", got)
	}
	if got := m.ActiveSessions.Load(); got != 0 {
		t.Errorf("ActiveSessions = %d, want 0", got)
	}

	var conn *websocket.Conn
	select {
	case conn = <-conns:
	case <-time.After(waitTimeout):
		t.Fatalf("server never accepted")
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(waitTimeout))
	_, _, err := conn.ReadMessage()
	var ne net.Error
	if err == nil || errors.As(err, &ne) && ne.Timeout() {
		t.Errorf("socket left open after Close: %v", err)
	}
}

func TestGameViewRunAfterClose(t *testing.T) {
	g := NewGameView("ws://127.0.0.1:1/game/ws", stream.DefaultOptions(), render.DefaultStyle(), nil, nil, nil)
	if err := g.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	done := make(chan struct{})
	go func() {
		g.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatalf("Run kept dialing after Close")
	}
}
