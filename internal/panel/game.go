package panel

import (
	"context"
	"sync"
	"time"

	"github.com/jfehre/countdart/panel/internal/logger"
	"github.com/jfehre/countdart/panel/internal/metrics"
	"github.com/jfehre/countdart/panel/internal/notify"
	"github.com/jfehre/countdart/panel/internal/render"
	"github.com/jfehre/countdart/panel/internal/results"
	"github.com/jfehre/countdart/panel/internal/stream"
)

// Relay receives every result event as JSON.
type Relay interface {
	Broadcast(msg []byte)
}

// ResultEvent is what result subscribers receive: the result and the
// reconciled window after it was applied.
type ResultEvent struct {
	Type      string         `json:"type"`
	Class     stream.Class   `json:"cls"`
	Throw     *stream.Throw  `json:"content,omitempty"`
	Window    []stream.Throw `json:"window"`
	Total     uint64         `json:"total_results"`
	Timestamp float64        `json:"timestamp"`
}

// GameView owns the shared result socket and everything fed by it: the
// reconciler, the board sketch and the result event fanout.
type GameView struct {
	url        string
	opts       stream.Options
	reconciler *results.Reconciler
	sketch     *render.Sketch
	events     *EventBroadcaster
	relay      Relay
	metrics    *metrics.Metrics
	center     *notify.Center
	log        *logger.ModuleLogger

	mu     sync.Mutex
	stream *stream.GameStream
	last   *SerializedEvent
	closed bool
	unsub  func()
	remove func()
}

// NewGameView wires the reconciler to the sketch, the relay and the event
// broadcaster. relay, m and center may be nil.
func NewGameView(url string, opts stream.Options, style render.Style, relay Relay, m *metrics.Metrics, center *notify.Center) *GameView {
	g := &GameView{
		url:        url,
		opts:       opts,
		reconciler: results.New(),
		sketch:     render.NewSketch(style),
		events:     NewEventBroadcaster("results"),
		relay:      relay,
		metrics:    m,
		center:     center,
		log:        logger.For("Game"),
	}
	g.remove = g.reconciler.AddPlotter(g.sketch)
	g.unsub = g.reconciler.Subscribe(g.publish)
	return g
}

// Apply folds a result into the game state. Camera sockets deliver their
// results here too.
func (g *GameView) Apply(msg stream.ResultMessage) {
	if g.metrics != nil {
		g.metrics.RecordResult(string(msg.Class))
	}
	g.reconciler.Apply(msg)
}

func (g *GameView) publish(msg stream.ResultMessage) {
	snap := g.reconciler.Snapshot()
	event, err := Serialize(ResultEvent{
		Type:      "result",
		Class:     msg.Class,
		Throw:     msg.Throw,
		Window:    snap.Throws,
		Total:     snap.Total,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
	})
	if err != nil {
		g.log.Error("serialize result: %v", err)
		return
	}

	g.mu.Lock()
	g.last = event
	g.mu.Unlock()

	g.events.Broadcast(event)
	if g.relay != nil {
		g.relay.Broadcast(event.JSONData)
	}
}

func (g *GameView) report(err error) {
	countError(g.metrics, err)
	if g.center != nil {
		g.center.Report(err)
		return
	}
	g.log.Warn("%v", err)
}

// Run dials the result socket, retrying with backoff until the first
// connection succeeds or ctx is done. Once open, the session reconnects on
// its own.
func (g *GameView) Run(ctx context.Context) {
	wait := g.opts.MinBackoff
	if wait <= 0 {
		wait = stream.DefaultOptions().MinBackoff
	}
	for {
		g.mu.Lock()
		closed := g.closed
		g.mu.Unlock()
		if closed {
			return
		}
		gs := stream.NewGameStream(g.url, g.Apply, g.report, g.opts)
		err := gs.Open(ctx)
		if err == nil {
			g.mu.Lock()
			if g.closed || ctx.Err() != nil {
				g.mu.Unlock()
				_ = gs.Close()
				return
			}
			g.stream = gs
			g.mu.Unlock()
			if g.metrics != nil {
				g.metrics.ActiveSessions.Add(1)
			}
			g.log.Info("result socket open: %s", g.url)
			return
		}
		g.report(err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		wait *= 2
		if g.opts.MaxBackoff > 0 && wait > g.opts.MaxBackoff {
			wait = g.opts.MaxBackoff
		}
	}
}

// State returns the socket state; Connecting until the first dial succeeds.
func (g *GameView) State() stream.State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stream == nil {
		return stream.Connecting
	}
	return g.stream.State()
}

// Snapshot returns the reconciled game state.
func (g *GameView) Snapshot() results.Snapshot {
	return g.reconciler.Snapshot()
}

// Sketch returns the board sketch.
func (g *GameView) Sketch() *render.Sketch {
	return g.sketch
}

// Events returns the result event broadcaster.
func (g *GameView) Events() *EventBroadcaster {
	return g.events
}

// Last returns the most recent result event.
func (g *GameView) Last() *SerializedEvent {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Close closes the socket and detaches the reconciler's consumers.
func (g *GameView) Close() error {
	g.unsub()
	g.remove()
	g.events.Close()

	g.mu.Lock()
	gs := g.stream
	g.stream = nil
	g.closed = true
	g.mu.Unlock()
	if gs == nil {
		return nil
	}
	if g.metrics != nil {
		g.metrics.ActiveSessions.Add(-1)
	}
	return gs.Close()
}
