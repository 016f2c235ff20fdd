// Package stream owns the websocket sessions to the countdart backend: one
// per mounted camera view plus the shared game/result socket.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jfehre/countdart/panel/internal/logger"
	"github.com/jfehre/countdart/panel/internal/notify"
)

const writeTimeout = 5 * time.Second

// State is the lifecycle state of a Session.
type State int

const (
	Connecting State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "closed"
	}
}

// Options tunes a Session.
type Options struct {
	// Reconnect redials with exponential backoff after the socket drops.
	Reconnect  bool
	MinBackoff time.Duration
	MaxBackoff time.Duration

	Dialer *websocket.Dialer

	// OnOpen runs on the session goroutine after every successful dial.
	OnOpen func(reconnect bool)
	// OnDrop runs when an open socket fails; the error is a ConnectionError.
	OnDrop func(err error)
}

// DefaultOptions reconnects between 500ms and 30s.
func DefaultOptions() Options {
	return Options{
		Reconnect:  true,
		MinBackoff: 500 * time.Millisecond,
		MaxBackoff: 30 * time.Second,
	}
}

// Session is one websocket connection: Connecting -> Open -> Closed, with
// Open -> Connecting on a drop when reconnecting is enabled. Inbound frames
// are handed to the handler one at a time, in arrival order, on the
// session's goroutine.
type Session struct {
	url     string
	opts    Options
	handler func([]byte)
	log     *logger.ModuleLogger

	mu    sync.Mutex
	conn  *websocket.Conn
	state State

	writeMu sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession creates a session for url. Nothing is dialed until Start.
func NewSession(url string, handler func([]byte), opts Options) *Session {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = opts.MinBackoff
	}
	return &Session{
		url:     url,
		opts:    opts,
		handler: handler,
		log:     logger.For("Stream"),
		state:   Connecting,
		done:    make(chan struct{}),
	}
}

// Start dials the socket and begins reading. The first dial is synchronous;
// if it fails the session is Closed and a ConnectionError is returned.
func (s *Session) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	conn, err := s.dial()
	if err != nil {
		s.setState(Closed)
		s.cancel()
		close(s.done)
		return err
	}
	s.attach(conn)
	s.log.Info("connected to %s", s.url)
	if s.opts.OnOpen != nil {
		s.opts.OnOpen(false)
	}

	go s.run(conn)
	return nil
}

func (s *Session) dial() (*websocket.Conn, error) {
	conn, resp, err := s.opts.Dialer.DialContext(s.ctx, s.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, notify.ConnectionError("stream.dial "+s.url, err)
	}
	return conn, nil
}

func (s *Session) attach(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.state = Open
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) run(conn *websocket.Conn) {
	defer close(s.done)

	for {
		err := s.read(conn)

		s.mu.Lock()
		if s.ctx.Err() != nil {
			s.conn = nil
			s.state = Closed
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = nil
		s.state = Connecting
		s.mu.Unlock()
		conn.Close()

		dropErr := notify.ConnectionError("stream.read "+s.url, err)
		s.log.Warn("socket dropped: %v", err)
		if s.opts.OnDrop != nil {
			s.opts.OnDrop(dropErr)
		}
		if !s.opts.Reconnect {
			s.setState(Closed)
			return
		}

		conn = s.redial()
		if conn == nil {
			s.setState(Closed)
			return
		}
		if s.opts.OnOpen != nil {
			s.opts.OnOpen(true)
		}
	}
}

func (s *Session) read(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		s.handler(data)
	}
}

// redial retries with exponential backoff until it connects or the session
// is closed, in which case it returns nil.
func (s *Session) redial() *websocket.Conn {
	wait := s.opts.MinBackoff
	for attempt := 1; ; attempt++ {
		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		conn, err := s.dial()
		if err == nil {
			s.mu.Lock()
			if s.ctx.Err() != nil {
				s.mu.Unlock()
				conn.Close()
				return nil
			}
			s.conn = conn
			s.state = Open
			s.mu.Unlock()
			s.log.Info("reconnected to %s after %d attempt(s)", s.url, attempt)
			return conn
		}

		s.log.Debug("reconnect attempt %d failed: %v", attempt, err)
		wait *= 2
		if wait > s.opts.MaxBackoff {
			wait = s.opts.MaxBackoff
		}
	}
}

// Send writes a text frame. Sending on a socket that is not open is a
// StaleStateError; a failed write is a ConnectionError.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()

	if state != Open || conn == nil {
		return notify.StaleStateError("stream.send", "socket is %s", state)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return notify.ConnectionError("stream.send", err)
	}
	return nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the session goroutine has exited.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close closes the socket and waits for the session goroutine to exit.
// It is safe to call more than once and before Start.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.cancel == nil {
			s.setState(Closed)
			close(s.done)
			return
		}
		s.cancel()

		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.state = Closed
		s.mu.Unlock()

		if conn != nil {
			s.writeMu.Lock()
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			s.writeMu.Unlock()
			if cerr := conn.Close(); cerr != nil && !errors.Is(cerr, websocket.ErrCloseSent) {
				err = cerr
			}
		}
		<-s.done
		s.log.Info("closed %s", s.url)
	})
	return err
}
