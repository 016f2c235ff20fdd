package stream

import (
	"context"

	"github.com/jfehre/countdart/panel/internal/notify"
)

// GameStream is the result socket of the active dartboard. It is shared by
// every view and only carries results and errors.
type GameStream struct {
	session  *Session
	onResult func(ResultMessage)
	onError  func(error)
}

// NewGameStream creates the game stream. onError receives protocol errors,
// backend errors and connection drops.
func NewGameStream(url string, onResult func(ResultMessage), onError func(error), opts Options) *GameStream {
	g := &GameStream{onResult: onResult, onError: onError}
	userDrop := opts.OnDrop
	opts.OnDrop = func(err error) {
		g.report(err)
		if userDrop != nil {
			userDrop(err)
		}
	}
	g.session = NewSession(url, g.handle, opts)
	return g
}

// Open dials the socket.
func (g *GameStream) Open(ctx context.Context) error {
	return g.session.Start(ctx)
}

// Close closes the socket.
func (g *GameStream) Close() error {
	return g.session.Close()
}

// State returns the socket state.
func (g *GameStream) State() State {
	return g.session.State()
}

func (g *GameStream) handle(raw []byte) {
	msg, err := Parse(raw)
	if err != nil {
		g.report(err)
		return
	}
	switch m := msg.(type) {
	case ResultMessage:
		if g.onResult != nil {
			g.onResult(m)
		}
	case ErrorMessage:
		g.report(notify.ServerError("game", m.Text))
	default:
		g.report(notify.ProtocolError("game", "unexpected %T on result socket", msg))
	}
}

func (g *GameStream) report(err error) {
	if g.onError != nil {
		g.onError(err)
	}
}
