package render

import (
	"context"
	"sync/atomic"

	"github.com/jfehre/countdart/panel/internal/logger"
)

// Loop redraws on request. Requests made while a redraw is pending are
// coalesced into that redraw, so a burst of pointer moves and frame
// arrivals costs one render.
type Loop struct {
	render  func() ([]byte, error)
	publish func([]byte)
	wake    chan struct{}
	renders atomic.Uint64
	log     *logger.ModuleLogger
}

// NewLoop creates a loop. render produces an encoded canvas (nil means
// nothing to draw yet) and publish receives every produced canvas.
func NewLoop(render func() ([]byte, error), publish func([]byte)) *Loop {
	return &Loop{
		render:  render,
		publish: publish,
		wake:    make(chan struct{}, 1),
		log:     logger.For("Render"),
	}
}

// Request schedules a redraw. It never blocks.
func (l *Loop) Request() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run redraws until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}

		data, err := l.render()
		if err != nil {
			l.log.Warn("render failed: %v", err)
			continue
		}
		if data == nil {
			continue
		}
		l.renders.Add(1)
		l.publish(data)
	}
}

// Renders returns the number of published canvases.
func (l *Loop) Renders() uint64 {
	return l.renders.Load()
}
