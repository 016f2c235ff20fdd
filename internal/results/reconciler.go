// Package results keeps the game view's picture of the board: the current
// classification and the last few throws.
package results

import (
	"sync"

	"github.com/jfehre/countdart/panel/internal/geometry"
	"github.com/jfehre/countdart/panel/internal/logger"
	"github.com/jfehre/countdart/panel/internal/stream"
)

// WindowSize is the number of throws kept.
const WindowSize = 3

// Plotter draws throws on a board sketch. Points are in board space.
type Plotter interface {
	Plot(p geometry.Point)
	Clear()
}

// Snapshot is the reconciler state at one point in time.
type Snapshot struct {
	Class  stream.Class   `json:"class"`
	Throws []stream.Throw `json:"throws"`
	Total  uint64         `json:"total_results"`
}

type subscriber struct {
	id int
	fn func(stream.ResultMessage)
}

type plotterEntry struct {
	id int
	p  Plotter
}

// Reconciler folds detection results into a rolling window of throws.
//
// A dart result appends its throw, evicting the oldest past WindowSize.
// A hand result empties the window and clears the plotters: the player is
// pulling the darts. Off and none only change the current class.
type Reconciler struct {
	mu       sync.Mutex
	class    stream.Class
	window   []stream.Throw
	total    uint64
	nextID   int
	subs     []subscriber
	plotters []plotterEntry
	log      *logger.ModuleLogger
}

// New creates an empty reconciler with class "off".
func New() *Reconciler {
	return &Reconciler{
		class: stream.ClassOff,
		log:   logger.For("Results"),
	}
}

// Subscribe registers fn for every applied result. Subscribers run in
// registration order after the window has been updated.
func (r *Reconciler) Subscribe(fn func(stream.ResultMessage)) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs = append(r.subs, subscriber{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, s := range r.subs {
				if s.id == id {
					r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Subscribers returns the number of registered subscribers.
func (r *Reconciler) Subscribers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// AddPlotter forwards throw points to p until remove is called.
func (r *Reconciler) AddPlotter(p Plotter) (remove func()) {
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.plotters = append(r.plotters, plotterEntry{id: id, p: p})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, e := range r.plotters {
				if e.id == id {
					r.plotters = append(r.plotters[:i:i], r.plotters[i+1:]...)
					return
				}
			}
		})
	}
}

// Apply folds one result into the state and notifies plotters and
// subscribers.
func (r *Reconciler) Apply(msg stream.ResultMessage) {
	r.mu.Lock()
	r.class = msg.Class
	r.total++

	var plot *geometry.Point
	reset := false
	switch msg.Class {
	case stream.ClassDart:
		// A dart without a scored throw only changes the class
		if msg.Throw != nil {
			r.window = append(r.window, *msg.Throw)
			if len(r.window) > WindowSize {
				r.window = append([]stream.Throw(nil), r.window[len(r.window)-WindowSize:]...)
			}
			if p, ok := msg.Throw.Pos(); ok {
				plot = &p
			}
		}
	case stream.ClassHand:
		r.window = nil
		reset = true
	}

	plotters := make([]Plotter, len(r.plotters))
	for i, e := range r.plotters {
		plotters[i] = e.p
	}
	subs := make([]subscriber, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()

	for _, p := range plotters {
		if reset {
			p.Clear()
		}
		if plot != nil {
			p.Plot(*plot)
		}
	}
	for _, s := range subs {
		s.fn(msg)
	}
	r.log.Debug("result cls=%s subscribers=%d", msg.Class, len(subs))
}

// Class returns the current classification.
func (r *Reconciler) Class() stream.Class {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.class
}

// Window returns the kept throws, oldest first.
func (r *Reconciler) Window() []stream.Throw {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]stream.Throw, len(r.window))
	copy(out, r.window)
	return out
}

// Snapshot returns the current state.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	throws := make([]stream.Throw, len(r.window))
	copy(throws, r.window)
	return Snapshot{Class: r.class, Throws: throws, Total: r.total}
}
