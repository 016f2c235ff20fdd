// Package interaction turns raw pointer events into calibration point drags.
//
// Events reach an Editor through a Dispatcher, a scoped listener registry.
// Every On call returns the function that removes the listener again, so the
// owner of a view can tear down exactly what it registered.
package interaction

import (
	"sync"

	"github.com/jfehre/countdart/panel/internal/geometry"
)

// Kind identifies an event type.
type Kind int

const (
	PointerDown Kind = iota
	PointerMove
	PointerUp
	PointerLeave
	Resize
	Scroll
	FullscreenChange
)

var kindNames = map[Kind]string{
	PointerDown:      "pointerdown",
	PointerMove:      "pointermove",
	PointerUp:        "pointerup",
	PointerLeave:     "pointerleave",
	Resize:           "resize",
	Scroll:           "scroll",
	FullscreenChange: "fullscreenchange",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind maps a DOM event name to a Kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Event is a single input event. X/Y are canvas pixels for pointer events;
// Width is the wrapper width for Resize; Fullscreen is the document state
// for FullscreenChange.
type Event struct {
	Kind       Kind
	X          float64
	Y          float64
	Width      float64
	Fullscreen bool

	prevented bool
	stopped   bool
}

// Pos returns the pointer position.
func (e *Event) Pos() geometry.Point { return geometry.Point{X: e.X, Y: e.Y} }

// PreventDefault marks the event's default action as suppressed.
func (e *Event) PreventDefault() { e.prevented = true }

// StopPropagation marks the event as not bubbling past the canvas. Listeners
// on the same dispatcher still see it.
func (e *Event) StopPropagation() { e.stopped = true }

// DefaultPrevented reports whether a listener called PreventDefault.
func (e *Event) DefaultPrevented() bool { return e.prevented }

// PropagationStopped reports whether a listener called StopPropagation.
func (e *Event) PropagationStopped() bool { return e.stopped }

// Listener handles one event.
type Listener func(*Event)

type entry struct {
	id int
	fn Listener
}

// Dispatcher delivers events to listeners in registration order.
type Dispatcher struct {
	mu        sync.Mutex
	nextID    int
	listeners map[Kind][]entry
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{listeners: make(map[Kind][]entry)}
}

// On registers fn for kind and returns its remover. Calling the remover more
// than once is harmless.
func (d *Dispatcher) On(kind Kind, fn Listener) (remove func()) {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[kind] = append(d.listeners[kind], entry{id: id, fn: fn})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(kind, id) })
	}
}

func (d *Dispatcher) remove(kind Kind, id int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := d.listeners[kind]
	for i, e := range list {
		if e.id == id {
			d.listeners[kind] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(d.listeners[kind]) == 0 {
		delete(d.listeners, kind)
	}
}

// Dispatch delivers ev to every listener for its kind. Listeners run without
// the dispatcher lock held and may register or remove listeners themselves.
func (d *Dispatcher) Dispatch(ev *Event) {
	d.mu.Lock()
	list := make([]entry, len(d.listeners[ev.Kind]))
	copy(list, d.listeners[ev.Kind])
	d.mu.Unlock()

	for _, e := range list {
		e.fn(ev)
	}
}

// Listeners returns the total number of registered listeners.
func (d *Dispatcher) Listeners() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, list := range d.listeners {
		n += len(list)
	}
	return n
}

// ListenersFor returns the number of listeners registered for kind.
func (d *Dispatcher) ListenersFor(kind Kind) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.listeners[kind])
}
