package interaction

import (
	"sync"

	"github.com/jfehre/countdart/panel/internal/calibration"
	"github.com/jfehre/countdart/panel/internal/geometry"
	"github.com/jfehre/countdart/panel/internal/logger"
)

// State is the drag state of an Editor.
type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

// Editor is the drag state machine over a calibration model.
//
//	Idle --down on a point--> Dragging(i)
//	Dragging --move--> Dragging(i), point i moved by the delta since the anchor
//	Dragging --up/leave--> Idle
//
// The Editor owns the model; all access goes through it.
type Editor struct {
	mu       sync.Mutex
	model    *calibration.Model
	layout   geometry.Layout
	state    State
	active   int
	anchor   geometry.Point
	onChange func()
	log      *logger.ModuleLogger
}

// NewEditor creates an idle editor. onChange, if set, runs after every
// mutation of the model, outside the editor lock.
func NewEditor(model *calibration.Model, onChange func()) *Editor {
	return &Editor{
		model:    model,
		active:   -1,
		onChange: onChange,
		log:      logger.For("Editor"),
	}
}

// SetLayout updates the canvas/image sizes used for hit-testing.
func (e *Editor) SetLayout(l geometry.Layout) {
	e.mu.Lock()
	e.layout = l
	e.mu.Unlock()
}

// Layout returns the current layout.
func (e *Editor) Layout() geometry.Layout {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layout
}

// State returns the drag state and the active point index (-1 when idle).
func (e *Editor) State() (State, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.active
}

// Points exports the current points.
func (e *Editor) Points() []calibration.Point {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model.Export()
}

// Shapes returns the drawable projection of the points.
func (e *Editor) Shapes() []calibration.Shape {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.model.Shapes()
}

// Load replaces the points, e.g. after the backend returned saved data.
func (e *Editor) Load(pts []calibration.Point) error {
	e.mu.Lock()
	err := e.model.LoadFrom(pts)
	e.mu.Unlock()
	if err == nil {
		e.changed()
	}
	return err
}

// Reset restores all points to the default layout and ends any drag.
func (e *Editor) Reset() {
	e.mu.Lock()
	e.model.Reset()
	e.state, e.active = Idle, -1
	e.mu.Unlock()
	e.changed()
}

// PointerDown starts a drag when p hits a point. It reports whether the
// event was consumed.
func (e *Editor) PointerDown(p geometry.Point) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == Dragging {
		return true
	}
	i, ok := e.model.HitTest(p, e.layout)
	if !ok {
		return false
	}
	e.state, e.active, e.anchor = Dragging, i, p
	e.log.Debug("drag start point=%d at (%.1f, %.1f)", i, p.X, p.Y)
	return true
}

// PointerMove moves the active point by the pixel delta since the last
// anchor, converted relative to the canvas size.
func (e *Editor) PointerMove(p geometry.Point) bool {
	e.mu.Lock()
	if e.state != Dragging {
		e.mu.Unlock()
		return false
	}
	d := p.Sub(e.anchor)
	delta, ok := e.layout.DeltaToNormalized(d.X, d.Y)
	if ok {
		e.model.Move(e.active, delta.X, delta.Y)
	}
	e.anchor = p
	e.mu.Unlock()

	if ok {
		e.changed()
	}
	return true
}

// PointerUp ends a drag.
func (e *Editor) PointerUp() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != Dragging {
		return false
	}
	e.log.Debug("drag end point=%d", e.active)
	e.state, e.active, e.anchor = Idle, -1, geometry.Point{}
	return true
}

// Attach registers the editor's pointer listeners on d and returns a
// function removing all of them.
func (e *Editor) Attach(d *Dispatcher) (detach func()) {
	consume := func(ev *Event, handled bool) {
		if handled {
			ev.PreventDefault()
			ev.StopPropagation()
		}
	}
	removers := []func(){
		d.On(PointerDown, func(ev *Event) { consume(ev, e.PointerDown(ev.Pos())) }),
		d.On(PointerMove, func(ev *Event) { consume(ev, e.PointerMove(ev.Pos())) }),
		d.On(PointerUp, func(ev *Event) { consume(ev, e.PointerUp()) }),
		d.On(PointerLeave, func(ev *Event) { consume(ev, e.PointerUp()) }),
	}
	return func() {
		for _, remove := range removers {
			remove()
		}
	}
}

func (e *Editor) changed() {
	if e.onChange != nil {
		e.onChange()
	}
}
