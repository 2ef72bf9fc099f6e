// Package affordance owns the host's primary-action control on behalf of the
// checkout flow.
//
// The host exposes a single button with raw attach/detach of click handlers
// and no atomic replace. Attaching twice means one click fires twice, which in
// checkout means two orders. Affordance tracks every handler it attached and
// detaches them all before attaching a new one, so the control never carries
// more than one handler installed by this package.
package affordance

import (
	"context"
	"sync"
)

// Handler is a click handler. Handlers are compared by pointer identity, so
// detaching requires the exact value that was attached.
type Handler struct {
	name string
	fn   func(ctx context.Context)
}

// NewHandler wraps fn. The name is used only for logging and debugging.
func NewHandler(name string, fn func(ctx context.Context)) *Handler {
	return &Handler{name: name, fn: fn}
}

// Name returns the handler's debug name.
func (h *Handler) Name() string {
	return h.name
}

// Invoke runs the handler.
func (h *Handler) Invoke(ctx context.Context) {
	h.fn(ctx)
}

// Control is the host primary-action button.
// Every OnClick must be paired with an OffClick of the same handler.
type Control interface {
	Show()
	Hide()
	SetLabel(label string)
	SetBusy(busy bool)
	OnClick(h *Handler)
	OffClick(h *Handler)
}

// Affordance is the single owner of a Control.
type Affordance struct {
	mu       sync.Mutex
	control  Control
	attached []*Handler
	label    string
	busy     bool
}

// New wraps control. The control is assumed to carry no handlers yet.
func New(control Control) *Affordance {
	return &Affordance{control: control}
}

// Bind sets the label and replaces the click handler, then shows the control.
// Any busy indicator is cleared.
func (a *Affordance) Bind(label string, h *Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.control.SetLabel(label)
	a.label = label
	a.detachAll()
	if a.busy {
		a.control.SetBusy(false)
		a.busy = false
	}
	a.control.OnClick(h)
	a.attached = append(a.attached, h)
	a.control.Show()
}

// Busy disables the control: handlers are detached and a progress indicator
// is shown. Clicks do nothing until the next Bind.
func (a *Affordance) Busy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.detachAll()
	a.control.SetBusy(true)
	a.busy = true
	a.control.Show()
}

// Show makes the control visible without touching its handler.
func (a *Affordance) Show() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.control.Show()
}

// Hide hides the control and detaches the handler so nothing stale can fire
// while it is hidden.
func (a *Affordance) Hide() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.detachAll()
	if a.busy {
		a.control.SetBusy(false)
		a.busy = false
	}
	a.control.Hide()
}

// Attached returns how many handlers this affordance currently holds on the
// control (0 or 1).
func (a *Affordance) Attached() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.attached)
}

// Label returns the last label set through Bind.
func (a *Affordance) Label() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.label
}

func (a *Affordance) detachAll() {
	for _, h := range a.attached {
		a.control.OffClick(h)
	}
	a.attached = a.attached[:0]
}
