// Package host mirrors the chat host's web view surface: the primary-action
// button, popups and the user identity passed along with every request.
package host

import (
	"context"
	"sync"

	"shop-miniapp/internal/affordance"
)

// ButtonState is the rendered state of the primary-action button.
type ButtonState struct {
	Label    string `json:"label"`
	Visible  bool   `json:"visible"`
	Busy     bool   `json:"busy"`
	Handlers int    `json:"handlers"`
}

// Button is the host primary-action control.
//
// Like the real host button it keeps a plain list of click handlers and does
// not deduplicate: attaching the same handler twice makes a click fire it
// twice. Only affordance.Affordance should attach handlers.
type Button struct {
	mu       sync.Mutex
	label    string
	visible  bool
	busy     bool
	handlers []*affordance.Handler
}

// NewButton returns a hidden button with no label and no handlers.
func NewButton() *Button {
	return &Button{}
}

func (b *Button) Show() {
	b.mu.Lock()
	b.visible = true
	b.mu.Unlock()
}

func (b *Button) Hide() {
	b.mu.Lock()
	b.visible = false
	b.mu.Unlock()
}

func (b *Button) SetLabel(label string) {
	b.mu.Lock()
	b.label = label
	b.mu.Unlock()
}

func (b *Button) SetBusy(busy bool) {
	b.mu.Lock()
	b.busy = busy
	b.mu.Unlock()
}

func (b *Button) OnClick(h *affordance.Handler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	b.mu.Unlock()
}

// OffClick removes one registration of h. Unknown handlers are ignored.
func (b *Button) OffClick(h *affordance.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, x := range b.handlers {
		if x == h {
			b.handlers = append(b.handlers[:i], b.handlers[i+1:]...)
			return
		}
	}
}

// Click fires every attached handler, as the host does when the user taps
// the button. A hidden or busy button ignores taps. Handlers run without the
// button lock held, so they may rebind the button.
// Returns the number of handlers fired.
func (b *Button) Click(ctx context.Context) int {
	b.mu.Lock()
	if !b.visible || b.busy {
		b.mu.Unlock()
		return 0
	}
	handlers := append([]*affordance.Handler(nil), b.handlers...)
	b.mu.Unlock()

	for _, h := range handlers {
		h.Invoke(ctx)
	}
	return len(handlers)
}

// State returns the current rendered state.
func (b *Button) State() ButtonState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return ButtonState{
		Label:    b.label,
		Visible:  b.visible,
		Busy:     b.busy,
		Handlers: len(b.handlers),
	}
}

var _ affordance.Control = (*Button)(nil)
