package host

import (
	"context"
	"sync"

	"shop-miniapp/internal/model"
)

// Presentation is how the host shows a notice.
type Presentation string

const (
	PresentationPopup Presentation = "popup"
	PresentationAlert Presentation = "alert"
)

// PendingNotice is a notice queued for the web view with its presentation.
type PendingNotice struct {
	model.Notice
	Presentation Presentation `json:"presentation"`
}

// Inbox queues notices until the web view collects them.
// It implements checkout.Notifier.
type Inbox struct {
	mu           sync.Mutex
	presentation Presentation
	pending      []PendingNotice
}

// NewInbox creates an inbox for a host at the given platform version.
func NewInbox(platformVersion string) *Inbox {
	p := PresentationAlert
	if SupportsPopup(platformVersion) {
		p = PresentationPopup
	}
	return &Inbox{presentation: p}
}

// Notify queues n.
func (i *Inbox) Notify(_ context.Context, n model.Notice) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.pending = append(i.pending, PendingNotice{Notice: n, Presentation: i.presentation})
}

// Drain returns the queued notices in arrival order and empties the queue.
func (i *Inbox) Drain() []PendingNotice {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := i.pending
	i.pending = nil
	return out
}

// Pending returns a copy of the queued notices without removing them.
func (i *Inbox) Pending() []PendingNotice {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]PendingNotice(nil), i.pending...)
}
