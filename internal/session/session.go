// Package session keeps one in-memory shop session per host user or guest: a
// cart, the checkout flow that drives it and the mirrored host controls.
package session

import (
	"context"
	"sync/atomic"
	"time"

	"shop-miniapp/internal/catalog"
	"shop-miniapp/internal/checkout"
	"shop-miniapp/internal/host"
	"shop-miniapp/internal/model"
)

// Session is the state of one open web view.
type Session struct {
	Identity model.Identity
	Token    string // guests only; sent back in host.SessionHeader
	Flow     *checkout.Flow
	Button   *host.Button
	Inbox    *host.Inbox

	catalog  *catalog.Catalog
	currency string
	lastSeen atomic.Int64 // unix nanos
}

// ClickMainButton taps the host primary-action button on the user's behalf.
// It blocks while the bound action runs, which for payment confirmation
// includes the order submission. Returns the number of handlers fired.
func (s *Session) ClickMainButton(ctx context.Context) int {
	s.touch()
	return s.Button.Click(ctx)
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) touch() {
	s.lastSeen.Store(time.Now().UnixNano())
}

// LineView is a cart line with its product.
type LineView struct {
	model.Product
	Quantity int         `json:"quantity"`
	Subtotal model.Price `json:"subtotal"`
}

// View is the rendered session returned to the web view after each event.
type View struct {
	Stage          string               `json:"stage"`
	User           model.Identity       `json:"user"`
	Token          string               `json:"session_token,omitempty"`
	Lines          []LineView           `json:"lines"`
	Total          model.Price          `json:"total"`
	TotalLabel     string               `json:"total_label"`
	Contact        string               `json:"contact"`
	Comment        string               `json:"comment"`
	MainButton     host.ButtonState     `json:"main_button"`
	Notices        []host.PendingNotice `json:"notices"`
	LastError      *model.APIError      `json:"last_error,omitempty"`
	CloseRequested bool                 `json:"close_requested"`
}

// View renders the session. Pending notices are handed over and removed, so
// each popup is shown once.
func (s *Session) View() View {
	s.touch()
	st := s.Flow.State()

	lines := make([]LineView, 0, len(st.Lines))
	for _, l := range st.Lines {
		p, ok := s.catalog.Product(l.ProductID)
		if !ok {
			continue
		}
		lines = append(lines, LineView{
			Product:  p,
			Quantity: l.Quantity,
			Subtotal: p.Price * model.Price(l.Quantity),
		})
	}

	notices := s.Inbox.Drain()
	if notices == nil {
		notices = []host.PendingNotice{}
	}

	return View{
		Stage:          st.Stage.String(),
		User:           s.Identity,
		Token:          s.Token,
		Lines:          lines,
		Total:          st.Total,
		TotalLabel:     model.FormatAmount(st.Total, s.currency),
		Contact:        st.Contact,
		Comment:        st.Comment,
		MainButton:     s.Button.State(),
		Notices:        notices,
		LastError:      st.LastError,
		CloseRequested: st.CloseRequested,
	}
}
