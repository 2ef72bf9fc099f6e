package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"shop-miniapp/internal/catalog"
	"shop-miniapp/internal/checkout"
	"shop-miniapp/internal/model"
	"shop-miniapp/internal/submit"
)

func newTestManager(t *testing.T, sub checkout.Submitter) *Manager {
	t.Helper()
	if sub == nil {
		sub = &submit.Mock{}
	}
	m, err := NewManager(Config{
		Catalog:   catalog.Default(),
		Submitter: sub,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Currency:  "TJS",
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	return m
}

func TestNewManager_Validation(t *testing.T) {
	if _, err := NewManager(Config{Submitter: &submit.Mock{}}); err == nil {
		t.Error("NewManager() without catalog should fail")
	}
	if _, err := NewManager(Config{Catalog: catalog.Default()}); err == nil {
		t.Error("NewManager() without submitter should fail")
	}
}

func TestManager_GetReusesSession(t *testing.T) {
	m := newTestManager(t, nil)
	ann := model.Identity{UserID: 42, DisplayName: "Ann"}

	s1, err := m.Get(ann, "")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	s2, _ := m.Get(ann, "")
	if s1 != s2 {
		t.Error("Get() returned a different session for the same user")
	}

	other, _ := m.Get(model.Identity{UserID: 7, DisplayName: "Bob"}, "")
	if other == s1 {
		t.Error("different users share a session")
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}

func TestManager_GuestsGetSeparateSessions(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	guest := model.GuestIdentity()

	a, err := m.Start(guest, "")
	if err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	b, _ := m.Start(guest, "")
	if a == b {
		t.Fatal("two guests share a session")
	}
	if a.Token == "" || b.Token == "" || a.Token == b.Token {
		t.Fatalf("tokens = %q, %q, want two distinct tokens", a.Token, b.Token)
	}

	a.Flow.Add(ctx, 1)
	a.Flow.OpenCart(ctx)
	a.Flow.SetContact(ctx, "+992900000001", "guest A private note")

	gotB, _ := m.Get(guest, b.Token)
	if gotB != b {
		t.Fatal("Get() with guest B's token returned another session")
	}
	v := gotB.View()
	if v.Stage != "browsing" || len(v.Lines) != 0 || v.Contact != "" || v.Comment != "" {
		t.Errorf("guest B view = %+v, want an untouched session", v)
	}
	if v.Token != b.Token {
		t.Errorf("view token = %q, want %q", v.Token, b.Token)
	}

	if again, _ := m.Get(guest, a.Token); again != a {
		t.Error("Get() with guest A's token lost the session")
	}
	if fresh, _ := m.Get(guest, "unknown-token"); fresh == a || fresh == b || fresh.Token == "unknown-token" {
		t.Error("unknown guest token must get a fresh session with a new token")
	}

	if m.End(ctx, guest, "") {
		t.Error("End() without a token = true, want false")
	}
	if !m.End(ctx, guest, a.Token) {
		t.Fatal("End() with guest A's token = false, want true")
	}
	if _, ok := m.Lookup(GuestKey(b.Token)); !ok {
		t.Error("ending guest A removed guest B")
	}
}

func TestManager_UsersIgnoreToken(t *testing.T) {
	m := newTestManager(t, nil)
	ann := model.Identity{UserID: 42, DisplayName: "Ann"}

	s1, _ := m.Start(ann, "")
	if s1.Token != "" {
		t.Errorf("identified user token = %q, want none", s1.Token)
	}
	if s2, _ := m.Get(ann, "some-token"); s2 != s1 {
		t.Error("identified user was keyed by token")
	}
}

func TestManager_StartReplacesClosed(t *testing.T) {
	m := newTestManager(t, nil)
	ann := model.Identity{UserID: 42, DisplayName: "Ann"}
	ctx := context.Background()

	s1, _ := m.Start(ann, "")
	if again, _ := m.Start(ann, ""); again != s1 {
		t.Error("Start() replaced an open session")
	}

	s1.Flow.Close(ctx)

	if got, _ := m.Get(ann, ""); got != s1 {
		t.Error("Get() should keep the closed session readable")
	}

	s2, _ := m.Start(ann, "")
	if s2 == s1 {
		t.Fatal("Start() kept the closed session")
	}
	if s2.Flow.Stage() != checkout.StageBrowsing {
		t.Errorf("new session stage = %s, want browsing", s2.Flow.Stage())
	}
}

func TestManager_End(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	s, _ := m.Get(model.Identity{UserID: 1, DisplayName: "A"}, "")
	s.Flow.Add(ctx, 1)

	if !m.End(ctx, model.Identity{UserID: 1}, "") {
		t.Fatal("End() = false, want true")
	}
	if s.Flow.Stage() != checkout.StageClosed {
		t.Errorf("stage = %s, want closed", s.Flow.Stage())
	}
	if _, ok := m.Lookup(UserKey(1)); ok {
		t.Error("session still registered after End()")
	}
	if m.End(ctx, model.Identity{UserID: 1}, "") {
		t.Error("second End() = true, want false")
	}
}

func TestManager_Sweep(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	old, _ := m.Get(model.Identity{UserID: 1, DisplayName: "old"}, "")
	m.Get(model.Identity{UserID: 2, DisplayName: "fresh"}, "")
	old.lastSeen.Store(time.Now().Add(-2 * time.Hour).UnixNano())

	if n := m.Sweep(ctx, time.Hour); n != 1 {
		t.Errorf("Sweep() = %d, want 1", n)
	}
	if _, ok := m.Lookup(UserKey(1)); ok {
		t.Error("idle session survived Sweep()")
	}
	if _, ok := m.Lookup(UserKey(2)); !ok {
		t.Error("fresh session was swept")
	}
	if old.Flow.Stage() != checkout.StageClosed {
		t.Errorf("swept session stage = %s, want closed", old.Flow.Stage())
	}
}

func TestSession_View(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	s, _ := m.Get(model.Identity{UserID: 42, DisplayName: "Ann", PlatformVersion: "7.2"}, "")

	v := s.View()
	if v.Stage != "browsing" || v.MainButton.Visible {
		t.Errorf("empty view = %+v, want browsing with hidden button", v)
	}

	s.Flow.Add(ctx, 1)
	s.Flow.Add(ctx, 1)
	s.Flow.Add(ctx, 6)

	v = s.View()
	if len(v.Lines) != 2 {
		t.Fatalf("Lines len = %d, want 2", len(v.Lines))
	}
	if v.Lines[0].ID != 1 || v.Lines[0].Quantity != 2 || v.Lines[0].Subtotal != 5000 {
		t.Errorf("Lines[0] = %+v", v.Lines[0])
	}
	if v.Total != 5500 || v.TotalLabel != "5500 TJS" {
		t.Errorf("Total = %d %q, want 5500 \"5500 TJS\"", v.Total, v.TotalLabel)
	}
	if v.MainButton.Label != "Checkout: 5500 TJS" || v.MainButton.Handlers != 1 {
		t.Errorf("MainButton = %+v", v.MainButton)
	}
}

func TestSession_ViewDrainsNotices(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()
	s, _ := m.Get(model.Identity{UserID: 42, DisplayName: "Ann", PlatformVersion: "7.2"}, "")

	s.Flow.Add(ctx, 1)
	s.Flow.OpenCart(ctx)
	s.Flow.SetContact(ctx, "ab", "")
	s.ClickMainButton(ctx)

	v := s.View()
	if len(v.Notices) != 1 {
		t.Fatalf("Notices len = %d, want 1", len(v.Notices))
	}
	if v.Notices[0].Presentation != "popup" || v.Notices[0].Title != "Error" {
		t.Errorf("notice = %+v", v.Notices[0])
	}
	if v.LastError == nil || v.LastError.Code != model.CodeValidation {
		t.Errorf("LastError = %v, want validation", v.LastError)
	}

	if again := s.View(); len(again.Notices) != 0 {
		t.Errorf("second View() notices = %d, want 0", len(again.Notices))
	}
}

func TestSession_ClickThroughToClosed(t *testing.T) {
	sub := &submit.Mock{}
	m := newTestManager(t, sub)
	ctx := context.Background()
	s, _ := m.Get(model.Identity{UserID: 42, DisplayName: "Ann"}, "")

	s.Flow.Add(ctx, 1)
	s.ClickMainButton(ctx) // open cart
	s.Flow.SetContact(ctx, "@annlee", "")
	s.ClickMainButton(ctx) // proceed
	if got := s.Button.State().Label; got != "Pay: 2500 TJS" {
		t.Fatalf("label = %q, want %q", got, "Pay: 2500 TJS")
	}
	s.ClickMainButton(ctx) // confirm

	v := s.View()
	if v.Stage != "closed" || !v.CloseRequested || len(v.Lines) != 0 {
		t.Errorf("view = %+v, want closed with close requested and empty cart", v)
	}
	if sub.Calls() != 1 {
		t.Errorf("Submit calls = %d, want 1", sub.Calls())
	}
	if v.MainButton.Visible || v.MainButton.Handlers != 0 {
		t.Errorf("MainButton = %+v, want hidden with no handlers", v.MainButton)
	}
}
