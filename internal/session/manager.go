package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"shop-miniapp/internal/affordance"
	"shop-miniapp/internal/cart"
	"shop-miniapp/internal/catalog"
	"shop-miniapp/internal/checkout"
	"shop-miniapp/internal/host"
	"shop-miniapp/internal/model"
)

// Config holds what every new session is built from.
type Config struct {
	Catalog   *catalog.Catalog
	Submitter checkout.Submitter
	Logger    *slog.Logger

	MinContactLength int
	SubmitTimeout    time.Duration
	Currency         string
}

// Key identifies a live session.
type Key string

// UserKey is the session key of an identified host user.
func UserKey(userID int64) Key {
	return Key("user:" + strconv.FormatInt(userID, 10))
}

// GuestKey is the session key of a guest holding token.
func GuestKey(token string) Key {
	return Key("guest:" + token)
}

// keyOf returns the session key for id and token. Guests without a token
// have none.
func keyOf(id model.Identity, token string) (Key, bool) {
	if !id.IsGuest() {
		return UserKey(id.UserID), true
	}
	if token == "" {
		return "", false
	}
	return GuestKey(token), true
}

// Manager owns the live sessions. Identified users get one session each,
// keyed by host user id. Every guest gets a session of its own, keyed by a
// random token issued when the session is created.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[Key]*Session
}

// NewManager creates an empty manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[Key]*Session),
	}, nil
}

// Catalog returns the catalog sessions are priced against.
func (m *Manager) Catalog() *catalog.Catalog {
	return m.cfg.Catalog
}

// Get returns the caller's session, creating one if none exists. token is
// only read for guests; an unknown or empty guest token gets a new session
// with a fresh token.
// A closed session is returned as is so its final view stays readable.
func (m *Manager) Get(id model.Identity, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key, ok := keyOf(id, token); ok {
		if s, ok := m.sessions[key]; ok {
			s.touch()
			return s, nil
		}
	}
	return m.create(id)
}

// Start returns the caller's open session, replacing a closed one with a
// fresh session in Browsing.
func (m *Manager) Start(id model.Identity, token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key, ok := keyOf(id, token); ok {
		if s, ok := m.sessions[key]; ok && !s.Flow.Stage().IsTerminal() {
			s.touch()
			return s, nil
		}
	}
	return m.create(id)
}

// Lookup returns the session under key without creating one.
func (m *Manager) Lookup(key Key) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	return s, ok
}

// End closes and forgets the caller's session. Reports whether one existed.
func (m *Manager) End(ctx context.Context, id model.Identity, token string) bool {
	key, ok := keyOf(id, token)
	if !ok {
		return false
	}

	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.Flow.Close(ctx)
	m.logger.InfoContext(ctx, "session ended", slog.Int64("user_id", id.UserID))
	return true
}

// Sweep ends every session unused for longer than idle.
// Returns how many were ended.
func (m *Manager) Sweep(ctx context.Context, idle time.Duration) int {
	cutoff := time.Now().Add(-idle)

	m.mu.Lock()
	var stale []*Session
	for key, s := range m.sessions {
		if s.LastSeen().Before(cutoff) {
			stale = append(stale, s)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	for _, s := range stale {
		s.Flow.Close(ctx)
	}
	if len(stale) > 0 {
		m.logger.InfoContext(ctx, "idle sessions swept", slog.Int("count", len(stale)))
	}
	return len(stale)
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// create builds a session for id and stores it. Guests get a new token.
// m.mu must be held.
func (m *Manager) create(id model.Identity) (*Session, error) {
	var token string
	key := UserKey(id.UserID)
	if id.IsGuest() {
		u, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("generating session token: %w", err)
		}
		token = u.String()
		key = GuestKey(token)
	}

	logger := m.logger.With(slog.Int64("user_id", id.UserID))

	button := host.NewButton()
	inbox := host.NewInbox(id.PlatformVersion)

	flow, err := checkout.New(checkout.Config{
		Cart:             cart.New(m.cfg.Catalog),
		Affordance:       affordance.New(button),
		Submitter:        m.cfg.Submitter,
		Notifier:         inbox,
		Identity:         id,
		Logger:           logger,
		MinContactLength: m.cfg.MinContactLength,
		SubmitTimeout:    m.cfg.SubmitTimeout,
		Currency:         m.cfg.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("creating checkout flow: %w", err)
	}

	s := &Session{
		Identity: id,
		Token:    token,
		Flow:     flow,
		Button:   button,
		Inbox:    inbox,
		catalog:  m.cfg.Catalog,
		currency: m.cfg.Currency,
	}
	s.touch()

	if old, ok := m.sessions[key]; ok {
		old.Flow.Close(context.Background())
	}
	m.sessions[key] = s

	logger.Info("session started", slog.String("name", id.DisplayName))
	return s, nil
}
