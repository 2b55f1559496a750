// Package session owns the lifecycle of the widget's chat session: resolving
// a persisted one at startup, recovering from server-side expiry and
// clearing on request.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-go-golems/support-widget/pkg/chatapi"
	"github.com/go-go-golems/support-widget/pkg/persistence/identity"
	"github.com/go-go-golems/support-widget/pkg/transcript"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoSession = errors.New("session: no active session")
	// ErrSessionReused is returned when the server hands back an id that was
	// already invalidated in this process.
	ErrSessionReused = errors.New("session: server returned an invalidated session id")
)

// API is the subset of the chat server the manager talks to.
type API interface {
	StartSession(ctx context.Context, clientID string) (string, error)
	ChatHistory(ctx context.Context, sessionID string) ([]chatapi.HistoryMessage, error)
	ClearSession(ctx context.Context, sessionID string) error
}

var _ API = &chatapi.Client{}

type Session struct {
	ID        string
	ClientID  string
	CreatedAt time.Time
}

type Option func(*Manager)

func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

type Manager struct {
	api      API
	store    identity.Store
	messages *transcript.Store
	newID    func() string
	now      func() time.Time

	mu          sync.RWMutex
	current     *Session
	invalidated map[string]struct{}
}

func NewManager(api API, store identity.Store, messages *transcript.Store, opts ...Option) *Manager {
	m := &Manager{
		api:         api,
		store:       store,
		messages:    messages,
		newID:       uuid.NewString,
		now:         time.Now,
		invalidated: map[string]struct{}{},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Current returns a copy of the active session, or nil.
func (m *Manager) Current() *Session {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	cp := *m.current
	return &cp
}

func (m *Manager) Ready() bool {
	return m.Current() != nil
}

// Resolve reuses the persisted session when the server still knows it,
// hydrating its history, and creates a new one otherwise.
func (m *Manager) Resolve(ctx context.Context) (*Session, error) {
	clientID, err := m.ensureClientID(ctx)
	if err != nil {
		return nil, err
	}

	storedID, ok, err := m.store.Get(ctx, identity.KeySessionID)
	if err != nil {
		return nil, errors.Wrap(err, "session: read stored session id")
	}
	if ok && storedID != "" && !m.isInvalidated(storedID) {
		history, err := m.api.ChatHistory(ctx, storedID)
		switch {
		case err == nil:
			m.messages.Hydrate(toMessages(history))
			s := &Session{ID: storedID, ClientID: clientID, CreatedAt: m.now()}
			m.setCurrent(s)
			log.Info().
				Str("session_id", storedID).
				Int("messages", len(history)).
				Msg("resumed stored session")
			return s, nil
		case rejectsSession(err):
			log.Info().Err(err).Str("session_id", storedID).Msg("stored session rejected, starting a new one")
			if err := m.discard(ctx, storedID); err != nil {
				return nil, err
			}
		default:
			return nil, errors.Wrap(err, "session: validate stored session")
		}
	}

	return m.create(ctx, clientID)
}

// Recover replaces a session the server no longer accepts. The old id is
// never reused.
func (m *Manager) Recover(ctx context.Context, reason error) (*Session, error) {
	m.mu.Lock()
	old := m.current
	m.current = nil
	m.mu.Unlock()

	oldID := ""
	clientID := ""
	if old != nil {
		oldID = old.ID
		clientID = old.ClientID
	} else if storedID, ok, err := m.store.Get(ctx, identity.KeySessionID); err == nil && ok {
		oldID = storedID
	}
	log.Warn().Err(reason).Str("session_id", oldID).Msg("recovering session")

	m.messages.Reset()
	if err := m.discard(ctx, oldID); err != nil {
		return nil, err
	}
	if clientID == "" {
		id, err := m.ensureClientID(ctx)
		if err != nil {
			return nil, err
		}
		clientID = id
	}
	return m.create(ctx, clientID)
}

// Clear asks the server to drop the session, then starts over under a fresh
// client identity. A server failure leaves everything as it was.
func (m *Manager) Clear(ctx context.Context) (*Session, error) {
	old := m.Current()
	if old == nil {
		return nil, ErrNoSession
	}
	if err := m.api.ClearSession(ctx, old.ID); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	m.messages.Reset()
	if err := m.discard(ctx, old.ID); err != nil {
		return nil, err
	}

	clientID := m.newID()
	for clientID == old.ClientID {
		clientID = m.newID()
	}
	if err := m.store.Set(ctx, identity.KeyClientID, clientID); err != nil {
		return nil, errors.Wrap(err, "session: persist client id")
	}
	log.Info().Str("old_client_id", old.ClientID).Str("client_id", clientID).Msg("client identity rotated")

	return m.create(ctx, clientID)
}

func (m *Manager) ensureClientID(ctx context.Context) (string, error) {
	id, ok, err := m.store.Get(ctx, identity.KeyClientID)
	if err != nil {
		return "", errors.Wrap(err, "session: read client id")
	}
	if ok && id != "" {
		return id, nil
	}
	id = m.newID()
	if err := m.store.Set(ctx, identity.KeyClientID, id); err != nil {
		return "", errors.Wrap(err, "session: persist client id")
	}
	log.Info().Str("client_id", id).Msg("generated client identity")
	return id, nil
}

func (m *Manager) create(ctx context.Context, clientID string) (*Session, error) {
	id, err := m.api.StartSession(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if m.isInvalidated(id) {
		return nil, errors.Wrapf(ErrSessionReused, "session id %s", id)
	}
	if err := m.store.Set(ctx, identity.KeySessionID, id); err != nil {
		return nil, errors.Wrap(err, "session: persist session id")
	}
	m.messages.Reset()
	s := &Session{ID: id, ClientID: clientID, CreatedAt: m.now()}
	m.setCurrent(s)
	log.Info().Str("session_id", id).Str("client_id", clientID).Msg("session started")
	return s, nil
}

func (m *Manager) discard(ctx context.Context, id string) error {
	if id != "" {
		m.mu.Lock()
		m.invalidated[id] = struct{}{}
		m.mu.Unlock()
	}
	if err := m.store.Delete(ctx, identity.KeySessionID); err != nil {
		return errors.Wrap(err, "session: delete stored session id")
	}
	return nil
}

func (m *Manager) setCurrent(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.current = &cp
}

func (m *Manager) isInvalidated(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.invalidated[id]
	return ok
}

func rejectsSession(err error) bool {
	if chatapi.IsSessionInvalid(err) {
		return true
	}
	apiErr, ok := chatapi.AsAPIError(err)
	return ok && apiErr.StatusCode == http.StatusNotFound
}

func toMessages(history []chatapi.HistoryMessage) []transcript.Message {
	out := make([]transcript.Message, 0, len(history))
	for _, h := range history {
		out = append(out, transcript.Message{Role: transcript.NormalizeRole(h.Role), Content: h.Content})
	}
	return out
}
