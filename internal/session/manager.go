// Package session owns the session table and turn admission. The
// manager is the only component that creates, looks up or removes
// sessions; the orchestrator borrows a session for one turn at a time.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/voxrelay/voxrelay/internal/history"
	"github.com/voxrelay/voxrelay/internal/persona"
)

var (
	// ErrSessionBusy rejects a second concurrent turn on one session.
	ErrSessionBusy = errors.New("session already has a turn in flight")
	// ErrUnknownSession is returned when admitting a turn for an id
	// that was never created or has been closed.
	ErrUnknownSession = errors.New("unknown session")
)

// Session binds a session id to its persona and conversation history.
type Session struct {
	ID        string
	Persona   persona.Persona
	History   *history.History
	CreatedAt time.Time
}

type entry struct {
	session    *Session
	busy       bool
	cancelTurn context.CancelFunc
}

// Manager is the sole owner and mutator of the session map.
type Manager struct {
	mu         sync.Mutex
	sessions   map[string]*entry
	maxHistory int
	logger     *slog.Logger
}

func NewManager(maxHistory int, logger *slog.Logger) *Manager {
	return &Manager{
		sessions:   make(map[string]*entry),
		maxHistory: maxHistory,
		logger:     logger.With(slog.String("component", "session-manager")),
	}
}

// GetOrCreate returns the session for id, creating it bound to p when
// absent. For an existing session the persona argument is ignored: the
// binding happens once, on first creation.
func (m *Manager) GetOrCreate(id string, p persona.Persona) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.sessions[id]; ok {
		return e.session
	}
	s := &Session{
		ID:        id,
		Persona:   p,
		History:   history.New(p.SystemPrompt, m.maxHistory),
		CreatedAt: time.Now().UTC(),
	}
	m.sessions[id] = &entry{session: s}
	m.logger.Info("session created", slog.String("session_id", id), slog.String("persona", p.ID))
	return s
}

// Get looks up an existing session.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	return e.session, true
}

// Permit grants its holder the right to run one turn. Release is safe
// to call any number of times and on every exit path.
type Permit struct {
	manager *Manager
	id      string
	session *Session
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

// Session returns the borrowed session.
func (p *Permit) Session() *Session { return p.session }

// Context is the turn's context; it is cancelled by session Close.
func (p *Permit) Context() context.Context { return p.ctx }

// Release returns the session to the idle state exactly once.
func (p *Permit) Release() {
	p.once.Do(func() {
		p.cancel()
		m := p.manager
		m.mu.Lock()
		if e, ok := m.sessions[p.id]; ok {
			e.busy = false
			e.cancelTurn = nil
		}
		m.mu.Unlock()
	})
}

// AdmitTurn grants the single in-flight turn for a session. The turn's
// context is derived from parent and additionally cancelled when the
// session is closed.
func (m *Manager) AdmitTurn(parent context.Context, id string) (*Permit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	if e.busy {
		return nil, ErrSessionBusy
	}
	ctx, cancel := context.WithCancel(parent)
	e.busy = true
	e.cancelTurn = cancel
	return &Permit{manager: m, id: id, session: e.session, ctx: ctx, cancel: cancel}, nil
}

// Close cancels any in-flight turn and removes the session. Safe to
// call for ids that were never created.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	e, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if e.cancelTurn != nil {
		e.cancelTurn()
	}
	m.logger.Info("session closed", slog.String("session_id", id))
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
