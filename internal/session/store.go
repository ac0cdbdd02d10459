// Package session keeps ephemeral chat sessions in memory: a bounded message
// history per client-supplied session id, evicted after an idle TTL.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"chatdesk/internal/clock"
	"chatdesk/internal/domain"
)

const (
	DefaultTTL         = 30 * time.Minute
	DefaultMaxMessages = 12
)

var (
	ErrSessionNotFound = errors.New("session: not found")
	ErrTenantMismatch  = errors.New("session: belongs to another tenant")
	ErrInvalidID       = errors.New("session: id must not be empty")
)

type Options struct {
	TTL         time.Duration
	MaxMessages int
	Clock       clock.Clock
}

type entry struct {
	// exchange serializes orchestrator exchanges on one session.
	exchange sync.Mutex

	// Fields below are guarded by Store.mu.
	tenantID   string
	messages   []domain.ChatMessage
	createdAt  time.Time
	lastActive time.Time
	leases     int
}

// Store maps session ids to bounded histories. All map and history mutation
// happens under a single mutex and never suspends.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry

	ttl   time.Duration
	max   int
	clock clock.Clock
}

// New returns an empty store. Zero options fall back to the defaults.
func New(opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultMaxMessages
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	return &Store{
		sessions: make(map[string]*entry),
		ttl:      opts.TTL,
		max:      opts.MaxMessages,
		clock:    opts.Clock,
	}
}

// MaxMessages is the history cap applied after every append.
func (s *Store) MaxMessages() int { return s.max }

// GetOrCreate returns a snapshot of the session, allocating an empty one on
// first use. Every call refreshes lastActiveAt.
func (s *Store) GetOrCreate(sessionID, tenantID string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.getOrCreateLocked(sessionID, tenantID)
	if err != nil {
		return domain.Session{}, err
	}
	return snapshot(sessionID, e), nil
}

// Get returns a snapshot without touching the session.
func (s *Store) Get(sessionID string) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, false
	}
	return snapshot(sessionID, e), true
}

// Append adds msgs to an existing session and applies pair eviction.
func (s *Store) Append(sessionID string, msgs ...domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.appendLocked(e, msgs)
	return nil
}

// SweepExpired removes every session idle for longer than the TTL as of now.
// Sessions with an exchange in flight are kept. It returns the number removed.
func (s *Store) SweepExpired(now time.Time) int {
	cutoff := now.Add(-s.ttl)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.sessions {
		if e.leases > 0 || !e.lastActive.Before(cutoff) {
			continue
		}
		delete(s.sessions, id)
		removed++
	}
	return removed
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close drops every session.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*entry)
}

// Lease is exclusive access to one session for the duration of an exchange.
// A leased session is never swept.
type Lease struct {
	store *Store
	id    string
	e     *entry
	once  sync.Once
}

// Acquire gets or creates the session and blocks until no other exchange
// holds it. Callers must Release the lease.
func (s *Store) Acquire(sessionID, tenantID string) (*Lease, error) {
	s.mu.Lock()
	e, err := s.getOrCreateLocked(sessionID, tenantID)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	e.leases++
	s.mu.Unlock()

	e.exchange.Lock()
	return &Lease{store: s, id: sessionID, e: e}, nil
}

// History returns a copy of the stored messages.
func (l *Lease) History() []domain.ChatMessage {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	return append([]domain.ChatMessage(nil), l.e.messages...)
}

// Append adds msgs and applies pair eviction.
func (l *Lease) Append(msgs ...domain.ChatMessage) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	l.store.appendLocked(l.e, msgs)
}

// Release ends the exchange. It is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.store.mu.Lock()
		l.e.leases--
		l.e.lastActive = l.store.clock.Now()
		l.store.mu.Unlock()
		l.e.exchange.Unlock()
	})
}

func (s *Store) getOrCreateLocked(sessionID, tenantID string) (*entry, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidID
	}
	now := s.clock.Now()
	e, ok := s.sessions[sessionID]
	if !ok {
		e = &entry{tenantID: tenantID, createdAt: now}
		s.sessions[sessionID] = e
	} else if e.tenantID != tenantID {
		return nil, ErrTenantMismatch
	}
	e.lastActive = now
	return e, nil
}

func (s *Store) appendLocked(e *entry, msgs []domain.ChatMessage) {
	e.messages = append(e.messages, msgs...)
	if drop := evictCount(len(e.messages), s.max); drop > 0 {
		e.messages = append([]domain.ChatMessage(nil), e.messages[drop:]...)
	}
	e.lastActive = s.clock.Now()
}

// evictCount returns how many leading messages to drop so that n fits under
// max, removing whole user/assistant pairs oldest first.
func evictCount(n, max int) int {
	drop := 0
	for n-drop > max {
		step := 2
		if n-drop < step {
			step = n - drop
		}
		drop += step
	}
	return drop
}

func snapshot(id string, e *entry) domain.Session {
	return domain.Session{
		ID:           id,
		TenantID:     e.tenantID,
		Messages:     append([]domain.ChatMessage(nil), e.messages...),
		CreatedAt:    e.createdAt,
		LastActiveAt: e.lastActive,
	}
}
