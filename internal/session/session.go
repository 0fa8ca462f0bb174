// Package session implements the in-memory conversation state store.
//
// It owns the mapping from user identifier to ConversationState and is the
// single serialization point per identifier: every read-modify-write of a
// session, whether from the inbound message path or from a background sweep,
// runs under that identifier's lock. Different identifiers may be processed
// concurrently with no ordering guarantee between them.
package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gymbrocolombia/gymbot/internal/models"
)

// Outcome tells the store what to do with the session after a locked
// mutation completes.
type Outcome int

const (
	// Keep retains the session.
	Keep Outcome = iota
	// Remove deletes the session from the store.
	Remove
)

type entry struct {
	mu    sync.Mutex
	state models.ConversationState
	// gone is set once the entry has been removed from the map so a waiter
	// that acquired a stale entry can retry against the map.
	gone bool
}

// Store is the conversation state store.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	clock    func() time.Time
}

// NewStore creates an empty conversation state store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*entry),
		clock:    time.Now,
	}
}

// NewStoreWithClock creates a store using the given clock, for tests that
// need deterministic inactivity ages.
func NewStoreWithClock(clock func() time.Time) *Store {
	s := NewStore()
	s.clock = clock
	return s
}

// Do runs fn with the session for phone held under its per-identifier lock,
// creating a default session on first contact. The created flag passed to fn
// reports whether this identifier was unseen. fn's outcome decides whether
// the session survives the call.
func (s *Store) Do(phone string, fn func(st *models.ConversationState, created bool) Outcome) {
	for {
		s.mu.Lock()
		e, ok := s.sessions[phone]
		created := false
		if !ok {
			e = &entry{state: models.ConversationState{
				Phone:        phone,
				PaymentFlow:  models.PaymentIdle,
				LastActivity: s.clock(),
			}}
			s.sessions[phone] = e
			created = true
			slog.Debug("session created", "phone", phone)
		}
		s.mu.Unlock()

		e.mu.Lock()
		if e.gone {
			// Entry was evicted between map lookup and lock acquisition.
			e.mu.Unlock()
			continue
		}
		outcome := fn(&e.state, created)
		if outcome == Remove {
			e.gone = true
			s.mu.Lock()
			delete(s.sessions, phone)
			s.mu.Unlock()
			slog.Debug("session removed", "phone", phone)
		}
		e.mu.Unlock()
		return
	}
}

// DoExisting is like Do but never creates a session. It reports whether a
// session existed for the identifier.
func (s *Store) DoExisting(phone string, fn func(st *models.ConversationState) Outcome) bool {
	for {
		s.mu.Lock()
		e, ok := s.sessions[phone]
		s.mu.Unlock()
		if !ok {
			return false
		}

		e.mu.Lock()
		if e.gone {
			e.mu.Unlock()
			continue
		}
		outcome := fn(&e.state)
		if outcome == Remove {
			e.gone = true
			s.mu.Lock()
			delete(s.sessions, phone)
			s.mu.Unlock()
			slog.Debug("session removed", "phone", phone)
		}
		e.mu.Unlock()
		return true
	}
}

// Get returns a copy of the session for phone, if present.
func (s *Store) Get(phone string) (models.ConversationState, bool) {
	s.mu.Lock()
	e, ok := s.sessions[phone]
	s.mu.Unlock()
	if !ok {
		return models.ConversationState{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gone {
		return models.ConversationState{}, false
	}
	return e.state, true
}

// Len returns the number of active sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Phones returns the identifiers of all active sessions. The snapshot is
// taken under the map lock; sessions may appear or vanish afterwards, which
// callers iterating with DoExisting tolerate.
func (s *Store) Phones() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	phones := make([]string, 0, len(s.sessions))
	for phone := range s.sessions {
		phones = append(phones, phone)
	}
	return phones
}

// Snapshot returns copies of all active sessions for dashboard reporting.
func (s *Store) Snapshot() []models.ConversationState {
	states := make([]models.ConversationState, 0, s.Len())
	for _, phone := range s.Phones() {
		if st, ok := s.Get(phone); ok {
			states = append(states, st)
		}
	}
	return states
}
