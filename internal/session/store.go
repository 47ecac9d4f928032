package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var ErrNotFound = errors.New("session not found")

// Turn is one utterance in a call transcript. History order is the order
// turns occurred; it is fed verbatim to the reply strategy.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is a snapshot of one call's conversation state. Mutation happens
// only through the Store; snapshots are safe to keep across calls.
type Session struct {
	ID             string    `json:"session_id"`
	Status         Status    `json:"status"`
	History        []Turn    `json:"history"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	EndedAt        time.Time `json:"ended_at,omitempty"`
}

type entry struct {
	mu   sync.Mutex
	sess Session
}

// Store is the registry of in-progress call sessions, keyed by the provider
// call SID. Lookup is guarded by the store mutex; each session carries its own
// lock so overlapping webhooks for different calls never block each other,
// while updates to one call are linearized.
type Store struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	idleTimeout time.Duration
	endedGrace  time.Duration
	onEvict     func(Session)
}

func NewStore(idleTimeout, endedGrace time.Duration) *Store {
	if idleTimeout <= 0 {
		idleTimeout = 5 * time.Minute
	}
	if endedGrace <= 0 {
		endedGrace = 30 * time.Second
	}
	return &Store{
		entries:     make(map[string]*entry),
		idleTimeout: idleTimeout,
		endedGrace:  endedGrace,
	}
}

func (s *Store) SetEvictHook(hook func(Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = hook
}

// CreateIfAbsent returns the session for id, creating it on first use.
// The seed turn is appended only on creation.
func (s *Store) CreateIfAbsent(id string, seed ...Turn) (Session, bool) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		now := time.Now().UTC()
		e = &entry{sess: Session{
			ID:             id,
			Status:         StatusActive,
			History:        append([]Turn(nil), seed...),
			StartedAt:      now,
			LastActivityAt: now,
		}}
		s.entries[id] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneSession(&e.sess), !ok
}

func (s *Store) Get(id string) (Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneSession(&e.sess), nil
}

// Update runs fn under the session's exclusive lock. fn receives the live
// session and may append turns or change status; the whole read-modify-write
// for one call is a single critical section, so a slow reply computation for
// one call never stalls another.
func (s *Store) Update(id string, fn func(sess *Session) error) (Session, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := fn(&e.sess); err != nil {
		return cloneSession(&e.sess), err
	}
	e.sess.LastActivityAt = time.Now().UTC()
	return cloneSession(&e.sess), nil
}

// AppendTurn appends one turn to the call's history.
func (s *Store) AppendTurn(id string, turn Turn) (Session, error) {
	return s.Update(id, func(sess *Session) error {
		sess.History = append(sess.History, turn)
		return nil
	})
}

// End marks the session ended. Ending twice is a no-op.
func (s *Store) End(id string) (Session, error) {
	return s.Update(id, func(sess *Session) error {
		if sess.Status != StatusEnded {
			sess.Status = StatusEnded
			sess.EndedAt = time.Now().UTC()
		}
		return nil
	})
}

func (s *Store) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, e := range s.entries {
		e.mu.Lock()
		if e.sess.Status == StatusActive {
			count++
		}
		e.mu.Unlock()
	}
	return count
}

// StartJanitor evicts sessions in the background: active sessions idle past
// the idle timeout are ended, and ended sessions are removed once the grace
// period elapses. Without it the registry grows for the process lifetime.
func (s *Store) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Store) sweep() {
	now := time.Now().UTC()

	// Snapshot under the store lock, then examine entries without it: a sweep
	// must never make an unrelated lookup wait behind one session's in-flight
	// reply computation.
	s.mu.RLock()
	snapshot := make(map[string]*entry, len(s.entries))
	for id, e := range s.entries {
		snapshot[id] = e
	}
	hook := s.onEvict
	s.mu.RUnlock()

	var evicted []Session
	var expired []string
	for id, e := range snapshot {
		// A session busy in Update is mid-turn, hence not idle; skip it and
		// let the next tick look again.
		if !e.mu.TryLock() {
			continue
		}
		switch e.sess.Status {
		case StatusActive:
			if now.Sub(e.sess.LastActivityAt) >= s.idleTimeout {
				e.sess.Status = StatusEnded
				e.sess.EndedAt = now
			}
		case StatusEnded:
			if now.Sub(e.sess.EndedAt) >= s.endedGrace {
				expired = append(expired, id)
				evicted = append(evicted, cloneSession(&e.sess))
			}
		}
		e.mu.Unlock()
	}

	if len(expired) > 0 {
		s.mu.Lock()
		for _, id := range expired {
			if s.entries[id] == snapshot[id] {
				delete(s.entries, id)
			}
		}
		s.mu.Unlock()
	}

	if hook != nil {
		for _, sess := range evicted {
			hook(sess)
		}
	}
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

func cloneSession(sess *Session) Session {
	c := *sess
	c.History = append([]Turn(nil), sess.History...)
	return c
}
