package session

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/visionfold/bakllava/internal/model/chat"
)

var ErrSessionNotFound = errors.New("session not found")

// Store owns the process-wide table of conversation sessions. All mutation
// goes through its methods, and reads hand out copies; only session ids
// cross component boundaries. A session is live while its idle time stays
// within the TTL; expired entries behave as missing even before a sweep
// physically removes them.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*chat.Session
	ttl         time.Duration
	imageRetain int

	// now is swappable so expiry is deterministic under test.
	now func() time.Time
}

// NewStore builds an empty store. imageRetain bounds how many of a
// session's most recent turns keep their raw image payloads; zero disables
// eviction.
func NewStore(ttl time.Duration, imageRetain int) *Store {
	return &Store{
		sessions:    make(map[string]*chat.Session),
		ttl:         ttl,
		imageRetain: imageRetain,
		now:         time.Now,
	}
}

// ResolveOrCreate returns id unchanged when it names a live session,
// refreshing its activity time. Any other input, including an empty or
// expired id, silently allocates a fresh session. This fallback is the
// documented policy: callers learn they got a new session only by the
// returned id differing from the requested one. Never fails.
func (s *Store) ResolveOrCreate(id string) string {
	s.SweepExpired()

	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if sess, ok := s.sessions[id]; ok && s.alive(sess, now) {
			sess.LastActiveAt = now
			return id
		}
	}

	fresh := &chat.Session{
		ID:           uuid.NewString(),
		Turns:        make([]chat.Turn, 0, 16),
		CreatedAt:    now,
		LastActiveAt: now,
	}
	s.sessions[fresh.ID] = fresh

	log.Printf("[session] created conversation session %s", fresh.ID)
	return fresh.ID
}

// Get returns a copy of the session, refreshing its activity time. An
// expired entry that has not been swept yet behaves exactly like a missing
// one: liveness, not mere existence, decides visibility.
func (s *Store) Get(id string) (chat.Session, error) {
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || !s.alive(sess, now) {
		return chat.Session{}, ErrSessionNotFound
	}

	sess.LastActiveAt = now
	return snapshot(sess), nil
}

// Append adds a turn to the session and refreshes its activity time.
// Callers normally resolve first, so an unknown id here means the session
// was deleted or expired in between; that surfaces as ErrSessionNotFound
// rather than being assumed away.
func (s *Store) Append(id string, turn chat.Turn) error {
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || !s.alive(sess, now) {
		return ErrSessionNotFound
	}

	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = now
	}
	if len(turn.Images) > 0 {
		turn.HadImages = true
	}

	sess.Turns = append(sess.Turns, turn)
	sess.LastActiveAt = now
	s.evictOldImages(sess)
	return nil
}

// Delete removes the session outright.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// SweepExpired removes every session whose idle time exceeded the TTL and
// reports how many were dropped. It runs before every ResolveOrCreate and
// on a background cadence.
func (s *Store) SweepExpired() int {
	now := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if !s.alive(sess, now) {
			delete(s.sessions, id)
			removed++
			log.Printf("[session] expired conversation session %s", id)
		}
	}
	return removed
}

// Count reports the number of stored sessions. This is an approximation
// for observability: entries past their TTL but not yet swept are still
// counted.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Store) alive(sess *chat.Session, now time.Time) bool {
	return now.Sub(sess.LastActiveAt) <= s.ttl
}

// evictOldImages drops raw image payloads from turns that have fallen out
// of the retention window. The HadImages marker survives, so rendered
// history keeps its image annotation. Caller holds the lock.
func (s *Store) evictOldImages(sess *chat.Session) {
	if s.imageRetain <= 0 {
		return
	}
	for i := 0; i < len(sess.Turns)-s.imageRetain; i++ {
		if len(sess.Turns[i].Images) > 0 {
			sess.Turns[i].Images = nil
		}
	}
}

// snapshot copies the session so callers cannot reach into the store's
// state. Image payload strings are shared but immutable.
func snapshot(sess *chat.Session) chat.Session {
	out := *sess
	out.Turns = make([]chat.Turn, len(sess.Turns))
	copy(out.Turns, sess.Turns)
	return out
}
