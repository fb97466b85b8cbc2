package sessioninfra

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/iam/session"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

type memoryEntry struct {
	session user.UserSession
	expires time.Time
}

// MemorySessionStore is an in-process session.Store honouring TTLs against
// the injected clock.
type MemorySessionStore struct {
	mu      sync.Mutex
	clock   kernel.Clock
	entries map[kernel.SessionID]memoryEntry
}

func NewMemorySessionStore(clock kernel.Clock) *MemorySessionStore {
	return &MemorySessionStore{clock: clock, entries: make(map[kernel.SessionID]memoryEntry)}
}

var _ session.Store = (*MemorySessionStore)(nil)

func (s *MemorySessionStore) Put(ctx context.Context, sess user.UserSession, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sess.ID] = memoryEntry{session: sess, expires: s.clock.Now().Add(ttl)}
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, id kernel.SessionID) (*user.UserSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	if !s.clock.Now().Before(e.expires) {
		delete(s.entries, id)
		return nil, nil
	}
	sess := e.session
	return &sess, nil
}

func (s *MemorySessionStore) Update(ctx context.Context, sess user.UserSession, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[sess.ID]
	now := s.clock.Now()
	if !ok || !now.Before(e.expires) {
		return false, nil
	}
	e.session = sess
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	s.entries[sess.ID] = e
	return true, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, _ kernel.UserID, ids ...kernel.SessionID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.entries, id)
	}
	return nil
}

func (s *MemorySessionStore) ListForUser(ctx context.Context, userID kernel.UserID) ([]user.UserSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	var out []user.UserSession
	for id, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, id)
			continue
		}
		if e.session.UserID == userID {
			out = append(out, e.session)
		}
	}
	slices.SortFunc(out, func(a, b user.UserSession) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}
