package authinfra

import (
	"context"
	"sync"
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/iam/auth"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

type refreshRecord struct {
	userID kernel.UserID
	until  time.Time
}

// MemoryRevocationStore is an in-process RevocationStore. Expired records are
// treated as absent and dropped lazily.
type MemoryRevocationStore struct {
	mu        sync.Mutex
	clock     kernel.Clock
	blacklist map[string]time.Time
	refresh   map[string]refreshRecord
}

func NewMemoryRevocationStore(clock kernel.Clock) *MemoryRevocationStore {
	return &MemoryRevocationStore{
		clock:     clock,
		blacklist: make(map[string]time.Time),
		refresh:   make(map[string]refreshRecord),
	}
}

var _ auth.RevocationStore = (*MemoryRevocationStore)(nil)

func (s *MemoryRevocationStore) Blacklist(ctx context.Context, jti string, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blacklist[jti] = until
	return nil
}

func (s *MemoryRevocationStore) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	until, ok := s.blacklist[jti]
	if !ok {
		return false, nil
	}
	if !s.clock.Now().Before(until) {
		delete(s.blacklist, jti)
		return false, nil
	}
	return true, nil
}

func (s *MemoryRevocationStore) StoreRefresh(ctx context.Context, tokenHash string, userID kernel.UserID, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[tokenHash] = refreshRecord{userID: userID, until: until}
	return nil
}

func (s *MemoryRevocationStore) ConsumeRefresh(ctx context.Context, tokenHash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refresh[tokenHash]
	if !ok {
		return false, nil
	}
	delete(s.refresh, tokenHash)
	return s.clock.Now().Before(rec.until), nil
}

func (s *MemoryRevocationStore) RevokeAllRefresh(ctx context.Context, userID kernel.UserID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, rec := range s.refresh {
		if rec.userID == userID {
			delete(s.refresh, hash)
		}
	}
	return nil
}
