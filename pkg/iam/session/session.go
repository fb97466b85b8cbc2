package session

import (
	"context"
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/iam"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

var ErrRegistry = errx.NewRegistry("SESSION")

// Expired, revoked and unknown sessions are indistinguishable to callers.
var CodeSessionInvalid = ErrRegistry.Register("INVALID", errx.TypeAuthentication, "Session is not active")

func ErrSessionInvalid() *errx.Error { return ErrRegistry.New(CodeSessionInvalid) }

// Store is the TTL store holding live sessions. Get returns (nil, nil) for
// a missing session. Update only overwrites a session that is still stored
// and reports whether it was; a non-positive ttl keeps the current expiry.
type Store interface {
	Put(ctx context.Context, s user.UserSession, ttl time.Duration) error
	Get(ctx context.Context, id kernel.SessionID) (*user.UserSession, error)
	Update(ctx context.Context, s user.UserSession, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, userID kernel.UserID, ids ...kernel.SessionID) error
	ListForUser(ctx context.Context, userID kernel.UserID) ([]user.UserSession, error)
}

// Manager mirrors the sessions owned by user aggregates into the fast store.
// The aggregate decides; the manager only records. Store failures surface as
// iam.CodeStoreUnavailable and never validate a session.
type Manager struct {
	store   Store
	clock   kernel.Clock
	timeout time.Duration
}

func NewManager(store Store, clock kernel.Clock, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Manager{store: store, clock: clock, timeout: timeout}
}

// Start records a session the aggregate just created.
func (m *Manager) Start(ctx context.Context, s user.UserSession) error {
	ttl := s.ExpiresAt.Sub(m.clock.Now())
	if ttl <= 0 || !s.IsActive(m.clock.Now()) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.store.Put(ctx, s, ttl); err != nil {
		return iam.ErrStoreUnavailable(err)
	}
	return nil
}

// Extend records a new expiry for a session that is still in the store. A
// session revoked in the meantime stays revoked.
func (m *Manager) Extend(ctx context.Context, s user.UserSession) error {
	now := m.clock.Now()
	ttl := s.ExpiresAt.Sub(now)
	if ttl <= 0 || !s.IsActive(now) {
		return ErrSessionInvalid()
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	ok, err := m.store.Update(ctx, s, ttl)
	if err != nil {
		return iam.ErrStoreUnavailable(err)
	}
	if !ok {
		return ErrSessionInvalid()
	}
	return nil
}

// Validate returns the session when it is live and records activity. The
// activity write never recreates a session deleted after the read.
func (m *Manager) Validate(ctx context.Context, id kernel.SessionID) (*user.UserSession, error) {
	if id.IsEmpty() {
		return nil, ErrSessionInvalid()
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, iam.ErrStoreUnavailable(err)
	}
	now := m.clock.Now()
	if s == nil || !s.IsActive(now) {
		return nil, ErrSessionInvalid()
	}

	s.LastActivityAt = now
	ok, err := m.store.Update(ctx, *s, 0)
	if err != nil {
		return nil, iam.ErrStoreUnavailable(err)
	}
	if !ok {
		return nil, ErrSessionInvalid()
	}
	return s, nil
}

// Revoke removes sessions of userID. Unknown ids are ignored.
func (m *Manager) Revoke(ctx context.Context, userID kernel.UserID, ids ...kernel.SessionID) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := m.store.Delete(ctx, userID, ids...); err != nil {
		return iam.ErrStoreUnavailable(err)
	}
	return nil
}

// ListActive returns the live sessions of userID as the fast store sees them.
func (m *Manager) ListActive(ctx context.Context, userID kernel.UserID) ([]user.UserSession, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	all, err := m.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, iam.ErrStoreUnavailable(err)
	}
	now := m.clock.Now()
	active := all[:0]
	for _, s := range all {
		if s.IsActive(now) {
			active = append(active, s)
		}
	}
	return active, nil
}
