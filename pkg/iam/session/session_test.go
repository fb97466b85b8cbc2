package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/iam"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/session"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/session/sessioninfra"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

func newSession(userID kernel.UserID, now time.Time, ttl time.Duration) user.UserSession {
	return user.UserSession{
		ID:             kernel.GenerateSessionID(),
		UserID:         userID,
		Status:         user.SessionActive,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		LastActivityAt: now,
	}
}

func TestManagerLifecycle(t *testing.T) {
	ctx := context.Background()
	clock := kernel.NewFixedClock(time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
	mgr := session.NewManager(sessioninfra.NewMemorySessionStore(clock), clock, time.Second)

	s := newSession("u1", clock.Now(), time.Hour)
	require.NoError(t, mgr.Start(ctx, s))

	clock.Advance(10 * time.Minute)
	got, err := mgr.Validate(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), got.LastActivityAt)

	require.NoError(t, mgr.Revoke(ctx, "u1", s.ID))
	_, err = mgr.Validate(ctx, s.ID)
	assert.True(t, errx.IsCode(err, session.CodeSessionInvalid))
}

func TestManagerExpiredAndRevokedLookTheSame(t *testing.T) {
	ctx := context.Background()
	clock := kernel.NewFixedClock(time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
	mgr := session.NewManager(sessioninfra.NewMemorySessionStore(clock), clock, time.Second)

	expiring := newSession("u1", clock.Now(), time.Minute)
	revoked := newSession("u1", clock.Now(), time.Hour)
	require.NoError(t, mgr.Start(ctx, expiring))
	require.NoError(t, mgr.Start(ctx, revoked))
	require.NoError(t, mgr.Revoke(ctx, "u1", revoked.ID))

	clock.Advance(time.Minute)
	_, errExpired := mgr.Validate(ctx, expiring.ID)
	_, errRevoked := mgr.Validate(ctx, revoked.ID)
	_, errUnknown := mgr.Validate(ctx, "nope")

	for _, err := range []error{errExpired, errRevoked, errUnknown} {
		assert.True(t, errx.IsCode(err, session.CodeSessionInvalid))
	}
}

func TestManagerListActive(t *testing.T) {
	ctx := context.Background()
	clock := kernel.NewFixedClock(time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
	mgr := session.NewManager(sessioninfra.NewMemorySessionStore(clock), clock, time.Second)

	a := newSession("u1", clock.Now(), time.Hour)
	b := newSession("u1", clock.Now().Add(time.Second), 2*time.Hour)
	other := newSession("u2", clock.Now(), time.Hour)
	for _, s := range []user.UserSession{a, b, other} {
		require.NoError(t, mgr.Start(ctx, s))
	}

	active, err := mgr.ListActive(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, a.ID, active[0].ID)

	clock.Advance(90 * time.Minute)
	active, err = mgr.ListActive(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].ID)
}

func TestManagerSkipsInactiveSessions(t *testing.T) {
	ctx := context.Background()
	clock := kernel.NewFixedClock(time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
	mgr := session.NewManager(sessioninfra.NewMemorySessionStore(clock), clock, time.Second)

	s := newSession("u1", clock.Now(), time.Hour)
	s.Status = user.SessionRevoked
	require.NoError(t, mgr.Start(ctx, s))

	_, err := mgr.Validate(ctx, s.ID)
	assert.True(t, errx.IsCode(err, session.CodeSessionInvalid))
}

type downStore struct{ session.Store }

func (downStore) Get(context.Context, kernel.SessionID) (*user.UserSession, error) {
	return nil, errors.New("i/o timeout")
}

func TestManagerFailsClosed(t *testing.T) {
	clock := kernel.NewFixedClock(time.Now())
	mgr := session.NewManager(downStore{}, clock, time.Second)

	_, err := mgr.Validate(context.Background(), "s1")
	assert.True(t, errx.IsCode(err, iam.CodeStoreUnavailable))
}

// revokingStore deletes the session right after reading it, like a logout
// landing between the read and the activity write.
type revokingStore struct{ session.Store }

func (r revokingStore) Get(ctx context.Context, id kernel.SessionID) (*user.UserSession, error) {
	s, err := r.Store.Get(ctx, id)
	if err != nil || s == nil {
		return s, err
	}
	if err := r.Store.Delete(ctx, s.UserID, id); err != nil {
		return nil, err
	}
	return s, nil
}

func TestManagerValidateDoesNotResurrectRevokedSession(t *testing.T) {
	ctx := context.Background()
	clock := kernel.NewFixedClock(time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
	store := sessioninfra.NewMemorySessionStore(clock)
	mgr := session.NewManager(revokingStore{store}, clock, time.Second)

	s := newSession("u1", clock.Now(), time.Hour)
	require.NoError(t, mgr.Start(ctx, s))

	_, err := mgr.Validate(ctx, s.ID)
	require.Error(t, err)
	assert.True(t, errx.IsCode(err, session.CodeSessionInvalid))

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestManagerExtend(t *testing.T) {
	ctx := context.Background()
	clock := kernel.NewFixedClock(time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
	store := sessioninfra.NewMemorySessionStore(clock)
	mgr := session.NewManager(store, clock, time.Second)

	s := newSession("u1", clock.Now(), time.Hour)
	require.NoError(t, mgr.Start(ctx, s))

	clock.Advance(50 * time.Minute)
	s.ExpiresAt = clock.Now().Add(time.Hour)
	require.NoError(t, mgr.Extend(ctx, s))

	clock.Advance(30 * time.Minute)
	_, err := mgr.Validate(ctx, s.ID)
	require.NoError(t, err)

	// a revoked session is not brought back by a late extension
	require.NoError(t, mgr.Revoke(ctx, "u1", s.ID))
	err = mgr.Extend(ctx, s)
	assert.True(t, errx.IsCode(err, session.CodeSessionInvalid))
	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreUpdateKeepsExpiry(t *testing.T) {
	ctx := context.Background()
	clock := kernel.NewFixedClock(time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC))
	store := sessioninfra.NewMemorySessionStore(clock)

	s := newSession("u1", clock.Now(), time.Hour)
	ok, err := store.Update(ctx, s, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(ctx, s, time.Hour))
	clock.Advance(30 * time.Minute)
	s.LastActivityAt = clock.Now()
	ok, err = store.Update(ctx, s, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(30 * time.Minute)
	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
