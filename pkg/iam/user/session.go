package user

import (
	"slices"
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionExpired SessionStatus = "expired"
	SessionRevoked SessionStatus = "revoked"
)

// ClientMetadata describes where a session was opened from.
type ClientMetadata struct {
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Device    string `json:"device,omitempty"`
}

// UserSession is a capability to mint access tokens for its user.
type UserSession struct {
	ID             kernel.SessionID `json:"session_id"`
	UserID         kernel.UserID    `json:"user_id"`
	Status         SessionStatus    `json:"status"`
	CreatedAt      time.Time        `json:"created_at"`
	ExpiresAt      time.Time        `json:"expires_at"`
	LastActivityAt time.Time        `json:"last_activity_at"`
	Client         ClientMetadata   `json:"client"`
}

func (s UserSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// IsActive reports whether the session can still mint tokens.
func (s UserSession) IsActive(now time.Time) bool {
	return s.Status == SessionActive && !s.IsExpired(now)
}

// EffectiveStatus folds TTL expiry into Status.
func (s UserSession) EffectiveStatus(now time.Time) SessionStatus {
	if s.Status == SessionActive && s.IsExpired(now) {
		return SessionExpired
	}
	return s.Status
}

// CreateSession opens a session for ttl and records the login. Sessions that
// are already expired or revoked are dropped from the aggregate.
func (u *User) CreateSession(ttl time.Duration, client ClientMetadata, now time.Time) UserSession {
	for id, s := range u.sessions {
		if !s.IsActive(now) {
			delete(u.sessions, id)
		}
	}

	s := &UserSession{
		ID:             kernel.GenerateSessionID(),
		UserID:         u.id,
		Status:         SessionActive,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		LastActivityAt: now,
		Client:         client,
	}
	u.sessions[s.ID] = s
	u.lastLoginAt = &now
	u.failedLoginAttempts = 0
	u.lockedUntil = nil
	u.touch(now)
	u.record(EventUserLoggedIn, now, map[string]any{
		"session_id": s.ID.String(),
		"ip_address": client.IPAddress,
	})
	return *s
}

// Session returns a copy of the session with id.
func (u *User) Session(id kernel.SessionID) (UserSession, bool) {
	s, ok := u.sessions[id]
	if !ok {
		return UserSession{}, false
	}
	return *s, true
}

// ExtendSession pushes an active session's expiry to now+ttl.
func (u *User) ExtendSession(id kernel.SessionID, ttl time.Duration, now time.Time) (UserSession, error) {
	s, ok := u.sessions[id]
	if !ok || !s.IsActive(now) {
		return UserSession{}, ErrSessionNotFound()
	}
	s.ExpiresAt = now.Add(ttl)
	s.LastActivityAt = now
	u.touch(now)
	return *s, nil
}

// RevokeSession revokes one session. It reports whether anything changed.
func (u *User) RevokeSession(id kernel.SessionID, now time.Time) bool {
	s, ok := u.sessions[id]
	if !ok || s.Status != SessionActive {
		return false
	}
	s.Status = SessionRevoked
	u.touch(now)
	return true
}

// RevokeAllSessions revokes every active session and returns their ids.
func (u *User) RevokeAllSessions(now time.Time) []kernel.SessionID {
	return u.revokeSessionsExcept("", now)
}

// RevokeOtherSessions revokes every active session except keep.
func (u *User) RevokeOtherSessions(keep kernel.SessionID, now time.Time) []kernel.SessionID {
	return u.revokeSessionsExcept(keep, now)
}

func (u *User) revokeSessionsExcept(keep kernel.SessionID, now time.Time) []kernel.SessionID {
	var revoked []kernel.SessionID
	for id, s := range u.sessions {
		if id == keep || s.Status != SessionActive {
			continue
		}
		s.Status = SessionRevoked
		revoked = append(revoked, id)
	}
	if len(revoked) == 0 {
		return nil
	}
	slices.Sort(revoked)

	u.touch(now)
	u.record(EventUserSessionsRevoked, now, map[string]any{
		"count":        len(revoked),
		"kept_session": keep.String(),
	})
	return revoked
}

// ActiveSessions lists sessions that can still mint tokens, oldest first.
func (u *User) ActiveSessions(now time.Time) []UserSession {
	var out []UserSession
	for _, s := range u.sessions {
		if s.IsActive(now) {
			out = append(out, *s)
		}
	}
	slices.SortFunc(out, func(a, b UserSession) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}
