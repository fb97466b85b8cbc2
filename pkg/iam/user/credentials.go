package user

import (
	"crypto/subtle"
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/iam/otp"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/password"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

// VerifyPassword never fails; users without a stored hash never verify.
func (u *User) VerifyPassword(pw *password.Service, candidate string) bool {
	return pw.Verify(candidate, u.passwordHash)
}

// IsLocked reports whether a lockout is in force at now.
func (u *User) IsLocked(now time.Time) bool {
	return u.lockedUntil != nil && now.Before(*u.lockedUntil)
}

// RecordFailedLogin counts a failed attempt. Reaching threshold locks the
// account for lockFor and suspends it; the return value reports whether this
// call applied the lock.
func (u *User) RecordFailedLogin(threshold int, lockFor time.Duration, now time.Time) bool {
	u.failedLoginAttempts++
	locked := false
	if u.failedLoginAttempts >= threshold && !u.IsLocked(now) {
		until := now.Add(lockFor)
		u.lockedUntil = &until
		u.status = StatusSuspended
		locked = true
	}
	u.touch(now)
	if locked {
		u.record(EventUserLocked, now, map[string]any{
			"locked_until": formatTime(u.lockedUntil),
			"attempts":     u.failedLoginAttempts,
		})
	}
	return locked
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// ReleaseExpiredLock returns a user suspended by lockout to Active once the
// lock has elapsed, resetting the counter. Administrative suspensions carry
// no lock time and are left alone.
func (u *User) ReleaseExpiredLock(now time.Time) bool {
	if u.lockedUntil == nil || u.IsLocked(now) {
		return false
	}
	u.lockedUntil = nil
	u.failedLoginAttempts = 0
	if u.status == StatusSuspended {
		u.status = StatusActive
	}
	u.touch(now)
	return true
}

// Unlock is the administrative release of a lockout.
func (u *User) Unlock(now time.Time) {
	u.lockedUntil = nil
	u.failedLoginAttempts = 0
	if u.status == StatusSuspended {
		u.status = StatusActive
	}
	u.touch(now)
}

// ChangePassword replaces the credential after policy approval and clears
// lock state.
func (u *User) ChangePassword(pw *password.Service, newSecret string, actor kernel.UserID, now time.Time) error {
	if !u.provider.UsesPassword() {
		return ErrNoPassword()
	}
	hash, err := pw.HashNew(newSecret)
	if err != nil {
		return err
	}

	u.passwordHash = hash
	u.passwordChangedAt = &now
	u.failedLoginAttempts = 0
	if u.lockedUntil != nil && u.status == StatusSuspended {
		u.status = StatusActive
	}
	u.lockedUntil = nil
	if u.status == StatusPasswordResetRequired {
		u.status = StatusActive
	}
	u.touch(now)
	u.record(EventUserPasswordChanged, now, map[string]any{"changed_by": actor.String()})
	return nil
}

// RequirePasswordReset forces the user to change password on next login.
func (u *User) RequirePasswordReset(now time.Time) {
	if u.status != StatusActive {
		return
	}
	u.status = StatusPasswordResetRequired
	u.touch(now)
}

// VerifyEmail marks the email verified and activates a pending account.
func (u *User) VerifyEmail(now time.Time) {
	if u.emailVerified && u.status != StatusPendingVerification {
		return
	}
	u.emailVerified = true
	if u.status == StatusPendingVerification {
		u.status = StatusActive
	}
	u.touch(now)
	u.record(EventUserEmailVerified, now, nil)
}

// Deactivate moves the user to the terminal Inactive state and revokes every
// session. The revoked session ids are returned for the session store.
func (u *User) Deactivate(now time.Time) []kernel.SessionID {
	if u.status == StatusInactive {
		return nil
	}
	revoked := u.RevokeAllSessions(now)
	for _, k := range u.apiKeys {
		k.Revoke(now)
	}
	u.status = StatusInactive
	u.touch(now)
	u.record(EventUserDeactivated, now, nil)
	return revoked
}

// ============================================================================
// Two-factor
// ============================================================================

// BeginTwoFactorSetup stores a secret awaiting proof of possession.
func (u *User) BeginTwoFactorSetup(secret string, now time.Time) error {
	if u.twoFactorEnabled {
		return otp.ErrAlreadyEnabled()
	}
	u.pendingTwoFactorSecret = secret
	u.touch(now)
	return nil
}

// EnableTwoFactor turns on 2FA with secret and the hashes of fresh backup
// codes. Callers must have verified a current code for secret.
func (u *User) EnableTwoFactor(secret string, backupCodeHashes []string, now time.Time) error {
	if u.twoFactorEnabled {
		return otp.ErrAlreadyEnabled()
	}
	u.twoFactorEnabled = true
	u.twoFactorSecret = secret
	u.pendingTwoFactorSecret = ""
	u.backupCodeHashes = append([]string(nil), backupCodeHashes...)
	u.touch(now)
	u.record(EventUserTwoFactorEnabled, now, nil)
	return nil
}

func (u *User) DisableTwoFactor(now time.Time) error {
	if !u.twoFactorEnabled {
		return otp.ErrNotEnabled()
	}
	u.twoFactorEnabled = false
	u.twoFactorSecret = ""
	u.pendingTwoFactorSecret = ""
	u.backupCodeHashes = nil
	u.touch(now)
	u.record(EventUserTwoFactorDisabled, now, nil)
	return nil
}

// AcceptTOTPStep records the time step of a verified code. A step at or
// before the last accepted one is refused, so a code cannot be replayed
// within its validity window.
func (u *User) AcceptTOTPStep(step int64, now time.Time) bool {
	if step <= u.lastTOTPStep {
		return false
	}
	u.lastTOTPStep = step
	u.touch(now)
	return true
}

// ConsumeBackupCode removes the matching backup code and reports whether one
// matched. A consumed code never matches again.
func (u *User) ConsumeBackupCode(code string, now time.Time) bool {
	if !u.twoFactorEnabled || code == "" {
		return false
	}
	hash := otp.HashBackupCode(code)
	for i, h := range u.backupCodeHashes {
		if subtle.ConstantTimeCompare([]byte(h), []byte(hash)) == 1 {
			u.backupCodeHashes = append(u.backupCodeHashes[:i:i], u.backupCodeHashes[i+1:]...)
			u.touch(now)
			return true
		}
	}
	return false
}
