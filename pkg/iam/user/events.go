package user

import (
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/eventx"
)

const AggregateType = "User"

const (
	EventUserCreated           = "UserCreated"
	EventUserPasswordChanged   = "UserPasswordChanged"
	EventUserRoleAdded         = "UserRoleAdded"
	EventUserRoleRemoved       = "UserRoleRemoved"
	EventUserLoggedIn          = "UserLoggedIn"
	EventUserSessionsRevoked   = "UserSessionsRevoked"
	EventAPIKeyCreated         = "APIKeyCreated"
	EventAPIKeyRevoked         = "APIKeyRevoked"
	EventUserEmailVerified     = "UserEmailVerified"
	EventUserTwoFactorEnabled  = "UserTwoFactorEnabled"
	EventUserTwoFactorDisabled = "UserTwoFactorDisabled"
	EventUserLocked            = "UserLocked"
	EventUserDeactivated       = "UserDeactivated"
)

func (u *User) record(eventType string, now time.Time, data map[string]any) {
	u.events = append(u.events, eventx.New(eventType, AggregateType, u.id.String(), u.version, now, data))
}

// PullEvents returns the events raised since the last call and clears them.
func (u *User) PullEvents() []eventx.Event {
	out := u.events
	u.events = nil
	return out
}
