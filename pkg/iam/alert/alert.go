// Package alert emails users when something security relevant happens to
// their account. Domain events are turned into background jobs so a slow
// mail provider never holds up a login or password change.
package alert

import (
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/iam/user"
)

const (
	JobType = "iam.security_alert"
	Queue   = "security-alerts"
)

type Kind string

const (
	KindPasswordChanged   Kind = "password_changed"
	KindAccountLocked     Kind = "account_locked"
	KindTwoFactorEnabled  Kind = "two_factor_enabled"
	KindTwoFactorDisabled Kind = "two_factor_disabled"
	KindAPIKeyCreated     Kind = "api_key_created"
)

var kindByEvent = map[string]Kind{
	user.EventUserPasswordChanged:   KindPasswordChanged,
	user.EventUserLocked:            KindAccountLocked,
	user.EventUserTwoFactorEnabled:  KindTwoFactorEnabled,
	user.EventUserTwoFactorDisabled: KindTwoFactorDisabled,
	user.EventAPIKeyCreated:         KindAPIKeyCreated,
}

// KindFor maps a domain event type to the alert it triggers, if any.
func KindFor(eventType string) (Kind, bool) {
	k, ok := kindByEvent[eventType]
	return k, ok
}

// Payload is the job body. Details holds event data that is safe to show
// the account owner, such as a lock expiry or an API key name.
type Payload struct {
	UserID     string            `json:"user_id"`
	Kind       Kind              `json:"kind"`
	OccurredAt time.Time         `json:"occurred_at"`
	Details    map[string]string `json:"details,omitempty"`
}

// shown lists the event data keys copied into Details.
var shown = map[string]bool{
	"locked_until": true,
	"api_key_name": true,
	"changed_by":   true,
}
