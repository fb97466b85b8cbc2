package identity

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginAttemptsTotal counts logins by outcome: success, invalid_credentials,
	// locked, requires_2fa, invalid_2fa, inactive.
	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iam_login_attempts_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	// TokenValidationTotal separates expired, invalid and revoked tokens that
	// callers only ever see as one error.
	TokenValidationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "iam_token_validation_total",
		Help: "Access token validations by result",
	}, []string{"result"})

	LockoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iam_lockouts_total",
		Help: "Accounts locked after repeated failed logins",
	})

	ConcurrencyRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "iam_concurrency_retries_total",
		Help: "User saves retried after an optimistic concurrency conflict",
	})
)
