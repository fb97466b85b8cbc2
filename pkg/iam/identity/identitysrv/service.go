package identitysrv

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/eventx"
	"github.com/Abraxas-365/nexus-iam/pkg/iam"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/auth"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/authz"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/identity"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/otp"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/password"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/session"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
	"github.com/Abraxas-365/nexus-iam/pkg/logx"
)

// Config holds the policy knobs of the identity use cases.
type Config struct {
	SessionTTL       time.Duration
	LockoutThreshold int
	LockoutDuration  time.Duration
	// SaveRetries is how many times a save that lost an optimistic
	// concurrency race is reloaded and reapplied.
	SaveRetries int
}

func DefaultConfig() Config {
	return Config{
		SessionTTL:       24 * time.Hour,
		LockoutThreshold: 5,
		LockoutDuration:  30 * time.Minute,
		SaveRetries:      1,
	}
}

// Deps are the collaborators of the service.
type Deps struct {
	Users     user.Repository
	Passwords *password.Service
	TOTP      *otp.Service
	Tokens    *auth.TokenService
	Sessions  *session.Manager
	Engine    *authz.Engine
	Events    eventx.Publisher
	Audit     auth.AuditService
	Clock     kernel.Clock
}

// IdentityService is the only component that loads and saves users. Every
// mutation of a user goes through mutate, which serializes writers per user
// in this process and retries version conflicts with other processes.
type IdentityService struct {
	users     user.Repository
	passwords *password.Service
	totp      *otp.Service
	tokens    *auth.TokenService
	sessions  *session.Manager
	engine    *authz.Engine
	events    eventx.Publisher
	audit     auth.AuditService
	clock     kernel.Clock
	cfg       Config

	locks  *keyedMutex
	tracer trace.Tracer
}

func NewIdentityService(d Deps, cfg Config) *IdentityService {
	if cfg.LockoutThreshold <= 0 {
		cfg.LockoutThreshold = 5
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &IdentityService{
		users:     d.Users,
		passwords: d.Passwords,
		totp:      d.TOTP,
		tokens:    d.Tokens,
		sessions:  d.Sessions,
		engine:    d.Engine,
		events:    d.Events,
		audit:     d.Audit,
		clock:     d.Clock,
		cfg:       cfg,
		locks:     newKeyedMutex(),
		tracer:    otel.Tracer("nexus-iam/identity"),
	}
}

// ============================================================================
// Aggregate mutation
// ============================================================================

// keepChanges marks an error returned by a mutation whose changes must still
// be saved, such as a failed login that bumps the attempt counter.
type keepChanges struct{ err error }

func (k *keepChanges) Error() string { return k.err.Error() }
func (k *keepChanges) Unwrap() error { return k.err }

func keep(err error) error { return &keepChanges{err: err} }

// mutate loads user id, applies fn and saves the result. On a concurrency
// conflict the user is reloaded and fn applied again, up to SaveRetries
// times. fn must only change the aggregate; side effects belong after mutate
// returns.
func (s *IdentityService) mutate(ctx context.Context, id kernel.UserID, fn func(u *user.User) error) (*user.User, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	for attempt := 0; ; attempt++ {
		u, err := s.users.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}

		var kept *keepChanges
		fnErr := fn(u)
		if fnErr != nil && !errors.As(fnErr, &kept) {
			return nil, fnErr
		}

		if u.HasChanges() {
			if err := s.users.Save(ctx, u); err != nil {
				if errx.IsCode(err, user.CodeConcurrentUpdate) && attempt < s.cfg.SaveRetries {
					identity.ConcurrencyRetriesTotal.Inc()
					logx.WithContext(ctx).WithField("attempt", attempt+1).
						Debugf("retrying save of user %s after version conflict", id)
					continue
				}
				return nil, err
			}
			s.publish(ctx, u.PullEvents())
		}

		if kept != nil {
			return u, kept.err
		}
		return u, nil
	}
}

// publish is best effort; the save already happened.
func (s *IdentityService) publish(ctx context.Context, events []eventx.Event) {
	if len(events) == 0 || s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		logx.WithContext(ctx).WithError(err).WithField("events", len(events)).
			Error("failed to publish domain events")
	}
}

// ============================================================================
// Helpers
// ============================================================================

func (s *IdentityService) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "identity."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func principalOf(u *user.User, sid kernel.SessionID) auth.Principal {
	return auth.Principal{
		UserID:    u.ID(),
		TenantID:  u.TenantID(),
		Email:     u.Email(),
		Username:  u.Username(),
		Roles:     u.RoleNames(),
		SessionID: sid,
	}
}

// callerID returns the user behind ac, refusing API key callers for
// interactive account operations.
func callerID(ac *kernel.AuthContext) (kernel.UserID, error) {
	if !ac.IsValid() {
		return "", iam.ErrUnauthorized()
	}
	if ac.IsAPIKey {
		return "", iam.ErrAccessDenied().WithDetail("reason", "not available to API keys")
	}
	return ac.UserID, nil
}

// requireActive refuses accounts that may no longer sign in, even while a
// token issued to them is unexpired.
func requireActive(u *user.User) error {
	if !u.Status().CanAuthenticate() {
		return iam.ErrUnauthorized()
	}
	return nil
}

// loadCaller reads the calling account for use cases that do not change it.
func (s *IdentityService) loadCaller(ctx context.Context, id kernel.UserID) (*user.User, error) {
	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errx.IsCode(err, user.CodeUserNotFound) {
			return nil, iam.ErrUnauthorized()
		}
		return nil, err
	}
	if err := requireActive(u); err != nil {
		return nil, err
	}
	return u, nil
}

// ============================================================================
// keyedMutex
// ============================================================================

type keyedMutex struct {
	mu    sync.Mutex
	locks map[kernel.UserID]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[kernel.UserID]*refLock)}
}

// Lock blocks until id is free and returns its release function.
func (k *keyedMutex) Lock(id kernel.UserID) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &refLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
