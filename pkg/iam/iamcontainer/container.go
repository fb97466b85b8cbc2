package iamcontainer

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/nexus-iam/pkg/config"
	"github.com/Abraxas-365/nexus-iam/pkg/eventx"
	"github.com/Abraxas-365/nexus-iam/pkg/eventx/eventxlog"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/alert"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/apikey"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/apikey/apikeyinfra"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/apikey/apikeysrv"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/auth"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/auth/authinfra"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/authz"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/identity/identityapi"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/identity/identitysrv"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/otp"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/password"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/session"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/session/sessioninfra"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/nexus-iam/pkg/jobx"
	"github.com/Abraxas-365/nexus-iam/pkg/jobx/jobxmemory"
	"github.com/Abraxas-365/nexus-iam/pkg/jobx/jobxredis"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
	"github.com/Abraxas-365/nexus-iam/pkg/logx"
	"github.com/Abraxas-365/nexus-iam/pkg/notifx"
	"github.com/Abraxas-365/nexus-iam/pkg/notifx/notifxconsole"
)

// ---------------------------------------------------------------------------
// Deps: explicit external dependencies this bounded context requires.
// A nil DB or Redis selects the in-memory implementation of that store.
// A nil Mail sender logs alert emails instead of sending them.
// ---------------------------------------------------------------------------

type Deps struct {
	DB     *sqlx.DB
	Redis  *redis.Client
	Cfg    *config.Config
	Events eventx.Publisher
	Mail   notifx.Sender
	Clock  kernel.Clock
}

// ---------------------------------------------------------------------------
// Container: the public surface of the IAM module.
// ---------------------------------------------------------------------------

type Container struct {
	IdentityService *identitysrv.IdentityService
	APIKeyService   *apikeysrv.APIKeyService
	TokenService    *auth.TokenService
	SessionManager  *session.Manager

	IdentityHandlers *identityapi.IdentityHandlers
	AuthMiddleware   *auth.TokenMiddleware

	// AlertWorker delivers security alert emails. Nil when alerts are off.
	AlertWorker *jobx.Worker

	userRepo user.Repository
}

// ---------------------------------------------------------------------------
// New: constructs the entire IAM dependency graph.
// Order matters: infra → repos → services → handlers → middleware.
// ---------------------------------------------------------------------------

func New(deps Deps) *Container {
	logx.Info("🔧 Initializing IAM container...")

	cfg := deps.Cfg.Auth
	clock := deps.Clock
	if clock == nil {
		clock = kernel.SystemClock
	}
	events := deps.Events
	if events == nil {
		events = eventxlog.NewPublisher()
	}

	c := &Container{}

	// ── Repositories ─────────────────────────────────────────────────────

	var (
		userRepo    user.Repository
		apiKeyRepo  apikey.Repository
		revocations auth.RevocationStore
		sessions    session.Store
		limiter     apikey.RateLimiter
	)

	if deps.DB != nil {
		userRepo = userinfra.NewPostgresUserRepository(deps.DB)
		apiKeyRepo = apikeyinfra.NewPostgresAPIKeyRepository(deps.DB)
		logx.Info("  ✅ Using Postgres user store")
	} else {
		mem := userinfra.NewMemoryUserRepository()
		userRepo, apiKeyRepo = mem, mem
		logx.Warn("  ⚠️  Using in-memory user store (not recommended for production)")
	}

	if deps.Redis != nil {
		revocations = authinfra.NewRedisRevocationStore(deps.Redis, clock)
		sessions = sessioninfra.NewRedisSessionStore(deps.Redis)
		limiter = apikeyinfra.NewRedisRateLimiter(deps.Redis, clock)
		logx.Info("  ✅ Using Redis for sessions, revocations and rate limits")
	} else {
		revocations = authinfra.NewMemoryRevocationStore(clock)
		sessions = sessioninfra.NewMemorySessionStore(clock)
		limiter = apikeyinfra.NewMemoryRateLimiter(clock)
		logx.Warn("  ⚠️  Using in-memory TTL stores (not recommended for production)")
	}
	c.userRepo = userRepo

	// ── Security alerts ──────────────────────────────────────────────────

	if deps.Cfg.Alerts.Enabled {
		var queue jobx.Queue
		if deps.Redis != nil {
			queue = jobxredis.NewRedisQueue(deps.Redis)
		} else {
			queue = jobxmemory.NewQueue()
		}
		c.AlertWorker = jobx.NewWorker(queue, clock,
			jobx.WithQueues(alert.Queue),
			jobx.WithConcurrency(deps.Cfg.Alerts.Workers),
			jobx.WithMaxAttempts(deps.Cfg.Alerts.MaxAttempts),
		)

		mail := deps.Mail
		if mail == nil {
			mail = notifxconsole.NewSender()
		}
		handler, err := alert.NewHandler(userRepo, notifx.NewMailer(mail, deps.Cfg.Alerts.From))
		if err != nil {
			logx.Fatalf("Failed to load alert templates: %v", err)
		}
		handler.Register(c.AlertWorker)
		events = alert.NewPublisher(events, c.AlertWorker)
		logx.Info("  ✅ Security alerts enabled")
	}

	// ── Domain services ──────────────────────────────────────────────────

	passwords := password.NewService(password.NewBcryptHasher(cfg.BcryptCost), password.DefaultPolicy())
	totp := otp.NewService(otp.Config{
		Issuer:          cfg.TOTPIssuer,
		Period:          cfg.TOTPPeriod,
		Skew:            cfg.TOTPSkew,
		BackupCodeCount: cfg.BackupCodeCount,
	}, clock)

	jwt := auth.NewJWTService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.JWTIssuer, clock)
	c.TokenService = auth.NewTokenService(jwt, revocations, clock, cfg.StoreTimeout)
	c.SessionManager = session.NewManager(sessions, clock, cfg.StoreTimeout)
	c.APIKeyService = apikeysrv.NewAPIKeyService(apiKeyRepo, limiter, clock, cfg.StoreTimeout)

	c.IdentityService = identitysrv.NewIdentityService(identitysrv.Deps{
		Users:     userRepo,
		Passwords: passwords,
		TOTP:      totp,
		Tokens:    c.TokenService,
		Sessions:  c.SessionManager,
		Engine:    authz.NewEngine(clock),
		Events:    events,
		Audit:     authinfra.NewLogxAuditService(clock),
		Clock:     clock,
	}, identitysrv.Config{
		SessionTTL:       cfg.SessionTTL,
		LockoutThreshold: cfg.LockoutThreshold,
		LockoutDuration:  cfg.LockoutDuration,
		SaveRetries:      cfg.SaveRetries,
	})

	// ── Handlers and middleware ──────────────────────────────────────────

	c.IdentityHandlers = identityapi.NewIdentityHandlers(c.IdentityService)
	c.AuthMiddleware = auth.NewAuthMiddleware(c.IdentityService, c.APIKeyService, c.IdentityService)

	logx.Info("✅ IAM container initialized")
	return c
}

// StartWorkers runs the background workers until ctx is cancelled.
func (c *Container) StartWorkers(ctx context.Context) {
	if c.AlertWorker == nil {
		return
	}
	go func() {
		if err := c.AlertWorker.Run(ctx); err != nil {
			logx.WithError(err).Error("alert worker stopped")
		}
	}()
}

// Migrate creates the IAM tables when the Postgres store is in use.
func (c *Container) Migrate(ctx context.Context) error {
	pg, ok := c.userRepo.(*userinfra.PostgresUserRepository)
	if !ok {
		return nil
	}
	return pg.Migrate(ctx)
}
