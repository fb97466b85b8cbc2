package apikeysrv_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/apikey"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/apikey/apikeyinfra"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/apikey/apikeysrv"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/authz"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/password"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user/userinfra"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

type fixture struct {
	ctx   context.Context
	clock *kernel.FixedClock
	repo  *userinfra.MemoryUserRepository
	svc   *apikeysrv.APIKeyService
	owner *user.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := kernel.NewFixedClock(time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC))
	repo := userinfra.NewMemoryUserRepository()
	pw := password.NewService(password.NewBcryptHasher(bcrypt.MinCost), password.DefaultPolicy())

	owner, err := user.Register(pw, user.RegisterParams{
		Email:     "ops@example.com",
		Username:  "ops",
		FirstName: "Ops",
		LastName:  "Bot",
		Password:  "deploy-Pipeline-9",
	}, clock.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, owner))

	return &fixture{
		ctx:   ctx,
		clock: clock,
		repo:  repo,
		svc:   apikeysrv.NewAPIKeyService(repo, apikeyinfra.NewMemoryRateLimiter(clock), clock, time.Second),
		owner: owner,
	}
}

func (f *fixture) issue(t *testing.T, p apikey.IssueParams) (apikey.APIKey, string) {
	t.Helper()
	key, plaintext, err := f.owner.CreateAPIKey(p, f.clock.Now())
	require.NoError(t, err)
	require.NoError(t, f.repo.Save(f.ctx, f.owner))
	return key, plaintext
}

func projectRead() []authz.Permission {
	return []authz.Permission{{ResourceType: authz.ResourceProject, PermissionType: authz.PermRead}}
}

func TestValidateScenario(t *testing.T) {
	f := setup(t)
	key, plaintext := f.issue(t, apikey.IssueParams{Name: "reporting", Permissions: projectRead()})

	assert.True(t, f.svc.Validate(f.ctx, plaintext, authz.ResourceProject, authz.PermRead, "proj-1"))
	assert.False(t, f.svc.Validate(f.ctx, plaintext, authz.ResourceProject, authz.PermDelete, "proj-1"))

	require.NoError(t, f.owner.RevokeAPIKey(key.ID, f.clock.Now()))
	require.NoError(t, f.repo.Save(f.ctx, f.owner))

	assert.False(t, f.svc.Validate(f.ctx, plaintext, authz.ResourceProject, authz.PermRead, "proj-1"))
}

func TestValidateIgnoresOwnerRoles(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.owner.AddRole(authz.RoleSuperAdmin, f.clock.Now()))
	_, plaintext := f.issue(t, apikey.IssueParams{Name: "narrow", Permissions: projectRead()})

	assert.False(t, f.svc.Validate(f.ctx, plaintext, authz.ResourceInvoice, authz.PermRead, ""))
}

func TestAuthenticateRejectsUnknownAndMalformed(t *testing.T) {
	f := setup(t)

	_, err := f.svc.Authenticate(f.ctx, "not-a-key", "")
	assert.True(t, errx.IsCode(err, apikey.CodeInvalid))

	unknown, err := apikey.GenerateAPIKey()
	require.NoError(t, err)
	_, err = f.svc.Authenticate(f.ctx, unknown, "")
	assert.True(t, errx.IsCode(err, apikey.CodeInvalid))
}

func TestAuthenticateExpiredKey(t *testing.T) {
	f := setup(t)
	expires := f.clock.Now().Add(time.Hour)
	_, plaintext := f.issue(t, apikey.IssueParams{Name: "short", Permissions: projectRead(), ExpiresAt: &expires})

	_, err := f.svc.Authenticate(f.ctx, plaintext, "")
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = f.svc.Authenticate(f.ctx, plaintext, "")
	assert.True(t, errx.IsCode(err, apikey.CodeInvalid))
}

func TestAuthenticateAllowedIPs(t *testing.T) {
	f := setup(t)
	_, plaintext := f.issue(t, apikey.IssueParams{
		Name:        "office",
		Permissions: projectRead(),
		AllowedIPs:  []string{"10.0.0.0/8", "192.168.1.20"},
	})

	_, err := f.svc.Authenticate(f.ctx, plaintext, "10.1.2.3")
	assert.NoError(t, err)
	_, err = f.svc.Authenticate(f.ctx, plaintext, "192.168.1.20")
	assert.NoError(t, err)

	_, err = f.svc.Authenticate(f.ctx, plaintext, "8.8.8.8")
	assert.True(t, errx.IsCode(err, apikey.CodeIPNotAllowed))
}

func TestAuthenticateRateLimit(t *testing.T) {
	f := setup(t)
	limit := 2
	_, plaintext := f.issue(t, apikey.IssueParams{Name: "limited", Permissions: projectRead(), RateLimit: &limit})

	for i := 0; i < limit; i++ {
		_, err := f.svc.Authenticate(f.ctx, plaintext, "")
		require.NoError(t, err)
	}
	_, err := f.svc.Authenticate(f.ctx, plaintext, "")
	assert.True(t, errx.IsCode(err, apikey.CodeRateLimited))

	f.clock.Advance(time.Minute)
	_, err = f.svc.Authenticate(f.ctx, plaintext, "")
	assert.NoError(t, err)
}

func TestAuthenticateRecordsUsage(t *testing.T) {
	f := setup(t)
	_, plaintext := f.issue(t, apikey.IssueParams{Name: "usage", Permissions: projectRead()})

	_, err := f.svc.Authenticate(f.ctx, plaintext, "")
	require.NoError(t, err)
	key, err := f.svc.Authenticate(f.ctx, plaintext, "")
	require.NoError(t, err)

	assert.Equal(t, int64(2), key.UsageCount)
	require.NotNil(t, key.LastUsedAt)
	assert.Equal(t, f.clock.Now(), *key.LastUsedAt)
}
