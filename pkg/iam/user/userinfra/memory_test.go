package userinfra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/apikey"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/authz"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/password"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

var now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func register(t *testing.T, email, username string) *user.User {
	t.Helper()
	pw := password.NewService(password.NewBcryptHasher(bcrypt.MinCost), password.DefaultPolicy())
	u, err := user.Register(pw, user.RegisterParams{
		Email: email, Username: username, FirstName: "F", LastName: "L", Password: "Secret-123",
	}, now)
	require.NoError(t, err)
	return u
}

func TestMemorySaveAndFind(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	u := register(t, "dana@example.com", "dana")

	require.NoError(t, repo.Save(ctx, u))
	assert.False(t, u.HasChanges())

	byEmail, err := repo.FindByEmail(ctx, "DANA@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID(), byEmail.ID())

	byName, err := repo.FindByUsername(ctx, "dana")
	require.NoError(t, err)
	assert.Equal(t, u.Version(), byName.PersistedVersion())

	_, err = repo.FindByID(ctx, "nope")
	assert.True(t, errx.IsCode(err, user.CodeUserNotFound))
}

func TestMemoryOptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	u := register(t, "erin@example.com", "erin")
	require.NoError(t, repo.Save(ctx, u))

	a, err := repo.FindByID(ctx, u.ID())
	require.NoError(t, err)
	b, err := repo.FindByID(ctx, u.ID())
	require.NoError(t, err)

	require.NoError(t, a.AddRole(authz.RoleAdmin, now))
	require.NoError(t, repo.Save(ctx, a))

	require.NoError(t, b.AddRole(authz.RoleViewer, now))
	err = repo.Save(ctx, b)
	assert.True(t, errx.IsCode(err, user.CodeConcurrentUpdate))
	assert.Equal(t, errx.TypeConflict, errx.TypeOf(err))
}

func TestMemoryUniqueness(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	require.NoError(t, repo.Save(ctx, register(t, "finn@example.com", "finn")))

	err := repo.Save(ctx, register(t, "finn@example.com", "finn2"))
	assert.True(t, errx.IsCode(err, user.CodeEmailTaken))

	err = repo.Save(ctx, register(t, "other@example.com", "finn"))
	assert.True(t, errx.IsCode(err, user.CodeUsernameTaken))
}

func TestMemoryAPIKeyLookup(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	u := register(t, "gus@example.com", "gus")
	key, plaintext, err := u.CreateAPIKey(apikey.IssueParams{Name: "ci"}, now)
	require.NoError(t, err)
	require.NoError(t, repo.Save(ctx, u))

	found, err := repo.FindByHash(ctx, apikey.HashAPIKey(plaintext))
	require.NoError(t, err)
	assert.Equal(t, key.ID, found.ID)
	assert.Equal(t, u.ID(), found.UserID)

	require.NoError(t, repo.UpdateLastUsed(ctx, key.ID, now))
	found, err = repo.FindByHash(ctx, key.KeyHash)
	require.NoError(t, err)
	assert.EqualValues(t, 1, found.UsageCount)

	_, err = repo.FindByHash(ctx, "deadbeef")
	assert.True(t, errx.IsCode(err, apikey.CodeNotFound))
}

func TestMemoryList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	for i, name := range []string{"hana", "ivan", "jude"} {
		u := register(t, name+"@example.com", name)
		if i == 0 {
			u.VerifyEmail(now)
		}
		require.NoError(t, repo.Save(ctx, u))
	}

	all, err := repo.List(ctx, user.ListFilter{}, kernel.PaginationOptions{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, all.Items, 2)
	assert.Equal(t, 3, all.Page.Total)
	assert.Equal(t, 2, all.Page.Pages)

	active, err := repo.List(ctx, user.ListFilter{Status: user.StatusActive}, kernel.PaginationOptions{})
	require.NoError(t, err)
	require.Len(t, active.Items, 1)
	assert.Equal(t, "hana", active.Items[0].Username())
}
