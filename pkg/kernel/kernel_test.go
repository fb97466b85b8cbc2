package kernel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginationNormalize(t *testing.T) {
	assert.Equal(t, PaginationOptions{Page: 1, PageSize: DefaultPageSize}, PaginationOptions{}.Normalize())
	assert.Equal(t, MaxPageSize, PaginationOptions{Page: 2, PageSize: 1000}.Normalize().PageSize)
	assert.Equal(t, 40, PaginationOptions{Page: 3, PageSize: 20}.Offset())
}

func TestNewPaginated(t *testing.T) {
	p := NewPaginated([]string{"a", "b"}, PaginationOptions{Page: 1, PageSize: 2}, 5)
	assert.Equal(t, 3, p.Page.Pages)

	empty := NewPaginated[string](nil, PaginationOptions{}, 0)
	assert.NotNil(t, empty.Items)
	assert.Equal(t, 0, empty.Page.Pages)

	lengths := MapPaginated(p, func(s string) int { return len(s) })
	assert.Equal(t, []int{1, 1}, lengths.Items)
}

func TestJSONColumn(t *testing.T) {
	col := JSONColumn[[]string]{V: []string{"x", "y"}}
	v, err := col.Value()
	require.NoError(t, err)

	var back JSONColumn[[]string]
	require.NoError(t, back.Scan([]byte(v.(string))))
	assert.Equal(t, []string{"x", "y"}, back.V)
	require.NoError(t, back.Scan(nil))
	assert.Nil(t, back.V)
	assert.Error(t, back.Scan(42))
}

func TestFixedClock(t *testing.T) {
	c := NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	c.Advance(time.Minute)
	assert.Equal(t, 1, c.Now().Minute())
}

func TestAuthContext(t *testing.T) {
	var nilCtx *AuthContext
	assert.False(t, nilCtx.IsValid())
	assert.True(t, (&AuthContext{UserID: "u"}).IsValid())
	assert.False(t, (&AuthContext{IsAPIKey: true}).IsValid())
	assert.True(t, (&AuthContext{Roles: []string{"admin"}}).HasRole("admin"))

	ctx := WithAuthContext(context.Background(), &AuthContext{UserID: NewUserID("u-1")})
	ac, ok := AuthFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u-1", ac.UserID.String())

	_, ok = AuthFromContext(context.Background())
	assert.False(t, ok)
}
