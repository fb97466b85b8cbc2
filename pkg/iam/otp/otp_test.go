package otp

import (
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

func newTestService(t *testing.T) (*Service, *kernel.FixedClock) {
	t.Helper()
	clock := kernel.NewFixedClock(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	return NewService(DefaultConfig(), clock), clock
}

func TestVerifyWindow(t *testing.T) {
	svc, clock := newTestService(t)
	secret, err := svc.GenerateSecret()
	require.NoError(t, err)

	now := clock.Now()
	tests := []struct {
		name   string
		offset time.Duration
		valid  bool
	}{
		{"current step", 0, true},
		{"previous step", -30 * time.Second, true},
		{"next step", 30 * time.Second, true},
		{"two steps back", -60 * time.Second, false},
		{"two steps ahead", 60 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := svc.CodeAt(secret, now.Add(tt.offset))
			require.NoError(t, err)
			assert.Equal(t, tt.valid, svc.Verify(secret, code))
		})
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc, _ := newTestService(t)
	secret, err := svc.GenerateSecret()
	require.NoError(t, err)

	assert.False(t, svc.Verify(secret, ""))
	assert.False(t, svc.Verify(secret, "abcdef"))
	assert.False(t, svc.Verify("", "123456"))
	assert.False(t, svc.Verify("not base32 !!", "123456"))
}

func TestMatchReturnsStep(t *testing.T) {
	svc, clock := newTestService(t)
	secret, err := svc.GenerateSecret()
	require.NoError(t, err)

	now := clock.Now()
	current := now.Unix() / 30

	code, err := svc.CodeAt(secret, now)
	require.NoError(t, err)
	step, ok := svc.Match(secret, code)
	require.True(t, ok)
	assert.Equal(t, current, step)

	prev, err := svc.CodeAt(secret, now.Add(-30*time.Second))
	require.NoError(t, err)
	step, ok = svc.Match(secret, prev)
	require.True(t, ok)
	assert.Equal(t, current-1, step)

	_, ok = svc.Match(secret, "12345")
	assert.False(t, ok)
}

func TestProvisioningURI(t *testing.T) {
	svc, _ := newTestService(t)
	secret, err := svc.GenerateSecret()
	require.NoError(t, err)

	uri, err := svc.ProvisioningURI(secret, "alice@example.com")
	require.NoError(t, err)

	u, err := url.Parse(uri)
	require.NoError(t, err)
	assert.Equal(t, "otpauth", u.Scheme)
	assert.Equal(t, "totp", u.Host)
	assert.Equal(t, "Nexus", u.Query().Get("issuer"))
	assert.Equal(t, secret, u.Query().Get("secret"))
}

func TestGenerateBackupCodes(t *testing.T) {
	svc, _ := newTestService(t)

	codes, err := svc.GenerateBackupCodes()
	require.NoError(t, err)
	require.Len(t, codes, 10)

	format := regexp.MustCompile(`^[0-9A-F]{8}$`)
	seen := map[string]bool{}
	for _, c := range codes {
		assert.Regexp(t, format, c)
		assert.False(t, seen[c], "duplicate code %s", c)
		seen[c] = true
	}

	assert.Equal(t, HashBackupCode(codes[0]), HashBackupCode(" "+codes[0]+" "))
	assert.Len(t, HashBackupCodes(codes), 10)
}
