package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
)

func newTestService() *Service {
	return NewService(NewBcryptHasher(bcrypt.MinCost), DefaultPolicy())
}

func TestHashAndVerify(t *testing.T) {
	svc := newTestService()

	hash, err := svc.HashNew("Correct-Horse-9")
	require.NoError(t, err)
	assert.NotEqual(t, "Correct-Horse-9", hash)

	assert.True(t, svc.Verify("Correct-Horse-9", hash))
	assert.False(t, svc.Verify("correct-horse-9", hash))
	assert.False(t, svc.Verify("Correct-Horse-9", ""))
}

func TestHashNewRejectsWeakSecrets(t *testing.T) {
	svc := newTestService()

	for _, weak := range []string{"short", "password", "QWERTY"} {
		_, err := svc.HashNew(weak)
		require.Error(t, err, weak)
		assert.True(t, errx.IsCode(err, CodeWeakPassword), weak)
	}
}

func TestHashRejectsOverlongSecret(t *testing.T) {
	svc := newTestService()

	_, err := svc.HashNew(strings.Repeat("Ab1!", 20))
	require.Error(t, err)
	assert.True(t, errx.IsCode(err, CodeTooLong))
}

func TestScore(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		secret string
		valid  bool
		issues int
	}{
		{"Str0ng!Pass", true, 0},
		{"alllowercase", true, 3},
		{"ALLUPPER1!", true, 1},
		{"Ab1!", false, 1},
		{"admin", false, 5},
	}
	for _, tt := range tests {
		t.Run(tt.secret, func(t *testing.T) {
			s := p.Score(tt.secret)
			assert.Equal(t, tt.valid, s.IsValid)
			assert.Len(t, s.Issues, tt.issues)
			assert.GreaterOrEqual(t, s.Score, 0)
		})
	}
}
