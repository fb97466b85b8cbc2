package password

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("PASSWORD")

var (
	CodeWeakPassword = ErrRegistry.Register("WEAK", errx.TypeValidation, "Password does not meet the strength policy")
	CodeTooLong      = ErrRegistry.Register("TOO_LONG", errx.TypeValidation, "Password is longer than 72 bytes")
	CodeHashFailed   = ErrRegistry.Register("HASH_FAILED", errx.TypeInternal, "Could not hash password")
)

// Hasher turns secrets into one-way hashes and checks candidates against
// them.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) bool
}

// BcryptHasher is the production Hasher.
type BcryptHasher struct {
	cost  int
	dummy []byte
}

// NewBcryptHasher falls back to bcrypt.DefaultCost when cost is out of range.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("nexus-dummy-secret"), cost)
	return &BcryptHasher{cost: cost, dummy: dummy}
}

func (h *BcryptHasher) Hash(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrRegistry.New(CodeTooLong)
	}
	if err != nil {
		return "", ErrRegistry.NewWithCause(CodeHashFailed, err)
	}
	return string(hashed), nil
}

// Verify compares in constant time. An empty hash never verifies but still
// costs one comparison.
func (h *BcryptHasher) Verify(secret, hash string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(secret))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// Strength is the result of scoring a candidate secret. Only IsValid gates
// acceptance; Issues may be advisory.
type Strength struct {
	IsValid bool     `json:"is_valid"`
	Score   int      `json:"score"`
	Issues  []string `json:"issues,omitempty"`
}

// Policy decides which secrets are acceptable.
type Policy struct {
	MinLength int
	Denylist  []string
}

// DefaultPolicy rejects secrets shorter than 8 characters and a small list of
// well-known ones.
func DefaultPolicy() Policy {
	return Policy{
		MinLength: 8,
		Denylist:  []string{"password", "123456", "qwerty", "admin"},
	}
}

// Score rates secret. Missing character classes cost points and are
// reported, but only length and the denylist make it invalid.
func (p Policy) Score(secret string) Strength {
	s := Strength{IsValid: true, Score: 100}

	if len([]rune(secret)) < p.MinLength {
		s.IsValid = false
		s.Score -= 40
		s.Issues = append(s.Issues, fmt.Sprintf("must be at least %d characters", p.MinLength))
	}

	var upper, lower, digit, special bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	for _, c := range []struct {
		ok    bool
		issue string
	}{
		{upper, "should contain an uppercase letter"},
		{lower, "should contain a lowercase letter"},
		{digit, "should contain a digit"},
		{special, "should contain a special character"},
	} {
		if !c.ok {
			s.Score -= 10
			s.Issues = append(s.Issues, c.issue)
		}
	}

	if slices.Contains(p.Denylist, strings.ToLower(secret)) {
		s.IsValid = false
		s.Score = 0
		s.Issues = append(s.Issues, "is too common")
	}

	s.Score = max(s.Score, 0)
	return s
}

// Service combines a Policy with a Hasher.
type Service struct {
	hasher Hasher
	policy Policy
}

func NewService(hasher Hasher, policy Policy) *Service {
	return &Service{hasher: hasher, policy: policy}
}

// Strength scores secret without hashing it.
func (s *Service) Strength(secret string) Strength {
	return s.policy.Score(secret)
}

// HashNew approves secret against the policy and hashes it.
func (s *Service) HashNew(secret string) (string, error) {
	st := s.policy.Score(secret)
	if !st.IsValid {
		return "", ErrRegistry.New(CodeWeakPassword).WithDetail("issues", st.Issues)
	}
	return s.hasher.Hash(secret)
}

// Verify checks secret against hash.
func (s *Service) Verify(secret, hash string) bool {
	return s.hasher.Verify(secret, hash)
}
