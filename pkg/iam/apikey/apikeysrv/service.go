package apikeysrv

import (
	"context"
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/apikey"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/authz"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
	"github.com/Abraxas-365/nexus-iam/pkg/logx"
)

// APIKeyService validates plaintext keys presented by machine callers. Keys
// are issued and revoked through their owning user, never here.
type APIKeyService struct {
	repo    apikey.Repository
	limiter apikey.RateLimiter
	clock   kernel.Clock
	timeout time.Duration
}

// NewAPIKeyService builds the service. limiter may be nil, in which case
// per-key rate limits are not enforced.
func NewAPIKeyService(repo apikey.Repository, limiter apikey.RateLimiter, clock kernel.Clock, timeout time.Duration) *APIKeyService {
	return &APIKeyService{repo: repo, limiter: limiter, clock: clock, timeout: timeout}
}

// Authenticate resolves a plaintext key to its record. ip is checked against
// the key's allow list when non-empty. Every failure that would tell a caller
// something about the key collapses to apikey.CodeInvalid.
func (s *APIKeyService) Authenticate(ctx context.Context, plaintext, ip string) (*apikey.APIKey, error) {
	if !apikey.ValidateAPIKeyFormat(plaintext) {
		return nil, apikey.ErrInvalid()
	}

	key, err := s.lookup(ctx, apikey.HashAPIKey(plaintext))
	if err != nil {
		if errx.IsCode(err, apikey.CodeNotFound) {
			return nil, apikey.ErrInvalid()
		}
		return nil, err
	}

	now := s.clock.Now()
	if !key.IsValid(now) {
		return nil, apikey.ErrInvalid()
	}
	if ip != "" && !key.AllowsIP(ip) {
		return nil, apikey.ErrIPNotAllowed().WithDetail("key_id", key.ID)
	}
	if key.RateLimit != nil && s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, key.ID, *key.RateLimit)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apikey.ErrRateLimited().WithDetail("key_id", key.ID)
		}
	}

	if err := s.repo.UpdateLastUsed(ctx, key.ID, now); err != nil {
		logx.WithContext(ctx).WithError(err).WithField("key_id", key.ID).
			Warn("failed to record API key usage")
	} else {
		key.RecordUsage(now)
	}
	return key, nil
}

// Validate reports whether plaintext authenticates and its own permission
// list grants the request. The owner's roles are never consulted.
func (s *APIKeyService) Validate(ctx context.Context, plaintext string, rt authz.ResourceType, pt authz.PermissionType, resourceID string) bool {
	key, err := s.Authenticate(ctx, plaintext, "")
	if err != nil {
		return false
	}
	return key.Grants(rt, pt, resourceID, s.clock.Now())
}

func (s *APIKeyService) lookup(ctx context.Context, keyHash string) (*apikey.APIKey, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.repo.FindByHash(ctx, keyHash)
}
