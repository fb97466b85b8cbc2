package userinfra

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Abraxas-365/nexus-iam/pkg/iam/apikey"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

type keyUsage struct {
	lastUsed time.Time
	count    int64
}

// MemoryUserRepository keeps snapshots in process. It enforces the same
// version and uniqueness rules as the Postgres repository and also serves
// API key lookups.
type MemoryUserRepository struct {
	mu         sync.RWMutex
	users      map[kernel.UserID]user.Snapshot
	byEmail    map[string]kernel.UserID
	byUsername map[string]kernel.UserID
	byKeyHash  map[string]kernel.UserID
	usage      map[string]keyUsage
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:      make(map[kernel.UserID]user.Snapshot),
		byEmail:    make(map[string]kernel.UserID),
		byUsername: make(map[string]kernel.UserID),
		byKeyHash:  make(map[string]kernel.UserID),
		usage:      make(map[string]keyUsage),
	}
}

var (
	_ user.Repository   = (*MemoryUserRepository)(nil)
	_ apikey.Repository = (*MemoryUserRepository)(nil)
)

func (r *MemoryUserRepository) FindByID(ctx context.Context, id kernel.UserID) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.users[id]
	if !ok {
		return nil, user.ErrUserNotFound()
	}
	return user.Rehydrate(s), nil
}

func (r *MemoryUserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[user.NormalizeEmail(email)]
	r.mu.RUnlock()
	if !ok {
		return nil, user.ErrUserNotFound()
	}
	return r.FindByID(ctx, id)
}

func (r *MemoryUserRepository) FindByUsername(ctx context.Context, username string) (*user.User, error) {
	r.mu.RLock()
	id, ok := r.byUsername[username]
	r.mu.RUnlock()
	if !ok {
		return nil, user.ErrUserNotFound()
	}
	return r.FindByID(ctx, id)
}

func (r *MemoryUserRepository) Save(ctx context.Context, u *user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := u.Snapshot()
	current, exists := r.users[snap.ID]
	switch {
	case u.IsNew() && exists:
		return user.ErrConcurrentUpdate()
	case !u.IsNew() && (!exists || current.Version != u.PersistedVersion()):
		return user.ErrConcurrentUpdate().WithDetail("expected_version", u.PersistedVersion())
	}

	if owner, ok := r.byEmail[snap.Email]; ok && owner != snap.ID {
		return user.ErrEmailTaken()
	}
	if owner, ok := r.byUsername[snap.Username]; ok && owner != snap.ID {
		return user.ErrUsernameTaken()
	}

	if exists {
		delete(r.byEmail, current.Email)
		delete(r.byUsername, current.Username)
	}
	r.users[snap.ID] = snap
	r.byEmail[snap.Email] = snap.ID
	r.byUsername[snap.Username] = snap.ID
	for _, k := range snap.APIKeys {
		r.byKeyHash[k.KeyHash] = snap.ID
	}

	u.MarkPersisted()
	return nil
}

func (r *MemoryUserRepository) Delete(ctx context.Context, id kernel.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.users[id]
	if !ok {
		return user.ErrUserNotFound()
	}
	delete(r.users, id)
	delete(r.byEmail, s.Email)
	delete(r.byUsername, s.Username)
	for _, k := range s.APIKeys {
		delete(r.byKeyHash, k.KeyHash)
		delete(r.usage, k.ID)
	}
	return nil
}

// List orders users by creation time, newest first.
func (r *MemoryUserRepository) List(ctx context.Context, filter user.ListFilter, opts kernel.PaginationOptions) (kernel.Paginated[*user.User], error) {
	opts = opts.Normalize()
	r.mu.RLock()
	var matched []user.Snapshot
	for _, s := range r.users {
		if (filter.TenantID.IsEmpty() || s.TenantID == filter.TenantID) && (filter.Status == "" || s.Status == filter.Status) {
			matched = append(matched, s)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(matched, func(a, b user.Snapshot) int { return b.CreatedAt.Compare(a.CreatedAt) })

	start := min(opts.Offset(), len(matched))
	end := min(start+opts.PageSize, len(matched))
	page := make([]*user.User, 0, end-start)
	for _, s := range matched[start:end] {
		page = append(page, user.Rehydrate(s))
	}
	return kernel.NewPaginated(page, opts, len(matched)), nil
}

// FindByHash resolves a key through its owner's latest snapshot.
func (r *MemoryUserRepository) FindByHash(ctx context.Context, keyHash string) (*apikey.APIKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.byKeyHash[keyHash]
	if !ok {
		return nil, apikey.ErrNotFound()
	}
	for _, k := range r.users[owner].APIKeys {
		if k.KeyHash != keyHash {
			continue
		}
		if u, ok := r.usage[k.ID]; ok {
			last := u.lastUsed
			k.LastUsedAt = &last
			k.UsageCount += u.count
		}
		return &k, nil
	}
	return nil, apikey.ErrNotFound()
}

func (r *MemoryUserRepository) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.usage[id]
	u.lastUsed = at
	u.count++
	r.usage[id] = u
	return nil
}
