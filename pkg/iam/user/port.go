package user

import (
	"context"

	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

// Repository is the store of record for the User aggregate.
//
// Save must compare the aggregate's PersistedVersion with the stored version
// and fail with CodeConcurrentUpdate on mismatch. Duplicate email or username
// must fail with CodeEmailTaken or CodeUsernameTaken. On success Save calls
// MarkPersisted.
type Repository interface {
	FindByID(ctx context.Context, id kernel.UserID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	Save(ctx context.Context, u *User) error
	Delete(ctx context.Context, id kernel.UserID) error
	List(ctx context.Context, filter ListFilter, opts kernel.PaginationOptions) (kernel.Paginated[*User], error)
}

// ListFilter narrows List. Zero fields match everything.
type ListFilter struct {
	TenantID kernel.TenantID
	Status   Status
}
