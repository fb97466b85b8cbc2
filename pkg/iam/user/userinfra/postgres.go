package userinfra

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/iam"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/apikey/apikeyinfra"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/authz"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

//go:embed schema.sql
var Schema string

// PostgresUserRepository stores one row per user plus its API keys in the
// api_keys table, both written in the same transaction.
type PostgresUserRepository struct {
	db *sqlx.DB
}

func NewPostgresUserRepository(db *sqlx.DB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

var _ user.Repository = (*PostgresUserRepository)(nil)

// Migrate creates the tables when they do not exist.
func (r *PostgresUserRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, Schema); err != nil {
		return errx.Wrap(err, "failed to apply user schema", errx.TypeInternal)
	}
	return nil
}

const userColumns = `
	id, email, username, first_name, last_name, password_hash, status,
	tenant_id, auth_provider, external_id, roles, custom_roles, permissions,
	sessions, last_login_at, password_changed_at, failed_login_attempts,
	locked_until, email_verified, two_factor_enabled, two_factor_secret,
	pending_two_factor_secret, last_totp_step, backup_code_hashes, created_at,
	updated_at, version`

func (r *PostgresUserRepository) FindByID(ctx context.Context, id kernel.UserID) (*user.User, error) {
	return r.findOne(ctx, "id", id.String())
}

func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	return r.findOne(ctx, "email", user.NormalizeEmail(email))
}

func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (*user.User, error) {
	return r.findOne(ctx, "username", username)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, column, value string) (*user.User, error) {
	query := `SELECT` + userColumns + ` FROM users WHERE ` + column + ` = $1`

	var row userRow
	if err := r.db.GetContext(ctx, &row, query, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, user.ErrUserNotFound().WithDetail(column, value)
		}
		return nil, errx.Wrap(err, "failed to find user", errx.TypeInternal).
			WithDetail(column, value)
	}

	snap := row.toSnapshot()
	keys, err := apikeyinfra.FindByUser(ctx, r.db, snap.ID)
	if err != nil {
		return nil, err
	}
	snap.APIKeys = keys
	return user.Rehydrate(snap), nil
}

// Save inserts a new user or updates an existing one only when the stored
// version still equals the version the aggregate was loaded at.
func (r *PostgresUserRepository) Save(ctx context.Context, u *user.User) error {
	if !u.IsNew() && !u.HasChanges() {
		return nil
	}

	row := fromSnapshot(u.Snapshot())
	row.ExpectedVersion = u.PersistedVersion()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errx.Wrap(err, "failed to begin transaction", errx.TypeInternal)
	}
	defer tx.Rollback()

	if u.IsNew() {
		err = r.insert(ctx, tx, row)
	} else {
		err = r.update(ctx, tx, row)
	}
	if err != nil {
		return err
	}

	if err := apikeyinfra.SyncUserKeys(ctx, tx, u.APIKeys()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errx.Wrap(err, "failed to commit user", errx.TypeInternal)
	}
	u.MarkPersisted()
	return nil
}

func (r *PostgresUserRepository) insert(ctx context.Context, tx *sqlx.Tx, row userRow) error {
	query := `
		INSERT INTO users (` + userColumns + `) VALUES (
			:id, :email, :username, :first_name, :last_name, :password_hash, :status,
			:tenant_id, :auth_provider, :external_id, :roles, :custom_roles, :permissions,
			:sessions, :last_login_at, :password_changed_at, :failed_login_attempts,
			:locked_until, :email_verified, :two_factor_enabled, :two_factor_secret,
			:pending_two_factor_secret, :last_totp_step, :backup_code_hashes, :created_at,
			:updated_at, :version
		)`

	if _, err := tx.NamedExecContext(ctx, query, row); err != nil {
		return mapWriteError(err, row.ID)
	}
	return nil
}

func (r *PostgresUserRepository) update(ctx context.Context, tx *sqlx.Tx, row userRow) error {
	query := `
		UPDATE users SET
			email = :email,
			username = :username,
			first_name = :first_name,
			last_name = :last_name,
			password_hash = :password_hash,
			status = :status,
			tenant_id = :tenant_id,
			auth_provider = :auth_provider,
			external_id = :external_id,
			roles = :roles,
			custom_roles = :custom_roles,
			permissions = :permissions,
			sessions = :sessions,
			last_login_at = :last_login_at,
			password_changed_at = :password_changed_at,
			failed_login_attempts = :failed_login_attempts,
			locked_until = :locked_until,
			email_verified = :email_verified,
			two_factor_enabled = :two_factor_enabled,
			two_factor_secret = :two_factor_secret,
			pending_two_factor_secret = :pending_two_factor_secret,
			last_totp_step = :last_totp_step,
			backup_code_hashes = :backup_code_hashes,
			updated_at = :updated_at,
			version = :version
		WHERE id = :id AND version = :expected_version`

	res, err := tx.NamedExecContext(ctx, query, row)
	if err != nil {
		return mapWriteError(err, row.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to read affected rows", errx.TypeInternal)
	}
	if n == 0 {
		return user.ErrConcurrentUpdate().
			WithDetail("user_id", row.ID).
			WithDetail("expected_version", row.ExpectedVersion)
	}
	return nil
}

func mapWriteError(err error, id string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		switch {
		case strings.Contains(pqErr.Constraint, "email"):
			return user.ErrEmailTaken()
		case strings.Contains(pqErr.Constraint, "username"):
			return user.ErrUsernameTaken()
		default:
			// a second insert of the same id lost the race
			return user.ErrConcurrentUpdate().WithDetail("user_id", id)
		}
	}
	return errx.Wrap(err, "failed to save user", errx.TypeInternal).WithDetail("user_id", id)
}

func (r *PostgresUserRepository) Delete(ctx context.Context, id kernel.UserID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id.String())
	if err != nil {
		return errx.Wrap(err, "failed to delete user", errx.TypeInternal).WithDetail("user_id", id.String())
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.ErrUserNotFound().WithDetail("user_id", id.String())
	}
	return nil
}

// List returns users newest first. API keys are not loaded for listed users.
func (r *PostgresUserRepository) List(ctx context.Context, filter user.ListFilter, opts kernel.PaginationOptions) (kernel.Paginated[*user.User], error) {
	opts = opts.Normalize()

	where := ` WHERE ($1 = '' OR tenant_id = $1) AND ($2 = '' OR status = $2)`
	args := []any{filter.TenantID.String(), string(filter.Status)}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM users`+where, args...); err != nil {
		return kernel.Paginated[*user.User]{}, errx.Wrap(err, "failed to count users", errx.TypeInternal)
	}

	query := `SELECT` + userColumns + ` FROM users` + where + ` ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	var rows []userRow
	if err := r.db.SelectContext(ctx, &rows, query, append(args, opts.PageSize, opts.Offset())...); err != nil {
		return kernel.Paginated[*user.User]{}, errx.Wrap(err, "failed to list users", errx.TypeInternal)
	}

	users := make([]*user.User, len(rows))
	for i, row := range rows {
		users[i] = user.Rehydrate(row.toSnapshot())
	}
	return kernel.NewPaginated(users, opts, total), nil
}

type userRow struct {
	ID                     string                                `db:"id"`
	Email                  string                                `db:"email"`
	Username               string                                `db:"username"`
	FirstName              string                                `db:"first_name"`
	LastName               string                                `db:"last_name"`
	PasswordHash           string                                `db:"password_hash"`
	Status                 string                                `db:"status"`
	TenantID               string                                `db:"tenant_id"`
	Provider               string                                `db:"auth_provider"`
	ExternalID             string                                `db:"external_id"`
	Roles                  pq.StringArray                        `db:"roles"`
	CustomRoles            kernel.JSONColumn[[]authz.Role]       `db:"custom_roles"`
	Permissions            kernel.JSONColumn[[]authz.Permission] `db:"permissions"`
	Sessions               kernel.JSONColumn[[]user.UserSession] `db:"sessions"`
	LastLoginAt            *time.Time                            `db:"last_login_at"`
	PasswordChangedAt      *time.Time                            `db:"password_changed_at"`
	FailedLoginAttempts    int                                   `db:"failed_login_attempts"`
	LockedUntil            *time.Time                            `db:"locked_until"`
	EmailVerified          bool                                  `db:"email_verified"`
	TwoFactorEnabled       bool                                  `db:"two_factor_enabled"`
	TwoFactorSecret        string                                `db:"two_factor_secret"`
	PendingTwoFactorSecret string                                `db:"pending_two_factor_secret"`
	LastTOTPStep           int64                                 `db:"last_totp_step"`
	BackupCodeHashes       pq.StringArray                        `db:"backup_code_hashes"`
	CreatedAt              time.Time                             `db:"created_at"`
	UpdatedAt              time.Time                             `db:"updated_at"`
	Version                int                                   `db:"version"`
	ExpectedVersion        int                                   `db:"expected_version"`
}

func fromSnapshot(s user.Snapshot) userRow {
	roles := make(pq.StringArray, len(s.Roles))
	for i, r := range s.Roles {
		roles[i] = string(r)
	}
	return userRow{
		ID:                     s.ID.String(),
		Email:                  s.Email,
		Username:               s.Username,
		FirstName:              s.FirstName,
		LastName:               s.LastName,
		PasswordHash:           s.PasswordHash,
		Status:                 string(s.Status),
		TenantID:               s.TenantID.String(),
		Provider:               string(s.Provider),
		ExternalID:             s.ExternalID,
		Roles:                  roles,
		CustomRoles:            kernel.JSONColumn[[]authz.Role]{V: nonNil(s.CustomRoles)},
		Permissions:            kernel.JSONColumn[[]authz.Permission]{V: nonNil(s.Permissions)},
		Sessions:               kernel.JSONColumn[[]user.UserSession]{V: nonNil(s.Sessions)},
		LastLoginAt:            s.LastLoginAt,
		PasswordChangedAt:      s.PasswordChangedAt,
		FailedLoginAttempts:    s.FailedLoginAttempts,
		LockedUntil:            s.LockedUntil,
		EmailVerified:          s.EmailVerified,
		TwoFactorEnabled:       s.TwoFactorEnabled,
		TwoFactorSecret:        s.TwoFactorSecret,
		PendingTwoFactorSecret: s.PendingTwoFactorSecret,
		LastTOTPStep:           s.LastTOTPStep,
		BackupCodeHashes:       pq.StringArray(nonNil(s.BackupCodeHashes)),
		CreatedAt:              s.CreatedAt,
		UpdatedAt:              s.UpdatedAt,
		Version:                s.Version,
	}
}

func (row userRow) toSnapshot() user.Snapshot {
	roles := make([]authz.SystemRole, len(row.Roles))
	for i, r := range row.Roles {
		roles[i] = authz.SystemRole(r)
	}
	return user.Snapshot{
		ID:                     kernel.UserID(row.ID),
		Email:                  row.Email,
		Username:               row.Username,
		FirstName:              row.FirstName,
		LastName:               row.LastName,
		PasswordHash:           row.PasswordHash,
		Status:                 user.Status(row.Status),
		TenantID:               kernel.TenantID(row.TenantID),
		Provider:               iam.AuthProvider(row.Provider),
		ExternalID:             row.ExternalID,
		Roles:                  roles,
		CustomRoles:            row.CustomRoles.V,
		Permissions:            row.Permissions.V,
		Sessions:               row.Sessions.V,
		LastLoginAt:            row.LastLoginAt,
		PasswordChangedAt:      row.PasswordChangedAt,
		FailedLoginAttempts:    row.FailedLoginAttempts,
		LockedUntil:            row.LockedUntil,
		EmailVerified:          row.EmailVerified,
		TwoFactorEnabled:       row.TwoFactorEnabled,
		TwoFactorSecret:        row.TwoFactorSecret,
		PendingTwoFactorSecret: row.PendingTwoFactorSecret,
		LastTOTPStep:           row.LastTOTPStep,
		BackupCodeHashes:       []string(row.BackupCodeHashes),
		CreatedAt:              row.CreatedAt,
		UpdatedAt:              row.UpdatedAt,
		Version:                row.Version,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
