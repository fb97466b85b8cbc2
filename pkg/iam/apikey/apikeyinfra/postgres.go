package apikeyinfra

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/Abraxas-365/nexus-iam/pkg/errx"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/apikey"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/authz"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

// PostgresAPIKeyRepository reads the api_keys table. Rows are written by the
// user repository inside the owner's save transaction through SyncUserKeys.
type PostgresAPIKeyRepository struct {
	db *sqlx.DB
}

func NewPostgresAPIKeyRepository(db *sqlx.DB) *PostgresAPIKeyRepository {
	return &PostgresAPIKeyRepository{db: db}
}

var _ apikey.Repository = (*PostgresAPIKeyRepository)(nil)

const selectColumns = `
	id, user_id, key_hash, key_prefix, name, description, permissions,
	rate_limit, allowed_ips, expires_at, last_used_at, usage_count,
	is_active, created_at, revoked_at`

// FindByHash looks a key up by its SHA-256.
func (r *PostgresAPIKeyRepository) FindByHash(ctx context.Context, keyHash string) (*apikey.APIKey, error) {
	var row apiKeyRow
	query := `SELECT` + selectColumns + ` FROM api_keys WHERE key_hash = $1`
	if err := r.db.GetContext(ctx, &row, query, keyHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apikey.ErrNotFound()
		}
		return nil, errx.Wrap(err, "failed to find API key by hash", errx.TypeInternal)
	}
	key := row.toDomain()
	return &key, nil
}

// UpdateLastUsed bumps usage outside the owner's aggregate version.
func (r *PostgresAPIKeyRepository) UpdateLastUsed(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE api_keys SET last_used_at = $2, usage_count = usage_count + 1 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return errx.Wrap(err, "failed to update last used time for API key", errx.TypeInternal).
			WithDetail("key_id", id)
	}
	return nil
}

// FindByUser loads every key owned by userID.
func FindByUser(ctx context.Context, q sqlx.QueryerContext, userID kernel.UserID) ([]apikey.APIKey, error) {
	var rows []apiKeyRow
	query := `SELECT` + selectColumns + ` FROM api_keys WHERE user_id = $1 ORDER BY created_at`
	if err := sqlx.SelectContext(ctx, q, &rows, query, userID.String()); err != nil {
		return nil, errx.Wrap(err, "failed to find API keys by user", errx.TypeInternal)
	}
	keys := make([]apikey.APIKey, len(rows))
	for i, row := range rows {
		keys[i] = row.toDomain()
	}
	return keys, nil
}

// SyncUserKeys upserts the owner's keys. Usage columns are owned by
// UpdateLastUsed and never overwritten here.
func SyncUserKeys(ctx context.Context, tx *sqlx.Tx, keys []apikey.APIKey) error {
	query := `
		INSERT INTO api_keys (
			id, user_id, key_hash, key_prefix, name, description, permissions,
			rate_limit, allowed_ips, expires_at, usage_count, is_active, created_at, revoked_at
		) VALUES (
			:id, :user_id, :key_hash, :key_prefix, :name, :description, :permissions,
			:rate_limit, :allowed_ips, :expires_at, :usage_count, :is_active, :created_at, :revoked_at
		)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			permissions = EXCLUDED.permissions,
			rate_limit = EXCLUDED.rate_limit,
			allowed_ips = EXCLUDED.allowed_ips,
			expires_at = EXCLUDED.expires_at,
			is_active = EXCLUDED.is_active,
			revoked_at = EXCLUDED.revoked_at`

	for _, k := range keys {
		if _, err := tx.NamedExecContext(ctx, query, toRow(k)); err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return apikey.ErrInvalidParams().WithDetail("reason", "key hash already exists")
			}
			return errx.Wrap(err, "failed to save API key", errx.TypeInternal).
				WithDetail("key_id", k.ID)
		}
	}
	return nil
}

type apiKeyRow struct {
	ID          string                                `db:"id"`
	UserID      string                                `db:"user_id"`
	KeyHash     string                                `db:"key_hash"`
	KeyPrefix   string                                `db:"key_prefix"`
	Name        string                                `db:"name"`
	Description string                                `db:"description"`
	Permissions kernel.JSONColumn[[]authz.Permission] `db:"permissions"`
	RateLimit   sql.NullInt64                         `db:"rate_limit"`
	AllowedIPs  pq.StringArray                        `db:"allowed_ips"`
	ExpiresAt   *time.Time                            `db:"expires_at"`
	LastUsedAt  *time.Time                            `db:"last_used_at"`
	UsageCount  int64                                 `db:"usage_count"`
	IsActive    bool                                  `db:"is_active"`
	CreatedAt   time.Time                             `db:"created_at"`
	RevokedAt   *time.Time                            `db:"revoked_at"`
}

func toRow(k apikey.APIKey) apiKeyRow {
	row := apiKeyRow{
		ID:          k.ID,
		UserID:      k.UserID.String(),
		KeyHash:     k.KeyHash,
		KeyPrefix:   k.KeyPrefix,
		Name:        k.Name,
		Description: k.Description,
		Permissions: kernel.JSONColumn[[]authz.Permission]{V: k.Permissions},
		AllowedIPs:  pq.StringArray(append([]string{}, k.AllowedIPs...)),
		ExpiresAt:   k.ExpiresAt,
		LastUsedAt:  k.LastUsedAt,
		UsageCount:  k.UsageCount,
		IsActive:    k.IsActive,
		CreatedAt:   k.CreatedAt,
		RevokedAt:   k.RevokedAt,
	}
	if k.RateLimit != nil {
		row.RateLimit = sql.NullInt64{Int64: int64(*k.RateLimit), Valid: true}
	}
	return row
}

func (row apiKeyRow) toDomain() apikey.APIKey {
	k := apikey.APIKey{
		ID:          row.ID,
		UserID:      kernel.UserID(row.UserID),
		KeyHash:     row.KeyHash,
		KeyPrefix:   row.KeyPrefix,
		Name:        row.Name,
		Description: row.Description,
		Permissions: row.Permissions.V,
		AllowedIPs:  []string(row.AllowedIPs),
		ExpiresAt:   row.ExpiresAt,
		LastUsedAt:  row.LastUsedAt,
		UsageCount:  row.UsageCount,
		IsActive:    row.IsActive,
		CreatedAt:   row.CreatedAt,
		RevokedAt:   row.RevokedAt,
	}
	if row.RateLimit.Valid {
		limit := int(row.RateLimit.Int64)
		k.RateLimit = &limit
	}
	return k
}
