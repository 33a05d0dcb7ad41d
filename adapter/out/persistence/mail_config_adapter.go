package persistence

import (
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"maildigest/core/domain"
	"maildigest/pkg/apperr"
)

// UserConfigAdapter implements domain.UserConfigRepository using PostgreSQL.
// Rows are plain (user_id, key, value) strings; coercion happens in the
// domain layer.
type UserConfigAdapter struct {
	db     *sqlx.DB
	events domain.EventPublisher
}

// NewUserConfigAdapter creates a new user config adapter.
func NewUserConfigAdapter(db *sqlx.DB, events domain.EventPublisher) *UserConfigAdapter {
	if events == nil {
		events = domain.NopPublisher{}
	}
	return &UserConfigAdapter{db: db, events: events}
}

type configRow struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// GetAll returns every config row of the user.
func (a *UserConfigAdapter) GetAll(userID int64) (map[string]string, error) {
	var rows []configRow
	query := `SELECT key, value FROM user_configs WHERE user_id = $1`
	if err := a.db.Select(&rows, query, userID); err != nil {
		return nil, apperr.StoreFailed("user config load", err)
	}

	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// Set upserts one key and publishes a config_change event so schedules
// get rebuilt.
func (a *UserConfigAdapter) Set(userID int64, key, value string) error {
	query := `
		INSERT INTO user_configs (user_id, key, value, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := a.db.Exec(query, userID, key, value); err != nil {
		return apperr.StoreFailed("user config set", err)
	}

	a.events.Publish(domain.StoreEvent{UserID: userID, Scope: domain.ScopeConfigChange})
	return nil
}

// ListScheduledUsers returns every user that owns at least one active
// mail account. These are the users the scheduler registers.
func (a *UserConfigAdapter) ListScheduledUsers() ([]int64, error) {
	var ids []int64
	query := `SELECT DISTINCT user_id FROM email_accounts WHERE active = true ORDER BY user_id`
	if err := a.db.Select(&ids, query); err != nil {
		return nil, apperr.StoreFailed("scheduled user list", err)
	}
	return ids, nil
}

var _ domain.UserConfigRepository = (*UserConfigAdapter)(nil)

// SystemConfigAdapter implements domain.SystemConfigRepository.
type SystemConfigAdapter struct {
	db *sqlx.DB
}

// NewSystemConfigAdapter creates a new system config adapter.
func NewSystemConfigAdapter(db *sqlx.DB) *SystemConfigAdapter {
	return &SystemConfigAdapter{db: db}
}

func (a *SystemConfigAdapter) Get(key string) (string, error) {
	var value string
	if err := a.db.Get(&value, `SELECT value FROM system_configs WHERE key = $1`, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperr.NotFound("system config " + key)
		}
		return "", apperr.StoreFailed("system config get", err)
	}
	return value, nil
}

func (a *SystemConfigAdapter) Set(key, value string) error {
	query := `
		INSERT INTO system_configs (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := a.db.Exec(query, key, value); err != nil {
		return apperr.StoreFailed("system config set", err)
	}
	return nil
}

var _ domain.SystemConfigRepository = (*SystemConfigAdapter)(nil)
