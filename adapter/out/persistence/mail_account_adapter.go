package persistence

import (
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"maildigest/core/domain"
	"maildigest/pkg/apperr"
)

// AccountAdapter implements domain.AccountRepository using PostgreSQL.
type AccountAdapter struct {
	db *sqlx.DB
}

// NewAccountAdapter creates a new account adapter.
func NewAccountAdapter(db *sqlx.DB) *AccountAdapter {
	return &AccountAdapter{db: db}
}

// accountRow represents the database row.
type accountRow struct {
	ID               int64        `db:"id"`
	UserID           int64        `db:"user_id"`
	Address          string       `db:"address"`
	ProviderTag      string       `db:"provider_tag"`
	CredentialSecret string       `db:"credential_secret"`
	Active           bool         `db:"active"`
	LastCheck        sql.NullTime `db:"last_check"`
	TotalEmails      int64        `db:"total_emails"`
	CreatedAt        time.Time    `db:"created_at"`
}

func (r *accountRow) toDomain() *domain.EmailAccount {
	a := &domain.EmailAccount{
		ID:               r.ID,
		UserID:           r.UserID,
		Address:          r.Address,
		ProviderTag:      r.ProviderTag,
		CredentialSecret: r.CredentialSecret,
		Active:           r.Active,
		TotalEmails:      r.TotalEmails,
		CreatedAt:        r.CreatedAt,
	}
	if r.LastCheck.Valid {
		a.LastCheck = &r.LastCheck.Time
	}
	return a
}

// Create inserts a new account. (user_id, address) is unique.
func (a *AccountAdapter) Create(account *domain.EmailAccount) error {
	query := `
		INSERT INTO email_accounts (user_id, address, provider_tag, credential_secret, active, total_emails, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, NOW())
		RETURNING id, created_at
	`
	err := a.db.QueryRow(
		query,
		account.UserID, account.Address, account.ProviderTag,
		account.CredentialSecret, account.Active,
	).Scan(&account.ID, &account.CreatedAt)
	if err != nil {
		return apperr.StoreFailed("account create", err)
	}
	return nil
}

func (a *AccountAdapter) GetByID(id int64) (*domain.EmailAccount, error) {
	var row accountRow
	if err := a.db.Get(&row, `SELECT * FROM email_accounts WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("email account")
		}
		return nil, apperr.StoreFailed("account get", err)
	}
	return row.toDomain(), nil
}

// ListActive returns the accounts the pipeline fetches from.
func (a *AccountAdapter) ListActive(userID int64) ([]*domain.EmailAccount, error) {
	return a.list(userID, true)
}

func (a *AccountAdapter) List(userID int64) ([]*domain.EmailAccount, error) {
	return a.list(userID, false)
}

func (a *AccountAdapter) list(userID int64, activeOnly bool) ([]*domain.EmailAccount, error) {
	query := `SELECT * FROM email_accounts WHERE user_id = $1`
	if activeOnly {
		query += ` AND active = true`
	}
	query += ` ORDER BY created_at`

	var rows []accountRow
	if err := a.db.Select(&rows, query, userID); err != nil {
		return nil, apperr.StoreFailed("account list", err)
	}

	accounts := make([]*domain.EmailAccount, 0, len(rows))
	for i := range rows {
		accounts = append(accounts, rows[i].toDomain())
	}
	return accounts, nil
}

func (a *AccountAdapter) SetActive(id int64, active bool) error {
	res, err := a.db.Exec(`UPDATE email_accounts SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return apperr.StoreFailed("account set active", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("email account")
	}
	return nil
}

func (a *AccountAdapter) Delete(id int64) error {
	res, err := a.db.Exec(`DELETE FROM email_accounts WHERE id = $1`, id)
	if err != nil {
		return apperr.StoreFailed("account delete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("email account")
	}
	return nil
}

// UpdateStats bumps last_check and adds saved to total_emails.
func (a *AccountAdapter) UpdateStats(id int64, checkedAt time.Time, saved int) error {
	query := `
		UPDATE email_accounts
		SET last_check = $2, total_emails = total_emails + $3
		WHERE id = $1
	`
	if _, err := a.db.Exec(query, id, checkedAt.UTC(), saved); err != nil {
		return apperr.StoreFailed("account stats update", err)
	}
	return nil
}

var _ domain.AccountRepository = (*AccountAdapter)(nil)
