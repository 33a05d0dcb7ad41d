package domain

import "time"

// EmailAccount is one IMAP mailbox owned by a user.
// CredentialSecret is an opaque app password, passed to IMAP login untouched.
type EmailAccount struct {
	ID               int64      `json:"id"`
	UserID           int64      `json:"user_id"`
	Address          string     `json:"address"`
	ProviderTag      string     `json:"provider_tag"`
	CredentialSecret string     `json:"-"`
	Active           bool       `json:"active"`
	LastCheck        *time.Time `json:"last_check,omitempty"`
	TotalEmails      int64      `json:"total_emails"`
	CreatedAt        time.Time  `json:"created_at"`
}

// AccountRepository manages email accounts.
type AccountRepository interface {
	Create(account *EmailAccount) error
	GetByID(id int64) (*EmailAccount, error)
	ListActive(userID int64) ([]*EmailAccount, error)
	List(userID int64) ([]*EmailAccount, error)
	SetActive(id int64, active bool) error
	Delete(id int64) error

	// UpdateStats bumps last_check and adds saved to total_emails.
	UpdateStats(id int64, checkedAt time.Time, saved int) error
}
