package domain

import "time"

// Category tags assigned by classification.
const (
	CategoryWork        = "work"
	CategoryFinance     = "finance"
	CategorySocial      = "social"
	CategoryShopping    = "shopping"
	CategoryNews        = "news"
	CategoryEducation   = "education"
	CategoryTravel      = "travel"
	CategoryHealth      = "health"
	CategorySystem      = "system"
	CategoryAdvertising = "advertising"
	CategorySpam        = "spam"
	CategoryGeneral     = "general"
)

// Classification methods recorded on stored emails.
const (
	MethodRule    = "rule"
	MethodKeyword = "keyword"
	MethodDefault = "default"
)

// Importance bounds. Keyword fallback only assigns 1..3; rules may use the full range.
const (
	ImportanceMin = 1
	ImportanceMax = 5
)

// ForwardHop is one entry of a forward chain, outermost first.
type ForwardHop struct {
	FromName  string `json:"from_name"`
	FromEmail string `json:"from_email"`
	Subject   string `json:"subject,omitempty"`
	Date      string `json:"date,omitempty"`
}

// Attachment describes one stored attachment file.
type Attachment struct {
	OriginalFilename string `json:"original_filename"`
	StoredFilename   string `json:"stored_filename"`
	ContentType      string `json:"content_type"`
	Size             int64  `json:"size"`
	StoredPath       string `json:"stored_path"`
}

// Email is the enriched stored message.
type Email struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`

	// EmailID is the stable "<account_address>:<imap_uid>" key.
	EmailID     string `json:"email_id"`
	ContentHash string `json:"content_hash"`

	Subject        string    `json:"subject"`
	Sender         string    `json:"sender"`
	Recipients     []string  `json:"recipients"`
	Date           time.Time `json:"date"` // always UTC
	AccountAddress string    `json:"account_address"`
	ProviderTag    string    `json:"provider_tag"`

	Body                   string `json:"body"`
	BodyHTML               string `json:"body_html"`
	BodyChineseTranslation string `json:"body_chinese_translation,omitempty"`
	BodyEnglishTranslation string `json:"body_english_translation,omitempty"`

	Summary              string `json:"summary"`
	AISummary            string `json:"ai_summary"`
	Category             string `json:"category"`
	Importance           int    `json:"importance"`
	ClassificationMethod string `json:"classification_method"`
	Processed            bool   `json:"processed"`
	Deleted              bool   `json:"deleted"`

	IsForwarded         bool         `json:"is_forwarded"`
	ForwardLevel        int          `json:"forward_level"`
	OriginalSender      string       `json:"original_sender,omitempty"`
	OriginalSenderEmail string       `json:"original_sender_email,omitempty"`
	ForwardedBy         string       `json:"forwarded_by,omitempty"`
	ForwardedByEmail    string       `json:"forwarded_by_email,omitempty"`
	ForwardChain        []ForwardHop `json:"forward_chain,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`

	// RawHeaders carries the forward-relevant message headers from the
	// fetcher to the forward detector. Never persisted.
	RawHeaders map[string]string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmailRepository is the store contract the pipeline depends on.
type EmailRepository interface {
	// Upsert inserts or overwrites keyed by (user_id, email_id) or
	// (user_id, content_hash). Date is normalized to UTC on store.
	Upsert(email *Email) error

	// GetRecentSaved returns the newest non-deleted emails by date desc.
	GetRecentSaved(userID int64, limit int) ([]*Email, error)

	GetByEmailID(userID int64, emailID string) (*Email, error)

	UpdateSummary(userID int64, emailID, aiSummary string) error
	UpdateClassification(userID int64, emailID, category string, importance int, method string) error

	SoftDelete(userID int64, emailID string) error
	Restore(userID int64, emailID string) error
	Purge(userID int64, emailID string) error
	ClearAll(userID int64) (int64, error)

	SaveTranslation(userID int64, emailID, language, text string) error
	GetTranslation(userID int64, emailID, language string) (string, error)
	ClearTranslations(userID int64, emailID string) error

	// Dedupe history. AllEmailIDs spans the full history including
	// soft-deleted rows; RecentContentHashes is bounded by the window.
	AllEmailIDs(userID int64) (map[string]struct{}, error)
	RecentContentHashes(userID int64, since time.Time) (map[string]struct{}, error)
}
