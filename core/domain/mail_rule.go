package domain

import "time"

// Sender match types for classification rules.
const (
	MatchExact    = "exact"
	MatchContains = "contains"
	MatchDomain   = "domain"
	MatchWildcard = "wildcard"
	MatchRegex    = "regex"
)

// Keyword combination logic.
const (
	LogicAND = "AND"
	LogicOR  = "OR"
)

// ClassificationRule routes matching emails to a category and importance.
// A rule with no sender pattern and no keywords is inert.
type ClassificationRule struct {
	ID               int64      `json:"id"`
	UserID           int64      `json:"user_id"`
	RuleName         string     `json:"rule_name"`
	SenderPattern    string     `json:"sender_pattern,omitempty"`
	SenderMatchType  string     `json:"sender_match_type"`
	SubjectKeywords  []string   `json:"subject_keywords,omitempty"`
	SubjectLogic     string     `json:"subject_logic"`
	BodyKeywords     []string   `json:"body_keywords,omitempty"`
	TargetCategory   string     `json:"target_category"`
	TargetImportance int        `json:"target_importance"`
	Priority         int        `json:"priority"`
	IsActive         bool       `json:"is_active"`
	MatchCount       int64      `json:"match_count"`
	LastMatchedAt    *time.Time `json:"last_matched_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// RuleRepository manages classification rules.
type RuleRepository interface {
	Create(rule *ClassificationRule) error
	Update(rule *ClassificationRule) error
	Delete(id int64, userID int64) error
	GetByID(id int64, userID int64) (*ClassificationRule, error)
	List(userID int64) ([]*ClassificationRule, error)

	// ListActive returns active rules ordered by priority desc, created_at desc.
	ListActive(userID int64) ([]*ClassificationRule, error)

	SetActive(id int64, userID int64, active bool) error
	IncrementMatch(id int64, matchedAt time.Time) error
}

// ManualClassificationRecord logs a user correction; the rule suggestion
// analyzer reads these.
type ManualClassificationRecord struct {
	ID                 int64     `json:"id"`
	UserID             int64     `json:"user_id"`
	EmailID            string    `json:"email_id"`
	OriginalCategory   string    `json:"original_category"`
	NewCategory        string    `json:"new_category"`
	OriginalImportance int       `json:"original_importance"`
	NewImportance      int       `json:"new_importance"`
	Sender             string    `json:"sender"`
	Subject            string    `json:"subject"`
	CreatedAt          time.Time `json:"created_at"`
}

// ReclassificationRepository is append-only.
type ReclassificationRepository interface {
	Record(rec *ManualClassificationRecord) error
	ListByUser(userID int64, limit int) ([]*ManualClassificationRecord, error)
}
