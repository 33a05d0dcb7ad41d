package persistence

import (
	"database/sql"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"maildigest/core/domain"
	"maildigest/pkg/apperr"
)

// RuleAdapter implements domain.RuleRepository using PostgreSQL.
type RuleAdapter struct {
	db *sqlx.DB
}

// NewRuleAdapter creates a new rule adapter.
func NewRuleAdapter(db *sqlx.DB) *RuleAdapter {
	return &RuleAdapter{db: db}
}

// ruleRow represents the database row. Keyword lists are JSON columns.
type ruleRow struct {
	ID               int64          `db:"id"`
	UserID           int64          `db:"user_id"`
	RuleName         string         `db:"rule_name"`
	SenderPattern    sql.NullString `db:"sender_pattern"`
	SenderMatchType  string         `db:"sender_match_type"`
	SubjectKeywords  []byte         `db:"subject_keywords"`
	SubjectLogic     string         `db:"subject_logic"`
	BodyKeywords     []byte         `db:"body_keywords"`
	TargetCategory   string         `db:"target_category"`
	TargetImportance int            `db:"target_importance"`
	Priority         int            `db:"priority"`
	IsActive         bool           `db:"is_active"`
	MatchCount       int64          `db:"match_count"`
	LastMatchedAt    sql.NullTime   `db:"last_matched_at"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r *ruleRow) toDomain() *domain.ClassificationRule {
	rule := &domain.ClassificationRule{
		ID:               r.ID,
		UserID:           r.UserID,
		RuleName:         r.RuleName,
		SenderMatchType:  r.SenderMatchType,
		SubjectLogic:     r.SubjectLogic,
		TargetCategory:   r.TargetCategory,
		TargetImportance: r.TargetImportance,
		Priority:         r.Priority,
		IsActive:         r.IsActive,
		MatchCount:       r.MatchCount,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.SenderPattern.Valid {
		rule.SenderPattern = r.SenderPattern.String
	}
	if r.LastMatchedAt.Valid {
		rule.LastMatchedAt = &r.LastMatchedAt.Time
	}
	if len(r.SubjectKeywords) > 0 {
		json.Unmarshal(r.SubjectKeywords, &rule.SubjectKeywords)
	}
	if len(r.BodyKeywords) > 0 {
		json.Unmarshal(r.BodyKeywords, &rule.BodyKeywords)
	}
	return rule
}

// Create inserts a new rule.
func (a *RuleAdapter) Create(rule *domain.ClassificationRule) error {
	subjectKeywords, _ := json.Marshal(rule.SubjectKeywords)
	bodyKeywords, _ := json.Marshal(rule.BodyKeywords)

	query := `
		INSERT INTO classification_rules (
			user_id, rule_name, sender_pattern, sender_match_type,
			subject_keywords, subject_logic, body_keywords,
			target_category, target_importance, priority, is_active,
			match_count, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := a.db.QueryRow(
		query,
		rule.UserID, rule.RuleName, nullString(rule.SenderPattern), rule.SenderMatchType,
		subjectKeywords, rule.SubjectLogic, bodyKeywords,
		rule.TargetCategory, rule.TargetImportance, rule.Priority, rule.IsActive,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return apperr.StoreFailed("rule create", err)
	}
	return nil
}

// Update overwrites the mutable fields of a rule.
func (a *RuleAdapter) Update(rule *domain.ClassificationRule) error {
	subjectKeywords, _ := json.Marshal(rule.SubjectKeywords)
	bodyKeywords, _ := json.Marshal(rule.BodyKeywords)

	query := `
		UPDATE classification_rules SET
			rule_name = $3, sender_pattern = $4, sender_match_type = $5,
			subject_keywords = $6, subject_logic = $7, body_keywords = $8,
			target_category = $9, target_importance = $10, priority = $11,
			is_active = $12, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
	`
	res, err := a.db.Exec(
		query,
		rule.ID, rule.UserID, rule.RuleName, nullString(rule.SenderPattern), rule.SenderMatchType,
		subjectKeywords, rule.SubjectLogic, bodyKeywords,
		rule.TargetCategory, rule.TargetImportance, rule.Priority, rule.IsActive,
	)
	if err != nil {
		return apperr.StoreFailed("rule update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("classification rule")
	}
	return nil
}

func (a *RuleAdapter) Delete(id int64, userID int64) error {
	res, err := a.db.Exec(`DELETE FROM classification_rules WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return apperr.StoreFailed("rule delete", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("classification rule")
	}
	return nil
}

func (a *RuleAdapter) GetByID(id int64, userID int64) (*domain.ClassificationRule, error) {
	var row ruleRow
	query := `SELECT * FROM classification_rules WHERE id = $1 AND user_id = $2`
	if err := a.db.Get(&row, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("classification rule")
		}
		return nil, apperr.StoreFailed("rule get", err)
	}
	return row.toDomain(), nil
}

func (a *RuleAdapter) List(userID int64) ([]*domain.ClassificationRule, error) {
	return a.list(`SELECT * FROM classification_rules WHERE user_id = $1 ORDER BY priority DESC, created_at DESC`, userID)
}

// ListActive returns active rules ordered by priority desc, created_at desc.
func (a *RuleAdapter) ListActive(userID int64) ([]*domain.ClassificationRule, error) {
	return a.list(`SELECT * FROM classification_rules WHERE user_id = $1 AND is_active = true ORDER BY priority DESC, created_at DESC`, userID)
}

func (a *RuleAdapter) list(query string, userID int64) ([]*domain.ClassificationRule, error) {
	var rows []ruleRow
	if err := a.db.Select(&rows, query, userID); err != nil {
		return nil, apperr.StoreFailed("rule list", err)
	}

	rules := make([]*domain.ClassificationRule, 0, len(rows))
	for i := range rows {
		rules = append(rules, rows[i].toDomain())
	}
	return rules, nil
}

func (a *RuleAdapter) SetActive(id int64, userID int64, active bool) error {
	query := `UPDATE classification_rules SET is_active = $3, updated_at = NOW() WHERE id = $1 AND user_id = $2`
	res, err := a.db.Exec(query, id, userID, active)
	if err != nil {
		return apperr.StoreFailed("rule set active", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("classification rule")
	}
	return nil
}

// IncrementMatch bumps match_count and last_matched_at after a hit.
func (a *RuleAdapter) IncrementMatch(id int64, matchedAt time.Time) error {
	query := `UPDATE classification_rules SET match_count = match_count + 1, last_matched_at = $2 WHERE id = $1`
	if _, err := a.db.Exec(query, id, matchedAt.UTC()); err != nil {
		return apperr.StoreFailed("rule match increment", err)
	}
	return nil
}

var _ domain.RuleRepository = (*RuleAdapter)(nil)
