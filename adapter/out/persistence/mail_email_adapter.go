// Package persistence implements the domain repositories on PostgreSQL
// via sqlx. Adapters emit store events after successful mutations; the
// cache invalidator subscribes to those.
package persistence

import (
	"database/sql"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"maildigest/core/domain"
	"maildigest/pkg/apperr"
)

// EmailAdapter implements domain.EmailRepository using PostgreSQL.
type EmailAdapter struct {
	db     *sqlx.DB
	events domain.EventPublisher
}

// NewEmailAdapter creates a new email adapter.
func NewEmailAdapter(db *sqlx.DB, events domain.EventPublisher) *EmailAdapter {
	if events == nil {
		events = domain.NopPublisher{}
	}
	return &EmailAdapter{db: db, events: events}
}

// emailRow represents the database row.
type emailRow struct {
	ID                     int64          `db:"id"`
	UserID                 int64          `db:"user_id"`
	EmailID                string         `db:"email_id"`
	ContentHash            string         `db:"content_hash"`
	Subject                string         `db:"subject"`
	Sender                 string         `db:"sender"`
	Recipients             []byte         `db:"recipients"`
	Date                   time.Time      `db:"date"`
	AccountAddress         string         `db:"account_address"`
	ProviderTag            string         `db:"provider_tag"`
	Body                   string         `db:"body"`
	BodyHTML               string         `db:"body_html"`
	BodyChineseTranslation sql.NullString `db:"body_chinese_translation"`
	BodyEnglishTranslation sql.NullString `db:"body_english_translation"`
	Summary                string         `db:"summary"`
	AISummary              string         `db:"ai_summary"`
	Category               string         `db:"category"`
	Importance             int            `db:"importance"`
	ClassificationMethod   string         `db:"classification_method"`
	Processed              bool           `db:"processed"`
	Deleted                bool           `db:"deleted"`
	IsForwarded            bool           `db:"is_forwarded"`
	ForwardLevel           int            `db:"forward_level"`
	OriginalSender         sql.NullString `db:"original_sender"`
	OriginalSenderEmail    sql.NullString `db:"original_sender_email"`
	ForwardedBy            sql.NullString `db:"forwarded_by"`
	ForwardedByEmail       sql.NullString `db:"forwarded_by_email"`
	ForwardChain           []byte         `db:"forward_chain"`
	Attachments            []byte         `db:"attachments"`
	CreatedAt              time.Time      `db:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at"`
}

func (r *emailRow) toDomain() *domain.Email {
	e := &domain.Email{
		ID:                   r.ID,
		UserID:               r.UserID,
		EmailID:              r.EmailID,
		ContentHash:          r.ContentHash,
		Subject:              r.Subject,
		Sender:               r.Sender,
		Date:                 r.Date.UTC(),
		AccountAddress:       r.AccountAddress,
		ProviderTag:          r.ProviderTag,
		Body:                 r.Body,
		BodyHTML:             r.BodyHTML,
		Summary:              r.Summary,
		AISummary:            r.AISummary,
		Category:             r.Category,
		Importance:           r.Importance,
		ClassificationMethod: r.ClassificationMethod,
		Processed:            r.Processed,
		Deleted:              r.Deleted,
		IsForwarded:          r.IsForwarded,
		ForwardLevel:         r.ForwardLevel,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}

	if r.BodyChineseTranslation.Valid {
		e.BodyChineseTranslation = r.BodyChineseTranslation.String
	}
	if r.BodyEnglishTranslation.Valid {
		e.BodyEnglishTranslation = r.BodyEnglishTranslation.String
	}
	if r.OriginalSender.Valid {
		e.OriginalSender = r.OriginalSender.String
	}
	if r.OriginalSenderEmail.Valid {
		e.OriginalSenderEmail = r.OriginalSenderEmail.String
	}
	if r.ForwardedBy.Valid {
		e.ForwardedBy = r.ForwardedBy.String
	}
	if r.ForwardedByEmail.Valid {
		e.ForwardedByEmail = r.ForwardedByEmail.String
	}
	if len(r.Recipients) > 0 {
		json.Unmarshal(r.Recipients, &e.Recipients)
	}
	if len(r.ForwardChain) > 0 {
		json.Unmarshal(r.ForwardChain, &e.ForwardChain)
	}
	if len(r.Attachments) > 0 {
		json.Unmarshal(r.Attachments, &e.Attachments)
	}

	return e
}

// Upsert inserts or overwrites a row. The statement resolves the
// (user_id, email_id) key in-place; a unique violation can then only come
// from the per-user content_hash index, which means the same content came
// back under a new UID, and the stored row is updated instead.
func (a *EmailAdapter) Upsert(email *domain.Email) error {
	recipients, _ := json.Marshal(email.Recipients)
	forwardChain, _ := json.Marshal(email.ForwardChain)
	attachments, _ := json.Marshal(email.Attachments)

	query := `
		INSERT INTO emails (
			user_id, email_id, content_hash, subject, sender, recipients, date,
			account_address, provider_tag, body, body_html, summary, ai_summary,
			category, importance, classification_method, processed, deleted,
			is_forwarded, forward_level, original_sender, original_sender_email,
			forwarded_by, forwarded_by_email, forward_chain, attachments,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, false, $18, $19, $20, $21, $22, $23, $24, $25, NOW(), NOW())
		ON CONFLICT (user_id, email_id) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			subject = EXCLUDED.subject,
			sender = EXCLUDED.sender,
			recipients = EXCLUDED.recipients,
			date = EXCLUDED.date,
			body = EXCLUDED.body,
			body_html = EXCLUDED.body_html,
			summary = EXCLUDED.summary,
			ai_summary = EXCLUDED.ai_summary,
			category = EXCLUDED.category,
			importance = EXCLUDED.importance,
			classification_method = EXCLUDED.classification_method,
			processed = EXCLUDED.processed,
			is_forwarded = EXCLUDED.is_forwarded,
			forward_level = EXCLUDED.forward_level,
			original_sender = EXCLUDED.original_sender,
			original_sender_email = EXCLUDED.original_sender_email,
			forwarded_by = EXCLUDED.forwarded_by,
			forwarded_by_email = EXCLUDED.forwarded_by_email,
			forward_chain = EXCLUDED.forward_chain,
			attachments = EXCLUDED.attachments,
			updated_at = NOW()
		RETURNING id
	`

	err := a.db.QueryRow(
		query,
		email.UserID, email.EmailID, email.ContentHash, email.Subject, email.Sender,
		recipients, email.Date.UTC(), email.AccountAddress, email.ProviderTag,
		email.Body, email.BodyHTML, email.Summary, email.AISummary,
		email.Category, email.Importance, email.ClassificationMethod, email.Processed,
		email.IsForwarded, email.ForwardLevel,
		nullString(email.OriginalSender), nullString(email.OriginalSenderEmail),
		nullString(email.ForwardedBy), nullString(email.ForwardedByEmail),
		forwardChain, attachments,
	).Scan(&email.ID)
	if isUniqueViolation(err) {
		err = a.updateByContentHash(email, recipients, forwardChain, attachments)
	}
	if err != nil {
		return apperr.StoreFailed("email upsert", err)
	}

	a.events.Publish(domain.StoreEvent{UserID: email.UserID, Scope: domain.ScopeNewEmail})
	return nil
}

// updateByContentHash replaces the row holding this content under an older
// UID. deleted is left as stored, matching the in-statement conflict path.
func (a *EmailAdapter) updateByContentHash(email *domain.Email, recipients, forwardChain, attachments []byte) error {
	query := `
		UPDATE emails SET
			email_id = $3,
			subject = $4,
			sender = $5,
			recipients = $6,
			date = $7,
			account_address = $8,
			provider_tag = $9,
			body = $10,
			body_html = $11,
			summary = $12,
			ai_summary = $13,
			category = $14,
			importance = $15,
			classification_method = $16,
			processed = $17,
			is_forwarded = $18,
			forward_level = $19,
			original_sender = $20,
			original_sender_email = $21,
			forwarded_by = $22,
			forwarded_by_email = $23,
			forward_chain = $24,
			attachments = $25,
			updated_at = NOW()
		WHERE user_id = $1 AND content_hash = $2
		RETURNING id
	`

	return a.db.QueryRow(
		query,
		email.UserID, email.ContentHash, email.EmailID, email.Subject, email.Sender,
		recipients, email.Date.UTC(), email.AccountAddress, email.ProviderTag,
		email.Body, email.BodyHTML, email.Summary, email.AISummary,
		email.Category, email.Importance, email.ClassificationMethod, email.Processed,
		email.IsForwarded, email.ForwardLevel,
		nullString(email.OriginalSender), nullString(email.OriginalSenderEmail),
		nullString(email.ForwardedBy), nullString(email.ForwardedByEmail),
		forwardChain, attachments,
	).Scan(&email.ID)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// GetRecentSaved returns the newest non-deleted emails by date desc.
func (a *EmailAdapter) GetRecentSaved(userID int64, limit int) ([]*domain.Email, error) {
	query := `
		SELECT * FROM emails
		WHERE user_id = $1 AND deleted = false
		ORDER BY date DESC
		LIMIT $2
	`

	var rows []emailRow
	if err := a.db.Select(&rows, query, userID, limit); err != nil {
		return nil, apperr.StoreFailed("email list", err)
	}

	emails := make([]*domain.Email, 0, len(rows))
	for i := range rows {
		emails = append(emails, rows[i].toDomain())
	}
	return emails, nil
}

// GetByEmailID retrieves one email including soft-deleted rows.
func (a *EmailAdapter) GetByEmailID(userID int64, emailID string) (*domain.Email, error) {
	query := `SELECT * FROM emails WHERE user_id = $1 AND email_id = $2`

	var row emailRow
	if err := a.db.Get(&row, query, userID, emailID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("email "+emailID)
		}
		return nil, apperr.StoreFailed("email get", err)
	}
	return row.toDomain(), nil
}

func (a *EmailAdapter) UpdateSummary(userID int64, emailID, aiSummary string) error {
	query := `
		UPDATE emails SET ai_summary = $3, processed = true, updated_at = NOW()
		WHERE user_id = $1 AND email_id = $2
	`
	if _, err := a.db.Exec(query, userID, emailID, aiSummary); err != nil {
		return apperr.StoreFailed("email summary update", err)
	}
	return nil
}

func (a *EmailAdapter) UpdateClassification(userID int64, emailID, category string, importance int, method string) error {
	query := `
		UPDATE emails SET category = $3, importance = $4, classification_method = $5, updated_at = NOW()
		WHERE user_id = $1 AND email_id = $2
	`
	if _, err := a.db.Exec(query, userID, emailID, category, importance, method); err != nil {
		return apperr.StoreFailed("email classification update", err)
	}
	return nil
}

// SoftDelete hides a row from every listing except the deleted view.
func (a *EmailAdapter) SoftDelete(userID int64, emailID string) error {
	return a.setDeleted(userID, emailID, true, domain.ScopeDeleteEmail)
}

// Restore brings a soft-deleted row back.
func (a *EmailAdapter) Restore(userID int64, emailID string) error {
	return a.setDeleted(userID, emailID, false, domain.ScopeRestoreEmail)
}

func (a *EmailAdapter) setDeleted(userID int64, emailID string, deleted bool, scope domain.StoreEventScope) error {
	query := `UPDATE emails SET deleted = $3, updated_at = NOW() WHERE user_id = $1 AND email_id = $2`

	res, err := a.db.Exec(query, userID, emailID, deleted)
	if err != nil {
		return apperr.StoreFailed("email delete flag", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("email "+emailID)
	}

	a.events.Publish(domain.StoreEvent{UserID: userID, Scope: scope})
	return nil
}

// Purge removes the row permanently.
func (a *EmailAdapter) Purge(userID int64, emailID string) error {
	res, err := a.db.Exec(`DELETE FROM emails WHERE user_id = $1 AND email_id = $2`, userID, emailID)
	if err != nil {
		return apperr.StoreFailed("email purge", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("email "+emailID)
	}

	a.events.Publish(domain.StoreEvent{UserID: userID, Scope: domain.ScopePurgeEmail})
	return nil
}

// ClearAll removes every email of the user and returns the count.
func (a *EmailAdapter) ClearAll(userID int64) (int64, error) {
	res, err := a.db.Exec(`DELETE FROM emails WHERE user_id = $1`, userID)
	if err != nil {
		return 0, apperr.StoreFailed("email clear", err)
	}
	n, _ := res.RowsAffected()

	a.events.Publish(domain.StoreEvent{UserID: userID, Scope: domain.ScopeClearAllEmail})
	return n, nil
}

// translationColumns maps a language code to its column.
var translationColumns = map[string]string{
	"zh": "body_chinese_translation",
	"en": "body_english_translation",
}

func (a *EmailAdapter) SaveTranslation(userID int64, emailID, language, text string) error {
	col, ok := translationColumns[language]
	if !ok {
		return apperr.InvalidInput("language", "unsupported translation language: "+language)
	}
	query := `UPDATE emails SET ` + col + ` = $3, updated_at = NOW() WHERE user_id = $1 AND email_id = $2`
	if _, err := a.db.Exec(query, userID, emailID, text); err != nil {
		return apperr.StoreFailed("translation save", err)
	}
	return nil
}

func (a *EmailAdapter) GetTranslation(userID int64, emailID, language string) (string, error) {
	col, ok := translationColumns[language]
	if !ok {
		return "", apperr.InvalidInput("language", "unsupported translation language: "+language)
	}
	query := `SELECT COALESCE(` + col + `, '') FROM emails WHERE user_id = $1 AND email_id = $2`

	var text string
	if err := a.db.Get(&text, query, userID, emailID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", apperr.NotFound("email "+emailID)
		}
		return "", apperr.StoreFailed("translation get", err)
	}
	return text, nil
}

func (a *EmailAdapter) ClearTranslations(userID int64, emailID string) error {
	query := `
		UPDATE emails SET body_chinese_translation = NULL, body_english_translation = NULL, updated_at = NOW()
		WHERE user_id = $1 AND email_id = $2
	`
	if _, err := a.db.Exec(query, userID, emailID); err != nil {
		return apperr.StoreFailed("translation clear", err)
	}
	return nil
}

// AllEmailIDs spans the full history, soft-deleted rows included, so a
// deleted message never comes back on the next fetch.
func (a *EmailAdapter) AllEmailIDs(userID int64) (map[string]struct{}, error) {
	var ids []string
	if err := a.db.Select(&ids, `SELECT email_id FROM emails WHERE user_id = $1`, userID); err != nil {
		return nil, apperr.StoreFailed("email id history", err)
	}

	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// RecentContentHashes is bounded by the dedupe window.
func (a *EmailAdapter) RecentContentHashes(userID int64, since time.Time) (map[string]struct{}, error) {
	query := `SELECT content_hash FROM emails WHERE user_id = $1 AND date >= $2 AND content_hash <> ''`

	var hashes []string
	if err := a.db.Select(&hashes, query, userID, since.UTC()); err != nil {
		return nil, apperr.StoreFailed("content hash history", err)
	}

	out := make(map[string]struct{}, len(hashes))
	for _, h := range hashes {
		out[h] = struct{}{}
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ domain.EmailRepository = (*EmailAdapter)(nil)
