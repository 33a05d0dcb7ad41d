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

// DigestAdapter implements domain.DigestRepository using PostgreSQL.
type DigestAdapter struct {
	db     *sqlx.DB
	events domain.EventPublisher
}

// NewDigestAdapter creates a new digest adapter.
func NewDigestAdapter(db *sqlx.DB, events domain.EventPublisher) *DigestAdapter {
	if events == nil {
		events = domain.NopPublisher{}
	}
	return &DigestAdapter{db: db, events: events}
}

// digestRow represents the database row. Content is a JSON column.
type digestRow struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"`
	Date       time.Time `db:"date"`
	Title      string    `db:"title"`
	Content    []byte    `db:"content"`
	EmailCount int       `db:"email_count"`
	Summary    string    `db:"summary"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r *digestRow) toDomain() *domain.Digest {
	d := &domain.Digest{
		ID:         r.ID,
		UserID:     r.UserID,
		Date:       r.Date.UTC(),
		Title:      r.Title,
		EmailCount: r.EmailCount,
		Summary:    r.Summary,
		CreatedAt:  r.CreatedAt,
	}
	if len(r.Content) > 0 {
		json.Unmarshal(r.Content, &d.Content)
	}
	return d
}

// Save inserts a digest and publishes the new_digest event.
func (a *DigestAdapter) Save(digest *domain.Digest) error {
	content, err := json.Marshal(digest.Content)
	if err != nil {
		return apperr.StoreFailed("digest content encode", err)
	}

	query := `
		INSERT INTO digests (user_id, date, title, content, email_count, summary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`
	err = a.db.QueryRow(
		query,
		digest.UserID, digest.Date.UTC(), digest.Title, content, digest.EmailCount, digest.Summary,
	).Scan(&digest.ID, &digest.CreatedAt)
	if err != nil {
		return apperr.StoreFailed("digest save", err)
	}

	a.events.Publish(domain.StoreEvent{UserID: digest.UserID, Scope: domain.ScopeNewDigest})
	return nil
}

func (a *DigestAdapter) GetByID(id int64, userID int64) (*domain.Digest, error) {
	var row digestRow
	query := `SELECT * FROM digests WHERE id = $1 AND user_id = $2`
	if err := a.db.Get(&row, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("digest")
		}
		return nil, apperr.StoreFailed("digest get", err)
	}
	return row.toDomain(), nil
}

// List returns digests newest first plus the total count for paging.
func (a *DigestAdapter) List(userID int64, limit, offset int) ([]*domain.Digest, int, error) {
	var total int
	if err := a.db.Get(&total, `SELECT COUNT(*) FROM digests WHERE user_id = $1`, userID); err != nil {
		return nil, 0, apperr.StoreFailed("digest count", err)
	}

	query := `SELECT * FROM digests WHERE user_id = $1 ORDER BY date DESC LIMIT $2 OFFSET $3`

	var rows []digestRow
	if err := a.db.Select(&rows, query, userID, limit, offset); err != nil {
		return nil, 0, apperr.StoreFailed("digest list", err)
	}

	digests := make([]*domain.Digest, 0, len(rows))
	for i := range rows {
		digests = append(digests, rows[i].toDomain())
	}
	return digests, total, nil
}

var _ domain.DigestRepository = (*DigestAdapter)(nil)
