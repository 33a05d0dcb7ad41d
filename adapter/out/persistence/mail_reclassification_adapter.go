package persistence

import (
	"time"

	"github.com/jmoiron/sqlx"

	"maildigest/core/domain"
	"maildigest/pkg/apperr"
)

// ReclassificationAdapter implements domain.ReclassificationRepository.
// The table is append-only; the rule suggestion analyzer reads it.
type ReclassificationAdapter struct {
	db     *sqlx.DB
	events domain.EventPublisher
}

// NewReclassificationAdapter creates a new reclassification adapter.
func NewReclassificationAdapter(db *sqlx.DB, events domain.EventPublisher) *ReclassificationAdapter {
	if events == nil {
		events = domain.NopPublisher{}
	}
	return &ReclassificationAdapter{db: db, events: events}
}

type reclassificationRow struct {
	ID                 int64     `db:"id"`
	UserID             int64     `db:"user_id"`
	EmailID            string    `db:"email_id"`
	OriginalCategory   string    `db:"original_category"`
	NewCategory        string    `db:"new_category"`
	OriginalImportance int       `db:"original_importance"`
	NewImportance      int       `db:"new_importance"`
	Sender             string    `db:"sender"`
	Subject            string    `db:"subject"`
	CreatedAt          time.Time `db:"created_at"`
}

func (r *reclassificationRow) toDomain() *domain.ManualClassificationRecord {
	return &domain.ManualClassificationRecord{
		ID:                 r.ID,
		UserID:             r.UserID,
		EmailID:            r.EmailID,
		OriginalCategory:   r.OriginalCategory,
		NewCategory:        r.NewCategory,
		OriginalImportance: r.OriginalImportance,
		NewImportance:      r.NewImportance,
		Sender:             r.Sender,
		Subject:            r.Subject,
		CreatedAt:          r.CreatedAt,
	}
}

// Record appends one manual correction.
func (a *ReclassificationAdapter) Record(rec *domain.ManualClassificationRecord) error {
	query := `
		INSERT INTO manual_classifications (
			user_id, email_id, original_category, new_category,
			original_importance, new_importance, sender, subject, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING id, created_at
	`
	err := a.db.QueryRow(
		query,
		rec.UserID, rec.EmailID, rec.OriginalCategory, rec.NewCategory,
		rec.OriginalImportance, rec.NewImportance, rec.Sender, rec.Subject,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return apperr.StoreFailed("reclassification record", err)
	}

	a.events.Publish(domain.StoreEvent{UserID: rec.UserID, Scope: domain.ScopeConfigChange})
	return nil
}

func (a *ReclassificationAdapter) ListByUser(userID int64, limit int) ([]*domain.ManualClassificationRecord, error) {
	query := `SELECT * FROM manual_classifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`

	var rows []reclassificationRow
	if err := a.db.Select(&rows, query, userID, limit); err != nil {
		return nil, apperr.StoreFailed("reclassification list", err)
	}

	records := make([]*domain.ManualClassificationRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toDomain())
	}
	return records, nil
}

var _ domain.ReclassificationRepository = (*ReclassificationAdapter)(nil)
