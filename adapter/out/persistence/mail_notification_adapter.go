package persistence

import (
	"time"

	"github.com/jmoiron/sqlx"

	"maildigest/core/domain"
	"maildigest/pkg/apperr"
)

// NotificationAdapter implements domain.NotificationRepository using PostgreSQL.
type NotificationAdapter struct {
	db *sqlx.DB
}

// NewNotificationAdapter creates a new notification adapter.
func NewNotificationAdapter(db *sqlx.DB) *NotificationAdapter {
	return &NotificationAdapter{db: db}
}

// notificationRow represents the database row.
type notificationRow struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	Type      string    `db:"type"`
	Title     string    `db:"title"`
	Message   string    `db:"message"`
	IsRead    bool      `db:"is_read"`
	CreatedAt time.Time `db:"created_at"`
}

func (r *notificationRow) toDomain() *domain.Notification {
	return &domain.Notification{
		ID:        r.ID,
		UserID:    r.UserID,
		Type:      domain.NotificationType(r.Type),
		Title:     r.Title,
		Message:   r.Message,
		IsRead:    r.IsRead,
		CreatedAt: r.CreatedAt,
	}
}

// Save writes one notification.
func (a *NotificationAdapter) Save(userID int64, title, message string, typ domain.NotificationType) error {
	query := `
		INSERT INTO notifications (user_id, type, title, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, false, NOW())
	`
	if _, err := a.db.Exec(query, userID, string(typ), title, message); err != nil {
		return apperr.StoreFailed("notification save", err)
	}
	return nil
}

// List returns notifications newest first plus the total count.
func (a *NotificationAdapter) List(userID int64, limit, offset int) ([]*domain.Notification, int, error) {
	var total int
	if err := a.db.Get(&total, `SELECT COUNT(*) FROM notifications WHERE user_id = $1`, userID); err != nil {
		return nil, 0, apperr.StoreFailed("notification count", err)
	}

	query := `SELECT * FROM notifications WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	var rows []notificationRow
	if err := a.db.Select(&rows, query, userID, limit, offset); err != nil {
		return nil, 0, apperr.StoreFailed("notification list", err)
	}

	notifications := make([]*domain.Notification, 0, len(rows))
	for i := range rows {
		notifications = append(notifications, rows[i].toDomain())
	}
	return notifications, total, nil
}

func (a *NotificationAdapter) MarkAsRead(id int64, userID int64) error {
	res, err := a.db.Exec(`UPDATE notifications SET is_read = true WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return apperr.StoreFailed("notification mark read", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("notification")
	}
	return nil
}

func (a *NotificationAdapter) MarkAllAsRead(userID int64) error {
	if _, err := a.db.Exec(`UPDATE notifications SET is_read = true WHERE user_id = $1`, userID); err != nil {
		return apperr.StoreFailed("notification mark all read", err)
	}
	return nil
}

func (a *NotificationAdapter) CountUnread(userID int64) (int64, error) {
	var count int64
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = false`
	if err := a.db.Get(&count, query, userID); err != nil {
		return 0, apperr.StoreFailed("notification unread count", err)
	}
	return count, nil
}

// DeleteOlderThan prunes old notifications across all users.
func (a *NotificationAdapter) DeleteOlderThan(before time.Time) (int64, error) {
	res, err := a.db.Exec(`DELETE FROM notifications WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, apperr.StoreFailed("notification prune", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

var _ domain.NotificationRepository = (*NotificationAdapter)(nil)
