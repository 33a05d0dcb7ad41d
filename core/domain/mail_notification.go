package domain

import "time"

// NotificationType classifies user notifications.
type NotificationType string

const (
	NotifyInfo    NotificationType = "info"
	NotifySuccess NotificationType = "success"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
)

// Notification is a per-user message written at pipeline terminal states.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"user_id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	IsRead    bool             `json:"is_read"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationRepository stores notifications.
type NotificationRepository interface {
	Save(userID int64, title, message string, typ NotificationType) error
	List(userID int64, limit, offset int) ([]*Notification, int, error)
	MarkAsRead(id int64, userID int64) error
	MarkAllAsRead(userID int64) error
	CountUnread(userID int64) (int64, error)
	DeleteOlderThan(before time.Time) (int64, error)
}
