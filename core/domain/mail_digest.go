package domain

import "time"

// DigestItem is the compact per-email view stored inside a digest.
type DigestItem struct {
	EmailID    string    `json:"email_id"`
	Subject    string    `json:"subject"`
	Sender     string    `json:"sender"`
	Time       time.Time `json:"time"`
	Summary    string    `json:"summary,omitempty"`
	Category   string    `json:"category"`
	Importance int       `json:"importance"`
}

// ListedItem is a short reference used in the extracted stat lists.
type ListedItem struct {
	Subject string     `json:"subject"`
	Sender  string     `json:"sender"`
	Time    *time.Time `json:"time,omitempty"`
}

// DigestStats is the statistics block of one digest.
type DigestStats struct {
	Total            int            `json:"total"`
	UrgentCount      int            `json:"urgent_count"`
	ImportantCount   int            `json:"important_count"`
	Categories       map[string]int `json:"categories"`
	Providers        map[string]int `json:"providers"`
	Accounts         map[string]int `json:"accounts"`
	TimeDistribution map[string]int `json:"time_distribution"`
	Meetings         []ListedItem   `json:"meetings,omitempty"`
	Tasks            []ListedItem   `json:"tasks,omitempty"`
	Deadlines        []ListedItem   `json:"deadlines,omitempty"`
	FinancialItems   []ListedItem   `json:"financial_items,omitempty"`
}

// DigestContent is the structured content column of a digest row.
type DigestContent struct {
	Groups map[string][]string `json:"groups"` // bucket -> email_ids
	Stats  DigestStats         `json:"stats"`
	Emails []DigestItem        `json:"emails"`
}

// Digest is the per-run rollup artifact.
type Digest struct {
	ID         int64         `json:"id"`
	UserID     int64         `json:"user_id"`
	Date       time.Time     `json:"date"` // UTC
	Title      string        `json:"title"`
	Content    DigestContent `json:"content"`
	EmailCount int           `json:"email_count"`
	Summary    string        `json:"summary"`
	CreatedAt  time.Time     `json:"created_at"`
}

// DigestRepository stores digests.
type DigestRepository interface {
	Save(digest *Digest) error
	GetByID(id int64, userID int64) (*Digest, error)
	List(userID int64, limit, offset int) ([]*Digest, int, error)
}
