// Package out defines outbound ports (driven ports) for the application.
package out

import (
	"context"

	"maildigest/core/domain"
)

// =============================================================================
// Mail Fetcher Port (IMAP)
// =============================================================================

// FetchRequest describes one per-account fetch.
type FetchRequest struct {
	Account   *domain.EmailAccount
	SinceDays int
	// MaxEmails caps the batch, keeping the newest UIDs. 0 means unlimited
	// (bulk import mode, reachable only via a manual trigger).
	MaxEmails int
	UserID    int64
}

// MailFetcherPort retrieves and parses new messages for one account.
// It never retries internally; errors carry provider-aware diagnostics.
type MailFetcherPort interface {
	Fetch(ctx context.Context, req FetchRequest) ([]*domain.Email, error)

	// TestConnection dials, logs in, selects INBOX and logs out. Used when
	// an account is added.
	TestConnection(ctx context.Context, account *domain.EmailAccount) error
}

// =============================================================================
// Summarizer Port (LLM)
// =============================================================================

// DigestSummaryInput carries everything the digest prompt enumerates.
type DigestSummaryInput struct {
	Stats         domain.DigestStats
	TopMeetings   []domain.ListedItem
	TopTasks      []domain.ListedItem
	TopDeadlines  []domain.ListedItem
	IsManualFetch bool
}

// SummarizerPort produces Chinese summaries. On failure both methods return
// an error and the caller falls back to a deterministic template.
type SummarizerPort interface {
	// SummarizeOne returns a short summary for a single email, capped at the
	// configured summary length.
	SummarizeOne(ctx context.Context, email *domain.Email) (string, error)

	// SummarizeDigest returns a digest-level summary, <= 500 words.
	SummarizeDigest(ctx context.Context, input DigestSummaryInput) (string, error)
}

// =============================================================================
// Cache Invalidator Port
// =============================================================================

// CacheInvalidatorPort deletes cached views after store mutations.
// Fire and forget; errors are logged, never propagated.
type CacheInvalidatorPort interface {
	Invalidate(ctx context.Context, userID int64, scope domain.StoreEventScope)
}
