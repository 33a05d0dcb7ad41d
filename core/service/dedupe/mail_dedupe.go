// Package dedupe filters candidate emails against the per-user history.
package dedupe

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"maildigest/core/domain"
	"maildigest/pkg/logger"
)

// ContentHash fingerprints an email as
// md5(subject|sender|date_iso|recipients_joined|body_prefix_2000).
// Any previously computed hash on the email is overwritten by the caller.
func ContentHash(email *domain.Email) string {
	body := email.Body
	if len(body) > 2000 {
		body = body[:2000]
	}

	parts := []string{
		email.Subject,
		email.Sender,
		email.Date.UTC().Format(time.RFC3339),
		strings.Join(email.Recipients, ","),
		body,
	}

	sum := md5.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Stats tallies one filter pass.
type Stats struct {
	Input           int
	Survivors       int
	DuplicateIDs    int
	DuplicateHashes int
}

// Engine filters batches using the email repository's history queries.
type Engine struct {
	emailRepo domain.EmailRepository
	log       zerolog.Logger
}

func NewEngine(emailRepo domain.EmailRepository) *Engine {
	return &Engine{
		emailRepo: emailRepo,
		log:       logger.Component("dedupe"),
	}
}

// Filter recomputes every candidate's content hash, then drops candidates
// whose email_id hits the full per-user history or whose hash hits the
// windowed history, in input order. In-batch duplicates count too. On a
// history query failure the engine fails open and returns the input
// unchanged: dedupe is a cost saver, not a correctness guarantee.
func (e *Engine) Filter(candidates []*domain.Email, userID int64, windowDays int) ([]*domain.Email, Stats) {
	stats := Stats{Input: len(candidates)}

	for _, c := range candidates {
		c.ContentHash = ContentHash(c)
	}

	if len(candidates) == 0 {
		return candidates, stats
	}

	knownIDs, err := e.emailRepo.AllEmailIDs(userID)
	if err != nil {
		e.log.Error().Err(err).Int64("user_id", userID).Msg("email_id history query failed, passing batch through")
		stats.Survivors = len(candidates)
		return candidates, stats
	}

	since := time.Now().UTC().AddDate(0, 0, -windowDays)
	knownHashes, err := e.emailRepo.RecentContentHashes(userID, since)
	if err != nil {
		e.log.Error().Err(err).Int64("user_id", userID).Msg("content_hash history query failed, passing batch through")
		stats.Survivors = len(candidates)
		return candidates, stats
	}

	batchIDs := make(map[string]struct{})
	batchHashes := make(map[string]struct{})

	survivors := make([]*domain.Email, 0, len(candidates))
	for _, c := range candidates {
		if _, hit := knownIDs[c.EmailID]; hit {
			stats.DuplicateIDs++
			continue
		}
		if _, hit := batchIDs[c.EmailID]; hit {
			stats.DuplicateIDs++
			continue
		}
		if _, hit := knownHashes[c.ContentHash]; hit {
			stats.DuplicateHashes++
			continue
		}
		if _, hit := batchHashes[c.ContentHash]; hit {
			stats.DuplicateHashes++
			continue
		}

		batchIDs[c.EmailID] = struct{}{}
		batchHashes[c.ContentHash] = struct{}{}
		survivors = append(survivors, c)
	}

	stats.Survivors = len(survivors)
	e.log.Info().
		Int64("user_id", userID).
		Int("input", stats.Input).
		Int("survivors", stats.Survivors).
		Int("dup_ids", stats.DuplicateIDs).
		Int("dup_hashes", stats.DuplicateHashes).
		Msg("dedupe pass complete")

	return survivors, stats
}
