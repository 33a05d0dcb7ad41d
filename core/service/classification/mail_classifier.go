package classification

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"maildigest/core/domain"
	"maildigest/pkg/logger"
)

// Result is the classification decision for one email.
type Result struct {
	Category   string
	Importance int
	Method     string // rule, keyword, default
}

// Classifier runs the four-layer decision:
// custom rules → (reserved for LLM) → keyword fallback → default.
type Classifier struct {
	ruleRepo domain.RuleRepository
	log      zerolog.Logger
}

// NewClassifier creates a classifier backed by the user's rule set.
func NewClassifier(ruleRepo domain.RuleRepository) *Classifier {
	return &Classifier{
		ruleRepo: ruleRepo,
		log:      logger.Component("classifier"),
	}
}

// Classify decides (category, importance, method) for one email.
// Deterministic for a fixed rule set and email content.
func (c *Classifier) Classify(ctx context.Context, email *domain.Email) Result {
	// Layer 1: custom rules.
	if result, ok := c.classifyWithRules(ctx, email); ok {
		return result
	}

	// Layer 2: AI classification. Reserved; always skipped.

	// Layer 3: keyword fallback.
	category, importance := classifyWithKeywords(email)
	if category != domain.CategoryGeneral {
		return Result{Category: category, Importance: importance, Method: domain.MethodKeyword}
	}

	// Layer 4: default.
	return Result{Category: domain.CategoryGeneral, Importance: 1, Method: domain.MethodDefault}
}

func (c *Classifier) classifyWithRules(ctx context.Context, email *domain.Email) (Result, bool) {
	if c.ruleRepo == nil {
		return Result{}, false
	}

	rules, err := c.ruleRepo.ListActive(email.UserID)
	if err != nil {
		c.log.Warn().Err(err).Int64("user_id", email.UserID).Msg("failed to load rules")
		return Result{}, false
	}
	if len(rules) == 0 {
		return Result{}, false
	}

	var best *domain.ClassificationRule
	bestScore := 0
	for _, rule := range rules {
		if !MatchRule(rule, email) {
			continue
		}
		if score := RuleScore(rule); best == nil || score > bestScore {
			best = rule
			bestScore = score
		}
	}
	if best == nil {
		return Result{}, false
	}

	if err := c.ruleRepo.IncrementMatch(best.ID, time.Now().UTC()); err != nil {
		c.log.Warn().Err(err).Int64("rule_id", best.ID).Msg("failed to bump rule match count")
	}

	c.log.Debug().
		Int64("user_id", email.UserID).
		Str("rule", best.RuleName).
		Int("score", bestScore).
		Msg("rule matched")

	return Result{
		Category:   best.TargetCategory,
		Importance: best.TargetImportance,
		Method:     domain.MethodRule,
	}, true
}

// classifyWithKeywords probes the fixed category tables over the scratch text
// subject + sender + first 500 chars of body.
func classifyWithKeywords(email *domain.Email) (string, int) {
	body := email.Body
	if len(body) > 500 {
		body = body[:500]
	}
	scratch := strings.ToLower(email.Subject + " " + email.Sender + " " + body)

	importance := 1
	if containsAny(scratch, highImportanceKeywords) {
		importance = 3
	} else if containsAny(scratch, mediumImportanceKeywords) {
		importance = 2
	}

	for _, category := range categoryOrder {
		if containsAny(scratch, categoryKeywords[category]) {
			return category, importance
		}
	}

	return domain.CategoryGeneral, importance
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
