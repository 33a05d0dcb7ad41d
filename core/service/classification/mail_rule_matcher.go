// Package classification implements the four-layer email classifier and its
// rule matching engine.
package classification

import (
	"regexp"
	"strings"

	"maildigest/core/domain"
)

// =============================================================================
// Rule Matcher
// =============================================================================

// MatchSender tests a sender address against a pattern. Both sides are
// lowercased and trimmed before comparison.
func MatchSender(sender, pattern, matchType string) bool {
	if sender == "" || pattern == "" {
		return false
	}

	sender = strings.ToLower(strings.TrimSpace(sender))
	pattern = strings.ToLower(strings.TrimSpace(pattern))

	switch matchType {
	case domain.MatchExact:
		return sender == pattern

	case domain.MatchContains:
		return strings.Contains(sender, pattern)

	case domain.MatchDomain:
		// "@company.com" anchors the whole domain; "company.com" is a
		// plain substring test.
		if strings.HasPrefix(pattern, "@") {
			return strings.HasSuffix(sender, pattern)
		}
		return strings.Contains(sender, pattern)

	case domain.MatchWildcard:
		return wildcardMatch(sender, pattern)

	case domain.MatchRegex:
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return false
		}
		return re.MatchString(sender)

	default:
		return strings.Contains(sender, pattern)
	}
}

// wildcardMatch applies glob semantics (* and ?) over the whole address.
func wildcardMatch(s, pattern string) bool {
	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(s)
}

// MatchKeywords tests text against a keyword list with AND/OR logic.
// An empty keyword list counts as a match.
func MatchKeywords(text string, keywords []string, logic string) bool {
	if len(keywords) == 0 {
		return true
	}
	if text == "" {
		return false
	}

	textLower := strings.ToLower(strings.TrimSpace(text))

	var results []bool
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		results = append(results, strings.Contains(textLower, kw))
	}

	// All keywords were blank after trimming.
	if len(results) == 0 {
		return true
	}

	if logic == domain.LogicAND {
		for _, ok := range results {
			if !ok {
				return false
			}
		}
		return true
	}
	for _, ok := range results {
		if ok {
			return true
		}
	}
	return false
}

// MatchRule reports whether an email satisfies every configured dimension of
// a rule. A rule with no configured dimension never matches; a sender miss
// short-circuits.
func MatchRule(rule *domain.ClassificationRule, email *domain.Email) bool {
	if !rule.IsActive {
		return false
	}

	matched := false

	if rule.SenderPattern != "" {
		if !MatchSender(email.Sender, rule.SenderPattern, rule.SenderMatchType) {
			return false
		}
		matched = true
	}

	if len(rule.SubjectKeywords) > 0 {
		logic := rule.SubjectLogic
		if logic == "" {
			logic = domain.LogicOR
		}
		if !MatchKeywords(email.Subject, rule.SubjectKeywords, logic) {
			return false
		}
		matched = true
	}

	if len(rule.BodyKeywords) > 0 {
		// Body keywords always combine with OR.
		if !MatchKeywords(email.Body, rule.BodyKeywords, domain.LogicOR) {
			return false
		}
		matched = true
	}

	return matched
}

// RuleScore ranks a matched rule against competing matches.
func RuleScore(rule *domain.ClassificationRule) int {
	score := rule.Priority

	switch rule.SenderMatchType {
	case domain.MatchExact:
		score += 10
	case domain.MatchDomain:
		score += 5
	}

	conditions := 0
	if rule.SenderPattern != "" {
		conditions++
	}
	if len(rule.SubjectKeywords) > 0 {
		conditions++
	}
	if len(rule.BodyKeywords) > 0 {
		conditions++
	}
	score += conditions * 5

	return score
}

// =============================================================================
// Rule Preview
// =============================================================================

// ConditionResult is one dimension of a rule test, for UI preview.
type ConditionResult struct {
	Type     string   `json:"type"` // sender, subject, body
	Pattern  string   `json:"pattern,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
	Logic    string   `json:"logic,omitempty"`
	Value    string   `json:"value"`
	Matched  bool     `json:"matched"`
}

// TestResult is the outcome of previewing a rule against a sample email.
type TestResult struct {
	Matched          bool              `json:"matched"`
	Conditions       []ConditionResult `json:"conditions"`
	Score            int               `json:"score"`
	TargetCategory   string            `json:"target_category,omitempty"`
	TargetImportance int               `json:"target_importance,omitempty"`
}

// TestRule evaluates each configured dimension separately and reports
// per-condition results.
func TestRule(rule *domain.ClassificationRule, email *domain.Email) *TestResult {
	result := &TestResult{}

	if rule.SenderPattern != "" {
		ok := MatchSender(email.Sender, rule.SenderPattern, rule.SenderMatchType)
		result.Conditions = append(result.Conditions, ConditionResult{
			Type:    "sender",
			Pattern: rule.SenderPattern,
			Logic:   rule.SenderMatchType,
			Value:   email.Sender,
			Matched: ok,
		})
	}

	if len(rule.SubjectKeywords) > 0 {
		logic := rule.SubjectLogic
		if logic == "" {
			logic = domain.LogicOR
		}
		ok := MatchKeywords(email.Subject, rule.SubjectKeywords, logic)
		result.Conditions = append(result.Conditions, ConditionResult{
			Type:     "subject",
			Keywords: rule.SubjectKeywords,
			Logic:    logic,
			Value:    email.Subject,
			Matched:  ok,
		})
	}

	if len(rule.BodyKeywords) > 0 {
		ok := MatchKeywords(email.Body, rule.BodyKeywords, domain.LogicOR)
		value := email.Body
		if len(value) > 100 {
			value = value[:100] + "..."
		}
		result.Conditions = append(result.Conditions, ConditionResult{
			Type:     "body",
			Keywords: rule.BodyKeywords,
			Logic:    domain.LogicOR,
			Value:    value,
			Matched:  ok,
		})
	}

	if len(result.Conditions) == 0 {
		return result
	}

	result.Matched = true
	for _, cond := range result.Conditions {
		if !cond.Matched {
			result.Matched = false
			break
		}
	}

	if result.Matched {
		result.Score = RuleScore(rule)
		result.TargetCategory = rule.TargetCategory
		result.TargetImportance = rule.TargetImportance
	}

	return result
}
