// Package digest assembles the per-run rollup artifact.
package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"maildigest/core/domain"
	"maildigest/core/port/out"
	"maildigest/pkg/logger"
)

// Extracted-list keyword tables, probed against subject + first 500 chars
// of body, lowercased.
var (
	meetingKeywords  = []string{"会议", "meeting", "例会", "讨论", "discussion", "面谈", "zoom", "腾讯会议"}
	taskKeywords     = []string{"任务", "task", "todo", "待办", "需要完成", "请处理", "请完成"}
	deadlineKeywords = []string{"截止", "deadline", "最迟", "截至", "due date", "到期"}
)

// shanghai is the zone used for the fallback greeting.
var shanghai = func() *time.Location {
	if loc, err := time.LoadLocation("Asia/Shanghai"); err == nil {
		return loc
	}
	return time.FixedZone("CST", 8*3600)
}()

// Assembler builds Digest records from a just-saved batch.
type Assembler struct {
	summarizer out.SummarizerPort
	log        zerolog.Logger
	now        func() time.Time
}

func NewAssembler(summarizer out.SummarizerPort) *Assembler {
	return &Assembler{
		summarizer: summarizer,
		log:        logger.Component("digest"),
		now:        time.Now,
	}
}

// Assemble groups the batch, computes statistics and synthesizes the
// digest summary. isManualFetch only biases the summary tone.
func (a *Assembler) Assemble(ctx context.Context, userID int64, emails []*domain.Email, isManualFetch bool) *domain.Digest {
	now := a.now().UTC()
	stats := ComputeStats(emails)

	content := domain.DigestContent{
		Groups: groupEmails(emails),
		Stats:  stats,
		Emails: make([]domain.DigestItem, 0, len(emails)),
	}
	for _, e := range emails {
		summary := e.AISummary
		if summary == "" {
			summary = e.Summary
		}
		content.Emails = append(content.Emails, domain.DigestItem{
			EmailID:    e.EmailID,
			Subject:    e.Subject,
			Sender:     e.Sender,
			Time:       e.Date,
			Summary:    summary,
			Category:   e.Category,
			Importance: e.Importance,
		})
	}

	summary := a.summarize(ctx, stats, isManualFetch)

	return &domain.Digest{
		UserID:     userID,
		Date:       now,
		Title:      Title(now, len(emails)),
		Content:    content,
		EmailCount: len(emails),
		Summary:    summary,
		CreatedAt:  now,
	}
}

func (a *Assembler) summarize(ctx context.Context, stats domain.DigestStats, isManualFetch bool) string {
	if a.summarizer != nil {
		input := out.DigestSummaryInput{
			Stats:         stats,
			TopMeetings:   top3(stats.Meetings),
			TopTasks:      top3(stats.Tasks),
			TopDeadlines:  top3(stats.Deadlines),
			IsManualFetch: isManualFetch,
		}
		if s, err := a.summarizer.SummarizeDigest(ctx, input); err == nil && s != "" {
			return s
		} else if err != nil {
			a.log.Warn().Err(err).Msg("digest summary fell back to template")
		}
	}
	return FallbackSummary(stats, a.now().In(shanghai))
}

func top3(items []domain.ListedItem) []domain.ListedItem {
	if len(items) > 3 {
		return items[:3]
	}
	return items
}

// groupEmails buckets each email under "important" (importance >= 2),
// "urgent" (importance >= 3) plus its category. Empty buckets are omitted.
func groupEmails(emails []*domain.Email) map[string][]string {
	groups := make(map[string][]string)
	for _, e := range emails {
		if e.Importance >= 2 {
			groups["important"] = append(groups["important"], e.EmailID)
		}
		if e.Importance >= 3 {
			groups["urgent"] = append(groups["urgent"], e.EmailID)
		}
		category := e.Category
		if category == "" {
			category = domain.CategoryGeneral
		}
		groups[category] = append(groups[category], e.EmailID)
	}
	return groups
}

// ComputeStats derives the statistics block. Order-independent.
func ComputeStats(emails []*domain.Email) domain.DigestStats {
	stats := domain.DigestStats{
		Total:            len(emails),
		Categories:       make(map[string]int),
		Providers:        make(map[string]int),
		Accounts:         make(map[string]int),
		TimeDistribution: make(map[string]int),
	}

	for _, e := range emails {
		body := e.Body
		if len(body) > 500 {
			body = body[:500]
		}
		combined := strings.ToLower(e.Subject + " " + body)

		if e.Importance >= 3 {
			stats.UrgentCount++
			stats.ImportantCount++
		} else if e.Importance >= 2 {
			stats.ImportantCount++
		}

		category := e.Category
		if category == "" {
			category = domain.CategoryGeneral
		}
		stats.Categories[category]++

		provider := e.ProviderTag
		if provider == "" {
			provider = "unknown"
		}
		stats.Providers[provider]++

		account := e.AccountAddress
		if account == "" {
			account = "unknown"
		}
		stats.Accounts[account]++

		if !e.Date.IsZero() {
			hour := e.Date.UTC().Hour()
			slot := fmt.Sprintf("%02d:00-%02d:00", hour, hour+1)
			stats.TimeDistribution[slot]++
		}

		if containsAny(combined, meetingKeywords) {
			t := e.Date
			stats.Meetings = append(stats.Meetings, domain.ListedItem{Subject: e.Subject, Sender: e.Sender, Time: &t})
		}
		if containsAny(combined, taskKeywords) {
			stats.Tasks = append(stats.Tasks, domain.ListedItem{Subject: e.Subject, Sender: e.Sender})
		}
		if containsAny(combined, deadlineKeywords) {
			stats.Deadlines = append(stats.Deadlines, domain.ListedItem{Subject: e.Subject, Sender: e.Sender})
		}
		if category == domain.CategoryFinance {
			stats.FinancialItems = append(stats.FinancialItems, domain.ListedItem{Subject: e.Subject, Sender: e.Sender})
		}
	}

	return stats
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Title renders `YYYY-MM-DD (Www) Email Digest - N emails` from a UTC date.
func Title(date time.Time, emailCount int) string {
	return fmt.Sprintf("%s (%s) Email Digest - %d emails",
		date.UTC().Format("2006-01-02"), date.UTC().Format("Mon"), emailCount)
}

// FallbackSummary is the deterministic template used when the summarizer
// returns nothing. The greeting follows the local hour of the given time.
func FallbackSummary(stats domain.DigestStats, localNow time.Time) string {
	var greeting string
	switch hour := localNow.Hour(); {
	case hour < 12:
		greeting = "早上好！☀️"
	case hour < 18:
		greeting = "下午好！🌤️"
	default:
		greeting = "晚上好！🌙"
	}

	parts := []string{greeting}
	parts = append(parts, fmt.Sprintf("今天已为您整理了 **%d** 封邮件", stats.Total))

	if stats.UrgentCount > 0 {
		parts = append(parts, fmt.Sprintf("⚠️ 有 **%d** 封紧急邮件需要您优先处理", stats.UrgentCount))
	}
	if n := len(stats.Meetings); n > 0 {
		parts = append(parts, fmt.Sprintf("📅 今天有 **%d** 个会议安排", n))
	}
	if n := len(stats.Tasks); n > 0 {
		parts = append(parts, fmt.Sprintf("✅ 有 **%d** 项待办任务", n))
	}
	if n := len(stats.Deadlines); n > 0 {
		parts = append(parts, fmt.Sprintf("⏰ **%d** 个事项临近截止日期，请注意时间", n))
	}
	if n := len(stats.FinancialItems); n > 0 {
		parts = append(parts, fmt.Sprintf("💰 收到 **%d** 封财务相关邮件", n))
	}
	if stats.ImportantCount > stats.UrgentCount && stats.UrgentCount == 0 {
		parts = append(parts, fmt.Sprintf("另有 **%d** 封重要邮件需要关注", stats.ImportantCount))
	}

	switch {
	case stats.UrgentCount > 0 || len(stats.Deadlines) > 0:
		parts = append(parts, "🎯 建议优先处理紧急邮件和临近deadline的事项")
	case len(stats.Meetings) > 0:
		parts = append(parts, "🎯 建议先查看会议安排，做好时间准备")
	default:
		parts = append(parts, "😊 今天的邮件都比较常规，可以从容处理")
	}

	return strings.Join(parts, "。") + "。"
}
