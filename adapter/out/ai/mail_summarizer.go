// Package ai implements the summarizer port on the OpenAI chat API.
package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"

	"maildigest/core/domain"
	"maildigest/core/port/out"
	"maildigest/pkg/apperr"
	"maildigest/pkg/logger"
)

const DefaultModel = "gpt-4o-mini"

// Config for the summarizer client.
type Config struct {
	APIKey           string
	BaseURL          string
	Model            string
	MaxTokens        int
	Temperature      float64
	Timeout          time.Duration
	SummaryMaxLength int
}

// Summarizer calls the chat API behind a circuit breaker. When the breaker
// is open calls fail fast and callers fall back to templates.
type Summarizer struct {
	client           *openai.Client
	model            string
	maxTokens        int
	temperature      float32
	timeout          time.Duration
	summaryMaxLength int
	breaker          *gobreaker.CircuitBreaker
	log              zerolog.Logger
}

func NewSummarizer(cfg Config) *Summarizer {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.7
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	summaryMax := cfg.SummaryMaxLength
	if summaryMax == 0 {
		summaryMax = 200
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	log := logger.Component("summarizer")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "summarizer",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("summarizer breaker state change")
		},
	})

	return &Summarizer{
		client:           openai.NewClientWithConfig(clientCfg),
		model:            model,
		maxTokens:        maxTokens,
		temperature:      float32(temperature),
		timeout:          timeout,
		summaryMaxLength: summaryMax,
		breaker:          breaker,
		log:              log,
	}
}

// SummarizeOne produces a short Chinese summary for a single email.
func (s *Summarizer) SummarizeOne(ctx context.Context, email *domain.Email) (string, error) {
	prompt := s.summaryPrompt(email)
	text, err := s.complete(ctx, prompt)
	if err != nil {
		return "", apperr.SummarizerFailed(err)
	}
	return s.capSummary(text), nil
}

// SummarizeDigest produces the digest-level summary, <= 500 words.
func (s *Summarizer) SummarizeDigest(ctx context.Context, input out.DigestSummaryInput) (string, error) {
	prompt := digestPrompt(input)
	text, err := s.complete(ctx, prompt)
	if err != nil {
		return "", apperr.SummarizerFailed(err)
	}
	return strings.TrimSpace(text), nil
}

func (s *Summarizer) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.breaker.Execute(func() (any, error) {
		resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       s.model,
			MaxTokens:   s.maxTokens,
			Temperature: s.temperature,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return "", nil
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (s *Summarizer) capSummary(text string) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) > s.summaryMaxLength {
		return string(runes[:s.summaryMaxLength])
	}
	return text
}

// categoryInstructions bias the per-email prompt per classification.
var categoryInstructions = map[string]string{
	domain.CategoryWork:     "重点关注工作任务、截止时间、会议安排等关键信息",
	domain.CategoryFinance:  "重点关注金额、付款时间、账户信息等财务要点",
	domain.CategorySocial:   "重点关注活动安排、时间地点等社交信息",
	domain.CategoryShopping: "重点关注订单状态、商品信息、物流信息等",
	domain.CategoryNews:     "重点关注新闻要点、关键事件等",
	domain.CategoryGeneral:  "提取邮件的核心信息和关键要点",
}

func (s *Summarizer) summaryPrompt(email *domain.Email) string {
	instruction, ok := categoryInstructions[email.Category]
	if !ok {
		instruction = categoryInstructions[domain.CategoryGeneral]
	}

	body := email.Body
	if r := []rune(body); len(r) > 1500 {
		body = string(r[:1500])
	}

	return strings.TrimSpace(fmt.Sprintf(`
请为以下邮件生成简洁准确的中文摘要：

邮件主题：%s
发件人：%s
邮件内容：%s

要求：
1. %s
2. 摘要控制在%d字以内
3. 突出关键信息，如时间、地点、金额、截止日期等
4. 语言简洁明了，避免冗余
5. 如果是重要邮件，在开头标注[重要]
6. 如果内容不完整或无意义，请说明"邮件内容不完整"

摘要：`,
		email.Subject, email.Sender, body, instruction, s.summaryMaxLength))
}

func digestPrompt(input out.DigestSummaryInput) string {
	stats := input.Stats

	categoriesJSON, _ := json.Marshal(stats.Categories)
	meetingsJSON, _ := json.Marshal(input.TopMeetings)
	tasksJSON, _ := json.Marshal(input.TopTasks)
	deadlinesJSON, _ := json.Marshal(input.TopDeadlines)

	greeting := "1. **开场问候**（1句话）：根据当前时间（早上/下午/晚上），用温暖的问候开头"
	if input.IsManualFetch {
		greeting = "1. **开场**（1句话）：直接说明本次手动收取的结果，不要使用时间问候"
	}

	return strings.TrimSpace(fmt.Sprintf(`
你是一位贴心、专业的邮件助理，请用温暖、友好、专业的口吻，为用户生成今日邮件的智能摘要。

**邮件数据统计**：
- 今日收到邮件总数：%d 封
- 紧急重要邮件：%d 封
- 需要关注邮件：%d 封
- 会议邀请/通知：%d 个
- 待办任务：%d 项
- 有截止日期的事项：%d 项
- 财务相关：%d 项

**分类统计**：
%s

**会议通知概要**（前3个）：
%s

**任务提醒概要**（前3个）：
%s

**截止日期提醒**（前3个）：
%s

请生成一段**不超过500字**的智能摘要，要求：

%s
2. **总体概况**（2-3句话）：今日邮件总数、重要程度分布
3. **重点提醒**（3-5句话）：紧急邮件、会议日程、任务待办、临近的截止日期
4. **财务提醒**（可选1-2句话）：如果有账单、付款等财务邮件，特别提醒
5. **贴心建议**（1-2句话）：基于邮件内容，给出处理优先级建议

**语言风格要求**：
- 使用"您"而不是"你"，体现专业性
- 语气温暖友好但不失专业
- 用emoji增加亲和力（适度使用，不要过多）
- 避免机械化表述，要自然流畅

请直接输出摘要内容，不要加任何前缀或解释。`,
		stats.Total, stats.UrgentCount, stats.ImportantCount,
		len(stats.Meetings), len(stats.Tasks), len(stats.Deadlines), len(stats.FinancialItems),
		categoriesJSON, meetingsJSON, tasksJSON, deadlinesJSON, greeting))
}

// FallbackEmailSummary is the deterministic per-email template used when the
// summarizer fails.
func FallbackEmailSummary(email *domain.Email) string {
	preview := email.Body
	if r := []rune(preview); len(r) > 100 {
		preview = string(r[:100]) + "..."
	}
	return fmt.Sprintf("来自 %s 的邮件：%s。内容摘要：%s", SenderName(email.Sender), email.Subject, preview)
}

// SenderName extracts the display name from `Name <email>`, falling back to
// the local part.
func SenderName(sender string) string {
	if sender == "" {
		return "Unknown"
	}
	if i := strings.Index(sender, "<"); i > 0 {
		if name := strings.TrimSpace(sender[:i]); name != "" {
			return name
		}
	}
	if i := strings.Index(sender, "@"); i > 0 {
		return strings.Trim(sender[:i], "<> ")
	}
	return sender
}

var _ out.SummarizerPort = (*Summarizer)(nil)
