// Package pipeline orchestrates one end-to-end processing run for a user:
// fetch, forward detection, dedupe, classification, summarization, store,
// digest and notification.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"maildigest/core/domain"
	"maildigest/core/port/out"
	"maildigest/core/service/classification"
	"maildigest/core/service/dedupe"
	"maildigest/core/service/digest"
	"maildigest/core/service/forward"
	"maildigest/pkg/apperr"
	"maildigest/pkg/logger"
)

// Result summarizes one run.
type Result struct {
	Found      int
	Duplicates int
	Saved      int
	DigestID   int64
}

// Config carries the pipeline tunables.
type Config struct {
	Defaults         domain.ConfigDefaults
	SummaryCallDelay time.Duration
}

// Service wires the whole processing chain. Concurrency admission lives
// in the worker layer; a Service run assumes it already holds the slot.
type Service struct {
	accounts      domain.AccountRepository
	emails        domain.EmailRepository
	digests       domain.DigestRepository
	notifications domain.NotificationRepository
	userConfig    domain.UserConfigRepository

	fetcher    out.MailFetcherPort
	summarizer out.SummarizerPort

	classifier *classification.Classifier
	detector   *forward.Detector
	dedupe     *dedupe.Engine
	assembler  *digest.Assembler

	cfg   Config
	log   zerolog.Logger
	sleep func(time.Duration)

	// fallbackSummary builds the per-email template when the summarizer
	// fails.
	fallbackSummary func(*domain.Email) string
}

type Deps struct {
	Accounts      domain.AccountRepository
	Emails        domain.EmailRepository
	Digests       domain.DigestRepository
	Notifications domain.NotificationRepository
	UserConfig    domain.UserConfigRepository
	Fetcher       out.MailFetcherPort
	Summarizer    out.SummarizerPort
	Classifier    *classification.Classifier
	Detector      *forward.Detector
	Dedupe        *dedupe.Engine
	Assembler     *digest.Assembler

	FallbackSummary func(*domain.Email) string
}

func NewService(deps Deps, cfg Config) *Service {
	if cfg.SummaryCallDelay == 0 {
		cfg.SummaryCallDelay = 500 * time.Millisecond
	}
	fallback := deps.FallbackSummary
	if fallback == nil {
		fallback = func(e *domain.Email) string {
			return fmt.Sprintf("来自 %s 的邮件", e.Sender)
		}
	}
	return &Service{
		accounts:        deps.Accounts,
		emails:          deps.Emails,
		digests:         deps.Digests,
		notifications:   deps.Notifications,
		userConfig:      deps.UserConfig,
		fetcher:         deps.Fetcher,
		summarizer:      deps.Summarizer,
		classifier:      deps.Classifier,
		detector:        deps.Detector,
		dedupe:          deps.Dedupe,
		assembler:       deps.Assembler,
		cfg:             cfg,
		log:             logger.Component("pipeline"),
		sleep:           time.Sleep,
		fallbackSummary: fallback,
	}
}

// Run executes the full chain for one user. isManual marks a user-triggered
// fetch; it only changes the digest tone and allows an uncapped batch when
// the user configured one. Errors escaping Run have already produced an
// error notification.
func (s *Service) Run(ctx context.Context, userID int64, isManual bool) (result *Result, err error) {
	defer func() {
		if err != nil && apperr.CodeOf(err) != apperr.CodeNoActiveAccounts {
			s.notify(userID, "邮件收取失败", fmt.Sprintf("处理邮件时出现错误: %v", err), domain.NotifyError)
		}
	}()

	raw, err := s.userConfig.GetAll(userID)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("user config load failed, using defaults")
		raw = map[string]string{}
	}
	cfg := domain.UserConfigFromMap(userID, raw, s.cfg.Defaults)

	accounts, err := s.accounts.ListActive(userID)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, apperr.NoActiveAccounts(userID)
	}

	candidates := s.fetchAll(ctx, accounts, cfg, isManual)
	found := len(candidates)

	for _, c := range candidates {
		det := s.detector.Analyze(forward.HeaderMap(c.RawHeaders), c.Subject, c.Body, c.BodyHTML)
		c.IsForwarded = det.IsForwarded
		c.ForwardLevel = det.ForwardLevel
		c.OriginalSender = det.OriginalSender
		c.OriginalSenderEmail = det.OriginalSenderEmail
		c.ForwardChain = det.ForwardChain
		if det.IsForwarded {
			name, addr := forward.ParseEmailAddress(c.Sender)
			c.ForwardedBy = forward.CleanSenderName(name)
			c.ForwardedByEmail = forward.ValidateEmail(addr)
		}
	}

	survivors, _ := s.dedupe.Filter(candidates, userID, cfg.DuplicateCheckDays)

	if found == 0 {
		s.notify(userID, "邮件收取完成", "本次收取没有找到新邮件。所有邮箱均已检查完毕，暂无新邮件到达。", domain.NotifyInfo)
		return &Result{}, nil
	}
	if len(survivors) == 0 {
		s.notify(userID, "邮件收取完成", fmt.Sprintf("找到 %d 封邮件，但全部为重复邮件，已自动过滤。", found), domain.NotifyInfo)
		return &Result{Found: found, Duplicates: found}, nil
	}

	s.enrich(ctx, survivors)

	saved, savedPerAccount := s.persist(survivors)

	now := time.Now().UTC()
	for _, account := range accounts {
		if err := s.accounts.UpdateStats(account.ID, now, savedPerAccount[account.Address]); err != nil {
			s.log.Error().Err(err).Str("account", account.Address).Msg("account stats update failed")
		}
	}

	result = &Result{Found: found, Duplicates: found - len(survivors), Saved: saved}

	if saved > 0 {
		if d := s.buildDigest(ctx, userID, saved, isManual); d != nil {
			result.DigestID = d.ID
		}
		s.notify(userID, "新邮件到达",
			fmt.Sprintf("成功收取并处理了 %d 封新邮件，已生成邮件简报。去重前共发现 %d 封邮件。", saved, found),
			domain.NotifySuccess)
	} else {
		// Fetch worked but nothing could be persisted.
		s.notify(userID, "邮件保存失败",
			fmt.Sprintf("成功收取 %d 封新邮件，但保存均失败，未生成简报，请稍后重试。", len(survivors)),
			domain.NotifyError)
	}

	s.log.Info().
		Int64("user_id", userID).
		Int("found", found).
		Int("duplicates", result.Duplicates).
		Int("saved", saved).
		Msg("pipeline run complete")

	return result, nil
}

// fetchAll collects candidates from every active account. A failing
// account is recorded and skipped; the run continues.
func (s *Service) fetchAll(ctx context.Context, accounts []*domain.EmailAccount, cfg *domain.UserConfig, isManual bool) []*domain.Email {
	maxEmails := cfg.MaxEmailsPerAccount
	if maxEmails == 0 && !isManual {
		// Unlimited batches are reserved for manual bulk imports.
		maxEmails = s.cfg.Defaults.MaxEmailsPerAccount
	}

	var candidates []*domain.Email
	for _, account := range accounts {
		emails, err := s.fetcher.Fetch(ctx, out.FetchRequest{
			Account:   account,
			SinceDays: cfg.CheckDaysBack,
			MaxEmails: maxEmails,
			UserID:    cfg.UserID,
		})
		if err != nil {
			s.log.Error().Err(err).Str("account", account.Address).Msg("account fetch failed, skipping")
			continue
		}
		candidates = append(candidates, emails...)
	}
	return candidates
}

// enrich classifies and summarizes each survivor. Summarizer failures fall
// back to the deterministic template; a short delay spaces the calls.
func (s *Service) enrich(ctx context.Context, survivors []*domain.Email) {
	for i, e := range survivors {
		res := s.classifier.Classify(ctx, e)
		e.Category = res.Category
		e.Importance = res.Importance
		e.ClassificationMethod = res.Method

		summary, err := s.summarizer.SummarizeOne(ctx, e)
		if err != nil || summary == "" {
			if err != nil {
				s.log.Warn().Err(err).Str("email_id", e.EmailID).Msg("summary fell back to template")
			}
			summary = s.fallbackSummary(e)
		}
		e.AISummary = summary
		e.Processed = true

		if i < len(survivors)-1 {
			s.sleep(s.cfg.SummaryCallDelay)
		}
	}
}

// persist upserts each survivor, skipping individual failures.
func (s *Service) persist(survivors []*domain.Email) (int, map[string]int) {
	saved := 0
	perAccount := make(map[string]int)
	for _, e := range survivors {
		if err := s.emails.Upsert(e); err != nil {
			s.log.Error().Err(err).Str("email_id", e.EmailID).Msg("email save failed, skipping")
			continue
		}
		saved++
		perAccount[e.AccountAddress]++
	}
	return saved, perAccount
}

// buildDigest reloads the just-saved batch and stores the rollup.
func (s *Service) buildDigest(ctx context.Context, userID int64, saved int, isManual bool) *domain.Digest {
	recent, err := s.emails.GetRecentSaved(userID, saved)
	if err != nil || len(recent) == 0 {
		if err != nil {
			s.log.Error().Err(err).Int64("user_id", userID).Msg("digest input reload failed")
		}
		return nil
	}

	d := s.assembler.Assemble(ctx, userID, recent, isManual)
	if err := s.digests.Save(d); err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("digest save failed")
		return nil
	}
	return d
}

func (s *Service) notify(userID int64, title, message string, typ domain.NotificationType) {
	if err := s.notifications.Save(userID, title, message, typ); err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("notification save failed")
	}
}
