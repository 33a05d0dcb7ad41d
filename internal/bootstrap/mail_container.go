// Package bootstrap wires the process: connections, adapters, services,
// scheduler.
package bootstrap

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"maildigest/adapter/in/worker"
	"maildigest/adapter/out/ai"
	"maildigest/adapter/out/cache"
	"maildigest/adapter/out/imapfetch"
	"maildigest/adapter/out/persistence"
	"maildigest/config"
	"maildigest/core/domain"
	"maildigest/core/service/classification"
	"maildigest/core/service/dedupe"
	"maildigest/core/service/digest"
	"maildigest/core/service/forward"
	"maildigest/core/service/pipeline"
	"maildigest/infra/database"
	"maildigest/pkg/logger"
)

// Container holds every wired dependency for the process lifetime.
type Container struct {
	Config *config.Config
	DB     *pgxpool.Pool
	SQLDB  *sqlx.DB
	Redis  *redis.Client

	// Repositories
	Accounts      domain.AccountRepository
	Emails        domain.EmailRepository
	Digests       domain.DigestRepository
	Rules         domain.RuleRepository
	Notifications domain.NotificationRepository
	UserConfig    domain.UserConfigRepository
	SystemConfig  domain.SystemConfigRepository
	Reclassify    domain.ReclassificationRepository

	// Adapters
	Fetcher     *imapfetch.Fetcher
	Summarizer  *ai.Summarizer
	Invalidator *cache.Invalidator

	// Services
	Pipeline  *pipeline.Service
	Gate      *worker.Gate
	Scheduler *worker.Scheduler

	log zerolog.Logger
}

// NewContainer builds the container. The returned cleanup closes every
// connection in reverse order.
func NewContainer(cfg *config.Config) (*Container, func(), error) {
	c := &Container{Config: cfg, log: logger.Component("bootstrap")}
	var cleanups []func()

	// Postgres (pgxpool, health-checked)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	c.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	// sqlx for the persistence adapters
	sqlDB, err := database.NewSqlx(cfg.DatabaseURL)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	c.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis is optional: without it the invalidator degrades to a no-op and
	// the store stays authoritative.
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			c.log.Warn().Err(err).Msg("redis unavailable, cache invalidation disabled")
		} else {
			c.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })
		}
	}
	c.Invalidator = cache.NewInvalidator(c.Redis)
	events := c.Invalidator.Subscribe()

	// Repositories
	c.Accounts = persistence.NewAccountAdapter(sqlDB)
	c.Emails = persistence.NewEmailAdapter(sqlDB, events)
	c.Digests = persistence.NewDigestAdapter(sqlDB, events)
	c.Rules = persistence.NewRuleAdapter(sqlDB)
	c.Notifications = persistence.NewNotificationAdapter(sqlDB)
	c.UserConfig = persistence.NewUserConfigAdapter(sqlDB, events)
	c.SystemConfig = persistence.NewSystemConfigAdapter(sqlDB)
	c.Reclassify = persistence.NewReclassificationAdapter(sqlDB, events)

	// IMAP fetcher
	c.Fetcher = imapfetch.NewFetcher(imapfetch.Config{
		Timeout:       cfg.IMAPTimeout,
		ClientName:    cfg.IMAPClientName,
		ClientVersion: cfg.IMAPClientVer,
		Vendor:        cfg.IMAPVendor,
		SupportEmail:  cfg.IMAPSupport,
		AttachmentDir: cfg.AttachmentDir,
		SubjectMax:    cfg.SubjectMaxLength,
		BodyMax:       cfg.BodyMaxLength,
	})

	// Summarizer. Without an API key every call fails fast and the pipeline
	// falls back to template summaries.
	if cfg.OpenAIAPIKey == "" {
		c.log.Warn().Msg("no OpenAI API key, summaries fall back to templates")
	}
	c.Summarizer = ai.NewSummarizer(ai.Config{
		APIKey:           cfg.OpenAIAPIKey,
		BaseURL:          cfg.OpenAIBaseURL,
		Model:            cfg.LLMModel,
		MaxTokens:        cfg.LLMMaxTokens,
		Temperature:      cfg.LLMTemperature,
		Timeout:          time.Duration(cfg.LLMTimeoutSec) * time.Second,
		SummaryMaxLength: cfg.SummaryMaxLength,
	})

	defaults := domain.ConfigDefaults{
		CheckIntervalMinutes: cfg.CheckIntervalMinutes,
		MaxEmailsPerAccount:  cfg.MaxEmailsPerAccount,
		CheckDaysBack:        cfg.CheckDaysBack,
		DuplicateCheckDays:   cfg.DuplicateCheckDays,
		BodyMaxLength:        cfg.BodyMaxLength,
		SubjectMaxLength:     cfg.SubjectMaxLength,
	}

	// Pipeline
	c.Pipeline = pipeline.NewService(pipeline.Deps{
		Accounts:        c.Accounts,
		Emails:          c.Emails,
		Digests:         c.Digests,
		Notifications:   c.Notifications,
		UserConfig:      c.UserConfig,
		Fetcher:         c.Fetcher,
		Summarizer:      c.Summarizer,
		Classifier:      classification.NewClassifier(c.Rules),
		Detector:        forward.NewDetector(),
		Dedupe:          dedupe.NewEngine(c.Emails),
		Assembler:       digest.NewAssembler(c.Summarizer),
		FallbackSummary: ai.FallbackEmailSummary,
	}, pipeline.Config{
		Defaults:         defaults,
		SummaryCallDelay: cfg.SummaryCallDelay,
	})

	// Scheduler
	c.Gate = worker.NewGate(cfg.MaxConcurrentUsers, cfg.ReleaseCooldown)
	c.Scheduler = worker.NewScheduler(c.Gate, c.Pipeline, c.UserConfig, defaults)

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	return c, cleanup, nil
}

// HealthCheck pings the live connections.
func (c *Container) HealthCheck(ctx context.Context) error {
	if err := c.DB.Ping(ctx); err != nil {
		return err
	}
	if c.Redis != nil {
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}
