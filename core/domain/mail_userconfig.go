package domain

import (
	"strconv"
	"strings"
)

// User config keys recognized by the pipeline. Values are stored as strings
// and coerced once at load.
const (
	KeyCheckIntervalMinutes = "check_interval_minutes"
	KeyMaxEmailsPerAccount  = "max_emails_per_account"
	KeyCheckDaysBack        = "check_days_back"
	KeyDuplicateCheckDays   = "duplicate_check_days"
	KeyBodyMaxLength        = "email_body_max_length"
	KeySubjectMaxLength     = "email_subject_max_length"
	KeyScheduleType         = "schedule_type"
	KeyCronHours            = "cron_hours"
	KeyCronMinutes          = "cron_minutes"
	KeyCustomRule           = "custom_rule"
	KeyCustomMinute         = "custom_minute"
	KeyNHours               = "n_hours"
)

// Schedule types.
const (
	ScheduleInterval = "interval"
	ScheduleCron     = "cron"
	ScheduleCustom   = "custom"
)

// Custom schedule rules.
const (
	CustomHourly      = "hourly"
	CustomEvenHours   = "even_hours"
	CustomOddHours    = "odd_hours"
	CustomEveryNHours = "every_n_hours"
)

// ScheduleSpec is the typed trigger configuration for one user.
type ScheduleSpec struct {
	Type            string
	IntervalMinutes int
	CronHours       []int
	CronMinutes     []int
	CustomRule      string
	CustomMinute    int
	NHours          int
}

// UserConfig carries the coerced per-user pipeline settings.
// MaxEmailsPerAccount == 0 means unlimited (bulk import mode); the scheduled
// path always passes a positive cap.
type UserConfig struct {
	UserID               int64
	CheckIntervalMinutes int
	MaxEmailsPerAccount  int
	CheckDaysBack        int
	DuplicateCheckDays   int
	BodyMaxLength        int
	SubjectMaxLength     int
	Schedule             ScheduleSpec
}

// ConfigDefaults are the fallbacks applied when a key is absent or malformed.
type ConfigDefaults struct {
	CheckIntervalMinutes int
	MaxEmailsPerAccount  int
	CheckDaysBack        int
	DuplicateCheckDays   int
	BodyMaxLength        int
	SubjectMaxLength     int
}

// UserConfigFromMap coerces raw string rows into a typed UserConfig.
func UserConfigFromMap(userID int64, raw map[string]string, d ConfigDefaults) *UserConfig {
	cfg := &UserConfig{
		UserID:               userID,
		CheckIntervalMinutes: intValue(raw, KeyCheckIntervalMinutes, d.CheckIntervalMinutes),
		MaxEmailsPerAccount:  intValue(raw, KeyMaxEmailsPerAccount, d.MaxEmailsPerAccount),
		CheckDaysBack:        intValue(raw, KeyCheckDaysBack, d.CheckDaysBack),
		DuplicateCheckDays:   intValue(raw, KeyDuplicateCheckDays, d.DuplicateCheckDays),
		BodyMaxLength:        intValue(raw, KeyBodyMaxLength, d.BodyMaxLength),
		SubjectMaxLength:     intValue(raw, KeySubjectMaxLength, d.SubjectMaxLength),
	}

	cfg.Schedule = ScheduleSpec{
		Type:            stringValue(raw, KeyScheduleType, ScheduleInterval),
		IntervalMinutes: cfg.CheckIntervalMinutes,
		CronHours:       intListValue(raw, KeyCronHours),
		CronMinutes:     intListValue(raw, KeyCronMinutes),
		CustomRule:      stringValue(raw, KeyCustomRule, CustomHourly),
		CustomMinute:    intValue(raw, KeyCustomMinute, 0),
		NHours:          intValue(raw, KeyNHours, 2),
	}

	return cfg
}

func stringValue(raw map[string]string, key, def string) string {
	if v, ok := raw[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func intValue(raw map[string]string, key string, def int) int {
	if v, ok := raw[key]; ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return def
}

func intListValue(raw map[string]string, key string) []int {
	v, ok := raw[key]
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(v, ",") {
		if n, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// UserConfigRepository reads and writes the per-user key/value rows.
type UserConfigRepository interface {
	GetAll(userID int64) (map[string]string, error)
	Set(userID int64, key, value string) error
	ListScheduledUsers() ([]int64, error)
}

// SystemConfigRepository holds admin-scoped settings (summarizer provider,
// model, cache TTLs). Values are strings keyed globally.
type SystemConfigRepository interface {
	Get(key string) (string, error)
	Set(key, value string) error
}
