package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"maildigest/core/domain"
	"maildigest/core/port/out"
	"maildigest/core/service/classification"
	"maildigest/core/service/dedupe"
	"maildigest/core/service/digest"
	"maildigest/core/service/forward"
	"maildigest/pkg/apperr"
)

// ---------------------------------------------------------------------------
// fakes

type fakeAccountRepo struct {
	accounts []*domain.EmailAccount
	stats    map[int64]int
}

func (f *fakeAccountRepo) Create(*domain.EmailAccount) error          { return nil }
func (f *fakeAccountRepo) GetByID(int64) (*domain.EmailAccount, error) { return nil, nil }
func (f *fakeAccountRepo) ListActive(int64) ([]*domain.EmailAccount, error) {
	return f.accounts, nil
}
func (f *fakeAccountRepo) List(int64) ([]*domain.EmailAccount, error) { return f.accounts, nil }
func (f *fakeAccountRepo) SetActive(int64, bool) error                { return nil }
func (f *fakeAccountRepo) Delete(int64) error                         { return nil }
func (f *fakeAccountRepo) UpdateStats(id int64, _ time.Time, saved int) error {
	if f.stats == nil {
		f.stats = make(map[int64]int)
	}
	f.stats[id] += saved
	return nil
}

type fakeEmailRepo struct {
	saved     []*domain.Email
	knownIDs  map[string]struct{}
	hashes    map[string]struct{}
	upsertErr map[string]error
}

func (f *fakeEmailRepo) Upsert(e *domain.Email) error {
	if err, ok := f.upsertErr[e.EmailID]; ok {
		return err
	}
	f.saved = append(f.saved, e)
	return nil
}
func (f *fakeEmailRepo) GetRecentSaved(_ int64, limit int) ([]*domain.Email, error) {
	if limit > len(f.saved) {
		limit = len(f.saved)
	}
	return f.saved[len(f.saved)-limit:], nil
}
func (f *fakeEmailRepo) GetByEmailID(int64, string) (*domain.Email, error) { return nil, nil }
func (f *fakeEmailRepo) UpdateSummary(int64, string, string) error         { return nil }
func (f *fakeEmailRepo) UpdateClassification(int64, string, string, int, string) error {
	return nil
}
func (f *fakeEmailRepo) SoftDelete(int64, string) error                      { return nil }
func (f *fakeEmailRepo) Restore(int64, string) error                         { return nil }
func (f *fakeEmailRepo) Purge(int64, string) error                           { return nil }
func (f *fakeEmailRepo) ClearAll(int64) (int64, error)                       { return 0, nil }
func (f *fakeEmailRepo) SaveTranslation(int64, string, string, string) error { return nil }
func (f *fakeEmailRepo) GetTranslation(int64, string, string) (string, error) {
	return "", nil
}
func (f *fakeEmailRepo) ClearTranslations(int64, string) error { return nil }
func (f *fakeEmailRepo) AllEmailIDs(int64) (map[string]struct{}, error) {
	if f.knownIDs == nil {
		return map[string]struct{}{}, nil
	}
	return f.knownIDs, nil
}
func (f *fakeEmailRepo) RecentContentHashes(int64, time.Time) (map[string]struct{}, error) {
	if f.hashes == nil {
		return map[string]struct{}{}, nil
	}
	return f.hashes, nil
}

type fakeDigestRepo struct {
	saved []*domain.Digest
}

func (f *fakeDigestRepo) Save(d *domain.Digest) error {
	d.ID = int64(len(f.saved) + 1)
	f.saved = append(f.saved, d)
	return nil
}
func (f *fakeDigestRepo) GetByID(int64, int64) (*domain.Digest, error) { return nil, nil }
func (f *fakeDigestRepo) List(int64, int, int) ([]*domain.Digest, int, error) {
	return nil, 0, nil
}

type savedNotification struct {
	Title   string
	Message string
	Type    domain.NotificationType
}

type fakeNotificationRepo struct {
	saved []savedNotification
}

func (f *fakeNotificationRepo) Save(_ int64, title, message string, typ domain.NotificationType) error {
	f.saved = append(f.saved, savedNotification{Title: title, Message: message, Type: typ})
	return nil
}
func (f *fakeNotificationRepo) List(int64, int, int) ([]*domain.Notification, int, error) {
	return nil, 0, nil
}
func (f *fakeNotificationRepo) MarkAsRead(int64, int64) error     { return nil }
func (f *fakeNotificationRepo) MarkAllAsRead(int64) error         { return nil }
func (f *fakeNotificationRepo) CountUnread(int64) (int64, error)  { return 0, nil }
func (f *fakeNotificationRepo) DeleteOlderThan(time.Time) (int64, error) {
	return 0, nil
}

type fakeUserConfigRepo struct {
	values map[string]string
}

func (f *fakeUserConfigRepo) GetAll(int64) (map[string]string, error) {
	if f.values == nil {
		return map[string]string{}, nil
	}
	return f.values, nil
}
func (f *fakeUserConfigRepo) Set(int64, string, string) error    { return nil }
func (f *fakeUserConfigRepo) ListScheduledUsers() ([]int64, error) { return nil, nil }

type fakeFetcher struct {
	perAccount map[string][]*domain.Email
	errors     map[string]error
	requests   []out.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req out.FetchRequest) ([]*domain.Email, error) {
	f.requests = append(f.requests, req)
	if err, ok := f.errors[req.Account.Address]; ok {
		return nil, err
	}
	return f.perAccount[req.Account.Address], nil
}
func (f *fakeFetcher) TestConnection(context.Context, *domain.EmailAccount) error { return nil }

type fakeSummarizer struct {
	err   error
	calls int
}

func (f *fakeSummarizer) SummarizeOne(_ context.Context, e *domain.Email) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "摘要:" + e.Subject, nil
}
func (f *fakeSummarizer) SummarizeDigest(context.Context, out.DigestSummaryInput) (string, error) {
	return "今日摘要", nil
}

type fakeRuleRepo struct{}

func (f *fakeRuleRepo) Create(*domain.ClassificationRule) error { return nil }
func (f *fakeRuleRepo) Update(*domain.ClassificationRule) error { return nil }
func (f *fakeRuleRepo) Delete(int64, int64) error               { return nil }
func (f *fakeRuleRepo) GetByID(int64, int64) (*domain.ClassificationRule, error) {
	return nil, nil
}
func (f *fakeRuleRepo) List(int64) ([]*domain.ClassificationRule, error)       { return nil, nil }
func (f *fakeRuleRepo) ListActive(int64) ([]*domain.ClassificationRule, error) { return nil, nil }
func (f *fakeRuleRepo) SetActive(int64, int64, bool) error                     { return nil }
func (f *fakeRuleRepo) IncrementMatch(int64, time.Time) error                  { return nil }

// ---------------------------------------------------------------------------

type fixture struct {
	service       *Service
	accounts      *fakeAccountRepo
	emails        *fakeEmailRepo
	digests       *fakeDigestRepo
	notifications *fakeNotificationRepo
	fetcher       *fakeFetcher
	summarizer    *fakeSummarizer
}

func newFixture() *fixture {
	f := &fixture{
		accounts: &fakeAccountRepo{accounts: []*domain.EmailAccount{
			{ID: 1, UserID: 7, Address: "me@gmail.com", ProviderTag: "gmail", Active: true},
		}},
		emails:        &fakeEmailRepo{},
		digests:       &fakeDigestRepo{},
		notifications: &fakeNotificationRepo{},
		fetcher:       &fakeFetcher{perAccount: map[string][]*domain.Email{}},
		summarizer:    &fakeSummarizer{},
	}

	f.service = NewService(Deps{
		Accounts:      f.accounts,
		Emails:        f.emails,
		Digests:       f.digests,
		Notifications: f.notifications,
		UserConfig:    &fakeUserConfigRepo{},
		Fetcher:       f.fetcher,
		Summarizer:    f.summarizer,
		Classifier:    classification.NewClassifier(&fakeRuleRepo{}),
		Detector:      forward.NewDetector(),
		Dedupe:        dedupe.NewEngine(f.emails),
		Assembler:     digest.NewAssembler(f.summarizer),
	}, Config{
		Defaults: domain.ConfigDefaults{
			CheckIntervalMinutes: 30,
			MaxEmailsPerAccount:  20,
			CheckDaysBack:        1,
			DuplicateCheckDays:   30,
		},
		SummaryCallDelay: time.Millisecond,
	})
	f.service.sleep = func(time.Duration) {}
	return f
}

func candidate(id, subject string) *domain.Email {
	return &domain.Email{
		UserID:         7,
		EmailID:        id,
		Subject:        subject,
		Sender:         "someone@corp.com",
		Recipients:     []string{"me@gmail.com"},
		Date:           time.Now().UTC(),
		AccountAddress: "me@gmail.com",
		ProviderTag:    "gmail",
		Body:           "body of " + subject,
	}
}

// TestRunHappyPath walks the full chain: fetch, classify, summarize, save,
// digest, success notification.
func TestRunHappyPath(t *testing.T) {
	f := newFixture()
	f.fetcher.perAccount["me@gmail.com"] = []*domain.Email{
		candidate("me@gmail.com:1", "紧急: 项目进度"),
		candidate("me@gmail.com:2", "newsletter"),
	}

	result, err := f.service.Run(context.Background(), 7, false)
	if err != nil {
		t.Fatal(err)
	}

	if result.Found != 2 || result.Saved != 2 || result.Duplicates != 0 {
		t.Errorf("result = %+v", result)
	}
	if len(f.emails.saved) != 2 {
		t.Fatalf("saved = %d", len(f.emails.saved))
	}

	first := f.emails.saved[0]
	if !first.Processed {
		t.Error("saved email not marked processed")
	}
	if first.AISummary != "摘要:紧急: 项目进度" {
		t.Errorf("AISummary = %q", first.AISummary)
	}
	if first.Category == "" || first.ClassificationMethod == "" {
		t.Errorf("classification missing: %+v", first)
	}

	if len(f.digests.saved) != 1 {
		t.Fatalf("digests = %d", len(f.digests.saved))
	}
	if f.digests.saved[0].EmailCount != 2 {
		t.Errorf("digest email count = %d", f.digests.saved[0].EmailCount)
	}
	if result.DigestID != f.digests.saved[0].ID {
		t.Errorf("DigestID = %d", result.DigestID)
	}

	if f.accounts.stats[1] != 2 {
		t.Errorf("account stats = %v", f.accounts.stats)
	}

	if len(f.notifications.saved) != 1 {
		t.Fatalf("notifications = %+v", f.notifications.saved)
	}
	n := f.notifications.saved[0]
	if n.Title != "新邮件到达" || n.Type != domain.NotifySuccess {
		t.Errorf("notification = %+v", n)
	}
	if !strings.Contains(n.Message, "2 封新邮件") {
		t.Errorf("notification message = %q", n.Message)
	}
}

// TestRunAllDuplicates covers the filtered-batch terminal state.
func TestRunAllDuplicates(t *testing.T) {
	f := newFixture()
	f.emails.knownIDs = map[string]struct{}{"me@gmail.com:1": {}, "me@gmail.com:2": {}}
	f.fetcher.perAccount["me@gmail.com"] = []*domain.Email{
		candidate("me@gmail.com:1", "s1"),
		candidate("me@gmail.com:2", "s2"),
	}

	result, err := f.service.Run(context.Background(), 7, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Found != 2 || result.Duplicates != 2 || result.Saved != 0 {
		t.Errorf("result = %+v", result)
	}
	if len(f.emails.saved) != 0 || len(f.digests.saved) != 0 {
		t.Error("duplicates must not be saved")
	}

	if len(f.notifications.saved) != 1 {
		t.Fatalf("notifications = %+v", f.notifications.saved)
	}
	n := f.notifications.saved[0]
	if n.Title != "邮件收取完成" || n.Type != domain.NotifyInfo {
		t.Errorf("notification = %+v", n)
	}
	if !strings.Contains(n.Message, "2 封邮件") || !strings.Contains(n.Message, "重复") {
		t.Errorf("notification message = %q", n.Message)
	}
}

// TestRunNoNewMail covers the empty-INBOX terminal state.
func TestRunNoNewMail(t *testing.T) {
	f := newFixture()

	result, err := f.service.Run(context.Background(), 7, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Found != 0 || result.Saved != 0 {
		t.Errorf("result = %+v", result)
	}

	if len(f.notifications.saved) != 1 {
		t.Fatalf("notifications = %+v", f.notifications.saved)
	}
	n := f.notifications.saved[0]
	if n.Title != "邮件收取完成" || n.Type != domain.NotifyInfo {
		t.Errorf("notification = %+v", n)
	}
	if !strings.Contains(n.Message, "暂无新邮件") {
		t.Errorf("notification message = %q", n.Message)
	}
}

// TestRunAccountErrorSkipped verifies a failing account does not abort the
// run.
func TestRunAccountErrorSkipped(t *testing.T) {
	f := newFixture()
	f.accounts.accounts = append(f.accounts.accounts,
		&domain.EmailAccount{ID: 2, UserID: 7, Address: "me@163.com", ProviderTag: "163", Active: true})
	f.fetcher.errors = map[string]error{"me@gmail.com": errors.New("login failed")}
	f.fetcher.perAccount["me@163.com"] = []*domain.Email{candidate("me@163.com:5", "hello")}

	result, err := f.service.Run(context.Background(), 7, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Found != 1 || result.Saved != 1 {
		t.Errorf("result = %+v", result)
	}
	if len(f.fetcher.requests) != 2 {
		t.Errorf("fetch requests = %d, want both accounts tried", len(f.fetcher.requests))
	}
}

// TestRunSummarizerFallback verifies enrichment survives a dead summarizer.
func TestRunSummarizerFallback(t *testing.T) {
	f := newFixture()
	f.summarizer.err = errors.New("llm down")
	f.fetcher.perAccount["me@gmail.com"] = []*domain.Email{candidate("me@gmail.com:1", "hello")}

	result, err := f.service.Run(context.Background(), 7, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Saved != 1 {
		t.Fatalf("result = %+v", result)
	}
	if f.emails.saved[0].AISummary == "" {
		t.Error("fallback summary missing")
	}
	if !f.emails.saved[0].Processed {
		t.Error("email must still be marked processed")
	}
}

// TestRunNoActiveAccounts verifies the typed error and the absence of an
// error notification.
func TestRunNoActiveAccounts(t *testing.T) {
	f := newFixture()
	f.accounts.accounts = nil

	_, err := f.service.Run(context.Background(), 7, false)
	if apperr.CodeOf(err) != apperr.CodeNoActiveAccounts {
		t.Fatalf("err = %v", err)
	}
	if len(f.notifications.saved) != 0 {
		t.Errorf("notifications = %+v", f.notifications.saved)
	}
}

// TestRunForwardDetection verifies forwarded candidates carry the original
// sender into the store.
func TestRunForwardDetection(t *testing.T) {
	f := newFixture()
	c := candidate("me@gmail.com:9", "Fwd: quarterly numbers")
	c.Body = "---------- Forwarded message ---------\nFrom: Dave <dave@origin.com>\nTo: x@y.com\nSubject: quarterly numbers"
	f.fetcher.perAccount["me@gmail.com"] = []*domain.Email{c}

	_, err := f.service.Run(context.Background(), 7, false)
	if err != nil {
		t.Fatal(err)
	}

	saved := f.emails.saved[0]
	if !saved.IsForwarded {
		t.Fatal("forward not detected")
	}
	if saved.OriginalSenderEmail != "dave@origin.com" {
		t.Errorf("OriginalSenderEmail = %q", saved.OriginalSenderEmail)
	}
	if saved.ForwardedByEmail != "someone@corp.com" {
		t.Errorf("ForwardedByEmail = %q", saved.ForwardedByEmail)
	}
}

// TestRunPersistErrorSkipped verifies a single failing row does not poison
// the batch.
func TestRunPersistErrorSkipped(t *testing.T) {
	f := newFixture()
	f.emails.upsertErr = map[string]error{"me@gmail.com:1": errors.New("constraint")}
	f.fetcher.perAccount["me@gmail.com"] = []*domain.Email{
		candidate("me@gmail.com:1", "s1"),
		candidate("me@gmail.com:2", "s2"),
	}

	result, err := f.service.Run(context.Background(), 7, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Saved != 1 {
		t.Errorf("Saved = %d, want 1", result.Saved)
	}
}

// TestRunAllSavesFailNotifiesError verifies the user is told the batch was
// lost rather than getting a success digest over zero saved emails.
func TestRunAllSavesFailNotifiesError(t *testing.T) {
	f := newFixture()
	f.emails.upsertErr = map[string]error{
		"me@gmail.com:1": apperr.StoreFailed("email upsert", errors.New("connection refused")),
	}
	f.fetcher.perAccount["me@gmail.com"] = []*domain.Email{
		candidate("me@gmail.com:1", "报表"),
	}

	result, err := f.service.Run(context.Background(), 7, false)
	if err != nil {
		t.Fatal(err)
	}
	if result.Found != 1 || result.Saved != 0 {
		t.Errorf("result = %+v", result)
	}
	if len(f.digests.saved) != 0 {
		t.Errorf("digest built despite zero saved emails: %+v", f.digests.saved)
	}
	if len(f.notifications.saved) != 1 {
		t.Fatalf("notifications = %+v", f.notifications.saved)
	}
	n := f.notifications.saved[0]
	if n.Title != "邮件保存失败" || n.Type != domain.NotifyError {
		t.Errorf("notification = %+v", n)
	}
}
