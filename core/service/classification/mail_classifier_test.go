package classification

import (
	"context"
	"testing"
	"time"

	"maildigest/core/domain"
)

// TestMatchSender tests the sender matching primitives.
func TestMatchSender(t *testing.T) {
	tests := []struct {
		name      string
		sender    string
		pattern   string
		matchType string
		want      bool
	}{
		{
			name:      "exact match",
			sender:    "Alice@Corp.com",
			pattern:   "alice@corp.com",
			matchType: domain.MatchExact,
			want:      true,
		},
		{
			name:      "exact mismatch",
			sender:    "bob@corp.com",
			pattern:   "alice@corp.com",
			matchType: domain.MatchExact,
			want:      false,
		},
		{
			name:      "contains",
			sender:    "billing-noreply@shop.example.com",
			pattern:   "billing",
			matchType: domain.MatchContains,
			want:      true,
		},
		{
			name:      "domain with @ anchors the suffix",
			sender:    "noreply@billing.example.com",
			pattern:   "@billing.example.com",
			matchType: domain.MatchDomain,
			want:      true,
		},
		{
			name:      "domain with @ rejects partial suffix",
			sender:    "noreply@example.com",
			pattern:   "@billing.example.com",
			matchType: domain.MatchDomain,
			want:      false,
		},
		{
			name:      "domain without @ falls back to substring",
			sender:    "noreply@billing.example.com",
			pattern:   "example.com",
			matchType: domain.MatchDomain,
			want:      true,
		},
		{
			name:      "wildcard over whole address",
			sender:    "student@mail.tsinghua.edu.cn",
			pattern:   "*@*.edu.cn",
			matchType: domain.MatchWildcard,
			want:      true,
		},
		{
			name:      "wildcard mismatch",
			sender:    "student@example.com",
			pattern:   "*@*.edu.cn",
			matchType: domain.MatchWildcard,
			want:      false,
		},
		{
			name:      "regex case-insensitive search",
			sender:    "Alerts@Bank.com",
			pattern:   "^alerts@",
			matchType: domain.MatchRegex,
			want:      true,
		},
		{
			name:      "invalid regex never matches",
			sender:    "a@b.com",
			pattern:   "([",
			matchType: domain.MatchRegex,
			want:      false,
		},
		{
			name:      "unknown type falls back to contains",
			sender:    "team@corp.com",
			pattern:   "corp",
			matchType: "fuzzy",
			want:      true,
		},
		{
			name:      "empty pattern never matches",
			sender:    "a@b.com",
			pattern:   "",
			matchType: domain.MatchExact,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchSender(tt.sender, tt.pattern, tt.matchType); got != tt.want {
				t.Errorf("MatchSender() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestMatchKeywords tests AND/OR keyword combination.
func TestMatchKeywords(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		keywords []string
		logic    string
		want     bool
	}{
		{name: "empty keywords always match", text: "anything", keywords: nil, logic: domain.LogicOR, want: true},
		{name: "empty text never matches non-empty keywords", text: "", keywords: []string{"a"}, logic: domain.LogicOR, want: false},
		{name: "OR needs one hit", text: "Quarterly report attached", keywords: []string{"invoice", "report"}, logic: domain.LogicOR, want: true},
		{name: "AND needs all hits", text: "Quarterly report attached", keywords: []string{"quarterly", "report"}, logic: domain.LogicAND, want: true},
		{name: "AND fails on one miss", text: "Quarterly report attached", keywords: []string{"quarterly", "invoice"}, logic: domain.LogicAND, want: false},
		{name: "case insensitive", text: "URGENT update", keywords: []string{"urgent"}, logic: domain.LogicOR, want: true},
		{name: "blank keywords are skipped", text: "hello", keywords: []string{"", "  "}, logic: domain.LogicAND, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchKeywords(tt.text, tt.keywords, tt.logic); got != tt.want {
				t.Errorf("MatchKeywords() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestMatchRule tests whole-rule evaluation.
func TestMatchRule(t *testing.T) {
	email := &domain.Email{
		Sender:  "noreply@billing.example.com",
		Subject: "Invoice for September",
		Body:    "Your payment of $42 is due.",
	}

	tests := []struct {
		name string
		rule domain.ClassificationRule
		want bool
	}{
		{
			name: "sender and subject both match",
			rule: domain.ClassificationRule{
				IsActive:        true,
				SenderPattern:   "@billing.example.com",
				SenderMatchType: domain.MatchDomain,
				SubjectKeywords: []string{"invoice"},
			},
			want: true,
		},
		{
			name: "sender miss short-circuits",
			rule: domain.ClassificationRule{
				IsActive:        true,
				SenderPattern:   "@other.example.com",
				SenderMatchType: domain.MatchDomain,
				SubjectKeywords: []string{"invoice"},
			},
			want: false,
		},
		{
			name: "inactive rule never matches",
			rule: domain.ClassificationRule{
				IsActive:        false,
				SenderPattern:   "@billing.example.com",
				SenderMatchType: domain.MatchDomain,
			},
			want: false,
		},
		{
			name: "rule with no dimensions is inert",
			rule: domain.ClassificationRule{IsActive: true},
			want: false,
		},
		{
			name: "body keywords use OR",
			rule: domain.ClassificationRule{
				IsActive:     true,
				BodyKeywords: []string{"refund", "payment"},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchRule(&tt.rule, email); got != tt.want {
				t.Errorf("MatchRule() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestRuleScore tests tie-break scoring.
func TestRuleScore(t *testing.T) {
	tests := []struct {
		name string
		rule domain.ClassificationRule
		want int
	}{
		{
			name: "exact sender with one dimension",
			rule: domain.ClassificationRule{
				Priority:        5,
				SenderPattern:   "a@b.com",
				SenderMatchType: domain.MatchExact,
			},
			want: 5 + 10 + 5,
		},
		{
			name: "domain sender with all three dimensions",
			rule: domain.ClassificationRule{
				Priority:        10,
				SenderPattern:   "@b.com",
				SenderMatchType: domain.MatchDomain,
				SubjectKeywords: []string{"x"},
				BodyKeywords:    []string{"y"},
			},
			want: 10 + 5 + 15,
		},
		{
			name: "keywords only",
			rule: domain.ClassificationRule{
				Priority:        1,
				SenderMatchType: domain.MatchContains,
				SubjectKeywords: []string{"x"},
			},
			want: 1 + 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RuleScore(&tt.rule); got != tt.want {
				t.Errorf("RuleScore() = %d, want %d", got, tt.want)
			}
		})
	}
}

// fakeRuleRepo implements domain.RuleRepository for classifier tests.
type fakeRuleRepo struct {
	rules       []*domain.ClassificationRule
	incremented []int64
	listErr     error
}

func (f *fakeRuleRepo) Create(*domain.ClassificationRule) error        { return nil }
func (f *fakeRuleRepo) Update(*domain.ClassificationRule) error        { return nil }
func (f *fakeRuleRepo) Delete(int64, int64) error                      { return nil }
func (f *fakeRuleRepo) SetActive(int64, int64, bool) error             { return nil }
func (f *fakeRuleRepo) GetByID(int64, int64) (*domain.ClassificationRule, error) {
	return nil, nil
}
func (f *fakeRuleRepo) List(int64) ([]*domain.ClassificationRule, error) {
	return f.rules, nil
}
func (f *fakeRuleRepo) ListActive(int64) ([]*domain.ClassificationRule, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var active []*domain.ClassificationRule
	for _, r := range f.rules {
		if r.IsActive {
			active = append(active, r)
		}
	}
	return active, nil
}
func (f *fakeRuleRepo) IncrementMatch(id int64, _ time.Time) error {
	f.incremented = append(f.incremented, id)
	return nil
}

// TestClassifier tests the four-layer decision.
func TestClassifier(t *testing.T) {
	financeRule := &domain.ClassificationRule{
		ID:               1,
		RuleName:         "billing",
		IsActive:         true,
		SenderPattern:    "@billing.example.com",
		SenderMatchType:  domain.MatchDomain,
		TargetCategory:   domain.CategoryFinance,
		TargetImportance: 3,
		Priority:         10,
	}

	tests := []struct {
		name           string
		rules          []*domain.ClassificationRule
		email          domain.Email
		wantCategory   string
		wantImportance int
		wantMethod     string
	}{
		{
			name:  "rule wins over keyword",
			rules: []*domain.ClassificationRule{financeRule},
			email: domain.Email{
				Sender:  "noreply@billing.example.com",
				Subject: "Invoice",
				Body:    "会议安排已更新",
			},
			wantCategory:   domain.CategoryFinance,
			wantImportance: 3,
			wantMethod:     domain.MethodRule,
		},
		{
			name: "highest scoring rule wins",
			rules: []*domain.ClassificationRule{
				{
					ID: 2, IsActive: true, Priority: 1,
					SenderPattern: "billing", SenderMatchType: domain.MatchContains,
					TargetCategory: domain.CategoryWork, TargetImportance: 2,
				},
				financeRule,
			},
			email: domain.Email{
				Sender:  "noreply@billing.example.com",
				Subject: "Invoice",
			},
			wantCategory:   domain.CategoryFinance,
			wantImportance: 3,
			wantMethod:     domain.MethodRule,
		},
		{
			name: "keyword fallback with high importance",
			email: domain.Email{
				Sender:  "hr@corp.com",
				Subject: "紧急: 项目进度",
				Body:    "请尽快同步项目状态",
			},
			wantCategory:   domain.CategoryWork,
			wantImportance: 3,
			wantMethod:     domain.MethodKeyword,
		},
		{
			name: "default when nothing matches",
			email: domain.Email{
				Sender:  "zz@zzmail.org",
				Subject: "hello",
				Body:    "hello again",
			},
			wantCategory:   domain.CategoryGeneral,
			wantImportance: 1,
			wantMethod:     domain.MethodDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &fakeRuleRepo{rules: tt.rules}
			c := NewClassifier(repo)

			got := c.Classify(context.Background(), &tt.email)
			if got.Category != tt.wantCategory {
				t.Errorf("Category = %q, want %q", got.Category, tt.wantCategory)
			}
			if got.Importance != tt.wantImportance {
				t.Errorf("Importance = %d, want %d", got.Importance, tt.wantImportance)
			}
			if got.Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", got.Method, tt.wantMethod)
			}
		})
	}
}

// TestClassifierIncrementsMatchCount verifies the matched rule is bumped.
func TestClassifierIncrementsMatchCount(t *testing.T) {
	repo := &fakeRuleRepo{rules: []*domain.ClassificationRule{{
		ID: 7, IsActive: true,
		SenderPattern:   "a@b.com",
		SenderMatchType: domain.MatchExact,
		TargetCategory:  domain.CategoryWork, TargetImportance: 2,
	}}}
	c := NewClassifier(repo)

	c.Classify(context.Background(), &domain.Email{Sender: "a@b.com"})

	if len(repo.incremented) != 1 || repo.incremented[0] != 7 {
		t.Errorf("incremented = %v, want [7]", repo.incremented)
	}
}

// TestClassifierDeterministic verifies repeat classification is stable.
func TestClassifierDeterministic(t *testing.T) {
	c := NewClassifier(&fakeRuleRepo{})
	email := &domain.Email{Sender: "shop@store.com", Subject: "你的订单已发货", Body: "物流单号 123"}

	first := c.Classify(context.Background(), email)
	second := c.Classify(context.Background(), email)
	if first != second {
		t.Errorf("classification not deterministic: %+v vs %+v", first, second)
	}
	if first.Category != domain.CategoryShopping {
		t.Errorf("Category = %q, want shopping", first.Category)
	}
}
