package forward

import (
	"testing"
)

type fakeHeader map[string]string

func (h fakeHeader) Get(key string) string { return h[key] }

// TestDetect tests the additive confidence scoring.
func TestDetect(t *testing.T) {
	tests := []struct {
		name           string
		header         fakeHeader
		subject        string
		body           string
		bodyHTML       string
		wantForwarded  bool
		wantConfidence int
	}{
		{
			name:           "plain email",
			subject:        "Lunch tomorrow?",
			body:           "Are you free at noon?",
			wantForwarded:  false,
			wantConfidence: 0,
		},
		{
			name:           "forward header alone",
			header:         fakeHeader{"X-Forwarded-For": "someone"},
			subject:        "status",
			body:           "see below",
			wantForwarded:  true,
			wantConfidence: 40,
		},
		{
			name:           "subject prefix alone",
			subject:        "Fwd: weekly report",
			body:           "see below",
			wantForwarded:  true,
			wantConfidence: 25,
		},
		{
			name:           "subject prefix with leading Re",
			subject:        "Re: Fwd: weekly report",
			body:           "plain",
			wantForwarded:  true,
			wantConfidence: 25,
		},
		{
			name:           "gmail separator in body",
			subject:        "notes",
			body:           "---------- Forwarded message ---------\nFrom: a@b.com",
			wantForwarded:  true,
			wantConfidence: 20,
		},
		{
			name:           "subject and body and html",
			subject:        "FW: invoice",
			body:           "Begin forwarded message:\nFrom: billing <b@x.com>",
			bodyHTML:       `<div class="gmail_quote">From: billing &lt;b@x.com&gt;</div>`,
			wantForwarded:  true,
			wantConfidence: 60,
		},
		{
			name:           "header subject body html all fire",
			header:         fakeHeader{"Resent-From": "c@d.com"},
			subject:        "转发: 周报",
			body:           "-------- Original Message --------",
			bodyHTML:       `<blockquote>From: x <x@y.com></blockquote>`,
			wantForwarded:  true,
			wantConfidence: 100,
		},
	}

	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forwarded, confidence := d.detect(tt.header, tt.subject, tt.body, tt.bodyHTML)
			if forwarded != tt.wantForwarded {
				t.Errorf("forwarded = %v, want %v", forwarded, tt.wantForwarded)
			}
			if confidence != tt.wantConfidence {
				t.Errorf("confidence = %d, want %d", confidence, tt.wantConfidence)
			}
		})
	}
}

// TestAnalyzeForwardBlock covers the 126-style quoted sender block.
func TestAnalyzeForwardBlock(t *testing.T) {
	d := NewDetector()

	body := "发件人: \"Alice Zhou\" <alice@corp.com>\n主题: Project status\n发送日期: 2025-09-30"
	det := d.Analyze(fakeHeader{}, "Fwd: Project status", body, "")

	if !det.IsForwarded {
		t.Fatal("expected forwarded")
	}
	if det.Confidence < 45 {
		t.Errorf("confidence = %d, want >= 45", det.Confidence)
	}
	if det.OriginalSender != "Alice Zhou" {
		t.Errorf("original sender = %q, want Alice Zhou", det.OriginalSender)
	}
	if det.OriginalSenderEmail != "alice@corp.com" {
		t.Errorf("original email = %q, want alice@corp.com", det.OriginalSenderEmail)
	}
	if det.ForwardLevel < 1 {
		t.Errorf("forward level = %d, want >= 1", det.ForwardLevel)
	}
	if len(det.ForwardChain) != 1 {
		t.Fatalf("chain length = %d, want 1", len(det.ForwardChain))
	}
	hop := det.ForwardChain[0]
	if hop.Subject != "Project status" || hop.Date != "2025-09-30" {
		t.Errorf("chain hop = %+v", hop)
	}
}

// TestExtractOriginalSender tests the ordered probe set.
func TestExtractOriginalSender(t *testing.T) {
	tests := []struct {
		name      string
		header    fakeHeader
		body      string
		bodyHTML  string
		wantName  string
		wantEmail string
		wantLevel int
	}{
		{
			name:      "resent-from header wins",
			header:    fakeHeader{"Resent-From": "Bob Li <bob@corp.com>"},
			body:      "From: other <other@x.com>",
			wantName:  "Bob Li",
			wantEmail: "bob@corp.com",
			wantLevel: 1,
		},
		{
			name:      "generic from line",
			body:      "---------- Forwarded message ---------\nFrom: Carol <carol@example.org>\nSubject: hi\nDate: Mon",
			wantName:  "Carol",
			wantEmail: "carol@example.org",
			wantLevel: 1,
		},
		{
			name:      "bare address after 发件人",
			body:      "原邮件如下\n发件人：dave@163.com\n主题：测试",
			wantName:  "dave",
			wantEmail: "dave@163.com",
			wantLevel: 1,
		},
		{
			name:      "html blockquote fallback",
			bodyHTML:  `<blockquote><p>From: Eve Wang <eve@corp.cn></p></blockquote>`,
			wantName:  "Eve Wang",
			wantEmail: "eve@corp.cn",
			wantLevel: 1,
		},
		{
			name:      "invalid address rejected",
			body:      "> From: not-an-address",
			wantName:  "not-an-address",
			wantEmail: "",
			wantLevel: 0,
		},
		{
			name:      "two separators give level two",
			body:      "Begin forwarded message:\nFrom: a <a@x.com>\nBegin forwarded message:\nFrom: b <b@x.com>",
			wantName:  "a",
			wantEmail: "a@x.com",
			wantLevel: 2,
		},
	}

	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, email, level, _ := d.extractOriginalSender(tt.header, tt.body, tt.bodyHTML)
			if name != tt.wantName {
				t.Errorf("name = %q, want %q", name, tt.wantName)
			}
			if email != tt.wantEmail {
				t.Errorf("email = %q, want %q", email, tt.wantEmail)
			}
			if level != tt.wantLevel {
				t.Errorf("level = %d, want %d", level, tt.wantLevel)
			}
		})
	}
}

// TestCleanSenderName tests name normalization.
func TestCleanSenderName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "strip quotes", in: `"Alice"`, want: "Alice"},
		{name: "collapse spaces", in: "Alice   Zhou", want: "Alice Zhou"},
		{name: "strip trailing address", in: "Alice <alice@x.com>", want: "Alice"},
		{name: "strip From prefix", in: "From: Alice", want: "Alice"},
		{name: "strip Chinese prefix", in: "原始发件人：张三", want: "张三"},
		{name: "empty stays empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CleanSenderName(tt.in); got != tt.want {
				t.Errorf("CleanSenderName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestValidateEmail tests address validation.
func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "valid lowercased", in: "Alice@Corp.COM", want: "alice@corp.com"},
		{name: "trimmed", in: "  a@b.io  ", want: "a@b.io"},
		{name: "no tld", in: "a@b", want: ""},
		{name: "not an address", in: "hello", want: ""},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateEmail(tt.in); got != tt.want {
				t.Errorf("ValidateEmail(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
