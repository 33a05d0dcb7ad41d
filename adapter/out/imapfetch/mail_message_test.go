package imapfetch

import (
	"strings"
	"testing"
	"time"

	"maildigest/core/domain"
)

func testAccount() *domain.EmailAccount {
	return &domain.EmailAccount{
		UserID:      7,
		Address:     "me@gmail.com",
		ProviderTag: "gmail",
	}
}

func testParser(t *testing.T) *messageParser {
	t.Helper()
	return &messageParser{
		store:  NewAttachmentStore(t.TempDir()),
		limits: parseLimits{SubjectMax: 500, BodyMax: 5000},
	}
}

// TestParseMultipart tests envelope extraction and body accumulation.
func TestParseMultipart(t *testing.T) {
	raw := strings.Join([]string{
		"From: Alice <alice@corp.com>",
		"To: me@gmail.com, Bob <bob@corp.com>",
		"Subject: weekly report",
		"Date: Tue, 25 Aug 2026 18:30:00 +0800",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
		"plain body here",
		"--b1",
		`Content-Type: text/html; charset="utf-8"`,
		"",
		"<p>html body here</p>",
		"--b1--",
		"",
	}, "\r\n")

	p := testParser(t)
	email, err := p.Parse([]byte(raw), testAccount(), 991, 7)
	if err != nil {
		t.Fatal(err)
	}

	if email.EmailID != "me@gmail.com:991" {
		t.Errorf("EmailID = %q", email.EmailID)
	}
	if email.Subject != "weekly report" {
		t.Errorf("Subject = %q", email.Subject)
	}
	if !strings.Contains(email.Sender, "alice@corp.com") {
		t.Errorf("Sender = %q", email.Sender)
	}
	if len(email.Recipients) != 2 {
		t.Fatalf("Recipients = %v", email.Recipients)
	}
	if email.Recipients[1] != "Bob <bob@corp.com>" {
		t.Errorf("Recipients[1] = %q", email.Recipients[1])
	}

	// 18:30 +08:00 is 10:30 UTC.
	want := time.Date(2026, 8, 25, 10, 30, 0, 0, time.UTC)
	if !email.Date.Equal(want) {
		t.Errorf("Date = %v, want %v", email.Date, want)
	}
	if email.Date.Location() != time.UTC {
		t.Error("date must be stored in UTC")
	}

	if email.Body != "plain body here" {
		t.Errorf("Body = %q", email.Body)
	}
	if !strings.Contains(email.BodyHTML, "html body here") {
		t.Errorf("BodyHTML = %q", email.BodyHTML)
	}
	if email.ProviderTag != "gmail" || email.AccountAddress != "me@gmail.com" {
		t.Errorf("account fields = %q %q", email.ProviderTag, email.AccountAddress)
	}
}

// TestParseEncodedSubject tests MIME word decoding for Chinese headers.
func TestParseEncodedSubject(t *testing.T) {
	raw := strings.Join([]string{
		"From: boss@corp.com",
		"To: me@gmail.com",
		"Subject: =?utf-8?B?6aG555uu6L+b5bqm?=",
		"Date: Tue, 25 Aug 2026 10:00:00 +0000",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
		"body",
		"",
	}, "\r\n")

	p := testParser(t)
	email, err := p.Parse([]byte(raw), testAccount(), 1, 7)
	if err != nil {
		t.Fatal(err)
	}
	if email.Subject != "项目进度" {
		t.Errorf("Subject = %q", email.Subject)
	}
	if email.Body != "body" {
		t.Errorf("Body = %q", email.Body)
	}
}

// TestParseAttachment tests that accepted attachments are stored and
// rejected ones skipped without failing the message.
func TestParseAttachment(t *testing.T) {
	raw := strings.Join([]string{
		"From: a@b.com",
		"To: me@gmail.com",
		"Subject: files",
		"Date: Tue, 25 Aug 2026 10:00:00 +0000",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="b2"`,
		"",
		"--b2",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
		"see attached",
		"--b2",
		"Content-Type: application/pdf",
		`Content-Disposition: attachment; filename="report.pdf"`,
		"Content-Transfer-Encoding: base64",
		"",
		"JVBERi0xLjQ=",
		"--b2",
		"Content-Type: application/x-msdownload",
		`Content-Disposition: attachment; filename="virus.exe"`,
		"",
		"MZ",
		"--b2--",
		"",
	}, "\r\n")

	p := testParser(t)
	email, err := p.Parse([]byte(raw), testAccount(), 42, 7)
	if err != nil {
		t.Fatal(err)
	}
	if email.Body != "see attached" {
		t.Errorf("Body = %q", email.Body)
	}
	if len(email.Attachments) != 1 {
		t.Fatalf("Attachments = %+v", email.Attachments)
	}
	att := email.Attachments[0]
	if att.OriginalFilename != "report.pdf" || att.ContentType != "application/pdf" {
		t.Errorf("attachment = %+v", att)
	}
	if att.Size != 8 {
		t.Errorf("Size = %d, want 8 decoded bytes", att.Size)
	}
}

// TestTruncateRunes tests the store-side caps.
func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("好好好好", 2); got != "好好" {
		t.Errorf("truncateRunes = %q", got)
	}
	if got := truncateRunes("short", 10); got != "short" {
		t.Errorf("truncateRunes = %q", got)
	}
	if got := truncateRunes("uncapped", 0); got != "uncapped" {
		t.Errorf("truncateRunes = %q", got)
	}
}

func TestDecodeTextFallback(t *testing.T) {
	// "你好" in GBK.
	gbk := []byte{0xc4, 0xe3, 0xba, 0xc3}
	if got := decodeText(gbk); got != "你好" {
		t.Errorf("decodeText(gbk) = %q", got)
	}
	if got := decodeText([]byte("plain ascii")); got != "plain ascii" {
		t.Errorf("decodeText(ascii) = %q", got)
	}
}
