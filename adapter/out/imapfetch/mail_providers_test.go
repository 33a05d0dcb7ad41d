package imapfetch

import (
	"testing"

	"maildigest/pkg/apperr"
)

// TestDetectProvider tests domain-to-tag mapping.
func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    string
		wantErr bool
	}{
		{name: "gmail", address: "alice@gmail.com", want: "gmail"},
		{name: "netease 126", address: "bob@126.com", want: "126"},
		{name: "netease 163", address: "bob@163.com", want: "163"},
		{name: "qq", address: "carol@qq.com", want: "qq"},
		{name: "outlook", address: "dan@outlook.com", want: "outlook"},
		{name: "hotmail", address: "dan@hotmail.com", want: "hotmail"},
		{name: "sina vip", address: "eve@vip.sina.cn", want: "sina"},
		{name: "case insensitive", address: "Alice@GMAIL.com", want: "gmail"},
		{name: "unknown domain", address: "x@corp.example", wantErr: true},
		{name: "not an address", address: "nope", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectProvider(tt.address)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("DetectProvider(%q) = %q, want %q", tt.address, got, tt.want)
			}
		})
	}
}

// TestResolveEndpoint tests registry lookups and sina domain derivation.
func TestResolveEndpoint(t *testing.T) {
	ep, err := ResolveEndpoint("gmail", "alice@gmail.com")
	if err != nil {
		t.Fatal(err)
	}
	if ep.IMAPHost != "imap.gmail.com" || ep.IMAPPort != 993 {
		t.Errorf("gmail endpoint = %+v", ep)
	}
	if !ep.SMTPStartTLS || ep.SMTPPort != 587 {
		t.Errorf("gmail smtp = %+v", ep)
	}

	ep, err = ResolveEndpoint("163", "bob@163.com")
	if err != nil {
		t.Fatal(err)
	}
	if ep.SMTPStartTLS || ep.SMTPPort != 465 {
		t.Errorf("163 smtp = %+v", ep)
	}

	ep, err = ResolveEndpoint("sina", "eve@vip.sina.com")
	if err != nil {
		t.Fatal(err)
	}
	if ep.IMAPHost != "imap.vip.sina.com" || ep.SMTPHost != "smtp.vip.sina.com" {
		t.Errorf("sina endpoint = %+v", ep)
	}

	if _, err := ResolveEndpoint("sina", "eve@gmail.com"); err == nil {
		t.Error("sina tag with non-sina address should fail")
	}
	if _, err := ResolveEndpoint("unknown", "x@y.com"); !apperr.IsAppError(err) {
		t.Error("unknown tag should return a typed error")
	}
}
