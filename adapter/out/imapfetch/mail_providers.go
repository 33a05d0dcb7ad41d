// Package imapfetch implements the mail fetcher port on emersion/go-imap.
package imapfetch

import (
	"strings"

	"maildigest/pkg/apperr"
)

// Endpoint is one provider registry entry.
type Endpoint struct {
	IMAPHost     string
	IMAPPort     int
	SMTPHost     string
	SMTPPort     int
	SMTPStartTLS bool
}

// providers is the fixed registry. The sina entry is a placeholder whose
// hosts are derived from the address domain at resolve time.
var providers = map[string]Endpoint{
	"gmail":   {IMAPHost: "imap.gmail.com", IMAPPort: 993, SMTPHost: "smtp.gmail.com", SMTPPort: 587, SMTPStartTLS: true},
	"126":     {IMAPHost: "imap.126.com", IMAPPort: 993, SMTPHost: "smtp.126.com", SMTPPort: 465},
	"163":     {IMAPHost: "imap.163.com", IMAPPort: 993, SMTPHost: "smtp.163.com", SMTPPort: 465},
	"qq":      {IMAPHost: "imap.qq.com", IMAPPort: 993, SMTPHost: "smtp.qq.com", SMTPPort: 587, SMTPStartTLS: true},
	"outlook": {IMAPHost: "imap-mail.outlook.com", IMAPPort: 993, SMTPHost: "smtp-mail.outlook.com", SMTPPort: 587, SMTPStartTLS: true},
	"hotmail": {IMAPHost: "imap-mail.outlook.com", IMAPPort: 993, SMTPHost: "smtp-mail.outlook.com", SMTPPort: 587, SMTPStartTLS: true},
	"yahoo":   {IMAPHost: "imap.mail.yahoo.com", IMAPPort: 993, SMTPHost: "smtp.mail.yahoo.com", SMTPPort: 587, SMTPStartTLS: true},
}

// sinaDomains are resolved from the full address domain, not the tag.
var sinaDomains = map[string]struct{}{
	"sina.com":     {},
	"sina.cn":      {},
	"vip.sina.com": {},
	"vip.sina.cn":  {},
}

// domainTags maps address domains to provider tags for auto-detection.
var domainTags = map[string]string{
	"gmail.com":   "gmail",
	"126.com":     "126",
	"163.com":     "163",
	"qq.com":      "qq",
	"outlook.com": "outlook",
	"hotmail.com": "hotmail",
	"yahoo.com":   "yahoo",
}

// DetectProvider maps an address to its provider tag. Sina addresses all
// map to the "sina" tag; the concrete endpoint is derived later from the
// address itself.
func DetectProvider(address string) (string, error) {
	domain := addressDomain(address)
	if domain == "" {
		return "", apperr.InvalidInput("address", "not a valid email address")
	}
	if tag, ok := domainTags[domain]; ok {
		return tag, nil
	}
	if _, ok := sinaDomains[domain]; ok {
		return "sina", nil
	}
	return "", apperr.ProviderUnknown(address)
}

// ResolveEndpoint returns the IMAP/SMTP endpoint for a provider tag. For
// "sina" the hosts follow the address's own domain.
func ResolveEndpoint(tag, address string) (Endpoint, error) {
	if tag == "sina" {
		domain := addressDomain(address)
		if _, ok := sinaDomains[domain]; !ok {
			return Endpoint{}, apperr.ProviderUnknown(address)
		}
		return Endpoint{
			IMAPHost: "imap." + domain,
			IMAPPort: 993,
			SMTPHost: "smtp." + domain,
			SMTPPort: 465,
		}, nil
	}
	ep, ok := providers[tag]
	if !ok {
		return Endpoint{}, apperr.ProviderUnknown(tag)
	}
	return ep, nil
}

func addressDomain(address string) string {
	address = strings.ToLower(strings.TrimSpace(address))
	i := strings.LastIndex(address, "@")
	if i <= 0 || i == len(address)-1 {
		return ""
	}
	return address[i+1:]
}

// loginHint returns provider-specific guidance appended to auth failures.
func loginHint(tag string) string {
	switch tag {
	case "qq":
		return "QQ mail requires enabling IMAP in web settings and logging in with an authorization code, not the account password"
	case "126", "163":
		return "NetEase mail requires a client authorization code and IMAP enabled in web settings"
	case "gmail":
		return "Gmail requires an app password when two-factor auth is enabled"
	default:
		return ""
	}
}
