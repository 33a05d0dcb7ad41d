// Package forward detects forwarded emails and extracts the original sender.
package forward

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"maildigest/core/domain"
	"maildigest/pkg/logger"
)

// HeaderGetter is satisfied by net/mail.Header and go-message headers.
type HeaderGetter interface {
	Get(key string) string
}

// HeaderMap adapts a plain map to HeaderGetter with case-insensitive keys.
type HeaderMap map[string]string

func (m HeaderMap) Get(key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	key = strings.ToLower(key)
	for k, v := range m {
		if strings.ToLower(k) == key {
			return v
		}
	}
	return ""
}

// Detection is the full forward analysis of one message.
type Detection struct {
	IsForwarded         bool
	Confidence          int
	OriginalSender      string
	OriginalSenderEmail string
	ForwardLevel        int
	ForwardChain        []domain.ForwardHop
}

// Confidence weights per signal dimension.
const (
	scoreHeader  = 40
	scoreSubject = 25
	scoreBody    = 20
	scoreHTML    = 15
)

var forwardedHeaders = []string{
	"X-Forwarded-For",
	"X-Forwarded-Message-Id",
	"Resent-From",
	"Resent-Sender",
	"X-Forwarded-To",
}

var subjectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(Fwd:|FW:|转发:|Trans:|Forward:|转:|Fw:)`),
	regexp.MustCompile(`(?i)^(Re:\s*)?(Fwd:|FW:|转发:)`),
}

var bodyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)-{3,}\s*(Original Message|Forwarded message|转发邮件)`),
	regexp.MustCompile(`(?im)Begin forwarded message:`),
	regexp.MustCompile(`(?im)---------- Forwarded message ---------`),
	regexp.MustCompile(`(?im)发件人:.*\n收件人:.*\n主题:`),
	// 126/163 forwards omit the recipient line.
	regexp.MustCompile(`(?im)发件人[:：].*\n主题[:：]`),
	regexp.MustCompile(`(?im)From:.*\nTo:.*\nSubject:`),
	regexp.MustCompile(`(?im)>\s*From:`),
	regexp.MustCompile(`(?im)On.*wrote:`),
}

var htmlMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<div class=["']gmail_quote["']`),
	regexp.MustCompile(`(?is)<blockquote.*?>.*?From:.*?</blockquote>`),
	regexp.MustCompile(`(?is)<div.*?forwarded.*?>`),
}

// senderPattern is one probe of the ordered extraction set. Name/email come
// from the from regex; subject/date enrich the forward chain when present.
type senderPattern struct {
	from    *regexp.Regexp
	subject *regexp.Regexp
	date    *regexp.Regexp
}

var senderPatterns = []senderPattern{
	// 126-style quoted sender, highest priority.
	{
		from:    regexp.MustCompile(`(?im)发件人[:：]\s*["“”'](.*?)["“”']?\s*<([^>]+)>`),
		subject: regexp.MustCompile(`(?im)主题[:：]\s*([^\n]+)`),
		date:    regexp.MustCompile(`(?im)发送日期[:：]\s*([^\n]+)`),
	},
	// Gmail / generic.
	{
		from:    regexp.MustCompile(`(?im)From:\s*([^\n<]+?)\s*<([^>]+)>`),
		subject: regexp.MustCompile(`(?im)Subject:\s*([^\n]+)`),
		date:    regexp.MustCompile(`(?im)Date:\s*([^\n]+)`),
	},
	// Chinese Outlook.
	{
		from:    regexp.MustCompile(`(?im)发件人:\s*([^\n<]+?)\s*<([^>]+)>`),
		subject: regexp.MustCompile(`(?im)主题:\s*([^\n]+)`),
		date:    regexp.MustCompile(`(?im)发送时间:\s*([^\n]+)`),
	},
	// Bare domestic address with no angle brackets.
	{
		from:    regexp.MustCompile(`(?im)发件人[:：]\s*([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`),
		subject: regexp.MustCompile(`(?im)主题[:：]\s*([^\n]+)`),
	},
	// Quoted From line.
	{
		from: regexp.MustCompile(`(?im)>\s*From:\s*([^\n]+)`),
	},
	// Chinese original-sender line.
	{
		from: regexp.MustCompile(`(?im)(?:原始)?发件人[:：]\s*([^\n<]+?)(?:\s*<([^>]+)>)?$`),
	},
	// Bare address.
	{
		from: regexp.MustCompile(`(?im)From:\s*([a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,})`),
	},
}

// Separator markers counted for the forward level.
var levelMarkers = []*regexp.Regexp{
	regexp.MustCompile(`(?im)-{3,}\s*(Original Message|Forwarded message)`),
	regexp.MustCompile(`(?im)Begin forwarded message:`),
	regexp.MustCompile(`(?im)发件人:.*\n收件人:.*\n主题:`),
}

var (
	emailRx       = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	angleAddrRx   = regexp.MustCompile(`<([^>]+)>`)
	nameAddrRx    = regexp.MustCompile(`([^<]+?)\s*<([^>]+)>`)
	spacesRx      = regexp.MustCompile(`\s+`)
	namePrefixRx  = regexp.MustCompile(`(?i)^(From|发件人|原始发件人)[:：]\s*`)
	gmailQuoteRx  = regexp.MustCompile(`(?is)<div[^>]*class=["']gmail_quote["'][^>]*>(.*?)</div>`)
	blockquoteRx  = regexp.MustCompile(`(?is)<blockquote[^>]*>(.*?)</blockquote>`)
	htmlFromRx    = regexp.MustCompile(`(?i)From:\s*([^\n<]+?)\s*<([^>]+)>`)
	tagStripRx    = regexp.MustCompile(`(?s)<[^>]*>`)
)

// Detector analyzes parsed messages.
type Detector struct {
	log zerolog.Logger
}

func NewDetector() *Detector {
	return &Detector{log: logger.Component("forward_detector")}
}

// Analyze runs detection and, for forwarded messages, sender extraction.
func (d *Detector) Analyze(header HeaderGetter, subject, body, bodyHTML string) Detection {
	det := Detection{}
	det.IsForwarded, det.Confidence = d.detect(header, subject, body, bodyHTML)
	if !det.IsForwarded {
		return det
	}

	name, email, level, chain := d.extractOriginalSender(header, body, bodyHTML)
	det.OriginalSender = name
	det.OriginalSenderEmail = email
	det.ForwardLevel = level
	det.ForwardChain = chain
	return det
}

// detect scores the four signal dimensions additively.
func (d *Detector) detect(header HeaderGetter, subject, body, bodyHTML string) (bool, int) {
	forwarded := false
	confidence := 0

	if header != nil {
		for _, h := range forwardedHeaders {
			if header.Get(h) != "" {
				forwarded = true
				confidence += scoreHeader
				break
			}
		}
	}

	for _, rx := range subjectPatterns {
		if rx.MatchString(subject) {
			forwarded = true
			confidence += scoreSubject
			break
		}
	}

	text := body
	if text == "" {
		text = bodyHTML
	}
	if text != "" {
		for _, rx := range bodyPatterns {
			if rx.MatchString(text) {
				forwarded = true
				confidence += scoreBody
				break
			}
		}
	}

	if bodyHTML != "" {
		for _, rx := range htmlMarkers {
			if rx.MatchString(bodyHTML) {
				forwarded = true
				confidence += scoreHTML
				break
			}
		}
	}

	if forwarded {
		d.log.Debug().Int("confidence", confidence).Str("subject", truncate(subject, 50)).Msg("forwarded email detected")
	}

	return forwarded, confidence
}

// extractOriginalSender tries Resent-From, then the ordered body regex set,
// then HTML probes. The first pattern yielding an email wins.
func (d *Detector) extractOriginalSender(header HeaderGetter, body, bodyHTML string) (string, string, int, []domain.ForwardHop) {
	var name, email string
	var chain []domain.ForwardHop

	if header != nil {
		if resent := header.Get("Resent-From"); resent != "" {
			name, email = ParseEmailAddress(resent)
			if email != "" {
				return CleanSenderName(name), ValidateEmail(email), 1, nil
			}
		}
	}

	text := body
	if text == "" {
		text = bodyHTML
	}

	if text != "" {
		for _, ps := range senderPatterns {
			m := ps.from.FindStringSubmatch(text)
			if m == nil {
				continue
			}

			if len(m) >= 3 && m[2] != "" {
				name = strings.TrimSpace(m[1])
				email = strings.TrimSpace(m[2])
			} else {
				v := strings.TrimSpace(m[1])
				if strings.Contains(v, "@") {
					email = v
					name = strings.SplitN(v, "@", 2)[0]
				} else {
					name = v
				}
			}

			if ps.subject != nil && email != "" {
				hop := domain.ForwardHop{FromName: name, FromEmail: email}
				if sm := ps.subject.FindStringSubmatch(text); sm != nil {
					hop.Subject = strings.TrimSpace(sm[1])
				}
				if ps.date != nil {
					if dm := ps.date.FindStringSubmatch(text); dm != nil {
						hop.Date = strings.TrimSpace(dm[1])
					}
				}
				chain = append(chain, hop)
			}
			break
		}
	}

	if email == "" && bodyHTML != "" {
		name, email = extractFromHTML(bodyHTML)
	}

	email = ValidateEmail(email)
	name = CleanSenderName(name)

	level := forwardLevel(body, bodyHTML)
	if level == 0 {
		if email != "" {
			level = 1
		}
	}

	return name, email, level, chain
}

// forwardLevel counts distinct separator matches; the caller maps zero to
// one-if-extracted.
func forwardLevel(body, bodyHTML string) int {
	text := body
	if text == "" {
		text = bodyHTML
	}
	if text == "" {
		return 0
	}

	count := 0
	for _, rx := range levelMarkers {
		if n := len(rx.FindAllString(text, -1)); n > count {
			count = n
		}
	}
	return count
}

// extractFromHTML probes Gmail quote divs and blockquotes for a From line.
func extractFromHTML(bodyHTML string) (string, string) {
	if m := gmailQuoteRx.FindStringSubmatch(bodyHTML); m != nil {
		inner := tagStripRx.ReplaceAllString(m[1], " ")
		if am := angleAddrRx.FindStringSubmatch(m[1]); am != nil {
			name := ""
			if nm := htmlFromRx.FindStringSubmatch(inner); nm != nil {
				name = strings.TrimSpace(nm[1])
			}
			return name, strings.TrimSpace(am[1])
		}
	}

	for _, m := range blockquoteRx.FindAllStringSubmatch(bodyHTML, -1) {
		inner := tagStripRx.ReplaceAllString(m[1], " ")
		if fm := htmlFromRx.FindStringSubmatch(inner); fm != nil {
			return strings.TrimSpace(fm[1]), strings.TrimSpace(fm[2])
		}
	}

	return "", ""
}

// ParseEmailAddress splits `Name <email>` or a bare address.
func ParseEmailAddress(s string) (string, string) {
	if s == "" {
		return "", ""
	}
	if m := nameAddrRx.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	}
	if strings.Contains(s, "@") {
		addr := strings.TrimSpace(s)
		return addr, addr
	}
	return strings.TrimSpace(s), ""
}

// ValidateEmail lowercases a syntactically valid address, else returns "".
func ValidateEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" || !emailRx.MatchString(email) {
		return ""
	}
	return strings.ToLower(email)
}

// CleanSenderName strips quotes, collapses whitespace and removes trailing
// addresses and From prefixes.
func CleanSenderName(name string) string {
	if name == "" {
		return ""
	}
	name = strings.Trim(name, `"'`)
	name = spacesRx.ReplaceAllString(name, " ")
	name = angleAddrRx.ReplaceAllString(name, "")
	name = namePrefixRx.ReplaceAllString(name, "")
	return strings.TrimSpace(name)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
