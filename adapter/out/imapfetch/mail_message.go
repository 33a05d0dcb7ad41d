package imapfetch

import (
	"fmt"
	"io"
	"mime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message/charset"
	gomail "github.com/emersion/go-message/mail"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/simplifiedchinese"

	"maildigest/core/domain"
	"maildigest/pkg/apperr"
)

func init() {
	// Chinese providers still emit gb2312/gbk bodies. GB18030 is a
	// superset of both.
	charset.RegisterEncoding("gb2312", simplifiedchinese.GB18030)
	charset.RegisterEncoding("gbk", simplifiedchinese.GB18030)
	charset.RegisterEncoding("gb18030", simplifiedchinese.GB18030)
}

// parseLimits caps envelope and body sizes before store.
type parseLimits struct {
	SubjectMax int
	BodyMax    int
}

// messageParser turns a raw RFC822 payload into a candidate Email.
type messageParser struct {
	store  *AttachmentStore
	limits parseLimits
}

// Parse decodes one raw message. Attachment failures are skipped, not
// fatal; a header parse failure is.
func (p *messageParser) Parse(raw []byte, account *domain.EmailAccount, uid uint32, userID int64) (*domain.Email, error) {
	emailID := fmt.Sprintf("%s:%d", account.Address, uid)

	mr, err := gomail.CreateReader(strings.NewReader(string(raw)))
	if err != nil && mr == nil {
		return nil, apperr.ParseFailed(uid, err)
	}

	header := mr.Header

	subject := decodeHeaderValue(header.Get("Subject"))
	sender := decodeHeaderValue(header.Get("From"))
	recipients := parseRecipients(header)

	date, derr := header.Date()
	if derr != nil || date.IsZero() {
		date = time.Now()
	}

	rawHeaders := make(map[string]string)
	for _, key := range []string{"X-Forwarded-For", "X-Forwarded-Message-Id", "Resent-From", "Resent-Sender", "X-Forwarded-To"} {
		if v := header.Get(key); v != "" {
			rawHeaders[key] = v
		}
	}

	email := &domain.Email{
		UserID:         userID,
		EmailID:        emailID,
		Subject:        truncateRunes(subject, p.limits.SubjectMax),
		Sender:         sender,
		Recipients:     recipients,
		Date:           date.UTC(),
		AccountAddress: account.Address,
		ProviderTag:    account.ProviderTag,
		RawHeaders:     rawHeaders,
	}

	var plain, html strings.Builder
	for {
		part, perr := mr.NextPart()
		if perr == io.EOF {
			break
		}
		if perr != nil {
			// Keep what we have; malformed trailing parts are common.
			break
		}

		switch h := part.Header.(type) {
		case *gomail.InlineHeader:
			mediaType, _, _ := h.ContentType()
			data, rerr := io.ReadAll(part.Body)
			if rerr != nil {
				continue
			}
			switch {
			case strings.EqualFold(mediaType, "text/html"):
				html.WriteString(decodeText(data))
			case strings.EqualFold(mediaType, "text/plain"), mediaType == "":
				plain.WriteString(decodeText(data))
			}
		case *gomail.AttachmentHeader:
			filename, _ := h.Filename()
			filename = decodeHeaderValue(filename)
			if filename == "" {
				continue
			}
			data, rerr := io.ReadAll(part.Body)
			if rerr != nil || len(data) == 0 {
				continue
			}
			contentType, _, _ := h.ContentType()
			att, serr := p.store.Save(userID, emailID, filename, contentType, data)
			if serr != nil {
				p.store.log.Warn().Err(serr).Str("email_id", emailID).Msg("attachment skipped")
				continue
			}
			email.Attachments = append(email.Attachments, att)
		}
	}

	email.Body = truncateRunes(strings.TrimSpace(plain.String()), p.limits.BodyMax)
	email.BodyHTML = strings.TrimSpace(html.String())
	return email, nil
}

// parseRecipients joins every To header, preferring structured addresses.
func parseRecipients(header gomail.Header) []string {
	if addrs, err := header.AddressList("To"); err == nil && len(addrs) > 0 {
		out := make([]string, 0, len(addrs))
		for _, a := range addrs {
			if a.Name != "" {
				out = append(out, fmt.Sprintf("%s <%s>", a.Name, a.Address))
			} else {
				out = append(out, a.Address)
			}
		}
		return out
	}

	var out []string
	fields := header.FieldsByKey("To")
	for fields.Next() {
		if v, err := fields.Text(); err == nil && strings.TrimSpace(v) != "" {
			out = append(out, decodeHeaderValue(v))
		}
	}
	return out
}

var wordDecoder = mime.WordDecoder{
	CharsetReader: charset.Reader,
}

// decodeHeaderValue resolves MIME encoded words, falling back to the raw
// value when decoding fails.
func decodeHeaderValue(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if decoded, err := wordDecoder.DecodeHeader(value); err == nil {
		return decoded
	}
	return value
}

// decodeText runs the fallback chain utf-8, gb18030, latin1, utf-8 with
// replacement over an already transfer-decoded payload.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	if out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(data); err == nil && utf8.Valid(out) {
		return string(out)
	}
	if out, err := charmap.ISO8859_1.NewDecoder().Bytes(data); err == nil {
		return string(out)
	}
	return strings.ToValidUTF8(string(data), "�")
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
