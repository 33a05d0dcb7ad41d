package imapfetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-imap"
	id "github.com/emersion/go-imap-id"
	"github.com/emersion/go-imap/client"
	"github.com/rs/zerolog"

	"maildigest/core/domain"
	"maildigest/core/port/out"
	"maildigest/pkg/apperr"
	"maildigest/pkg/logger"
)

// Config for the IMAP fetcher.
type Config struct {
	Timeout       time.Duration
	ClientName    string
	ClientVersion string
	Vendor        string
	SupportEmail  string
	AttachmentDir string
	SubjectMax    int
	BodyMax       int
}

// Fetcher implements the mail fetcher port. One Fetch call is one full
// IMAP session; the fetcher never retries.
type Fetcher struct {
	cfg    Config
	parser *messageParser
	dial   func(addr, serverName string) (*client.Client, error)
	log    zerolog.Logger
}

func NewFetcher(cfg Config) *Fetcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ClientName == "" {
		cfg.ClientName = "maildigest"
	}
	if cfg.ClientVersion == "" {
		cfg.ClientVersion = "1.0.0"
	}
	return &Fetcher{
		cfg: cfg,
		parser: &messageParser{
			store:  NewAttachmentStore(cfg.AttachmentDir),
			limits: parseLimits{SubjectMax: cfg.SubjectMax, BodyMax: cfg.BodyMax},
		},
		dial: func(addr, serverName string) (*client.Client, error) {
			dialer := &net.Dialer{Timeout: cfg.Timeout}
			return client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: serverName})
		},
		log: logger.Component("imap"),
	}
}

// Fetch opens a session, searches INBOX since the UTC cutoff and parses
// each message. When capped it keeps the newest UIDs.
func (f *Fetcher) Fetch(ctx context.Context, req out.FetchRequest) ([]*domain.Email, error) {
	account := req.Account

	c, ep, err := f.connect(ctx, account)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", true); err != nil {
		return nil, apperr.IMAPTransport(ep.IMAPHost, ep.IMAPPort, fmt.Errorf("select INBOX: %w", err))
	}

	// SINCE takes a date, not an instant. UTC keeps morning mail from
	// UTC+8 accounts inside the window.
	since := time.Now().UTC().AddDate(0, 0, -req.SinceDays)
	criteria := imap.NewSearchCriteria()
	criteria.Since = time.Date(since.Year(), since.Month(), since.Day(), 0, 0, 0, 0, time.UTC)

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, apperr.IMAPTransport(ep.IMAPHost, ep.IMAPPort, fmt.Errorf("uid search: %w", err))
	}
	if len(uids) == 0 {
		f.log.Info().Str("account", account.Address).Msg("no new messages")
		return nil, nil
	}

	if req.MaxEmails > 0 && len(uids) > req.MaxEmails {
		uids = uids[len(uids)-req.MaxEmails:]
	}

	emails := f.fetchMessages(ctx, c, account, req.UserID, uids)

	f.log.Info().
		Str("account", account.Address).
		Int("uids", len(uids)).
		Int("parsed", len(emails)).
		Msg("fetch complete")

	return emails, nil
}

// TestConnection runs the session handshake without fetching.
func (f *Fetcher) TestConnection(ctx context.Context, account *domain.EmailAccount) error {
	c, ep, err := f.connect(ctx, account)
	if err != nil {
		return err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", true); err != nil {
		return apperr.IMAPTransport(ep.IMAPHost, ep.IMAPPort, fmt.Errorf("select INBOX: %w", err))
	}
	return nil
}

// connect dials, logs in and performs the provider ID handshake. The
// caller owns the returned client and must Logout.
func (f *Fetcher) connect(ctx context.Context, account *domain.EmailAccount) (*client.Client, Endpoint, error) {
	ep, err := ResolveEndpoint(account.ProviderTag, account.Address)
	if err != nil {
		return nil, ep, err
	}

	addr := fmt.Sprintf("%s:%d", ep.IMAPHost, ep.IMAPPort)

	c, err := f.dial(addr, ep.IMAPHost)
	if err != nil {
		return nil, ep, apperr.IMAPTransport(ep.IMAPHost, ep.IMAPPort, err)
	}
	c.Timeout = f.cfg.Timeout

	if err := c.Login(account.Address, account.CredentialSecret); err != nil {
		c.Logout()
		if hint := loginHint(account.ProviderTag); hint != "" {
			err = fmt.Errorf("%w (%s)", err, hint)
		}
		return nil, ep, apperr.AuthFailed(account.Address, err)
	}

	// NetEase servers reject SELECT with "Unsafe Login" until the client
	// identifies itself. A non-OK ID response is logged and ignored.
	if account.ProviderTag == "126" || account.ProviderTag == "163" {
		idClient := id.NewClient(c)
		_, err := idClient.ID(id.ID{
			"name":          f.cfg.ClientName,
			"version":       f.cfg.ClientVersion,
			"vendor":        f.cfg.Vendor,
			"support-email": f.cfg.SupportEmail,
		})
		if err != nil {
			f.log.Warn().Err(err).Str("account", account.Address).Msg("IMAP ID command not accepted")
		}
	}

	return c, ep, nil
}

// fetchMessages pulls RFC822 payloads for the UIDs and parses each one.
// Per-message parse failures are skipped.
func (f *Fetcher) fetchMessages(ctx context.Context, c *client.Client, account *domain.EmailAccount, userID int64, uids []uint32) []*domain.Email {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, messages)
	}()

	var emails []*domain.Email
	for msg := range messages {
		if ctx.Err() != nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			f.log.Warn().Err(err).Uint32("uid", msg.Uid).Msg("message body read failed")
			continue
		}
		email, err := f.parser.Parse(raw, account, msg.Uid, userID)
		if err != nil {
			f.log.Warn().Err(err).Uint32("uid", msg.Uid).Str("account", account.Address).Msg("message parse failed")
			continue
		}
		emails = append(emails, email)
	}

	if err := <-done; err != nil {
		f.log.Warn().Err(err).Str("account", account.Address).Msg("uid fetch ended with error")
	}

	return emails
}

var _ out.MailFetcherPort = (*Fetcher)(nil)
