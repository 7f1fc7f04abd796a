// Package mailbox wraps the remote IMAP/SMTP protocol pair behind the
// operations the forwarding task needs: enumerate unread mail since a
// watermark, forward or substitute-notify, flip read flags, and send
// notification mail from the account itself.
package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// faultTolerantAttempts is the internal connection retry budget of the
// fault-tolerant session variant
const faultTolerantAttempts = 3

// Config describes one account's mailbox access
type Config struct {
	Server     string // IMAP host:port
	SMTPServer string // submission host:port; derived from Server when empty
	Email      string // primary SMTP address, used as the From of sent mail
	Username   string
	Password   string
	ForwardTo  string // destination for the forward actions

	// FaultTolerant makes connection establishment retry transient failures
	// internally instead of surfacing the first one
	FaultTolerant bool

	DialTimeout time.Duration
	Location    *time.Location // timestamps in notifications are localized here
}

func (c Config) smtpServer() string {
	if c.SMTPServer != "" {
		return c.SMTPServer
	}
	return DeriveSMTPServer(c.Server)
}

func (c Config) location() *time.Location {
	if c.Location != nil {
		return c.Location
	}
	return time.Local
}

// MessageRef identifies one unread message and carries the metadata the
// forward actions need
type MessageRef struct {
	Folder     string
	UID        uint32
	Subject    string
	From       string // "Name <addr>" or bare address
	ReceivedAt time.Time
	IsMeeting  bool // calendar/meeting invitation; cannot be forwarded as-is
}

// Session is an authenticated connection to one account's mailbox
type Session struct {
	cfg    Config
	client *client.Client
	logger *slog.Logger

	mu       sync.Mutex
	selected string // currently selected folder
}

// Dial connects and authenticates. Login rejections are classified as
// authentication errors, a missing inbox as unavailable, and everything else
// as transient. The fault-tolerant variant retries transient failures a few
// times before giving up.
func Dial(ctx context.Context, cfg Config, logger *slog.Logger) (*Session, error) {
	attempts := 1
	if cfg.FaultTolerant {
		attempts = faultTolerantAttempts
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, newError(KindTransient, "dial", err)
		}
		if i > 0 {
			logger.Warn("retrying mailbox connection", "server", cfg.Server, "attempt", i+1, "error", lastErr)
			time.Sleep(time.Second)
		}

		session, err := dialOnce(ctx, cfg, logger)
		if err == nil {
			return session, nil
		}
		if KindOf(err) != KindTransient {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

func dialOnce(ctx context.Context, cfg Config, logger *slog.Logger) (*Session, error) {
	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", cfg.Server, nil)
	if err != nil {
		return nil, newError(KindTransient, "dial", err)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, newError(KindTransient, "dial", err)
	}
	imapClient.Timeout = timeout

	if err := imapClient.Login(cfg.Username, cfg.Password); err != nil {
		imapClient.Logout()
		return nil, newError(KindAuth, "login", err)
	}

	// Probe the inbox; an authenticated account without one is a setup
	// problem, not a transient failure.
	if _, err := imapClient.Select("INBOX", true); err != nil {
		imapClient.Logout()
		return nil, newError(KindUnavailable, "select inbox", err)
	}

	return &Session{
		cfg:      cfg,
		client:   imapClient,
		logger:   logger.With("account", cfg.Email),
		selected: "INBOX",
	}, nil
}

// Close logs out of the session
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.client.Logout(); err != nil {
		return fmt.Errorf("failed to logout: %w", err)
	}
	return nil
}

// UnreadSince returns unread messages in the inbox and all subfolders,
// restricted to those received strictly after since when present, ordered by
// received time
func (s *Session) UnreadSince(ctx context.Context, since *time.Time) ([]MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folders, err := s.listInboxFolders()
	if err != nil {
		return nil, err
	}

	var refs []MessageRef
	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return nil, newError(KindTransient, "list unread", err)
		}
		folderRefs, err := s.unreadInFolder(folder, since)
		if err != nil {
			return nil, err
		}
		refs = append(refs, folderRefs...)
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].ReceivedAt.Before(refs[j].ReceivedAt)
	})
	return refs, nil
}

// listInboxFolders returns the inbox and its selectable subfolders
func (s *Session) listInboxFolders() ([]string, error) {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- s.client.List("", "INBOX*", mailboxes)
	}()

	var names []string
	for m := range mailboxes {
		if hasAttr(m.Attributes, imap.NoSelectAttr) {
			continue
		}
		names = append(names, m.Name)
	}
	if err := <-done; err != nil {
		return nil, newError(KindTransient, "list folders", err)
	}

	if len(names) == 0 {
		names = []string{"INBOX"}
	}
	return names, nil
}

func (s *Session) unreadInFolder(folder string, since *time.Time) ([]MessageRef, error) {
	if err := s.selectFolder(folder, true); err != nil {
		return nil, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if since != nil {
		// IMAP SINCE has day granularity; the strict cutoff is applied on
		// the fetched timestamps below.
		criteria.Since = *since
	}

	uids, err := s.client.UidSearch(criteria)
	if err != nil {
		return nil, newError(KindTransient, "search unread", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchInternalDate, imap.FetchBodyStructure}

	messages := make(chan *imap.Message, 20)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	var refs []MessageRef
	for msg := range messages {
		ref := refFromMessage(folder, msg)
		if since != nil && !ref.ReceivedAt.After(*since) {
			continue
		}
		refs = append(refs, ref)
	}
	if err := <-done; err != nil {
		return nil, newError(KindTransient, "fetch unread", err)
	}
	return refs, nil
}

func refFromMessage(folder string, msg *imap.Message) MessageRef {
	ref := MessageRef{
		Folder:     folder,
		UID:        msg.Uid,
		ReceivedAt: msg.InternalDate,
	}

	if msg.Envelope != nil {
		ref.Subject = msg.Envelope.Subject
		// The Date header is sender-controlled; it is only a fallback when
		// the server reports no INTERNALDATE. The watermark filter depends
		// on the receive time, so a backdated header must not move it.
		if ref.ReceivedAt.IsZero() {
			ref.ReceivedAt = msg.Envelope.Date
		}
		if len(msg.Envelope.From) > 0 {
			ref.From = formatAddress(msg.Envelope.From[0])
		}
	}
	if ref.ReceivedAt.IsZero() {
		ref.ReceivedAt = time.Now()
	}
	if msg.BodyStructure != nil {
		ref.IsMeeting = hasCalendarPart(msg.BodyStructure)
	}
	return ref
}

func formatAddress(addr *imap.Address) string {
	if addr.PersonalName == "" || addr.PersonalName == addr.Address() {
		return addr.Address()
	}
	return fmt.Sprintf("%s <%s>", addr.PersonalName, addr.Address())
}

// hasCalendarPart reports whether the MIME tree carries a text/calendar
// part, which is how meeting invitations arrive over IMAP
func hasCalendarPart(bs *imap.BodyStructure) bool {
	if bs == nil {
		return false
	}
	if bs.MIMEType == "text" && bs.MIMESubType == "calendar" {
		return true
	}
	for _, part := range bs.Parts {
		if hasCalendarPart(part) {
			return true
		}
	}
	return false
}

// SetRead sets or clears the read flag of one message
func (s *Session) SetRead(ctx context.Context, ref MessageRef, read bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return newError(KindTransient, "set read flag", err)
	}
	if err := s.selectFolder(ref.Folder, false); err != nil {
		return err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(ref.UID)

	flags := []interface{}{imap.SeenFlag}
	if err := s.client.UidStore(seqSet, seenFlagItem(read), flags, nil); err != nil {
		return newError(KindTransient, "set read flag", err)
	}
	return nil
}

// seenFlagItem is the silent STORE item that adds or removes \Seen
func seenFlagItem(read bool) imap.StoreItem {
	op := imap.FlagsOp(imap.AddFlags)
	if !read {
		op = imap.RemoveFlags
	}
	return imap.FormatFlagsOp(op, true)
}

// selectFolder selects folder unless it is already selected. Read-write
// selections replace read-only ones so flag stores work.
func (s *Session) selectFolder(folder string, readOnly bool) error {
	if s.selected == folder && readOnly {
		return nil
	}
	if _, err := s.client.Select(folder, readOnly); err != nil {
		if folder == "INBOX" {
			return newError(KindUnavailable, "select inbox", err)
		}
		return newError(KindTransient, "select folder", err)
	}
	s.selected = folder
	return nil
}

func hasAttr(attrs []string, want string) bool {
	for _, a := range attrs {
		if a == want {
			return true
		}
	}
	return false
}
