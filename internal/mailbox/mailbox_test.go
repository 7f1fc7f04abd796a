package mailbox

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkosawa/mailforward/internal/mailtmpl"
)

func TestFormatReceivedAt(t *testing.T) {
	jst := time.FixedZone("JST", 9*3600)

	tests := []struct {
		name string
		in   time.Time
		loc  *time.Location
		want string
	}{
		{
			name: "sunday in utc",
			in:   time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC),
			loc:  time.UTC,
			want: "2025/06/01(日) 09:30:00",
		},
		{
			name: "localized across midnight",
			in:   time.Date(2025, 6, 7, 20, 0, 0, 0, time.UTC),
			loc:  jst,
			want: "2025/06/08(日) 05:00:00",
		},
		{
			name: "weekday annotation",
			in:   time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC),
			loc:  time.UTC,
			want: "2025/06/02(月) 12:00:00",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatReceivedAt(tt.in, tt.loc))
		})
	}
}

func TestSummarize(t *testing.T) {
	refs := []MessageRef{
		{Subject: "hello", From: "Alice <alice@example.com>", ReceivedAt: time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)},
		{Subject: "report", From: "bob@example.com", ReceivedAt: time.Date(2025, 6, 3, 15, 0, 0, 0, time.UTC)},
	}

	infos := Summarize(refs, time.UTC)
	require.Len(t, infos, 2)
	assert.Equal(t, mailtmpl.MailInfo{
		ReceivedAt: "2025/06/01(日) 09:30:00",
		From:       "Alice <alice@example.com>",
		Subject:    "hello",
	}, infos[0])
	assert.Equal(t, "2025/06/03(火) 15:00:00", infos[1].ReceivedAt)
}

func TestDeriveSMTPServer(t *testing.T) {
	tests := []struct {
		imap string
		want string
	}{
		{"imap.gmail.com:993", "smtp.gmail.com:587"},
		{"IMAP.GMAIL.COM:993", "smtp.gmail.com:587"},
		{"outlook.office365.com:993", "smtp.office365.com:587"},
		{"imap.example.co.jp:993", "smtp.example.co.jp:587"},
		{"imap.example.com", "smtp.example.com:587"},
		{"mail.example.com:993", "mail.example.com:587"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DeriveSMTPServer(tt.imap), tt.imap)
	}
}

func TestErrorClassification(t *testing.T) {
	auth := newError(KindAuth, "login", errors.New("invalid credentials"))
	transient := newError(KindTransient, "fetch", errors.New("connection reset"))
	unavailable := newError(KindUnavailable, "select inbox", errors.New("no inbox"))

	assert.Equal(t, KindAuth, KindOf(auth))
	assert.Equal(t, KindTransient, KindOf(transient))
	assert.Equal(t, KindUnavailable, KindOf(unavailable))

	// Classification survives wrapping
	wrapped := fmt.Errorf("processing user: %w", auth)
	assert.True(t, IsAuth(wrapped))
	assert.False(t, IsAuth(transient))
	assert.False(t, IsAuth(nil))
	assert.True(t, IsUnavailable(unavailable))

	// Unclassified errors stay retryable
	assert.Equal(t, KindTransient, KindOf(errors.New("anything")))

	assert.Contains(t, auth.Error(), "login")
	assert.Contains(t, auth.Error(), "authentication")
}

func TestComposeMail(t *testing.T) {
	raw, err := ComposeMail("user@example.com", "fwd@example.net", "【メール転送システム】Fwd: hello", "line one\nline two")
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "【メール転送システム】Fwd: hello", subject)

	from, err := mr.Header.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "user@example.com", from[0].Address)

	to, err := mr.Header.AddressList("To")
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, "fwd@example.net", to[0].Address)

	part, err := mr.NextPart()
	require.NoError(t, err)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "line one")
	assert.Contains(t, string(body), "line two")
}

func TestHasCalendarPart(t *testing.T) {
	plain := &imap.BodyStructure{MIMEType: "text", MIMESubType: "plain"}
	calendar := &imap.BodyStructure{MIMEType: "text", MIMESubType: "calendar"}

	assert.False(t, hasCalendarPart(nil))
	assert.False(t, hasCalendarPart(plain))
	assert.True(t, hasCalendarPart(calendar))

	nested := &imap.BodyStructure{
		MIMEType:    "multipart",
		MIMESubType: "mixed",
		Parts: []*imap.BodyStructure{
			plain,
			{
				MIMEType:    "multipart",
				MIMESubType: "alternative",
				Parts:       []*imap.BodyStructure{calendar},
			},
		},
	}
	assert.True(t, hasCalendarPart(nested))

	htmlOnly := &imap.BodyStructure{
		MIMEType:    "multipart",
		MIMESubType: "alternative",
		Parts: []*imap.BodyStructure{
			plain,
			{MIMEType: "text", MIMESubType: "html"},
		},
	}
	assert.False(t, hasCalendarPart(htmlOnly))
}

func TestRefFromMessage(t *testing.T) {
	internal := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	envelope := time.Date(2025, 6, 1, 9, 55, 0, 0, time.UTC)

	msg := &imap.Message{
		Uid:          42,
		InternalDate: internal,
		Envelope: &imap.Envelope{
			Subject: "hello",
			Date:    envelope,
			From: []*imap.Address{{
				PersonalName: "Alice",
				MailboxName:  "alice",
				HostName:     "example.com",
			}},
		},
	}

	ref := refFromMessage("INBOX", msg)
	assert.Equal(t, "INBOX", ref.Folder)
	assert.Equal(t, uint32(42), ref.UID)
	assert.Equal(t, "hello", ref.Subject)
	assert.Equal(t, "Alice <alice@example.com>", ref.From)
	// The server receive time wins over the sender-controlled Date header
	assert.True(t, ref.ReceivedAt.Equal(internal))
	assert.False(t, ref.IsMeeting)

	// Without an INTERNALDATE the Date header is the fallback
	msg.InternalDate = time.Time{}
	ref = refFromMessage("INBOX", msg)
	assert.True(t, ref.ReceivedAt.Equal(envelope))
}

func TestRefFromMessageBackdatedHeader(t *testing.T) {
	watermark := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	msg := &imap.Message{
		Uid:          7,
		InternalDate: watermark.Add(2 * time.Hour),
		Envelope: &imap.Envelope{
			Subject: "backdated",
			Date:    watermark.Add(-3 * time.Hour),
		},
	}

	// A skewed Date header must not pull a message behind the watermark
	ref := refFromMessage("INBOX", msg)
	assert.True(t, ref.ReceivedAt.After(watermark),
		"message received after the last run must survive the watermark cutoff")
}

func TestSeenFlagItem(t *testing.T) {
	assert.Equal(t, imap.FormatFlagsOp(imap.FlagsOp(imap.AddFlags), true), seenFlagItem(true))
	assert.Equal(t, imap.FormatFlagsOp(imap.FlagsOp(imap.RemoveFlags), true), seenFlagItem(false))
}

func TestFormatAddress(t *testing.T) {
	named := &imap.Address{PersonalName: "Alice", MailboxName: "alice", HostName: "example.com"}
	bare := &imap.Address{MailboxName: "bob", HostName: "example.com"}

	assert.Equal(t, "Alice <alice@example.com>", formatAddress(named))
	assert.Equal(t, "bob@example.com", formatAddress(bare))
}

func TestParseBodies(t *testing.T) {
	var buf bytes.Buffer
	var h mail.Header
	h.SetAddressList("From", []*mail.Address{{Address: "a@example.com"}})
	h.SetAddressList("To", []*mail.Address{{Address: "b@example.com"}})
	h.SetSubject("test")

	w, err := mail.CreateSingleInlineWriter(&buf, h)
	require.NoError(t, err)
	_, err = io.WriteString(w, "plain content")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	textBody, htmlBody := parseBodies(strings.NewReader(buf.String()))
	assert.Equal(t, "plain content", textBody)
	assert.Empty(t, htmlBody)
}
