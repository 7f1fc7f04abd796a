package mailbox

import (
	"context"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/mail"

	"github.com/mkosawa/mailforward/internal/bodytext"
	"github.com/mkosawa/mailforward/internal/mailtmpl"
)

var extractor = bodytext.NewExtractor()

// Forward delivers one message to dest. Ordinary mail is re-sent with the
// localized subject prefix and the fixed disclaimer above the original text.
// Meeting invitations cannot be forwarded, so a synthesized notification
// carrying the item's metadata is sent instead.
func (s *Session) Forward(ctx context.Context, ref MessageRef, dest string) error {
	if ref.IsMeeting {
		return s.sendMeetingNotice(ctx, ref, dest)
	}

	text, err := s.fetchText(ctx, ref)
	if err != nil {
		return err
	}

	var body strings.Builder
	body.WriteString(mailtmpl.ForwardedDisclaimer)
	body.WriteString("\n\n")
	body.WriteString(text)

	return s.SendMail(ctx, dest, mailtmpl.ForwardSubject(ref.Subject), body.String())
}

func (s *Session) sendMeetingNotice(ctx context.Context, ref MessageRef, dest string) error {
	body, err := mailtmpl.Render("unread_mail", mailtmpl.UnreadContext{
		ToEmail: dest,
		Count:   1,
		Mails: []mailtmpl.MailInfo{{
			ReceivedAt: FormatReceivedAt(ref.ReceivedAt, s.cfg.location()),
			From:       ref.From,
			Subject:    ref.Subject,
		}},
	})
	if err != nil {
		return newError(KindTransient, "forward meeting", err)
	}
	return s.SendMail(ctx, dest, mailtmpl.SubjectMeetingMail, body)
}

// fetchText downloads and parses the message body. The non-peek fetch marks
// the message read on the server, mirroring how the remote forward action
// behaves; full-mode read-flag handling compensates afterwards.
func (s *Session) fetchText(ctx context.Context, ref MessageRef) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", newError(KindTransient, "fetch message", err)
	}
	if err := s.selectFolder(ref.Folder, false); err != nil {
		return "", err
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(ref.UID)
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	var textBody, htmlBody string
	for msg := range messages {
		bodyReader := msg.GetBody(section)
		if bodyReader == nil {
			continue
		}
		textBody, htmlBody = parseBodies(bodyReader)
	}
	if err := <-done; err != nil {
		return "", newError(KindTransient, "fetch message", err)
	}

	return extractor.BestEffort(textBody, htmlBody), nil
}

// parseBodies pulls the inline text and HTML parts out of a raw message
func parseBodies(r io.Reader) (textBody, htmlBody string) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", ""
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(ct, "text/html"):
			htmlBody = string(body)
		case strings.HasPrefix(ct, "text/plain"):
			textBody = string(body)
		}
	}
	return textBody, htmlBody
}
