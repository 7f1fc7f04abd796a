package mailbox

import (
	"context"
	"time"

	"github.com/mkosawa/mailforward/internal/mailtmpl"
)

// The three forwarding actions. Each enumerates unread mail since the
// watermark, performs its notification or forwarding, applies the policy's
// read-flag handling, and returns the processed count. Zero unread mail
// short-circuits without sending anything.

// SendUnreadCount sends one notification carrying only the unread count,
// then marks everything read unless keepUnread is set
func (s *Session) SendUnreadCount(ctx context.Context, keepUnread bool, since *time.Time) (int, error) {
	refs, err := s.UnreadSince(ctx, since)
	if err != nil {
		return 0, err
	}
	if len(refs) == 0 {
		return 0, nil
	}

	body, err := mailtmpl.Render("unread_mail", mailtmpl.UnreadContext{
		ToEmail: s.cfg.ForwardTo,
		Count:   len(refs),
	})
	if err != nil {
		return 0, newError(KindTransient, "send unread count", err)
	}
	if err := s.SendMail(ctx, s.cfg.ForwardTo, mailtmpl.SubjectUnreadMail, body); err != nil {
		return 0, err
	}

	if !keepUnread {
		if err := s.markAllRead(ctx, refs); err != nil {
			return 0, err
		}
	}
	return len(refs), nil
}

// SendUnreadSummary sends one notification listing sender, subject, and
// localized received time per message; read-flag handling matches count mode
func (s *Session) SendUnreadSummary(ctx context.Context, keepUnread bool, since *time.Time) (int, error) {
	refs, err := s.UnreadSince(ctx, since)
	if err != nil {
		return 0, err
	}
	if len(refs) == 0 {
		return 0, nil
	}

	body, err := mailtmpl.Render("unread_mail", mailtmpl.UnreadContext{
		ToEmail: s.cfg.ForwardTo,
		Count:   len(refs),
		Mails:   Summarize(refs, s.cfg.location()),
	})
	if err != nil {
		return 0, newError(KindTransient, "send unread summary", err)
	}
	if err := s.SendMail(ctx, s.cfg.ForwardTo, mailtmpl.SubjectUnreadMail, body); err != nil {
		return 0, err
	}

	if !keepUnread {
		if err := s.markAllRead(ctx, refs); err != nil {
			return 0, err
		}
	}
	return len(refs), nil
}

// ForwardUnread forwards every unread message individually. Forwarding marks
// a message read as a side effect, so afterwards each message is explicitly
// re-marked unread when keepUnread is set, or marked read otherwise.
func (s *Session) ForwardUnread(ctx context.Context, keepUnread bool, since *time.Time) (int, error) {
	refs, err := s.UnreadSince(ctx, since)
	if err != nil {
		return 0, err
	}
	if len(refs) == 0 {
		return 0, nil
	}

	for _, ref := range refs {
		if err := s.Forward(ctx, ref, s.cfg.ForwardTo); err != nil {
			return 0, err
		}
		if err := s.SetRead(ctx, ref, !keepUnread); err != nil {
			return 0, err
		}
	}
	return len(refs), nil
}

func (s *Session) markAllRead(ctx context.Context, refs []MessageRef) error {
	for _, ref := range refs {
		if err := s.SetRead(ctx, ref, true); err != nil {
			return err
		}
	}
	return nil
}
