package mailbox

import (
	"fmt"
	"time"

	"github.com/mkosawa/mailforward/internal/mailtmpl"
)

// Weekday annotations for localized timestamps, indexed by time.Weekday
var weekdayNames = [7]string{"日", "月", "火", "水", "木", "金", "土"}

// FormatReceivedAt renders a localized, weekday-annotated timestamp like
// "2006/01/02(月) 15:04:05"
func FormatReceivedAt(t time.Time, loc *time.Location) string {
	local := t.In(loc)
	return fmt.Sprintf("%s(%s) %s",
		local.Format("2006/01/02"),
		weekdayNames[local.Weekday()],
		local.Format("15:04:05"),
	)
}

// Summarize reduces message refs to the per-message lines of a subject-mode
// notification
func Summarize(refs []MessageRef, loc *time.Location) []mailtmpl.MailInfo {
	infos := make([]mailtmpl.MailInfo, 0, len(refs))
	for _, ref := range refs {
		infos = append(infos, mailtmpl.MailInfo{
			ReceivedAt: FormatReceivedAt(ref.ReceivedAt, loc),
			From:       ref.From,
			Subject:    ref.Subject,
		})
	}
	return infos
}
