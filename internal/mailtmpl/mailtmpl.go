// Package mailtmpl renders notification mail bodies. Callers supply a
// structured context; all wording lives in the embedded templates.
package mailtmpl

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.txt
var files embed.FS

var templates = template.Must(template.ParseFS(files, "templates/*.txt"))

// Mail subjects. The service prefix matches the forwarded-mail subject prefix.
const (
	SubjectPrefix       = "【メール転送システム】"
	SubjectForwardFmt   = SubjectPrefix + "Fwd: %s"
	SubjectUnreadMail   = SubjectPrefix + "新着メール通知"
	SubjectMeetingMail  = SubjectPrefix + "新着メール通知 (ミーティング)"
	SubjectAuthError    = SubjectPrefix + "ログインに失敗しました"
	SubjectCritical     = SubjectPrefix + "転送エラーが発生しました"
	SubjectVerifyEmail  = SubjectPrefix + "転送先メールアドレスのご確認"
	SubjectVerifyDone   = SubjectPrefix + "転送先メールアドレスの認証が完了しました"
	ForwardedDisclaimer = "このメールはシステムにより自動転送されたものです。"
)

// ForwardSubject returns the forwarded-mail subject for an original subject
func ForwardSubject(original string) string {
	return fmt.Sprintf(SubjectForwardFmt, original)
}

// MailInfo is one summarized message line in an unread-mail notification
type MailInfo struct {
	ReceivedAt string // localized, weekday-annotated
	From       string
	Subject    string
}

// UnreadContext feeds the unread-mail notification body. Mails is empty in
// count mode and filled in subject mode and for meeting substitutes.
type UnreadContext struct {
	ToEmail string
	Count   int
	Mails   []MailInfo
}

// AccountContext feeds the per-account error notification bodies
type AccountContext struct {
	ToEmail string
}

// VerifyContext feeds the destination-confirmation mail body
type VerifyContext struct {
	ToEmail    string
	ConfirmURL string
}

// Render renders the named template ("unread_mail", "authentication_error",
// "critical_error", "email_authenticate", "email_auth_done") with data
func Render(name string, data any) (string, error) {
	var sb strings.Builder
	if err := templates.ExecuteTemplate(&sb, name+".txt", data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", name, err)
	}
	return sb.String(), nil
}
