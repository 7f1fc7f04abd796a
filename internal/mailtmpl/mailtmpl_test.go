package mailtmpl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForwardSubject(t *testing.T) {
	got := ForwardSubject("Weekly report")
	assert.Equal(t, SubjectPrefix+"Fwd: Weekly report", got)
}

func TestRenderUnreadMailCountOnly(t *testing.T) {
	body, err := Render("unread_mail", UnreadContext{ToEmail: "fwd@example.net", Count: 5})
	require.NoError(t, err)

	assert.Contains(t, body, "fwd@example.net 様")
	assert.Contains(t, body, "5 件")
	// Count mode carries no per-message section
	assert.NotContains(t, body, "件名:")
}

func TestRenderUnreadMailWithSummaries(t *testing.T) {
	body, err := Render("unread_mail", UnreadContext{
		ToEmail: "fwd@example.net",
		Count:   2,
		Mails: []MailInfo{
			{ReceivedAt: "2025/06/01(日) 09:30:00", From: "Alice <alice@example.com>", Subject: "hello"},
			{ReceivedAt: "2025/06/01(日) 10:00:00", From: "bob@example.com", Subject: "meeting notes"},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, body, "2 件")
	assert.Contains(t, body, "受信日時: 2025/06/01(日) 09:30:00")
	assert.Contains(t, body, "差出人: Alice <alice@example.com>")
	assert.Contains(t, body, "件名: meeting notes")
	assert.Equal(t, 2, strings.Count(body, "件名:"))
}

func TestRenderAccountTemplates(t *testing.T) {
	for _, name := range []string{"authentication_error", "critical_error", "email_auth_done"} {
		body, err := Render(name, AccountContext{ToEmail: "fwd@example.net"})
		require.NoError(t, err, name)
		assert.Contains(t, body, "fwd@example.net 様", name)
	}
}

func TestRenderVerification(t *testing.T) {
	body, err := Render("email_authenticate", VerifyContext{
		ToEmail:    "fwd@example.net",
		ConfirmURL: "https://forward.example.com/email/confirm/abc123",
	})
	require.NoError(t, err)
	assert.Contains(t, body, "https://forward.example.com/email/confirm/abc123")
	assert.Contains(t, body, "24時間")
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render("no_such_template", nil)
	require.Error(t, err)
}
