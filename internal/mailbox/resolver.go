package mailbox

import (
	"strings"
)

// Well-known submission endpoints for providers whose SMTP host does not
// follow the imap→smtp naming convention
var knownSMTPServers = map[string]string{
	"imap.gmail.com":        "smtp.gmail.com:587",
	"outlook.office365.com": "smtp.office365.com:587",
	"imap.mail.yahoo.com":   "smtp.mail.yahoo.com:587",
	"imap.yandex.ru":        "smtp.yandex.ru:587",
	"imap.yandex.com":       "smtp.yandex.com:587",
	"imap.mail.ru":          "smtp.mail.ru:587",
	"imap.mail.me.com":      "smtp.mail.me.com:587",
	"imap.aol.com":          "smtp.aol.com:587",
	"imap.zoho.com":         "smtp.zoho.com:587",
	"imap.fastmail.com":     "smtp.fastmail.com:587",
	"imap.gmx.com":          "mail.gmx.com:587",
	"imap.web.de":           "smtp.web.de:587",
}

// DeriveSMTPServer guesses the submission endpoint for an IMAP server
// address. Accounts with unconventional providers store an explicit
// smtp_server instead.
func DeriveSMTPServer(imapServer string) string {
	host := imapServer
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	host = strings.ToLower(host)

	if smtp, ok := knownSMTPServers[host]; ok {
		return smtp
	}

	// imap.example.com -> smtp.example.com, otherwise reuse the host
	if rest, ok := strings.CutPrefix(host, "imap."); ok {
		return "smtp." + rest + ":587"
	}
	return host + ":587"
}
