package models

import "time"

// User represents a mailbox account whose unread mail is forwarded
type User struct {
	ID                   int64     `db:"id"`
	Email                string    `db:"email"`
	Server               string    `db:"server"`       // IMAP server, e.g. imap.example.com:993
	SMTPServer           string    `db:"smtp_server"`  // submission server; derived from Server when empty
	UsernameEnc          string    `db:"username_enc"` // vault ciphertext
	PasswordEnc          string    `db:"password_enc"` // vault ciphertext
	NeedsCredentialReset bool      `db:"needs_credential_reset"`
	IsAdmin              bool      `db:"is_admin"`
	CreatedAt            time.Time `db:"created_at"`
	UpdatedAt            time.Time `db:"updated_at"`
}
