package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrTokenInvalid is returned for tokens that fail decryption or have an
// unexpected payload shape
var ErrTokenInvalid = errors.New("invalid token")

// TokenPayload is the claim set carried by a verification token
type TokenPayload struct {
	Email        string `json:"email"`         // issuing user's primary address
	ForwardEmail string `json:"forward_email"` // address being verified
	IssuedAt     int64  `json:"issued_at"`     // unix seconds
}

// Issued returns the issue timestamp
func (p *TokenPayload) Issued() time.Time {
	return time.Unix(p.IssuedAt, 0)
}

// IssueToken builds an encrypted verification token binding the user's
// primary address to the forward address being verified
func (v *Vault) IssueToken(email, forwardEmail string, now time.Time) (string, error) {
	payload := TokenPayload{
		Email:        email,
		ForwardEmail: forwardEmail,
		IssuedAt:     now.Unix(),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token payload: %w", err)
	}

	token, err := v.Encrypt(string(data))
	if err != nil {
		return "", fmt.Errorf("failed to encrypt token: %w", err)
	}
	return token, nil
}

// ParseToken decrypts and decodes a verification token. Expiry is checked by
// the caller, which also distinguishes the already-verified outcome.
func (v *Vault) ParseToken(token string) (*TokenPayload, error) {
	plain := v.Decrypt(token)
	if plain == "" {
		return nil, ErrTokenInvalid
	}

	var payload TokenPayload
	if err := json.Unmarshal([]byte(plain), &payload); err != nil {
		return nil, ErrTokenInvalid
	}
	if payload.Email == "" || payload.ForwardEmail == "" || payload.IssuedAt == 0 {
		return nil, ErrTokenInvalid
	}

	return &payload, nil
}
