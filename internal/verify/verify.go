package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/mkosawa/mailforward/internal/database"
	"github.com/mkosawa/mailforward/internal/mailtmpl"
	"github.com/mkosawa/mailforward/internal/vault"
	"github.com/mkosawa/mailforward/pkg/models"
)

var (
	// ErrTokenExpired is returned when a token is past its validity window
	ErrTokenExpired = errors.New("token expired")
	// ErrAlreadyVerified is returned when the destination was confirmed earlier
	ErrAlreadyVerified = errors.New("destination already verified")
)

// Store is the subset of the database used by the verification flow
type Store interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetDestination(ctx context.Context, userID int64) (*models.ForwardDestination, error)
	UpsertDestination(ctx context.Context, userID int64, email string, state models.DestinationState) error
	SetDestinationState(ctx context.Context, userID int64, state models.DestinationState) error
}

// Mailer sends templated mail to an end user
type Mailer interface {
	Send(ctx context.Context, to, subject, template string, data any) error
}

// Service drives forward-address verification. A destination only becomes
// usable once its owner clicks the confirmation link mailed to it.
type Service struct {
	store    Store
	tokens   *vault.Vault
	mailer   Mailer
	tokenTTL time.Duration
	baseURL  string
	now      func() time.Time
	logger   *slog.Logger
}

// NewService creates a verification service. baseURL is the externally
// reachable confirmation endpoint prefix, without a trailing slash; the
// token is appended as the final path segment.
func NewService(store Store, tokens *vault.Vault, mailer Mailer, tokenTTL time.Duration, baseURL string, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		tokens:   tokens,
		mailer:   mailer,
		tokenTTL: tokenTTL,
		baseURL:  baseURL,
		now:      time.Now,
		logger:   logger.With("component", "verify"),
	}
}

// Start registers forwardEmail as the user's destination and mails it a
// confirmation link. Any previous destination for the user is replaced and
// its verification restarts from scratch.
func (s *Service) Start(ctx context.Context, userID int64, forwardEmail string) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load user: %w", err)
	}

	if err := s.store.UpsertDestination(ctx, userID, forwardEmail, models.DestinationUnverified); err != nil {
		return fmt.Errorf("failed to register destination: %w", err)
	}

	token, err := s.tokens.IssueToken(user.Email, forwardEmail, s.now())
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	confirmURL := s.baseURL + "/" + url.PathEscape(token)
	data := mailtmpl.VerifyContext{ToEmail: forwardEmail, ConfirmURL: confirmURL}
	if err := s.mailer.Send(ctx, forwardEmail, mailtmpl.SubjectVerifyEmail, "email_authenticate", data); err != nil {
		return fmt.Errorf("failed to send verification mail: %w", err)
	}

	if err := s.store.SetDestinationState(ctx, userID, models.DestinationVerificationSent); err != nil {
		return fmt.Errorf("failed to mark verification sent: %w", err)
	}

	s.logger.Info("verification started", "user_id", userID, "forward_email", forwardEmail)
	return nil
}

// Confirm completes verification for the destination named by token. It
// distinguishes expired tokens, repeated confirmations and garbage tokens so
// the HTTP layer can answer each differently.
func (s *Service) Confirm(ctx context.Context, token string) error {
	payload, err := s.tokens.ParseToken(token)
	if err != nil {
		return err
	}
	if s.now().Sub(payload.Issued()) > s.tokenTTL {
		return ErrTokenExpired
	}

	user, err := s.store.GetUserByEmail(ctx, payload.Email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return vault.ErrTokenInvalid
		}
		return fmt.Errorf("failed to load user: %w", err)
	}

	dest, err := s.store.GetDestination(ctx, user.ID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return vault.ErrTokenInvalid
		}
		return fmt.Errorf("failed to load destination: %w", err)
	}
	// A token for a destination the user has since replaced is dead.
	if dest.Email != payload.ForwardEmail {
		return vault.ErrTokenInvalid
	}
	if dest.State == models.DestinationVerified {
		return ErrAlreadyVerified
	}

	if err := s.store.SetDestinationState(ctx, user.ID, models.DestinationVerified); err != nil {
		return fmt.Errorf("failed to mark verified: %w", err)
	}

	data := mailtmpl.AccountContext{ToEmail: dest.Email}
	if err := s.mailer.Send(ctx, dest.Email, mailtmpl.SubjectVerifyDone, "email_auth_done", data); err != nil {
		s.logger.Warn("failed to send verification done mail", "error", err, "to", dest.Email)
	}

	s.logger.Info("destination verified", "user_id", user.ID, "forward_email", dest.Email)
	return nil
}
