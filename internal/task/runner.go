// Package task drives the forwarding batch: it enforces single-flight
// execution, walks eligible users, runs the configured forwarding action with
// retries, classifies failures, writes history, and notifies operators.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mkosawa/mailforward/internal/database"
	"github.com/mkosawa/mailforward/internal/mailbox"
	"github.com/mkosawa/mailforward/internal/mailtmpl"
	"github.com/mkosawa/mailforward/internal/notify"
	"github.com/mkosawa/mailforward/internal/vault"
	"github.com/mkosawa/mailforward/pkg/models"
)

// ErrOutsideWindow is returned when the current local hour is outside the
// configured operating window. It is a quiet skip, not a failure.
var ErrOutsideWindow = errors.New("outside operating window")

// Store is the persistence surface the runner uses
type Store interface {
	AcquireRun(ctx context.Context) error
	ReleaseRun(ctx context.Context) error
	GetEligibleUsers(ctx context.Context) ([]*models.User, error)
	GetDestination(ctx context.Context, userID int64) (*models.ForwardDestination, error)
	GetPolicy(ctx context.Context, userID int64) (*models.ForwardPolicy, error)
	Watermark(ctx context.Context, userID int64) (*time.Time, error)
	PruneHistory(ctx context.Context, userID int64, keep int) error
	RecordHistory(ctx context.Context, entry *models.ForwardHistory) error
	StopPolicy(ctx context.Context, userID int64) error
	SetNeedsCredentialReset(ctx context.Context, id int64, value bool) error
}

// Session is the mailbox session surface the runner drives. Each action
// returns the number of messages it processed.
type Session interface {
	SendUnreadCount(ctx context.Context, keepUnread bool, since *time.Time) (int, error)
	SendUnreadSummary(ctx context.Context, keepUnread bool, since *time.Time) (int, error)
	ForwardUnread(ctx context.Context, keepUnread bool, since *time.Time) (int, error)
	Close() error
}

// Dialer opens an authenticated mailbox session
type Dialer func(ctx context.Context, cfg mailbox.Config, logger *slog.Logger) (Session, error)

// MailboxDialer is the production Dialer backed by the IMAP/SMTP client
func MailboxDialer(ctx context.Context, cfg mailbox.Config, logger *slog.Logger) (Session, error) {
	session, err := mailbox.Dial(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// Options tunes one runner
type Options struct {
	RetryCount  int // extra attempts after the first failure
	HistoryKeep int
	DialTimeout time.Duration
	OpTimeout   time.Duration  // per mailbox operation, 0 disables
	Location    *time.Location // notification timestamps are localized here

	// InWindow gates runs by local time; nil runs unconditionally
	InWindow func(time.Time) bool
}

// Runner executes forwarding batches
type Runner struct {
	store    Store
	creds    *vault.Vault
	dial     Dialer
	operator notify.OperatorSink
	mailer   notify.UserMailer
	opts     Options
	now      func() time.Time
	logger   *slog.Logger
}

// NewRunner creates a runner. A nil dialer uses the production mailbox client.
func NewRunner(store Store, creds *vault.Vault, dial Dialer, operator notify.OperatorSink, mailer notify.UserMailer, opts Options, logger *slog.Logger) *Runner {
	if dial == nil {
		dial = MailboxDialer
	}
	if operator == nil {
		operator = notify.NopSink{}
	}
	return &Runner{
		store:    store,
		creds:    creds,
		dial:     dial,
		operator: operator,
		mailer:   mailer,
		opts:     opts,
		now:      time.Now,
		logger:   logger.With("component", "task"),
	}
}

// Run executes one batch. Overlapping invocations are rejected with
// database.ErrBusy; invocations outside the operating window return
// ErrOutsideWindow without touching any state.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.store.AcquireRun(ctx); err != nil {
		if errors.Is(err, database.ErrBusy) {
			r.logger.Warn("run already in progress")
		}
		return err
	}
	// The flag must clear even when the triggering context is already gone.
	defer func() {
		if err := r.store.ReleaseRun(context.WithoutCancel(ctx)); err != nil {
			r.logger.Error("failed to release run state", "error", err)
		}
	}()

	// The guard is checked first: a concurrent run reports busy even when
	// the window would have skipped this one anyway.
	if r.opts.InWindow != nil && !r.opts.InWindow(r.now()) {
		r.logger.Info("outside operating window, skipping run")
		return ErrOutsideWindow
	}

	users, err := r.store.GetEligibleUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to list eligible users: %w", err)
	}

	r.operator.Send(ctx, notify.LevelInfo, "", "forwarding run started", fmt.Sprintf("%d eligible user(s)", len(users)), false)
	r.logger.Info("run started", "users", len(users))

	for _, user := range users {
		if err := ctx.Err(); err != nil {
			r.logger.Warn("run interrupted", "error", err)
			break
		}
		r.processUser(ctx, user)
	}

	r.operator.Send(ctx, notify.LevelInfo, "", "forwarding run finished", "", false)
	r.logger.Info("run finished")
	return nil
}

// processUser walks one user through the forwarding state machine. Failures
// here never propagate: one user's outcome must not abort the batch.
func (r *Runner) processUser(ctx context.Context, user *models.User) {
	logger := r.logger.With("user", user.Email)

	dest, err := r.store.GetDestination(ctx, user.ID)
	if errors.Is(err, database.ErrNotFound) {
		logger.Info("skipped, no forward destination")
		return
	}
	if err != nil {
		logger.Error("failed to load destination", "error", err)
		return
	}
	if dest.State != models.DestinationVerified {
		logger.Info("skipped, destination not verified", "state", dest.State)
		r.operator.Send(ctx, notify.LevelInfo, user.Email, "skipped", "destination "+dest.State.DisplayString(), false)
		return
	}

	policy, err := r.store.GetPolicy(ctx, user.ID)
	if errors.Is(err, database.ErrNotFound) {
		logger.Info("skipped, no forward policy")
		return
	}
	if err != nil {
		logger.Error("failed to load policy", "error", err)
		return
	}
	if policy.TargetMode == models.ModeStopped {
		logger.Info("skipped, forwarding stopped")
		r.operator.Send(ctx, notify.LevelInfo, user.Email, "skipped", policy.TargetMode.DisplayString(), false)
		return
	}

	username := r.creds.Decrypt(user.UsernameEnc)
	password := r.creds.Decrypt(user.PasswordEnc)
	if username == "" || password == "" {
		// Undecryptable credentials behave exactly like rejected ones.
		r.handleAuthFailure(ctx, user, dest, errors.New("stored credentials are unusable"), logger)
		return
	}

	cfg := mailbox.Config{
		Server:      user.Server,
		SMTPServer:  user.SMTPServer,
		Email:       user.Email,
		Username:    username,
		Password:    password,
		ForwardTo:   dest.Email,
		DialTimeout: r.opts.DialTimeout,
		Location:    r.opts.Location,
	}

	detail := policy.TargetMode.DisplayString()
	if policy.KeepUnread {
		detail += " / keep unread"
	}
	r.operator.Send(ctx, notify.LevelInfo, user.Email, "processing", detail, false)

	if err := r.authProbe(ctx, cfg, logger); err != nil {
		if mailbox.IsAuth(err) {
			r.handleAuthFailure(ctx, user, dest, err, logger)
			return
		}
		// The probe exists to catch bad credentials early. Anything else is
		// left to the fault-tolerant session and the retry loop.
		logger.Warn("auth probe failed", "error", err)
	}

	since, err := r.store.Watermark(ctx, user.ID)
	if err != nil {
		logger.Error("failed to read watermark", "error", err)
		return
	}
	if err := r.store.PruneHistory(ctx, user.ID, r.opts.HistoryKeep); err != nil {
		logger.Error("failed to prune history", "error", err)
	}

	cfg.FaultTolerant = true
	attempts := r.opts.RetryCount + 1

	var count int
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		count, lastErr = r.attempt(ctx, cfg, policy, since, logger)
		if lastErr == nil {
			break
		}
		if mailbox.IsAuth(lastErr) {
			// Retrying rejected credentials is pointless.
			r.handleAuthFailure(ctx, user, dest, lastErr, logger)
			return
		}
		if attempt < attempts {
			logger.Warn("attempt failed, retrying", "attempt", attempt, "error", lastErr)
			r.operator.Send(ctx, notify.LevelWarning, user.Email,
				fmt.Sprintf("attempt %d/%d failed", attempt, attempts), lastErr.Error(), false)
		}
	}
	if lastErr != nil {
		r.handleFailure(ctx, user, dest, lastErr, logger)
		return
	}

	entry := &models.ForwardHistory{UserID: user.ID, Status: models.StatusSuccess, NewMailCount: count}
	if err := r.store.RecordHistory(ctx, entry); err != nil {
		logger.Error("failed to record history", "error", err)
	}
	r.operator.Send(ctx, notify.LevelInfo, user.Email, "completed", entry.DisplayString(), false)
	logger.Info("user processed", "new_mail", count)
}

// authProbe checks the stored credentials with a plain, non-fault-tolerant
// connection
func (r *Runner) authProbe(ctx context.Context, cfg mailbox.Config, logger *slog.Logger) error {
	probeCtx, cancel := r.opCtx(ctx)
	defer cancel()

	session, err := r.dial(probeCtx, cfg, logger)
	if err != nil {
		return err
	}
	return session.Close()
}

// attempt opens a session and runs the policy's action once
func (r *Runner) attempt(ctx context.Context, cfg mailbox.Config, policy *models.ForwardPolicy, since *time.Time, logger *slog.Logger) (int, error) {
	opCtx, cancel := r.opCtx(ctx)
	defer cancel()

	session, err := r.dial(opCtx, cfg, logger)
	if err != nil {
		return 0, err
	}
	defer session.Close()

	switch policy.TargetMode {
	case models.ModeCount:
		return session.SendUnreadCount(opCtx, policy.KeepUnread, since)
	case models.ModeSubject:
		return session.SendUnreadSummary(opCtx, policy.KeepUnread, since)
	case models.ModeFull:
		return session.ForwardUnread(opCtx, policy.KeepUnread, since)
	default:
		return 0, fmt.Errorf("unknown forward mode %q", policy.TargetMode)
	}
}

func (r *Runner) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.OpTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.opts.OpTimeout)
}

// handleAuthFailure records the outcome, locks the account out of future runs
// until a credential reset, and notifies both the user and the operators
func (r *Runner) handleAuthFailure(ctx context.Context, user *models.User, dest *models.ForwardDestination, cause error, logger *slog.Logger) {
	logger.Warn("authentication failed", "error", cause)

	entry := &models.ForwardHistory{UserID: user.ID, Status: models.StatusAuthFailure, Message: cause.Error()}
	if err := r.store.RecordHistory(ctx, entry); err != nil {
		logger.Error("failed to record history", "error", err)
	}
	if err := r.store.SetNeedsCredentialReset(ctx, user.ID, true); err != nil {
		logger.Error("failed to set credential reset flag", "error", err)
	}

	data := mailtmpl.AccountContext{ToEmail: dest.Email}
	if err := r.mailer.Send(ctx, dest.Email, mailtmpl.SubjectAuthError, "authentication_error", data); err != nil {
		logger.Error("failed to send auth failure mail", "error", err)
	}
	r.operator.Send(ctx, notify.LevelWarning, user.Email, "authentication failed", cause.Error(), false)
}

// handleFailure records the outcome after exhausted retries and permanently
// disables forwarding for the user
func (r *Runner) handleFailure(ctx context.Context, user *models.User, dest *models.ForwardDestination, cause error, logger *slog.Logger) {
	logger.Error("forwarding failed, disabling", "error", cause)

	entry := &models.ForwardHistory{UserID: user.ID, Status: models.StatusFailure, Message: cause.Error()}
	if err := r.store.RecordHistory(ctx, entry); err != nil {
		logger.Error("failed to record history", "error", err)
	}
	if err := r.store.StopPolicy(ctx, user.ID); err != nil {
		logger.Error("failed to stop policy", "error", err)
	}

	data := mailtmpl.AccountContext{ToEmail: dest.Email}
	if err := r.mailer.Send(ctx, dest.Email, mailtmpl.SubjectCritical, "critical_error", data); err != nil {
		logger.Error("failed to send critical error mail", "error", err)
	}
	r.operator.Send(ctx, notify.LevelError, user.Email, "forwarding disabled", cause.Error(), true)
}
