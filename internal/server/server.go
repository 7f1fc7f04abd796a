// Package server exposes the HTTP surface: the authenticated run trigger,
// the destination verification endpoints, and a small history read path.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/mkosawa/mailforward/internal/database"
	"github.com/mkosawa/mailforward/internal/task"
	"github.com/mkosawa/mailforward/internal/vault"
	"github.com/mkosawa/mailforward/internal/verify"
	"github.com/mkosawa/mailforward/pkg/models"
)

// RunTrigger starts one forwarding batch
type RunTrigger interface {
	Run(ctx context.Context) error
}

// Verifier drives the destination verification workflow
type Verifier interface {
	Start(ctx context.Context, userID int64, forwardEmail string) error
	Confirm(ctx context.Context, token string) error
}

// HistoryStore is the read path for the history endpoint
type HistoryStore interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	ListHistory(ctx context.Context, userID int64, limit int) ([]*models.ForwardHistory, error)
}

// Server wires the fiber app
type Server struct {
	app      *fiber.App
	runner   RunTrigger
	verifier Verifier
	store    HistoryStore
	authKey  string
	logger   *slog.Logger
}

// New builds the app and its routes
func New(runner RunTrigger, verifier Verifier, store HistoryStore, authKey string, logger *slog.Logger) *Server {
	s := &Server{
		runner:   runner,
		verifier: verifier,
		store:    store,
		authKey:  authKey,
		logger:   logger.With("component", "server"),
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
	})

	s.app.Get("/task/run/:key", s.handleRunTask)
	s.app.Get("/email/confirm/:token", s.handleConfirm)
	s.app.Post("/destinations", s.handleCreateDestination)
	s.app.Get("/users/:id/history", s.handleHistory)

	return s
}

// Listen serves until Shutdown is called
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the fiber app for tests
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) handleRunTask(c *fiber.Ctx) error {
	key := c.Params("key")
	if subtle.ConstantTimeCompare([]byte(key), []byte(s.authKey)) != 1 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid key"})
	}

	err := s.runner.Run(c.UserContext())
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"status": "ok"})
	case errors.Is(err, task.ErrOutsideWindow):
		return c.JSON(fiber.Map{"status": "skipped", "reason": "outside operating window"})
	case errors.Is(err, database.ErrBusy):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "task is already running"})
	default:
		s.logger.Error("run failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "run failed"})
	}
}

func (s *Server) handleConfirm(c *fiber.Ctx) error {
	token, err := url.PathUnescape(c.Params("token"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid token"})
	}

	err = s.verifier.Confirm(c.UserContext(), token)
	switch {
	case err == nil:
		return c.JSON(fiber.Map{"status": "verified"})
	case errors.Is(err, verify.ErrTokenExpired):
		return c.Status(fiber.StatusGone).JSON(fiber.Map{"error": "token expired"})
	case errors.Is(err, verify.ErrAlreadyVerified):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "already verified"})
	case errors.Is(err, vault.ErrTokenInvalid):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid token"})
	default:
		s.logger.Error("confirm failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "confirmation failed"})
	}
}

type createDestinationRequest struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
}

func (s *Server) handleCreateDestination(c *fiber.Ctx) error {
	var req createDestinationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.UserID == 0 || req.Email == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "user_id and email are required"})
	}

	if err := s.verifier.Start(c.UserContext(), req.UserID, req.Email); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
		}
		s.logger.Error("failed to start verification", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to start verification"})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "verification mail sent"})
}

type historyEntry struct {
	Status    string    `json:"status"`
	Result    string    `json:"result"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	userID, err := c.ParamsInt("id")
	if err != nil || userID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
	}

	if _, err := s.store.GetUserByID(c.UserContext(), int64(userID)); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
		}
		s.logger.Error("failed to load user", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load user"})
	}

	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	entries, err := s.store.ListHistory(c.UserContext(), int64(userID), limit)
	if err != nil {
		s.logger.Error("failed to list history", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list history"})
	}

	out := make([]historyEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, historyEntry{
			Status:    string(e.Status),
			Result:    e.DisplayString(),
			Message:   e.Message,
			CreatedAt: e.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"history": out})
}
