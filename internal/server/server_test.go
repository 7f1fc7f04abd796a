package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkosawa/mailforward/internal/database"
	"github.com/mkosawa/mailforward/internal/task"
	"github.com/mkosawa/mailforward/internal/vault"
	"github.com/mkosawa/mailforward/internal/verify"
	"github.com/mkosawa/mailforward/pkg/models"
)

type fakeRunner struct {
	err  error
	runs int
}

func (r *fakeRunner) Run(context.Context) error {
	r.runs++
	return r.err
}

type fakeVerifier struct {
	startErr   error
	confirmErr error
	started    []string
	confirmed  []string
}

func (v *fakeVerifier) Start(_ context.Context, userID int64, forwardEmail string) error {
	v.started = append(v.started, forwardEmail)
	return v.startErr
}

func (v *fakeVerifier) Confirm(_ context.Context, token string) error {
	v.confirmed = append(v.confirmed, token)
	return v.confirmErr
}

type fakeHistoryStore struct {
	users   map[int64]*models.User
	entries []*models.ForwardHistory
}

func (s *fakeHistoryStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return user, nil
}

func (s *fakeHistoryStore) ListHistory(_ context.Context, userID int64, limit int) ([]*models.ForwardHistory, error) {
	if limit > len(s.entries) {
		limit = len(s.entries)
	}
	return s.entries[:limit], nil
}

func newTestServer(runner *fakeRunner, verifier *fakeVerifier, store *fakeHistoryStore) *Server {
	if store == nil {
		store = &fakeHistoryStore{users: map[int64]*models.User{}}
	}
	return New(runner, verifier, store, "topsecret", slog.Default())
}

func TestRunTaskEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		runErr     error
		wantStatus int
		wantRuns   int
	}{
		{name: "bad secret", key: "wrong", wantStatus: http.StatusBadRequest, wantRuns: 0},
		{name: "ok", key: "topsecret", wantStatus: http.StatusOK, wantRuns: 1},
		{name: "busy", key: "topsecret", runErr: database.ErrBusy, wantStatus: http.StatusServiceUnavailable, wantRuns: 1},
		{name: "outside window still 200", key: "topsecret", runErr: task.ErrOutsideWindow, wantStatus: http.StatusOK, wantRuns: 1},
		{name: "internal error", key: "topsecret", runErr: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantRuns: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{err: tt.runErr}
			srv := newTestServer(runner, &fakeVerifier{}, nil)

			req := httptest.NewRequest(http.MethodGet, "/task/run/"+tt.key, nil)
			resp, err := srv.App().Test(req, -1)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantRuns, runner.runs)
		})
	}
}

func TestConfirmEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		confirmErr error
		wantStatus int
	}{
		{name: "verified", wantStatus: http.StatusOK},
		{name: "expired", confirmErr: verify.ErrTokenExpired, wantStatus: http.StatusGone},
		{name: "already verified", confirmErr: verify.ErrAlreadyVerified, wantStatus: http.StatusConflict},
		{name: "invalid", confirmErr: vault.ErrTokenInvalid, wantStatus: http.StatusBadRequest},
		{name: "internal error", confirmErr: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verifier := &fakeVerifier{confirmErr: tt.confirmErr}
			srv := newTestServer(&fakeRunner{}, verifier, nil)

			req := httptest.NewRequest(http.MethodGet, "/email/confirm/sometoken", nil)
			resp, err := srv.App().Test(req, -1)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, []string{"sometoken"}, verifier.confirmed)
		})
	}
}

func TestCreateDestinationEndpoint(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		verifier := &fakeVerifier{}
		srv := newTestServer(&fakeRunner{}, verifier, nil)

		req := httptest.NewRequest(http.MethodPost, "/destinations",
			strings.NewReader(`{"user_id": 1, "email": "fwd@example.net"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := srv.App().Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
		assert.Equal(t, []string{"fwd@example.net"}, verifier.started)
	})

	t.Run("missing fields", func(t *testing.T) {
		srv := newTestServer(&fakeRunner{}, &fakeVerifier{}, nil)

		req := httptest.NewRequest(http.MethodPost, "/destinations", strings.NewReader(`{"user_id": 1}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := srv.App().Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown user", func(t *testing.T) {
		verifier := &fakeVerifier{startErr: database.ErrNotFound}
		srv := newTestServer(&fakeRunner{}, verifier, nil)

		req := httptest.NewRequest(http.MethodPost, "/destinations",
			strings.NewReader(`{"user_id": 42, "email": "fwd@example.net"}`))
		req.Header.Set("Content-Type", "application/json")
		resp, err := srv.App().Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHistoryEndpoint(t *testing.T) {
	store := &fakeHistoryStore{
		users: map[int64]*models.User{1: {ID: 1, Email: "user@example.com"}},
		entries: []*models.ForwardHistory{
			{UserID: 1, Status: models.StatusSuccess, NewMailCount: 3, CreatedAt: time.Now()},
			{UserID: 1, Status: models.StatusAuthFailure, Message: "login rejected", CreatedAt: time.Now()},
		},
	}
	srv := newTestServer(&fakeRunner{}, &fakeVerifier{}, store)

	t.Run("lists entries with display strings", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users/1/history", nil)
		resp, err := srv.App().Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var payload struct {
			History []struct {
				Status  string `json:"status"`
				Result  string `json:"result"`
				Message string `json:"message"`
			} `json:"history"`
		}
		require.NoError(t, json.Unmarshal(body, &payload))
		require.Len(t, payload.History, 2)
		assert.Equal(t, "success", payload.History[0].Status)
		assert.Equal(t, "3 new message(s)", payload.History[0].Result)
		assert.Equal(t, "authentication failed", payload.History[1].Result)
		assert.Equal(t, "login rejected", payload.History[1].Message)
	})

	t.Run("unknown user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users/99/history", nil)
		resp, err := srv.App().Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("bad id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/users/abc/history", nil)
		resp, err := srv.App().Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
