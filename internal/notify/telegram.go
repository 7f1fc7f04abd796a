package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
)

// TelegramSink posts operator messages to a Telegram chat. Broadcast
// messages go to a dedicated topic so they trigger member notifications.
type TelegramSink struct {
	bot            *bot.Bot
	chatID         int64
	broadcastTopic int
	logger         *slog.Logger
}

// NewTelegramSink creates a sink posting to chatID. broadcastTopic may be 0
// when the chat has no topics.
func NewTelegramSink(token string, chatID int64, broadcastTopic int, logger *slog.Logger) (*TelegramSink, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelegramSink{
		bot:            b,
		chatID:         chatID,
		broadcastTopic: broadcastTopic,
		logger:         logger.With("component", "telegram_sink"),
	}, nil
}

// Send posts one operator message. Failures are logged, never returned: the
// run must not depend on the chat service being up.
func (s *TelegramSink) Send(ctx context.Context, level Level, userEmail, title, detail string, broadcast bool) {
	// Keep the sink from stalling a run on a slow chat API
	apiCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	params := &bot.SendMessageParams{
		ChatID: s.chatID,
		Text:   formatMessage(level, userEmail, title, detail),
	}
	if broadcast && s.broadcastTopic != 0 {
		params.MessageThreadID = s.broadcastTopic
	}

	if _, err := s.bot.SendMessage(apiCtx, params); err != nil {
		s.logger.Error("failed to send operator message", "error", err, "title", title)
	}
}

func formatMessage(level Level, userEmail, title, detail string) string {
	var sb strings.Builder
	sb.WriteString(time.Now().Format("15:04:05"))
	sb.WriteString(" [")
	sb.WriteString(string(level))
	sb.WriteString("]")
	if userEmail != "" {
		sb.WriteString(" ")
		sb.WriteString(userEmail)
	}
	sb.WriteString(" ")
	sb.WriteString(title)
	if detail != "" {
		sb.WriteString("\n")
		sb.WriteString(detail)
	}
	return sb.String()
}
