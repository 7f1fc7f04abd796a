package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/forward.db"`

	// Security
	EncryptionKey string `env:"ENCRYPTION_KEY,required"` // 32 bytes, credential vault
	TokenKey      string `env:"TOKEN_KEY,required"`      // 32 bytes, verification tokens

	// Task
	OperatingHours string        `env:"OPERATING_HOURS" envDefault:"6-24"` // local hours; empty disables the gate
	RetryCount     int           `env:"RETRY_COUNT" envDefault:"3"`        // extra attempts after the first failure
	HistoryKeep    int           `env:"HISTORY_KEEP" envDefault:"100"`
	RunInterval    time.Duration `env:"RUN_INTERVAL" envDefault:"1h"`

	// Mailbox
	IMAPDialTimeout  time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`
	MailboxOpTimeout time.Duration `env:"MAILBOX_OP_TIMEOUT" envDefault:"2m"`

	// Verification
	VerifyTokenTTL time.Duration `env:"VERIFY_TOKEN_TTL" envDefault:"24h"`
	ConfirmBaseURL string        `env:"CONFIRM_BASE_URL" envDefault:"http://localhost:8080/email/confirm"`

	// HTTP trigger
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	TaskAuthKey string `env:"TASK_AUTH_KEY,required"`

	// System notification sender (user-facing mails)
	SMTPAddr string `env:"SMTP_ADDR"` // host:port
	SMTPUser string `env:"SMTP_USER"`
	SMTPPass string `env:"SMTP_PASS"`
	SMTPFrom string `env:"SMTP_FROM" envDefault:"Mail Forwarder <noreply@mailforward.local>"`

	// Operator notifications (optional; empty token disables)
	TelegramToken          string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID         int64  `env:"TELEGRAM_CHAT_ID"`
	TelegramBroadcastTopic int    `env:"TELEGRAM_BROADCAST_TOPIC"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"

	operatingHours map[int]bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate encryption key lengths (32 bytes for AES-256)
	if len(cfg.EncryptionKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(cfg.EncryptionKey))
	}
	if len(cfg.TokenKey) != 32 {
		return nil, fmt.Errorf("TOKEN_KEY must be exactly 32 bytes, got %d", len(cfg.TokenKey))
	}

	hours, err := ParseOperatingHours(cfg.OperatingHours)
	if err != nil {
		return nil, fmt.Errorf("invalid OPERATING_HOURS: %w", err)
	}
	cfg.operatingHours = hours

	if cfg.RetryCount < 0 {
		return nil, fmt.Errorf("RETRY_COUNT must not be negative, got %d", cfg.RetryCount)
	}
	if cfg.HistoryKeep < 1 {
		return nil, fmt.Errorf("HISTORY_KEEP must be at least 1, got %d", cfg.HistoryKeep)
	}

	return cfg, nil
}

// InOperatingWindow reports whether t falls in a configured operating hour.
// An empty OPERATING_HOURS disables the gate entirely.
func (c *Config) InOperatingWindow(t time.Time) bool {
	if len(c.operatingHours) == 0 {
		return true
	}
	return c.operatingHours[t.Local().Hour()]
}

// OperatingHourList returns the configured hours in ascending order
func (c *Config) OperatingHourList() []int {
	hours := make([]int, 0, len(c.operatingHours))
	for h := range c.operatingHours {
		hours = append(hours, h)
	}
	sort.Ints(hours)
	return hours
}

// TelegramEnabled returns true if the operator chat sink is configured
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// ParseOperatingHours parses a spec like "6-24" or "0,6,12,18" into a set of
// local hours. Range bounds are inclusive, except that a range ending in 24
// closes the window at 23:59; it never wraps into midnight, so the default
// "6-24" leaves 0:00-5:59 quiet.
func ParseOperatingHours(spec string) (map[int]bool, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	hours := make(map[int]bool)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if lo, hi, ok := strings.Cut(part, "-"); ok {
			from, err := parseHour(lo, false)
			if err != nil {
				return nil, err
			}
			to, err := parseHour(hi, true)
			if err != nil {
				return nil, err
			}
			if to == 24 {
				to = 23
			}
			if to < from {
				return nil, fmt.Errorf("range %q is reversed", part)
			}
			for h := from; h <= to; h++ {
				hours[h] = true
			}
			continue
		}

		h, err := parseHour(part, false)
		if err != nil {
			return nil, err
		}
		hours[h] = true
	}

	return hours, nil
}

func parseHour(s string, rangeEnd bool) (int, error) {
	h, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid hour %q: %w", s, err)
	}
	max := 23
	if rangeEnd {
		max = 24
	}
	if h < 0 || h > max {
		return 0, fmt.Errorf("hour %d out of range", h)
	}
	return h, nil
}
