package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/karollnt/goldstory-backend/errors"
	"github.com/karollnt/goldstory-backend/metrics"
)

const defaultAPIBase = "https://api.telegram.org"

// Telegram sends messages through the Telegram bot API.
type Telegram struct {
	apiBase    string
	botToken   string
	chatID     string
	httpClient *http.Client
	retryCfg   *errors.RetryConfig
	logger     zerolog.Logger
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(botToken, chatID string, logger zerolog.Logger) (*Telegram, error) {
	if botToken == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if chatID == "" {
		return nil, fmt.Errorf("chat ID is required")
	}

	retryCfg := errors.DefaultRetryConfig()
	retryCfg.Retryable = func(error) bool { return true }

	return &Telegram{
		apiBase:  defaultAPIBase,
		botToken: botToken,
		chatID:   chatID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		retryCfg: retryCfg,
		logger:   logger.With().Str("component", "telegram_notifier").Logger(),
	}, nil
}

// WithAPIBase overrides the Telegram API base URL. Used in tests.
func (t *Telegram) WithAPIBase(base string) *Telegram {
	t.apiBase = base
	return t
}

// Notify sends a message. Errors are logged, never returned: the payment
// workflow must not depend on the notification channel.
func (t *Telegram) Notify(ctx context.Context, message string) {
	err := errors.Retry(ctx, t.logger, "send_telegram", t.retryCfg, func() error {
		return t.send(ctx, message)
	})
	if err != nil {
		metrics.NotificationFailures.Inc()
		t.logger.Error().Err(err).Str("message", message).Msg("failed to deliver notification")
	}
}

func (t *Telegram) send(ctx context.Context, message string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
