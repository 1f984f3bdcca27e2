package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultSendTimeout = 10 * time.Second

// TelegramAlerter sends messages through the Telegram bot API.
type TelegramAlerter struct {
	client *http.Client
	url    string
	chatID string
}

// TelegramOption configures a TelegramAlerter.
type TelegramOption func(*TelegramAlerter)

// WithTimeout sets the HTTP client timeout. Default: 10s.
func WithTimeout(d time.Duration) TelegramOption {
	return func(a *TelegramAlerter) { a.client.Timeout = d }
}

// WithBaseURL overrides the Telegram API base URL. Used in tests.
func WithBaseURL(base string) TelegramOption {
	return func(a *TelegramAlerter) { a.url = base + "/sendMessage" }
}

// NewTelegramAlerter creates an alerter for the given bot token and chat.
func NewTelegramAlerter(token, chatID string, opts ...TelegramOption) *TelegramAlerter {
	a := &TelegramAlerter{
		client: &http.Client{Timeout: defaultSendTimeout},
		url:    fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", token),
		chatID: chatID,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Compile-time interface check.
var _ Alerter = (*TelegramAlerter)(nil)

// Send POSTs one message to the bot API. Non-2xx responses are errors.
func (a *TelegramAlerter) Send(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id": a.chatID,
		"text":    text,
	})
	if err != nil {
		return fmt.Errorf("marshal alert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert delivery failed: status %d", resp.StatusCode)
	}
	return nil
}
