package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/alejandrodnm/sentibot/internal/ports"
)

const (
	feedbackTimeout = 5 * time.Second
	telegramAPI     = "https://api.telegram.org"
)

var (
	_ ports.FeedbackPoster = (*Webhook)(nil)
	_ ports.FeedbackPoster = (*Telegram)(nil)
	_ ports.FeedbackPoster = Fanout(nil)
)

// WebhookPayload es el cuerpo JSON enviado al webhook.
type WebhookPayload struct {
	Source  string `json:"source"`
	Event   string `json:"event"`
	Message string `json:"message"`
}

// Webhook publica el feedback como POST JSON.
type Webhook struct {
	url    string
	client *resty.Client
}

func NewWebhook(url string) *Webhook {
	client := resty.New().
		SetTimeout(feedbackTimeout).
		SetHeader("Content-Type", "application/json")
	return &Webhook{url: url, client: client}
}

func (w *Webhook) PostFeedback(ctx context.Context, message string) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(WebhookPayload{Source: "sentibot", Event: "cycle", Message: message}).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("notify.Webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notify.Webhook: status %d", resp.StatusCode())
	}
	return nil
}

type telegramMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Telegram publica el feedback con sendMessage del Bot API.
type Telegram struct {
	chatID string
	client *resty.Client
}

// NewTelegram crea el poster. baseURL vacío usa la API pública.
func NewTelegram(botToken, chatID, baseURL string) (*Telegram, error) {
	if botToken == "" || chatID == "" {
		return nil, fmt.Errorf("notify.NewTelegram: missing bot token or chat id")
	}
	if baseURL == "" {
		baseURL = telegramAPI
	}
	client := resty.New().
		SetTimeout(feedbackTimeout).
		SetBaseURL(baseURL).
		SetPathParam("token", botToken)
	return &Telegram{chatID: chatID, client: client}, nil
}

func (t *Telegram) PostFeedback(ctx context.Context, message string) error {
	var out telegramResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(telegramMessage{ChatID: t.chatID, Text: message}).
		SetResult(&out).
		SetError(&out).
		Post("/bot{token}/sendMessage")
	if err != nil {
		return fmt.Errorf("notify.Telegram: %w", err)
	}
	if resp.IsError() || !out.OK {
		return fmt.Errorf("notify.Telegram: status %d: %s", resp.StatusCode(), out.Description)
	}
	return nil
}

// Fanout envía el mensaje a todos los posters; un fallo no corta el resto.
type Fanout []ports.FeedbackPoster

func (f Fanout) PostFeedback(ctx context.Context, message string) error {
	var errs []error
	for _, p := range f {
		if err := p.PostFeedback(ctx, message); err != nil {
			slog.Debug("notify: feedback poster failed", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
