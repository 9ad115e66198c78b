package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"yad2watch/internal/features/vehicles/models"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramTransport sends listing alerts through the Telegram bot API.
type TelegramTransport struct {
	apiBase  string
	botToken string
	chatID   string
	client   *http.Client
}

// NewTelegramTransport creates a Telegram transport for a bot token and
// destination chat.
func NewTelegramTransport(botToken, chatID string) *TelegramTransport {
	return &TelegramTransport{
		apiBase:  telegramAPIBase,
		botToken: botToken,
		chatID:   chatID,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (t *TelegramTransport) Name() string {
	return "telegram"
}

// Send posts one listing as a sendMessage call.
func (t *TelegramTransport) Send(ctx context.Context, listing models.Listing) error {
	payload := map[string]string{
		"chat_id": t.chatID,
		"text":    formatTelegramText(listing),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiBase, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("telegram API returned %d: %s", resp.StatusCode, detail)
	}

	return nil
}

func formatTelegramText(l models.Listing) string {
	return fmt.Sprintf(
		"🚗 %s %s\n💰 %s | %d | %s\n🛣 %s\n📍 %s\n🔗 %s",
		l.Manufacturer, l.Model,
		formatPrice(l.Price), l.Year, l.Hand,
		formatKm(l.Mileage),
		l.Area,
		l.URL,
	)
}
