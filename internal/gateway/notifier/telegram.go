package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"vigil/internal/logger"
)

const telegramAPI = "https://api.telegram.org"

// Telegram pushes pass summaries and triggered-action notices to a
// configured chat or channel.
type Telegram struct {
	botToken string
	chatID   string
	client   *http.Client
}

func NewTelegram(botToken, chatID string) *Telegram {
	return &Telegram{
		botToken: botToken,
		chatID:   chatID,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// SendText sends a Markdown text message, retrying up to 3 times with
// linear backoff. Telegram-level rejections (ok=false) are returned
// with the API description, not just the HTTP status.
func (t *Telegram) SendText(text string) error {
	if t.botToken == "" || t.chatID == "" {
		return fmt.Errorf("telegram config incomplete")
	}
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    t.chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("encode telegram message: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		if lastErr = t.sendOnce(body); lastErr == nil {
			return nil
		}
		logger.Debugf("telegram send attempt %d failed: %v", attempt, lastErr)
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	return lastErr
}

func (t *Telegram) sendOnce(body []byte) error {
	url := fmt.Sprintf("%s/bot%s/sendMessage", telegramAPI, t.botToken)
	resp, err := t.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var res sendMessageResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("telegram status=%d", resp.StatusCode)
	}
	if !res.OK {
		return fmt.Errorf("telegram rejected message: %s", res.Description)
	}
	return nil
}
