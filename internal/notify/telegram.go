package notify

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
)

const telegramBaseURL = "https://api.telegram.org"

// TelegramChannel sends notifications through the Telegram Bot API.
type TelegramChannel struct {
	client *resty.Client
	token  string
	chatID string
}

// NewTelegramChannel creates a bot channel for chatID.
func NewTelegramChannel(token, chatID string) *TelegramChannel {
	return &TelegramChannel{
		client: resty.New().SetBaseURL(telegramBaseURL),
		token:  token,
		chatID: chatID,
	}
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Send(ctx context.Context, text string) error {
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}

	resp, err := t.client.R().
		SetContext(ctx).
		SetPathParam("token", t.token).
		SetBody(map[string]string{"chat_id": t.chatID, "text": text}).
		SetResult(&result).
		SetError(&result).
		Post("/bot{token}/sendMessage")
	if err != nil {
		return err
	}
	if resp.IsError() || !result.OK {
		return fmt.Errorf("telegram returned status %d: %s", resp.StatusCode(), result.Description)
	}
	return nil
}
