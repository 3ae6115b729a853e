package notify

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
)

// Discord embeds cap the description at 4096 characters.
const discordMaxDescription = 4096

// DiscordChannel posts notifications to a Discord webhook.
type DiscordChannel struct {
	client     *resty.Client
	webhookURL string
}

// NewDiscordChannel creates a webhook channel.
func NewDiscordChannel(webhookURL string) *DiscordChannel {
	return &DiscordChannel{
		client:     resty.New(),
		webhookURL: webhookURL,
	}
}

func (d *DiscordChannel) Name() string { return "discord" }

func (d *DiscordChannel) Send(ctx context.Context, text string) error {
	if utf8.RuneCountInString(text) > discordMaxDescription {
		text = string([]rune(text)[:discordMaxDescription-3]) + "..."
	}

	payload := map[string]any{
		"embeds": []map[string]any{
			{
				"title":       "Phase Trader",
				"description": text,
				"color":       0x2ecc71,
				"timestamp":   time.Now().UTC().Format(time.RFC3339),
			},
		},
	}

	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(d.webhookURL)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("discord returned status: %d", resp.StatusCode())
	}
	return nil
}
