// Package telegram delivers early warnings through the Telegram Bot API.
// Warnings are formatted as MarkdownV2 messages and sent through a
// failsafe-go retry policy with exponential backoff.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rewired-gh/unrestwatch/internal/models"
)

// sender is the part of tgbotapi.BotAPI the client uses.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Client handles Telegram notifications
type Client struct {
	bot      sender
	chatID   int64
	executor failsafe.Executor[any]
}

// NewClient creates a new Telegram client
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}
	return newClient(bot, chatID, maxRetries, retryDelayBase)
}

func newClient(bot sender, chatID string, maxRetries int, retryDelayBase time.Duration) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	retry := retrypolicy.NewBuilder[any]().
		WithBackoff(retryDelayBase, retryDelayBase*8).
		WithMaxRetries(maxRetries).
		Build()

	return &Client{
		bot:      bot,
		chatID:   chatIDInt,
		executor: failsafe.With[any](retry),
	}, nil
}

// SendWarnings sends one message listing warnings. Nothing is sent for an
// empty list.
func (c *Client) SendWarnings(ctx context.Context, warnings []models.Warning) error {
	if len(warnings) == 0 {
		return nil
	}
	return c.send(ctx, formatWarnings(warnings))
}

// SendError reports a failed monitoring cycle.
func (c *Client) SendError(ctx context.Context, cycleErr error) error {
	return c.send(ctx, "⚠ *Monitoring cycle failed*\n\n"+escapeMarkdownV2(cycleErr.Error()))
}

// SendRecovery reports that monitoring recovered after failures.
func (c *Client) SendRecovery(ctx context.Context, failures int) error {
	return c.send(ctx, escapeMarkdownV2(fmt.Sprintf("✅ Monitoring recovered after %d failed cycles.", failures)))
}

func (c *Client) send(ctx context.Context, text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	attempts := 0
	err := c.executor.WithContext(ctx).Run(func() error {
		attempts++
		_, err := c.bot.Send(msg)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to send message after %d attempts: %w", attempts, err)
	}
	return nil
}

// formatWarnings formats warnings into a Telegram message
func formatWarnings(warnings []models.Warning) string {
	var b strings.Builder
	b.WriteString("🚨 *Early Warnings Detected*\n\n")
	b.WriteString(fmt.Sprintf("📅 Detected: %s\n\n",
		escapeMarkdownV2(warnings[0].DetectedAt.UTC().Format("2006-01-02 15:04:05"))))

	for i, w := range warnings {
		icon := "🟠"
		if w.Severity == models.SeverityCritical {
			icon = "🔴"
		}
		b.WriteString(fmt.Sprintf("%d\\. %s *%s* %s\n", i+1, icon,
			escapeMarkdownV2(strings.ToUpper(string(w.Severity))),
			escapeMarkdownV2(string(w.Type))))
		b.WriteString("   " + escapeMarkdownV2(w.Message) + "\n")
		if w.SuggestedAction != "" {
			b.WriteString("   _" + escapeMarkdownV2(w.SuggestedAction) + "_\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
