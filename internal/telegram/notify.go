// Package telegram sends operator notifications about the credential
// pool, such as imports from disk or an empty pool blocking generations.
package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/adatry/adatry/internal/config"
)

// Notify sends a one-off message without requiring a running bot instance.
func Notify(token string, chatID int64, text string) {
	token = strings.TrimSpace(token)
	if token == "" || chatID == 0 || strings.TrimSpace(text) == "" {
		return
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	_, _ = bot.Send(msg)
}

// Notifier wraps Notify with configuration so callers do not have to
// carry the token and chat ID around.
type Notifier struct {
	cfg config.TelegramConfig
}

// NewNotifier creates a notifier from Telegram configuration
func NewNotifier(cfg config.TelegramConfig) *Notifier {
	return &Notifier{cfg: cfg}
}

// Enabled reports whether notifications are configured
func (n *Notifier) Enabled() bool {
	return n.cfg.Enabled && n.cfg.BotToken != "" && n.cfg.ChatID != 0
}

// CredentialsImported announces credentials synced from disk
func (n *Notifier) CredentialsImported(provider string, count int) {
	if !n.Enabled() || count == 0 {
		return
	}
	Notify(n.cfg.BotToken, n.cfg.ChatID, fmt.Sprintf("✅ Imported %d credential(s) for *%s*", count, provider))
}

// PoolEmpty warns that a provider has no credentials left
func (n *Notifier) PoolEmpty(provider string) {
	if !n.Enabled() {
		return
	}
	Notify(n.cfg.BotToken, n.cfg.ChatID, fmt.Sprintf("⚠️ No credentials configured for *%s*, generations are failing", provider))
}
