package bot

import (
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// send delivers an HTML message with an optional keyboard.
func (b *Bot) send(chatID int64, text string, markup any) (tgbotapi.Message, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	return b.api.Send(msg)
}

// reply sends a message whose delivery failure is only logged.
func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.send(chatID, text, nil); err != nil {
		b.logger.Warn("send message", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
	}
}

// edit replaces the text and keyboard of a bot message. Telegram rejects
// edits that change nothing; those count as success.
func (b *Bot) edit(chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	cfg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	cfg.ParseMode = tgbotapi.ModeHTML
	cfg.ReplyMarkup = markup
	_, err := b.api.Send(cfg)
	if err != nil && strings.Contains(err.Error(), "message is not modified") {
		return nil
	}
	return err
}

// deleteMessages removes messages on a best-effort basis. Zero ids are
// skipped. It reports whether every deletion succeeded; callers log and
// move on.
func (b *Bot) deleteMessages(chatID int64, ids ...int) bool {
	ok := true
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, id)); err != nil {
			ok = false
			b.logger.Debug("delete message", slog.Int64("chat_id", chatID), slog.Int("message_id", id), slog.String("error", err.Error()))
		}
	}
	return ok
}

// sendTransient shows a short notice and deletes it after the configured delay.
func (b *Bot) sendTransient(chatID int64, text string) {
	msg, err := b.send(chatID, text, nil)
	if err != nil {
		b.logger.Warn("send transient message", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
		return
	}
	b.after(b.transientDelay, func() {
		b.deleteMessages(chatID, msg.MessageID)
	})
}

// answer acknowledges a button tap, optionally with a toast text.
func (b *Bot) answer(callbackID, text string) {
	if callbackID == "" {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.logger.Debug("answer callback", slog.String("error", err.Error()))
	}
}
