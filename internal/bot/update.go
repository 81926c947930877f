package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// UpdateKind tags the variant carried by an Update.
type UpdateKind int

const (
	// TextUpdate is a chat message: a command, a menu button or free text.
	TextUpdate UpdateKind = iota + 1
	// ButtonUpdate is a tap on an inline keyboard button.
	ButtonUpdate
)

// Update is the front end's view of an incoming Telegram update.
type Update struct {
	Kind UpdateKind

	ChatID   int64
	UserName string
	// MessageID is the user's message for TextUpdate and the bot message
	// carrying the tapped keyboard for ButtonUpdate.
	MessageID int

	// TextUpdate
	Text    string
	Command string
	Args    string

	// ButtonUpdate
	Data       string
	CallbackID string
}

// Origin returns the chat the update belongs to and who sent it.
func (u Update) Origin() (chatID int64, displayName string) {
	return u.ChatID, u.UserName
}

// Persistent menu buttons are plain text messages mapped onto commands.
var menuCommands = map[string]string{
	menuListLabel: "list_tasks",
	menuAddLabel:  "add_task",
}

// ParseUpdate converts a raw Telegram update. Updates the bot does not
// handle (edited messages, channel posts, inline queries) return false.
func ParseUpdate(raw tgbotapi.Update) (Update, bool) {
	if cb := raw.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.Message.Chat == nil {
			return Update{}, false
		}
		return Update{
			Kind:       ButtonUpdate,
			ChatID:     cb.Message.Chat.ID,
			UserName:   displayName(cb.From),
			MessageID:  cb.Message.MessageID,
			Data:       cb.Data,
			CallbackID: cb.ID,
		}, true
	}

	msg := raw.Message
	if msg == nil || msg.Chat == nil {
		return Update{}, false
	}

	u := Update{
		Kind:      TextUpdate,
		ChatID:    msg.Chat.ID,
		UserName:  displayName(msg.From),
		MessageID: msg.MessageID,
		Text:      msg.Text,
	}
	if msg.IsCommand() {
		u.Command = strings.ToLower(msg.Command())
		u.Args = strings.TrimSpace(msg.CommandArguments())
	} else if cmd, ok := menuCommands[strings.TrimSpace(msg.Text)]; ok {
		u.Command = cmd
	}
	return u, true
}

func displayName(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	if user.UserName != "" {
		return "@" + user.UserName
	}
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}
