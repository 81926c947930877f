package bot

import (
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"todobot/internal/models"
)

const (
	menuListLabel = "📋 Tasks"
	menuAddLabel  = "➕ Add task"

	actionList   = "list_tasks"
	actionAdd    = "add_task"
	actionDone   = "done_"
	actionUndone = "undone_"
	actionEdit   = "edit_"
	actionDelete = "delete_"
)

const (
	textWelcome = "👋 Hi! I keep your to-do list.\n\n" + textHelp
	textHelp    = "📌 Commands:\n" +
		"/list_tasks - show the task list\n" +
		"/add_task [title] - add a task\n" +
		"/refresh - update the list in place\n" +
		"/cancel - abort the current input\n" +
		"/clear - remove the bot messages from this chat\n\n" +
		"Use the buttons under each task to complete, edit or delete it."
	textAddPrompt       = "📝 Send the title of the new task (or /cancel):"
	textEmptyTitle      = "❗ The title must not be empty. Try again:"
	textTitleTooLong    = "❗ The title is too long (max %d characters). Try again:"
	textFailure         = "⚠️ Something went wrong, please try again later."
	textNotFound        = "❗ Task not found."
	textTooFast         = "⏳ Too fast, please wait a moment."
	textDialogActive    = "✋ Finish the current input first or send /cancel."
	textCancelled       = "❎ Cancelled."
	textNothingToCancel = "Nothing to cancel."
	textUnknownAction   = "Unknown action."
)

func menuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuListLabel),
			tgbotapi.NewKeyboardButton(menuAddLabel),
		),
	)
}

func headerText(tasks []models.Task, now time.Time) string {
	done := 0
	for _, t := range tasks {
		if t.Done {
			done++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>Tasks for %s</b>\n", now.Format("02.01.2006"))
	fmt.Fprintf(&b, "Total: %d · Done: %d · Open: %d", len(tasks), done, len(tasks)-done)
	if len(tasks) == 0 {
		b.WriteString("\n\n📭 The list is empty.")
	}
	return b.String()
}

func headerKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", actionList),
			tgbotapi.NewInlineKeyboardButtonData("➕ Add", actionAdd),
		),
	)
}

func taskText(t models.Task) string {
	icon := "⬜"
	if t.Done {
		icon = "✅"
	}
	text := icon + " " + html.EscapeString(t.Title)
	if who := t.CompletedBy(); t.Done && who != "" {
		text += "\n<i>Completed by " + html.EscapeString(who) + "</i>"
	}
	return text
}

func taskKeyboard(t models.Task) tgbotapi.InlineKeyboardMarkup {
	id := strconv.FormatInt(t.ID, 10)
	toggle := tgbotapi.NewInlineKeyboardButtonData("✅ Done", actionDone+id)
	if t.Done {
		toggle = tgbotapi.NewInlineKeyboardButtonData("↩️ Undo", actionUndone+id)
	}
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			toggle,
			tgbotapi.NewInlineKeyboardButtonData("✏️ Edit", actionEdit+id),
			tgbotapi.NewInlineKeyboardButtonData("🗑 Delete", actionDelete+id),
		),
	)
}

func editPrompt(t models.Task) string {
	return "✏️ Send the new title for <b>" + html.EscapeString(t.Title) + "</b> (or /cancel):"
}

func titleError(err error) string {
	if errors.Is(err, models.ErrTitleTooLong) {
		return fmt.Sprintf(textTitleTooLong, models.MaxTitleLength)
	}
	return textEmptyTitle
}

// parseTaskAction splits callback data like "done_12" into its prefix and id.
func parseTaskAction(data string) (action string, id int64, ok bool) {
	for _, prefix := range []string{actionDone, actionUndone, actionEdit, actionDelete} {
		if rest, found := strings.CutPrefix(data, prefix); found {
			id, err := strconv.ParseInt(rest, 10, 64)
			if err != nil {
				return "", 0, false
			}
			return prefix, id, true
		}
	}
	return "", 0, false
}
