package bot

import (
	"context"
	"log/slog"

	"todobot/internal/state"
)

func (b *Bot) handleText(ctx context.Context, u Update, st *state.ConversationState) {
	if u.Command != "" {
		b.handleCommand(ctx, u, st)
		return
	}

	switch st.Dialog {
	case state.AwaitingNewTitle:
		b.completeAdd(ctx, u, st)
	case state.AwaitingEditedTitle:
		b.completeEdit(ctx, u, st)
	default:
		b.reply(u.ChatID, textHelp)
	}
}

func (b *Bot) handleCommand(ctx context.Context, u Update, st *state.ConversationState) {
	chatID, _ := u.Origin()

	switch u.Command {
	case "start":
		b.cancelDialog(chatID, st)
		if _, err := b.send(chatID, textWelcome, menuKeyboard()); err != nil {
			b.logger.Warn("send welcome", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
		}
		if err := b.repostList(ctx, chatID, st); err != nil {
			b.reportFailure(chatID, "list tasks", err)
		}

	case "help":
		b.reply(chatID, textHelp)

	case "list_tasks":
		b.deleteMessages(chatID, u.MessageID)
		if err := b.repostList(ctx, chatID, st); err != nil {
			b.reportFailure(chatID, "list tasks", err)
		}

	case "refresh":
		b.deleteMessages(chatID, u.MessageID)
		if err := b.refreshList(ctx, chatID, st); err != nil {
			b.reportFailure(chatID, "refresh tasks", err)
		}

	case "add_task":
		if u.Args == "" {
			b.deleteMessages(chatID, u.MessageID)
			b.startAdd(chatID, st)
			return
		}
		b.addDirect(ctx, u, st)

	case "cancel":
		b.deleteMessages(chatID, u.MessageID)
		if !st.Active() {
			b.sendTransient(chatID, textNothingToCancel)
			return
		}
		b.cancelDialog(chatID, st)
		b.sendTransient(chatID, textCancelled)

	case "clear":
		b.forgetList(chatID, st)
		b.deleteMessages(chatID, st.PromptMessageID, u.MessageID)
		*st = state.ConversationState{}

	default:
		if st.Active() {
			b.reply(chatID, textDialogActive)
			return
		}
		b.reply(chatID, textHelp)
	}
}

// cancelDialog leaves any active dialog and removes its prompt.
func (b *Bot) cancelDialog(chatID int64, st *state.ConversationState) {
	if !st.Active() {
		return
	}
	prompt := st.PromptMessageID
	if err := st.Fire(state.Cancelled); err != nil {
		b.logger.Warn("cancel dialog", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
		return
	}
	b.deleteMessages(chatID, prompt)
}
