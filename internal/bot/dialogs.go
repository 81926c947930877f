package bot

import (
	"context"
	"errors"
	"html"
	"log/slog"

	"todobot/internal/models"
	"todobot/internal/state"
	"todobot/internal/storage"
)

// startAdd opens the add dialog and sends its prompt.
func (b *Bot) startAdd(chatID int64, st *state.ConversationState) {
	prev := st.PromptMessageID
	if err := st.Fire(state.AddRequested); err != nil {
		b.logger.Warn("start add dialog", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
		return
	}
	b.deleteMessages(chatID, prev)
	b.prompt(chatID, st, textAddPrompt)
}

// startEdit opens the edit dialog for t. anchorID is the message showing t.
func (b *Bot) startEdit(chatID int64, st *state.ConversationState, t models.Task, anchorID int) {
	prev := st.PromptMessageID
	if err := st.Fire(state.EditRequested); err != nil {
		b.logger.Warn("start edit dialog", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
		return
	}
	b.deleteMessages(chatID, prev)
	st.EditTaskID = t.ID
	st.AnchorMessageID = anchorID
	b.prompt(chatID, st, editPrompt(t))
}

// prompt sends text and remembers it as the dialog prompt.
func (b *Bot) prompt(chatID int64, st *state.ConversationState, text string) {
	msg, err := b.send(chatID, text, nil)
	if err != nil {
		b.logger.Warn("send prompt", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
		st.PromptMessageID = 0
		return
	}
	st.PromptMessageID = msg.MessageID
}

// rejectTitle re-prompts after invalid input. The dialog stays as it is.
func (b *Bot) rejectTitle(u Update, st *state.ConversationState, reason error) {
	prev := st.PromptMessageID
	if err := st.Fire(state.TitleRejected); err != nil {
		b.logger.Warn("reject title", slog.Int64("chat_id", u.ChatID), slog.String("error", err.Error()))
		return
	}
	b.deleteMessages(u.ChatID, prev, u.MessageID)
	b.prompt(u.ChatID, st, titleError(reason))
}

// completeAdd creates a task from the text sent in the add dialog.
func (b *Bot) completeAdd(ctx context.Context, u Update, st *state.ConversationState) {
	title, err := models.ValidateTitle(u.Text)
	if err != nil {
		b.rejectTitle(u, st, err)
		return
	}

	task, err := b.store.CreateTask(ctx, title, u.ChatID)
	if err != nil {
		b.reportFailure(u.ChatID, "create task", err)
		return
	}

	prompt := st.PromptMessageID
	if err := st.Fire(state.TitleAccepted); err != nil {
		b.logger.Warn("finish add dialog", slog.Int64("chat_id", u.ChatID), slog.String("error", err.Error()))
	}
	b.deleteMessages(u.ChatID, prompt, u.MessageID)
	b.sendTransient(u.ChatID, "✅ Task added: "+html.EscapeString(task.Title))

	if err := b.refreshList(ctx, u.ChatID, st); err != nil {
		b.reportFailure(u.ChatID, "refresh tasks", err)
	}
}

// addDirect handles "/add_task <title>" without opening a dialog.
func (b *Bot) addDirect(ctx context.Context, u Update, st *state.ConversationState) {
	title, err := models.ValidateTitle(u.Args)
	if err != nil {
		b.sendTransient(u.ChatID, titleError(err))
		return
	}

	task, err := b.store.CreateTask(ctx, title, u.ChatID)
	if err != nil {
		b.reportFailure(u.ChatID, "create task", err)
		return
	}

	b.deleteMessages(u.ChatID, u.MessageID)
	b.sendTransient(u.ChatID, "✅ Task added: "+html.EscapeString(task.Title))
	if err := b.refreshList(ctx, u.ChatID, st); err != nil {
		b.reportFailure(u.ChatID, "refresh tasks", err)
	}
}

// completeEdit renames the task the edit dialog was opened for.
func (b *Bot) completeEdit(ctx context.Context, u Update, st *state.ConversationState) {
	title, err := models.ValidateTitle(u.Text)
	if err != nil {
		b.rejectTitle(u, st, err)
		return
	}

	current, err := b.ownedTask(ctx, u.ChatID, st.EditTaskID)
	if err == nil {
		current, err = b.store.RenameTask(ctx, current.ID, title)
	}
	if errors.Is(err, storage.ErrNotFound) {
		b.cancelDialog(u.ChatID, st)
		b.deleteMessages(u.ChatID, u.MessageID)
		b.sendTransient(u.ChatID, textNotFound)
		return
	}
	if err != nil {
		b.reportFailure(u.ChatID, "rename task", err)
		return
	}

	prompt, anchor := st.PromptMessageID, st.AnchorMessageID
	if err := st.Fire(state.TitleAccepted); err != nil {
		b.logger.Warn("finish edit dialog", slog.Int64("chat_id", u.ChatID), slog.String("error", err.Error()))
	}
	b.deleteMessages(u.ChatID, prompt, u.MessageID)
	b.renderTask(u.ChatID, st, current, anchor)
	b.sendTransient(u.ChatID, "✏️ Task renamed: "+html.EscapeString(current.Title))
}
