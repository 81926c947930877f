package bot

import (
	"context"
	"log/slog"

	"todobot/internal/models"
	"todobot/internal/state"
)

// refreshList brings the rendered list in line with the store. Tracked
// messages of vanished tasks are deleted, tracked messages of remaining
// tasks are edited in place, and new tasks get new messages. When the
// header cannot be edited the whole list is re-sent below a new one.
func (b *Bot) refreshList(ctx context.Context, chatID int64, st *state.ConversationState) error {
	tasks, err := b.store.ListTasks(ctx, chatID)
	if err != nil {
		return err
	}

	header := headerText(tasks, b.now())
	headerKB := headerKeyboard()
	if st.HeaderMessageID == 0 || b.edit(chatID, st.HeaderMessageID, header, &headerKB) != nil {
		b.forgetList(chatID, st)
		msg, err := b.send(chatID, header, headerKB)
		if err != nil {
			b.logger.Warn("send list header", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
		} else {
			st.HeaderMessageID = msg.MessageID
		}
	}

	present := make(map[int64]struct{}, len(tasks))
	for _, t := range tasks {
		present[t.ID] = struct{}{}
	}
	for taskID, messageID := range st.TaskMessages {
		if _, ok := present[taskID]; !ok {
			b.deleteMessages(chatID, messageID)
			delete(st.TaskMessages, taskID)
		}
	}

	for _, t := range tasks {
		b.renderTask(chatID, st, t, 0)
	}
	return nil
}

// repostList drops the previously rendered list and sends it again at the
// bottom of the chat.
func (b *Bot) repostList(ctx context.Context, chatID int64, st *state.ConversationState) error {
	b.forgetList(chatID, st)
	return b.refreshList(ctx, chatID, st)
}

// forgetList deletes the header and every tracked task message.
func (b *Bot) forgetList(chatID int64, st *state.ConversationState) {
	ids := []int{st.HeaderMessageID}
	for _, messageID := range st.TaskMessages {
		ids = append(ids, messageID)
	}
	b.deleteMessages(chatID, ids...)
	st.HeaderMessageID = 0
	st.TaskMessages = nil
}

// renderTask edits the message showing t, or sends a new one when the task
// is not rendered yet or the edit is rejected. fallbackID is used when the
// task is not tracked, e.g. the message a button was tapped on.
func (b *Bot) renderTask(chatID int64, st *state.ConversationState, t models.Task, fallbackID int) {
	text := taskText(t)
	kb := taskKeyboard(t)

	messageID, tracked := st.TaskMessages[t.ID]
	if !tracked {
		messageID = fallbackID
	}
	if messageID != 0 {
		err := b.edit(chatID, messageID, text, &kb)
		if err == nil {
			st.TrackTask(t.ID, messageID)
			return
		}
		b.logger.Debug("edit task message, re-sending", slog.Int64("task_id", t.ID), slog.String("error", err.Error()))
		b.deleteMessages(chatID, messageID)
	}

	msg, err := b.send(chatID, text, kb)
	if err != nil {
		b.logger.Warn("send task message", slog.Int64("task_id", t.ID), slog.String("error", err.Error()))
		return
	}
	st.TrackTask(t.ID, msg.MessageID)
}

// updateHeader refreshes only the counters in the header message.
func (b *Bot) updateHeader(ctx context.Context, chatID int64, st *state.ConversationState) {
	if st.HeaderMessageID == 0 {
		return
	}
	tasks, err := b.store.ListTasks(ctx, chatID)
	if err != nil {
		b.logger.Warn("list tasks for header", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
		return
	}
	kb := headerKeyboard()
	if err := b.edit(chatID, st.HeaderMessageID, headerText(tasks, b.now()), &kb); err != nil {
		b.logger.Debug("edit list header", slog.Int64("chat_id", chatID), slog.String("error", err.Error()))
	}
}
