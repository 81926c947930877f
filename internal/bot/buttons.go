package bot

import (
	"context"
	"errors"

	"todobot/internal/state"
	"todobot/internal/storage"
)

func (b *Bot) handleButton(ctx context.Context, u Update, st *state.ConversationState) {
	chatID, actor := u.Origin()

	if st.Debounced(u.Data, b.now(), b.debounce) {
		b.answer(u.CallbackID, textTooFast)
		return
	}

	switch u.Data {
	case actionList:
		if err := b.refreshList(ctx, chatID, st); err != nil {
			b.answer(u.CallbackID, textFailure)
			b.reportFailure(chatID, "refresh tasks", err)
			return
		}
		b.answer(u.CallbackID, "")
		return
	case actionAdd:
		b.answer(u.CallbackID, "")
		b.startAdd(chatID, st)
		return
	}

	action, id, ok := parseTaskAction(u.Data)
	if !ok {
		b.answer(u.CallbackID, textUnknownAction)
		return
	}

	task, err := b.ownedTask(ctx, chatID, id)
	if errors.Is(err, storage.ErrNotFound) {
		b.answer(u.CallbackID, textNotFound)
		b.dropTaskMessage(chatID, st, id, u.MessageID)
		b.updateHeader(ctx, chatID, st)
		return
	}
	if err != nil {
		b.answer(u.CallbackID, textFailure)
		b.reportFailure(chatID, "load task", err)
		return
	}

	switch action {
	case actionDone, actionUndone:
		updated, err := b.store.SetDone(ctx, task.ID, action == actionDone, actor)
		if err != nil {
			b.answer(u.CallbackID, textFailure)
			b.reportFailure(chatID, "set done", err)
			return
		}
		b.renderTask(chatID, st, updated, u.MessageID)
		b.updateHeader(ctx, chatID, st)
		if updated.Done {
			b.answer(u.CallbackID, "✅ Done")
		} else {
			b.answer(u.CallbackID, "↩️ Reopened")
		}

	case actionDelete:
		if _, err := b.store.DeleteTask(ctx, task.ID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			b.answer(u.CallbackID, textFailure)
			b.reportFailure(chatID, "delete task", err)
			return
		}
		b.dropTaskMessage(chatID, st, task.ID, u.MessageID)
		b.updateHeader(ctx, chatID, st)
		b.answer(u.CallbackID, "🗑 Deleted")

	case actionEdit:
		b.answer(u.CallbackID, "")
		anchor := u.MessageID
		if tracked, ok := st.TaskMessages[task.ID]; ok {
			anchor = tracked
		}
		b.startEdit(chatID, st, task, anchor)
	}
}

// dropTaskMessage deletes the message of a task that no longer exists and
// stops tracking it.
func (b *Bot) dropTaskMessage(chatID int64, st *state.ConversationState, taskID int64, tappedID int) {
	messageID := tappedID
	if tracked, ok := st.TaskMessages[taskID]; ok {
		messageID = tracked
		delete(st.TaskMessages, taskID)
	}
	b.deleteMessages(chatID, messageID)
}
