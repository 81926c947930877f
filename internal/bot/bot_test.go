package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todobot/internal/models"
	"todobot/internal/state"
	"todobot/internal/storage"
)

const testChatID int64 = 42

// fakeSender keeps the bot messages of a chat the way Telegram would show them.
type fakeSender struct {
	mu sync.Mutex

	nextID    int
	live      map[int]string
	sent      []tgbotapi.MessageConfig
	edits     int
	deleted   []int
	callbacks []string
	failEdit  map[int]bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{live: map[int]string{}, failEdit: map[int]bool{}}
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch cfg := c.(type) {
	case tgbotapi.MessageConfig:
		f.nextID++
		f.sent = append(f.sent, cfg)
		f.live[f.nextID] = cfg.Text
		return tgbotapi.Message{MessageID: f.nextID, Chat: &tgbotapi.Chat{ID: cfg.ChatID}, Text: cfg.Text}, nil
	case tgbotapi.EditMessageTextConfig:
		if _, ok := f.live[cfg.MessageID]; !ok || f.failEdit[cfg.MessageID] {
			return tgbotapi.Message{}, errors.New("Bad Request: message to edit not found")
		}
		f.edits++
		f.live[cfg.MessageID] = cfg.Text
		return tgbotapi.Message{MessageID: cfg.MessageID, Text: cfg.Text}, nil
	}
	return tgbotapi.Message{}, fmt.Errorf("unexpected send %T", c)
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch cfg := c.(type) {
	case tgbotapi.DeleteMessageConfig:
		f.deleted = append(f.deleted, cfg.MessageID)
		delete(f.live, cfg.MessageID)
	case tgbotapi.CallbackConfig:
		f.callbacks = append(f.callbacks, cfg.Text)
	default:
		return nil, fmt.Errorf("unexpected request %T", c)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) text(id int) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.live[id]
	return text, ok
}

func (f *fakeSender) liveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.live)
}

func (f *fakeSender) lastCallback() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.callbacks) == 0 {
		return ""
	}
	return f.callbacks[len(f.callbacks)-1]
}

func (f *fakeSender) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	texts := make([]string, 0, len(f.sent))
	for _, m := range f.sent {
		texts = append(texts, m.Text)
	}
	return texts
}

func (f *fakeSender) wasDeleted(id int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deleted {
		if d == id {
			return true
		}
	}
	return false
}

// brokenStore lets tests inject repository failures.
type brokenStore struct {
	*storage.Store
	createErr  error
	panicOnGet bool
}

func (s *brokenStore) CreateTask(ctx context.Context, title string, userID int64) (models.Task, error) {
	if s.createErr != nil {
		return models.Task{}, s.createErr
	}
	return s.Store.CreateTask(ctx, title, userID)
}

func (s *brokenStore) GetTask(ctx context.Context, id int64) (models.Task, error) {
	if s.panicOnGet {
		panic("boom")
	}
	return s.Store.GetTask(ctx, id)
}

type harness struct {
	t      *testing.T
	bot    *Bot
	api    *fakeSender
	store  *storage.Store
	states *state.Memory
	now    time.Time
	msgID  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "todo.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return newHarnessWith(t, store, store)
}

func newHarnessWith(t *testing.T, store *storage.Store, tasks TaskStore) *harness {
	t.Helper()

	h := &harness{
		t:      t,
		api:    newFakeSender(),
		store:  store,
		states: state.NewMemory(),
		now:    time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
		msgID:  1000,
	}
	h.bot = New(h.api, tasks, h.states, Options{Debounce: time.Second, TransientDelay: time.Second})
	h.bot.now = func() time.Time { return h.now }
	h.bot.after = func(_ time.Duration, f func()) { f() }
	return h
}

func textUpdate(chatID int64, messageID int, text string) tgbotapi.Update {
	msg := &tgbotapi.Message{
		MessageID: messageID,
		Chat:      &tgbotapi.Chat{ID: chatID},
		From:      &tgbotapi.User{ID: chatID, UserName: "alice"},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		end := strings.IndexByte(text, ' ')
		if end < 0 {
			end = len(text)
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}}
	}
	return tgbotapi.Update{Message: msg}
}

func tapUpdate(chatID int64, messageID int, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-" + data,
		From:    &tgbotapi.User{ID: chatID, UserName: "alice"},
		Message: &tgbotapi.Message{MessageID: messageID, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}}
}

// send delivers a user message and returns its id.
func (h *harness) send(text string) int {
	h.msgID++
	h.now = h.now.Add(2 * time.Second)
	h.bot.HandleUpdate(context.Background(), textUpdate(testChatID, h.msgID, text))
	return h.msgID
}

// tap presses an inline button outside the debounce window.
func (h *harness) tap(messageID int, data string) {
	h.now = h.now.Add(2 * time.Second)
	h.bot.HandleUpdate(context.Background(), tapUpdate(testChatID, messageID, data))
}

func (h *harness) state() state.ConversationState {
	st, err := h.states.Load(context.Background(), testChatID)
	require.NoError(h.t, err)
	return st
}

func (h *harness) tasks() []models.Task {
	tasks, err := h.store.ListTasks(context.Background(), testChatID)
	require.NoError(h.t, err)
	return tasks
}

func (h *harness) taskMessage(taskID int64) int {
	id, ok := h.state().TaskMessages[taskID]
	require.True(h.t, ok, "task %d is not rendered", taskID)
	return id
}

func (h *harness) liveText(id int) string {
	text, ok := h.api.text(id)
	require.True(h.t, ok, "message %d is not in the chat", id)
	return text
}

func action(prefix string, id int64) string {
	return prefix + strconv.FormatInt(id, 10)
}

func TestStartShowsMenuAndList(t *testing.T) {
	h := newHarness(t)

	h.send("/start")

	require.GreaterOrEqual(t, len(h.api.sent), 2)
	welcome := h.api.sent[0]
	assert.Contains(t, welcome.Text, "/add_task")
	assert.IsType(t, tgbotapi.ReplyKeyboardMarkup{}, welcome.ReplyMarkup)

	st := h.state()
	require.NotZero(t, st.HeaderMessageID)
	header := h.liveText(st.HeaderMessageID)
	assert.Contains(t, header, "Tasks for 14.03.2025")
	assert.Contains(t, header, "Total: 0 · Done: 0 · Open: 0")
	assert.Contains(t, header, "The list is empty")
}

func TestAddDialogSurvivesListTap(t *testing.T) {
	h := newHarness(t)

	h.send("/list_tasks")
	header := h.state().HeaderMessageID
	require.NotZero(t, header)

	h.send("/add_task")
	st := h.state()
	assert.Equal(t, state.AwaitingNewTitle, st.Dialog)
	prompt := st.PromptMessageID
	assert.Equal(t, textAddPrompt, h.liveText(prompt))

	h.tap(header, actionList)
	assert.Equal(t, state.AwaitingNewTitle, h.state().Dialog, "a list tap does not end the dialog")

	userMsg := h.send("Buy milk")

	tasks := h.tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "Buy milk", tasks[0].Title)
	assert.Equal(t, testChatID, tasks[0].UserID)

	st = h.state()
	assert.Equal(t, state.Idle, st.Dialog)
	assert.Zero(t, st.PromptMessageID)
	assert.True(t, h.api.wasDeleted(prompt))
	assert.True(t, h.api.wasDeleted(userMsg))
	assert.Contains(t, h.api.sentTexts(), "✅ Task added: Buy milk")

	assert.Equal(t, "⬜ Buy milk", h.liveText(h.taskMessage(tasks[0].ID)))
	assert.Contains(t, h.liveText(header), "Total: 1 · Done: 0 · Open: 1")
}

func TestAddDialogRepromptsOnInvalidTitle(t *testing.T) {
	h := newHarness(t)

	h.send("/add_task")
	first := h.state().PromptMessageID

	h.send("   ")
	st := h.state()
	assert.Equal(t, state.AwaitingNewTitle, st.Dialog)
	assert.NotEqual(t, first, st.PromptMessageID)
	assert.True(t, h.api.wasDeleted(first))
	assert.Equal(t, textEmptyTitle, h.liveText(st.PromptMessageID))

	h.send(strings.Repeat("x", models.MaxTitleLength+1))
	st = h.state()
	assert.Equal(t, state.AwaitingNewTitle, st.Dialog)
	assert.Contains(t, h.liveText(st.PromptMessageID), "max 200 characters")

	assert.Empty(t, h.tasks())
}

func TestAddTaskInline(t *testing.T) {
	h := newHarness(t)

	h.send("/add_task Call <mom>")

	tasks := h.tasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, "Call <mom>", tasks[0].Title)
	assert.Equal(t, state.Idle, h.state().Dialog)
	assert.Equal(t, "⬜ Call &lt;mom&gt;", h.liveText(h.taskMessage(tasks[0].ID)))
	assert.NotZero(t, h.state().HeaderMessageID)
}

func TestToggleDoneRecordsActor(t *testing.T) {
	h := newHarness(t)
	h.send("/add_task Write report")
	task := h.tasks()[0]
	msg := h.taskMessage(task.ID)
	header := h.state().HeaderMessageID

	h.tap(msg, action(actionDone, task.ID))

	got, err := h.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.True(t, got.Done)
	assert.Equal(t, "@alice", got.CompletedBy())
	assert.Equal(t, "✅ Write report\n<i>Completed by @alice</i>", h.liveText(msg))
	assert.Contains(t, h.liveText(header), "Total: 1 · Done: 1 · Open: 0")
	assert.Equal(t, "✅ Done", h.api.lastCallback())

	h.tap(msg, action(actionUndone, task.ID))

	got, err = h.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.False(t, got.Done)
	assert.Nil(t, got.DoneBy)
	assert.Equal(t, "⬜ Write report", h.liveText(msg))
	assert.Equal(t, "↩️ Reopened", h.api.lastCallback())
}

func TestRepeatedTapIsDebounced(t *testing.T) {
	h := newHarness(t)
	h.send("/list_tasks")
	header := h.state().HeaderMessageID
	ctx := context.Background()

	h.bot.HandleUpdate(ctx, tapUpdate(testChatID, header, actionList))
	edits := h.api.edits
	h.bot.HandleUpdate(ctx, tapUpdate(testChatID, header, actionList))

	assert.Equal(t, textTooFast, h.api.lastCallback())
	assert.Equal(t, edits, h.api.edits, "a debounced tap changes nothing")

	h.tap(header, actionList)
	assert.Equal(t, "", h.api.lastCallback())
}

func TestDeleteButton(t *testing.T) {
	h := newHarness(t)
	h.send("/add_task First")
	h.send("/add_task Second")
	tasks := h.tasks()
	require.Len(t, tasks, 2)
	first := tasks[0]
	msg := h.taskMessage(first.ID)

	h.tap(msg, action(actionDelete, first.ID))

	_, err := h.store.GetTask(context.Background(), first.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.True(t, h.api.wasDeleted(msg))
	assert.NotContains(t, h.state().TaskMessages, first.ID)
	assert.Contains(t, h.liveText(h.state().HeaderMessageID), "Total: 1")
	assert.Equal(t, "🗑 Deleted", h.api.lastCallback())
}

func TestEditDialog(t *testing.T) {
	h := newHarness(t)
	h.send("/add_task Old title")
	task := h.tasks()[0]
	msg := h.taskMessage(task.ID)

	h.tap(msg, action(actionEdit, task.ID))

	st := h.state()
	assert.Equal(t, state.AwaitingEditedTitle, st.Dialog)
	assert.Equal(t, task.ID, st.EditTaskID)
	assert.Equal(t, msg, st.AnchorMessageID)
	prompt := st.PromptMessageID
	assert.Contains(t, h.liveText(prompt), "<b>Old title</b>")

	h.send("New title")

	got, err := h.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "New title", got.Title)

	st = h.state()
	assert.Equal(t, state.Idle, st.Dialog)
	assert.Zero(t, st.EditTaskID)
	assert.True(t, h.api.wasDeleted(prompt))
	assert.Equal(t, "⬜ New title", h.liveText(msg), "the task message is edited in place")
}

func TestEditOfVanishedTaskEndsDialog(t *testing.T) {
	h := newHarness(t)
	h.send("/add_task Short lived")
	task := h.tasks()[0]
	h.tap(h.taskMessage(task.ID), action(actionEdit, task.ID))

	_, err := h.store.DeleteTask(context.Background(), task.ID)
	require.NoError(t, err)

	h.send("Renamed")

	assert.Equal(t, state.Idle, h.state().Dialog)
	assert.Contains(t, h.api.sentTexts(), textNotFound)
}

func TestRefreshDiffsTheList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	a, err := h.store.CreateTask(ctx, "A", testChatID)
	require.NoError(t, err)
	b, err := h.store.CreateTask(ctx, "B", testChatID)
	require.NoError(t, err)

	h.send("/list_tasks")
	header := h.state().HeaderMessageID
	msgA, msgB := h.taskMessage(a.ID), h.taskMessage(b.ID)

	_, err = h.store.DeleteTask(ctx, a.ID)
	require.NoError(t, err)
	_, err = h.store.RenameTask(ctx, b.ID, "B2")
	require.NoError(t, err)
	c, err := h.store.CreateTask(ctx, "C", testChatID)
	require.NoError(t, err)
	h.api.failEdit[msgB] = true

	h.send("/refresh")

	st := h.state()
	assert.Equal(t, header, st.HeaderMessageID, "the header is edited in place")
	assert.Contains(t, h.liveText(header), "Total: 2")
	assert.True(t, h.api.wasDeleted(msgA))
	assert.True(t, h.api.wasDeleted(msgB), "an uneditable message is replaced")
	assert.Len(t, st.TaskMessages, 2)
	assert.NotEqual(t, msgB, st.TaskMessages[b.ID])
	assert.Equal(t, "⬜ B2", h.liveText(st.TaskMessages[b.ID]))
	assert.Equal(t, "⬜ C", h.liveText(st.TaskMessages[c.ID]))
}

func TestListRepostsBelowNewMessages(t *testing.T) {
	h := newHarness(t)
	h.send("/add_task Only")
	oldHeader := h.state().HeaderMessageID

	h.send("/list_tasks")

	newHeader := h.state().HeaderMessageID
	assert.NotEqual(t, oldHeader, newHeader)
	assert.True(t, h.api.wasDeleted(oldHeader))
	assert.Greater(t, h.taskMessage(h.tasks()[0].ID), newHeader)
}

func TestForeignTaskIsNotFound(t *testing.T) {
	h := newHarness(t)
	foreign, err := h.store.CreateTask(context.Background(), "Not yours", 7)
	require.NoError(t, err)

	h.tap(99, action(actionDone, foreign.ID))

	assert.Equal(t, textNotFound, h.api.lastCallback())
	assert.True(t, h.api.wasDeleted(99))
	got, err := h.store.GetTask(context.Background(), foreign.ID)
	require.NoError(t, err)
	assert.False(t, got.Done)
}

func TestUnknownButtonData(t *testing.T) {
	h := newHarness(t)

	h.tap(5, "explode_1")

	assert.Equal(t, textUnknownAction, h.api.lastCallback())
}

func TestStoreFailureKeepsDialog(t *testing.T) {
	store, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "todo.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	h := newHarnessWith(t, store, &brokenStore{Store: store, createErr: errors.New("disk full")})

	h.send("/add_task")
	prompt := h.state().PromptMessageID

	h.send("Milk")

	st := h.state()
	assert.Equal(t, state.AwaitingNewTitle, st.Dialog, "the user can retry")
	assert.Equal(t, prompt, st.PromptMessageID)
	assert.Contains(t, h.api.sentTexts(), textFailure)
	assert.Empty(t, h.tasks())
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	store, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "todo.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	h := newHarnessWith(t, store, &brokenStore{Store: store, panicOnGet: true})

	assert.NotPanics(t, func() { h.tap(3, action(actionDone, 1)) })
}

func TestUnknownCommandAndCancel(t *testing.T) {
	h := newHarness(t)

	h.send("/frobnicate")
	assert.Equal(t, textHelp, h.api.sentTexts()[len(h.api.sentTexts())-1])

	h.send("/add_task")
	prompt := h.state().PromptMessageID

	h.send("/frobnicate")
	assert.Contains(t, h.api.sentTexts(), textDialogActive)
	assert.Equal(t, state.AwaitingNewTitle, h.state().Dialog)

	h.send("/cancel")
	assert.Equal(t, state.Idle, h.state().Dialog)
	assert.True(t, h.api.wasDeleted(prompt))
	assert.Contains(t, h.api.sentTexts(), textCancelled)

	h.send("/cancel")
	assert.Contains(t, h.api.sentTexts(), textNothingToCancel)
}

func TestFreeTextWithoutDialogShowsHelp(t *testing.T) {
	h := newHarness(t)

	h.send("hello there")

	assert.Equal(t, []string{textHelp}, h.api.sentTexts())
	assert.Empty(t, h.tasks())
}

func TestClearForgetsChat(t *testing.T) {
	h := newHarness(t)
	h.send("/add_task Something")
	h.send("/add_task")
	st := h.state()
	require.True(t, st.Active())

	h.send("/clear")

	st = h.state()
	assert.True(t, st.IsZero())
	assert.Zero(t, h.api.liveCount(), "every bot message is removed")
	assert.Len(t, h.tasks(), 1, "tasks are kept")
}

func TestAnnounce(t *testing.T) {
	h := newHarness(t)
	_, err := h.store.CreateTask(context.Background(), "Startup", testChatID)
	require.NoError(t, err)

	require.NoError(t, h.bot.Announce(context.Background(), testChatID))

	st := h.state()
	assert.NotZero(t, st.HeaderMessageID)
	assert.Len(t, st.TaskMessages, 1)
}

func TestRunStopsOnClosedChannel(t *testing.T) {
	h := newHarness(t)
	updates := make(chan tgbotapi.Update, 1)
	updates <- textUpdate(testChatID, 1, "/add_task From the loop")
	close(updates)

	require.NoError(t, h.bot.Run(context.Background(), updates))
	assert.Len(t, h.tasks(), 1)
}

func TestTapWithoutChatIsAnswered(t *testing.T) {
	h := newHarness(t)

	h.bot.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:              "inline-1",
		From:            &tgbotapi.User{ID: testChatID, UserName: "alice"},
		InlineMessageID: "AAQ",
		Data:            "done_1",
	}})

	assert.Equal(t, []string{textUnknownAction}, h.api.callbacks)
	assert.Empty(t, h.api.sent)
}

func TestDoneActorWithoutUsername(t *testing.T) {
	h := newHarness(t)
	h.send("/add_task Water plants")
	task := h.tasks()[0]
	msg := h.taskMessage(task.ID)

	tap := tapUpdate(testChatID, msg, action(actionDone, task.ID))
	tap.CallbackQuery.From = &tgbotapi.User{ID: testChatID, FirstName: "Alice", LastName: "Smith"}
	h.now = h.now.Add(2 * time.Second)
	h.bot.HandleUpdate(context.Background(), tap)

	got, err := h.store.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Smith", got.CompletedBy())
	assert.Equal(t, "✅ Water plants\n<i>Completed by Alice Smith</i>", h.liveText(msg))
}
