// Package bot is the Telegram front end of the task list.
package bot

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"todobot/internal/models"
	"todobot/internal/state"
	"todobot/internal/storage"
)

// Sender is the part of *tgbotapi.BotAPI the bot talks to.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// TaskStore is the subset of the task repository the bot needs.
type TaskStore interface {
	GetTask(ctx context.Context, id int64) (models.Task, error)
	ListTasks(ctx context.Context, userID int64) ([]models.Task, error)
	CreateTask(ctx context.Context, title string, userID int64) (models.Task, error)
	RenameTask(ctx context.Context, id int64, title string) (models.Task, error)
	SetDone(ctx context.Context, id int64, done bool, actor string) (models.Task, error)
	DeleteTask(ctx context.Context, id int64) (models.Task, error)
}

// Options tune the bot behaviour.
type Options struct {
	// Debounce is the window in which an identical button tap is ignored.
	Debounce time.Duration
	// TransientDelay is how long confirmations stay before being deleted.
	TransientDelay time.Duration
	Logger         *slog.Logger
}

// Bot handles Telegram updates one at a time.
type Bot struct {
	api    Sender
	store  TaskStore
	states state.Storage
	logger *slog.Logger

	debounce       time.Duration
	transientDelay time.Duration

	now   func() time.Time
	after func(d time.Duration, f func())
}

// New wires a bot. A nil state storage falls back to memory.
func New(api Sender, store TaskStore, states state.Storage, opts Options) *Bot {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if states == nil {
		states = state.NewMemory()
	}
	return &Bot{
		api:            api,
		store:          store,
		states:         states,
		logger:         logger,
		debounce:       opts.Debounce,
		transientDelay: opts.TransientDelay,
		now:            time.Now,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Run dispatches updates sequentially until ctx is done or the channel closes.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	b.logger.Info("bot started")
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bot stopped")
			return nil
		case raw, ok := <-updates:
			if !ok {
				b.logger.Info("update channel closed")
				return nil
			}
			b.HandleUpdate(ctx, raw)
		}
	}
}

// HandleUpdate processes a single update. Panics are logged and swallowed
// so one bad update cannot stop the loop.
func (b *Bot) HandleUpdate(ctx context.Context, raw tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("update handler panicked",
				slog.Int("update_id", raw.UpdateID),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	u, ok := ParseUpdate(raw)
	if !ok {
		// Taps on inline-mode messages carry no chat; clear the client's spinner anyway.
		if cb := raw.CallbackQuery; cb != nil {
			b.answer(cb.ID, textUnknownAction)
		}
		return
	}

	st, err := b.states.Load(ctx, u.ChatID)
	if err != nil {
		b.logger.Error("load conversation state", slog.Int64("chat_id", u.ChatID), slog.String("error", err.Error()))
		if u.Kind == ButtonUpdate {
			b.answer(u.CallbackID, textFailure)
		} else {
			b.reply(u.ChatID, textFailure)
		}
		return
	}

	switch u.Kind {
	case TextUpdate:
		b.handleText(ctx, u, &st)
	case ButtonUpdate:
		b.handleButton(ctx, u, &st)
	}

	if st.IsZero() {
		err = b.states.Delete(ctx, u.ChatID)
	} else {
		err = b.states.Save(ctx, u.ChatID, st)
	}
	if err != nil {
		b.logger.Error("save conversation state", slog.Int64("chat_id", u.ChatID), slog.String("error", err.Error()))
	}
}

// Announce posts the task list to chatID, e.g. on startup.
func (b *Bot) Announce(ctx context.Context, chatID int64) error {
	st, err := b.states.Load(ctx, chatID)
	if err != nil {
		return err
	}
	if err := b.repostList(ctx, chatID, &st); err != nil {
		return err
	}
	return b.states.Save(ctx, chatID, st)
}

// ownedTask loads a task and hides tasks that belong to another chat.
func (b *Bot) ownedTask(ctx context.Context, chatID, id int64) (models.Task, error) {
	t, err := b.store.GetTask(ctx, id)
	if err != nil {
		return models.Task{}, err
	}
	if t.UserID != chatID {
		return models.Task{}, storage.ErrNotFound
	}
	return t, nil
}

// reportFailure logs a store failure and tells the user something went wrong.
func (b *Bot) reportFailure(chatID int64, action string, err error) {
	b.logger.Error("task operation failed",
		slog.String("action", action),
		slog.Int64("chat_id", chatID),
		slog.String("error", err.Error()),
	)
	b.reply(chatID, textFailure)
}
