// Package config builds the application configuration from flags,
// environment variables and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Keys double as flag names.
const (
	KeyAddr           = "addr"
	KeyDatabaseURL    = "database-url"
	KeyTelegramToken  = "telegram-bot-token"
	KeyTelegramChatID = "telegram-chat-id"
	KeyRedisAddr      = "redis-addr"
	KeyLogLevel       = "log-level"
	KeyDebounce       = "debounce"
	KeyTransientDelay = "transient-delay"
	KeyStateTTL       = "state-ttl"
)

var envNames = map[string]string{
	KeyAddr:           "TODO_ADDR",
	KeyDatabaseURL:    "DATABASE_URL",
	KeyTelegramToken:  "TELEGRAM_BOT_TOKEN",
	KeyTelegramChatID: "TELEGRAM_CHAT_ID",
	KeyRedisAddr:      "REDIS_ADDR",
	KeyLogLevel:       "TODO_LOG_LEVEL",
	KeyDebounce:       "TODO_DEBOUNCE",
	KeyTransientDelay: "TODO_TRANSIENT_DELAY",
	KeyStateTTL:       "TODO_STATE_TTL",
}

// Config is the explicit application configuration handed to every component.
type Config struct {
	Addr          string
	DatabaseURL   string
	TelegramToken string
	// DefaultChatID receives the task list when the bot starts. Zero disables it.
	DefaultChatID  int64
	RedisAddr      string
	LogLevel       slog.Level
	Debounce       time.Duration
	TransientDelay time.Duration
	StateTTL       time.Duration
}

// BotEnabled reports whether a Telegram token was configured.
func (c Config) BotEnabled() bool {
	return c.TelegramToken != ""
}

// RegisterFlags declares every configuration key on fs with its default.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(KeyAddr, ":8080", "HTTP listen address")
	fs.String(KeyDatabaseURL, "sqlite:///data/todo.db", "Database URL (sqlite:///path or postgres://...)")
	fs.String(KeyTelegramToken, "", "Telegram bot token; empty runs the API only")
	fs.String(KeyTelegramChatID, "", "Chat that receives the task list on startup")
	fs.String(KeyRedisAddr, "", "Redis address for conversation state; empty keeps it in memory")
	fs.String(KeyLogLevel, "info", "Log level (debug, info, warn, error)")
	fs.Duration(KeyDebounce, time.Second, "Window in which a repeated button tap is ignored")
	fs.Duration(KeyTransientDelay, 3*time.Second, "How long confirmation messages stay visible")
	fs.Duration(KeyStateTTL, 7*24*time.Hour, "Expiry of conversation state in Redis")
}

// Bind connects v to the flags and the environment.
func Bind(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}
	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind env %s: %w", env, err)
		}
	}
	return nil
}

// LoadDotEnv reads variables from the given files into the process
// environment without overriding values that are already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads and validates the configuration from v.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Addr:           v.GetString(KeyAddr),
		DatabaseURL:    strings.TrimSpace(v.GetString(KeyDatabaseURL)),
		TelegramToken:  strings.TrimSpace(v.GetString(KeyTelegramToken)),
		RedisAddr:      strings.TrimSpace(v.GetString(KeyRedisAddr)),
		Debounce:       v.GetDuration(KeyDebounce),
		TransientDelay: v.GetDuration(KeyTransientDelay),
		StateTTL:       v.GetDuration(KeyStateTTL),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database url must not be empty")
	}

	if raw := strings.TrimSpace(v.GetString(KeyTelegramChatID)); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envNames[KeyTelegramChatID], raw, err)
		}
		cfg.DefaultChatID = id
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(v.GetString(KeyLogLevel))); err != nil {
		return Config{}, fmt.Errorf("invalid log level: %w", err)
	}

	if cfg.Debounce < 0 || cfg.TransientDelay < 0 || cfg.StateTTL < 0 {
		return Config{}, errors.New("durations must not be negative")
	}
	return cfg, nil
}
