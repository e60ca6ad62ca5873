package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"tgqueue/internal/shared"
)

// Config holds application configuration values.
type Config struct {
	Env      string `validate:"required,oneof=dev prod"`
	Telegram struct {
		Token         string `validate:"required"`
		WebhookURL    string `validate:"omitempty,url"`
		WebhookSecret string `validate:"required_with=WebhookURL"`
		// Workers - число воркеров диспетчера апдейтов.
		Workers int `validate:"min=1,max=64"`
	}
	HTTP struct {
		Addr string `validate:"required"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	Scheduler struct {
		CallbackStyle string `validate:"required,oneof=bare rich"`
		Timezone      string `validate:"required,timezone"`
		// ShutdownTimeout - сколько ждать текущий колбэк при остановке.
		ShutdownTimeout time.Duration `validate:"gt=0"`
	}
	Journal struct {
		Driver      string `validate:"required,oneof=none sqlite postgres"`
		SQLitePath  string `validate:"required_if=Driver sqlite"`
		PostgresDSN string `validate:"required_if=Driver postgres"`
		Retention   int    `validate:"min=1"`
	}
	Access struct {
		AllowedUserIDs  []int64
		RateLimitPerSec float64 `validate:"gte=0"`
		RateBurst       int     `validate:"min=1"`
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv собирает и проверяет конфигурацию из произвольного источника
// переменных. Все ошибки имеют вид shared.KindValidation.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(k, def string) string {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
		return def
	}

	var (
		c   Config
		err error
	)
	c.Env = get("ENV", "prod")
	c.Telegram.Token = getenv("TELEGRAM_BOT_TOKEN")
	c.Telegram.WebhookURL = getenv("TELEGRAM_WEBHOOK_URL")
	c.Telegram.WebhookSecret = getenv("TELEGRAM_WEBHOOK_SECRET")
	c.HTTP.Addr = get("HTTP_ADDR", ":80")
	c.Log.ConsoleLevel = strings.ToLower(get("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(get("LOG_FILE_LEVEL", "debug"))
	c.Log.File = get("LOG_FILE", "data/logs/bot.log")
	c.Scheduler.CallbackStyle = strings.ToLower(get("SCHEDULER_CALLBACK_STYLE", "bare"))
	c.Scheduler.Timezone = get("SCHEDULER_TIMEZONE", "UTC")
	c.Journal.Driver = strings.ToLower(get("JOURNAL_DRIVER", "sqlite"))
	c.Journal.SQLitePath = get("JOURNAL_SQLITE_PATH", "data/journal.db")
	c.Journal.PostgresDSN = getenv("JOURNAL_POSTGRES_DSN")

	if c.Telegram.Workers, err = atoi("TELEGRAM_WORKERS", get("TELEGRAM_WORKERS", "4")); err != nil {
		return Config{}, err
	}
	if c.Journal.Retention, err = atoi("JOURNAL_RETENTION", get("JOURNAL_RETENTION", "10000")); err != nil {
		return Config{}, err
	}
	if c.Access.RateBurst, err = atoi("RATE_LIMIT_BURST", get("RATE_LIMIT_BURST", "3")); err != nil {
		return Config{}, err
	}
	if c.Access.RateLimitPerSec, err = strconv.ParseFloat(get("RATE_LIMIT_PER_SEC", "1"), 64); err != nil {
		return Config{}, shared.Validationf("RATE_LIMIT_PER_SEC: %v", err)
	}
	if c.Scheduler.ShutdownTimeout, err = time.ParseDuration(get("SCHEDULER_SHUTDOWN_TIMEOUT", "10s")); err != nil {
		return Config{}, shared.Validationf("SCHEDULER_SHUTDOWN_TIMEOUT: %v", err)
	}
	if c.Access.AllowedUserIDs, err = ParseIDs(getenv("ALLOWED_USER_IDS")); err != nil {
		return Config{}, shared.Validationf("ALLOWED_USER_IDS: %v", err)
	}

	if err := validate.Struct(c); err != nil {
		return Config{}, shared.MarkKind(err, shared.KindValidation)
	}
	return c, nil
}

// Location возвращает часовой пояс планировщика.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ParseIDs парсит список ID (разделители: запятая, пробелы, переносы).
func ParseIDs(s string) ([]int64, error) {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	if len(parts) == 0 {
		return nil, nil
	}
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}

func atoi(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, shared.Validationf("%s: %q is not a number", key, v)
	}
	return n, nil
}
