package middleware

import (
	"context"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"tgqueue/internal/adapter/telegram"
)

// ACL проверяет доступ по списку разрешённых Telegram user IDs.
// Пустой список пропускает всех.
type ACL struct {
	allowed map[int64]struct{}
	log     *slog.Logger
}

// NewACL создаёт ACL по списку ID.
func NewACL(ids []int64, logger *slog.Logger) *ACL {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ACL{allowed: m, log: logger}
}

// IsAllowed сообщает, имеет ли пользователь доступ.
func (a *ACL) IsAllowed(id int64) bool {
	if len(a.allowed) == 0 {
		return true
	}
	_, ok := a.allowed[id]
	return ok
}

// Middleware блокирует выполнение хендлера для неразрешённых пользователей.
func (a *ACL) Middleware(next telegram.HandlerFunc) telegram.HandlerFunc {
	return func(ctx context.Context, s telegram.Sender, upd *models.Update) {
		uid := telegram.UserID(upd)
		if uid == 0 || a.IsAllowed(uid) {
			next(ctx, s, upd)
			return
		}
		a.log.Info("access denied", "user_id", uid)
		if chat := telegram.ChatID(upd); chat != 0 {
			_, _ = s.SendMessage(ctx, &bot.SendMessageParams{ChatID: chat, Text: "доступ запрещен"})
		}
	}
}
