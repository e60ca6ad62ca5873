package handlers

import (
	"context"

	"github.com/go-telegram/bot/models"

	"tgqueue/internal/adapter/telegram"
)

// ping handles /ping command.
func (h *Handlers) ping(ctx context.Context, s telegram.Sender, msg *models.Message) {
	h.reply(ctx, s, msg.Chat.ID, "pong")
}
