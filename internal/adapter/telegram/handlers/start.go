package handlers

import (
	"context"

	"github.com/go-telegram/bot/models"

	"tgqueue/internal/adapter/telegram"
)

const helpText = `Бот-таймер.

/set <сек> - одноразовый таймер
/every <сек> - повторять каждые N секунд
/daily <ЧЧ:ММ[:СС]> [+ЧЧ:ММ] [mon,wed,...] - каждый день
/cron <выражение> - по cron-расписанию
/unset - удалить таймеры чата
/jobs - таймеры чата
/runs - последние срабатывания
/ping - проверка связи`

// start handles /start command.
func (h *Handlers) start(ctx context.Context, s telegram.Sender, msg *models.Message) {
	h.reply(ctx, s, msg.Chat.ID, "запущено\n\n"+helpText)
}

// help handles /help command.
func (h *Handlers) help(ctx context.Context, s telegram.Sender, msg *models.Message) {
	h.reply(ctx, s, msg.Chat.ID, helpText)
}
