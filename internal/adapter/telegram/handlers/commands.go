// Package handlers содержит команды бота-таймера.
package handlers

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"tgqueue/internal/adapter/journal"
	"tgqueue/internal/adapter/telegram"
	"tgqueue/internal/jobqueue"
)

// RunLister отдает последние записи журнала запусков.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]journal.Run, error)
}

// Handlers - команды бота поверх очереди задач.
type Handlers struct {
	queue *jobqueue.JobQueue
	runs  RunLister
	log   *slog.Logger
}

// New создает обработчики. runs может быть nil, если журнал выключен.
func New(q *jobqueue.JobQueue, runs RunLister, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{queue: q, runs: runs, log: logger.With("component", "handlers")}
}

// Handle routes updates to command handlers.
func (h *Handlers) Handle(ctx context.Context, s telegram.Sender, upd *models.Update) {
	msg := upd.Message
	if msg == nil || !strings.HasPrefix(msg.Text, "/") {
		return
	}
	fields := strings.Fields(msg.Text)
	// "/set@my_bot 10" в группах
	cmd, _, _ := strings.Cut(strings.TrimPrefix(fields[0], "/"), "@")
	args := fields[1:]

	switch strings.ToLower(cmd) {
	case "start":
		h.start(ctx, s, msg)
	case "help":
		h.help(ctx, s, msg)
	case "ping":
		h.ping(ctx, s, msg)
	case "set":
		h.set(ctx, s, msg, args)
	case "every":
		h.every(ctx, s, msg, args)
	case "daily":
		h.daily(ctx, s, msg, args)
	case "cron":
		h.cron(ctx, s, msg, args)
	case "unset":
		h.unset(ctx, s, msg)
	case "jobs":
		h.jobs(ctx, s, msg)
	case "runs":
		h.recentRuns(ctx, s, msg)
	}
}

func (h *Handlers) reply(ctx context.Context, s telegram.Sender, chatID int64, text string) {
	_, err := s.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text})
	if err != nil {
		h.log.Warn("send message failed", "chat_id", chatID, "error", err)
	}
}
