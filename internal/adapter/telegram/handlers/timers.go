package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"tgqueue/internal/adapter/telegram"
	"tgqueue/internal/jobqueue"
	"tgqueue/internal/shared"
)

// alarmTimeout ограничивает отправку одного напоминания: колбэки выполняются
// в цикле очереди.
const alarmTimeout = 10 * time.Second

// Alarm - контекст задачи-таймера.
type Alarm struct {
	ChatID int64
	Text   string
}

// JobName - имя задач чата. В чате живет один таймер.
func JobName(chatID int64) string { return "chat:" + strconv.FormatInt(chatID, 10) }

// alarmCallback шлет напоминание в чат из контекста задачи. Вид колбэка
// выбирается по стилю очереди.
func (h *Handlers) alarmCallback(s telegram.Sender) jobqueue.Callback {
	if h.queue.Style() == jobqueue.StyleRich {
		return jobqueue.Rich(func(ctx context.Context, cc *jobqueue.CallbackContext) error {
			return h.sendAlarm(ctx, s, cc.Payload())
		})
	}
	return jobqueue.Bare(func(ctx context.Context, job *jobqueue.Job) error {
		return h.sendAlarm(ctx, s, job.Payload())
	})
}

func (h *Handlers) sendAlarm(ctx context.Context, s telegram.Sender, payload any) error {
	alarm, ok := payload.(Alarm)
	if !ok {
		return fmt.Errorf("%w: unexpected job payload %T", shared.ErrInternal, payload)
	}
	_, err := s.SendMessage(ctx, &bot.SendMessageParams{ChatID: alarm.ChatID, Text: alarm.Text})
	if err != nil {
		return shared.MarkKind(err, shared.KindDependencyFailure)
	}
	return nil
}

// replace удаляет таймеры чата, кроме keep, и сообщает, были ли такие.
// Вызывается после успешной постановки нового таймера.
func (h *Handlers) replace(chatID int64, keep *jobqueue.Job) bool {
	replaced := false
	for _, job := range h.queue.JobsByName(JobName(chatID)) {
		if job == keep {
			continue
		}
		job.ScheduleRemoval()
		replaced = true
	}
	return replaced
}

func (h *Handlers) confirm(ctx context.Context, s telegram.Sender, chatID int64, job *jobqueue.Job, replaced bool) {
	text := "таймер установлен, сработает " + h.formatTime(job.NextT())
	if replaced {
		text += "\nстарый таймер удален"
	}
	h.reply(ctx, s, chatID, text)
}

func (h *Handlers) fail(ctx context.Context, s telegram.Sender, chatID int64, usage string, err error) {
	if shared.IsValidation(err) {
		reason := strings.TrimPrefix(err.Error(), shared.ErrValidation.Error()+": ")
		h.reply(ctx, s, chatID, usage+"\n"+reason)
		return
	}
	h.log.Error("failed to schedule job", "chat_id", chatID, "error", err)
	h.reply(ctx, s, chatID, "не удалось поставить таймер")
}

func (h *Handlers) options(chatID int64, text string) []jobqueue.JobOption {
	return []jobqueue.JobOption{
		jobqueue.WithName(JobName(chatID)),
		jobqueue.WithPayload(Alarm{ChatID: chatID, Text: text}),
		jobqueue.WithTimeout(alarmTimeout),
	}
}

func parseSeconds(args []string) (float64, error) {
	if len(args) != 1 {
		return 0, shared.Validationf("нужно одно число секунд")
	}
	secs, err := strconv.ParseFloat(args[0], 64)
	if err != nil || math.IsNaN(secs) || math.IsInf(secs, 0) {
		return 0, shared.Validationf("%q не число", args[0])
	}
	return secs, nil
}

const (
	usageSet   = "использование: /set <секунды>"
	usageEvery = "использование: /every <секунды>"
	usageDaily = "использование: /daily <ЧЧ:ММ[:СС]> [+ЧЧ:ММ] [mon,tue,...]"
	usageCron  = "использование: /cron <выражение>"
)

// set handles /set <seconds>.
func (h *Handlers) set(ctx context.Context, s telegram.Sender, msg *models.Message, args []string) {
	chatID := msg.Chat.ID
	secs, err := parseSeconds(args)
	if err == nil && secs < 0 {
		err = shared.Validationf("в прошлое таймер не поставить")
	}
	if err != nil {
		h.fail(ctx, s, chatID, usageSet, err)
		return
	}
	job, err := h.queue.RunOnce(h.alarmCallback(s), secs, h.options(chatID, "бип!")...)
	if err != nil {
		h.fail(ctx, s, chatID, usageSet, err)
		return
	}
	h.confirm(ctx, s, chatID, job, h.replace(chatID, job))
}

// every handles /every <seconds>.
func (h *Handlers) every(ctx context.Context, s telegram.Sender, msg *models.Message, args []string) {
	chatID := msg.Chat.ID
	secs, err := parseSeconds(args)
	if err == nil && secs < 1 {
		err = shared.Validationf("интервал должен быть не меньше секунды")
	}
	if err != nil {
		h.fail(ctx, s, chatID, usageEvery, err)
		return
	}
	text := fmt.Sprintf("бип! (каждые %s)", time.Duration(secs*float64(time.Second)))
	job, err := h.queue.RunRepeating(h.alarmCallback(s), secs, h.options(chatID, text)...)
	if err != nil {
		h.fail(ctx, s, chatID, usageEvery, err)
		return
	}
	h.confirm(ctx, s, chatID, job, h.replace(chatID, job))
}

// daily handles /daily <HH:MM[:SS]> [+HH:MM] [days].
func (h *Handlers) daily(ctx context.Context, s telegram.Sender, msg *models.Message, args []string) {
	chatID := msg.Chat.ID
	tod, days, err := parseDaily(args)
	if err != nil {
		h.fail(ctx, s, chatID, usageDaily, err)
		return
	}
	opts := h.options(chatID, "бип! (ежедневно в "+tod.String()+")")
	if days != nil {
		opts = append(opts, jobqueue.WithDays(days...))
	}
	job, err := h.queue.RunDaily(h.alarmCallback(s), tod, opts...)
	if err != nil {
		h.fail(ctx, s, chatID, usageDaily, err)
		return
	}
	h.confirm(ctx, s, chatID, job, h.replace(chatID, job))
}

func parseDaily(args []string) (jobqueue.TimeOfDay, []jobqueue.Weekday, error) {
	if len(args) == 0 || len(args) > 3 {
		return jobqueue.TimeOfDay{}, nil, shared.Validationf("нужно время")
	}
	tod, err := jobqueue.ParseTimeOfDay(args[0])
	if err != nil {
		return jobqueue.TimeOfDay{}, nil, err
	}
	var days []jobqueue.Weekday
	for _, arg := range args[1:] {
		switch {
		case arg == "Z" || arg[0] == '+' || arg[0] == '-':
			loc, err := jobqueue.ParseLocation(arg)
			if err != nil {
				return jobqueue.TimeOfDay{}, nil, err
			}
			tod = tod.In(loc)
		default:
			if days, err = jobqueue.ParseWeekdays(arg); err != nil {
				return jobqueue.TimeOfDay{}, nil, err
			}
		}
	}
	return tod, days, nil
}

// cron handles /cron <spec>.
func (h *Handlers) cron(ctx context.Context, s telegram.Sender, msg *models.Message, args []string) {
	chatID := msg.Chat.ID
	if len(args) == 0 {
		h.fail(ctx, s, chatID, usageCron, shared.Validationf("нужно выражение"))
		return
	}
	spec := strings.Join(args, " ")
	if _, err := jobqueue.ParseCron(spec); err != nil {
		h.fail(ctx, s, chatID, usageCron, err)
		return
	}
	job, err := h.queue.RunCron(h.alarmCallback(s), spec, h.options(chatID, "бип! ("+spec+")")...)
	if err != nil {
		h.fail(ctx, s, chatID, usageCron, err)
		return
	}
	h.confirm(ctx, s, chatID, job, h.replace(chatID, job))
}

// unset handles /unset.
func (h *Handlers) unset(ctx context.Context, s telegram.Sender, msg *models.Message) {
	if h.replace(msg.Chat.ID, nil) {
		h.reply(ctx, s, msg.Chat.ID, "таймер удален")
		return
	}
	h.reply(ctx, s, msg.Chat.ID, "активных таймеров нет")
}

// jobs handles /jobs.
func (h *Handlers) jobs(ctx context.Context, s telegram.Sender, msg *models.Message) {
	jobs := h.queue.JobsByName(JobName(msg.Chat.ID))
	var b strings.Builder
	for _, job := range jobs {
		if job.Removed() {
			continue
		}
		fmt.Fprintf(&b, "%s: следующий запуск %s", job.Policy(), h.formatTime(job.NextT()))
		if !job.Enabled() {
			b.WriteString(" (выключен)")
		}
		b.WriteByte('\n')
	}
	if b.Len() == 0 {
		h.reply(ctx, s, msg.Chat.ID, "активных таймеров нет")
		return
	}
	h.reply(ctx, s, msg.Chat.ID, strings.TrimSuffix(b.String(), "\n"))
}

// recentRuns handles /runs: последние срабатывания таймеров чата.
func (h *Handlers) recentRuns(ctx context.Context, s telegram.Sender, msg *models.Message) {
	if h.runs == nil {
		h.reply(ctx, s, msg.Chat.ID, "журнал запусков выключен")
		return
	}
	runs, err := h.runs.Recent(ctx, 100)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			h.log.Error("failed to read journal", "error", err)
		}
		h.reply(ctx, s, msg.Chat.ID, "журнал недоступен")
		return
	}

	name := JobName(msg.Chat.ID)
	var b strings.Builder
	shown := 0
	for _, run := range runs {
		if run.JobName != name {
			continue
		}
		fmt.Fprintf(&b, "%s %s %s", h.formatTime(run.StartedAt), run.Policy, run.Outcome)
		if run.Error != "" {
			b.WriteString(": " + run.Error)
		}
		b.WriteByte('\n')
		if shown++; shown == 10 {
			break
		}
	}
	if shown == 0 {
		h.reply(ctx, s, msg.Chat.ID, "срабатываний пока не было")
		return
	}
	h.reply(ctx, s, msg.Chat.ID, strings.TrimSuffix(b.String(), "\n"))
}

func (h *Handlers) formatTime(t time.Time) string {
	if t.IsZero() {
		return "никогда"
	}
	return t.In(h.queue.Location()).Format("2006-01-02 15:04:05 MST")
}
