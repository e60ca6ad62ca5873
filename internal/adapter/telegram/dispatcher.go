package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"tgqueue/internal/jobqueue"
	"tgqueue/internal/shared"
)

// Update aliases models.Update for brevity.
type Update = models.Update

// Sender - часть Bot API, нужная хендлерам и задачам. *bot.Bot ей
// удовлетворяет.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

var _ Sender = (*bot.Bot)(nil)

type ctxUpdate struct {
	ctx context.Context
	upd *models.Update
}

// HandlerFunc processes a single update.
type HandlerFunc func(ctx context.Context, s Sender, upd *models.Update)

// Dispatcher routes updates to worker goroutines keeping chat order.
type Dispatcher struct {
	sender  Sender
	handler HandlerFunc
	log     *slog.Logger
	workers int
	chans   []chan ctxUpdate

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

var _ jobqueue.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher creates dispatcher with given worker count.
func NewDispatcher(s Sender, workers int, h HandlerFunc, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		sender:  s,
		handler: h,
		log:     logger.With("component", "dispatcher"),
		workers: workers,
		chans:   make([]chan ctxUpdate, workers),
	}
	for i := 0; i < workers; i++ {
		d.chans[i] = make(chan ctxUpdate, 100)
		d.wg.Add(1)
		go d.worker(d.chans[i])
	}
	return d
}

// Dispatch sends update to appropriate worker based on chat ID. Блокируется,
// пока очередь воркера полна, или до отмены ctx.
func (d *Dispatcher) Dispatch(ctx context.Context, upd *models.Update) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return fmt.Errorf("%w: dispatcher is closed", shared.ErrConflict)
	}

	chatID := ChatID(upd)
	idx := 0
	if chatID != 0 {
		idx = int(abs(chatID) % int64(d.workers))
	}
	select {
	case d.chans[idx] <- ctxUpdate{ctx: ctx, upd: upd}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue реализует jobqueue.Dispatcher: задачи могут подкладывать
// синтетические апдейты в общий поток обработки.
func (d *Dispatcher) Enqueue(ctx context.Context, update any) error {
	upd, ok := update.(*models.Update)
	if !ok || upd == nil {
		return shared.Validationf("unsupported update type %T", update)
	}
	return d.Dispatch(context.WithoutCancel(ctx), upd)
}

// Handle подходит для bot.WithDefaultHandler: апдейты из long polling
// уходят воркерам.
func (d *Dispatcher) Handle(ctx context.Context, _ *bot.Bot, upd *models.Update) {
	if err := d.Dispatch(ctx, upd); err != nil {
		d.log.Warn("update dropped", "update_id", upd.ID, "error", err)
	}
}

// Close перестает принимать апдейты и ждет, пока воркеры обработают очередь.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, ch := range d.chans {
		close(ch)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) worker(in <-chan ctxUpdate) {
	defer d.wg.Done()
	for item := range in {
		d.handle(item)
	}
}

func (d *Dispatcher) handle(item ctxUpdate) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("update handler panicked",
				"update_id", item.upd.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	d.handler(item.ctx, d.sender, item.upd)
}

// ChatID возвращает чат апдейта или 0.
func ChatID(u *models.Update) int64 {
	if u == nil {
		return 0
	}
	if u.Message != nil {
		return u.Message.Chat.ID
	}
	if u.CallbackQuery != nil && u.CallbackQuery.Message.Message != nil {
		return u.CallbackQuery.Message.Message.Chat.ID
	}
	return 0
}

// UserID возвращает автора апдейта или 0.
func UserID(u *models.Update) int64 {
	if u == nil {
		return 0
	}
	if u.Message != nil && u.Message.From != nil {
		return u.Message.From.ID
	}
	if u.CallbackQuery != nil {
		return u.CallbackQuery.From.ID
	}
	return 0
}

func abs(i int64) int64 {
	if i < 0 {
		return -i
	}
	return i
}
