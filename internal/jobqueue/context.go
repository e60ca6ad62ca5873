package jobqueue

import (
	"context"
	"errors"

	"tgqueue/internal/shared"
)

// ErrNoDispatcher возвращается, когда к очереди не привязан Dispatcher.
var ErrNoDispatcher = shared.MarkKind(errors.New("jobqueue: no dispatcher attached"), shared.KindConflict)

// Dispatcher - внешний слой обработки обновлений, к которому привязывается
// очередь. Сама очередь его не вызывает и в его хранилища не заглядывает;
// он только передается колбэкам в CallbackContext.
type Dispatcher interface {
	// Enqueue передает обновление обратно в слой обработки.
	Enqueue(ctx context.Context, update any) error
}

// CallbackContext передается колбэкам в режиме StyleRich.
type CallbackContext struct {
	// Job - выполняемая задача.
	Job *Job
	// JobQueue - очередь, в которую можно ставить новые задачи.
	JobQueue *JobQueue
	// Dispatcher - привязанный слой обработки обновлений или nil.
	Dispatcher Dispatcher
	// ChatData и UserData заполняет внешний слой для обработчиков
	// обновлений. При вызове из планировщика они всегда nil.
	ChatData map[string]any
	UserData map[string]any
}

// Payload возвращает пользовательский контекст задачи.
func (c *CallbackContext) Payload() any {
	if c.Job == nil {
		return nil
	}
	return c.Job.Payload()
}

// Enqueue передает обновление в привязанный Dispatcher.
func (c *CallbackContext) Enqueue(ctx context.Context, update any) error {
	if c.Dispatcher == nil {
		return ErrNoDispatcher
	}
	return c.Dispatcher.Enqueue(ctx, update)
}
