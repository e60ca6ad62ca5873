package jobqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tgqueue/internal/shared"
)

// maxIdleWait ограничивает одно ожидание цикла, чтобы переведенные
// системные часы не усыпили очередь надолго.
const maxIdleWait = time.Minute

// SkipReason объясняет, почему задача пропустила запуск.
type SkipReason string

const (
	// SkipDisabled - задача выключена.
	SkipDisabled SkipReason = "disabled"
	// SkipWeekday - день недели больше не входит в разрешенные.
	SkipWeekday SkipReason = "weekday"
)

// Hooks содержит необязательные хуки для наблюдаемости. Хуки вызываются
// в горутине цикла и не должны блокироваться надолго.
type Hooks struct {
	OnJobStart  func(job *Job)
	OnJobFinish func(job *Job, duration time.Duration, err error)
	OnJobError  func(job *Job, err error)
	OnJobSkip   func(job *Job, reason SkipReason)
}

// Config содержит конфигурацию очереди.
type Config struct {
	Logger *slog.Logger
	// Style - соглашение о вызове колбэков для всей очереди.
	Style Style
	// Location - локация для TimeOfDay без явной локации и для cron (по умолчанию UTC).
	Location *time.Location
	Hooks    Hooks
	// Now возвращает текущее время (для тестов, по умолчанию time.Now).
	Now func() time.Time
}

// JobQueue - планировщик задач с одним фоновым циклом.
type JobQueue struct {
	log   *slog.Logger
	style Style
	loc   *time.Location
	hooks Hooks
	now   func() time.Time
	queue *queue

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}

	dmu        sync.RWMutex
	dispatcher Dispatcher
}

// New создает остановленную очередь.
func New(cfg Config) *JobQueue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &JobQueue{
		log:   logger.With("component", "jobqueue"),
		style: cfg.Style,
		loc:   loc,
		hooks: cfg.Hooks,
		now:   now,
		queue: newQueue(),
	}
}

// Style возвращает соглашение о вызове колбэков очереди.
func (q *JobQueue) Style() Style { return q.style }

// Location возвращает локацию очереди по умолчанию.
func (q *JobQueue) Location() *time.Location { return q.loc }

// SetDispatcher привязывает внешний слой обработки обновлений.
func (q *JobQueue) SetDispatcher(d Dispatcher) {
	q.dmu.Lock()
	q.dispatcher = d
	q.dmu.Unlock()
}

// Dispatcher возвращает привязанный слой или nil.
func (q *JobQueue) Dispatcher() Dispatcher {
	q.dmu.RLock()
	defer q.dmu.RUnlock()
	return q.dispatcher
}

// RunOnce ставит одноразовую задачу. when - задержка в секундах (int,
// float64), time.Duration, абсолютный time.Time или TimeOfDay.
func (q *JobQueue) RunOnce(cb Callback, when any, opts ...JobOption) (*Job, error) {
	o := collectOptions(opts)
	if err := o.only("RunOnce", 0); err != nil {
		return nil, err
	}
	job, err := q.newJob(cb, kindPlain, o)
	if err != nil {
		return nil, err
	}
	at, err := ResolveWhen(when, q.now(), q.loc)
	if err != nil {
		return nil, err
	}
	q.schedule(job, at)
	return job, nil
}

// RunRepeating ставит задачу, повторяющуюся каждые interval. Первый запуск -
// через interval или в момент, заданный WithFirst.
func (q *JobQueue) RunRepeating(cb Callback, interval any, opts ...JobOption) (*Job, error) {
	o := collectOptions(opts)
	if err := o.only("RunRepeating", optFirst); err != nil {
		return nil, err
	}
	job, err := q.newJob(cb, kindPlain, o)
	if err != nil {
		return nil, err
	}
	if interval == nil {
		return nil, shared.Validationf("the 'interval' can not be nil when 'repeat' is set to true")
	}
	if err := job.SetInterval(interval); err != nil {
		return nil, err
	}
	if err := job.SetRepeat(true); err != nil {
		return nil, err
	}
	first := o.first
	if first == nil {
		first = job.Interval()
	}
	at, err := ResolveWhen(first, q.now(), q.loc)
	if err != nil {
		return nil, err
	}
	q.schedule(job, at)
	return job, nil
}

// RunDaily ставит задачу, выполняемую каждый день в tod. Дни недели
// ограничиваются WithDays и считаются в локации tod.
func (q *JobQueue) RunDaily(cb Callback, tod TimeOfDay, opts ...JobOption) (*Job, error) {
	tod = tod.orIn(q.loc)
	if err := tod.validate(); err != nil {
		return nil, err
	}
	o := collectOptions(opts)
	if err := o.only("RunDaily", optDays); err != nil {
		return nil, err
	}
	job, err := q.newJob(cb, kindDaily, o)
	if err != nil {
		return nil, err
	}
	job.tod = tod
	q.schedule(job, NextDaily(tod, job.Days(), q.now()))
	return job, nil
}

// RunCron ставит задачу по cron-выражению. Поддерживаются 5 и 6 полей
// (секунды опциональны) и дескрипторы: "@hourly", "@every 5m".
// Выражение вычисляется в локации очереди.
func (q *JobQueue) RunCron(cb Callback, spec string, opts ...JobOption) (*Job, error) {
	sched, err := ParseCron(spec)
	if err != nil {
		return nil, err
	}
	o := collectOptions(opts)
	if err := o.only("RunCron", 0); err != nil {
		return nil, err
	}
	job, err := q.newJob(cb, kindCron, o)
	if err != nil {
		return nil, err
	}
	job.cron = sched
	job.cronSpec = spec
	job.cronLoc = q.loc
	next := NextCron(sched, q.now(), q.loc)
	if next.IsZero() {
		return nil, shared.Validationf("cron spec %q never fires", spec)
	}
	q.schedule(job, next)
	return job, nil
}

func (q *JobQueue) newJob(cb Callback, k kind, o jobOptions) (*Job, error) {
	if cb.Style() != q.style {
		return nil, shared.Validationf("callback style %s does not match job queue style %s", cb.Style(), q.style)
	}
	job, err := newJob(cb, k, o)
	if err != nil {
		return nil, err
	}
	job.queue = q
	return job, nil
}

func (q *JobQueue) schedule(job *Job, at time.Time) {
	q.queue.add(job, at)
	q.log.Debug("job scheduled", "job", job, "next_t", at)
}

// Jobs возвращает все неудаленные задачи в порядке добавления.
func (q *JobQueue) Jobs() []*Job {
	return q.queue.snapshot()
}

// JobsByName возвращает задачи с указанным именем в порядке добавления.
func (q *JobQueue) JobsByName(name string) []*Job {
	all := q.queue.snapshot()
	out := make([]*Job, 0, len(all))
	for _, j := range all {
		if j.name == name {
			out = append(out, j)
		}
	}
	return out
}

// Pending возвращает число задач, ожидающих срабатывания.
func (q *JobQueue) Pending() int { return q.queue.len() }

// Start запускает фоновый цикл. Контекст ctx передается колбэкам; его
// отмена останавливает очередь. Повторный вызов на работающей очереди
// ничего не делает.
func (q *JobQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.running {
		return
	}
	q.running = true
	q.stop = make(chan struct{})
	q.done = make(chan struct{})
	go q.loop(ctx, q.stop, q.done)
	go func(stop <-chan struct{}) {
		select {
		case <-ctx.Done():
			q.log.Info("stopping job queue due to context cancellation")
			q.Stop()
		case <-stop:
		}
	}(q.stop)
	q.log.Info("job queue started", "style", q.style.String(), "location", q.loc.String())
}

// IsRunning возвращает true, если цикл запущен.
func (q *JobQueue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Stop останавливает цикл и ждет завершения текущей пачки задач.
// Оставшиеся задачи отбрасываются. Нельзя вызывать из колбэка.
func (q *JobQueue) Stop() {
	_ = q.StopContext(context.Background())
}

// StopContext останавливает очередь с учетом дедлайна ctx. Если дедлайн
// истекает раньше, чем завершается текущий колбэк, возвращается ошибка
// контекста, но остановка все равно доводится до конца.
//
// Если остановка уже идет (например, после отмены контекста Start),
// StopContext ждет ее завершения или дедлайна ctx.
func (q *JobQueue) StopContext(ctx context.Context) error {
	q.mu.Lock()
	if !q.running {
		done := q.done
		q.mu.Unlock()
		if done == nil {
			return nil
		}
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	q.running = false
	close(q.stop)
	done := q.done
	q.mu.Unlock()

	q.log.Info("stopping job queue")
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		q.log.Warn("job queue stop deadline exceeded, waiting for the running callback")
		<-done
		err = ctx.Err()
	}
	dropped := q.queue.clear()
	q.log.Info("job queue stopped", "dropped", dropped)
	return err
}

func (q *JobQueue) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		default:
		}
		due := q.queue.popDue(q.now())
		for _, e := range due {
			q.dispatch(ctx, e)
		}
		if len(due) > 0 {
			continue
		}
		if !q.queue.wait(stop, q.now, maxIdleWait) {
			return
		}
	}
}

// dispatch обрабатывает одно срабатывание: выполняет или пропускает
// колбэк, затем перепланирует или отбрасывает задачу.
func (q *JobQueue) dispatch(ctx context.Context, e entry) {
	job := e.job
	if job.Removed() {
		q.drop(job, "removed")
		return
	}
	switch {
	case !job.Enabled():
		q.log.Debug("skipping disabled job", "job", job)
		q.callHook(func() {
			if q.hooks.OnJobSkip != nil {
				q.hooks.OnJobSkip(job, SkipDisabled)
			}
		})
	case !job.eligibleAt(e.at):
		q.log.Debug("skipping job on ineligible weekday", "job", job)
		q.callHook(func() {
			if q.hooks.OnJobSkip != nil {
				q.hooks.OnJobSkip(job, SkipWeekday)
			}
		})
	default:
		q.execute(ctx, job)
	}

	if job.Removed() {
		q.drop(job, "removed")
		return
	}
	next, ok := job.following(e.at)
	if !ok {
		q.drop(job, "finished")
		return
	}
	q.queue.push(job, next)
}

func (q *JobQueue) drop(job *Job, reason string) {
	q.queue.forget(job)
	q.log.Debug("dropping job", "job", job, "reason", reason)
}

// execute выполняет колбэк с изоляцией ошибок и паник.
func (q *JobQueue) execute(ctx context.Context, job *Job) {
	q.callHook(func() {
		if q.hooks.OnJobStart != nil {
			q.hooks.OnJobStart(job)
		}
	})

	if job.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.timeout)
		defer cancel()
	}

	start := time.Now()
	err := q.invoke(ctx, job)
	duration := time.Since(start)

	q.callHook(func() {
		if q.hooks.OnJobFinish != nil {
			q.hooks.OnJobFinish(job, duration, err)
		}
	})

	if err != nil {
		q.log.Error("job failed", "job", job, "error", err, "duration", duration)
		q.callHook(func() {
			if q.hooks.OnJobError != nil {
				q.hooks.OnJobError(job, err)
			}
		})
		return
	}
	q.log.Debug("job completed successfully", "job", job, "duration", duration)
}

func (q *JobQueue) invoke(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("job panicked", "job", job, "panic", r)
			err = fmt.Errorf("%w: job panicked: %v", shared.ErrInternal, r)
		}
	}()
	if job.cb.style == StyleRich {
		return job.cb.rich(ctx, &CallbackContext{
			Job:        job,
			JobQueue:   q,
			Dispatcher: q.Dispatcher(),
		})
	}
	return job.cb.bare(ctx, job)
}

func (q *JobQueue) callHook(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("job hook panicked", "panic", r)
		}
	}()
	fn()
}
