package jobqueue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"tgqueue/internal/shared"
)

// JobFunc - минимальная форма обратного вызова: получает только задачу.
type JobFunc func(ctx context.Context, job *Job) error

// ContextFunc - расширенная форма обратного вызова: получает CallbackContext.
type ContextFunc func(ctx context.Context, cc *CallbackContext) error

// Style определяет соглашение о вызове для всей очереди.
type Style int

const (
	// StyleBare - колбэки вида JobFunc (по умолчанию).
	StyleBare Style = iota
	// StyleRich - колбэки вида ContextFunc.
	StyleRich
)

func (s Style) String() string {
	if s == StyleRich {
		return "rich"
	}
	return "bare"
}

// Callback - один из двух вариантов обратного вызова. Создается через Bare или Rich.
type Callback struct {
	style Style
	bare  JobFunc
	rich  ContextFunc
}

// Bare оборачивает JobFunc.
func Bare(fn JobFunc) Callback { return Callback{style: StyleBare, bare: fn} }

// Rich оборачивает ContextFunc.
func Rich(fn ContextFunc) Callback { return Callback{style: StyleRich, rich: fn} }

// Style возвращает вариант колбэка.
func (c Callback) Style() Style { return c.style }

func (c Callback) isNil() bool {
	if c.style == StyleRich {
		return c.rich == nil
	}
	return c.bare == nil
}

// Policy - политика расписания задачи.
type Policy int

const (
	PolicyOnce Policy = iota
	PolicyRepeating
	PolicyDaily
	PolicyCron
)

func (p Policy) String() string {
	switch p {
	case PolicyRepeating:
		return "repeating"
	case PolicyDaily:
		return "daily"
	case PolicyCron:
		return "cron"
	default:
		return "once"
	}
}

// kind фиксируется при создании; once/repeating различаются флагом repeat.
type kind int

const (
	kindPlain kind = iota
	kindDaily
	kindCron
)

// Job - запланированная единица работы. Все методы безопасны для
// конкурентного вызова, в том числе из колбэка самой задачи.
type Job struct {
	id      uuid.UUID
	name    string
	cb      Callback
	payload any
	kind    kind
	timeout time.Duration

	tod      TimeOfDay
	cron     cron.Schedule
	cronSpec string
	cronLoc  *time.Location

	mu       sync.RWMutex
	interval time.Duration
	repeat   bool
	days     []Weekday

	enabled atomic.Bool
	removed atomic.Bool
	nextT   atomic.Int64 // UnixNano, пишет только очередь

	queue *JobQueue
}

// NewJob создает задачу вне очереди. Политика - одноразовая, пока не
// установлены интервал и repeat.
func NewJob(cb Callback, opts ...JobOption) (*Job, error) {
	o := collectOptions(opts)
	if err := o.only("NewJob", optDays|optInterval|optRepeat); err != nil {
		return nil, err
	}
	j, err := newJob(cb, kindPlain, o)
	if err != nil {
		return nil, err
	}
	if o.interval != nil {
		if err := j.SetInterval(o.interval); err != nil {
			return nil, err
		}
	}
	if o.repeat {
		if err := j.SetRepeat(true); err != nil {
			return nil, err
		}
	}
	return j, nil
}

func newJob(cb Callback, k kind, o jobOptions) (*Job, error) {
	if cb.isNil() {
		return nil, shared.Validationf("callback must not be nil")
	}
	if o.timeout < 0 {
		return nil, shared.Validationf("the 'timeout' must not be negative")
	}
	j := &Job{
		id:      uuid.New(),
		name:    o.name,
		cb:      cb,
		payload: o.payload,
		kind:    k,
		timeout: o.timeout,
		days:    EveryDay(),
	}
	if o.days != nil {
		if err := j.SetDays(o.days...); err != nil {
			return nil, err
		}
	}
	j.enabled.Store(true)
	return j, nil
}

// ID возвращает уникальный идентификатор задачи.
func (j *Job) ID() uuid.UUID { return j.id }

// Name возвращает имя задачи (может быть пустым и не уникально).
func (j *Job) Name() string { return j.name }

// Payload возвращает пользовательский контекст задачи.
func (j *Job) Payload() any { return j.payload }

// JobQueue возвращает очередь, которой принадлежит задача (nil для NewJob).
func (j *Job) JobQueue() *JobQueue { return j.queue }

// Timeout возвращает ограничение времени выполнения колбэка (0 - без ограничения).
func (j *Job) Timeout() time.Duration { return j.timeout }

// Policy возвращает текущую политику расписания.
func (j *Job) Policy() Policy {
	switch j.kind {
	case kindDaily:
		return PolicyDaily
	case kindCron:
		return PolicyCron
	}
	if j.Repeat() {
		return PolicyRepeating
	}
	return PolicyOnce
}

// TimeOfDay возвращает время суток ежедневной задачи.
func (j *Job) TimeOfDay() (TimeOfDay, bool) { return j.tod, j.kind == kindDaily }

// CronSpec возвращает cron-выражение задачи.
func (j *Job) CronSpec() (string, bool) { return j.cronSpec, j.kind == kindCron }

// Enabled сообщает, будет ли задача выполняться в момент срабатывания.
func (j *Job) Enabled() bool { return j.enabled.Load() }

// SetEnabled включает или выключает задачу. Выключенная задача не
// удаляется: она продолжает тикать по расписанию без выполнения.
func (j *Job) SetEnabled(v bool) { j.enabled.Store(v) }

// ScheduleRemoval помечает задачу на удаление. Повторный вызов ничего не меняет.
// Если задача выполняется прямо сейчас, текущий запуск завершится, но
// в очередь она больше не вернется.
func (j *Job) ScheduleRemoval() { j.removed.Store(true) }

// Removed сообщает, помечена ли задача на удаление.
func (j *Job) Removed() bool { return j.removed.Load() }

// NextT возвращает момент следующего срабатывания; нулевое время, если
// задача не стоит в очереди.
func (j *Job) NextT() time.Time {
	ns := j.nextT.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Repeat сообщает, возвращается ли задача в очередь после запуска.
func (j *Job) Repeat() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.repeat
}

// SetRepeat меняет флаг повторения. Включить повторение можно только при
// заданном интервале; у ежедневных и cron-задач флаг не меняется.
func (j *Job) SetRepeat(repeat bool) error {
	if j.kind != kindPlain {
		return shared.Validationf("'repeat' can not be changed for a %s job", j.Policy())
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if repeat && j.interval == 0 {
		return shared.Validationf("'repeat' can not be set to true when no 'interval' is set")
	}
	j.repeat = repeat
	return nil
}

// Interval возвращает интервал повторения (0 - не задан).
func (j *Job) Interval() time.Duration {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.interval
}

// IntervalSeconds возвращает интервал в секундах.
func (j *Job) IntervalSeconds() float64 { return j.Interval().Seconds() }

// SetInterval задает интервал: time.Duration или число секунд (int, float64).
// nil сбрасывает интервал, что запрещено для повторяющейся задачи.
// Новое значение действует со следующего перепланирования.
func (j *Job) SetInterval(v any) error {
	if j.kind != kindPlain {
		return shared.Validationf("the 'interval' can not be set for a %s job", j.Policy())
	}
	var d time.Duration
	if v != nil {
		var (
			ok  bool
			err error
		)
		if d, ok, err = toDuration(v); !ok {
			return shared.Validationf("the 'interval' must be of type time.Duration, int or float64, got %T", v)
		}
		if err != nil {
			return err
		}
		if d <= 0 {
			return shared.Validationf("the 'interval' must be positive, got %v", d)
		}
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if d == 0 && j.repeat {
		return shared.Validationf("the 'interval' can not be nil when 'repeat' is set to true")
	}
	j.interval = d
	return nil
}

// Days возвращает копию набора разрешенных дней недели.
func (j *Job) Days() []Weekday {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return append([]Weekday(nil), j.days...)
}

// SetDays задает разрешенные дни недели (0 = понедельник .. 6 = воскресенье).
func (j *Job) SetDays(days ...Weekday) error {
	norm, err := normalizeDays(days)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.days = norm
	j.mu.Unlock()
	return nil
}

// eligibleAt сообщает, разрешен ли запуск ежедневной задачи в момент t.
// Дни могли поменяться после вычисления next_t.
func (j *Job) eligibleAt(t time.Time) bool {
	if j.kind != kindDaily {
		return true
	}
	return containsDay(j.Days(), WeekdayOf(t.In(j.tod.Location)))
}

// following вычисляет следующее срабатывание после prev; false - задачу
// нужно отбросить.
func (j *Job) following(prev time.Time) (time.Time, bool) {
	switch j.kind {
	case kindDaily:
		return FollowingDaily(j.tod, j.Days(), prev), true
	case kindCron:
		next := NextCron(j.cron, prev, j.cronLoc)
		return next, !next.IsZero()
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if !j.repeat {
		return time.Time{}, false
	}
	return prev.Add(j.interval), true
}

// LogValue реализует slog.LogValuer.
func (j *Job) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", j.id.String()),
		slog.String("name", j.name),
		slog.String("policy", j.Policy().String()),
	)
}
