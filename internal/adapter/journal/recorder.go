package journal

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tgqueue/internal/jobqueue"
	"tgqueue/internal/shared"
	"tgqueue/pkg/retry"
)

const (
	defaultBuffer       = 256
	defaultWriteTimeout = 5 * time.Second
)

// RecorderConfig содержит настройки Recorder.
type RecorderConfig struct {
	Logger *slog.Logger
	// Buffer - размер очереди записей; при переполнении записи отбрасываются.
	Buffer int
	// WriteTimeout ограничивает одну запись вместе с повторами.
	WriteTimeout time.Duration
	// Retry - политика повторов записи (по умолчанию retry.DefaultConfig).
	Retry *retry.Config
	// Now возвращает текущее время (для тестов).
	Now func() time.Time
}

// Recorder пишет записи журнала в фоне. Хуки очереди вызываются в ее цикле,
// поэтому Submit никогда не блокируется.
type Recorder struct {
	store        Store
	log          *slog.Logger
	retry        retry.Config
	writeTimeout time.Duration
	now          func() time.Time

	mu     sync.RWMutex
	closed bool
	runs   chan Run
	done   chan struct{}

	dropped atomic.Int64
	written atomic.Int64
}

// NewRecorder запускает фоновую запись в store.
func NewRecorder(store Store, cfg RecorderConfig) *Recorder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	retryCfg := retry.DefaultConfig()
	if cfg.Retry != nil {
		retryCfg = *cfg.Retry
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	r := &Recorder{
		store:        store,
		log:          logger.With("component", "journal"),
		retry:        retryCfg,
		writeTimeout: writeTimeout,
		now:          now,
		runs:         make(chan Run, buffer),
		done:         make(chan struct{}),
	}
	go r.loop()
	return r
}

// Submit ставит запись в очередь. Возвращает false, если буфер полон или
// Recorder закрыт.
func (r *Recorder) Submit(run Run) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return false
	}
	select {
	case r.runs <- run:
		return true
	default:
		n := r.dropped.Add(1)
		r.log.Warn("journal buffer full, run dropped",
			"job_id", run.JobID,
			"dropped_total", n,
		)
		return false
	}
}

// Dropped возвращает число отброшенных записей.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Written возвращает число успешно сохраненных записей.
func (r *Recorder) Written() int64 { return r.written.Load() }

// Close перестает принимать записи и ждет, пока буфер будет записан или
// истечет ctx.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.runs)
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Recorder) loop() {
	defer close(r.done)
	for run := range r.runs {
		r.write(run)
	}
}

func (r *Recorder) write(run Run) {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	err := retry.DoWithRetryable(ctx, r.retry, func(ctx context.Context) error {
		return r.store.Record(ctx, run)
	}, retryableWrite)
	if err != nil {
		r.dropped.Add(1)
		r.log.Error("failed to record job run",
			"job_id", run.JobID,
			"outcome", run.Outcome,
			"error", err,
		)
		return
	}
	r.written.Add(1)
}

// retryableWrite повторяет все, кроме ошибок валидации.
func retryableWrite(err error) bool {
	return retry.Always(err) && !shared.IsValidation(err) && !errors.Is(err, context.DeadlineExceeded)
}

// Hooks возвращает хуки очереди, которые пишут каждое срабатывание в журнал.
// Момент срабатывания берется из NextT: на время хуков задача еще не
// перепланирована.
func (r *Recorder) Hooks() jobqueue.Hooks {
	return jobqueue.Hooks{
		OnJobFinish: func(job *jobqueue.Job, duration time.Duration, err error) {
			run := r.runOf(job)
			run.StartedAt = r.now().Add(-duration).UTC()
			run.Duration = duration
			run.Outcome = OutcomeOK
			if err != nil {
				run.Outcome = OutcomeError
				run.Error = err.Error()
			}
			r.Submit(run)
		},
		OnJobSkip: func(job *jobqueue.Job, reason jobqueue.SkipReason) {
			run := r.runOf(job)
			run.StartedAt = r.now().UTC()
			run.Outcome = OutcomeSkipped
			run.Error = string(reason)
			r.Submit(run)
		},
	}
}

func (r *Recorder) runOf(job *jobqueue.Job) Run {
	scheduled := job.NextT()
	if scheduled.IsZero() {
		scheduled = r.now()
	}
	return Run{
		JobID:       job.ID(),
		JobName:     job.Name(),
		Policy:      job.Policy().String(),
		ScheduledAt: scheduled.UTC(),
	}
}

// CombineHooks объединяет несколько наборов хуков в один; хуки вызываются в
// порядке аргументов.
func CombineHooks(sets ...jobqueue.Hooks) jobqueue.Hooks {
	var out jobqueue.Hooks
	for _, h := range sets {
		if h.OnJobStart != nil {
			prev, next := out.OnJobStart, h.OnJobStart
			out.OnJobStart = func(job *jobqueue.Job) {
				if prev != nil {
					prev(job)
				}
				next(job)
			}
		}
		if h.OnJobFinish != nil {
			prev, next := out.OnJobFinish, h.OnJobFinish
			out.OnJobFinish = func(job *jobqueue.Job, d time.Duration, err error) {
				if prev != nil {
					prev(job, d, err)
				}
				next(job, d, err)
			}
		}
		if h.OnJobError != nil {
			prev, next := out.OnJobError, h.OnJobError
			out.OnJobError = func(job *jobqueue.Job, err error) {
				if prev != nil {
					prev(job, err)
				}
				next(job, err)
			}
		}
		if h.OnJobSkip != nil {
			prev, next := out.OnJobSkip, h.OnJobSkip
			out.OnJobSkip = func(job *jobqueue.Job, reason jobqueue.SkipReason) {
				if prev != nil {
					prev(job, reason)
				}
				next(job, reason)
			}
		}
	}
	return out
}
