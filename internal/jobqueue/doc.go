// Package jobqueue implements a time-driven job scheduler for the bot:
// callbacks run once, repeatedly, daily or on a cron expression.
//
// Features:
//   - One-shot jobs by delay (seconds or time.Duration), absolute time or time of day
//   - Repeating jobs with an optional first delay, fixed-interval arithmetic (no drift)
//   - Daily jobs on selected weekdays, weekday computed in the job's own timezone
//   - Cron jobs via github.com/robfig/cron/v3 (seconds field optional)
//   - Enable/disable at any time; a disabled job keeps ticking silently
//   - Self-removal from inside the callback (ScheduleRemoval)
//   - Per-job payload, name and timeout
//   - Error and panic isolation: a failing callback never stops the loop
//   - Two calling conventions selected once per queue: Bare and Rich
//   - Hooks for observability (start/finish/error/skip)
//
// Basic usage:
//
//	q := jobqueue.New(jobqueue.Config{Logger: logger})
//	q.Start(ctx)
//	defer q.Stop()
//
//	// Через 30 секунд
//	_, err := q.RunOnce(jobqueue.Bare(func(ctx context.Context, job *jobqueue.Job) error {
//		return remind(ctx, job.Payload().(int64))
//	}), 30*time.Second, jobqueue.WithPayload(chatID), jobqueue.WithName("reminder"))
//
//	// Каждые 5 минут, первый запуск через 10 секунд
//	job, err := q.RunRepeating(cb, 5*time.Minute, jobqueue.WithFirst(10))
//	job.SetEnabled(false) // тикает, но не выполняется
//
//	// Каждый будний день в 09:00 по Москве
//	msk, _ := time.LoadLocation("Europe/Moscow")
//	_, err = q.RunDaily(cb, jobqueue.Clock(9, 0, 0).In(msk),
//		jobqueue.WithDays(jobqueue.Monday, jobqueue.Tuesday, jobqueue.Wednesday, jobqueue.Thursday, jobqueue.Friday))
//
// Rich callbacks receive a CallbackContext with the job, the queue and the
// attached Dispatcher:
//
//	q := jobqueue.New(jobqueue.Config{Style: jobqueue.StyleRich})
//	q.SetDispatcher(disp)
//	_, err := q.RunOnce(jobqueue.Rich(func(ctx context.Context, cc *jobqueue.CallbackContext) error {
//		return cc.Enqueue(ctx, update)
//	}), 0.5)
//
// The queue guarantees that:
//   - Jobs due earlier run before jobs due later, equal deadlines run FIFO
//   - A newly scheduled earlier job wakes the loop immediately
//   - Callback errors and panics are logged and reported through Hooks
//   - Configuration errors are returned synchronously and match shared.ErrValidation
//   - Stop finishes the batch in flight and discards the remaining jobs
package jobqueue
