package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgqueue/internal/shared"
)

func noop(context.Context, *Job) error { return nil }

func TestNewJob_Defaults(t *testing.T) {
	job, err := NewJob(Bare(noop), WithName("n"), WithPayload(42))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, job.ID())
	assert.Equal(t, "n", job.Name())
	assert.Equal(t, 42, job.Payload())
	assert.True(t, job.Enabled())
	assert.False(t, job.Removed())
	assert.False(t, job.Repeat())
	assert.Equal(t, PolicyOnce, job.Policy())
	assert.Equal(t, EveryDay(), job.Days())
	assert.True(t, job.NextT().IsZero(), "задача вне очереди не имеет next_t")
	assert.Nil(t, job.JobQueue())
}

func TestNewJob_InvalidConfig(t *testing.T) {
	_, err := NewJob(Bare(nil))
	assert.True(t, shared.IsValidation(err))

	_, err = NewJob(Bare(noop), WithTimeout(-time.Second))
	assert.True(t, shared.IsValidation(err))

	_, err = NewJob(Bare(noop), WithDays())
	assert.True(t, shared.IsValidation(err))

	_, err = NewJob(Bare(noop), WithRepeat(true))
	assert.True(t, shared.IsValidation(err), "repeat без интервала должен отклоняться")
}

func TestNewJob_Repeating(t *testing.T) {
	job, err := NewJob(Bare(noop), WithInterval(2*time.Second), WithRepeat(true))
	require.NoError(t, err)

	assert.Equal(t, PolicyRepeating, job.Policy())
	assert.Equal(t, 2.0, job.IntervalSeconds())
}

// Сценарий с предупреждениями: interval=nil при repeat=true отклоняется,
// затем interval=15 и repeat=true проходят.
func TestJob_IntervalRepeatTransitions(t *testing.T) {
	job, err := NewJob(Bare(noop))
	require.NoError(t, err)

	err = job.SetRepeat(true)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Contains(t, err.Error(), "'repeat' can not be set to true")

	require.NoError(t, job.SetInterval(15))
	require.NoError(t, job.SetRepeat(true))
	assert.Equal(t, 15.0, job.IntervalSeconds())
	assert.Equal(t, 15*time.Second, job.Interval())

	err = job.SetInterval(nil)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, 15*time.Second, job.Interval(), "ошибка не должна менять состояние")

	require.NoError(t, job.SetRepeat(false))
	require.NoError(t, job.SetInterval(nil))
	assert.Zero(t, job.Interval())
}

func TestJob_SetIntervalValidation(t *testing.T) {
	job, err := NewJob(Bare(noop))
	require.NoError(t, err)

	for _, v := range []any{"15", 0, -1, -0.5, []int{1}} {
		err := job.SetInterval(v)
		assert.True(t, shared.IsValidation(err), "значение %v должно отклоняться", v)
	}

	require.NoError(t, job.SetInterval(0.5))
	assert.Equal(t, 500*time.Millisecond, job.Interval())
	require.NoError(t, job.SetInterval(int64(3)))
	assert.Equal(t, 3*time.Second, job.Interval())
}

func TestJob_SetDays(t *testing.T) {
	job, err := NewJob(Bare(noop))
	require.NoError(t, err)

	require.NoError(t, job.SetDays(Sunday, Monday, Monday))
	assert.Equal(t, []Weekday{Monday, Sunday}, job.Days())

	err = job.SetDays()
	assert.True(t, shared.IsValidation(err))

	err = job.SetDays(Weekday(7))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from 0 up to and including 6")

	err = job.SetDays(Weekday(-1))
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, []Weekday{Monday, Sunday}, job.Days(), "ошибка не должна менять дни")

	days := job.Days()
	days[0] = Friday
	assert.Equal(t, []Weekday{Monday, Sunday}, job.Days(), "Days возвращает копию")
}

func TestJob_DailyAndCronRejectIntervalChanges(t *testing.T) {
	q := New(Config{})

	daily, err := q.RunDaily(Bare(noop), Clock(9, 0, 0))
	require.NoError(t, err)
	assert.True(t, shared.IsValidation(daily.SetInterval(10)))
	assert.True(t, shared.IsValidation(daily.SetRepeat(true)))
	assert.Equal(t, PolicyDaily, daily.Policy())

	cronJob, err := q.RunCron(Bare(noop), "@hourly")
	require.NoError(t, err)
	assert.True(t, shared.IsValidation(cronJob.SetInterval(10)))
	assert.Equal(t, PolicyCron, cronJob.Policy())
	spec, ok := cronJob.CronSpec()
	assert.True(t, ok)
	assert.Equal(t, "@hourly", spec)
}

func TestJob_ScheduleRemovalIsMonotonic(t *testing.T) {
	job, err := NewJob(Bare(noop))
	require.NoError(t, err)

	job.ScheduleRemoval()
	job.ScheduleRemoval()
	assert.True(t, job.Removed())

	job.SetEnabled(true)
	assert.True(t, job.Removed(), "включение не снимает пометку удаления")
}

func TestJob_Following(t *testing.T) {
	prev := wednesdayNoon

	once, err := NewJob(Bare(noop), WithInterval(time.Second))
	require.NoError(t, err)
	_, ok := once.following(prev)
	assert.False(t, ok, "одноразовая задача не перепланируется даже с интервалом")

	rep, err := NewJob(Bare(noop), WithInterval(90*time.Second), WithRepeat(true))
	require.NoError(t, err)
	next, ok := rep.following(prev)
	assert.True(t, ok)
	assert.Equal(t, prev.Add(90*time.Second), next)
}

func TestJob_EligibleAt(t *testing.T) {
	q := New(Config{})
	job, err := q.RunDaily(Bare(noop), Clock(9, 0, 0), WithDays(Monday))
	require.NoError(t, err)

	assert.False(t, job.eligibleAt(wednesdayNoon))
	assert.True(t, job.eligibleAt(wednesdayNoon.AddDate(0, 0, 5)))

	plain, err := NewJob(Bare(noop), WithDays(Monday))
	require.NoError(t, err)
	assert.True(t, plain.eligibleAt(wednesdayNoon), "дни недели проверяются только у ежедневных задач")
}
