package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob(t *testing.T, name string) *Job {
	t.Helper()
	job, err := NewJob(Bare(noop), WithName(name))
	require.NoError(t, err)
	return job
}

func names(entries []entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.job.Name())
	}
	return out
}

func TestQueue_OrdersByDeadlineThenInsertion(t *testing.T) {
	q := newQueue()
	base := wednesdayNoon

	q.add(testJob(t, "late"), base.Add(2*time.Second))
	q.add(testJob(t, "a"), base.Add(time.Second))
	q.add(testJob(t, "b"), base.Add(time.Second))
	q.add(testJob(t, "early"), base)
	q.add(testJob(t, "c"), base.Add(time.Second))

	e, ok := q.peek()
	require.True(t, ok)
	assert.Equal(t, "early", e.job.Name())
	assert.Equal(t, 5, q.len(), "peek не извлекает элемент")

	due := q.popDue(base.Add(time.Second))
	assert.Equal(t, []string{"early", "a", "b", "c"}, names(due))

	e, ok = q.pop()
	require.True(t, ok)
	assert.Equal(t, "late", e.job.Name())

	_, ok = q.pop()
	assert.False(t, ok)
	_, ok = q.peek()
	assert.False(t, ok)
}

func TestQueue_PushSetsNextT(t *testing.T) {
	q := newQueue()
	job := testJob(t, "j")

	q.add(job, wednesdayNoon)
	assert.True(t, job.NextT().Equal(wednesdayNoon))

	q.popDue(wednesdayNoon)
	q.push(job, wednesdayNoon.Add(time.Minute))
	assert.True(t, job.NextT().Equal(wednesdayNoon.Add(time.Minute)))

	q.forget(job)
	assert.True(t, job.NextT().IsZero())
	assert.Empty(t, q.snapshot())
}

func TestQueue_SnapshotKeepsInsertionOrderAndHidesRemoved(t *testing.T) {
	q := newQueue()
	a, b, c := testJob(t, "a"), testJob(t, "b"), testJob(t, "c")

	q.add(c, wednesdayNoon)
	q.add(a, wednesdayNoon.Add(time.Hour))
	q.add(b, wednesdayNoon.Add(-time.Hour))

	assert.Equal(t, []*Job{c, a, b}, q.snapshot())

	a.ScheduleRemoval()
	assert.Equal(t, []*Job{c, b}, q.snapshot())

	// Задача, извлеченная из кучи для выполнения, остается в реестре.
	q.popDue(wednesdayNoon)
	assert.Equal(t, []*Job{c, b}, q.snapshot())
}

func TestQueue_Clear(t *testing.T) {
	q := newQueue()
	job := testJob(t, "j")
	q.add(job, wednesdayNoon)
	q.add(testJob(t, "k"), wednesdayNoon)

	assert.Equal(t, 2, q.clear())
	assert.Equal(t, 0, q.len())
	assert.Empty(t, q.snapshot())
	assert.True(t, job.NextT().IsZero())
}

func TestQueue_WaitWokenByEarlierPush(t *testing.T) {
	q := newQueue()
	q.add(testJob(t, "far"), time.Now().Add(time.Hour))
	// Сбрасываем сигнал от первой вставки.
	<-q.wake

	stop := make(chan struct{})
	result := make(chan bool, 1)
	started := time.Now()
	go func() {
		result <- q.wait(stop, time.Now, time.Hour)
	}()

	time.Sleep(20 * time.Millisecond)
	q.add(testJob(t, "near"), time.Now().Add(10*time.Millisecond))

	select {
	case ok := <-result:
		assert.True(t, ok)
		assert.Less(t, time.Since(started), time.Second, "ожидание должно прерваться вставкой")
	case <-time.After(2 * time.Second):
		t.Fatal("wait не проснулся после вставки более ранней задачи")
	}
}

func TestQueue_LaterPushDoesNotWake(t *testing.T) {
	q := newQueue()
	q.add(testJob(t, "near"), time.Now().Add(time.Hour))
	<-q.wake

	q.add(testJob(t, "later"), time.Now().Add(2*time.Hour))
	select {
	case <-q.wake:
		t.Fatal("вставка более поздней задачи не должна будить цикл")
	default:
	}
}

func TestQueue_WaitStops(t *testing.T) {
	q := newQueue()
	stop := make(chan struct{})
	close(stop)

	assert.False(t, q.wait(stop, time.Now, time.Hour))

	q.add(testJob(t, "due"), time.Now().Add(-time.Second))
	assert.False(t, q.wait(stop, time.Now, time.Hour), "остановка важнее просроченной задачи")
}

func TestQueue_WaitTimesOut(t *testing.T) {
	q := newQueue()
	stop := make(chan struct{})

	started := time.Now()
	assert.True(t, q.wait(stop, time.Now, 30*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(started), 30*time.Millisecond)
}
