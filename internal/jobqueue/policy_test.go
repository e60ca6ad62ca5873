package jobqueue

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tgqueue/internal/shared"
)

// 2024-01-10 - среда.
var wednesdayNoon = time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC)

func TestResolveWhen_Delays(t *testing.T) {
	now := wednesdayNoon

	tests := []struct {
		name string
		when any
		want time.Time
	}{
		{"int seconds", 5, now.Add(5 * time.Second)},
		{"int64 seconds", int64(2), now.Add(2 * time.Second)},
		{"float seconds", 0.25, now.Add(250 * time.Millisecond)},
		{"duration", 90 * time.Second, now.Add(90 * time.Second)},
		{"absolute time", now.Add(time.Hour), now.Add(time.Hour)},
		{"absolute time in the past", now.Add(-time.Hour), now.Add(-time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWhen(tt.when, now, time.UTC)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "ожидалось %v, получено %v", tt.want, got)
		})
	}
}

func TestResolveWhen_UnsupportedType(t *testing.T) {
	_, err := ResolveWhen("soon", wednesdayNoon, time.UTC)
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.Contains(t, err.Error(), "'when'")

	_, err = ResolveWhen(nil, wednesdayNoon, time.UTC)
	assert.True(t, shared.IsValidation(err))
}

func TestResolveWhen_RejectsUnrepresentableDelays(t *testing.T) {
	for _, when := range []any{
		math.NaN(), math.Inf(1), math.Inf(-1),
		1e12, -1e12, float32(1e12),
		int64(math.MaxInt64), maxDelaySeconds + 1,
	} {
		_, err := ResolveWhen(when, wednesdayNoon, time.UTC)
		require.Error(t, err, "%v", when)
		assert.True(t, shared.IsValidation(err), "%v", when)
		assert.Contains(t, err.Error(), "must be", "%v", when)
	}

	got, err := ResolveWhen(maxDelaySeconds, wednesdayNoon, time.UTC)
	require.NoError(t, err, "граница диапазона допустима")
	assert.True(t, got.After(wednesdayNoon))
}

func TestResolveWhen_TimeOfDay(t *testing.T) {
	now := time.Date(2024, time.January, 10, 12, 0, 0, 500, time.UTC)

	t.Run("later today", func(t *testing.T) {
		got, err := ResolveWhen(Clock(13, 30, 0), now, time.UTC)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, time.January, 10, 13, 30, 0, 0, time.UTC), got)
	})

	t.Run("already elapsed rolls over exactly one day", func(t *testing.T) {
		tod := TimeOfDayOf(now.Add(-time.Second))
		got, err := ResolveWhen(tod, now, time.UTC)
		require.NoError(t, err)

		naive := now.Add(-time.Second)
		assert.Equal(t, 86400*time.Second, got.Sub(naive), "слот должен сдвинуться ровно на 86400 секунд")
	})

	t.Run("location defaults to the queue location", func(t *testing.T) {
		plus3 := time.FixedZone("+03:00", 3*3600)
		got, err := ResolveWhen(Clock(16, 0, 0), now, plus3)
		require.NoError(t, err)
		assert.True(t, got.Equal(time.Date(2024, time.January, 10, 13, 0, 0, 0, time.UTC)))
	})

	t.Run("invalid clock", func(t *testing.T) {
		_, err := ResolveWhen(Clock(25, 0, 0), now, time.UTC)
		assert.True(t, shared.IsValidation(err))
	})
}

func TestNextTimeOfDay_ExactSlotIsNotRolled(t *testing.T) {
	tod := Clock(12, 0, 0).In(time.UTC)
	assert.Equal(t, wednesdayNoon, NextTimeOfDay(tod, wednesdayNoon))
}

func TestNextDaily_AllDays(t *testing.T) {
	tod := Clock(11, 0, 0).In(time.UTC)

	next := NextDaily(tod, EveryDay(), wednesdayNoon)
	assert.Equal(t, time.Date(2024, time.January, 11, 11, 0, 0, 0, time.UTC), next)

	following := FollowingDaily(tod, EveryDay(), next)
	assert.Equal(t, 24*time.Hour, following.Sub(next), "без ограничения дней шаг - ровно сутки")
}

func TestNextDaily_ExplicitDays(t *testing.T) {
	tod := Clock(11, 0, 0).In(time.UTC)

	next := NextDaily(tod, []Weekday{Friday}, wednesdayNoon)
	assert.Equal(t, time.Date(2024, time.January, 12, 11, 0, 0, 0, time.UTC), next)
	assert.Equal(t, Friday, WeekdayOf(next))

	following := FollowingDaily(tod, []Weekday{Monday, Friday}, next)
	assert.Equal(t, time.Date(2024, time.January, 15, 11, 0, 0, 0, time.UTC), following)
	assert.Equal(t, Monday, WeekdayOf(following))
}

func TestNextDaily_OffsetTimezone(t *testing.T) {
	plus10 := time.FixedZone("+10:00", 10*3600)
	// В UTC сейчас среда 12:00, в +10 - среда 22:00.
	// Слот 01:00 по +10 сегодня уже прошел, следующий - четверг 01:00 по +10,
	// то есть среда 15:00 UTC. День недели считается по локальной дате.
	tod := Clock(1, 0, 0).In(plus10)

	next := NextDaily(tod, []Weekday{Thursday}, wednesdayNoon)
	assert.True(t, next.Equal(time.Date(2024, time.January, 10, 15, 0, 0, 0, time.UTC)), "получено %v", next.UTC())
	assert.Equal(t, Thursday, WeekdayOf(next.In(plus10)))
	assert.Equal(t, Wednesday, WeekdayOf(next.UTC()))

	// Среда по +10 исключена: пропускаем до следующей среды.
	next = NextDaily(tod, []Weekday{Wednesday}, wednesdayNoon)
	assert.True(t, next.Equal(time.Date(2024, time.January, 16, 15, 0, 0, 0, time.UTC)), "получено %v", next.UTC())
}

func TestNextDaily_NearlyFullDayOffset(t *testing.T) {
	offset := time.FixedZone("+23:59", 23*3600+59*60)
	tod := TimeOfDayOf(wednesdayNoon.Add(time.Second).In(offset))

	next := NextDaily(tod, EveryDay(), wednesdayNoon)
	assert.Equal(t, time.Second, next.Sub(wednesdayNoon))
}

func TestWeekdayOf(t *testing.T) {
	assert.Equal(t, Wednesday, WeekdayOf(wednesdayNoon))
	assert.Equal(t, Sunday, WeekdayOf(time.Date(2024, time.January, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, Monday, WeekdayOf(time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "sun", Sunday.String())
	assert.Equal(t, "Weekday(9)", Weekday(9).String())
}

func TestParseWeekdays(t *testing.T) {
	days, err := ParseWeekdays("fri, mon,Wednesday")
	require.NoError(t, err)
	assert.Equal(t, []Weekday{Monday, Wednesday, Friday}, days)

	days, err = ParseWeekdays("6,0,0")
	require.NoError(t, err)
	assert.Equal(t, []Weekday{Monday, Sunday}, days)

	_, err = ParseWeekdays("7")
	assert.True(t, shared.IsValidation(err))

	_, err = ParseWeekdays("someday")
	assert.True(t, shared.IsValidation(err))

	_, err = ParseWeekdays("")
	assert.True(t, shared.IsValidation(err))
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, Clock(9, 30, 0), tod)

	tod, err = ParseTimeOfDay("23:59:58")
	require.NoError(t, err)
	assert.Equal(t, Clock(23, 59, 58), tod)

	_, err = ParseTimeOfDay("9.30")
	assert.True(t, shared.IsValidation(err))
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in     string
		offset int
	}{
		{"", 0},
		{"Z", 0},
		{"utc", 0},
		{"+03:00", 3 * 3600},
		{"-0530", -(5*3600 + 30*60)},
		{"+07", 7 * 3600},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			loc, err := ParseLocation(tt.in)
			require.NoError(t, err)
			_, offset := wednesdayNoon.In(loc).Zone()
			assert.Equal(t, tt.offset, offset)
		})
	}

	_, err := ParseLocation("+ab:cd")
	assert.True(t, shared.IsValidation(err))

	_, err = ParseLocation("Mars/Olympus_Mons")
	assert.True(t, shared.IsValidation(err))
}

func TestCron(t *testing.T) {
	sched, err := ParseCron("0 9 * * mon")
	require.NoError(t, err)

	next := NextCron(sched, wednesdayNoon, time.UTC)
	assert.True(t, next.Equal(time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)), "получено %v", next)

	plus3 := time.FixedZone("+03:00", 3*3600)
	next = NextCron(sched, wednesdayNoon, plus3)
	assert.True(t, next.Equal(time.Date(2024, time.January, 15, 6, 0, 0, 0, time.UTC)), "получено %v", next.UTC())

	sched, err = ParseCron("*/10 * * * * *")
	require.NoError(t, err)
	assert.True(t, wednesdayNoon.Add(10*time.Second).Equal(NextCron(sched, wednesdayNoon, nil)))

	_, err = ParseCron("every day")
	assert.True(t, shared.IsValidation(err))
}
