package jobqueue

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"tgqueue/internal/shared"
)

// Weekday - день недели, 0 = понедельник, 6 = воскресенье.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// EveryDay возвращает все семь дней недели.
func EveryDay() []Weekday {
	return []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
}

var weekdayNames = [...]string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// String возвращает короткое имя дня ("mon").
func (d Weekday) String() string {
	if d < Monday || d > Sunday {
		return "Weekday(" + strconv.Itoa(int(d)) + ")"
	}
	return weekdayNames[d]
}

// WeekdayOf возвращает день недели t в его собственной локации.
func WeekdayOf(t time.Time) Weekday {
	return Weekday((int(t.Weekday()) + 6) % 7)
}

// ParseWeekdays разбирает список дней вида "mon,wed,fri" или "0,2,4".
func ParseWeekdays(s string) ([]Weekday, error) {
	parts := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]Weekday, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, Weekday(n))
			continue
		}
		found := false
		for i, name := range weekdayNames {
			if strings.HasPrefix(p, name) {
				out = append(out, Weekday(i))
				found = true
				break
			}
		}
		if !found {
			return nil, shared.Validationf("unknown weekday %q", p)
		}
	}
	return normalizeDays(out)
}

// normalizeDays проверяет и упорядочивает набор дней, убирая дубликаты.
func normalizeDays(days []Weekday) ([]Weekday, error) {
	if len(days) == 0 {
		return nil, shared.Validationf("the 'days' argument must contain at least one day")
	}
	var seen [7]bool
	for _, d := range days {
		if d < Monday || d > Sunday {
			return nil, shared.Validationf("the elements of the 'days' argument should be from 0 up to and including 6, got %d", int(d))
		}
		seen[d] = true
	}
	out := make([]Weekday, 0, len(days))
	for i, ok := range seen {
		if ok {
			out = append(out, Weekday(i))
		}
	}
	return out, nil
}

func containsDay(days []Weekday, d Weekday) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}

// TimeOfDay - время суток без даты. Location == nil означает локацию
// очереди (по умолчанию UTC).
type TimeOfDay struct {
	Hour       int
	Minute     int
	Second     int
	Nanosecond int
	Location   *time.Location
}

// Clock создает TimeOfDay без явной локации.
func Clock(hour, minute, second int) TimeOfDay {
	return TimeOfDay{Hour: hour, Minute: minute, Second: second}
}

// TimeOfDayOf берет настенное время t в его локации.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{
		Hour:       t.Hour(),
		Minute:     t.Minute(),
		Second:     t.Second(),
		Nanosecond: t.Nanosecond(),
		Location:   t.Location(),
	}
}

// In возвращает копию с указанной локацией.
func (t TimeOfDay) In(loc *time.Location) TimeOfDay {
	t.Location = loc
	return t
}

func (t TimeOfDay) String() string {
	s := fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
	if t.Location != nil {
		s += " " + t.Location.String()
	}
	return s
}

func (t TimeOfDay) validate() error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 ||
		t.Second < 0 || t.Second > 59 || t.Nanosecond < 0 || t.Nanosecond >= int(time.Second) {
		return shared.Validationf("invalid time of day %02d:%02d:%02d.%09d", t.Hour, t.Minute, t.Second, t.Nanosecond)
	}
	return nil
}

func (t TimeOfDay) orIn(loc *time.Location) TimeOfDay {
	if t.Location == nil {
		t.Location = loc
	}
	if t.Location == nil {
		t.Location = time.UTC
	}
	return t
}

// on возвращает момент t на дату (y, m, d) в t.Location.
func (t TimeOfDay) on(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, t.Hour, t.Minute, t.Second, t.Nanosecond, t.Location)
}

// ParseTimeOfDay разбирает "HH:MM" или "HH:MM:SS".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if p, err := time.Parse(layout, s); err == nil {
			return Clock(p.Hour(), p.Minute(), p.Second()), nil
		}
	}
	return TimeOfDay{}, shared.Validationf("time of day %q must look like HH:MM or HH:MM:SS", s)
}

// ParseLocation принимает смещение вида "+03:00", "-0530", "Z" или имя IANA.
func ParseLocation(s string) (*time.Location, error) {
	if s == "" || s == "Z" || strings.EqualFold(s, "UTC") {
		return time.UTC, nil
	}
	if s[0] == '+' || s[0] == '-' {
		for _, layout := range []string{"-07:00", "-0700", "-07"} {
			if p, err := time.Parse(layout, s); err == nil {
				_, offset := p.Zone()
				return time.FixedZone(s, offset), nil
			}
		}
		return nil, shared.Validationf("invalid UTC offset %q", s)
	}
	loc, err := time.LoadLocation(s)
	if err != nil {
		return nil, shared.MarkKind(err, shared.KindValidation)
	}
	return loc, nil
}

// maxDelaySeconds - наибольшая задержка в секундах, представимая в time.Duration.
const maxDelaySeconds = math.MaxInt64 / int64(time.Second)

// toDuration приводит числовую задержку или time.Duration к time.Duration.
// Числа трактуются как секунды. ok = false для неподдерживаемого типа;
// ошибка - для NaN, бесконечности и значений вне диапазона time.Duration.
func toDuration(v any) (d time.Duration, ok bool, err error) {
	switch x := v.(type) {
	case time.Duration:
		return x, true, nil
	case int:
		d, err = secondsInt(int64(x))
	case int32:
		d, err = secondsInt(int64(x))
	case int64:
		d, err = secondsInt(x)
	case float32:
		d, err = secondsFloat(float64(x))
	case float64:
		d, err = secondsFloat(x)
	default:
		return 0, false, nil
	}
	return d, true, err
}

func secondsInt(n int64) (time.Duration, error) {
	if n > maxDelaySeconds || n < -maxDelaySeconds {
		return 0, shared.Validationf("the delay must be within ±%d seconds, got %d", maxDelaySeconds, n)
	}
	return time.Duration(n) * time.Second, nil
}

func secondsFloat(f float64) (time.Duration, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, shared.Validationf("the delay must be a finite number, got %v", f)
	}
	if math.Abs(f) > float64(maxDelaySeconds) {
		return 0, shared.Validationf("the delay must be within ±%d seconds, got %v", maxDelaySeconds, f)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// ResolveWhen вычисляет абсолютный момент срабатывания одноразовой задачи.
//
//   - int, int32, int64, float32, float64 - задержка в секундах от now
//   - time.Duration - задержка от now
//   - time.Time - абсолютный момент (в прошлом - сработает на ближайшем тике)
//   - TimeOfDay - ближайшее наступление этого времени суток, не раньше now
func ResolveWhen(when any, now time.Time, loc *time.Location) (time.Time, error) {
	switch v := when.(type) {
	case time.Time:
		return v, nil
	case TimeOfDay:
		tod := v.orIn(loc)
		if err := tod.validate(); err != nil {
			return time.Time{}, err
		}
		return NextTimeOfDay(tod, now), nil
	}
	d, ok, err := toDuration(when)
	if !ok {
		return time.Time{}, shared.Validationf("the 'when' argument must be of type time.Duration, time.Time, TimeOfDay, int or float64, got %T", when)
	}
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(d), nil
}

// NextTimeOfDay возвращает ближайший момент tod не раньше now. Если сегодняшний
// слот уже прошел, результат - ровно сутки спустя сегодняшнего слота.
// tod.Location должна быть задана.
func NextTimeOfDay(tod TimeOfDay, now time.Time) time.Time {
	local := now.In(tod.Location)
	next := tod.on(local.Year(), local.Month(), local.Day())
	if next.Before(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// NextDaily возвращает ближайший момент tod не раньше now, у которого день
// недели в локации tod входит в days.
func NextDaily(tod TimeOfDay, days []Weekday, now time.Time) time.Time {
	return forwardToEligible(tod, days, NextTimeOfDay(tod, now))
}

// FollowingDaily вычисляет следующий запуск ежедневной задачи после срабатывания
// в prev: сутки спустя, затем вперед до разрешенного дня недели.
func FollowingDaily(tod TimeOfDay, days []Weekday, prev time.Time) time.Time {
	local := prev.In(tod.Location).AddDate(0, 0, 1)
	return forwardToEligible(tod, days, tod.on(local.Year(), local.Month(), local.Day()))
}

func forwardToEligible(tod TimeOfDay, days []Weekday, candidate time.Time) time.Time {
	for i := 0; i < 7; i++ {
		if containsDay(days, WeekdayOf(candidate.In(tod.Location))) {
			return candidate
		}
		local := candidate.In(tod.Location).AddDate(0, 0, 1)
		candidate = tod.on(local.Year(), local.Month(), local.Day())
	}
	return candidate
}

// cronParser принимает 5 и 6 полей (секунды опциональны) и дескрипторы.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseCron разбирает cron-выражение.
func ParseCron(spec string) (cron.Schedule, error) {
	sched, err := cronParser.Parse(spec)
	if err != nil {
		return nil, shared.MarkKind(fmt.Errorf("cron spec %q: %w", spec, err), shared.KindValidation)
	}
	return sched, nil
}

// NextCron возвращает следующий момент расписания строго после after,
// вычисленный в локации loc. Нулевое время означает, что моментов больше нет.
func NextCron(sched cron.Schedule, after time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return sched.Next(after.In(loc))
}
