package jobqueue

import (
	"time"

	"tgqueue/internal/shared"
)

// JobOption настраивает задачу при создании.
type JobOption func(*jobOptions)

type jobOptions struct {
	name     string
	payload  any
	first    any
	days     []Weekday
	timeout  time.Duration
	interval any
	repeat   bool

	set optionSet
}

// optionSet отмечает опции, которые есть смысл проверять на применимость.
type optionSet uint8

const (
	optFirst optionSet = 1 << iota
	optDays
	optInterval
	optRepeat
)

var optionNames = []struct {
	bit  optionSet
	name string
}{
	{optFirst, "WithFirst"},
	{optDays, "WithDays"},
	{optInterval, "WithInterval"},
	{optRepeat, "WithRepeat"},
}

// only возвращает ошибку валидации, если передана опция вне allowed.
func (o jobOptions) only(method string, allowed optionSet) error {
	for _, n := range optionNames {
		if o.set&n.bit != 0 && allowed&n.bit == 0 {
			return shared.Validationf("%s can not be used with %s", n.name, method)
		}
	}
	return nil
}

func collectOptions(opts []JobOption) jobOptions {
	var o jobOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// WithName задает имя задачи.
func WithName(name string) JobOption {
	return func(o *jobOptions) { o.name = name }
}

// WithPayload задает пользовательский контекст задачи, доступный колбэку
// через Job.Payload или CallbackContext.Payload.
func WithPayload(v any) JobOption {
	return func(o *jobOptions) { o.payload = v }
}

// WithFirst задает первый запуск повторяющейся задачи. Принимает те же
// значения, что и RunOnce. По умолчанию первый запуск через интервал.
// Только для RunRepeating.
func WithFirst(when any) JobOption {
	return func(o *jobOptions) { o.first, o.set = when, o.set|optFirst }
}

// WithDays ограничивает ежедневную задачу днями недели. Только для RunDaily
// и NewJob.
func WithDays(days ...Weekday) JobOption {
	return func(o *jobOptions) { o.days, o.set = append([]Weekday{}, days...), o.set|optDays }
}

// WithTimeout ограничивает время выполнения колбэка: контекст колбэка
// отменяется по истечении d.
func WithTimeout(d time.Duration) JobOption {
	return func(o *jobOptions) { o.timeout = d }
}

// WithInterval задает интервал. Только для NewJob: у RunRepeating интервал
// передается аргументом.
func WithInterval(v any) JobOption {
	return func(o *jobOptions) { o.interval, o.set = v, o.set|optInterval }
}

// WithRepeat включает повторение. Только для NewJob.
func WithRepeat(repeat bool) JobOption {
	return func(o *jobOptions) { o.repeat, o.set = repeat, o.set|optRepeat }
}
