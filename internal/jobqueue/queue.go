package jobqueue

import (
	"container/heap"
	"sync"
	"time"
)

// entry - элемент кучи. seq сохраняет порядок вставки для равных at.
type entry struct {
	at  time.Time
	seq uint64
	job *Job
}

type entryHeap []entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, k int) bool {
	if h[i].at.Equal(h[k].at) {
		return h[i].seq < h[k].seq
	}
	return h[i].at.Before(h[k].at)
}

func (h entryHeap) Swap(i, k int) { h[i], h[k] = h[k], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(entry)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = entry{}
	*h = old[:n-1]
	return e
}

// queue - потокобезопасная очередь с приоритетом по next_t. Помимо кучи
// хранит реестр живых задач в порядке добавления: задача, которая сейчас
// выполняется, в куче отсутствует, но в реестре остается.
type queue struct {
	mu       sync.Mutex
	items    entryHeap
	seq      uint64
	registry []*Job
	wake     chan struct{}
}

func newQueue() *queue {
	return &queue{wake: make(chan struct{}, 1)}
}

// add регистрирует новую задачу и ставит ее в очередь.
func (q *queue) add(job *Job, at time.Time) {
	q.mu.Lock()
	q.registry = append(q.registry, job)
	earliest := q.pushLocked(job, at)
	q.mu.Unlock()
	if earliest {
		q.signal()
	}
}

// push возвращает уже зарегистрированную задачу в очередь.
func (q *queue) push(job *Job, at time.Time) {
	q.mu.Lock()
	earliest := q.pushLocked(job, at)
	q.mu.Unlock()
	if earliest {
		q.signal()
	}
}

func (q *queue) pushLocked(job *Job, at time.Time) bool {
	q.seq++
	heap.Push(&q.items, entry{at: at, seq: q.seq, job: job})
	job.nextT.Store(at.UnixNano())
	return q.items[0].job == job
}

func (q *queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// peek возвращает самый ранний элемент, не извлекая его.
func (q *queue) peek() (entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return entry{}, false
	}
	return q.items[0], true
}

// pop извлекает самый ранний элемент.
func (q *queue) pop() (entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return entry{}, false
	}
	return heap.Pop(&q.items).(entry), true
}

// popDue извлекает все элементы с at <= now в порядке очереди.
func (q *queue) popDue(now time.Time) []entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	var due []entry
	for len(q.items) > 0 && !q.items[0].at.After(now) {
		due = append(due, heap.Pop(&q.items).(entry))
	}
	return due
}

// wait блокируется до самого раннего срабатывания, но не дольше max.
// Возвращается раньше, если в очередь добавлена задача с более ранним
// сроком. false означает, что пришел сигнал остановки.
func (q *queue) wait(stop <-chan struct{}, now func() time.Time, max time.Duration) bool {
	d := max
	if e, ok := q.peek(); ok {
		if until := e.at.Sub(now()); until < d {
			d = until
		}
	}
	if d <= 0 {
		select {
		case <-stop:
			return false
		default:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-q.wake:
		return true
	case <-timer.C:
		return true
	}
}

// forget удаляет задачу из реестра.
func (q *queue) forget(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, j := range q.registry {
		if j == job {
			q.registry = append(q.registry[:i], q.registry[i+1:]...)
			break
		}
	}
	job.nextT.Store(0)
}

// snapshot возвращает неудаленные задачи в порядке добавления.
func (q *queue) snapshot() []*Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, 0, len(q.registry))
	for _, j := range q.registry {
		if !j.Removed() {
			out = append(out, j)
		}
	}
	return out
}

// len возвращает число элементов в куче.
func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// clear отбрасывает все задачи.
func (q *queue) clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.registry)
	for _, j := range q.registry {
		j.nextT.Store(0)
	}
	q.items = nil
	q.registry = nil
	return n
}
