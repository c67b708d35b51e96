// Package scheduler serializes all SDK work onto one background goroutine.
//
// Host threads enqueue tasks and return immediately; the worker drains a
// deadline-ordered min-heap, so "as soon as possible" work and delayed timers
// share one queue. Because every mutation of SDK state happens on the worker,
// the rest of the SDK needs no locking of its own.
package scheduler

import (
	"container/heap"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultPollInterval bounds timer latency: the worker sleeps this long
// between drain passes when the queue has nothing due.
const DefaultPollInterval = time.Second

type timedTask struct {
	run      func()
	deadline time.Time
	seq      uint64
}

// taskHeap orders by deadline, breaking ties by insertion sequence so tasks
// enqueued with equal deadlines run in insertion order. The tie-break is a
// deliberate, documented choice; callers still must not depend on ordering
// across Post and an already-due Schedule.
type taskHeap []timedTask

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(timedTask)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Scheduler runs tasks sequentially on a single worker goroutine. The zero
// value is not usable; call New.
type Scheduler struct {
	mu      sync.Mutex
	tasks   taskHeap
	seq     uint64
	started bool

	ended atomic.Bool
	done  chan struct{}

	poll time.Duration
	now  func() time.Time
}

// New returns an idle scheduler. The worker goroutine starts lazily on the
// first enqueue.
func New() *Scheduler {
	return &Scheduler{
		done: make(chan struct{}),
		poll: DefaultPollInterval,
		now:  time.Now,
	}
}

// NewWithPoll returns a scheduler with a custom drain-poll interval (tests).
func NewWithPoll(poll time.Duration) *Scheduler {
	s := New()
	s.poll = poll
	return s
}

// Post enqueues a task due immediately. After Shutdown the task is silently
// dropped; enqueue never blocks and never fails loudly by contract.
func (s *Scheduler) Post(task func()) {
	s.enqueue(task, 0)
}

// Schedule enqueues a task due after delay. Used for the self-rescheduling
// event-flush timer.
func (s *Scheduler) Schedule(delay time.Duration, task func()) {
	s.enqueue(task, delay)
}

func (s *Scheduler) enqueue(task func(), delay time.Duration) {
	if task == nil || s.ended.Load() {
		return
	}

	s.mu.Lock()
	s.seq++
	heap.Push(&s.tasks, timedTask{run: task, deadline: s.now().Add(delay), seq: s.seq})
	if !s.started {
		s.started = true
		go s.loop()
	}
	s.mu.Unlock()
}

// Shutdown is the only cancellation primitive: a one-way flag. The worker
// finishes all currently-due tasks and exits; not-yet-due tasks are
// abandoned, and further enqueues are dropped. In-flight network calls are
// not awaited.
func (s *Scheduler) Shutdown() {
	if s.ended.Swap(true) {
		return
	}
	s.mu.Lock()
	// If the worker never started there is nothing to drain.
	if !s.started {
		s.started = true // keep a late enqueue from spawning a worker
		close(s.done)
	}
	s.mu.Unlock()
}

// Done is closed once the worker goroutine has exited (or Shutdown was
// called before it ever started).
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func (s *Scheduler) next() (timedTask, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tasks) == 0 || s.tasks[0].deadline.After(s.now()) {
		return timedTask{}, false
	}
	return heap.Pop(&s.tasks).(timedTask), true
}

func (s *Scheduler) loop() {
	defer close(s.done)
	for {
		for {
			task, ok := s.next()
			if !ok {
				break
			}
			task.run()
		}
		if s.ended.Load() {
			return
		}
		time.Sleep(s.poll)
	}
}
