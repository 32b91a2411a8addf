package scheduler

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type entry struct {
	id    string
	at    time.Time
	seq   uint64
	fn    func()
	index int
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// Scheduler fires callbacks at wall-clock times. Entries wait in a min-heap
// keyed by due time behind a single timer, and each due callback runs on its
// own goroutine so a slow one never holds back the rest.
type Scheduler struct {
	mu    sync.Mutex
	queue entryHeap
	byID  map[string]*entry
	seq   uint64
	wake  chan struct{}
	now   func() time.Time
	fired sync.WaitGroup
	log   zerolog.Logger
}

func NewScheduler(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		byID: make(map[string]*entry),
		wake: make(chan struct{}, 1),
		now:  time.Now,
		log:  logger.With().Str("op", "scheduler").Logger(),
	}
}

// Add queues fn to run at at. An existing entry with the same id is replaced.
func (s *Scheduler) Add(id string, at time.Time, fn func()) {
	s.mu.Lock()
	if old, ok := s.byID[id]; ok {
		heap.Remove(&s.queue, old.index)
	}
	s.seq++
	e := &entry{id: id, at: at, seq: s.seq, fn: fn}
	heap.Push(&s.queue, e)
	s.byID[id] = e
	s.mu.Unlock()
	s.log.Debug().Str("task", id).Time("at", at).Msg("entry queued")
	s.poke()
}

// Remove drops a pending entry. It reports false if the entry already fired
// or never existed.
func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	e, ok := s.byID[id]
	if ok {
		heap.Remove(&s.queue, e.index)
		delete(s.byID, id)
	}
	s.mu.Unlock()
	if ok {
		s.poke()
	}
	return ok
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Pending returns the due time of id if it is still queued.
func (s *Scheduler) Pending(id string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.byID[id]; ok {
		return e.at, true
	}
	return time.Time{}, false
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run services the queue until ctx is done, then waits for fired callbacks
// to return.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.fired.Wait()
	for {
		due, next := s.popDue()
		for _, e := range due {
			s.log.Debug().Str("task", e.id).Msg("entry due")
			s.fired.Add(1)
			go func(fn func()) {
				defer s.fired.Done()
				fn()
			}(e.fn)
		}

		var timerC <-chan time.Time
		var timer *time.Timer
		if next >= 0 {
			timer = time.NewTimer(next)
			timerC = timer.C
		}
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

// popDue removes every entry whose time has come and returns the wait until
// the next one, or -1 when the queue is empty.
func (s *Scheduler) popDue() ([]*entry, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var due []*entry
	for s.queue.Len() > 0 && !s.queue[0].at.After(now) {
		e := heap.Pop(&s.queue).(*entry)
		delete(s.byID, e.id)
		due = append(due, e)
	}
	if s.queue.Len() == 0 {
		return due, -1
	}
	return due, s.queue[0].at.Sub(now)
}
