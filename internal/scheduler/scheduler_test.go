package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSchedulerFiresInDueOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewScheduler(zerolog.Nop())
	go s.Run(ctx)

	fired := make(chan string, 3)
	now := time.Now()
	s.Add("c", now.Add(90*time.Millisecond), func() { fired <- "c" })
	s.Add("a", now.Add(30*time.Millisecond), func() { fired <- "a" })
	s.Add("b", now.Add(60*time.Millisecond), func() { fired <- "b" })

	for _, want := range []string{"a", "b", "c"} {
		select {
		case got := <-fired:
			if got != want {
				t.Fatalf("expected %s to fire next, got %s", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
	if s.Len() != 0 {
		t.Errorf("expected empty queue, got %d", s.Len())
	}
}

func TestSchedulerDoesNotBlockBehindRunningEntry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(zerolog.Nop())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	release := make(chan struct{})
	second := make(chan struct{})
	s.Add("slow", time.Now(), func() { <-release })
	s.Add("next", time.Now().Add(20*time.Millisecond), func() { close(second) })

	select {
	case <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second entry was held back by the first")
	}
	close(release)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSchedulerRemoveAndReplace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewScheduler(zerolog.Nop())
	go s.Run(ctx)

	var mu sync.Mutex
	calls := map[string]int{}
	record := func(id string) func() {
		return func() {
			mu.Lock()
			calls[id]++
			mu.Unlock()
		}
	}
	s.Add("removed", time.Now().Add(30*time.Millisecond), record("removed"))
	if !s.Remove("removed") {
		t.Fatal("expected Remove to find the entry")
	}
	if s.Remove("removed") {
		t.Error("expected second Remove to report false")
	}

	s.Add("replaced", time.Now().Add(time.Hour), record("first"))
	s.Add("replaced", time.Now().Add(20*time.Millisecond), record("second"))
	if at, ok := s.Pending("replaced"); !ok || at.After(time.Now().Add(time.Minute)) {
		t.Errorf("expected the replacement due time, got %v %v", at, ok)
	}

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if calls["removed"] != 0 || calls["first"] != 0 {
		t.Errorf("removed or replaced entries fired: %v", calls)
	}
	if calls["second"] != 1 {
		t.Errorf("expected replacement to fire once, got %d", calls["second"])
	}
}

func TestSchedulerPastEntryFiresImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewScheduler(zerolog.Nop())
	go s.Run(ctx)

	fired := make(chan struct{})
	s.Add("late", time.Now().Add(-time.Minute), func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("past entry did not fire")
	}
}
