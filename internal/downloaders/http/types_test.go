package sdmhttp

import (
	"errors"
	"fmt"
	"testing"
)

func TestPartitionCoversRange(t *testing.T) {
	for _, total := range []int64{1, 2, 7, 8, 9, 100, 1023, 8_000_000, 1<<31 + 17} {
		for workers := 1; workers <= 17; workers++ {
			ranges := Partition(total, workers)
			if len(ranges) == 0 {
				t.Fatalf("Partition(%d, %d) returned no ranges", total, workers)
			}
			if len(ranges) > workers {
				t.Errorf("Partition(%d, %d) returned %d ranges", total, workers, len(ranges))
			}
			var next int64
			for i, r := range ranges {
				if r.Index != i {
					t.Errorf("Partition(%d, %d): range %d has index %d", total, workers, i, r.Index)
				}
				if r.Start != next {
					t.Errorf("Partition(%d, %d): range %d starts at %d, expected %d", total, workers, i, r.Start, next)
				}
				if r.Len() <= 0 {
					t.Errorf("Partition(%d, %d): range %d is empty", total, workers, i)
				}
				next = r.End
			}
			if next != total {
				t.Errorf("Partition(%d, %d) ends at %d", total, workers, next)
			}
		}
	}
}

func TestPartitionLastRangeAbsorbsRemainder(t *testing.T) {
	ranges := Partition(10, 3)
	want := []ChunkRange{{0, 0, 3}, {1, 3, 6}, {2, 6, 10}}
	for i := range want {
		if ranges[i] != want[i] {
			t.Errorf("range %d: expected %+v, got %+v", i, want[i], ranges[i])
		}
	}
	if Partition(0, 8) != nil || Partition(10, 0) != nil {
		t.Error("expected nil for empty inputs")
	}
}

func TestChunkRangeHeader(t *testing.T) {
	r := ChunkRange{Start: 1000, End: 2000}
	if got := r.Header(); got != "bytes=1000-1999" {
		t.Errorf("expected bytes=1000-1999, got %s", got)
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{nil, false},
		{ErrInvalidURL, false},
		{fmt.Errorf("%w: missing", ErrSizeUnknown), false},
		{ErrCancelled, false},
		{&NetworkError{Op: "probe", StatusCode: 500}, true},
		{errors.New("disk full"), true},
	}
	for _, test := range tests {
		if got := retryable(test.err); got != test.expected {
			t.Errorf("retryable(%v) = %v, expected %v", test.err, got, test.expected)
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusPending:     false,
		StatusDownloading: false,
		StatusPaused:      false,
		StatusCompleted:   true,
		StatusCancelled:   true,
		StatusFailed:      true,
	}
	for s, expected := range terminal {
		if s.Terminal() != expected {
			t.Errorf("%s.Terminal() = %v, expected %v", s, s.Terminal(), expected)
		}
	}
}
