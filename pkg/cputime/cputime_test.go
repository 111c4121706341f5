package cputime

import (
	"errors"
	"testing"
	"time"
)

func spin(n int) int64 {
	var acc int64
	for i := 0; i < n; i++ {
		acc += int64(i) ^ acc>>3
	}
	return acc
}

func TestProcessClockAdvances(t *testing.T) {
	before := Process.Now()
	if before < 0 {
		t.Fatalf("expected a non-negative reading, got %v", before)
	}
	sink := spin(50_000_000)
	after := Process.Now()
	if after < before {
		t.Fatalf("process clock went backwards: %v then %v (sink %d)", before, after, sink)
	}
}

func TestClockFunc(t *testing.T) {
	var calls int
	c := ClockFunc(func() time.Duration {
		calls++
		return time.Duration(calls) * time.Second
	})
	if got := c.Now(); got != time.Second {
		t.Fatalf("first reading: got %v", got)
	}
	if got := c.Now(); got != 2*time.Second {
		t.Fatalf("second reading: got %v", got)
	}
}

func TestProcessClockUnavailable(t *testing.T) {
	defer func(saved func() (time.Duration, error)) { read = saved }(read)
	read = func() (time.Duration, error) {
		return 0, errors.New("clock_gettime: operation not permitted")
	}
	if got := Process.Now(); got != Unavailable {
		t.Fatalf("expected <%v>; but was <%v>", Unavailable, got)
	}
}
