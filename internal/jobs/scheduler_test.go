package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

type resetter struct {
	calls int
	err   error
}

func (r *resetter) ResetDailyCounters(context.Context) (int64, error) {
	r.calls++
	return 3, r.err
}

type sweeper struct{ calls int }

func (s *sweeper) Sweep() int {
	s.calls++
	return 1
}

func TestSchedulerRegistersJobs(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Damascus")
	if err != nil {
		t.Skipf("tzdata: %v", err)
	}
	s := NewScheduler(loc, nil)

	if err := s.AddCounterReset(context.Background(), "0 0 * * *", &resetter{}); err != nil {
		t.Fatalf("AddCounterReset: %v", err)
	}
	if err := s.AddSweep(&sweeper{}); err != nil {
		t.Fatalf("AddSweep: %v", err)
	}

	entries := s.cron.Entries()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}

	from := time.Date(2026, 5, 10, 12, 30, 0, 0, loc)
	next := entries[0].Schedule.Next(from)
	if want := time.Date(2026, 5, 11, 0, 0, 0, 0, loc); !next.Equal(want) {
		t.Errorf("reset next = %v, want %v", next, want)
	}
}

func TestSchedulerJobsRun(t *testing.T) {
	s := NewScheduler(nil, nil)
	r := &resetter{err: errors.New("db down")}
	sw := &sweeper{}

	if err := s.AddCounterReset(context.Background(), "@every 1h", r); err != nil {
		t.Fatal(err)
	}
	if err := s.AddSweep(sw); err != nil {
		t.Fatal(err)
	}
	for _, e := range s.cron.Entries() {
		e.Job.Run()
	}
	if r.calls != 1 || sw.calls != 1 {
		t.Fatalf("reset=%d sweep=%d", r.calls, sw.calls)
	}
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(nil, nil)
	if err := s.AddCounterReset(context.Background(), "not a cron", &resetter{}); err == nil {
		t.Fatal("expected error for bad spec")
	}
}
