package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/foodbridge/foodbridge-backend/pkg/logger"
)

type fakeLock struct {
	acquired bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
	fn   func(ctx context.Context) error
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	if t.fn != nil {
		return t.fn(ctx)
	}
	return t.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:     logger.Nop(),
		Registry:   NewRegistry(jobs...),
		Lock:       lock,
		JobTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestRunOnceRunsEveryJobAndJoinsFailures(t *testing.T) {
	expiry := &testJob{name: "donation-expiry", err: errors.New("store unavailable")}
	cleanup := &testJob{name: "notification-cleanup"}
	retention := &testJob{name: "outbox-retention", fn: func(context.Context) error { panic("boom") }}
	lock := &fakeLock{}
	service := newTestService(t, lock, expiry, cleanup, retention)

	err := service.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected combined error")
	}
	for _, want := range []string{"donation-expiry: store unavailable", "outbox-retention: job outbox-retention panicked"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
	if expiry.runs != 1 || cleanup.runs != 1 || retention.runs != 1 {
		t.Fatalf("expected each job once, got %d %d %d", expiry.runs, cleanup.runs, retention.runs)
	}
	if lock.releases != 1 || lock.acquired {
		t.Fatal("lock must be released after the cycle")
	}
}

func TestRunOnceBoundsJobsWithTimeout(t *testing.T) {
	var deadline time.Time
	job := &testJob{name: "donation-expiry", fn: func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	}}
	service := newTestService(t, &fakeLock{}, job)

	before := time.Now()
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if deadline.IsZero() || deadline.Sub(before) > time.Second+100*time.Millisecond {
		t.Fatalf("expected a one second job deadline, got %v", deadline)
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "donation-expiry"}
	service := newTestService(t, &fakeLock{acquired: true}, job)

	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job ran %d times while another worker held the lock", job.runs)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &testJob{name: "donation-expiry", fn: func(context.Context) error {
		cancel()
		return nil
	}}
	service := newTestService(t, &fakeLock{}, job)

	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected an immediate first cycle, got %d runs", job.runs)
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected error without a lock")
	}
}
