package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingService struct {
	name      string
	startErr  error
	started   bool
	stopped   bool
	stopOrder *[]string
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(ctx context.Context) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started = true
	return nil
}

func (s *recordingService) Stop(ctx context.Context) error {
	s.stopped = true
	if s.stopOrder != nil {
		*s.stopOrder = append(*s.stopOrder, s.name)
	}
	return nil
}

func TestStartRunsServicesInOrder(t *testing.T) {
	var order []string
	a := &recordingService{name: "a", stopOrder: &order}
	b := &recordingService{name: "b", stopOrder: &order}

	sup := New()
	if err := sup.Register(a); err != nil {
		t.Fatal(err)
	}
	if err := sup.Register(b); err != nil {
		t.Fatal(err)
	}
	if err := sup.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !a.started || !b.started {
		t.Fatal("expected both services started")
	}
}

func TestStartRollsBackOnFailure(t *testing.T) {
	var order []string
	a := &recordingService{name: "a", stopOrder: &order}
	b := &recordingService{name: "b", stopOrder: &order, startErr: errors.New("boom")}

	sup := New()
	_ = sup.Register(a)
	_ = sup.Register(b)

	if err := sup.Start(context.Background()); err == nil {
		t.Fatal("expected start error")
	}
	if !a.stopped {
		t.Fatal("expected already-started service a to be stopped on rollback")
	}
}

func TestStopRunsInReverseOrder(t *testing.T) {
	var order []string
	a := &recordingService{name: "a", stopOrder: &order}
	b := &recordingService{name: "b", stopOrder: &order}

	sup := New()
	_ = sup.Register(a)
	_ = sup.Register(b)
	_ = sup.Start(context.Background())
	if err := sup.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Fatalf("expected reverse stop order, got %v", order)
	}
}

func TestRegisterAfterStartFails(t *testing.T) {
	sup := New()
	_ = sup.Start(context.Background())
	if err := sup.Register(&recordingService{name: "late"}); err == nil {
		t.Fatal("expected error registering after start")
	}
}

func TestLoopRunsOnFixedInterval(t *testing.T) {
	calls := make(chan struct{}, 8)
	loop, err := NewLoop("ticker", 5*time.Millisecond, "", func(ctx context.Context) error {
		calls <- struct{}{}
		return nil
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := loop.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer loop.Stop(context.Background())

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("expected at least one loop iteration")
	}
}

func TestLoopParsesCronSpec(t *testing.T) {
	loop, err := NewLoop("nightly", 0, "0 0 * * *", func(ctx context.Context) error { return nil }, nil)
	if err != nil {
		t.Fatal(err)
	}
	if loop.schedule == nil {
		t.Fatal("expected schedule to be parsed")
	}
}

func TestLoopRejectsInvalidCronSpec(t *testing.T) {
	if _, err := NewLoop("bad", 0, "not a cron spec", func(ctx context.Context) error { return nil }, nil); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}

func TestLoopRejectsZeroIntervalWithoutCron(t *testing.T) {
	if _, err := NewLoop("bad", 0, "", func(ctx context.Context) error { return nil }, nil); err == nil {
		t.Fatal("expected error for zero interval with no cron spec")
	}
}

func TestLoopStopWaitsForExit(t *testing.T) {
	loop, err := NewLoop("stoppable", time.Millisecond, "", func(ctx context.Context) error { return nil }, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := loop.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := loop.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestFuncServiceStopCancelsRun(t *testing.T) {
	started := make(chan struct{})
	stopped := make(chan struct{})
	svc := NewFuncService("wrapped", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(stopped)
	})
	if err := svc.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := svc.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	select {
	case <-stopped:
	default:
		t.Fatal("expected run function to observe cancellation before Stop returned")
	}
}
