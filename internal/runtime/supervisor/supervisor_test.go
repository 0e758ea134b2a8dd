package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGoRunsAndStops(t *testing.T) {
	t.Parallel()
	s := New(context.Background())

	ran := make(chan struct{})
	s.Go("worker", func(ctx context.Context) error {
		close(ran)
		<-ctx.Done()
		return nil
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("goroutine never started")
	}
	if c := s.Counters(); c.Started != 1 || c.Active != 1 {
		t.Fatalf("counters = %+v, want started=1 active=1", c)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if c := s.Counters(); c.Active != 0 {
		t.Fatalf("active = %d after Stop, want 0", c.Active)
	}
}

func TestPanicIsContained(t *testing.T) {
	t.Parallel()
	s := New(context.Background())

	s.Go("bad", func(ctx context.Context) error { panic("boom") })
	survived := make(chan struct{})
	s.Go("good", func(ctx context.Context) error {
		close(survived)
		<-ctx.Done()
		return nil
	})

	select {
	case <-survived:
	case <-time.After(time.Second):
		t.Fatal("sibling goroutine did not survive the panic")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Cancel()
	if err := s.Wait(ctx); err == nil {
		t.Fatal("Wait did not surface the panic error")
	}
}

func TestCancelOnError(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))

	boom := errors.New("boom")
	s.Go("failing", func(ctx context.Context) error { return boom })

	select {
	case <-s.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled after goroutine error")
	}
	if !errors.Is(s.Err(), boom) {
		t.Fatalf("Err = %v, want %v", s.Err(), boom)
	}
}

func TestContextCanceledIsNotAnError(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("quits", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v (context.Canceled must not count as a failure)", err)
	}
}

func TestWaitHonorsDeadline(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	block := make(chan struct{})
	s.Go0("stuck", func(ctx context.Context) { <-block })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait = %v, want deadline exceeded", err)
	}
	close(block)
}
