package session

import (
	"sync"
	"testing"
	"time"

	"blastd/internal/transport"
)

func TestRegistryCreateAndGet(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	target := transport.Target{Address: "12345", Mode: transport.ModeDirect}
	s := r.Create(target)

	if s.ID == "" {
		t.Fatal("created session has empty id")
	}
	if !s.Running {
		t.Fatal("created session is not running")
	}
	if s.Target != target {
		t.Fatalf("target = %+v, want %+v", s.Target, target)
	}
	if s.StartTime.IsZero() || s.LastActivity.IsZero() {
		t.Fatal("timestamps not initialized")
	}

	got, ok := r.Get(s.ID)
	if !ok {
		t.Fatal("Get did not find the session")
	}
	if got.ID != s.ID {
		t.Fatalf("Get returned id %s, want %s", got.ID, s.ID)
	}
}

func TestRegistryGetReturnsCopy(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	s := r.Create(transport.Target{Address: "1", Mode: transport.ModeDirect})

	got, _ := r.Get(s.ID)
	got.SentCount = 99

	again, _ := r.Get(s.ID)
	if again.SentCount != 0 {
		t.Fatal("mutating a Get result leaked into the registry")
	}
}

func TestRegistryUpdate(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	s := r.Create(transport.Target{Address: "1", Mode: transport.ModeDirect})

	ok := r.Update(s.ID, func(sess *Session) {
		sess.SentCount++
		sess.Running = false
	})
	if !ok {
		t.Fatal("Update reported unknown id for an existing session")
	}
	got, _ := r.Get(s.ID)
	if got.SentCount != 1 || got.Running {
		t.Fatalf("update not applied: %+v", got)
	}

	if r.Update("nope", func(*Session) { t.Fatal("fn called for unknown id") }) {
		t.Fatal("Update reported success for unknown id")
	}
}

func TestRegistryUpdateIsAtomic(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	s := r.Create(transport.Target{Address: "1", Mode: transport.ModeDirect})

	const workers = 8
	const perWorker = 200
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				r.Update(s.ID, func(sess *Session) { sess.SentCount++ })
			}
		}()
	}
	wg.Wait()

	got, _ := r.Get(s.ID)
	if got.SentCount != workers*perWorker {
		t.Fatalf("SentCount = %d, want %d (lost updates)", got.SentCount, workers*perWorker)
	}
}

func TestRegistryTouchIsMonotonic(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	s := r.Create(transport.Target{Address: "1", Mode: transport.ModeDirect})

	future := time.Now().Add(time.Hour)
	r.Update(s.ID, func(sess *Session) { sess.LastActivity = future })
	r.Touch(s.ID)

	got, _ := r.Get(s.ID)
	if !got.LastActivity.Equal(future) {
		t.Fatalf("Touch moved LastActivity backwards: %v", got.LastActivity)
	}
}

func TestRegistryRemoveAndLen(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	s := r.Create(transport.Target{Address: "1", Mode: transport.ModeDirect})
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
	r.Remove(s.ID)
	if r.Len() != 0 {
		t.Fatalf("Len = %d after Remove, want 0", r.Len())
	}
	if _, ok := r.Get(s.ID); ok {
		t.Fatal("Get found a removed session")
	}
	r.Remove(s.ID) // no-op
}

func TestRegistryListNewestFirst(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	a := r.Create(transport.Target{Address: "a", Mode: transport.ModeDirect})
	b := r.Create(transport.Target{Address: "b", Mode: transport.ModeDirect})
	// Force a strict ordering regardless of clock resolution.
	r.Update(b.ID, func(s *Session) { s.StartTime = a.StartTime.Add(time.Second) })

	list := r.List()
	if len(list) != 2 {
		t.Fatalf("List returned %d sessions, want 2", len(list))
	}
	if list[0].ID != b.ID || list[1].ID != a.ID {
		t.Fatalf("List order = [%s %s], want newest first", list[0].Target.Address, list[1].Target.Address)
	}
}
