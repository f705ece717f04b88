package sessions

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(cfg Config) (*Registry, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	r := NewRegistry(cfg)
	r.now = clock.Now
	return r, clock
}

func TestBeginTurn_CountsTurns(t *testing.T) {
	r, _ := newTestRegistry(Config{})

	s, created := r.BeginTurn("CA1", "+61400000000", "+61200000000")
	if !created {
		t.Error("expected first turn to create the session")
	}
	if s.Turns != 1 {
		t.Errorf("Turns = %d, want 1", s.Turns)
	}

	s, created = r.BeginTurn("CA1", "", "")
	if created {
		t.Error("second turn should reuse the session")
	}
	if s.Turns != 2 || s.From != "+61400000000" {
		t.Errorf("session = %+v", s)
	}

	if _, created := r.BeginTurn("CA2", "", ""); !created {
		t.Error("different call should create its own session")
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestMarkTerminalAndEnd(t *testing.T) {
	r, _ := newTestRegistry(Config{})
	var ended []Session
	r.OnEnd = func(s Session) { ended = append(ended, s) }

	r.BeginTurn("CA1", "", "")
	r.MarkTerminal("CA1", "emergency")

	s, ok := r.Get("CA1")
	if !ok || !s.Terminal || s.EndReason != "emergency" {
		t.Fatalf("Get = %+v, %v", s, ok)
	}

	final, ok := r.End("CA1", "completed")
	if !ok {
		t.Fatal("End reported unknown call")
	}
	if final.EndReason != "emergency" {
		t.Errorf("EndReason = %q, want the terminal reason kept", final.EndReason)
	}
	if _, ok := r.Get("CA1"); ok {
		t.Error("session should be removed after End")
	}
	if len(ended) != 1 || ended[0].CallID != "CA1" {
		t.Errorf("OnEnd calls = %+v", ended)
	}

	if _, ok := r.End("CA404", "completed"); ok {
		t.Error("End on unknown call should report false")
	}
	r.MarkTerminal("CA404", "x")
}

func TestPrune_TTL(t *testing.T) {
	r, clock := newTestRegistry(Config{TTL: time.Minute})
	r.BeginTurn("CA1", "", "")
	clock.Advance(30 * time.Second)
	r.BeginTurn("CA2", "", "")

	clock.Advance(45 * time.Second)
	if n := r.Prune(); n != 1 {
		t.Fatalf("Prune = %d, want 1", n)
	}
	if _, ok := r.Get("CA1"); ok {
		t.Error("CA1 should have expired")
	}
	if _, ok := r.Get("CA2"); !ok {
		t.Error("CA2 should still be live")
	}
}

func TestPrune_MaxSessions(t *testing.T) {
	r, clock := newTestRegistry(Config{MaxSessions: 2})
	var ended []string
	r.OnEnd = func(s Session) { ended = append(ended, s.CallID+":"+s.EndReason) }

	for _, id := range []string{"CA1", "CA2", "CA3"} {
		r.BeginTurn(id, "", "")
		clock.Advance(time.Second)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
	if _, ok := r.Get("CA1"); ok {
		t.Error("oldest session should be evicted")
	}
	if len(ended) != 1 || ended[0] != "CA1:evicted" {
		t.Errorf("ended = %v", ended)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry(Config{})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.BeginTurn("CA1", "", "")
		}()
	}
	wg.Wait()
	s, _ := r.Get("CA1")
	if s.Turns != 50 {
		t.Errorf("Turns = %d, want 50", s.Turns)
	}
}
