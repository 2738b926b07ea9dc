package admission

import (
	"sync"
	"testing"
	"time"
)

func TestAdmitsUpToCeiling(t *testing.T) {
	c := New(time.Minute, 3)
	now := time.Unix(1_756_500_000, 0)

	for i := 0; i < 3; i++ {
		d := c.checkAt("alice", now)
		if !d.Admitted {
			t.Fatalf("request %d rejected below ceiling", i+1)
		}
		if d.Limit != 3 {
			t.Fatalf("limit = %d, want 3", d.Limit)
		}
		if want := 3 - (i + 1); d.Remaining != want {
			t.Fatalf("request %d: remaining = %d, want %d", i+1, d.Remaining, want)
		}
		if d.RetryAfter != 0 {
			t.Fatalf("admitted decision carries RetryAfter %v", d.RetryAfter)
		}
	}

	d := c.checkAt("alice", now.Add(time.Second))
	if d.Admitted {
		t.Fatalf("request above ceiling admitted")
	}
	if d.Remaining != 0 {
		t.Fatalf("remaining = %d on rejection, want 0", d.Remaining)
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Fatalf("RetryAfter = %v, want within (0, 1m]", d.RetryAfter)
	}
	if want := now.Add(time.Minute); !d.Reset.Equal(want) {
		t.Fatalf("Reset = %v, want %v", d.Reset, want)
	}
}

func TestWindowResets(t *testing.T) {
	c := New(time.Minute, 2)
	now := time.Unix(1_756_500_000, 0)

	c.checkAt("alice", now)
	c.checkAt("alice", now)
	if d := c.checkAt("alice", now); d.Admitted {
		t.Fatalf("third request in window admitted")
	}

	// At exactly resetAt a fresh window opens and the count restarts.
	d := c.checkAt("alice", now.Add(time.Minute))
	if !d.Admitted {
		t.Fatalf("first request of new window rejected")
	}
	if d.Remaining != 1 {
		t.Fatalf("remaining = %d after window reset, want 1", d.Remaining)
	}
}

// Rejected checks still consume budget: the window never drains while the
// caller keeps hitting it.
func TestRejectionConsumesBudget(t *testing.T) {
	c := New(time.Minute, 1)
	now := time.Unix(1_756_500_000, 0)

	c.checkAt("alice", now)
	for i := 0; i < 5; i++ {
		if d := c.checkAt("alice", now.Add(time.Duration(i)*time.Second)); d.Admitted {
			t.Fatalf("request %d admitted after ceiling hit", i)
		}
	}
}

func TestIdentitiesIsolated(t *testing.T) {
	c := New(time.Minute, 1)
	now := time.Unix(1_756_500_000, 0)

	if d := c.checkAt("alice", now); !d.Admitted {
		t.Fatalf("alice's first request rejected")
	}
	if d := c.checkAt("bob", now); !d.Admitted {
		t.Fatalf("bob throttled by alice's window")
	}
	if d := c.checkAt("alice", now); d.Admitted {
		t.Fatalf("alice's second request admitted over ceiling 1")
	}
}

func TestDefaults(t *testing.T) {
	c := New(0, 0)
	if c.length != DefaultWindow {
		t.Fatalf("length = %v, want %v", c.length, DefaultWindow)
	}
	if c.ceiling != DefaultCeiling {
		t.Fatalf("ceiling = %d, want %d", c.ceiling, DefaultCeiling)
	}
}

func TestReset(t *testing.T) {
	c := New(time.Minute, 1)
	now := time.Unix(1_756_500_000, 0)

	c.checkAt("alice", now)
	if d := c.checkAt("alice", now); d.Admitted {
		t.Fatalf("over-ceiling request admitted before Reset")
	}
	c.Reset()
	if d := c.checkAt("alice", now); !d.Admitted {
		t.Fatalf("request rejected after Reset")
	}
}

// The ceiling must hold exactly under concurrent checks: with N goroutines
// racing on one identity, precisely ceiling of them are admitted.
func TestConcurrentCeiling(t *testing.T) {
	const (
		ceiling = 16
		workers = 100
	)
	c := New(time.Minute, ceiling)
	now := time.Unix(1_756_500_000, 0)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d := c.checkAt("alice", now); d.Admitted {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != ceiling {
		t.Fatalf("admitted %d of %d concurrent checks, want exactly %d", admitted, workers, ceiling)
	}
}
