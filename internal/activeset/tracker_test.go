package activeset

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/paywatch/internal/model"
)

func ev(source, key string, postedAt int64) model.Event {
	return model.Event{SourceID: source, Key: key, PostedAtMs: postedAt}
}

func keys(t *testing.T, tr *Tracker, source string) []string {
	t.Helper()
	events, err := tr.Active(context.Background(), source)
	if err != nil {
		t.Fatalf("Active: %v", err)
	}
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Key
	}
	return out
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPost_DeliveryOrder(t *testing.T) {
	tr := New()
	tr.Post(ev("s", "a", 100))
	tr.Post(ev("s", "b", 100))
	tr.Post(ev("other", "x", 1))

	if got := keys(t, tr, "s"); !equalKeys(got, []string{"a", "b"}) {
		t.Errorf("Active = %v, want [a b]", got)
	}

	// Re-posting a key moves it to the most recent delivery.
	tr.Post(ev("s", "a", 200))
	if got := keys(t, tr, "s"); !equalKeys(got, []string{"b", "a"}) {
		t.Errorf("Active after repost = %v, want [b a]", got)
	}
	events, _ := tr.Active(context.Background(), "s")
	if events[1].PostedAtMs != 200 {
		t.Errorf("repost did not replace event: %+v", events[1])
	}
}

func TestPost_IgnoresIncomplete(t *testing.T) {
	tr := New()
	tr.Post(model.Event{SourceID: "s"})
	tr.Post(model.Event{Key: "k"})
	if tr.Len("s") != 0 {
		t.Errorf("Len = %d, want 0", tr.Len("s"))
	}
}

func TestRemove(t *testing.T) {
	tr := New()
	tr.Post(ev("s", "a", 1))
	if !tr.Remove("s", "a") {
		t.Error("Remove(existing) = false")
	}
	if tr.Remove("s", "a") {
		t.Error("Remove(already removed) = true")
	}
	if tr.Remove("nope", "a") {
		t.Error("Remove(unknown source) = true")
	}
	events, err := tr.Active(context.Background(), "s")
	if err != nil || events == nil || len(events) != 0 {
		t.Errorf("Active = %v, %v; want empty non-nil", events, err)
	}
}

func TestReplace(t *testing.T) {
	tr := New()
	tr.Post(ev("s", "a", 1))
	tr.Post(ev("s", "b", 2))

	changed := ev("s", "b", 3)
	tr.Replace("s", []model.Event{changed, ev("s", "c", 4), ev("s", "a", 1), ev("other", "x", 9)})

	// a is unchanged and keeps its position; b changed and c is new, in the given order.
	if got := keys(t, tr, "s"); !equalKeys(got, []string{"a", "b", "c"}) {
		t.Errorf("Active after Replace = %v, want [a b c]", got)
	}
	if tr.Len("other") != 0 {
		t.Error("Replace accepted an event for another source")
	}

	tr.Replace("s", nil)
	if tr.Len("s") != 0 {
		t.Errorf("Len after empty Replace = %d", tr.Len("s"))
	}
}

func TestSweep_ExpiresAndNotifies(t *testing.T) {
	tr := New()
	clock := time.Unix(1000, 0)
	tr.now = func() time.Time { return clock }

	tr.Post(ev("s", "old", 1))
	tr.Post(ev("t", "old", 1))
	clock = clock.Add(90 * time.Minute)
	tr.Post(ev("s", "fresh", 2))
	clock = clock.Add(45 * time.Minute)

	var expired []string
	tr.sweep(&ReaperConfig{TTL: time.Hour, OnExpire: func(id string) { expired = append(expired, id) }})

	if got := keys(t, tr, "s"); !equalKeys(got, []string{"fresh"}) {
		t.Errorf("Active(s) after sweep = %v, want [fresh]", got)
	}
	if !equalKeys(expired, []string{"s", "t"}) {
		t.Errorf("OnExpire calls = %v, want [s t]", expired)
	}

	expired = nil
	tr.sweep(&ReaperConfig{TTL: time.Hour, OnExpire: func(id string) { expired = append(expired, id) }})
	if len(expired) != 0 {
		t.Errorf("second sweep expired %v", expired)
	}
}

func TestReaper_StartStop(t *testing.T) {
	tr := New()
	tr.Post(ev("s", "a", 1))

	done := make(chan string, 1)
	tr.StartReaper(&ReaperConfig{
		TTL:           time.Nanosecond,
		SweepInterval: 5 * time.Millisecond,
		OnExpire:      func(id string) { done <- id },
	})
	defer tr.Stop()

	select {
	case id := <-done:
		if id != "s" {
			t.Errorf("OnExpire(%q), want s", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not expire event")
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			tr.Post(ev("s", key, int64(i)))
			_, _ = tr.Active(context.Background(), "s")
			if i%2 == 0 {
				tr.Remove("s", key)
			}
		}(i)
	}
	wg.Wait()
	if got := tr.Len("s"); got != 5 {
		t.Errorf("Len = %d, want 5", got)
	}
}
