package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestFakeAfterFuncFiresOnAdvance(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(time.Second, func() { fired++ })

	c.Advance(999 * time.Millisecond)
	if fired != 0 {
		t.Fatalf("fired early")
	}
	c.Advance(time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	c.Advance(time.Hour)
	if fired != 1 {
		t.Fatalf("one-shot timer fired %d times", fired)
	}
}

func TestFakeOrder(t *testing.T) {
	c := Fake(epoch)
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(5 * time.Second)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("order = %v", order)
	}
}

func TestFakeStopAndReset(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	tm := c.AfterFunc(time.Second, func() { fired++ })

	if !tm.Stop() {
		t.Fatal("Stop on pending timer returned false")
	}
	if tm.Stop() {
		t.Fatal("second Stop returned true")
	}
	c.Advance(2 * time.Second)
	if fired != 0 {
		t.Fatal("stopped timer fired")
	}

	if tm.Reset(time.Second) {
		t.Fatal("Reset on stopped timer reported active")
	}
	if c.Pending() != 1 {
		t.Fatalf("pending = %d after reset", c.Pending())
	}
	c.Advance(500 * time.Millisecond)
	// Restart before deadline: fires one second after this point.
	tm.Reset(time.Second)
	c.Advance(700 * time.Millisecond)
	if fired != 0 {
		t.Fatal("reset timer fired at old deadline")
	}
	c.Advance(300 * time.Millisecond)
	if fired != 1 {
		t.Fatalf("fired = %d after reset deadline", fired)
	}
}

func TestFakeCallbackCanRearm(t *testing.T) {
	c := Fake(epoch)
	count := 0
	var tm *Timer
	tm = c.AfterFunc(time.Second, func() {
		count++
		if count < 3 {
			tm.Reset(time.Second)
		}
	})
	c.Advance(10 * time.Second)
	// A timer rearmed from its callback is due relative to the new time.
	if count != 1 {
		t.Fatalf("count = %d after first advance, want 1", count)
	}
	c.Advance(time.Second)
	c.Advance(time.Second)
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestFakeTicker(t *testing.T) {
	c := Fake(epoch)
	tk := c.NewTicker(100 * time.Millisecond)
	defer tk.Stop()

	c.Advance(100 * time.Millisecond)
	select {
	case got := <-tk.C:
		if !got.Equal(epoch.Add(100 * time.Millisecond)) {
			t.Errorf("tick at %v", got)
		}
	default:
		t.Fatal("no tick")
	}

	tk.Stop()
	c.Advance(time.Second)
	select {
	case <-tk.C:
		t.Fatal("tick after stop")
	default:
	}
}

func TestWaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})
	go func() {
		c.AfterFunc(time.Second, func() { close(done) })
	}()
	c.WaitForTimers(1)
	c.Advance(time.Second)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for callback")
	}
}
