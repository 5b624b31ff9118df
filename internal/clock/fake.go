package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock only moves when Advance is called. Due AfterFunc callbacks
// run synchronously inside Advance, in deadline order. A callback must
// not call Advance.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
	changed *sync.Cond
}

type fakeTimer struct {
	at       time.Time
	fn       func()
	tick     chan time.Time
	interval time.Duration
	active   bool
}

// Fake returns a FakeClock that reads start until advanced.
func Fake(start time.Time) *FakeClock {
	c := &FakeClock{now: start}
	c.changed = sync.NewCond(&c.mu)
	return c
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	ft := &fakeTimer{fn: f}
	c.mu.Lock()
	c.scheduleLocked(ft, d)
	c.mu.Unlock()
	if d <= 0 {
		c.Advance(0)
	}
	return &Timer{
		stop: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.unscheduleLocked(ft)
		},
		reset: func(d time.Duration) bool {
			c.mu.Lock()
			wasActive := c.unscheduleLocked(ft)
			c.scheduleLocked(ft, d)
			c.mu.Unlock()
			if d <= 0 {
				c.Advance(0)
			}
			return wasActive
		},
	}
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive ticker interval")
	}
	ch := make(chan time.Time, 1)
	ft := &fakeTimer{tick: ch, interval: d}
	c.mu.Lock()
	c.scheduleLocked(ft, d)
	c.mu.Unlock()
	return &Ticker{
		C: ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.unscheduleLocked(ft)
		},
	}
}

// Advance moves the clock forward by d and fires everything that came due.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()

	for {
		ft, at, ok := c.popDue()
		if !ok {
			return
		}
		if ft.fn != nil {
			ft.fn()
			continue
		}
		select {
		case ft.tick <- at:
		default:
		}
	}
}

// popDue removes the earliest due timer, rescheduling tickers.
func (c *FakeClock) popDue() (*fakeTimer, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 || c.pending[0].at.After(c.now) {
		return nil, time.Time{}, false
	}
	ft := c.pending[0]
	at := ft.at
	c.pending = c.pending[1:]
	ft.active = false
	if ft.interval > 0 {
		ft.at = at.Add(ft.interval)
		c.insertLocked(ft)
	}
	return ft, at, true
}

// WaitForTimers blocks until at least n timers or tickers are pending.
// Tests use it to wait for a goroutine to arm a timer before advancing.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.pending) < n {
		c.changed.Wait()
	}
}

// Pending returns how many timers and tickers are armed.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *FakeClock) scheduleLocked(ft *fakeTimer, d time.Duration) {
	ft.at = c.now.Add(d)
	c.insertLocked(ft)
}

func (c *FakeClock) insertLocked(ft *fakeTimer) {
	i := sort.Search(len(c.pending), func(i int) bool {
		return c.pending[i].at.After(ft.at)
	})
	c.pending = append(c.pending, nil)
	copy(c.pending[i+1:], c.pending[i:])
	c.pending[i] = ft
	ft.active = true
	c.changed.Broadcast()
}

func (c *FakeClock) unscheduleLocked(ft *fakeTimer) bool {
	if !ft.active {
		return false
	}
	for i, p := range c.pending {
		if p == ft {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			break
		}
	}
	ft.active = false
	return true
}
