package timectrl

import (
	"sort"
	"sync"
	"time"
)

// SimClock is an interface for accessing simulation time. Components that
// model physical delays depend on it rather than on the wall clock, so tests
// can run cycles with zero real delay.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// After returns a channel that receives the simulation time once d has
	// elapsed in simulation time.
	After(d time.Duration) <-chan time.Time
	// Sleep blocks the caller until d has elapsed in simulation time.
	Sleep(d time.Duration)
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the loop can run while still stepping by Tick.
	Accelerated
)

func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// TimeController drives simulation time and notifies registered listeners.
// It implements SimClock.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	// currentTime tracks the current simulation time. It is updated
	// as the controller advances time.
	currentTime time.Time

	listeners []func(time.Time)
	timers    timerQueue
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// SetTime jumps simulation time to t and fires any timers that became due.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.currentTime = t
	tc.timers.fire(t)
	tc.mu.Unlock()
}

// After returns a channel that receives the simulation time once d has
// elapsed in simulation time. Timers fire as the controller ticks or when
// SetTime moves past their deadline. Implements SimClock.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.timers.add(tc.currentTime, d)
}

// Sleep blocks until simulation time has advanced by d. It only returns if
// something is advancing the controller (Start or SetTime).
func (tc *TimeController) Sleep(d time.Duration) {
	<-tc.After(d)
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller for the specified duration in a separate goroutine.
// It returns a channel that is closed when the controller finishes.
func (tc *TimeController) Start(duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		simTime := tc.StartTime
		tc.currentTime = simTime
		tc.mu.Unlock()

		elapsed := time.Duration(0)

		var ticker *time.Ticker
		if tc.Mode == RealTime {
			ticker = time.NewTicker(tc.Tick)
			defer ticker.Stop()
		}

		for {
			if duration > 0 && elapsed >= duration {
				return
			}

			if ticker != nil {
				<-ticker.C
			}
			simTime = simTime.Add(tc.Tick)
			elapsed += tc.Tick

			tc.mu.Lock()
			tc.currentTime = simTime
			tc.timers.fire(simTime)
			listeners := append(([]func(time.Time))(nil), tc.listeners...)
			tc.mu.Unlock()

			for _, fn := range listeners {
				fn(simTime)
			}
		}
	}()
	return done
}

// WallClock is a SimClock backed by the real time package.
type WallClock struct{}

func (WallClock) Now() time.Time                         { return time.Now() }
func (WallClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (WallClock) Sleep(d time.Duration)                  { time.Sleep(d) }

// VirtualClock is a manually advanced SimClock. Sleep advances the clock by
// the requested duration and returns immediately, so a simulated delay costs
// no wall time while still being visible in Now.
type VirtualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers timerQueue
}

// NewVirtualClock returns a clock reading start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{now: start}
}

func (c *VirtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *VirtualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timers.add(c.now, d)
}

// Sleep advances the clock by d.
func (c *VirtualClock) Sleep(d time.Duration) {
	c.Advance(d)
}

// Advance moves the clock forward by d and fires due timers. Negative
// durations are ignored.
func (c *VirtualClock) Advance(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.timers.fire(c.now)
}

// Pending returns the number of timers that have not fired yet.
func (c *VirtualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

type timer struct {
	at time.Time
	ch chan time.Time
}

// timerQueue is kept sorted by deadline. Callers hold the owning lock.
type timerQueue []timer

func (q *timerQueue) add(now time.Time, d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- now
		return ch
	}
	at := now.Add(d)
	i := sort.Search(len(*q), func(i int) bool { return (*q)[i].at.After(at) })
	*q = append(*q, timer{})
	copy((*q)[i+1:], (*q)[i:])
	(*q)[i] = timer{at: at, ch: ch}
	return ch
}

func (q *timerQueue) fire(now time.Time) {
	n := 0
	for n < len(*q) && !(*q)[n].at.After(now) {
		(*q)[n].ch <- now
		n++
	}
	*q = (*q)[n:]
}
