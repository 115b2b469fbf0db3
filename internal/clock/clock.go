package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time. Managers compare stored deadlines against
// it every tick instead of blocking, so tests can drive time explicitly.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns a Clock backed by time.Now.
func System() Clock { return systemClock{} }

// Fake is a manually advanced Clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a Fake clock starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}
