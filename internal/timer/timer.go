package timer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Resolution is the default update frequency of the Clock. The Date header carries seconds,
// so half a second is precise enough.
const Resolution = 500 * time.Millisecond

// Clock caches the current unix-time in milliseconds, so rendering the Date header in every
// response doesn't involve a call to time.Now.
type Clock struct {
	millis atomic.Int64
	stop   chan struct{}
	once   sync.Once
}

// Start returns a running clock. The clock keeps a goroutine alive until stopped.
func Start(resolution time.Duration) *Clock {
	c := &Clock{stop: make(chan struct{})}
	// the goroutine isn't guaranteed to be scheduled immediately, so the clock mustn't
	// report zero-time in the meantime
	c.millis.Store(time.Now().UnixMilli())

	go c.tick(resolution)

	return c
}

func (c *Clock) tick(resolution time.Duration) {
	ticker := time.NewTicker(resolution)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			c.millis.Store(now.UnixMilli())
		case <-c.stop:
			return
		}
	}
}

func (c *Clock) Now() time.Time {
	return time.UnixMilli(c.millis.Load())
}

// Stop freezes the clock. It's safe to be called multiple times.
func (c *Clock) Stop() {
	c.once.Do(func() {
		close(c.stop)
	})
}
