package room

import (
	"sync"
	"time"
)

// Clock runs one ticking goroutine per generation. Start while running is a no-op;
// Stop is idempotent. onTick is called without the clock lock held and must check
// Owns before acting, since a tick can race a Stop.
type Clock struct {
	mu       sync.Mutex
	interval time.Duration
	onTick   func(gen uint64)

	running bool
	gen     uint64
	quit    chan struct{}
}

// NewClock returns a stopped clock calling onTick every interval.
func NewClock(interval time.Duration, onTick func(gen uint64)) *Clock {
	if interval <= 0 {
		interval = defaultClockInterval
	}
	return &Clock{interval: interval, onTick: onTick}
}

// Start launches a new generation and reports whether it did.
func (c *Clock) Start() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return false
	}
	c.running = true
	c.gen++
	c.quit = make(chan struct{})
	go c.run(c.gen, c.quit)
	return true
}

// Stop halts the current generation and reports whether one was running.
func (c *Clock) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return false
	}
	c.running = false
	close(c.quit)
	c.quit = nil
	return true
}

// Running reports whether a generation is ticking.
func (c *Clock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Owns reports whether gen is the generation currently running.
func (c *Clock) Owns(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running && c.gen == gen
}

func (c *Clock) run(gen uint64, quit <-chan struct{}) {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-quit:
			return
		case <-t.C:
			select {
			case <-quit:
				return
			default:
			}
			if c.onTick != nil {
				c.onTick(gen)
			}
		}
	}
}
