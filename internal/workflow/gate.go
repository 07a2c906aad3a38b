package workflow

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Gate is the propagation wait after a confirmed submission.
// It fires once, after the full delay, and can only be cancelled by a session reset.
type Gate struct {
	clock clock.Clock
	delay time.Duration

	mu       sync.Mutex
	timer    *clock.Timer
	deadline time.Time
	gen      uint64
}

// NewGate creates a gate of the given delay
func NewGate(clk clock.Clock, delay time.Duration) *Gate {
	return &Gate{clock: clk, delay: delay}
}

// Delay returns the configured wait
func (g *Gate) Delay() time.Duration {
	return g.delay
}

// Start arms the gate. onReady runs once the delay elapsed, never on the
// caller's goroutine. A running countdown is replaced.
func (g *Gate) Start(onReady func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.stopLocked()
	g.deadline = g.clock.Now().Add(g.delay)
	if g.delay <= 0 {
		go onReady()
		return
	}
	gen := g.gen
	g.timer = g.clock.AfterFunc(g.delay, func() {
		g.mu.Lock()
		if gen != g.gen {
			g.mu.Unlock()
			return
		}
		g.timer = nil
		g.mu.Unlock()
		onReady()
	})
}

// Remaining returns the time left, zero when not running
func (g *Gate) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.timer == nil {
		return 0
	}
	if left := g.deadline.Sub(g.clock.Now()); left > 0 {
		return left
	}
	return 0
}

// Cancel disarms the gate without firing it
func (g *Gate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopLocked()
}

func (g *Gate) stopLocked() {
	g.gen++
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
