package node

import (
	"context"
	"math/rand"
	"time"
)

type timerFactory func(time.Duration) <-chan time.Time

// ControlTimer ticks at a jittered period. The heartbeat loop uses it so that
// members started together do not beat in lockstep.
type ControlTimer struct {
	timerFactory timerFactory
	tickCh       chan struct{} //sends a signal to listening process
}

// NewControlTimer creates a ControlTimer that draws its timers from
// timerFactory.
func NewControlTimer(timerFactory timerFactory) *ControlTimer {
	return &ControlTimer{
		timerFactory: timerFactory,
		tickCh:       make(chan struct{}),
	}
}

// NewRandomControlTimer returns a ControlTimer whose period is picked at
// random between min and 2*min.
func NewRandomControlTimer() *ControlTimer {
	randomTimeout := func(min time.Duration) <-chan time.Time {
		if min <= 0 {
			return nil
		}
		extra := (time.Duration(rand.Int63()) % min)
		return time.After(min + extra)
	}
	return NewControlTimer(randomTimeout)
}

// Ticks returns the channel that receives a signal at every period.
func (c *ControlTimer) Ticks() <-chan struct{} {
	return c.tickCh
}

// Run drives the timer until ctx is done.
func (c *ControlTimer) Run(ctx context.Context, period time.Duration) {
	timer := c.timerFactory(period)
	for {
		select {
		case <-timer:
			select {
			case c.tickCh <- struct{}{}:
			case <-ctx.Done():
				return
			}
			timer = c.timerFactory(period)
		case <-ctx.Done():
			return
		}
	}
}
