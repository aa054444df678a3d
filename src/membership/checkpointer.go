package membership

import (
	"sync"

	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/peers"
	"github.com/sirupsen/logrus"
)

// Checkpointer writes membership snapshots of one group in the background.
//
// Notify never blocks. Only the latest pending snapshot is kept: if several
// admissions happen while a write is in progress, the next write carries the
// state after all of them. A failed write is logged and dropped; the
// following Notify retries with fresh state.
type Checkpointer struct {
	id        peers.GroupID
	persister Persister
	logger    *logrus.Entry

	mu         sync.Mutex
	idle       *sync.Cond
	pending    Snapshot
	hasPending bool
	inflight   bool
	closed     bool
	failures   int

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// NewCheckpointer starts the writer goroutine. The Checkpointer takes
// ownership of the persister and closes it in Close.
func NewCheckpointer(id peers.GroupID, persister Persister, logger *logrus.Entry) *Checkpointer {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	c := &Checkpointer{
		id:        id,
		persister: persister,
		logger:    logger.WithField("group", id.String()),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	c.idle = sync.NewCond(&c.mu)

	go c.run()

	return c
}

// Notify schedules snap to be written. The snapshot is copied.
func (c *Checkpointer) Notify(snap Snapshot) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.pending = snap.Copy()
	c.hasPending = true
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Flush waits until every notified snapshot has been handled.
func (c *Checkpointer) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.hasPending || c.inflight {
		c.idle.Wait()
	}
}

// Failures returns the number of failed writes so far.
func (c *Checkpointer) Failures() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failures
}

// Close writes the pending snapshot, stops the writer and closes the
// persister. Notify calls after Close are ignored.
func (c *Checkpointer) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.quit)
	<-c.done

	return c.persister.Close()
}

func (c *Checkpointer) run() {
	defer close(c.done)
	for {
		select {
		case <-c.wake:
			c.drain()
		case <-c.quit:
			c.drain()
			return
		}
	}
}

func (c *Checkpointer) drain() {
	for {
		c.mu.Lock()
		if !c.hasPending {
			c.inflight = false
			c.idle.Broadcast()
			c.mu.Unlock()
			return
		}
		snap := c.pending
		c.pending = nil
		c.hasPending = false
		c.inflight = true
		c.mu.Unlock()

		if err := c.persister.Write(c.id, snap); err != nil {
			werr := common.NewAdmissionErr("Checkpointer", common.PersistenceWriteFailed, c.id.String()).WithCause(err)
			c.logger.WithError(werr).Error("Writing membership snapshot")

			c.mu.Lock()
			c.failures++
			c.mu.Unlock()
			continue
		}

		c.logger.WithField("members", len(snap)).Debug("Membership snapshot written")
	}
}
