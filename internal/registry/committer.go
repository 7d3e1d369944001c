package registry

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vortunix/noderegistry/internal/model"
	"github.com/vortunix/noderegistry/internal/store"
)

type commitJob struct {
	reg     model.Registry
	message string
}

// Committer writes registries to the store in the background, one at a
// time, in submission order. Requests never wait on it.
type Committer struct {
	store   store.Store
	timeout time.Duration
	log     *logrus.Entry

	mu     sync.Mutex
	closed bool
	queue  chan commitJob
	done   chan struct{}
}

func NewCommitter(st store.Store, queueSize int, timeout time.Duration) *Committer {
	if queueSize <= 0 {
		queueSize = 64
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Committer{
		store:   st,
		timeout: timeout,
		log:     logrus.WithField("component", "committer"),
		queue:   make(chan commitJob, queueSize),
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

// Submit queues a commit and returns immediately. It reports false when the
// commit was not queued because the queue is full or the committer is closed.
func (c *Committer) Submit(reg model.Registry, message string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.log.WithField("message", message).Warn("commit dropped: committer closed")
		return false
	}
	select {
	case c.queue <- commitJob{reg: reg, message: message}:
		return true
	default:
		c.log.WithField("message", message).Warn("commit dropped: queue full")
		return false
	}
}

func (c *Committer) run() {
	defer close(c.done)
	for job := range c.queue {
		c.commit(job)
	}
}

func (c *Committer) commit(job commitJob) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := time.Now()
	if err := c.store.Save(ctx, job.reg, job.message); err != nil {
		c.log.WithError(err).WithField("message", job.message).Warn("background commit failed")
		return
	}
	c.log.WithFields(logrus.Fields{
		"message": job.message,
		"elapsed": time.Since(start).String(),
	}).Debug("background commit done")
}

// Close stops accepting commits and waits for queued ones to finish or for
// ctx to expire, whichever comes first.
func (c *Committer) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
