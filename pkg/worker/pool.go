// Package worker provides an asynchronous worker pool that records finished
// chat turns: it persists the session snapshot through a storage.Driver and
// publishes a turn event through an eventstream.Publisher.
//
// The pool decouples storage and publishing from the turn loop so a slow
// database or broker never delays a streamed reply.
package worker

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/parlor/pkg/eventstream"
	"github.com/papercomputeco/parlor/pkg/logger"
	"github.com/papercomputeco/parlor/pkg/storage"
	"github.com/papercomputeco/parlor/pkg/turn"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
	defaultJobTimeout        = 30 * time.Second
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	Record turn.Record
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting session snapshots.
	Driver storage.Driver

	// Publisher is the optional event stream for recorded turns.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of each worker's buffered job channel
	// (defaults to 256).
	QueueSize uint

	// JobTimeout bounds the storage and publish calls of one job.
	JobTimeout time.Duration

	// Logger is the provided logger
	Logger *slog.Logger
}

// Pool processes turn records asynchronously. Jobs of one session always go
// to the same worker, so its snapshots are saved in the order they were taken.
type Pool struct {
	config *Config
	queues []chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, fmt.Errorf("worker pool requires a storage driver")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.JobTimeout == 0 {
		c.JobTimeout = defaultJobTimeout
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queues: make([]chan Job, c.NumWorkers),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		wp.queues[i] = make(chan Job, c.QueueSize)
		go wp.worker(i)
	}

	return wp, nil
}

// Record implements turn.Recorder by enqueueing the record.
func (p *Pool) Record(rec turn.Record) {
	p.Enqueue(Job{Record: rec})
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is
// closed, resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed",
			"session_id", job.Record.SessionID,
		)
		return false
	}

	select {
	case p.queues[p.shard(job.Record.SessionID)] <- job:
		p.logger.Debug("job queued",
			"session_id", job.Record.SessionID,
			"outcome", job.Record.Outcome,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"session_id", job.Record.SessionID,
			"outcome", job.Record.Outcome,
		)
		return false
	}
}

func (p *Pool) shard(sessionID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return int(h.Sum32() % uint32(len(p.queues)))
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the HTTP server has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off its queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queues[id] {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

// processJob saves the snapshot, if any, and publishes the turn event.
// Failures are logged; a failed publish does not undo the save.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.JobTimeout)
	defer cancel()

	rec := job.Record

	if rec.Snapshot != nil {
		if err := p.config.Driver.Save(ctx, rec.Snapshot); err != nil {
			p.logger.Error("session snapshot storage failed",
				"session_id", rec.SessionID,
				"error", err,
			)
		} else {
			p.logger.Debug("session snapshot stored",
				"session_id", rec.SessionID,
				"conversations", len(rec.Snapshot.Conversations),
			)
		}
	}

	if p.config.Publisher == nil {
		return
	}

	if err := p.config.Publisher.PublishTurn(ctx, NewEvent(rec)); err != nil {
		p.logger.Warn("turn event publish failed",
			"session_id", rec.SessionID,
			"error", err,
		)
	}
}

// NewEvent converts a turn record into its event stream payload.
func NewEvent(rec turn.Record) *eventstream.TurnRecordedEvent {
	meta := eventstream.TurnMeta{
		Question:    rec.Question,
		Outcome:     rec.Outcome,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
		DurationMs:  rec.CompletedAt.Sub(rec.StartedAt).Milliseconds(),
		Chunks:      rec.Chunks,
	}
	if rec.Err != nil {
		meta.Error = rec.Err.Error()
	}

	return eventstream.NewTurnRecordedEvent(
		eventstream.EventSource{AgentName: rec.AgentName, Provider: rec.Provider},
		eventstream.SessionMeta{ID: rec.SessionID, Conversation: rec.Conversation},
		meta,
		rec.Reply,
	)
}
