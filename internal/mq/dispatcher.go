package mq

import (
	"context"
	"errors"
	"log"
	"sync"
)

// ErrDispatcherClosed is returned by Dequeue after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Job is one unit of thumbnail work, keyed by file id. At most one live job
// exists per file id: enqueueing again before pickup supersedes the queued
// job instead of duplicating it.
type Job struct {
	FileID  uint64 `json:"file_id"`
	Key     string `json:"key"`
	Mime    string `json:"mime"`
	Attempt int    `json:"attempt"`
	Gen     int64  `json:"gen"`

	token string
}

// Dispatcher hands thumbnail jobs from the request path to the offload
// worker. Dequeue blocks until a job is available or ctx is done. Nack
// requeues with attempt+1 until the retry ceiling, then drops the job.
type Dispatcher interface {
	Enqueue(ctx context.Context, fileID uint64, key, mime string) error
	Dequeue(ctx context.Context) (*Job, error)
	Ack(ctx context.Context, job *Job) error
	Nack(ctx context.Context, job *Job) error
}

// MemoryDispatcher is an in-process FIFO Dispatcher used for tests and
// single-process deployments.
type MemoryDispatcher struct {
	mu       sync.Mutex
	queue    []*Job
	pending  map[uint64]*Job
	notify   chan struct{}
	retryMax int
	closed   bool
}

// NewMemoryDispatcher builds a Dispatcher with the given retry ceiling.
func NewMemoryDispatcher(retryMax int) *MemoryDispatcher {
	if retryMax < 0 {
		retryMax = 0
	}
	return &MemoryDispatcher{
		pending:  make(map[uint64]*Job),
		notify:   make(chan struct{}, 1),
		retryMax: retryMax,
	}
}

func (d *MemoryDispatcher) signal() {
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Enqueue adds a job, replacing any still-queued job for the same file id in
// place so the queue cannot grow under rapid re-uploads.
func (d *MemoryDispatcher) Enqueue(ctx context.Context, fileID uint64, key, mime string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if queued, ok := d.pending[fileID]; ok {
		queued.Key = key
		queued.Mime = mime
		queued.Attempt = 0
		queued.Gen++
		return nil
	}
	job := &Job{FileID: fileID, Key: key, Mime: mime}
	d.pending[fileID] = job
	d.queue = append(d.queue, job)
	d.signal()
	return nil
}

// Dequeue pops the oldest job, blocking while the queue is empty.
func (d *MemoryDispatcher) Dequeue(ctx context.Context) (*Job, error) {
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return nil, ErrDispatcherClosed
		}
		if len(d.queue) > 0 {
			job := d.queue[0]
			d.queue = d.queue[1:]
			delete(d.pending, job.FileID)
			if len(d.queue) > 0 {
				d.signal()
			}
			out := *job
			d.mu.Unlock()
			return &out, nil
		}
		d.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-d.notify:
		}
	}
}

// Ack removes the job permanently. The job left the queue on Dequeue, so
// there is nothing to do.
func (d *MemoryDispatcher) Ack(ctx context.Context, job *Job) error {
	return nil
}

// Nack requeues with attempt+1, or drops the job past the retry ceiling. A
// job superseded while it was being processed is dropped in favor of the
// newer content.
func (d *MemoryDispatcher) Nack(ctx context.Context, job *Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if job.Attempt+1 > d.retryMax {
		log.Printf("thumbnail job dropped after %d attempts: file %d", job.Attempt+1, job.FileID)
		return nil
	}
	if _, ok := d.pending[job.FileID]; ok {
		return nil
	}
	requeued := &Job{
		FileID:  job.FileID,
		Key:     job.Key,
		Mime:    job.Mime,
		Attempt: job.Attempt + 1,
		Gen:     job.Gen,
	}
	d.pending[job.FileID] = requeued
	d.queue = append(d.queue, requeued)
	d.signal()
	return nil
}

// Close wakes all blocked consumers and rejects further work.
func (d *MemoryDispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	close(d.notify)
}
