package worker

import (
	"context"
	"errors"
	"log"

	"golang.org/x/time/rate"

	"github.com/MayhemBill/zipline/config"
	"github.com/MayhemBill/zipline/internal/mq"
	"github.com/MayhemBill/zipline/internal/service"
	"github.com/MayhemBill/zipline/internal/storage"
)

// ThumbnailWorker drains the job queue and produces preview images. It runs
// in its own process so a slow or crashing codec never stalls uploads or
// downloads; it shares only the job queue and the storage backend with the
// request path.
type ThumbnailWorker struct {
	store   storage.Store
	jobs    mq.Dispatcher
	maxEdge int
}

// NewThumbnailWorker wires a worker.
func NewThumbnailWorker(store storage.Store, jobs mq.Dispatcher) *ThumbnailWorker {
	maxEdge := config.AppConfig.ThumbMaxEdge
	if maxEdge <= 0 {
		maxEdge = 320
	}
	return &ThumbnailWorker{store: store, jobs: jobs, maxEdge: maxEdge}
}

// Run consumes jobs until ctx is done. Dequeue is the loop's only blocking
// point; processing fans out over a bounded semaphore.
func (w *ThumbnailWorker) Run(ctx context.Context) error {
	concurrency := config.AppConfig.ThumbWorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sem := make(chan struct{}, concurrency)

	burst := config.AppConfig.ThumbBurst
	if burst <= 0 {
		burst = 1
	}
	rateLimit := config.AppConfig.ThumbRate
	var limiter *rate.Limiter
	if rateLimit <= 0 {
		limiter = rate.NewLimiter(rate.Inf, burst)
	} else {
		limiter = rate.NewLimiter(rate.Limit(rateLimit), burst)
	}

	for {
		job, err := w.jobs.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
		if err := limiter.Wait(ctx); err != nil {
			_ = w.jobs.Nack(ctx, job)
			return nil
		}
		sem <- struct{}{}
		go func(job *mq.Job) {
			defer func() { <-sem }()
			w.handle(ctx, job)
		}(job)
	}
}

// handle processes one job: ack on success or permanent failure, nack on
// transient failure so the dispatcher's retry policy applies.
func (w *ThumbnailWorker) handle(ctx context.Context, job *mq.Job) {
	if !supportedMime(job.Mime) {
		w.ack(ctx, job)
		return
	}

	src, _, err := w.store.Get(ctx, job.Key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			// Source bytes are gone; the file was deleted or replaced.
			w.ack(ctx, job)
			return
		}
		log.Printf("thumbnail worker: get %s failed: %v", job.Key, err)
		w.nack(ctx, job)
		return
	}

	buf, err := makeThumbnail(src, w.maxEdge)
	_ = src.Close()
	if err != nil {
		// Undecodable payloads do not get better with retries.
		log.Printf("thumbnail worker: decode failed for file %d: %v", job.FileID, err)
		w.ack(ctx, job)
		return
	}

	key := service.ThumbKey(job.FileID)
	size := int64(buf.Len())
	if _, err := w.store.Put(ctx, key, buf, size, storage.PutOptions{ContentType: "image/jpeg"}); err != nil {
		log.Printf("thumbnail worker: put %s failed: %v", key, err)
		w.nack(ctx, job)
		return
	}
	w.ack(ctx, job)
}

func (w *ThumbnailWorker) ack(ctx context.Context, job *mq.Job) {
	if err := w.jobs.Ack(ctx, job); err != nil {
		log.Printf("thumbnail worker: ack failed: %v", err)
	}
}

func (w *ThumbnailWorker) nack(ctx context.Context, job *mq.Job) {
	if err := w.jobs.Nack(ctx, job); err != nil {
		log.Printf("thumbnail worker: nack failed: %v", err)
	}
}
