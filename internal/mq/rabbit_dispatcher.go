package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/MayhemBill/zipline/config"
)

// RabbitDispatcher is the broker-backed Dispatcher. RabbitMQ cannot replace
// a queued message in place, so supersede runs through a Redis generation
// counter per file id: Enqueue bumps it and stamps the job, Dequeue drops
// any delivery carrying a stale generation.
type RabbitDispatcher struct {
	client     *Client
	rdb        *redis.Client
	deliveries <-chan amqp.Delivery

	mu       sync.Mutex
	inflight map[string]amqp.Delivery

	retryMax int
	delays   []time.Duration
}

// NewRabbitDispatcher dials the broker, declares the topology and starts
// consuming the thumbnail queue.
func NewRabbitDispatcher(rdb *redis.Client) (*RabbitDispatcher, error) {
	client, err := Dial()
	if err != nil {
		return nil, err
	}
	if err := client.DeclareTopology(); err != nil {
		client.Close()
		return nil, err
	}

	prefetch := config.AppConfig.RabbitMQPrefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := client.Channel.Qos(prefetch, 0, false); err != nil {
		client.Close()
		return nil, err
	}
	deliveries, err := client.Channel.Consume(
		QueueThumbs,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		client.Close()
		return nil, err
	}

	retryMax := config.AppConfig.ThumbRetryMax
	if retryMax < 0 {
		retryMax = 0
	}
	return &RabbitDispatcher{
		client:     client,
		rdb:        rdb,
		deliveries: deliveries,
		inflight:   make(map[string]amqp.Delivery),
		retryMax:   retryMax,
		delays:     config.AppConfig.ThumbRetryDelays,
	}, nil
}

// NewRabbitPublisher returns a publish-only dispatcher for the request path.
// Dequeue must not be called on it.
func NewRabbitPublisher(rdb *redis.Client) (*RabbitDispatcher, error) {
	client, err := GetPublisher()
	if err != nil {
		return nil, err
	}
	retryMax := config.AppConfig.ThumbRetryMax
	if retryMax < 0 {
		retryMax = 0
	}
	return &RabbitDispatcher{
		client:   client,
		rdb:      rdb,
		inflight: make(map[string]amqp.Delivery),
		retryMax: retryMax,
		delays:   config.AppConfig.ThumbRetryDelays,
	}, nil
}

func genKey(fileID uint64) string {
	return fmt.Sprintf("thumb:gen:%d", fileID)
}

// Enqueue publishes a job stamped with the next generation for its file id.
func (d *RabbitDispatcher) Enqueue(ctx context.Context, fileID uint64, key, mime string) error {
	var gen int64 = 1
	if d.rdb != nil {
		v, err := d.rdb.Incr(ctx, genKey(fileID)).Result()
		if err != nil {
			return err
		}
		gen = v
	}
	job := Job{FileID: fileID, Key: key, Mime: mime, Gen: gen}
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.client.PublishThumb(ctx, body)
}

// stale reports whether a newer job for the same file id has been enqueued
// since this one.
func (d *RabbitDispatcher) stale(ctx context.Context, job *Job) bool {
	if d.rdb == nil {
		return false
	}
	raw, err := d.rdb.Get(ctx, genKey(job.FileID)).Result()
	if err != nil {
		return false
	}
	current, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return current > job.Gen
}

// Dequeue returns the next live job, acking and skipping superseded ones.
func (d *RabbitDispatcher) Dequeue(ctx context.Context) (*Job, error) {
	if d.deliveries == nil {
		return nil, errors.New("dispatcher is publish-only")
	}
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case delivery, ok := <-d.deliveries:
			if !ok {
				return nil, ErrDispatcherClosed
			}
			var job Job
			if err := json.Unmarshal(delivery.Body, &job); err != nil {
				log.Printf("thumbnail dispatcher: invalid message: %v", err)
				_ = delivery.Ack(false)
				continue
			}
			if d.stale(ctx, &job) {
				_ = delivery.Ack(false)
				continue
			}
			job.token = uuid.NewString()
			d.mu.Lock()
			d.inflight[job.token] = delivery
			d.mu.Unlock()
			return &job, nil
		}
	}
}

func (d *RabbitDispatcher) take(job *Job) (amqp.Delivery, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delivery, ok := d.inflight[job.token]
	if ok {
		delete(d.inflight, job.token)
	}
	return delivery, ok
}

// Ack removes the job permanently.
func (d *RabbitDispatcher) Ack(ctx context.Context, job *Job) error {
	delivery, ok := d.take(job)
	if !ok {
		return nil
	}
	return delivery.Ack(false)
}

// Nack republishes the job through the delayed retry queue with attempt+1,
// or dead-letters it past the retry ceiling.
func (d *RabbitDispatcher) Nack(ctx context.Context, job *Job) error {
	delivery, ok := d.take(job)
	if !ok {
		return nil
	}

	nextAttempt := job.Attempt + 1
	if nextAttempt > d.retryMax {
		log.Printf("thumbnail job dropped after %d attempts: file %d", nextAttempt, job.FileID)
		body, err := json.Marshal(job)
		if err == nil {
			if err := d.client.PublishDLQ(ctx, body); err != nil {
				log.Printf("thumbnail dispatcher: dlq publish failed: %v", err)
			}
		}
		return delivery.Ack(false)
	}

	retry := Job{
		FileID:  job.FileID,
		Key:     job.Key,
		Mime:    job.Mime,
		Attempt: nextAttempt,
		Gen:     job.Gen,
	}
	body, err := json.Marshal(retry)
	if err != nil {
		return delivery.Nack(false, true)
	}
	if err := d.client.PublishRetry(ctx, body, pickRetryDelay(nextAttempt, d.delays)); err != nil {
		return delivery.Nack(false, true)
	}
	return delivery.Ack(false)
}

// Close tears down the broker connection.
func (d *RabbitDispatcher) Close() {
	d.client.Close()
}

func pickRetryDelay(attempt int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	index := attempt - 1
	if index < 0 {
		index = 0
	}
	if index >= len(delays) {
		index = len(delays) - 1
	}
	return delays[index]
}
