package worker

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
	"time"

	"github.com/MayhemBill/zipline/internal/mq"
	"github.com/MayhemBill/zipline/internal/service"
	"github.com/MayhemBill/zipline/internal/storage"
)

func newTestWorker(t *testing.T) (*ThumbnailWorker, *storage.LocalStore, *mq.MemoryDispatcher) {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	jobs := mq.NewMemoryDispatcher(3)
	return &ThumbnailWorker{store: store, jobs: jobs, maxEdge: 64}, store, jobs
}

func encodePNG(t *testing.T, width, height int) *bytes.Buffer {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func putObject(t *testing.T, store *storage.LocalStore, key string, buf *bytes.Buffer, contentType string) {
	t.Helper()
	size := int64(buf.Len())
	if _, err := store.Put(context.Background(), key, buf, size, storage.PutOptions{ContentType: contentType}); err != nil {
		t.Fatal(err)
	}
}

// TestWorkerProducesThumbnail tests that a decodable source yields a bounded
// JPEG under the derived key.
func TestWorkerProducesThumbnail(t *testing.T) {
	w, store, jobs := newTestWorker(t)
	ctx := context.Background()

	putObject(t, store, "files/1/big.png", encodePNG(t, 200, 100), "image/png")
	if err := jobs.Enqueue(ctx, 42, "files/1/big.png", "image/png"); err != nil {
		t.Fatal(err)
	}
	job, err := jobs.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	w.handle(ctx, job)

	reader, _, err := store.Get(ctx, service.ThumbKey(42))
	if err != nil {
		t.Fatalf("thumbnail missing: %v", err)
	}
	defer reader.Close()
	thumb, err := jpeg.Decode(reader)
	if err != nil {
		t.Fatalf("thumbnail not a jpeg: %v", err)
	}
	bounds := thumb.Bounds()
	if bounds.Dx() != 64 || bounds.Dy() != 32 {
		t.Fatalf("thumbnail bounds = %dx%d, want 64x32", bounds.Dx(), bounds.Dy())
	}
}

// TestWorkerIdempotentRerun tests that reprocessing the same file overwrites
// the thumbnail at the same key.
func TestWorkerIdempotentRerun(t *testing.T) {
	w, store, jobs := newTestWorker(t)
	ctx := context.Background()

	putObject(t, store, "files/1/pic.png", encodePNG(t, 80, 80), "image/png")
	for i := 0; i < 2; i++ {
		if err := jobs.Enqueue(ctx, 7, "files/1/pic.png", "image/png"); err != nil {
			t.Fatal(err)
		}
		job, err := jobs.Dequeue(ctx)
		if err != nil {
			t.Fatal(err)
		}
		w.handle(ctx, job)
	}

	if exists, _ := store.Exists(ctx, service.ThumbKey(7)); !exists {
		t.Fatal("thumbnail missing after rerun")
	}
}

// TestWorkerUnsupportedMime tests that non-image uploads are acked without an
// artifact.
func TestWorkerUnsupportedMime(t *testing.T) {
	w, store, jobs := newTestWorker(t)
	ctx := context.Background()

	putObject(t, store, "files/1/doc.pdf", bytes.NewBufferString("%PDF-1.4"), "application/pdf")
	if err := jobs.Enqueue(ctx, 9, "files/1/doc.pdf", "application/pdf"); err != nil {
		t.Fatal(err)
	}
	job, err := jobs.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	w.handle(ctx, job)

	if exists, _ := store.Exists(ctx, service.ThumbKey(9)); exists {
		t.Fatal("artifact produced for unsupported mime")
	}
	assertQueueEmpty(t, jobs)
}

// TestWorkerCorruptPayload tests that an undecodable image is dropped instead
// of retried.
func TestWorkerCorruptPayload(t *testing.T) {
	w, store, jobs := newTestWorker(t)
	ctx := context.Background()

	putObject(t, store, "files/1/fake.png", bytes.NewBufferString("not a png"), "image/png")
	if err := jobs.Enqueue(ctx, 11, "files/1/fake.png", "image/png"); err != nil {
		t.Fatal(err)
	}
	job, err := jobs.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	w.handle(ctx, job)

	if exists, _ := store.Exists(ctx, service.ThumbKey(11)); exists {
		t.Fatal("artifact produced from corrupt payload")
	}
	assertQueueEmpty(t, jobs)
}

// TestWorkerMissingSource tests that a job for deleted bytes is acked, not
// retried.
func TestWorkerMissingSource(t *testing.T) {
	w, store, jobs := newTestWorker(t)
	ctx := context.Background()

	if err := jobs.Enqueue(ctx, 13, "files/1/deleted.png", "image/png"); err != nil {
		t.Fatal(err)
	}
	job, err := jobs.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	w.handle(ctx, job)

	if exists, _ := store.Exists(ctx, service.ThumbKey(13)); exists {
		t.Fatal("artifact produced without source")
	}
	assertQueueEmpty(t, jobs)
}

// TestWorkerRunDrainsQueue tests the full loop end to end.
func TestWorkerRunDrainsQueue(t *testing.T) {
	w, store, jobs := newTestWorker(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	putObject(t, store, "files/1/a.png", encodePNG(t, 30, 30), "image/png")
	putObject(t, store, "files/1/b.png", encodePNG(t, 40, 40), "image/png")
	if err := jobs.Enqueue(ctx, 1, "files/1/a.png", "image/png"); err != nil {
		t.Fatal(err)
	}
	if err := jobs.Enqueue(ctx, 2, "files/1/b.png", "image/png"); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		first, _ := store.Exists(ctx, service.ThumbKey(1))
		second, _ := store.Exists(ctx, service.ThumbKey(2))
		if first && second {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("thumbnails not produced in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func assertQueueEmpty(t *testing.T, jobs *mq.MemoryDispatcher) {
	t.Helper()
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := jobs.Dequeue(canceled); err == nil {
		t.Fatal("queue not empty")
	}
}
