package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MayhemBill/zipline/internal/mq"
	"github.com/MayhemBill/zipline/internal/repo"
	"github.com/MayhemBill/zipline/internal/storage"
	"github.com/MayhemBill/zipline/model"
)

// newTestFileService builds a FileService over in-memory repositories, a
// temp-dir local store and an in-process dispatcher.
func newTestFileService(t *testing.T) (*FileService, *repo.MemoryFileRepository, *storage.LocalStore, *mq.MemoryDispatcher, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	files := repo.NewMemoryFileRepository()
	folders := repo.NewMemoryFolderRepository()
	jobs := mq.NewMemoryDispatcher(3)
	return NewFileService(files, folders, store, jobs), files, store, jobs, dir
}

func ingestTestFile(t *testing.T, svc *FileService, req IngestRequest, content string) *model.File {
	t.Helper()
	file, err := svc.Ingest(context.Background(), bytes.NewReader([]byte(content)), req)
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}
	return file
}

// TestIngestAndOpen tests the upload-then-download round trip.
func TestIngestAndOpen(t *testing.T) {
	svc, _, _, jobs, _ := newTestFileService(t)
	ctx := context.Background()

	file := ingestTestFile(t, svc, IngestRequest{
		Name:       "hello.txt",
		Size:       5,
		OwnerID:    1,
		Visibility: model.VisibilityPublic,
	}, "hello")

	if file.StorageKey == "" {
		t.Fatal("storage key is empty")
	}
	if file.Size != 5 {
		t.Fatalf("size = %d, want 5", file.Size)
	}

	got, reader, info, err := svc.Open(ctx, file.ID, AccessContext{})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("content = %q, want hello", data)
	}
	if info.Size != 5 {
		t.Fatalf("info size = %d, want 5", info.Size)
	}
	if got.ID != file.ID {
		t.Fatalf("opened wrong file: %d", got.ID)
	}

	// The upload queued exactly one thumbnail job.
	job, err := jobs.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if job.FileID != file.ID || job.Key != file.StorageKey {
		t.Fatalf("unexpected job %+v", job)
	}
}

// TestIngestEmptyName tests that a nameless upload has no side effects.
func TestIngestEmptyName(t *testing.T) {
	svc, _, _, jobs, dir := newTestFileService(t)

	_, err := svc.Ingest(context.Background(), bytes.NewReader([]byte("data")), IngestRequest{
		Name:    "   ",
		OwnerID: 1,
	})
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("storage root not empty: %v", entries)
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := jobs.Dequeue(canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected empty queue, got %v", err)
	}
}

// TestRecordViewLimit tests that a view limit admits exactly N views under
// concurrency.
func TestRecordViewLimit(t *testing.T) {
	svc, _, _, _, _ := newTestFileService(t)
	ctx := context.Background()

	maxViews := int64(5)
	file := ingestTestFile(t, svc, IngestRequest{
		Name:       "limited.txt",
		Size:       4,
		OwnerID:    1,
		Visibility: model.VisibilityPublic,
		MaxViews:   &maxViews,
	}, "data")

	const attempts = 20
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.RecordView(ctx, file.ID, AccessContext{})
		}(i)
	}
	wg.Wait()

	var allowed, expired int
	for _, err := range results {
		if err == nil {
			allowed++
			continue
		}
		var deniedErr *AccessDeniedError
		if errors.As(err, &deniedErr) && deniedErr.Reason == DenyExpired {
			expired++
			continue
		}
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed != int(maxViews) {
		t.Fatalf("allowed = %d, want %d", allowed, maxViews)
	}
	if expired != attempts-int(maxViews) {
		t.Fatalf("expired = %d, want %d", expired, attempts-int(maxViews))
	}

	// The file is now closed for good.
	if err := svc.RecordView(ctx, file.ID, AccessContext{}); err == nil {
		t.Fatal("expected denial after limit")
	}
}

// TestExpireSweep tests the sweep transition and its idempotence.
func TestExpireSweep(t *testing.T) {
	svc, files, _, _, _ := newTestFileService(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	old := ingestTestFile(t, svc, IngestRequest{
		Name: "old.txt", Size: 1, OwnerID: 1,
		Visibility: model.VisibilityPublic, ExpiresAt: &past,
	}, "x")
	fresh := ingestTestFile(t, svc, IngestRequest{
		Name: "fresh.txt", Size: 1, OwnerID: 1,
		Visibility: model.VisibilityPublic, ExpiresAt: &future,
	}, "y")

	count, err := svc.ExpireSweep(ctx, time.Now())
	if err != nil {
		t.Fatalf("ExpireSweep failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("sweep count = %d, want 1", count)
	}

	count, err = svc.ExpireSweep(ctx, time.Now())
	if err != nil {
		t.Fatalf("second sweep failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("second sweep count = %d, want 0", count)
	}

	swept, err := files.GetByID(ctx, old.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !swept.Expired {
		t.Fatal("old file not marked expired")
	}
	kept, err := files.GetByID(ctx, fresh.ID)
	if err != nil {
		t.Fatal(err)
	}
	if kept.Expired {
		t.Fatal("fresh file wrongly expired")
	}
}

// TestExpiredStaysExpired tests that raising a limit cannot reopen a file.
func TestExpiredStaysExpired(t *testing.T) {
	svc, _, _, _, _ := newTestFileService(t)
	ctx := context.Background()

	maxViews := int64(1)
	file := ingestTestFile(t, svc, IngestRequest{
		Name: "once.txt", Size: 1, OwnerID: 1,
		Visibility: model.VisibilityPublic, MaxViews: &maxViews,
	}, "x")

	if err := svc.RecordView(ctx, file.ID, AccessContext{}); err != nil {
		t.Fatalf("first view failed: %v", err)
	}

	higher := int64(10)
	if _, err := svc.UpdateSettings(ctx, file.ID, 1, UpdateSettingsRequest{MaxViews: &higher}); err != nil {
		t.Fatalf("UpdateSettings failed: %v", err)
	}

	err := svc.RecordView(ctx, file.ID, AccessContext{})
	var deniedErr *AccessDeniedError
	if !errors.As(err, &deniedErr) || deniedErr.Reason != DenyExpired {
		t.Fatalf("expected deny(expired) after edit, got %v", err)
	}
}

// TestDeleteFile tests that deletion removes bytes, thumbnail and record.
func TestDeleteFile(t *testing.T) {
	svc, _, store, _, _ := newTestFileService(t)
	ctx := context.Background()

	file := ingestTestFile(t, svc, IngestRequest{
		Name: "gone.txt", Size: 4, OwnerID: 1,
		Visibility: model.VisibilityPublic,
	}, "data")

	// Simulate a produced thumbnail.
	if _, err := store.Put(ctx, ThumbKey(file.ID), bytes.NewReader([]byte("thumb")), 5, storage.PutOptions{}); err != nil {
		t.Fatal(err)
	}

	if err := svc.Delete(ctx, file.ID, 1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if exists, _ := store.Exists(ctx, file.StorageKey); exists {
		t.Fatal("bytes survived delete")
	}
	if exists, _ := store.Exists(ctx, ThumbKey(file.ID)); exists {
		t.Fatal("thumbnail survived delete")
	}
	if _, err := svc.Get(ctx, file.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := svc.Delete(ctx, file.ID, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

// TestDeleteOtherUsersFile tests ownership gating on delete.
func TestDeleteOtherUsersFile(t *testing.T) {
	svc, _, _, _, _ := newTestFileService(t)

	file := ingestTestFile(t, svc, IngestRequest{
		Name: "mine.txt", Size: 1, OwnerID: 1,
		Visibility: model.VisibilityPublic,
	}, "x")

	err := svc.Delete(context.Background(), file.ID, 2)
	var deniedErr *AccessDeniedError
	if !errors.As(err, &deniedErr) || deniedErr.Reason != DenyForbidden {
		t.Fatalf("expected deny(forbidden), got %v", err)
	}
}

// TestIngestSupersedesQueuedJob tests that re-uploading before pickup leaves
// one job per file id in the queue.
func TestIngestSupersedesQueuedJob(t *testing.T) {
	svc, _, _, jobs, _ := newTestFileService(t)
	ctx := context.Background()

	file := ingestTestFile(t, svc, IngestRequest{
		Name: "a.png", Size: 1, OwnerID: 1,
		Visibility: model.VisibilityPublic,
	}, "x")

	// Content replacement enqueues again for the same file id.
	if err := jobs.Enqueue(ctx, file.ID, "files/1/replacement.png", "image/png"); err != nil {
		t.Fatal(err)
	}

	job, err := jobs.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if job.Key != "files/1/replacement.png" {
		t.Fatalf("job key = %s, want superseded content", job.Key)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := jobs.Dequeue(canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected single job in queue, got %v", err)
	}
}

// TestStorageKeysAreNested sanity-checks the key layout under the root.
func TestStorageKeysAreNested(t *testing.T) {
	svc, _, _, _, dir := newTestFileService(t)

	file := ingestTestFile(t, svc, IngestRequest{
		Name: "pic.png", Size: 3, OwnerID: 7,
		Visibility: model.VisibilityPublic,
	}, "png")

	path := filepath.Join(dir, filepath.FromSlash(file.StorageKey))
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("object missing at %s: %v", path, err)
	}
}
