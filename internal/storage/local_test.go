package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) (*LocalStore, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	return store, dir
}

// TestLocalPutGet tests a put/get round trip.
func TestLocalPutGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	written, err := store.Put(ctx, "files/1/a.txt", bytes.NewReader([]byte("hello")), 5, PutOptions{})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if written != 5 {
		t.Fatalf("written = %d, want 5", written)
	}

	reader, info, err := store.Get(ctx, "files/1/a.txt")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("content = %q, want hello", data)
	}
	if info.Size != 5 {
		t.Fatalf("info size = %d, want 5", info.Size)
	}
}

// TestLocalGetMissing tests the not-found sentinel.
func TestLocalGetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	_, _, err := store.Get(context.Background(), "files/1/missing.txt")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

// TestLocalPutShortWrite tests that a size mismatch leaves no object and no
// temp file behind.
func TestLocalPutShortWrite(t *testing.T) {
	store, dir := newTestStore(t)
	ctx := context.Background()

	_, err := store.Put(ctx, "files/1/short.txt", bytes.NewReader([]byte("abc")), 10, PutOptions{})
	if err == nil {
		t.Fatal("expected short write error")
	}

	if exists, _ := store.Exists(ctx, "files/1/short.txt"); exists {
		t.Fatal("partial object visible after failed put")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".upload-") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

// TestLocalPutFailingReader tests cleanup when the source stream errors
// mid-copy.
func TestLocalPutFailingReader(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	bad := io.MultiReader(strings.NewReader("part"), &failingReader{})
	_, err := store.Put(ctx, "files/1/bad.txt", bad, 8, PutOptions{})
	if err == nil {
		t.Fatal("expected read error")
	}
	if exists, _ := store.Exists(ctx, "files/1/bad.txt"); exists {
		t.Fatal("partial object visible after failed put")
	}
}

// TestLocalDeleteIdempotent tests that deleting twice is not an error.
func TestLocalDeleteIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Put(ctx, "files/1/a.txt", bytes.NewReader([]byte("x")), 1, PutOptions{}); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(ctx, "files/1/a.txt"); err != nil {
		t.Fatalf("first delete failed: %v", err)
	}
	if err := store.Delete(ctx, "files/1/a.txt"); err != nil {
		t.Fatalf("second delete failed: %v", err)
	}
	if exists, _ := store.Exists(ctx, "files/1/a.txt"); exists {
		t.Fatal("object survived delete")
	}
}

// TestLocalKeyEscapes tests that traversal keys are rejected.
func TestLocalKeyEscapes(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "..", "../outside.txt", "files/../../etc/passwd", "/abs/path"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), 1, PutOptions{}); err == nil {
			t.Fatalf("key %q accepted", key)
		}
	}
}

type failingReader struct{}

func (r *failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("stream broke")
}
