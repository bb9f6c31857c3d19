package storage

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/MayhemBill/zipline/config"
)

// ErrObjectNotFound is returned by Get when no object exists under a key.
var ErrObjectNotFound = errors.New("object not found")

// PutOptions describes upload options for a stored object.
type PutOptions struct {
	ContentType string
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// Store abstracts a single physical storage backend. Callers stream bytes
// through it and never branch on the backend type. Put is atomic from the
// reader's point of view: a concurrent Get never observes a partial object.
// Delete of a missing key is not an error.
type Store interface {
	Put(ctx context.Context, key string, reader io.Reader, size int64, opts PutOptions) (int64, error)
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Presigner is implemented by backends that can hand out direct download URLs.
type Presigner interface {
	PresignedGet(ctx context.Context, key string, expiry time.Duration, params map[string]string) (string, error)
}

// Default is the process-wide store instance, selected once at startup.
var Default Store

// InitStorage selects and initializes the configured backend. An unreachable
// backend is fatal.
func InitStorage() {
	switch config.AppConfig.StorageDriver {
	case "minio":
		InitMinio()
	case "local", "":
		store, err := NewLocalStore(config.AppConfig.LocalRoot)
		if err != nil {
			log.Fatalln("init local storage fail:", err)
		}
		Default = store
		log.Println("init local storage success:", config.AppConfig.LocalRoot)
	default:
		log.Fatalln("unknown storage driver:", config.AppConfig.StorageDriver)
	}
}
