package repo

import (
	"context"
	"errors"
	"time"

	"github.com/MayhemBill/zipline/model"
)

// ErrRecordNotFound is returned when a referenced id does not exist.
var ErrRecordNotFound = errors.New("record not found")

// FileRepository persists file records. Implementations must provide the
// conditional updates atomically: TryIncrementView and MarkViewExpired may
// race with each other and with ExpirePast without double-applying.
type FileRepository interface {
	Create(ctx context.Context, file *model.File) error
	GetByID(ctx context.Context, id uint64) (*model.File, error)
	// UpdateSettings persists visibility, password hash, max views and
	// expiration timestamp. It never touches the view counter or the
	// expired flag, so an already-closed file stays closed.
	UpdateSettings(ctx context.Context, file *model.File) error
	Delete(ctx context.Context, id uint64) error

	KeyExists(ctx context.Context, storageKey string) (bool, error)

	// TryIncrementView bumps the view counter only while the file is not
	// expired and still under its view limit. It reports whether the
	// increment happened and the resulting count.
	TryIncrementView(ctx context.Context, id uint64) (bool, int64, error)
	// MarkViewExpired flips the expired flag when the view limit has been
	// reached. The flip is one-way and idempotent.
	MarkViewExpired(ctx context.Context, id uint64) error
	// ExpirePast marks every not-yet-expired file whose expiration
	// timestamp is at or before now. Returns how many rows transitioned.
	ExpirePast(ctx context.Context, now time.Time) (int64, error)

	SetFolder(ctx context.Context, fileID uint64, folderID *uint64) error
	// DetachFolder clears the folder reference on every member of folderID.
	DetachFolder(ctx context.Context, folderID uint64) error
	ListByFolder(ctx context.Context, folderID uint64) ([]model.File, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.File, error)
	// FilterOwned returns the subset of ids owned by userID, preserving
	// request order.
	FilterOwned(ctx context.Context, userID uint64, ids []uint64) ([]uint64, error)
}

// FolderRepository persists folder records.
type FolderRepository interface {
	Create(ctx context.Context, folder *model.Folder) error
	GetByID(ctx context.Context, id uint64) (*model.Folder, error)
	Delete(ctx context.Context, id uint64) error
	ListByUser(ctx context.Context, userID uint64) ([]model.Folder, error)
}

// UserRepository resolves owners at the service boundary.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uint64) (*model.User, error)
	GetByName(ctx context.Context, name string) (*model.User, error)
}
