package service

import (
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"golang.org/x/net/context"

	"github.com/MayhemBill/zipline/internal/mq"
	"github.com/MayhemBill/zipline/internal/repo"
	"github.com/MayhemBill/zipline/internal/storage"
	"github.com/MayhemBill/zipline/model"
	"github.com/MayhemBill/zipline/utils"
)

const keyRetryLimit = 5

// ThumbKey derives the thumbnail key for a file id. The key is stable so
// repeated worker runs overwrite the same artifact.
func ThumbKey(fileID uint64) string {
	return fmt.Sprintf("thumbs/%d.jpg", fileID)
}

// FileService owns the file lifecycle: ingest, view recording, expiration
// and deletion. Bytes go through the storage backend, access decisions
// through the policy check, thumbnail work through the dispatcher.
type FileService struct {
	files   repo.FileRepository
	folders repo.FolderRepository
	store   storage.Store
	jobs    mq.Dispatcher
}

// NewFileService wires a FileService.
func NewFileService(files repo.FileRepository, folders repo.FolderRepository, store storage.Store, jobs mq.Dispatcher) *FileService {
	return &FileService{files: files, folders: folders, store: store, jobs: jobs}
}

// IngestRequest describes an upload.
type IngestRequest struct {
	Name       string
	Mime       string
	Size       int64
	OwnerID    uint64
	Visibility string
	Password   string
	MaxViews   *int64
	ExpiresAt  *time.Time
	FolderID   *uint64
}

// Ingest writes bytes to the backend, persists the file record and enqueues
// a thumbnail job. Bytes are durably written before the record exists, so a
// crash mid-upload never leaves an accessible record without bytes.
func (s *FileService) Ingest(ctx context.Context, content io.Reader, req IngestRequest) (*model.File, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if req.OwnerID == 0 {
		return nil, &ValidationError{Field: "owner", Reason: "missing owner"}
	}
	visibility := req.Visibility
	switch visibility {
	case "":
		visibility = model.VisibilityPrivate
	case model.VisibilityPublic, model.VisibilityPrivate:
	default:
		return nil, &ValidationError{Field: "visibility", Reason: "must be public or private"}
	}
	if req.MaxViews != nil && *req.MaxViews <= 0 {
		return nil, &ValidationError{Field: "max_views", Reason: "must be positive"}
	}

	if req.FolderID != nil {
		folder, err := s.folders.GetByID(ctx, *req.FolderID)
		if err != nil {
			if errors.Is(err, repo.ErrRecordNotFound) {
				return nil, &ValidationError{Field: "folder_id", Reason: "folder does not exist"}
			}
			return nil, err
		}
		if folder.UserID != req.OwnerID {
			return nil, &ValidationError{Field: "folder_id", Reason: "folder owned by another user"}
		}
	}

	mime := req.Mime
	if mime == "" {
		mime = ContentTypeByName(name)
	}

	key, err := s.newStorageKey(ctx, req.OwnerID, name)
	if err != nil {
		return nil, err
	}

	written, err := s.store.Put(ctx, key, content, req.Size, storage.PutOptions{ContentType: mime})
	if err != nil {
		return nil, &StorageError{Op: "put", Err: err}
	}

	file := &model.File{
		UserID:     req.OwnerID,
		Name:       name,
		StorageKey: key,
		MimeType:   mime,
		Size:       written,
		Visibility: visibility,
		MaxViews:   req.MaxViews,
		ExpiresAt:  req.ExpiresAt,
		FolderID:   req.FolderID,
	}
	if req.Password != "" {
		file.PasswordHash = utils.GetPwd(req.Password)
	}
	if err := s.files.Create(ctx, file); err != nil {
		_ = s.store.Delete(ctx, key)
		return nil, err
	}

	if err := s.jobs.Enqueue(ctx, file.ID, key, mime); err != nil {
		// Thumbnail absence is never fatal to the upload.
		log.Printf("thumbnail enqueue failed for file %d: %v", file.ID, err)
	}
	return file, nil
}

// newStorageKey generates a backend key, retrying on the off chance of a
// collision.
func (s *FileService) newStorageKey(ctx context.Context, ownerID uint64, name string) (string, error) {
	ext := strings.ToLower(path.Ext(name))
	for i := 0; i < keyRetryLimit; i++ {
		key := fmt.Sprintf("files/%d/%s%s", ownerID, utils.GetToken(), ext)
		taken, err := s.files.KeyExists(ctx, key)
		if err != nil {
			return "", err
		}
		if taken {
			continue
		}
		exists, err := s.store.Exists(ctx, key)
		if err != nil {
			return "", &StorageError{Op: "exists", Err: err}
		}
		if !exists {
			return key, nil
		}
	}
	return "", errors.New("storage key collision retry limit exceeded")
}

// Get loads a file record.
func (s *FileService) Get(ctx context.Context, fileID uint64) (*model.File, error) {
	file, err := s.files.GetByID(ctx, fileID)
	if errors.Is(err, repo.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return file, err
}

// RecordView checks policy and then atomically bumps the view counter. Two
// concurrent views against maxViews=1 cannot both succeed: the conditional
// increment admits exactly one, and the loser is told the file expired.
func (s *FileService) RecordView(ctx context.Context, fileID uint64, access AccessContext) error {
	file, err := s.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if err := DecisionError(Decide(file, access)); err != nil {
		return err
	}

	hit, views, err := s.files.TryIncrementView(ctx, fileID)
	if err != nil {
		return err
	}
	if !hit {
		// Lost the race: either deleted or the limit was consumed by a
		// concurrent view.
		if _, err := s.files.GetByID(ctx, fileID); errors.Is(err, repo.ErrRecordNotFound) {
			return ErrNotFound
		}
		return &AccessDeniedError{Reason: DenyExpired}
	}
	if file.MaxViews != nil && views >= *file.MaxViews {
		if err := s.files.MarkViewExpired(ctx, fileID); err != nil {
			return err
		}
	}
	return nil
}

// Open checks policy, records the view, and streams the file's bytes.
func (s *FileService) Open(ctx context.Context, fileID uint64, access AccessContext) (*model.File, io.ReadCloser, storage.ObjectInfo, error) {
	file, err := s.Get(ctx, fileID)
	if err != nil {
		return nil, nil, storage.ObjectInfo{}, err
	}
	if err := s.RecordView(ctx, fileID, access); err != nil {
		return nil, nil, storage.ObjectInfo{}, err
	}
	reader, info, err := s.getWithRetry(ctx, file.StorageKey)
	if err != nil {
		return nil, nil, storage.ObjectInfo{}, err
	}
	return file, reader, info, nil
}

// OpenThumbnail streams the derived thumbnail, if the worker has produced
// one.
func (s *FileService) OpenThumbnail(ctx context.Context, fileID uint64, access AccessContext) (io.ReadCloser, storage.ObjectInfo, error) {
	file, err := s.Get(ctx, fileID)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	if err := DecisionError(Decide(file, access)); err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	return s.getWithRetry(ctx, ThumbKey(fileID))
}

// getWithRetry retries a transient backend read once; Get is idempotent.
func (s *FileService) getWithRetry(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	reader, info, err := s.store.Get(ctx, key)
	if err == nil || errors.Is(err, storage.ErrObjectNotFound) {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ObjectInfo{}, ErrNotFound
		}
		return reader, info, nil
	}
	reader, info, err = s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, storage.ObjectInfo{}, ErrNotFound
		}
		return nil, storage.ObjectInfo{}, &StorageError{Op: "get", Err: err}
	}
	return reader, info, nil
}

// UpdateSettings edits visibility, password and the limit fields. The
// expired flag is sticky: raising a limit on an already-closed file does not
// reopen it, because the flag lives outside the limit fields.
type UpdateSettingsRequest struct {
	Visibility    *string
	Password      *string // empty string clears the password
	MaxViews      *int64
	ClearMaxViews bool
	ExpiresAt     *time.Time
	ClearExpires  bool
}

func (s *FileService) UpdateSettings(ctx context.Context, fileID, ownerID uint64, req UpdateSettingsRequest) (*model.File, error) {
	file, err := s.Get(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.UserID != ownerID {
		return nil, &AccessDeniedError{Reason: DenyForbidden}
	}
	if req.Visibility != nil {
		switch *req.Visibility {
		case model.VisibilityPublic, model.VisibilityPrivate:
			file.Visibility = *req.Visibility
		default:
			return nil, &ValidationError{Field: "visibility", Reason: "must be public or private"}
		}
	}
	if req.Password != nil {
		if *req.Password == "" {
			file.PasswordHash = ""
		} else {
			file.PasswordHash = utils.GetPwd(*req.Password)
		}
	}
	if req.ClearMaxViews {
		file.MaxViews = nil
	} else if req.MaxViews != nil {
		if *req.MaxViews <= 0 {
			return nil, &ValidationError{Field: "max_views", Reason: "must be positive"}
		}
		file.MaxViews = req.MaxViews
	}
	if req.ClearExpires {
		file.ExpiresAt = nil
	} else if req.ExpiresAt != nil {
		file.ExpiresAt = req.ExpiresAt
	}
	if err := s.files.UpdateSettings(ctx, file); err != nil {
		if errors.Is(err, repo.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return file, nil
}

// ExpireSweep marks every file whose absolute expiration has passed. The
// update only transitions not-expired to expired, so concurrent sweeps are
// no-ops against already-closed files.
func (s *FileService) ExpireSweep(ctx context.Context, now time.Time) (int64, error) {
	return s.files.ExpirePast(ctx, now)
}

// RunSweeper runs ExpireSweep on a fixed interval until ctx is done. When
// Redis is configured the sweep runs under a lock so replicas do not sweep
// concurrently.
func (s *FileService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx, interval)
		}
	}
}

func (s *FileService) sweepOnce(ctx context.Context, interval time.Duration) {
	if repo.Redis != nil {
		lock := repo.NewRedisLock(repo.Redis, "sweep:files", interval)
		if err := lock.Lock(ctx); err != nil {
			return
		}
		defer lock.Unlock(ctx)
	}
	count, err := s.ExpireSweep(ctx, time.Now())
	if err != nil {
		log.Printf("expire sweep failed: %v", err)
		return
	}
	if count > 0 {
		log.Printf("expire sweep closed %d files", count)
	}
}

// Delete removes bytes, thumbnail and record. Byte removal runs first and is
// idempotent, so racing deletes cannot strand objects in the backend.
func (s *FileService) Delete(ctx context.Context, fileID, ownerID uint64) error {
	file, err := s.Get(ctx, fileID)
	if err != nil {
		return err
	}
	if file.UserID != ownerID {
		return &AccessDeniedError{Reason: DenyForbidden}
	}
	if err := s.deleteWithRetry(ctx, file.StorageKey); err != nil {
		return err
	}
	if err := s.deleteWithRetry(ctx, ThumbKey(fileID)); err != nil {
		return err
	}
	if err := s.files.Delete(ctx, fileID); err != nil {
		if errors.Is(err, repo.ErrRecordNotFound) {
			// A concurrent caller already removed the record; the byte
			// deletes above were still valid.
			return nil
		}
		return err
	}
	return nil
}

// deleteWithRetry retries a transient backend delete once; Delete is
// idempotent.
func (s *FileService) deleteWithRetry(ctx context.Context, key string) error {
	if err := s.store.Delete(ctx, key); err != nil {
		if err := s.store.Delete(ctx, key); err != nil {
			return &StorageError{Op: "delete", Err: err}
		}
	}
	return nil
}

// ListByUser returns a user's files.
func (s *FileService) ListByUser(ctx context.Context, userID uint64) ([]model.File, error) {
	return s.files.ListByUser(ctx, userID)
}
