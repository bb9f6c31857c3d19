package repo

import (
	"context"
	"sync"
	"time"

	"github.com/MayhemBill/zipline/model"
)

// MemoryFileRepository is a mutex-guarded FileRepository. It backs unit
// tests and the zero-dependency deployment profile, and implements the same
// conditional-update semantics as the MySQL repository.
type MemoryFileRepository struct {
	mu     sync.Mutex
	nextID uint64
	files  map[uint64]*model.File
}

// NewMemoryFileRepository builds an empty in-memory file repository.
func NewMemoryFileRepository() *MemoryFileRepository {
	return &MemoryFileRepository{
		nextID: 1,
		files:  make(map[uint64]*model.File),
	}
}

func copyFile(f *model.File) *model.File {
	out := *f
	if f.MaxViews != nil {
		v := *f.MaxViews
		out.MaxViews = &v
	}
	if f.ExpiresAt != nil {
		t := *f.ExpiresAt
		out.ExpiresAt = &t
	}
	if f.FolderID != nil {
		id := *f.FolderID
		out.FolderID = &id
	}
	return &out
}

func (r *MemoryFileRepository) Create(ctx context.Context, file *model.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if file.ID == 0 {
		file.ID = r.nextID
		r.nextID++
	} else if file.ID >= r.nextID {
		r.nextID = file.ID + 1
	}
	now := time.Now()
	file.CreatedAt = now
	file.UpdatedAt = now
	r.files[file.ID] = copyFile(file)
	return nil
}

func (r *MemoryFileRepository) GetByID(ctx context.Context, id uint64) (*model.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return copyFile(file), nil
}

func (r *MemoryFileRepository) UpdateSettings(ctx context.Context, file *model.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.files[file.ID]
	if !ok {
		return ErrRecordNotFound
	}
	stored.Visibility = file.Visibility
	stored.PasswordHash = file.PasswordHash
	if file.MaxViews != nil {
		v := *file.MaxViews
		stored.MaxViews = &v
	} else {
		stored.MaxViews = nil
	}
	if file.ExpiresAt != nil {
		t := *file.ExpiresAt
		stored.ExpiresAt = &t
	} else {
		stored.ExpiresAt = nil
	}
	stored.UpdatedAt = time.Now()
	return nil
}

func (r *MemoryFileRepository) Delete(ctx context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[id]; !ok {
		return ErrRecordNotFound
	}
	delete(r.files, id)
	return nil
}

func (r *MemoryFileRepository) KeyExists(ctx context.Context, storageKey string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.StorageKey == storageKey {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryFileRepository) TryIncrementView(ctx context.Context, id uint64) (bool, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[id]
	if !ok {
		return false, 0, nil
	}
	if file.Expired {
		return false, 0, nil
	}
	if file.MaxViews != nil && file.Views >= *file.MaxViews {
		return false, 0, nil
	}
	file.Views++
	return true, file.Views, nil
}

func (r *MemoryFileRepository) MarkViewExpired(ctx context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[id]
	if !ok {
		return nil
	}
	if !file.Expired && file.MaxViews != nil && file.Views >= *file.MaxViews {
		file.Expired = true
	}
	return nil
}

func (r *MemoryFileRepository) ExpirePast(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, f := range r.files {
		if !f.Expired && f.ExpiresAt != nil && !f.ExpiresAt.After(now) {
			f.Expired = true
			count++
		}
	}
	return count, nil
}

func (r *MemoryFileRepository) SetFolder(ctx context.Context, fileID uint64, folderID *uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[fileID]
	if !ok {
		return ErrRecordNotFound
	}
	if folderID != nil {
		id := *folderID
		file.FolderID = &id
	} else {
		file.FolderID = nil
	}
	return nil
}

func (r *MemoryFileRepository) DetachFolder(ctx context.Context, folderID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.FolderID != nil && *f.FolderID == folderID {
			f.FolderID = nil
		}
	}
	return nil
}

func (r *MemoryFileRepository) ListByFolder(ctx context.Context, folderID uint64) ([]model.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.File
	for _, f := range r.files {
		if f.FolderID != nil && *f.FolderID == folderID {
			out = append(out, *copyFile(f))
		}
	}
	return out, nil
}

func (r *MemoryFileRepository) ListByUser(ctx context.Context, userID uint64) ([]model.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.File
	for _, f := range r.files {
		if f.UserID == userID {
			out = append(out, *copyFile(f))
		}
	}
	return out, nil
}

func (r *MemoryFileRepository) FilterOwned(ctx context.Context, userID uint64, ids []uint64) ([]uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if f, ok := r.files[id]; ok && f.UserID == userID {
			out = append(out, id)
		}
	}
	return out, nil
}

// MemoryFolderRepository is a mutex-guarded FolderRepository.
type MemoryFolderRepository struct {
	mu      sync.Mutex
	nextID  uint64
	folders map[uint64]*model.Folder
}

// NewMemoryFolderRepository builds an empty in-memory folder repository.
func NewMemoryFolderRepository() *MemoryFolderRepository {
	return &MemoryFolderRepository{
		nextID:  1,
		folders: make(map[uint64]*model.Folder),
	}
}

func (r *MemoryFolderRepository) Create(ctx context.Context, folder *model.Folder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if folder.ID == 0 {
		folder.ID = r.nextID
		r.nextID++
	} else if folder.ID >= r.nextID {
		r.nextID = folder.ID + 1
	}
	folder.CreatedAt = time.Now()
	stored := *folder
	stored.Files = nil
	r.folders[folder.ID] = &stored
	return nil
}

func (r *MemoryFolderRepository) GetByID(ctx context.Context, id uint64) (*model.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	folder, ok := r.folders[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := *folder
	return &out, nil
}

func (r *MemoryFolderRepository) Delete(ctx context.Context, id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.folders[id]; !ok {
		return ErrRecordNotFound
	}
	delete(r.folders, id)
	return nil
}

func (r *MemoryFolderRepository) ListByUser(ctx context.Context, userID uint64) ([]model.Folder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Folder
	for _, f := range r.folders {
		if f.UserID == userID {
			out = append(out, *f)
		}
	}
	return out, nil
}

// MemoryUserRepository is a mutex-guarded UserRepository.
type MemoryUserRepository struct {
	mu     sync.Mutex
	nextID uint64
	users  map[uint64]*model.User
}

// NewMemoryUserRepository builds an empty in-memory user repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		nextID: 1,
		users:  make(map[uint64]*model.User),
	}
}

func (r *MemoryUserRepository) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == 0 {
		user.ID = r.nextID
		r.nextID++
	} else if user.ID >= r.nextID {
		r.nextID = user.ID + 1
	}
	user.CreatedAt = time.Now()
	stored := *user
	r.users[user.ID] = &stored
	return nil
}

func (r *MemoryUserRepository) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := *user
	return &out, nil
}

func (r *MemoryUserRepository) GetByName(ctx context.Context, name string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.UserName == name {
			out := *u
			return &out, nil
		}
	}
	return nil, ErrRecordNotFound
}
