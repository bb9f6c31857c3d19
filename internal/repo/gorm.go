package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/MayhemBill/zipline/model"
)

// GormFileRepository implements FileRepository over MySQL.
type GormFileRepository struct {
	db *gorm.DB
}

// NewGormFileRepository builds a FileRepository over db.
func NewGormFileRepository(db *gorm.DB) *GormFileRepository {
	return &GormFileRepository{db: db}
}

func (r *GormFileRepository) Create(ctx context.Context, file *model.File) error {
	return r.db.WithContext(ctx).Create(file).Error
}

func (r *GormFileRepository) GetByID(ctx context.Context, id uint64) (*model.File, error) {
	var file model.File
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&file).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *GormFileRepository) UpdateSettings(ctx context.Context, file *model.File) error {
	res := r.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ?", file.ID).
		Select("visibility", "password_hash", "max_views", "expires_at").
		Updates(map[string]interface{}{
			"visibility":    file.Visibility,
			"password_hash": file.PasswordHash,
			"max_views":     file.MaxViews,
			"expires_at":    file.ExpiresAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *GormFileRepository) Delete(ctx context.Context, id uint64) error {
	res := r.db.WithContext(ctx).Delete(&model.File{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *GormFileRepository) KeyExists(ctx context.Context, storageKey string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.File{}).
		Unscoped().
		Where("storage_key = ?", storageKey).
		Count(&count).Error
	return count > 0, err
}

// TryIncrementView is the race-sensitive update: the WHERE clause keeps the
// counter under max_views even when two requests hit at the same instant.
func (r *GormFileRepository) TryIncrementView(ctx context.Context, id uint64) (bool, int64, error) {
	res := r.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ? AND expired = 0 AND (max_views IS NULL OR views < max_views)", id).
		UpdateColumn("views", gorm.Expr("views + 1"))
	if res.Error != nil {
		return false, 0, res.Error
	}
	if res.RowsAffected == 0 {
		return false, 0, nil
	}
	var file model.File
	if err := r.db.WithContext(ctx).Select("views").Where("id = ?", id).First(&file).Error; err != nil {
		return true, 0, err
	}
	return true, file.Views, nil
}

func (r *GormFileRepository) MarkViewExpired(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ? AND expired = 0 AND max_views IS NOT NULL AND views >= max_views", id).
		UpdateColumn("expired", true).Error
}

func (r *GormFileRepository) ExpirePast(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.File{}).
		Where("expired = 0 AND expires_at IS NOT NULL AND expires_at <= ?", now).
		UpdateColumn("expired", true)
	return res.RowsAffected, res.Error
}

func (r *GormFileRepository) SetFolder(ctx context.Context, fileID uint64, folderID *uint64) error {
	res := r.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ?", fileID).
		UpdateColumn("folder_id", folderID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *GormFileRepository) DetachFolder(ctx context.Context, folderID uint64) error {
	return r.db.WithContext(ctx).Model(&model.File{}).
		Where("folder_id = ?", folderID).
		UpdateColumn("folder_id", nil).Error
}

func (r *GormFileRepository) ListByFolder(ctx context.Context, folderID uint64) ([]model.File, error) {
	var files []model.File
	err := r.db.WithContext(ctx).Where("folder_id = ?", folderID).Find(&files).Error
	return files, err
}

func (r *GormFileRepository) ListByUser(ctx context.Context, userID uint64) ([]model.File, error) {
	var files []model.File
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&files).Error
	return files, err
}

func (r *GormFileRepository) FilterOwned(ctx context.Context, userID uint64, ids []uint64) ([]uint64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var files []model.File
	err := r.db.WithContext(ctx).Select("id").
		Where("user_id = ? AND id IN ?", userID, ids).
		Find(&files).Error
	if err != nil {
		return nil, err
	}
	owned := make(map[uint64]bool, len(files))
	for _, f := range files {
		owned[f.ID] = true
	}
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if owned[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

// GormFolderRepository implements FolderRepository over MySQL.
type GormFolderRepository struct {
	db *gorm.DB
}

// NewGormFolderRepository builds a FolderRepository over db.
func NewGormFolderRepository(db *gorm.DB) *GormFolderRepository {
	return &GormFolderRepository{db: db}
}

func (r *GormFolderRepository) Create(ctx context.Context, folder *model.Folder) error {
	return r.db.WithContext(ctx).Create(folder).Error
}

func (r *GormFolderRepository) GetByID(ctx context.Context, id uint64) (*model.Folder, error) {
	var folder model.Folder
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&folder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &folder, nil
}

func (r *GormFolderRepository) Delete(ctx context.Context, id uint64) error {
	res := r.db.WithContext(ctx).Delete(&model.Folder{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (r *GormFolderRepository) ListByUser(ctx context.Context, userID uint64) ([]model.Folder, error) {
	var folders []model.Folder
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Find(&folders).Error
	return folders, err
}

// GormUserRepository implements UserRepository over MySQL.
type GormUserRepository struct {
	db *gorm.DB
}

// NewGormUserRepository builds a UserRepository over db.
func NewGormUserRepository(db *gorm.DB) *GormUserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *GormUserRepository) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormUserRepository) GetByName(ctx context.Context, name string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("user_name = ?", name).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
