package service

import (
	"errors"
	"strings"

	"golang.org/x/net/context"

	"github.com/MayhemBill/zipline/internal/repo"
	"github.com/MayhemBill/zipline/model"
)

// FolderService manages folder membership. Folder deletion only detaches
// member files; it never touches file bytes or records.
type FolderService struct {
	folders repo.FolderRepository
	files   repo.FileRepository
}

// NewFolderService wires a FolderService.
func NewFolderService(folders repo.FolderRepository, files repo.FileRepository) *FolderService {
	return &FolderService{folders: folders, files: files}
}

// Create makes a folder and attaches the initial files the owner actually
// owns. Files owned by someone else are silently dropped; creation succeeds
// even when the filtered set ends up empty.
func (s *FolderService) Create(ctx context.Context, name string, ownerID uint64, public bool, initialFileIDs []uint64) (*model.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if ownerID == 0 {
		return nil, &ValidationError{Field: "owner", Reason: "missing owner"}
	}

	folder := &model.Folder{
		UserID: ownerID,
		Name:   name,
		Public: public,
	}
	if err := s.folders.Create(ctx, folder); err != nil {
		return nil, err
	}

	owned, err := s.files.FilterOwned(ctx, ownerID, initialFileIDs)
	if err != nil {
		return nil, err
	}
	for _, fileID := range owned {
		if err := s.files.SetFolder(ctx, fileID, &folder.ID); err != nil && !errors.Is(err, repo.ErrRecordNotFound) {
			return nil, err
		}
	}
	folder.Files, err = s.files.ListByFolder(ctx, folder.ID)
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// Attach adds files to a folder. Attaching an already-member file is a
// no-op, and non-owned files are dropped like at creation.
func (s *FolderService) Attach(ctx context.Context, folderID, callerID uint64, fileIDs []uint64) (*model.Folder, error) {
	folder, err := s.get(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if folder.UserID != callerID {
		return nil, &AccessDeniedError{Reason: DenyForbidden}
	}
	owned, err := s.files.FilterOwned(ctx, folder.UserID, fileIDs)
	if err != nil {
		return nil, err
	}
	for _, fileID := range owned {
		if err := s.files.SetFolder(ctx, fileID, &folder.ID); err != nil && !errors.Is(err, repo.ErrRecordNotFound) {
			return nil, err
		}
	}
	folder.Files, err = s.files.ListByFolder(ctx, folder.ID)
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// Detach removes one file from its folder.
func (s *FolderService) Detach(ctx context.Context, folderID, callerID, fileID uint64) error {
	folder, err := s.get(ctx, folderID)
	if err != nil {
		return err
	}
	if folder.UserID != callerID {
		return &AccessDeniedError{Reason: DenyForbidden}
	}
	file, err := s.files.GetByID(ctx, fileID)
	if err != nil {
		if errors.Is(err, repo.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if file.FolderID == nil || *file.FolderID != folderID {
		return nil
	}
	return s.files.SetFolder(ctx, fileID, nil)
}

// DetachAll clears the folder reference on every member file.
func (s *FolderService) DetachAll(ctx context.Context, folderID uint64) error {
	return s.files.DetachFolder(ctx, folderID)
}

// Delete detaches all members and removes the folder record. No file bytes
// or records are deleted.
func (s *FolderService) Delete(ctx context.Context, folderID, callerID uint64) error {
	folder, err := s.get(ctx, folderID)
	if err != nil {
		return err
	}
	if folder.UserID != callerID {
		return &AccessDeniedError{Reason: DenyForbidden}
	}
	if err := s.DetachAll(ctx, folderID); err != nil {
		return err
	}
	if err := s.folders.Delete(ctx, folderID); err != nil {
		if errors.Is(err, repo.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Get returns a folder with its member files. A private folder listing is
// only exposed to its owner; the folder flag never overrides per-file
// policy, which is re-checked on every file access.
func (s *FolderService) Get(ctx context.Context, folderID uint64, access AccessContext) (*model.Folder, error) {
	folder, err := s.get(ctx, folderID)
	if err != nil {
		return nil, err
	}
	if !folder.Public {
		if !access.Authenticated || access.UserID != folder.UserID {
			return nil, &AccessDeniedError{Reason: DenyForbidden}
		}
	}
	folder.Files, err = s.files.ListByFolder(ctx, folderID)
	if err != nil {
		return nil, err
	}
	return folder, nil
}

// ListByUser returns a user's folders.
func (s *FolderService) ListByUser(ctx context.Context, userID uint64) ([]model.Folder, error) {
	return s.folders.ListByUser(ctx, userID)
}

func (s *FolderService) get(ctx context.Context, folderID uint64) (*model.Folder, error) {
	folder, err := s.folders.GetByID(ctx, folderID)
	if err != nil {
		if errors.Is(err, repo.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return folder, nil
}
