package dto

import "time"

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UpdateFileRequest edits a file's access settings. Pointer fields are
// untouched when absent; the Clear flags reset the optional limits.
type UpdateFileRequest struct {
	Visibility    *string    `json:"visibility,omitempty"`
	Password      *string    `json:"password,omitempty"`
	MaxViews      *int64     `json:"max_views,omitempty"`
	ClearMaxViews bool       `json:"clear_max_views,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	ClearExpires  bool       `json:"clear_expires,omitempty"`
}

type CreateFolderRequest struct {
	Name   string   `json:"name" binding:"required"`
	Public bool     `json:"public"`
	Files  []uint64 `json:"files"`
}

type AttachFilesRequest struct {
	Files []uint64 `json:"files" binding:"required"`
}
