package dto

import "time"

// FileResponse is the public shape of a file record.
type FileResponse struct {
	ID         uint64     `json:"id"`
	Name       string     `json:"name"`
	MimeType   string     `json:"mime_type"`
	Size       int64      `json:"size"`
	Visibility string     `json:"visibility"`
	Protected  bool       `json:"protected"`
	MaxViews   *int64     `json:"max_views,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	Views      int64      `json:"views"`
	Expired    bool       `json:"expired"`
	FolderID   *uint64    `json:"folder_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// FolderResponse is the public shape of a folder with its members.
type FolderResponse struct {
	ID        uint64         `json:"id"`
	Name      string         `json:"name"`
	Public    bool           `json:"public"`
	Files     []FileResponse `json:"files"`
	CreatedAt time.Time      `json:"created_at"`
}
