package model

import (
	"time"

	"gorm.io/gorm"
)

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

type File struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	UserID uint64 `gorm:"column:user_id;not null;index" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`

	Name string `gorm:"column:name;size:255;not null" json:"name"`

	// StorageKey locates the primary bytes in the backend. It is assigned
	// once at ingest and never changes afterwards.
	StorageKey string `gorm:"column:storage_key;size:512;uniqueIndex;not null" json:"-"`

	MimeType string `gorm:"column:mime_type;size:128;not null" json:"mime_type"`
	Size     int64  `gorm:"column:size;not null" json:"size"`

	Visibility   string `gorm:"column:visibility;size:16;not null;default:private" json:"visibility"`
	PasswordHash string `gorm:"column:password_hash;size:255" json:"-"`

	MaxViews  *int64     `gorm:"column:max_views" json:"max_views,omitempty"`
	ExpiresAt *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`

	Views int64 `gorm:"column:views;not null;default:0" json:"views"`

	// Expired is a one-way flag. Once set (by the sweep or by view
	// exhaustion) it stays set even if MaxViews or ExpiresAt are later
	// edited upward.
	Expired bool `gorm:"column:expired;not null;default:false;index" json:"expired"`

	FolderID *uint64 `gorm:"column:folder_id;index" json:"folder_id,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the database table name.
func (File) TableName() string {
	return "file"
}

// Protected reports whether a password is required to access the file.
func (f *File) Protected() bool {
	return f.PasswordHash != ""
}
