package model

import (
	"time"

	"gorm.io/gorm"
)

type Folder struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	UserID uint64 `gorm:"column:user_id;not null;index" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE" json:"-"`

	Name string `gorm:"column:name;size:255;not null" json:"name"`

	// Public only controls whether the folder listing is exposed. Member
	// files keep their own visibility and password checks.
	Public bool `gorm:"column:public;not null;default:false" json:"public"`

	Files []File `gorm:"foreignKey:FolderID;references:ID" json:"files,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the database table name.
func (Folder) TableName() string {
	return "folder"
}
