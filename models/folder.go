package models

import (
	"time"
)

type AccessLevel string

const (
	AccessView AccessLevel = "view"
	AccessEdit AccessLevel = "edit"
)

// ParseAccessLevel maps anything other than "edit" to view access.
func ParseAccessLevel(s string) AccessLevel {
	if AccessLevel(s) == AccessEdit {
		return AccessEdit
	}
	return AccessView
}

const DefaultFolderColor = "#3498db"

// Folder is the ownership and sharing boundary for tasks.
type Folder struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	Name       string        `gorm:"not null" json:"name"`
	Color      string        `gorm:"default:'#3498db'" json:"color"`
	IsPinned   bool          `gorm:"default:false" json:"is_pinned"`
	UserID     uint          `gorm:"not null;index" json:"user_id"`
	SharedWith []FolderShare `gorm:"foreignKey:FolderID" json:"shared_with"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// FolderShare grants one user access to a folder. The unique index keeps a
// grantee from appearing twice even when grants race across processes.
type FolderShare struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	FolderID    uint        `gorm:"not null;uniqueIndex:idx_folder_share_grantee" json:"folder_id"`
	UserID      uint        `gorm:"not null;uniqueIndex:idx_folder_share_grantee;index" json:"user_id"`
	AccessLevel AccessLevel `gorm:"type:varchar(8);not null;default:'view'" json:"access_level"`
	SharedAt    time.Time   `gorm:"not null" json:"shared_at"`
}

// IsOwner reports whether userID owns the folder.
func (f *Folder) IsOwner(userID uint) bool {
	return f != nil && userID != 0 && f.UserID == userID
}

// Grant returns the share entry for userID, if any.
func (f *Folder) Grant(userID uint) (FolderShare, bool) {
	if f == nil {
		return FolderShare{}, false
	}
	for _, s := range f.SharedWith {
		if s.UserID == userID {
			return s, true
		}
	}
	return FolderShare{}, false
}

// CanRead is true for the owner and for any grantee regardless of level.
func (f *Folder) CanRead(userID uint) bool {
	if f.IsOwner(userID) {
		return true
	}
	_, ok := f.Grant(userID)
	return ok
}

// CanWrite is true for the owner and for grantees holding edit access.
func (f *Folder) CanWrite(userID uint) bool {
	if f.IsOwner(userID) {
		return true
	}
	s, ok := f.Grant(userID)
	return ok && s.AccessLevel == AccessEdit
}

// Role describes userID's relationship to the folder: "owner", "edit",
// "view" or "" when the user has no access.
func (f *Folder) Role(userID uint) string {
	if f.IsOwner(userID) {
		return "owner"
	}
	if s, ok := f.Grant(userID); ok {
		return string(ParseAccessLevel(string(s.AccessLevel)))
	}
	return ""
}
