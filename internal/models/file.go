package models

import (
	"time"

	"gorm.io/gorm"
)

// FileRecord is the registry row behind every accepted upload. The byte
// content lives on disk at Path; the row and the file are kept consistent
// on a best-effort basis only (see services.FileRegistry).
type FileRecord struct {
	ID           int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	OriginalName string     `json:"originalName" gorm:"type:varchar(255);not null"`
	StoredName   string     `json:"storedName" gorm:"type:varchar(300);not null;index"`
	Path         string     `json:"path" gorm:"type:text;not null"`
	SizeBytes    int64      `json:"sizeBytes" gorm:"not null;default:0"`
	MimeType     string     `json:"mimeType" gorm:"type:varchar(255);not null"`
	CommunityID  int64      `json:"communityId" gorm:"not null;index"`
	EntityType   *string    `json:"entityType,omitempty" gorm:"type:varchar(20);index"`
	EntityID     *int64     `json:"entityId,omitempty" gorm:"index"`
	Category     string     `json:"category" gorm:"type:varchar(100);not null;default:'general'"`
	Description  *string    `json:"description,omitempty" gorm:"type:text"`
	UploadedAt   time.Time  `json:"uploadedAt" gorm:"not null;index"`
	UploadedBy   *int64     `json:"uploadedBy,omitempty"`
	IsActive     bool       `json:"isActive" gorm:"not null;default:true;index"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty" gorm:"autoUpdateTime:false"`
	UpdatedBy    *int64     `json:"updatedBy,omitempty"`
}

func (f *FileRecord) BeforeCreate(_ *gorm.DB) error {
	if f.UploadedAt.IsZero() {
		f.UploadedAt = time.Now().UTC()
	}
	if f.Category == "" {
		f.Category = "general"
	}
	return nil
}

func (FileRecord) TableName() string {
	return "files"
}
