package models

import (
	"time"

	"gorm.io/gorm"
)

// Project is the unit memberships attach to. CreatedBy identifies the
// user seeded as the project's Owner member; a personal project keeps
// at least one Owner row for its whole lifetime.
type Project struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"size:200;not null" json:"name"`
	Path        string          `gorm:"size:200;uniqueIndex;not null" json:"path"`
	Description string          `gorm:"size:2000" json:"description"`
	Visibility  VisibilityLevel `gorm:"not null;default:0" json:"visibility"`
	CreatedBy   uint            `gorm:"not null" json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (Project) TableName() string { return "projects" }
