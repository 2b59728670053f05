package models

import (
	"time"
)

// Membership joins a user to a project at a given access level. The
// same table carries pending access requests (status=requested), so
// the unique index on (project_id, user_id) guarantees at most one
// row per pair regardless of status.
type Membership struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	ProjectID   uint             `gorm:"uniqueIndex:idx_project_user;not null" json:"project_id"`
	Project     *Project         `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	UserID      uint             `gorm:"uniqueIndex:idx_project_user;not null" json:"user_id"`
	User        *User            `gorm:"foreignKey:UserID" json:"user,omitempty"`
	AccessLevel AccessLevel      `gorm:"not null" json:"access_level"`
	Status      MembershipStatus `gorm:"size:20;not null;default:active" json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

func (Membership) TableName() string { return "memberships" }

// IsRequest reports whether the row is a pending access request.
func (m *Membership) IsRequest() bool { return m.Status == MembershipRequested }
