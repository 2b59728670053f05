package models

import "time"

// ActivityEvent records a notifiable membership transition on a
// project: member added, request approved, member removed, members
// imported. Presentation collaborators read these; nothing in the
// access model depends on them.
type ActivityEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventID   string    `gorm:"size:64;uniqueIndex" json:"event_id"`
	ProjectID uint      `gorm:"index;not null" json:"project_id"`
	ActorID   uint      `gorm:"index" json:"actor_id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Action    string    `gorm:"size:50;not null" json:"action"`
	Message   string    `gorm:"size:500" json:"message"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (ActivityEvent) TableName() string { return "activity_events" }
