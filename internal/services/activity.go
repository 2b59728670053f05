package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openkite/kitehub/internal/config"
	"github.com/openkite/kitehub/internal/models"
	"github.com/openkite/kitehub/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActivityService persists member events as activity rows and prunes
// old ones on a schedule.
type ActivityService struct {
	db            *gorm.DB
	retention     config.ActivityConfig
	cronScheduler *cron.Cron
}

func NewActivityService(db *gorm.DB, cfg config.ActivityConfig) *ActivityService {
	return &ActivityService{db: db, retention: cfg}
}

// ProcessMemberEvent records one committed membership transition. The
// unique index on event_id makes redelivered queue tasks harmless.
func (s *ActivityService) ProcessMemberEvent(ctx context.Context, event *MemberEvent) error {
	row := models.ActivityEvent{
		EventID:   event.EventID,
		ProjectID: event.ProjectID,
		ActorID:   event.ActorID,
		UserID:    event.UserID,
		Action:    event.Action,
		Message:   eventMessage(event),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(&row).Error
}

func eventMessage(event *MemberEvent) string {
	switch event.Action {
	case ActionMemberAdded:
		return fmt.Sprintf("user %d was added to project %d", event.UserID, event.ProjectID)
	case ActionRequestApproved:
		return fmt.Sprintf("access request of user %d to project %d was approved", event.UserID, event.ProjectID)
	case ActionMemberRemoved:
		return fmt.Sprintf("user %d was removed from project %d", event.UserID, event.ProjectID)
	case ActionMembersImported:
		return fmt.Sprintf("user %d was imported into project %d", event.UserID, event.ProjectID)
	}
	return event.Action
}

type ActivityListRequest struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	ProjectID *uint  `form:"project_id"`
	Action    string `form:"action"`
}

type ActivityListResponse struct {
	Total    int64                  `json:"total"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"page_size"`
	Items    []models.ActivityEvent `json:"items"`
}

// List returns paginated activity events, newest first.
func (s *ActivityService) List(req *ActivityListRequest) (*ActivityListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	var events []models.ActivityEvent
	var total int64

	query := s.db.Model(&models.ActivityEvent{})
	if req.ProjectID != nil {
		query = query.Where("project_id = ?", *req.ProjectID)
	}
	if req.Action != "" {
		query = query.Where("action = ?", req.Action)
	}

	query.Count(&total)

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).
		Order("created_at DESC, id DESC").
		Find(&events).Error; err != nil {
		return nil, err
	}

	return &ActivityListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    events,
	}, nil
}

// CleanupOldEvents deletes events older than retentionDays. Returns
// the number of deleted records.
func (s *ActivityService) CleanupOldEvents(retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	result := s.db.Where("created_at < ?", cutoff).Delete(&models.ActivityEvent{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// StartRetentionScheduler runs the cleanup on the configured cron
// expression. Retention <= 0 disables the scheduler entirely.
func (s *ActivityService) StartRetentionScheduler() {
	if s.retention.RetentionDays <= 0 {
		logger.Infof("[Activity] Retention cleanup disabled (retention_days <= 0)")
		return
	}

	expr := s.retention.CleanupCron
	if expr == "" {
		expr = "0 3 * * *"
	}

	s.cronScheduler = cron.New()
	if _, err := s.cronScheduler.AddFunc(expr, s.runCleanup); err != nil {
		logger.Errorf("[Activity] Failed to schedule cleanup: %v", err)
		return
	}
	s.cronScheduler.Start()
	logger.Infof("[Activity] Retention cleanup scheduled (cron: %s, retention: %d days)",
		expr, s.retention.RetentionDays)
}

// StopRetentionScheduler stops the cleanup schedule.
func (s *ActivityService) StopRetentionScheduler() {
	if s.cronScheduler != nil {
		s.cronScheduler.Stop()
	}
}

func (s *ActivityService) runCleanup() {
	deleted, err := s.CleanupOldEvents(s.retention.RetentionDays)
	if err != nil {
		logger.Errorf("[Activity] Failed to cleanup old events: %v", err)
		return
	}
	if deleted > 0 {
		logger.Infof("[Activity] Cleaned up %d events older than %d days",
			deleted, s.retention.RetentionDays)
	}
}
