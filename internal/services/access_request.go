package services

import (
	"errors"

	"github.com/openkite/kitehub/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AccessRequestService manages pending access requests: rows in the
// membership table with status=requested. Requests grant no
// privileges until approved by a master-or-above member.
type AccessRequestService struct {
	db *gorm.DB
}

func NewAccessRequestService(db *gorm.DB) *AccessRequestService {
	return &AccessRequestService{db: db}
}

// RequestAccess files an access request for userID on the project.
// The row is stored at guest level; approval may elevate it.
func (s *AccessRequestService) RequestAccess(projectID, userID uint) (*models.Membership, error) {
	request := models.Membership{
		ProjectID:   projectID,
		UserID:      userID,
		AccessLevel: models.GuestAccess,
		Status:      models.MembershipRequested,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := requireProject(tx, projectID); err != nil {
			return err
		}

		var existing models.Membership
		err := tx.Where("project_id = ? AND user_id = ?", projectID, userID).
			First(&existing).Error
		if err == nil {
			if existing.Status == models.MembershipActive {
				return ErrAlreadyMember
			}
			return ErrAlreadyRequested
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		// The unique index on (project_id, user_id) is the real
		// guard: two concurrent requests race to this insert and the
		// loser inserts nothing.
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "project_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).Create(&request)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrAlreadyRequested
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// Withdraw deletes the user's pending request on the project.
func (s *AccessRequestService) Withdraw(projectID, userID uint) error {
	result := s.db.Where("project_id = ? AND user_id = ? AND status = ?",
		projectID, userID, models.MembershipRequested).
		Delete(&models.Membership{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Approve turns the target user's pending request into an active
// membership. The approver must hold master access or above on the
// project. A valid level elevates the new member beyond the guest
// default; zero keeps the level stored on the request.
func (s *AccessRequestService) Approve(projectID, approverID, targetUserID uint, level models.AccessLevel) (*models.Membership, error) {
	var approved models.Membership

	err := s.db.Transaction(func(tx *gorm.DB) error {
		resolver := newAccessResolver(tx)
		ok, err := resolver.AtLeast(projectID, approverID, models.MasterAccess)
		if err != nil {
			return err
		}
		if !ok {
			return ErrForbidden
		}

		err = tx.Where("project_id = ? AND user_id = ? AND status = ?",
			projectID, targetUserID, models.MembershipRequested).
			First(&approved).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		approved.Status = models.MembershipActive
		if level.Valid() {
			approved.AccessLevel = level
		}
		return tx.Save(&approved).Error
	})
	if err != nil {
		return nil, err
	}
	return &approved, nil
}
