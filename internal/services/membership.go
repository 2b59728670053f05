package services

import (
	"errors"

	"github.com/openkite/kitehub/internal/models"
	"github.com/openkite/kitehub/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LeaveOutcome distinguishes the two successful ways out of a
// project: deleting an active membership versus withdrawing a pending
// access request.
type LeaveOutcome int

const (
	LeaveLeft LeaveOutcome = iota + 1
	LeaveRequestWithdrawn
)

// MembershipService is the authorization-gated facade over the
// membership table. Every mutation checks the actor's effective
// access level and runs inside a single transaction, so either the
// membership row transitions fully or the store is left unchanged.
type MembershipService struct {
	db       *gorm.DB
	requests *AccessRequestService
	events   EventQueue
}

func NewMembershipService(db *gorm.DB, events EventQueue) *MembershipService {
	return &MembershipService{
		db:       db,
		requests: NewAccessRequestService(db),
		events:   events,
	}
}

// Requests exposes the access-request workflow bound to the same store.
func (s *MembershipService) Requests() *AccessRequestService {
	return s.requests
}

// AddMembers grants the given access level to each listed user who is
// not already a member or requester on the project. The actor must
// hold master access or above. Owner can never be granted through
// this path. Returns the number of newly created memberships.
func (s *MembershipService) AddMembers(projectID, actorID uint, userIDs []uint, level models.AccessLevel) (int, error) {
	if len(userIDs) == 0 {
		return 0, ErrNoUsers
	}
	if !level.Valid() || level >= models.OwnerAccess {
		return 0, ErrForbidden
	}

	added := 0
	var pending []*MemberEvent
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := requireProject(tx, projectID); err != nil {
			return err
		}

		resolver := newAccessResolver(tx)
		ok, err := resolver.AtLeast(projectID, actorID, models.MasterAccess)
		if err != nil {
			return err
		}
		if !ok {
			return ErrForbidden
		}

		for _, userID := range userIDs {
			member := models.Membership{
				ProjectID:   projectID,
				UserID:      userID,
				AccessLevel: level,
				Status:      models.MembershipActive,
			}
			// Existing rows, active or requested, are skipped without
			// error; only fresh inserts count.
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "project_id"}, {Name: "user_id"}},
				DoNothing: true,
			}).Create(&member)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				added++
				pending = append(pending, NewMemberEvent(projectID, actorID, userID, ActionMemberAdded))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.emit(pending)
	return added, nil
}

// RemoveMember deletes the membership row identified by memberID on
// the project. Requires master access or above, except that any user
// may remove their own row. Owners cannot remove themselves; like
// Leave, that transition would leave the project ownerless.
func (s *MembershipService) RemoveMember(projectID, actorID, memberID uint) error {
	var pending []*MemberEvent
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var member models.Membership
		err := tx.Where("id = ? AND project_id = ?", memberID, projectID).
			First(&member).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if member.UserID == actorID {
			// Self-removal is a leave. An owner may not drop their own
			// row this way either, or the project ends up ownerless.
			if member.Status == models.MembershipActive &&
				member.AccessLevel == models.OwnerAccess {
				return ErrForbidden
			}
		} else {
			resolver := newAccessResolver(tx)
			ok, err := resolver.AtLeast(projectID, actorID, models.MasterAccess)
			if err != nil {
				return err
			}
			if !ok {
				return ErrForbidden
			}
		}

		if err := tx.Delete(&member).Error; err != nil {
			return err
		}
		if member.Status == models.MembershipActive {
			pending = append(pending, NewMemberEvent(projectID, actorID, member.UserID, ActionMemberRemoved))
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.emit(pending)
	return nil
}

// Leave removes the actor's own presence on the project. A pending
// request is withdrawn; an active non-owner membership is deleted; an
// owner may never leave through this path, which is what keeps a
// personal project from ending up ownerless.
func (s *MembershipService) Leave(projectID, actorID uint) (LeaveOutcome, error) {
	var outcome LeaveOutcome
	var pending []*MemberEvent

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var member models.Membership
		err := tx.Where("project_id = ? AND user_id = ?", projectID, actorID).
			First(&member).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		if member.Status == models.MembershipRequested {
			outcome = LeaveRequestWithdrawn
			return tx.Delete(&member).Error
		}

		if member.AccessLevel == models.OwnerAccess {
			return ErrForbidden
		}

		outcome = LeaveLeft
		if err := tx.Delete(&member).Error; err != nil {
			return err
		}
		pending = append(pending, NewMemberEvent(projectID, actorID, actorID, ActionMemberRemoved))
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.emit(pending)
	return outcome, nil
}

// ApproveRequest approves the pending access request identified by
// memberID on the project.
func (s *MembershipService) ApproveRequest(projectID, actorID, memberID uint) (*models.Membership, error) {
	var request models.Membership
	err := s.db.Where("id = ? AND project_id = ? AND status = ?",
		memberID, projectID, models.MembershipRequested).
		First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	approved, err := s.requests.Approve(projectID, actorID, request.UserID, 0)
	if err != nil {
		return nil, err
	}
	s.emit([]*MemberEvent{NewMemberEvent(projectID, actorID, approved.UserID, ActionRequestApproved)})
	return approved, nil
}

// ImportMembers copies every active membership from the source
// project into the destination, skipping users already present there.
// The import is scoped by what the actor can see: without an active
// membership on the source, of any tier, nothing is copied. Owner
// rows are imported at master level. Returns the number imported.
func (s *MembershipService) ImportMembers(projectID, actorID, sourceProjectID uint) (int, error) {
	imported := 0
	var pending []*MemberEvent

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := requireProject(tx, projectID); err != nil {
			return err
		}
		if err := requireProject(tx, sourceProjectID); err != nil {
			return err
		}

		resolver := newAccessResolver(tx)
		_, visible, err := resolver.Level(sourceProjectID, actorID)
		if err != nil {
			return err
		}
		if !visible {
			return ErrForbidden
		}

		var source []models.Membership
		if err := tx.Where("project_id = ? AND status = ?",
			sourceProjectID, models.MembershipActive).
			Find(&source).Error; err != nil {
			return err
		}

		for _, m := range source {
			level := m.AccessLevel
			if level == models.OwnerAccess {
				level = models.MasterAccess
			}
			member := models.Membership{
				ProjectID:   projectID,
				UserID:      m.UserID,
				AccessLevel: level,
				Status:      models.MembershipActive,
			}
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "project_id"}, {Name: "user_id"}},
				DoNothing: true,
			}).Create(&member)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				imported++
				pending = append(pending, NewMemberEvent(projectID, actorID, m.UserID, ActionMembersImported))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.emit(pending)
	return imported, nil
}

// ListMembers returns the project's active memberships.
func (s *MembershipService) ListMembers(projectID uint) ([]models.Membership, error) {
	var members []models.Membership
	err := s.db.Where("project_id = ? AND status = ?", projectID, models.MembershipActive).
		Preload("User").
		Order("access_level DESC, id ASC").
		Find(&members).Error
	return members, err
}

// ListAccessRequests returns the project's pending access requests.
func (s *MembershipService) ListAccessRequests(projectID uint) ([]models.Membership, error) {
	var requests []models.Membership
	err := s.db.Where("project_id = ? AND status = ?", projectID, models.MembershipRequested).
		Preload("User").
		Order("id ASC").
		Find(&requests).Error
	return requests, err
}

// Find returns the membership row for (project, user) regardless of
// status.
func (s *MembershipService) Find(projectID, userID uint) (*models.Membership, error) {
	var member models.Membership
	err := s.db.Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// emit hands committed transitions to the event queue. Queue failures
// only lose the activity record, never the membership change.
func (s *MembershipService) emit(events []*MemberEvent) {
	if s.events == nil {
		return
	}
	for _, e := range events {
		if err := s.events.Enqueue(e); err != nil {
			logger.Warnf("[Membership] failed to enqueue %s event: %v", e.Action, err)
		}
	}
}
