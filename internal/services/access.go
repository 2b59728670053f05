package services

import (
	"errors"

	"github.com/openkite/kitehub/internal/models"
	"gorm.io/gorm"
)

// accessResolver answers "what is this user's effective access level
// on this project" for the duration of one operation. Only rows with
// status=active grant privileges; a pending request counts for
// nothing. Lookups are memoized so an operation that checks the same
// actor several times hits the database once.
type accessResolver struct {
	db    *gorm.DB
	cache map[[2]uint]models.AccessLevel
}

func newAccessResolver(db *gorm.DB) *accessResolver {
	return &accessResolver{
		db:    db,
		cache: make(map[[2]uint]models.AccessLevel),
	}
}

// Level returns the user's active access level on the project, or
// (0, false) if the user has no active membership there.
func (r *accessResolver) Level(projectID, userID uint) (models.AccessLevel, bool, error) {
	key := [2]uint{projectID, userID}
	if level, ok := r.cache[key]; ok {
		return level, level > 0, nil
	}

	var m models.Membership
	err := r.db.Where("project_id = ? AND user_id = ? AND status = ?",
		projectID, userID, models.MembershipActive).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.cache[key] = 0
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}

	r.cache[key] = m.AccessLevel
	return m.AccessLevel, true, nil
}

// AtLeast reports whether the user holds an active membership at or
// above the given level.
func (r *accessResolver) AtLeast(projectID, userID uint, level models.AccessLevel) (bool, error) {
	actual, ok, err := r.Level(projectID, userID)
	if err != nil || !ok {
		return false, err
	}
	return actual >= level, nil
}

// requireProject returns ErrNotFound unless the project exists. Insert
// paths call this first so membership rows can never point at a
// project id that was never created.
func requireProject(tx *gorm.DB, projectID uint) error {
	var count int64
	if err := tx.Model(&models.Project{}).
		Where("id = ?", projectID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}
