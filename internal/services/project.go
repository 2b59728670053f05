package services

import (
	"errors"

	"github.com/openkite/kitehub/internal/models"
	"gorm.io/gorm"
)

type ProjectService struct {
	db *gorm.DB
}

func NewProjectService(db *gorm.DB) *ProjectService {
	return &ProjectService{db: db}
}

type ProjectListRequest struct {
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
	Name       string `form:"name"`
	Visibility *int   `form:"visibility"`
}

type ProjectListResponse struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.Project `json:"items"`
}

type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Path        string `json:"path" binding:"required"`
	Description string `json:"description"`
	Visibility  *int   `json:"visibility"`
}

// Create stores a new project and seeds its Owner membership for the
// creator in the same transaction, so a personal project is never
// observable without an owner row.
func (s *ProjectService) Create(req *CreateProjectRequest, creatorID uint) (*models.Project, error) {
	visibility := models.PrivateVisibility
	if req.Visibility != nil {
		visibility = models.VisibilityLevel(*req.Visibility)
		if !visibility.Valid() {
			return nil, errors.New("invalid visibility level")
		}
	}

	project := models.Project{
		Name:        req.Name,
		Path:        req.Path,
		Description: req.Description,
		Visibility:  visibility,
		CreatedBy:   creatorID,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return err
		}
		owner := models.Membership{
			ProjectID:   project.ID,
			UserID:      creatorID,
			AccessLevel: models.OwnerAccess,
			Status:      models.MembershipActive,
		}
		return tx.Create(&owner).Error
	})
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// List returns paginated projects, optionally filtered by name and
// visibility.
func (s *ProjectService) List(req *ProjectListRequest) (*ProjectListResponse, error) {
	if req.Page <= 0 {
		req.Page = 1
	}
	if req.PageSize <= 0 {
		req.PageSize = 20
	}

	var projects []models.Project
	var total int64

	query := s.db.Model(&models.Project{})
	if req.Name != "" {
		query = query.Where("name LIKE ?", "%"+req.Name+"%")
	}
	if req.Visibility != nil {
		query = query.Where("visibility = ?", *req.Visibility)
	}

	query.Count(&total)

	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).
		Order("created_at DESC").
		Find(&projects).Error; err != nil {
		return nil, err
	}

	return &ProjectListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    projects,
	}, nil
}

// GetByID returns a project by ID
func (s *ProjectService) GetByID(id uint) (*models.Project, error) {
	var project models.Project
	if err := s.db.First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}
