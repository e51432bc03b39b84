package service

import (
	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

// ControlService exposes the shared control catalog. The catalog is
// global and read-only for tenants; it is seeded by migration and
// maintainable only by platform admins.
type ControlService struct {
	controlRepo *repository.ControlRepository
}

// NewControlService creates a new control catalog service
func NewControlService(controlRepo *repository.ControlRepository) *ControlService {
	return &ControlService{controlRepo: controlRepo}
}

// List returns the full catalog ordered by control code.
func (s *ControlService) List() ([]models.Control, error) {
	return s.controlRepo.GetAll()
}

// Get retrieves a single control
func (s *ControlService) Get(id uint) (*models.Control, error) {
	control, err := s.controlRepo.GetByID(id)
	if err == repository.ErrControlNotFound {
		return nil, workflow.NewNotFoundError("control", id)
	}
	return control, err
}

// Create adds a control to the catalog. Platform admins only.
func (s *ControlService) Create(user *models.User, control *models.Control) error {
	if !user.IsPlatformAdmin {
		return workflow.NewAuthorizationError("only platform admins can modify the control catalog")
	}
	if control.Code == "" || control.Title == "" {
		return workflow.NewValidationError("code and title are required")
	}
	if existing, err := s.controlRepo.GetByCode(control.Code); err == nil && existing != nil {
		return workflow.NewValidationError("a control with this code already exists")
	}
	return s.controlRepo.Create(control)
}
