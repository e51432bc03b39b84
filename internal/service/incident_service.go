package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
	"github.com/cdmx-in/isms-manager-sub001/internal/securestore"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

// IncidentService handles security incidents. Incident details are
// considered sensitive and are stored encrypted; only the title,
// severity and status are queryable in the clear.
type IncidentService struct {
	db      *sql.DB
	orgRepo *repository.OrganizationRepository
	cipher  *securestore.Cipher
}

// NewIncidentService creates a new incident service
func NewIncidentService(db *sql.DB, cipher *securestore.Cipher) *IncidentService {
	return &IncidentService{
		db:      db,
		orgRepo: repository.NewOrganizationRepository(db),
		cipher:  cipher,
	}
}

var incidentSeverities = map[string]bool{
	"low":      true,
	"medium":   true,
	"high":     true,
	"critical": true,
}

var incidentStatuses = map[string]bool{
	"open":          true,
	"investigating": true,
	"resolved":      true,
	"closed":        true,
}

// IncidentInput carries the mutable incident fields
type IncidentInput struct {
	Title      string     `json:"title"`
	Severity   string     `json:"severity"`
	Status     string     `json:"status"`
	Details    string     `json:"details"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

func (in *IncidentInput) validate() error {
	if in.Title == "" {
		return workflow.NewValidationError("title is required")
	}
	if !incidentSeverities[in.Severity] {
		return workflow.NewValidationError("severity must be one of low, medium, high, critical")
	}
	if in.Status != "" && !incidentStatuses[in.Status] {
		return workflow.NewValidationError("status must be one of open, investigating, resolved, closed")
	}
	return nil
}

// additionalData binds the ciphertext to the owning organization so an
// encrypted blob cannot be replayed under another tenant.
func incidentAAD(orgID uint) string {
	return fmt.Sprintf("incident:org:%d", orgID)
}

// Report records a new incident with encrypted details.
func (s *IncidentService) Report(ctx context.Context, user *models.User, orgID uint, in IncidentInput) (*models.Incident, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	actor, err := ResolveActorMember(s.orgRepo, user, orgID)
	if err != nil {
		return nil, err
	}
	if !actor.CanEdit() {
		return nil, workflow.NewAuthorizationError("viewers cannot report incidents")
	}

	inc := &models.Incident{
		OrgID:        orgID,
		Title:        in.Title,
		Severity:     in.Severity,
		Status:       in.Status,
		Details:      in.Details,
		OccurredAt:   in.OccurredAt,
		ReportedByID: &user.ID,
	}
	if inc.Status == "" {
		inc.Status = "open"
	}
	inc.DetailsEncrypted, inc.DetailsNonce, err = s.cipher.Encrypt(in.Details, incidentAAD(orgID))
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt incident details: %w", err)
	}

	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := repository.NewIncidentRepository(tx).Create(inc); err != nil {
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "create", "incident",
			fmt.Sprintf("Reported %s incident %q (ID: %d)", inc.Severity, inc.Title, inc.ID))
	})
	if err != nil {
		return nil, err
	}

	return inc, nil
}

// Get retrieves an incident with its details decrypted.
func (s *IncidentService) Get(user *models.User, orgID, id uint) (*models.Incident, error) {
	if _, err := ResolveActorMember(s.orgRepo, user, orgID); err != nil {
		return nil, err
	}

	inc, err := repository.NewIncidentRepository(s.db).GetByID(orgID, id)
	if err == repository.ErrIncidentNotFound {
		return nil, workflow.NewNotFoundError("incident", id)
	}
	if err != nil {
		return nil, err
	}

	inc.Details, err = s.cipher.Decrypt(inc.DetailsEncrypted, inc.DetailsNonce, incidentAAD(orgID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt incident details: %w", err)
	}

	return inc, nil
}

// List retrieves incidents for an organization. Details stay encrypted
// in list views.
func (s *IncidentService) List(user *models.User, orgID uint, status string, limit, offset int) ([]models.Incident, error) {
	if _, err := ResolveActorMember(s.orgRepo, user, orgID); err != nil {
		return nil, err
	}
	if status != "" && !incidentStatuses[status] {
		return nil, workflow.NewValidationError("unknown incident status filter")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return repository.NewIncidentRepository(s.db).ListByOrg(orgID, status, limit, offset)
}

// Update applies field edits, re-encrypting the details. Moving the
// status to resolved or closed stamps the resolution time.
func (s *IncidentService) Update(ctx context.Context, user *models.User, orgID, id uint, in IncidentInput) (*models.Incident, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	actor, err := ResolveActorMember(s.orgRepo, user, orgID)
	if err != nil {
		return nil, err
	}
	if !actor.CanEdit() {
		return nil, workflow.NewAuthorizationError("viewers cannot update incidents")
	}

	var inc *models.Incident
	err = runInTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := repository.NewIncidentRepository(tx)
		inc, err = repo.GetByID(orgID, id)
		if err == repository.ErrIncidentNotFound {
			return workflow.NewNotFoundError("incident", id)
		}
		if err != nil {
			return err
		}

		inc.Title = in.Title
		inc.Severity = in.Severity
		inc.OccurredAt = in.OccurredAt
		if in.Status != "" && in.Status != inc.Status {
			inc.Status = in.Status
			if in.Status == "resolved" || in.Status == "closed" {
				now := time.Now()
				inc.ResolvedAt = &now
			} else {
				inc.ResolvedAt = nil
			}
		}
		inc.Details = in.Details
		inc.DetailsEncrypted, inc.DetailsNonce, err = s.cipher.Encrypt(in.Details, incidentAAD(orgID))
		if err != nil {
			return fmt.Errorf("failed to encrypt incident details: %w", err)
		}

		if err := repo.Update(inc); err != nil {
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "update", "incident",
			fmt.Sprintf("Updated incident %q (ID: %d, status %s)", inc.Title, inc.ID, inc.Status))
	})
	if err != nil {
		return nil, err
	}

	return inc, nil
}

// Delete removes an incident. Restricted to org admins.
func (s *IncidentService) Delete(ctx context.Context, user *models.User, orgID, id uint) error {
	actor, err := ResolveActorMember(s.orgRepo, user, orgID)
	if err != nil {
		return err
	}
	if !actor.PlatformAdmin && actor.Role != workflow.RoleAdmin {
		return workflow.NewAuthorizationError("only admins can delete incidents")
	}

	return runInTx(ctx, s.db, func(tx *sql.Tx) error {
		repo := repository.NewIncidentRepository(tx)
		inc, err := repo.GetByID(orgID, id)
		if err == repository.ErrIncidentNotFound {
			return workflow.NewNotFoundError("incident", id)
		}
		if err != nil {
			return err
		}
		if err := repo.Delete(orgID, id); err != nil {
			return err
		}
		return auditInTx(tx, actor, user.Email, orgID, "delete", "incident",
			fmt.Sprintf("Deleted incident %q (ID: %d)", inc.Title, inc.ID))
	})
}
