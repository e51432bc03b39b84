package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

var (
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrMemberNotFound       = errors.New("organization member not found")
	ErrMemberExists         = errors.New("user is already a member of this organization")
)

// OrganizationRepository handles organization and membership database operations
type OrganizationRepository struct {
	db DBTX
}

// NewOrganizationRepository creates a new organization repository
func NewOrganizationRepository(db DBTX) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Create creates a new organization
func (r *OrganizationRepository) Create(org *models.Organization) error {
	query := `
		INSERT INTO organizations (name, description, reviewer_id, approver_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRow(query, org.Name, org.Description, org.ReviewerID, org.ApproverID, now, now).Scan(&org.ID)
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	org.CreatedAt = now
	org.UpdatedAt = now
	return nil
}

// GetByID retrieves an organization by ID
func (r *OrganizationRepository) GetByID(id uint) (*models.Organization, error) {
	query := `
		SELECT id, name, description, reviewer_id, approver_id, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`

	org := &models.Organization{}
	err := r.db.QueryRow(query, id).Scan(
		&org.ID,
		&org.Name,
		&org.Description,
		&org.ReviewerID,
		&org.ApproverID,
		&org.CreatedAt,
		&org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return org, nil
}

// Update updates an organization
func (r *OrganizationRepository) Update(org *models.Organization) error {
	query := `
		UPDATE organizations
		SET name = $1, description = $2, reviewer_id = $3, approver_id = $4, updated_at = $5
		WHERE id = $6
	`

	org.UpdatedAt = time.Now()
	result, err := r.db.Exec(query, org.Name, org.Description, org.ReviewerID, org.ApproverID, org.UpdatedAt, org.ID)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrOrganizationNotFound
	}

	return nil
}

// Delete deletes an organization
func (r *OrganizationRepository) Delete(id uint) error {
	query := `DELETE FROM organizations WHERE id = $1`
	_, err := r.db.Exec(query, id)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}
	return nil
}

// GetAll retrieves all organizations
func (r *OrganizationRepository) GetAll() ([]models.Organization, error) {
	query := `
		SELECT id, name, description, reviewer_id, approver_id, created_at, updated_at
		FROM organizations
		ORDER BY name
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to get organizations: %w", err)
	}
	defer rows.Close()

	var orgs []models.Organization
	for rows.Next() {
		var org models.Organization
		if err := rows.Scan(
			&org.ID,
			&org.Name,
			&org.Description,
			&org.ReviewerID,
			&org.ApproverID,
			&org.CreatedAt,
			&org.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}

	return orgs, rows.Err()
}

// GetForUser retrieves all organizations a user is a member of
func (r *OrganizationRepository) GetForUser(userID uint) ([]models.Organization, error) {
	query := `
		SELECT o.id, o.name, o.description, o.reviewer_id, o.approver_id, o.created_at, o.updated_at
		FROM organizations o
		INNER JOIN organization_members m ON o.id = m.organization_id
		WHERE m.user_id = $1
		ORDER BY o.name
	`

	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get organizations for user: %w", err)
	}
	defer rows.Close()

	var orgs []models.Organization
	for rows.Next() {
		var org models.Organization
		if err := rows.Scan(
			&org.ID,
			&org.Name,
			&org.Description,
			&org.ReviewerID,
			&org.ApproverID,
			&org.CreatedAt,
			&org.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan organization: %w", err)
		}
		orgs = append(orgs, org)
	}

	return orgs, rows.Err()
}

// AddMember adds a user to an organization
func (r *OrganizationRepository) AddMember(member *models.OrganizationMember) error {
	query := `
		INSERT INTO organization_members (organization_id, user_id, role, designation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (organization_id, user_id) DO NOTHING
		RETURNING id
	`

	now := time.Now()
	err := r.db.QueryRow(query, member.OrganizationID, member.UserID, member.Role, member.Designation, now, now).Scan(&member.ID)
	if err == sql.ErrNoRows {
		return ErrMemberExists
	}
	if err != nil {
		return fmt.Errorf("failed to add organization member: %w", err)
	}

	member.CreatedAt = now
	member.UpdatedAt = now
	return nil
}

// GetMember retrieves a user's membership in an organization
func (r *OrganizationRepository) GetMember(orgID, userID uint) (*models.OrganizationMember, error) {
	query := `
		SELECT id, organization_id, user_id, role, designation, created_at, updated_at
		FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`

	member := &models.OrganizationMember{}
	err := r.db.QueryRow(query, orgID, userID).Scan(
		&member.ID,
		&member.OrganizationID,
		&member.UserID,
		&member.Role,
		&member.Designation,
		&member.CreatedAt,
		&member.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization member: %w", err)
	}

	return member, nil
}

// UpdateMember updates a member's role and designation
func (r *OrganizationRepository) UpdateMember(member *models.OrganizationMember) error {
	query := `
		UPDATE organization_members
		SET role = $1, designation = $2, updated_at = $3
		WHERE organization_id = $4 AND user_id = $5
	`

	member.UpdatedAt = time.Now()
	result, err := r.db.Exec(query, member.Role, member.Designation, member.UpdatedAt, member.OrganizationID, member.UserID)
	if err != nil {
		return fmt.Errorf("failed to update organization member: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrMemberNotFound
	}

	return nil
}

// RemoveMember removes a user from an organization
func (r *OrganizationRepository) RemoveMember(orgID, userID uint) error {
	query := `DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2`
	result, err := r.db.Exec(query, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove organization member: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrMemberNotFound
	}
	return nil
}

// ListMembers retrieves all members of an organization with user details
func (r *OrganizationRepository) ListMembers(orgID uint) ([]models.MemberWithUser, error) {
	query := `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.designation, m.created_at, m.updated_at,
		       u.email, u.first_name, u.last_name
		FROM organization_members m
		INNER JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY u.last_name, u.first_name
	`

	rows, err := r.db.Query(query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization members: %w", err)
	}
	defer rows.Close()

	var members []models.MemberWithUser
	for rows.Next() {
		var m models.MemberWithUser
		if err := rows.Scan(
			&m.ID,
			&m.OrganizationID,
			&m.UserID,
			&m.Role,
			&m.Designation,
			&m.CreatedAt,
			&m.UpdatedAt,
			&m.Email,
			&m.FirstName,
			&m.LastName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan organization member: %w", err)
		}
		members = append(members, m)
	}

	return members, rows.Err()
}

// ListAdmins retrieves user IDs of all admins of an organization
func (r *OrganizationRepository) ListAdmins(orgID uint) ([]uint, error) {
	query := `
		SELECT user_id FROM organization_members
		WHERE organization_id = $1 AND role = $2
	`

	rows, err := r.db.Query(query, orgID, workflow.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to list organization admins: %w", err)
	}
	defer rows.Close()

	var ids []uint
	for rows.Next() {
		var id uint
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan admin id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// ListApprovers retrieves user IDs of members able to act at the given
// approval stage for entity-level workflows.
func (r *OrganizationRepository) ListApprovers(orgID uint, secondStage bool) ([]uint, error) {
	roles := []interface{}{orgID, workflow.RoleAdmin}
	query := `
		SELECT user_id FROM organization_members
		WHERE organization_id = $1 AND role = $2
	`
	if !secondStage {
		query = `
			SELECT user_id FROM organization_members
			WHERE organization_id = $1 AND role IN ($2, $3)
		`
		roles = append(roles, workflow.RoleLocalAdmin)
	}

	rows, err := r.db.Query(query, roles...)
	if err != nil {
		return nil, fmt.Errorf("failed to list approvers: %w", err)
	}
	defer rows.Close()

	var ids []uint
	for rows.Next() {
		var id uint
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan approver id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
