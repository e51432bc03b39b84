package models

import (
	"encoding/json"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

// User represents a user in the system
type User struct {
	ID              uint       `json:"id" db:"id"`
	Email           string     `json:"email" db:"email"`
	PasswordHash    string     `json:"-" db:"password_hash"`
	FirstName       string     `json:"first_name" db:"first_name"`
	LastName        string     `json:"last_name" db:"last_name"`
	IsPlatformAdmin bool       `json:"is_platform_admin" db:"is_platform_admin"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// FullName returns the user's display name.
func (u *User) FullName() string {
	if u.FirstName == "" {
		return u.LastName
	}
	return u.FirstName + " " + u.LastName
}

// Organization represents a tenant organization
type Organization struct {
	ID          uint      `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description,omitempty" db:"description"`
	// Designated document reviewer and approver for this organization
	ReviewerID *uint     `json:"reviewer_id,omitempty" db:"reviewer_id"`
	ApproverID *uint     `json:"approver_id,omitempty" db:"approver_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// OrganizationMember represents a user's membership in an organization
type OrganizationMember struct {
	ID             uint          `json:"id" db:"id"`
	OrganizationID uint          `json:"organization_id" db:"organization_id"`
	UserID         uint          `json:"user_id" db:"user_id"`
	Role           workflow.Role `json:"role" db:"role"`
	Designation    string        `json:"designation" db:"designation"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at" db:"updated_at"`
}

// MemberWithUser extends OrganizationMember with user information
type MemberWithUser struct {
	OrganizationMember
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Risk represents an org-scoped information security risk
type Risk struct {
	ID            uint             `json:"id" db:"id"`
	OrgID         uint             `json:"organization_id" db:"organization_id"`
	Title         string           `json:"title" db:"title"`
	Description   string           `json:"description" db:"description"`
	Category      string           `json:"category" db:"category"`
	Owner         string           `json:"owner" db:"owner"`
	Likelihood    int              `json:"likelihood" db:"likelihood"` // 1-5
	Impact        int              `json:"impact" db:"impact"`         // 1-5
	InherentRisk  int              `json:"inherent_risk" db:"inherent_risk"`
	TreatmentPlan string           `json:"treatment_plan" db:"treatment_plan"`
	Status        workflow.Status  `json:"approval_status" db:"approval_status"`
	Version       workflow.Version `json:"version" db:"version"`
	RetiredReason *string          `json:"retired_reason,omitempty" db:"retired_reason"`
	RetiredByID   *uint            `json:"retired_by_id,omitempty" db:"retired_by_id"`
	RetiredAt     *time.Time       `json:"retired_at,omitempty" db:"retired_at"`
	CreatedByID   *uint            `json:"created_by_id,omitempty" db:"created_by_id"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

func (r *Risk) EntityID() uint                           { return r.ID }
func (r *Risk) EntityKind() string                       { return workflow.KindRisk }
func (r *Risk) OrganizationID() uint                     { return r.OrgID }
func (r *Risk) ApprovalStatus() workflow.Status          { return r.Status }
func (r *Risk) SetApprovalStatus(s workflow.Status)      { r.Status = s }
func (r *Risk) CurrentVersion() workflow.Version         { return r.Version }
func (r *Risk) SetCurrentVersion(v workflow.Version)     { r.Version = v }
func (r *Risk) SnapshotPayload() (json.RawMessage, error) {
	return json.Marshal(r)
}

// Control represents a row of the global ISO 27001 control catalog
type Control struct {
	ID          uint      `json:"id" db:"id"`
	Code        string    `json:"code" db:"code"` // e.g. A.5.1
	Clause      string    `json:"clause" db:"clause"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// SoAItem represents an org's statement-of-applicability entry for one control
type SoAItem struct {
	ID                   uint             `json:"id" db:"id"`
	OrgID                uint             `json:"organization_id" db:"organization_id"`
	ControlID            uint             `json:"control_id" db:"control_id"`
	Applicable           bool             `json:"applicable" db:"applicable"`
	Justification        string           `json:"justification" db:"justification"`
	ImplementationStatus string           `json:"implementation_status" db:"implementation_status"` // not_implemented, partial, implemented
	Status               workflow.Status  `json:"approval_status" db:"approval_status"`
	Version              workflow.Version `json:"version" db:"version"`
	CreatedByID          *uint            `json:"created_by_id,omitempty" db:"created_by_id"`
	CreatedAt            time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at" db:"updated_at"`
}

func (s *SoAItem) EntityID() uint                       { return s.ID }
func (s *SoAItem) EntityKind() string                   { return workflow.KindSoAItem }
func (s *SoAItem) OrganizationID() uint                 { return s.OrgID }
func (s *SoAItem) ApprovalStatus() workflow.Status      { return s.Status }
func (s *SoAItem) SetApprovalStatus(st workflow.Status) { s.Status = st }
func (s *SoAItem) CurrentVersion() workflow.Version     { return s.Version }
func (s *SoAItem) SetCurrentVersion(v workflow.Version) { s.Version = v }
func (s *SoAItem) SnapshotPayload() (json.RawMessage, error) {
	return json.Marshal(s)
}

// SoAItemWithControl extends SoAItem with catalog information
type SoAItemWithControl struct {
	SoAItem
	ControlCode  string `json:"control_code"`
	ControlTitle string `json:"control_title"`
}

// Exemption represents an org-scoped exemption from a control
type Exemption struct {
	ID            uint             `json:"id" db:"id"`
	OrgID         uint             `json:"organization_id" db:"organization_id"`
	Title         string           `json:"title" db:"title"`
	ControlID     *uint            `json:"control_id,omitempty" db:"control_id"`
	Justification string           `json:"justification" db:"justification"`
	ExpiresAt     *time.Time       `json:"expires_at,omitempty" db:"expires_at"`
	Status        workflow.Status  `json:"approval_status" db:"approval_status"`
	Version       workflow.Version `json:"version" db:"version"`
	CreatedByID   *uint            `json:"created_by_id,omitempty" db:"created_by_id"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at" db:"updated_at"`
}

func (e *Exemption) EntityID() uint                       { return e.ID }
func (e *Exemption) EntityKind() string                   { return workflow.KindExemption }
func (e *Exemption) OrganizationID() uint                 { return e.OrgID }
func (e *Exemption) ApprovalStatus() workflow.Status      { return e.Status }
func (e *Exemption) SetApprovalStatus(s workflow.Status)  { e.Status = s }
func (e *Exemption) CurrentVersion() workflow.Version     { return e.Version }
func (e *Exemption) SetCurrentVersion(v workflow.Version) { e.Version = v }
func (e *Exemption) SnapshotPayload() (json.RawMessage, error) {
	return json.Marshal(e)
}

// Document represents an org-scoped governance document (risk register or SoA)
type Document struct {
	ID          uint             `json:"id" db:"id"`
	OrgID       uint             `json:"organization_id" db:"organization_id"`
	Kind        string           `json:"kind" db:"kind"` // risk_register or soa_document
	Title       string           `json:"title" db:"title"`
	Summary     string           `json:"summary" db:"summary"`
	Status      workflow.Status  `json:"approval_status" db:"approval_status"`
	Version     workflow.Version `json:"version" db:"version"`
	CreatedByID *uint            `json:"created_by_id,omitempty" db:"created_by_id"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

func (d *Document) EntityID() uint                       { return d.ID }
func (d *Document) EntityKind() string                   { return d.Kind }
func (d *Document) OrganizationID() uint                 { return d.OrgID }
func (d *Document) ApprovalStatus() workflow.Status      { return d.Status }
func (d *Document) SetApprovalStatus(s workflow.Status)  { d.Status = s }
func (d *Document) CurrentVersion() workflow.Version     { return d.Version }
func (d *Document) SetCurrentVersion(v workflow.Version) { d.Version = v }
func (d *Document) SnapshotPayload() (json.RawMessage, error) {
	return json.Marshal(d)
}

// Incident represents an org-scoped security incident. Details are
// encrypted at rest; the plaintext lives only in the Details field.
type Incident struct {
	ID               uint       `json:"id" db:"id"`
	OrgID            uint       `json:"organization_id" db:"organization_id"`
	Title            string     `json:"title" db:"title"`
	Severity         string     `json:"severity" db:"severity"` // low, medium, high, critical
	Status           string     `json:"status" db:"status"`     // open, investigating, resolved, closed
	Details          string     `json:"details" db:"-"`
	DetailsEncrypted []byte     `json:"-" db:"details_encrypted"`
	DetailsNonce     []byte     `json:"-" db:"details_nonce"`
	OccurredAt       *time.Time `json:"occurred_at,omitempty" db:"occurred_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	ReportedByID     *uint      `json:"reported_by_id,omitempty" db:"reported_by_id"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// AuditEngagement represents a scheduled internal or external audit
type AuditEngagement struct {
	ID             uint       `json:"id" db:"id"`
	OrgID          uint       `json:"organization_id" db:"organization_id"`
	Title          string     `json:"title" db:"title"`
	Type           string     `json:"type" db:"type"` // internal or external
	Auditor        string     `json:"auditor" db:"auditor"`
	ScheduledStart *time.Time `json:"scheduled_start,omitempty" db:"scheduled_start"`
	ScheduledEnd   *time.Time `json:"scheduled_end,omitempty" db:"scheduled_end"`
	Status         string     `json:"status" db:"status"` // planned, in_progress, completed
	OutcomeSummary string     `json:"outcome_summary" db:"outcome_summary"`
	CreatedByID    *uint      `json:"created_by_id,omitempty" db:"created_by_id"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// AuditLog represents an audit log entry
type AuditLog struct {
	ID        uint      `json:"id" db:"id"`
	UserID    *uint     `json:"user_id,omitempty" db:"user_id"`
	UserEmail *string   `json:"user_email,omitempty" db:"user_email"`
	OrgID     *uint     `json:"organization_id,omitempty" db:"organization_id"`
	Action    string    `json:"action" db:"action"`
	Resource  string    `json:"resource" db:"resource"`
	Details   string    `json:"details,omitempty" db:"details"`
	IPAddress string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string    `json:"user_agent,omitempty" db:"user_agent"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Notification represents an outbox row for a user notification.
// Rows are written in the same transaction as the change they
// announce; email delivery happens after commit.
type Notification struct {
	ID          uint       `json:"id" db:"id"`
	UserID      uint       `json:"user_id" db:"user_id"`
	OrgID       uint       `json:"organization_id" db:"organization_id"`
	Kind        string     `json:"kind" db:"kind"` // approval_requested, approved, rejected, exemption_expiring
	EntityKind  string     `json:"entity_kind" db:"entity_kind"`
	EntityID    uint       `json:"entity_id" db:"entity_id"`
	Subject     string     `json:"subject" db:"subject"`
	Body        string     `json:"body" db:"body"`
	ReadAt      *time.Time `json:"read_at,omitempty" db:"read_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// Session represents a user session
type Session struct {
	ID             string    `json:"id" db:"id"`
	UserID         uint      `json:"user_id" db:"user_id"`
	SessionID      string    `json:"session_id" db:"session_id"` // Groups access and refresh tokens from same login
	JTI            string    `json:"jti" db:"jti"`
	TokenType      string    `json:"token_type" db:"token_type"` // "access" or "refresh"
	ExpiresAt      time.Time `json:"expires_at" db:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	IPAddress      string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent      string    `json:"user_agent,omitempty" db:"user_agent"`
}
