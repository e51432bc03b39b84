package workflow

// Status is an approval-cycle state. CLOSED is terminal and only
// reachable for risks via retirement; it sits outside the approval
// cycle proper.
type Status string

const (
	StatusDraft                 Status = "DRAFT"
	StatusPendingFirstApproval  Status = "PENDING_FIRST_APPROVAL"
	StatusPendingSecondApproval Status = "PENDING_SECOND_APPROVAL"
	StatusApproved              Status = "APPROVED"
	StatusRejected              Status = "REJECTED"
	StatusClosed                Status = "CLOSED"
)

// Valid reports whether s is one of the known approval statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingFirstApproval, StatusPendingSecondApproval,
		StatusApproved, StatusRejected, StatusClosed:
		return true
	}
	return false
}

// Role is an organization membership role.
type Role string

const (
	RoleViewer     Role = "viewer"
	RoleMember     Role = "member"
	RoleLocalAdmin Role = "local_admin"
	RoleAdmin      Role = "admin"
)

// Valid reports whether r is one of the known membership roles.
func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleMember, RoleLocalAdmin, RoleAdmin:
		return true
	}
	return false
}

// Snapshot action labels. The latest snapshot's action drives the
// discard-revision precondition, so the labels are part of the
// contract, not just display text.
const (
	ActionDraftReview    = "Draft & Review"
	ActionSubmitted      = "Submitted for Review"
	ActionFirstApproval  = "First Approval"
	ActionSecondApproval = "Approved"
	ActionRejected       = "Rejected"
	ActionRetired        = "Risk Retired"
)

// Entity kind discriminators as stored in version_snapshots.
const (
	KindRisk         = "risk"
	KindSoAItem      = "soa_item"
	KindExemption    = "exemption"
	KindRiskRegister = "risk_register"
	KindSoADocument  = "soa_document"
)

// Actor carries the identity, display fields and authorization context
// of the user performing a workflow operation. It is built by the HTTP
// layer from the authenticated user and their organization membership
// and passed explicitly into every operation; the workflow engine never
// reads ambient request state.
type Actor struct {
	UserID        uint
	Name          string // display name recorded on snapshots
	Designation   string // role/title recorded on snapshots
	Role          Role   // membership role in the entity's organization
	Member        bool   // false when the user has no membership at all
	PlatformAdmin bool   // global administrator, passes every gate
}

// CanEdit reports whether the actor may mutate or submit entities:
// any organization member except viewers, or a platform admin.
func (a Actor) CanEdit() bool {
	if a.PlatformAdmin {
		return true
	}
	return a.Member && a.Role != RoleViewer
}
