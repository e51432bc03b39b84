package workflow

import (
	"context"
	"encoding/json"
	"time"
)

// Entity is the accessor surface the engine needs from a versioned,
// approvable record. Each entity kind (risk, SoA item, exemption,
// document) adapts its model to this interface; the engine never sees
// domain fields directly.
type Entity interface {
	EntityID() uint
	EntityKind() string
	OrganizationID() uint

	ApprovalStatus() Status
	SetApprovalStatus(Status)

	CurrentVersion() Version
	SetCurrentVersion(Version)

	// SnapshotPayload returns a denormalized point-in-time copy of the
	// entity's state for the audit trail. It must be a serialized value,
	// never a reference that could later resolve to different data.
	SnapshotPayload() (json.RawMessage, error)
}

// Snapshot is an immutable record of an entity's state at a lifecycle
// action, keyed uniquely by (entity kind, entity id, version). Only the
// human-readable change description may be corrected after creation.
type Snapshot struct {
	ID                uint            `json:"id"`
	EntityKind        string          `json:"entity_kind"`
	EntityID          uint            `json:"entity_id"`
	OrganizationID    uint            `json:"organization_id"`
	Version           Version         `json:"version"`
	Action            string          `json:"action"`
	ChangeDescription string          `json:"change_description"`
	ActorName         string          `json:"actor"`
	ActorDesignation  string          `json:"actor_designation"`
	CreatedByID       *uint           `json:"created_by_id,omitempty"`
	ApprovedByID      *uint           `json:"approved_by_id,omitempty"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Store is the persistence surface the engine drives. Implementations
// run all writes of one operation inside a single database transaction
// so an entity's status can never diverge from its snapshot history.
type Store interface {
	// SaveWorkflowState persists the entity's status and version,
	// conditional on the (status, version) pair the entity was loaded
	// with. Returns ConflictError when the row changed underneath us.
	SaveWorkflowState(ctx context.Context, e Entity, fromStatus Status, fromVersion Version) error

	// UpsertSnapshot inserts the snapshot or, when one already exists
	// for (kind, id, version), updates its mutable fields in place.
	UpsertSnapshot(ctx context.Context, snap *Snapshot) error

	// LatestSnapshots returns up to limit snapshots for the entity,
	// newest first.
	LatestSnapshots(ctx context.Context, kind string, entityID uint, limit int) ([]Snapshot, error)

	// DeleteSnapshot removes a snapshot by id. Only the discard-revision
	// path may call this.
	DeleteSnapshot(ctx context.Context, snapshotID uint) error
}

// Gate decides who may pass the two approval stages for an entity.
// Entity-level kinds gate by membership role, document-level kinds by
// the organization's designated reviewer and approver.
type Gate interface {
	// CanFirstApprove guards the PENDING_FIRST_APPROVAL stage.
	CanFirstApprove(actor Actor, e Entity) bool
	// CanSecondApprove guards the PENDING_SECOND_APPROVAL stage.
	CanSecondApprove(actor Actor, e Entity) bool
}

// RoleGate is the entity-level gate: LOCAL_ADMIN (or ADMIN) performs
// the first approval, ADMIN the second. Platform admins pass both.
type RoleGate struct{}

func (RoleGate) CanFirstApprove(actor Actor, _ Entity) bool {
	if actor.PlatformAdmin {
		return true
	}
	return actor.Member && (actor.Role == RoleLocalAdmin || actor.Role == RoleAdmin)
}

func (RoleGate) CanSecondApprove(actor Actor, _ Entity) bool {
	if actor.PlatformAdmin {
		return true
	}
	return actor.Member && actor.Role == RoleAdmin
}

// DesignatedGate is the document-level gate: the organization assigns a
// reviewer (first stage) and an approver (second stage) by user id.
// Organization admins and platform admins pass both stages.
type DesignatedGate struct {
	ReviewerID *uint
	ApproverID *uint
}

func (g DesignatedGate) CanFirstApprove(actor Actor, _ Entity) bool {
	if actor.PlatformAdmin {
		return true
	}
	if actor.Member && actor.Role == RoleAdmin {
		return true
	}
	return g.ReviewerID != nil && actor.Member && actor.UserID == *g.ReviewerID
}

func (g DesignatedGate) CanSecondApprove(actor Actor, _ Entity) bool {
	if actor.PlatformAdmin {
		return true
	}
	if actor.Member && actor.Role == RoleAdmin {
		return true
	}
	return g.ApproverID != nil && actor.Member && actor.UserID == *g.ApproverID
}
