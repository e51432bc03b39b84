package workflow

import (
	"context"
)

// Engine runs the two-stage approval cycle shared by every versioned
// entity kind. It is a precondition check plus a persistence step, not
// a queue: illegal transitions fail synchronously and leave the entity
// unchanged, and nothing is ever retried automatically.
//
// The engine is parameterized by a Store (transaction-scoped
// persistence) and a Gate (who passes each approval stage), so the
// risk, SoA, exemption and document services all share one
// implementation instead of repeating it per entity.
type Engine struct {
	store    Store
	gate     Gate
	retire   bool // risk-style retirement allowed
	revision bool // document-style new-revision / discard-revision allowed
	observe  func(kind, action string)
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetirement enables the retire operation (risks only).
func WithRetirement() Option {
	return func(e *Engine) { e.retire = true }
}

// WithRevisions enables new-revision and discard-revision (documents only).
func WithRevisions() Option {
	return func(e *Engine) { e.revision = true }
}

// WithObserver registers a callback invoked after every successful
// transition, used for metrics.
func WithObserver(fn func(kind, action string)) Option {
	return func(e *Engine) { e.observe = fn }
}

// NewEngine builds an Engine over the given store and gate.
func NewEngine(store Store, gate Gate, opts ...Option) *Engine {
	e := &Engine{store: store, gate: gate}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecordDraft writes the initial "Draft & Review" snapshot for a
// freshly created entity. The caller has already inserted the entity in
// DRAFT at version 0.1 within the same transaction.
func (e *Engine) RecordDraft(ctx context.Context, ent Entity, actor Actor, changeDescription string) (*Snapshot, error) {
	if !actor.CanEdit() {
		return nil, NewAuthorizationError("viewers cannot create entities")
	}
	if changeDescription == "" {
		changeDescription = "Initial draft"
	}
	return e.writeSnapshot(ctx, ent, actor, ActionDraftReview, changeDescription, &actor.UserID, nil)
}

// SubmitForReview moves a DRAFT or REJECTED entity into
// PENDING_FIRST_APPROVAL, advancing the version per bump and recording
// a "Submitted for Review" snapshot at the new version.
func (e *Engine) SubmitForReview(ctx context.Context, ent Entity, actor Actor, changeDescription string, bump BumpKind) (*Snapshot, error) {
	if !actor.CanEdit() {
		return nil, NewAuthorizationError("only organization members can submit for review")
	}
	if changeDescription == "" {
		return nil, NewValidationError("change description is required")
	}
	from := ent.ApprovalStatus()
	if from != StatusDraft && from != StatusRejected {
		return nil, NewInvalidStateTransitionError("submit for review", from)
	}

	fromVersion := ent.CurrentVersion()
	next := NextVersion(&fromVersion, bump)
	ent.SetApprovalStatus(StatusPendingFirstApproval)
	ent.SetCurrentVersion(next)
	if err := e.store.SaveWorkflowState(ctx, ent, from, fromVersion); err != nil {
		return nil, err
	}
	snap, err := e.writeSnapshot(ctx, ent, actor, ActionSubmitted, changeDescription, &actor.UserID, nil)
	if err != nil {
		return nil, err
	}
	e.observed(ent, "submit_for_review")
	return snap, nil
}

// FirstApproval moves PENDING_FIRST_APPROVAL to
// PENDING_SECOND_APPROVAL. The version does not change; the snapshot at
// the current version is updated in place.
func (e *Engine) FirstApproval(ctx context.Context, ent Entity, actor Actor, comments string) (*Snapshot, error) {
	if !e.gate.CanFirstApprove(actor, ent) {
		return nil, NewAuthorizationError("actor is not authorized for first approval")
	}
	from := ent.ApprovalStatus()
	if from != StatusPendingFirstApproval {
		return nil, NewInvalidStateTransitionError("first-approve", from)
	}

	ent.SetApprovalStatus(StatusPendingSecondApproval)
	if err := e.store.SaveWorkflowState(ctx, ent, from, ent.CurrentVersion()); err != nil {
		return nil, err
	}
	snap, err := e.writeSnapshot(ctx, ent, actor, ActionFirstApproval, comments, nil, &actor.UserID)
	if err != nil {
		return nil, err
	}
	e.observed(ent, "first_approval")
	return snap, nil
}

// SecondApproval moves PENDING_SECOND_APPROVAL to APPROVED.
func (e *Engine) SecondApproval(ctx context.Context, ent Entity, actor Actor, comments string) (*Snapshot, error) {
	if !e.gate.CanSecondApprove(actor, ent) {
		return nil, NewAuthorizationError("actor is not authorized for second approval")
	}
	from := ent.ApprovalStatus()
	if from != StatusPendingSecondApproval {
		return nil, NewInvalidStateTransitionError("second-approve", from)
	}

	ent.SetApprovalStatus(StatusApproved)
	if err := e.store.SaveWorkflowState(ctx, ent, from, ent.CurrentVersion()); err != nil {
		return nil, err
	}
	snap, err := e.writeSnapshot(ctx, ent, actor, ActionSecondApproval, comments, nil, &actor.UserID)
	if err != nil {
		return nil, err
	}
	e.observed(ent, "second_approval")
	return snap, nil
}

// Reject moves a pending entity to REJECTED. The actor must pass the
// gate of the stage the entity currently sits in; a reason is required
// and recorded on the snapshot.
func (e *Engine) Reject(ctx context.Context, ent Entity, actor Actor, reason string) (*Snapshot, error) {
	if reason == "" {
		return nil, NewValidationError("rejection reason is required")
	}
	from := ent.ApprovalStatus()
	switch from {
	case StatusPendingFirstApproval:
		if !e.gate.CanFirstApprove(actor, ent) {
			return nil, NewAuthorizationError("actor is not authorized to reject at the first approval stage")
		}
	case StatusPendingSecondApproval:
		if !e.gate.CanSecondApprove(actor, ent) {
			return nil, NewAuthorizationError("actor is not authorized to reject at the second approval stage")
		}
	default:
		return nil, NewInvalidStateTransitionError("reject", from)
	}

	ent.SetApprovalStatus(StatusRejected)
	if err := e.store.SaveWorkflowState(ctx, ent, from, ent.CurrentVersion()); err != nil {
		return nil, err
	}
	snap, err := e.writeSnapshot(ctx, ent, actor, ActionRejected, reason, nil, &actor.UserID)
	if err != nil {
		return nil, err
	}
	e.observed(ent, "reject")
	return snap, nil
}

// Retire moves a risk from any non-CLOSED status to CLOSED, recording
// the rationale. Terminal; the approval cycle does not resume.
func (e *Engine) Retire(ctx context.Context, ent Entity, actor Actor, reason string) (*Snapshot, error) {
	if !e.retire {
		return nil, NewInvalidStateTransitionError("retire", ent.ApprovalStatus())
	}
	if !actor.CanEdit() {
		return nil, NewAuthorizationError("only organization members can retire entities")
	}
	if reason == "" {
		return nil, NewValidationError("retirement reason is required")
	}
	from := ent.ApprovalStatus()
	if from == StatusClosed {
		return nil, NewInvalidStateTransitionError("retire", from)
	}

	ent.SetApprovalStatus(StatusClosed)
	if err := e.store.SaveWorkflowState(ctx, ent, from, ent.CurrentVersion()); err != nil {
		return nil, err
	}
	snap, err := e.writeSnapshot(ctx, ent, actor, ActionRetired, reason, nil, nil)
	if err != nil {
		return nil, err
	}
	e.observed(ent, "retire")
	return snap, nil
}

// NewRevision starts a fresh draft of an APPROVED document, bumping the
// version and opening a new "Draft & Review" snapshot. Document kinds
// only. A BumpNone request is treated as a minor bump so the draft
// always gets its own version number.
func (e *Engine) NewRevision(ctx context.Context, ent Entity, actor Actor, changeDescription string, bump BumpKind) (*Snapshot, error) {
	if !e.revision {
		return nil, NewInvalidStateTransitionError("start a new revision", ent.ApprovalStatus())
	}
	if !actor.CanEdit() {
		return nil, NewAuthorizationError("only organization members can start a revision")
	}
	if changeDescription == "" {
		return nil, NewValidationError("change description is required")
	}
	from := ent.ApprovalStatus()
	if from != StatusApproved {
		return nil, NewInvalidStateTransitionError("start a new revision", from)
	}
	// The approved snapshot lives at the current version; the new draft
	// must move off it or it would be overwritten.
	if bump == BumpNone {
		bump = BumpMinor
	}

	fromVersion := ent.CurrentVersion()
	ent.SetApprovalStatus(StatusDraft)
	ent.SetCurrentVersion(NextVersion(&fromVersion, bump))
	if err := e.store.SaveWorkflowState(ctx, ent, from, fromVersion); err != nil {
		return nil, err
	}
	snap, err := e.writeSnapshot(ctx, ent, actor, ActionDraftReview, changeDescription, &actor.UserID, nil)
	if err != nil {
		return nil, err
	}
	e.observed(ent, "new_revision")
	return snap, nil
}

// DiscardRevision deletes a never-submitted draft revision and rolls
// the document back to the previous snapshot's version in APPROVED
// state. Only legal while the latest snapshot is still "Draft & Review"
// and a prior snapshot exists to fall back to.
func (e *Engine) DiscardRevision(ctx context.Context, ent Entity, actor Actor) (*Snapshot, error) {
	if !e.revision {
		return nil, NewInvalidStateTransitionError("discard revision", ent.ApprovalStatus())
	}
	if !actor.CanEdit() {
		return nil, NewAuthorizationError("only organization members can discard a revision")
	}
	from := ent.ApprovalStatus()
	if from != StatusDraft {
		return nil, NewInvalidStateTransitionError("discard revision", from)
	}

	snaps, err := e.store.LatestSnapshots(ctx, ent.EntityKind(), ent.EntityID(), 2)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, NewNotFoundError("version snapshot", 0)
	}
	latest := snaps[0]
	if latest.Action != ActionDraftReview {
		return nil, NewValidationError("cannot discard a revision that has been submitted for review")
	}
	if len(snaps) < 2 {
		return nil, NewValidationError("cannot discard the initial version")
	}
	prior := snaps[1]

	if err := e.store.DeleteSnapshot(ctx, latest.ID); err != nil {
		return nil, err
	}
	ent.SetApprovalStatus(StatusApproved)
	ent.SetCurrentVersion(prior.Version)
	if err := e.store.SaveWorkflowState(ctx, ent, from, latest.Version); err != nil {
		return nil, err
	}
	e.observed(ent, "discard_revision")
	return &prior, nil
}

// GuardEdit enforces the mutation guard ahead of a field-level update:
// viewers cannot edit, and editing an APPROVED entity demotes it to
// DRAFT in the same update (the version is untouched, it only advances
// on an explicit submission). The demotion is applied to the in-memory
// entity; the caller persists it together with the field changes in one
// statement. Returns true when the entity was demoted.
func (e *Engine) GuardEdit(ent Entity, actor Actor) (bool, error) {
	if !actor.CanEdit() {
		return false, NewAuthorizationError("viewers cannot edit entities")
	}
	switch ent.ApprovalStatus() {
	case StatusClosed:
		return false, NewInvalidStateTransitionError("edit", StatusClosed)
	case StatusApproved:
		ent.SetApprovalStatus(StatusDraft)
		e.observed(ent, "edit_demotion")
		return true, nil
	}
	return false, nil
}

func (e *Engine) writeSnapshot(ctx context.Context, ent Entity, actor Actor, action, changeDescription string, createdBy, approvedBy *uint) (*Snapshot, error) {
	payload, err := ent.SnapshotPayload()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		EntityKind:        ent.EntityKind(),
		EntityID:          ent.EntityID(),
		OrganizationID:    ent.OrganizationID(),
		Version:           ent.CurrentVersion(),
		Action:            action,
		ChangeDescription: changeDescription,
		ActorName:         actor.Name,
		ActorDesignation:  actor.Designation,
		CreatedByID:       createdBy,
		ApprovedByID:      approvedBy,
		Payload:           payload,
	}
	if err := e.store.UpsertSnapshot(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (e *Engine) observed(ent Entity, action string) {
	if e.observe != nil {
		e.observe(ent.EntityKind(), action)
	}
}
