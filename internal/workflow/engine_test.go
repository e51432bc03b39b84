package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
)

// fakeStore is an in-memory Store with the same upsert-merge semantics
// as the SQL implementation: for an existing (kind, id, version) key,
// non-empty incoming fields win and empty ones preserve the stored row.
type fakeStore struct {
	snaps   []Snapshot
	nextID  uint
	saves   int
	saveErr error
}

func (s *fakeStore) SaveWorkflowState(_ context.Context, e Entity, _ Status, _ Version) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	return nil
}

func (s *fakeStore) UpsertSnapshot(_ context.Context, snap *Snapshot) error {
	for i := range s.snaps {
		existing := &s.snaps[i]
		if existing.EntityKind == snap.EntityKind && existing.EntityID == snap.EntityID && existing.Version == snap.Version {
			existing.Action = snap.Action
			existing.ActorName = snap.ActorName
			existing.ActorDesignation = snap.ActorDesignation
			if snap.ChangeDescription != "" {
				existing.ChangeDescription = snap.ChangeDescription
			}
			if snap.CreatedByID != nil {
				existing.CreatedByID = snap.CreatedByID
			}
			if snap.ApprovedByID != nil {
				existing.ApprovedByID = snap.ApprovedByID
			}
			if snap.Payload != nil {
				existing.Payload = snap.Payload
			}
			snap.ID = existing.ID
			return nil
		}
	}
	s.nextID++
	snap.ID = s.nextID
	s.snaps = append(s.snaps, *snap)
	return nil
}

func (s *fakeStore) LatestSnapshots(_ context.Context, kind string, entityID uint, limit int) ([]Snapshot, error) {
	var out []Snapshot
	for _, snap := range s.snaps {
		if snap.EntityKind == kind && snap.EntityID == entityID {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) DeleteSnapshot(_ context.Context, snapshotID uint) error {
	for i := range s.snaps {
		if s.snaps[i].ID == snapshotID {
			s.snaps = append(s.snaps[:i], s.snaps[i+1:]...)
			return nil
		}
	}
	return NewNotFoundError("version snapshot", snapshotID)
}

func (s *fakeStore) count(kind string, id uint) int {
	n := 0
	for _, snap := range s.snaps {
		if snap.EntityKind == kind && snap.EntityID == id {
			n++
		}
	}
	return n
}

type testEntity struct {
	id      uint
	org     uint
	kind    string
	status  Status
	version Version
	Title   string `json:"title"`
}

func (e *testEntity) EntityID() uint              { return e.id }
func (e *testEntity) EntityKind() string          { return e.kind }
func (e *testEntity) OrganizationID() uint        { return e.org }
func (e *testEntity) ApprovalStatus() Status      { return e.status }
func (e *testEntity) SetApprovalStatus(s Status)  { e.status = s }
func (e *testEntity) CurrentVersion() Version     { return e.version }
func (e *testEntity) SetCurrentVersion(v Version) { e.version = v }
func (e *testEntity) SnapshotPayload() (json.RawMessage, error) {
	return json.Marshal(e)
}

func newTestEntity(kind string) *testEntity {
	return &testEntity{id: 7, org: 1, kind: kind, status: StatusDraft, version: InitialVersion, Title: "access control risk"}
}

var (
	member     = Actor{UserID: 10, Name: "Mia Member", Designation: "Analyst", Role: RoleMember, Member: true}
	viewer     = Actor{UserID: 11, Name: "Vik Viewer", Designation: "Observer", Role: RoleViewer, Member: true}
	localAdmin = Actor{UserID: 12, Name: "Lena Local", Designation: "Team Lead", Role: RoleLocalAdmin, Member: true}
	orgAdmin   = Actor{UserID: 13, Name: "Omar Admin", Designation: "CISO", Role: RoleAdmin, Member: true}
	outsider   = Actor{UserID: 14, Name: "Oli Outside", Member: false}
	platform   = Actor{UserID: 15, Name: "Root", PlatformAdmin: true}
)

func riskEngine(store Store) *Engine {
	return NewEngine(store, RoleGate{}, WithRetirement())
}

func documentEngine(store Store) *Engine {
	reviewer, approver := uint(12), uint(13)
	return NewEngine(store, DesignatedGate{ReviewerID: &reviewer, ApproverID: &approver}, WithRevisions())
}

// Scenario: create -> 0.1 DRAFT with one snapshot; submit minor -> 0.2
// pending-first with two snapshots; first approval keeps 0.2; second
// approval lands on APPROVED.
func TestFullApprovalCycle(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	eng := riskEngine(store)
	ent := newTestEntity("risk")

	if _, err := eng.RecordDraft(ctx, ent, member, "initial draft"); err != nil {
		t.Fatalf("record draft: %v", err)
	}
	if got := store.count("risk", ent.id); got != 1 {
		t.Fatalf("after create: %d snapshots, want 1", got)
	}
	if ent.version.String() != "0.1" || ent.status != StatusDraft {
		t.Fatalf("after create: version %s status %s", ent.version, ent.status)
	}

	if _, err := eng.SubmitForReview(ctx, ent, member, "ready for review", BumpMinor); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ent.version.String() != "0.2" {
		t.Errorf("after submit: version %s, want 0.2", ent.version)
	}
	if ent.status != StatusPendingFirstApproval {
		t.Errorf("after submit: status %s, want %s", ent.status, StatusPendingFirstApproval)
	}
	if got := store.count("risk", ent.id); got != 2 {
		t.Errorf("after submit: %d snapshots, want 2", got)
	}

	if _, err := eng.FirstApproval(ctx, ent, localAdmin, "looks good"); err != nil {
		t.Fatalf("first approval: %v", err)
	}
	if ent.status != StatusPendingSecondApproval {
		t.Errorf("after first approval: status %s", ent.status)
	}
	if ent.version.String() != "0.2" {
		t.Errorf("first approval changed version to %s", ent.version)
	}

	if _, err := eng.SecondApproval(ctx, ent, orgAdmin, ""); err != nil {
		t.Fatalf("second approval: %v", err)
	}
	if ent.status != StatusApproved {
		t.Errorf("after second approval: status %s, want APPROVED", ent.status)
	}
	// Approvals update the submission snapshot in place, no new rows.
	if got := store.count("risk", ent.id); got != 2 {
		t.Errorf("after approvals: %d snapshots, want 2", got)
	}
}

func TestEditDemotesApproval(t *testing.T) {
	store := &fakeStore{}
	eng := riskEngine(store)
	ent := newTestEntity("risk")
	ent.status = StatusApproved
	ent.version, _ = ParseVersion("1.0")

	demoted, err := eng.GuardEdit(ent, member)
	if err != nil {
		t.Fatalf("guard edit: %v", err)
	}
	if !demoted {
		t.Error("expected demotion flag")
	}
	if ent.status != StatusDraft {
		t.Errorf("status %s, want DRAFT", ent.status)
	}
	if ent.version.String() != "1.0" {
		t.Errorf("edit changed version to %s", ent.version)
	}

	// A second edit in DRAFT does not demote again.
	demoted, err = eng.GuardEdit(ent, member)
	if err != nil {
		t.Fatalf("guard edit in draft: %v", err)
	}
	if demoted {
		t.Error("draft edit should not report demotion")
	}
}

func TestGuardEditClosed(t *testing.T) {
	eng := riskEngine(&fakeStore{})
	ent := newTestEntity("risk")
	ent.status = StatusClosed

	var stateErr *InvalidStateTransitionError
	if _, err := eng.GuardEdit(ent, member); !errors.As(err, &stateErr) {
		t.Fatalf("editing a closed risk: got %v, want InvalidStateTransitionError", err)
	}
}

func TestViewerGating(t *testing.T) {
	ctx := context.Background()
	eng := riskEngine(&fakeStore{})
	ent := newTestEntity("risk")

	var authErr *AuthorizationError
	if _, err := eng.SubmitForReview(ctx, ent, viewer, "desc", BumpMinor); !errors.As(err, &authErr) {
		t.Errorf("viewer submit: got %v, want AuthorizationError", err)
	}
	if _, err := eng.GuardEdit(ent, viewer); !errors.As(err, &authErr) {
		t.Errorf("viewer edit: got %v, want AuthorizationError", err)
	}
	if _, err := eng.Retire(ctx, ent, viewer, "obsolete"); !errors.As(err, &authErr) {
		t.Errorf("viewer retire: got %v, want AuthorizationError", err)
	}
	if _, err := eng.SubmitForReview(ctx, ent, outsider, "desc", BumpMinor); !errors.As(err, &authErr) {
		t.Errorf("non-member submit: got %v, want AuthorizationError", err)
	}
	if ent.status != StatusDraft || ent.version != InitialVersion {
		t.Errorf("rejected calls mutated the entity: %s %s", ent.status, ent.version)
	}
}

func TestApprovalStageGating(t *testing.T) {
	ctx := context.Background()
	eng := riskEngine(&fakeStore{})
	ent := newTestEntity("risk")
	ent.status = StatusPendingFirstApproval

	var authErr *AuthorizationError
	if _, err := eng.FirstApproval(ctx, ent, member, ""); !errors.As(err, &authErr) {
		t.Errorf("member first approval: got %v, want AuthorizationError", err)
	}

	ent.status = StatusPendingSecondApproval
	if _, err := eng.SecondApproval(ctx, ent, localAdmin, ""); !errors.As(err, &authErr) {
		t.Errorf("local admin second approval: got %v, want AuthorizationError", err)
	}
	// Platform admins pass both gates.
	if _, err := eng.SecondApproval(ctx, ent, platform, ""); err != nil {
		t.Errorf("platform admin second approval: %v", err)
	}
}

func TestRejectStageGating(t *testing.T) {
	ctx := context.Background()
	eng := riskEngine(&fakeStore{})

	// At the second stage the first-stage gate no longer suffices.
	ent := newTestEntity("risk")
	ent.status = StatusPendingSecondApproval
	var authErr *AuthorizationError
	if _, err := eng.Reject(ctx, ent, localAdmin, "not good enough"); !errors.As(err, &authErr) {
		t.Errorf("local admin reject at second stage: got %v, want AuthorizationError", err)
	}

	ent.status = StatusPendingFirstApproval
	if _, err := eng.Reject(ctx, ent, localAdmin, "not good enough"); err != nil {
		t.Errorf("local admin reject at first stage: %v", err)
	}
	if ent.status != StatusRejected {
		t.Errorf("status %s, want REJECTED", ent.status)
	}

	var valErr *ValidationError
	ent.status = StatusPendingFirstApproval
	if _, err := eng.Reject(ctx, ent, localAdmin, ""); !errors.As(err, &valErr) {
		t.Errorf("reject without reason: got %v, want ValidationError", err)
	}
}

func TestResubmitAfterRejection(t *testing.T) {
	ctx := context.Background()
	eng := riskEngine(&fakeStore{})
	ent := newTestEntity("risk")
	ent.status = StatusRejected
	ent.version, _ = ParseVersion("0.2")

	// Re-submission without a bump keeps the same version number.
	if _, err := eng.SubmitForReview(ctx, ent, member, "addressed review comments", BumpNone); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if ent.version.String() != "0.2" {
		t.Errorf("resubmit with bump=none moved version to %s", ent.version)
	}
	if ent.status != StatusPendingFirstApproval {
		t.Errorf("status %s, want PENDING_FIRST_APPROVAL", ent.status)
	}
}

// Every (state, action) pair outside the transition table must fail
// with InvalidStateTransitionError and leave status and version alone.
func TestIllegalTransitions(t *testing.T) {
	ctx := context.Background()

	submit := func(eng *Engine, ent Entity) error {
		_, err := eng.SubmitForReview(ctx, ent, member, "desc", BumpMinor)
		return err
	}
	first := func(eng *Engine, ent Entity) error {
		_, err := eng.FirstApproval(ctx, ent, orgAdmin, "")
		return err
	}
	second := func(eng *Engine, ent Entity) error {
		_, err := eng.SecondApproval(ctx, ent, orgAdmin, "")
		return err
	}
	reject := func(eng *Engine, ent Entity) error {
		_, err := eng.Reject(ctx, ent, orgAdmin, "reason")
		return err
	}

	cases := []struct {
		name   string
		status Status
		op     func(*Engine, Entity) error
	}{
		{"submit from pending-first", StatusPendingFirstApproval, submit},
		{"submit from pending-second", StatusPendingSecondApproval, submit},
		{"submit from approved", StatusApproved, submit},
		{"submit from closed", StatusClosed, submit},
		{"first approval from draft", StatusDraft, first},
		{"first approval from pending-second", StatusPendingSecondApproval, first},
		{"first approval from approved", StatusApproved, first},
		{"first approval from rejected", StatusRejected, first},
		{"second approval from draft", StatusDraft, second},
		{"second approval from pending-first", StatusPendingFirstApproval, second},
		{"second approval from approved", StatusApproved, second},
		{"reject from draft", StatusDraft, reject},
		{"reject from approved", StatusApproved, reject},
		{"reject from rejected", StatusRejected, reject},
		{"reject from closed", StatusClosed, reject},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eng := riskEngine(&fakeStore{})
			ent := newTestEntity("risk")
			ent.status = tc.status
			ent.version, _ = ParseVersion("1.2")

			err := tc.op(eng, ent)
			var stateErr *InvalidStateTransitionError
			if !errors.As(err, &stateErr) {
				t.Fatalf("got %v, want InvalidStateTransitionError", err)
			}
			if ent.status != tc.status {
				t.Errorf("status changed: %s -> %s", tc.status, ent.status)
			}
			if ent.version.String() != "1.2" {
				t.Errorf("version changed to %s", ent.version)
			}
		})
	}
}

func TestRetire(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	eng := riskEngine(store)
	ent := newTestEntity("risk")
	ent.status = StatusApproved
	ent.version, _ = ParseVersion("2.0")

	snap, err := eng.Retire(ctx, ent, member, "system decommissioned")
	if err != nil {
		t.Fatalf("retire: %v", err)
	}
	if ent.status != StatusClosed {
		t.Errorf("status %s, want CLOSED", ent.status)
	}
	if snap.Action != ActionRetired {
		t.Errorf("snapshot action %q, want %q", snap.Action, ActionRetired)
	}
	if snap.ChangeDescription != "system decommissioned" {
		t.Errorf("snapshot description %q", snap.ChangeDescription)
	}

	var stateErr *InvalidStateTransitionError
	if _, err := eng.Retire(ctx, ent, member, "again"); !errors.As(err, &stateErr) {
		t.Errorf("retiring a closed risk: got %v, want InvalidStateTransitionError", err)
	}

	// Retirement is a risk-only operation.
	doc := newTestEntity("risk_register")
	if _, err := documentEngine(&fakeStore{}).Retire(ctx, doc, member, "reason"); !errors.As(err, &stateErr) {
		t.Errorf("retiring a document: got %v, want InvalidStateTransitionError", err)
	}
}

func TestSnapshotUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	snap := &Snapshot{EntityKind: "risk", EntityID: 7, Version: 2, Action: ActionSubmitted, ChangeDescription: "first text"}
	if err := store.UpsertSnapshot(ctx, snap); err != nil {
		t.Fatal(err)
	}
	dup := &Snapshot{EntityKind: "risk", EntityID: 7, Version: 2, Action: ActionFirstApproval, ChangeDescription: "second text"}
	if err := store.UpsertSnapshot(ctx, dup); err != nil {
		t.Fatal(err)
	}
	if got := store.count("risk", 7); got != 1 {
		t.Fatalf("%d snapshots after duplicate upsert, want 1", got)
	}
	if store.snaps[0].ChangeDescription != "second text" || store.snaps[0].Action != ActionFirstApproval {
		t.Errorf("second upsert did not win: %+v", store.snaps[0])
	}
	if dup.ID != snap.ID {
		t.Errorf("duplicate upsert produced a new id: %d != %d", dup.ID, snap.ID)
	}
}

// Document in DRAFT with only its initial snapshot: discard must fail,
// there is nothing to fall back to.
func TestDiscardInitialRevision(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	eng := documentEngine(store)
	doc := newTestEntity("risk_register")

	if _, err := eng.RecordDraft(ctx, doc, member, "initial register"); err != nil {
		t.Fatal(err)
	}
	var valErr *ValidationError
	if _, err := eng.DiscardRevision(ctx, doc, member); !errors.As(err, &valErr) {
		t.Fatalf("discard of initial version: got %v, want ValidationError", err)
	}
}

// Approved v1.0 document -> new revision (minor) -> DRAFT v1.1 ->
// discard -> APPROVED v1.0 again with the v1.1 snapshot deleted.
func TestNewRevisionAndDiscard(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	eng := documentEngine(store)
	doc := newTestEntity("risk_register")

	if _, err := eng.RecordDraft(ctx, doc, member, "initial register"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.SubmitForReview(ctx, doc, member, "ready", BumpMajor); err != nil {
		t.Fatal(err)
	}
	if doc.version.String() != "1.0" {
		t.Fatalf("after major submit: version %s, want 1.0", doc.version)
	}
	if _, err := eng.FirstApproval(ctx, doc, localAdmin, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.SecondApproval(ctx, doc, orgAdmin, ""); err != nil {
		t.Fatal(err)
	}

	if _, err := eng.NewRevision(ctx, doc, member, "annual review", BumpMinor); err != nil {
		t.Fatalf("new revision: %v", err)
	}
	if doc.status != StatusDraft || doc.version.String() != "1.1" {
		t.Fatalf("after new revision: %s %s", doc.status, doc.version)
	}
	before := store.count("risk_register", doc.id)

	prior, err := eng.DiscardRevision(ctx, doc, member)
	if err != nil {
		t.Fatalf("discard revision: %v", err)
	}
	if doc.status != StatusApproved || doc.version.String() != "1.0" {
		t.Errorf("after discard: %s %s, want APPROVED 1.0", doc.status, doc.version)
	}
	if prior.Version.String() != "1.0" {
		t.Errorf("rolled back to %s, want 1.0", prior.Version)
	}
	if got := store.count("risk_register", doc.id); got != before-1 {
		t.Errorf("snapshot count %d, want %d (draft snapshot deleted)", got, before-1)
	}

	// Once the new draft has been submitted, discarding is no longer legal.
	if _, err := eng.NewRevision(ctx, doc, member, "second pass", BumpMinor); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.SubmitForReview(ctx, doc, member, "ready again", BumpNone); err != nil {
		t.Fatal(err)
	}
	doc.status = StatusDraft // simulate a later demotion without a fresh draft snapshot
	var valErr *ValidationError
	if _, err := eng.DiscardRevision(ctx, doc, member); !errors.As(err, &valErr) {
		t.Errorf("discard after submission: got %v, want ValidationError", err)
	}
}

func TestVersionMonotonicity(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	eng := documentEngine(store)
	doc := newTestEntity("soa_document")

	if _, err := eng.RecordDraft(ctx, doc, member, "initial"); err != nil {
		t.Fatal(err)
	}
	bumps := []BumpKind{BumpMinor, BumpMinor, BumpMajor, BumpMinor}
	last := doc.version
	for _, bump := range bumps {
		if _, err := eng.SubmitForReview(ctx, doc, member, "change", bump); err != nil {
			t.Fatal(err)
		}
		if doc.version <= last {
			t.Fatalf("version did not increase: %s after %s", doc.version, last)
		}
		last = doc.version
		if _, err := eng.FirstApproval(ctx, doc, localAdmin, ""); err != nil {
			t.Fatal(err)
		}
		if _, err := eng.SecondApproval(ctx, doc, orgAdmin, ""); err != nil {
			t.Fatal(err)
		}
		if _, err := eng.NewRevision(ctx, doc, member, "next cycle", BumpMinor); err != nil {
			t.Fatal(err)
		}
		if doc.version <= last {
			t.Fatalf("revision did not advance the version: %s after %s", doc.version, last)
		}
		last = doc.version
		doc.status = StatusDraft
	}
}

// A revision request without an explicit bump must still move the draft
// off the approved version. Otherwise the draft snapshot would replace
// the approved one, and discarding it would roll the document back to a
// version that never passed approval.
func TestNewRevisionWithoutBumpPreservesApprovedSnapshot(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	eng := documentEngine(store)
	doc := newTestEntity("risk_register")

	if _, err := eng.RecordDraft(ctx, doc, member, "initial"); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.SubmitForReview(ctx, doc, member, "first release", BumpMajor); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.FirstApproval(ctx, doc, localAdmin, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.SecondApproval(ctx, doc, orgAdmin, ""); err != nil {
		t.Fatal(err)
	}
	approvedVersion := doc.version

	if _, err := eng.NewRevision(ctx, doc, member, "next cycle", BumpNone); err != nil {
		t.Fatal(err)
	}
	if doc.version <= approvedVersion {
		t.Fatalf("draft version %s did not move past approved %s", doc.version, approvedVersion)
	}

	snaps, err := store.LatestSnapshots(ctx, doc.kind, doc.id, 10)
	if err != nil {
		t.Fatal(err)
	}
	var approvedSnap *Snapshot
	for i := range snaps {
		if snaps[i].Version == approvedVersion {
			approvedSnap = &snaps[i]
		}
	}
	if approvedSnap == nil || approvedSnap.Action != ActionSecondApproval {
		t.Fatalf("approval record at %s was lost: %+v", approvedVersion, snaps)
	}

	prior, err := eng.DiscardRevision(ctx, doc, member)
	if err != nil {
		t.Fatal(err)
	}
	if doc.status != StatusApproved || doc.version != approvedVersion {
		t.Fatalf("discard landed on %s %s, want APPROVED %s", doc.status, doc.version, approvedVersion)
	}
	if prior.Version != approvedVersion || prior.Action != ActionSecondApproval {
		t.Fatalf("rolled back to snapshot %s %q, want %s %q", prior.Version, prior.Action, approvedVersion, ActionSecondApproval)
	}
}

func TestConflictPropagates(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{saveErr: NewConflictError("risk", 7)}
	eng := riskEngine(store)
	ent := newTestEntity("risk")

	_, err := eng.SubmitForReview(ctx, ent, member, "desc", BumpMinor)
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("got %v, want ConflictError", err)
	}
}
