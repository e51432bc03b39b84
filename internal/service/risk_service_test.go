package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cdmx-in/isms-manager-sub001/internal/service"
	"github.com/cdmx-in/isms-manager-sub001/internal/testutil"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

func TestRiskApprovalLifecycle(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	riskService := service.NewRiskService(containers.DB, nil)
	ctx := context.Background()

	risk, err := riskService.Create(ctx, fixtures.Member, fixtures.Org.ID, service.RiskInput{
		Title:      "Unencrypted backups",
		Category:   "data",
		Owner:      "IT Operations",
		Likelihood: 4,
		Impact:     5,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if risk.Status != workflow.StatusDraft {
		t.Errorf("new risk status = %s, want %s", risk.Status, workflow.StatusDraft)
	}
	if risk.Version != workflow.InitialVersion {
		t.Errorf("new risk version = %s, want 0.1", risk.Version)
	}
	if risk.InherentRisk != 20 {
		t.Errorf("inherent risk = %d, want 20", risk.InherentRisk)
	}

	risk, snap, err := riskService.SubmitForReview(ctx, fixtures.Member, fixtures.Org.ID, risk.ID, "Initial submission", workflow.BumpNone)
	if err != nil {
		t.Fatalf("SubmitForReview: %v", err)
	}
	if risk.Status != workflow.StatusPendingFirstApproval {
		t.Errorf("after submit status = %s, want %s", risk.Status, workflow.StatusPendingFirstApproval)
	}
	if snap.Action != workflow.ActionSubmitted {
		t.Errorf("snapshot action = %s, want %s", snap.Action, workflow.ActionSubmitted)
	}

	// A regular member is not a first-stage approver.
	_, _, err = riskService.FirstApproval(ctx, fixtures.Member, fixtures.Org.ID, risk.ID, "looks fine")
	var authz *workflow.AuthorizationError
	if !errors.As(err, &authz) {
		t.Errorf("FirstApproval by member: expected AuthorizationError, got %v", err)
	}

	risk, _, err = riskService.FirstApproval(ctx, fixtures.LocalUser, fixtures.Org.ID, risk.ID, "reviewed")
	if err != nil {
		t.Fatalf("FirstApproval: %v", err)
	}
	if risk.Status != workflow.StatusPendingSecondApproval {
		t.Errorf("after first approval status = %s, want %s", risk.Status, workflow.StatusPendingSecondApproval)
	}

	// A local admin cannot clear the second stage.
	_, _, err = riskService.SecondApproval(ctx, fixtures.LocalUser, fixtures.Org.ID, risk.ID, "also approving")
	if !errors.As(err, &authz) {
		t.Errorf("SecondApproval by local admin: expected AuthorizationError, got %v", err)
	}

	risk, snap, err = riskService.SecondApproval(ctx, fixtures.AdminUser, fixtures.Org.ID, risk.ID, "approved")
	if err != nil {
		t.Fatalf("SecondApproval: %v", err)
	}
	if risk.Status != workflow.StatusApproved {
		t.Errorf("after second approval status = %s, want %s", risk.Status, workflow.StatusApproved)
	}
	if snap.ApprovedByID == nil || *snap.ApprovedByID != fixtures.AdminUser.ID {
		t.Errorf("snapshot approved_by = %v, want %d", snap.ApprovedByID, fixtures.AdminUser.ID)
	}

	// Editing an approved risk demotes it to DRAFT at the same version.
	risk, err = riskService.Update(ctx, fixtures.Member, fixtures.Org.ID, risk.ID, service.RiskInput{
		Title:      "Unencrypted backups",
		Category:   "data",
		Owner:      "IT Operations",
		Likelihood: 3,
		Impact:     5,
	})
	if err != nil {
		t.Fatalf("Update after approval: %v", err)
	}
	if risk.Status != workflow.StatusDraft {
		t.Errorf("after edit status = %s, want %s", risk.Status, workflow.StatusDraft)
	}
	if risk.Version != workflow.InitialVersion {
		t.Errorf("demotion changed version to %s, want 0.1", risk.Version)
	}

	// Resubmitting with a minor bump advances the version.
	risk, _, err = riskService.SubmitForReview(ctx, fixtures.Member, fixtures.Org.ID, risk.ID, "Lowered likelihood after mitigation", workflow.BumpMinor)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if want := workflow.NewVersion(0, 2); risk.Version != want {
		t.Errorf("after minor bump version = %s, want %s", risk.Version, want)
	}
}

func TestRiskRejectionReturnsToAuthor(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	riskService := service.NewRiskService(containers.DB, nil)
	ctx := context.Background()

	risk, err := riskService.Create(ctx, fixtures.Member, fixtures.Org.ID, service.RiskInput{
		Title: "Stale firewall rules", Likelihood: 2, Impact: 3,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := riskService.SubmitForReview(ctx, fixtures.Member, fixtures.Org.ID, risk.ID, "Initial submission", workflow.BumpNone); err != nil {
		t.Fatalf("SubmitForReview: %v", err)
	}

	// A reason is mandatory.
	_, _, err = riskService.Reject(ctx, fixtures.LocalUser, fixtures.Org.ID, risk.ID, "")
	var validation *workflow.ValidationError
	if !errors.As(err, &validation) {
		t.Errorf("Reject without reason: expected ValidationError, got %v", err)
	}

	risk, snap, err := riskService.Reject(ctx, fixtures.LocalUser, fixtures.Org.ID, risk.ID, "needs a treatment plan")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if risk.Status != workflow.StatusRejected {
		t.Errorf("after reject status = %s, want %s", risk.Status, workflow.StatusRejected)
	}
	if snap.ChangeDescription != "needs a treatment plan" {
		t.Errorf("rejection reason on snapshot = %q", snap.ChangeDescription)
	}

	// A rejected risk can go back into review.
	risk, _, err = riskService.SubmitForReview(ctx, fixtures.Member, fixtures.Org.ID, risk.ID, "Added treatment plan", workflow.BumpMinor)
	if err != nil {
		t.Fatalf("resubmit after rejection: %v", err)
	}
	if risk.Status != workflow.StatusPendingFirstApproval {
		t.Errorf("after resubmit status = %s", risk.Status)
	}
}

func TestRiskRetirement(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	riskService := service.NewRiskService(containers.DB, nil)
	ctx := context.Background()

	risk, err := riskService.Create(ctx, fixtures.Member, fixtures.Org.ID, service.RiskInput{
		Title: "Legacy FTP server", Likelihood: 3, Impact: 2,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	_, _, err = riskService.Retire(ctx, fixtures.Viewer, fixtures.Org.ID, risk.ID, "decommissioned")
	var authz *workflow.AuthorizationError
	if !errors.As(err, &authz) {
		t.Errorf("Retire by viewer: expected AuthorizationError, got %v", err)
	}

	risk, _, err = riskService.Retire(ctx, fixtures.Member, fixtures.Org.ID, risk.ID, "server decommissioned")
	if err != nil {
		t.Fatalf("Retire: %v", err)
	}
	if risk.Status != workflow.StatusClosed {
		t.Errorf("after retire status = %s, want %s", risk.Status, workflow.StatusClosed)
	}
	if risk.RetiredReason == nil || *risk.RetiredReason != "server decommissioned" {
		t.Errorf("retired reason = %v", risk.RetiredReason)
	}
	if risk.RetiredAt == nil {
		t.Error("retired_at not recorded")
	}

	// CLOSED is terminal.
	_, _, err = riskService.SubmitForReview(ctx, fixtures.Member, fixtures.Org.ID, risk.ID, "reopen", workflow.BumpNone)
	var invalid *workflow.InvalidStateTransitionError
	if !errors.As(err, &invalid) {
		t.Errorf("submit after retire: expected InvalidStateTransitionError, got %v", err)
	}
	_, _, err = riskService.Retire(ctx, fixtures.Member, fixtures.Org.ID, risk.ID, "again")
	if !errors.As(err, &invalid) {
		t.Errorf("double retire: expected InvalidStateTransitionError, got %v", err)
	}
}

func TestRiskDeleteOnlyBeforeReview(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	riskService := service.NewRiskService(containers.DB, nil)
	ctx := context.Background()

	risk, err := riskService.Create(ctx, fixtures.Member, fixtures.Org.ID, service.RiskInput{
		Title: "Draft only", Likelihood: 1, Impact: 1,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := riskService.Delete(ctx, fixtures.Member, fixtures.Org.ID, risk.ID); err != nil {
		t.Fatalf("Delete of untouched draft: %v", err)
	}

	risk, err = riskService.Create(ctx, fixtures.Member, fixtures.Org.ID, service.RiskInput{
		Title: "Submitted once", Likelihood: 1, Impact: 1,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := riskService.SubmitForReview(ctx, fixtures.Member, fixtures.Org.ID, risk.ID, "Initial submission", workflow.BumpMinor); err != nil {
		t.Fatalf("SubmitForReview: %v", err)
	}
	if _, _, err := riskService.Reject(ctx, fixtures.LocalUser, fixtures.Org.ID, risk.ID, "not yet"); err != nil {
		t.Fatalf("Reject: %v", err)
	}

	// Once it entered review it is part of the audit trail.
	err = riskService.Delete(ctx, fixtures.Member, fixtures.Org.ID, risk.ID)
	var invalid *workflow.InvalidStateTransitionError
	if !errors.As(err, &invalid) {
		t.Errorf("Delete after review: expected InvalidStateTransitionError, got %v", err)
	}
}

func TestRiskTransitionQueuesNotifications(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	riskService := service.NewRiskService(containers.DB, nil)
	ctx := context.Background()

	risk, err := riskService.Create(ctx, fixtures.Member, fixtures.Org.ID, service.RiskInput{
		Title: "Notify me", Likelihood: 2, Impact: 2,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := riskService.SubmitForReview(ctx, fixtures.Member, fixtures.Org.ID, risk.ID, "Initial submission", workflow.BumpNone); err != nil {
		t.Fatalf("SubmitForReview: %v", err)
	}

	// Both first-stage approvers get an outbox row; the submitter never
	// notifies themselves.
	for _, approver := range []uint{fixtures.LocalUser.ID, fixtures.AdminUser.ID} {
		var count int
		err := containers.DB.QueryRow(`
			SELECT COUNT(*) FROM notifications
			WHERE user_id = $1 AND entity_kind = $2 AND entity_id = $3 AND kind = $4
		`, approver, workflow.KindRisk, risk.ID, service.NotificationApprovalRequested).Scan(&count)
		if err != nil {
			t.Fatalf("count notifications: %v", err)
		}
		if count != 1 {
			t.Errorf("approver %d has %d approval_requested notifications, want 1", approver, count)
		}
	}

	var selfCount int
	if err := containers.DB.QueryRow(`
		SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND entity_id = $2
	`, fixtures.Member.ID, risk.ID).Scan(&selfCount); err != nil {
		t.Fatalf("count self notifications: %v", err)
	}
	if selfCount != 0 {
		t.Errorf("submitter has %d notifications about their own submission, want 0", selfCount)
	}
}

func TestRiskTransitionHonorsCancelledContext(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	riskService := service.NewRiskService(containers.DB, nil)
	ctx := context.Background()

	risk, err := riskService.Create(ctx, fixtures.Member, fixtures.Org.ID, service.RiskInput{
		Title:      "Stale firewall rules",
		Category:   "network",
		Owner:      "IT Operations",
		Likelihood: 2,
		Impact:     3,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, _, err = riskService.SubmitForReview(cancelled, fixtures.Member, fixtures.Org.ID, risk.ID, "too late", workflow.BumpNone)
	if err == nil {
		t.Fatal("SubmitForReview with cancelled context: expected error")
	}

	// The write never started, so the risk is still an editable draft.
	current, err := riskService.Get(fixtures.Org.ID, risk.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if current.Status != workflow.StatusDraft {
		t.Errorf("status after aborted submit = %s, want %s", current.Status, workflow.StatusDraft)
	}
}
