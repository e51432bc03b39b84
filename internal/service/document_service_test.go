package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cdmx-in/isms-manager-sub001/internal/service"
	"github.com/cdmx-in/isms-manager-sub001/internal/testutil"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

func TestDocumentDesignatedApprovers(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	documentService := service.NewDocumentService(containers.DB, nil)
	ctx := context.Background()

	// LocalUser reviews, Member approves. Document approvals gate on
	// the designated users, not on roles.
	fixtures.DesignateApprovers(t, fixtures.Org.ID, &fixtures.LocalUser.ID, &fixtures.Member.ID)

	doc, err := documentService.Create(ctx, fixtures.Member, fixtures.Org.ID, workflow.KindRiskRegister, service.DocumentInput{
		Title:   "Risk Register 2026",
		Summary: "Annual consolidated register",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, _, err := documentService.SubmitForReview(ctx, fixtures.Member, fixtures.Org.ID, doc.ID, "Initial submission", workflow.BumpNone); err != nil {
		t.Fatalf("SubmitForReview: %v", err)
	}

	// The viewer is neither designated nor an admin.
	_, _, err = documentService.FirstApproval(ctx, fixtures.Viewer, fixtures.Org.ID, doc.ID, "trying")
	var authz *workflow.AuthorizationError
	if !errors.As(err, &authz) {
		t.Errorf("FirstApproval by viewer: expected AuthorizationError, got %v", err)
	}

	if _, _, err := documentService.FirstApproval(ctx, fixtures.LocalUser, fixtures.Org.ID, doc.ID, "reviewed"); err != nil {
		t.Fatalf("FirstApproval by designated reviewer: %v", err)
	}

	// The designated reviewer is not the designated approver.
	_, _, err = documentService.SecondApproval(ctx, fixtures.LocalUser, fixtures.Org.ID, doc.ID, "also approving")
	if !errors.As(err, &authz) {
		t.Errorf("SecondApproval by reviewer: expected AuthorizationError, got %v", err)
	}

	doc, _, err = documentService.SecondApproval(ctx, fixtures.Member, fixtures.Org.ID, doc.ID, "final")
	if err != nil {
		t.Fatalf("SecondApproval by designated approver: %v", err)
	}
	if doc.Status != workflow.StatusApproved {
		t.Errorf("final status = %s, want %s", doc.Status, workflow.StatusApproved)
	}
}

func TestDocumentOrgAdminPassesBothStages(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	documentService := service.NewDocumentService(containers.DB, nil)
	ctx := context.Background()

	// No designations at all; the org admin can still move documents.
	doc, err := documentService.Create(ctx, fixtures.Member, fixtures.Org.ID, workflow.KindSoADocument, service.DocumentInput{
		Title: "Statement of Applicability",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, _, err := documentService.SubmitForReview(ctx, fixtures.Member, fixtures.Org.ID, doc.ID, "Initial submission", workflow.BumpNone); err != nil {
		t.Fatalf("SubmitForReview: %v", err)
	}
	if _, _, err := documentService.FirstApproval(ctx, fixtures.AdminUser, fixtures.Org.ID, doc.ID, "ok"); err != nil {
		t.Fatalf("FirstApproval by org admin: %v", err)
	}
	if _, _, err := documentService.SecondApproval(ctx, fixtures.AdminUser, fixtures.Org.ID, doc.ID, "ok"); err != nil {
		t.Fatalf("SecondApproval by org admin: %v", err)
	}
}

func TestDocumentRevisionCycle(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	documentService := service.NewDocumentService(containers.DB, nil)
	ctx := context.Background()

	doc, err := documentService.Create(ctx, fixtures.Member, fixtures.Org.ID, workflow.KindRiskRegister, service.DocumentInput{
		Title: "Risk Register",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The initial draft cannot be discarded, there is nothing to fall
	// back to.
	_, _, err = documentService.DiscardRevision(ctx, fixtures.Member, fixtures.Org.ID, doc.ID)
	var validation *workflow.ValidationError
	if !errors.As(err, &validation) {
		t.Errorf("discard initial draft: expected ValidationError, got %v", err)
	}

	if _, _, err := documentService.SubmitForReview(ctx, fixtures.Member, fixtures.Org.ID, doc.ID, "Initial submission", workflow.BumpNone); err != nil {
		t.Fatalf("SubmitForReview: %v", err)
	}
	if _, _, err := documentService.FirstApproval(ctx, fixtures.AdminUser, fixtures.Org.ID, doc.ID, "ok"); err != nil {
		t.Fatalf("FirstApproval: %v", err)
	}
	if _, _, err := documentService.SecondApproval(ctx, fixtures.AdminUser, fixtures.Org.ID, doc.ID, "ok"); err != nil {
		t.Fatalf("SecondApproval: %v", err)
	}

	doc, _, err = documentService.NewRevision(ctx, fixtures.Member, fixtures.Org.ID, doc.ID, "Annual refresh", workflow.BumpMajor)
	if err != nil {
		t.Fatalf("NewRevision: %v", err)
	}
	if doc.Status != workflow.StatusDraft {
		t.Errorf("revision status = %s, want %s", doc.Status, workflow.StatusDraft)
	}
	if want := workflow.NewVersion(1, 0); doc.Version != want {
		t.Errorf("revision version = %s, want %s", doc.Version, want)
	}

	// Discarding the never-submitted revision rolls back to the
	// approved state and version.
	doc, _, err = documentService.DiscardRevision(ctx, fixtures.Member, fixtures.Org.ID, doc.ID)
	if err != nil {
		t.Fatalf("DiscardRevision: %v", err)
	}
	if doc.Status != workflow.StatusApproved {
		t.Errorf("after discard status = %s, want %s", doc.Status, workflow.StatusApproved)
	}
	if doc.Version != workflow.InitialVersion {
		t.Errorf("after discard version = %s, want 0.1", doc.Version)
	}

	// Once a revision is submitted it can no longer be discarded.
	doc, _, err = documentService.NewRevision(ctx, fixtures.Member, fixtures.Org.ID, doc.ID, "Second refresh", workflow.BumpMinor)
	if err != nil {
		t.Fatalf("second NewRevision: %v", err)
	}
	if _, _, err := documentService.SubmitForReview(ctx, fixtures.Member, fixtures.Org.ID, doc.ID, "Refresh submitted", workflow.BumpNone); err != nil {
		t.Fatalf("submit revision: %v", err)
	}
	if _, _, err := documentService.Reject(ctx, fixtures.AdminUser, fixtures.Org.ID, doc.ID, "incomplete"); err != nil {
		t.Fatalf("Reject: %v", err)
	}
	_, _, err = documentService.DiscardRevision(ctx, fixtures.Member, fixtures.Org.ID, doc.ID)
	var invalid *workflow.InvalidStateTransitionError
	if !errors.As(err, &invalid) {
		t.Errorf("discard after submission: expected InvalidStateTransitionError, got %v", err)
	}
}
