package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cdmx-in/isms-manager-sub001/internal/service"
	"github.com/cdmx-in/isms-manager-sub001/internal/testutil"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

func TestSoAItemLifecycle(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	soaService := service.NewSoAService(containers.DB, nil)
	ctx := context.Background()

	item, err := soaService.Create(ctx, fixtures.Member, fixtures.Org.ID, service.SoAItemInput{
		ControlID:            fixtures.Controls[0].ID,
		Applicable:           true,
		Justification:        "Policy framework is mandatory for certification",
		ImplementationStatus: "partial",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if item.Status != workflow.StatusDraft || item.Version != workflow.InitialVersion {
		t.Errorf("new item at %s/%s, want DRAFT/0.1", item.Status, item.Version)
	}

	if _, _, err := soaService.SubmitForReview(ctx, fixtures.Member, fixtures.Org.ID, item.ID, "Initial decisions", workflow.BumpNone); err != nil {
		t.Fatalf("SubmitForReview: %v", err)
	}
	if _, _, err := soaService.FirstApproval(ctx, fixtures.LocalUser, fixtures.Org.ID, item.ID, "checked"); err != nil {
		t.Fatalf("FirstApproval: %v", err)
	}
	item, _, err = soaService.SecondApproval(ctx, fixtures.AdminUser, fixtures.Org.ID, item.ID, "approved")
	if err != nil {
		t.Fatalf("SecondApproval: %v", err)
	}
	if item.Status != workflow.StatusApproved {
		t.Errorf("final status = %s, want %s", item.Status, workflow.StatusApproved)
	}
}

func TestSoAOneDecisionPerControl(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	soaService := service.NewSoAService(containers.DB, nil)
	ctx := context.Background()

	in := service.SoAItemInput{
		ControlID:     fixtures.Controls[1].ID,
		Applicable:    false,
		Justification: "No cryptographic assets in scope",
	}
	if _, err := soaService.Create(ctx, fixtures.Member, fixtures.Org.ID, in); err != nil {
		t.Fatalf("first Create: %v", err)
	}

	_, err := soaService.Create(ctx, fixtures.Member, fixtures.Org.ID, in)
	var validation *workflow.ValidationError
	if !errors.As(err, &validation) {
		t.Errorf("duplicate decision: expected ValidationError, got %v", err)
	}

	// The same control is fine in a different organization.
	otherOrg := fixtures.CreateOrganization(t, "Globex")
	fixtures.AddMember(t, otherOrg.ID, fixtures.Outsider.ID, workflow.RoleMember, "Analyst")
	if _, err := soaService.Create(ctx, fixtures.Outsider, otherOrg.ID, in); err != nil {
		t.Errorf("same control in another org: %v", err)
	}
}

func TestSoAUnknownControlRejected(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	soaService := service.NewSoAService(containers.DB, nil)

	_, err := soaService.Create(context.Background(), fixtures.Member, fixtures.Org.ID, service.SoAItemInput{
		ControlID:     99999,
		Applicable:    true,
		Justification: "bogus",
	})
	var validation *workflow.ValidationError
	if !errors.As(err, &validation) {
		t.Errorf("unknown control: expected ValidationError, got %v", err)
	}
}
