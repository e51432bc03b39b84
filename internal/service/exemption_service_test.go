package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/repository"
	"github.com/cdmx-in/isms-manager-sub001/internal/service"
	"github.com/cdmx-in/isms-manager-sub001/internal/testutil"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

func TestExemptionRequiresExpiryToSubmit(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	exemptionService := service.NewExemptionService(containers.DB, nil)
	ctx := context.Background()

	ex, err := exemptionService.Create(ctx, fixtures.Member, fixtures.Org.ID, service.ExemptionInput{
		Title:         "Legacy app without MFA",
		ControlID:     &fixtures.Controls[0].ID,
		Justification: "Vendor does not support SSO until Q2",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Drafting without an expiry is fine, submitting is not.
	_, _, err = exemptionService.SubmitForReview(ctx, fixtures.Member, fixtures.Org.ID, ex.ID, "Initial submission", workflow.BumpNone)
	var validation *workflow.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("submit without expiry: expected ValidationError, got %v", err)
	}

	expires := time.Now().Add(90 * 24 * time.Hour)
	if _, err := exemptionService.Update(ctx, fixtures.Member, fixtures.Org.ID, ex.ID, service.ExemptionInput{
		Title:         ex.Title,
		ControlID:     ex.ControlID,
		Justification: ex.Justification,
		ExpiresAt:     &expires,
	}); err != nil {
		t.Fatalf("Update with expiry: %v", err)
	}

	ex, _, err = exemptionService.SubmitForReview(ctx, fixtures.Member, fixtures.Org.ID, ex.ID, "Initial submission", workflow.BumpNone)
	if err != nil {
		t.Fatalf("submit with expiry: %v", err)
	}
	if ex.Status != workflow.StatusPendingFirstApproval {
		t.Errorf("status = %s, want %s", ex.Status, workflow.StatusPendingFirstApproval)
	}
}

func TestExemptionExpiryMustBeFuture(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	exemptionService := service.NewExemptionService(containers.DB, nil)

	past := time.Now().Add(-24 * time.Hour)
	_, err := exemptionService.Create(context.Background(), fixtures.Member, fixtures.Org.ID, service.ExemptionInput{
		Title:     "Backdated",
		ExpiresAt: &past,
	})
	var validation *workflow.ValidationError
	if !errors.As(err, &validation) {
		t.Errorf("past expiry: expected ValidationError, got %v", err)
	}
}

func TestExemptionListExpiring(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	exemptionService := service.NewExemptionService(containers.DB, nil)
	ctx := context.Background()

	approve := func(title string, expires time.Time) {
		ex, err := exemptionService.Create(ctx, fixtures.Member, fixtures.Org.ID, service.ExemptionInput{
			Title:     title,
			ExpiresAt: &expires,
		})
		if err != nil {
			t.Fatalf("Create %s: %v", title, err)
		}
		if _, _, err := exemptionService.SubmitForReview(ctx, fixtures.Member, fixtures.Org.ID, ex.ID, "submission", workflow.BumpNone); err != nil {
			t.Fatalf("submit %s: %v", title, err)
		}
		if _, _, err := exemptionService.FirstApproval(ctx, fixtures.LocalUser, fixtures.Org.ID, ex.ID, "ok"); err != nil {
			t.Fatalf("first approval %s: %v", title, err)
		}
		if _, _, err := exemptionService.SecondApproval(ctx, fixtures.AdminUser, fixtures.Org.ID, ex.ID, "ok"); err != nil {
			t.Fatalf("second approval %s: %v", title, err)
		}
	}

	approve("Expiring soon", time.Now().Add(10*24*time.Hour))
	approve("Expiring much later", time.Now().Add(120*24*time.Hour))

	expiring, err := repository.NewExemptionRepository(containers.DB).ListExpiring(time.Now().Add(30 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("ListExpiring: %v", err)
	}
	if len(expiring) != 1 {
		t.Fatalf("got %d expiring exemptions, want 1", len(expiring))
	}
	if expiring[0].Title != "Expiring soon" {
		t.Errorf("expiring title = %q", expiring[0].Title)
	}
}
