package service_test

import (
	"context"
	"testing"

	"github.com/cdmx-in/isms-manager-sub001/internal/service"
	"github.com/cdmx-in/isms-manager-sub001/internal/testutil"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

func TestAnyMemberMayAmendVersionDescription(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	riskService := service.NewRiskService(containers.DB, nil)
	versionService := service.NewVersionService(containers.DB)
	ctx := context.Background()

	risk, err := riskService.Create(ctx, fixtures.Member, fixtures.Org.ID, service.RiskInput{
		Title:      "Shared admin credentials",
		Category:   "access",
		Owner:      "Security",
		Likelihood: 3,
		Impact:     4,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	snaps, err := versionService.ListVersions(fixtures.Viewer, fixtures.Org.ID, workflow.KindRisk, risk.ID)
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(snaps) == 0 {
		t.Fatal("new risk has no version history")
	}

	// History notes are not entity edits, so a read-only member may fix them.
	snap, err := versionService.UpdateVersionDescription(ctx, fixtures.Viewer, fixtures.Org.ID, snaps[0].ID, "corrected note")
	if err != nil {
		t.Fatalf("UpdateVersionDescription by viewer: %v", err)
	}
	if snap.ChangeDescription != "corrected note" {
		t.Errorf("change description = %q, want %q", snap.ChangeDescription, "corrected note")
	}

	snaps, err = versionService.ListVersions(fixtures.Member, fixtures.Org.ID, workflow.KindRisk, risk.ID)
	if err != nil {
		t.Fatalf("ListVersions after update: %v", err)
	}
	if snaps[0].ChangeDescription != "corrected note" {
		t.Errorf("persisted description = %q, want %q", snaps[0].ChangeDescription, "corrected note")
	}
}
