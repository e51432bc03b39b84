package service_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/cdmx-in/isms-manager-sub001/internal/securestore"
	"github.com/cdmx-in/isms-manager-sub001/internal/service"
	"github.com/cdmx-in/isms-manager-sub001/internal/testutil"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"
)

const testDataKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestIncidentDetailsEncryptedAtRest(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	cipher, err := securestore.NewLocalCipher(testDataKeyHex)
	if err != nil {
		t.Fatalf("NewLocalCipher: %v", err)
	}
	incidentService := service.NewIncidentService(containers.DB, cipher)

	details := "Attacker accessed the staging database via leaked credentials"
	inc, err := incidentService.Report(context.Background(), fixtures.Member, fixtures.Org.ID, service.IncidentInput{
		Title:    "Staging database breach",
		Severity: "high",
		Details:  details,
	})
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	if inc.Status != "open" {
		t.Errorf("default status = %q, want open", inc.Status)
	}

	// The plaintext must not appear in the stored row.
	var stored []byte
	if err := containers.DB.QueryRow(
		`SELECT details_encrypted FROM incidents WHERE id = $1`, inc.ID,
	).Scan(&stored); err != nil {
		t.Fatalf("read stored ciphertext: %v", err)
	}
	if bytes.Contains(stored, []byte(details)) {
		t.Error("incident details stored in plaintext")
	}

	got, err := incidentService.Get(fixtures.Member, fixtures.Org.ID, inc.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Details != details {
		t.Errorf("decrypted details = %q, want %q", got.Details, details)
	}

	// Updating re-encrypts the new details.
	updated, err := incidentService.Update(context.Background(), fixtures.Member, fixtures.Org.ID, inc.ID, service.IncidentInput{
		Title:    inc.Title,
		Severity: "critical",
		Status:   "investigating",
		Details:  "Scope widened to production",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = incidentService.Get(fixtures.Member, fixtures.Org.ID, updated.ID)
	if err != nil {
		t.Fatalf("Get after update: %v", err)
	}
	if got.Details != "Scope widened to production" {
		t.Errorf("updated details = %q", got.Details)
	}
	if got.Severity != "critical" || got.Status != "investigating" {
		t.Errorf("updated severity/status = %s/%s", got.Severity, got.Status)
	}
}

func TestIncidentCiphertextBoundToOrganization(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	cipher, err := securestore.NewLocalCipher(testDataKeyHex)
	if err != nil {
		t.Fatalf("NewLocalCipher: %v", err)
	}
	incidentService := service.NewIncidentService(containers.DB, cipher)

	inc, err := incidentService.Report(context.Background(), fixtures.Member, fixtures.Org.ID, service.IncidentInput{
		Title:    "Bound to tenant",
		Severity: "low",
		Details:  "secret",
	})
	if err != nil {
		t.Fatalf("Report: %v", err)
	}

	// Re-pointing the row at another org must break decryption: the
	// additional data no longer matches.
	otherOrg := fixtures.CreateOrganization(t, "Globex")
	fixtures.AddMember(t, otherOrg.ID, fixtures.Outsider.ID, workflow.RoleAdmin, "CISO")
	if _, err := containers.DB.Exec(
		`UPDATE incidents SET organization_id = $1 WHERE id = $2`, otherOrg.ID, inc.ID,
	); err != nil {
		t.Fatalf("re-point incident: %v", err)
	}

	if _, err := incidentService.Get(fixtures.Outsider, otherOrg.ID, inc.ID); err == nil {
		t.Error("decryption succeeded with mismatched organization binding")
	}
}

func TestIncidentViewerCannotReport(t *testing.T) {
	containers := testutil.SetupTestContainers(t)
	defer containers.Cleanup(t)

	fixtures := testutil.SetupFixtures(t, containers.DB)
	cipher, err := securestore.NewLocalCipher(testDataKeyHex)
	if err != nil {
		t.Fatalf("NewLocalCipher: %v", err)
	}
	incidentService := service.NewIncidentService(containers.DB, cipher)

	_, err = incidentService.Report(context.Background(), fixtures.Viewer, fixtures.Org.ID, service.IncidentInput{
		Title:    "Viewer report",
		Severity: "low",
		Details:  "nope",
	})
	var authz *workflow.AuthorizationError
	if !errors.As(err, &authz) {
		t.Errorf("viewer report: expected AuthorizationError, got %v", err)
	}
}
