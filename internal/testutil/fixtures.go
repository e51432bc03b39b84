package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/cdmx-in/isms-manager-sub001/internal/models"
	"github.com/cdmx-in/isms-manager-sub001/internal/workflow"

	"golang.org/x/crypto/bcrypt"
)

// Fixtures holds a tenant with the member roles the approval cycle
// needs, plus a couple of catalog controls.
type Fixtures struct {
	DB        *sql.DB
	Org       *models.Organization
	AdminUser *models.User // org admin, second-stage approver
	LocalUser *models.User // local admin, first-stage reviewer
	Member    *models.User // regular member, creates entities
	Viewer    *models.User // read-only member
	Outsider  *models.User // not a member of Org
	Controls  []models.Control
}

// SetupFixtures creates test data
func SetupFixtures(t *testing.T, db *sql.DB) *Fixtures {
	t.Helper()

	f := &Fixtures{DB: db}

	f.AdminUser = f.CreateUser(t, "admin@test.com", "Admin", "User")
	f.LocalUser = f.CreateUser(t, "localadmin@test.com", "Local", "Admin")
	f.Member = f.CreateUser(t, "member@test.com", "Regular", "Member")
	f.Viewer = f.CreateUser(t, "viewer@test.com", "Read", "Only")
	f.Outsider = f.CreateUser(t, "outsider@test.com", "Out", "Sider")

	f.Org = f.CreateOrganization(t, "Acme Corp")
	f.AddMember(t, f.Org.ID, f.AdminUser.ID, workflow.RoleAdmin, "CISO")
	f.AddMember(t, f.Org.ID, f.LocalUser.ID, workflow.RoleLocalAdmin, "Security Lead")
	f.AddMember(t, f.Org.ID, f.Member.ID, workflow.RoleMember, "Analyst")
	f.AddMember(t, f.Org.ID, f.Viewer.ID, workflow.RoleViewer, "Auditor")

	f.Controls = append(f.Controls,
		*f.CreateControl(t, "A.5.1", "5.1", "Policies for information security"),
		*f.CreateControl(t, "A.8.24", "8.24", "Use of cryptography"),
	)

	return f
}

// CreateUser inserts a user with a known password ("password123").
func (f *Fixtures) CreateUser(t *testing.T, email, firstName, lastName string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}

	user := &models.User{Email: email, FirstName: firstName, LastName: lastName, IsActive: true}
	err = f.DB.QueryRow(`
		INSERT INTO users (email, password_hash, first_name, last_name, is_platform_admin, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, false, true, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, email, string(hash), firstName, lastName).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", email, err)
	}

	return user
}

// MakePlatformAdmin promotes a user to platform admin.
func (f *Fixtures) MakePlatformAdmin(t *testing.T, userID uint) {
	t.Helper()
	if _, err := f.DB.Exec(`UPDATE users SET is_platform_admin = true WHERE id = $1`, userID); err != nil {
		t.Fatalf("Failed to promote user %d: %v", userID, err)
	}
}

// CreateOrganization inserts a tenant organization.
func (f *Fixtures) CreateOrganization(t *testing.T, name string) *models.Organization {
	t.Helper()

	org := &models.Organization{Name: name}
	err := f.DB.QueryRow(`
		INSERT INTO organizations (name, description, created_at, updated_at)
		VALUES ($1, NULL, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, name).Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		t.Fatalf("Failed to create organization %s: %v", name, err)
	}

	return org
}

// AddMember inserts an organization membership row.
func (f *Fixtures) AddMember(t *testing.T, orgID, userID uint, role workflow.Role, designation string) {
	t.Helper()

	_, err := f.DB.Exec(`
		INSERT INTO organization_members (organization_id, user_id, role, designation, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`, orgID, userID, string(role), designation)
	if err != nil {
		t.Fatalf("Failed to add member %d to org %d: %v", userID, orgID, err)
	}
}

// DesignateApprovers sets the document reviewer and approver on an org.
func (f *Fixtures) DesignateApprovers(t *testing.T, orgID uint, reviewerID, approverID *uint) {
	t.Helper()

	_, err := f.DB.Exec(`
		UPDATE organizations SET reviewer_id = $1, approver_id = $2, updated_at = NOW() WHERE id = $3
	`, reviewerID, approverID, orgID)
	if err != nil {
		t.Fatalf("Failed to designate approvers on org %d: %v", orgID, err)
	}
}

// CreateControl inserts a catalog control, reusing the seeded row when
// the code is already in the catalog.
func (f *Fixtures) CreateControl(t *testing.T, code, clause, title string) *models.Control {
	t.Helper()

	control := &models.Control{Code: code, Clause: clause, Title: title}
	err := f.DB.QueryRow(`
		INSERT INTO controls (code, clause, title, description, created_at, updated_at)
		VALUES ($1, $2, $3, '', NOW(), NOW())
		ON CONFLICT (code) DO UPDATE SET clause = EXCLUDED.clause, title = EXCLUDED.title
		RETURNING id, created_at, updated_at
	`, code, clause, title).Scan(&control.ID, &control.CreatedAt, &control.UpdatedAt)
	if err != nil {
		t.Fatalf("Failed to create control %s: %v", code, err)
	}

	return control
}

// CreateRisk inserts a risk directly, bypassing the service layer, for
// tests that need a row in a specific approval state.
func (f *Fixtures) CreateRisk(t *testing.T, orgID uint, title string, status workflow.Status, version workflow.Version) *models.Risk {
	t.Helper()

	risk := &models.Risk{
		OrgID:        orgID,
		Title:        title,
		Likelihood:   3,
		Impact:       3,
		InherentRisk: 9,
		Status:       status,
		Version:      version,
	}
	err := f.DB.QueryRow(`
		INSERT INTO risks (organization_id, title, description, category, owner,
			likelihood, impact, inherent_risk, treatment_plan,
			approval_status, version, created_by_id, created_at, updated_at)
		VALUES ($1, $2, '', '', '', 3, 3, 9, '', $3, $4, $5, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`, orgID, title, string(status), version, f.Member.ID).Scan(&risk.ID, &risk.CreatedAt, &risk.UpdatedAt)
	if err != nil {
		t.Fatalf("Failed to create risk %s: %v", title, err)
	}

	return risk
}

// CreateSnapshot inserts a version history row for an entity.
func (f *Fixtures) CreateSnapshot(t *testing.T, orgID uint, kind string, entityID uint, version workflow.Version, action string) uint {
	t.Helper()

	var id uint
	err := f.DB.QueryRow(`
		INSERT INTO version_snapshots (entity_kind, entity_id, organization_id, version, action,
			change_description, actor_name, actor_designation, created_by_id, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '', 'Regular Member', 'Analyst', $6, '{}', $7, $7)
		RETURNING id
	`, kind, entityID, orgID, version, action, f.Member.ID, time.Now()).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create snapshot for %s %d: %v", kind, entityID, err)
	}

	return id
}
