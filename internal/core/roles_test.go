package core

import (
	"testing"

	"renobot/internal/database"
)

func TestRoleAllows(t *testing.T) {
	tests := []struct {
		role   database.Role
		action Action
		want   bool
	}{
		{database.RoleOwner, ActionConfirmBudget, true},
		{database.RoleForeman, ActionConfirmBudget, false},
		{database.RoleCoOwner, ActionConfirmBudget, false},
		{database.RoleForeman, ActionEditBudget, true},
		{database.RoleForeman, ActionInviteMember, true},
		{database.RoleTradesperson, ActionUpdateStatus, true},
		{database.RoleTradesperson, ActionViewBudget, false},
		{database.RoleSupplier, ActionViewStages, true},
		{database.RoleSupplier, ActionViewBudget, false},
		{database.RoleViewer, ActionViewReports, true},
		{database.RoleViewer, ActionEditStage, false},
		{database.RoleDesigner, ActionAddSubStages, true},
	}
	for _, tt := range tests {
		if got := RoleAllows(tt.role, tt.action); got != tt.want {
			t.Errorf("RoleAllows(%s, %s) = %v, expected %v", tt.role, tt.action, got, tt.want)
		}
	}
}

func TestRoleService_CanWithoutMembership(t *testing.T) {
	db := testDB(t)
	roles := NewRoleService(db)
	projects := NewProjectService(db)
	owner := testUser(t, db, 100, "Анна")
	stranger := testUser(t, db, 200, "Борис")
	project, _ := projects.Create(owner.ID, ProjectInput{Name: "Test", RenovationType: database.RenovationCosmetic})

	ok, err := roles.Can(project.ID, stranger.ID, ActionViewStages)
	if err != nil {
		t.Fatalf("Can: %v", err)
	}
	if ok {
		t.Error("non-member should be denied everything")
	}
}

func TestRoleService_AssignOverwrites(t *testing.T) {
	db := testDB(t)
	roles := NewRoleService(db)
	projects := NewProjectService(db)
	owner := testUser(t, db, 100, "Анна")
	worker := testUser(t, db, 200, "Борис")
	project, _ := projects.Create(owner.ID, ProjectInput{Name: "Test", RenovationType: database.RenovationCosmetic})

	if err := roles.Assign(project.ID, worker.ID, database.RoleTradesperson, "плитка"); err != nil {
		t.Fatal(err)
	}
	if err := roles.Assign(project.ID, worker.ID, database.RoleForeman, ""); err != nil {
		t.Fatal(err)
	}

	role, err := roles.RoleOf(project.ID, worker.ID)
	if err != nil {
		t.Fatal(err)
	}
	if role != database.RoleForeman {
		t.Errorf("role = %q, expected foreman after reassignment", role)
	}

	var n int64
	db.Model(&database.ProjectMember{}).
		Where("project_id = ? AND user_id = ?", project.ID, worker.ID).Count(&n)
	if n != 1 {
		t.Errorf("membership rows = %d, expected 1", n)
	}
}

func TestRoleService_TeamOwnerFirst(t *testing.T) {
	db := testDB(t)
	roles := NewRoleService(db)
	projects := NewProjectService(db)
	owner := testUser(t, db, 100, "Анна")
	foreman := testUser(t, db, 200, "Борис")
	designer := testUser(t, db, 300, "Вера")
	project, _ := projects.Create(owner.ID, ProjectInput{Name: "Test", RenovationType: database.RenovationCosmetic})

	roles.Assign(project.ID, foreman.ID, database.RoleForeman, "")
	roles.Assign(project.ID, designer.ID, database.RoleDesigner, "")

	team, err := roles.Team(project.ID)
	if err != nil {
		t.Fatalf("Team: %v", err)
	}
	if len(team) != 3 {
		t.Fatalf("team size = %d, expected 3", len(team))
	}
	if team[0].Role != database.RoleOwner || team[0].User.ID != owner.ID {
		t.Errorf("first member = %s %q, expected owner", team[0].Role, team[0].User.FullName)
	}
}

func TestAssignableRolesExcludeOwner(t *testing.T) {
	for _, role := range AssignableRoles {
		if role == database.RoleOwner {
			t.Fatal("owner must not be assignable via invite")
		}
	}
	if len(AssignableRoles) != 7 {
		t.Errorf("assignable roles = %d, expected 7", len(AssignableRoles))
	}
}
