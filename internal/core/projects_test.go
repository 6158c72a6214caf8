package core

import (
	"errors"
	"testing"

	"renobot/internal/database"
)

func TestProjectService_Create_StandardStages(t *testing.T) {
	db := testDB(t)
	svc := NewProjectService(db)
	owner := testUser(t, db, 100, "Анна")

	project, err := svc.Create(owner.ID, ProjectInput{
		Name:           "Квартира на Абая",
		AreaSqm:        50,
		RenovationType: database.RenovationStandard,
		TotalBudget:    1000000,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var stages []database.Stage
	if err := db.Where("project_id = ?", project.ID).Order("sort_order").Find(&stages).Error; err != nil {
		t.Fatal(err)
	}
	if len(stages) != 13 {
		t.Fatalf("stage count = %d, expected 13", len(stages))
	}
	for i, s := range stages {
		if s.Status != database.StagePlanned {
			t.Errorf("stage %q status = %q, expected planned", s.Name, s.Status)
		}
		if s.SortOrder != i+1 {
			t.Errorf("stage %q order = %d, expected %d", s.Name, s.SortOrder, i+1)
		}
	}

	role, err := NewRoleService(db).RoleOf(project.ID, owner.ID)
	if err != nil {
		t.Fatalf("RoleOf: %v", err)
	}
	if role != database.RoleOwner {
		t.Errorf("creator role = %q, expected owner", role)
	}
}

func TestProjectService_Create_WithCustomItems(t *testing.T) {
	db := testDB(t)
	svc := NewProjectService(db)
	owner := testUser(t, db, 100, "Анна")

	project, err := svc.Create(owner.ID, ProjectInput{
		Name:           "Test",
		RenovationType: database.RenovationDesigner,
		CustomItems:    []string{"kitchen", "wardrobes", "doors"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var total, parallel int64
	db.Model(&database.Stage{}).Where("project_id = ?", project.ID).Count(&total)
	db.Model(&database.Stage{}).Where("project_id = ? AND is_parallel = ?", project.ID, true).Count(&parallel)

	if total != 13+15 {
		t.Errorf("total stages = %d, expected 28", total)
	}
	if parallel != 15 {
		t.Errorf("parallel stages = %d, expected 5×3 = 15", parallel)
	}
}

func TestProjectService_LinkChat(t *testing.T) {
	db := testDB(t)
	svc := NewProjectService(db)
	owner := testUser(t, db, 100, "Анна")

	p1, _ := svc.Create(owner.ID, ProjectInput{Name: "Первый", RenovationType: database.RenovationCosmetic})
	p2, _ := svc.Create(owner.ID, ProjectInput{Name: "Второй", RenovationType: database.RenovationCosmetic})

	if err := svc.LinkChat(p1.ID, -500); err != nil {
		t.Fatalf("LinkChat: %v", err)
	}

	// Linking the same pair again is a no-op
	if err := svc.LinkChat(p1.ID, -500); err != nil {
		t.Errorf("re-linking same pair should be a no-op, got %v", err)
	}

	// Chat already taken by p1
	if err := svc.LinkChat(p2.ID, -500); !errors.Is(err, ErrAlreadyLinked) {
		t.Errorf("linking taken chat: err = %v, expected ErrAlreadyLinked", err)
	}

	// Project already linked elsewhere
	if err := svc.LinkChat(p1.ID, -600); !errors.Is(err, ErrAlreadyLinked) {
		t.Errorf("linking linked project: err = %v, expected ErrAlreadyLinked", err)
	}

	// Failed attempts must not mutate either side
	var p2Fresh database.Project
	db.First(&p2Fresh, p2.ID)
	if p2Fresh.TelegramChatID != nil {
		t.Error("failed link mutated the project")
	}

	if err := svc.LinkChat(999, -700); !errors.Is(err, ErrNotFound) {
		t.Errorf("linking missing project: err = %v, expected ErrNotFound", err)
	}
}

func TestParseDeepLink(t *testing.T) {
	if id, ok := ParseDeepLink("proj_42"); !ok || id != 42 {
		t.Errorf("ParseDeepLink(proj_42) = %d, %v", id, ok)
	}
	for _, in := range []string{"proj_", "proj_x", "42", "", "proj_42_extra"} {
		if _, ok := ParseDeepLink(in); ok {
			t.Errorf("ParseDeepLink(%q) should fail", in)
		}
	}
}

func TestDeepLink(t *testing.T) {
	got := DeepLink("renobot", 7)
	want := "https://t.me/renobot?startgroup=proj_7"
	if got != want {
		t.Errorf("DeepLink = %q, expected %q", got, want)
	}
}
