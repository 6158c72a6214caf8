package core

import (
	"errors"
	"sort"

	"gorm.io/gorm"

	"renobot/internal/database"
)

// Action is a granular permission checked against the role table.
type Action string

const (
	ActionEditProject   Action = "edit_project"
	ActionLaunchProject Action = "launch_project"
	ActionInviteMember  Action = "invite_member"
	ActionViewStages    Action = "view_stages"
	ActionEditStage     Action = "edit_stage"
	ActionUpdateStatus  Action = "update_status"
	ActionAddSubStages  Action = "add_sub_stages"
	ActionViewBudget    Action = "view_budget"
	ActionEditBudget    Action = "edit_budget"
	ActionConfirmBudget Action = "confirm_budget"
	ActionViewReports   Action = "view_reports"
)

// rolePermissions is the full permission matrix. Confirmation of budget
// amounts is owner-only; everything else follows the role's job.
var rolePermissions = map[database.Role]map[Action]bool{
	database.RoleOwner: permSet(
		ActionEditProject, ActionLaunchProject, ActionInviteMember,
		ActionViewStages, ActionEditStage, ActionUpdateStatus, ActionAddSubStages,
		ActionViewBudget, ActionEditBudget, ActionConfirmBudget, ActionViewReports,
	),
	database.RoleCoOwner: permSet(
		ActionViewStages, ActionViewBudget, ActionViewReports,
	),
	database.RoleForeman: permSet(
		ActionInviteMember, ActionViewStages, ActionEditStage, ActionUpdateStatus,
		ActionAddSubStages, ActionViewBudget, ActionEditBudget, ActionViewReports,
	),
	database.RoleTradesperson: permSet(
		ActionViewStages, ActionUpdateStatus,
	),
	database.RoleDesigner: permSet(
		ActionViewStages, ActionEditStage, ActionAddSubStages,
		ActionViewBudget, ActionViewReports,
	),
	database.RoleSupplier: permSet(
		ActionViewStages,
	),
	database.RoleExpert: permSet(
		ActionViewStages, ActionViewBudget,
	),
	database.RoleViewer: permSet(
		ActionViewStages, ActionViewBudget, ActionViewReports,
	),
}

func permSet(actions ...Action) map[Action]bool {
	m := make(map[Action]bool, len(actions))
	for _, a := range actions {
		m[a] = true
	}
	return m
}

// RoleAllows checks the permission table without touching the database.
func RoleAllows(role database.Role, action Action) bool {
	return rolePermissions[role][action]
}

// RoleLabels maps roles to display names.
var RoleLabels = map[database.Role]string{
	database.RoleOwner:        "👑 Владелец",
	database.RoleCoOwner:      "👥 Совладелец",
	database.RoleForeman:      "👷 Прораб",
	database.RoleTradesperson: "🔧 Мастер",
	database.RoleDesigner:     "🎨 Дизайнер",
	database.RoleSupplier:     "📦 Поставщик",
	database.RoleExpert:       "🔍 Эксперт",
	database.RoleViewer:       "👁 Наблюдатель",
}

// AssignableRoles can be given via /invite. Owner is excluded: there is
// exactly one, the creator.
var AssignableRoles = []database.Role{
	database.RoleCoOwner,
	database.RoleForeman,
	database.RoleTradesperson,
	database.RoleDesigner,
	database.RoleSupplier,
	database.RoleExpert,
	database.RoleViewer,
}

// TeamMember pairs a user with their role in a project.
type TeamMember struct {
	User database.User
	Role database.Role
}

type RoleService struct {
	db *gorm.DB
}

func NewRoleService(db *gorm.DB) *RoleService {
	return &RoleService{db: db}
}

// Can checks whether a user's role in a project permits an action.
// A user with no membership can do nothing.
func (s *RoleService) Can(projectID, userID uint, action Action) (bool, error) {
	role, err := s.RoleOf(projectID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return RoleAllows(role, action), nil
}

// RoleOf returns the user's role in a project.
func (s *RoleService) RoleOf(projectID, userID uint) (database.Role, error) {
	var member database.ProjectMember
	err := s.db.Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return member.Role, nil
}

// Assign gives a user a role in a project. One role per (user, project):
// assigning again overwrites the previous role.
func (s *RoleService) Assign(projectID, userID uint, role database.Role, specialty string) error {
	var member database.ProjectMember
	err := s.db.Where("project_id = ? AND user_id = ?", projectID, userID).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.Create(&database.ProjectMember{
			ProjectID: projectID,
			UserID:    userID,
			Role:      role,
			Specialty: specialty,
		}).Error
	}
	if err != nil {
		return err
	}
	return s.db.Model(&member).Updates(map[string]interface{}{
		"role":      role,
		"specialty": specialty,
	}).Error
}

// Team returns a project's members with their users, owner first.
func (s *RoleService) Team(projectID uint) ([]TeamMember, error) {
	var members []database.ProjectMember
	if err := s.db.Where("project_id = ?", projectID).Find(&members).Error; err != nil {
		return nil, err
	}

	team := make([]TeamMember, 0, len(members))
	for _, m := range members {
		var user database.User
		if err := s.db.First(&user, m.UserID).Error; err != nil {
			return nil, err
		}
		team = append(team, TeamMember{User: user, Role: m.Role})
	}

	sort.SliceStable(team, func(i, j int) bool {
		if team[i].Role == database.RoleOwner {
			return team[j].Role != database.RoleOwner
		}
		return false
	})
	return team, nil
}
