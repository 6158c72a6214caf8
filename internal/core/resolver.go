package core

import (
	"errors"

	"gorm.io/gorm"

	"renobot/internal/database"
)

// ResolveOutcome is the result kind of project resolution. Every call
// terminates in exactly one of these; there is no other branch.
type ResolveOutcome int

const (
	// ResolvedProject: a single project was determined.
	ResolvedProject ResolveOutcome = iota
	// PickProject: the user must choose among several projects.
	PickProject
	// NoProjects: the user has none and should create one.
	NoProjects
	// GroupNotLinked: the group chat has no linked project.
	GroupNotLinked
)

// Resolution is the resolver's answer for one incoming command.
type Resolution struct {
	Outcome ResolveOutcome
	Project *database.Project
	// Choices is populated for PickProject.
	Choices []database.Project
}

// Resolver decides which project a command applies to, based on chat
// type and the projects visible to the user. It never writes.
type Resolver struct {
	db *gorm.DB
}

func NewResolver(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve applies the decision table:
//   - group chat, linked project        → that project
//   - group chat, no link              → GroupNotLinked
//   - private chat, zero projects      → NoProjects
//   - private chat, exactly one        → that project
//   - private chat, more than one      → PickProject with the list
func (r *Resolver) Resolve(isGroup bool, chatID int64, userID uint) (*Resolution, error) {
	if isGroup {
		project, err := r.ProjectByChat(chatID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return &Resolution{Outcome: GroupNotLinked}, nil
			}
			return nil, err
		}
		return &Resolution{Outcome: ResolvedProject, Project: project}, nil
	}

	projects, err := r.userProjects(userID)
	if err != nil {
		return nil, err
	}

	switch len(projects) {
	case 0:
		return &Resolution{Outcome: NoProjects}, nil
	case 1:
		return &Resolution{Outcome: ResolvedProject, Project: &projects[0]}, nil
	default:
		return &Resolution{Outcome: PickProject, Choices: projects}, nil
	}
}

// ProjectByChat returns the active project linked to a group chat.
func (r *Resolver) ProjectByChat(chatID int64) (*database.Project, error) {
	var project database.Project
	err := r.db.Where("telegram_chat_id = ? AND is_active = ?", chatID, true).
		First(&project).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (r *Resolver) userProjects(userID uint) ([]database.Project, error) {
	var projects []database.Project
	err := r.db.
		Joins("JOIN project_members ON project_members.project_id = projects.id").
		Where("project_members.user_id = ? AND projects.is_active = ?", userID, true).
		Order("projects.created_at").
		Find(&projects).Error
	return projects, err
}
