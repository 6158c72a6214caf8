package core

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"gorm.io/gorm"

	"renobot/internal/database"
	"renobot/pkg/logger"
)

// ProjectInput is everything the creation wizard collects.
type ProjectInput struct {
	Name               string
	Address            string
	AreaSqm            float64
	RenovationType     database.RenovationType
	TotalBudget        float64
	CoordinatorType    database.CoordinatorType
	CoordinatorContact string
	CoOwnerContact     string
	CustomItems        []string
}

type ProjectService struct {
	db *gorm.DB
}

func NewProjectService(db *gorm.DB) *ProjectService {
	return &ProjectService{db: db}
}

// Create makes the project, assigns the creator as owner, and generates
// the full stage set (13 standard + 5 per custom item) in one
// transaction. Partial failure leaves nothing behind.
func (s *ProjectService) Create(ownerID uint, in ProjectInput) (*database.Project, error) {
	project := database.Project{
		Name:               in.Name,
		Address:            in.Address,
		AreaSqm:            in.AreaSqm,
		RenovationType:     in.RenovationType,
		TotalBudget:        in.TotalBudget,
		CoordinatorType:    in.CoordinatorType,
		CoordinatorContact: in.CoordinatorContact,
		CoOwnerContact:     in.CoOwnerContact,
		IsActive:           true,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&project).Error; err != nil {
			return err
		}

		member := database.ProjectMember{
			ProjectID: project.ID,
			UserID:    ownerID,
			Role:      database.RoleOwner,
		}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}

		templates := append([]StageTemplate{}, StandardStages...)
		templates = append(templates, BuildParallelStages(in.CustomItems)...)
		for _, t := range templates {
			stage := t.NewStage(project.ID)
			if err := tx.Create(&stage).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	logger.Info().
		Uint("project_id", project.ID).
		Uint("owner_id", ownerID).
		Int("custom_items", len(in.CustomItems)).
		Msg("project created")
	return &project, nil
}

// Get loads a project with its stages ordered by sort order.
func (s *ProjectService) Get(projectID uint) (*database.Project, error) {
	var project database.Project
	err := s.db.Preload("Stages", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order")
	}).First(&project, projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

// LinkChat links a group chat to a project. The link succeeds only if
// the project has no chat yet and the chat is linked to no other
// project; otherwise the specific conflict is reported and nothing
// changes.
func (s *ProjectService) LinkChat(projectID uint, chatID int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing database.Project
		err := tx.Where("telegram_chat_id = ?", chatID).First(&existing).Error
		if err == nil {
			if existing.ID == projectID {
				return nil // already linked to this project, no-op
			}
			return fmt.Errorf("chat linked to project %q: %w", existing.Name, ErrAlreadyLinked)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var project database.Project
		if err := tx.First(&project, projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if project.TelegramChatID != nil {
			return fmt.Errorf("project already linked to another chat: %w", ErrAlreadyLinked)
		}

		return tx.Model(&project).Update("telegram_chat_id", chatID).Error
	})
}

var deepLinkRe = regexp.MustCompile(`^proj_(\d+)$`)

// ParseDeepLink extracts the project ID from a proj_N start payload.
func ParseDeepLink(payload string) (uint, bool) {
	m := deepLinkRe.FindStringSubmatch(payload)
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// DeepLink builds the t.me group-invite link for a project.
func DeepLink(botUsername string, projectID uint) string {
	return fmt.Sprintf("https://t.me/%s?startgroup=proj_%d", botUsername, projectID)
}
