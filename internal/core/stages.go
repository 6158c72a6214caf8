package core

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"renobot/internal/database"
	"renobot/pkg/logger"
)

// paymentNext defines the payment lifecycle. Transitions are strictly
// forward-only; closed is terminal.
var paymentNext = map[database.PaymentStatus]database.PaymentStatus{
	database.PaymentRecorded:   database.PaymentInProgress,
	database.PaymentInProgress: database.PaymentVerified,
	database.PaymentVerified:   database.PaymentPaid,
	database.PaymentPaid:       database.PaymentClosed,
}

// NextPaymentStatus returns the only allowed transition from the
// current payment status, or false for the terminal state.
func NextPaymentStatus(current database.PaymentStatus) (database.PaymentStatus, bool) {
	next, ok := paymentNext[current]
	return next, ok
}

type StageService struct {
	db *gorm.DB
}

func NewStageService(db *gorm.DB) *StageService {
	return &StageService{db: db}
}

func (s *StageService) Get(stageID uint) (*database.Stage, error) {
	var stage database.Stage
	err := s.db.Preload("SubStages", func(db *gorm.DB) *gorm.DB {
		return db.Order("sort_order")
	}).First(&stage, stageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &stage, nil
}

func (s *StageService) List(projectID uint) ([]database.Stage, error) {
	var stages []database.Stage
	err := s.db.Where("project_id = ?", projectID).
		Order("sort_order").Find(&stages).Error
	return stages, err
}

// Launch moves the earliest-ordered main stage to in_progress and flips
// the project's launched marker. Fails with ErrNotReady when the first
// stage lacks a start or end date, and with ErrAlreadyLaunched on a
// repeat launch; neither failure mutates anything.
func (s *StageService) Launch(projectID, actorID uint) (*database.Stage, error) {
	var first *database.Stage
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var project database.Project
		if err := tx.First(&project, projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if project.IsLaunched {
			return ErrAlreadyLaunched
		}

		var stage database.Stage
		err := tx.Where("project_id = ? AND is_parallel = ?", projectID, false).
			Order("sort_order").First(&stage).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotReady
		}
		if err != nil {
			return err
		}
		if stage.StartDate == nil || stage.EndDate == nil {
			return ErrNotReady
		}

		if err := s.setStatusTx(tx, &stage, database.StageInProgress, actorID); err != nil {
			return err
		}
		if err := tx.Model(&project).Update("is_launched", true).Error; err != nil {
			return err
		}
		first = &stage
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info().Uint("project_id", projectID).Uint("stage_id", first.ID).Msg("project launched")
	return first, nil
}

// SetStatus transitions a stage's work status and logs the change.
func (s *StageService) SetStatus(stageID uint, status database.StageStatus, actorID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var stage database.Stage
		if err := tx.First(&stage, stageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		return s.setStatusTx(tx, &stage, status, actorID)
	})
}

func (s *StageService) setStatusTx(tx *gorm.DB, stage *database.Stage, status database.StageStatus, actorID uint) error {
	old := stage.Status
	if old == status {
		return nil
	}
	if err := tx.Model(stage).Update("status", status).Error; err != nil {
		return err
	}
	return tx.Create(&database.ChangeLog{
		ProjectID:  stage.ProjectID,
		UserID:     actorID,
		EntityType: "stage",
		EntityID:   stage.ID,
		FieldName:  "status",
		OldValue:   string(old),
		NewValue:   string(status),
	}).Error
}

// AdvancePayment moves a stage's payment status one step forward in the
// lifecycle and appends a ChangeLog row. Any other target is rejected.
func (s *StageService) AdvancePayment(stageID uint, target database.PaymentStatus, actorID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var stage database.Stage
		if err := tx.First(&stage, stageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		old := stage.PaymentStatus
		next, ok := NextPaymentStatus(old)
		if !ok || next != target {
			return fmt.Errorf("%s → %s: %w", old, target, ErrInvalidTransition)
		}

		now := time.Now().UTC()
		err := tx.Model(&stage).Updates(map[string]interface{}{
			"payment_status":     target,
			"payment_changed_at": now,
		}).Error
		if err != nil {
			return err
		}

		return tx.Create(&database.ChangeLog{
			ProjectID:  stage.ProjectID,
			UserID:     actorID,
			EntityType: "stage",
			EntityID:   stage.ID,
			FieldName:  "payment_status",
			OldValue:   string(old),
			NewValue:   string(target),
		}).Error
	})
}

// SetDates updates a stage's start and/or end date with audit rows.
// Concurrent edits are last-write-wins; the ChangeLog keeps both.
func (s *StageService) SetDates(stageID uint, start, end *time.Time, actorID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var stage database.Stage
		if err := tx.First(&stage, stageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		updates := map[string]interface{}{}
		if start != nil {
			updates["start_date"] = start
			if err := s.logFieldTx(tx, &stage, "start_date", FormatDate(stage.StartDate), FormatDate(start), actorID); err != nil {
				return err
			}
		}
		if end != nil {
			updates["end_date"] = end
			if err := s.logFieldTx(tx, &stage, "end_date", FormatDate(stage.EndDate), FormatDate(end), actorID); err != nil {
				return err
			}
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Model(&stage).Updates(updates).Error
	})
}

// SetResponsible records the contact responsible for a stage.
func (s *StageService) SetResponsible(stageID uint, contact string, actorID uint) error {
	return s.updateField(stageID, "responsible_contact", contact, actorID, func(st *database.Stage) string {
		return st.ResponsibleContact
	})
}

// SetBudget sets a stage's own budget.
func (s *StageService) SetBudget(stageID uint, budget float64, actorID uint) error {
	return s.updateField(stageID, "budget", budget, actorID, func(st *database.Stage) string {
		return strconv.FormatFloat(st.Budget, 'f', 2, 64)
	})
}

func (s *StageService) updateField(stageID uint, field string, value interface{}, actorID uint, oldVal func(*database.Stage) string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var stage database.Stage
		if err := tx.First(&stage, stageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := s.logFieldTx(tx, &stage, field, oldVal(&stage), fmt.Sprint(value), actorID); err != nil {
			return err
		}
		return tx.Model(&stage).Update(field, value).Error
	})
}

func (s *StageService) logFieldTx(tx *gorm.DB, stage *database.Stage, field, oldVal, newVal string, actorID uint) error {
	return tx.Create(&database.ChangeLog{
		ProjectID:  stage.ProjectID,
		UserID:     actorID,
		EntityType: "stage",
		EntityID:   stage.ID,
		FieldName:  field,
		OldValue:   oldVal,
		NewValue:   newVal,
	}).Error
}

// AssignedTo returns the project's stages whose responsible contact
// points at the given user, matched by username or full name.
func (s *StageService) AssignedTo(projectID uint, user *database.User) ([]database.Stage, error) {
	var contacts []string
	if user.Username != "" {
		contacts = append(contacts, user.Username, "@"+user.Username)
	}
	if user.FullName != "" {
		contacts = append(contacts, user.FullName)
	}
	if len(contacts) == 0 {
		return nil, nil
	}

	var stages []database.Stage
	err := s.db.Where("project_id = ? AND responsible_contact IN ?", projectID, contacts).
		Order("sort_order").Find(&stages).Error
	return stages, err
}

// AddSubStages appends checklist items to a stage, one per name, in order.
func (s *StageService) AddSubStages(stageID uint, names []string) ([]database.SubStage, error) {
	var created []database.SubStage
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var stage database.Stage
		if err := tx.First(&stage, stageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		var maxOrder int
		tx.Model(&database.SubStage{}).Where("stage_id = ?", stageID).
			Select("COALESCE(MAX(sort_order), 0)").Scan(&maxOrder)

		for i, name := range names {
			sub := database.SubStage{
				StageID:   stageID,
				Name:      name,
				SortOrder: maxOrder + i + 1,
				Status:    database.StagePlanned,
			}
			if err := tx.Create(&sub).Error; err != nil {
				return err
			}
			created = append(created, sub)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CreateWithSubStages appends a new main stage with a prepared
// checklist, after the last main stage. Used for plans extracted from
// free text.
func (s *StageService) CreateWithSubStages(projectID uint, name string, budget float64, subs []database.SubStage, actorID uint) (*database.Stage, error) {
	var stage database.Stage
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var maxOrder int
		tx.Model(&database.Stage{}).Where("project_id = ? AND is_parallel = ?", projectID, false).
			Select("COALESCE(MAX(sort_order), 0)").Scan(&maxOrder)

		stage = database.Stage{
			ProjectID:     projectID,
			Name:          name,
			SortOrder:     maxOrder + 1,
			Status:        database.StagePlanned,
			PaymentStatus: database.PaymentRecorded,
			Budget:        budget,
		}
		if err := tx.Create(&stage).Error; err != nil {
			return err
		}

		for i := range subs {
			subs[i].StageID = stage.ID
			if err := tx.Create(&subs[i]).Error; err != nil {
				return err
			}
		}

		return tx.Create(&database.ChangeLog{
			ProjectID:  projectID,
			UserID:     actorID,
			EntityType: "stage",
			EntityID:   stage.ID,
			FieldName:  "created",
			NewValue:   name,
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create stage: %w", err)
	}
	return &stage, nil
}

// NextStage returns the current in-progress stage and the next planned
// main stage after it.
func (s *StageService) NextStage(projectID uint) (current, next *database.Stage, err error) {
	stages, err := s.List(projectID)
	if err != nil {
		return nil, nil, err
	}
	for i := range stages {
		if stages[i].IsParallel {
			continue
		}
		if stages[i].Status == database.StageInProgress && current == nil {
			current = &stages[i]
			continue
		}
		if current != nil && stages[i].Status == database.StagePlanned {
			next = &stages[i]
			break
		}
	}
	if current == nil {
		// Nothing running yet: the next stage is the first planned one.
		for i := range stages {
			if !stages[i].IsParallel && stages[i].Status == database.StagePlanned {
				next = &stages[i]
				break
			}
		}
	}
	return current, next, nil
}
