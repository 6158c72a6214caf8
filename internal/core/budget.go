package core

import (
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"renobot/internal/database"
	"renobot/pkg/logger"
)

// CategoryLabels lists the budget categories with display names.
var CategoryLabels = map[string]string{
	"electrical": "⚡ Электрика",
	"plumbing":   "🚿 Сантехника",
	"walls":      "🧱 Стены",
	"flooring":   "🪵 Полы",
	"tiling":     "🔲 Плитка",
	"ceilings":   "🏗 Потолки",
	"doors":      "🚪 Двери",
	"furniture":  "🪑 Мебель",
	"demolition": "🔨 Демонтаж",
	"painting":   "🎨 Покраска/обои",
	"other":      "📦 Прочее",
}

// CategoryKeys lists categories in keyboard display order.
var CategoryKeys = []string{
	"electrical", "plumbing", "walls", "flooring", "tiling",
	"ceilings", "doors", "furniture", "demolition", "painting", "other",
}

func CategoryLabel(category string) string {
	if label, ok := CategoryLabels[category]; ok {
		return label
	}
	return "📦 " + category
}

// CategorySummary aggregates spend within one category.
type CategorySummary struct {
	Category  string
	Work      float64
	Materials float64
	Total     float64
	Confirmed float64
}

// BudgetSummary is the project-level budget picture. Prepayments are
// tracked separately and do not count as spend until the work is costed.
type BudgetSummary struct {
	TotalBudget  float64
	TotalWork    float64
	TotalMater   float64
	TotalPrepaid float64
	TotalSpent   float64
	Remaining    float64
	UsagePct     float64
	Categories   []CategorySummary
}

// Overspent reports spend above the total budget.
func (b *BudgetSummary) Overspent() bool {
	return b.TotalBudget > 0 && b.TotalSpent > b.TotalBudget
}

// NearLimit reports usage at or past 90% of the total budget.
func (b *BudgetSummary) NearLimit() bool {
	return b.TotalBudget > 0 && b.UsagePct >= 90
}

type BudgetService struct {
	db    *gorm.DB
	roles *RoleService
}

func NewBudgetService(db *gorm.DB, roles *RoleService) *BudgetService {
	return &BudgetService{db: db, roles: roles}
}

// AddExpense records a budget item and one audit row for its creation.
func (s *BudgetService) AddExpense(projectID, actorID uint, category, description string, workCost, materialCost float64) (*database.BudgetItem, error) {
	item := database.BudgetItem{
		ProjectID:    projectID,
		Category:     category,
		Description:  description,
		WorkCost:     workCost,
		MaterialCost: materialCost,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		return tx.Create(&database.ChangeLog{
			ProjectID:  projectID,
			UserID:     actorID,
			EntityType: "budget_item",
			EntityID:   item.ID,
			FieldName:  "amount",
			OldValue:   "",
			NewValue:   formatAmountPair(workCost, materialCost),
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("add expense: %w", err)
	}

	logger.Info().
		Uint("project_id", projectID).
		Str("category", category).
		Float64("work", workCost).
		Float64("materials", materialCost).
		Msg("expense recorded")
	return &item, nil
}

// AddPrepayment records money handed over before the work is costed.
func (s *BudgetService) AddPrepayment(projectID, actorID uint, category, description string, amount float64) (*database.BudgetItem, error) {
	item := database.BudgetItem{
		ProjectID:   projectID,
		Category:    category,
		Description: description,
		Prepayment:  amount,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&item).Error; err != nil {
			return err
		}
		return tx.Create(&database.ChangeLog{
			ProjectID:  projectID,
			UserID:     actorID,
			EntityType: "budget_item",
			EntityID:   item.ID,
			FieldName:  "prepayment",
			OldValue:   "",
			NewValue:   strconv.FormatFloat(amount, 'f', 2, 64),
		}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("add prepayment: %w", err)
	}

	logger.Info().
		Uint("project_id", projectID).
		Str("category", category).
		Float64("prepayment", amount).
		Msg("prepayment recorded")
	return &item, nil
}

// Confirm marks a budget item as confirmed. Only the project owner may
// confirm; anyone else gets ErrPermissionDenied.
func (s *BudgetService) Confirm(itemID, actorID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var item database.BudgetItem
		if err := tx.First(&item, itemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		ok, err := s.roles.Can(item.ProjectID, actorID, ActionConfirmBudget)
		if err != nil {
			return err
		}
		if !ok {
			return ErrPermissionDenied
		}
		if item.IsConfirmed {
			return nil
		}

		if err := tx.Model(&item).Update("is_confirmed", true).Error; err != nil {
			return err
		}
		return tx.Create(&database.ChangeLog{
			ProjectID:  item.ProjectID,
			UserID:     actorID,
			EntityType: "budget_item",
			EntityID:   item.ID,
			FieldName:  "is_confirmed",
			OldValue:   "false",
			NewValue:   "true",
		}).Error
	})
}

// UpdateAmount changes an item's costs. Concurrent edits are
// last-write-wins; the audit row preserves both values.
func (s *BudgetService) UpdateAmount(itemID, actorID uint, workCost, materialCost float64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var item database.BudgetItem
		if err := tx.First(&item, itemID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		old := formatAmountPair(item.WorkCost, item.MaterialCost)
		err := tx.Model(&item).Updates(map[string]interface{}{
			"work_cost":     workCost,
			"material_cost": materialCost,
		}).Error
		if err != nil {
			return err
		}
		return tx.Create(&database.ChangeLog{
			ProjectID:  item.ProjectID,
			UserID:     actorID,
			EntityType: "budget_item",
			EntityID:   item.ID,
			FieldName:  "amount",
			OldValue:   old,
			NewValue:   formatAmountPair(workCost, materialCost),
		}).Error
	})
}

// Summary computes totals, per-category breakdown, and remaining =
// total_budget − Σ(work+material).
func (s *BudgetService) Summary(projectID uint) (*BudgetSummary, error) {
	var project database.Project
	if err := s.db.First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var items []database.BudgetItem
	if err := s.db.Where("project_id = ?", projectID).Order("created_at").Find(&items).Error; err != nil {
		return nil, err
	}

	summary := BudgetSummary{TotalBudget: project.TotalBudget}
	byCat := make(map[string]*CategorySummary)
	var order []string

	for _, item := range items {
		cs, ok := byCat[item.Category]
		if !ok {
			cs = &CategorySummary{Category: item.Category}
			byCat[item.Category] = cs
			order = append(order, item.Category)
		}
		total := item.WorkCost + item.MaterialCost
		cs.Work += item.WorkCost
		cs.Materials += item.MaterialCost
		cs.Total += total
		if item.IsConfirmed {
			cs.Confirmed += total
		}
		summary.TotalWork += item.WorkCost
		summary.TotalMater += item.MaterialCost
		summary.TotalPrepaid += item.Prepayment
		summary.TotalSpent += total
	}

	for _, cat := range order {
		summary.Categories = append(summary.Categories, *byCat[cat])
	}
	summary.Remaining = summary.TotalBudget - summary.TotalSpent
	if summary.TotalBudget > 0 {
		summary.UsagePct = summary.TotalSpent / summary.TotalBudget * 100
	}
	return &summary, nil
}

// Items lists a project's budget items, newest first.
func (s *BudgetService) Items(projectID uint) ([]database.BudgetItem, error) {
	var items []database.BudgetItem
	err := s.db.Where("project_id = ?", projectID).
		Order("created_at DESC").Find(&items).Error
	return items, err
}

// History lists a project's audit rows, newest first.
func (s *BudgetService) History(projectID uint, limit int) ([]database.ChangeLog, error) {
	var logs []database.ChangeLog
	q := s.db.Where("project_id = ?", projectID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&logs).Error
	return logs, err
}

func formatAmountPair(work, materials float64) string {
	return "work=" + strconv.FormatFloat(work, 'f', 2, 64) +
		";materials=" + strconv.FormatFloat(materials, 'f', 2, 64)
}
