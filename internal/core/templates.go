package core

import (
	"fmt"

	"renobot/internal/database"
)

// StageTemplate describes one auto-generated stage.
type StageTemplate struct {
	Name         string
	Order        int
	IsCheckpoint bool
	IsParallel   bool
}

// StandardStages is the default renovation workflow created for every
// project. Checkpoints require client approval before proceeding.
var StandardStages = []StageTemplate{
	{Name: "Демонтаж", Order: 1},
	{Name: "Электрика", Order: 2, IsCheckpoint: true},
	{Name: "Сантехника", Order: 3, IsCheckpoint: true},
	{Name: "Штукатурка", Order: 4},
	{Name: "Стяжка пола", Order: 5},
	{Name: "Плитка", Order: 6, IsCheckpoint: true},
	{Name: "Шпаклёвка", Order: 7, IsCheckpoint: true},
	{Name: "Покраска / обои", Order: 8},
	{Name: "Напольное покрытие", Order: 9},
	{Name: "Установка дверей", Order: 10},
	{Name: "Чистовая электрика", Order: 11},
	{Name: "Чистовая сантехника", Order: 12},
	{Name: "Финальная приёмка", Order: 13, IsCheckpoint: true},
}

// CustomItemLabels maps custom furniture keys (used in callback data)
// to display names.
var CustomItemLabels = map[string]string{
	"kitchen":   "Кухня",
	"wardrobes": "Шкафы",
	"walkin":    "Гардеробная",
	"doors":     "Двери на заказ",
}

// CustomItemKeys lists the multi-select options in display order.
var CustomItemKeys = []string{"kitchen", "wardrobes", "walkin", "doors"}

// customItemFlow is the sub-flow every custom item goes through.
var customItemFlow = []string{
	"Замер",
	"Договор и предоплата",
	"Производство",
	"Доставка",
	"Монтаж",
}

// BuildParallelStages returns stage templates for the selected custom
// items. Orders start at 100 so parallel stages sort after main ones.
func BuildParallelStages(selectedItems []string) []StageTemplate {
	var stages []StageTemplate
	for idx, key := range selectedItems {
		label, ok := CustomItemLabels[key]
		if !ok {
			label = key
		}
		for subIdx, step := range customItemFlow {
			stages = append(stages, StageTemplate{
				Name:       fmt.Sprintf("%s → %s", label, step),
				Order:      100 + idx*10 + subIdx,
				IsParallel: true,
			})
		}
	}
	return stages
}

// NewStage instantiates a Stage row from a template.
func (t StageTemplate) NewStage(projectID uint) database.Stage {
	return database.Stage{
		ProjectID:     projectID,
		Name:          t.Name,
		SortOrder:     t.Order,
		Status:        database.StagePlanned,
		PaymentStatus: database.PaymentRecorded,
		IsParallel:    t.IsParallel,
		IsCheckpoint:  t.IsCheckpoint,
	}
}
