package database

import (
	"time"

	"gorm.io/datatypes"
)

type RenovationType string

const (
	RenovationCosmetic RenovationType = "cosmetic"
	RenovationStandard RenovationType = "standard"
	RenovationMajor    RenovationType = "major"
	RenovationDesigner RenovationType = "designer"
)

type CoordinatorType string

const (
	CoordinatorSelf     CoordinatorType = "self"
	CoordinatorForeman  CoordinatorType = "foreman"
	CoordinatorDesigner CoordinatorType = "designer"
)

type Role string

const (
	RoleOwner        Role = "owner"
	RoleCoOwner      Role = "co_owner"
	RoleForeman      Role = "foreman"
	RoleTradesperson Role = "tradesperson"
	RoleDesigner     Role = "designer"
	RoleSupplier     Role = "supplier"
	RoleExpert       Role = "expert"
	RoleViewer       Role = "viewer"
)

type StageStatus string

const (
	StagePlanned    StageStatus = "planned"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageDelayed    StageStatus = "delayed"
)

type PaymentStatus string

const (
	PaymentRecorded   PaymentStatus = "recorded"
	PaymentInProgress PaymentStatus = "in_progress"
	PaymentVerified   PaymentStatus = "verified"
	PaymentPaid       PaymentStatus = "paid"
	PaymentClosed     PaymentStatus = "closed"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageVoice MessageType = "voice"
	MessagePhoto MessageType = "photo"
)

type User struct {
	ID           uint   `gorm:"primaryKey"`
	TelegramID   int64  `gorm:"uniqueIndex"`
	FullName     string `gorm:"size:255"`
	Username     string `gorm:"size:255"`
	Phone        string `gorm:"size:20"`
	IsBotStarted bool   `gorm:"default:false"`
	CreatedAt    time.Time
}

type Project struct {
	ID                 uint   `gorm:"primaryKey"`
	Name               string `gorm:"size:255"`
	Address            string `gorm:"type:text"`
	AreaSqm            float64
	RenovationType     RenovationType  `gorm:"size:20"`
	TotalBudget        float64         `gorm:"type:numeric(12,2)"`
	CoordinatorType    CoordinatorType `gorm:"size:20"`
	CoordinatorContact string          `gorm:"size:255"`
	CoOwnerContact     string          `gorm:"size:255"`
	TelegramChatID     *int64          `gorm:"uniqueIndex"`
	IsActive           bool            `gorm:"default:true"`
	IsLaunched         bool            `gorm:"default:false"`
	CreatedAt          time.Time

	Stages  []Stage         `gorm:"constraint:OnDelete:CASCADE"`
	Members []ProjectMember `gorm:"constraint:OnDelete:CASCADE"`
}

type ProjectMember struct {
	ID        uint `gorm:"primaryKey"`
	ProjectID uint `gorm:"uniqueIndex:idx_project_user"`
	UserID    uint `gorm:"uniqueIndex:idx_project_user"`
	Role      Role `gorm:"size:20"`
	// Specialty applies to tradespeople ("электрик", "плиточник").
	Specialty string `gorm:"size:100"`
	CreatedAt time.Time
}

type Stage struct {
	ID                 uint        `gorm:"primaryKey"`
	ProjectID          uint        `gorm:"index"`
	Name               string      `gorm:"size:255"`
	SortOrder          int         `gorm:"index"`
	Status             StageStatus `gorm:"size:20;default:'planned'"`
	PaymentStatus      PaymentStatus `gorm:"size:20;default:'recorded'"`
	Budget             float64     `gorm:"type:numeric(12,2)"`
	StartDate          *time.Time
	EndDate            *time.Time
	ResponsibleContact string `gorm:"size:255"`
	IsParallel         bool   `gorm:"default:false"`
	IsCheckpoint       bool   `gorm:"default:false"`
	// Set on every payment transition; reports use it for the
	// payment grace period check.
	PaymentChangedAt *time.Time
	CreatedAt        time.Time

	SubStages []SubStage `gorm:"constraint:OnDelete:CASCADE"`
}

type SubStage struct {
	ID                 uint        `gorm:"primaryKey"`
	StageID            uint        `gorm:"index"`
	Name               string      `gorm:"size:255"`
	SortOrder          int
	Status             StageStatus `gorm:"size:20;default:'planned'"`
	StartDate          *time.Time
	EndDate            *time.Time
	ResponsibleContact string `gorm:"size:255"`
	CreatedAt          time.Time
}

type BudgetItem struct {
	ID           uint    `gorm:"primaryKey"`
	ProjectID    uint    `gorm:"index"`
	Category     string  `gorm:"size:100"`
	Description  string  `gorm:"type:text"`
	WorkCost     float64 `gorm:"type:numeric(12,2);default:0"`
	MaterialCost float64 `gorm:"type:numeric(12,2);default:0"`
	Prepayment   float64 `gorm:"type:numeric(12,2);default:0"`
	IsConfirmed  bool    `gorm:"default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ChangeLog rows are append-only: never updated, never deleted.
type ChangeLog struct {
	ID         uint   `gorm:"primaryKey"`
	ProjectID  uint   `gorm:"index"`
	UserID     uint   `gorm:"index"`
	EntityType string `gorm:"size:50"`
	EntityID   uint
	FieldName  string `gorm:"size:100"`
	OldValue   string `gorm:"type:text"`
	NewValue   string `gorm:"type:text"`
	CreatedAt  time.Time
}

type Message struct {
	ID        uint        `gorm:"primaryKey"`
	ProjectID uint        `gorm:"index"`
	UserID    uint        `gorm:"index"`
	ChatID    int64       `gorm:"index"`
	Type      MessageType `gorm:"size:10;default:'text'"`
	// Original text, or the caption for photos.
	RawText string `gorm:"type:text"`
	// Platform file reference (Telegram file_id) for voice/photo.
	FileRef string `gorm:"type:text"`
	// Text produced by STT (voice) or vision (photo); equals RawText for text.
	TranscribedText string `gorm:"type:text"`
	// JSON-encoded float vector; null until /backfill or ingestion embeds it.
	Embedding datatypes.JSON `gorm:"type:jsonb"`
	IsFromBot bool           `gorm:"default:false"`
	CreatedAt time.Time
}

// Reminder is a sent-marker: one row per delivered notification, keyed by
// DedupKey so a rerunning scan never sends the same alert twice.
type Reminder struct {
	ID        uint   `gorm:"primaryKey"`
	ProjectID uint   `gorm:"index"`
	StageID   uint
	Kind      string `gorm:"size:50"`
	DedupKey  string `gorm:"uniqueIndex;size:255"`
	SentAt    time.Time
}
