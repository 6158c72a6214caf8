package core

import (
	"fmt"
	"sync/atomic"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"renobot/internal/database"
)

var testDBSeq atomic.Int64

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	// A plain ":memory:" DSN gives every pooled connection its own empty
	// database; shared cache keeps transactions and the main pool on the
	// same in-memory database.
	dsn := fmt.Sprintf("file:coretest%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: glogger.Default.LogMode(glogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testUser(t *testing.T, db *gorm.DB, telegramID int64, name string) database.User {
	t.Helper()
	user := database.User{TelegramID: telegramID, FullName: name, IsBotStarted: true}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func countChangeLogs(t *testing.T, db *gorm.DB, projectID uint) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&database.ChangeLog{}).Where("project_id = ?", projectID).Count(&n).Error; err != nil {
		t.Fatalf("count change logs: %v", err)
	}
	return n
}
