package testutil

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/yuqie6/ActivityRank/internal/schema"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenTestDB 打开内存 SQLite 并自动迁移所有表
func OpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	// 内存库每个连接各自独立，固定单连接保证所有查询落在同一个库上
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&schema.ActivityEvent{},
		&schema.ArchivedActivity{},
		&schema.ReferralRecord{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	return db
}
