package repository

import (
	"slr-assistant-go/internal/model"

	"gorm.io/gorm"
)

// AutoMigrate 创建或更新台账与归档表。
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.DocumentRecord{},
		&model.VectorStoreRecord{},
		&model.AssistantRecord{},
		&model.Conversation{},
	)
}
