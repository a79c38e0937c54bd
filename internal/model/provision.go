package model

import "time"

// DocumentRecord 记录一个已上传到服务商的文件，按内容 MD5 去重。
type DocumentRecord struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	FileMD5        string    `gorm:"type:varchar(32);not null;uniqueIndex" json:"fileMd5"`
	FileName       string    `gorm:"type:varchar(255);not null" json:"fileName"`
	TotalSize      int64     `gorm:"not null" json:"totalSize"`
	ProviderFileID string    `gorm:"type:varchar(64);not null" json:"providerFileId"`
	ArchivePath    string    `gorm:"type:varchar(255)" json:"archivePath,omitempty"`
	ArchiveURL     string    `gorm:"-" json:"archiveUrl,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DocumentRecord) TableName() string {
	return "documents"
}

// VectorStoreRecord 是文档集合的持久化标记：同一集合哈希只会创建一次向量库。
type VectorStoreRecord struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string    `gorm:"type:varchar(255);not null;index" json:"name"`
	SetHash       string    `gorm:"type:varchar(32);not null;index" json:"setHash"`
	VectorStoreID string    `gorm:"type:varchar(64);not null" json:"vectorStoreId"`
	FileCount     int       `gorm:"not null" json:"fileCount"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (VectorStoreRecord) TableName() string {
	return "vector_stores"
}

// AssistantRecord 记录已创建的助手，服务启动时据此解析助手 ID。
type AssistantRecord struct {
	ID               uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name             string    `gorm:"type:varchar(255);not null;index" json:"name"`
	Model            string    `gorm:"type:varchar(64);not null" json:"model"`
	InstructionsHash string    `gorm:"type:varchar(32);not null" json:"instructionsHash"`
	VectorStoreID    string    `gorm:"type:varchar(64);not null" json:"vectorStoreId"`
	AssistantID      string    `gorm:"type:varchar(64);not null" json:"assistantId"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (AssistantRecord) TableName() string {
	return "assistants"
}
