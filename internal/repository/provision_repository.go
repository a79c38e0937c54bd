package repository

import (
	"slr-assistant-go/internal/model"

	"gorm.io/gorm"
)

// ProvisionRepository 定义了资源登记台账的持久化操作。
// 未找到记录时返回 gorm.ErrRecordNotFound，由调用方判断。
type ProvisionRepository interface {
	FindDocumentByMD5(fileMD5 string) (*model.DocumentRecord, error)
	CreateDocument(record *model.DocumentRecord) error
	ListDocuments() ([]model.DocumentRecord, error)

	FindVectorStoreBySetHash(name, setHash string) (*model.VectorStoreRecord, error)
	FindLatestVectorStore(name string) (*model.VectorStoreRecord, error)
	CreateVectorStore(record *model.VectorStoreRecord) error
	ListVectorStores() ([]model.VectorStoreRecord, error)

	FindAssistant(name, modelName, instructionsHash, vectorStoreID string) (*model.AssistantRecord, error)
	FindLatestAssistant(name string) (*model.AssistantRecord, error)
	CreateAssistant(record *model.AssistantRecord) error
	ListAssistants() ([]model.AssistantRecord, error)
}

type provisionRepository struct {
	db *gorm.DB
}

// NewProvisionRepository 创建一个新的 ProvisionRepository 实例。
func NewProvisionRepository(db *gorm.DB) ProvisionRepository {
	return &provisionRepository{db: db}
}

func (r *provisionRepository) FindDocumentByMD5(fileMD5 string) (*model.DocumentRecord, error) {
	var record model.DocumentRecord
	if err := r.db.Where("file_md5 = ?", fileMD5).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *provisionRepository) CreateDocument(record *model.DocumentRecord) error {
	return r.db.Create(record).Error
}

func (r *provisionRepository) ListDocuments() ([]model.DocumentRecord, error) {
	var records []model.DocumentRecord
	err := r.db.Order("id asc").Find(&records).Error
	return records, err
}

func (r *provisionRepository) FindVectorStoreBySetHash(name, setHash string) (*model.VectorStoreRecord, error) {
	var record model.VectorStoreRecord
	err := r.db.Where("name = ? AND set_hash = ?", name, setHash).Order("id desc").First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// FindLatestVectorStore 返回同名集合最近一次登记的向量库。
func (r *provisionRepository) FindLatestVectorStore(name string) (*model.VectorStoreRecord, error) {
	var record model.VectorStoreRecord
	if err := r.db.Where("name = ?", name).Order("id desc").First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *provisionRepository) CreateVectorStore(record *model.VectorStoreRecord) error {
	return r.db.Create(record).Error
}

func (r *provisionRepository) ListVectorStores() ([]model.VectorStoreRecord, error) {
	var records []model.VectorStoreRecord
	err := r.db.Order("id desc").Find(&records).Error
	return records, err
}

func (r *provisionRepository) FindAssistant(name, modelName, instructionsHash, vectorStoreID string) (*model.AssistantRecord, error) {
	var record model.AssistantRecord
	err := r.db.Where("name = ? AND model = ? AND instructions_hash = ? AND vector_store_id = ?",
		name, modelName, instructionsHash, vectorStoreID).Order("id desc").First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *provisionRepository) FindLatestAssistant(name string) (*model.AssistantRecord, error) {
	var record model.AssistantRecord
	if err := r.db.Where("name = ?", name).Order("id desc").First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *provisionRepository) CreateAssistant(record *model.AssistantRecord) error {
	return r.db.Create(record).Error
}

func (r *provisionRepository) ListAssistants() ([]model.AssistantRecord, error) {
	var records []model.AssistantRecord
	err := r.db.Order("id desc").Find(&records).Error
	return records, err
}
