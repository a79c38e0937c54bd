package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slr-assistant-go/internal/model"
	"slr-assistant-go/internal/repository"
	"slr-assistant-go/pkg/assistant"
	"slr-assistant-go/pkg/log"
	"slr-assistant-go/pkg/storage"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
)

// archiveURLExpiry 是台账中文档下载链接的有效期。
const archiveURLExpiry = time.Hour

// DocumentOptions 控制文档集合的登记行为。
type DocumentOptions struct {
	VectorStoreName string
	// Force 为 true 时即使台账中已有记录也重新创建向量库。已上传的文件按内容复用。
	Force bool
}

// DocumentSet 是一次文档登记的结果。
type DocumentSet struct {
	VectorStoreID string                 `json:"vectorStoreId"`
	Documents     []model.DocumentRecord `json:"documents"`
	Reused        bool                   `json:"reused"`
}

// AssistantSpec 描述要登记的助手。
type AssistantSpec struct {
	Name          string `json:"name"`
	Instructions  string `json:"instructions"`
	Model         string `json:"model"`
	VectorStoreID string `json:"vectorStoreId"`
	Force         bool   `json:"force"`
}

// ProvisionResult 是文档与助手一并登记的结果。
type ProvisionResult struct {
	Documents   DocumentSet `json:"documents"`
	AssistantID string      `json:"assistantId"`
}

// Ledger 是资源台账的快照，供管理接口展示。
type Ledger struct {
	Documents    []model.DocumentRecord    `json:"documents"`
	VectorStores []model.VectorStoreRecord `json:"vectorStores"`
	Assistants   []model.AssistantRecord   `json:"assistants"`
}

// ProvisionService 负责一次性的资源准备：上传文档、创建向量库和助手。
// 所有操作以台账为准，重复执行不会重复创建资源。
type ProvisionService interface {
	RegisterDocuments(ctx context.Context, paths []string, opts DocumentOptions) (DocumentSet, error)
	RegisterAssistant(ctx context.Context, spec AssistantSpec) (string, error)
	// Provision 依次登记文档和助手，向量库 ID 原样传给助手登记。
	Provision(ctx context.Context, paths []string, opts DocumentOptions, spec AssistantSpec) (ProvisionResult, error)
	// ResolveAssistantID 优先使用配置的 ID，否则取台账中同名助手的最新记录。
	ResolveAssistantID(ctx context.Context, configuredID, name string) (string, error)
	Ledger(ctx context.Context) (*Ledger, error)
}

type provisionService struct {
	client  assistant.Client
	repo    repository.ProvisionRepository
	archive storage.DocumentArchive
}

// NewProvisionService 创建一个新的 ProvisionService 实例。archive 可以为 nil，此时不归档原始文档。
func NewProvisionService(client assistant.Client, repo repository.ProvisionRepository, archive storage.DocumentArchive) ProvisionService {
	return &provisionService{client: client, repo: repo, archive: archive}
}

type localDocument struct {
	path string
	name string
	md5  string
	data []byte
}

func (s *provisionService) RegisterDocuments(ctx context.Context, paths []string, opts DocumentOptions) (DocumentSet, error) {
	if len(paths) == 0 {
		return DocumentSet{}, newAssistantError(KindUpload, "no document paths given", nil)
	}
	name := strings.TrimSpace(opts.VectorStoreName)
	if name == "" {
		return DocumentSet{}, newAssistantError(KindIndexCreation, "vector store name is required", nil)
	}

	docs := make([]localDocument, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return DocumentSet{}, newAssistantError(KindUpload, fmt.Sprintf("cannot read %s", p), err)
		}
		sum := md5.Sum(data)
		docs = append(docs, localDocument{path: p, name: filepath.Base(p), md5: hex.EncodeToString(sum[:]), data: data})
	}
	setHash := documentSetHash(docs)

	if !opts.Force {
		existing, err := s.repo.FindVectorStoreBySetHash(name, setHash)
		if err == nil {
			records, err := s.knownDocuments(docs)
			if err != nil {
				return DocumentSet{}, err
			}
			log.Infof("文档集合已登记，复用向量库 %s (%s)", existing.VectorStoreID, name)
			return DocumentSet{VectorStoreID: existing.VectorStoreID, Documents: records, Reused: true}, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return DocumentSet{}, fmt.Errorf("查询向量库台账失败: %w", err)
		}

		latest, err := s.repo.FindLatestVectorStore(name)
		if err == nil {
			reason := fmt.Sprintf("vector store %q (%s) already holds a different document set; rerun with force to replace it", name, latest.VectorStoreID)
			return DocumentSet{}, newAssistantError(KindDocumentSetExists, reason, nil)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return DocumentSet{}, fmt.Errorf("查询向量库台账失败: %w", err)
		}
	}

	records := make([]model.DocumentRecord, 0, len(docs))
	for _, doc := range docs {
		record, err := s.uploadDocument(ctx, doc)
		if err != nil {
			return DocumentSet{}, err
		}
		records = append(records, *record)
	}
	log.Infof("%d 个文件已上传", len(records))

	vectorStoreID, err := s.client.CreateVectorStore(ctx, name)
	if err != nil {
		return DocumentSet{}, newAssistantError(KindIndexCreation, assistant.Reason(err), err)
	}
	log.Infof("向量库 %s 创建成功, ID: %s", name, vectorStoreID)

	for _, record := range records {
		if err := s.client.AttachFile(ctx, vectorStoreID, record.ProviderFileID); err != nil {
			return DocumentSet{}, newAssistantError(KindIndexCreation, assistant.Reason(err), err)
		}
	}
	log.Infof("%d 个文件已加入向量库", len(records))

	if err := s.repo.CreateVectorStore(&model.VectorStoreRecord{
		Name:          name,
		SetHash:       setHash,
		VectorStoreID: vectorStoreID,
		FileCount:     len(records),
	}); err != nil {
		return DocumentSet{}, fmt.Errorf("保存向量库台账失败: %w", err)
	}
	return DocumentSet{VectorStoreID: vectorStoreID, Documents: records}, nil
}

// uploadDocument 上传单个文件；台账中已有相同内容的文件时直接复用。
func (s *provisionService) uploadDocument(ctx context.Context, doc localDocument) (*model.DocumentRecord, error) {
	record, err := s.repo.FindDocumentByMD5(doc.md5)
	if err == nil {
		log.Infof("文件 %s 已上传过，复用 FileID: %s", doc.name, record.ProviderFileID)
		return record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("查询文件台账失败: %w", err)
	}

	var archivePath string
	if s.archive != nil {
		archivePath, err = s.archive.Archive(ctx, doc.md5, doc.name, doc.data)
		if err != nil {
			log.Warnf("归档文件 %s 失败，继续上传: %v", doc.name, err)
			archivePath = ""
		}
	}

	fileID, err := s.client.UploadFile(ctx, doc.name, doc.data)
	if err != nil {
		return nil, newAssistantError(KindUpload, fmt.Sprintf("%s: %s", doc.name, assistant.Reason(err)), err)
	}

	record = &model.DocumentRecord{
		FileMD5:        doc.md5,
		FileName:       doc.name,
		TotalSize:      int64(len(doc.data)),
		ProviderFileID: fileID,
		ArchivePath:    archivePath,
	}
	if err := s.repo.CreateDocument(record); err != nil {
		return nil, fmt.Errorf("保存文件台账失败: %w", err)
	}
	return record, nil
}

func (s *provisionService) knownDocuments(docs []localDocument) ([]model.DocumentRecord, error) {
	records := make([]model.DocumentRecord, 0, len(docs))
	for _, doc := range docs {
		record, err := s.repo.FindDocumentByMD5(doc.md5)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("查询文件台账失败: %w", err)
		}
		records = append(records, *record)
	}
	return records, nil
}

func (s *provisionService) RegisterAssistant(ctx context.Context, spec AssistantSpec) (string, error) {
	switch {
	case strings.TrimSpace(spec.Name) == "":
		return "", newAssistantError(KindAssistantCreation, "assistant name is required", nil)
	case strings.TrimSpace(spec.Model) == "":
		return "", newAssistantError(KindAssistantCreation, "model is required", nil)
	case strings.TrimSpace(spec.VectorStoreID) == "":
		return "", newAssistantError(KindAssistantCreation, "vector store id is required", nil)
	}

	instructionsHash := hashString(spec.Instructions)
	if !spec.Force {
		record, err := s.repo.FindAssistant(spec.Name, spec.Model, instructionsHash, spec.VectorStoreID)
		if err == nil {
			log.Infof("助手 %s 已登记，复用 ID: %s", spec.Name, record.AssistantID)
			return record.AssistantID, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("查询助手台账失败: %w", err)
		}
	}

	assistantID, err := s.client.CreateAssistant(ctx, assistant.AssistantRequest{
		Name:          spec.Name,
		Instructions:  spec.Instructions,
		Model:         spec.Model,
		VectorStoreID: spec.VectorStoreID,
	})
	if err != nil {
		return "", newAssistantError(KindAssistantCreation, assistant.Reason(err), err)
	}
	log.Infof("助手 %s 创建成功, ID: %s", spec.Name, assistantID)

	if err := s.repo.CreateAssistant(&model.AssistantRecord{
		Name:             spec.Name,
		Model:            spec.Model,
		InstructionsHash: instructionsHash,
		VectorStoreID:    spec.VectorStoreID,
		AssistantID:      assistantID,
	}); err != nil {
		return "", fmt.Errorf("保存助手台账失败: %w", err)
	}
	return assistantID, nil
}

func (s *provisionService) Provision(ctx context.Context, paths []string, opts DocumentOptions, spec AssistantSpec) (ProvisionResult, error) {
	set, err := s.RegisterDocuments(ctx, paths, opts)
	if err != nil {
		return ProvisionResult{}, err
	}
	spec.VectorStoreID = set.VectorStoreID
	assistantID, err := s.RegisterAssistant(ctx, spec)
	if err != nil {
		return ProvisionResult{Documents: set}, err
	}
	return ProvisionResult{Documents: set, AssistantID: assistantID}, nil
}

func (s *provisionService) ResolveAssistantID(_ context.Context, configuredID, name string) (string, error) {
	if id := strings.TrimSpace(configuredID); id != "" {
		return id, nil
	}
	record, err := s.repo.FindLatestAssistant(name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", newAssistantError(KindAssistantUnavailable, fmt.Sprintf("no assistant named %q has been provisioned", name), nil)
	}
	if err != nil {
		return "", fmt.Errorf("查询助手台账失败: %w", err)
	}
	return record.AssistantID, nil
}

func (s *provisionService) Ledger(ctx context.Context) (*Ledger, error) {
	documents, err := s.repo.ListDocuments()
	if err != nil {
		return nil, fmt.Errorf("查询文件台账失败: %w", err)
	}
	if s.archive != nil {
		for i := range documents {
			if documents[i].ArchivePath == "" {
				continue
			}
			if url, err := s.archive.PresignedURL(ctx, documents[i].ArchivePath, archiveURLExpiry); err == nil {
				documents[i].ArchiveURL = url
			}
		}
	}
	vectorStores, err := s.repo.ListVectorStores()
	if err != nil {
		return nil, fmt.Errorf("查询向量库台账失败: %w", err)
	}
	assistants, err := s.repo.ListAssistants()
	if err != nil {
		return nil, fmt.Errorf("查询助手台账失败: %w", err)
	}
	return &Ledger{Documents: documents, VectorStores: vectorStores, Assistants: assistants}, nil
}

// documentSetHash 对排序后的 "md5:文件名" 行计算 MD5，与路径顺序无关。
func documentSetHash(docs []localDocument) string {
	lines := make([]string, 0, len(docs))
	for _, d := range docs {
		lines = append(lines, d.md5+":"+d.name)
	}
	sort.Strings(lines)
	return hashString(strings.Join(lines, "\n"))
}

func hashString(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
