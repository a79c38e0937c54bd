// Package storage 提供了与对象存储服务（如 MinIO）交互的功能。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"slr-assistant-go/internal/config"
	"slr-assistant-go/pkg/log"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DocumentArchive 保存上传给服务商的原始文档副本。
type DocumentArchive interface {
	Archive(ctx context.Context, fileMD5, fileName string, data []byte) (string, error)
	PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// MinIOArchive 是基于 MinIO 的 DocumentArchive 实现。
type MinIOArchive struct {
	client *minio.Client
	bucket string
}

// NewMinIOArchive 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewMinIOArchive(ctx context.Context, cfg config.MinIOConfig) (*MinIOArchive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
		log.Infof("存储桶 '%s' 创建成功", cfg.BucketName)
	}
	return &MinIOArchive{client: client, bucket: cfg.BucketName}, nil
}

// ObjectName 返回文档在存储桶中的对象路径。
func ObjectName(fileMD5, fileName string) string {
	return fmt.Sprintf("documents/%s/%s", fileMD5, path.Base(fileName))
}

// Archive 上传文档内容，返回对象路径。
func (a *MinIOArchive) Archive(ctx context.Context, fileMD5, fileName string, data []byte) (string, error) {
	objectName := ObjectName(fileMD5, fileName)
	_, err := a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return "", fmt.Errorf("上传文档到 MinIO 失败: %w", err)
	}
	return objectName, nil
}

// PresignedURL generates a presigned URL for a given object.
func (a *MinIOArchive) PresignedURL(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	presignedURL, err := a.client.PresignedGetObject(ctx, a.bucket, objectName, expiry, nil)
	if err != nil {
		log.Errorf("Error generating presigned URL: %s", err)
		return "", err
	}
	return presignedURL.String(), nil
}
