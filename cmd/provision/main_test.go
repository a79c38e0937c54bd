package main

import (
	"testing"

	"slr-assistant-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestNewProvisionEnvClosesDatabaseOnFailure(t *testing.T) {
	db := openTestDB(t)
	cfg := &config.Config{}
	cfg.MinIO = config.MinIOConfig{Endpoint: "http://minio.local/archive", BucketName: "slr-documents"}

	env, err := newProvisionEnv(cfg, "sk-test", db)
	require.Error(t, err)
	assert.Nil(t, env)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Error(t, sqlDB.Ping(), "database is closed after a failed setup")
}

func TestNewProvisionEnvClose(t *testing.T) {
	db := openTestDB(t)
	env, err := newProvisionEnv(&config.Config{}, "sk-test", db)
	require.NoError(t, err)
	require.NotNil(t, env.provision)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Ping())
	env.close()
	assert.Error(t, sqlDB.Ping())
}
