package pipeline

import (
	"context"
	"testing"
	"time"

	"slr-assistant-go/internal/repository"
	"slr-assistant-go/pkg/tasks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepo(t *testing.T) repository.ConversationRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repository.AutoMigrate(db))
	return repository.NewConversationRepository(db)
}

func TestArchiverStoresTurn(t *testing.T) {
	repo := newTestRepo(t)
	archiver := NewArchiver(repo)
	asked := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	err := archiver.Send(context.Background(), tasks.TurnArchiveTask{
		SessionID:  "s1",
		ThreadID:   "thread_1",
		RunID:      "run_1",
		Question:   "What does the Local Coastal Program say about seawalls?",
		Answer:     "It limits new shoreline armoring.",
		AskedAt:    asked,
		AnsweredAt: asked.Add(4 * time.Second),
	})
	require.NoError(t, err)

	rows, err := repo.FindBySession("s1", 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "run_1", rows[0].RunID)
	assert.Equal(t, "It limits new shoreline armoring.", rows[0].Answer)
	assert.False(t, rows[0].Failed)
}

func TestArchiverRejectsInvalidTask(t *testing.T) {
	archiver := NewArchiver(newTestRepo(t))
	assert.Error(t, archiver.Process(context.Background(), tasks.TurnArchiveTask{Question: "q"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, archiver.Process(ctx, tasks.TurnArchiveTask{SessionID: "s1"}), context.Canceled)
}

func TestArchiverIgnoresRedelivery(t *testing.T) {
	repo := newTestRepo(t)
	archiver := NewArchiver(repo)
	task := tasks.TurnArchiveTask{
		SessionID:  "s1",
		ThreadID:   "thread_1",
		RunID:      "run_1",
		Question:   "Which neighborhoods flood first?",
		Answer:     "Low-lying areas near Humboldt Bay.",
		AskedAt:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		AnsweredAt: time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC),
	}

	require.NoError(t, archiver.Process(context.Background(), task))
	require.NoError(t, archiver.Process(context.Background(), task))

	next := task
	next.RunID = "run_2"
	next.AskedAt = task.AskedAt.Add(time.Minute)
	require.NoError(t, archiver.Process(context.Background(), next))

	rows, err := repo.FindBySession("s1", 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "run_1", rows[0].RunID)
	assert.Equal(t, "run_2", rows[1].RunID)
}
