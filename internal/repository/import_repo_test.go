package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/fyerfyer/anki-importer/internal/database"
	"github.com/fyerfyer/anki-importer/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	// 使用唯一的内存数据库标识符
	dbName := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{})
	require.NoError(t, err, "Failed to open in-memory database")

	// 运行迁移以创建所需的表
	require.NoError(t, database.AutoMigrate(db), "Failed to run migrations")

	// 替换全局DB为测试DB
	originalDB := database.DB
	database.DB = db

	cleanup := func() {
		database.DB = originalDB
	}

	return db, cleanup
}

func newTestJob(id string) *models.ImportJob {
	return &models.ImportJob{
		ID:        id,
		Source:    models.SourceText,
		DeckName:  "ChatGPT Imported Cards",
		ModelName: "Basic",
		Tags:      "auto_imported",
	}
}

func TestImportRepository_CreateAndGet(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImportRepository()

	job := newTestJob("job-1")
	require.NoError(t, repo.CreateJob(job))

	// 默认状态为 pending
	saved, err := repo.GetJob("job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusPending, saved.Status)
	assert.Equal(t, "ChatGPT Imported Cards", saved.DeckName)
	assert.False(t, saved.CreatedAt.IsZero())

	// 空ID
	assert.Error(t, repo.CreateJob(&models.ImportJob{}))

	// 不存在的任务
	_, err = repo.GetJob("missing")
	assert.ErrorIs(t, err, models.ErrImportJobNotFound)
}

func TestImportRepository_UpdateJob(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImportRepositoryWithDB(db)

	job := newTestJob("job-2")
	require.NoError(t, repo.CreateJob(job))

	now := time.Now()
	job.Status = models.ImportStatusCompleted
	job.Total = 3
	job.Added = 2
	job.Failed = 1
	job.FinishedAt = &now
	require.NoError(t, repo.UpdateJob(job))

	saved, err := repo.GetJob("job-2")
	require.NoError(t, err)
	assert.Equal(t, models.ImportStatusCompleted, saved.Status)
	assert.Equal(t, 2, saved.Added)
	assert.Equal(t, 1, saved.Failed)
	assert.NotNil(t, saved.FinishedAt)
	assert.True(t, saved.Finished())
}

func TestImportRepository_ListJobs(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImportRepositoryWithDB(db)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		job := newTestJob(fmt.Sprintf("job-%d", i))
		job.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.CreateJob(job))
	}

	jobs, total, err := repo.ListJobs(0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, jobs, 2)
	// 最新的在前
	assert.Equal(t, "job-4", jobs[0].ID)
	assert.Equal(t, "job-3", jobs[1].ID)

	jobs, _, err = repo.ListJobs(4, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "job-0", jobs[0].ID)
}

func TestImportRepository_Notes(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImportRepositoryWithDB(db)
	require.NoError(t, repo.CreateJob(newTestJob("job-n")))

	notes := []*models.ImportedNote{
		{JobID: "job-n", Position: 1, Error: "duplicate"},
		{JobID: "job-n", Position: 0, NoteID: 101, Fields: datatypes.JSON(`{"Front":"Q","Back":"A"}`)},
	}
	require.NoError(t, repo.SaveNotes(notes))
	require.NoError(t, repo.SaveNotes(nil))

	saved, err := repo.GetNotes("job-n")
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, 0, saved[0].Position)
	assert.Equal(t, int64(101), saved[0].NoteID)
	assert.Equal(t, "duplicate", saved[1].Error)

	other, err := repo.GetNotes("other")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestImportRepository_DeleteJob(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewImportRepositoryWithDB(db)
	require.NoError(t, repo.CreateJob(newTestJob("job-d")))
	require.NoError(t, repo.SaveNotes([]*models.ImportedNote{{JobID: "job-d", Position: 0, NoteID: 7}}))

	require.NoError(t, repo.DeleteJob("job-d"))

	_, err := repo.GetJob("job-d")
	assert.ErrorIs(t, err, models.ErrImportJobNotFound)

	notes, err := repo.GetNotes("job-d")
	require.NoError(t, err)
	assert.Empty(t, notes)

	assert.ErrorIs(t, repo.DeleteJob("job-d"), models.ErrImportJobNotFound)
}
