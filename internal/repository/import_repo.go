package repository

import (
	"errors"
	"fmt"

	"github.com/fyerfyer/anki-importer/internal/database"
	"github.com/fyerfyer/anki-importer/internal/models"
	"gorm.io/gorm"
)

// importRepository 导入记录仓储实现
type importRepository struct {
	db *gorm.DB // 数据库连接
}

// NewImportRepository 使用全局数据库连接创建仓储实例
func NewImportRepository() ImportRepository {
	return &importRepository{db: database.MustDB()}
}

// NewImportRepositoryWithDB 使用指定的数据库连接创建仓储实例
func NewImportRepositoryWithDB(db *gorm.DB) ImportRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &importRepository{db: db}
}

// CreateJob 创建导入任务记录
func (r *importRepository) CreateJob(job *models.ImportJob) error {
	if job.ID == "" {
		return errors.New("import job ID cannot be empty")
	}
	return r.db.Create(job).Error
}

// UpdateJob 更新导入任务记录
func (r *importRepository) UpdateJob(job *models.ImportJob) error {
	if job.ID == "" {
		return errors.New("import job ID cannot be empty")
	}
	return r.db.Save(job).Error
}

// GetJob 根据ID获取导入任务
func (r *importRepository) GetJob(id string) (*models.ImportJob, error) {
	var job models.ImportJob
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrImportJobNotFound, id)
		}
		return nil, err
	}
	return &job, nil
}

// ListJobs 按创建时间倒序列出导入任务
func (r *importRepository) ListJobs(offset, limit int) ([]*models.ImportJob, int64, error) {
	var jobs []*models.ImportJob
	var total int64

	if err := r.db.Model(&models.ImportJob{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.Model(&models.ImportJob{}).Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, 0, err
	}

	return jobs, total, nil
}

// SaveNotes 批量保存笔记提交结果
func (r *importRepository) SaveNotes(notes []*models.ImportedNote) error {
	if len(notes) == 0 {
		return nil
	}
	return r.db.CreateInBatches(notes, 100).Error
}

// GetNotes 获取任务的全部笔记提交结果
func (r *importRepository) GetNotes(jobID string) ([]*models.ImportedNote, error) {
	var notes []*models.ImportedNote
	err := r.db.Where("job_id = ?", jobID).
		Order("position ASC").
		Find(&notes).Error
	return notes, err
}

// DeleteJob 删除导入任务及其笔记记录
func (r *importRepository) DeleteJob(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("job_id = ?", id).Delete(&models.ImportedNote{}).Error; err != nil {
			return err
		}

		result := tx.Where("id = ?", id).Delete(&models.ImportJob{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", models.ErrImportJobNotFound, id)
		}
		return nil
	})
}
