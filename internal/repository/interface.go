package repository

import "github.com/fyerfyer/anki-importer/internal/models"

// ImportRepository 导入记录仓储接口
// 负责导入任务及其笔记提交结果的存储和检索
type ImportRepository interface {
	// CreateJob 创建导入任务记录
	CreateJob(job *models.ImportJob) error

	// UpdateJob 更新导入任务记录
	UpdateJob(job *models.ImportJob) error

	// GetJob 根据ID获取导入任务
	GetJob(id string) (*models.ImportJob, error)

	// ListJobs 按创建时间倒序列出导入任务
	ListJobs(offset, limit int) ([]*models.ImportJob, int64, error)

	// SaveNotes 批量保存笔记提交结果
	SaveNotes(notes []*models.ImportedNote) error

	// GetNotes 获取任务的全部笔记提交结果，按序号排列
	GetNotes(jobID string) ([]*models.ImportedNote, error)

	// DeleteJob 删除导入任务及其笔记记录
	DeleteJob(id string) error
}
