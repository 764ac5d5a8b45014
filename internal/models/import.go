package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ImportStatus 导入任务状态类型
type ImportStatus string

const (
	// ImportStatusPending 等待处理
	ImportStatusPending ImportStatus = "pending"
	// ImportStatusRunning 正在提交到Anki
	ImportStatusRunning ImportStatus = "running"
	// ImportStatusCompleted 处理完成（可能有部分笔记失败）
	ImportStatusCompleted ImportStatus = "completed"
	// ImportStatusFailed 整体失败
	ImportStatusFailed ImportStatus = "failed"
)

// ImportSource 导入来源类型
type ImportSource string

const (
	// SourceText 直接提交的文本
	SourceText ImportSource = "text"
	// SourceFile 上传的源文件
	SourceFile ImportSource = "file"
)

// ImportJob 一次导入的记录
type ImportJob struct {
	ID         string         `gorm:"primaryKey"`             // 任务ID，主键
	Source     ImportSource   `gorm:"not null;size:10"`       // 导入来源
	FileName   string         `gorm:"size:255"`               // 源文件名，文本导入时为空
	DeckName   string         `gorm:"not null;index"`         // 目标牌组
	ModelName  string         `gorm:"not null"`               // 笔记类型
	Status     ImportStatus   `gorm:"not null;index;size:20"` // 处理状态
	TaskID     string         `gorm:"size:50;index"`          // 关联的异步任务ID
	Total      int            `gorm:"not null;default:0"`     // 解析出的闪卡数量
	Added      int            `gorm:"not null;default:0"`     // 成功添加的笔记数量
	Failed     int            `gorm:"not null;default:0"`     // 添加失败的数量
	Error      string         `gorm:"type:text"`              // 错误信息
	Tags       string         `gorm:"type:varchar(255)"`      // 标签，逗号分隔
	Metadata   datatypes.JSON `gorm:"type:json"`              // 元数据，JSON格式
	CreatedAt  time.Time      `gorm:"not null;index"`         // 创建时间
	UpdatedAt  time.Time      `gorm:"not null"`               // 更新时间
	FinishedAt *time.Time     // 完成时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (j *ImportJob) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	if j.Status == "" {
		j.Status = ImportStatusPending
	}
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (j *ImportJob) BeforeUpdate(tx *gorm.DB) (err error) {
	j.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (ImportJob) TableName() string {
	return "import_jobs"
}

// Finished 判断任务是否已结束
func (j *ImportJob) Finished() bool {
	return j.Status == ImportStatusCompleted || j.Status == ImportStatusFailed
}

// ImportedNote 导入任务中单张闪卡的提交结果
type ImportedNote struct {
	ID        uint           `gorm:"primaryKey;autoIncrement"` // 主键ID
	JobID     string         `gorm:"not null;index"`           // 所属导入任务ID
	Position  int            `gorm:"not null"`                 // 在源文本中的序号
	NoteID    int64          `gorm:"index"`                    // Anki笔记ID，失败时为0
	Fields    datatypes.JSON `gorm:"type:json"`                // 字段名到值的映射
	Error     string         `gorm:"type:text"`                // 添加失败的原因
	CreatedAt time.Time      `gorm:"not null"`                 // 创建时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (n *ImportedNote) BeforeCreate(tx *gorm.DB) (err error) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (ImportedNote) TableName() string {
	return "imported_notes"
}
