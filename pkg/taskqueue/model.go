package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskImportFile 解析上传的源文件并导入Anki
	TaskImportFile TaskType = "import_file"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Finished 判断状态是否为终态
func (s TaskStatus) Finished() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	JobID       string          `json:"job_id"`       // 关联的导入任务ID
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷数据
	Result      json.RawMessage `json:"result"`       // 任务结果数据
	Error       string          `json:"error"`        // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 尝试次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// ImportFilePayload 文件导入任务载荷
// 空字段使用服务的默认设置
type ImportFilePayload struct {
	JobID    string            `json:"job_id"`    // 导入任务ID
	FileID   string            `json:"file_id"`   // 存储中的文件ID
	FileName string            `json:"file_name"` // 原始文件名
	Deck     string            `json:"deck"`      // 目标牌组
	Model    string            `json:"model"`     // 笔记类型
	Fields   []string          `json:"fields"`    // 字段列表
	FieldMap map[string]string `json:"field_map"` // 字段别名
	Tags     []string          `json:"tags"`      // 附加标签

	AllowDuplicate *bool `json:"allow_duplicate,omitempty"` // 是否允许重复笔记，为空时使用默认设置
}

// ImportFileResult 文件导入任务结果
type ImportFileResult struct {
	JobID  string   `json:"job_id"`           // 导入任务ID
	Deck   string   `json:"deck"`             // 实际使用的牌组
	Total  int      `json:"total"`            // 解析出的闪卡数量
	Added  int      `json:"added"`            // 成功添加的数量
	Failed int      `json:"failed"`           // 添加失败的数量
	Errors []string `json:"errors,omitempty"` // 失败原因
}
