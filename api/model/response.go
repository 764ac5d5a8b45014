package model

import (
	"time"

	"github.com/fyerfyer/anki-importer/internal/models"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status string     `json:"status"` // ok 或 degraded
	Anki   AnkiStatus `json:"anki"`   // AnkiConnect 状态
}

// AnkiStatus AnkiConnect 连接状态
type AnkiStatus struct {
	Endpoint  string `json:"endpoint"`          // AnkiConnect 地址
	Reachable bool   `json:"reachable"`         // 是否可连接
	Version   int    `json:"version,omitempty"` // 协议版本
	Error     string `json:"error,omitempty"`   // 连接失败原因
}

// PreviewResponse 闪卡预览响应
type PreviewResponse struct {
	Fields []string            `json:"fields"` // 字段列表
	Count  int                 `json:"count"`  // 闪卡数量
	Cards  []map[string]string `json:"cards"`  // 闪卡内容
}

// AsyncImportResponse 异步导入响应
type AsyncImportResponse struct {
	JobID  string `json:"job_id"`  // 导入任务ID
	TaskID string `json:"task_id"` // 队列任务ID
	Status string `json:"status"`  // 任务状态
}

// ImportJobInfo 导入记录信息
type ImportJobInfo struct {
	ID         string     `json:"id"`                    // 导入任务ID
	Source     string     `json:"source"`                // 导入来源
	FileName   string     `json:"filename,omitempty"`    // 源文件名
	Deck       string     `json:"deck"`                  // 目标牌组
	Model      string     `json:"model"`                 // 笔记类型
	Status     string     `json:"status"`                // 状态
	TaskID     string     `json:"task_id,omitempty"`     // 异步任务ID
	Total      int        `json:"total"`                 // 闪卡数量
	Added      int        `json:"added"`                 // 成功数量
	Failed     int        `json:"failed"`                // 失败数量
	Error      string     `json:"error,omitempty"`       // 错误信息
	CreatedAt  time.Time  `json:"created_at"`            // 创建时间
	FinishedAt *time.Time `json:"finished_at,omitempty"` // 完成时间
}

// ImportedNoteInfo 单张笔记的导入结果
type ImportedNoteInfo struct {
	Position int               `json:"position"`          // 在源文本中的序号
	NoteID   int64             `json:"note_id,omitempty"` // Anki笔记ID
	Fields   map[string]string `json:"fields"`            // 字段内容
	Error    string            `json:"error,omitempty"`   // 失败原因
}

// ImportDetailResponse 导入记录详情响应
type ImportDetailResponse struct {
	ImportJobInfo
	Notes []ImportedNoteInfo `json:"notes"`
}

// ImportListResponse 导入记录列表响应
type ImportListResponse struct {
	Total    int64           `json:"total"`     // 总数量
	Page     int             `json:"page"`      // 当前页码
	PageSize int             `json:"page_size"` // 每页大小
	Imports  []ImportJobInfo `json:"imports"`   // 导入记录
}

// ConvertImportJob 将导入记录转换为响应结构
func ConvertImportJob(job *models.ImportJob) ImportJobInfo {
	return ImportJobInfo{
		ID:         job.ID,
		Source:     string(job.Source),
		FileName:   job.FileName,
		Deck:       job.DeckName,
		Model:      job.ModelName,
		Status:     string(job.Status),
		TaskID:     job.TaskID,
		Total:      job.Total,
		Added:      job.Added,
		Failed:     job.Failed,
		Error:      job.Error,
		CreatedAt:  job.CreatedAt,
		FinishedAt: job.FinishedAt,
	}
}
