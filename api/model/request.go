package model

import (
	"mime/multipart"
	"strings"
)

// 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// Offset 当前页第一条记录的偏移量
func (p *PaginationRequest) Offset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// PreviewRequest 闪卡预览请求
type PreviewRequest struct {
	Text         string            `json:"text" binding:"required"`           // 闪卡文本
	Fields       []string          `json:"fields" binding:"omitempty"`        // 字段列表
	FieldMap     map[string]string `json:"field_map" binding:"omitempty"`     // 字段别名
	LeadingField string            `json:"leading_field" binding:"omitempty"` // 卡片起始字段
}

// TextImportRequest 文本导入请求
type TextImportRequest struct {
	Text           string            `json:"text" binding:"required"`           // 闪卡文本
	Deck           string            `json:"deck" binding:"omitempty,max=255"`  // 目标牌组
	Model          string            `json:"model" binding:"omitempty"`         // 笔记类型
	Fields         []string          `json:"fields" binding:"omitempty"`        // 字段列表
	FieldMap       map[string]string `json:"field_map" binding:"omitempty"`     // 字段别名
	LeadingField   string            `json:"leading_field" binding:"omitempty"` // 卡片起始字段
	Tags           []string          `json:"tags" binding:"omitempty"`          // 标签
	AllowDuplicate *bool             `json:"allow_duplicate"`                   // 是否允许重复，为空时使用默认设置
}

// FileImportRequest 文件导入请求
type FileImportRequest struct {
	File  *multipart.FileHeader `form:"file" binding:"required"`          // 源文件
	Deck  string                `form:"deck" binding:"omitempty,max=255"` // 目标牌组，为空时使用文件头部设置或默认值
	Model string                `form:"model" binding:"omitempty"`        // 笔记类型
	Tags  string                `form:"tags" binding:"omitempty"`         // 标签，逗号分隔
	Async bool                  `form:"async"`                            // 是否异步导入

	AllowDuplicate *bool `form:"allow_duplicate"` // 是否允许重复，为空时使用默认设置
}

// TagList 解析逗号分隔的标签，未提供时返回nil
func (r *FileImportRequest) TagList() []string {
	if strings.TrimSpace(r.Tags) == "" {
		return nil
	}
	var tags []string
	for _, tag := range strings.Split(r.Tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// ImportListRequest 导入记录列表请求
type ImportListRequest struct {
	PaginationRequest
}

// TaskStatusRequest 任务状态查询参数
type TaskStatusRequest struct {
	Wait int `form:"wait" binding:"omitempty,min=0,max=60"` // 等待任务结束的秒数，0表示立即返回
}

// IDRequest 路径中的ID参数
type IDRequest struct {
	ID string `uri:"id" binding:"required"`
}
