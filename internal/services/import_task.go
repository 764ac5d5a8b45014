package services

import (
	"context"
	"errors"

	"github.com/fyerfyer/anki-importer/internal/document"
	"github.com/fyerfyer/anki-importer/internal/models"
	"github.com/fyerfyer/anki-importer/pkg/storage"
	"github.com/fyerfyer/anki-importer/pkg/taskqueue"
)

// ImportTaskHandler 处理队列中的文件导入任务
type ImportTaskHandler struct {
	service *ImportService
}

// NewImportTaskHandler 创建文件导入任务处理器
func NewImportTaskHandler(service *ImportService) *ImportTaskHandler {
	return &ImportTaskHandler{service: service}
}

// GetTaskTypes 返回支持的任务类型
func (h *ImportTaskHandler) GetTaskTypes() []taskqueue.TaskType {
	return []taskqueue.TaskType{taskqueue.TaskImportFile}
}

// ProcessTask 执行文件导入
// Anki不可用时返回可重试的错误，其余失败不再重试
func (h *ImportTaskHandler) ProcessTask(ctx context.Context, task *taskqueue.Task) (interface{}, error) {
	var payload taskqueue.ImportFilePayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return nil, taskqueue.Permanent(err)
	}
	if payload.JobID == "" {
		payload.JobID = task.JobID
	}

	summary, err := h.service.ImportFile(ctx, FileImportRequest{
		JobID:    payload.JobID,
		FileID:   payload.FileID,
		FileName: payload.FileName,
		Deck:     payload.Deck,
		Model:    payload.Model,
		Fields:   payload.Fields,
		FieldMap: payload.FieldMap,
		Tags:     payload.Tags,

		AllowDuplicate: payload.AllowDuplicate,
		retrying:       !taskqueue.IsLastAttempt(ctx),
	})
	if err != nil {
		if isPermanentImportError(err) {
			return nil, taskqueue.Permanent(err)
		}
		return nil, err
	}

	result := &taskqueue.ImportFileResult{
		JobID:  payload.JobID,
		Deck:   summary.Deck,
		Total:  summary.Total,
		Added:  summary.Added,
		Failed: summary.Failed,
	}
	for _, e := range summary.Errors {
		result.Errors = append(result.Errors, e.Error)
	}
	return result, nil
}

func isPermanentImportError(err error) bool {
	return errors.Is(err, models.ErrNoFlashcards) ||
		errors.Is(err, models.ErrInvalidRequest) ||
		errors.Is(err, storage.ErrNotFound) ||
		errors.Is(err, document.ErrUnsupportedType) ||
		errors.Is(err, ErrAsyncDisabled)
}

var _ taskqueue.Handler = (*ImportTaskHandler)(nil)
