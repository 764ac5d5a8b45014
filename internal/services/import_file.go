package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fyerfyer/anki-importer/internal/document"
	"github.com/fyerfyer/anki-importer/internal/flashcard"
	"github.com/fyerfyer/anki-importer/internal/models"
	"github.com/fyerfyer/anki-importer/pkg/taskqueue"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrAsyncDisabled 未配置文件存储或任务队列
var ErrAsyncDisabled = errors.New("async import is not configured")

// FileImportRequest 文件导入请求
// 空字段依次使用文件头部设置和服务默认设置
type FileImportRequest struct {
	JobID          string
	FileID         string
	FileName       string
	Deck           string
	Model          string
	Fields         []string
	FieldMap       map[string]string
	Tags           []string
	AllowDuplicate *bool

	retrying bool // 失败后队列还会重试
}

// FilePreview 源文件的解析结果，设置已合并文件头部和默认值
type FilePreview struct {
	Deck    string             `json:"deck"`
	Model   string             `json:"model"`
	Fields  []string           `json:"fields"`
	Tags    []string           `json:"tags"`
	Records []flashcard.Record `json:"records"`
}

// ImportReader 解析上传的源文件内容并导入
func (s *ImportService) ImportReader(ctx context.Context, r io.Reader, req FileImportRequest) (*ImportSummary, error) {
	importReq, err := s.readSource(r, req)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"file":  req.FileName,
		"deck":  importReq.Deck,
		"model": importReq.Model,
	}).Info("Importing flashcards from file")

	return s.Import(ctx, importReq)
}

// PreviewReader 按导入时相同的设置解析源文件，不访问Anki
func (s *ImportService) PreviewReader(r io.Reader, req FileImportRequest) (*FilePreview, error) {
	importReq, err := s.readSource(r, req)
	if err != nil {
		return nil, err
	}
	importReq = s.applyDefaults(importReq)

	return &FilePreview{
		Deck:    importReq.Deck,
		Model:   importReq.Model,
		Fields:  importReq.Fields,
		Tags:    importReq.Tags,
		Records: flashcard.ExtractWithLeading(importReq.Text, importReq.LeadingField, importReq.Fields, importReq.FieldMap),
	}, nil
}

// readSource 解析源文件并合并文件头部设置
func (s *ImportService) readSource(r io.Reader, req FileImportRequest) (ImportRequest, error) {
	parser, err := document.ParserFactory(req.FileName)
	if err != nil {
		return ImportRequest{}, err
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return ImportRequest{}, fmt.Errorf("failed to read %s: %w", req.FileName, err)
	}

	text, err := parser.ParseReader(bytes.NewReader(raw), req.FileName)
	if err != nil {
		return ImportRequest{}, fmt.Errorf("failed to parse %s: %w", req.FileName, err)
	}

	meta := document.FrontMatter{}
	if document.DetectContentType(req.FileName) != document.PDF {
		meta, _ = document.ParseFrontMatter(string(raw))
		if document.DetectContentType(req.FileName) == document.PlainText && !meta.IsZero() {
			_, text = document.ParseFrontMatter(text)
		}
	}

	importReq := mergeFrontMatter(req, meta)
	importReq.Text = text
	importReq.Source = models.SourceFile
	importReq.FileName = req.FileName
	importReq.JobID = req.JobID
	importReq.retrying = req.retrying
	return importReq, nil
}

// mergeFrontMatter 请求中的设置优先于文件头部设置
func mergeFrontMatter(req FileImportRequest, meta document.FrontMatter) ImportRequest {
	out := ImportRequest{
		Deck:           req.Deck,
		Model:          req.Model,
		Fields:         req.Fields,
		FieldMap:       req.FieldMap,
		Tags:           req.Tags,
		AllowDuplicate: req.AllowDuplicate,
	}
	if out.Deck == "" {
		out.Deck = meta.Deck
	}
	if out.Model == "" {
		out.Model = meta.Model
	}
	if len(out.Fields) == 0 {
		out.Fields = meta.Fields
	}
	if out.FieldMap == nil {
		out.FieldMap = meta.FieldMap
	}
	if out.Tags == nil {
		out.Tags = meta.Tags
	}
	return out
}

// ImportFile 从存储中读取源文件并导入
func (s *ImportService) ImportFile(ctx context.Context, req FileImportRequest) (*ImportSummary, error) {
	if s.storage == nil {
		return nil, ErrAsyncDisabled
	}

	rc, info, err := s.storage.Get(ctx, req.FileID)
	if err != nil {
		s.markJobFailed(req.JobID, err, req.retrying)
		return nil, err
	}
	defer rc.Close()

	if req.FileName == "" {
		req.FileName = info.Name
	}

	summary, err := s.ImportReader(ctx, rc, req)
	if err != nil {
		s.markJobFailed(req.JobID, err, req.retrying)
		return nil, err
	}
	return summary, nil
}

// markJobFailed 导入开始前失败时更新任务记录
func (s *ImportService) markJobFailed(jobID string, cause error, retrying bool) {
	if s.repo == nil || jobID == "" {
		return
	}
	job, err := s.repo.GetJob(jobID)
	if err != nil || job.Finished() {
		return
	}
	s.failJob(job, cause, retrying)
}

// EnqueueFile 保存上传的文件并创建异步导入任务
func (s *ImportService) EnqueueFile(ctx context.Context, r io.Reader, req FileImportRequest) (*models.ImportJob, string, error) {
	if s.storage == nil || s.queue == nil {
		return nil, "", ErrAsyncDisabled
	}
	if !document.IsSupported(req.FileName) {
		return nil, "", fmt.Errorf("%w: %s", document.ErrUnsupportedType, req.FileName)
	}

	info, err := s.storage.Save(ctx, r, req.FileName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to save upload: %w", err)
	}
	req.FileID = info.ID

	job := &models.ImportJob{
		ID:        uuid.New().String(),
		Source:    models.SourceFile,
		FileName:  req.FileName,
		DeckName:  req.Deck,
		ModelName: req.Model,
		Status:    models.ImportStatusPending,
	}
	if s.repo != nil {
		if err := s.repo.CreateJob(job); err != nil {
			_ = s.storage.Delete(ctx, info.ID)
			return nil, "", fmt.Errorf("failed to create import job: %w", err)
		}
	}
	req.JobID = job.ID

	payload := taskqueue.ImportFilePayload{
		JobID:    job.ID,
		FileID:   req.FileID,
		FileName: req.FileName,
		Deck:     req.Deck,
		Model:    req.Model,
		Fields:   req.Fields,
		FieldMap: req.FieldMap,
		Tags:     req.Tags,

		AllowDuplicate: req.AllowDuplicate,
	}

	taskID, err := s.queue.Enqueue(ctx, taskqueue.TaskImportFile, job.ID, payload)
	if err != nil {
		s.markJobFailed(job.ID, err, false)
		return nil, "", fmt.Errorf("failed to enqueue import: %w", err)
	}

	if s.repo != nil {
		job.TaskID = taskID
		if err := s.repo.UpdateJob(job); err != nil {
			s.logger.WithError(err).WithField("job_id", job.ID).Warn("Failed to save task id")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"task_id": taskID,
		"file":    req.FileName,
	}).Info("Import task enqueued")

	return job, taskID, nil
}

// GetTask 获取异步任务的状态
func (s *ImportService) GetTask(ctx context.Context, taskID string) (*taskqueue.TaskInfo, error) {
	return s.WaitTask(ctx, taskID, 0)
}

// WaitTask 最多等待 timeout 直到任务结束，超时后返回当前状态
// timeout 为0时立即返回
func (s *ImportService) WaitTask(ctx context.Context, taskID string, timeout time.Duration) (*taskqueue.TaskInfo, error) {
	if s.queue == nil {
		return nil, ErrAsyncDisabled
	}

	if timeout > 0 {
		task, err := s.queue.WaitForTask(ctx, taskID, timeout)
		if err == nil {
			return taskqueue.NewTaskInfo(task), nil
		}
		if !errors.Is(err, taskqueue.ErrTaskTimeout) {
			return nil, err
		}
	}

	task, err := s.queue.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return taskqueue.NewTaskInfo(task), nil
}
