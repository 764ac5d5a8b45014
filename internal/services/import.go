package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fyerfyer/anki-importer/internal/ankiconnect"
	"github.com/fyerfyer/anki-importer/internal/cache"
	"github.com/fyerfyer/anki-importer/internal/flashcard"
	"github.com/fyerfyer/anki-importer/internal/models"
	"github.com/fyerfyer/anki-importer/internal/repository"
	"github.com/fyerfyer/anki-importer/pkg/storage"
	"github.com/fyerfyer/anki-importer/pkg/taskqueue"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
)

// ErrHistoryDisabled 未配置导入记录存储
var ErrHistoryDisabled = errors.New("import history is not configured")

// ImportDefaults 导入请求未指定时使用的设置
type ImportDefaults struct {
	Deck           string             // 目标牌组
	Model          string             // 笔记类型
	Fields         []string           // 字段列表
	FieldMap       flashcard.FieldMap // 字段别名
	LeadingField   string             // 卡片起始字段
	Tags           []string           // 附加标签
	AllowDuplicate bool               // 是否允许重复笔记
}

// DefaultImportDefaults 返回默认导入设置
func DefaultImportDefaults() ImportDefaults {
	return ImportDefaults{
		Deck:         "ChatGPT Imported Cards",
		Model:        "Basic",
		Fields:       flashcard.DefaultFields(),
		FieldMap:     flashcard.FieldMap{"References": flashcard.FieldExtras},
		LeadingField: flashcard.FieldFront,
		Tags:         []string{"auto_imported"},
	}
}

// ParseOptions 解析闪卡文本的选项，空值使用服务默认设置
type ParseOptions struct {
	Fields       []string          `json:"fields"`
	FieldMap     map[string]string `json:"field_map"`
	LeadingField string            `json:"leading_field"`
}

// ImportRequest 文本导入请求
type ImportRequest struct {
	Text           string              `validate:"-"`
	Deck           string              `validate:"required,max=255"`
	Model          string              `validate:"required"`
	Fields         []string            `validate:"anki_fields,dive,required"`
	FieldMap       map[string]string   `validate:"omitempty,dive,keys,required,endkeys,required"`
	LeadingField   string              `validate:"required"`
	Tags           []string            `validate:"dive,required"`
	AllowDuplicate *bool               `validate:"-"` // 为空时使用默认设置
	Source         models.ImportSource `validate:"omitempty,oneof=text file"`
	FileName       string              `validate:"-"`
	JobID          string              `validate:"-"` // 已创建的导入任务，为空时新建

	retrying bool // 失败后队列还会重试
}

// NoteError 单张卡片添加失败的信息
type NoteError struct {
	Position int    `json:"position"`
	Front    string `json:"front"`
	Error    string `json:"error"`
}

// ImportSummary 导入结果汇总
type ImportSummary struct {
	JobID   string      `json:"job_id"`
	Deck    string      `json:"deck"`
	Model   string      `json:"model"`
	Total   int         `json:"total"`
	Added   int         `json:"added"`
	Failed  int         `json:"failed"`
	Errors  []NoteError `json:"errors,omitempty"`
	Message string      `json:"message"`
}

// JobDetail 导入任务及其笔记记录
type JobDetail struct {
	Job   *models.ImportJob      `json:"job"`
	Notes []*models.ImportedNote `json:"notes"`
}

// ImportService 导入服务
// 负责把闪卡文本解析为记录并通过 AnkiConnect 添加到 Anki
type ImportService struct {
	client      ankiconnect.Client          // AnkiConnect 客户端
	decks       *cache.DeckCache            // 已确认存在的牌组
	repo        repository.ImportRepository // 导入记录，可选
	storage     storage.Storage             // 上传文件存储，可选
	queue       taskqueue.Queue             // 异步任务队列，可选
	defaults    ImportDefaults              // 默认设置
	concurrency int                         // 并发添加笔记数
	validate    *validator.Validate         // 请求校验器
	logger      *logrus.Logger              // 日志记录器
}

// ImportOption 导入服务配置选项
type ImportOption func(*ImportService)

// NewImportService 创建导入服务
func NewImportService(client ankiconnect.Client, opts ...ImportOption) *ImportService {
	s := &ImportService{
		client:      client,
		defaults:    DefaultImportDefaults(),
		concurrency: 4,
		validate:    newImportValidator(),
		logger:      logrus.New(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) ImportOption {
	return func(s *ImportService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithCache 使用缓存记录已存在的牌组
// scope 用于区分不同的Anki实例
func WithCache(c cache.Cache, scope string, ttl time.Duration) ImportOption {
	return func(s *ImportService) {
		if c != nil {
			s.decks = cache.NewDeckCache(c, scope, ttl)
		}
	}
}

// WithRepository 设置导入记录仓储
func WithRepository(repo repository.ImportRepository) ImportOption {
	return func(s *ImportService) {
		s.repo = repo
	}
}

// WithStorage 设置上传文件存储
func WithStorage(st storage.Storage) ImportOption {
	return func(s *ImportService) {
		s.storage = st
	}
}

// WithTaskQueue 设置异步任务队列
func WithTaskQueue(q taskqueue.Queue) ImportOption {
	return func(s *ImportService) {
		s.queue = q
	}
}

// WithConcurrency 设置并发添加笔记数
func WithConcurrency(n int) ImportOption {
	return func(s *ImportService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithDefaults 设置默认导入设置，空字段保留原默认值
func WithDefaults(d ImportDefaults) ImportOption {
	return func(s *ImportService) {
		if d.Deck != "" {
			s.defaults.Deck = d.Deck
		}
		if d.Model != "" {
			s.defaults.Model = d.Model
		}
		if len(d.Fields) > 0 {
			s.defaults.Fields = d.Fields
		}
		if d.FieldMap != nil {
			s.defaults.FieldMap = d.FieldMap
		}
		if d.LeadingField != "" {
			s.defaults.LeadingField = d.LeadingField
		}
		if d.Tags != nil {
			s.defaults.Tags = d.Tags
		}
		s.defaults.AllowDuplicate = d.AllowDuplicate
	}
}

// Defaults 返回当前的默认设置
func (s *ImportService) Defaults() ImportDefaults {
	return s.defaults
}

// newImportValidator 创建带自定义规则的校验器
// anki_fields 要求字段列表包含 Front 和 Back
func newImportValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("anki_fields", func(fl validator.FieldLevel) bool {
		fields, ok := fl.Field().Interface().([]string)
		if !ok {
			return false
		}
		return slices.Contains(fields, flashcard.FieldFront) && slices.Contains(fields, flashcard.FieldBack)
	})
	return v
}

// ResolveParseOptions 用默认设置补全解析选项
func (s *ImportService) ResolveParseOptions(opts ParseOptions) ParseOptions {
	if len(opts.Fields) == 0 {
		opts.Fields = slices.Clone(s.defaults.Fields)
	}
	if opts.FieldMap == nil {
		opts.FieldMap = s.defaults.FieldMap
	}
	if opts.LeadingField == "" {
		opts.LeadingField = s.defaults.LeadingField
	}
	return opts
}

// Preview 只解析文本，不访问Anki
func (s *ImportService) Preview(text string, opts ParseOptions) []flashcard.Record {
	opts = s.ResolveParseOptions(opts)
	return flashcard.ExtractWithLeading(text, opts.LeadingField, opts.Fields, opts.FieldMap)
}

// applyDefaults 用默认设置补全导入请求
func (s *ImportService) applyDefaults(req ImportRequest) ImportRequest {
	if strings.TrimSpace(req.Deck) == "" {
		req.Deck = s.defaults.Deck
	}
	req.Deck = strings.TrimSpace(req.Deck)
	if req.Model == "" {
		req.Model = s.defaults.Model
	}
	parse := s.ResolveParseOptions(ParseOptions{
		Fields:       req.Fields,
		FieldMap:     req.FieldMap,
		LeadingField: req.LeadingField,
	})
	req.Fields = parse.Fields
	req.FieldMap = parse.FieldMap
	req.LeadingField = parse.LeadingField
	if req.Tags == nil {
		req.Tags = slices.Clone(s.defaults.Tags)
	}
	if req.AllowDuplicate == nil {
		allow := s.defaults.AllowDuplicate
		req.AllowDuplicate = &allow
	}
	if req.Source == "" {
		req.Source = models.SourceText
	}
	return req
}

// Import 解析文本并把所有完整的卡片添加到Anki
// 单张笔记添加失败只计入汇总，不会中断导入
func (s *ImportService) Import(ctx context.Context, req ImportRequest) (*ImportSummary, error) {
	req = s.applyDefaults(req)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidRequest, err)
	}

	log := s.logger.WithFields(logrus.Fields{
		"deck":  req.Deck,
		"model": req.Model,
	})

	job, err := s.startJob(req)
	if err != nil {
		return nil, err
	}
	log = log.WithField("job_id", job.ID)

	records := flashcard.ExtractWithLeading(req.Text, req.LeadingField, req.Fields, req.FieldMap)
	job.Total = len(records)
	if len(records) == 0 {
		log.Warn("No flashcards found in text")
		s.failJob(job, models.ErrNoFlashcards, req.retrying)
		return nil, models.ErrNoFlashcards
	}
	log = log.WithField("records", len(records))

	if err := s.client.Ping(ctx); err != nil {
		log.WithError(err).Error("AnkiConnect is unavailable")
		err = fmt.Errorf("%w: %v", models.ErrAnkiUnavailable, err)
		s.failJob(job, err, req.retrying)
		return nil, err
	}

	if err := s.ensureDeck(ctx, req.Deck); err != nil {
		log.WithError(err).Error("Failed to ensure deck")
		s.failJob(job, err, req.retrying)
		return nil, err
	}

	modelFields := s.modelFields(ctx, req.Model, log)
	notes := s.submit(ctx, req, records, modelFields, job.ID)

	summary := &ImportSummary{
		JobID: job.ID,
		Deck:  req.Deck,
		Model: req.Model,
		Total: len(records),
	}
	for _, n := range notes {
		if n.Error == "" {
			summary.Added++
			continue
		}
		summary.Failed++
		summary.Errors = append(summary.Errors, NoteError{
			Position: n.Position,
			Front:    records[n.Position].Get(req.Fields, flashcard.FieldFront),
			Error:    n.Error,
		})
	}
	summary.Message = summaryMessage(summary)

	// 全部失败时牌组可能已在Anki中被删除，下次导入重新确认
	if summary.Added == 0 {
		if err := s.decks.Forget(req.Deck); err != nil {
			log.WithError(err).Warn("Failed to reset deck cache")
		}
	}

	s.completeJob(job, summary, notes)

	log.WithFields(logrus.Fields{
		"added":  summary.Added,
		"failed": summary.Failed,
	}).Info("Import finished")

	return summary, nil
}

// ensureDeck 确认牌组存在，不存在时创建
func (s *ImportService) ensureDeck(ctx context.Context, deck string) error {
	if s.decks.Known(deck) {
		return nil
	}

	names, err := s.client.DeckNames(ctx)
	if err != nil {
		return deckError(deck, err)
	}

	if !slices.Contains(names, deck) {
		if _, err := s.client.CreateDeck(ctx, deck); err != nil {
			return deckError(deck, err)
		}
		s.logger.WithField("deck", deck).Info("Created deck")
	}

	if err := s.decks.Remember(deck); err != nil {
		s.logger.WithError(err).WithField("deck", deck).Warn("Failed to cache deck")
	}
	return nil
}

// deckError Anki不可达时返回 ErrAnkiUnavailable，其余为 ErrDeckCreation
func deckError(deck string, err error) error {
	if ankiconnect.IsUnavailable(err) {
		return fmt.Errorf("%w: %v", models.ErrAnkiUnavailable, err)
	}
	return fmt.Errorf("%w: %s: %v", models.ErrDeckCreation, deck, err)
}

// modelFields 查询笔记类型的字段，失败时返回nil表示不过滤
func (s *ImportService) modelFields(ctx context.Context, model string, log *logrus.Entry) []string {
	names, err := s.client.ModelFieldNames(ctx, model)
	if err != nil {
		log.WithError(err).Warn("Failed to read model fields, sending all fields")
		return nil
	}
	return names
}

// submit 并发添加笔记，结果按卡片顺序返回
func (s *ImportService) submit(ctx context.Context, req ImportRequest, records []flashcard.Record,
	modelFields []string, jobID string) []*models.ImportedNote {
	results := make([]*models.ImportedNote, len(records))

	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for i, record := range records {
		g.Go(func() error {
			fields := noteFields(record, req.Fields, modelFields)
			note := ankiconnect.NewNote(req.Deck, req.Model, fields, req.Tags, *req.AllowDuplicate)

			result := &models.ImportedNote{JobID: jobID, Position: i}
			if data, err := json.Marshal(note.Fields); err == nil {
				result.Fields = datatypes.JSON(data)
			}

			id, err := s.client.AddNote(ctx, note)
			if err != nil {
				result.Error = err.Error()
				s.logger.WithError(err).WithFields(logrus.Fields{
					"job_id":   jobID,
					"position": i,
					"code":     ankiconnect.WrapError(err, ankiconnect.ErrCodeServer).Code,
				}).Warn("Failed to add note")
			} else {
				result.NoteID = id
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// noteFields 构造笔记字段，modelFields 非空时只保留笔记类型中存在的字段
func noteFields(record flashcard.Record, fields, modelFields []string) map[string]string {
	m := record.ToMap(fields)
	if len(modelFields) == 0 {
		return m
	}
	for name := range m {
		if !slices.Contains(modelFields, name) {
			delete(m, name)
		}
	}
	return m
}

// summaryMessage 生成给用户看的结果说明
func summaryMessage(s *ImportSummary) string {
	msg := fmt.Sprintf("%d flashcards added to Anki deck '%s'.", s.Added, s.Deck)
	if s.Failed > 0 {
		msg += fmt.Sprintf(" %d cards could not be added.", s.Failed)
	}
	return msg
}

// startJob 创建或继续一个导入任务记录
func (s *ImportService) startJob(req ImportRequest) (*models.ImportJob, error) {
	if s.repo != nil && req.JobID != "" {
		job, err := s.repo.GetJob(req.JobID)
		if err != nil {
			return nil, err
		}
		job.Status = models.ImportStatusRunning
		job.DeckName = req.Deck
		job.ModelName = req.Model
		job.Error = ""
		if err := s.repo.UpdateJob(job); err != nil {
			s.logger.WithError(err).WithField("job_id", job.ID).Warn("Failed to update import job")
		}
		return job, nil
	}

	job := &models.ImportJob{
		ID:        req.JobID,
		Source:    req.Source,
		FileName:  req.FileName,
		DeckName:  req.Deck,
		ModelName: req.Model,
		Status:    models.ImportStatusRunning,
		Tags:      strings.Join(req.Tags, ","),
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}

	if s.repo != nil {
		if err := s.repo.CreateJob(job); err != nil {
			return nil, fmt.Errorf("failed to create import job: %w", err)
		}
	}
	return job, nil
}

// failJob 记录导入失败
// Anki不可用且队列还会重试时，任务保持 pending
func (s *ImportService) failJob(job *models.ImportJob, cause error, retrying bool) {
	if s.repo == nil {
		return
	}
	job.Error = cause.Error()
	if retrying && errors.Is(cause, models.ErrAnkiUnavailable) {
		job.Status = models.ImportStatusPending
		job.FinishedAt = nil
	} else {
		now := time.Now()
		job.Status = models.ImportStatusFailed
		job.FinishedAt = &now
	}
	if err := s.repo.UpdateJob(job); err != nil {
		s.logger.WithError(err).WithField("job_id", job.ID).Warn("Failed to update import job")
	}
}

// completeJob 保存导入结果
func (s *ImportService) completeJob(job *models.ImportJob, summary *ImportSummary, notes []*models.ImportedNote) {
	if s.repo == nil {
		return
	}
	now := time.Now()
	job.Status = models.ImportStatusCompleted
	job.Total = summary.Total
	job.Added = summary.Added
	job.Failed = summary.Failed
	job.FinishedAt = &now
	if data, err := json.Marshal(map[string]string{"message": summary.Message}); err == nil {
		job.Metadata = datatypes.JSON(data)
	}

	if err := s.repo.SaveNotes(notes); err != nil {
		s.logger.WithError(err).WithField("job_id", job.ID).Warn("Failed to save imported notes")
	}
	if err := s.repo.UpdateJob(job); err != nil {
		s.logger.WithError(err).WithField("job_id", job.ID).Warn("Failed to update import job")
	}
}

// ListJobs 分页列出导入记录
func (s *ImportService) ListJobs(offset, limit int) ([]*models.ImportJob, int64, error) {
	if s.repo == nil {
		return nil, 0, ErrHistoryDisabled
	}
	return s.repo.ListJobs(offset, limit)
}

// GetJob 获取导入记录及其笔记
func (s *ImportService) GetJob(id string) (*JobDetail, error) {
	if s.repo == nil {
		return nil, ErrHistoryDisabled
	}

	job, err := s.repo.GetJob(id)
	if err != nil {
		return nil, err
	}
	notes, err := s.repo.GetNotes(id)
	if err != nil {
		return nil, err
	}
	return &JobDetail{Job: job, Notes: notes}, nil
}

// DeleteJob 删除导入记录
// 同时删除关联的队列任务和上传的源文件
func (s *ImportService) DeleteJob(ctx context.Context, id string) error {
	if s.repo == nil {
		return ErrHistoryDisabled
	}
	if _, err := s.repo.GetJob(id); err != nil {
		return err
	}

	log := s.logger.WithField("job_id", id)
	if s.queue != nil {
		tasks, err := s.queue.GetTasksByJob(ctx, id)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			s.removeUpload(ctx, task, log)
			if err := s.queue.DeleteTask(ctx, task.ID); err != nil && !errors.Is(err, taskqueue.ErrTaskNotFound) {
				log.WithError(err).WithField("task_id", task.ID).Warn("Failed to delete task")
			}
		}
	}

	if err := s.repo.DeleteJob(id); err != nil {
		return fmt.Errorf("failed to delete import job: %w", err)
	}
	log.Info("Import job deleted")
	return nil
}

// removeUpload 删除文件导入任务保存的源文件
func (s *ImportService) removeUpload(ctx context.Context, task *taskqueue.Task, log *logrus.Entry) {
	if s.storage == nil || task.Type != taskqueue.TaskImportFile {
		return
	}
	var payload taskqueue.ImportFilePayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil || payload.FileID == "" {
		return
	}
	if err := s.storage.Delete(ctx, payload.FileID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.WithError(err).WithField("file_id", payload.FileID).Warn("Failed to delete uploaded file")
	}
}

// CheckConnection 检查 AnkiConnect 是否可用并返回协议版本
func (s *ImportService) CheckConnection(ctx context.Context) (int, error) {
	version, err := s.client.Version(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrAnkiUnavailable, err)
	}
	return version, nil
}
