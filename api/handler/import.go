package handler

import (
	"encoding/json"
	"net/http"

	"github.com/fyerfyer/anki-importer/api/middleware"
	"github.com/fyerfyer/anki-importer/api/model"
	"github.com/fyerfyer/anki-importer/internal/models"
	"github.com/fyerfyer/anki-importer/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ImportHandler 处理闪卡导入相关的API请求
type ImportHandler struct {
	service *services.ImportService // 导入服务
	logger  *logrus.Logger          // 日志记录器
}

// NewImportHandler 创建新的导入处理器
func NewImportHandler(service *services.ImportService) *ImportHandler {
	return &ImportHandler{
		service: service,
		logger:  middleware.GetLogger(),
	}
}

// Preview 解析文本并返回闪卡，不访问Anki
// POST /api/cards/preview
func (h *ImportHandler) Preview(c *gin.Context) {
	var req model.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, middleware.NewValidationError("无效的请求参数", err.Error()))
		return
	}

	opts := h.service.ResolveParseOptions(services.ParseOptions{
		Fields:       req.Fields,
		FieldMap:     req.FieldMap,
		LeadingField: req.LeadingField,
	})
	records := h.service.Preview(req.Text, opts)

	cards := make([]map[string]string, len(records))
	for i, r := range records {
		cards[i] = r.ToMap(opts.Fields)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.PreviewResponse{
		Fields: opts.Fields,
		Count:  len(cards),
		Cards:  cards,
	}))
}

// ImportText 导入请求体中的闪卡文本
// POST /api/imports/text
func (h *ImportHandler) ImportText(c *gin.Context) {
	var req model.TextImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, middleware.NewValidationError("无效的请求参数", err.Error()))
		return
	}

	summary, err := h.service.Import(c.Request.Context(), services.ImportRequest{
		Text:           req.Text,
		Deck:           req.Deck,
		Model:          req.Model,
		Fields:         req.Fields,
		FieldMap:       req.FieldMap,
		LeadingField:   req.LeadingField,
		Tags:           req.Tags,
		AllowDuplicate: req.AllowDuplicate,
		Source:         models.SourceText,
	})
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(summary))
}

// ImportFile 导入上传的源文件
// POST /api/imports/file
// async=true 时保存文件并加入任务队列，立即返回任务ID
func (h *ImportHandler) ImportFile(c *gin.Context) {
	var req model.FileImportRequest
	if err := c.ShouldBind(&req); err != nil {
		abortWithError(c, middleware.NewValidationError("无效的请求参数", err.Error()))
		return
	}

	file, err := req.File.Open()
	if err != nil {
		h.logger.WithError(err).WithField("filename", req.File.Filename).Error("Failed to open uploaded file")
		abortWithError(c, middleware.NewInternalError("无法打开上传的文件"))
		return
	}
	defer file.Close()

	fileReq := services.FileImportRequest{
		FileName:       req.File.Filename,
		Deck:           req.Deck,
		Model:          req.Model,
		Tags:           req.TagList(),
		AllowDuplicate: req.AllowDuplicate,
	}

	if req.Async {
		job, taskID, err := h.service.EnqueueFile(c.Request.Context(), file, fileReq)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.AsyncImportResponse{
			JobID:  job.ID,
			TaskID: taskID,
			Status: string(job.Status),
		}))
		return
	}

	summary, err := h.service.ImportReader(c.Request.Context(), file, fileReq)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(summary))
}

// ListImports 分页获取导入记录
// GET /api/imports
func (h *ImportHandler) ListImports(c *gin.Context) {
	var req model.ImportListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		abortWithError(c, middleware.NewValidationError("无效的查询参数", err.Error()))
		return
	}

	jobs, total, err := h.service.ListJobs(req.Offset(), req.GetPageSize())
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := model.ImportListResponse{
		Total:    total,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
		Imports:  make([]model.ImportJobInfo, 0, len(jobs)),
	}
	for _, job := range jobs {
		resp.Imports = append(resp.Imports, model.ConvertImportJob(job))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetImport 获取导入记录详情
// GET /api/imports/:id
func (h *ImportHandler) GetImport(c *gin.Context) {
	var req model.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		abortWithError(c, middleware.NewValidationError("无效的导入记录ID"))
		return
	}

	detail, err := h.service.GetJob(req.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	resp := model.ImportDetailResponse{
		ImportJobInfo: model.ConvertImportJob(detail.Job),
		Notes:         make([]model.ImportedNoteInfo, 0, len(detail.Notes)),
	}
	for _, n := range detail.Notes {
		info := model.ImportedNoteInfo{
			Position: n.Position,
			NoteID:   n.NoteID,
			Error:    n.Error,
		}
		if len(n.Fields) > 0 {
			if err := json.Unmarshal(n.Fields, &info.Fields); err != nil {
				h.logger.WithError(err).WithField("job_id", req.ID).Warn("Failed to decode note fields")
			}
		}
		resp.Notes = append(resp.Notes, info)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// DeleteImport 删除导入记录及其上传的源文件
// DELETE /api/imports/:id
func (h *ImportHandler) DeleteImport(c *gin.Context) {
	var req model.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		abortWithError(c, middleware.NewValidationError("无效的导入记录ID"))
		return
	}

	if err := h.service.DeleteJob(c.Request.Context(), req.ID); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{"id": req.ID}))
}
