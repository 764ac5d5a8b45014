package handler

import (
	"net/http"
	"time"

	"github.com/fyerfyer/anki-importer/api/middleware"
	"github.com/fyerfyer/anki-importer/api/model"
	"github.com/fyerfyer/anki-importer/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TaskHandler 处理异步任务相关的API请求
type TaskHandler struct {
	service *services.ImportService // 导入服务
	logger  *logrus.Logger          // 日志记录器
}

// NewTaskHandler 创建新的任务处理器
func NewTaskHandler(service *services.ImportService) *TaskHandler {
	return &TaskHandler{
		service: service,
		logger:  middleware.GetLogger(),
	}
}

// GetTaskStatus 获取异步导入任务状态
// GET /api/tasks/:id?wait=10
// wait 大于0时最多等待该秒数直到任务结束
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	var req model.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		abortWithError(c, middleware.NewValidationError("任务ID不能为空"))
		return
	}
	var query model.TaskStatusRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		abortWithError(c, middleware.NewValidationError("无效的查询参数", err.Error()))
		return
	}

	info, err := h.service.WaitTask(c.Request.Context(), req.ID, time.Duration(query.Wait)*time.Second)
	if err != nil {
		h.logger.WithError(err).WithField("task_id", req.ID).Debug("Failed to get task")
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(info))
}
