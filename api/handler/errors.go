package handler

import (
	"errors"

	"github.com/fyerfyer/anki-importer/api/middleware"
	"github.com/fyerfyer/anki-importer/internal/document"
	"github.com/fyerfyer/anki-importer/internal/models"
	"github.com/fyerfyer/anki-importer/internal/services"
	"github.com/fyerfyer/anki-importer/pkg/storage"
	"github.com/fyerfyer/anki-importer/pkg/taskqueue"
	"github.com/gin-gonic/gin"
)

// toAppError 将服务层错误转换为对应的HTTP错误
func toAppError(err error) middleware.AppError {
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		return middleware.NewValidationError("无效的导入参数", err.Error())
	case errors.Is(err, document.ErrUnsupportedType):
		return middleware.NewValidationError("不支持的文件类型，仅支持 .txt, .md, .markdown, .pdf")
	case errors.Is(err, models.ErrNoFlashcards):
		return middleware.NewBusinessError("文本中没有找到完整的闪卡")
	case errors.Is(err, models.ErrAnkiUnavailable):
		return middleware.NewUnavailableError("无法连接Anki，请确认Anki已启动并安装了AnkiConnect", err.Error())
	case errors.Is(err, models.ErrDeckCreation):
		return middleware.NewUpstreamError("创建牌组失败", err.Error())
	case errors.Is(err, models.ErrImportJobNotFound):
		return middleware.NewNotFoundError("导入记录不存在")
	case errors.Is(err, taskqueue.ErrTaskNotFound), errors.Is(err, storage.ErrNotFound):
		return middleware.NewNotFoundError("任务不存在")
	case errors.Is(err, services.ErrHistoryDisabled):
		return middleware.NewNotImplementedError("未启用导入记录")
	case errors.Is(err, services.ErrAsyncDisabled):
		return middleware.NewNotImplementedError("未启用异步导入")
	default:
		return middleware.NewInternalError("Internal server error", err.Error())
	}
}

// abortWithError 交给错误处理中间件输出响应
func abortWithError(c *gin.Context, err error) {
	var appErr middleware.AppError
	if !errors.As(err, &appErr) {
		appErr = toAppError(err)
	}
	middleware.HandleError(c, appErr)
	c.Abort()
}
