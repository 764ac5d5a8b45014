package handler

import (
	"net/http"

	"github.com/fyerfyer/anki-importer/api/model"
	"github.com/fyerfyer/anki-importer/internal/services"
	"github.com/gin-gonic/gin"
)

// HealthHandler 健康检查
type HealthHandler struct {
	service  *services.ImportService
	endpoint string
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(service *services.ImportService, endpoint string) *HealthHandler {
	return &HealthHandler{service: service, endpoint: endpoint}
}

// Health 返回服务和AnkiConnect的状态
// Anki不可用时服务仍可预览闪卡，状态为 degraded
// GET /api/health
func (h *HealthHandler) Health(c *gin.Context) {
	resp := model.HealthResponse{
		Status: "ok",
		Anki:   model.AnkiStatus{Endpoint: h.endpoint},
	}

	version, err := h.service.CheckConnection(c.Request.Context())
	if err != nil {
		resp.Status = "degraded"
		resp.Anki.Error = err.Error()
	} else {
		resp.Anki.Reachable = true
		resp.Anki.Version = version
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}
