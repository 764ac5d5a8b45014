package api

import (
	"github.com/fyerfyer/anki-importer/api/handler"
	"github.com/fyerfyer/anki-importer/api/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(
	importHandler *handler.ImportHandler,
	taskHandler *handler.TaskHandler,
	healthHandler *handler.HealthHandler,
) *gin.Engine {
	router := gin.New()

	// 应用全局中间件
	router.Use(middleware.SetTraceID())
	router.Use(Cors())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.RequestLogger())

	api := router.Group("/api")
	{
		// 健康检查 - GET /api/health
		api.GET("/health", healthHandler.Health)

		// 闪卡预览 - POST /api/cards/preview
		api.POST("/cards/preview", importHandler.Preview)

		importGroup := api.Group("/imports")
		{
			// 导入文本 - POST /api/imports/text
			importGroup.POST("/text", importHandler.ImportText)

			// 导入文件 - POST /api/imports/file
			importGroup.POST("/file", importHandler.ImportFile)

			// 导入记录列表 - GET /api/imports
			importGroup.GET("", importHandler.ListImports)

			// 导入记录详情 - GET /api/imports/:id
			importGroup.GET("/:id", importHandler.GetImport)

			// 删除导入记录 - DELETE /api/imports/:id
			importGroup.DELETE("/:id", importHandler.DeleteImport)
		}

		// 任务状态 - GET /api/tasks/:id
		api.GET("/tasks/:id", taskHandler.GetTaskStatus)
	}

	return router
}

// Cors 跨域资源共享中间件
// 如果需要支持跨域请求，可以启用此中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
