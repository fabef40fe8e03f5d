package routers

import (
	"github.com/GrainArc/SceneMap/views"
	"github.com/gin-gonic/gin"
)

func ExportRouters(r *gin.Engine) {
	exportController := views.NewExportController()

	r.GET("/", exportController.Index)

	exportRouter := r.Group("/export")
	{
		// POST同步导出，直接返回zip
		exportRouter.POST("/obj", exportController.ExportOBJ)
		// POST创建后台导出任务
		exportRouter.POST("/task", exportController.InitExportTask)
		// GET用于WebSocket连接
		exportRouter.GET("/ws", exportController.ConnectWebSocket)
		// GET用于查询任务状态
		exportRouter.GET("/task/:id", exportController.GetTask)
		// GET下载已完成任务的结果包
		exportRouter.GET("/task/:id/download", exportController.DownloadResult)
	}
}
