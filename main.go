package main

import (
	"log"

	"github.com/gin-gonic/gin"

	"github.com/GrainArc/SceneMap/config"
	"github.com/GrainArc/SceneMap/models"
	"github.com/GrainArc/SceneMap/routers"
)

func main() {
	if err := models.InitDatabase(); err != nil {
		// 历史记录不可用不阻塞导出功能
		log.Printf("导出记录数据库初始化失败: %v", err)
	}

	r := gin.Default()
	routers.ExportRouters(r)

	log.Printf("SceneMap 服务启动于 %s", config.MainRouter)
	if err := r.Run(config.MainRouter); err != nil {
		log.Fatalf("服务启动失败: %v", err)
	}
}
