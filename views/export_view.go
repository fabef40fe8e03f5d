// export_view.go 三维地图导出接口
package views

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/GrainArc/SceneMap/config"
	"github.com/GrainArc/SceneMap/methods"
	"github.com/GrainArc/SceneMap/services"
)

// ExportTask 导出任务
type ExportTask struct {
	ID            string     `json:"id"`
	Status        string     `json:"status"` // pending, running, completed, failed
	Progress      float64    `json:"progress"`
	Message       string     `json:"message"`
	BuildingCount int        `json:"buildingCount"`
	OutputFile    string     `json:"outputFile"`
	CreatedAt     time.Time  `json:"createdAt"`
	StartedAt     *time.Time `json:"startedAt"`
	CompletedAt   *time.Time `json:"completedAt"`
}

// ProgressMessage WebSocket进度消息
type ProgressMessage struct {
	Type     string      `json:"type"` // progress, completed, error
	TaskID   string      `json:"taskId"`
	Progress float64     `json:"progress"`
	Message  string      `json:"message"`
	Data     interface{} `json:"data,omitempty"`
}

// ExportController 导出控制器
type ExportController struct {
	service   *services.ExportService
	tasks     sync.Map // taskID -> *ExportTask
	wsClients sync.Map // taskID -> *sync.Map(conn -> bool)
	outputDir string
	upgrader  websocket.Upgrader
}

// NewExportController 创建导出控制器
func NewExportController() *ExportController {
	outputDir := filepath.Join(config.Download, "exports")
	os.MkdirAll(outputDir, 0755)
	// 启动时清理上次遗留的导出文件
	methods.DeleteFiles(outputDir)

	return &ExportController{
		service:   services.NewExportService(),
		outputDir: outputDir,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Index 服务信息
func (ec *ExportController) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "SceneMap",
		"usage":   "POST /export/obj with {bbox:[west,south,east,north], building_height, quality}",
	})
}

// ExportOBJ 同步导出，直接返回zip附件
func (ec *ExportController) ExportOBJ(c *gin.Context) {
	var req services.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}

	result, err := ec.service.Export(c.Request.Context(), &req, nil)
	if err != nil {
		status := exportErrorStatus(err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, result.ZipName))
	c.Data(http.StatusOK, "application/zip", result.ZipData)
}

// InitExportTask 创建后台导出任务
func (ec *ExportController) InitExportTask(c *gin.Context) {
	var req services.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}

	// 参数错误立即反馈，不创建任务
	if err := ec.service.Validate(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	taskID := uuid.NewString()
	task := &ExportTask{
		ID:        taskID,
		Status:    "pending",
		CreatedAt: time.Now(),
	}
	ec.tasks.Store(taskID, task)

	// 启动后台导出任务
	req.TaskID = taskID
	go ec.executeExportTask(taskID, &req)

	c.JSON(http.StatusOK, gin.H{
		"taskId":  taskID,
		"message": "export task created, connect to websocket for progress",
	})
}

// ConnectWebSocket WebSocket连接处理
func (ec *ExportController) ConnectWebSocket(c *gin.Context) {
	taskID := c.Query("taskId")
	if taskID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "taskId is required"})
		return
	}

	if _, ok := ec.tasks.Load(taskID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}

	conn, err := ec.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("websocket upgrade failed: %v", err)})
		return
	}

	ec.registerWSClient(taskID, conn)

	// 发送当前状态
	if taskVal, ok := ec.tasks.Load(taskID); ok {
		task := taskVal.(*ExportTask)
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		conn.WriteJSON(ProgressMessage{
			Type:     "progress",
			TaskID:   task.ID,
			Progress: task.Progress,
			Message:  task.Message,
			Data:     task,
		})
	}

	go ec.handleWSConnection(taskID, conn)
}

// GetTask 查询任务状态
func (ec *ExportController) GetTask(c *gin.Context) {
	taskID := c.Param("id")
	taskVal, ok := ec.tasks.Load(taskID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": taskVal})
}

// DownloadResult 下载已完成任务的结果包
func (ec *ExportController) DownloadResult(c *gin.Context) {
	taskID := c.Param("id")
	taskVal, ok := ec.tasks.Load(taskID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	task := taskVal.(*ExportTask)
	if task.Status != "completed" || task.OutputFile == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "task not completed"})
		return
	}
	c.FileAttachment(task.OutputFile, filepath.Base(task.OutputFile))
}

// executeExportTask 执行后台导出
func (ec *ExportController) executeExportTask(taskID string, req *services.ExportRequest) {
	taskVal, _ := ec.tasks.Load(taskID)
	task := taskVal.(*ExportTask)

	now := time.Now()
	task.Status = "running"
	task.StartedAt = &now
	task.Message = "exporting..."

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	report := func(progress float64, message string) {
		task.Progress = progress
		task.Message = message
		ec.broadcastProgress(taskID, ProgressMessage{
			Type:     "progress",
			TaskID:   taskID,
			Progress: progress,
			Message:  message,
			Data:     task,
		})
	}

	result, err := ec.service.Export(ctx, req, report)
	if err != nil {
		ec.failTask(taskID, err.Error())
		return
	}

	// 结果包落盘供后续下载
	outputFile := filepath.Join(ec.outputDir, fmt.Sprintf("%s_%s", taskID, result.ZipName))
	if err := os.WriteFile(outputFile, result.ZipData, 0644); err != nil {
		ec.failTask(taskID, fmt.Sprintf("写入结果文件失败: %v", err))
		return
	}

	completedAt := time.Now()
	task.Status = "completed"
	task.Progress = 100
	task.Message = "export completed"
	task.BuildingCount = result.BuildingCount
	task.OutputFile = outputFile
	task.CompletedAt = &completedAt

	ec.broadcastProgress(taskID, ProgressMessage{
		Type:     "completed",
		TaskID:   taskID,
		Progress: 100,
		Message:  "export completed",
		Data:     task,
	})
}

// registerWSClient 注册WebSocket客户端
func (ec *ExportController) registerWSClient(taskID string, conn *websocket.Conn) {
	clientsVal, _ := ec.wsClients.LoadOrStore(taskID, &sync.Map{})
	clients := clientsVal.(*sync.Map)
	clients.Store(conn, true)
}

// unregisterWSClient 注销WebSocket客户端
func (ec *ExportController) unregisterWSClient(taskID string, conn *websocket.Conn) {
	if clientsVal, ok := ec.wsClients.Load(taskID); ok {
		clients := clientsVal.(*sync.Map)
		clients.Delete(conn)
	}
	conn.Close()
}

// handleWSConnection 保持连接直到客户端断开
func (ec *ExportController) handleWSConnection(taskID string, conn *websocket.Conn) {
	defer ec.unregisterWSClient(taskID, conn)

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

// broadcastProgress 向任务的所有客户端广播进度
func (ec *ExportController) broadcastProgress(taskID string, msg ProgressMessage) {
	if clientsVal, ok := ec.wsClients.Load(taskID); ok {
		clients := clientsVal.(*sync.Map)
		clients.Range(func(key, value interface{}) bool {
			conn := key.(*websocket.Conn)
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				ec.unregisterWSClient(taskID, conn)
			}
			return true
		})
	}
}

// failTask 标记任务失败
func (ec *ExportController) failTask(taskID string, message string) {
	if taskVal, ok := ec.tasks.Load(taskID); ok {
		task := taskVal.(*ExportTask)
		task.Status = "failed"
		task.Message = message

		ec.broadcastProgress(taskID, ProgressMessage{
			Type:     "error",
			TaskID:   taskID,
			Progress: task.Progress,
			Message:  message,
			Data:     task,
		})
	}
}

// exportErrorStatus 任务错误映射HTTP状态码
func exportErrorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNoData):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
