package models

import "time"

// ExportRecord 导出任务历史记录
type ExportRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	TaskID        string    `gorm:"column:task_id;index" json:"taskId"`        // 任务编号
	MinLon        float64   `gorm:"column:min_lon" json:"minLon"`              // 西边界
	MinLat        float64   `gorm:"column:min_lat" json:"minLat"`              // 南边界
	MaxLon        float64   `gorm:"column:max_lon" json:"maxLon"`              // 东边界
	MaxLat        float64   `gorm:"column:max_lat" json:"maxLat"`              // 北边界
	Quality       string    `gorm:"column:quality" json:"quality"`             // 质量档位
	BuildingCount int       `gorm:"column:building_count" json:"buildingCount"` // 建筑数量
	Status        string    `gorm:"column:status" json:"status"`               // 任务状态
	Message       string    `gorm:"column:message" json:"message"`             // 结果描述
	DurationMS    int64     `gorm:"column:duration_ms" json:"durationMs"`      // 耗时（毫秒）
	CreatedAt     time.Time `json:"createdAt"`
}
