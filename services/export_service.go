// export_service.go 三维地图导出服务
package services

import (
	"context"
	"errors"
	"fmt"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/GrainArc/SceneMap/config"
	"github.com/GrainArc/SceneMap/footprint"
	"github.com/GrainArc/SceneMap/geoproj"
	"github.com/GrainArc/SceneMap/methods"
	"github.com/GrainArc/SceneMap/models"
	"github.com/GrainArc/SceneMap/mosaic"
	"github.com/GrainArc/SceneMap/overpass"
	"github.com/GrainArc/SceneMap/scene"
	"github.com/GrainArc/SceneMap/tilemath"
)

const (
	// TextureFilename 纹理文件名，OBJ材质以相对路径引用
	TextureFilename = "map_texture.png"
	// MTLFilename 材质文件名
	MTLFilename = "materials.mtl"
)

// 任务级错误类型
var (
	// ErrInvalidInput 请求参数非法，不进入流水线
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoData 范围内没有可用建筑
	ErrNoData = errors.New("no buildings found in selected area")
	// ErrUpstreamFetch 建筑数据源获取失败，整个任务终止
	ErrUpstreamFetch = errors.New("failed to fetch building data")
)

// ExportRequest 导出请求参数
type ExportRequest struct {
	Bbox           []float64 `json:"bbox" binding:"required"` // [west, south, east, north]
	BuildingHeight float64   `json:"building_height"`
	Quality        string    `json:"quality"`
	TaskID         string    `json:"-"` // 异步任务编号，由控制层填写
}

// ExportResult 导出结果
type ExportResult struct {
	ZipName       string
	ZipData       []byte
	BuildingCount int
	TextureSize   int
}

// ProgressFunc 进度回调
type ProgressFunc func(progress float64, message string)

// ExportService 导出服务
type ExportService struct {
	overpassClient *overpass.Client
	mosaicBuilder  *mosaic.Builder
	textureSize    int
	maxAreaDeg2    float64
	buildingWorker int
}

// NewExportService 按全局配置装配导出服务
func NewExportService() *ExportService {
	fetcher := mosaic.NewHTTPTileFetcher(
		config.TileURL,
		time.Duration(config.MainConfig.TileTimeout)*time.Second,
	)
	return &ExportService{
		overpassClient: overpass.NewClient(
			config.OverpassURL,
			time.Duration(config.MainConfig.OverpassTimeout)*time.Second,
		),
		mosaicBuilder: mosaic.NewBuilder(fetcher, mosaic.BuilderOptions{
			Workers: config.MainConfig.TileWorkers,
		}),
		textureSize:    config.TextureSize,
		maxAreaDeg2:    config.MainConfig.MaxAreaDeg2,
		buildingWorker: config.MainConfig.BuildingWorkers,
	}
}

// Validate 校验请求范围
func (s *ExportService) Validate(req *ExportRequest) error {
	if len(req.Bbox) != 4 {
		return fmt.Errorf("%w: bbox must have 4 values [west, south, east, north]", ErrInvalidInput)
	}
	west, south, east, north := req.Bbox[0], req.Bbox[1], req.Bbox[2], req.Bbox[3]
	if west >= east || south >= north {
		return fmt.Errorf("%w: invalid bounding box coordinates", ErrInvalidInput)
	}
	// 面积上限同时约束瓦片数量和切平面投影的畸变
	if (east-west)*(north-south) > s.maxAreaDeg2 {
		return fmt.Errorf("%w: selected area too large", ErrInvalidInput)
	}
	return nil
}

// Export 执行一次完整导出
// 成功时返回包含OBJ/MTL/纹理的zip字节流；失败时不产生部分结果，临时目录总是被清理
func (s *ExportService) Export(ctx context.Context, req *ExportRequest, report ProgressFunc) (*ExportResult, error) {
	start := time.Now()
	if report == nil {
		report = func(float64, string) {}
	}

	if err := s.Validate(req); err != nil {
		return nil, err
	}

	bounds := tilemath.Bounds{
		MinLon: req.Bbox[0],
		MinLat: req.Bbox[1],
		MaxLon: req.Bbox[2],
		MaxLat: req.Bbox[3],
	}
	quality := req.Quality
	if quality == "" {
		quality = "medium"
	}
	defaultHeight := req.BuildingHeight
	if defaultHeight <= 0 {
		defaultHeight = config.DefaultHeight
	}

	// 建筑数据获取失败是致命的：没有几何数据源就没有可导出的场景
	report(5, "查询建筑数据...")
	elements, err := s.overpassClient.QueryBuildings(ctx, bounds)
	if err != nil {
		s.record(req, quality, 0, "failed", err.Error(), start)
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFetch, err)
	}
	if len(elements) == 0 {
		s.record(req, quality, 0, "failed", ErrNoData.Error(), start)
		return nil, ErrNoData
	}

	tempDir, err := os.MkdirTemp("", "scenemap_export_")
	if err != nil {
		return nil, fmt.Errorf("创建临时目录失败: %v", err)
	}
	defer os.RemoveAll(tempDir)

	// 单瓦片失败在拼接内部降级为占位色块，不会让任务失败
	report(20, "下载地图瓦片...")
	m, err := s.mosaicBuilder.Build(ctx, bounds)
	if err != nil {
		s.record(req, quality, 0, "failed", err.Error(), start)
		return nil, err
	}

	report(50, "裁剪纹理...")
	texture := mosaic.ResampleSquare(mosaic.CropToBounds(m, bounds), s.textureSize)
	texturePath := filepath.Join(tempDir, TextureFilename)
	textureFile, err := os.Create(texturePath)
	if err != nil {
		return nil, fmt.Errorf("写入纹理失败: %v", err)
	}
	if err := png.Encode(textureFile, texture); err != nil {
		textureFile.Close()
		return nil, fmt.Errorf("编码纹理失败: %v", err)
	}
	textureFile.Close()

	// 地面与所有建筑共用同一个投影原点
	origin := geoproj.OriginOf(bounds)

	report(60, "处理建筑几何...")
	policy := config.QualityOf(quality)
	buildings := footprint.ProcessAll(elements, origin, footprint.Options{
		SimplifyTolerance: policy.SimplifyTolerance,
		MinArea:           policy.MinArea,
		DefaultHeight:     defaultHeight,
		Workers:           s.buildingWorker,
	})
	log.Printf("建筑处理完成: 输入%d个要素，输出%d个建筑体", len(elements), len(buildings))

	report(80, "装配场景...")
	sceneBuilder := scene.NewBuilder(bounds, origin, MTLFilename)
	sceneBuilder.AddGroundPlane()
	sceneBuilder.AddBuildings(buildings)

	objName := fmt.Sprintf("map3d_%.4f_%.4f.obj", bounds.MinLat, bounds.MinLon)
	if err := os.WriteFile(filepath.Join(tempDir, objName), []byte(sceneBuilder.OBJ()), 0644); err != nil {
		return nil, fmt.Errorf("写入OBJ失败: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tempDir, MTLFilename), []byte(scene.MTL(TextureFilename)), 0644); err != nil {
		return nil, fmt.Errorf("写入MTL失败: %v", err)
	}

	report(90, "打包文件...")
	zipData, err := methods.ZipFileOut(tempDir)
	if err != nil {
		s.record(req, quality, len(buildings), "failed", err.Error(), start)
		return nil, fmt.Errorf("打包失败: %v", err)
	}

	s.record(req, quality, len(buildings), "completed", "export completed", start)
	report(100, "导出完成")

	return &ExportResult{
		ZipName:       fmt.Sprintf("map3d_%.4f_%.4f.zip", bounds.MinLat, bounds.MinLon),
		ZipData:       zipData,
		BuildingCount: len(buildings),
		TextureSize:   s.textureSize,
	}, nil
}

// record 写入导出历史，数据库不可用时只记日志
func (s *ExportService) record(req *ExportRequest, quality string, buildingCount int, status, message string, start time.Time) {
	if models.DB == nil || len(req.Bbox) != 4 {
		return
	}
	rec := models.ExportRecord{
		TaskID:        req.TaskID,
		MinLon:        req.Bbox[0],
		MinLat:        req.Bbox[1],
		MaxLon:        req.Bbox[2],
		MaxLat:        req.Bbox[3],
		Quality:       quality,
		BuildingCount: buildingCount,
		Status:        status,
		Message:       message,
		DurationMS:    time.Since(start).Milliseconds(),
		CreatedAt:     time.Now(),
	}
	if err := models.DB.Create(&rec).Error; err != nil {
		log.Printf("写入导出记录失败: %v", err)
	}
}
