// builder.go 瓦片拼接
package mosaic

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"log"
	"sync"

	// 注册jpeg/webp解码器，瓦片服务可能返回任意一种格式
	_ "image/jpeg"

	_ "github.com/chai2010/webp"

	"github.com/GrainArc/SceneMap/tilemath"
)

var (
	// CanvasFill 画布底色
	CanvasFill = color.RGBA{R: 240, G: 240, B: 240, A: 255}
	// PlaceholderFill 瓦片获取失败时的占位色
	PlaceholderFill = color.RGBA{R: 220, G: 220, B: 220, A: 255}
)

// ZoomBand 缩放级别选择档位
// MaxDimension 为边界框较大边长（度）的上限阈值
type ZoomBand struct {
	MaxDimension float64
	Zoom         int
}

// DefaultZoomBands 默认缩放档位：范围越大层级越低
var DefaultZoomBands = []ZoomBand{
	{MaxDimension: 0.005, Zoom: 16}, // < ~500m
	{MaxDimension: 0.01, Zoom: 15},  // < ~1km
}

// DefaultZoomFallback 超出所有档位时的层级
const DefaultZoomFallback = 14

// BuilderOptions 拼接参数
type BuilderOptions struct {
	TileSize  int
	Workers   int
	ZoomBands []ZoomBand
	ZoomMin   int
}

// Mosaic 拼接结果
// Bounds 为瓦片网格的真实地理范围，必定覆盖用户请求范围
type Mosaic struct {
	Image  *image.RGBA
	Bounds tilemath.Bounds
	Zoom   int
}

// Builder 瓦片拼接器
type Builder struct {
	fetcher TileFetcher
	opt     BuilderOptions
}

// NewBuilder 创建拼接器
func NewBuilder(fetcher TileFetcher, opt BuilderOptions) *Builder {
	if opt.TileSize <= 0 {
		opt.TileSize = tilemath.TileSize
	}
	if opt.Workers <= 0 {
		opt.Workers = 8
	}
	if len(opt.ZoomBands) == 0 {
		opt.ZoomBands = DefaultZoomBands
	}
	if opt.ZoomMin <= 0 {
		opt.ZoomMin = DefaultZoomFallback
	}
	return &Builder{fetcher: fetcher, opt: opt}
}

// SelectZoom 按边界框较大边长选择缩放级别
// 档位必须单调：范围越大层级不会更高
func (b *Builder) SelectZoom(bounds tilemath.Bounds) int {
	maxDimension := bounds.MaxLon - bounds.MinLon
	if h := bounds.MaxLat - bounds.MinLat; h > maxDimension {
		maxDimension = h
	}

	for _, band := range b.opt.ZoomBands {
		if maxDimension <= band.MaxDimension {
			return band.Zoom
		}
	}
	return b.opt.ZoomMin
}

type fetchedTile struct {
	coord tilemath.TileCoord
	data  []byte
	err   error
}

// Build 下载并拼接覆盖边界框的所有瓦片
// 单个瓦片失败以占位色块代替，只有上下文取消才会让整个拼接失败
func (b *Builder) Build(ctx context.Context, bounds tilemath.Bounds) (*Mosaic, error) {
	zoom := b.SelectZoom(bounds)
	tr := tilemath.RangeForBounds(bounds, zoom)

	tileSize := b.opt.TileSize
	canvas := image.NewRGBA(image.Rect(0, 0, tr.Width()*tileSize, tr.Height()*tileSize))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{CanvasFill}, image.Point{}, draw.Src)

	// 并发下载，结果先收集再顺序贴图
	tileChan := make(chan fetchedTile, tr.Count())
	semaphore := make(chan struct{}, b.opt.Workers)
	var wg sync.WaitGroup

	for x := tr.MinX; x <= tr.MaxX; x++ {
		for y := tr.MinY; y <= tr.MaxY; y++ {
			wg.Add(1)
			go func(coord tilemath.TileCoord) {
				defer wg.Done()
				semaphore <- struct{}{}
				defer func() { <-semaphore }()

				data, err := b.fetcher.Fetch(ctx, coord)
				tileChan <- fetchedTile{coord: coord, data: data, err: err}
			}(tilemath.TileCoord{Z: zoom, X: x, Y: y})
		}
	}

	go func() {
		wg.Wait()
		close(tileChan)
	}()

	for tile := range tileChan {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		posX := (tile.coord.X - tr.MinX) * tileSize
		posY := (tile.coord.Y - tr.MinY) * tileSize
		rect := image.Rect(posX, posY, posX+tileSize, posY+tileSize)

		if tile.err != nil || len(tile.data) == 0 {
			log.Printf("瓦片 %d/%d/%d 下载失败: %v，使用占位色块", tile.coord.Z, tile.coord.X, tile.coord.Y, tile.err)
			draw.Draw(canvas, rect, &image.Uniform{PlaceholderFill}, image.Point{}, draw.Src)
			continue
		}

		img, _, err := image.Decode(bytes.NewReader(tile.data))
		if err != nil {
			log.Printf("瓦片 %d/%d/%d 解码失败: %v，使用占位色块", tile.coord.Z, tile.coord.X, tile.coord.Y, err)
			draw.Draw(canvas, rect, &image.Uniform{PlaceholderFill}, image.Point{}, draw.Src)
			continue
		}

		draw.Draw(canvas, rect, img, img.Bounds().Min, draw.Src)
	}

	return &Mosaic{
		Image:  canvas,
		Bounds: tilemath.RangeBounds(tr, zoom),
		Zoom:   zoom,
	}, nil
}

// String 调试输出
func (m *Mosaic) String() string {
	return fmt.Sprintf("Mosaic{z=%d, %dx%d}", m.Zoom, m.Image.Bounds().Dx(), m.Image.Bounds().Dy())
}
