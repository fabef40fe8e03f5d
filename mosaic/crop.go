// crop.go 精确裁剪与重采样
package mosaic

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/GrainArc/SceneMap/tilemath"
)

// CropToBounds 将拼接图裁剪到用户请求的精确范围
// userBounds 按线性插值映射进瓦片网格范围：X方向正向（西→0），
// Y方向反向（北→0，栅格行号向下增长而纬度向上增长）。
// 裁剪区域经过钳制保证非空且不越界，这是纹理与几何对齐的关键路径。
func CropToBounds(m *Mosaic, userBounds tilemath.Bounds) *image.RGBA {
	width := m.Image.Bounds().Dx()
	height := m.Image.Bounds().Dy()
	tb := m.Bounds

	xRatio := (userBounds.MinLon - tb.MinLon) / (tb.MaxLon - tb.MinLon)
	cropLeft := int(xRatio * float64(width))

	xRatio = (userBounds.MaxLon - tb.MinLon) / (tb.MaxLon - tb.MinLon)
	cropRight := int(xRatio * float64(width))

	yRatio := (tb.MaxLat - userBounds.MaxLat) / (tb.MaxLat - tb.MinLat)
	cropTop := int(yRatio * float64(height))

	yRatio = (tb.MaxLat - userBounds.MinLat) / (tb.MaxLat - tb.MinLat)
	cropBottom := int(yRatio * float64(height))

	// 浮点取整可能落到边界外，钳制保证裁剪区域合法
	cropLeft = clamp(cropLeft, 0, width-1)
	cropRight = clamp(cropRight, cropLeft+1, width)
	cropTop = clamp(cropTop, 0, height-1)
	cropBottom = clamp(cropBottom, cropTop+1, height)

	rect := image.Rect(cropLeft, cropTop, cropRight, cropBottom)
	cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	xdraw.Copy(cropped, image.Point{}, m.Image, rect, xdraw.Src, nil)

	return cropped
}

// ResampleSquare 高质量重采样到固定正方形分辨率
func ResampleSquare(img image.Image, size int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return dst
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
