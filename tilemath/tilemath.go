// tilemath.go 瓦片坐标计算
package tilemath

import (
	"math"
)

const (
	EarthRadius = 6378137.0
	TileSize    = 256 // 标准瓦片尺寸
)

// Bounds WGS84经纬度边界框
type Bounds struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// TileCoord 瓦片坐标
type TileCoord struct {
	Z int
	X int
	Y int
}

// TileRange 瓦片范围
type TileRange struct {
	MinX int
	MaxX int
	MinY int
	MaxY int
}

// Width 横向瓦片数量
func (tr TileRange) Width() int {
	return tr.MaxX - tr.MinX + 1
}

// Height 纵向瓦片数量
func (tr TileRange) Height() int {
	return tr.MaxY - tr.MinY + 1
}

// Count 瓦片总数
func (tr TileRange) Count() int {
	return tr.Width() * tr.Height()
}

// LonToTileX 经度转瓦片X坐标
func LonToTileX(lon float64, z int) int {
	n := math.Pow(2, float64(z))
	x := int(math.Floor((lon + 180.0) / 360.0 * n))
	return clampTileIndex(x, int(n)-1)
}

// LatToTileY 纬度转瓦片Y坐标
func LatToTileY(lat float64, z int) int {
	n := math.Pow(2, float64(z))
	latRad := lat * math.Pi / 180.0
	y := int(math.Floor((1.0 - math.Log(math.Tan(latRad)+1.0/math.Cos(latRad))/math.Pi) / 2.0 * n))
	return clampTileIndex(y, int(n)-1)
}

// TileXToLon 瓦片X坐标转经度（瓦片左边缘）
func TileXToLon(x, z int) float64 {
	n := math.Pow(2, float64(z))
	return float64(x)/n*360.0 - 180.0
}

// TileYToLat 瓦片Y坐标转纬度（瓦片上边缘）
func TileYToLat(y, z int) float64 {
	n := math.Pow(2, float64(z))
	latRad := math.Atan(math.Sinh(math.Pi * (1 - 2*float64(y)/n)))
	return latRad * 180.0 / math.Pi
}

// LonLatToTileCoord 经纬度转瓦片坐标
func LonLatToTileCoord(lon, lat float64, z int) TileCoord {
	return TileCoord{Z: z, X: LonToTileX(lon, z), Y: LatToTileY(lat, z)}
}

// TileBoundsWGS84 获取瓦片的WGS84边界
func TileBoundsWGS84(z, x, y int) Bounds {
	return Bounds{
		MinLon: TileXToLon(x, z),
		MaxLon: TileXToLon(x+1, z),
		MinLat: TileYToLat(y+1, z),
		MaxLat: TileYToLat(y, z),
	}
}

// RangeForBounds 计算覆盖边界框的瓦片范围
// 注意Y方向与纬度相反：北边界对应MinY，南边界对应MaxY
func RangeForBounds(b Bounds, z int) TileRange {
	return TileRange{
		MinX: LonToTileX(b.MinLon, z),
		MaxX: LonToTileX(b.MaxLon, z),
		MinY: LatToTileY(b.MaxLat, z),
		MaxY: LatToTileY(b.MinLat, z),
	}
}

// RangeBounds 通过逆向瓦片计算恢复瓦片范围的真实地理边界
// 最大角取+1以获得瓦片外边缘，保证结果边界覆盖原始范围
func RangeBounds(tr TileRange, z int) Bounds {
	return Bounds{
		MinLon: TileXToLon(tr.MinX, z),
		MaxLon: TileXToLon(tr.MaxX+1, z),
		MaxLat: TileYToLat(tr.MinY, z),
		MinLat: TileYToLat(tr.MaxY+1, z),
	}
}

func clampTileIndex(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
