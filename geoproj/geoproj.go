// geoproj.go 局部平面投影
package geoproj

import (
	"math"

	"github.com/GrainArc/SceneMap/tilemath"
)

// XY 局部平面坐标（米）
type XY struct {
	X float64
	Y float64
}

// Origin 投影原点
// 一次导出任务内所有坐标转换共用同一个原点，地面纹理与建筑几何才能对齐
type Origin struct {
	Lat float64
	Lon float64
}

// OriginOf 取边界框中心点作为投影原点
func OriginOf(b tilemath.Bounds) Origin {
	return Origin{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lon: (b.MinLon + b.MaxLon) / 2,
	}
}

// Meters 经纬度转局部米坐标（等距圆柱切平面近似）
// 仅适用于小范围区域，范围上限由导出任务的面积校验保证
func (o Origin) Meters(lon, lat float64) XY {
	latRad := lat * math.Pi / 180.0
	lonRad := lon * math.Pi / 180.0
	originLatRad := o.Lat * math.Pi / 180.0
	originLonRad := o.Lon * math.Pi / 180.0

	return XY{
		X: tilemath.EarthRadius * (lonRad - originLonRad) * math.Cos(originLatRad),
		Y: tilemath.EarthRadius * (latRad - originLatRad),
	}
}
