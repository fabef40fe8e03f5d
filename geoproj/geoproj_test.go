package geoproj

import (
	"math"
	"testing"

	"github.com/GrainArc/SceneMap/tilemath"
	"github.com/stretchr/testify/assert"
)

func TestOriginOf(t *testing.T) {
	b := tilemath.Bounds{MinLon: 13.4050, MinLat: 52.5200, MaxLon: 13.4060, MaxLat: 52.5210}
	o := OriginOf(b)
	assert.InDelta(t, 52.5205, o.Lat, 1e-12)
	assert.InDelta(t, 13.4055, o.Lon, 1e-12)
}

func TestMetersAtOrigin(t *testing.T) {
	o := Origin{Lat: 52.5205, Lon: 13.4055}
	p := o.Meters(o.Lon, o.Lat)
	assert.Zero(t, p.X)
	assert.Zero(t, p.Y)
}

func TestMetersScale(t *testing.T) {
	o := Origin{Lat: 52.52, Lon: 13.405}

	// 纬度方向每度约 111.3 公里
	north := o.Meters(o.Lon, o.Lat+0.001)
	assert.InDelta(t, tilemath.EarthRadius*0.001*math.Pi/180.0, north.Y, 0.01)
	assert.Zero(t, north.X)

	// 经度方向按 cos(原点纬度) 收缩
	east := o.Meters(o.Lon+0.001, o.Lat)
	expected := tilemath.EarthRadius * 0.001 * math.Pi / 180.0 * math.Cos(o.Lat*math.Pi/180.0)
	assert.InDelta(t, expected, east.X, 0.01)
	assert.Zero(t, east.Y)
}

func TestMetersSymmetry(t *testing.T) {
	o := Origin{Lat: 52.52, Lon: 13.405}
	west := o.Meters(o.Lon-0.002, o.Lat)
	east := o.Meters(o.Lon+0.002, o.Lat)
	assert.InDelta(t, -west.X, east.X, 1e-9)
}
