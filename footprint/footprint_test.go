package footprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GrainArc/SceneMap/geoproj"
	"github.com/GrainArc/SceneMap/overpass"
)

var testOrigin = geoproj.Origin{Lat: 52.5205, Lon: 13.4055}

// squareElement 构造以原点为中心、边长size米的近似方形建筑
func squareElement(size float64, tags map[string]string) overpass.Element {
	// 反推经纬度偏移量
	dLat := size / 111320.0
	dLon := size / 111320.0 / 0.608 // cos(52.52°)≈0.608
	return overpass.Element{
		Type: "way",
		Tags: tags,
		Geometry: []overpass.LonLat{
			{Lon: testOrigin.Lon, Lat: testOrigin.Lat},
			{Lon: testOrigin.Lon + dLon, Lat: testOrigin.Lat},
			{Lon: testOrigin.Lon + dLon, Lat: testOrigin.Lat + dLat},
			{Lon: testOrigin.Lon, Lat: testOrigin.Lat + dLat},
			{Lon: testOrigin.Lon, Lat: testOrigin.Lat}, // 闭合点
		},
	}
}

func buildingTags() map[string]string {
	return map[string]string{"building": "yes"}
}

func TestResolveHeight(t *testing.T) {
	tests := []struct {
		name string
		tags map[string]string
		want float64
	}{
		{name: "带单位的高度标签", tags: map[string]string{"building:height": "12.5 m"}, want: 12.5},
		{name: "层数标签", tags: map[string]string{"building:levels": "3"}, want: 10.5},
		{name: "无标签用默认值", tags: map[string]string{}, want: 10.0},
		{name: "高度低于下限", tags: map[string]string{"building:height": "0.5"}, want: 2.0},
		{name: "层数低于下限", tags: map[string]string{"building:levels": "0"}, want: 2.0},
		{name: "高度标签损坏回退默认", tags: map[string]string{"building:height": "tall"}, want: 10.0},
		{name: "层数标签损坏回退默认", tags: map[string]string{"building:levels": "three"}, want: 10.0},
		{name: "高度优先于层数", tags: map[string]string{"building:height": "9m", "building:levels": "5"}, want: 9.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveHeight(tt.tags, 10.0))
		})
	}
}

func TestProcessAreaThreshold(t *testing.T) {
	opt := Options{SimplifyTolerance: 0.3, MinArea: 5.0, DefaultHeight: 10.0}

	// 面积约4平方米，低于high档5平方米阈值
	small := squareElement(2.0, buildingTags())
	assert.Nil(t, Process(small, testOrigin, opt))

	// 面积约9平方米，高于阈值
	big := squareElement(3.0, buildingTags())
	b := Process(big, testOrigin, opt)
	require.NotNil(t, b)
	assert.Len(t, b.Outline, 4)
}

func TestProcessRejectsDegenerate(t *testing.T) {
	opt := Options{SimplifyTolerance: 1.0, MinArea: 10.0, DefaultHeight: 10.0}

	// 少于4个原始顶点
	tooFew := overpass.Element{
		Tags: buildingTags(),
		Geometry: []overpass.LonLat{
			{Lon: 13.405, Lat: 52.520},
			{Lon: 13.406, Lat: 52.520},
			{Lon: 13.406, Lat: 52.521},
		},
	}
	assert.Nil(t, Process(tooFew, testOrigin, opt))

	// 折叠成线段的零面积环
	collapsed := overpass.Element{
		Tags: buildingTags(),
		Geometry: []overpass.LonLat{
			{Lon: 13.405, Lat: 52.520},
			{Lon: 13.406, Lat: 52.520},
			{Lon: 13.405, Lat: 52.520},
			{Lon: 13.405, Lat: 52.520},
		},
	}
	assert.Nil(t, Process(collapsed, testOrigin, opt))
}

func TestProcessRejectsSelfIntersecting(t *testing.T) {
	opt := Options{SimplifyTolerance: 0.3, MinArea: 5.0, DefaultHeight: 10.0}

	// 蝴蝶结形自相交环
	dLat := 50.0 / 111320.0
	dLon := 50.0 / 111320.0 / 0.608
	bowtie := overpass.Element{
		Tags: buildingTags(),
		Geometry: []overpass.LonLat{
			{Lon: testOrigin.Lon, Lat: testOrigin.Lat},
			{Lon: testOrigin.Lon + dLon, Lat: testOrigin.Lat + dLat},
			{Lon: testOrigin.Lon + dLon, Lat: testOrigin.Lat},
			{Lon: testOrigin.Lon, Lat: testOrigin.Lat + dLat},
			{Lon: testOrigin.Lon, Lat: testOrigin.Lat},
		},
	}
	assert.Nil(t, Process(bowtie, testOrigin, opt))
}

func TestProcessSimplify(t *testing.T) {
	// 边中点与端点共线，简化后应被去除
	dLat := 20.0 / 111320.0
	dLon := 20.0 / 111320.0 / 0.608
	el := overpass.Element{
		Tags: buildingTags(),
		Geometry: []overpass.LonLat{
			{Lon: testOrigin.Lon, Lat: testOrigin.Lat},
			{Lon: testOrigin.Lon + dLon/2, Lat: testOrigin.Lat}, // 共线中点
			{Lon: testOrigin.Lon + dLon, Lat: testOrigin.Lat},
			{Lon: testOrigin.Lon + dLon, Lat: testOrigin.Lat + dLat},
			{Lon: testOrigin.Lon, Lat: testOrigin.Lat + dLat},
			{Lon: testOrigin.Lon, Lat: testOrigin.Lat},
		},
	}
	b := Process(el, testOrigin, Options{SimplifyTolerance: 1.0, MinArea: 10.0, DefaultHeight: 10.0})
	require.NotNil(t, b)
	assert.Len(t, b.Outline, 4)
}

func TestProcessAllSkipsBadKeepsGood(t *testing.T) {
	opt := Options{SimplifyTolerance: 0.3, MinArea: 5.0, DefaultHeight: 10.0, Workers: 2}
	elements := []overpass.Element{
		squareElement(10.0, buildingTags()),
		{Tags: buildingTags(), Geometry: []overpass.LonLat{{Lon: 13.4, Lat: 52.5}}}, // 退化
		squareElement(8.0, map[string]string{"building": "yes", "building:levels": "2"}),
	}

	buildings := ProcessAll(elements, testOrigin, opt)
	require.Len(t, buildings, 2)
	assert.Equal(t, 10.0, buildings[0].Height)
	assert.Equal(t, 7.0, buildings[1].Height)
}
