// scene.go OBJ场景装配
package scene

import (
	"fmt"
	"strings"

	"github.com/GrainArc/SceneMap/footprint"
	"github.com/GrainArc/SceneMap/geoproj"
	"github.com/GrainArc/SceneMap/tilemath"
)

const (
	// GroundElevation 地面略低于建筑底面，避免面重叠闪烁
	GroundElevation = -0.1
	// GroundMaterial 地面材质名
	GroundMaterial = "ground_texture"
	// BuildingMaterial 建筑材质名
	BuildingMaterial = "building_material"
)

// Builder OBJ场景构建器
// 所有顶点索引共用一个从1开始递增的全局计数器，保证面引用跨对象有效
type Builder struct {
	lines         []string
	vertexCount   int
	buildingCount int
	origin        geoproj.Origin
	bounds        tilemath.Bounds
}

// NewBuilder 创建场景构建器
// origin 必须与纹理裁剪、建筑投影使用同一个实例
func NewBuilder(bounds tilemath.Bounds, origin geoproj.Origin, mtlFilename string) *Builder {
	b := &Builder{
		origin: origin,
		bounds: bounds,
	}
	b.lines = append(b.lines,
		"# 3D Map Export",
		fmt.Sprintf("# Bbox: %.6f,%.6f to %.6f,%.6f", bounds.MinLat, bounds.MinLon, bounds.MaxLat, bounds.MaxLon),
		fmt.Sprintf("# Origin: %.6f, %.6f", origin.Lat, origin.Lon),
		"",
		"mtllib "+mtlFilename,
		"",
	)
	return b
}

// AddGroundPlane 添加带纹理的地面矩形
// 顶点顺序 SW SE NE NW 与UV角点 (0,0)(1,0)(1,1)(0,1) 严格一一对应，
// 顺序一旦错位纹理与几何就会失配
func (b *Builder) AddGroundPlane() {
	sw := b.origin.Meters(b.bounds.MinLon, b.bounds.MinLat)
	se := b.origin.Meters(b.bounds.MaxLon, b.bounds.MinLat)
	ne := b.origin.Meters(b.bounds.MaxLon, b.bounds.MaxLat)
	nw := b.origin.Meters(b.bounds.MinLon, b.bounds.MaxLat)

	b.lines = append(b.lines,
		"# Ground vertices",
		fmt.Sprintf("v %.3f %.3f %.1f", sw.X, sw.Y, GroundElevation),
		fmt.Sprintf("v %.3f %.3f %.1f", se.X, se.Y, GroundElevation),
		fmt.Sprintf("v %.3f %.3f %.1f", ne.X, ne.Y, GroundElevation),
		fmt.Sprintf("v %.3f %.3f %.1f", nw.X, nw.Y, GroundElevation),
		"",
		"# UV coordinates",
		"vt 0.0 0.0",
		"vt 1.0 0.0",
		"vt 1.0 1.0",
		"vt 0.0 1.0",
		"",
		"usemtl "+GroundMaterial,
		"g ground_plane",
		"f 1/1 2/2 3/3",
		"f 1/1 3/3 4/4",
		"",
	)
	b.vertexCount = 4
}

// AddBuilding 添加一个建筑体：底面环+顶面环+侧壁
func (b *Builder) AddBuilding(bld footprint.Building) {
	n := len(bld.Outline)
	if n < 3 {
		return
	}

	base := make([]int, 0, n)
	top := make([]int, 0, n)

	for _, p := range bld.Outline {
		b.lines = append(b.lines, fmt.Sprintf("v %.3f %.3f 0.0", p.X, p.Y))
		b.vertexCount++
		base = append(base, b.vertexCount)

		b.lines = append(b.lines, fmt.Sprintf("v %.3f %.3f %.3f", p.X, p.Y, bld.Height))
		b.vertexCount++
		top = append(top, b.vertexCount)
	}

	b.buildingCount++
	b.lines = append(b.lines,
		fmt.Sprintf("g building_%d", b.buildingCount),
		"usemtl "+BuildingMaterial,
	)

	// 底面翻转环向，法线朝下
	bottom := make([]string, 0, n)
	for i := n - 1; i >= 0; i-- {
		bottom = append(bottom, fmt.Sprintf("%d", base[i]))
	}
	b.lines = append(b.lines, "f "+strings.Join(bottom, " "))

	// 顶面正向环向，法线朝上
	roof := make([]string, 0, n)
	for i := 0; i < n; i++ {
		roof = append(roof, fmt.Sprintf("%d", top[i]))
	}
	b.lines = append(b.lines, "f "+strings.Join(roof, " "))

	// 侧壁：相邻底/顶顶点对构成四边形
	for i := 0; i < n; i++ {
		next := (i + 1) % n
		b.lines = append(b.lines, fmt.Sprintf("f %d %d %d %d", base[i], base[next], top[next], top[i]))
	}
}

// AddBuildings 按顺序追加一批建筑
func (b *Builder) AddBuildings(buildings []footprint.Building) {
	b.lines = append(b.lines, "# Buildings")
	for _, bld := range buildings {
		b.AddBuilding(bld)
	}
}

// VertexCount 当前全局顶点计数
func (b *Builder) VertexCount() int {
	return b.vertexCount
}

// BuildingCount 已写入的建筑数量
func (b *Builder) BuildingCount() int {
	return b.buildingCount
}

// OBJ 输出OBJ文档文本
func (b *Builder) OBJ() string {
	return strings.Join(b.lines, "\n") + "\n"
}

// MTL 输出材质文档文本：带纹理的地面材质+平涂的建筑材质
func MTL(textureFilename string) string {
	return fmt.Sprintf(`# Scene materials

newmtl %s
Ka 1.0 1.0 1.0
Kd 1.0 1.0 1.0
Ks 0.0 0.0 0.0
map_Kd %s

newmtl %s
Ka 0.7 0.7 0.7
Kd 0.8 0.8 0.8
Ks 0.2 0.2 0.2
Ns 20.0
`, GroundMaterial, textureFilename, BuildingMaterial)
}
