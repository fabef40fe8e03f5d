// footprint.go 建筑底面处理
package footprint

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"

	"github.com/GrainArc/SceneMap/geoproj"
	"github.com/GrainArc/SceneMap/overpass"
)

const (
	// MinHeight 建筑最小高度（米）
	MinHeight = 2.0
	// MetersPerLevel 每层楼换算高度（米）
	MetersPerLevel = 3.5
)

// Options 底面处理参数
// 容差和最小面积来自质量档位配置表，默认高度为任务级参数
type Options struct {
	SimplifyTolerance float64 // 简化容差（米）
	MinArea           float64 // 最小面积阈值（平方米）
	DefaultHeight     float64 // 默认建筑高度（米）
	Workers           int     // 并发处理数
}

// Building 处理完成的建筑体
// Outline 为简化后的底面环（局部米坐标，不含闭合重复点），Height 为拉伸高度
type Building struct {
	Outline []geoproj.XY
	Height  float64
}

// Process 处理单个建筑要素
// 返回 nil 表示该要素被拒绝或处理失败，不影响批次内其他要素
func Process(e overpass.Element, origin geoproj.Origin, opt Options) (b *Building) {
	// 几何库对恶劣输入可能panic，单个要素的失败不允许中断整批处理
	defer func() {
		if r := recover(); r != nil {
			b = nil
		}
	}()

	coords := e.Geometry
	if len(coords) < 4 {
		return nil
	}

	// 去掉闭合重复点
	if coords[0] == coords[len(coords)-1] {
		coords = coords[:len(coords)-1]
	}
	if len(coords) < 3 {
		return nil
	}

	// 与地面共用同一原点投影到局部米坐标
	local := make([]geoproj.XY, 0, len(coords))
	for _, c := range coords {
		local = append(local, origin.Meters(c.Lon, c.Lat))
	}

	ring := closedRing(local)
	if !ringValid(ring) {
		return nil
	}
	if math.Abs(planar.Area(ring)) < opt.MinArea {
		return nil
	}

	// 简化退化为非多边形时回退到未简化的投影环
	outline := local
	simplified := simplify.DouglasPeucker(opt.SimplifyTolerance).Ring(ring.Clone())
	if len(simplified) >= 4 && simplified.Closed() {
		outline = make([]geoproj.XY, 0, len(simplified)-1)
		for _, p := range simplified[:len(simplified)-1] {
			outline = append(outline, geoproj.XY{X: p[0], Y: p[1]})
		}
	}

	if len(outline) < 3 {
		return nil
	}

	return &Building{
		Outline: outline,
		Height:  ResolveHeight(e.Tags, opt.DefaultHeight),
	}
}

// ProcessAll 并发处理一批建筑要素，结果保持输入顺序
func ProcessAll(elements []overpass.Element, origin geoproj.Origin, opt Options) []Building {
	workers := opt.Workers
	if workers <= 0 {
		workers = 4
	}

	results := make([]*Building, len(elements))
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, workers)

	for i, e := range elements {
		wg.Add(1)
		go func(idx int, el overpass.Element) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			results[idx] = Process(el, origin, opt)
		}(i, e)
	}
	wg.Wait()

	buildings := make([]Building, 0, len(elements))
	for _, r := range results {
		if r != nil {
			buildings = append(buildings, *r)
		}
	}
	return buildings
}

// ResolveHeight 从标签中解析建筑高度
// 优先building:height（去掉单位后缀和空格），其次building:levels×层高，都取不到用默认值
func ResolveHeight(tags map[string]string, defaultHeight float64) float64 {
	if raw, ok := tags["building:height"]; ok {
		cleaned := strings.ReplaceAll(strings.ReplaceAll(raw, "m", ""), " ", "")
		if h, err := strconv.ParseFloat(cleaned, 64); err == nil {
			return math.Max(h, MinHeight)
		}
		return defaultHeight
	}

	if raw, ok := tags["building:levels"]; ok {
		if levels, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
			return math.Max(float64(levels)*MetersPerLevel, MinHeight)
		}
		return defaultHeight
	}

	return defaultHeight
}

// closedRing 构造闭合的orb环
func closedRing(pts []geoproj.XY) orb.Ring {
	ring := make(orb.Ring, 0, len(pts)+1)
	for _, p := range pts {
		ring = append(ring, orb.Point{p.X, p.Y})
	}
	ring = append(ring, ring[0])
	return ring
}

// ringValid 检查环是否为有效简单多边形（无自相交）
// orb没有几何有效性判断，这里对非相邻边做两两相交检测
func ringValid(ring orb.Ring) bool {
	n := len(ring) - 1 // 去掉闭合点后的边数
	if n < 3 {
		return false
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			// 跳过相邻边（含首尾相接）
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			if segmentsCross(ring[i], ring[i+1], ring[j], ring[j+1]) {
				return false
			}
		}
	}
	return true
}

// segmentsCross 判断两线段是否相交（含共线重叠）
func segmentsCross(p1, p2, q1, q2 orb.Point) bool {
	d1 := cross(q1, q2, p1)
	d2 := cross(q1, q2, p2)
	d3 := cross(p1, p2, q1)
	d4 := cross(p1, p2, q2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	// 共线端点落在对方线段上
	if d1 == 0 && onSegment(q1, q2, p1) {
		return true
	}
	if d2 == 0 && onSegment(q1, q2, p2) {
		return true
	}
	if d3 == 0 && onSegment(p1, p2, q1) {
		return true
	}
	if d4 == 0 && onSegment(p1, p2, q2) {
		return true
	}
	return false
}

func cross(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, p orb.Point) bool {
	return math.Min(a[0], b[0]) <= p[0] && p[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= p[1] && p[1] <= math.Max(a[1], b[1])
}

// String 调试输出
func (b Building) String() string {
	return fmt.Sprintf("Building{n=%d, h=%.2f}", len(b.Outline), b.Height)
}
