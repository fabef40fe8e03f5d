package services

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GrainArc/SceneMap/config"
)

// 柏林市中心的小范围测试框
var testBbox = []float64{13.4050, 52.5200, 13.4060, 52.5210}

func tileServer(t *testing.T) *httptest.Server {
	img := image.NewRGBA(image.Rect(0, 0, 256, 256))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{R: 100, G: 110, B: 120, A: 255}}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	tile := buf.Bytes()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(tile)
	}))
}

// overpassServer 返回一个约22米见方、带高度标签的建筑
func overpassServer(t *testing.T, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
}

const oneBuilding = `{
	"elements": [
		{"type":"way","id":1,"tags":{"building":"yes","building:height":"9m"},"geometry":[
			{"lon":13.40530,"lat":52.52030},
			{"lon":13.40562,"lat":52.52030},
			{"lon":13.40562,"lat":52.52050},
			{"lon":13.40530,"lat":52.52050},
			{"lon":13.40530,"lat":52.52030}]}
	]
}`

func newTestService(t *testing.T, overpassURL, tileURL string) *ExportService {
	oldOverpass, oldTile := config.OverpassURL, config.TileURL
	config.OverpassURL = overpassURL
	config.TileURL = tileURL + "/{z}/{x}/{y}.png"
	t.Cleanup(func() {
		config.OverpassURL = oldOverpass
		config.TileURL = oldTile
	})
	return NewExportService()
}

func TestExportEndToEnd(t *testing.T) {
	tiles := tileServer(t)
	defer tiles.Close()
	buildings := overpassServer(t, oneBuilding)
	defer buildings.Close()

	s := newTestService(t, buildings.URL, tiles.URL)
	result, err := s.Export(context.Background(), &ExportRequest{Bbox: testBbox, Quality: "high"}, nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.BuildingCount)
	assert.Equal(t, "map3d_52.5200_13.4050.zip", result.ZipName)

	// 压缩包包含 OBJ + MTL + 纹理三个文件
	zr, err := zip.NewReader(bytes.NewReader(result.ZipData), int64(len(result.ZipData)))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)

	files := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		files[f.Name] = data
	}

	obj, ok := files["map3d_52.5200_13.4050.obj"]
	require.True(t, ok, "OBJ文件缺失: %v", fileNames(zr))
	mtl, ok := files[MTLFilename]
	require.True(t, ok)
	texture, ok := files[TextureFilename]
	require.True(t, ok)

	// 地面4顶点+建筑8顶点，2地面面+2顶底面+4侧壁面
	objText := string(obj)
	assert.Equal(t, 12, countPrefix(objText, "v "))
	assert.Equal(t, 4, countPrefix(objText, "vt "))
	assert.Equal(t, 8, countPrefix(objText, "f "))
	assert.Contains(t, objText, "usemtl ground_texture")
	assert.Contains(t, objText, "g building_1")
	// 高度标签"9m"被解析
	assert.Contains(t, objText, "9.000")

	assert.Contains(t, string(mtl), "map_Kd "+TextureFilename)

	// 纹理为请求分辨率的正方形PNG
	cfg, err := png.DecodeConfig(bytes.NewReader(texture))
	require.NoError(t, err)
	assert.Equal(t, config.TextureSize, cfg.Width)
	assert.Equal(t, config.TextureSize, cfg.Height)
}

func TestExportTileFailureStillSucceeds(t *testing.T) {
	// 瓦片服务整体故障时所有瓦片降级为占位色块，任务仍然成功
	badTiles := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer badTiles.Close()
	buildings := overpassServer(t, oneBuilding)
	defer buildings.Close()

	s := newTestService(t, buildings.URL, badTiles.URL)
	result, err := s.Export(context.Background(), &ExportRequest{Bbox: testBbox}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, result.ZipData)
}

func TestExportInvalidInput(t *testing.T) {
	s := NewExportService()

	tests := []struct {
		name string
		bbox []float64
	}{
		{name: "长度错误", bbox: []float64{1, 2, 3}},
		{name: "西大于东", bbox: []float64{13.41, 52.52, 13.40, 52.53}},
		{name: "南大于北", bbox: []float64{13.40, 52.53, 13.41, 52.52}},
		{name: "面积超限", bbox: []float64{13.0, 52.0, 14.0, 53.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Export(context.Background(), &ExportRequest{Bbox: tt.bbox}, nil)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestExportNoData(t *testing.T) {
	tiles := tileServer(t)
	defer tiles.Close()
	empty := overpassServer(t, `{"elements": []}`)
	defer empty.Close()

	s := newTestService(t, empty.URL, tiles.URL)
	_, err := s.Export(context.Background(), &ExportRequest{Bbox: testBbox}, nil)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestExportUpstreamFailureFatal(t *testing.T) {
	tiles := tileServer(t)
	defer tiles.Close()
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()

	s := newTestService(t, down.URL, tiles.URL)
	_, err := s.Export(context.Background(), &ExportRequest{Bbox: testBbox}, nil)
	assert.ErrorIs(t, err, ErrUpstreamFetch)
}

func countPrefix(doc, prefix string) int {
	count := 0
	for _, line := range strings.Split(doc, "\n") {
		if strings.HasPrefix(line, prefix) {
			count++
		}
	}
	return count
}

func fileNames(zr *zip.Reader) []string {
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names
}
